package domain

import "time"

type NotificationType string

const (
	NotifyWorkout      NotificationType = "workout"
	NotifyWater        NotificationType = "water"
	NotifyMeal         NotificationType = "meal"
	NotifyAchievement  NotificationType = "achievement"
	NotifyMessage      NotificationType = "message"
	NotifyComment      NotificationType = "comment"
	NotifyLike         NotificationType = "like"
	NotifyFollow       NotificationType = "follow"
	NotifyPlanAssigned NotificationType = "plan_assigned"
	NotifyReminder     NotificationType = "reminder"
	NotifySystem       NotificationType = "system"
)

type Priority string

const (
	PriorityLow    Priority = "low"
	PriorityMedium Priority = "medium"
	PriorityHigh   Priority = "high"
)

type RelatedModel string

const (
	RelatedWorkout      RelatedModel = "Workout"
	RelatedWorkoutPlan  RelatedModel = "WorkoutPlan"
	RelatedMeal         RelatedModel = "Meal"
	RelatedPost         RelatedModel = "Post"
	RelatedComment      RelatedModel = "Comment"
	RelatedMessage      RelatedModel = "Message"
	RelatedConversation RelatedModel = "Conversation"
)

// RelatedRef points at the entity that triggered a notification.
// A nil *RelatedRef means no related entity; a non-nil one always carries
// both the model kind and the id, so the two can never drift apart.
type RelatedRef struct {
	Model RelatedModel `json:"model"`
	ID    string       `json:"id"`
}

// Notification is owned by exactly one recipient. Only IsRead is ever
// mutated after creation.
type Notification struct {
	ID        string            `json:"id"`
	User      string            `json:"user"`
	Type      NotificationType  `json:"type"`
	Title     string            `json:"title"`
	Message   string            `json:"message"`
	IsRead    bool              `json:"isRead"`
	Data      map[string]string `json:"data,omitempty"`
	Sender    string            `json:"sender,omitempty"`
	Related   *RelatedRef       `json:"related,omitempty"`
	Priority  Priority          `json:"priority"`
	ExpiresAt *time.Time        `json:"expiresAt,omitempty"`
	CreatedAt time.Time         `json:"createdAt"`
}
