package services

import (
	"fmt"
	"unicode/utf8"

	"fitgent/domain"
)

// previewLength bounds the message excerpt embedded in a notification.
const previewLength = 50

// Payload builders for every write path that raises notifications. Each CRUD
// flow builds its payload here and hands it to the NotificationSink, so the
// shape rules live in one place.

func NewMessageNotification(recipient, senderName, conversationID string, message domain.Message) domain.Notification {
	preview := message.Content
	if preview == "" && message.FileName != "" {
		preview = message.FileName
	}
	return domain.Notification{
		User:    recipient,
		Type:    domain.NotifyMessage,
		Title:   "New Message",
		Message: fmt.Sprintf("%s: %s", senderName, truncate(preview, previewLength)),
		Sender:  message.Sender,
		Related: &domain.RelatedRef{Model: domain.RelatedConversation, ID: conversationID},
		Data: map[string]string{
			"conversationId": conversationID,
			"messageId":      message.ID,
		},
	}
}

func NewGroupAdditionNotification(recipient, actorID, actorName string, conv domain.Conversation) domain.Notification {
	return domain.Notification{
		User:    recipient,
		Type:    domain.NotifySystem,
		Title:   "Added to Group Conversation",
		Message: fmt.Sprintf("You have been added to the group %q by %s", conv.Name, actorName),
		Sender:  actorID,
		Related: &domain.RelatedRef{Model: domain.RelatedConversation, ID: conv.ID},
	}
}

func NewLikeNotification(recipient, likerID, likerName, postID string) domain.Notification {
	return domain.Notification{
		User:    recipient,
		Type:    domain.NotifyLike,
		Title:   "New Like",
		Message: fmt.Sprintf("%s liked your post", likerName),
		Sender:  likerID,
		Related: &domain.RelatedRef{Model: domain.RelatedPost, ID: postID},
	}
}

func NewCommentNotification(recipient, commenterID, commenterName, postID, excerpt string) domain.Notification {
	return domain.Notification{
		User:    recipient,
		Type:    domain.NotifyComment,
		Title:   "New Comment",
		Message: fmt.Sprintf("%s commented: %s", commenterName, truncate(excerpt, previewLength)),
		Sender:  commenterID,
		Related: &domain.RelatedRef{Model: domain.RelatedPost, ID: postID},
	}
}

func NewPlanAssignedNotification(recipient, trainerID, trainerName, planID, planName string) domain.Notification {
	return domain.Notification{
		User:     recipient,
		Type:     domain.NotifyPlanAssigned,
		Title:    "New Workout Plan",
		Message:  fmt.Sprintf("%s assigned you the plan %q", trainerName, planName),
		Sender:   trainerID,
		Related:  &domain.RelatedRef{Model: domain.RelatedWorkoutPlan, ID: planID},
		Priority: domain.PriorityHigh,
	}
}

func truncate(s string, limit int) string {
	if utf8.RuneCountInString(s) <= limit {
		return s
	}
	runes := []rune(s)
	return string(runes[:limit]) + "..."
}
