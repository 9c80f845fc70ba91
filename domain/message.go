// Package domain contains core concepts of the messaging system.
// No runtime, network, or UI logic should be added here.
package domain

import "time"

type ContentType string

const (
	ContentText  ContentType = "text"
	ContentImage ContentType = "image"
	ContentVideo ContentType = "video"
	ContentAudio ContentType = "audio"
	ContentFile  ContentType = "file"
)

// MaxContentLength bounds the text content of a single message.
const MaxContentLength = 5000

// ReadReceipt records that a participant has read a message.
// Receipts are append-only: per reader the state goes Unread -> Read once.
type ReadReceipt struct {
	User   string    `json:"user"`
	ReadAt time.Time `json:"readAt"`
}

// Message is immutable after creation except for ReadBy appends and the
// soft-delete flag. The sender's own receipt is recorded at creation.
type Message struct {
	ID             string        `json:"id"`
	ConversationID string        `json:"conversation"`
	Sender         string        `json:"sender"`
	Content        string        `json:"content"`
	ContentType    ContentType   `json:"contentType"`
	FileURL        string        `json:"fileUrl,omitempty"`
	FileName       string        `json:"fileName,omitempty"`
	FileSize       int64         `json:"fileSize,omitempty"`
	Lang           string        `json:"lang,omitempty"`
	ReadBy         []ReadReceipt `json:"readBy"`
	IsDeleted      bool          `json:"isDeleted"`
	DeletedAt      *time.Time    `json:"deletedAt,omitempty"`
	CreatedAt      time.Time     `json:"createdAt"`
}

func (m Message) IsReadBy(userID string) bool {
	for _, r := range m.ReadBy {
		if r.User == userID {
			return true
		}
	}
	return false
}

func ValidContentType(ct ContentType) bool {
	switch ct {
	case ContentText, ContentImage, ContentVideo, ContentAudio, ContentFile:
		return true
	}
	return false
}
