package message

import (
	"time"
)

const (
	// TextMessage is a plain UTF-8 chat message typed by a user.
	TextMessage Kind = "text"
	// FileMessage indicates the content references an uploaded file.
	// The gateway never produces these; the kind is kept so stored rows
	// written by other subsystems round-trip unchanged.
	FileMessage Kind = "file"
	// SystemMessage is produced by the server, e.g. project announcements.
	SystemMessage Kind = "system"
)

// Kind determines how the content of a message should be interpreted.
type Kind = string

// MaxContentLength is the maximum number of characters of a message
// content after trimming.
const MaxContentLength = 1000

// Message is a durably persisted chat entry in a project channel.
// Content and CreatedAt are immutable once appended; CreatedAt is assigned
// by the store and is the sole ordering key within a project.
type Message struct {
	ID        string        `json:"id"`
	ProjectID string        `json:"projectId"`
	Sender    string        `json:"sender"`
	Content   string        `json:"content"`
	Kind      Kind          `json:"kind"`
	CreatedAt time.Time     `json:"createdAt"`
	ReadBy    []ReadReceipt `json:"readBy"`
}

// ReadReceipt records that a user has read a message. Receipts are
// append-only; a message is never mutated after creation except to add them.
type ReadReceipt struct {
	UserID string    `json:"userId"`
	ReadAt time.Time `json:"readAt"`
}
