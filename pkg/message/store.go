package message

import (
	"context"
	"errors"
	"strings"

	"github.com/go-playground/validator/v10"
)

var (
	// ErrInvalidMessage is returned when a message input fails validation.
	ErrInvalidMessage = errors.New("invalid message")
	// ErrMessageNotFound is returned when the referenced message does not exist.
	ErrMessageNotFound = errors.New("message not found")
)

type Store interface {
	// Append durably persists a new message. The store assigns the ID and
	// the creation timestamp; callers must treat the returned message as
	// the authoritative copy.
	// If the input is invalid, it returns ErrInvalidMessage.
	Append(ctx context.Context, input CreateInput) (*Message, error)

	// ListRecent returns the most recent messages of a project ordered
	// oldest-first. If limit is a zero value or exceeds 50, it is set to 50.
	// A nil slice is returned if the project has no messages.
	ListRecent(ctx context.Context, projectID string, limit int) ([]Message, error)

	// MarkRead appends a read receipt for the user to the message.
	// Marking an already-read message is a no-op.
	// If the message does not exist, it returns ErrMessageNotFound.
	MarkRead(ctx context.Context, messageID, userID string) error
}

var validate = validator.New()

// CreateInput is the input for appending a message.
type CreateInput struct {
	ProjectID string `json:"projectId" validate:"required"`
	Sender    string `json:"sender" validate:"required"`
	Content   string `json:"content" validate:"required,max=1000"`
	Kind      Kind   `json:"kind" validate:"required,oneof=text file system"`
}

// Normalize trims the content and defaults the kind to text. It must be
// called before Validate; validation assumes trimmed content.
func (in *CreateInput) Normalize() {
	in.Content = strings.TrimSpace(in.Content)
	if in.Kind == "" {
		in.Kind = TextMessage
	}
}

// Validate reports whether the input can be appended.
func (in *CreateInput) Validate() error {
	if err := validate.Struct(in); err != nil {
		return ErrInvalidMessage
	}
	return nil
}
