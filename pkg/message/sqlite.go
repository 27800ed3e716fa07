package message

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"github.com/google/uuid"
)

// SQLiteStore is a Store backed by a SQLite database. Appended rows are
// ordered by the (project_id, created_at) index.
type SQLiteStore struct {
	db *sql.DB
}

func NewSQLiteStore(db *sql.DB) *SQLiteStore {
	return &SQLiteStore{db: db}
}

const defaultListLimit = 50

func (s *SQLiteStore) Append(ctx context.Context, input CreateInput) (*Message, error) {
	input.Normalize()
	if err := input.Validate(); err != nil {
		return nil, err
	}

	msg := &Message{
		ID:        uuid.New().String(),
		ProjectID: input.ProjectID,
		Sender:    input.Sender,
		Content:   input.Content,
		Kind:      input.Kind,
		CreatedAt: time.Now().UTC(),
	}

	_, err := s.db.ExecContext(ctx,
		`INSERT INTO messages (id, project_id, sender, content, kind, created_at)
		VALUES (@id, @project_id, @sender, @content, @kind, @created_at)`,
		sql.Named("id", msg.ID), sql.Named("project_id", msg.ProjectID),
		sql.Named("sender", msg.Sender), sql.Named("content", msg.Content),
		sql.Named("kind", msg.Kind), sql.Named("created_at", msg.CreatedAt))
	if err != nil {
		return nil, fmt.Errorf("ExecContext(insert messages): %w", err)
	}

	return msg, nil
}

func (s *SQLiteStore) ListRecent(ctx context.Context, projectID string, limit int) ([]Message, error) {
	if limit <= 0 || limit > defaultListLimit {
		limit = defaultListLimit
	}

	rows, err := s.db.QueryContext(ctx,
		`SELECT id, project_id, sender, content, kind, created_at FROM messages
		WHERE project_id = @project_id
		ORDER BY created_at DESC, id DESC LIMIT @limit`,
		sql.Named("project_id", projectID), sql.Named("limit", limit))
	if err != nil {
		return nil, fmt.Errorf("QueryContext(select messages): %w", err)
	}
	defer rows.Close()

	var messages []Message
	for rows.Next() {
		var msg Message
		if err := rows.Scan(&msg.ID, &msg.ProjectID, &msg.Sender,
			&msg.Content, &msg.Kind, &msg.CreatedAt); err != nil {
			return nil, fmt.Errorf("rows.Scan: %w", err)
		}
		messages = append(messages, msg)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("rows.Err: %w", err)
	}

	// rows are newest-first, callers expect oldest-first
	for i, j := 0, len(messages)-1; i < j; i, j = i+1, j-1 {
		messages[i], messages[j] = messages[j], messages[i]
	}

	for i := range messages {
		receipts, err := s.readReceipts(ctx, messages[i].ID)
		if err != nil {
			return nil, err
		}
		messages[i].ReadBy = receipts
	}

	return messages, nil
}

func (s *SQLiteStore) MarkRead(ctx context.Context, messageID, userID string) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("BeginTx: %w", err)
	}
	defer tx.Rollback()

	row := tx.QueryRowContext(ctx,
		"SELECT count(*) FROM messages WHERE id = @id", sql.Named("id", messageID))
	var count int
	if err := row.Scan(&count); err != nil {
		return fmt.Errorf("row.Scan: %w", err)
	}
	if count == 0 {
		return ErrMessageNotFound
	}

	_, err = tx.ExecContext(ctx,
		`INSERT OR IGNORE INTO message_reads (message_id, user_id, read_at)
		VALUES (@message_id, @user_id, @read_at)`,
		sql.Named("message_id", messageID), sql.Named("user_id", userID),
		sql.Named("read_at", time.Now().UTC()))
	if err != nil {
		return fmt.Errorf("ExecContext(insert message_reads): %w", err)
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("Commit: %w", err)
	}

	return nil
}

func (s *SQLiteStore) readReceipts(ctx context.Context, messageID string) ([]ReadReceipt, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT user_id, read_at FROM message_reads
		WHERE message_id = @message_id ORDER BY read_at`,
		sql.Named("message_id", messageID))
	if err != nil {
		return nil, fmt.Errorf("QueryContext(select message_reads): %w", err)
	}
	defer rows.Close()

	var receipts []ReadReceipt
	for rows.Next() {
		var r ReadReceipt
		if err := rows.Scan(&r.UserID, &r.ReadAt); err != nil {
			return nil, fmt.Errorf("rows.Scan: %w", err)
		}
		receipts = append(receipts, r)
	}
	return receipts, rows.Err()
}
