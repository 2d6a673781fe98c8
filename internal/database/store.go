package database

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"slices"
	"time"

	"github.com/jmoiron/sqlx"
)

// Store defines the persistence operations used by the bot.
type Store interface {
	// Ping checks the database connection.
	Ping(ctx context.Context) error

	// SaveMessage inserts one conversation turn and sets its ID.
	SaveMessage(ctx context.Context, message *Message) error

	// GetRecentMessages returns the last limit turns of a chat, oldest first.
	GetRecentMessages(ctx context.Context, chatID int64, limit int) ([]Message, error)

	// DeleteChatMessages removes a chat's history and reports how many rows went.
	DeleteChatMessages(ctx context.Context, chatID int64) (int64, error)

	// DeleteMessagesBefore removes turns older than cutoff across all chats.
	DeleteMessagesBefore(ctx context.Context, cutoff time.Time) (int64, error)

	// SaveArtifacts replaces the stored artifact set.
	SaveArtifacts(ctx context.Context, artifacts []Artifact) error

	// ListArtifacts returns the stored artifact set in ingestion order.
	ListArtifacts(ctx context.Context) ([]Artifact, error)

	// RunSQLMaintenance runs ANALYZE and VACUUM.
	RunSQLMaintenance(ctx context.Context) error
}

const maxHistoryLimit = 1000

type sqlxStore struct {
	db     *sqlx.DB
	logger *slog.Logger
}

// NewStore creates a Store backed by sqlx.
func NewStore(db *sqlx.DB, logger *slog.Logger) Store {
	if logger == nil {
		logger = slog.New(slog.NewTextHandler(io.Discard, nil))
	}
	return &sqlxStore{
		db:     db,
		logger: logger.With("component", "store"),
	}
}

func (s *sqlxStore) Ping(ctx context.Context) error {
	return s.db.PingContext(ctx)
}

func (s *sqlxStore) SaveMessage(ctx context.Context, message *Message) error {
	if message == nil {
		return errors.New("cannot save nil message")
	}
	if message.ChatID == 0 {
		return errors.New("message must have a non-zero chat_id")
	}
	if message.Role != RoleUser && message.Role != RoleModel {
		return fmt.Errorf("message has invalid role %q", message.Role)
	}
	if message.Content == "" {
		return errors.New("message must have non-empty content")
	}
	if message.Timestamp.IsZero() {
		return errors.New("message must have a non-zero timestamp")
	}

	message.Timestamp = message.Timestamp.UTC()
	message.CreatedAt = time.Now().UTC()

	query := `
        INSERT INTO messages (chat_id, user_id, role, content, timestamp, created_at)
        VALUES (:chat_id, :user_id, :role, :content, :timestamp, :created_at);
    `
	result, err := s.db.NamedExecContext(ctx, query, message)
	if err != nil {
		s.logger.ErrorContext(ctx, "Error saving message", "chat_id", message.ChatID, "role", message.Role, "error", err)
		return fmt.Errorf("failed to save message (chat %d): %w", message.ChatID, err)
	}

	if id, err := result.LastInsertId(); err == nil {
		message.ID = id
	} else {
		s.logger.WarnContext(ctx, "Could not retrieve last insert ID after saving message",
			"chat_id", message.ChatID, "error", err)
	}

	s.logger.DebugContext(ctx, "Message saved",
		"chat_id", message.ChatID, "role", message.Role, "message_id", message.ID)
	return nil
}

func (s *sqlxStore) GetRecentMessages(ctx context.Context, chatID int64, limit int) ([]Message, error) {
	if chatID == 0 {
		return nil, errors.New("chat_id cannot be zero")
	}
	if limit <= 0 {
		return nil, nil
	}
	if limit > maxHistoryLimit {
		limit = maxHistoryLimit
	}

	var messages []Message
	query := `
        SELECT id, chat_id, user_id, role, content, timestamp, created_at
        FROM messages
        WHERE chat_id = ?
        ORDER BY timestamp DESC, id DESC
        LIMIT ?;
    `
	if err := s.db.SelectContext(ctx, &messages, query, chatID, limit); err != nil {
		s.logger.ErrorContext(ctx, "Error fetching recent messages", "chat_id", chatID, "error", err)
		return nil, fmt.Errorf("failed to get recent messages for chat %d: %w", chatID, err)
	}

	slices.Reverse(messages)
	return messages, nil
}

func (s *sqlxStore) DeleteChatMessages(ctx context.Context, chatID int64) (int64, error) {
	if chatID == 0 {
		return 0, errors.New("chat_id cannot be zero")
	}

	result, err := s.db.ExecContext(ctx, `DELETE FROM messages WHERE chat_id = ?`, chatID)
	if err != nil {
		s.logger.ErrorContext(ctx, "Error deleting chat messages", "chat_id", chatID, "error", err)
		return 0, fmt.Errorf("failed to delete messages for chat %d: %w", chatID, err)
	}
	deleted, _ := result.RowsAffected()

	s.logger.InfoContext(ctx, "Chat history deleted", "chat_id", chatID, "messages_deleted", deleted)
	return deleted, nil
}

func (s *sqlxStore) DeleteMessagesBefore(ctx context.Context, cutoff time.Time) (int64, error) {
	result, err := s.db.ExecContext(ctx, `DELETE FROM messages WHERE timestamp < ?`, cutoff.UTC())
	if err != nil {
		s.logger.ErrorContext(ctx, "Error deleting old messages", "cutoff", cutoff, "error", err)
		return 0, fmt.Errorf("failed to delete messages before %s: %w", cutoff.Format(time.RFC3339), err)
	}
	deleted, _ := result.RowsAffected()
	return deleted, nil
}

func (s *sqlxStore) SaveArtifacts(ctx context.Context, artifacts []Artifact) error {
	tx, err := s.db.BeginTxx(ctx, nil)
	if err != nil {
		s.logger.ErrorContext(ctx, "Failed to begin transaction for artifacts", "error", err)
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer func() {
		if tx != nil {
			if rollbackErr := tx.Rollback(); rollbackErr != nil && !errors.Is(rollbackErr, sql.ErrTxDone) {
				s.logger.WarnContext(ctx, "Error rolling back transaction", "error", rollbackErr)
			}
		}
	}()

	if _, err := tx.ExecContext(ctx, `DELETE FROM artifacts`); err != nil {
		return fmt.Errorf("failed to clear artifacts: %w", err)
	}

	now := time.Now().UTC()
	query := `
        INSERT INTO artifacts (remote_id, label, kind, status, location, optional, provider, updated_at)
        VALUES (:remote_id, :label, :kind, :status, :location, :optional, :provider, :updated_at);
    `
	for i := range artifacts {
		artifacts[i].UpdatedAt = now
		if _, err := tx.NamedExecContext(ctx, query, &artifacts[i]); err != nil {
			s.logger.ErrorContext(ctx, "Error saving artifact", "label", artifacts[i].Label, "error", err)
			return fmt.Errorf("failed to save artifact %q: %w", artifacts[i].Label, err)
		}
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("failed to commit artifacts: %w", err)
	}
	tx = nil

	s.logger.DebugContext(ctx, "Artifacts saved", "count", len(artifacts))
	return nil
}

func (s *sqlxStore) ListArtifacts(ctx context.Context) ([]Artifact, error) {
	var artifacts []Artifact
	query := `
        SELECT id, remote_id, label, kind, status, location, optional, provider, updated_at
        FROM artifacts
        ORDER BY id ASC;
    `
	if err := s.db.SelectContext(ctx, &artifacts, query); err != nil {
		return nil, fmt.Errorf("failed to list artifacts: %w", err)
	}
	return artifacts, nil
}

func (s *sqlxStore) RunSQLMaintenance(ctx context.Context) error {
	if err := ctx.Err(); err != nil {
		return err
	}

	s.logger.InfoContext(ctx, "Starting database maintenance")

	if _, err := s.db.ExecContext(ctx, "ANALYZE;"); err != nil {
		s.logger.ErrorContext(ctx, "Database maintenance (ANALYZE) failed", "error", err)
		return fmt.Errorf("failed to execute ANALYZE: %w", err)
	}

	// VACUUM cannot run inside a transaction.
	_, err := s.db.ExecContext(ctx, "VACUUM;")
	switch {
	case errors.Is(err, context.DeadlineExceeded) || errors.Is(err, context.Canceled):
		s.logger.WarnContext(ctx, "VACUUM timed out or was cancelled", "error", err)
		return fmt.Errorf("database maintenance (VACUUM) timed out: %w", err)
	case err != nil:
		s.logger.ErrorContext(ctx, "Database maintenance (VACUUM) failed", "error", err)
		return fmt.Errorf("failed to execute VACUUM: %w", err)
	}

	s.logger.InfoContext(ctx, "Database maintenance completed")
	return nil
}
