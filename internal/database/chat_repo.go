package database

import (
	"context"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5"

	"github.com/NKRI-78/websockets-rakhsa/internal/domain"
)

// ChatRepository handles chat thread and message data access.
type ChatRepository struct {
	db *DB
}

func NewChatRepository(db *DB) *ChatRepository {
	return &ChatRepository{db: db}
}

// CreateThread persists a new conversation between two identities,
// optionally tied to an SOS case.
func (r *ChatRepository) CreateThread(ctx context.Context, t *domain.Thread) error {
	_, err := r.db.Pool.Exec(ctx, `
		INSERT INTO chats (id, sender_id, receiver_id, sos_id)
		VALUES ($1, $2, $3, $4)
	`, t.ID, t.SenderID, t.ReceiverID, t.SosID)
	if err != nil {
		return fmt.Errorf("insert chat: %w", err)
	}
	return nil
}

// GetBySosID fetches the thread created when an incident was confirmed.
func (r *ChatRepository) GetBySosID(ctx context.Context, sosID string) (*domain.Thread, error) {
	return r.scanThread(ctx, `
		SELECT id, sender_id, receiver_id, sos_id, created_at
		FROM chats WHERE sos_id = $1
		ORDER BY created_at LIMIT 1
	`, sosID)
}

// FindThread returns the existing conversation between a pair of
// identities in either direction.
func (r *ChatRepository) FindThread(ctx context.Context, a, b string) (*domain.Thread, error) {
	return r.scanThread(ctx, `
		SELECT id, sender_id, receiver_id, sos_id, created_at
		FROM chats
		WHERE (sender_id = $1 AND receiver_id = $2)
		   OR (sender_id = $2 AND receiver_id = $1)
		ORDER BY created_at LIMIT 1
	`, a, b)
}

func (r *ChatRepository) scanThread(ctx context.Context, query string, args ...any) (*domain.Thread, error) {
	t := &domain.Thread{}
	err := r.db.Pool.QueryRow(ctx, query, args...).Scan(
		&t.ID, &t.SenderID, &t.ReceiverID, &t.SosID, &t.CreatedAt,
	)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, domain.ErrThreadNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("select chat: %w", err)
	}
	return t, nil
}

// ListThreads returns the user's conversations with counterpart profile,
// last message preview and unread count, newest activity first.
func (r *ChatRepository) ListThreads(ctx context.Context, userID string) ([]domain.ThreadSummary, error) {
	rows, err := r.db.Pool.Query(ctx, `
		SELECT c.id, c.sos_id,
		       other.user_id, other.username, other.avatar,
		       COALESCE(up.is_online, FALSE), up.last_active,
		       COALESCE(last.content, ''), last.created_at,
		       (SELECT COUNT(*) FROM messages m
		        WHERE m.chat_id = c.id AND m.receiver_id = $1 AND NOT m.is_read AND NOT m.expired)
		FROM chats c
		JOIN profiles other
		  ON other.user_id = CASE WHEN c.sender_id = $1 THEN c.receiver_id ELSE c.sender_id END
		LEFT JOIN user_presence up ON up.user_id = other.user_id
		LEFT JOIN LATERAL (
			SELECT content, created_at FROM messages
			WHERE chat_id = c.id AND NOT expired
			ORDER BY created_at DESC LIMIT 1
		) last ON TRUE
		WHERE c.sender_id = $1 OR c.receiver_id = $1
		ORDER BY COALESCE(last.created_at, c.created_at) DESC
	`, userID)
	if err != nil {
		return nil, fmt.Errorf("select chats: %w", err)
	}
	defer rows.Close()

	var threads []domain.ThreadSummary
	for rows.Next() {
		var s domain.ThreadSummary
		err := rows.Scan(
			&s.ID, &s.SosID,
			&s.Counterpart.UserID, &s.Counterpart.Username, &s.Counterpart.Avatar,
			&s.Counterpart.Online, &s.Counterpart.LastActive,
			&s.LastMessage, &s.LastAt, &s.Unread,
		)
		if err != nil {
			return nil, err
		}
		threads = append(threads, s)
	}
	return threads, rows.Err()
}

// InsertMessage persists one chat message.
func (r *ChatRepository) InsertMessage(ctx context.Context, m *domain.ChatMessage) error {
	_, err := r.db.Pool.Exec(ctx, `
		INSERT INTO messages (id, chat_id, sender_id, receiver_id, content)
		VALUES ($1, $2, $3, $4, $5)
	`, m.ID, m.ThreadID, m.SenderID, m.ReceiverID, m.Content)
	if err != nil {
		return fmt.Errorf("insert message: %w", err)
	}
	return nil
}

// MarkRead acknowledges every unread message addressed to userID in the thread.
func (r *ChatRepository) MarkRead(ctx context.Context, chatID, userID string) error {
	_, err := r.db.Pool.Exec(ctx, `
		UPDATE messages SET is_read = TRUE
		WHERE chat_id = $1 AND receiver_id = $2 AND NOT is_read
	`, chatID, userID)
	if err != nil {
		return fmt.Errorf("mark read: %w", err)
	}
	return nil
}

// ExpireMessages marks a resolved or closed case's thread history as
// expired so it drops out of listings.
func (r *ChatRepository) ExpireMessages(ctx context.Context, chatID string) error {
	_, err := r.db.Pool.Exec(ctx, `
		UPDATE messages SET expired = TRUE WHERE chat_id = $1
	`, chatID)
	if err != nil {
		return fmt.Errorf("expire messages: %w", err)
	}
	return nil
}
