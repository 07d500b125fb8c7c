package database

import (
	"context"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5"

	"github.com/NKRI-78/websockets-rakhsa/internal/domain"
)

// UserRepository handles profile, presence and push-token data access.
type UserRepository struct {
	db *DB
}

func NewUserRepository(db *DB) *UserRepository {
	return &UserRepository{db: db}
}

// GetProfile fetches the public profile for an identity.
func (r *UserRepository) GetProfile(ctx context.Context, userID string) (*domain.Profile, error) {
	p := &domain.Profile{}
	err := r.db.Pool.QueryRow(ctx, `
		SELECT p.user_id, p.username, p.avatar,
		       COALESCE(up.is_online, FALSE), up.last_active
		FROM profiles p
		LEFT JOIN user_presence up ON up.user_id = p.user_id
		WHERE p.user_id = $1
	`, userID).Scan(&p.UserID, &p.Username, &p.Avatar, &p.Online, &p.LastActive)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, domain.ErrUserNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("select profile: %w", err)
	}
	return p, nil
}

// GetPushToken returns the identity's registered device token, or empty
// if none was ever registered.
func (r *UserRepository) GetPushToken(ctx context.Context, userID string) (string, error) {
	var token string
	err := r.db.Pool.QueryRow(ctx, `
		SELECT token FROM push_tokens WHERE user_id = $1
	`, userID).Scan(&token)
	if errors.Is(err, pgx.ErrNoRows) {
		return "", nil
	}
	if err != nil {
		return "", fmt.Errorf("select push token: %w", err)
	}
	return token, nil
}

// SetPresence records an identity's online flag and last-active time.
func (r *UserRepository) SetPresence(ctx context.Context, userID string, online bool) error {
	_, err := r.db.Pool.Exec(ctx, `
		INSERT INTO user_presence (user_id, is_online, last_active)
		VALUES ($1, $2, NOW())
		ON CONFLICT (user_id) DO UPDATE SET is_online = $2, last_active = NOW()
	`, userID, online)
	if err != nil {
		return fmt.Errorf("upsert presence: %w", err)
	}
	return nil
}

// ListContacts returns the profiles of everyone the user shares a chat
// thread with.
func (r *UserRepository) ListContacts(ctx context.Context, userID string) ([]domain.Profile, error) {
	rows, err := r.db.Pool.Query(ctx, `
		SELECT DISTINCT p.user_id, p.username, p.avatar,
		       COALESCE(up.is_online, FALSE), up.last_active
		FROM chats c
		JOIN profiles p
		  ON p.user_id = CASE WHEN c.sender_id = $1 THEN c.receiver_id ELSE c.sender_id END
		LEFT JOIN user_presence up ON up.user_id = p.user_id
		WHERE c.sender_id = $1 OR c.receiver_id = $1
		ORDER BY p.username
	`, userID)
	if err != nil {
		return nil, fmt.Errorf("select contacts: %w", err)
	}
	defer rows.Close()

	var contacts []domain.Profile
	for rows.Next() {
		var p domain.Profile
		if err := rows.Scan(&p.UserID, &p.Username, &p.Avatar, &p.Online, &p.LastActive); err != nil {
			return nil, err
		}
		contacts = append(contacts, p)
	}
	return contacts, rows.Err()
}
