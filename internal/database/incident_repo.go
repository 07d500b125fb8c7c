package database

import (
	"context"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5"

	"github.com/NKRI-78/websockets-rakhsa/internal/domain"
)

// IncidentRepository handles SOS case data access.
type IncidentRepository struct {
	db *DB
}

func NewIncidentRepository(db *DB) *IncidentRepository {
	return &IncidentRepository{db: db}
}

// Create persists a freshly reported incident.
func (r *IncidentRepository) Create(ctx context.Context, inc *domain.Incident) error {
	_, err := r.db.Pool.Exec(ctx, `
		INSERT INTO sos (id, user_id, status, location, media, media_type, lat, lng, country, time, platform)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11)
	`, inc.ID, inc.UserID, domain.IncidentReported, inc.Location, inc.Media, inc.Type,
		inc.Lat, inc.Lng, inc.Country, inc.Time, inc.Platform)
	if err != nil {
		return fmt.Errorf("insert sos: %w", err)
	}
	return nil
}

// GetByID fetches one incident.
func (r *IncidentRepository) GetByID(ctx context.Context, id string) (*domain.Incident, error) {
	inc := &domain.Incident{}
	err := r.db.Pool.QueryRow(ctx, `
		SELECT id, user_id, agent_id, status, location, media, media_type,
		       lat, lng, country, time, platform, note, created_at, updated_at
		FROM sos WHERE id = $1
	`, id).Scan(
		&inc.ID, &inc.UserID, &inc.AgentID, &inc.Status, &inc.Location, &inc.Media, &inc.Type,
		&inc.Lat, &inc.Lng, &inc.Country, &inc.Time, &inc.Platform, &inc.Note,
		&inc.CreatedAt, &inc.UpdatedAt,
	)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, domain.ErrIncidentNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("select sos: %w", err)
	}
	return inc, nil
}

// Confirm assigns the agent and moves a reported incident to confirmed.
// The status guard in the WHERE clause makes the transition safe even if
// two relay instances race on the same incident.
func (r *IncidentRepository) Confirm(ctx context.Context, id, agentID string) error {
	tag, err := r.db.Pool.Exec(ctx, `
		UPDATE sos SET status = $2, agent_id = $3, updated_at = NOW()
		WHERE id = $1 AND status = $4
	`, id, domain.IncidentConfirmed, agentID, domain.IncidentReported)
	if err != nil {
		return fmt.Errorf("confirm sos: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return r.transitionConflict(ctx, id, (*domain.Incident).CanConfirm)
	}
	return nil
}

// Resolve moves a confirmed incident to resolved.
func (r *IncidentRepository) Resolve(ctx context.Context, id string) error {
	return r.finish(ctx, id, domain.IncidentResolved, "")
}

// Close moves a confirmed incident to closed, recording the agent's note.
func (r *IncidentRepository) Close(ctx context.Context, id, note string) error {
	return r.finish(ctx, id, domain.IncidentClosed, note)
}

func (r *IncidentRepository) finish(ctx context.Context, id string, status domain.IncidentStatus, note string) error {
	tag, err := r.db.Pool.Exec(ctx, `
		UPDATE sos SET status = $2, note = $3, updated_at = NOW()
		WHERE id = $1 AND status = $4
	`, id, status, note, domain.IncidentConfirmed)
	if err != nil {
		return fmt.Errorf("finish sos: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return r.transitionConflict(ctx, id, (*domain.Incident).CanFinish)
	}
	return nil
}

// transitionConflict explains a zero-row conditional update: the incident
// either does not exist or is in a state that forbids the transition.
func (r *IncidentRepository) transitionConflict(ctx context.Context, id string, check func(*domain.Incident) error) error {
	inc, err := r.GetByID(ctx, id)
	if err != nil {
		return err
	}
	if err := check(inc); err != nil {
		return err
	}
	return fmt.Errorf("sos %s: transition lost concurrent update", id)
}
