package database

import (
	"context"
	"fmt"

	"github.com/NKRI-78/websockets-rakhsa/internal/domain"
)

// AgentRepository handles the on-duty agent roster.
type AgentRepository struct {
	db *DB
}

func NewAgentRepository(db *DB) *AgentRepository {
	return &AgentRepository{db: db}
}

// ByRegion returns every agent assigned to the given region. An empty
// roster is a valid result, not an error.
func (r *AgentRepository) ByRegion(ctx context.Context, region string) ([]domain.Agent, error) {
	rows, err := r.db.Pool.Query(ctx, `
		SELECT user_id, region FROM agents WHERE region = $1
	`, region)
	if err != nil {
		return nil, fmt.Errorf("select agents: %w", err)
	}
	defer rows.Close()

	var agents []domain.Agent
	for rows.Next() {
		var a domain.Agent
		if err := rows.Scan(&a.UserID, &a.Region); err != nil {
			return nil, err
		}
		agents = append(agents, a)
	}
	return agents, rows.Err()
}
