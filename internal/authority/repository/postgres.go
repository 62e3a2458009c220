package repository

import (
	"context"
	"database/sql"
	"errors"

	"github.com/meridian-trading/authcore/internal/authority/domain"
)

// PostgresRepository reads authority rows over database/sql (pgx stdlib
// driver). Queries are written against the platform-owned schema: a users
// relation exposing role and session_version, and a user_strategies relation
// mapping users to strategy identifiers.
type PostgresRepository struct {
	db *sql.DB
}

// NewPostgresRepository returns an authority repository that uses the given db.
func NewPostgresRepository(db *sql.DB) *PostgresRepository {
	return &PostgresRepository{db: db}
}

// GetAuthority returns the user's role and session epoch, or nil if not found.
// It returns an error only for database failures, not for missing rows.
func (r *PostgresRepository) GetAuthority(ctx context.Context, userID string) (*domain.Authority, error) {
	const q = `SELECT role, session_version FROM users WHERE id = $1`
	a := &domain.Authority{UserID: userID}
	var role string
	err := r.db.QueryRowContext(ctx, q, userID).Scan(&role, &a.SessionEpoch)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, nil
		}
		return nil, err
	}
	a.Role = domain.Role(role)
	return a, nil
}

// ListStrategies returns the user's authorized strategy identifiers, ordered.
func (r *PostgresRepository) ListStrategies(ctx context.Context, userID string) ([]string, error) {
	const q = `SELECT strategy_id FROM user_strategies WHERE user_id = $1 ORDER BY strategy_id`
	rows, err := r.db.QueryContext(ctx, q, userID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var strategies []string
	for rows.Next() {
		var id string
		if err := rows.Scan(&id); err != nil {
			return nil, err
		}
		strategies = append(strategies, id)
	}
	return strategies, rows.Err()
}
