// Package repository reads user authority (role, session epoch, authorized
// strategies) from the relational store. Read-only: the schema is owned by
// the surrounding platform.
package repository

import (
	"context"

	"github.com/meridian-trading/authcore/internal/authority/domain"
)

// Repository is the authority lookup contract. Authority is never taken from
// token claims; every authentication does a fresh lookup here.
type Repository interface {
	// GetAuthority returns the user's role and session epoch, or nil if the
	// user has no authority row.
	GetAuthority(ctx context.Context, userID string) (*domain.Authority, error)
	// ListStrategies returns the user's authorized strategy identifiers in
	// stable order.
	ListStrategies(ctx context.Context, userID string) ([]string, error)
}
