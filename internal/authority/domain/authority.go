package domain

// Role is the platform role assigned to a user in the relational store.
type Role string

const (
	RoleAdmin  Role = "admin"
	RoleTrader Role = "trader"
	RoleViewer Role = "viewer"
)

// Authority is the relational-store truth for a user: role and the
// monotonically increasing session epoch. The epoch is the single source of
// truth for global logout; this core never writes it.
type Authority struct {
	UserID       string
	Role         Role
	SessionEpoch int64
}

// AuthenticatedUser is the ephemeral identity returned to callers after
// gateway authentication. Never persisted.
type AuthenticatedUser struct {
	UserID       string
	Role         Role
	Strategies   []string
	SessionEpoch int64
	RequestID    string
}
