package access

import (
	"context"
	"time"
)

// Ledger persists access requests. Adapters return ErrNotFound for unknown
// ids and never delete entries.
type Ledger interface {
	InsertRequest(ctx context.Context, req AccessRequest) error
	GetRequest(ctx context.Context, id string) (AccessRequest, error)
	ListRequests(ctx context.Context) ([]AccessRequest, error)
	ListRequestsByUser(ctx context.Context, userID string) ([]AccessRequest, error)
	// RequestsForMovie returns the full history for one (user, movie) pair.
	RequestsForMovie(ctx context.Context, userID, movieID string) ([]AccessRequest, error)
	UpdateDecision(ctx context.Context, id string, status Status, adminResponse string, at time.Time) error
	ApprovedMovieRequests(ctx context.Context) ([]AccessRequest, error)
}

// Users persists user records, including the entitlement set.
type Users interface {
	GetUser(ctx context.Context, id string) (User, error)
	UserByEmail(ctx context.Context, email string) (User, error)
	InsertUser(ctx context.Context, u User) error
	// AddEntitlement merges movieID into the user's set. Adding an id that is
	// already present is a no-op. Unknown users yield ErrNotFound.
	AddEntitlement(ctx context.Context, userID, movieID string) error
	// UpdatePassword stores a new hash and clears the must-change flag.
	UpdatePassword(ctx context.Context, userID, passwordHash string) error
}

type Store interface {
	Ledger
	Users
	Close()
}
