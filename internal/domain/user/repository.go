package user

import "context"

// Directory is the read side of the user store the workflow depends on.
type Directory interface {
	// FindByID returns ErrNotFound when no user has the public id.
	FindByID(ctx context.Context, userID string) (*User, error)
	// FindByIDs skips ids that do not resolve.
	FindByIDs(ctx context.Context, userIDs []string) (map[string]User, error)
	FindByEmail(ctx context.Context, email string) (*User, error)
}
