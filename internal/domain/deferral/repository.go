package deferral

import "context"

type Repository interface {
	Create(ctx context.Context, d *Deferral) error
	// Update writes the whole aggregate if its version is unchanged since it
	// was read, bumping d.Version. Returns ErrConflict otherwise.
	Update(ctx context.Context, d *Deferral) error
	GetByDeferralID(ctx context.Context, deferralID string) (*Deferral, error)
	// GetByDeferralIDForUpdate locks the row for the rest of the transaction.
	GetByDeferralIDForUpdate(ctx context.Context, deferralID string) (*Deferral, error)
	GetByNumber(ctx context.Context, number string) (*Deferral, error)
	List(ctx context.Context, f Filter) ([]Deferral, error)
}
