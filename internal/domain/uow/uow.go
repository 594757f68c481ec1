package uow

import (
	"context"

	"deferral-backend/internal/domain/deferral"
	"deferral-backend/internal/domain/notification"
	"deferral-backend/internal/domain/numbering"
)

// Repos are bound to one transaction.
type Repos struct {
	Deferrals     deferral.Repository
	Sequences     numbering.Repository
	Notifications notification.Repository
}

type UnitOfWork interface {
	// plain tx
	WithinTx(ctx context.Context, fn func(r Repos) error) error
	// convenience: lock the deferral first, then pass it in
	WithinDeferralTx(ctx context.Context, deferralID string, fn func(r Repos, d *deferral.Deferral) error) error
}
