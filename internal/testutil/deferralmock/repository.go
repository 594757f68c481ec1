package deferralmock

import (
	"context"

	domain "deferral-backend/internal/domain/deferral"
)

var _ domain.Repository = (*Repo)(nil)

// Repo is a function-backed mock that satisfies domain.Repository.
// Unset read methods return context.Canceled; unset writes are no-ops.
type Repo struct {
	CreateFn                   func(ctx context.Context, d *domain.Deferral) error
	UpdateFn                   func(ctx context.Context, d *domain.Deferral) error
	GetByDeferralIDFn          func(ctx context.Context, deferralID string) (*domain.Deferral, error)
	GetByDeferralIDForUpdateFn func(ctx context.Context, deferralID string) (*domain.Deferral, error)
	GetByNumberFn              func(ctx context.Context, number string) (*domain.Deferral, error)
	ListFn                     func(ctx context.Context, f domain.Filter) ([]domain.Deferral, error)
}

func (m *Repo) Create(ctx context.Context, d *domain.Deferral) error {
	if m.CreateFn != nil {
		return m.CreateFn(ctx, d)
	}
	return nil
}

func (m *Repo) Update(ctx context.Context, d *domain.Deferral) error {
	if m.UpdateFn != nil {
		return m.UpdateFn(ctx, d)
	}
	return nil
}

func (m *Repo) GetByDeferralID(ctx context.Context, deferralID string) (*domain.Deferral, error) {
	if m.GetByDeferralIDFn != nil {
		return m.GetByDeferralIDFn(ctx, deferralID)
	}
	return nil, context.Canceled
}

func (m *Repo) GetByDeferralIDForUpdate(ctx context.Context, deferralID string) (*domain.Deferral, error) {
	if m.GetByDeferralIDForUpdateFn != nil {
		return m.GetByDeferralIDForUpdateFn(ctx, deferralID)
	}
	return nil, context.Canceled
}

func (m *Repo) GetByNumber(ctx context.Context, number string) (*domain.Deferral, error) {
	if m.GetByNumberFn != nil {
		return m.GetByNumberFn(ctx, number)
	}
	return nil, context.Canceled
}

func (m *Repo) List(ctx context.Context, f domain.Filter) ([]domain.Deferral, error) {
	if m.ListFn != nil {
		return m.ListFn(ctx, f)
	}
	return nil, context.Canceled
}
