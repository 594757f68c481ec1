package uowmock

import (
	"context"
	"errors"

	"deferral-backend/internal/domain/deferral"
	"deferral-backend/internal/domain/uow"
)

var _ uow.UnitOfWork = (*UoW)(nil)

var errUnimplemented = errors.New("uowmock: method not implemented")

// UoW is a function-backed mock that satisfies uow.UnitOfWork.
// Fill in the function fields you need in a test; unfilled ones return errUnimplemented.
type UoW struct {
	WithinTxFn         func(ctx context.Context, fn func(r uow.Repos) error) error
	WithinDeferralTxFn func(ctx context.Context, deferralID string, fn func(r uow.Repos, d *deferral.Deferral) error) error
}

// Passthrough runs every callback directly against repos, loading the
// deferral through repos.Deferrals.GetByDeferralIDForUpdate.
func Passthrough(repos uow.Repos) *UoW {
	return &UoW{
		WithinTxFn: func(ctx context.Context, fn func(uow.Repos) error) error {
			return fn(repos)
		},
		WithinDeferralTxFn: func(ctx context.Context, deferralID string, fn func(uow.Repos, *deferral.Deferral) error) error {
			d, err := repos.Deferrals.GetByDeferralIDForUpdate(ctx, deferralID)
			if err != nil {
				return err
			}
			return fn(repos, d)
		},
	}
}

// FailingCommit behaves like Passthrough but reports commitErr after the
// callback succeeds, as a database would when COMMIT fails.
func FailingCommit(repos uow.Repos, commitErr error) *UoW {
	m := Passthrough(repos)
	inner := m.WithinDeferralTxFn
	m.WithinTxFn = func(ctx context.Context, fn func(uow.Repos) error) error {
		if err := fn(repos); err != nil {
			return err
		}
		return commitErr
	}
	m.WithinDeferralTxFn = func(ctx context.Context, deferralID string, fn func(uow.Repos, *deferral.Deferral) error) error {
		if err := inner(ctx, deferralID, fn); err != nil {
			return err
		}
		return commitErr
	}
	return m
}

// Methods implementing UnitOfWork
func (m *UoW) WithinTx(ctx context.Context, fn func(r uow.Repos) error) error {
	if m.WithinTxFn != nil {
		return m.WithinTxFn(ctx, fn)
	}
	return errUnimplemented
}
func (m *UoW) WithinDeferralTx(ctx context.Context, deferralID string, fn func(r uow.Repos, d *deferral.Deferral) error) error {
	if m.WithinDeferralTxFn != nil {
		return m.WithinDeferralTxFn(ctx, deferralID, fn)
	}
	return errUnimplemented
}
