package mysql

import (
	"context"

	"deferral-backend/internal/domain/deferral"
	"deferral-backend/internal/domain/uow"

	"gorm.io/gorm"
)

type GormUoW struct{ db *gorm.DB }

func NewGormUoW(db *gorm.DB) *GormUoW { return &GormUoW{db: db} }

func reposFor(tx *gorm.DB) uow.Repos {
	return uow.Repos{
		Deferrals:     &DeferralRepository{db: tx},
		Sequences:     &SequenceRepository{db: tx},
		Notifications: &NotificationRepository{db: tx},
	}
}

func (u *GormUoW) WithinTx(ctx context.Context, fn func(r uow.Repos) error) error {
	return u.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		return fn(reposFor(tx))
	})
}

func (u *GormUoW) WithinDeferralTx(ctx context.Context, deferralID string, fn func(r uow.Repos, d *deferral.Deferral) error) error {
	return u.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		r := reposFor(tx)
		// lock the deferral row up-front to prevent races
		d, err := r.Deferrals.GetByDeferralIDForUpdate(ctx, deferralID)
		if err != nil {
			return err
		}
		return fn(r, d)
	})
}
