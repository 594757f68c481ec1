package mysql

import (
	"context"
	"errors"
	"fmt"

	deferralDomain "deferral-backend/internal/domain/deferral"
	"deferral-backend/internal/domain/numbering"

	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

// SequenceRepository hands out per-year deferral sequence values from the
// deferral_sequences counter table.
type SequenceRepository struct{ db *gorm.DB }

func NewSequenceRepository(db *gorm.DB) *SequenceRepository { return &SequenceRepository{db: db} }

func (r *SequenceRepository) Next(ctx context.Context, yy int) (int, error) {
	db := r.db.WithContext(ctx)

	n, err := r.increment(db, yy)
	if err != nil {
		return 0, err
	}
	if n == 0 {
		// first number of the year: seed from numbers issued before the counter existed
		seed, err := r.legacyMax(ctx, yy)
		if err != nil {
			return 0, err
		}
		if err := db.Clauses(clause.OnConflict{DoNothing: true}).
			Create(&numbering.Sequence{Year: yy, LastValue: seed}).Error; err != nil {
			return 0, err
		}
		if n, err = r.increment(db, yy); err != nil {
			return 0, err
		}
		if n == 0 {
			return 0, fmt.Errorf("sequence row for year %02d missing after seed", yy)
		}
	}

	var seq numbering.Sequence
	if err := db.Where("year = ?", yy).Take(&seq).Error; err != nil {
		return 0, err
	}
	return seq.LastValue, nil
}

func (r *SequenceRepository) Peek(ctx context.Context, yy int) (int, error) {
	var seq numbering.Sequence
	err := r.db.WithContext(ctx).Where("year = ?", yy).Take(&seq).Error
	switch {
	case err == nil:
		return seq.LastValue + 1, nil
	case errors.Is(err, gorm.ErrRecordNotFound):
		max, err := r.legacyMax(ctx, yy)
		if err != nil {
			return 0, err
		}
		return max + 1, nil
	default:
		return 0, err
	}
}

func (r *SequenceRepository) Resync(ctx context.Context, yy int) (int, error) {
	stored, err := r.legacyMax(ctx, yy)
	if err != nil {
		return 0, err
	}
	db := r.db.WithContext(ctx)
	if err := db.Clauses(clause.OnConflict{DoNothing: true}).
		Create(&numbering.Sequence{Year: yy, LastValue: stored}).Error; err != nil {
		return 0, err
	}
	err = db.Model(&numbering.Sequence{}).
		Where("year = ? AND last_value < ?", yy, stored).
		UpdateColumn("last_value", stored).Error
	if err != nil {
		return 0, err
	}

	var seq numbering.Sequence
	if err := db.Where("year = ?", yy).Take(&seq).Error; err != nil {
		return 0, err
	}
	return seq.LastValue, nil
}

func (r *SequenceRepository) increment(db *gorm.DB, yy int) (int64, error) {
	res := db.Model(&numbering.Sequence{}).
		Where("year = ?", yy).
		UpdateColumn("last_value", gorm.Expr("last_value + 1"))
	return res.RowsAffected, res.Error
}

func (r *SequenceRepository) legacyMax(ctx context.Context, yy int) (int, error) {
	var numbers []string
	err := r.db.WithContext(ctx).
		Model(&deferralDomain.Deferral{}).
		Where("deferral_number LIKE ?", numbering.Prefix(yy)+"%").
		Pluck("deferral_number", &numbers).Error
	if err != nil {
		return 0, err
	}
	return numbering.MaxSequence(yy, numbers), nil
}
