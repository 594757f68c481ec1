package mysql

import (
	"context"
	"errors"
	"fmt"

	deferralDomain "deferral-backend/internal/domain/deferral"

	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

type DeferralRepository struct{ db *gorm.DB }

func NewDeferralRepository(db *gorm.DB) *DeferralRepository { return &DeferralRepository{db: db} }

// actioned actions are the ones the "actioned by me" query matches.
var actionedActions = []deferralDomain.HistoryAction{
	deferralDomain.ActionApproved,
	deferralDomain.ActionRejected,
}

func (r *DeferralRepository) Create(ctx context.Context, d *deferralDomain.Deferral) error {
	if d.Version == 0 {
		d.Version = 1
	}
	if err := r.db.WithContext(ctx).Create(d).Error; err != nil {
		return err
	}
	return r.syncActors(ctx, d)
}

func (r *DeferralRepository) Update(ctx context.Context, d *deferralDomain.Deferral) error {
	prev := d.Version
	d.Version = prev + 1
	res := r.db.WithContext(ctx).
		Model(d).
		Where("version = ?", prev).
		Select("*").
		Omit("created_at").
		Updates(d)
	if res.Error != nil {
		d.Version = prev
		return res.Error
	}
	if res.RowsAffected == 0 {
		d.Version = prev
		return fmt.Errorf("%w: %s at version %d", deferralDomain.ErrConflict, d.DeferralID, prev)
	}
	return r.syncActors(ctx, d)
}

func (r *DeferralRepository) GetByDeferralID(ctx context.Context, deferralID string) (*deferralDomain.Deferral, error) {
	var out deferralDomain.Deferral
	res := r.db.WithContext(ctx).Where("deferral_id = ?", deferralID).First(&out)
	if res.Error != nil {
		return nil, notFound(res.Error, deferralID)
	}
	return &out, nil
}

func (r *DeferralRepository) GetByDeferralIDForUpdate(ctx context.Context, deferralID string) (*deferralDomain.Deferral, error) {
	var out deferralDomain.Deferral
	q := r.db.WithContext(ctx)
	// sqlite has no row locks; its single writer serializes instead
	if q.Dialector.Name() != "sqlite" {
		q = q.Clauses(clause.Locking{Strength: "UPDATE"})
	}
	res := q.Where("deferral_id = ?", deferralID).First(&out)
	if res.Error != nil {
		return nil, notFound(res.Error, deferralID)
	}
	return &out, nil
}

func (r *DeferralRepository) GetByNumber(ctx context.Context, number string) (*deferralDomain.Deferral, error) {
	var out deferralDomain.Deferral
	res := r.db.WithContext(ctx).Where("deferral_number = ?", number).First(&out)
	if res.Error != nil {
		return nil, notFound(res.Error, number)
	}
	return &out, nil
}

func (r *DeferralRepository) List(ctx context.Context, f deferralDomain.Filter) ([]deferralDomain.Deferral, error) {
	q := r.db.WithContext(ctx).Model(&deferralDomain.Deferral{})
	if len(f.Statuses) > 0 {
		q = q.Where("status IN ?", f.Statuses)
	}
	if f.CurrentApproverID != "" {
		q = q.Where("current_approver_id = ?", f.CurrentApproverID)
	}
	if f.RequestorID != "" {
		q = q.Where("requestor_id = ?", f.RequestorID)
	}
	if f.ActionedBy != "" {
		sub := r.db.WithContext(ctx).
			Model(&deferralDomain.ActorRecord{}).
			Select("deferral_id").
			Where("user_id = ? AND action IN ?", f.ActionedBy, actionedActions)
		q = q.Where("id IN (?)", sub)
	}
	if f.Limit > 0 {
		q = q.Limit(f.Limit)
	}

	var out []deferralDomain.Deferral
	if err := q.Order("created_at DESC, id DESC").Find(&out).Error; err != nil {
		return nil, err
	}
	return out, nil
}

// syncActors records who approved or rejected, from both approver slots and
// history. Existing rows are left alone.
func (r *DeferralRepository) syncActors(ctx context.Context, d *deferralDomain.Deferral) error {
	seen := map[[2]string]bool{}
	var rows []deferralDomain.ActorRecord
	add := func(userID string, action deferralDomain.HistoryAction) {
		k := [2]string{userID, string(action)}
		if userID == "" || seen[k] {
			return
		}
		seen[k] = true
		rows = append(rows, deferralDomain.ActorRecord{DeferralID: d.ID, UserID: userID, Action: action})
	}
	for _, s := range d.Approvers {
		if s.Approved && s.Ref.Kind == deferralDomain.RefUser {
			add(s.Ref.UserID, deferralDomain.ActionApproved)
		}
	}
	for _, h := range d.History {
		if h.Action == deferralDomain.ActionApproved || h.Action == deferralDomain.ActionRejected {
			add(h.UserID, h.Action)
		}
	}
	if len(rows) == 0 {
		return nil
	}
	return r.db.WithContext(ctx).
		Clauses(clause.OnConflict{DoNothing: true}).
		Create(&rows).Error
}

func notFound(err error, key string) error {
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return fmt.Errorf("%w: %s", deferralDomain.ErrNotFound, key)
	}
	return err
}
