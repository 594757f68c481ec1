package approval

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"deferral-backend/internal/domain/deferral"
	"deferral-backend/internal/domain/uow"
	"deferral-backend/internal/domain/user"
	"deferral-backend/internal/notify"
	"deferral-backend/internal/usecase/view"
)

type Options struct {
	// CompletionRecipient gets the email when the last approver signs off.
	CompletionRecipient string
	// Timeout bounds each operation's persistence work.
	Timeout time.Duration
}

// Usecase runs approval transitions as single transactions and publishes
// their notifications after commit.
type Usecase struct {
	uow       uow.UnitOfWork
	directory user.Directory
	publisher Publisher
	views     *view.Builder
	opts      Options
	now       func() time.Time
}

func NewUsecase(tx uow.UnitOfWork, dir user.Directory, pub Publisher, opts Options) *Usecase {
	if opts.Timeout <= 0 {
		opts.Timeout = 5 * time.Second
	}
	return &Usecase{
		uow:       tx,
		directory: dir,
		publisher: pub,
		views:     view.NewBuilder(dir),
		opts:      opts,
		now:       time.Now,
	}
}

// step is one transition applied to a locked deferral.
type step func(ctx context.Context, d *deferral.Deferral, now time.Time) (deferral.Event, error)

func (u *Usecase) Approve(ctx context.Context, deferralID string, actor deferral.Actor, comment string) (*view.Deferral, error) {
	return u.run(ctx, deferralID, func(_ context.Context, d *deferral.Deferral, now time.Time) (deferral.Event, error) {
		return d.ApproveStep(actor, comment, now)
	})
}

func (u *Usecase) ApproveByCreator(ctx context.Context, deferralID string, actor deferral.Actor, comment string) (*view.Deferral, error) {
	return u.run(ctx, deferralID, func(_ context.Context, d *deferral.Deferral, now time.Time) (deferral.Event, error) {
		return deferral.Event{}, d.ApproveByCreator(actor, comment, now)
	})
}

func (u *Usecase) ApproveByChecker(ctx context.Context, deferralID string, actor deferral.Actor, comment string) (*view.Deferral, error) {
	return u.run(ctx, deferralID, func(_ context.Context, d *deferral.Deferral, now time.Time) (deferral.Event, error) {
		return d.ApproveByChecker(actor, comment, now)
	})
}

func (u *Usecase) Reject(ctx context.Context, deferralID string, actor deferral.Actor, reason string) (*view.Deferral, error) {
	return u.run(ctx, deferralID, func(_ context.Context, d *deferral.Deferral, now time.Time) (deferral.Event, error) {
		return d.Reject(actor, reason, now)
	})
}

func (u *Usecase) ReturnForRework(ctx context.Context, deferralID string, actor deferral.Actor, comment string) (*view.Deferral, error) {
	return u.run(ctx, deferralID, func(_ context.Context, d *deferral.Deferral, now time.Time) (deferral.Event, error) {
		return d.ReturnForRework(actor, comment, now)
	})
}

func (u *Usecase) SetApprovers(ctx context.Context, deferralID string, actor deferral.Actor, in []ApproverInput) (*view.Deferral, error) {
	return u.run(ctx, deferralID, func(ctx context.Context, d *deferral.Deferral, now time.Time) (deferral.Event, error) {
		slots, err := ResolveApprovers(ctx, u.directory, in)
		if err != nil {
			return deferral.Event{}, err
		}
		return d.SetApprovers(actor, slots, now)
	})
}

func (u *Usecase) RemoveApprover(ctx context.Context, deferralID string, actor deferral.Actor, index int) (*view.Deferral, error) {
	return u.run(ctx, deferralID, func(_ context.Context, d *deferral.Deferral, now time.Time) (deferral.Event, error) {
		return d.RemoveApprover(actor, index, now)
	})
}

// SendReminder emails the current approver again.
func (u *Usecase) SendReminder(ctx context.Context, deferralID string, actor deferral.Actor) (*view.Deferral, error) {
	return u.run(ctx, deferralID, func(ctx context.Context, d *deferral.Deferral, now time.Time) (deferral.Event, error) {
		slot, ok := d.CurrentApprover()
		if !ok {
			return deferral.Event{}, fmt.Errorf("%w: no approver is waiting to act", deferral.ErrPrecondition)
		}
		email, err := u.emailFor(ctx, slot.Ref)
		if err != nil {
			return deferral.Event{}, err
		}
		if email == "" {
			return deferral.Event{}, fmt.Errorf("%w: no email available for current approver", deferral.ErrValidation)
		}
		return d.Remind(actor, email, now)
	})
}

func (u *Usecase) emailFor(ctx context.Context, ref deferral.ApproverRef) (string, error) {
	if ref.Kind == deferral.RefContact {
		return ref.Email, nil
	}
	usr, err := u.directory.FindByID(ctx, ref.UserID)
	if errors.Is(err, user.ErrNotFound) {
		return "", nil
	}
	if err != nil {
		return "", err
	}
	return usr.Email, nil
}

// run applies fn inside one transaction with the row locked, checks the
// structural invariants, writes with the version guard and, after commit,
// publishes the notices the transition owes.
func (u *Usecase) run(ctx context.Context, deferralID string, fn step) (*view.Deferral, error) {
	if u.uow == nil {
		return nil, errors.New("approval usecase: no unit of work")
	}
	ctx, cancel := context.WithTimeout(ctx, u.opts.Timeout)
	defer cancel()

	var (
		out *deferral.Deferral
		ev  deferral.Event
	)
	err := u.uow.WithinDeferralTx(ctx, deferralID, func(r uow.Repos, d *deferral.Deferral) error {
		d.BackfillDefaults()
		e, err := fn(ctx, d, u.now().UTC())
		if err != nil {
			return err
		}
		if err := d.CheckInvariants(); err != nil {
			return fmt.Errorf("deferral %s: %w", d.DeferralID, err)
		}
		if err := r.Deferrals.Update(ctx, d); err != nil {
			return err
		}
		out, ev = d, e
		return nil
	})
	if err != nil {
		return nil, err
	}

	if u.publisher != nil {
		for _, n := range Notices(out, ev, u.opts.CompletionRecipient) {
			u.publisher.Publish(n)
		}
	}

	v, err := u.views.One(ctx, out)
	if err != nil {
		// committed already; fall back to the unresolved record
		slog.WarnContext(ctx, "resolve deferral view", "deferral", out.DeferralNumber, "error", err)
		return view.Unresolved(out), nil
	}
	return v, nil
}

// notify.Dispatcher is the production Publisher.
var _ Publisher = (*notify.Dispatcher)(nil)
