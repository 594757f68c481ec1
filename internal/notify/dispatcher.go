package notify

import (
	"context"
	"errors"
	"log/slog"
	"sync"
	"time"

	"deferral-backend/internal/domain/notification"
	"deferral-backend/internal/domain/user"
)

type Options struct {
	Workers   int
	QueueSize int
	// Attempts is the number of send tries per email, including the first.
	Attempts int
	// Backoff is the wait before the second attempt; it doubles after each failure.
	Backoff time.Duration
}

func (o Options) withDefaults() Options {
	if o.Workers <= 0 {
		o.Workers = 2
	}
	if o.QueueSize <= 0 {
		o.QueueSize = 256
	}
	if o.Attempts <= 0 {
		o.Attempts = 3
	}
	if o.Backoff <= 0 {
		o.Backoff = time.Second
	}
	return o
}

// Dispatcher delivers notices on a worker pool. Publish never blocks; a
// full queue drops the notice and logs it.
type Dispatcher struct {
	mailer        Mailer
	templates     *Templates
	directory     user.Directory
	notifications notification.Repository
	log           *slog.Logger
	opts          Options

	mu     sync.RWMutex
	queue  chan Notice
	closed bool
	cancel context.CancelFunc
	wg     sync.WaitGroup
}

func NewDispatcher(
	mailer Mailer,
	templates *Templates,
	directory user.Directory,
	notifications notification.Repository,
	log *slog.Logger,
	opts Options,
) *Dispatcher {
	if log == nil {
		log = slog.Default()
	}
	opts = opts.withDefaults()
	return &Dispatcher{
		mailer:        mailer,
		templates:     templates,
		directory:     directory,
		notifications: notifications,
		log:           log.With("component", "notify"),
		opts:          opts,
		queue:         make(chan Notice, opts.QueueSize),
	}
}

// Start launches the workers. They run until Stop is called.
func (d *Dispatcher) Start(ctx context.Context) {
	ctx, d.cancel = context.WithCancel(ctx)
	for i := 0; i < d.opts.Workers; i++ {
		d.wg.Add(1)
		go d.worker(ctx)
	}
}

// Stop closes the queue and waits for queued notices to drain, or for ctx
// to expire, whichever comes first.
func (d *Dispatcher) Stop(ctx context.Context) {
	d.mu.Lock()
	if !d.closed {
		d.closed = true
		close(d.queue)
	}
	d.mu.Unlock()

	done := make(chan struct{})
	go func() {
		d.wg.Wait()
		close(done)
	}()
	select {
	case <-done:
	case <-ctx.Done():
		if d.cancel != nil {
			d.cancel()
		}
		<-done
	}
	if d.cancel != nil {
		d.cancel()
	}
}

func (d *Dispatcher) Publish(n Notice) {
	d.mu.RLock()
	defer d.mu.RUnlock()
	if d.closed {
		d.log.Warn("dispatcher stopped, dropping notice", "kind", n.Kind, "deferral", n.Deferral.Number)
		return
	}
	select {
	case d.queue <- n:
	default:
		d.log.Error("notification queue full, dropping notice", "kind", n.Kind, "deferral", n.Deferral.Number)
	}
}

func (d *Dispatcher) worker(ctx context.Context) {
	defer d.wg.Done()
	for n := range d.queue {
		d.Deliver(ctx, n)
	}
}

// Deliver handles one notice synchronously. Failures are logged, never returned.
func (d *Dispatcher) Deliver(ctx context.Context, n Notice) {
	to := n.To
	if to.UserID != "" && (to.Email == "" || to.Name == "") && d.directory != nil {
		u, err := d.directory.FindByID(ctx, to.UserID)
		switch {
		case err == nil:
			if to.Email == "" {
				to.Email = u.Email
			}
			if to.Name == "" {
				to.Name = u.Name
			}
		case errors.Is(err, user.ErrNotFound):
			d.log.Warn("notice recipient not in directory", "user_id", to.UserID, "kind", n.Kind)
		default:
			d.log.Error("resolve notice recipient", "user_id", to.UserID, "error", err)
		}
	}
	n.To = to

	if n.InApp && to.UserID != "" && d.notifications != nil {
		rec := &notification.Notification{UserID: to.UserID, Message: InAppMessage(n)}
		if err := d.notifications.Create(ctx, rec); err != nil {
			d.log.Error("store in-app notification", "user_id", to.UserID, "kind", n.Kind, "error", err)
		}
	}

	if to.Email == "" {
		d.log.Warn("no email for notice recipient, skipping", "kind", n.Kind, "deferral", n.Deferral.Number)
		return
	}

	msg, err := d.templates.Render(n)
	if err != nil {
		d.log.Error("render notice", "kind", n.Kind, "error", err)
		return
	}

	wait := d.opts.Backoff
	for attempt := 1; ; attempt++ {
		err = d.mailer.Send(ctx, to.Email, msg.Subject, msg.HTML)
		if err == nil {
			d.log.Info("email sent", "to", to.Email, "subject", msg.Subject)
			return
		}
		if attempt >= d.opts.Attempts || errors.Is(err, ErrMailerNotConfigured) {
			break
		}
		d.log.Warn("email send failed, retrying", "to", to.Email, "attempt", attempt, "error", err)
		select {
		case <-time.After(wait):
		case <-ctx.Done():
			err = ctx.Err()
			d.log.Error("email send abandoned", "to", to.Email, "subject", msg.Subject, "error", err)
			return
		}
		wait *= 2
	}
	d.log.Error("email send failed", "to", to.Email, "subject", msg.Subject, "attempts", d.opts.Attempts, "error", err)
}
