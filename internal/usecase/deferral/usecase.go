package deferral

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"path"
	"strings"
	"time"

	"deferral-backend/internal/domain/deferral"
	"deferral-backend/internal/domain/document"
	"deferral-backend/internal/domain/notification"
	"deferral-backend/internal/domain/numbering"
	"deferral-backend/internal/domain/uow"
	"deferral-backend/internal/domain/user"
	"deferral-backend/internal/usecase/approval"
	"deferral-backend/internal/usecase/view"
	"deferral-backend/pkg/id"

	"gorm.io/gorm"
)

const numberAttempts = 3

// Storage keeps uploaded files and returns the URL to record.
type Storage interface {
	Put(ctx context.Context, key string, body io.Reader, size int64, contentType string) (string, error)
}

type Deps struct {
	Deferrals     deferral.Repository
	Sequences     numbering.Repository
	Directory     user.Directory
	Notifications notification.Repository
	Storage       Storage
	Publisher     approval.Publisher
}

type Options struct {
	// Timeout bounds each operation's persistence work.
	Timeout time.Duration
	// ListLimit caps list queries; 0 means no cap.
	ListLimit int
}

type Usecase struct {
	uow   uow.UnitOfWork
	deps  Deps
	views *view.Builder
	opts  Options
	now   func() time.Time
}

func NewUsecase(tx uow.UnitOfWork, deps Deps, opts Options) *Usecase {
	if opts.Timeout <= 0 {
		opts.Timeout = 5 * time.Second
	}
	return &Usecase{uow: tx, deps: deps, views: view.NewBuilder(deps.Directory), opts: opts, now: time.Now}
}

// Create submits a new deferral, numbering it in the same transaction that
// inserts it. A number already taken by a row written outside the counter
// resyncs the counter and retries.
func (u *Usecase) Create(ctx context.Context, requestor deferral.Actor, in CreateInput) (*view.Deferral, error) {
	ctx, cancel := context.WithTimeout(ctx, u.opts.Timeout)
	defer cancel()

	dcl := strings.TrimSpace(in.DCLNumber)
	if dcl == "" {
		return nil, fmt.Errorf("%w: dcl number is required", deferral.ErrValidation)
	}
	slots, err := approval.ResolveApprovers(ctx, u.deps.Directory, in.Approvers)
	if err != nil {
		return nil, err
	}
	customer, err := u.customerSnapshot(ctx, in)
	if err != nil {
		return nil, err
	}
	for _, preset := range []string{in.CreatorID, in.CheckerID} {
		if err := u.mustExist(ctx, preset); err != nil {
			return nil, err
		}
	}

	now := u.now().UTC()
	d := deferral.New(requestor, slots, now)
	d.CustomerID = strings.TrimSpace(in.CustomerID)
	d.Customer = customer
	d.LoanType = in.LoanType
	d.DCLNumber = dcl
	d.Title = strings.TrimSpace(in.Title)
	d.Description = in.Description
	d.LoanAmount = in.LoanAmount
	d.DaysSought = in.DaysSought
	d.NextDocumentDueDate = in.NextDocumentDueDate
	d.Facilities = in.Facilities
	if d.Facilities == nil {
		d.Facilities = []deferral.Facility{}
	}
	d.Documents = document.Normalize(in.Documents, requestor.ID, now)
	d.SelectedDocuments = document.NormalizeSelected(in.SelectedDocuments)
	d.CreatorID = strings.TrimSpace(in.CreatorID)
	d.CheckerID = strings.TrimSpace(in.CheckerID)

	yy := numbering.YearOf(now)
	for attempt := 1; ; attempt++ {
		d.ID = 0
		err = u.uow.WithinTx(ctx, func(r uow.Repos) error {
			seq, err := r.Sequences.Next(ctx, yy)
			if err != nil {
				return err
			}
			d.DeferralNumber = numbering.Format(yy, seq)
			return r.Deferrals.Create(ctx, d)
		})
		if err == nil {
			break
		}
		if !errors.Is(err, gorm.ErrDuplicatedKey) || attempt == numberAttempts {
			return nil, err
		}
		// the rollback undid the bump; move the counter past stored numbers first
		taken := d.DeferralNumber
		err = u.uow.WithinTx(ctx, func(r uow.Repos) error {
			_, err := r.Sequences.Resync(ctx, yy)
			return err
		})
		if err != nil {
			return nil, fmt.Errorf("resync deferral numbers after %s: %w", taken, err)
		}
		slog.WarnContext(ctx, "deferral number taken, retrying", "number", taken, "attempt", attempt)
	}

	u.publish(d, d.FirstApproverEvent())
	return u.view(ctx, d), nil
}

func (u *Usecase) customerSnapshot(ctx context.Context, in CreateInput) (deferral.CustomerSnapshot, error) {
	snap := deferral.CustomerSnapshot{
		CustomerNumber: strings.TrimSpace(in.CustomerNumber),
		CustomerName:   strings.TrimSpace(in.CustomerName),
		BusinessName:   strings.TrimSpace(in.BusinessName),
	}
	cid := strings.TrimSpace(in.CustomerID)
	if cid == "" {
		return snap, nil
	}
	c, err := u.deps.Directory.FindByID(ctx, cid)
	if errors.Is(err, user.ErrNotFound) {
		return snap, fmt.Errorf("%w: unknown customer %s", deferral.ErrValidation, cid)
	}
	if err != nil {
		return snap, err
	}
	if c.CustomerNumber != "" {
		snap.CustomerNumber = c.CustomerNumber
	}
	if c.Name != "" {
		snap.CustomerName = c.Name
	}
	if c.BusinessName != "" {
		snap.BusinessName = c.BusinessName
	}
	return snap, nil
}

func (u *Usecase) mustExist(ctx context.Context, userID string) error {
	userID = strings.TrimSpace(userID)
	if userID == "" {
		return nil
	}
	_, err := u.deps.Directory.FindByID(ctx, userID)
	if errors.Is(err, user.ErrNotFound) {
		return fmt.Errorf("%w: unknown user %s", deferral.ErrValidation, userID)
	}
	return err
}

func (u *Usecase) Get(ctx context.Context, deferralID string) (*view.Deferral, error) {
	ctx, cancel := context.WithTimeout(ctx, u.opts.Timeout)
	defer cancel()
	d, err := u.deps.Deferrals.GetByDeferralID(ctx, deferralID)
	if err != nil {
		return nil, err
	}
	return u.views.One(ctx, d)
}

func (u *Usecase) GetByNumber(ctx context.Context, number string) (*view.Deferral, error) {
	ctx, cancel := context.WithTimeout(ctx, u.opts.Timeout)
	defer cancel()
	d, err := u.deps.Deferrals.GetByNumber(ctx, strings.ToUpper(strings.TrimSpace(number)))
	if err != nil {
		return nil, err
	}
	return u.views.One(ctx, d)
}

// Pending lists every deferral still moving through the approver chain.
func (u *Usecase) Pending(ctx context.Context) ([]view.Deferral, error) {
	return u.list(ctx, deferral.Filter{Statuses: deferral.OpenStatuses})
}

// ApproverQueue lists open deferrals waiting on the caller.
func (u *Usecase) ApproverQueue(ctx context.Context, actor deferral.Actor) ([]view.Deferral, error) {
	return u.list(ctx, deferral.Filter{Statuses: deferral.OpenStatuses, CurrentApproverID: actor.ID})
}

// Actioned lists deferrals the caller approved a slot of or rejected.
func (u *Usecase) Actioned(ctx context.Context, actor deferral.Actor) ([]view.Deferral, error) {
	return u.list(ctx, deferral.Filter{ActionedBy: actor.ID})
}

func (u *Usecase) Mine(ctx context.Context, actor deferral.Actor) ([]view.Deferral, error) {
	return u.list(ctx, deferral.Filter{RequestorID: actor.ID})
}

func (u *Usecase) Approved(ctx context.Context) ([]view.Deferral, error) {
	return u.list(ctx, deferral.Filter{Statuses: []deferral.Status{deferral.StatusApproved}})
}

func (u *Usecase) list(ctx context.Context, f deferral.Filter) ([]view.Deferral, error) {
	ctx, cancel := context.WithTimeout(ctx, u.opts.Timeout)
	defer cancel()
	f.Limit = u.opts.ListLimit
	ds, err := u.deps.Deferrals.List(ctx, f)
	if err != nil {
		return nil, err
	}
	return u.views.Many(ctx, ds)
}

func (u *Usecase) AddComment(ctx context.Context, deferralID string, author deferral.Actor, text string) (*view.Comment, error) {
	var c deferral.Comment
	_, err := u.mutate(ctx, deferralID, func(d *deferral.Deferral, now time.Time) error {
		var err error
		c, err = d.AddComment(author, text, now)
		return err
	})
	if err != nil {
		return nil, err
	}
	out := view.Comment{Comment: c}
	if usr, err := u.deps.Directory.FindByID(ctx, author.ID); err == nil {
		s := usr.Summary()
		out.Author = &s
	} else {
		out.Author = &user.Summary{ID: author.ID, Name: author.Name}
	}
	return &out, nil
}

func (u *Usecase) ListComments(ctx context.Context, deferralID string) ([]view.Comment, error) {
	ctx, cancel := context.WithTimeout(ctx, u.opts.Timeout)
	defer cancel()
	d, err := u.deps.Deferrals.GetByDeferralID(ctx, deferralID)
	if err != nil {
		return nil, err
	}
	return u.views.Comments(ctx, d)
}

// AddDocument attaches a document described by metadata only.
func (u *Usecase) AddDocument(ctx context.Context, deferralID string, actor deferral.Actor, raw document.Raw) (*document.Document, error) {
	if strings.TrimSpace(raw.Name) == "" {
		return nil, fmt.Errorf("%w: document name is required", deferral.ErrValidation)
	}
	var doc document.Document
	_, err := u.mutate(ctx, deferralID, func(d *deferral.Deferral, now time.Time) error {
		doc = document.NormalizeOne(raw, actor.ID, now)
		d.AddDocument(doc)
		return nil
	})
	if err != nil {
		return nil, err
	}
	return &doc, nil
}

// UploadDocument stores the file, then attaches its record. The file is
// written before the transaction so no lock is held during the upload.
func (u *Usecase) UploadDocument(ctx context.Context, deferralID string, actor deferral.Actor, up Upload) (*document.Document, error) {
	if u.deps.Storage == nil {
		return nil, fmt.Errorf("%w: document storage is not configured", deferral.ErrPrecondition)
	}
	name := path.Base(strings.TrimSpace(up.Filename))
	if name == "" || name == "." || name == "/" {
		return nil, fmt.Errorf("%w: file name is required", deferral.ErrValidation)
	}
	if _, err := u.deps.Deferrals.GetByDeferralID(ctx, deferralID); err != nil {
		return nil, err
	}

	key := fmt.Sprintf("deferrals/%s/%s-%s", deferralID, id.NewID32(), name)
	url, err := u.deps.Storage.Put(ctx, key, up.Body, up.Size, up.ContentType)
	if err != nil {
		return nil, fmt.Errorf("store document: %w", err)
	}

	var doc document.Document
	_, err = u.mutate(ctx, deferralID, func(d *deferral.Deferral, now time.Time) error {
		doc = document.FromUpload(name, up.ContentType, up.Size, url, actor.ID, up.IsDCL, up.IsAdditional, now)
		d.AddDocument(doc)
		return nil
	})
	if err != nil {
		// TODO: delete the stored object once Storage grows a Remove method.
		slog.WarnContext(ctx, "uploaded document not attached", "key", key, "error", err)
		return nil, err
	}
	return &doc, nil
}

func (u *Usecase) RemoveDocument(ctx context.Context, deferralID, documentID string) (*view.Deferral, error) {
	return u.mutate(ctx, deferralID, func(d *deferral.Deferral, _ time.Time) error {
		return d.RemoveDocument(documentID)
	})
}

func (u *Usecase) UpdateFacilities(ctx context.Context, deferralID string, facilities []deferral.Facility) (*view.Deferral, error) {
	return u.mutate(ctx, deferralID, func(d *deferral.Deferral, _ time.Time) error {
		return d.UpdateFacilities(facilities)
	})
}

// PreviewNumber returns the number the next submission would get. It is not reserved.
func (u *Usecase) PreviewNumber(ctx context.Context) (*NumberPreview, error) {
	ctx, cancel := context.WithTimeout(ctx, u.opts.Timeout)
	defer cancel()
	yy := numbering.YearOf(u.now().UTC())
	seq, err := u.deps.Sequences.Peek(ctx, yy)
	if err != nil {
		return nil, err
	}
	return &NumberPreview{Number: numbering.Format(yy, seq)}, nil
}

// Notifications lists the caller's in-app notifications, newest first.
func (u *Usecase) Notifications(ctx context.Context, actor deferral.Actor, limit int) ([]notification.Notification, error) {
	ctx, cancel := context.WithTimeout(ctx, u.opts.Timeout)
	defer cancel()
	ns, err := u.deps.Notifications.ListByUser(ctx, actor.ID, limit)
	if err != nil {
		return nil, err
	}
	if ns == nil {
		ns = []notification.Notification{}
	}
	return ns, nil
}

// mutate applies fn to the locked deferral and writes it back with the
// version guard.
func (u *Usecase) mutate(ctx context.Context, deferralID string, fn func(d *deferral.Deferral, now time.Time) error) (*view.Deferral, error) {
	ctx, cancel := context.WithTimeout(ctx, u.opts.Timeout)
	defer cancel()

	var out *deferral.Deferral
	err := u.uow.WithinDeferralTx(ctx, deferralID, func(r uow.Repos, d *deferral.Deferral) error {
		d.BackfillDefaults()
		if err := fn(d, u.now().UTC()); err != nil {
			return err
		}
		if err := r.Deferrals.Update(ctx, d); err != nil {
			return err
		}
		out = d
		return nil
	})
	if err != nil {
		return nil, err
	}
	return u.view(ctx, out), nil
}

func (u *Usecase) publish(d *deferral.Deferral, ev deferral.Event) {
	if u.deps.Publisher == nil {
		return
	}
	for _, n := range approval.Notices(d, ev, "") {
		u.deps.Publisher.Publish(n)
	}
}

func (u *Usecase) view(ctx context.Context, d *deferral.Deferral) *view.Deferral {
	v, err := u.views.One(ctx, d)
	if err != nil {
		slog.WarnContext(ctx, "resolve deferral view", "deferral", d.DeferralNumber, "error", err)
		return view.Unresolved(d)
	}
	return v
}
