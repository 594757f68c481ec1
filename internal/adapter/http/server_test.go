package http

import (
	"bytes"
	"context"
	"encoding/json"
	"io"
	stdhttp "net/http"
	"net/http/httptest"
	"sync"
	"testing"
	"time"

	"deferral-backend/internal/adapter/middleware"
	"deferral-backend/internal/domain/deferral"
	"deferral-backend/internal/domain/uow"
	"deferral-backend/internal/domain/user"
	"deferral-backend/internal/notify"
	"deferral-backend/internal/testutil/deferralmock"
	"deferral-backend/internal/testutil/notificationmock"
	"deferral-backend/internal/testutil/uowmock"
	"deferral-backend/internal/testutil/usermock"
	ucApproval "deferral-backend/internal/usecase/approval"
	ucDeferral "deferral-backend/internal/usecase/deferral"

	"github.com/labstack/echo/v4"
	"gorm.io/gorm"
)

// -------- helpers --------

const (
	aliceID = "aaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaa"
	bobID   = "bbbbbbbbbbbbbbbbbbbbbbbbbbbbbbbb"
	ritaID  = "dddddddddddddddddddddddddddddddd"
)

func newEchoWithValidator() *echo.Echo {
	e := echo.New()
	e.Validator = NewValidator()
	return e
}

func mustJSON(v any) *bytes.Reader {
	b, _ := json.Marshal(v)
	return bytes.NewReader(b)
}

type publisherFunc func(notify.Notice)

func (f publisherFunc) Publish(n notify.Notice) { f(n) }

type storageFunc func(ctx context.Context, key string, body io.Reader, size int64, contentType string) (string, error)

func (f storageFunc) Put(ctx context.Context, key string, body io.Reader, size int64, contentType string) (string, error) {
	return f(ctx, key, body, size, contentType)
}

// store is an in-memory deferral repository keyed by public id.
type store struct {
	mu   sync.Mutex
	rows map[string]deferral.Deferral
	seq  int
}

func (s *store) repo() *deferralmock.Repo {
	get := func(_ context.Context, id string) (*deferral.Deferral, error) {
		s.mu.Lock()
		defer s.mu.Unlock()
		d, ok := s.rows[id]
		if !ok {
			return nil, deferral.ErrNotFound
		}
		return &d, nil
	}
	return &deferralmock.Repo{
		CreateFn: func(_ context.Context, d *deferral.Deferral) error {
			s.mu.Lock()
			defer s.mu.Unlock()
			for _, r := range s.rows {
				if r.DeferralNumber == d.DeferralNumber {
					return gorm.ErrDuplicatedKey
				}
			}
			s.seq++
			d.ID = uint64(s.seq)
			s.rows[d.DeferralID] = *d
			return nil
		},
		UpdateFn: func(_ context.Context, d *deferral.Deferral) error {
			s.mu.Lock()
			defer s.mu.Unlock()
			if s.rows[d.DeferralID].Version != d.Version {
				return deferral.ErrConflict
			}
			d.Version++
			s.rows[d.DeferralID] = *d
			return nil
		},
		GetByDeferralIDFn:          get,
		GetByDeferralIDForUpdateFn: get,
		GetByNumberFn: func(_ context.Context, number string) (*deferral.Deferral, error) {
			s.mu.Lock()
			defer s.mu.Unlock()
			for _, d := range s.rows {
				if d.DeferralNumber == number {
					return &d, nil
				}
			}
			return nil, deferral.ErrNotFound
		},
		ListFn: func(_ context.Context, f deferral.Filter) ([]deferral.Deferral, error) {
			s.mu.Lock()
			defer s.mu.Unlock()
			var out []deferral.Deferral
			for _, d := range s.rows {
				if f.CurrentApproverID != "" && d.CurrentApproverID != f.CurrentApproverID {
					continue
				}
				if f.RequestorID != "" && d.RequestorID != f.RequestorID {
					continue
				}
				out = append(out, d)
			}
			return out, nil
		},
	}
}

type server struct {
	e       *echo.Echo
	store   *store
	notes   *notificationmock.Repo
	notices []notify.Notice
	mu      sync.Mutex
}

func (s *server) published() []notify.Notice {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]notify.Notice(nil), s.notices...)
}

func newServer(t *testing.T, storage ucDeferral.Storage) *server {
	t.Helper()
	s := &server{store: &store{rows: map[string]deferral.Deferral{}}}
	pub := publisherFunc(func(n notify.Notice) {
		s.mu.Lock()
		defer s.mu.Unlock()
		s.notices = append(s.notices, n)
	})

	dir := usermock.With(
		user.User{UserID: aliceID, Name: "Alice", Email: "alice@example.com", Role: user.RoleApprover, Active: true},
		user.User{UserID: bobID, Name: "Bob", Email: "bob@example.com", Role: user.RoleApprover, Active: true},
		user.User{UserID: ritaID, Name: "Rita", Email: "rita@example.com", Role: user.RoleRM, Active: true},
	)
	repo := s.store.repo()
	seqs := &deferralmock.Sequences{}
	notes := &notificationmock.Repo{}
	s.notes = notes
	tx := uowmock.Passthrough(uow.Repos{Deferrals: repo, Sequences: seqs, Notifications: notes})

	deferrals := ucDeferral.NewUsecase(tx, ucDeferral.Deps{
		Deferrals: repo, Sequences: seqs, Directory: dir, Notifications: notes, Storage: storage, Publisher: pub,
	}, ucDeferral.Options{Timeout: time.Second})
	approvals := ucApproval.NewUsecase(tx, dir, pub, ucApproval.Options{CompletionRecipient: "co@example.com", Timeout: time.Second})

	s.e = newEchoWithValidator()
	Routes{
		Health:    NewHandler(),
		Deferrals: NewDeferralHandler(deferrals),
		Approvals: NewApprovalHandler(approvals),
	}.Register(s.e, middleware.ActorMiddleware(dir), nil)
	return s
}

func (s *server) do(t *testing.T, method, path, userID string, body any) *httptest.ResponseRecorder {
	t.Helper()
	var r io.Reader
	if body != nil {
		r = mustJSON(body)
	}
	req := httptest.NewRequest(method, path, r)
	req.Header.Set(echo.HeaderContentType, echo.MIMEApplicationJSON)
	if userID != "" {
		req.Header.Set(middleware.HeaderUserID, userID)
	}
	rec := httptest.NewRecorder()
	s.e.ServeHTTP(rec, req)
	return rec
}

func decode[T any](t *testing.T, rec *httptest.ResponseRecorder) T {
	t.Helper()
	var v T
	if err := json.Unmarshal(rec.Body.Bytes(), &v); err != nil {
		t.Fatalf("bad json: %v; raw=%s", err, rec.Body.String())
	}
	return v
}

// deferralResp is the subset of the deferral view the tests read.
type deferralResp struct {
	ID                   string `json:"id"`
	DeferralNumber       string `json:"deferral_number"`
	Status               string `json:"status"`
	CurrentApproverIndex int    `json:"current_approver_index"`
	AllApproversApproved bool   `json:"all_approvers_approved"`
	RejectionReason      string `json:"rejection_reason"`
	Requestor            *struct {
		Name  string `json:"name"`
		Email string `json:"email"`
	} `json:"requestor"`
	Approvers []struct {
		Role string `json:"role"`
		User *struct {
			Name string `json:"name"`
		} `json:"user"`
	} `json:"approvers"`
	History []struct {
		Action string `json:"action"`
	} `json:"history"`
	Documents []struct {
		ID   string `json:"id"`
		Name string `json:"name"`
	} `json:"documents"`
}

func (s *server) submit(t *testing.T) deferralResp {
	t.Helper()
	rec := s.do(t, stdhttp.MethodPost, "/deferrals", ritaID, map[string]any{
		"dcl_number": "DCL-77",
		"title":      "Charge registration",
		"approvers": []map[string]string{
			{"role": "Credit", "user_id": aliceID},
			{"role": "Risk", "email": "bob@example.com"},
		},
	})
	if rec.Code != stdhttp.StatusCreated {
		t.Fatalf("submit status = %d, body=%s", rec.Code, rec.Body.String())
	}
	return decode[deferralResp](t, rec)
}
