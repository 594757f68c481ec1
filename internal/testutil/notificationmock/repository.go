package notificationmock

import (
	"context"
	"sync"

	domain "deferral-backend/internal/domain/notification"
)

var _ domain.Repository = (*Repo)(nil)

// Repo is a function-backed mock of domain.Repository. With CreateFn unset it
// records created notifications in Created.
type Repo struct {
	CreateFn     func(ctx context.Context, n *domain.Notification) error
	ListByUserFn func(ctx context.Context, userID string, limit int) ([]domain.Notification, error)

	mu      sync.Mutex
	Created []domain.Notification
}

func (m *Repo) Create(ctx context.Context, n *domain.Notification) error {
	if m.CreateFn != nil {
		return m.CreateFn(ctx, n)
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	m.Created = append(m.Created, *n)
	return nil
}

func (m *Repo) ListByUser(ctx context.Context, userID string, limit int) ([]domain.Notification, error) {
	if m.ListByUserFn != nil {
		return m.ListByUserFn(ctx, userID, limit)
	}
	return nil, context.Canceled
}

// Snapshot returns a copy of the recorded notifications.
func (m *Repo) Snapshot() []domain.Notification {
	m.mu.Lock()
	defer m.mu.Unlock()
	return append([]domain.Notification(nil), m.Created...)
}
