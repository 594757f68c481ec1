package usermock

import (
	"context"
	"strings"

	domain "deferral-backend/internal/domain/user"
)

var _ domain.Directory = (*Directory)(nil)

// Directory is a function-backed mock of domain.Directory. When a func is
// unset it answers from Users, keyed by public user id.
type Directory struct {
	FindByIDFn    func(ctx context.Context, userID string) (*domain.User, error)
	FindByIDsFn   func(ctx context.Context, userIDs []string) (map[string]domain.User, error)
	FindByEmailFn func(ctx context.Context, email string) (*domain.User, error)

	Users map[string]domain.User
}

// With builds a Directory backed by the given users.
func With(users ...domain.User) *Directory {
	m := &Directory{Users: make(map[string]domain.User, len(users))}
	for _, u := range users {
		m.Users[u.UserID] = u
	}
	return m
}

func (m *Directory) FindByID(ctx context.Context, userID string) (*domain.User, error) {
	if m.FindByIDFn != nil {
		return m.FindByIDFn(ctx, userID)
	}
	if u, ok := m.Users[userID]; ok {
		return &u, nil
	}
	return nil, domain.ErrNotFound
}

func (m *Directory) FindByIDs(ctx context.Context, userIDs []string) (map[string]domain.User, error) {
	if m.FindByIDsFn != nil {
		return m.FindByIDsFn(ctx, userIDs)
	}
	out := map[string]domain.User{}
	for _, id := range userIDs {
		if u, ok := m.Users[id]; ok {
			out[id] = u
		}
	}
	return out, nil
}

func (m *Directory) FindByEmail(ctx context.Context, email string) (*domain.User, error) {
	if m.FindByEmailFn != nil {
		return m.FindByEmailFn(ctx, email)
	}
	for _, u := range m.Users {
		if strings.EqualFold(u.Email, strings.TrimSpace(email)) {
			return &u, nil
		}
	}
	return nil, domain.ErrNotFound
}
