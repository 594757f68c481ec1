package deferralmock

import (
	"context"

	"deferral-backend/internal/domain/numbering"
)

var _ numbering.Repository = (*Sequences)(nil)

// Sequences is a function-backed numbering.Repository. With no funcs set it
// counts up from 1 per year in memory and Resync leaves the counter alone.
type Sequences struct {
	NextFn   func(ctx context.Context, yy int) (int, error)
	PeekFn   func(ctx context.Context, yy int) (int, error)
	ResyncFn func(ctx context.Context, yy int) (int, error)

	last map[int]int
}

func (m *Sequences) Next(ctx context.Context, yy int) (int, error) {
	if m.NextFn != nil {
		return m.NextFn(ctx, yy)
	}
	if m.last == nil {
		m.last = map[int]int{}
	}
	m.last[yy]++
	return m.last[yy], nil
}

func (m *Sequences) Peek(ctx context.Context, yy int) (int, error) {
	if m.PeekFn != nil {
		return m.PeekFn(ctx, yy)
	}
	return m.last[yy] + 1, nil
}

func (m *Sequences) Resync(ctx context.Context, yy int) (int, error) {
	if m.ResyncFn != nil {
		return m.ResyncFn(ctx, yy)
	}
	return m.last[yy], nil
}
