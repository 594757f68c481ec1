package numbering

import "context"

type Repository interface {
	// Next atomically reserves and returns the next sequence value for yy.
	// Callers run it inside the transaction that inserts the numbered record.
	Next(ctx context.Context, yy int) (int, error)
	// Peek returns the value Next would return without reserving it.
	Peek(ctx context.Context, yy int) (int, error)
	// Resync raises the counter to the highest number already stored for yy,
	// so numbers written outside the counter are never handed out again.
	// It returns the counter's value afterwards.
	Resync(ctx context.Context, yy int) (int, error)
}
