package domain

import "context"

// Repository stores payment streams keyed by their id.
//
// Get and List hand out defensive copies. Mutate runs fn against the
// stored stream while holding that stream's lock, so one operation's
// counter updates (TotalDuration, TotalCharged, LastBilledAt) land
// atomically with respect to any concurrent mutation of the same id.
// Operations on different ids proceed in parallel.
type Repository interface {
	Get(ctx context.Context, id string) (*PaymentStream, error)
	Put(ctx context.Context, stream *PaymentStream) error
	List(ctx context.Context) ([]*PaymentStream, error)
	Mutate(ctx context.Context, id string, fn func(*PaymentStream) error) (*PaymentStream, error)
}
