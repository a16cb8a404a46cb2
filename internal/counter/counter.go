package counter

import (
	"context"
	"errors"
)

// DefaultID is the id of the single counter document a deployment manages.
const DefaultID = "1"

type Counter struct {
	ID    string `json:"id"`
	Count int64  `json:"count"`
}

// Token is an opaque concurrency token handed out by Load and checked by Save.
type Token string

var (
	// ErrNotFound no document exists for the id
	ErrNotFound = errors.New("counter: not found")
	// ErrConflict the document changed since it was loaded
	ErrConflict = errors.New("counter: conflict")
	// ErrStoreUnavailable transport or infrastructure failure, including timeouts
	ErrStoreUnavailable = errors.New("counter: store unavailable")

	// ErrCounterMissing the counter was never seeded. Not retried.
	ErrCounterMissing = errors.New("counter: counter missing")
	// ErrExhausted every attempt ended in a conflict
	ErrExhausted = errors.New("counter: retries exhausted")
)

type Store interface {
	Load(ctx context.Context, id string) (*Counter, Token, error)
	// Save replaces the document only if its current token equals expected.
	Save(ctx context.Context, c *Counter, expected Token) error
}

// Incrementer is implemented by stores offering an atomic increment.
// FetchAndIncrement returns the document as it was before the increment
// and must never create a missing document.
type Incrementer interface {
	FetchAndIncrement(ctx context.Context, id string) (*Counter, error)
}

// Seeder creates the counter document if it does not exist yet.
type Seeder interface {
	Seed(ctx context.Context, c *Counter) (bool, error)
}

// IsStoreError reports whether err belongs to the store taxonomy.
func IsStoreError(err error) bool {
	return errors.Is(err, ErrNotFound) ||
		errors.Is(err, ErrConflict) ||
		errors.Is(err, ErrStoreUnavailable)
}
