package testutil

import (
	"context"
	"fmt"
	"sync"

	"github.com/roach88/khatm/internal/khatm"
)

// ContendedRepo wraps a repository and fails the first Failures calls to
// Update with khatm.ErrContention, the way a locked SQLite database does.
// With a nil Next every call fails.
type ContendedRepo struct {
	Next     khatm.Repository
	Failures int

	mu    sync.Mutex
	calls int
}

// Update implements khatm.Repository.
func (r *ContendedRepo) Update(ctx context.Context, fn func(tx khatm.Tx) error) error {
	r.mu.Lock()
	r.calls++
	fail := r.Next == nil || r.calls <= r.Failures
	r.mu.Unlock()

	if fail {
		return fmt.Errorf("update: %w: database is locked", khatm.ErrContention)
	}
	return r.Next.Update(ctx, fn)
}

// Calls returns how many times Update was called.
func (r *ContendedRepo) Calls() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.calls
}
