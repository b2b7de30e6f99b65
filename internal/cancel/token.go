// Package cancel implements the cooperative cancellation token shared
// between the devices registry and the monitor goroutine it spawns.
package cancel

import "sync/atomic"

// Token is a shareable, one-way cancellation flag. It has no waking
// primitive: consumers poll Cancelled() at convenient checkpoints.
type Token struct {
	cancelled atomic.Bool
}

// New returns a pointer to a new, uncancelled Token.
func New() *Token {
	return &Token{}
}

// Cancel sets the token. Safe to call more than once or concurrently.
func (t *Token) Cancel() {
	t.cancelled.Store(true)
}

// Cancelled reports whether Cancel has been called.
func (t *Token) Cancelled() bool {
	return t.cancelled.Load()
}
