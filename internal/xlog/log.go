// Package xlog implements the bounded log façade shared by every
// component that needs to record operator-facing notes and errors, plus
// the panic-recovery helper used by every goroutine this program spawns.
package xlog

import (
	"sync"
	"time"
)

const bufferCap = 100

// Kind is the severity of a logged Entry.
type Kind int

const (
	// Note is an informational log entry.
	Note Kind = iota
	// Error is an error log entry.
	Error
)

// String returns the textual representation of a Kind.
func (k Kind) String() string {
	switch k {
	case Note:
		return "note"
	case Error:
		return "error"
	default:
		return "unknown"
	}
}

// Entry is a single recorded log record.
type Entry struct {
	Kind Kind      `json:"kind"`
	Msg  string    `json:"msg"`
	Time time.Time `json:"time"`
}

// Log is a bounded, fan-out log buffer. The newest bufferCap entries are
// retained; subscribers receive new entries as they are logged. entries
// and subs share one mutex so an append and its fan-out dispatch are
// atomic with any concurrent snapshot-and-subscribe, preserving the
// no-missed/no-duplicated invariant under concurrent use.
type Log struct {
	mu      sync.Mutex
	entries []Entry
	subs    []chan Entry
}

// New returns a pointer to a new, empty Log.
func New() *Log {
	return &Log{}
}

// Log records a new Entry of the given Kind and fans it out to subscribers.
func (l *Log) Log(kind Kind, msg string) {
	entry := Entry{Kind: kind, Msg: msg, Time: time.Now()}

	l.mu.Lock()
	defer l.mu.Unlock()

	l.entries = append(l.entries, entry)
	if len(l.entries) > bufferCap {
		l.entries = l.entries[len(l.entries)-bufferCap:]
	}

	for _, sub := range l.subs {
		select {
		case sub <- entry:
		default:
			// Slow subscriber; drop rather than block the logger.
		}
	}
}

// Note is a convenience wrapper around Log(Note, msg).
func (l *Log) Note(msg string) {
	l.Log(Note, msg)
}

// Snapshot returns a copy of the current buffer together with a channel
// that will receive any entry logged after Snapshot returns. The two are
// obtained under one critical section so no entry is missed or duplicated
// between the snapshot and the subscription (snapshot-before-subscribe).
func (l *Log) Snapshot() ([]Entry, <-chan Entry) {
	l.mu.Lock()
	defer l.mu.Unlock()

	entries := make([]Entry, len(l.entries))
	copy(entries, l.entries)

	ch := make(chan Entry, 1000)
	l.subs = append(l.subs, ch)

	return entries, ch
}

// Unsubscribe removes a channel previously returned by Snapshot.
func (l *Log) Unsubscribe(ch <-chan Entry) {
	l.mu.Lock()
	defer l.mu.Unlock()

	for i, sub := range l.subs {
		if sub == ch {
			l.subs = append(l.subs[:i], l.subs[i+1:]...)

			return
		}
	}
}
