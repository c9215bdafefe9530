package versionmanager

import (
	"sort"
	"sync"
)

// broadcaster is a single-producer, many-consumer watch channel for a
// []VersionKey value: each subscriber channel is buffered to depth 1 and
// always holds the most recent value, never a backlog, and sendIfModified
// only wakes subscribers when the value actually changed (by content,
// order-independent).
type broadcaster struct {
	mu          sync.Mutex
	last        []VersionKey
	hasLast     bool
	subscribers []chan []VersionKey
}

func newBroadcaster() *broadcaster {
	return &broadcaster{}
}

func (b *broadcaster) subscribe() <-chan []VersionKey {
	b.mu.Lock()
	defer b.mu.Unlock()

	ch := make(chan []VersionKey, 1)
	if b.hasLast {
		ch <- b.last
	}
	b.subscribers = append(b.subscribers, ch)
	return ch
}

// sendIfModified broadcasts keys to every subscriber iff it differs from
// the last broadcast value, ignoring order.
func (b *broadcaster) sendIfModified(keys []VersionKey) {
	sorted := append([]VersionKey(nil), keys...)
	sort.Slice(sorted, func(i, j int) bool { return sorted[i] < sorted[j] })

	b.mu.Lock()
	defer b.mu.Unlock()

	if b.hasLast && keysEqual(b.last, sorted) {
		return
	}
	b.last = sorted
	b.hasLast = true

	for _, ch := range b.subscribers {
		// Drain any stale pending value so the subscriber only ever sees
		// the latest broadcast, never a backlog of superseded sets.
		select {
		case <-ch:
		default:
		}
		ch <- sorted
	}
}

func keysEqual(a, b []VersionKey) bool {
	if len(a) != len(b) {
		return false
	}
	for i := range a {
		if a[i] != b[i] {
			return false
		}
	}
	return true
}
