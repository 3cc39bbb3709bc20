// ABOUTME: Thread-safe TTL ledger of idempotency keys with spent retry budgets.
// ABOUTME: Guards creation calls against duplicate-conversation retries.

package dedupe

import (
	"container/list"
	"sync"
	"time"
)

// ledgerEntry stores the timestamp and list element for a recorded key.
type ledgerEntry struct {
	timestamp time.Time
	element   *list.Element
}

// Ledger records idempotency keys whose single creation retry has been
// consumed. Entries expire after a TTL and the ledger is size-limited;
// a doubly-linked list keeps insertion order for O(1) eviction.
type Ledger struct {
	mu      sync.RWMutex
	spent   map[string]*ledgerEntry
	order   *list.List // keys in insertion order, oldest at front
	ttl     time.Duration
	maxSize int
	done    chan struct{}
	closed  bool
}

// NewLedger creates a ledger with the given TTL and maximum size.
// A background goroutine periodically removes expired entries.
func NewLedger(ttl time.Duration, maxSize int) *Ledger {
	l := &Ledger{
		spent:   make(map[string]*ledgerEntry),
		order:   list.New(),
		ttl:     ttl,
		maxSize: maxSize,
		done:    make(chan struct{}),
	}
	go l.cleanupLoop()
	return l
}

// Spent reports whether the retry budget for key has already been
// consumed and is still within the TTL.
func (l *Ledger) Spent(key string) bool {
	l.mu.RLock()
	defer l.mu.RUnlock()

	entry, ok := l.spent[key]
	if !ok {
		return false
	}
	return time.Since(entry.timestamp) < l.ttl
}

// SpendRetry atomically consumes the retry budget for key. It returns
// true if the budget was already spent (the caller must not retry), or
// false if the retry is now recorded as consumed and may proceed.
// A single atomic operation avoids the TOCTOU race of a separate
// check-then-record pair under concurrent callers.
func (l *Ledger) SpendRetry(key string) bool {
	l.mu.Lock()
	defer l.mu.Unlock()

	entry, ok := l.spent[key]
	if ok && time.Since(entry.timestamp) < l.ttl {
		return true
	}

	l.recordLocked(key)
	return false
}

// recordLocked inserts or refreshes a key. Must be called with mu held.
func (l *Ledger) recordLocked(key string) {
	now := time.Now()

	if entry, exists := l.spent[key]; exists {
		entry.timestamp = now
		l.order.MoveToBack(entry.element)
		return
	}

	if len(l.spent) >= l.maxSize {
		l.evictOldest()
	}

	elem := l.order.PushBack(key)
	l.spent[key] = &ledgerEntry{
		timestamp: now,
		element:   elem,
	}
}

// evictOldest removes the oldest entry. Must be called with mu held.
func (l *Ledger) evictOldest() {
	front := l.order.Front()
	if front == nil {
		return
	}

	key, _ := front.Value.(string)
	l.order.Remove(front)
	delete(l.spent, key)
}

// cleanupLoop periodically removes expired entries until Close.
func (l *Ledger) cleanupLoop() {
	ticker := time.NewTicker(time.Minute)
	defer ticker.Stop()

	for {
		select {
		case <-ticker.C:
			l.removeExpired()
		case <-l.done:
			return
		}
	}
}

// removeExpired drops all entries older than the TTL.
func (l *Ledger) removeExpired() {
	l.mu.Lock()
	defer l.mu.Unlock()

	now := time.Now()
	for key, entry := range l.spent {
		if now.Sub(entry.timestamp) > l.ttl {
			l.order.Remove(entry.element)
			delete(l.spent, key)
		}
	}
}

// Close stops the background cleanup goroutine. Safe to call multiple times.
func (l *Ledger) Close() {
	l.mu.Lock()
	defer l.mu.Unlock()

	if !l.closed {
		close(l.done)
		l.closed = true
	}
}
