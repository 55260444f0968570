package events

import (
	"context"
	"errors"
	"sort"
	"sync"
)

// Post-commit event names. The bus carries best-effort listeners only
// (cache refreshes, live pushes); transactional side effects are composed
// by explicit function calls, never through the bus.
const (
	ScoreChanged       = "score_changed"
	ChallengeCompleted = "challenge_completed"
	ChallengeSwept     = "challenge_swept"
)

// ScorePayload accompanies ScoreChanged.
type ScorePayload struct {
	UserID int64
}

// ChallengePayload accompanies ChallengeCompleted.
type ChallengePayload struct {
	UserID      int64
	ChallengeID int64
}

// SweepPayload accompanies ChallengeSwept.
type SweepPayload struct {
	Count int64
}

// HandlerFn is an event listener.
type HandlerFn func(ctx context.Context, event string, data interface{}) error

type handlerEntry struct {
	priority int
	fn       HandlerFn
	name     string
}

// Bus manages event listener registrations.
type Bus struct {
	mu       sync.RWMutex
	handlers map[string][]*handlerEntry
}

// NewBus creates a new Bus.
func NewBus() *Bus {
	return &Bus{handlers: make(map[string][]*handlerEntry)}
}

// Register adds a HandlerFn for the given event with the given priority
// (lower runs first). name is used for Unregister.
func (b *Bus) Register(event string, priority int, name string, fn HandlerFn) {
	b.mu.Lock()
	defer b.mu.Unlock()
	entries := b.handlers[event]
	entries = append(entries, &handlerEntry{priority: priority, fn: fn, name: name})
	sort.Slice(entries, func(i, j int) bool {
		return entries[i].priority < entries[j].priority
	})
	b.handlers[event] = entries
}

// Unregister removes all handlers with the given name for the given event.
func (b *Bus) Unregister(event, name string) {
	b.mu.Lock()
	defer b.mu.Unlock()
	entries := b.handlers[event]
	n := 0
	for _, e := range entries {
		if e.name != name {
			entries[n] = e
			n++
		}
	}
	b.handlers[event] = entries[:n]
}

// Emit runs all registered handlers for event in priority order. Every
// handler runs regardless of earlier failures; the joined error is
// returned for logging.
func (b *Bus) Emit(ctx context.Context, event string, data interface{}) error {
	b.mu.RLock()
	entries := make([]*handlerEntry, len(b.handlers[event]))
	copy(entries, b.handlers[event])
	b.mu.RUnlock()

	var errs []error
	for _, e := range entries {
		if err := e.fn(ctx, event, data); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}
