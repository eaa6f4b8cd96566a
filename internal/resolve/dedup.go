package resolve

import (
	"context"
	"sync"
	"time"
)

// DefaultDedupWindow is how long a subject is ignored after being accepted.
const DefaultDedupWindow = 30 * time.Second

// DedupKey builds the marker key for a subject from a given source.
func DedupKey(sourceID, subjectID string) string {
	return sourceID + ":" + subjectID
}

// Deduplicator drops repeat deliveries of the same subject. It is a
// best-effort guard, not a lock.
type Deduplicator interface {
	// ShouldProcess returns true and marks key as seen unless key was
	// marked less than one window ago.
	ShouldProcess(ctx context.Context, key string) bool
}

// MemoryDeduplicator keeps markers in process memory. Markers expire lazily.
type MemoryDeduplicator struct {
	mu      sync.Mutex
	window  time.Duration
	now     func() time.Time
	markers map[string]time.Time
}

// DedupOption configures a MemoryDeduplicator.
type DedupOption func(*MemoryDeduplicator)

// WithDedupClock overrides the deduplicator's time source.
func WithDedupClock(now func() time.Time) DedupOption {
	return func(d *MemoryDeduplicator) { d.now = now }
}

// NewMemoryDeduplicator creates a deduplicator with the given window.
func NewMemoryDeduplicator(window time.Duration, opts ...DedupOption) *MemoryDeduplicator {
	if window <= 0 {
		window = DefaultDedupWindow
	}
	d := &MemoryDeduplicator{
		window:  window,
		now:     time.Now,
		markers: make(map[string]time.Time),
	}
	for _, opt := range opts {
		opt(d)
	}
	return d
}

// ShouldProcess implements Deduplicator.
func (d *MemoryDeduplicator) ShouldProcess(_ context.Context, key string) bool {
	d.mu.Lock()
	defer d.mu.Unlock()

	now := d.now()
	if marked, ok := d.markers[key]; ok && now.Sub(marked) < d.window {
		return false
	}
	d.markers[key] = now
	return true
}
