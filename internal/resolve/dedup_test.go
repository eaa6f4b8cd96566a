package resolve

import (
	"context"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func TestMemoryDeduplicator_Window(t *testing.T) {
	ctx := context.Background()
	clock := newFakeClock()
	d := NewMemoryDeduplicator(30*time.Second, WithDedupClock(clock.Now))
	key := DedupKey("portal-1", "company-9")

	assert.True(t, d.ShouldProcess(ctx, key))

	clock.Advance(10 * time.Second)
	assert.False(t, d.ShouldProcess(ctx, key))

	clock.Advance(21 * time.Second)
	assert.True(t, d.ShouldProcess(ctx, key), "window elapsed")
}

func TestMemoryDeduplicator_DropDoesNotRefreshMarker(t *testing.T) {
	ctx := context.Background()
	clock := newFakeClock()
	d := NewMemoryDeduplicator(30*time.Second, WithDedupClock(clock.Now))

	assert.True(t, d.ShouldProcess(ctx, "k"))
	clock.Advance(20 * time.Second)
	assert.False(t, d.ShouldProcess(ctx, "k"))
	clock.Advance(11 * time.Second)
	assert.True(t, d.ShouldProcess(ctx, "k"), "marker age counts from first acceptance")
}

func TestMemoryDeduplicator_KeysIndependent(t *testing.T) {
	ctx := context.Background()
	d := NewMemoryDeduplicator(time.Minute)

	assert.True(t, d.ShouldProcess(ctx, DedupKey("p1", "c1")))
	assert.True(t, d.ShouldProcess(ctx, DedupKey("p1", "c2")))
	assert.True(t, d.ShouldProcess(ctx, DedupKey("p2", "c1")))
	assert.False(t, d.ShouldProcess(ctx, DedupKey("p1", "c1")))
}

func TestMemoryDeduplicator_Concurrent(t *testing.T) {
	ctx := context.Background()
	d := NewMemoryDeduplicator(time.Minute)

	var accepted atomic.Int32
	var wg sync.WaitGroup
	for range 50 {
		wg.Add(1)
		go func() {
			defer wg.Done()
			if d.ShouldProcess(ctx, "same") {
				accepted.Add(1)
			}
		}()
	}
	wg.Wait()
	assert.Equal(t, int32(1), accepted.Load())
}

func TestNewMemoryDeduplicator_DefaultWindow(t *testing.T) {
	d := NewMemoryDeduplicator(0)
	assert.Equal(t, DefaultDedupWindow, d.window)
}
