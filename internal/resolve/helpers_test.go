package resolve

import (
	"context"
	"sync"
	"time"

	"github.com/sells-group/registry-link/pkg/sam"
)

type fakeClock struct {
	mu sync.Mutex
	t  time.Time
}

func newFakeClock() *fakeClock {
	return &fakeClock{t: time.Date(2025, 6, 1, 12, 0, 0, 0, time.UTC)}
}

func (c *fakeClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.t
}

func (c *fakeClock) Advance(d time.Duration) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.t = c.t.Add(d)
}

// fakeRegistry records every search and answers through respond.
type fakeRegistry struct {
	mu      sync.Mutex
	calls   []sam.Query
	respond func(q sam.Query, call int) ([]sam.Entity, error)
}

func (f *fakeRegistry) Search(_ context.Context, q sam.Query) ([]sam.Entity, error) {
	f.mu.Lock()
	f.calls = append(f.calls, q)
	n := len(f.calls)
	f.mu.Unlock()
	if f.respond == nil {
		return nil, nil
	}
	return f.respond(q, n)
}

func (f *fakeRegistry) Calls() []sam.Query {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]sam.Query(nil), f.calls...)
}

func entity(id, legal, state string) sam.Entity {
	status := "Active"
	e := sam.Entity{Registration: sam.Registration{
		UEI:                id,
		LegalBusinessName:  legal,
		RegistrationStatus: &status,
	}}
	if state != "" {
		e.Core = &sam.CoreData{PhysicalAddress: &sam.Address{StateOrProvinceCode: &state}}
	}
	return e
}

func testRetrieverConfig() RetrieverConfig {
	return RetrieverConfig{StrategyDelay: 0, RateLimitDelay: time.Millisecond}
}
