package matching

import (
	"context"
	"sort"
	"sync"
	"time"

	"github.com/pkg/errors"

	"github.com/refind-ai/refind/internal/profile"
	"github.com/refind-ai/refind/store"
)

// fakeDriver is an in-memory store.Driver for engine tests.
type fakeDriver struct {
	mu      sync.Mutex
	items   map[store.Collection]map[string]*store.Item
	matches []*store.MatchResult

	failList bool
}

func newFakeDriver() *fakeDriver {
	return &fakeDriver{
		items: map[store.Collection]map[string]*store.Item{
			store.CollectionLost:  {},
			store.CollectionFound: {},
		},
	}
}

func (d *fakeDriver) GetDB() any                    { return nil }
func (d *fakeDriver) Close() error                  { return nil }
func (d *fakeDriver) Migrate(context.Context) error { return nil }
func (d *fakeDriver) Ping(context.Context) error    { return nil }

func (d *fakeDriver) UpsertItem(_ context.Context, item *store.Item) (*store.Item, error) {
	d.mu.Lock()
	defer d.mu.Unlock()
	clone := *item
	d.items[item.Collection][item.ID] = &clone
	return &clone, nil
}

func (d *fakeDriver) GetItem(_ context.Context, collection store.Collection, id string) (*store.Item, error) {
	d.mu.Lock()
	defer d.mu.Unlock()
	item, ok := d.items[collection][id]
	if !ok {
		return nil, nil
	}
	clone := *item
	return &clone, nil
}

func (d *fakeDriver) ListItems(_ context.Context, find *store.FindItem) ([]*store.Item, error) {
	d.mu.Lock()
	defer d.mu.Unlock()
	if d.failList {
		return nil, errors.New("list failed")
	}
	list := []*store.Item{}
	for _, item := range d.items[find.Collection] {
		if find.Status != nil && item.Status != *find.Status {
			continue
		}
		clone := *item
		list = append(list, &clone)
	}
	sort.Slice(list, func(i, j int) bool { return list[i].ID < list[j].ID })
	if find.Limit > 0 && len(list) > find.Limit {
		list = list[:find.Limit]
	}
	return list, nil
}

func (d *fakeDriver) UpdateItemStatus(_ context.Context, collection store.Collection, id, status string) error {
	d.mu.Lock()
	defer d.mu.Unlock()
	item, ok := d.items[collection][id]
	if !ok {
		return errors.Errorf("item %s not found", id)
	}
	item.Status = status
	return nil
}

func (d *fakeDriver) CreateMatch(_ context.Context, match *store.MatchResult) (*store.MatchResult, error) {
	d.mu.Lock()
	defer d.mu.Unlock()
	clone := *match
	d.matches = append(d.matches, &clone)
	return &clone, nil
}

func (d *fakeDriver) ListRecentMatches(_ context.Context, limit int) ([]*store.MatchResult, error) {
	d.mu.Lock()
	defer d.mu.Unlock()
	list := []*store.MatchResult{}
	for i := len(d.matches) - 1; i >= 0 && len(list) < limit; i-- {
		clone := *d.matches[i]
		list = append(list, &clone)
	}
	return list, nil
}

func (d *fakeDriver) matchCount() int {
	d.mu.Lock()
	defer d.mu.Unlock()
	return len(d.matches)
}

func (d *fakeDriver) itemStatus(collection store.Collection, id string) string {
	d.mu.Lock()
	defer d.mu.Unlock()
	item, ok := d.items[collection][id]
	if !ok {
		return ""
	}
	return item.Status
}

func newFakeStore(d *fakeDriver) *store.Store {
	return store.New(d, &profile.Profile{})
}

// fakeGenerator returns canned vectors per modality and counts calls.
type fakeGenerator struct {
	mu       sync.Mutex
	vectors  map[store.Modality][]float32
	fail     map[store.Modality]bool
	readyErr error
	calls    int
}

func (g *fakeGenerator) Generate(_ context.Context, modality store.Modality, _ string) ([]float32, error) {
	g.mu.Lock()
	defer g.mu.Unlock()
	g.calls++
	if g.fail[modality] {
		return nil, errors.Errorf("generation failed for %s", modality)
	}
	v, ok := g.vectors[modality]
	if !ok {
		return nil, errors.Errorf("no vector configured for %s", modality)
	}
	out := make([]float32, len(v))
	copy(out, v)
	return out, nil
}

func (g *fakeGenerator) Ready(context.Context) error {
	g.mu.Lock()
	defer g.mu.Unlock()
	return g.readyErr
}

func (g *fakeGenerator) callCount() int {
	g.mu.Lock()
	defer g.mu.Unlock()
	return g.calls
}

// fakeResultCache is a map-backed ResultCache without expiry.
type fakeResultCache struct {
	mu      sync.Mutex
	entries map[string]string
	getErr  error
}

func newFakeResultCache() *fakeResultCache {
	return &fakeResultCache{entries: map[string]string{}}
}

func (c *fakeResultCache) Get(_ context.Context, key string) (string, bool, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.getErr != nil {
		return "", false, c.getErr
	}
	value, ok := c.entries[key]
	return value, ok, nil
}

func (c *fakeResultCache) SetWithTTL(_ context.Context, key, value string, _ time.Duration) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.entries[key] = value
	return nil
}

func (c *fakeResultCache) Delete(_ context.Context, key string) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	delete(c.entries, key)
	return nil
}

func (c *fakeResultCache) Ping(context.Context) error { return nil }

func (c *fakeResultCache) has(key string) bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	_, ok := c.entries[key]
	return ok
}
