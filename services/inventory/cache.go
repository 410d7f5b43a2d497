package inventory

import (
	"context"
	"strconv"
	"sync"
	"time"

	"giveaway-fulfillment/pkg/clock"
	"giveaway-fulfillment/pkg/steam"

	"github.com/prometheus/client_golang/prometheus"
	"go.uber.org/zap"
	"golang.org/x/sync/singleflight"
)

var (
	cacheHits   = prometheus.NewCounter(prometheus.CounterOpts{Name: "inventory_cache_hits_total", Help: "Inventory lookups served from cache."})
	cacheMiss   = prometheus.NewCounter(prometheus.CounterOpts{Name: "inventory_cache_miss_total", Help: "Inventory lookups that triggered a fetch."})
	fetchErrors = prometheus.NewCounter(prometheus.CounterOpts{Name: "inventory_fetch_errors_total", Help: "Failed inventory fetches."})
)

func init() {
	prometheus.MustRegister(cacheHits, cacheMiss, fetchErrors)
}

// Fetcher loads a full inventory snapshot.
type Fetcher interface {
	GetInventory(ctx context.Context, steamID string, appID int, contextID string, tradableOnly bool) ([]steam.Item, error)
}

// Key selects one inventory collection of the custodial account.
type Key struct {
	AppID     int
	ContextID string
}

func (k Key) String() string {
	return strconv.Itoa(k.AppID) + ":" + k.ContextID
}

type entry struct {
	items    []steam.Item
	loadedAt time.Time
}

// Cache keeps the tradable inventory of the custodial account per Key. An entry is
// replaced wholesale after ttl; concurrent misses on one key share a single fetch.
type Cache struct {
	mu    sync.RWMutex
	items map[Key]*entry
	ttl   time.Duration
	group singleflight.Group

	fetcher Fetcher
	owner   string
	clock   clock.Clock
}

func NewCache(fetcher Fetcher, owner string, ttl time.Duration, clk clock.Clock) *Cache {
	if clk == nil {
		clk = clock.NewSystem()
	}
	return &Cache{
		items:   make(map[Key]*entry),
		ttl:     ttl,
		fetcher: fetcher,
		owner:   owner,
		clock:   clk,
	}
}

func (c *Cache) lookup(key Key) ([]steam.Item, bool) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	v, ok := c.items[key]
	if !ok || (c.ttl > 0 && c.clock.Now().Sub(v.loadedAt) >= c.ttl) {
		return nil, false
	}
	return v.items, true
}

// Get returns the cached snapshot for key, fetching it on miss or expiry. Fetch
// errors are returned as is and leave the previous entry untouched.
func (c *Cache) Get(ctx context.Context, key Key) ([]steam.Item, error) {
	if items, ok := c.lookup(key); ok {
		cacheHits.Inc()
		return items, nil
	}
	cacheMiss.Inc()

	v, err, shared := c.group.Do(key.String(), func() (any, error) {
		if items, ok := c.lookup(key); ok {
			return items, nil
		}

		items, err := c.fetcher.GetInventory(ctx, c.owner, key.AppID, key.ContextID, true)
		if err != nil {
			fetchErrors.Inc()
			return nil, err
		}
		if items == nil {
			items = []steam.Item{}
		}

		c.mu.Lock()
		c.items[key] = &entry{items: items, loadedAt: c.clock.Now()}
		c.mu.Unlock()

		zap.L().Debug("[Inventory] refreshed", zap.String("key", key.String()), zap.Int("items", len(items)))
		return items, nil
	})
	if err != nil {
		return nil, err
	}
	if shared {
		zap.L().Debug("[Inventory] shared fetch", zap.String("key", key.String()))
	}
	return v.([]steam.Item), nil
}

func (c *Cache) Invalidate(key Key) {
	c.mu.Lock()
	defer c.mu.Unlock()
	delete(c.items, key)
}
