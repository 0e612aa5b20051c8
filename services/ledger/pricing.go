package ledger

import (
	"context"
	"fmt"
	"sync"
	"time"

	"promoflow/pkg/errutil"
	"promoflow/pkg/repository"

	"golang.org/x/sync/singleflight"
)

type cachedPrice struct {
	price    int64
	loadedAt time.Time
}

// Catalog resolves the current price of a billable action. Lookups hit the
// pricing table first; a disabled row prices the action at 0 and a missing
// row falls back to DefaultPrices.
type Catalog struct {
	items repository.Repository[PricingItem]
	ttl   time.Duration
	now   func() time.Time

	mu    sync.RWMutex
	cache map[Action]cachedPrice
	group singleflight.Group
}

func NewCatalog(items repository.Repository[PricingItem], ttl time.Duration) *Catalog {
	return &Catalog{
		items: items,
		ttl:   ttl,
		now:   time.Now,
		cache: make(map[Action]cachedPrice),
	}
}

func (c *Catalog) Price(ctx context.Context, action Action) (int64, error) {
	if p, ok := c.get(action); ok {
		pricingCacheHits.Inc()
		return p, nil
	}
	pricingCacheMiss.Inc()

	v, err, _ := c.group.Do(string(action), func() (any, error) {
		price, err := c.load(ctx, action)
		if err != nil {
			return int64(0), err
		}
		c.set(action, price)
		return price, nil
	})
	if err != nil {
		return 0, err
	}

	return v.(int64), nil
}

func (c *Catalog) load(ctx context.Context, action Action) (int64, error) {
	item, err := c.items.FindOne(ctx, &PricingItem{Action: action})
	if err != nil {
		return 0, fmt.Errorf("load price %s: %w", action, err)
	}

	if item != nil {
		if !item.Enabled || item.Price < 0 {
			return 0, nil
		}
		return item.Price, nil
	}

	if p, ok := DefaultPrices[action]; ok {
		return p, nil
	}

	return 0, errutil.BadRequest(fmt.Sprintf("unknown billable action %q", action), nil)
}

func (c *Catalog) get(action Action) (int64, bool) {
	if c.ttl <= 0 {
		return 0, false
	}

	c.mu.RLock()
	defer c.mu.RUnlock()
	v, ok := c.cache[action]
	if !ok || c.now().Sub(v.loadedAt) > c.ttl {
		return 0, false
	}
	return v.price, true
}

func (c *Catalog) set(action Action, price int64) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.cache[action] = cachedPrice{price: price, loadedAt: c.now()}
}

// Invalidate drops a cached price so the next lookup reads the table.
func (c *Catalog) Invalidate(action Action) {
	c.mu.Lock()
	defer c.mu.Unlock()
	delete(c.cache, action)
}
