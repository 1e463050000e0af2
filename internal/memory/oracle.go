package memory

import (
	"context"
	"sync"
	"time"

	sdkmath "cosmossdk.io/math"
)

// FixedOracle is a PriceOracle reporting a price set by hand.
type FixedOracle struct {
	mu        sync.RWMutex
	price     sdkmath.Int
	updatedAt time.Time
	err       error
}

// NewFixedOracle creates an oracle reporting price as of updatedAt.
func NewFixedOracle(price sdkmath.Int, updatedAt time.Time) *FixedOracle {
	return &FixedOracle{price: price, updatedAt: updatedAt}
}

// Set replaces the reported price.
func (o *FixedOracle) Set(price sdkmath.Int, updatedAt time.Time) {
	o.mu.Lock()
	defer o.mu.Unlock()
	o.price = price
	o.updatedAt = updatedAt
}

// SetError makes every subsequent query fail with err. Nil restores normal answers.
func (o *FixedOracle) SetError(err error) {
	o.mu.Lock()
	defer o.mu.Unlock()
	o.err = err
}

func (o *FixedOracle) LatestPrice(context.Context) (sdkmath.Int, time.Time, error) {
	o.mu.RLock()
	defer o.mu.RUnlock()
	if o.err != nil {
		return sdkmath.ZeroInt(), time.Time{}, o.err
	}
	return o.price, o.updatedAt, nil
}
