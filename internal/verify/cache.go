// internal/verify/cache.go
package verify

import (
	"context"
	"sync"

	"github.com/ethereum/go-ethereum/common"
	"go.uber.org/zap"
	"golang.org/x/sync/singleflight"
)

// Cache memoizes oracle answers for the process lifetime. Entries
// never expire; a long-running process can hold stale results, which
// is an accepted trade-off. Only definitive answers are cached;
// transient oracle failures are surfaced and retried on the next
// lookup.
type Cache struct {
	oracle Oracle
	logger *zap.Logger

	mu      sync.RWMutex
	results map[common.Address]bool

	flight singleflight.Group
}

func NewCache(oracle Oracle, logger *zap.Logger) *Cache {
	return &Cache{
		oracle:  oracle,
		logger:  logger.Named("verify"),
		results: make(map[common.Address]bool),
	}
}

// IsVerified is a read-through lookup. Concurrent misses for the same
// address collapse into a single oracle call; a second call for an
// already-answered address never reaches the oracle.
func (c *Cache) IsVerified(ctx context.Context, address common.Address) (bool, error) {
	c.mu.RLock()
	verified, ok := c.results[address]
	c.mu.RUnlock()
	if ok {
		return verified, nil
	}

	result, err, _ := c.flight.Do(address.Hex(), func() (interface{}, error) {
		// Re-check under flight: a concurrent caller may have stored
		// the answer between our read and this call.
		c.mu.RLock()
		verified, ok := c.results[address]
		c.mu.RUnlock()
		if ok {
			return verified, nil
		}

		verified, err := c.oracle.IsVerified(ctx, address)
		if err != nil {
			return false, err
		}

		c.mu.Lock()
		c.results[address] = verified
		c.mu.Unlock()

		c.logger.Debug("Cached verification result",
			zap.String("address", address.Hex()),
			zap.Bool("verified", verified))
		return verified, nil
	})
	if err != nil {
		return false, err
	}
	return result.(bool), nil
}

// Len reports the number of cached addresses.
func (c *Cache) Len() int {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return len(c.results)
}
