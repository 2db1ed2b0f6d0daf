package runtime

import (
	"context"
	"fmt"
	"sync"

	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/asynctest/asynctest/internal/spec"
)

// DatabaseController lazily opens one connection pool per configured
// database and shares it across all runners of the run. Pools are closed by
// the lifecycle supervisor in its post-run phase.
type DatabaseController struct {
	cache *spec.GlobalCache

	mu    sync.Mutex
	pools map[string]*pgxpool.Pool
}

func NewDatabaseController(cache *spec.GlobalCache) *DatabaseController {
	return &DatabaseController{cache: cache, pools: map[string]*pgxpool.Pool{}}
}

// Pool returns the pool for a database id, opening it on first use.
func (d *DatabaseController) Pool(ctx context.Context, databaseID string) (*pgxpool.Pool, error) {
	d.mu.Lock()
	defer d.mu.Unlock()

	if pool, ok := d.pools[databaseID]; ok {
		return pool, nil
	}
	cfg, ok := d.cache.OriginDatabaseMapping[databaseID]
	if !ok {
		return nil, fmt.Errorf("database %s not configured", databaseID)
	}
	pool, err := pgxpool.New(ctx, connString(cfg))
	if err != nil {
		return nil, fmt.Errorf("open database %s: %w", databaseID, err)
	}
	d.pools[databaseID] = pool
	return pool, nil
}

func connString(cfg *spec.DatabaseConfig) string {
	return fmt.Sprintf("postgres://%s:%s@%s:%d/%s",
		cfg.User, cfg.Password, cfg.Host, cfg.Port, cfg.Database)
}

// CloseAll closes every opened pool.
func (d *DatabaseController) CloseAll() {
	d.mu.Lock()
	defer d.mu.Unlock()
	for id, pool := range d.pools {
		pool.Close()
		delete(d.pools, id)
	}
}
