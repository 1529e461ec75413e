package disruptiontracker

import (
	"context"
	"fmt"
	"time"

	"github.com/eko/gocache/lib/v4/cache"
	"github.com/eko/gocache/lib/v4/store"
	redisstore "github.com/eko/gocache/store/redis/v4"
	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog/log"
)

// Deduper remembers the content hash of the last applied version of each disruption
// so that feeds re-sending the same content do not trigger a re-apply.
type Deduper struct {
	cache *cache.Cache[string]
}

func NewDeduper(client *redis.Client, ttl time.Duration) *Deduper {
	redisStore := redisstore.NewRedis(client, store.WithExpiration(ttl))

	return &Deduper{
		cache: cache.New[string](redisStore),
	}
}

func dedupeKey(id string) string {
	return fmt.Sprintf("disruptiontracker/hash/%s", id)
}

// Unchanged reports whether contentHash is the hash last remembered for id
func (d *Deduper) Unchanged(ctx context.Context, id string, contentHash string) bool {
	if d == nil {
		return false
	}

	cachedHash, err := d.cache.Get(ctx, dedupeKey(id))
	if err != nil {
		return false
	}

	return cachedHash == contentHash
}

func (d *Deduper) Remember(ctx context.Context, id string, contentHash string) {
	if d == nil {
		return
	}

	if err := d.cache.Set(ctx, dedupeKey(id), contentHash); err != nil {
		log.Warn().Err(err).Str("disruption", id).Msg("Failed to cache disruption hash")
	}
}

func (d *Deduper) Forget(ctx context.Context, id string) {
	if d == nil {
		return
	}

	if err := d.cache.Delete(ctx, dedupeKey(id)); err != nil {
		log.Debug().Err(err).Str("disruption", id).Msg("Failed to drop disruption hash")
	}
}
