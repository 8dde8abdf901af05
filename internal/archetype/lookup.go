// Package archetype resolves the proven intervention methods for a user
// archetype. It is a read-only collaborator: the flow engine asks for the
// best methods and falls back to its rule table when none exist.
package archetype

import (
	"context"
	"time"

	json "github.com/goccy/go-json"
	"github.com/gomodule/redigo/redis"
	"github.com/rs/zerolog/log"

	"github.com/thebtf/spiral/pkg/models"
)

const (
	cacheKeyPrefix  = "spiral:archetype:"
	defaultCacheTTL = 10 * time.Minute
	methodLimit     = 6
)

// MethodSource is the database view of archetype method scores.
type MethodSource interface {
	BestMethods(ctx context.Context, archetypeID string, limit int) ([]models.Method, error)
}

// Lookup caches archetype methods in Redis in front of the database.
// Redis is optional; without it (or when it is down) every call goes to
// the database and the caller never notices.
type Lookup struct {
	source MethodSource
	pool   *redis.Pool
	ttl    time.Duration
}

// NewLookup creates a lookup. redisAddr may be empty to run without a cache.
func NewLookup(source MethodSource, redisAddr string) *Lookup {
	l := &Lookup{source: source, ttl: defaultCacheTTL}
	if redisAddr != "" {
		l.pool = &redis.Pool{
			MaxIdle:     3,
			IdleTimeout: 240 * time.Second,
			DialContext: func(ctx context.Context) (redis.Conn, error) {
				return redis.DialContext(ctx, "tcp", redisAddr)
			},
		}
	}
	return l
}

// Close releases the Redis pool, if any.
func (l *Lookup) Close() error {
	if l.pool == nil {
		return nil
	}
	return l.pool.Close()
}

// BestMethods returns the proven methods for an archetype, best first.
// ok is false when the archetype has no recorded methods or the database
// is unreachable - the engine treats both the same way.
func (l *Lookup) BestMethods(ctx context.Context, archetypeID string) ([]models.Method, bool) {
	if archetypeID == "" {
		return nil, false
	}

	if methods, hit := l.cacheGet(ctx, archetypeID); hit {
		return methods, len(methods) > 0
	}

	methods, err := l.source.BestMethods(ctx, archetypeID, methodLimit)
	if err != nil {
		log.Warn().Err(err).Str("archetypeId", archetypeID).Msg("Archetype method lookup failed")
		return nil, false
	}

	l.cacheSet(ctx, archetypeID, methods)
	return methods, len(methods) > 0
}

// cacheGet reads the cached method list. Any Redis problem is a miss.
func (l *Lookup) cacheGet(ctx context.Context, archetypeID string) ([]models.Method, bool) {
	if l.pool == nil {
		return nil, false
	}
	conn, err := l.pool.GetContext(ctx)
	if err != nil {
		log.Debug().Err(err).Msg("Redis unavailable, skipping archetype cache")
		return nil, false
	}
	defer conn.Close()

	data, err := redis.Bytes(conn.Do("GET", cacheKeyPrefix+archetypeID))
	if err != nil {
		return nil, false
	}
	var methods []models.Method
	if err := json.Unmarshal(data, &methods); err != nil {
		return nil, false
	}
	return methods, true
}

// cacheSet stores the method list with a TTL. Negative results are cached
// too, so a missing archetype does not hammer the database.
func (l *Lookup) cacheSet(ctx context.Context, archetypeID string, methods []models.Method) {
	if l.pool == nil {
		return
	}
	conn, err := l.pool.GetContext(ctx)
	if err != nil {
		return
	}
	defer conn.Close()

	data, err := json.Marshal(methods)
	if err != nil {
		return
	}
	if _, err := conn.Do("SETEX", cacheKeyPrefix+archetypeID, int(l.ttl.Seconds()), data); err != nil {
		log.Debug().Err(err).Msg("Archetype cache write failed")
	}
}
