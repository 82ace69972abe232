package cache

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"errors"
	"log/slog"
	"slices"
	"strings"
	"time"

	"github.com/redis/go-redis/v9"

	"catalogue/internal/activitylog/models"
	"catalogue/pkg/platform/circuit"
)

const (
	searchKeyPrefix     = "activitylog:search:"
	versionKeyPrefix    = "activitylog:version:"
	generationKeyPrefix = "activitylog:generation:"

	DefaultTTL = time.Minute

	// generationTTL outlives any search that could still be filling. An
	// expired generation only makes a pending fill skip.
	generationTTL = 24 * time.Hour
)

// errStaleFill aborts a fill whose versions were written after it read the
// inner store.
var errStaleFill = errors.New("search result is older than a version write")

// Client is the subset of go-redis the cache needs. *redis.Client
// satisfies it.
type Client interface {
	redis.Cmdable
	Watch(ctx context.Context, fn func(*redis.Tx) error, keys ...string) error
}

// Store is the event store being cached.
type Store interface {
	Search(ctx context.Context, q models.Query) ([]*models.EventRecord, error)
	Insert(ctx context.Context, e *models.EventRecord) error
	FindByID(ctx context.Context, id string) (*models.EventRecord, error)
	Delete(ctx context.Context, id string) error
}

// RedisCache is a read-through cache for Search results. Every cached query
// is indexed under each version it covers, so a write to a version drops
// all queries that could include it. Each write also bumps a per-version
// generation; a fill is stored only if the generations it saw before
// reading the inner store are unchanged, so a slow search cannot cache a
// result that predates a concurrent write. Redis failures degrade to the inner
// store and are never returned. After repeated failures the breaker opens
// and cached reads are skipped until writes to Redis succeed again, since
// an invalidation may have been lost in the meantime.
type RedisCache struct {
	inner   Store
	client  Client
	ttl     time.Duration
	logger  *slog.Logger
	breaker *circuit.Breaker
}

type Option func(*RedisCache)

func WithTTL(ttl time.Duration) Option {
	return func(c *RedisCache) {
		if ttl > 0 {
			c.ttl = ttl
		}
	}
}

func WithLogger(logger *slog.Logger) Option {
	return func(c *RedisCache) {
		if logger != nil {
			c.logger = logger
		}
	}
}

func WithBreaker(b *circuit.Breaker) Option {
	return func(c *RedisCache) {
		if b != nil {
			c.breaker = b
		}
	}
}

func New(inner Store, client Client, opts ...Option) *RedisCache {
	c := &RedisCache{
		inner:   inner,
		client:  client,
		ttl:     DefaultTTL,
		logger:  slog.Default(),
		breaker: circuit.New("activitylog-search-cache"),
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

func (c *RedisCache) Search(ctx context.Context, q models.Query) ([]*models.EventRecord, error) {
	key := searchKey(q)

	if !c.breaker.IsOpen() {
		if events, ok := c.lookup(ctx, key); ok {
			return events, nil
		}
	}

	genKeys := generationKeys(q.VersionIDs)
	seen, snapErr := c.generations(ctx, c.client, genKeys)
	if snapErr != nil {
		c.failed(ctx, "search cache generation read failed", snapErr)
	}

	events, err := c.inner.Search(ctx, q)
	if err != nil {
		return nil, err
	}
	if snapErr == nil {
		c.fill(ctx, key, q.VersionIDs, genKeys, seen, events)
	}
	return events, nil
}

func (c *RedisCache) lookup(ctx context.Context, key string) ([]*models.EventRecord, bool) {
	cached, err := c.client.Get(ctx, key).Bytes()
	if errors.Is(err, redis.Nil) {
		c.succeeded(ctx)
		return nil, false
	}
	if err != nil {
		c.failed(ctx, "search cache read failed", err)
		return nil, false
	}
	c.succeeded(ctx)

	var events []*models.EventRecord
	if err := json.Unmarshal(cached, &events); err != nil {
		c.logger.WarnContext(ctx, "discarding undecodable cached search", "key", key)
		return nil, false
	}
	return events, true
}

func (c *RedisCache) fill(ctx context.Context, key string, versionIDs, genKeys, seen []string, events []*models.EventRecord) {
	payload, err := json.Marshal(events)
	if err != nil {
		return
	}
	err = c.client.Watch(ctx, func(tx *redis.Tx) error {
		current, err := c.generations(ctx, tx, genKeys)
		if err != nil {
			return err
		}
		if !slices.Equal(current, seen) {
			return errStaleFill
		}
		_, err = tx.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
			pipe.Set(ctx, key, payload, c.ttl)
			for _, id := range versionIDs {
				vk := versionKeyPrefix + id
				pipe.SAdd(ctx, vk, key)
				pipe.Expire(ctx, vk, c.ttl)
			}
			return nil
		})
		return err
	}, genKeys...)
	switch {
	case errors.Is(err, errStaleFill), errors.Is(err, redis.TxFailedErr):
		c.logger.DebugContext(ctx, "skipping stale search cache fill", "key", key)
		c.succeeded(ctx)
	case err != nil:
		c.failed(ctx, "search cache write failed", err)
	default:
		c.succeeded(ctx)
	}
}

// generations returns the current generation of every key, "" for unset.
func (c *RedisCache) generations(ctx context.Context, client redis.Cmdable, genKeys []string) ([]string, error) {
	if len(genKeys) == 0 {
		return nil, nil
	}
	values, err := client.MGet(ctx, genKeys...).Result()
	if err != nil {
		return nil, err
	}
	out := make([]string, len(values))
	for i, v := range values {
		if str, ok := v.(string); ok {
			out[i] = str
		}
	}
	return out, nil
}

func (c *RedisCache) Insert(ctx context.Context, e *models.EventRecord) error {
	if err := c.inner.Insert(ctx, e); err != nil {
		return err
	}
	c.invalidate(ctx, e.VersionID)
	return nil
}

func (c *RedisCache) FindByID(ctx context.Context, id string) (*models.EventRecord, error) {
	return c.inner.FindByID(ctx, id)
}

func (c *RedisCache) Delete(ctx context.Context, id string) error {
	existing, err := c.inner.FindByID(ctx, id)
	if err != nil {
		return err
	}
	if err := c.inner.Delete(ctx, id); err != nil {
		return err
	}
	c.invalidate(ctx, existing.VersionID)
	return nil
}

// invalidate bumps the version generation before dropping cached queries,
// so fills already in flight for this version are discarded too.
func (c *RedisCache) invalidate(ctx context.Context, versionID string) {
	gk := generationKeyPrefix + versionID
	_, err := c.client.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
		pipe.Incr(ctx, gk)
		pipe.Expire(ctx, gk, generationTTL)
		return nil
	})
	if err == nil {
		vk := versionKeyPrefix + versionID
		var keys []string
		keys, err = c.client.SMembers(ctx, vk).Result()
		if err == nil {
			err = c.client.Del(ctx, append(keys, vk)...).Err()
		}
	}
	if err != nil {
		c.failed(ctx, "search cache invalidation failed", err, "version_id", versionID)
		return
	}
	c.succeeded(ctx)
}

func (c *RedisCache) failed(ctx context.Context, msg string, err error, attrs ...any) {
	_, change := c.breaker.RecordFailure()
	c.logger.WarnContext(ctx, msg, append(attrs, "error", err)...)
	if change.Opened {
		c.logger.ErrorContext(ctx, "search cache disabled after repeated redis failures",
			"breaker", c.breaker.Name(),
		)
	}
}

func (c *RedisCache) succeeded(ctx context.Context) {
	if _, change := c.breaker.RecordSuccess(); change.Closed {
		c.logger.InfoContext(ctx, "search cache re-enabled", "breaker", c.breaker.Name())
	}
}

func generationKeys(versionIDs []string) []string {
	keys := make([]string, len(versionIDs))
	for i, id := range versionIDs {
		keys[i] = generationKeyPrefix + id
	}
	return keys
}

// searchKey is independent of version id order.
func searchKey(q models.Query) string {
	ids := slices.Clone(q.VersionIDs)
	slices.Sort(ids)
	h := sha256.New()
	h.Write([]byte(string(q.LogCategory)))
	h.Write([]byte{0})
	h.Write([]byte(string(q.AudienceType)))
	h.Write([]byte{0})
	h.Write([]byte(strings.Join(ids, "\x00")))
	return searchKeyPrefix + hex.EncodeToString(h.Sum(nil))
}
