package detect

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"io"
	"os"
	"sync"
	"time"

	"github.com/pkg/errors"
	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"
	"golang.org/x/sync/singleflight"

	"github.com/mind-engage/gabarito/internal/metrics"
)

// Cache stores successful detections keyed by image and layout.
type Cache interface {
	Get(ctx context.Context, key string) (Detection, bool, error)
	Set(ctx context.Context, key string, d Detection) error
}

type RedisCache struct {
	client redis.UniversalClient
	ttl    time.Duration
}

func NewRedisCache(client redis.UniversalClient, ttl time.Duration) *RedisCache {
	return &RedisCache{client: client, ttl: ttl}
}

func (c *RedisCache) Get(ctx context.Context, key string) (Detection, bool, error) {
	data, err := c.client.Get(ctx, key).Bytes()
	if errors.Is(err, redis.Nil) {
		return nil, false, nil
	}
	if err != nil {
		return nil, false, errors.Wrap(err, "detection cache get")
	}
	var d Detection
	if err := json.Unmarshal(data, &d); err != nil {
		return nil, false, errors.Wrap(err, "detection cache decode")
	}
	return d, true, nil
}

func (c *RedisCache) Set(ctx context.Context, key string, d Detection) error {
	data, err := json.Marshal(d)
	if err != nil {
		return errors.Wrap(err, "detection cache encode")
	}
	return errors.Wrap(c.client.Set(ctx, key, data, c.ttl).Err(), "detection cache set")
}

// CachedDetector serves repeated uploads of the same image from the cache and
// collapses concurrent detections of one image into a single process run.
// Each caller waits on its own context; the run is aborted only once every
// caller has gone. Cache errors are logged and treated as misses; failures
// are never cached.
type CachedDetector struct {
	next      Detector
	cache     Cache
	namespace string
	logger    *zap.Logger
	metrics   *metrics.Metrics

	mu      sync.Mutex
	flights map[string]*flight
	group   singleflight.Group
}

func NewCachedDetector(next Detector, cache Cache, namespace string, logger *zap.Logger, m *metrics.Metrics) *CachedDetector {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &CachedDetector{
		next:      next,
		cache:     cache,
		namespace: namespace,
		logger:    logger,
		metrics:   m,
		flights:   make(map[string]*flight),
	}
}

func (c *CachedDetector) Detect(ctx context.Context, req Request) (Detection, error) {
	key, err := c.key(req)
	if err != nil {
		// unreadable image; let the detector report it
		return c.next.Detect(ctx, req)
	}
	d, ok, err := c.cache.Get(ctx, key)
	switch {
	case err != nil:
		c.metrics.CacheLookup("error")
		c.logger.Warn("detection cache unavailable", zap.String("key", key), zap.Error(err))
	case ok:
		c.metrics.CacheLookup("hit")
		return d, nil
	default:
		c.metrics.CacheLookup("miss")
	}

	ch, release := c.join(ctx, key, req)
	defer release()
	select {
	case <-ctx.Done():
		return nil, fail(ReasonCanceled, "detection canceled", ctx.Err())
	case res := <-ch:
		if err := ctx.Err(); err != nil {
			return nil, fail(ReasonCanceled, "detection canceled", err)
		}
		if res.Err != nil {
			return nil, res.Err
		}
		return res.Val.(Detection).Clone(), nil
	}
}

// flight is the shared run for one cache key. Its context is detached from
// every caller and canceled when the last waiter leaves; the runner's own
// timeout bounds it otherwise.
type flight struct {
	ctx     context.Context
	cancel  context.CancelFunc
	waiters int
}

func (c *CachedDetector) join(ctx context.Context, key string, req Request) (<-chan singleflight.Result, func()) {
	c.mu.Lock()
	defer c.mu.Unlock()
	f, ok := c.flights[key]
	if !ok {
		runCtx, cancel := context.WithCancel(context.WithoutCancel(ctx))
		f = &flight{ctx: runCtx, cancel: cancel}
		c.flights[key] = f
	}
	f.waiters++

	ch := c.group.DoChan(key, func() (any, error) {
		d, err := c.next.Detect(f.ctx, req)
		if err != nil {
			return nil, err
		}
		if err := c.cache.Set(f.ctx, key, d); err != nil {
			c.logger.Warn("detection cache write failed", zap.String("key", key), zap.Error(err))
		}
		return d, nil
	})
	return ch, func() {
		c.mu.Lock()
		defer c.mu.Unlock()
		f.waiters--
		if f.waiters == 0 {
			f.cancel()
			delete(c.flights, key)
			c.group.Forget(key)
		}
	}
}

func (c *CachedDetector) key(req Request) (string, error) {
	f, err := os.Open(req.ImagePath)
	if err != nil {
		return "", err
	}
	defer f.Close()
	img := sha256.New()
	if _, err := io.Copy(img, f); err != nil {
		return "", err
	}
	cfg, err := json.Marshal(req.Config)
	if err != nil {
		return "", err
	}
	layout := sha256.Sum256(cfg)
	return "gabarito:detect:" + c.namespace + ":" + hex.EncodeToString(img.Sum(nil)) + ":" + hex.EncodeToString(layout[:8]), nil
}
