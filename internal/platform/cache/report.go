package cache

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strconv"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"github.com/redis/go-redis/v9"
	"golang.org/x/sync/singleflight"
)

// versionMemoTTL bounds how long a memoised version is trusted without a
// fresh read, covering bumps lost while the subscription reconnects.
const versionMemoTTL = 30 * time.Second

// InvalidationChannel receives "<org>:<kind>:<version>" payloads after a bump.
const InvalidationChannel = "ledger.reports.bump"

// ReportCache is a versioned read-through cache for organization-scoped reports.
// Each (organization, kind) pair carries its own version counter; bumping the
// counter orphans every key built under the previous version. While Listen is
// subscribed, versions are memoised in process and kept current by the bumps
// other instances publish.
type ReportCache struct {
	client *redis.Client
	ttl    time.Duration
	group  singleflight.Group

	listening atomic.Bool
	mu        sync.RWMutex
	versions  map[string]memoEntry
}

type memoEntry struct {
	ver int64
	at  time.Time
}

// NewReportCache builds a cache. A nil client disables caching.
func NewReportCache(client *redis.Client, ttl time.Duration) *ReportCache {
	return &ReportCache{client: client, ttl: ttl, versions: make(map[string]memoEntry)}
}

func versionKey(orgID int64, kind string) string {
	return fmt.Sprintf("ledger:version:%d:%s", orgID, kind)
}

// Version returns the current version for the pair, initialising it when missing.
func (c *ReportCache) Version(ctx context.Context, orgID int64, kind string) (int64, error) {
	if c == nil || c.client == nil {
		return 0, nil
	}
	key := versionKey(orgID, kind)
	if ver, ok := c.memoised(key); ok {
		return ver, nil
	}
	ver, err := c.client.Get(ctx, key).Int64()
	if errors.Is(err, redis.Nil) {
		if err := c.client.SetNX(ctx, key, 1, 0).Err(); err != nil {
			return 0, err
		}
		ver, err = c.client.Get(ctx, key).Int64()
	}
	if err != nil {
		return 0, err
	}
	c.remember(key, ver)
	return ver, nil
}

func (c *ReportCache) memoised(key string) (int64, bool) {
	if !c.listening.Load() {
		return 0, false
	}
	c.mu.RLock()
	defer c.mu.RUnlock()
	e, ok := c.versions[key]
	if !ok || time.Since(e.at) > versionMemoTTL {
		return 0, false
	}
	return e.ver, true
}

// remember only moves a memoised version forward, so a slow read cannot undo
// a bump that arrived meanwhile.
func (c *ReportCache) remember(key string, ver int64) {
	if !c.listening.Load() {
		return
	}
	c.mu.Lock()
	defer c.mu.Unlock()
	if ver >= c.versions[key].ver {
		c.versions[key] = memoEntry{ver: ver, at: time.Now()}
	}
}

func (c *ReportCache) forgetAll() {
	c.mu.Lock()
	defer c.mu.Unlock()
	clear(c.versions)
}

// BuildKey composes a versioned key such as ledger:1:trial_balance:2024-01-31:v3.
func (c *ReportCache) BuildKey(ctx context.Context, orgID int64, kind string, parts ...string) (string, error) {
	base := strings.Join(append([]string{"ledger", strconv.FormatInt(orgID, 10), kind}, parts...), ":")
	if c == nil || c.client == nil {
		return base, nil
	}
	ver, err := c.Version(ctx, orgID, kind)
	if err != nil {
		return "", err
	}
	return fmt.Sprintf("%s:v%d", base, ver), nil
}

// FetchJSON loads key into dest or populates it with loader. Concurrent misses
// on the same key share one loader call. Redis failures fall back to the loader.
func (c *ReportCache) FetchJSON(ctx context.Context, key string, dest any, loader func(context.Context) (any, error)) error {
	if loader == nil {
		return errors.New("cache: loader required")
	}
	if c == nil || c.client == nil {
		return load(ctx, loader, dest)
	}
	payload, err := c.client.Get(ctx, key).Bytes()
	if err == nil {
		return json.Unmarshal(payload, dest)
	}
	if !errors.Is(err, redis.Nil) {
		return load(ctx, loader, dest)
	}
	raw, err, _ := c.group.Do(key, func() (any, error) {
		value, err := loader(ctx)
		if err != nil {
			return nil, err
		}
		raw, err := json.Marshal(value)
		if err != nil {
			return nil, err
		}
		_ = c.client.Set(ctx, key, raw, c.ttl).Err()
		return raw, nil
	})
	if err != nil {
		return err
	}
	return json.Unmarshal(raw.([]byte), dest)
}

func load(ctx context.Context, loader func(context.Context) (any, error), dest any) error {
	value, err := loader(ctx)
	if err != nil {
		return err
	}
	raw, err := json.Marshal(value)
	if err != nil {
		return err
	}
	return json.Unmarshal(raw, dest)
}

// Invalidate bumps the version of every kind for orgID and publishes the new versions.
func (c *ReportCache) Invalidate(ctx context.Context, orgID int64, kinds ...string) error {
	if c == nil || c.client == nil {
		return nil
	}
	var errs []error
	for _, kind := range kinds {
		ver, err := c.client.Incr(ctx, versionKey(orgID, kind)).Result()
		if err != nil {
			errs = append(errs, err)
			continue
		}
		c.remember(versionKey(orgID, kind), ver)
		payload := fmt.Sprintf("%d:%s:%d", orgID, kind, ver)
		if err := c.client.Publish(ctx, InvalidationChannel, payload).Err(); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}

// Listen subscribes to version bumps and enables the in-process version memo
// until ctx ends. It returns once the subscription is confirmed.
func (c *ReportCache) Listen(ctx context.Context) error {
	if c == nil || c.client == nil {
		return nil
	}
	pubsub := c.client.Subscribe(ctx, InvalidationChannel)
	if _, err := pubsub.Receive(ctx); err != nil {
		_ = pubsub.Close()
		return fmt.Errorf("cache: subscribe %s: %w", InvalidationChannel, err)
	}
	c.listening.Store(true)
	go func() {
		defer func() {
			c.listening.Store(false)
			c.forgetAll()
			_ = pubsub.Close()
		}()
		ch := pubsub.Channel()
		for {
			select {
			case <-ctx.Done():
				return
			case msg, ok := <-ch:
				if !ok {
					return
				}
				key, ver, ok := parseBump(msg.Payload)
				if !ok {
					continue
				}
				c.remember(key, ver)
			}
		}
	}()
	return nil
}

func parseBump(payload string) (string, int64, bool) {
	parts := strings.Split(payload, ":")
	if len(parts) != 3 {
		return "", 0, false
	}
	orgID, err := strconv.ParseInt(parts[0], 10, 64)
	if err != nil {
		return "", 0, false
	}
	ver, err := strconv.ParseInt(parts[2], 10, 64)
	if err != nil {
		return "", 0, false
	}
	return versionKey(orgID, parts[1]), ver, true
}
