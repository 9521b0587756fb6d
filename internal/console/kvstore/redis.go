package kvstore

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"

	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"

	"github.com/amoylab/webconsole/internal/common/cnst"
	"github.com/amoylab/webconsole/internal/common/config"
)

const scanCount = 256

// RedisStore implements Store using Redis strings
type RedisStore struct {
	logger *zap.Logger
	client redis.UniversalClient
	prefix string
}

var _ Store = (*RedisStore)(nil)

// NewRedisStore creates a new Redis-based store
func NewRedisStore(ctx context.Context, logger *zap.Logger, cfg config.RedisConfig) (*RedisStore, error) {
	addrs := strings.Split(cfg.Addr, ",")
	var client redis.UniversalClient
	switch cfg.ClusterType {
	case cnst.RedisClusterTypeSentinel:
		client = redis.NewFailoverClient(&redis.FailoverOptions{
			MasterName:    cfg.MasterName,
			SentinelAddrs: addrs,
			Username:      cfg.Username,
			Password:      cfg.Password,
			DB:            cfg.DB,
		})
	case cnst.RedisClusterTypeCluster:
		client = redis.NewClusterClient(&redis.ClusterOptions{
			Addrs:    addrs,
			Username: cfg.Username,
			Password: cfg.Password,
		})
	case cnst.RedisClusterTypeSingle, "":
		client = redis.NewClient(&redis.Options{
			Addr:     cfg.Addr,
			Username: cfg.Username,
			Password: cfg.Password,
			DB:       cfg.DB,
		})
	default:
		return nil, fmt.Errorf("%w: %s", cnst.ErrUnsupportedClusterType, cfg.ClusterType)
	}

	// Test connection
	if err := client.Ping(ctx).Err(); err != nil {
		_ = client.Close()
		return nil, fmt.Errorf("failed to connect to Redis: %w", err)
	}

	prefix := cfg.Prefix
	if prefix == "" {
		prefix = "webconsole:"
	} else if !strings.HasSuffix(prefix, ":") {
		prefix = prefix + ":"
	}
	return &RedisStore{
		logger: logger.Named("kvstore.redis"),
		client: client,
		prefix: prefix,
	}, nil
}

// Get implements Store.Get
func (s *RedisStore) Get(ctx context.Context, key string) (string, error) {
	v, err := s.client.Get(ctx, s.prefix+key).Result()
	if errors.Is(err, redis.Nil) {
		return "", ErrNotFound
	}
	if err != nil {
		return "", fmt.Errorf("failed to get %s: %w", key, err)
	}
	return v, nil
}

// Query implements Store.Query
func (s *RedisStore) Query(ctx context.Context, prefix string) (map[string]string, error) {
	match := escapeGlob(s.prefix+prefix) + "*"

	var (
		mu   sync.Mutex
		keys []string
	)
	scan := func(ctx context.Context, c redis.UniversalClient) error {
		iter := c.Scan(ctx, 0, match, scanCount).Iterator()
		for iter.Next(ctx) {
			mu.Lock()
			keys = append(keys, iter.Val())
			mu.Unlock()
		}
		return iter.Err()
	}

	var err error
	if cc, ok := s.client.(*redis.ClusterClient); ok {
		err = cc.ForEachMaster(ctx, func(ctx context.Context, c *redis.Client) error {
			return scan(ctx, c)
		})
	} else {
		err = scan(ctx, s.client)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to scan %s: %w", prefix, err)
	}

	out := make(map[string]string, len(keys))
	for _, k := range keys {
		v, err := s.client.Get(ctx, k).Result()
		if errors.Is(err, redis.Nil) {
			continue
		}
		if err != nil {
			return nil, fmt.Errorf("failed to get %s: %w", k, err)
		}
		out[strings.TrimPrefix(k, s.prefix)] = v
	}
	return out, nil
}

// Put implements Store.Put
func (s *RedisStore) Put(ctx context.Context, key, value string) error {
	if err := s.client.Set(ctx, s.prefix+key, value, 0).Err(); err != nil {
		return fmt.Errorf("failed to put %s: %w", key, err)
	}
	return nil
}

// Delete implements Store.Delete
func (s *RedisStore) Delete(ctx context.Context, key string) error {
	if err := s.client.Del(ctx, s.prefix+key).Err(); err != nil {
		return fmt.Errorf("failed to delete %s: %w", key, err)
	}
	return nil
}

// Close implements Store.Close
func (s *RedisStore) Close() error {
	return s.client.Close()
}

func escapeGlob(s string) string {
	var sb strings.Builder
	for _, r := range s {
		switch r {
		case '*', '?', '[', ']', '\\':
			sb.WriteByte('\\')
		}
		sb.WriteRune(r)
	}
	return sb.String()
}
