package watermark

import (
	"context"
	"errors"
	"fmt"
	"time"

	goredis "github.com/redis/go-redis/v9"
)

type RedisStore struct {
	rdb *goredis.Client
	key string
}

func NewRedisStore(rdb *goredis.Client, key string) *RedisStore {
	if key == "" {
		key = "healthgraph:watermark"
	}
	return &RedisStore{rdb: rdb, key: key}
}

func (s *RedisStore) Load(ctx context.Context) (time.Time, bool, error) {
	b, err := s.rdb.Get(ctx, s.key).Bytes()
	if errors.Is(err, goredis.Nil) {
		return time.Time{}, false, nil
	}
	if err != nil {
		return time.Time{}, false, fmt.Errorf("watermark: redis get %s: %w", s.key, err)
	}
	return decode(b)
}

func (s *RedisStore) Save(ctx context.Context, t time.Time) error {
	b, err := encode(t)
	if err != nil {
		return err
	}
	if err := s.rdb.Set(ctx, s.key, b, 0).Err(); err != nil {
		return fmt.Errorf("watermark: redis set %s: %w", s.key, err)
	}
	return nil
}

func (s *RedisStore) Clear(ctx context.Context) error {
	if err := s.rdb.Del(ctx, s.key).Err(); err != nil {
		return fmt.Errorf("watermark: redis del %s: %w", s.key, err)
	}
	return nil
}
