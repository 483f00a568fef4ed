// Package redis implementa el contador de numeración fiscal sobre Redis.
package redis

import (
	"context"
	"errors"
	"fmt"

	"github.com/redis/go-redis/v9"

	"github.com/jhoicas/emisor-fiscal/internal/domain/entity"
	"github.com/jhoicas/emisor-fiscal/internal/domain/repository"
)

const keyPrefix = "fiscal:seq:"

var _ repository.SequenceRepository = (*SequenceRepo)(nil)

// SequenceRepo usa INCR, atómico en el servidor. Requiere persistencia AOF
// (appendfsync always o everysec) para no retroceder tras un reinicio.
type SequenceRepo struct {
	rdb redis.Cmdable
}

// NewSequenceRepository construye el adaptador sobre cualquier cliente go-redis.
func NewSequenceRepository(rdb redis.Cmdable) *SequenceRepo {
	return &SequenceRepo{rdb: rdb}
}

func redisKey(key entity.SequenceKey) string { return keyPrefix + key.String() }

func (r *SequenceRepo) Next(ctx context.Context, key entity.SequenceKey) (int64, error) {
	n, err := r.rdb.Incr(ctx, redisKey(key)).Result()
	if err != nil {
		return 0, fmt.Errorf("redis INCR %s: %w", key, err)
	}
	return n, nil
}

func (r *SequenceRepo) Current(ctx context.Context, key entity.SequenceKey) (int64, error) {
	n, err := r.rdb.Get(ctx, redisKey(key)).Int64()
	if errors.Is(err, redis.Nil) {
		return 0, nil
	}
	if err != nil {
		return 0, fmt.Errorf("redis GET %s: %w", key, err)
	}
	return n, nil
}

// Seed usa SETNX: no pisa un contador existente.
func (r *SequenceRepo) Seed(ctx context.Context, key entity.SequenceKey, last int64) error {
	if err := r.rdb.SetNX(ctx, redisKey(key), last, 0).Err(); err != nil {
		return fmt.Errorf("redis SETNX %s: %w", key, err)
	}
	return nil
}
