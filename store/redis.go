package store

import (
	"context"
	"errors"
	"fmt"

	"github.com/redis/go-redis/v9"
)

// Redis keeps each key as a plain string value under a namespace prefix.
type Redis struct {
	client redis.UniversalClient
	prefix string
}

func NewRedis(client redis.UniversalClient, prefix string) *Redis {
	return &Redis{client: client, prefix: prefix}
}

func (r *Redis) Get(ctx context.Context, key string) ([]byte, bool, error) {
	v, err := r.client.Get(ctx, r.prefix+key).Bytes()
	if err != nil {
		if errors.Is(err, redis.Nil) {
			return nil, false, nil
		}
		return nil, false, fmt.Errorf("store: redis get: %w", err)
	}
	return v, true, nil
}

// Apply runs the mutations inside MULTI/EXEC.
func (r *Redis) Apply(ctx context.Context, muts []Mutation) error {
	for _, m := range muts {
		if m.Key == "" {
			return ErrEmptyKey
		}
	}
	_, err := r.client.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
		for _, m := range muts {
			if m.Delete {
				pipe.Del(ctx, r.prefix+m.Key)
				continue
			}
			pipe.Set(ctx, r.prefix+m.Key, m.Value, 0)
		}
		return nil
	})
	if err != nil {
		return fmt.Errorf("store: redis exec: %w", err)
	}
	return nil
}
