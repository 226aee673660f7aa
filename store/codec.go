package store

import (
	"context"
	"encoding/json"
	"fmt"
	"strconv"
)

// GetInt reads a decimal integer. A missing key reads as 0.
func GetInt(ctx context.Context, kv KV, key string) (int64, error) {
	raw, ok, err := kv.Get(ctx, key)
	if err != nil || !ok {
		return 0, err
	}
	n, err := strconv.ParseInt(string(raw), 10, 64)
	if err != nil {
		return 0, fmt.Errorf("store: decode int %q: %w", key, err)
	}
	return n, nil
}

func PutInt(ctx context.Context, kv KV, key string, n int64) error {
	return kv.Put(ctx, key, []byte(strconv.FormatInt(n, 10)))
}

// GetString reads a string value. A missing key reads as "".
func GetString(ctx context.Context, kv KV, key string) (string, error) {
	raw, ok, err := kv.Get(ctx, key)
	if err != nil || !ok {
		return "", err
	}
	return string(raw), nil
}

func PutString(ctx context.Context, kv KV, key, value string) error {
	return kv.Put(ctx, key, []byte(value))
}

// GetJSON decodes the value under key into dst and reports whether it existed.
func GetJSON(ctx context.Context, kv KV, key string, dst any) (bool, error) {
	raw, ok, err := kv.Get(ctx, key)
	if err != nil || !ok {
		return false, err
	}
	if err := json.Unmarshal(raw, dst); err != nil {
		return false, fmt.Errorf("store: decode %q: %w", key, err)
	}
	return true, nil
}

func PutJSON(ctx context.Context, kv KV, key string, v any) error {
	raw, err := json.Marshal(v)
	if err != nil {
		return fmt.Errorf("store: encode %q: %w", key, err)
	}
	return kv.Put(ctx, key, raw)
}
