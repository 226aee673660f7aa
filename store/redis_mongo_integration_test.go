package store

import (
	"context"
	"fmt"
	"os"
	"testing"
	"time"

	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"
)

// exerciseBackend runs the contract every Backend must satisfy.
func exerciseBackend(t *testing.T, ctx context.Context, b Backend, key string) {
	t.Helper()

	_, ok, err := b.Get(ctx, key)
	require.NoError(t, err)
	require.False(t, ok)

	require.NoError(t, b.Apply(ctx, []Mutation{
		{Key: key, Value: []byte("1")},
		{Key: key + ":other", Value: []byte("2")},
	}))
	v, ok, err := b.Get(ctx, key)
	require.NoError(t, err)
	require.True(t, ok)
	assert.Equal(t, "1", string(v))

	require.NoError(t, b.Apply(ctx, []Mutation{
		{Key: key, Delete: true},
		{Key: key + ":other", Delete: true},
	}))
	_, ok, err = b.Get(ctx, key)
	require.NoError(t, err)
	assert.False(t, ok)
}

func TestRedis_Integration(t *testing.T) {
	addr := os.Getenv("REDIS_ADDR")
	if addr == "" {
		t.Skip("REDIS_ADDR is empty; set it to a live Redis to run integration test")
	}
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	client := redis.NewClient(&redis.Options{Addr: addr})
	defer client.Close()
	require.NoError(t, client.Ping(ctx).Err())

	exerciseBackend(t, ctx, NewRedis(client, "sunnyflow-test:"), fmt.Sprintf("k-%d", time.Now().UnixNano()))
}

func TestMongo_Integration(t *testing.T) {
	uri := os.Getenv("MONGO_URI")
	if uri == "" {
		t.Skip("MONGO_URI is empty; set it to a live MongoDB to run integration test")
	}
	ctx, cancel := context.WithTimeout(context.Background(), 20*time.Second)
	defer cancel()

	client, err := mongo.Connect(ctx, options.Client().ApplyURI(uri))
	require.NoError(t, err)
	defer func() { _ = client.Disconnect(context.Background()) }()
	require.NoError(t, client.Ping(ctx, nil))

	exerciseBackend(t, ctx, NewMongo(client, "sunnyflow_test"), fmt.Sprintf("k-%d", time.Now().UnixNano()))
}

func TestMemory_BackendContract(t *testing.T) {
	exerciseBackend(t, context.Background(), NewMemory(), "k")
}
