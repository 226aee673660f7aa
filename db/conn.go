package db

import (
	"context"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/redis/go-redis/v9"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"

	"sunnyflow/config"
	"sunnyflow/store"
)

// NewPool constructs a pgx connection pool using the provided connection string.
func NewPool(ctx context.Context, connString string) (*pgxpool.Pool, error) {
	if connString == "" {
		return nil, fmt.Errorf("db: empty connection string")
	}

	cfg, err := pgxpool.ParseConfig(connString)
	if err != nil {
		return nil, fmt.Errorf("db: parse config: %w", err)
	}

	return pgxpool.NewWithConfig(ctx, cfg)
}

// Conn is an opened keyspace backend plus the handles it owns.
type Conn struct {
	Backend store.Backend
	// Pool is set whenever DATABASE_URL was needed, for the postgres store or
	// the outbox.
	Pool *pgxpool.Pool

	closers []func() error
}

// Close releases every handle in reverse order of opening.
func (c *Conn) Close() error {
	var errs []error
	for i := len(c.closers) - 1; i >= 0; i-- {
		if err := c.closers[i](); err != nil {
			errs = append(errs, err)
		}
	}
	c.closers = nil
	return errors.Join(errs...)
}

func (c *Conn) onClose(fn func() error) { c.closers = append(c.closers, fn) }

// Open connects the backend selected by cfg and makes sure its schema exists.
func Open(ctx context.Context, cfg *config.Config) (*Conn, error) {
	c := &Conn{}
	if err := c.open(ctx, cfg); err != nil {
		_ = c.Close()
		return nil, err
	}
	return c, nil
}

func (c *Conn) open(ctx context.Context, cfg *config.Config) error {
	if cfg.Store == config.StorePostgres || cfg.Outbox {
		pool, err := NewPool(ctx, cfg.DatabaseURL)
		if err != nil {
			return err
		}
		c.onClose(func() error { pool.Close(); return nil })
		if err := pool.Ping(ctx); err != nil {
			return fmt.Errorf("db: ping postgres: %w", err)
		}
		c.Pool = pool
	}

	switch cfg.Store {
	case config.StoreMemory:
		c.Backend = store.NewMemory()
	case config.StorePostgres:
		pg := store.NewPostgres(c.Pool)
		if err := pg.EnsureSchema(ctx); err != nil {
			return err
		}
		c.Backend = pg
	case config.StoreSQLite:
		lite, err := store.OpenSQLite(ctx, cfg.SQLitePath)
		if err != nil {
			return err
		}
		c.onClose(lite.Close)
		c.Backend = lite
	case config.StoreRedis:
		client := redis.NewClient(&redis.Options{Addr: cfg.RedisAddr})
		c.onClose(client.Close)
		if err := client.Ping(ctx).Err(); err != nil {
			return fmt.Errorf("db: ping redis: %w", err)
		}
		c.Backend = store.NewRedis(client, cfg.RedisPrefix)
	case config.StoreMongo:
		client, err := mongo.Connect(ctx, options.Client().ApplyURI(cfg.MongoURI))
		if err != nil {
			return fmt.Errorf("db: connect mongo: %w", err)
		}
		c.onClose(func() error { return client.Disconnect(context.Background()) })
		if err := client.Ping(ctx, nil); err != nil {
			return fmt.Errorf("db: ping mongo: %w", err)
		}
		c.Backend = store.NewMongo(client, cfg.MongoDB)
	default:
		return fmt.Errorf("db: unknown store %q: %w", cfg.Store, config.ErrInvalidConfig)
	}
	return nil
}
