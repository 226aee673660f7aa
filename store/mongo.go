package store

import (
	"context"
	"errors"
	"fmt"
	"time"

	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"
)

type kvDocument struct {
	Key       string    `bson:"_id"`
	Value     []byte    `bson:"value"`
	UpdatedAt time.Time `bson:"updated_at"`
}

// Mongo keeps one document per key. Multi-key atomicity needs a replica set;
// with UseTransactions off, Apply is an ordered bulk write.
type Mongo struct {
	client          *mongo.Client
	kv              *mongo.Collection
	UseTransactions bool
}

func NewMongo(client *mongo.Client, dbName string) *Mongo {
	return &Mongo{
		client: client,
		kv:     client.Database(dbName).Collection("kv"),
	}
}

func (s *Mongo) Get(ctx context.Context, key string) ([]byte, bool, error) {
	ctx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()

	var doc kvDocument
	err := s.kv.FindOne(ctx, bson.M{"_id": key}).Decode(&doc)
	if err != nil {
		if errors.Is(err, mongo.ErrNoDocuments) {
			return nil, false, nil
		}
		return nil, false, fmt.Errorf("store: mongo find: %w", err)
	}
	return doc.Value, true, nil
}

func (s *Mongo) Apply(ctx context.Context, muts []Mutation) error {
	models := make([]mongo.WriteModel, 0, len(muts))
	now := time.Now().UTC()
	for _, m := range muts {
		if m.Key == "" {
			return ErrEmptyKey
		}
		if m.Delete {
			models = append(models, mongo.NewDeleteOneModel().SetFilter(bson.M{"_id": m.Key}))
			continue
		}
		models = append(models, mongo.NewReplaceOneModel().
			SetFilter(bson.M{"_id": m.Key}).
			SetReplacement(kvDocument{Key: m.Key, Value: m.Value, UpdatedAt: now}).
			SetUpsert(true))
	}
	if len(models) == 0 {
		return nil
	}

	ctx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()

	write := func(ctx context.Context) error {
		_, err := s.kv.BulkWrite(ctx, models, options.BulkWrite().SetOrdered(true))
		return err
	}

	if !s.UseTransactions {
		if err := write(ctx); err != nil {
			return fmt.Errorf("store: mongo bulk write: %w", err)
		}
		return nil
	}

	sess, err := s.client.StartSession()
	if err != nil {
		return fmt.Errorf("store: mongo session: %w", err)
	}
	defer sess.EndSession(ctx)

	_, err = sess.WithTransaction(ctx, func(sc mongo.SessionContext) (interface{}, error) {
		return nil, write(sc)
	})
	if err != nil {
		return fmt.Errorf("store: mongo transaction: %w", err)
	}
	return nil
}
