package store

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/quakecast/quake-delivery-service/internal/domain/model"
	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"
	"go.mongodb.org/mongo-driver/mongo/readpref"
)

const (
	DefaultCollection = "push_subscriptions"
	pingTimeout       = 2 * time.Second
)

// MongoStore persists subscriptions in a collection with a unique endpoint index.
type MongoStore struct {
	client *mongo.Client
	coll   *mongo.Collection
}

// NewMongoStore connects lazily: the driver dials in the background, so an unreachable
// server surfaces through Available and ErrStoreUnavailable rather than at startup.
func NewMongoStore(ctx context.Context, uri, database, collection string) (*MongoStore, error) {
	if collection == "" {
		collection = DefaultCollection
	}

	client, err := mongo.Connect(ctx, options.Client().
		ApplyURI(uri).
		SetServerSelectionTimeout(pingTimeout))
	if err != nil {
		return nil, fmt.Errorf("mongo connect: %w", err)
	}

	return &MongoStore{
		client: client,
		coll:   client.Database(database).Collection(collection),
	}, nil
}

// EnsureIndexes creates the unique endpoint index.
func (s *MongoStore) EnsureIndexes(ctx context.Context) error {
	_, err := s.coll.Indexes().CreateOne(ctx, mongo.IndexModel{
		Keys:    bson.D{{Key: "endpoint", Value: 1}},
		Options: options.Index().SetUnique(true).SetName("endpoint_unique"),
	})
	return wrapUnavailable(err)
}

func (s *MongoStore) Available(ctx context.Context) bool {
	ctx, cancel := context.WithTimeout(ctx, pingTimeout)
	defer cancel()
	return s.client.Ping(ctx, readpref.Primary()) == nil
}

func (s *MongoStore) Exists(ctx context.Context, endpoint string) (bool, error) {
	n, err := s.coll.CountDocuments(ctx, bson.M{"endpoint": endpoint}, options.Count().SetLimit(1))
	if err != nil {
		return false, wrapUnavailable(err)
	}
	return n > 0, nil
}

func (s *MongoStore) Create(ctx context.Context, sub *model.PushSubscription) error {
	_, err := s.coll.InsertOne(ctx, sub)
	if mongo.IsDuplicateKeyError(err) {
		return model.ErrDuplicateSubscription
	}
	return wrapUnavailable(err)
}

func (s *MongoStore) FindAll(ctx context.Context) ([]*model.PushSubscription, error) {
	cur, err := s.coll.Find(ctx, bson.M{}, options.Find().SetSort(bson.D{{Key: "created_at", Value: 1}}))
	if err != nil {
		return nil, wrapUnavailable(err)
	}
	defer cur.Close(ctx)

	var out []*model.PushSubscription
	if err := cur.All(ctx, &out); err != nil {
		return nil, wrapUnavailable(err)
	}
	return out, nil
}

func (s *MongoStore) Delete(ctx context.Context, endpoint string) error {
	_, err := s.coll.DeleteOne(ctx, bson.M{"endpoint": endpoint})
	return wrapUnavailable(err)
}

func (s *MongoStore) Close(ctx context.Context) error {
	return s.client.Disconnect(ctx)
}

// wrapUnavailable maps connectivity failures onto model.ErrStoreUnavailable so callers
// can answer with a distinct status instead of a generic failure.
func wrapUnavailable(err error) error {
	if err == nil {
		return nil
	}
	if mongo.IsNetworkError(err) || mongo.IsTimeout(err) || errors.Is(err, mongo.ErrClientDisconnected) {
		return fmt.Errorf("%w: %w", model.ErrStoreUnavailable, err)
	}
	return err
}
