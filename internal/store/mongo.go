package store

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"
	"go.mongodb.org/mongo-driver/mongo/readpref"

	"github.com/nextlevelbuilder/goanswer/internal/history"
)

// MongoStore persists conversation records as documents keyed by user ID.
// The client is a single long-lived handle shared by all concurrent
// pipelines; the driver is safe for that.
type MongoStore struct {
	client *mongo.Client
	coll   *mongo.Collection
	log    *slog.Logger
}

// NewMongoStore connects and pings within connectTimeout. A server that
// cannot be reached in that window is an error; the caller decides what to
// fall back to. The same timeout is installed as the client's server
// selection timeout so later operations fail fast instead of hanging.
func NewMongoStore(ctx context.Context, uri, database, collection string) (*MongoStore, error) {
	ctx, cancel := context.WithTimeout(ctx, connectTimeout)
	defer cancel()

	opts := options.Client().
		ApplyURI(uri).
		SetServerSelectionTimeout(connectTimeout)

	client, err := mongo.Connect(ctx, opts)
	if err != nil {
		return nil, fmt.Errorf("connect: %w", err)
	}
	if err := client.Ping(ctx, readpref.Primary()); err != nil {
		_ = client.Disconnect(context.Background())
		return nil, fmt.Errorf("ping: %w", err)
	}

	return &MongoStore{
		client: client,
		coll:   client.Database(database).Collection(collection),
		log:    slog.Default().With("component", "store"),
	}, nil
}

func (s *MongoStore) Load(ctx context.Context, userID string) *ConversationRecord {
	var rec ConversationRecord
	err := s.coll.FindOne(ctx, bson.M{"_id": userID}).Decode(&rec)
	switch {
	case err == nil:
		if rec.History == nil {
			rec.History = make([]history.Turn, 0)
		}
		return &rec
	case errors.Is(err, mongo.ErrNoDocuments):
		return newRecord()
	default:
		s.log.Error("history lookup failed, using empty history", "user_id", userID, "error", err)
		return newRecord()
	}
}

func (s *MongoStore) Save(ctx context.Context, userID string, turns []history.Turn, conversationID string, info *UserInfo) error {
	set := bson.M{
		"conversation_history": history.Cap(turns),
		"conversation_id":      conversationID,
	}
	if info != nil {
		set["user_info"] = info
	}
	update := bson.M{
		"$set":         set,
		"$currentDate": bson.M{"last_updated": true},
	}

	_, err := s.coll.UpdateOne(ctx, bson.M{"_id": userID}, update, options.Update().SetUpsert(true))
	if err != nil {
		return fmt.Errorf("save history for %s: %w", userID, err)
	}
	return nil
}

func (s *MongoStore) Name() string { return KindMongo }

func (s *MongoStore) Close(ctx context.Context) error {
	return s.client.Disconnect(ctx)
}
