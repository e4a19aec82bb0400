package bdd

import (
	"context"
	"fmt"

	"github.com/chirino/chat-service/internal/testutil/cucumber"
	"go.mongodb.org/mongo-driver/v2/bson"
	"go.mongodb.org/mongo-driver/v2/mongo"
	"go.mongodb.org/mongo-driver/v2/mongo/options"
)

// MongoTestDB implements cucumber.TestDB for MongoDB.
type MongoTestDB struct {
	DBURL  string
	DBName string
}

var _ cucumber.TestDB = (*MongoTestDB)(nil)

func (m *MongoTestDB) db(ctx context.Context) (*mongo.Client, *mongo.Database, error) {
	client, err := mongo.Connect(options.Client().ApplyURI(m.DBURL))
	if err != nil {
		return nil, nil, fmt.Errorf("mongo connect: %w", err)
	}
	return client, client.Database(m.DBName), nil
}

func (m *MongoTestDB) ClearAll(ctx context.Context) error {
	client, db, err := m.db(ctx)
	if err != nil {
		return err
	}
	defer client.Disconnect(ctx)

	for _, coll := range []string{"messages", "groups", "users"} {
		if _, err := db.Collection(coll).DeleteMany(ctx, bson.M{}); err != nil {
			return fmt.Errorf("cleanup: failed to clear %s: %w", coll, err)
		}
	}
	return nil
}

func (m *MongoTestDB) RawMessageText(ctx context.Context, messageID string) ([]byte, error) {
	client, db, err := m.db(ctx)
	if err != nil {
		return nil, err
	}
	defer client.Disconnect(ctx)

	var doc struct {
		Text []byte `bson:"text"`
	}
	if err := db.Collection("messages").FindOne(ctx, bson.M{"_id": messageID}).Decode(&doc); err != nil {
		return nil, fmt.Errorf("could not load message %s: %w", messageID, err)
	}
	return doc.Text, nil
}
