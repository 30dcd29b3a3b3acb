package connect

import (
	"context"
	"fmt"
	"os"
	"time"

	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"
)

// MongoDBClient is the shared, init-once connection handle. Every request
// reuses the driver's internal pool; nothing is torn down per request.
var MongoDBClient *mongo.Client

func MongoDBConnect() (*mongo.Client, error) {
	if MongoDBClient != nil {
		return MongoDBClient, nil
	}

	uri := os.Getenv("MONGODB_URI")

	ctx, cancel := context.WithTimeout(context.Background(), time.Second*10)
	defer cancel()

	clientOptions := options.Client().
		ApplyURI(uri).
		SetMaxPoolSize(10).
		SetMinPoolSize(2).
		SetServerSelectionTimeout(5 * time.Second)

	var err error
	MongoDBClient, err = mongo.Connect(ctx, clientOptions)
	if err != nil {
		return nil, fmt.Errorf("failed to connect to MongoDB: %v", err)
	}

	if err := MongoDBClient.Ping(ctx, nil); err != nil {
		MongoDBClient = nil
		return nil, fmt.Errorf("failed to ping MongoDB: %v", err)
	}

	return MongoDBClient, nil
}

func MongoDBDisconnect() error {
	if MongoDBClient == nil {
		return nil
	}
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	err := MongoDBClient.Disconnect(ctx)
	if err != nil {
		return fmt.Errorf("failed to disconnect MongoDB: %v", err)
	}
	MongoDBClient = nil
	return nil
}

// EnsureIndexes creates the indexes the booking core depends on. The partial
// unique slot index is the storage-level backstop for the reservation race:
// it only covers PENDING and PAID bookings, so terminal bookings release
// their slot. Requires MongoDB 6.0+ for $in in partial filter expressions.
func EnsureIndexes(ctx context.Context, client *mongo.Client, dbName string) error {
	bookings := client.Database(dbName).Collection("bookings")

	_, err := bookings.Indexes().CreateMany(ctx, []mongo.IndexModel{
		{
			Keys: bson.D{
				{Key: "therapist_id", Value: 1},
				{Key: "date", Value: 1},
				{Key: "time_slot", Value: 1},
			},
			Options: options.Index().
				SetUnique(true).
				SetPartialFilterExpression(bson.M{
					"payment_status": bson.M{"$in": []string{"PENDING", "PAID"}},
				}),
		},
		{
			Keys:    bson.D{{Key: "order_id", Value: 1}},
			Options: options.Index().SetUnique(true),
		},
		{
			Keys: bson.D{{Key: "payment_id", Value: 1}},
			Options: options.Index().
				SetUnique(true).
				SetPartialFilterExpression(bson.M{
					"payment_id": bson.M{"$type": "string"},
				}),
		},
	})
	if err != nil {
		return fmt.Errorf("failed to create booking indexes: %v", err)
	}
	return nil
}
