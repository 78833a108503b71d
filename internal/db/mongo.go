package db

import (
	"context"
	"fmt"
	"time"

	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"
	"go.mongodb.org/mongo-driver/mongo/readpref"
	"go.mongodb.org/mongo-driver/mongo/writeconcern"

	"github.com/movesintl/moves-study-hub-sub001/internal/logger"
)

// ConnectDB opens a Mongo client for the document store backend and returns
// the named database. Writes wait for a majority so an optimistic version
// check never reads its own unacknowledged write.
func ConnectDB(uri, dbName string, maxPoolSize uint64) (*mongo.Client, *mongo.Database, error) {
	opts := options.Client().
		ApplyURI(uri).
		SetAppName("studyhub").
		SetServerSelectionTimeout(5 * time.Second).
		SetWriteConcern(writeconcern.Majority())
	if maxPoolSize > 0 {
		opts.SetMaxPoolSize(maxPoolSize)
	}

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	client, err := mongo.Connect(ctx, opts)
	if err != nil {
		return nil, nil, fmt.Errorf("failed to connect to MongoDB: %w", err)
	}
	if err := client.Ping(ctx, readpref.Primary()); err != nil {
		_ = client.Disconnect(context.Background())
		return nil, nil, fmt.Errorf("failed to ping MongoDB: %w", err)
	}

	logger.Info().Str("database", dbName).Uint64("max_pool", maxPoolSize).Msg("connected to MongoDB")
	return client, client.Database(dbName), nil
}

// DisconnectDB closes the client. A nil client is a no-op.
func DisconnectDB(client *mongo.Client) error {
	if client == nil {
		return nil
	}
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := client.Disconnect(ctx); err != nil {
		return fmt.Errorf("failed to disconnect MongoDB: %w", err)
	}
	logger.Info().Msg("MongoDB connection closed")
	return nil
}
