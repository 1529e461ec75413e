package database

import (
	"context"
	"time"

	"github.com/cenkalti/backoff/v4"
	"github.com/rs/zerolog/log"
	"github.com/travigo/disruptions/pkg/config"
	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"
)

type MongoInstance struct {
	Client   *mongo.Client
	Database *mongo.Database
}

var MongoGlobalInstance *MongoInstance

const connectTimeout = 30 * time.Second

// Connect opens the Mongo connection, retrying with exponential backoff until maxElapsed
func Connect(mongoConfig config.MongoConfig, maxElapsed time.Duration) error {
	retryBackoff := backoff.NewExponentialBackOff()
	retryBackoff.MaxElapsedTime = maxElapsed

	return backoff.RetryNotify(func() error {
		return connectMongoDB(mongoConfig)
	}, retryBackoff, func(err error, wait time.Duration) {
		log.Warn().Err(err).Str("retry", wait.String()).Msg("Failed to connect to MongoDB")
	})
}

func connectMongoDB(mongoConfig config.MongoConfig) error {
	ctx, cancel := context.WithTimeout(context.Background(), connectTimeout)
	defer cancel()

	client, err := mongo.Connect(ctx, options.Client().ApplyURI(mongoConfig.Connection))
	if err != nil {
		return err
	}

	err = client.Ping(ctx, nil)
	if err != nil {
		return err
	}

	MongoGlobalInstance = &MongoInstance{
		Client:   client,
		Database: client.Database(mongoConfig.Database),
	}

	createIndexes()

	log.Info().Str("database", mongoConfig.Database).Msg("Connected to MongoDB")

	return nil
}

func GetCollection(collectionName string) *mongo.Collection {
	return MongoGlobalInstance.Database.Collection(collectionName)
}

func Ping(ctx context.Context) error {
	if MongoGlobalInstance == nil {
		return mongo.ErrClientDisconnected
	}
	return MongoGlobalInstance.Client.Ping(ctx, nil)
}

func createIndexes() {
	disruptionsCollection := GetCollection(DisruptionsCollection)

	_, err := disruptionsCollection.Indexes().CreateMany(context.Background(), []mongo.IndexModel{
		{
			Keys:    bson.D{{Key: "id", Value: 1}},
			Options: options.Index().SetUnique(true),
		},
		{
			Keys: bson.D{{Key: "updatedat", Value: 1}},
		},
	})
	if err != nil {
		log.Error().Err(err).Msg("Creating disruptions indexes")
	}
}
