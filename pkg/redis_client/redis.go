package redis_client

import (
	"context"

	"github.com/adjust/rmq/v5"
	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog/log"
	"github.com/travigo/disruptions/pkg/config"
)

const connectionTag = "disruptions"

var Client *redis.Client
var QueueConnection rmq.Connection

func Connect(redisConfig config.RedisConfig) error {
	options := &redis.Options{
		Addr: redisConfig.Address,
		DB:   redisConfig.Database,
	}
	if redisConfig.Password != "" {
		options.Password = redisConfig.Password
	}

	Client = redis.NewClient(options)

	statusCmd := Client.Ping(context.Background())
	err := statusCmd.Err()
	if err != nil {
		return err
	}

	errors := make(chan error, 10)
	go logQueueErrors(errors)

	QueueConnection, err = rmq.OpenConnectionWithRedisClient(connectionTag, Client, errors)
	if err != nil {
		return err
	}

	log.Info().Str("address", redisConfig.Address).Int("database", redisConfig.Database).Msg("Connected to Redis")

	return nil
}

func logQueueErrors(errors <-chan error) {
	for err := range errors {
		log.Error().Err(err).Msg("Queue connection error")
	}
}
