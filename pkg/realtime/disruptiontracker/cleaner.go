package disruptiontracker

import (
	"time"

	"github.com/adjust/rmq/v5"
	"github.com/rs/zerolog/log"
	"github.com/travigo/disruptions/pkg/redis_client"
)

// StartCleaner returns deliveries left unacked by dead engines to their queue
func StartCleaner() {
	cleaner := rmq.NewCleaner(redis_client.QueueConnection)

	log.Info().Msg("Starting disruption queue cleaner process")

	for range time.Tick(5 * time.Minute) {
		returned, err := cleaner.Clean()
		if err != nil {
			log.Error().Err(err).Msg("Failed to clean")
			continue
		}

		if returned != 0 {
			log.Info().Int64("returned", returned).Msg("Cleaned queue")
		}
	}
}
