package disruptiontracker

import (
	"context"
	"time"

	"github.com/adjust/rmq/v5"
	"github.com/rs/zerolog/log"
	"github.com/travigo/disruptions/pkg/redis_client"
)

// StartConsumer attaches the engine to the queue. There is exactly one consumer
// as the engine must be the only writer of its dataset.
func StartConsumer(engine *Engine, queueName string, batchSize int64, pollInterval time.Duration) error {
	log.Info().Str("queue", queueName).Msg("Starting disruption consumer")

	queue, err := redis_client.QueueConnection.OpenQueue(queueName)
	if err != nil {
		return err
	}
	if err := queue.StartConsuming(batchSize, pollInterval); err != nil {
		return err
	}

	if _, err := queue.AddBatchConsumer("disruption-engine", batchSize, 2*time.Second, NewBatchConsumer(engine)); err != nil {
		return err
	}

	return nil
}

type BatchConsumer struct {
	engine *Engine
}

func NewBatchConsumer(engine *Engine) *BatchConsumer {
	return &BatchConsumer{engine: engine}
}

func (consumer *BatchConsumer) Consume(batch rmq.Deliveries) {
	var events []*Event
	var accepted rmq.Deliveries

	for _, delivery := range batch {
		event, err := DecodeEvent([]byte(delivery.Payload()))
		if err != nil {
			log.Error().Err(err).Msg("Rejecting disruption event")
			if err := delivery.Reject(); err != nil {
				log.Error().Err(err).Msg("Failed to reject disruption event")
			}
			continue
		}

		events = append(events, event)
		accepted = append(accepted, delivery)
	}

	consumer.engine.HandleEvents(context.Background(), events)

	if ackErrors := accepted.Ack(); len(ackErrors) > 0 {
		for _, err := range ackErrors {
			log.Error().Err(err).Msg("Failed to ack disruption event")
		}
	}
}

// PublishEvent pushes an event onto the queue for the engine to pick up
func PublishEvent(queue rmq.Queue, event *Event) error {
	if event.ReceivedAt.IsZero() {
		event.ReceivedAt = time.Now()
	}

	eventBytes, err := event.MarshalBinary()
	if err != nil {
		return err
	}

	return queue.PublishBytes(eventBytes)
}
