package disruptiontracker

import (
	"bytes"
	"compress/gzip"
	"context"
	"fmt"
	"io"
	"net/http"
	"time"

	"github.com/adjust/rmq/v5"
	"github.com/cenkalti/backoff/v4"
	"github.com/go-stomp/stomp/v3"
	"github.com/rs/zerolog/log"
	"github.com/travigo/disruptions/pkg/config"
	"github.com/travigo/disruptions/pkg/rabbitmq"
)

// StompFeed subscribes to a broker destination and queues every message as a feed event
type StompFeed struct {
	Feed  config.FeedConfig
	Queue rmq.Queue
}

func (s *StompFeed) Run(ctx context.Context) error {
	stompOptions := []func(*stomp.Conn) error{
		stomp.ConnOpt.Login(s.Feed.Username, s.Feed.Password),
	}
	conn, err := stomp.Dial("tcp", s.Feed.Address, stompOptions...)
	if err != nil {
		return fmt.Errorf("cannot connect to %s: %w", s.Feed.Address, err)
	}
	defer conn.Disconnect()

	sub, err := conn.Subscribe(s.Feed.Destination, stomp.AckAuto)
	if err != nil {
		return fmt.Errorf("cannot subscribe to %s: %w", s.Feed.Destination, err)
	}
	defer sub.Unsubscribe()

	log.Info().Str("feed", s.Feed.Name).Str("destination", s.Feed.Destination).Msg("Subscribed to feed")

	for {
		select {
		case <-ctx.Done():
			return nil
		case msg, ok := <-sub.C:
			if !ok {
				return fmt.Errorf("subscription to %s closed", s.Feed.Destination)
			}
			if msg.Err != nil {
				return msg.Err
			}

			body, err := decompress(msg.Body)
			if err != nil {
				log.Error().Err(err).Str("feed", s.Feed.Name).Msg("Cannot decode message body")
				continue
			}

			err = PublishEvent(s.Queue, &Event{
				Type:    EventTypeFeed,
				Source:  s.Feed.Name,
				Format:  FeedFormat(s.Feed.Format),
				Payload: body,
			})
			if err != nil {
				log.Error().Err(err).Str("feed", s.Feed.Name).Msg("Failed to queue feed message")
			}
		}
	}
}

// AMQPFeed consumes a RabbitMQ queue that a bridge fills with raw feed documents
type AMQPFeed struct {
	Feed  config.FeedConfig
	Queue rmq.Queue
}

func (a *AMQPFeed) Run(ctx context.Context) error {
	connection, err := rabbitmq.Connect(a.Feed.Address)
	if err != nil {
		return fmt.Errorf("cannot connect to broker: %w", err)
	}
	defer connection.Close()

	deliveries, err := connection.Consume(a.Feed.Destination)
	if err != nil {
		return err
	}

	log.Info().Str("feed", a.Feed.Name).Str("queue", a.Feed.Destination).Msg("Consuming feed")

	for {
		select {
		case <-ctx.Done():
			return nil
		case delivery, ok := <-deliveries:
			if !ok {
				return fmt.Errorf("consumer on %s closed", a.Feed.Destination)
			}

			body, err := decompress(delivery.Body)
			if err != nil {
				log.Error().Err(err).Str("feed", a.Feed.Name).Msg("Cannot decode message body")
				continue
			}

			err = PublishEvent(a.Queue, &Event{
				Type:    EventTypeFeed,
				Source:  a.Feed.Name,
				Format:  FeedFormat(a.Feed.Format),
				Payload: body,
			})
			if err != nil {
				log.Error().Err(err).Str("feed", a.Feed.Name).Msg("Failed to queue feed message")
			}
		}
	}
}

// HTTPFeed polls a URL and queues each response body as a feed event
type HTTPFeed struct {
	Feed   config.FeedConfig
	Queue  rmq.Queue
	Client *http.Client
}

func (h *HTTPFeed) Run(ctx context.Context) error {
	if h.Client == nil {
		h.Client = &http.Client{Timeout: 30 * time.Second}
	}

	ticker := time.NewTicker(h.Feed.Interval)
	defer ticker.Stop()

	for {
		retryBackoff := backoff.WithContext(backoff.NewExponentialBackOff(), ctx)
		err := backoff.RetryNotify(func() error {
			return h.poll(ctx)
		}, retryBackoff, func(err error, wait time.Duration) {
			log.Warn().Err(err).Str("feed", h.Feed.Name).Str("retry", wait.String()).Msg("Failed to poll feed")
		})
		if err != nil && ctx.Err() == nil {
			log.Error().Err(err).Str("feed", h.Feed.Name).Msg("Giving up on feed poll")
		}

		select {
		case <-ctx.Done():
			return nil
		case <-ticker.C:
		}
	}
}

func (h *HTTPFeed) poll(ctx context.Context) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, h.Feed.Address, nil)
	if err != nil {
		return backoff.Permanent(err)
	}
	if h.Feed.Username != "" {
		req.SetBasicAuth(h.Feed.Username, h.Feed.Password)
	}

	resp, err := h.Client.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return fmt.Errorf("unexpected status %s", resp.Status)
	}

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return err
	}

	log.Debug().Str("feed", h.Feed.Name).Int("bytes", len(body)).Msg("Polled feed")

	return PublishEvent(h.Queue, &Event{
		Type:    EventTypeFeed,
		Source:  h.Feed.Name,
		Format:  FeedFormat(h.Feed.Format),
		Payload: body,
	})
}

// decompress inflates gzip bodies and passes anything else through
func decompress(body []byte) ([]byte, error) {
	if len(body) < 2 || body[0] != 0x1f || body[1] != 0x8b {
		return body, nil
	}

	gzipDecoder, err := gzip.NewReader(bytes.NewReader(body))
	if err != nil {
		return nil, err
	}
	defer gzipDecoder.Close()

	return io.ReadAll(gzipDecoder)
}
