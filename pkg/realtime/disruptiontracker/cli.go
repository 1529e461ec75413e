package disruptiontracker

import (
	"context"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/rs/zerolog/log"
	"github.com/sourcegraph/conc"
	"github.com/travigo/disruptions/pkg/config"
	"github.com/travigo/disruptions/pkg/database"
	"github.com/travigo/disruptions/pkg/elastic_client"
	"github.com/travigo/disruptions/pkg/redis_client"
	"github.com/urfave/cli/v2"
)

const connectTimeout = 2 * time.Minute

func RegisterCLI() *cli.Command {
	return &cli.Command{
		Name:  "engine",
		Usage: "Disruption engine applies queued disruptions to the schedule",
		Subcommands: []*cli.Command{
			{
				Name:  "run",
				Usage: "run the single writing instance of the disruption engine",
				Action: func(c *cli.Context) error {
					cfg, err := config.Load(c.String("config"))
					if err != nil {
						return err
					}

					if err := database.Connect(cfg.MongoDB, connectTimeout); err != nil {
						return err
					}
					if err := elastic_client.Connect(cfg.Elasticsearch); err != nil {
						return err
					}
					if err := redis_client.Connect(cfg.Redis); err != nil {
						return err
					}

					engine, err := SetupEngine(cfg,
						WithStore(database.NewDisruptionStore()),
						WithDeduper(NewDeduper(redis_client.Client, cfg.DedupeTTL)),
					)
					if err != nil {
						return err
					}
					if err := engine.Restore(c.Context); err != nil {
						return err
					}

					if err := StartConsumer(engine, cfg.Queue.Name, cfg.Queue.BatchSize, cfg.Queue.PollInterval); err != nil {
						return err
					}

					go StartStatsServer(cfg.Stats.Listen, engine)

					waitForSignal()

					<-redis_client.QueueConnection.StopAllConsuming() // wait for all Consume() calls to finish
					elastic_client.WaitUntilQueueEmpty()

					return nil
				},
			},
			{
				Name:  "cleaner",
				Usage: "run the queue cleaner for the disruption queue",
				Action: func(c *cli.Context) error {
					cfg, err := config.Load(c.String("config"))
					if err != nil {
						return err
					}
					if err := redis_client.Connect(cfg.Redis); err != nil {
						return err
					}

					go StartCleaner()

					waitForSignal()

					return nil
				},
			},
		},
	}
}

func RegisterFeedCLI() *cli.Command {
	return &cli.Command{
		Name:  "feed",
		Usage: "Feed readers push raw disruption feeds onto the engine queue",
		Subcommands: []*cli.Command{
			{
				Name:  "run",
				Usage: "run every configured feed reader",
				Flags: []cli.Flag{
					&cli.StringSliceFlag{
						Name:  "name",
						Usage: "only run the named feeds",
					},
				},
				Action: func(c *cli.Context) error {
					cfg, err := config.Load(c.String("config"))
					if err != nil {
						return err
					}
					if err := redis_client.Connect(cfg.Redis); err != nil {
						return err
					}

					queue, err := redis_client.QueueConnection.OpenQueue(cfg.Queue.Name)
					if err != nil {
						return err
					}

					only := map[string]bool{}
					for _, name := range c.StringSlice("name") {
						only[name] = true
					}

					ctx, cancel := context.WithCancel(c.Context)
					defer cancel()

					var wg conc.WaitGroup
					for _, feed := range cfg.Feeds {
						if len(only) > 0 && !only[feed.Name] {
							continue
						}

						feed := feed
						wg.Go(func() {
							runFeed(ctx, feed, func() feedRunner {
								switch feed.Type {
								case "stomp":
									return &StompFeed{Feed: feed, Queue: queue}
								case "amqp":
									return &AMQPFeed{Feed: feed, Queue: queue}
								default:
									return &HTTPFeed{Feed: feed, Queue: queue}
								}
							})
						})
					}

					go func() {
						waitForSignal()
						cancel()
					}()

					wg.Wait()

					return nil
				},
			},
		},
	}
}

type feedRunner interface {
	Run(ctx context.Context) error
}

// runFeed restarts a failed feed reader until ctx is cancelled
func runFeed(ctx context.Context, feed config.FeedConfig, newRunner func() feedRunner) {
	for ctx.Err() == nil {
		log.Info().Str("feed", feed.Name).Str("type", feed.Type).Msg("Starting feed")

		if err := newRunner().Run(ctx); err != nil {
			log.Error().Err(err).Str("feed", feed.Name).Msg("Feed stopped")
		}

		select {
		case <-ctx.Done():
		case <-time.After(10 * time.Second):
		}
	}
}

func waitForSignal() {
	signals := make(chan os.Signal, 1)
	signal.Notify(signals, syscall.SIGINT, syscall.SIGTERM)

	<-signals // wait for signal
	go func() {
		<-signals // hard exit on second signal (in case shutdown gets stuck)
		os.Exit(1)
	}()
}
