package api

import (
	"context"
	"time"

	"github.com/rs/zerolog/log"
	"github.com/travigo/disruptions/pkg/config"
	"github.com/travigo/disruptions/pkg/database"
	"github.com/travigo/disruptions/pkg/realtime/disruptiontracker"
	"github.com/urfave/cli/v2"
)

func RegisterCLI() *cli.Command {
	return &cli.Command{
		Name:  "web-api",
		Usage: "Provides the disruption introspection API",
		Subcommands: []*cli.Command{
			{
				Name:  "run",
				Usage: "run web api server following the stored disruptions",
				Flags: []cli.Flag{
					&cli.StringFlag{
						Name:  "listen",
						Usage: "listen target for the web server, overrides the config",
					},
					&cli.DurationFlag{
						Name:  "sync-interval",
						Value: 30 * time.Second,
						Usage: "how often to reload the stored disruptions",
					},
				},
				Action: func(c *cli.Context) error {
					cfg, err := config.Load(c.String("config"))
					if err != nil {
						return err
					}
					if c.String("listen") != "" {
						cfg.API.Listen = c.String("listen")
					}

					if err := database.Connect(cfg.MongoDB, 2*time.Minute); err != nil {
						return err
					}

					engine, err := disruptiontracker.SetupEngine(cfg, disruptiontracker.WithStore(database.NewDisruptionStore()))
					if err != nil {
						return err
					}

					go followStore(c.Context, engine, c.Duration("sync-interval"))

					return SetupServer(cfg.API.Listen, engine.Manager(), engine.Handle())
				},
			},
		},
	}
}

type syncer interface {
	Sync(ctx context.Context) (int, error)
}

// followStore syncs the engine every interval until the context is done
func followStore(ctx context.Context, engine syncer, interval time.Duration) {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		changed, err := engine.Sync(ctx)
		if err != nil {
			log.Error().Err(err).Msg("Failed to sync disruptions")
		} else if changed > 0 {
			log.Info().Int("changed", changed).Msg("Synced disruptions")
		}

		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
		}
	}
}
