package disruptiontracker

import (
	"context"
	"fmt"

	"github.com/kr/pretty"
	"github.com/rs/zerolog/log"
	"github.com/travigo/disruptions/pkg/config"
	"github.com/travigo/disruptions/pkg/dataimporter/formats/disruptionfile"
	"github.com/travigo/disruptions/pkg/dataset"
	"github.com/travigo/disruptions/pkg/redis_client"
	"github.com/urfave/cli/v2"
)

// FileEvents turns a disruption document into queue events, deletes first
func FileEvents(document *disruptionfile.Document, source string) []*Event {
	var events []*Event
	for _, id := range document.Delete {
		events = append(events, &Event{Type: EventTypeDelete, Source: source, DisruptionID: id})
	}
	for _, disruption := range document.Disruptions {
		events = append(events, &Event{Type: EventTypeApply, Source: source, Disruption: disruption})
	}
	return events
}

type variantView struct {
	URI            string
	IsAdapted      bool
	AdaptedPattern string
	CausingImpacts []string
	Stops          []string
}

func tripVariants(ds *dataset.Dataset, uri string) ([]variantView, error) {
	trip, exists := ds.TripByURI(uri)
	if !exists {
		return nil, fmt.Errorf("unknown trip %s", uri)
	}

	var variants []variantView
	for _, variant := range ds.Variants(trip.MetaTrip) {
		view := variantView{
			URI:            variant.URI,
			IsAdapted:      variant.IsAdapted,
			AdaptedPattern: ds.Patterns.Days(variant.AdaptedPattern).Format(ds.Days),
			CausingImpacts: variant.CausingImpacts.Sorted(),
		}
		for _, stopTime := range variant.StopTimes {
			view.Stops = append(view.Stops, ds.StopPointURI(stopTime.StopPoint))
		}
		variants = append(variants, view)
	}
	return variants, nil
}

func RegisterToolsCLI() []*cli.Command {
	return []*cli.Command{
		{
			Name:      "apply-file",
			Usage:     "queue the disruptions and deletes of a YAML or JSON document",
			ArgsUsage: "<file>",
			Action: func(c *cli.Context) error {
				if c.NArg() != 1 {
					return fmt.Errorf("expected exactly one disruption file")
				}
				document, err := disruptionfile.ReadFile(c.Args().First())
				if err != nil {
					return err
				}

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

				events := FileEvents(document, "file")
				for _, event := range events {
					if err := PublishEvent(queue, event); err != nil {
						return err
					}
				}

				log.Info().Int("events", len(events)).Str("queue", cfg.Queue.Name).Msg("Queued disruption file")

				return nil
			},
		},
		{
			Name:      "inspect",
			Usage:     "apply a disruption document to the schedule offline and print the variants of a trip",
			ArgsUsage: "<file>",
			Flags: []cli.Flag{
				&cli.StringFlag{
					Name:     "trip",
					Usage:    "uri of the trip to print",
					Required: true,
				},
			},
			Action: func(c *cli.Context) error {
				cfg, err := config.Load(c.String("config"))
				if err != nil {
					return err
				}

				engine, err := SetupEngine(cfg)
				if err != nil {
					return err
				}

				if c.NArg() > 0 {
					document, err := disruptionfile.ReadFile(c.Args().First())
					if err != nil {
						return err
					}
					engine.HandleEvents(context.Background(), FileEvents(document, "file"))
				}

				variants, err := tripVariants(engine.Handle().Current(), c.String("trip"))
				if err != nil {
					return err
				}

				pretty.Println(variants)

				return nil
			},
		},
	}
}
