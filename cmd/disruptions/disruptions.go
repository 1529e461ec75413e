package main

import (
	"os"
	"time"

	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
	"github.com/travigo/disruptions/pkg/api"
	"github.com/travigo/disruptions/pkg/realtime/disruptiontracker"
	"github.com/urfave/cli/v2"

	_ "time/tzdata"
)

func main() {
	if os.Getenv("DISRUPTIONS_LOG_FORMAT") != "JSON" {
		log.Logger = log.Output(zerolog.ConsoleWriter{Out: os.Stdout, TimeFormat: time.RFC3339})
	}

	if os.Getenv("DISRUPTIONS_DEBUG") == "YES" {
		log.Logger = log.Logger.Level(zerolog.DebugLevel)
	} else {
		log.Logger = log.Logger.Level(zerolog.InfoLevel)
	}

	commands := []*cli.Command{
		disruptiontracker.RegisterCLI(),
		disruptiontracker.RegisterFeedCLI(),
		api.RegisterCLI(),
	}
	commands = append(commands, disruptiontracker.RegisterToolsCLI()...)

	app := &cli.App{
		Name:        "disruptions",
		Description: "Applies transit disruptions to an in-memory schedule and serves the result",
		Flags: []cli.Flag{
			&cli.StringFlag{
				Name:    "config",
				Aliases: []string{"c"},
				Usage:   "path to the YAML configuration file",
				EnvVars: []string{"DISRUPTIONS_CONFIG"},
			},
		},
		Commands: commands,
	}

	err := app.Run(os.Args)
	if err != nil {
		log.Fatal().Err(err).Send()
	}
}
