package disruptiontracker

import (
	"fmt"
	"time"

	"github.com/rs/zerolog/log"
	"github.com/travigo/disruptions/pkg/config"
	"github.com/travigo/disruptions/pkg/dataimporter/formats/gtfs"
	"github.com/travigo/disruptions/pkg/dataset"
	"github.com/travigo/disruptions/pkg/disruption"
	"github.com/travigo/disruptions/pkg/transforms"
)

// LoadDataset builds the base schedule configured for this instance
func LoadDataset(cfg *config.Config) (*dataset.Dataset, error) {
	if cfg.GTFSPath == "" {
		return nil, fmt.Errorf("no GTFS schedule configured")
	}

	startTime := time.Now()

	schedule, err := gtfs.ReadScheduleFile(cfg.GTFSPath)
	if err != nil {
		return nil, err
	}

	ds, err := schedule.Build(time.Time{}, cfg.Days)
	if err != nil {
		return nil, err
	}

	log.Info().
		Str("path", cfg.GTFSPath).
		Int("trips", len(ds.Trips)).
		Int("stoppoints", len(ds.StopPoints)).
		Str("Time", time.Since(startTime).String()).
		Msg("Loaded schedule")

	return ds, nil
}

// SetupEngine builds an engine over the configured schedule with the configured
// transforms and filter, extra options come last
func SetupEngine(cfg *config.Config, extra ...EngineOption) (*Engine, error) {
	ds, err := LoadDataset(cfg)
	if err != nil {
		return nil, err
	}

	transformsClient, err := transforms.SetupClient(cfg.TransformsPath)
	if err != nil {
		return nil, err
	}
	filter, err := transforms.NewFilter(cfg.Filter)
	if err != nil {
		return nil, err
	}

	options := []EngineOption{
		WithTransforms(transformsClient),
		WithFilter(filter),
	}
	options = append(options, extra...)

	manager := disruption.NewManager(ds, disruption.NewMetrics())

	return NewEngine(manager, dataset.NewHandle(ds), options...), nil
}
