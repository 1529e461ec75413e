package disruptiontracker

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/rs/zerolog/log"
	"github.com/travigo/disruptions/pkg/ctdf"
	"github.com/travigo/disruptions/pkg/dataimporter/formats/gtfs"
	"github.com/travigo/disruptions/pkg/dataimporter/formats/siri_sx"
	"github.com/travigo/disruptions/pkg/dataset"
	"github.com/travigo/disruptions/pkg/disruption"
	"github.com/travigo/disruptions/pkg/elastic_client"
	"github.com/travigo/disruptions/pkg/transforms"
)

// Store persists applied disruptions so a restarted engine can rebuild its state
type Store interface {
	Upsert(ctx context.Context, disruption *ctdf.Disruption) error
	Delete(ctx context.Context, id string) error
	LoadAll(ctx context.Context) ([]*ctdf.Disruption, error)
}

// Engine is the single writer of the working dataset. Every change goes through
// HandlePayloads and is published as a new snapshot once the batch is done.
type Engine struct {
	manager *disruption.Manager
	handle  *dataset.Handle

	store      Store
	dedupe     *Deduper
	transforms *transforms.Client
	filter     *transforms.Filter

	// ids seen in the last full feed of each source
	sources map[string]map[string]bool
}

type EngineOption func(*Engine)

func WithStore(store Store) EngineOption {
	return func(e *Engine) { e.store = store }
}

func WithDeduper(dedupe *Deduper) EngineOption {
	return func(e *Engine) { e.dedupe = dedupe }
}

func WithTransforms(client *transforms.Client) EngineOption {
	return func(e *Engine) { e.transforms = client }
}

func WithFilter(filter *transforms.Filter) EngineOption {
	return func(e *Engine) { e.filter = filter }
}

func NewEngine(manager *disruption.Manager, handle *dataset.Handle, options ...EngineOption) *Engine {
	engine := &Engine{
		manager: manager,
		handle:  handle,
		sources: map[string]map[string]bool{},
	}
	for _, option := range options {
		option(engine)
	}
	return engine
}

func (e *Engine) Manager() *disruption.Manager {
	return e.manager
}

func (e *Engine) Handle() *dataset.Handle {
	return e.handle
}

// Restore applies every stored disruption in the order they were last updated
func (e *Engine) Restore(ctx context.Context) error {
	if e.store == nil {
		return nil
	}

	disruptions, err := e.store.LoadAll(ctx)
	if err != nil {
		return fmt.Errorf("failed to load stored disruptions: %w", err)
	}

	restored := 0
	for _, stored := range disruptions {
		if _, err := e.manager.Apply(stored); err != nil {
			log.Warn().Err(err).Str("disruption", stored.ID).Msg("Stored disruption no longer applies")
			continue
		}
		restored++
	}

	e.manager.Publish(e.handle)

	log.Info().Int("stored", len(disruptions)).Int("restored", restored).Msg("Restored disruptions")

	return nil
}

// Sync brings the engine in line with the store without writing to it.
// Read replicas call it periodically to follow the writing engine.
func (e *Engine) Sync(ctx context.Context) (int, error) {
	if e.store == nil {
		return 0, nil
	}

	disruptions, err := e.store.LoadAll(ctx)
	if err != nil {
		return 0, fmt.Errorf("failed to load stored disruptions: %w", err)
	}

	changed := 0
	present := map[string]bool{}
	for _, stored := range disruptions {
		present[stored.ID] = true

		existing, exists := e.manager.Disruption(stored.ID)
		if exists && existing.UpdatedAt.Equal(stored.UpdatedAt) {
			continue
		}
		if _, err := e.manager.Update(stored); err != nil {
			log.Warn().Err(err).Str("disruption", stored.ID).Msg("Stored disruption no longer applies")
		}
		changed++
	}

	for _, registered := range e.manager.Disruptions() {
		if present[registered.ID] {
			continue
		}
		if err := e.manager.Delete(registered.ID); err == nil {
			changed++
		}
	}

	if changed > 0 {
		e.manager.Publish(e.handle)
	}

	return changed, nil
}

// HandleEvents processes a batch of events and publishes the result.
// It returns how many events changed the engine state.
func (e *Engine) HandleEvents(ctx context.Context, events []*Event) int {
	startTime := time.Now()
	changed := 0

	for _, event := range events {
		count, err := e.HandleEvent(ctx, event)
		if err != nil {
			log.Error().Err(err).Str("type", string(event.Type)).Str("source", event.Source).Msg("Failed to handle disruption event")
		}
		changed += count
	}

	if changed > 0 {
		e.manager.Publish(e.handle)
		log.Info().
			Int("events", len(events)).
			Int("changed", changed).
			Uint64("version", e.handle.Version()).
			Str("Time", time.Since(startTime).String()).
			Msg("Published dataset snapshot")
	}

	return changed
}

func (e *Engine) HandleEvent(ctx context.Context, event *Event) (int, error) {
	switch event.Type {
	case EventTypeApply:
		if event.Disruption == nil {
			return 0, errors.New("apply event without disruption")
		}
		return boolCount(e.applyDisruption(ctx, event.Disruption)), nil
	case EventTypeDelete:
		return boolCount(e.deleteDisruption(ctx, event.DisruptionID)), nil
	case EventTypeFeed:
		return e.handleFeed(ctx, event)
	default:
		return 0, fmt.Errorf("unknown event type %q", event.Type)
	}
}

func (e *Engine) handleFeed(ctx context.Context, event *Event) (int, error) {
	production := e.manager.Dataset().Production

	var disruptions []*ctdf.Disruption
	var deleted []string
	fullDataset := false

	switch event.Format {
	case FeedFormatGTFSRealtime:
		realtime := &gtfs.Realtime{Source: event.Source, Production: production}
		alerts, err := realtime.DecodeBytes(event.Payload)
		if err != nil {
			return 0, err
		}
		disruptions = alerts.Disruptions
		deleted = alerts.Deleted
		fullDataset = true
	case FeedFormatSiriSX:
		siriSX := &siri_sx.SiriSX{Source: event.Source, Production: production}
		if err := siriSX.ParseFile(bytes.NewReader(event.Payload)); err != nil {
			return 0, err
		}
		situations, err := siriSX.Decode()
		if err != nil {
			return 0, err
		}
		disruptions = situations.Disruptions
		deleted = situations.Closed
	default:
		return 0, fmt.Errorf("unknown feed format %q", event.Format)
	}

	changed := 0
	present := map[string]bool{}
	for _, incoming := range disruptions {
		present[incoming.ID] = true
		changed += boolCount(e.applyDisruption(ctx, incoming))
	}
	for _, id := range deleted {
		changed += boolCount(e.deleteDisruption(ctx, id))
	}

	// Alerts missing from a full feed have ended
	if fullDataset {
		for id := range e.sources[event.Source] {
			if !present[id] {
				changed += boolCount(e.deleteDisruption(ctx, id))
			}
		}
		e.sources[event.Source] = present
	}

	return changed, nil
}

func (e *Engine) applyDisruption(ctx context.Context, incoming *ctdf.Disruption) bool {
	if incoming.ID == "" {
		log.Warn().Msg("Ignoring disruption without id")
		return false
	}

	e.transforms.Apply(incoming)

	accepted, err := e.filter.Accept(incoming)
	if err != nil {
		log.Warn().Err(err).Str("disruption", incoming.ID).Msg("Filter failed")
	}
	if !accepted {
		log.Debug().Str("disruption", incoming.ID).Msg("Disruption filtered out")
		return false
	}

	contentHash, err := incoming.ContentHash()
	if err != nil {
		log.Error().Err(err).Str("disruption", incoming.ID).Msg("Failed to hash disruption")
		return false
	}
	if e.dedupe.Unchanged(ctx, incoming.ID, contentHash) {
		if _, exists := e.manager.Disruption(incoming.ID); exists {
			return false
		}
	}

	if incoming.UpdatedAt.IsZero() {
		incoming.UpdatedAt = time.Now()
	}
	if incoming.CreatedAt.IsZero() {
		incoming.CreatedAt = incoming.UpdatedAt
	}

	report, err := e.manager.Update(incoming)

	for _, rejection := range reportRejections(report) {
		elastic_client.IndexEvent(&elastic_client.Event{
			Type:         elastic_client.EventTypeRejected,
			Timestamp:    time.Now(),
			DisruptionID: rejection.DisruptionID,
			ImpactID:     rejection.ImpactID,
			Target:       rejection.Target,
			Reason:       string(rejection.Kind),
		})
	}

	if err != nil {
		if errors.Is(err, disruption.ErrNotPublishable) {
			// The previous version, if any, is gone from the engine so it goes from the store too
			e.forget(ctx, incoming.ID)
			return true
		}
		log.Error().Err(err).Str("disruption", incoming.ID).Msg("Failed to apply disruption")
		return false
	}

	if e.store != nil {
		if err := e.store.Upsert(ctx, incoming); err != nil {
			log.Error().Err(err).Str("disruption", incoming.ID).Msg("Failed to store disruption")
		}
	}
	e.dedupe.Remember(ctx, incoming.ID, contentHash)

	elastic_client.IndexEvent(&elastic_client.Event{
		Type:          elastic_client.EventTypeApplied,
		Timestamp:     time.Now(),
		DisruptionID:  incoming.ID,
		Impacts:       report.Impacts,
		AffectedTrips: report.AffectedTrips,
	})

	return true
}

func (e *Engine) deleteDisruption(ctx context.Context, id string) bool {
	err := e.manager.Delete(id)
	if errors.Is(err, disruption.ErrUnknownDisruption) {
		log.Debug().Str("disruption", id).Msg("Delete of unknown disruption")
		e.forget(ctx, id)
		return false
	} else if err != nil {
		log.Error().Err(err).Str("disruption", id).Msg("Failed to delete disruption")
		return false
	}

	e.forget(ctx, id)

	elastic_client.IndexEvent(&elastic_client.Event{
		Type:         elastic_client.EventTypeDeleted,
		Timestamp:    time.Now(),
		DisruptionID: id,
	})

	return true
}

func (e *Engine) forget(ctx context.Context, id string) {
	if e.store != nil {
		if err := e.store.Delete(ctx, id); err != nil {
			log.Error().Err(err).Str("disruption", id).Msg("Failed to delete stored disruption")
		}
	}
	e.dedupe.Forget(ctx, id)
}

func reportRejections(report *disruption.ApplyReport) []*disruption.RejectionError {
	if report == nil {
		return nil
	}
	return report.Rejections
}

func boolCount(changed bool) int {
	if changed {
		return 1
	}
	return 0
}
