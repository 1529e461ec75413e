package disruptiontracker

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/MobilityData/gtfs-realtime-bindings/golang/gtfs"
	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/travigo/disruptions/pkg/ctdf"
	"github.com/travigo/disruptions/pkg/dataimporter/formats/disruptionfile"
	"github.com/travigo/disruptions/pkg/dataset"
	"github.com/travigo/disruptions/pkg/disruption"
	"github.com/travigo/disruptions/pkg/transforms"
	"google.golang.org/protobuf/proto"
)

// Monday
var testBeginning = time.Date(2024, time.January, 1, 0, 0, 0, 0, time.UTC)

type memoryStore struct {
	disruptions map[string]*ctdf.Disruption
	order       []string
	failUpsert  bool
}

func newMemoryStore() *memoryStore {
	return &memoryStore{disruptions: map[string]*ctdf.Disruption{}}
}

func (s *memoryStore) Upsert(ctx context.Context, disruption *ctdf.Disruption) error {
	if s.failUpsert {
		return errors.New("store unavailable")
	}
	if _, exists := s.disruptions[disruption.ID]; !exists {
		s.order = append(s.order, disruption.ID)
	}
	s.disruptions[disruption.ID] = disruption
	return nil
}

func (s *memoryStore) Delete(ctx context.Context, id string) error {
	delete(s.disruptions, id)
	order := s.order[:0]
	for _, stored := range s.order {
		if stored != id {
			order = append(order, stored)
		}
	}
	s.order = order
	return nil
}

func (s *memoryStore) LoadAll(ctx context.Context) ([]*ctdf.Disruption, error) {
	disruptions := []*ctdf.Disruption{}
	for _, id := range s.order {
		disruptions = append(disruptions, s.disruptions[id])
	}
	return disruptions, nil
}

func newTestDataset(t *testing.T) *dataset.Dataset {
	ds := dataset.New(testBeginning, 7, time.UTC)
	ds.AddLine("network:1", "line:A", "A", "Line A")
	_, err := ds.AddRoute("line:A", "route:A", "Outbound")
	require.NoError(t, err)

	ds.AddStopPoint("stop_area:1", "stop_point:1", "Stop 1")
	ds.AddStopPoint("stop_area:2", "stop_point:2", "Stop 2")

	_, err = ds.AddTrip(dataset.TripSpec{
		URI:   "T1",
		Route: "route:A",
		Days:  ctdf.ParseDaySet("1111111"),
		StopTimes: []dataset.StopTimeSpec{
			{StopPoint: "stop_point:1", Arrival: 8 * 3600, Departure: 8 * 3600, PickupAllowed: true, DropoffAllowed: true},
			{StopPoint: "stop_point:2", Arrival: 9 * 3600, Departure: 9 * 3600, PickupAllowed: true, DropoffAllowed: true},
		},
	})
	require.NoError(t, err)

	return ds
}

func newTestDeduper(t *testing.T) *Deduper {
	server := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{Addr: server.Addr()})
	t.Cleanup(func() { client.Close() })

	return NewDeduper(client, time.Hour)
}

func newTestEngine(t *testing.T, store Store, options ...EngineOption) *Engine {
	ds := newTestDataset(t)
	options = append([]EngineOption{WithStore(store)}, options...)
	return NewEngine(disruption.NewManager(ds, nil), dataset.NewHandle(ds), options...)
}

func noServiceOnTrip(id string, days ...ctdf.ServiceDay) *ctdf.Disruption {
	window := ctdf.ApplicationWindow{}
	for _, day := range days {
		window.Periods = append(window.Periods, ctdf.Period{
			Start: testBeginning.AddDate(0, 0, int(day)),
			End:   testBeginning.AddDate(0, 0, int(day)+1),
		})
	}

	return &ctdf.Disruption{
		ID:                id,
		Contributor:       "operator",
		Cause:             &ctdf.Cause{ID: "cause:strike"},
		PublicationWindow: ctdf.Period{Start: testBeginning},
		Impacts: []*ctdf.Impact{
			{
				ID:                 id + ":impact",
				Severity:           &ctdf.Severity{ID: "severity:no_service", Effect: ctdf.EffectNoService},
				Targets:            ctdf.Targets{ctdf.TripRef{URI: "T1"}},
				ApplicationWindows: []ctdf.ApplicationWindow{window},
			},
		},
	}
}

func publishedPattern(engine *Engine) string {
	ds := engine.Handle().Current()
	trip, _ := ds.TripByURI("T1")
	return ds.Patterns.Days(trip.AdaptedPattern).Format(ds.Days)
}

func TestEngineApplyAndDelete(t *testing.T) {
	store := newMemoryStore()
	engine := newTestEngine(t, store, WithDeduper(newTestDeduper(t)))
	ctx := context.Background()

	changed := engine.HandleEvents(ctx, []*Event{
		{Type: EventTypeApply, Source: "manual", Disruption: noServiceOnTrip("d1", 2)},
	})
	assert.Equal(t, 1, changed)
	assert.Equal(t, "1101111", publishedPattern(engine))
	assert.Equal(t, uint64(2), engine.Handle().Version())
	assert.Contains(t, store.disruptions, "d1")
	assert.False(t, store.disruptions["d1"].UpdatedAt.IsZero())

	// Same content again only differs in its timestamps
	resent := noServiceOnTrip("d1", 2)
	resent.UpdatedAt = time.Now().Add(time.Minute)
	changed = engine.HandleEvents(ctx, []*Event{{Type: EventTypeApply, Disruption: resent}})
	assert.Equal(t, 0, changed)
	assert.Equal(t, uint64(2), engine.Handle().Version())

	changed = engine.HandleEvents(ctx, []*Event{
		{Type: EventTypeApply, Disruption: noServiceOnTrip("d1", 3)},
	})
	assert.Equal(t, 1, changed)
	assert.Equal(t, "1110111", publishedPattern(engine))

	changed = engine.HandleEvents(ctx, []*Event{
		{Type: EventTypeDelete, DisruptionID: "d1"},
		{Type: EventTypeDelete, DisruptionID: "unknown"},
	})
	assert.Equal(t, 1, changed)
	assert.Equal(t, "1111111", publishedPattern(engine))
	assert.Empty(t, store.disruptions)
	assert.Equal(t, 0, engine.Manager().Len())
}

func TestEngineDropsUnpublishableUpdate(t *testing.T) {
	store := newMemoryStore()
	engine := newTestEngine(t, store)
	ctx := context.Background()

	engine.HandleEvents(ctx, []*Event{{Type: EventTypeApply, Disruption: noServiceOnTrip("d1", 2)}})
	require.Contains(t, store.disruptions, "d1")

	expired := noServiceOnTrip("d1", 2)
	expired.PublicationWindow = ctdf.Period{Start: testBeginning.AddDate(-1, 0, 0), End: testBeginning.AddDate(0, 0, -1)}

	changed := engine.HandleEvents(ctx, []*Event{{Type: EventTypeApply, Disruption: expired}})
	assert.Equal(t, 1, changed)
	assert.NotContains(t, store.disruptions, "d1")
	assert.Equal(t, "1111111", publishedPattern(engine))
}

func TestEngineFilterAndTransforms(t *testing.T) {
	filter, err := transforms.NewFilter(`Contributor != "ignored"`)
	require.NoError(t, err)
	client := transforms.NewClient(nil, []transforms.Rewrite{{Kind: "trip", Prefix: "feed:", Replacement: ""}})

	store := newMemoryStore()
	engine := newTestEngine(t, store, WithFilter(filter), WithTransforms(client))
	ctx := context.Background()

	ignored := noServiceOnTrip("d1", 2)
	ignored.Contributor = "ignored"

	rewritten := noServiceOnTrip("d2", 4)
	rewritten.Impacts[0].Targets = ctdf.Targets{ctdf.TripRef{URI: "feed:T1"}}

	changed := engine.HandleEvents(ctx, []*Event{
		{Type: EventTypeApply, Disruption: ignored},
		{Type: EventTypeApply, Disruption: rewritten},
	})
	assert.Equal(t, 1, changed)
	assert.Equal(t, "1111011", publishedPattern(engine))
	assert.NotContains(t, store.disruptions, "d1")
}

func encodeAlertFeed(t *testing.T, alertIDs ...string) []byte {
	feed := &gtfs.FeedMessage{
		Header: &gtfs.FeedHeader{
			GtfsRealtimeVersion: proto.String("2.0"),
			Timestamp:           proto.Uint64(uint64(testBeginning.Unix())),
		},
	}
	for _, id := range alertIDs {
		feed.Entity = append(feed.Entity, &gtfs.FeedEntity{
			Id: proto.String(id),
			Alert: &gtfs.Alert{
				InformedEntity: []*gtfs.EntitySelector{
					{Trip: &gtfs.TripDescriptor{TripId: proto.String("T1")}},
				},
				Effect: gtfs.Alert_NO_SERVICE.Enum(),
			},
		})
	}

	body, err := proto.Marshal(feed)
	require.NoError(t, err)
	return body
}

func TestEngineReconcilesFullFeeds(t *testing.T) {
	store := newMemoryStore()
	engine := newTestEngine(t, store, WithDeduper(newTestDeduper(t)))
	ctx := context.Background()

	changed := engine.HandleEvents(ctx, []*Event{
		{Type: EventTypeFeed, Source: "rt", Format: FeedFormatGTFSRealtime, Payload: encodeAlertFeed(t, "a1")},
	})
	assert.Equal(t, 1, changed)
	assert.Contains(t, store.disruptions, "rt:a1")
	assert.Equal(t, "0000000", publishedPattern(engine))

	changed = engine.HandleEvents(ctx, []*Event{
		{Type: EventTypeFeed, Source: "rt", Format: FeedFormatGTFSRealtime, Payload: encodeAlertFeed(t, "a1")},
	})
	assert.Equal(t, 0, changed)

	changed = engine.HandleEvents(ctx, []*Event{
		{Type: EventTypeFeed, Source: "rt", Format: FeedFormatGTFSRealtime, Payload: encodeAlertFeed(t)},
	})
	assert.Equal(t, 1, changed)
	assert.Empty(t, store.disruptions)
	assert.Equal(t, "1111111", publishedPattern(engine))
}

func TestEngineRejectsBadFeeds(t *testing.T) {
	engine := newTestEngine(t, newMemoryStore())

	_, err := engine.HandleEvent(context.Background(), &Event{Type: EventTypeFeed, Format: FeedFormatGTFSRealtime, Payload: []byte("garbage")})
	assert.Error(t, err)

	_, err = engine.HandleEvent(context.Background(), &Event{Type: EventTypeFeed, Format: "netex", Payload: []byte("<xml/>")})
	assert.Error(t, err)
}

func TestEngineRestoreAndSync(t *testing.T) {
	store := newMemoryStore()
	require.NoError(t, store.Upsert(context.Background(), noServiceOnTrip("d1", 0)))
	require.NoError(t, store.Upsert(context.Background(), noServiceOnTrip("d2", 6)))

	engine := newTestEngine(t, store)
	require.NoError(t, engine.Restore(context.Background()))
	assert.Equal(t, 2, engine.Manager().Len())
	assert.Equal(t, "0111110", publishedPattern(engine))

	replica := newTestEngine(t, store)
	changed, err := replica.Sync(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 2, changed)

	changed, err = replica.Sync(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 0, changed)

	require.NoError(t, store.Delete(context.Background(), "d1"))
	updated := noServiceOnTrip("d2", 5)
	updated.UpdatedAt = testBeginning.Add(time.Hour)
	require.NoError(t, store.Upsert(context.Background(), updated))

	changed, err = replica.Sync(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 2, changed)
	assert.Equal(t, "1111101", publishedPattern(replica))
}

func TestDeduper(t *testing.T) {
	deduper := newTestDeduper(t)
	ctx := context.Background()

	assert.False(t, deduper.Unchanged(ctx, "d1", "hash"))
	deduper.Remember(ctx, "d1", "hash")
	assert.True(t, deduper.Unchanged(ctx, "d1", "hash"))
	assert.False(t, deduper.Unchanged(ctx, "d1", "other"))
	deduper.Forget(ctx, "d1")
	assert.False(t, deduper.Unchanged(ctx, "d1", "hash"))

	var missing *Deduper
	missing.Remember(ctx, "d1", "hash")
	assert.False(t, missing.Unchanged(ctx, "d1", "hash"))
}

func TestDecodeEvent(t *testing.T) {
	event := &Event{Type: EventTypeApply, Source: "manual", Disruption: noServiceOnTrip("d1", 2)}
	payload, err := event.MarshalBinary()
	require.NoError(t, err)

	decoded, err := DecodeEvent(payload)
	require.NoError(t, err)
	assert.Equal(t, "d1", decoded.Disruption.ID)
	assert.Equal(t, ctdf.Targets{ctdf.TripRef{URI: "T1"}}, decoded.Disruption.Impacts[0].Targets)

	for _, payload := range []string{
		`not json`,
		`{"Type":"apply"}`,
		`{"Type":"delete"}`,
		`{"Type":"feed","Format":"siri-sx"}`,
		`{"Type":"unknown"}`,
	} {
		_, err := DecodeEvent([]byte(payload))
		assert.Error(t, err, payload)
	}
}

func TestDecompress(t *testing.T) {
	plain := []byte("<Siri/>")
	body, err := decompress(plain)
	require.NoError(t, err)
	assert.Equal(t, plain, body)
}

func TestFileEventsAndVariants(t *testing.T) {
	document := &disruptionfile.Document{
		Disruptions: []*ctdf.Disruption{noServiceOnTrip("d1", 1)},
		Delete:      []string{"d0"},
	}

	events := FileEvents(document, "file")
	require.Len(t, events, 2)
	assert.Equal(t, EventTypeDelete, events[0].Type)
	assert.Equal(t, EventTypeApply, events[1].Type)

	engine := newTestEngine(t, newMemoryStore())
	assert.Equal(t, 1, engine.HandleEvents(context.Background(), events))

	variants, err := tripVariants(engine.Handle().Current(), "T1")
	require.NoError(t, err)
	require.Len(t, variants, 1)
	assert.Equal(t, "1011111", variants[0].AdaptedPattern)
	assert.Equal(t, []string{"d1:impact"}, variants[0].CausingImpacts)
	assert.Equal(t, []string{"stop_point:1", "stop_point:2"}, variants[0].Stops)

	_, err = tripVariants(engine.Handle().Current(), "T2")
	assert.Error(t, err)
}
