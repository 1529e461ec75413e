package dataset

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/travigo/disruptions/pkg/ctdf"
)

func newTestDataset(t *testing.T) *Dataset {
	ds := New(time.Date(2024, time.January, 1, 0, 0, 0, 0, time.UTC), 7, time.UTC)

	ds.AddLine("network:1", "line:A", "A", "Line A")
	_, err := ds.AddRoute("line:A", "route:A", "Route A")
	require.NoError(t, err)
	ds.AddStopPoint("stop_area:1", "stop_point:1a", "Stop 1a")
	ds.AddStopPoint("stop_area:1", "stop_point:1b", "Stop 1b")
	ds.AddStopPoint("stop_area:2", "stop_point:2", "Stop 2")

	return ds
}

func TestDatasetBuilders(t *testing.T) {
	ds := newTestDataset(t)

	network, exists := ds.NetworkByURI("network:1")
	require.True(t, exists)
	line, exists := ds.LineByURI("line:A")
	require.True(t, exists)
	assert.Equal(t, []ctdf.LineID{line.ID}, network.Lines)
	assert.Equal(t, network.ID, line.Network)

	stopArea, exists := ds.StopAreaByURI("stop_area:1")
	require.True(t, exists)
	assert.Len(t, stopArea.StopPoints, 2)

	// Builders are idempotent per uri
	assert.Same(t, line, ds.AddLine("network:1", "line:A", "A", "Line A"))
	assert.Len(t, ds.Lines, 1)

	_, err := ds.AddRoute("line:missing", "route:x", "X")
	assert.Error(t, err)

	assert.Equal(t, ds.Calendar.Midnight(0), ds.Production.Start)
	assert.Equal(t, time.Date(2024, time.January, 8, 0, 0, 0, 0, time.UTC), ds.Production.End)
}

func TestAddTrip(t *testing.T) {
	ds := newTestDataset(t)

	trip, err := ds.AddTrip(TripSpec{
		URI:   "vj:1",
		Route: "route:A",
		Days:  ctdf.ParseDaySet("1111111111"),
		StopTimes: []StopTimeSpec{
			{StopPoint: "stop_point:1a", Arrival: 3600, Departure: 3600},
			{StopPoint: "stop_point:2", Arrival: 4200, Departure: 4200},
			{StopPoint: "stop_point:1a", Arrival: 4800, Departure: 4800},
		},
	})
	require.NoError(t, err)

	assert.False(t, trip.IsAdapted)
	assert.Equal(t, "vj:1", trip.ExternalID)
	assert.Equal(t, []uint32{0, 2}, trip.StopOrders(trip.StopTimes[0].StopPoint))
	assert.Equal(t, 3600, trip.FirstDeparture())
	assert.Equal(t, 4800, trip.LastArrival())

	// Days past the production period are dropped
	assert.Equal(t, "1111111", ds.Patterns.Days(trip.BasePattern).Format(10)[:7])
	assert.Equal(t, 7, ds.Patterns.Days(trip.BasePattern).Count())
	assert.Equal(t, trip.BasePattern, trip.AdaptedPattern)
	assert.Equal(t, 2, ds.Patterns.Refs(trip.BasePattern))

	meta := ds.MetaTrips[trip.MetaTrip]
	assert.Equal(t, trip.ID, meta.Base)

	stopPoint, _ := ds.StopPointByURI("stop_point:1a")
	assert.Equal(t, []ctdf.TripID{trip.ID}, ds.TripsByStopPoint(stopPoint.ID))

	route, _ := ds.RouteByURI("route:A")
	assert.Equal(t, []ctdf.TripID{trip.ID}, route.Trips)

	_, err = ds.AddTrip(TripSpec{URI: "vj:1", Route: "route:A"})
	assert.ErrorIs(t, err, ErrDuplicateURI)
	_, err = ds.AddTrip(TripSpec{URI: "vj:2", Route: "route:x"})
	assert.ErrorIs(t, err, ErrUnknownRoute)
	_, err = ds.AddTrip(TripSpec{URI: "vj:3", Route: "route:A", StopTimes: []StopTimeSpec{{StopPoint: "stop_point:x"}}})
	assert.ErrorIs(t, err, ErrUnknownStopPoint)
}

func TestAdaptedTrips(t *testing.T) {
	ds := newTestDataset(t)

	base, err := ds.AddTrip(TripSpec{
		URI:   "vj:1",
		Route: "route:A",
		Days:  ctdf.ParseDaySet("1111111"),
		StopTimes: []StopTimeSpec{
			{StopPoint: "stop_point:1a", Arrival: 3600, Departure: 3600},
			{StopPoint: "stop_point:2", Arrival: 4200, Departure: 4200},
		},
	})
	require.NoError(t, err)

	base.AdaptedPattern = ds.Patterns.Replace(base.AdaptedPattern, ctdf.ParseDaySet("1111100"))
	adapted := &ctdf.Trip{
		URI:            "vj:1:adapted:0",
		MetaTrip:       base.MetaTrip,
		StopTimes:      base.WithoutStops([]uint32{0}),
		BasePattern:    ds.Patterns.Acquire(nil),
		AdaptedPattern: ds.Patterns.Acquire(ctdf.ParseDaySet("0000011")),
		CausingImpacts: ctdf.ImpactSet{},
	}
	require.NoError(t, ds.AddAdaptedTrip(adapted))

	assert.True(t, adapted.IsAdapted)
	assert.Equal(t, uint32(0), adapted.StopTimes[0].Order)
	assert.Same(t, base, ds.BaseTrip(adapted))

	variants := ds.Variants(base.MetaTrip)
	require.Len(t, variants, 2)
	assert.Same(t, base, variants[0])
	assert.Same(t, adapted, variants[1])

	assert.Same(t, base, ds.Owner(base.MetaTrip, 0))
	assert.Same(t, adapted, ds.Owner(base.MetaTrip, 6))

	assert.ErrorIs(t, ds.AddAdaptedTrip(&ctdf.Trip{URI: "vj:1:adapted:0", MetaTrip: base.MetaTrip}), ErrDuplicateURI)

	patterns := ds.Patterns.Len()
	ds.RemoveAdaptedTrip(adapted.ID)
	assert.Len(t, ds.Variants(base.MetaTrip), 1)
	assert.Nil(t, ds.Owner(base.MetaTrip, 6))
	assert.Equal(t, patterns-2, ds.Patterns.Len())

	// Base trips are never removed
	ds.RemoveAdaptedTrip(base.ID)
	assert.Len(t, ds.Variants(base.MetaTrip), 1)
}

func TestHandlePublishesIndependentSnapshots(t *testing.T) {
	working := newTestDataset(t)
	trip, err := working.AddTrip(TripSpec{
		URI:       "vj:1",
		Route:     "route:A",
		Days:      ctdf.ParseDaySet("1111111"),
		StopTimes: []StopTimeSpec{{StopPoint: "stop_point:2"}},
	})
	require.NoError(t, err)

	handle := NewHandle(working)
	assert.Equal(t, uint64(1), handle.Version())

	trip.AdaptedPattern = working.Patterns.Replace(trip.AdaptedPattern, ctdf.ParseDaySet("1111011"))
	trip.CausingImpacts.Add("impact")

	snapshot := handle.Current()
	published, exists := snapshot.TripByURI("vj:1")
	require.True(t, exists)
	assert.Equal(t, "1111111", snapshot.Patterns.Days(published.AdaptedPattern).Format(7))
	assert.False(t, published.CausingImpacts.Has("impact"))

	handle.Publish(working)
	assert.Equal(t, uint64(2), handle.Version())
	published, _ = handle.Current().TripByURI("vj:1")
	assert.Equal(t, "1111011", handle.Current().Patterns.Days(published.AdaptedPattern).Format(7))

	// The earlier snapshot is untouched
	assert.Equal(t, "1111111", snapshot.Patterns.Days(snapshot.Trips[published.ID].AdaptedPattern).Format(7))
}
