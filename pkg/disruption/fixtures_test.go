package disruption

import (
	"fmt"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
	"github.com/travigo/disruptions/pkg/ctdf"
	"github.com/travigo/disruptions/pkg/dataset"
)

// Monday
var testBeginning = time.Date(2024, time.January, 1, 0, 0, 0, 0, time.UTC)

const (
	monday ctdf.ServiceDay = iota
	tuesday
	wednesday
	thursday
	friday
	saturday
	sunday
)

type testStop struct {
	stopPoint string
	arrival   string
	departure string
}

func newTestDataset(t *testing.T) *dataset.Dataset {
	ds := dataset.New(testBeginning, 7, time.UTC)

	ds.AddLine("network:1", "line:A", "A", "Line A")
	ds.AddLine("network:1", "line:B", "B", "Line B")
	_, err := ds.AddRoute("line:A", "route:A:outbound", "Outbound")
	require.NoError(t, err)
	_, err = ds.AddRoute("line:A", "route:A:inbound", "Inbound")
	require.NoError(t, err)
	_, err = ds.AddRoute("line:B", "route:B", "B")
	require.NoError(t, err)

	for i := 1; i <= 5; i++ {
		ds.AddStopPoint(fmt.Sprintf("stop_area:%d", i), fmt.Sprintf("stop_point:%d", i), fmt.Sprintf("Stop %d", i))
	}

	return ds
}

func addTestTrip(t *testing.T, ds *dataset.Dataset, uri string, route string, days string, stops ...testStop) *ctdf.Trip {
	spec := dataset.TripSpec{
		URI:   uri,
		Route: route,
		Days:  ctdf.ParseDaySet(days),
	}
	for _, stop := range stops {
		arrival, err := ctdf.ParseTimeOfDay(stop.arrival)
		require.NoError(t, err)
		departure, err := ctdf.ParseTimeOfDay(stop.departure)
		require.NoError(t, err)

		spec.StopTimes = append(spec.StopTimes, dataset.StopTimeSpec{
			StopPoint:      stop.stopPoint,
			Arrival:        arrival,
			Departure:      departure,
			PickupAllowed:  true,
			DropoffAllowed: true,
		})
	}

	trip, err := ds.AddTrip(spec)
	require.NoError(t, err)
	return trip
}

// wholeDays is an application window covering each day entirely
func wholeDays(ds *dataset.Dataset, days ...ctdf.ServiceDay) ctdf.ApplicationWindow {
	window := ctdf.ApplicationWindow{}
	for _, day := range days {
		window.Periods = append(window.Periods, ctdf.Period{
			Start: ds.Calendar.Midnight(day),
			End:   ds.Calendar.Midnight(day + 1),
		})
	}
	return window
}

func newTestDisruption(id string, effect ctdf.Effect, targets ctdf.Targets, windows ...ctdf.ApplicationWindow) *ctdf.Disruption {
	return &ctdf.Disruption{
		ID:                id,
		Cause:             &ctdf.Cause{ID: "cause:works", Wording: "Works"},
		PublicationWindow: ctdf.Period{Start: testBeginning},
		Impacts: []*ctdf.Impact{
			{
				ID:                 id + ":impact",
				Severity:           &ctdf.Severity{ID: "severity:" + string(effect), Wording: string(effect), Effect: effect},
				Targets:            targets,
				ApplicationWindows: windows,
			},
		},
	}
}

func adaptedPattern(ds *dataset.Dataset, trip *ctdf.Trip) string {
	return ds.Patterns.Days(trip.AdaptedPattern).Format(ds.Days)
}

func stopPointURIs(ds *dataset.Dataset, trip *ctdf.Trip) []string {
	uris := []string{}
	for _, stopTime := range trip.StopTimes {
		uris = append(uris, ds.StopPointURI(stopTime.StopPoint))
	}
	return uris
}

// scheduleState describes every variant of every meta trip by uri
func scheduleState(ds *dataset.Dataset) map[string]string {
	state := map[string]string{}
	for _, meta := range ds.MetaTrips {
		for _, trip := range ds.Variants(meta.ID) {
			state[trip.URI] = fmt.Sprintf("%s %v", adaptedPattern(ds, trip), stopPointURIs(ds, trip))
		}
	}
	return state
}

// requireDayOwnership checks no service day is owned by two variants of a meta trip
func requireDayOwnership(t *testing.T, ds *dataset.Dataset) {
	for _, meta := range ds.MetaTrips {
		for day := 0; day < ds.Days; day++ {
			owners := 0
			for _, trip := range ds.Variants(meta.ID) {
				if ds.Patterns.Days(trip.AdaptedPattern).Has(ctdf.ServiceDay(day)) {
					owners++
				}
			}
			require.LessOrEqual(t, owners, 1, "meta trip %s day %d", meta.URI, day)
		}
	}
}
