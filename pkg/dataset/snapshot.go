package dataset

import (
	"sync/atomic"

	"github.com/travigo/disruptions/pkg/ctdf"
	"golang.org/x/exp/slices"
)

// Handle publishes read-only snapshots of a dataset owned by a single writer
type Handle struct {
	current atomic.Pointer[Dataset]
	version atomic.Uint64
}

func NewHandle(initial *Dataset) *Handle {
	handle := &Handle{}
	handle.Publish(initial)
	return handle
}

// Current returns the latest published snapshot. Callers must not mutate it.
func (h *Handle) Current() *Dataset {
	return h.current.Load()
}

func (h *Handle) Version() uint64 {
	return h.version.Load()
}

// Publish stores a copy of working so the writer can keep mutating its own copy
func (h *Handle) Publish(working *Dataset) {
	h.current.Store(working.Clone())
	h.version.Add(1)
}

// Clone copies every entity. Validity patterns are immutable and stay shared.
func (d *Dataset) Clone() *Dataset {
	out := &Dataset{
		Calendar:   d.Calendar,
		Production: d.Production,
		Days:       d.Days,
		Patterns:   d.Patterns.Clone(),

		Networks:   make(map[ctdf.NetworkID]*ctdf.Network, len(d.Networks)),
		Lines:      make(map[ctdf.LineID]*ctdf.Line, len(d.Lines)),
		Routes:     make(map[ctdf.RouteID]*ctdf.Route, len(d.Routes)),
		StopAreas:  make(map[ctdf.StopAreaID]*ctdf.StopArea, len(d.StopAreas)),
		StopPoints: make(map[ctdf.StopPointID]*ctdf.StopPoint, len(d.StopPoints)),
		Trips:      make(map[ctdf.TripID]*ctdf.Trip, len(d.Trips)),
		MetaTrips:  make(map[ctdf.MetaTripID]*ctdf.MetaTrip, len(d.MetaTrips)),

		networksByURI:   cloneMap(d.networksByURI),
		linesByURI:      cloneMap(d.linesByURI),
		routesByURI:     cloneMap(d.routesByURI),
		stopAreasByURI:  cloneMap(d.stopAreasByURI),
		stopPointsByURI: cloneMap(d.stopPointsByURI),
		tripsByURI:      cloneMap(d.tripsByURI),

		tripsByExternalID: make(map[string][]ctdf.TripID, len(d.tripsByExternalID)),
		tripsByStopPoint:  make(map[ctdf.StopPointID][]ctdf.TripID, len(d.tripsByStopPoint)),

		ids: d.ids,
	}

	for id, network := range d.Networks {
		copied := *network
		copied.Lines = slices.Clone(network.Lines)
		out.Networks[id] = &copied
	}
	for id, line := range d.Lines {
		copied := *line
		copied.Routes = slices.Clone(line.Routes)
		out.Lines[id] = &copied
	}
	for id, route := range d.Routes {
		copied := *route
		copied.Trips = slices.Clone(route.Trips)
		out.Routes[id] = &copied
	}
	for id, stopArea := range d.StopAreas {
		copied := *stopArea
		copied.StopPoints = slices.Clone(stopArea.StopPoints)
		out.StopAreas[id] = &copied
	}
	for id, stopPoint := range d.StopPoints {
		copied := *stopPoint
		out.StopPoints[id] = &copied
	}
	for id, trip := range d.Trips {
		copied := *trip
		copied.StopTimes = slices.Clone(trip.StopTimes)
		copied.RemovedStops = slices.Clone(trip.RemovedStops)
		copied.CausingImpacts = make(ctdf.ImpactSet, len(trip.CausingImpacts))
		for impact := range trip.CausingImpacts {
			copied.CausingImpacts.Add(impact)
		}
		out.Trips[id] = &copied
	}
	for id, meta := range d.MetaTrips {
		copied := *meta
		copied.Adapted = slices.Clone(meta.Adapted)
		out.MetaTrips[id] = &copied
	}
	for key, trips := range d.tripsByExternalID {
		out.tripsByExternalID[key] = slices.Clone(trips)
	}
	for key, trips := range d.tripsByStopPoint {
		out.tripsByStopPoint[key] = slices.Clone(trips)
	}

	return out
}

func cloneMap[K comparable, V any](in map[K]V) map[K]V {
	out := make(map[K]V, len(in))
	for key, value := range in {
		out[key] = value
	}
	return out
}
