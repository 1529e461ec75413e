package disruption

import (
	"fmt"
	"sort"

	"github.com/sourcegraph/conc/pool"
	"github.com/travigo/disruptions/pkg/ctdf"
	"github.com/travigo/disruptions/pkg/dataset"
	"golang.org/x/exp/slices"
)

const maxResolverGoroutines = 8

// AffectedTrip is a base trip touched by a target. A nil RemovedStops means the whole trip.
type AffectedTrip struct {
	Trip         ctdf.TripID
	RemovedStops []uint32
}

func (a AffectedTrip) IsWholeTrip() bool {
	return a.RemovedStops == nil
}

type Resolver struct {
	dataset *dataset.Dataset
}

func NewResolver(ds *dataset.Dataset) *Resolver {
	return &Resolver{dataset: ds}
}

// Resolve expands a single target into the base trips it touches
func (r *Resolver) Resolve(target ctdf.PtObjRef) ([]AffectedTrip, error) {
	switch ref := target.(type) {
	case ctdf.NetworkRef:
		network, exists := r.dataset.NetworkByURI(ref.URI)
		if !exists {
			return nil, fmt.Errorf("%w: network %s", ErrTargetUnresolved, ref.URI)
		}
		var affected []AffectedTrip
		for _, lineID := range network.Lines {
			affected = append(affected, r.lineTrips(r.dataset.Lines[lineID])...)
		}
		return affected, nil

	case ctdf.LineRef:
		line, exists := r.dataset.LineByURI(ref.URI)
		if !exists {
			return nil, fmt.Errorf("%w: line %s", ErrTargetUnresolved, ref.URI)
		}
		return r.lineTrips(line), nil

	case ctdf.RouteRef:
		route, exists := r.dataset.RouteByURI(ref.URI)
		if !exists {
			return nil, fmt.Errorf("%w: route %s", ErrTargetUnresolved, ref.URI)
		}
		return r.routeTrips(route), nil

	case ctdf.StopAreaRef:
		stopArea, exists := r.dataset.StopAreaByURI(ref.URI)
		if !exists {
			return nil, fmt.Errorf("%w: stop area %s", ErrTargetUnresolved, ref.URI)
		}
		var affected []AffectedTrip
		for _, stopPointID := range stopArea.StopPoints {
			affected = append(affected, r.stopPointTrips(stopPointID)...)
		}
		return mergeAffected(affected), nil

	case ctdf.StopPointRef:
		stopPoint, exists := r.dataset.StopPointByURI(ref.URI)
		if !exists {
			return nil, fmt.Errorf("%w: stop point %s", ErrTargetUnresolved, ref.URI)
		}
		return r.stopPointTrips(stopPoint.ID), nil

	case ctdf.LineSectionRef:
		return r.lineSection(ref)

	case ctdf.RailSectionRef:
		return r.railSection(ref)

	case ctdf.TripRef:
		trip, exists := r.dataset.TripByURI(ref.URI)
		if !exists {
			return nil, fmt.Errorf("%w: trip %s", ErrTargetUnresolved, ref.URI)
		}
		base := r.dataset.BaseTrip(trip)
		affected := []AffectedTrip{{Trip: base.ID}}
		for _, sibling := range r.dataset.TripsByExternalID(base.ExternalID) {
			if sibling != base.ID {
				affected = append(affected, AffectedTrip{Trip: sibling})
			}
		}
		return affected, nil

	default:
		return nil, fmt.Errorf("%w: unsupported target %T", ErrTargetUnresolved, target)
	}
}

type resolution struct {
	index    int
	target   ctdf.PtObjRef
	affected []AffectedTrip
	err      error
}

// TargetFailure is a target that could not be resolved
type TargetFailure struct {
	Target ctdf.PtObjRef
	Err    error
}

// ResolveAll resolves every target concurrently. Targets that fail are reported
// and skipped, the others are merged per trip.
func (r *Resolver) ResolveAll(targets []ctdf.PtObjRef) ([]AffectedTrip, []TargetFailure) {
	p := pool.NewWithResults[resolution]().WithMaxGoroutines(maxResolverGoroutines)
	for index, target := range targets {
		p.Go(func() resolution {
			affected, err := r.Resolve(target)
			return resolution{index: index, target: target, affected: affected, err: err}
		})
	}
	results := p.Wait()

	sort.Slice(results, func(i, j int) bool {
		return results[i].index < results[j].index
	})

	var affected []AffectedTrip
	var failed []TargetFailure
	for _, result := range results {
		if result.err != nil {
			failed = append(failed, TargetFailure{Target: result.target, Err: result.err})
			continue
		}
		affected = append(affected, result.affected...)
	}

	return mergeAffected(affected), failed
}

func (r *Resolver) lineTrips(line *ctdf.Line) []AffectedTrip {
	var affected []AffectedTrip
	for _, routeID := range line.Routes {
		affected = append(affected, r.routeTrips(r.dataset.Routes[routeID])...)
	}
	return affected
}

func (r *Resolver) routeTrips(route *ctdf.Route) []AffectedTrip {
	affected := make([]AffectedTrip, 0, len(route.Trips))
	for _, tripID := range route.Trips {
		affected = append(affected, AffectedTrip{Trip: tripID})
	}
	return affected
}

func (r *Resolver) stopPointTrips(stopPointID ctdf.StopPointID) []AffectedTrip {
	var affected []AffectedTrip
	for _, tripID := range r.dataset.TripsByStopPoint(stopPointID) {
		trip := r.dataset.Trips[tripID]
		if orders := trip.StopOrders(stopPointID); len(orders) > 0 {
			affected = append(affected, AffectedTrip{Trip: tripID, RemovedStops: orders})
		}
	}
	return affected
}

// sectionRoutes returns the routes a section applies to
func (r *Resolver) sectionRoutes(lineURI string, start string, end string, routeURIs []string) ([]*ctdf.Route, *ctdf.StopArea, *ctdf.StopArea, error) {
	if lineURI == "" || start == "" || end == "" {
		return nil, nil, nil, ErrMalformedSection
	}

	line, exists := r.dataset.LineByURI(lineURI)
	if !exists {
		return nil, nil, nil, fmt.Errorf("%w: line %s", ErrTargetUnresolved, lineURI)
	}
	startArea, exists := r.dataset.StopAreaByURI(start)
	if !exists {
		return nil, nil, nil, fmt.Errorf("%w: stop area %s", ErrTargetUnresolved, start)
	}
	endArea, exists := r.dataset.StopAreaByURI(end)
	if !exists {
		return nil, nil, nil, fmt.Errorf("%w: stop area %s", ErrTargetUnresolved, end)
	}

	var routes []*ctdf.Route
	if len(routeURIs) == 0 {
		for _, routeID := range line.Routes {
			routes = append(routes, r.dataset.Routes[routeID])
		}
	} else {
		for _, routeURI := range routeURIs {
			route, exists := r.dataset.RouteByURI(routeURI)
			if exists && route.Line == line.ID {
				routes = append(routes, route)
			}
		}
	}

	if len(routes) == 0 {
		return nil, nil, nil, fmt.Errorf("%w: line %s", ErrEmptyRouteSet, lineURI)
	}

	return routes, startArea, endArea, nil
}

func (r *Resolver) lineSection(ref ctdf.LineSectionRef) ([]AffectedTrip, error) {
	routes, startArea, endArea, err := r.sectionRoutes(ref.Line, ref.Start, ref.End, ref.Routes)
	if err != nil {
		return nil, err
	}

	var affected []AffectedTrip
	for _, route := range routes {
		for _, tripID := range route.Trips {
			trip := r.dataset.Trips[tripID]
			first := r.findStopArea(trip, startArea.ID, 0)
			if first < 0 {
				continue
			}
			last := r.findStopArea(trip, endArea.ID, first)
			if last < 0 {
				continue
			}

			removed := make([]uint32, 0, last-first+1)
			for position := first; position <= last; position++ {
				removed = append(removed, trip.StopTimes[position].Order)
			}
			affected = append(affected, AffectedTrip{Trip: tripID, RemovedStops: removed})
		}
	}

	return affected, nil
}

// railSection matches trips visiting start, the blocked stop areas and end in that order.
// Only the blocked stop areas are removed; without any the whole stretch is.
func (r *Resolver) railSection(ref ctdf.RailSectionRef) ([]AffectedTrip, error) {
	routes, startArea, endArea, err := r.sectionRoutes(ref.Line, ref.Start, ref.End, ref.Routes)
	if err != nil {
		return nil, err
	}

	blocked := slices.Clone(ref.Blocked)
	sort.SliceStable(blocked, func(i, j int) bool {
		return blocked[i].Order < blocked[j].Order
	})

	blockedAreas := make([]ctdf.StopAreaID, 0, len(blocked))
	for _, stopArea := range blocked {
		area, exists := r.dataset.StopAreaByURI(stopArea.URI)
		if !exists {
			return nil, fmt.Errorf("%w: stop area %s", ErrTargetUnresolved, stopArea.URI)
		}
		blockedAreas = append(blockedAreas, area.ID)
	}

	var affected []AffectedTrip
	for _, route := range routes {
		for _, tripID := range route.Trips {
			trip := r.dataset.Trips[tripID]

			first := r.findStopArea(trip, startArea.ID, 0)
			if first < 0 {
				continue
			}

			var removed []uint32
			position := first
			matched := true
			for _, areaID := range blockedAreas {
				position = r.findStopArea(trip, areaID, position)
				if position < 0 {
					matched = false
					break
				}
				removed = append(removed, trip.StopTimes[position].Order)
			}
			if !matched {
				continue
			}

			last := r.findStopArea(trip, endArea.ID, position)
			if last < 0 {
				continue
			}

			if len(blockedAreas) == 0 {
				for stop := first; stop <= last; stop++ {
					removed = append(removed, trip.StopTimes[stop].Order)
				}
			}

			affected = append(affected, AffectedTrip{Trip: tripID, RemovedStops: removed})
		}
	}

	return affected, nil
}

// findStopArea returns the first position at or after from whose stop belongs to the area
func (r *Resolver) findStopArea(trip *ctdf.Trip, area ctdf.StopAreaID, from int) int {
	for position := from; position < len(trip.StopTimes); position++ {
		stopPoint, exists := r.dataset.StopPoints[trip.StopTimes[position].StopPoint]
		if exists && stopPoint.StopArea == area {
			return position
		}
	}
	return -1
}

// mergeAffected unions removed stops per trip. A whole trip entry absorbs any stop entry.
func mergeAffected(affected []AffectedTrip) []AffectedTrip {
	merged := make([]AffectedTrip, 0, len(affected))
	positions := map[ctdf.TripID]int{}

	for _, entry := range affected {
		position, exists := positions[entry.Trip]
		if !exists {
			positions[entry.Trip] = len(merged)
			entry.RemovedStops = slices.Clone(entry.RemovedStops)
			merged = append(merged, entry)
			continue
		}

		current := &merged[position]
		if current.IsWholeTrip() {
			continue
		}
		if entry.IsWholeTrip() {
			current.RemovedStops = nil
			continue
		}
		for _, order := range entry.RemovedStops {
			if !slices.Contains(current.RemovedStops, order) {
				current.RemovedStops = append(current.RemovedStops, order)
			}
		}
	}

	for i := range merged {
		slices.Sort(merged[i].RemovedStops)
	}

	return merged
}
