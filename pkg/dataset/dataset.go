package dataset

import (
	"errors"
	"fmt"
	"time"

	"github.com/travigo/disruptions/pkg/ctdf"
)

var (
	ErrUnknownRoute     = errors.New("unknown route")
	ErrUnknownStopPoint = errors.New("unknown stop point")
	ErrDuplicateURI     = errors.New("duplicate uri")
)

// Dataset is the in-memory schedule. Entities live in per-type arenas keyed by id,
// cross references are ids and uri lookups go through the indexes.
type Dataset struct {
	Calendar   ctdf.Calendar
	Production ctdf.Period
	Days       int

	Patterns *ctdf.ValidityPatternPool

	Networks   map[ctdf.NetworkID]*ctdf.Network
	Lines      map[ctdf.LineID]*ctdf.Line
	Routes     map[ctdf.RouteID]*ctdf.Route
	StopAreas  map[ctdf.StopAreaID]*ctdf.StopArea
	StopPoints map[ctdf.StopPointID]*ctdf.StopPoint
	Trips      map[ctdf.TripID]*ctdf.Trip
	MetaTrips  map[ctdf.MetaTripID]*ctdf.MetaTrip

	networksByURI   map[string]ctdf.NetworkID
	linesByURI      map[string]ctdf.LineID
	routesByURI     map[string]ctdf.RouteID
	stopAreasByURI  map[string]ctdf.StopAreaID
	stopPointsByURI map[string]ctdf.StopPointID
	tripsByURI      map[string]ctdf.TripID

	tripsByExternalID map[string][]ctdf.TripID
	tripsByStopPoint  map[ctdf.StopPointID][]ctdf.TripID

	ids idSequence
}

type idSequence struct {
	network   uint32
	line      uint32
	route     uint32
	stopArea  uint32
	stopPoint uint32
	trip      uint32
	metaTrip  uint32
}

// New creates an empty dataset whose production period covers days days from beginning
func New(beginning time.Time, days int, location *time.Location) *Dataset {
	calendar := ctdf.NewCalendar(beginning, location)

	return &Dataset{
		Calendar: calendar,
		Production: ctdf.Period{
			Start: calendar.Midnight(0),
			End:   calendar.Midnight(ctdf.ServiceDay(days)),
		},
		Days:     days,
		Patterns: ctdf.NewValidityPatternPool(calendar.Beginning),

		Networks:   map[ctdf.NetworkID]*ctdf.Network{},
		Lines:      map[ctdf.LineID]*ctdf.Line{},
		Routes:     map[ctdf.RouteID]*ctdf.Route{},
		StopAreas:  map[ctdf.StopAreaID]*ctdf.StopArea{},
		StopPoints: map[ctdf.StopPointID]*ctdf.StopPoint{},
		Trips:      map[ctdf.TripID]*ctdf.Trip{},
		MetaTrips:  map[ctdf.MetaTripID]*ctdf.MetaTrip{},

		networksByURI:   map[string]ctdf.NetworkID{},
		linesByURI:      map[string]ctdf.LineID{},
		routesByURI:     map[string]ctdf.RouteID{},
		stopAreasByURI:  map[string]ctdf.StopAreaID{},
		stopPointsByURI: map[string]ctdf.StopPointID{},
		tripsByURI:      map[string]ctdf.TripID{},

		tripsByExternalID: map[string][]ctdf.TripID{},
		tripsByStopPoint:  map[ctdf.StopPointID][]ctdf.TripID{},
	}
}

func (d *Dataset) AddNetwork(uri string, name string) *ctdf.Network {
	if id, exists := d.networksByURI[uri]; exists {
		return d.Networks[id]
	}

	d.ids.network++
	network := &ctdf.Network{ID: ctdf.NetworkID(d.ids.network), URI: uri, Name: name}
	d.Networks[network.ID] = network
	d.networksByURI[uri] = network.ID

	return network
}

func (d *Dataset) AddLine(networkURI string, uri string, code string, name string) *ctdf.Line {
	if id, exists := d.linesByURI[uri]; exists {
		return d.Lines[id]
	}

	network := d.AddNetwork(networkURI, networkURI)

	d.ids.line++
	line := &ctdf.Line{ID: ctdf.LineID(d.ids.line), URI: uri, Code: code, Name: name, Network: network.ID}
	d.Lines[line.ID] = line
	d.linesByURI[uri] = line.ID
	network.Lines = append(network.Lines, line.ID)

	return line
}

func (d *Dataset) AddRoute(lineURI string, uri string, name string) (*ctdf.Route, error) {
	if id, exists := d.routesByURI[uri]; exists {
		return d.Routes[id], nil
	}

	line, exists := d.LineByURI(lineURI)
	if !exists {
		return nil, fmt.Errorf("route %s references unknown line %s", uri, lineURI)
	}

	d.ids.route++
	route := &ctdf.Route{ID: ctdf.RouteID(d.ids.route), URI: uri, Name: name, Line: line.ID}
	d.Routes[route.ID] = route
	d.routesByURI[uri] = route.ID
	line.Routes = append(line.Routes, route.ID)

	return route, nil
}

func (d *Dataset) AddStopArea(uri string, name string) *ctdf.StopArea {
	if id, exists := d.stopAreasByURI[uri]; exists {
		return d.StopAreas[id]
	}

	d.ids.stopArea++
	stopArea := &ctdf.StopArea{ID: ctdf.StopAreaID(d.ids.stopArea), URI: uri, Name: name}
	d.StopAreas[stopArea.ID] = stopArea
	d.stopAreasByURI[uri] = stopArea.ID

	return stopArea
}

// AddStopPoint creates the stop point, creating its stop area if it does not exist yet
func (d *Dataset) AddStopPoint(stopAreaURI string, uri string, name string) *ctdf.StopPoint {
	if id, exists := d.stopPointsByURI[uri]; exists {
		return d.StopPoints[id]
	}

	stopArea := d.AddStopArea(stopAreaURI, stopAreaURI)

	d.ids.stopPoint++
	stopPoint := &ctdf.StopPoint{ID: ctdf.StopPointID(d.ids.stopPoint), URI: uri, Name: name, StopArea: stopArea.ID}
	d.StopPoints[stopPoint.ID] = stopPoint
	d.stopPointsByURI[uri] = stopPoint.ID
	stopArea.StopPoints = append(stopArea.StopPoints, stopPoint.ID)

	return stopPoint
}

type StopTimeSpec struct {
	StopPoint      string
	Arrival        int
	Departure      int
	PickupAllowed  bool
	DropoffAllowed bool
}

type TripSpec struct {
	URI        string
	ExternalID string
	Route      string
	Days       ctdf.DaySet
	StopTimes  []StopTimeSpec
}

// AddTrip creates a base trip together with its meta trip
func (d *Dataset) AddTrip(spec TripSpec) (*ctdf.Trip, error) {
	if _, exists := d.tripsByURI[spec.URI]; exists {
		return nil, fmt.Errorf("%w: trip %s", ErrDuplicateURI, spec.URI)
	}

	route, exists := d.RouteByURI(spec.Route)
	if !exists {
		return nil, fmt.Errorf("%w: %s", ErrUnknownRoute, spec.Route)
	}

	stopTimes := make([]ctdf.StopTime, 0, len(spec.StopTimes))
	for i, stopTimeSpec := range spec.StopTimes {
		stopPoint, exists := d.StopPointByURI(stopTimeSpec.StopPoint)
		if !exists {
			return nil, fmt.Errorf("%w: %s", ErrUnknownStopPoint, stopTimeSpec.StopPoint)
		}
		stopTimes = append(stopTimes, ctdf.StopTime{
			Order:          uint32(i),
			StopPoint:      stopPoint.ID,
			Arrival:        stopTimeSpec.Arrival,
			Departure:      stopTimeSpec.Departure,
			PickupAllowed:  stopTimeSpec.PickupAllowed,
			DropoffAllowed: stopTimeSpec.DropoffAllowed,
		})
	}

	externalID := spec.ExternalID
	if externalID == "" {
		externalID = spec.URI
	}

	days := spec.Days
	if d.Days > 0 {
		// Days outside of the production period are never served
		var inProduction ctdf.DaySet
		for _, day := range days.Days() {
			if int(day) < d.Days {
				inProduction = inProduction.With(day)
			}
		}
		days = inProduction
	}

	d.ids.metaTrip++
	meta := &ctdf.MetaTrip{ID: ctdf.MetaTripID(d.ids.metaTrip), URI: spec.URI}
	d.MetaTrips[meta.ID] = meta

	d.ids.trip++
	trip := &ctdf.Trip{
		ID:             ctdf.TripID(d.ids.trip),
		URI:            spec.URI,
		ExternalID:     externalID,
		Route:          route.ID,
		MetaTrip:       meta.ID,
		StopTimes:      stopTimes,
		BasePattern:    d.Patterns.Acquire(days),
		AdaptedPattern: d.Patterns.Acquire(days),
		CausingImpacts: ctdf.ImpactSet{},
	}
	meta.Base = trip.ID

	d.Trips[trip.ID] = trip
	d.tripsByURI[trip.URI] = trip.ID
	d.tripsByExternalID[externalID] = append(d.tripsByExternalID[externalID], trip.ID)
	route.Trips = append(route.Trips, trip.ID)

	seen := map[ctdf.StopPointID]bool{}
	for _, stopTime := range stopTimes {
		if !seen[stopTime.StopPoint] {
			d.tripsByStopPoint[stopTime.StopPoint] = append(d.tripsByStopPoint[stopTime.StopPoint], trip.ID)
			seen[stopTime.StopPoint] = true
		}
	}

	return trip, nil
}

// AddAdaptedTrip registers a variant under its meta trip. The trip id is assigned here.
func (d *Dataset) AddAdaptedTrip(trip *ctdf.Trip) error {
	meta, exists := d.MetaTrips[trip.MetaTrip]
	if !exists {
		return fmt.Errorf("adapted trip %s references unknown meta trip %d", trip.URI, trip.MetaTrip)
	}
	if _, exists := d.tripsByURI[trip.URI]; exists {
		return fmt.Errorf("%w: trip %s", ErrDuplicateURI, trip.URI)
	}

	d.ids.trip++
	trip.ID = ctdf.TripID(d.ids.trip)
	trip.IsAdapted = true

	d.Trips[trip.ID] = trip
	d.tripsByURI[trip.URI] = trip.ID
	meta.Adapted = append(meta.Adapted, trip.ID)

	return nil
}

// RemoveAdaptedTrip drops a variant and releases its patterns
func (d *Dataset) RemoveAdaptedTrip(id ctdf.TripID) {
	trip, exists := d.Trips[id]
	if !exists || !trip.IsAdapted {
		return
	}

	if meta, exists := d.MetaTrips[trip.MetaTrip]; exists {
		adapted := meta.Adapted[:0]
		for _, sibling := range meta.Adapted {
			if sibling != id {
				adapted = append(adapted, sibling)
			}
		}
		meta.Adapted = adapted
	}

	d.Patterns.Release(trip.BasePattern)
	d.Patterns.Release(trip.AdaptedPattern)
	delete(d.tripsByURI, trip.URI)
	delete(d.Trips, id)
}

func (d *Dataset) NetworkByURI(uri string) (*ctdf.Network, bool) {
	id, exists := d.networksByURI[uri]
	return d.Networks[id], exists
}

func (d *Dataset) LineByURI(uri string) (*ctdf.Line, bool) {
	id, exists := d.linesByURI[uri]
	return d.Lines[id], exists
}

func (d *Dataset) RouteByURI(uri string) (*ctdf.Route, bool) {
	id, exists := d.routesByURI[uri]
	return d.Routes[id], exists
}

func (d *Dataset) StopAreaByURI(uri string) (*ctdf.StopArea, bool) {
	id, exists := d.stopAreasByURI[uri]
	return d.StopAreas[id], exists
}

func (d *Dataset) StopPointByURI(uri string) (*ctdf.StopPoint, bool) {
	id, exists := d.stopPointsByURI[uri]
	return d.StopPoints[id], exists
}

func (d *Dataset) TripByURI(uri string) (*ctdf.Trip, bool) {
	id, exists := d.tripsByURI[uri]
	return d.Trips[id], exists
}

// TripsByExternalID lists the base trips imported from the same source trip
func (d *Dataset) TripsByExternalID(externalID string) []ctdf.TripID {
	return d.tripsByExternalID[externalID]
}

// TripsByStopPoint lists the base trips calling at the stop point
func (d *Dataset) TripsByStopPoint(id ctdf.StopPointID) []ctdf.TripID {
	return d.tripsByStopPoint[id]
}

// BaseTrip resolves any variant to the base trip of its meta trip
func (d *Dataset) BaseTrip(trip *ctdf.Trip) *ctdf.Trip {
	if !trip.IsAdapted {
		return trip
	}
	if meta, exists := d.MetaTrips[trip.MetaTrip]; exists {
		return d.Trips[meta.Base]
	}
	return trip
}

// Variants returns the base trip followed by its adapted siblings in creation order
func (d *Dataset) Variants(meta ctdf.MetaTripID) []*ctdf.Trip {
	metaTrip, exists := d.MetaTrips[meta]
	if !exists {
		return nil
	}

	variants := make([]*ctdf.Trip, 0, len(metaTrip.Adapted)+1)
	for _, id := range metaTrip.Variants() {
		if trip, exists := d.Trips[id]; exists {
			variants = append(variants, trip)
		}
	}
	return variants
}

// Owner returns the variant of meta whose adapted pattern has day set
func (d *Dataset) Owner(meta ctdf.MetaTripID, day ctdf.ServiceDay) *ctdf.Trip {
	for _, trip := range d.Variants(meta) {
		if d.Patterns.Days(trip.AdaptedPattern).Has(day) {
			return trip
		}
	}
	return nil
}

func (d *Dataset) StopPointURI(id ctdf.StopPointID) string {
	if stopPoint, exists := d.StopPoints[id]; exists {
		return stopPoint.URI
	}
	return ""
}
