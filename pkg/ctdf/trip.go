package ctdf

import (
	"golang.org/x/exp/slices"
)

type TripID uint32
type MetaTripID uint32

type StopTime struct {
	Order          uint32      `groups:"basic"`
	StopPoint      StopPointID `groups:"internal"`
	Arrival        int         `groups:"basic"`
	Departure      int         `groups:"basic"`
	PickupAllowed  bool        `groups:"detailed"`
	DropoffAllowed bool        `groups:"detailed"`
}

// Window is the span during which the vehicle is at the stop
func (s StopTime) Window() (int, int) {
	switch {
	case !s.PickupAllowed && s.DropoffAllowed:
		return s.Arrival, s.Arrival
	case s.PickupAllowed && !s.DropoffAllowed:
		return s.Departure, s.Departure
	default:
		return s.Arrival, s.Departure
	}
}

// ImpactSet holds impact ids
type ImpactSet map[string]struct{}

func (s ImpactSet) Add(id string) {
	s[id] = struct{}{}
}

func (s ImpactSet) Has(id string) bool {
	_, exists := s[id]
	return exists
}

func (s ImpactSet) Sorted() []string {
	ids := make([]string, 0, len(s))
	for id := range s {
		ids = append(ids, id)
	}
	slices.Sort(ids)
	return ids
}

// Trip is one vehicle journey variant
type Trip struct {
	ID         TripID
	URI        string
	ExternalID string
	Route      RouteID
	MetaTrip   MetaTripID

	StopTimes []StopTime

	BasePattern    PatternID
	AdaptedPattern PatternID

	IsAdapted bool
	// RemovedStops are orders of the base trip missing from this variant
	RemovedStops []uint32

	CausingImpacts ImpactSet
}

func (t *Trip) FirstDeparture() int {
	if len(t.StopTimes) == 0 {
		return 0
	}
	return t.StopTimes[0].Departure
}

func (t *Trip) LastArrival() int {
	if len(t.StopTimes) == 0 {
		return 0
	}
	return t.StopTimes[len(t.StopTimes)-1].Arrival
}

// SpannedDays is how many calendar days past its service day the trip reaches
func (t *Trip) SpannedDays() int {
	return t.LastArrival() / SecondsPerDay
}

// StopOrders lists the orders of the stops visiting stopPoint
func (t *Trip) StopOrders(stopPoint StopPointID) []uint32 {
	var orders []uint32
	for _, stopTime := range t.StopTimes {
		if stopTime.StopPoint == stopPoint {
			orders = append(orders, stopTime.Order)
		}
	}
	return orders
}

// WithoutStops returns the stop times minus the given orders, renumbered densely
func (t *Trip) WithoutStops(removed []uint32) []StopTime {
	stopTimes := make([]StopTime, 0, len(t.StopTimes))
	for _, stopTime := range t.StopTimes {
		if slices.Contains(removed, stopTime.Order) {
			continue
		}
		stopTime.Order = uint32(len(stopTimes))
		stopTimes = append(stopTimes, stopTime)
	}
	return stopTimes
}

// MetaTrip groups a base trip with the adapted variants derived from it
type MetaTrip struct {
	ID      MetaTripID
	URI     string
	Base    TripID
	Adapted []TripID
}

func (m *MetaTrip) Variants() []TripID {
	variants := make([]TripID, 0, len(m.Adapted)+1)
	variants = append(variants, m.Base)
	return append(variants, m.Adapted...)
}
