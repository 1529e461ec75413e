package disruption

import (
	"fmt"
	"strconv"
	"strings"

	"github.com/jinzhu/copier"
	"github.com/rs/zerolog/log"
	"github.com/travigo/disruptions/pkg/ctdf"
	"github.com/travigo/disruptions/pkg/dataset"
	"golang.org/x/exp/slices"
)

// Mutation records one change made to a meta trip while applying an impact
type Mutation struct {
	Trip    string            `groups:"basic"`
	Days    []ctdf.ServiceDay `groups:"basic"`
	Sibling string            `groups:"basic"`
	Created bool              `groups:"basic"`
}

// tripPlan is the resolved, validated work for one base trip of one impact
type tripPlan struct {
	meta    ctdf.MetaTripID
	base    ctdf.TripID
	days    ctdf.DaySet
	removed []uint32
}

// splitter applies one impact to the trip graph
type splitter struct {
	dataset  *dataset.Dataset
	impactID string
	names    *siblingNames

	// siblings created by this impact keyed by meta trip and removal signature
	siblings map[string]ctdf.TripID

	mutations map[ctdf.MetaTripID][]Mutation
}

func newSplitter(ds *dataset.Dataset, impactID string, names *siblingNames) *splitter {
	return &splitter{
		dataset:   ds,
		impactID:  impactID,
		names:     names,
		siblings:  map[string]ctdf.TripID{},
		mutations: map[ctdf.MetaTripID][]Mutation{},
	}
}

func (s *splitter) apply(plan tripPlan) {
	if plan.removed == nil {
		s.removeDays(plan)
	} else {
		s.removeStops(plan)
	}
}

// removeDays clears the days from whichever variant owns them
func (s *splitter) removeDays(plan tripPlan) {
	cleared := map[ctdf.TripID]ctdf.DaySet{}
	var owners []ctdf.TripID

	for _, day := range plan.days.Days() {
		owner := s.dataset.Owner(plan.meta, day)
		if owner == nil {
			continue
		}
		if _, exists := cleared[owner.ID]; !exists {
			owners = append(owners, owner.ID)
		}
		cleared[owner.ID] = cleared[owner.ID].With(day)
	}

	for _, ownerID := range owners {
		owner := s.dataset.Trips[ownerID]
		days := cleared[ownerID]

		remaining := s.dataset.Patterns.Days(owner.AdaptedPattern).Difference(days)
		owner.AdaptedPattern = s.dataset.Patterns.Replace(owner.AdaptedPattern, remaining)
		owner.CausingImpacts.Add(s.impactID)

		s.record(plan.meta, Mutation{Trip: owner.URI, Days: days.Days()})
	}
}

type handoff struct {
	from ctdf.TripID
	to   ctdf.TripID
}

// removeStops hands each day over to the sibling whose stop list lacks the union
// of the stops already removed that day and the stops of this impact
func (s *splitter) removeStops(plan tripPlan) {
	base := s.dataset.Trips[plan.base]

	moved := map[handoff]ctdf.DaySet{}
	var order []handoff
	created := map[ctdf.TripID]bool{}

	for _, day := range plan.days.Days() {
		owner := s.dataset.Owner(plan.meta, day)
		if owner == nil {
			// Cancelled that day by a whole trip effect
			continue
		}

		signature := unionOrders(owner.RemovedStops, plan.removed)
		if slices.Equal(signature, owner.RemovedStops) {
			owner.CausingImpacts.Add(s.impactID)
			continue
		}

		key := signatureKey(plan.meta, signature)
		siblingID, exists := s.siblings[key]
		if !exists {
			sibling, err := s.createSibling(base, owner, signature, key)
			if err != nil {
				log.Error().Err(err).Str("trip", base.URI).Str("impact", s.impactID).Msg("Failed to create adapted trip")
				continue
			}
			siblingID = sibling.ID
			s.siblings[key] = siblingID
			created[siblingID] = true
		}

		transfer := handoff{from: owner.ID, to: siblingID}
		if _, exists := moved[transfer]; !exists {
			order = append(order, transfer)
		}
		moved[transfer] = moved[transfer].With(day)
	}

	for _, transfer := range order {
		days := moved[transfer]
		owner := s.dataset.Trips[transfer.from]
		sibling := s.dataset.Trips[transfer.to]

		remaining := s.dataset.Patterns.Days(owner.AdaptedPattern).Difference(days)
		owner.AdaptedPattern = s.dataset.Patterns.Replace(owner.AdaptedPattern, remaining)

		gained := s.dataset.Patterns.Days(sibling.AdaptedPattern).Union(days)
		sibling.AdaptedPattern = s.dataset.Patterns.Replace(sibling.AdaptedPattern, gained)

		s.record(plan.meta, Mutation{
			Trip:    owner.URI,
			Days:    days.Days(),
			Sibling: sibling.URI,
			Created: created[sibling.ID],
		})
		created[sibling.ID] = false
	}
}

// createSibling clones the base trip without the signature stops. The sibling owns no day yet.
func (s *splitter) createSibling(base *ctdf.Trip, owner *ctdf.Trip, signature []uint32, key string) (*ctdf.Trip, error) {
	sibling := &ctdf.Trip{}
	if err := copier.CopyWithOption(sibling, base, copier.Option{DeepCopy: true}); err != nil {
		return nil, err
	}

	sibling.URI = s.siblingURI(base, key)
	sibling.StopTimes = base.WithoutStops(signature)
	sibling.RemovedStops = slices.Clone(signature)
	sibling.BasePattern = s.dataset.Patterns.Acquire(nil)
	sibling.AdaptedPattern = s.dataset.Patterns.Acquire(nil)

	sibling.CausingImpacts = ctdf.ImpactSet{}
	if owner.IsAdapted {
		for impact := range owner.CausingImpacts {
			sibling.CausingImpacts.Add(impact)
		}
	}
	sibling.CausingImpacts.Add(s.impactID)

	if err := s.dataset.AddAdaptedTrip(sibling); err != nil {
		s.dataset.Patterns.Release(sibling.BasePattern)
		s.dataset.Patterns.Release(sibling.AdaptedPattern)
		return nil, err
	}

	return sibling, nil
}

// siblingURI reuses the uri this impact gave the signature before, or picks the
// next free one that no other impact holds
func (s *splitter) siblingURI(base *ctdf.Trip, key string) string {
	if uri, exists := s.names.lookup(s.impactID, key); exists {
		if _, inUse := s.dataset.TripByURI(uri); !inUse {
			return uri
		}
	}

	sequence := len(s.dataset.MetaTrips[base.MetaTrip].Adapted)
	for {
		uri := fmt.Sprintf("%s:adapted:%d", base.URI, sequence)
		_, inUse := s.dataset.TripByURI(uri)
		if !inUse && !s.names.isReserved(uri) {
			s.names.remember(s.impactID, key, uri)
			return uri
		}
		sequence++
	}
}

func (s *splitter) record(meta ctdf.MetaTripID, mutation Mutation) {
	s.mutations[meta] = append(s.mutations[meta], mutation)
}

func unionOrders(a []uint32, b []uint32) []uint32 {
	union := slices.Clone(a)
	for _, order := range b {
		if !slices.Contains(union, order) {
			union = append(union, order)
		}
	}
	slices.Sort(union)
	return union
}

func signatureKey(meta ctdf.MetaTripID, signature []uint32) string {
	var b strings.Builder
	b.WriteString(strconv.FormatUint(uint64(meta), 10))
	b.WriteByte('/')
	for i, order := range signature {
		if i > 0 {
			b.WriteByte(',')
		}
		b.WriteString(strconv.FormatUint(uint64(order), 10))
	}
	return b.String()
}
