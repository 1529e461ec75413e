package disruption

import (
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/rs/zerolog/log"
	"github.com/travigo/disruptions/pkg/ctdf"
	"github.com/travigo/disruptions/pkg/dataset"
	"golang.org/x/exp/slices"
)

// ApplyReport summarises what an apply did with a disruption
type ApplyReport struct {
	DisruptionID  string
	Impacts       int
	AffectedTrips int
	Rejections    []*RejectionError
}

type appliedImpact struct {
	impact  *ctdf.Impact
	plans   []tripPlan
	objects []ctdf.PtObjKey

	journal map[ctdf.MetaTripID][]Mutation
}

type registeredDisruption struct {
	disruption *ctdf.Disruption
	seq        uint64
	impacts    []*appliedImpact
}

func (r *registeredDisruption) impactIDs() []string {
	ids := make([]string, 0, len(r.impacts))
	for _, applied := range r.impacts {
		ids = append(ids, applied.impact.ID)
	}
	return ids
}

// Manager owns the disruptions applied to a working dataset. All writes go through
// a single caller, reads of the registry may happen concurrently.
type Manager struct {
	dataset  *dataset.Dataset
	resolver *Resolver
	metrics  *Metrics

	causes     *objectPool[ctdf.Cause]
	severities *objectPool[ctdf.Severity]
	tags       *objectPool[ctdf.Tag]

	// sibling uris survive the reset of their meta trip
	names *siblingNames

	mutex         sync.RWMutex
	disruptions   map[string]*registeredDisruption
	objectImpacts map[ctdf.PtObjKey]ctdf.ImpactSet
	seq           uint64
}

func NewManager(ds *dataset.Dataset, metrics *Metrics) *Manager {
	if metrics == nil {
		metrics = NewMetrics()
	}

	return &Manager{
		dataset:  ds,
		resolver: NewResolver(ds),
		metrics:  metrics,

		causes:     newObjectPool[ctdf.Cause](),
		severities: newObjectPool[ctdf.Severity](),
		tags:       newObjectPool[ctdf.Tag](),

		names: newSiblingNames(),

		disruptions:   map[string]*registeredDisruption{},
		objectImpacts: map[ctdf.PtObjKey]ctdf.ImpactSet{},
	}
}

func (m *Manager) Dataset() *dataset.Dataset {
	return m.dataset
}

func (m *Manager) Metrics() *Metrics {
	return m.metrics
}

// Publish stores a snapshot of the working dataset in handle
func (m *Manager) Publish(handle *dataset.Handle) {
	m.mutex.RLock()
	defer m.mutex.RUnlock()

	handle.Publish(m.dataset)
}

// Apply registers the disruption and mutates the schedule. A disruption already
// registered under the same id is deleted first.
func (m *Manager) Apply(disruption *ctdf.Disruption) (*ApplyReport, error) {
	startTime := time.Now()

	m.mutex.Lock()
	defer m.mutex.Unlock()

	// The previous version's sibling uris are kept for the impacts the new version still has
	var previous []string
	if _, exists := m.disruptions[disruption.ID]; exists {
		previous = m.delete(disruption.ID).impactIDs()
	}

	report := &ApplyReport{DisruptionID: disruption.ID}

	if !disruption.IsPublishable(m.dataset.Production) {
		rejection := &RejectionError{
			Kind:         RejectionNotPublishable,
			DisruptionID: disruption.ID,
			Err:          ErrNotPublishable,
		}
		m.reject(rejection)
		report.Rejections = append(report.Rejections, rejection)
		m.names.forget(previous...)
		m.updateGauges()

		return report, rejection
	}

	m.pool(disruption)

	m.seq++
	registered := &registeredDisruption{disruption: disruption, seq: m.seq}

	affected := map[ctdf.TripID]bool{}
	for _, impact := range disruption.Impacts {
		applied, rejections := m.plan(disruption, impact)
		report.Rejections = append(report.Rejections, rejections...)

		m.run(applied, nil)
		m.index(applied)

		for _, plan := range applied.plans {
			affected[plan.base] = true
		}
		registered.impacts = append(registered.impacts, applied)
	}

	m.disruptions[disruption.ID] = registered

	current := registered.impactIDs()
	for _, impactID := range previous {
		if !slices.Contains(current, impactID) {
			m.names.forget(impactID)
		}
	}

	report.Impacts = len(registered.impacts)
	report.AffectedTrips = len(affected)

	m.metrics.Applied.Inc()
	m.metrics.ApplyDuration.Observe(time.Since(startTime).Seconds())
	m.updateGauges()

	log.Info().
		Str("disruption", disruption.ID).
		Int("impacts", report.Impacts).
		Int("trips", report.AffectedTrips).
		Int("rejections", len(report.Rejections)).
		Msg("Applied disruption")

	return report, nil
}

// Update replaces a registered disruption with a new version. Apply deletes the
// previous version first, keeping the uris of the siblings its impacts created.
func (m *Manager) Update(disruption *ctdf.Disruption) (*ApplyReport, error) {
	return m.Apply(disruption)
}

// Delete removes the disruption and restores the schedule as if it was never applied
func (m *Manager) Delete(id string) error {
	m.mutex.Lock()
	defer m.mutex.Unlock()

	if _, exists := m.disruptions[id]; !exists {
		return ErrUnknownDisruption
	}

	m.names.forget(m.delete(id).impactIDs()...)
	m.updateGauges()

	return nil
}

func (m *Manager) delete(id string) *registeredDisruption {
	startTime := time.Now()

	registered := m.disruptions[id]
	delete(m.disruptions, id)

	touched := map[ctdf.MetaTripID]bool{}
	for _, applied := range registered.impacts {
		for _, plan := range applied.plans {
			touched[plan.meta] = true
		}
		m.unindex(applied)
	}
	m.unpool(registered.disruption)

	for meta := range touched {
		m.reset(meta)
	}
	m.replay(touched)
	swept := m.sweep()

	m.metrics.Deleted.Inc()
	m.metrics.DeleteDuration.Observe(time.Since(startTime).Seconds())

	log.Info().
		Str("disruption", id).
		Int("trips", len(touched)).
		Int("swept", swept).
		Msg("Deleted disruption")

	return registered
}

// Sweep drops adapted variants owning no day and carrying no causing impact
func (m *Manager) Sweep() int {
	m.mutex.Lock()
	defer m.mutex.Unlock()

	swept := m.sweep()
	m.updateGauges()
	return swept
}

func (m *Manager) sweep() int {
	var unused []ctdf.TripID
	for _, meta := range m.dataset.MetaTrips {
		for _, tripID := range meta.Adapted {
			trip := m.dataset.Trips[tripID]
			if m.dataset.Patterns.Days(trip.AdaptedPattern).Empty() && len(trip.CausingImpacts) == 0 {
				unused = append(unused, tripID)
			}
		}
	}

	for _, tripID := range unused {
		m.dataset.RemoveAdaptedTrip(tripID)
	}
	return len(unused)
}

// plan validates and resolves an impact without touching the schedule
func (m *Manager) plan(disruption *ctdf.Disruption, impact *ctdf.Impact) (*appliedImpact, []*RejectionError) {
	applied := &appliedImpact{
		impact:  impact,
		journal: map[ctdf.MetaTripID][]Mutation{},
	}
	var rejections []*RejectionError

	windows := make([]ctdf.ApplicationWindow, 0, len(impact.ApplicationWindows))
	for _, window := range impact.ApplicationWindows {
		if err := window.Validate(); err != nil {
			rejection := &RejectionError{
				Kind:         RejectionInvalidApplicationWindow,
				DisruptionID: disruption.ID,
				ImpactID:     impact.ID,
				Err:          fmt.Errorf("%w: %s", ErrInvalidApplicationWindow, err),
			}
			m.reject(rejection)
			rejections = append(rejections, rejection)
			continue
		}
		windows = append(windows, window)
	}
	impact.ApplicationWindows = windows

	affected, failures := m.resolver.ResolveAll(impact.Targets)
	for _, failure := range failures {
		rejection := &RejectionError{
			Kind:         rejectionKind(failure.Err),
			DisruptionID: disruption.ID,
			ImpactID:     impact.ID,
			Target:       failure.Target.Key().String(),
			Err:          failure.Err,
		}
		m.reject(rejection)
		rejections = append(rejections, rejection)
	}

	failed := map[ctdf.PtObjKey]bool{}
	for _, failure := range failures {
		failed[failure.Target.Key()] = true
	}
	for _, target := range impact.Targets {
		if key := target.Key(); !failed[key] && !slices.Contains(applied.objects, key) {
			applied.objects = append(applied.objects, key)
		}
	}

	cache := newActivityCache(impact, m.dataset.Calendar)
	for _, entry := range affected {
		trip := m.dataset.Trips[entry.Trip]

		tripKey := ctdf.PtObjKey{Kind: ctdf.PtObjTrip, URI: trip.URI}
		if !slices.Contains(applied.objects, tripKey) {
			applied.objects = append(applied.objects, tripKey)
		}

		if !impact.Effect().Mutates() || len(windows) == 0 {
			continue
		}
		// Only NO_SERVICE cancels whole trips, other effects only remove named stops
		if entry.IsWholeTrip() && impact.Effect() != ctdf.EffectNoService {
			continue
		}

		days := activeDays(cache, m.dataset.Patterns, trip, entry.RemovedStops)
		if days.Empty() {
			continue
		}

		applied.plans = append(applied.plans, tripPlan{
			meta:    trip.MetaTrip,
			base:    trip.ID,
			days:    days,
			removed: slices.Clone(entry.RemovedStops),
		})
	}

	return applied, rejections
}

// run executes the impact's plans, restricted to the given meta trips when not nil
func (m *Manager) run(applied *appliedImpact, only map[ctdf.MetaTripID]bool) {
	s := newSplitter(m.dataset, applied.impact.ID, m.names)
	for _, plan := range applied.plans {
		if only != nil && !only[plan.meta] {
			continue
		}
		s.apply(plan)
	}

	for meta, mutations := range s.mutations {
		applied.journal[meta] = mutations
	}
}

// reset puts a meta trip back to its base schedule
func (m *Manager) reset(metaID ctdf.MetaTripID) {
	meta, exists := m.dataset.MetaTrips[metaID]
	if !exists {
		return
	}

	for _, tripID := range slices.Clone(meta.Adapted) {
		m.dataset.RemoveAdaptedTrip(tripID)
	}

	base := m.dataset.Trips[meta.Base]
	base.AdaptedPattern = m.dataset.Patterns.Replace(base.AdaptedPattern, m.dataset.Patterns.Days(base.BasePattern))
	base.CausingImpacts = ctdf.ImpactSet{}
}

// replay re-applies every registered impact touching the meta trips, in registration order
func (m *Manager) replay(metas map[ctdf.MetaTripID]bool) {
	for _, registered := range m.ordered() {
		for _, applied := range registered.impacts {
			for meta := range metas {
				delete(applied.journal, meta)
			}
			m.run(applied, metas)
		}
	}
}

func (m *Manager) ordered() []*registeredDisruption {
	ordered := make([]*registeredDisruption, 0, len(m.disruptions))
	for _, registered := range m.disruptions {
		ordered = append(ordered, registered)
	}
	sort.Slice(ordered, func(i, j int) bool {
		return ordered[i].seq < ordered[j].seq
	})
	return ordered
}

func (m *Manager) index(applied *appliedImpact) {
	for _, key := range applied.objects {
		impacts, exists := m.objectImpacts[key]
		if !exists {
			impacts = ctdf.ImpactSet{}
			m.objectImpacts[key] = impacts
		}
		impacts.Add(applied.impact.ID)
	}
}

func (m *Manager) unindex(applied *appliedImpact) {
	for _, key := range applied.objects {
		impacts, exists := m.objectImpacts[key]
		if !exists {
			continue
		}
		delete(impacts, applied.impact.ID)
		if len(impacts) == 0 {
			delete(m.objectImpacts, key)
		}
	}
}

func (m *Manager) reject(rejection *RejectionError) {
	m.metrics.Rejections.WithLabelValues(string(rejection.Kind)).Inc()

	log.Warn().
		Str("disruption", rejection.DisruptionID).
		Str("impact", rejection.ImpactID).
		Str("target", rejection.Target).
		Str("reason", string(rejection.Kind)).
		Err(rejection.Err).
		Msg("Rejected disruption part")
}

func (m *Manager) updateGauges() {
	adapted := 0
	for _, meta := range m.dataset.MetaTrips {
		adapted += len(meta.Adapted)
	}

	m.metrics.ActiveDisruptions.Set(float64(len(m.disruptions)))
	m.metrics.AdaptedTrips.Set(float64(adapted))
	m.metrics.Patterns.Set(float64(m.dataset.Patterns.Len()))
}

// Disruption returns a copy of the registered disruption. The pooled causes, tags
// and severities it references keep changing on the writer path.
func (m *Manager) Disruption(id string) (*ctdf.Disruption, bool) {
	m.mutex.RLock()
	defer m.mutex.RUnlock()

	registered, exists := m.disruptions[id]
	if !exists {
		return nil, false
	}
	return registered.disruption.Clone(), true
}

// Disruptions lists copies of the registered disruptions in application order
func (m *Manager) Disruptions() []*ctdf.Disruption {
	m.mutex.RLock()
	defer m.mutex.RUnlock()

	ordered := m.ordered()
	disruptions := make([]*ctdf.Disruption, 0, len(ordered))
	for _, registered := range ordered {
		disruptions = append(disruptions, registered.disruption.Clone())
	}
	return disruptions
}

func (m *Manager) Len() int {
	m.mutex.RLock()
	defer m.mutex.RUnlock()

	return len(m.disruptions)
}

// ImpactsOn returns the ids of the registered impacts affecting a PT object
func (m *Manager) ImpactsOn(key ctdf.PtObjKey) []string {
	m.mutex.RLock()
	defer m.mutex.RUnlock()

	impacts, exists := m.objectImpacts[key]
	if !exists {
		return nil
	}
	return impacts.Sorted()
}

// Journal returns the mutations recorded by each impact of the disruption
func (m *Manager) Journal(id string) (map[string][]Mutation, error) {
	m.mutex.RLock()
	defer m.mutex.RUnlock()

	registered, exists := m.disruptions[id]
	if !exists {
		return nil, ErrUnknownDisruption
	}

	journal := map[string][]Mutation{}
	for _, applied := range registered.impacts {
		metas := make([]ctdf.MetaTripID, 0, len(applied.journal))
		for meta := range applied.journal {
			metas = append(metas, meta)
		}
		slices.Sort(metas)

		mutations := []Mutation{}
		for _, meta := range metas {
			mutations = append(mutations, applied.journal[meta]...)
		}
		journal[applied.impact.ID] = mutations
	}
	return journal, nil
}

// Impact finds a registered impact and the disruption it belongs to
func (m *Manager) Impact(id string) (*ctdf.Impact, *ctdf.Disruption, bool) {
	m.mutex.RLock()
	defer m.mutex.RUnlock()

	for _, registered := range m.disruptions {
		for index, applied := range registered.impacts {
			if applied.impact.ID == id {
				disruption := registered.disruption.Clone()
				return disruption.Impacts[index], disruption, true
			}
		}
	}
	return nil, nil, false
}
