package disruption

import "github.com/travigo/disruptions/pkg/ctdf"

type pooledObject[T any] struct {
	value *T
	refs  int
}

// objectPool shares causes, severities and tags by id. Acquiring an existing id
// overwrites the shared value in place so every holder sees the update. The pool
// is only touched with the manager write lock held and readers only see copies.
type objectPool[T any] struct {
	objects map[string]*pooledObject[T]
}

func newObjectPool[T any]() *objectPool[T] {
	return &objectPool[T]{objects: map[string]*pooledObject[T]{}}
}

func (p *objectPool[T]) acquire(id string, value T) *T {
	if object, exists := p.objects[id]; exists {
		*object.value = value
		object.refs++
		return object.value
	}

	stored := value
	p.objects[id] = &pooledObject[T]{value: &stored, refs: 1}
	return &stored
}

func (p *objectPool[T]) release(id string) {
	object, exists := p.objects[id]
	if !exists {
		return
	}
	object.refs--
	if object.refs <= 0 {
		delete(p.objects, id)
	}
}

// get returns a copy of the shared value
func (p *objectPool[T]) get(id string) (*T, bool) {
	object, exists := p.objects[id]
	if !exists {
		return nil, false
	}
	value := *object.value
	return &value, true
}

func (p *objectPool[T]) len() int {
	return len(p.objects)
}

// pool swaps the disruption's cause, tags and severities for the shared instances
func (m *Manager) pool(disruption *ctdf.Disruption) {
	if disruption.Cause != nil && disruption.Cause.ID != "" {
		disruption.Cause = m.causes.acquire(disruption.Cause.ID, *disruption.Cause)
	}

	for i, tag := range disruption.Tags {
		if tag != nil && tag.ID != "" {
			disruption.Tags[i] = m.tags.acquire(tag.ID, *tag)
		}
	}

	for _, impact := range disruption.Impacts {
		if impact.Severity != nil && impact.Severity.ID != "" {
			impact.Severity = m.severities.acquire(impact.Severity.ID, *impact.Severity)
		}
	}
}

func (m *Manager) unpool(disruption *ctdf.Disruption) {
	if disruption.Cause != nil && disruption.Cause.ID != "" {
		m.causes.release(disruption.Cause.ID)
	}

	for _, tag := range disruption.Tags {
		if tag != nil && tag.ID != "" {
			m.tags.release(tag.ID)
		}
	}

	for _, impact := range disruption.Impacts {
		if impact.Severity != nil && impact.Severity.ID != "" {
			m.severities.release(impact.Severity.ID)
		}
	}
}

func (m *Manager) Cause(id string) (*ctdf.Cause, bool) {
	m.mutex.RLock()
	defer m.mutex.RUnlock()

	return m.causes.get(id)
}

func (m *Manager) Severity(id string) (*ctdf.Severity, bool) {
	m.mutex.RLock()
	defer m.mutex.RUnlock()

	return m.severities.get(id)
}

func (m *Manager) Tag(id string) (*ctdf.Tag, bool) {
	m.mutex.RLock()
	defer m.mutex.RUnlock()

	return m.tags.get(id)
}
