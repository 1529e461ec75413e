package ctdf

import (
	"math/bits"
	"strconv"
	"strings"
	"sync"
	"time"
)

// ServiceDay is a day offset from the dataset origin date
type ServiceDay int

// DaySet is a growable bitset of service days
type DaySet []uint64

func NewDaySet(days ...ServiceDay) DaySet {
	var s DaySet
	for _, day := range days {
		s = s.With(day)
	}
	return s
}

// ParseDaySet reads a string like "1110011" where the first character is day 0
func ParseDaySet(pattern string) DaySet {
	var s DaySet
	for i, c := range pattern {
		if c == '1' {
			s = s.With(ServiceDay(i))
		}
	}
	return s
}

func (s DaySet) Has(day ServiceDay) bool {
	if day < 0 {
		return false
	}
	word := int(day) / 64
	if word >= len(s) {
		return false
	}
	return s[word]&(1<<(uint(day)%64)) != 0
}

// With returns a copy of the set with day added
func (s DaySet) With(day ServiceDay) DaySet {
	if day < 0 {
		return s.Clone()
	}
	word := int(day) / 64
	out := make(DaySet, max(len(s), word+1))
	copy(out, s)
	out[word] |= 1 << (uint(day) % 64)
	return out
}

// Without returns a copy of the set with day removed
func (s DaySet) Without(day ServiceDay) DaySet {
	out := s.Clone()
	if day < 0 || int(day)/64 >= len(out) {
		return out.trim()
	}
	out[int(day)/64] &^= 1 << (uint(day) % 64)
	return out.trim()
}

func (s DaySet) Union(other DaySet) DaySet {
	out := make(DaySet, max(len(s), len(other)))
	copy(out, s)
	for i, w := range other {
		out[i] |= w
	}
	return out.trim()
}

func (s DaySet) Intersect(other DaySet) DaySet {
	out := make(DaySet, min(len(s), len(other)))
	for i := range out {
		out[i] = s[i] & other[i]
	}
	return out.trim()
}

func (s DaySet) Difference(other DaySet) DaySet {
	out := s.Clone()
	for i := range out {
		if i < len(other) {
			out[i] &^= other[i]
		}
	}
	return out.trim()
}

func (s DaySet) Count() int {
	n := 0
	for _, w := range s {
		n += bits.OnesCount64(w)
	}
	return n
}

func (s DaySet) Empty() bool {
	for _, w := range s {
		if w != 0 {
			return false
		}
	}
	return true
}

func (s DaySet) Equal(other DaySet) bool {
	a, b := s.trim(), other.trim()
	if len(a) != len(b) {
		return false
	}
	for i := range a {
		if a[i] != b[i] {
			return false
		}
	}
	return true
}

// Days lists the set members in ascending order
func (s DaySet) Days() []ServiceDay {
	var days []ServiceDay
	for i, w := range s {
		for w != 0 {
			bit := bits.TrailingZeros64(w)
			days = append(days, ServiceDay(i*64+bit))
			w &^= 1 << uint(bit)
		}
	}
	return days
}

func (s DaySet) Clone() DaySet {
	if s == nil {
		return nil
	}
	out := make(DaySet, len(s))
	copy(out, s)
	return out
}

// Format renders the first length days as a string of 0 and 1
func (s DaySet) Format(length int) string {
	var b strings.Builder
	b.Grow(length)
	for i := 0; i < length; i++ {
		if s.Has(ServiceDay(i)) {
			b.WriteByte('1')
		} else {
			b.WriteByte('0')
		}
	}
	return b.String()
}

// Key is a canonical representation usable as a map key
func (s DaySet) Key() string {
	t := s.trim()
	var b strings.Builder
	for i, w := range t {
		if i > 0 {
			b.WriteByte('.')
		}
		b.WriteString(strconv.FormatUint(w, 16))
	}
	return b.String()
}

func (s DaySet) trim() DaySet {
	n := len(s)
	for n > 0 && s[n-1] == 0 {
		n--
	}
	return s[:n]
}

// ValidityPattern is an immutable day bitset anchored on the dataset origin
type ValidityPattern struct {
	Beginning time.Time
	Days      DaySet
}

func (vp *ValidityPattern) Check(day ServiceDay) bool {
	return vp.Days.Has(day)
}

type PatternID uint32

type pooledPattern struct {
	pattern *ValidityPattern
	refs    int
}

// ValidityPatternPool stores every distinct pattern once. Patterns are shared
// by reference count and dropped once the last holder releases them.
type ValidityPatternPool struct {
	Beginning time.Time

	mutex    sync.RWMutex
	patterns map[PatternID]*pooledPattern
	byKey    map[string]PatternID
	nextID   PatternID
}

func NewValidityPatternPool(beginning time.Time) *ValidityPatternPool {
	return &ValidityPatternPool{
		Beginning: beginning,
		patterns:  map[PatternID]*pooledPattern{},
		byKey:     map[string]PatternID{},
		nextID:    1,
	}
}

// Acquire returns the id of the pattern holding exactly days, creating it if needed
func (p *ValidityPatternPool) Acquire(days DaySet) PatternID {
	p.mutex.Lock()
	defer p.mutex.Unlock()

	key := days.Key()
	if id, exists := p.byKey[key]; exists {
		p.patterns[id].refs++
		return id
	}

	id := p.nextID
	p.nextID++
	p.patterns[id] = &pooledPattern{
		pattern: &ValidityPattern{Beginning: p.Beginning, Days: days.Clone().trim()},
		refs:    1,
	}
	p.byKey[key] = id

	return id
}

func (p *ValidityPatternPool) Release(id PatternID) {
	p.mutex.Lock()
	defer p.mutex.Unlock()

	entry, exists := p.patterns[id]
	if !exists {
		return
	}
	entry.refs--
	if entry.refs <= 0 {
		delete(p.patterns, id)
		delete(p.byKey, entry.pattern.Days.Key())
	}
}

// Replace releases old and acquires days in one step
func (p *ValidityPatternPool) Replace(old PatternID, days DaySet) PatternID {
	id := p.Acquire(days)
	p.Release(old)
	return id
}

func (p *ValidityPatternPool) Get(id PatternID) *ValidityPattern {
	p.mutex.RLock()
	defer p.mutex.RUnlock()

	if entry, exists := p.patterns[id]; exists {
		return entry.pattern
	}
	return &ValidityPattern{Beginning: p.Beginning}
}

func (p *ValidityPatternPool) Days(id PatternID) DaySet {
	return p.Get(id).Days
}

func (p *ValidityPatternPool) Len() int {
	p.mutex.RLock()
	defer p.mutex.RUnlock()

	return len(p.patterns)
}

func (p *ValidityPatternPool) Refs(id PatternID) int {
	p.mutex.RLock()
	defer p.mutex.RUnlock()

	if entry, exists := p.patterns[id]; exists {
		return entry.refs
	}
	return 0
}

// Clone copies the pool bookkeeping. The patterns themselves are immutable and shared.
func (p *ValidityPatternPool) Clone() *ValidityPatternPool {
	p.mutex.RLock()
	defer p.mutex.RUnlock()

	out := &ValidityPatternPool{
		Beginning: p.Beginning,
		patterns:  make(map[PatternID]*pooledPattern, len(p.patterns)),
		byKey:     make(map[string]PatternID, len(p.byKey)),
		nextID:    p.nextID,
	}
	for id, entry := range p.patterns {
		out.patterns[id] = &pooledPattern{pattern: entry.pattern, refs: entry.refs}
	}
	for key, id := range p.byKey {
		out.byKey[key] = id
	}
	return out
}
