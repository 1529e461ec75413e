package ctdf

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func TestDaySetOperations(t *testing.T) {
	a := ParseDaySet("1100110")
	b := NewDaySet(1, 2, 70)

	assert.True(t, a.Has(0))
	assert.False(t, a.Has(2))
	assert.False(t, a.Has(-1))
	assert.False(t, a.Has(500))
	assert.True(t, b.Has(70))

	assert.Equal(t, []ServiceDay{0, 1, 2, 4, 5, 70}, a.Union(b).Days())
	assert.Equal(t, []ServiceDay{1}, a.Intersect(b).Days())
	assert.Equal(t, []ServiceDay{0, 4, 5}, a.Difference(b).Days())
	assert.Equal(t, 4, a.Count())

	assert.Equal(t, "0110000", b.Format(7))
	assert.True(t, NewDaySet().Empty())
	assert.True(t, b.Without(70).Without(1).Without(2).Empty())

	// With and Without never touch the receiver
	c := a.With(3)
	assert.False(t, a.Has(3))
	assert.True(t, c.Has(3))
}

func TestDaySetEqualityIgnoresTrailingWords(t *testing.T) {
	a := NewDaySet(3, 100).Without(100)
	b := NewDaySet(3)

	assert.True(t, a.Equal(b))
	assert.Equal(t, a.Key(), b.Key())
	assert.NotEqual(t, NewDaySet(4).Key(), b.Key())
}

func TestValidityPatternPoolDeduplicates(t *testing.T) {
	pool := NewValidityPatternPool(time.Date(2024, time.January, 1, 0, 0, 0, 0, time.UTC))

	weekdays := pool.Acquire(ParseDaySet("1111100"))
	again := pool.Acquire(ParseDaySet("11111"))
	weekend := pool.Acquire(ParseDaySet("0000011"))

	assert.Equal(t, weekdays, again)
	assert.NotEqual(t, weekdays, weekend)
	assert.Equal(t, 2, pool.Len())
	assert.Equal(t, 2, pool.Refs(weekdays))
	assert.True(t, pool.Get(weekdays).Check(4))
	assert.False(t, pool.Get(weekdays).Check(5))

	replaced := pool.Replace(weekdays, ParseDaySet("0000011"))
	assert.Equal(t, weekend, replaced)
	assert.Equal(t, 1, pool.Refs(weekdays))
	assert.Equal(t, 2, pool.Refs(weekend))

	pool.Release(weekdays)
	assert.Equal(t, 1, pool.Len())
	assert.True(t, pool.Days(weekdays).Empty())

	// A released pattern is created afresh
	recreated := pool.Acquire(ParseDaySet("1111100"))
	assert.NotEqual(t, weekdays, recreated)
	assert.Equal(t, 1, pool.Refs(recreated))
}

func TestValidityPatternPoolCloneIsIndependent(t *testing.T) {
	pool := NewValidityPatternPool(time.Date(2024, time.January, 1, 0, 0, 0, 0, time.UTC))
	id := pool.Acquire(ParseDaySet("101"))

	clone := pool.Clone()
	clone.Release(id)

	assert.Equal(t, 1, pool.Refs(id))
	assert.Equal(t, 0, clone.Refs(id))
	assert.Equal(t, "101", pool.Days(id).Format(3))
}
