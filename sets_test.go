package statsagg

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestSetInsertCollapsesDuplicates(t *testing.T) {
	t.Parallel()
	s := NewSet()
	s.Insert("a")
	s.Insert("a")
	s.Insert("b")
	assert.Len(t, s, 2)
	assert.True(t, s.Has("a"))
	assert.False(t, s.Has("c"))
	assert.Equal(t, []string{"a", "b"}, s.Values())
}

func TestNextBoundary(t *testing.T) {
	t.Parallel()
	input := []struct {
		now, interval, expected int64
	}{
		{0, 60, 0},
		{1, 60, 60},
		{59, 60, 60},
		{60, 60, 60},
		{61, 60, 120},
		{1500000001, 3600, 1500001200},
		{1500000000, 86400, 1500076800},
	}
	for _, in := range input {
		assert.Equal(t, in.expected, NextBoundary(in.now, in.interval), "%d/%d", in.now, in.interval)
		assert.Zero(t, NextBoundary(in.now, in.interval)%in.interval)
	}
}

func TestSuperSetInterval(t *testing.T) {
	t.Parallel()
	input := map[string]int64{
		"x.minutely":     60,
		"x.y.hourly":     3600,
		"users.daily":    86400,
		"daily":          0,
		"x.weekly":       0,
		"x.minutely.foo": 0,
		"x.":             0,
	}
	for key, expected := range input {
		interval, ok := SuperSetInterval(key)
		assert.Equal(t, expected != 0, ok, key)
		assert.Equal(t, expected, interval, key)
	}
}

func TestSuperSetReset(t *testing.T) {
	t.Parallel()
	ss := NewSuperSet(60, 1000)
	require.EqualValues(t, 1020, ss.ResetTime)
	ss.Values.Insert("a")
	assert.False(t, ss.Expired(1019))
	assert.True(t, ss.Expired(1020))
	ss.Reset(1021)
	assert.EqualValues(t, 1080, ss.ResetTime)
	assert.Empty(t, ss.Values)
}

func TestSuperSetResetOnBoundary(t *testing.T) {
	t.Parallel()
	ss := NewSuperSet(60, 1020)
	require.EqualValues(t, 1020, ss.ResetTime)
	assert.True(t, ss.Expired(1020))
	ss.Values.Insert("a")
	ss.Reset(1080)
	assert.EqualValues(t, 1080, ss.ResetTime)
	assert.True(t, ss.Expired(1080))
	assert.True(t, ss.Expired(1090))
	ss.Reset(1090)
	assert.EqualValues(t, 1140, ss.ResetTime)
	assert.False(t, ss.Expired(1139))
}

func TestSuperSetsCopyIsDeep(t *testing.T) {
	t.Parallel()
	orig := SuperSets{"x.minutely": NewSuperSet(60, 30)}
	orig["x.minutely"].Values.Insert("a")
	cp := orig.Copy()
	orig["x.minutely"].Values.Insert("b")
	assert.Len(t, cp["x.minutely"].Values, 1)
	assert.EqualValues(t, 60, cp["x.minutely"].ResetTime)
}
