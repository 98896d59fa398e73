package timewindow

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var base = time.Date(2025, 3, 10, 10, 0, 0, 0, time.UTC)

func at(min int) time.Time { return base.Add(time.Duration(min) * time.Minute) }

func TestNormalize_MixedZones(t *testing.T) {
	phoenix := time.FixedZone("MST", -7*3600)
	local := time.Date(2025, 3, 10, 3, 0, 0, 0, phoenix)

	assert.True(t, Normalize(local).Equal(base))
	assert.Equal(t, time.UTC, Normalize(local).Location())
	assert.True(t, Normalize(time.Time{}).IsZero())
}

func TestWindow_Validate(t *testing.T) {
	assert.NoError(t, New(at(0), at(30)).Validate())
	assert.NoError(t, New(at(0), at(0)).Validate())
	assert.ErrorIs(t, New(time.Time{}, at(30)).Validate(), ErrMissingBound)
	assert.ErrorIs(t, New(at(0), time.Time{}).Validate(), ErrMissingBound)
	assert.ErrorIs(t, New(at(30), at(0)).Validate(), ErrInverted)
}

func TestWindow_Overlap(t *testing.T) {
	a := New(at(0), at(30))
	b := New(at(15), at(60))

	require.True(t, a.Overlaps(b))
	require.True(t, b.Overlaps(a))

	o, ok := a.Overlap(b)
	require.True(t, ok)
	assert.Equal(t, at(15), o.Start)
	assert.Equal(t, at(30), o.End)
	assert.Equal(t, 15*time.Minute, o.Duration())
}

func TestWindow_TouchingDoesNotOverlap(t *testing.T) {
	a := New(at(0), at(30))
	b := New(at(30), at(60))

	assert.False(t, a.Overlaps(b))
	_, ok := a.Overlap(b)
	assert.False(t, ok)
	assert.Equal(t, time.Duration(0), a.Gap(b))
}

func TestWindow_GapAndContains(t *testing.T) {
	a := New(at(0), at(30))
	b := New(at(40), at(60))

	assert.Equal(t, 10*time.Minute, a.Gap(b))
	assert.Equal(t, -15*time.Minute, a.Gap(New(at(15), at(45))))
	assert.True(t, a.Contains(at(0)))
	assert.True(t, a.Contains(at(30)))
	assert.False(t, a.Contains(at(31)))
}
