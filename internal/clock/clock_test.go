package clock

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestZonedReportsInLocation(t *testing.T) {
	loc := time.FixedZone("ICT", 7*3600)
	z := NewZoned(loc)

	assert.Equal(t, loc, z.Location())
	assert.Equal(t, loc, z.Now().Location())
}

func TestLoad(t *testing.T) {
	z, err := Load("UTC")
	require.NoError(t, err)
	assert.Equal(t, "UTC", z.Location().String())

	_, err = Load("Nowhere/Special")
	assert.Error(t, err)
}

func TestStartOfDayAndNextDay(t *testing.T) {
	loc := time.FixedZone("ICT", 7*3600)
	at := time.Date(2026, 12, 31, 22, 15, 0, 0, loc)

	assert.Equal(t, time.Date(2026, 12, 31, 0, 0, 0, 0, loc), StartOfDay(at))
	assert.Equal(t, time.Date(2027, 1, 1, 0, 0, 0, 0, loc), NextDay(at))
}

func TestFakeAdvance(t *testing.T) {
	start := time.Date(2026, 10, 17, 9, 0, 0, 0, time.UTC)
	f := NewFake(start)

	assert.Equal(t, start, f.Now())
	got := f.Advance(90 * time.Second)
	assert.Equal(t, start.Add(90*time.Second), got)
	assert.Equal(t, got, f.Now())

	later := start.Add(time.Hour)
	f.Set(later)
	assert.Equal(t, later, f.Now())
	assert.Equal(t, time.UTC, f.Location())
}
