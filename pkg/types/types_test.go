package types

import (
	"encoding/json"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gopkg.in/yaml.v3"
)

func TestParseTimeOfDay(t *testing.T) {
	tests := []struct {
		in      string
		want    TimeOfDay
		wantErr bool
	}{
		{"00:00", 0, false},
		{"10:00", 600, false},
		{"09:05", 545, false},
		{" 23:59 ", 1439, false},
		{"24:00", 0, true},
		{"10:60", 0, true},
		{"10", 0, true},
		{"10:5", 0, true},
		{"ab:cd", 0, true},
	}

	for _, tc := range tests {
		t.Run(tc.in, func(t *testing.T) {
			got, err := ParseTimeOfDay(tc.in)
			if tc.wantErr {
				assert.ErrorIs(t, err, ErrInvalidTimeOfDay)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tc.want, got)
		})
	}
}

func TestTimeOfDayString(t *testing.T) {
	assert.Equal(t, "10:05", NewTimeOfDay(10, 5).String())
	assert.Equal(t, "00:00", TimeOfDay(0).String())
	assert.Equal(t, "20:50", NewTimeOfDay(20, 50).String())
}

func TestTimeOfDayOfUsesLocation(t *testing.T) {
	loc := time.FixedZone("ICT", 7*3600)
	instant := time.Date(2026, 10, 17, 3, 5, 42, 0, time.UTC)

	assert.Equal(t, NewTimeOfDay(10, 5), TimeOfDayOf(instant.In(loc)))
	assert.Equal(t, NewTimeOfDay(3, 5), TimeOfDayOf(instant))
}

func TestTimeOfDayOn(t *testing.T) {
	loc := time.FixedZone("ICT", 7*3600)
	day := time.Date(2026, 10, 17, 15, 30, 0, 0, loc)

	got := NewTimeOfDay(21, 0).On(day)
	assert.Equal(t, time.Date(2026, 10, 17, 21, 0, 0, 0, loc), got)
}

func TestTimeOfDayYAML(t *testing.T) {
	var cfg struct {
		Boundary TimeOfDay `yaml:"boundary"`
	}
	require.NoError(t, yaml.Unmarshal([]byte(`boundary: "10:30"`), &cfg))
	assert.Equal(t, NewTimeOfDay(10, 30), cfg.Boundary)

	err := yaml.Unmarshal([]byte(`boundary: "late"`), &cfg)
	assert.Error(t, err)
}

func TestTimeOfDayJSON(t *testing.T) {
	tod := NewTimeOfDay(9, 45)
	data, err := json.Marshal(tod)
	require.NoError(t, err)
	assert.Equal(t, `"09:45"`, string(data))

	var back TimeOfDay
	require.NoError(t, json.Unmarshal(data, &back))
	assert.Equal(t, tod, back)
}

func TestWindowContains(t *testing.T) {
	w := Window{Start: 10, End: 12}

	assert.True(t, w.Contains(NewTimeOfDay(10, 0)))
	assert.True(t, w.Contains(NewTimeOfDay(11, 50)))
	assert.False(t, w.Contains(NewTimeOfDay(12, 0)))
	assert.False(t, w.Contains(NewTimeOfDay(9, 59)))
}

func TestEmployeeMention(t *testing.T) {
	assert.Equal(t, "@alice", Employee{ID: "1", Name: "Alice", Handle: "alice"}.Mention())
	assert.Equal(t, "Bob", Employee{ID: "2", Name: "Bob"}.Mention())
}

func TestMissedRounds(t *testing.T) {
	r := AttendanceRecord{Responses: []bool{true, false, true, false}}
	assert.Equal(t, []int{2, 4}, r.MissedRounds())

	empty := AttendanceRecord{}
	assert.Empty(t, empty.MissedRounds())
}
