package report

import (
	"testing"
	"time"

	"github.com/ChuLiYu/wfh-check/internal/ledger"
	"github.com/ChuLiYu/wfh-check/internal/roster"
	"github.com/ChuLiYu/wfh-check/internal/schedule"
	"github.com/ChuLiYu/wfh-check/pkg/types"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var ict = time.FixedZone("ICT", 7*3600)

func at(hour, minute int) time.Time {
	return time.Date(2026, 10, 17, hour, minute, 0, 0, ict)
}

var rules = ledger.Rules{
	LateBoundary:  types.NewTimeOfDay(10, 0),
	CheckOutStart: types.NewTimeOfDay(20, 0),
	CheckOutEnd:   types.NewTimeOfDay(21, 0),
}

func newDirectory(t *testing.T) *roster.Directory {
	t.Helper()
	dir, err := roster.New([]types.Employee{
		{ID: "1", Name: "Alice", Handle: "alice"},
		{ID: "2", Name: "Bob"},
		{ID: "3", Name: "Carol", Handle: "carol"},
	})
	require.NoError(t, err)
	return dir
}

func TestBuildAndRender(t *testing.T) {
	dir := newDirectory(t)
	s := ledger.NewDaySession(at(0, 0), dir.IDs())
	sched := schedule.DailySchedule{types.NewTimeOfDay(10, 30), types.NewTimeOfDay(14, 0), types.NewTimeOfDay(18, 0)}

	// alice: on time, answers both rounds, checks out
	// bob: late, misses round 2, no check-out
	// carol: silent
	_, err := s.Apply("1", at(9, 45), rules)
	require.NoError(t, err)
	_, err = s.Apply("2", at(10, 5), rules)
	require.NoError(t, err)

	s.OpenRound(at(10, 30))
	_, err = s.Apply("1", at(10, 31), rules)
	require.NoError(t, err)
	_, err = s.Apply("2", at(10, 33), rules)
	require.NoError(t, err)

	s.OpenRound(at(14, 0))
	_, err = s.Apply("1", at(14, 2), rules)
	require.NoError(t, err)
	_, err = s.Apply("1", at(20, 15), rules)
	require.NoError(t, err)

	r := Build(s, dir, sched, at(21, 0))

	assert.Equal(t, "2026-10-17", r.Date)
	assert.Equal(t, s.ID(), r.SessionID)
	assert.Equal(t, 2, r.Rounds)
	assert.Equal(t, types.ReportSchemaVersion, r.SchemaVer)
	require.Len(t, r.Employees, 3)

	alice, bob, carol := r.Employees[0], r.Employees[1], r.Employees[2]
	assert.Empty(t, alice.MissedRounds)
	assert.False(t, alice.Late)
	require.NotNil(t, alice.CheckOut)
	assert.Equal(t, types.NewTimeOfDay(20, 15), *alice.CheckOut)

	assert.True(t, bob.Late)
	assert.Equal(t, []int{2}, bob.MissedRounds)
	assert.Nil(t, bob.CheckOut)

	assert.Nil(t, carol.CheckIn)
	assert.Equal(t, []int{1, 2}, carol.MissedRounds)

	text := Render(r)
	assert.Contains(t, text, "WFH report for 2026-10-17 (2/3 checks run)")
	assert.Contains(t, text, "@alice\n🔹 Check-in: ✅ on time 09:45\n🔹 Check-out: ✅ 20:15\n🔹 WFH checks: ✅ all satisfied")
	assert.Contains(t, text, "Bob\n🔹 Check-in: ⚠️ late 10:05\n🔹 Check-out: ❌ not seen\n🔹 WFH checks: ❌ missed rounds 2")
	assert.Contains(t, text, "@carol\n🔹 Check-in: ❌ not seen")
	assert.Contains(t, text, "missed rounds 1, 2")
	assert.Contains(t, text, "new random check schedule")
}

func TestRenderNoRounds(t *testing.T) {
	dir := newDirectory(t)
	s := ledger.NewDaySession(at(0, 0), dir.IDs())

	r := Build(s, dir, nil, at(21, 0))
	assert.Equal(t, 0, r.Rounds)
	for _, e := range r.Employees {
		assert.Empty(t, e.MissedRounds)
	}
	assert.Contains(t, Render(r), "✅ all satisfied")
}

func TestScenarioLateCheckInShownInReport(t *testing.T) {
	dir, err := roster.New([]types.Employee{{ID: "a", Name: "alice"}})
	require.NoError(t, err)
	s := ledger.NewDaySession(at(0, 0), dir.IDs())

	out, err := s.Apply("a", at(10, 5), rules)
	require.NoError(t, err)
	require.True(t, out.Late)

	text := Render(Build(s, dir, nil, at(21, 0)))
	assert.Contains(t, text, "alice\n🔹 Check-in: ⚠️ late 10:05")
}
