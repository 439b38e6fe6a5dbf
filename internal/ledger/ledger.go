// ============================================================================
// wfh-check 出勤帳本 - 單日出勤狀態機
// ============================================================================
//
// Package: internal/ledger
// File: ledger.go
// Purpose: Owns every per-employee attendance record of the current day.
//
// Design:
//   The Ledger holds exactly one DaySession. Day reset does not clear the
//   session in place; it constructs a fresh one. A round timeout that captured
//   the previous *DaySession keeps reading that frozen day and can never see
//   the next day's empty maps.
//
// Record transitions (Apply):
//   1. Check-in   first message of the day, late iff at/after the boundary
//   2. Check-out  message inside the check-out window, first one wins
//   3. Round ack  Responses[round] false -> true, current round only
//
// Concurrency:
//   - DaySession guards itself with sync.RWMutex
//   - The controller is the single writer; readers (status, report) take RLock
//
// ============================================================================

package ledger

import (
	"errors"
	"slices"
	"sync"
	"time"

	"github.com/ChuLiYu/wfh-check/internal/clock"
	"github.com/ChuLiYu/wfh-check/pkg/types"
	"github.com/google/uuid"
)

// NoRound is the round index before the first probe of the day.
const NoRound = -1

var (
	// ErrUnknownEmployee means the id is not part of the session roster
	ErrUnknownEmployee = errors.New("ledger: unknown employee")
	// ErrRoundNotOpen means the round index was never opened today
	ErrRoundNotOpen = errors.New("ledger: round not open")
)

// Rules are the day boundaries used by Apply.
type Rules struct {
	LateBoundary  types.TimeOfDay // check-in at/after this is late
	CheckOutStart types.TimeOfDay // inclusive
	CheckOutEnd   types.TimeOfDay // inclusive
}

// InCheckOutWindow reports whether t is within [CheckOutStart, CheckOutEnd].
func (r Rules) InCheckOutWindow(t types.TimeOfDay) bool {
	return t >= r.CheckOutStart && t <= r.CheckOutEnd
}

// Outcome lists the transitions one message caused.
type Outcome struct {
	CheckedIn  bool
	Late       bool
	CheckedOut bool
	AckedRound int // NoRound when no round was acknowledged
	At         types.TimeOfDay
}

// Changed reports whether any transition happened.
func (o Outcome) Changed() bool {
	return o.CheckedIn || o.CheckedOut || o.AckedRound != NoRound
}

// DaySession 單日的全部出勤狀態
type DaySession struct {
	mu       sync.RWMutex
	id       string
	date     time.Time // local midnight of the day this session covers
	round    int
	openedAt []time.Time // per round
	order    []types.EmployeeID
	records  map[types.EmployeeID]*types.AttendanceRecord
}

// NewDaySession builds an empty session for date (any instant on that day).
func NewDaySession(date time.Time, ids []types.EmployeeID) *DaySession {
	s := &DaySession{
		id:       uuid.NewString(),
		date:     clock.StartOfDay(date),
		round:    NoRound,
		openedAt: make([]time.Time, 0),
		order:    slices.Clone(ids),
		records:  make(map[types.EmployeeID]*types.AttendanceRecord, len(ids)),
	}
	for _, id := range ids {
		s.records[id] = &types.AttendanceRecord{EmployeeID: id, Responses: make([]bool, 0)}
	}
	return s
}

// ID is a random identifier used to correlate logs and archives.
func (s *DaySession) ID() string { return s.id }

// Date is local midnight of the covered day.
func (s *DaySession) Date() time.Time { return s.date }

// DateKey renders the covered day as YYYY-MM-DD.
func (s *DaySession) DateKey() string { return s.date.Format(types.DateLayout) }

// Round returns the open round index, or NoRound.
func (s *DaySession) Round() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.round
}

// RoundOpenedAt returns when round r was opened.
func (s *DaySession) RoundOpenedAt(r int) (time.Time, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if r < 0 || r >= len(s.openedAt) {
		return time.Time{}, false
	}
	return s.openedAt[r], true
}

// OpenRound advances the round and marks every employee unanswered.
func (s *DaySession) OpenRound(at time.Time) int {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.round++
	s.openedAt = append(s.openedAt, at)
	for _, id := range s.order {
		rec := s.records[id]
		for len(rec.Responses) <= s.round {
			rec.Responses = append(rec.Responses, false)
		}
		rec.Responses[s.round] = false
	}
	return s.round
}

// Apply folds one message from id, arriving at local time at, into the record.
func (s *DaySession) Apply(id types.EmployeeID, at time.Time, rules Rules) (Outcome, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	rec, ok := s.records[id]
	if !ok {
		return Outcome{AckedRound: NoRound}, ErrUnknownEmployee
	}

	tod := types.TimeOfDayOf(at)
	out := Outcome{AckedRound: NoRound, At: tod}

	if rec.CheckIn == nil && rec.Messages == 0 {
		checkIn := tod
		rec.CheckIn = &checkIn
		rec.Late = tod >= rules.LateBoundary
		out.CheckedIn = true
		out.Late = rec.Late
	}
	rec.Messages++

	if rules.InCheckOutWindow(tod) && rec.CheckOut == nil {
		checkOut := tod
		rec.CheckOut = &checkOut
		out.CheckedOut = true
	}

	if s.round != NoRound && s.round < len(rec.Responses) && !rec.Responses[s.round] {
		rec.Responses[s.round] = true
		out.AckedRound = s.round
	}

	return out, nil
}

// Missing lists, in roster order, employees who have not answered round r.
func (s *DaySession) Missing(r int) ([]types.EmployeeID, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	if r < 0 || r > s.round {
		return nil, ErrRoundNotOpen
	}
	missing := make([]types.EmployeeID, 0)
	for _, id := range s.order {
		rec := s.records[id]
		if r >= len(rec.Responses) || !rec.Responses[r] {
			missing = append(missing, id)
		}
	}
	return missing, nil
}

// Record returns a deep copy of one employee's record.
func (s *DaySession) Record(id types.EmployeeID) (types.AttendanceRecord, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	rec, ok := s.records[id]
	if !ok {
		return types.AttendanceRecord{}, false
	}
	return copyRecord(rec), true
}

// Records returns deep copies of all records in roster order.
func (s *DaySession) Records() []types.AttendanceRecord {
	s.mu.RLock()
	defer s.mu.RUnlock()

	out := make([]types.AttendanceRecord, 0, len(s.order))
	for _, id := range s.order {
		out = append(out, copyRecord(s.records[id]))
	}
	return out
}

// Stats counts check-ins, late check-ins and check-outs.
func (s *DaySession) Stats() map[string]int {
	s.mu.RLock()
	defer s.mu.RUnlock()

	stats := map[string]int{"employees": len(s.order), "checked_in": 0, "late": 0, "checked_out": 0}
	for _, rec := range s.records {
		if rec.CheckIn != nil {
			stats["checked_in"]++
		}
		if rec.Late {
			stats["late"]++
		}
		if rec.CheckOut != nil {
			stats["checked_out"]++
		}
	}
	return stats
}

func copyRecord(rec *types.AttendanceRecord) types.AttendanceRecord {
	cp := *rec
	cp.Responses = slices.Clone(rec.Responses)
	if rec.CheckIn != nil {
		v := *rec.CheckIn
		cp.CheckIn = &v
	}
	if rec.CheckOut != nil {
		v := *rec.CheckOut
		cp.CheckOut = &v
	}
	return cp
}

// ============================================================================
// Ledger
// ============================================================================

// Ledger owns the current DaySession.
type Ledger struct {
	mu      sync.RWMutex
	ids     []types.EmployeeID
	session *DaySession
}

// New starts a ledger whose first session covers date.
func New(date time.Time, ids []types.EmployeeID) *Ledger {
	return &Ledger{
		ids:     slices.Clone(ids),
		session: NewDaySession(date, ids),
	}
}

// Session returns the live session handle.
func (l *Ledger) Session() *DaySession {
	l.mu.RLock()
	defer l.mu.RUnlock()
	return l.session
}

// Reset discards the current session and starts an empty one for date.
func (l *Ledger) Reset(date time.Time) *DaySession {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.session = NewDaySession(date, l.ids)
	return l.session
}
