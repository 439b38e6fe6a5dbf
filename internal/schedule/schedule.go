// ============================================================================
// wfh-check 抽查時刻產生器
// ============================================================================
//
// Package: internal/schedule
// File: schedule.go
// Purpose: Draws the day's stealth probe times.
//
// Algorithm:
//   1. Enumerate every 10-minute aligned slot inside each [start, end) window
//   2. Partial Fisher-Yates: draw count slots uniformly without replacement
//   3. Sort ascending
//
// A fresh draw happens once per day reset. There is no seed requirement:
// unpredictability to the team is the point.
//
// ============================================================================

package schedule

import (
	"fmt"
	"math/rand/v2"
	"slices"
	"strings"
	"sync"

	"github.com/ChuLiYu/wfh-check/pkg/types"
)

// SlotMinutes is the spacing between candidate probe times.
const SlotMinutes = 10

// DailySchedule is strictly increasing.
type DailySchedule []types.TimeOfDay

func (s DailySchedule) String() string {
	parts := make([]string, len(s))
	for i, t := range s {
		parts[i] = t.String()
	}
	return strings.Join(parts, ", ")
}

// Strings renders every entry as "HH:MM".
func (s DailySchedule) Strings() []string {
	out := make([]string, len(s))
	for i, t := range s {
		out[i] = t.String()
	}
	return out
}

// ValidateWindows rejects start >= end, hours outside 0..24 and overlaps.
func ValidateWindows(windows []types.Window) error {
	if len(windows) == 0 {
		return &ConfigurationError{Field: "probes.windows", Reason: "at least one window is required", Err: ErrInvalidWindow}
	}
	sorted := slices.Clone(windows)
	slices.SortFunc(sorted, func(a, b types.Window) int { return a.Start - b.Start })

	for i, w := range sorted {
		if w.Start < 0 || w.End > 24 || w.Start >= w.End {
			return &ConfigurationError{
				Field:  "probes.windows",
				Reason: fmt.Sprintf("window %s must satisfy 0 <= start < end <= 24", w),
				Err:    ErrInvalidWindow,
			}
		}
		if i > 0 && w.Start < sorted[i-1].End {
			return &ConfigurationError{
				Field:  "probes.windows",
				Reason: fmt.Sprintf("window %s overlaps %s", w, sorted[i-1]),
				Err:    ErrInvalidWindow,
			}
		}
	}
	return nil
}

// Slots enumerates every candidate probe time, ascending within each window.
func Slots(windows []types.Window) []types.TimeOfDay {
	slots := make([]types.TimeOfDay, 0)
	for _, w := range windows {
		for h := w.Start; h < w.End; h++ {
			for m := 0; m < 60; m += SlotMinutes {
				slots = append(slots, types.NewTimeOfDay(h, m))
			}
		}
	}
	return slots
}

// Generate draws count distinct slots from windows and sorts them.
func Generate(windows []types.Window, count int, rng *rand.Rand) (DailySchedule, error) {
	if err := ValidateWindows(windows); err != nil {
		return nil, err
	}
	slots := Slots(windows)
	if count < 1 {
		return nil, Invalid("probes.per_day", "must be at least 1, got %d", count)
	}
	if count > len(slots) {
		return nil, &ConfigurationError{
			Field:  "probes.per_day",
			Reason: fmt.Sprintf("%d probes requested but windows only hold %d slots", count, len(slots)),
			Err:    ErrTooManyProbes,
		}
	}

	for i := 0; i < count; i++ {
		j := i + rng.IntN(len(slots)-i)
		slots[i], slots[j] = slots[j], slots[i]
	}

	picked := DailySchedule(slots[:count:count])
	slices.Sort(picked)
	return picked, nil
}

// Generator keeps the configuration and random source between daily draws.
type Generator struct {
	mu      sync.Mutex // rand.Rand is not safe for concurrent use
	windows []types.Window
	count   int
	rng     *rand.Rand
}

// NewGenerator validates the configuration once so that daily draws cannot fail.
// A nil rng falls back to a randomly seeded PCG source.
func NewGenerator(windows []types.Window, count int, rng *rand.Rand) (*Generator, error) {
	if rng == nil {
		rng = rand.New(rand.NewPCG(rand.Uint64(), rand.Uint64()))
	}
	g := &Generator{windows: slices.Clone(windows), count: count, rng: rng}
	if _, err := Generate(g.windows, count, rand.New(rand.NewPCG(1, 2))); err != nil {
		return nil, err
	}
	return g, nil
}

// Generate produces an independent draw.
func (g *Generator) Generate() (DailySchedule, error) {
	g.mu.Lock()
	defer g.mu.Unlock()
	return Generate(g.windows, g.count, g.rng)
}

// Count returns the configured probes per day.
func (g *Generator) Count() int { return g.count }
