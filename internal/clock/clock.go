// Package clock supplies wall-clock time pinned to one explicit time zone.
//
// Every scheduling decision (schedule slots, late boundary, check-out window,
// report cutoff) compares local times of day, so nothing in the system may
// fall back to the host's default zone.
package clock

import (
	"fmt"
	"sync"
	"time"
)

// TimeSource supplies the current time in the target zone.
type TimeSource interface {
	Now() time.Time
	Location() *time.Location
}

// Zoned is the production TimeSource.
type Zoned struct {
	loc *time.Location
}

// NewZoned returns a real clock reporting times in loc.
func NewZoned(loc *time.Location) *Zoned {
	return &Zoned{loc: loc}
}

// Load resolves an IANA zone name, e.g. "Asia/Bangkok".
func Load(name string) (*Zoned, error) {
	loc, err := time.LoadLocation(name)
	if err != nil {
		return nil, fmt.Errorf("load time zone %q: %w", name, err)
	}
	return NewZoned(loc), nil
}

func (z *Zoned) Now() time.Time { return time.Now().In(z.loc) }

func (z *Zoned) Location() *time.Location { return z.loc }

// StartOfDay returns local midnight of t's calendar date.
func StartOfDay(t time.Time) time.Time {
	return time.Date(t.Year(), t.Month(), t.Day(), 0, 0, 0, 0, t.Location())
}

// NextDay returns local midnight of the calendar day after t.
func NextDay(t time.Time) time.Time {
	return time.Date(t.Year(), t.Month(), t.Day()+1, 0, 0, 0, 0, t.Location())
}

// Fake is a manually advanced TimeSource for tests and dry runs.
type Fake struct {
	mu  sync.Mutex
	now time.Time
}

// NewFake starts a fake clock at now; its zone is now's location.
func NewFake(now time.Time) *Fake {
	return &Fake{now: now}
}

func (f *Fake) Now() time.Time {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.now
}

func (f *Fake) Location() *time.Location {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.now.Location()
}

// Set jumps to t.
func (f *Fake) Set(t time.Time) {
	f.mu.Lock()
	f.now = t
	f.mu.Unlock()
}

// Advance moves the clock forward by d and returns the new time.
func (f *Fake) Advance(d time.Duration) time.Time {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.now = f.now.Add(d)
	return f.now
}
