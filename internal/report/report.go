// Package report turns a finished DaySession into the end-of-day summary.
package report

import (
	"fmt"
	"strings"
	"time"

	"github.com/ChuLiYu/wfh-check/internal/ledger"
	"github.com/ChuLiYu/wfh-check/internal/roster"
	"github.com/ChuLiYu/wfh-check/internal/schedule"
	"github.com/ChuLiYu/wfh-check/pkg/types"
)

// Build collects one line per roster employee.
func Build(session *ledger.DaySession, dir *roster.Directory, sched schedule.DailySchedule, now time.Time) types.DayReport {
	records := session.Records()
	byID := make(map[types.EmployeeID]types.AttendanceRecord, len(records))
	for _, rec := range records {
		byID[rec.EmployeeID] = rec
	}

	entries := make([]types.EmployeeReport, 0, dir.Len())
	for _, emp := range dir.All() {
		rec := byID[emp.ID]
		entries = append(entries, types.EmployeeReport{
			EmployeeID:   emp.ID,
			Mention:      emp.Mention(),
			CheckIn:      rec.CheckIn,
			Late:         rec.Late,
			CheckOut:     rec.CheckOut,
			MissedRounds: rec.MissedRounds(),
		})
	}

	return types.DayReport{
		Date:        session.DateKey(),
		SessionID:   session.ID(),
		Rounds:      session.Round() + 1,
		Schedule:    append([]types.TimeOfDay(nil), sched...),
		Employees:   entries,
		GeneratedAt: now,
		SchemaVer:   types.ReportSchemaVersion,
	}
}

// Render formats the report as one group message.
func Render(r types.DayReport) string {
	blocks := make([]string, 0, len(r.Employees)+2)
	blocks = append(blocks, fmt.Sprintf("📊 WFH report for %s (%d/%d checks run)", r.Date, r.Rounds, len(r.Schedule)))

	for _, e := range r.Employees {
		blocks = append(blocks, fmt.Sprintf("%s\n🔹 Check-in: %s\n🔹 Check-out: %s\n🔹 WFH checks: %s",
			e.Mention, checkInStatus(e), checkOutStatus(e), roundStatus(e)))
	}

	blocks = append(blocks, "📌 A new random check schedule will be drawn for tomorrow.")
	return strings.Join(blocks, "\n\n")
}

func checkInStatus(e types.EmployeeReport) string {
	switch {
	case e.CheckIn == nil:
		return "❌ not seen"
	case e.Late:
		return fmt.Sprintf("⚠️ late %s", e.CheckIn)
	default:
		return fmt.Sprintf("✅ on time %s", e.CheckIn)
	}
}

func checkOutStatus(e types.EmployeeReport) string {
	if e.CheckOut == nil {
		return "❌ not seen"
	}
	return fmt.Sprintf("✅ %s", e.CheckOut)
}

func roundStatus(e types.EmployeeReport) string {
	if len(e.MissedRounds) == 0 {
		return "✅ all satisfied"
	}
	parts := make([]string, len(e.MissedRounds))
	for i, r := range e.MissedRounds {
		parts[i] = fmt.Sprint(r)
	}
	return "❌ missed rounds " + strings.Join(parts, ", ")
}
