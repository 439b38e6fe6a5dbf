package controller

import (
	"fmt"
	"strings"
	"time"

	"github.com/ChuLiYu/wfh-check/pkg/types"
)

// Group message texts. Rounds are 0-based internally and 1-based in text.

func probeText(round, planned int, timeout time.Duration) string {
	return fmt.Sprintf("⏰ [WFH CHECK - round %d/%d]\nEveryone, please reply within %s to confirm you are working.",
		round+1, planned, humanDuration(timeout))
}

func missingText(round int, mentions []string) string {
	var b strings.Builder
	fmt.Fprintf(&b, "⚠️ No reply for round %d from:", round+1)
	for _, m := range mentions {
		b.WriteString("\n• ")
		b.WriteString(m)
	}
	return b.String()
}

func checkInText(who string, at types.TimeOfDay, late bool) string {
	if late {
		return fmt.Sprintf("🟠 %s checked in late (%s)", who, at)
	}
	return fmt.Sprintf("🟢 %s checked in (%s)", who, at)
}

func checkOutText(who string, at types.TimeOfDay) string {
	return fmt.Sprintf("🔵 %s checked out (%s)", who, at)
}

func roundAckText(who string, round int) string {
	return fmt.Sprintf("✅ %s answered round %d", who, round+1)
}

func humanDuration(d time.Duration) string {
	if d%time.Minute != 0 {
		return d.String()
	}
	if m := int(d / time.Minute); m != 1 {
		return fmt.Sprintf("%d minutes", m)
	}
	return "1 minute"
}
