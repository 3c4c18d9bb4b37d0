package domain

import (
	"fmt"
	"math"
	"strings"
)

// FormatDuration renders active seconds in a compact human form:
// "45s", "4m 12s", "2h 5m".
func FormatDuration(seconds float64) string {
	switch {
	case seconds < 60:
		return fmt.Sprintf("%ds", int(math.Round(seconds)))
	case seconds < 3600:
		minutes := int(seconds) / 60
		remaining := int(math.Round(math.Mod(seconds, 60)))
		return fmt.Sprintf("%dm %ds", minutes, remaining)
	default:
		hours := int(seconds) / 3600
		minutes := (int(seconds) % 3600) / 60
		return fmt.Sprintf("%dh %dm", hours, minutes)
	}
}

// FormatRate renders a rate for display, e.g. "0.001 SOL/second".
func FormatRate(rate float64, interval BillingInterval, chain Chain) string {
	unit := strings.TrimPrefix(string(interval), "per_")
	return fmt.Sprintf("%g %s/%s", rate, chain.Symbol(), unit)
}
