package holdqueue

import (
	"fmt"
	"time"
)

// FormatHoldTime renders a hold duration in minutes for display:
// 0 -> "Immediate", exact hours -> "N hour(s)", under an hour ->
// "N minute(s)", mixed -> "1h 30m".
func FormatHoldTime(minutes int) string {
	if minutes <= 0 {
		return "Immediate"
	}
	if minutes%60 == 0 {
		hours := minutes / 60
		if hours == 1 {
			return "1 hour"
		}
		return fmt.Sprintf("%d hours", hours)
	}
	if minutes < 60 {
		if minutes == 1 {
			return "1 minute"
		}
		return fmt.Sprintf("%d minutes", minutes)
	}
	return fmt.Sprintf("%dh %dm", minutes/60, minutes%60)
}

// Remaining is the countdown to a hold expiry.
type Remaining struct {
	Minutes int
	Seconds int
	Expired bool
}

// TimeRemaining reports whole minutes and seconds until expiry. Any expiry at
// or before now is Expired with zeroed components.
func TimeRemaining(expiry, now time.Time) Remaining {
	diff := expiry.Sub(now)
	if diff <= 0 {
		return Remaining{Expired: true}
	}
	total := int(diff.Seconds())
	return Remaining{
		Minutes: total / 60,
		Seconds: total % 60,
	}
}
