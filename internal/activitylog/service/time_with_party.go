package service

import (
	"fmt"
	"math"
	"time"

	"catalogue/internal/activitylog/models"
)

// CalculateTimeWithParty returns the share of the total duration attributed
// to party, rounded to the nearest whole percent, as "{n}%". Each party is
// computed independently, so shares across parties sum to 100% give or take
// rounding. Non-positive durations are ignored; an empty total is "0%".
func CalculateTimeWithParty(durations []models.PartyDuration, party models.AudienceType) string {
	var total, held time.Duration
	for _, d := range durations {
		if d.Duration <= 0 {
			continue
		}
		total += d.Duration
		if d.Party == party {
			held += d.Duration
		}
	}
	if total == 0 {
		return "0%"
	}
	pct := math.Round(float64(held) / float64(total) * 100)
	return fmt.Sprintf("%d%%", int(pct))
}
