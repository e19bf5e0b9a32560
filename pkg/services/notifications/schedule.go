package notifications

import (
	"time"

	"github.com/jgirmay/circle_realtime/pkg/models"
)

// DigestHour is the UTC hour at which digests become eligible
const DigestHour = 8

// NextDigestTime returns when a notification queued at now becomes eligible
// for a digest of the given frequency:
//   - daily: 08:00 UTC on the next calendar day
//   - weekly: the first Monday 08:00 UTC strictly after now
//
// Other frequencies are not batched and return now.
func NextDigestTime(frequency models.NotificationFrequency, now time.Time) time.Time {
	now = now.UTC()
	switch frequency {
	case models.FrequencyDaily:
		next := now.AddDate(0, 0, 1)
		return time.Date(next.Year(), next.Month(), next.Day(), DigestHour, 0, 0, 0, time.UTC)
	case models.FrequencyWeekly:
		daysUntilMonday := (int(time.Monday) - int(now.Weekday()) + 7) % 7
		day := now.AddDate(0, 0, daysUntilMonday)
		next := time.Date(day.Year(), day.Month(), day.Day(), DigestHour, 0, 0, 0, time.UTC)
		if !next.After(now) {
			next = next.AddDate(0, 0, 7)
		}
		return next
	}
	return now
}
