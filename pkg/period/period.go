// Package period normalizes billing periods.
//
// A billing period is a calendar month, represented by the first day of that
// month at 00:00 UTC. Display labels are always derived from that value.
package period

import (
	"errors"
	"strings"
	"time"
)

const (
	dateLayout  = "2006-01-02"
	monthLayout = "2006-01"
	labelLayout = "January 2006"
)

var ErrInvalidPeriod = errors.New("invalid_billing_period")

// Of returns the billing period containing t.
func Of(t time.Time) time.Time {
	t = t.UTC()
	return time.Date(t.Year(), t.Month(), 1, 0, 0, 0, 0, time.UTC)
}

// Parse accepts "2006-01-02" or "2006-01" and returns the normalized period.
func Parse(value string) (time.Time, error) {
	value = strings.TrimSpace(value)
	if value == "" {
		return time.Time{}, ErrInvalidPeriod
	}
	for _, layout := range []string{dateLayout, monthLayout} {
		if parsed, err := time.Parse(layout, value); err == nil {
			return Of(parsed), nil
		}
	}
	return time.Time{}, ErrInvalidPeriod
}

// Next returns the period following p.
func Next(p time.Time) time.Time {
	return Of(p).AddDate(0, 1, 0)
}

// Key formats p as its canonical date string.
func Key(p time.Time) string {
	return Of(p).Format(dateLayout)
}

// Label formats p for display, e.g. "January 2024".
func Label(p time.Time) string {
	return Of(p).Format(labelLayout)
}

// YearRange returns the first period of year and the first period of the next year.
func YearRange(year int) (time.Time, time.Time) {
	start := time.Date(year, time.January, 1, 0, 0, 0, 0, time.UTC)
	return start, start.AddDate(1, 0, 0)
}
