package billing

import (
	"strings"
	"time"

	"github.com/cockroachdb/errors"
)

const (
	periodLayout = "2006-01"
	dayLayout    = "2006-01-02"
)

// PeriodKey is the persisted representation of a billing period.
type PeriodKey string

// NewPeriodKey builds a PeriodKey for the month containing period.
func NewPeriodKey(period time.Time) (PeriodKey, error) {
	if period.IsZero() {
		return "", ErrInvalidPeriod
	}
	return PeriodKey(MonthStart(period).Format("200601")), nil
}

// String returns the raw string for storage.
func (k PeriodKey) String() string { return string(k) }

// MonthStart returns the first day of t's calendar month in UTC.
func MonthStart(t time.Time) time.Time {
	t = t.UTC()
	return time.Date(t.Year(), t.Month(), 1, 0, 0, 0, 0, time.UTC)
}

// DayStart truncates t to midnight UTC.
func DayStart(t time.Time) time.Time {
	t = t.UTC()
	return time.Date(t.Year(), t.Month(), t.Day(), 0, 0, 0, 0, time.UTC)
}

// ParsePeriod parses a YYYY-MM month into its first day.
func ParsePeriod(value string) (time.Time, error) {
	value = strings.TrimSpace(value)
	if value == "" {
		return time.Time{}, ErrInvalidPeriod
	}
	t, err := time.Parse(periodLayout, value)
	if err != nil {
		return time.Time{}, errors.Wrapf(ErrInvalidPeriod, "period %q must be YYYY-MM", value)
	}
	return MonthStart(t), nil
}

// ParseDay parses a YYYY-MM-DD calendar day.
func ParseDay(value string) (time.Time, error) {
	value = strings.TrimSpace(value)
	t, err := time.Parse(dayLayout, value)
	if err != nil {
		return time.Time{}, errors.Wrapf(ErrInvalidArgument, "date %q must be YYYY-MM-DD", value)
	}
	return DayStart(t), nil
}

// FormatPeriod renders a period as YYYY-MM.
func FormatPeriod(period time.Time) string {
	return MonthStart(period).Format(periodLayout)
}

// FormatDay renders a day as YYYY-MM-DD.
func FormatDay(day time.Time) string {
	return DayStart(day).Format(dayLayout)
}
