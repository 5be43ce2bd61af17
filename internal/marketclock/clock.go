// Package marketclock resolves business dates in the single configured
// timezone. The whole system operates in one IANA zone; a naked time.Now()
// without zone conversion is forbidden everywhere else in the codebase.
package marketclock

import (
	"time"
)

// DateFormat is the canonical business-date layout used in every date column.
const DateFormat = "2006-01-02"

// TimestampFormat is the canonical system-timestamp layout.
const TimestampFormat = time.RFC3339

// ExpiryHour is the local hour at which cached raw series expire the next day.
const ExpiryHour = 8

// Clock resolves business dates and cache expiries in the configured zone.
type Clock struct {
	loc *time.Location
}

// New creates a clock pinned to the configured zone.
func New(loc *time.Location) *Clock {
	return &Clock{loc: loc}
}

// Location returns the configured zone.
func (c *Clock) Location() *time.Location {
	return c.loc
}

// Now returns the current instant expressed in the configured zone.
func (c *Clock) Now() time.Time {
	return time.Now().In(c.loc)
}

// BusinessDate returns the business date of an instant in the configured zone.
// A run started at 23:59:50 local keeps the starting day's date regardless of
// when it finishes: callers resolve the date once at run start and thread it
// through every message.
func (c *Clock) BusinessDate(t time.Time) string {
	return t.In(c.loc).Format(DateFormat)
}

// TodayBusinessDate returns the business date of the current instant.
func (c *Clock) TodayBusinessDate() string {
	return c.BusinessDate(time.Now())
}

// NextExpiry returns the raw-series cache expiry for an instant: 08:00 local
// on the following day.
func (c *Clock) NextExpiry(t time.Time) time.Time {
	local := t.In(c.loc)
	next := local.AddDate(0, 0, 1)
	return time.Date(next.Year(), next.Month(), next.Day(), ExpiryHour, 0, 0, 0, c.loc)
}

// FormatTimestamp renders a system timestamp in the configured zone.
func (c *Clock) FormatTimestamp(t time.Time) string {
	return t.In(c.loc).Format(TimestampFormat)
}

// ParseDate parses a business-date string. It fails on anything that is not
// exactly YYYY-MM-DD.
func ParseDate(s string) (time.Time, error) {
	return time.Parse(DateFormat, s)
}
