package util

import "time"

// ExpirationCalendar lists standard weekly option expirations (Fridays) in a
// market's local time zone.
type ExpirationCalendar struct {
	loc *time.Location
}

// NewExpirationCalendar creates a calendar in loc. A nil loc means UTC.
func NewExpirationCalendar(loc *time.Location) *ExpirationCalendar {
	if loc == nil {
		loc = time.UTC
	}
	return &ExpirationCalendar{loc: loc}
}

// NextExpirations returns the next n Friday expirations on or after from,
// formatted as YYYY-MM-DD. A Friday that is already past the 16:00 close is
// skipped.
func (c *ExpirationCalendar) NextExpirations(from time.Time, n int) []string {
	if n <= 0 {
		return nil
	}
	t := from.In(c.loc)
	day := time.Date(t.Year(), t.Month(), t.Day(), 0, 0, 0, 0, c.loc)

	offset := (int(time.Friday) - int(day.Weekday()) + 7) % 7
	friday := day.AddDate(0, 0, offset)
	if offset == 0 && t.Hour() >= 16 {
		friday = friday.AddDate(0, 0, 7)
	}

	out := make([]string, 0, n)
	for i := 0; i < n; i++ {
		out = append(out, friday.AddDate(0, 0, 7*i).Format("2006-01-02"))
	}
	return out
}

// Parse parses a YYYY-MM-DD expiration in the calendar's zone.
func (c *ExpirationCalendar) Parse(date string) (time.Time, error) {
	return time.ParseInLocation("2006-01-02", date, c.loc)
}
