package storage

import (
	"fmt"
	"time"

	"github.com/itaober/memogit/internal/models"
)

const (
	// TimeFormat is the wire format of memo timestamps (second precision).
	TimeFormat = "2006-01-02 15:04:05"

	monthFormat  = "200601"
	idTimeFormat = "20060102150405"
)

// Clock formats, parses, and resolves memo timestamps in one fixed
// timezone. Shard keys must never depend on the host zone.
type Clock struct {
	loc *time.Location
	now func() time.Time
}

// NewClock loads the configured timezone.
func NewClock(timezone string) (*Clock, error) {
	loc, err := time.LoadLocation(timezone)
	if err != nil {
		return nil, models.Validation(fmt.Sprintf("invalid timezone %q", timezone)).Wrap(err)
	}
	return &Clock{loc: loc, now: time.Now}, nil
}

// Now returns the current time in the configured zone.
func (c *Clock) Now() time.Time {
	return c.now().In(c.loc)
}

// Format renders a timestamp in the wire format.
func (c *Clock) Format(t time.Time) string {
	return t.In(c.loc).Format(TimeFormat)
}

// Parse reads a wire-format timestamp in the configured zone.
func (c *Clock) Parse(s string) (time.Time, error) {
	t, err := time.ParseInLocation(TimeFormat, s, c.loc)
	if err != nil {
		return time.Time{}, models.Validation(fmt.Sprintf("invalid timestamp %q", s)).Wrap(err)
	}
	return t, nil
}

// MonthKey maps a wire-format timestamp to its shard key ("YYYYMM").
func (c *Clock) MonthKey(timestamp string) (string, error) {
	t, err := c.Parse(timestamp)
	if err != nil {
		return "", err
	}
	return t.Format(monthFormat), nil
}

// MonthKeyAt maps an instant to its shard key.
func (c *Clock) MonthKeyAt(t time.Time) string {
	return t.In(c.loc).Format(monthFormat)
}
