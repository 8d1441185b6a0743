package services

import (
	"strings"
	"time"
)

const dayLayout = "2006-01-02"

// Clock supplies the current time and the calendar used for day boundaries.
// Days are midnights in Location, always handed to storage as UTC.
type Clock struct {
	Location *time.Location
	Now      func() time.Time
}

func NewClock(loc *time.Location) Clock {
	if loc == nil {
		loc = time.UTC
	}
	return Clock{Location: loc, Now: time.Now}
}

func (c Clock) now() time.Time {
	if c.Now == nil {
		return time.Now().UTC()
	}
	return c.Now().UTC()
}

func (c Clock) loc() *time.Location {
	if c.Location == nil {
		return time.UTC
	}
	return c.Location
}

// DayStart returns midnight of t's calendar day.
func (c Clock) DayStart(t time.Time) time.Time {
	lt := t.In(c.loc())
	return time.Date(lt.Year(), lt.Month(), lt.Day(), 0, 0, 0, 0, c.loc()).UTC()
}

// AddDays shifts a day by n calendar days.
func (c Clock) AddDays(day time.Time, n int) time.Time {
	lt := day.In(c.loc())
	return time.Date(lt.Year(), lt.Month(), lt.Day()+n, 0, 0, 0, 0, c.loc()).UTC()
}

func (c Clock) Today() time.Time {
	return c.DayStart(c.now())
}

func (c Clock) FormatDay(day time.Time) string {
	return day.In(c.loc()).Format(dayLayout)
}

// ParseDay accepts YYYY-MM-DD or an RFC 3339 timestamp and returns its day.
func (c Clock) ParseDay(raw string) (time.Time, error) {
	raw = strings.TrimSpace(raw)
	if t, err := time.ParseInLocation(dayLayout, raw, c.loc()); err == nil {
		return t.UTC(), nil
	}
	t, err := time.Parse(time.RFC3339Nano, raw)
	if err != nil {
		return time.Time{}, &ValidationError{Fields: []string{"date"}, Msg: "date must be YYYY-MM-DD or an RFC 3339 timestamp"}
	}
	return c.DayStart(t), nil
}
