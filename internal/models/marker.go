package models

import (
	"fmt"
	"time"

	"github.com/julianstephens/routineo/internal/constants"
)

// ResetMarker is the device-local record of the last completed reset pass.
type ResetMarker struct {
	LastReset time.Time
}

// ParseResetMarker decodes a marker stored as an RFC 3339 timestamp.
func ParseResetMarker(s string) (ResetMarker, error) {
	t, err := time.Parse(constants.MarkerFormat, s)
	if err != nil {
		return ResetMarker{}, fmt.Errorf("invalid reset marker %q: %w", s, err)
	}
	return ResetMarker{LastReset: t}, nil
}

func (m ResetMarker) String() string {
	return m.LastReset.Format(constants.MarkerFormat)
}

// Date returns the calendar date of the marker at midnight in loc.
func (m ResetMarker) Date(loc *time.Location) time.Time {
	return CalendarDate(m.LastReset, loc)
}

// CalendarDate truncates t to midnight of its calendar date in loc.
func CalendarDate(t time.Time, loc *time.Location) time.Time {
	l := t.In(loc)
	return time.Date(l.Year(), l.Month(), l.Day(), 0, 0, 0, 0, loc)
}
