package models

import (
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"github.com/julianstephens/routineo/internal/constants"
)

// ResetTime is a wall-clock time of day (no zone) at which a user's items
// reset. It is encoded as "HH:mm".
type ResetTime struct {
	Hour   int
	Minute int
}

// ParseResetTime parses a 24-hour "HH:mm" string.
func ParseResetTime(s string) (ResetTime, error) {
	t, err := time.Parse(constants.ResetTimeFormat, strings.TrimSpace(s))
	if err != nil {
		return ResetTime{}, fmt.Errorf("invalid reset time %q (expected HH:MM): %w", s, err)
	}
	return ResetTime{Hour: t.Hour(), Minute: t.Minute()}, nil
}

func (r ResetTime) String() string {
	return fmt.Sprintf("%02d:%02d", r.Hour, r.Minute)
}

// On returns the instant of this reset time on the calendar date of day, in loc.
func (r ResetTime) On(day time.Time, loc *time.Location) time.Time {
	d := day.In(loc)
	return time.Date(d.Year(), d.Month(), d.Day(), r.Hour, r.Minute, 0, 0, loc)
}

func (r ResetTime) MarshalText() ([]byte, error) {
	return []byte(r.String()), nil
}

func (r *ResetTime) UnmarshalText(text []byte) error {
	parsed, err := ParseResetTime(string(text))
	if err != nil {
		return err
	}
	*r = parsed
	return nil
}

// UserSettings is the per-user settings document, keyed by user id.
type UserSettings struct {
	UserID    string     `json:"user_id"`
	ResetTime *ResetTime `json:"reset_time,omitempty"` // nil when never configured
}

// UnmarshalJSON treats a missing, null or blank reset_time as not configured.
func (s *UserSettings) UnmarshalJSON(data []byte) error {
	var raw struct {
		UserID    string  `json:"user_id"`
		ResetTime *string `json:"reset_time"`
	}
	if err := json.Unmarshal(data, &raw); err != nil {
		return err
	}
	s.UserID = raw.UserID
	s.ResetTime = nil
	if raw.ResetTime == nil || strings.TrimSpace(*raw.ResetTime) == "" {
		return nil
	}
	rt, err := ParseResetTime(*raw.ResetTime)
	if err != nil {
		return err
	}
	s.ResetTime = &rt
	return nil
}
