package constants

import "time"

// Layouts for the times routineo reads and writes. ResetTimeFormat is the
// wire form of a user's reset_time setting; the others are display or
// device-local formats.
const (
	// ResetTimeFormat is the 24-hour "HH:mm" reset time stored in settings.
	ResetTimeFormat = "15:04"

	// TimeFormat renders a time of day in status lines.
	TimeFormat = ResetTimeFormat

	// DateFormat is a calendar date (YYYY-MM-DD) in the user's zone.
	DateFormat = "2006-01-02"

	// MarkerFormat encodes the device-local last-reset marker.
	MarkerFormat = time.RFC3339Nano

	// InstanceFormat is the start time written to instance lock files.
	InstanceFormat = time.RFC3339
)
