package models

import "time"

// User identifies the signed-in owner of a session.
type User struct {
	ID    string `json:"user_id"`
	Email string `json:"email"`
}

// Account is the stored credential record for a user. Its document id is the
// normalized email address.
type Account struct {
	UserID       string    `json:"user_id"`
	Email        string    `json:"email"`
	PasswordHash string    `json:"password_hash"`
	CreatedAt    time.Time `json:"created_at"`

	// Failed sign-in tracking for throttling.
	FailedSignIns int        `json:"failed_sign_ins,omitempty"`
	FirstFailedAt *time.Time `json:"first_failed_at,omitempty"`
}

// Throttled reports whether sign-in is blocked at now after max failures
// within window.
func (a Account) Throttled(now time.Time, max int, window time.Duration) bool {
	if a.FirstFailedAt == nil || a.FailedSignIns < max {
		return false
	}
	return now.Sub(*a.FirstFailedAt) < window
}

func (a Account) User() User {
	return User{ID: a.UserID, Email: a.Email}
}
