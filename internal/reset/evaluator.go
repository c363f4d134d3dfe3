// Package reset decides when a user's checklist rolls over to a new day and
// clears today's completion flags at most once per device per calendar day.
package reset

import (
	"context"
	"time"

	"github.com/julianstephens/routineo/internal/constants"
	apperrors "github.com/julianstephens/routineo/internal/errors"
	"github.com/julianstephens/routineo/internal/localstore"
	"github.com/julianstephens/routineo/internal/logger"
	"github.com/julianstephens/routineo/internal/models"
)

type Outcome string

const (
	OutcomeAlreadyReset    Outcome = "already_reset"     // marker is dated today
	OutcomeNotConfigured   Outcome = "not_configured"    // no reset_time; marker untouched
	OutcomeBeforeResetTime Outcome = "before_reset_time" // today's reset instant not reached
	OutcomeMarkerAhead     Outcome = "marker_ahead"      // marker dated after today (clock skew)
	OutcomeNothingToReset  Outcome = "nothing_to_reset"  // due, but no items today; marker written
	OutcomeReset           Outcome = "reset"             // items cleared; marker written
)

// Items is the item access the evaluator needs.
type Items interface {
	ListActiveOn(ctx context.Context, day time.Weekday) ([]models.RoutineItem, error)
	ClearChecked(ctx context.Context, items []models.RoutineItem) (int, error)
}

// Settings supplies the user's configured reset time.
type Settings interface {
	ResetTime(ctx context.Context) (*models.ResetTime, error)
}

type Result struct {
	Outcome Outcome
	Cleared int
	// ResetAt is today's reset instant; zero when not configured or when the
	// fast path returned before settings were read.
	ResetAt time.Time
}

// Status describes the evaluator's view without changing anything.
type Status struct {
	Marker    *models.ResetMarker
	ResetTime *models.ResetTime
	ResetAt   time.Time // today's reset instant
	NextReset time.Time // next instant a pass could run
	Outcome   Outcome   // what Evaluate would report if it stopped before querying items
	Due       bool      // Evaluate would query and clear items now
}

type Option func(*Evaluator)

func WithClock(now func() time.Time) Option {
	return func(e *Evaluator) { e.now = now }
}

func WithLocation(loc *time.Location) Option {
	return func(e *Evaluator) { e.loc = loc }
}

type Evaluator struct {
	user     models.User
	items    Items
	settings Settings
	local    localstore.Store
	now      func() time.Time
	loc      *time.Location
}

func New(user models.User, items Items, settings Settings, local localstore.Store, opts ...Option) *Evaluator {
	e := &Evaluator{
		user:     user,
		items:    items,
		settings: settings,
		local:    local,
		now:      time.Now,
		loc:      time.Local,
	}
	for _, opt := range opts {
		opt(e)
	}
	return e
}

// MarkerKey is the device-local key holding a user's last reset instant.
func MarkerKey(userID string) string {
	return constants.LastResetKeyPrefix + ":" + userID
}

// Marker reads the device-local marker. A missing or unreadable marker is
// reported as nil so the next evaluation starts over.
func (e *Evaluator) Marker() (*models.ResetMarker, error) {
	raw, ok, err := e.local.GetItem(MarkerKey(e.user.ID))
	if err != nil {
		return nil, apperrors.StoreRead("reset.marker", err)
	}
	if !ok {
		return nil, nil
	}
	m, err := models.ParseResetMarker(raw)
	if err != nil {
		logger.Warn("Ignoring unreadable reset marker", "user", e.user.ID, "error", err)
		return nil, nil
	}
	return &m, nil
}

// ForgetMarker removes the marker so the next evaluation re-checks today.
func (e *Evaluator) ForgetMarker() error {
	if err := e.local.RemoveItem(MarkerKey(e.user.ID)); err != nil {
		return apperrors.StoreWrite("reset.forget_marker", err)
	}
	return nil
}

func (e *Evaluator) writeMarker(now time.Time) error {
	m := models.ResetMarker{LastReset: now}
	if err := e.local.SetItem(MarkerKey(e.user.ID), m.String()); err != nil {
		return apperrors.StoreWrite("reset.marker", err)
	}
	return nil
}

// markedToday is the fast path: true when the marker's local date is today.
func markedToday(marker *models.ResetMarker, today time.Time, loc *time.Location) bool {
	return marker != nil && marker.Date(loc).Equal(today)
}

// decide applies the time rules once reset_time is known. due is true when
// items should be cleared now.
func decide(now time.Time, marker *models.ResetMarker, rt models.ResetTime, loc *time.Location) (Outcome, time.Time, bool) {
	today := models.CalendarDate(now, loc)
	resetAt := rt.On(now, loc)
	if marker != nil && marker.Date(loc).After(today) {
		return OutcomeMarkerAhead, resetAt, false
	}
	if now.Before(resetAt) {
		return OutcomeBeforeResetTime, resetAt, false
	}
	return "", resetAt, true
}

// Evaluate runs one reset decision for the session and, when due, clears
// is_checked on every item active today in a single batch. Any failure
// leaves the marker untouched.
func (e *Evaluator) Evaluate(ctx context.Context) (Result, error) {
	now := e.now().In(e.loc)
	today := models.CalendarDate(now, e.loc)
	log := logger.With("user", e.user.ID)

	marker, err := e.Marker()
	if err != nil {
		return Result{}, err
	}
	if markedToday(marker, today, e.loc) {
		log.Debug("Reset already done today", "marker", marker.String())
		return Result{Outcome: OutcomeAlreadyReset}, nil
	}

	rt, err := e.settings.ResetTime(ctx)
	if err != nil {
		return Result{}, err
	}
	if rt == nil {
		log.Debug("Reset time not configured")
		return Result{Outcome: OutcomeNotConfigured}, nil
	}

	outcome, resetAt, due := decide(now, marker, *rt, e.loc)
	if !due {
		log.Debug("Reset not due", "outcome", outcome, "reset_at", resetAt)
		return Result{Outcome: outcome, ResetAt: resetAt}, nil
	}

	active, err := e.items.ListActiveOn(ctx, now.Weekday())
	if err != nil {
		return Result{}, err
	}
	if len(active) == 0 {
		if err := e.writeMarker(now); err != nil {
			return Result{}, err
		}
		log.Info("No items to reset today", "weekday", now.Weekday())
		return Result{Outcome: OutcomeNothingToReset, ResetAt: resetAt}, nil
	}

	cleared, err := e.items.ClearChecked(ctx, active)
	if err != nil {
		log.Warn("Reset batch failed, will retry next session", "error", err)
		return Result{}, err
	}
	if err := e.writeMarker(now); err != nil {
		return Result{}, err
	}
	log.Info("Reset daily items", "cleared", cleared, "weekday", now.Weekday())
	return Result{Outcome: OutcomeReset, Cleared: cleared, ResetAt: resetAt}, nil
}

// Status reports the marker, configured time and next reset without writing.
func (e *Evaluator) Status(ctx context.Context) (Status, error) {
	now := e.now().In(e.loc)
	today := models.CalendarDate(now, e.loc)

	marker, err := e.Marker()
	if err != nil {
		return Status{}, err
	}
	rt, err := e.settings.ResetTime(ctx)
	if err != nil {
		return Status{}, err
	}

	st := Status{Marker: marker, ResetTime: rt}
	if rt == nil {
		st.Outcome = OutcomeNotConfigured
		if markedToday(marker, today, e.loc) {
			st.Outcome = OutcomeAlreadyReset
		}
		return st, nil
	}

	st.ResetAt = rt.On(now, e.loc)
	tomorrow := rt.On(today.AddDate(0, 0, 1), e.loc)
	if markedToday(marker, today, e.loc) {
		st.Outcome = OutcomeAlreadyReset
		st.NextReset = tomorrow
		return st, nil
	}

	outcome, resetAt, due := decide(now, marker, *rt, e.loc)
	st.Outcome = outcome
	st.Due = due
	switch {
	case due:
		st.NextReset = now
	case outcome == OutcomeBeforeResetTime:
		st.NextReset = resetAt
	default:
		st.NextReset = tomorrow
	}
	return st, nil
}
