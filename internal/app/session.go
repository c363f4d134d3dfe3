// Package app wires the user-scoped components for one signed-in session.
package app

import (
	"context"
	"time"

	"github.com/julianstephens/routineo/internal/docstore"
	"github.com/julianstephens/routineo/internal/items"
	"github.com/julianstephens/routineo/internal/localstore"
	"github.com/julianstephens/routineo/internal/logger"
	"github.com/julianstephens/routineo/internal/reset"
	"github.com/julianstephens/routineo/internal/session"
	"github.com/julianstephens/routineo/internal/settings"
	"github.com/julianstephens/routineo/internal/viewmodel"
)

type Options struct {
	Now      func() time.Time
	Location *time.Location
	Mode     items.Mode
}

func (o Options) withDefaults() Options {
	if o.Now == nil {
		o.Now = time.Now
	}
	if o.Location == nil {
		o.Location = time.Local
	}
	return o
}

// Session holds everything built for one user. Nothing in it outlives a
// sign-out; build a new one for the next user.
type Session struct {
	User      session.User
	Items     *items.Repository
	Settings  *settings.Repository
	Evaluator *reset.Evaluator

	// Reset is the outcome of the pass run by OpenSession. ResetErr is set
	// when that pass failed; the marker is untouched so the next session
	// retries.
	Reset    reset.Result
	ResetErr error

	View *viewmodel.ViewModel
}

// NewSession builds the repositories and evaluator for user without running
// anything.
func NewSession(store docstore.Store, local localstore.Store, user session.User, opts Options) *Session {
	opts = opts.withDefaults()
	itemRepo := items.New(store, user, items.WithClock(opts.Now), items.WithLocation(opts.Location))
	settingsRepo := settings.New(store, user)
	return &Session{
		User:     user,
		Items:    itemRepo,
		Settings: settingsRepo,
		Evaluator: reset.New(user, itemRepo, settingsRepo, local,
			reset.WithClock(opts.Now), reset.WithLocation(opts.Location)),
	}
}

// OpenSession runs the daily reset pass to completion and then opens the
// live item view. A failed reset pass does not prevent the view from opening.
func OpenSession(ctx context.Context, store docstore.Store, local localstore.Store, user session.User, opts Options) (*Session, error) {
	s := NewSession(store, local, user, opts)

	s.Reset, s.ResetErr = s.Evaluator.Evaluate(ctx)
	if s.ResetErr != nil {
		logger.Warn("Daily reset failed, will retry next session", "user", user.ID, "error", s.ResetErr)
	}

	view, err := viewmodel.New(ctx, s.Items, opts.Mode)
	if err != nil {
		return nil, err
	}
	s.View = view
	return s, nil
}

// Close ends the live view.
func (s *Session) Close() {
	if s.View != nil {
		s.View.Close()
	}
}
