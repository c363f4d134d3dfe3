package tui

import (
	"context"
	"time"

	tea "github.com/charmbracelet/bubbletea"

	"github.com/julianstephens/routineo/internal/app"
	"github.com/julianstephens/routineo/internal/items"
	"github.com/julianstephens/routineo/internal/reset"
	"github.com/julianstephens/routineo/internal/session"
	"github.com/julianstephens/routineo/internal/utils"
	"github.com/julianstephens/routineo/internal/viewmodel"
)

type gateStateMsg session.State

type sessionOpenedMsg struct {
	user session.User
	sess *app.Session
	err  error
}

// viewChangedMsg carries the view it came from so notifications from a
// closed session are dropped.
type viewChangedMsg struct {
	view *viewmodel.ViewModel
}

type resetStatusMsg struct {
	sess   *app.Session
	status reset.Status
	err    error
}

// resetDueMsg is dropped unless gen matches the latest schedule.
type resetDueMsg struct {
	sess *app.Session
	gen  int
}

// dayChangedMsg fires at local midnight for the session it was scheduled for.
type dayChangedMsg struct {
	sess *app.Session
}

type resetDoneMsg struct {
	sess   *app.Session
	result reset.Result
	err    error
}

// opDoneMsg reports the end of a write. The view updates through its
// subscription, so only failures and notices need handling.
type opDoneMsg struct {
	notice string
	err    error
}

type authDoneMsg struct {
	err error
}

func waitGate(ch <-chan session.State) tea.Cmd {
	return func() tea.Msg {
		s, ok := <-ch
		if !ok {
			return nil
		}
		return gateStateMsg(s)
	}
}

func resolveSession(ctx context.Context, gate *session.Gate) tea.Cmd {
	return func() tea.Msg {
		gate.Resolve(ctx)
		return nil
	}
}

func authenticate(ctx context.Context, gate *session.Gate, action, email, password string) tea.Cmd {
	return func() tea.Msg {
		var err error
		if action == authSignUp {
			_, err = gate.SignUp(ctx, email, password)
		} else {
			_, err = gate.SignIn(ctx, email, password)
		}
		return authDoneMsg{err: err}
	}
}

func signOut(ctx context.Context, gate *session.Gate) tea.Cmd {
	return func() tea.Msg {
		return opDoneMsg{err: gate.SignOut(ctx)}
	}
}

func openSession(ctx context.Context, deps Deps, user session.User) tea.Cmd {
	return func() tea.Msg {
		s, err := app.OpenSession(ctx, deps.Store, deps.Local, user, deps.Options)
		return sessionOpenedMsg{user: user, sess: s, err: err}
	}
}

func waitChanges(ctx context.Context, view *viewmodel.ViewModel) tea.Cmd {
	return func() tea.Msg {
		select {
		case <-view.Changes():
			return viewChangedMsg{view: view}
		case <-ctx.Done():
			return nil
		}
	}
}

func loadResetStatus(ctx context.Context, s *app.Session) tea.Cmd {
	return func() tea.Msg {
		st, err := s.Evaluator.Status(ctx)
		return resetStatusMsg{sess: s, status: st, err: err}
	}
}

// scheduleReset fires when the next reset instant passes so a session left
// open overnight still clears yesterday's checks.
func scheduleReset(ctx context.Context, s *app.Session, gen int, at time.Time, now func() time.Time) tea.Cmd {
	if at.IsZero() {
		return nil
	}
	wait := at.Sub(now())
	if wait < time.Second {
		wait = time.Second
	}
	return func() tea.Msg {
		t := time.NewTimer(wait)
		defer t.Stop()
		select {
		case <-t.C:
			return resetDueMsg{sess: s, gen: gen}
		case <-ctx.Done():
			return nil
		}
	}
}

// scheduleDayChange fires at the next local midnight so the today query can
// be reopened for the new weekday.
func scheduleDayChange(ctx context.Context, s *app.Session, loc *time.Location, now func() time.Time) tea.Cmd {
	if loc == nil {
		loc = time.Local
	}
	at := utils.StartOfDay(now(), loc).AddDate(0, 0, 1)
	wait := at.Sub(now())
	if wait < time.Second {
		wait = time.Second
	}
	return func() tea.Msg {
		t := time.NewTimer(wait)
		defer t.Stop()
		select {
		case <-t.C:
			return dayChangedMsg{sess: s}
		case <-ctx.Done():
			return nil
		}
	}
}

// refreshView reopens the live query; the new snapshot arrives through
// waitChanges.
func refreshView(view *viewmodel.ViewModel) tea.Cmd {
	return func() tea.Msg {
		return opDoneMsg{err: view.Refresh()}
	}
}

func runReset(ctx context.Context, s *app.Session, force bool) tea.Cmd {
	return func() tea.Msg {
		if force {
			if err := s.Evaluator.ForgetMarker(); err != nil {
				return resetDoneMsg{sess: s, err: err}
			}
		}
		res, err := s.Evaluator.Evaluate(ctx)
		return resetDoneMsg{sess: s, result: res, err: err}
	}
}

func write(fn func() error, notice string) tea.Cmd {
	return func() tea.Msg {
		if err := fn(); err != nil {
			return opDoneMsg{err: err}
		}
		return opDoneMsg{notice: notice}
	}
}

func setMode(view *viewmodel.ViewModel, mode items.Mode) tea.Cmd {
	return func() tea.Msg {
		// the new subscription's first snapshot arrives through waitChanges
		return opDoneMsg{err: view.SetMode(mode)}
	}
}
