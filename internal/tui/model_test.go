package tui

import (
	"context"
	"errors"
	"path/filepath"
	"testing"
	"time"

	tea "github.com/charmbracelet/bubbletea"

	"github.com/julianstephens/routineo/internal/app"
	"github.com/julianstephens/routineo/internal/auth"
	"github.com/julianstephens/routineo/internal/constants"
	"github.com/julianstephens/routineo/internal/docstore"
	apperrors "github.com/julianstephens/routineo/internal/errors"
	"github.com/julianstephens/routineo/internal/items"
	"github.com/julianstephens/routineo/internal/localstore"
	"github.com/julianstephens/routineo/internal/models"
	"github.com/julianstephens/routineo/internal/session"
)

// 2025-03-10 is a Monday.
var monday = time.Date(2025, 3, 10, 10, 0, 0, 0, time.UTC)

type fixture struct {
	deps     Deps
	provider *auth.LocalProvider
}

func setup(t *testing.T) fixture {
	t.Helper()
	store := docstore.New(filepath.Join(t.TempDir(), "test.db"), docstore.WithPollInterval(0))
	if err := store.Init(); err != nil {
		t.Fatalf("failed to init store: %v", err)
	}
	t.Cleanup(func() { store.Close() })

	local := localstore.NewMemoryStore()
	clock := func() time.Time { return monday }
	provider := auth.NewLocalProvider(store, local, auth.WithClock(clock), auth.WithBcryptCost(4))
	return fixture{
		provider: provider,
		deps: Deps{
			Store: store,
			Local: local,
			Gate:  session.NewGate(provider),
			Options: app.Options{
				Now:      clock,
				Location: time.UTC,
				Mode:     items.ModeToday,
			},
		},
	}
}

func (f fixture) signUp(t *testing.T, email string) session.User {
	t.Helper()
	user, err := f.provider.SignUp(context.Background(), email, "correct horse")
	if err != nil {
		t.Fatalf("SignUp() failed: %v", err)
	}
	return user
}

func (f fixture) addItem(t *testing.T, user session.User, name string, days ...time.Weekday) models.RoutineItem {
	t.Helper()
	s := app.NewSession(f.deps.Store, f.deps.Local, user, f.deps.Options)
	item, err := s.Items.Create(context.Background(), models.ItemDraft{
		Name:      name,
		PartOfDay: models.NewPartSet(models.Morning),
		DayOfWeek: models.NewDaySet(days...),
	})
	if err != nil {
		t.Fatalf("Create() failed: %v", err)
	}
	return item
}

func update(t *testing.T, m Model, msg tea.Msg) (Model, tea.Cmd) {
	t.Helper()
	next, cmd := m.Update(msg)
	return next.(Model), cmd
}

func keyPress(r rune) tea.KeyMsg {
	return tea.KeyMsg{Type: tea.KeyRunes, Runes: []rune{r}}
}

// open drives the model from SignedIn to an open session.
func open(t *testing.T, f fixture, m Model, user session.User) Model {
	t.Helper()
	m, _ = update(t, m, gateStateMsg(session.State{Status: session.SignedIn, User: user}))
	if m.state != constants.StateResolving || !m.opening {
		t.Fatalf("state after SignedIn = %v, opening = %v", m.state, m.opening)
	}
	msg := openSession(m.sessionCtx(), f.deps, user)()
	m, _ = update(t, m, msg)
	if m.state != constants.StateItems || m.sess == nil {
		t.Fatalf("state after open = %v, session = %v", m.state, m.sess)
	}
	t.Cleanup(m.Close)
	return m
}

// settle feeds view changes to the model until done reports true.
func settle(t *testing.T, m Model, done func(Model) bool) Model {
	t.Helper()
	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()
	for !done(m) {
		msg := waitChanges(ctx, m.sess.View)()
		if msg == nil {
			t.Fatal("view never reached the expected state")
		}
		m, _ = update(t, m, msg)
	}
	return m
}

func TestModel_StartsResolving(t *testing.T) {
	f := setup(t)
	m := NewModel(f.deps)
	defer m.Close()

	if m.state != constants.StateResolving {
		t.Errorf("initial state = %v, want resolving", m.state)
	}
	if m.View() == "" {
		t.Error("resolving view is empty")
	}
}

func TestModel_SignedOutShowsSignIn(t *testing.T) {
	f := setup(t)
	m := NewModel(f.deps)
	defer m.Close()

	err := apperrors.Auth("auth.restore", apperrors.ReasonSessionExpired, errors.New("expired"))
	m, _ = update(t, m, gateStateMsg(session.State{Status: session.SignedOut, Err: err}))

	if m.state != constants.StateSignIn || m.form == nil {
		t.Fatalf("state = %v, form = %v; want sign-in form", m.state, m.form)
	}
	if m.authErr == "" {
		t.Error("session error not shown on the sign-in screen")
	}
}

func TestModel_OpensSessionForToday(t *testing.T) {
	f := setup(t)
	user := f.signUp(t, "ada@example.com")
	f.addItem(t, user, "Meds", time.Monday)
	f.addItem(t, user, "Gym", time.Tuesday)

	m := open(t, f, NewModel(f.deps), user)

	if _, total := m.checklist.Progress(); total != 1 {
		t.Errorf("today shows %d rows, want 1", total)
	}
	if _, it, ok := m.checklist.Selected(); !ok || it.Name != "Meds" {
		t.Errorf("selected %+v, want Meds", it)
	}
}

func TestModel_SignOutDiscardsSession(t *testing.T) {
	f := setup(t)
	user := f.signUp(t, "ada@example.com")
	f.addItem(t, user, "Meds", time.Monday)
	m := open(t, f, NewModel(f.deps), user)
	view := m.sess.View

	m, _ = update(t, m, gateStateMsg(session.State{Status: session.SignedOut}))

	if m.sess != nil || m.user.ID != "" {
		t.Error("session survived sign-out")
	}
	if _, total := m.checklist.Progress(); total != 0 {
		t.Errorf("checklist still shows %d rows after sign-out", total)
	}
	if m.state != constants.StateSignIn {
		t.Errorf("state = %v, want sign-in", m.state)
	}

	// a late notification from the closed view is ignored
	m, cmd := update(t, m, viewChangedMsg{view: view})
	if cmd != nil || m.sess != nil {
		t.Error("stale view change was applied")
	}
}

func TestModel_LateSessionIsDropped(t *testing.T) {
	f := setup(t)
	user := f.signUp(t, "ada@example.com")
	m := NewModel(f.deps)
	defer m.Close()

	m, _ = update(t, m, gateStateMsg(session.State{Status: session.SignedIn, User: user}))
	msg := openSession(context.Background(), f.deps, user)()
	m, _ = update(t, m, gateStateMsg(session.State{Status: session.SignedOut}))
	m, _ = update(t, m, msg)

	if m.sess != nil || m.state != constants.StateSignIn {
		t.Errorf("session opened after sign-out: state = %v", m.state)
	}
}

func TestModel_ToggleAndDelete(t *testing.T) {
	f := setup(t)
	user := f.signUp(t, "ada@example.com")
	item := f.addItem(t, user, "Meds", time.Monday)
	m := open(t, f, NewModel(f.deps), user)

	m, cmd := update(t, m, keyPress('x'))
	if msg, ok := cmd().(opDoneMsg); !ok || msg.err != nil {
		t.Fatalf("toggle result = %+v", msg)
	}
	m = settle(t, m, func(m Model) bool {
		done, _ := m.checklist.Progress()
		return done == 1
	})

	m, _ = update(t, m, keyPress('d'))
	if m.state != constants.StateConfirmDelete || m.deleteID != item.ID {
		t.Fatalf("state = %v, deleteID = %q", m.state, m.deleteID)
	}
	m, cmd = update(t, m, keyPress('y'))
	if msg, ok := cmd().(opDoneMsg); !ok || msg.err != nil {
		t.Fatalf("delete result = %+v", msg)
	}
	m = settle(t, m, func(m Model) bool {
		_, total := m.checklist.Progress()
		return total == 0
	})
	if m.state != constants.StateItems {
		t.Errorf("state = %v after delete, want items", m.state)
	}
}

func TestModel_ModeSwitch(t *testing.T) {
	f := setup(t)
	user := f.signUp(t, "ada@example.com")
	f.addItem(t, user, "Meds", time.Monday)
	f.addItem(t, user, "Gym", time.Tuesday)
	m := open(t, f, NewModel(f.deps), user)

	m, cmd := update(t, m, keyPress('m'))
	if msg, ok := cmd().(opDoneMsg); !ok || msg.err != nil {
		t.Fatalf("mode switch result = %+v", msg)
	}
	if m.sess.View.Mode() != items.ModeAll {
		t.Fatalf("mode = %v, want all", m.sess.View.Mode())
	}
	m = settle(t, m, func(m Model) bool {
		_, total := m.checklist.Progress()
		return total == 2
	})
}

func TestItemForm_Patch(t *testing.T) {
	item := models.RoutineItem{
		Name:      "Meds",
		PartOfDay: models.NewPartSet(models.Morning),
		DayOfWeek: models.NewDaySet(time.Monday),
	}

	same := &ItemFormModel{Name: "Meds", Parts: []models.PartOfDay{models.Morning}, Days: []time.Weekday{time.Monday}}
	if p := same.patch(item); !p.Empty() {
		t.Errorf("unchanged form produced %+v", p)
	}

	changed := &ItemFormModel{Name: "Pills", Parts: []models.PartOfDay{models.Evening, models.Morning}, Days: []time.Weekday{time.Monday}}
	p := changed.patch(item)
	if p.Name == nil || *p.Name != "Pills" || len(p.PartOfDay) != 2 || p.DayOfWeek != nil {
		t.Errorf("patch = %+v", p)
	}
}

func TestModel_DayChangeReopensToday(t *testing.T) {
	f := setup(t)
	now := monday
	f.deps.Options.Now = func() time.Time { return now }
	user := f.signUp(t, "ada@example.com")
	f.addItem(t, user, "Meds", time.Monday)
	f.addItem(t, user, "Gym", time.Tuesday)
	m := open(t, f, NewModel(f.deps), user)

	if _, it, _ := m.checklist.Selected(); it.Name != "Meds" {
		t.Fatalf("Monday shows %q, want Meds", it.Name)
	}

	now = monday.Add(14 * time.Hour) // Tuesday 00:00
	m, cmd := update(t, m, dayChangedMsg{sess: m.sess})
	if cmd == nil {
		t.Fatal("day change scheduled no refresh")
	}
	if msg, ok := refreshView(m.sess.View)().(opDoneMsg); !ok || msg.err != nil {
		t.Fatalf("refresh result = %+v", msg)
	}
	m = settle(t, m, func(m Model) bool {
		_, it, ok := m.checklist.Selected()
		return ok && it.Name == "Gym"
	})
	if _, total := m.checklist.Progress(); total != 1 {
		t.Errorf("Tuesday shows %d rows, want 1", total)
	}

	// a timer left over from a closed session does nothing
	if _, cmd := update(t, m, dayChangedMsg{sess: nil}); cmd != nil {
		t.Error("stale day change was acted on")
	}
}

func TestScheduleDayChange_StopsWithSession(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cmd := scheduleDayChange(ctx, nil, time.UTC, func() time.Time { return monday })
	cancel()
	if msg := cmd(); msg != nil {
		t.Errorf("cancelled day timer returned %T", msg)
	}
}
