package tui

import (
	"context"
	"fmt"
	"time"

	"github.com/charmbracelet/bubbles/key"
	"github.com/charmbracelet/bubbles/spinner"
	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/huh"

	"github.com/julianstephens/routineo/internal/constants"
	apperrors "github.com/julianstephens/routineo/internal/errors"
	"github.com/julianstephens/routineo/internal/items"
	"github.com/julianstephens/routineo/internal/logger"
	"github.com/julianstephens/routineo/internal/models"
	"github.com/julianstephens/routineo/internal/reset"
	"github.com/julianstephens/routineo/internal/session"
	"github.com/julianstephens/routineo/internal/validation"
)

func (m Model) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	switch msg := msg.(type) {
	case tea.WindowSizeMsg:
		m.width = msg.Width
		m.height = msg.Height
		m.help.Width = msg.Width
		m.checklist.SetSize(msg.Width-4, msg.Height-8)
		return m, nil

	case spinner.TickMsg:
		var cmd tea.Cmd
		m.spinner, cmd = m.spinner.Update(msg)
		return m, cmd

	case gateStateMsg:
		cmd := m.applyGate(session.State(msg))
		return m, tea.Batch(cmd, waitGate(m.gateCh))

	case authDoneMsg:
		// the gate reports the outcome; only a failure needs the form back
		if msg.err != nil {
			m.authErr = apperrors.Message(msg.err)
		}
		return m, nil

	case sessionOpenedMsg:
		return m.applySession(msg)

	case viewChangedMsg:
		if m.sess == nil || msg.view != m.sess.View {
			return m, nil
		}
		m.refresh()
		return m, waitChanges(m.sessionCtx(), m.sess.View)

	case resetStatusMsg:
		if msg.sess != m.sess {
			return m, nil
		}
		if msg.err != nil {
			m.flash = fmt.Sprintf("Reset status unavailable: %v", msg.err)
			return m, nil
		}
		st := msg.status
		m.resetStatus = &st
		m.resetGen++
		return m, scheduleReset(m.sessionCtx(), m.sess, m.resetGen, st.NextReset, m.now)

	case resetDueMsg:
		if msg.sess != m.sess || msg.gen != m.resetGen {
			return m, nil
		}
		return m, runReset(m.sessionCtx(), m.sess, false)

	case resetDoneMsg:
		if msg.sess != m.sess {
			return m, nil
		}
		if msg.err != nil {
			m.flash = "Daily reset failed, it will be retried: " + apperrors.Message(msg.err)
			return m, loadResetStatus(m.sessionCtx(), m.sess)
		}
		if msg.result.Outcome == reset.OutcomeReset {
			m.flash = fmt.Sprintf("New day: cleared %d item(s).", msg.result.Cleared)
		}
		return m, tea.Batch(loadResetStatus(m.sessionCtx(), m.sess), refreshView(m.sess.View))

	case dayChangedMsg:
		if msg.sess != m.sess {
			return m, nil
		}
		ctx := m.sessionCtx()
		return m, tea.Batch(
			refreshView(m.sess.View),
			scheduleDayChange(ctx, m.sess, m.deps.Options.Location, m.now),
		)

	case opDoneMsg:
		if msg.err != nil {
			m.flash = "Error: " + apperrors.Message(msg.err)
		} else if msg.notice != "" {
			m.flash = msg.notice
		}
		return m, nil

	case tea.KeyMsg:
		if msg.String() == "ctrl+c" {
			m.quitting = true
			return m, tea.Quit
		}
	}

	switch m.state {
	case constants.StateSignIn:
		return m.updateSignIn(msg)
	case constants.StateAddItem, constants.StateEditItem:
		return m.updateItemForm(msg)
	case constants.StateSettings:
		if m.form != nil {
			return m.updateSettingsForm(msg)
		}
		return m.updateSettings(msg)
	case constants.StateConfirmDelete:
		return m.updateConfirmDelete(msg)
	case constants.StateItems:
		return m.updateItems(msg)
	}

	if msg, ok := msg.(tea.KeyMsg); ok && key.Matches(msg, m.keys.Quit) {
		m.quitting = true
		return m, tea.Quit
	}
	return m, nil
}

func (m *Model) now() time.Time {
	if m.deps.Options.Now != nil {
		return m.deps.Options.Now()
	}
	return time.Now()
}

func (m *Model) sessionCtx() context.Context {
	if m.sessCtx == nil {
		return m.ctx
	}
	return m.sessCtx
}

// applyGate moves between screens as the session gate changes. Nothing
// user-scoped survives a transition away from SignedIn.
func (m *Model) applyGate(s session.State) tea.Cmd {
	switch s.Status {
	case session.Resolving:
		if m.state == constants.StateSignIn {
			// keep the form on screen while credentials are checked
			m.authErr = ""
			return nil
		}
		m.state = constants.StateResolving
		return m.spinner.Tick

	case session.SignedOut:
		email := ""
		if m.state == constants.StateSignIn && m.signInForm != nil {
			email = m.signInForm.Email
		}
		m.closeSession()
		m.state = constants.StateSignIn
		if s.Err != nil {
			m.authErr = apperrors.Message(s.Err)
		}
		return m.startSignIn(email)

	case session.SignedIn:
		if (m.sess != nil || m.opening) && m.user.ID == s.User.ID {
			if m.sess != nil && m.state == constants.StateResolving {
				m.state = constants.StateItems
			}
			return nil
		}
		m.closeSession()
		m.user = s.User
		m.state = constants.StateResolving
		m.opening = true
		ctx, cancel := context.WithCancel(m.ctx)
		m.sessCtx = ctx
		m.sessCancel = cancel
		return tea.Batch(m.spinner.Tick, openSession(ctx, m.deps, s.User))
	}
	return nil
}

func (m *Model) closeSession() {
	if m.sessCancel != nil {
		m.sessCancel()
		m.sessCancel = nil
		m.sessCtx = nil
	}
	if m.sess != nil {
		m.sess.Close()
		m.sess = nil
	}
	m.user = session.User{}
	m.opening = false
	m.resetStatus = nil
	m.form = nil
	m.flash = ""
	m.checklist.SetGroups(nil, nil)
}

func (m Model) applySession(msg sessionOpenedMsg) (tea.Model, tea.Cmd) {
	if !m.opening || msg.user.ID != m.user.ID {
		if msg.sess != nil {
			msg.sess.Close()
		}
		return m, nil
	}
	m.opening = false
	if msg.err != nil {
		logger.Error("Failed to open session", "user", msg.user.ID, "error", msg.err)
		m.flash = "Could not load your items: " + apperrors.Message(msg.err)
		m.state = constants.StateItems
		return m, nil
	}

	m.sess = msg.sess
	m.state = constants.StateItems
	switch {
	case msg.sess.ResetErr != nil:
		m.flash = "Daily reset failed, it will be retried: " + apperrors.Message(msg.sess.ResetErr)
	case msg.sess.Reset.Outcome == reset.OutcomeReset:
		m.flash = fmt.Sprintf("New day: cleared %d item(s).", msg.sess.Reset.Cleared)
	case msg.sess.Reset.Outcome == reset.OutcomeNotConfigured:
		m.flash = "Set a daily reset time in Settings (tab) to clear checks each morning."
	}
	m.refresh()
	ctx := m.sessionCtx()
	return m, tea.Batch(
		waitChanges(ctx, m.sess.View),
		loadResetStatus(ctx, m.sess),
		scheduleDayChange(ctx, m.sess, m.deps.Options.Location, m.now),
	)
}

// refresh re-reads the view model's projection into the checklist.
func (m *Model) refresh() {
	view := m.sess.View
	buckets := view.Buckets()
	if view.Mode() == items.ModeToday {
		today := m.sess.Items.Today()
		filtered := buckets[:0]
		for _, b := range buckets {
			if b.Day == today {
				filtered = append(filtered, b)
			}
		}
		buckets = filtered
		m.checklist.SetEmptyText("Nothing scheduled today. Press 'm' to see every day or 'a' to add an item.")
	} else {
		m.checklist.SetEmptyText("Nothing here yet. Press 'a' to add an item.")
	}
	m.checklist.SetGroups(buckets, view.Bucket)
	if err := view.Err(); err != nil {
		m.flash = "Live updates interrupted: " + apperrors.Message(err)
	}
}

func (m *Model) startSignIn(email string) tea.Cmd {
	m.signInForm = &SignInFormModel{Action: authSignIn, Email: email}
	m.form = newSignInForm(m.signInForm)
	return m.form.Init()
}

func (m *Model) updateForm(msg tea.Msg) (tea.Cmd, huh.FormState) {
	form, cmd := m.form.Update(msg)
	if f, ok := form.(*huh.Form); ok {
		m.form = f
	}
	return cmd, m.form.State
}

func (m Model) updateSignIn(msg tea.Msg) (tea.Model, tea.Cmd) {
	if m.form == nil {
		return m, m.startSignIn("")
	}
	if msg, ok := msg.(tea.KeyMsg); ok && msg.Type == tea.KeyEsc {
		m.quitting = true
		return m, tea.Quit
	}

	cmd, state := m.updateForm(msg)
	switch state {
	case huh.StateCompleted:
		f := m.signInForm
		if f.Action == authSignUp {
			if err := validation.ValidateCredentials(f.Email, f.Password, constants.MinPasswordLength); err != nil {
				m.authErr = apperrors.Message(err)
				return m, m.startSignIn(f.Email)
			}
		}
		m.authErr = ""
		start := m.startSignIn(f.Email)
		return m, tea.Batch(start, authenticate(m.ctx, m.deps.Gate, f.Action, f.Email, f.Password))
	case huh.StateAborted:
		m.quitting = true
		return m, tea.Quit
	}
	return m, cmd
}

func (m Model) updateItems(msg tea.Msg) (tea.Model, tea.Cmd) {
	keyMsg, ok := msg.(tea.KeyMsg)
	if !ok || m.sess == nil {
		if ok && key.Matches(keyMsg, m.keys.Quit) {
			m.quitting = true
			return m, tea.Quit
		}
		return m, nil
	}
	ctx := m.sessionCtx()
	view := m.sess.View
	bucket, item, selected := m.checklist.Selected()

	switch {
	case key.Matches(keyMsg, m.keys.Quit):
		m.quitting = true
		return m, tea.Quit
	case key.Matches(keyMsg, m.keys.Help):
		m.help.ShowAll = !m.help.ShowAll
	case key.Matches(keyMsg, m.keys.Tab):
		m.state = constants.StateSettings
		return m, loadResetStatus(ctx, m.sess)
	case key.Matches(keyMsg, m.keys.Up):
		m.checklist.Up()
	case key.Matches(keyMsg, m.keys.Down):
		m.checklist.Down()
	case key.Matches(keyMsg, m.keys.MoveUp), key.Matches(keyMsg, m.keys.MoveDown):
		if !selected {
			return m, nil
		}
		delta := 1
		if key.Matches(keyMsg, m.keys.MoveUp) {
			delta = -1
		}
		return m, write(func() error { return view.MoveItem(ctx, bucket, item.ID, delta) }, "")
	case key.Matches(keyMsg, m.keys.Toggle):
		if !selected {
			return m, nil
		}
		return m, write(func() error { return view.Toggle(ctx, item.ID, !item.IsChecked) }, "")
	case key.Matches(keyMsg, m.keys.Mode):
		next := items.ModeAll
		if view.Mode() == items.ModeAll {
			next = items.ModeToday
		}
		return m, setMode(view, next)
	case key.Matches(keyMsg, m.keys.Add):
		m.state = constants.StateAddItem
		m.editingID = ""
		m.formErr = ""
		m.itemForm = &ItemFormModel{
			Parts: []models.PartOfDay{models.Morning},
			Days:  []time.Weekday{m.sess.Items.Today()},
		}
		if selected {
			m.itemForm.Parts = []models.PartOfDay{bucket.Part}
			m.itemForm.Days = []time.Weekday{bucket.Day}
		}
		m.form = newItemForm(m.itemForm, "New item")
		return m, m.form.Init()
	case key.Matches(keyMsg, m.keys.Edit):
		if !selected {
			return m, nil
		}
		m.state = constants.StateEditItem
		m.editingID = item.ID
		m.formErr = ""
		m.itemForm = &ItemFormModel{
			Name:  item.Name,
			Parts: append([]models.PartOfDay(nil), item.PartOfDay...),
			Days:  append([]time.Weekday(nil), item.DayOfWeek...),
		}
		m.form = newItemForm(m.itemForm, "Edit item")
		return m, m.form.Init()
	case key.Matches(keyMsg, m.keys.Delete):
		if !selected {
			return m, nil
		}
		m.state = constants.StateConfirmDelete
		m.deleteID = item.ID
		m.deleteName = item.Name
	case key.Matches(keyMsg, m.keys.SignOut):
		return m, signOut(m.ctx, m.deps.Gate)
	}
	return m, nil
}

func (m Model) updateItemForm(msg tea.Msg) (tea.Model, tea.Cmd) {
	if msg, ok := msg.(tea.KeyMsg); ok && msg.Type == tea.KeyEsc {
		m.form = nil
		m.state = constants.StateItems
		return m, nil
	}

	cmd, state := m.updateForm(msg)
	switch state {
	case huh.StateCompleted:
		ctx := m.sessionCtx()
		view := m.sess.View
		f := *m.itemForm
		m.form = nil
		m.state = constants.StateItems

		if m.editingID == "" {
			draft := f.draft()
			return m, write(func() error {
				_, err := view.Create(ctx, draft)
				return err
			}, fmt.Sprintf("Added %q", draft.Name))
		}

		current, ok := view.Find(m.editingID)
		if !ok {
			m.flash = "That item no longer exists."
			return m, nil
		}
		patch := f.patch(current)
		if patch.Empty() {
			return m, nil
		}
		id := m.editingID
		return m, write(func() error { return view.Edit(ctx, id, patch) }, "Saved")
	case huh.StateAborted:
		m.form = nil
		m.state = constants.StateItems
		return m, nil
	}
	return m, cmd
}

func (m Model) updateConfirmDelete(msg tea.Msg) (tea.Model, tea.Cmd) {
	keyMsg, ok := msg.(tea.KeyMsg)
	if !ok {
		return m, nil
	}
	switch keyMsg.String() {
	case "y", "Y":
		ctx := m.sessionCtx()
		view := m.sess.View
		id, name := m.deleteID, m.deleteName
		m.deleteID, m.deleteName = "", ""
		m.state = constants.StateItems
		return m, write(func() error { return view.Delete(ctx, id) }, fmt.Sprintf("Deleted %q", name))
	case "n", "N", "esc":
		m.deleteID, m.deleteName = "", ""
		m.state = constants.StateItems
	}
	return m, nil
}

func (m Model) updateSettings(msg tea.Msg) (tea.Model, tea.Cmd) {
	keyMsg, ok := msg.(tea.KeyMsg)
	if !ok || m.sess == nil {
		return m, nil
	}
	switch {
	case key.Matches(keyMsg, m.keys.Quit):
		m.quitting = true
		return m, tea.Quit
	case key.Matches(keyMsg, m.keys.Tab), keyMsg.Type == tea.KeyEsc:
		m.state = constants.StateItems
	case key.Matches(keyMsg, m.keys.Edit):
		current := constants.DefaultResetTime
		if m.resetStatus != nil && m.resetStatus.ResetTime != nil {
			current = m.resetStatus.ResetTime.String()
		}
		m.formErr = ""
		m.settingsForm = &SettingsFormModel{ResetTime: current}
		m.form = newSettingsForm(m.settingsForm)
		return m, m.form.Init()
	case key.Matches(keyMsg, m.keys.Reset):
		return m, runReset(m.sessionCtx(), m.sess, true)
	case key.Matches(keyMsg, m.keys.SignOut):
		return m, signOut(m.ctx, m.deps.Gate)
	}
	return m, nil
}

func (m Model) updateSettingsForm(msg tea.Msg) (tea.Model, tea.Cmd) {
	if msg, ok := msg.(tea.KeyMsg); ok && msg.Type == tea.KeyEsc {
		m.form = nil
		return m, nil
	}

	cmd, state := m.updateForm(msg)
	switch state {
	case huh.StateCompleted:
		m.form = nil
		rt, err := validation.ParseResetTime(m.settingsForm.ResetTime)
		if err != nil {
			m.formErr = apperrors.Message(err)
			return m, nil
		}
		ctx := m.sessionCtx()
		s := m.sess
		return m, tea.Sequence(
			write(func() error { return s.Settings.SetResetTime(ctx, rt) }, "Reset time set to "+rt.String()),
			loadResetStatus(ctx, s),
		)
	case huh.StateAborted:
		m.form = nil
	}
	return m, cmd
}

