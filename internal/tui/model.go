// Package tui is the interactive checklist. Its screens follow the session
// gate: a spinner while the persisted session resolves, a sign-in form when
// signed out, and the live item view once a session is open.
package tui

import (
	"context"

	"github.com/charmbracelet/bubbles/help"
	"github.com/charmbracelet/bubbles/key"
	"github.com/charmbracelet/bubbles/spinner"
	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/huh"

	"github.com/julianstephens/routineo/internal/app"
	"github.com/julianstephens/routineo/internal/constants"
	"github.com/julianstephens/routineo/internal/docstore"
	"github.com/julianstephens/routineo/internal/localstore"
	"github.com/julianstephens/routineo/internal/reset"
	"github.com/julianstephens/routineo/internal/session"
	"github.com/julianstephens/routineo/internal/tui/components/checklist"
)

// Deps are the long-lived collaborators. Everything user-scoped is built per
// session from these.
type Deps struct {
	Store   docstore.Store
	Local   localstore.Store
	Gate    *session.Gate
	Options app.Options
}

type Model struct {
	deps   Deps
	ctx    context.Context
	cancel context.CancelFunc
	gateCh <-chan session.State

	state   constants.SessionState
	keys    KeyMap
	help    help.Model
	spinner spinner.Model

	// session-scoped; replaced on every sign-in
	user        session.User
	sess        *app.Session
	sessCtx     context.Context
	sessCancel  context.CancelFunc
	opening     bool
	checklist   checklist.Model
	resetStatus *reset.Status
	resetGen    int

	form         *huh.Form
	signInForm   *SignInFormModel
	itemForm     *ItemFormModel
	settingsForm *SettingsFormModel
	editingID    string
	deleteID     string
	deleteName   string

	authErr  string
	formErr  string
	flash    string
	quitting bool
	width    int
	height   int
}

func NewModel(deps Deps) Model {
	ctx, cancel := context.WithCancel(context.Background())
	sp := spinner.New()
	sp.Spinner = spinner.Dot

	return Model{
		deps:      deps,
		ctx:       ctx,
		cancel:    cancel,
		gateCh:    deps.Gate.Watch(ctx),
		state:     constants.StateResolving,
		keys:      DefaultKeyMap(),
		help:      help.New(),
		spinner:   sp,
		checklist: checklist.New(0, 0),
	}
}

func (m Model) Init() tea.Cmd {
	return tea.Batch(m.spinner.Tick, waitGate(m.gateCh), resolveSession(m.ctx, m.deps.Gate))
}

// Close releases the open session and stops watching the gate.
func (m Model) Close() {
	if m.sessCancel != nil {
		m.sessCancel()
	}
	if m.sess != nil {
		m.sess.Close()
	}
	m.cancel()
}

func (m Model) ShortHelp() []key.Binding {
	switch m.state {
	case constants.StateItems:
		return []key.Binding{m.keys.Toggle, m.keys.Add, m.keys.Mode, m.keys.Tab, m.keys.Quit, m.keys.Help}
	case constants.StateSettings:
		return []key.Binding{m.keys.Edit, m.keys.Reset, m.keys.SignOut, m.keys.Tab, m.keys.Quit}
	}
	return []key.Binding{m.keys.Quit}
}

func (m Model) FullHelp() [][]key.Binding {
	navigation := []key.Binding{m.keys.Up, m.keys.Down, m.keys.MoveUp, m.keys.MoveDown}
	actions := []key.Binding{m.keys.Toggle, m.keys.Add, m.keys.Edit, m.keys.Delete, m.keys.Mode}
	global := []key.Binding{m.keys.Tab, m.keys.SignOut, m.keys.Help, m.keys.Quit}
	return [][]key.Binding{navigation, actions, global}
}
