package cli

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/julianstephens/routineo/internal/app"
	"github.com/julianstephens/routineo/internal/auth"
	"github.com/julianstephens/routineo/internal/config"
	"github.com/julianstephens/routineo/internal/docstore"
	apperrors "github.com/julianstephens/routineo/internal/errors"
	"github.com/julianstephens/routineo/internal/items"
	"github.com/julianstephens/routineo/internal/localstore"
	"github.com/julianstephens/routineo/internal/models"
	"github.com/julianstephens/routineo/internal/session"
)

var ErrNotSignedIn = errors.New("not signed in, run 'routineo login' or 'routineo signup' first")

// Context is shared by every command. Store is loaded before Run except for
// init.
type Context struct {
	Ctx       context.Context
	Store     *docstore.SQLStore
	Config    *config.Config
	ConfigDir string

	// Local is opened on first use from Config.LocalStore unless set.
	Local    localstore.Store
	Location *time.Location
	Now      func() time.Time
}

func (c *Context) Background() context.Context {
	if c.Ctx == nil {
		return context.Background()
	}
	return c.Ctx
}

func (c *Context) config() *config.Config {
	if c.Config == nil {
		c.Config = config.Default()
	}
	return c.Config
}

// OpenStore returns an unopened document store for dsn using the configured
// poll interval.
func (c *Context) OpenStore(dsn string) *docstore.SQLStore {
	return docstore.New(dsn, docstore.WithPollInterval(c.config().PollInterval()))
}

func (c *Context) LocalStore() (localstore.Store, error) {
	if c.Local != nil {
		return c.Local, nil
	}
	local, err := localstore.Open(c.config().LocalStore, c.ConfigDir)
	if err != nil {
		return nil, fmt.Errorf("failed to open local store: %w", err)
	}
	c.Local = local
	return local, nil
}

func (c *Context) clock() func() time.Time {
	if c.Now == nil {
		return time.Now
	}
	return c.Now
}

func (c *Context) location() *time.Location {
	if c.Location == nil {
		return time.Local
	}
	return c.Location
}

// Provider returns the identity provider over the loaded store.
func (c *Context) Provider() (*auth.LocalProvider, error) {
	local, err := c.LocalStore()
	if err != nil {
		return nil, err
	}
	return auth.NewLocalProvider(c.Store, local,
		auth.WithClock(c.clock()),
		auth.WithSessionTTL(c.config().SessionTTL())), nil
}

// Gate returns a session gate in the Resolving state.
func (c *Context) Gate() (*session.Gate, error) {
	provider, err := c.Provider()
	if err != nil {
		return nil, err
	}
	return session.NewGate(provider, session.WithRetryPolicy(c.config().RetryPolicy())), nil
}

// RequireUser resolves the persisted session and fails unless someone is
// signed in.
func (c *Context) RequireUser() (session.User, error) {
	gate, err := c.Gate()
	if err != nil {
		return session.User{}, err
	}
	state := gate.Resolve(c.Background())
	if state.SignedIn() {
		return state.User, nil
	}
	if state.Err != nil {
		return session.User{}, fmt.Errorf("%s: %w", apperrors.Message(state.Err), ErrNotSignedIn)
	}
	return session.User{}, ErrNotSignedIn
}

func (c *Context) AppOptions(mode items.Mode) app.Options {
	return app.Options{Now: c.clock(), Location: c.location(), Mode: mode}
}

// Session builds the signed-in user's repositories without running the
// reset pass.
func (c *Context) Session() (*app.Session, error) {
	user, err := c.RequireUser()
	if err != nil {
		return nil, err
	}
	local, err := c.LocalStore()
	if err != nil {
		return nil, err
	}
	return app.NewSession(c.Store, local, user, c.AppOptions(items.ModeToday)), nil
}

// OpenSession runs the reset pass and opens the live view for mode.
func (c *Context) OpenSession(mode items.Mode) (*app.Session, error) {
	user, err := c.RequireUser()
	if err != nil {
		return nil, err
	}
	local, err := c.LocalStore()
	if err != nil {
		return nil, err
	}
	return app.OpenSession(c.Background(), c.Store, local, user, c.AppOptions(mode))
}

// FormatItem renders one item on a single line.
func FormatItem(item models.RoutineItem, showIDs bool) string {
	box := "[ ]"
	if item.IsChecked {
		box = "[x]"
	}
	var b strings.Builder
	fmt.Fprintf(&b, "%s %s", box, item.Name)
	if showIDs {
		fmt.Fprintf(&b, " (ID: %s)", item.ID)
	}
	fmt.Fprintf(&b, " - %s on %s", item.PartOfDay, item.DayOfWeek)
	return b.String()
}
