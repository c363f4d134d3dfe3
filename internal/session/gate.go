// Package session gates everything user-scoped behind the identity state.
package session

import (
	"context"
	"sync"

	"github.com/julianstephens/routineo/internal/auth"
	"github.com/julianstephens/routineo/internal/constants"
	apperrors "github.com/julianstephens/routineo/internal/errors"
	"github.com/julianstephens/routineo/internal/logger"
	"github.com/julianstephens/routineo/internal/models"
	"github.com/julianstephens/routineo/internal/retry"
)

// User is the identity injected into user-scoped constructors.
type User = models.User

type Status int

const (
	Resolving Status = iota
	SignedOut
	SignedIn
)

func (s Status) String() string {
	switch s {
	case Resolving:
		return "resolving"
	case SignedOut:
		return "signed out"
	case SignedIn:
		return "signed in"
	default:
		return "unknown"
	}
}

// State is one observation of the gate. User is set only when SignedIn.
// Err carries the failure that led to SignedOut, if any.
type State struct {
	Status Status
	User   User
	Err    error
}

func (s State) SignedIn() bool { return s.Status == SignedIn }

type Option func(*Gate)

// WithRetryPolicy replaces the retry policy used for provider calls. The
// Retryable predicate is always apperrors.Retryable.
func WithRetryPolicy(p retry.Policy) Option {
	return func(g *Gate) {
		p.Retryable = apperrors.Retryable
		g.policy = p
	}
}

// DefaultPolicy retries transient network failures a few times.
func DefaultPolicy() retry.Policy {
	return retry.Policy{
		MaxAttempts: constants.AuthMaxAttempts,
		Delay:       constants.AuthRetryDelay,
		Multiplier:  2,
		Retryable:   apperrors.Retryable,
	}
}

// Gate holds the current identity state and fans changes out to watchers.
type Gate struct {
	provider auth.Provider
	policy   retry.Policy

	mu       sync.Mutex
	state    State
	watchers map[uint64]chan State
	nextID   uint64
}

// NewGate starts in Resolving. Call Resolve to restore a persisted session.
func NewGate(provider auth.Provider, opts ...Option) *Gate {
	g := &Gate{
		provider: provider,
		policy:   DefaultPolicy(),
		state:    State{Status: Resolving},
		watchers: make(map[uint64]chan State),
	}
	for _, opt := range opts {
		opt(g)
	}
	return g
}

func (g *Gate) State() State {
	g.mu.Lock()
	defer g.mu.Unlock()
	return g.state
}

// Watch streams state changes until ctx is done, starting with the current
// state. A slow reader only ever sees the latest state.
func (g *Gate) Watch(ctx context.Context) <-chan State {
	ch := make(chan State, 1)

	g.mu.Lock()
	id := g.nextID
	g.nextID++
	g.watchers[id] = ch
	ch <- g.state
	g.mu.Unlock()

	go func() {
		<-ctx.Done()
		g.mu.Lock()
		delete(g.watchers, id)
		close(ch)
		g.mu.Unlock()
	}()
	return ch
}

func (g *Gate) set(s State) {
	if s.Status != SignedIn {
		s.User = User{}
	}
	g.mu.Lock()
	defer g.mu.Unlock()
	g.state = s
	for _, ch := range g.watchers {
		select {
		case <-ch:
		default:
		}
		ch <- s
	}
	logger.Debug("Session state changed", "status", s.Status, "user", s.User.ID)
}

// Resolve restores the persisted session, if any.
func (g *Gate) Resolve(ctx context.Context) State {
	g.set(State{Status: Resolving})

	type restored struct {
		user User
		ok   bool
	}
	r, err := retry.Value(ctx, g.policy, "auth.restore", func(ctx context.Context) (restored, error) {
		u, ok, err := g.provider.Restore(ctx)
		return restored{u, ok}, err
	})
	switch {
	case err != nil:
		logger.Warn("Session restore failed", "error", err)
		g.set(State{Status: SignedOut, Err: err})
	case !r.ok:
		g.set(State{Status: SignedOut})
	default:
		g.set(State{Status: SignedIn, User: r.user})
	}
	return g.State()
}

func (g *Gate) SignIn(ctx context.Context, email, password string) (User, error) {
	return g.authenticate(ctx, "auth.signin", func(ctx context.Context) (User, error) {
		return g.provider.SignIn(ctx, email, password)
	})
}

func (g *Gate) SignUp(ctx context.Context, email, password string) (User, error) {
	return g.authenticate(ctx, "auth.signup", func(ctx context.Context) (User, error) {
		return g.provider.SignUp(ctx, email, password)
	})
}

func (g *Gate) authenticate(ctx context.Context, op string, fn func(context.Context) (User, error)) (User, error) {
	g.set(State{Status: Resolving})
	user, err := retry.Value(ctx, g.policy, op, fn)
	if err != nil {
		g.set(State{Status: SignedOut, Err: err})
		return User{}, err
	}
	g.set(State{Status: SignedIn, User: user})
	return user, nil
}

// SignOut ends the session. The gate reports SignedOut even if the provider
// call fails; the error is returned.
func (g *Gate) SignOut(ctx context.Context) error {
	err := retry.Do(ctx, g.policy, "auth.signout", g.provider.SignOut)
	g.set(State{Status: SignedOut, Err: err})
	return err
}
