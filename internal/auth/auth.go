// Package auth is the identity provider: email/password accounts stored in
// the document store and device-local session tokens.
package auth

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"
	"unicode/utf8"

	"github.com/google/uuid"
	"golang.org/x/crypto/bcrypt"

	"github.com/julianstephens/routineo/internal/constants"
	"github.com/julianstephens/routineo/internal/docstore"
	apperrors "github.com/julianstephens/routineo/internal/errors"
	"github.com/julianstephens/routineo/internal/localstore"
	"github.com/julianstephens/routineo/internal/logger"
	"github.com/julianstephens/routineo/internal/models"
	"github.com/julianstephens/routineo/internal/validation"
)

// Provider signs users in and out. Every failure is an auth error carrying
// one of the apperrors auth reasons.
type Provider interface {
	SignUp(ctx context.Context, email, password string) (models.User, error)
	SignIn(ctx context.Context, email, password string) (models.User, error)
	SignOut(ctx context.Context) error
	// Restore returns the user of the persisted session. ok is false when
	// nobody is signed in on this device.
	Restore(ctx context.Context) (user models.User, ok bool, err error)
}

type Option func(*LocalProvider)

func WithClock(now func() time.Time) Option {
	return func(p *LocalProvider) { p.now = now }
}

func WithSessionTTL(ttl time.Duration) Option {
	return func(p *LocalProvider) {
		if ttl > 0 {
			p.ttl = ttl
		}
	}
}

func WithMinPasswordLength(n int) Option {
	return func(p *LocalProvider) { p.minPassword = n }
}

// WithBcryptCost overrides the hashing cost. Tests use bcrypt.MinCost.
func WithBcryptCost(cost int) Option {
	return func(p *LocalProvider) { p.cost = cost }
}

// LocalProvider keeps accounts in the "accounts" collection, keyed by
// normalized email, and the session token in the device-local store.
type LocalProvider struct {
	store       docstore.Store
	local       localstore.Store
	now         func() time.Time
	ttl         time.Duration
	minPassword int
	cost        int
}

func NewLocalProvider(store docstore.Store, local localstore.Store, opts ...Option) *LocalProvider {
	p := &LocalProvider{
		store:       store,
		local:       local,
		now:         time.Now,
		ttl:         constants.DefaultSessionTTL,
		minPassword: constants.MinPasswordLength,
		cost:        bcrypt.DefaultCost,
	}
	for _, opt := range opts {
		opt(p)
	}
	return p
}

// NormalizeEmail is the account document id for email.
func NormalizeEmail(email string) string {
	return strings.ToLower(strings.TrimSpace(email))
}

func (p *LocalProvider) SignUp(ctx context.Context, email, password string) (models.User, error) {
	const op = "auth.signup"
	if err := validation.ValidateCredentials(email, password, p.minPassword); err != nil {
		if utf8.RuneCountInString(password) < p.minPassword {
			return models.User{}, apperrors.Auth(op, apperrors.ReasonWeakPassword, err)
		}
		return models.User{}, err
	}

	hash, err := bcrypt.GenerateFromPassword([]byte(password), p.cost)
	if err != nil {
		return models.User{}, apperrors.Auth(op, apperrors.ReasonNetwork, fmt.Errorf("failed to hash password: %w", err))
	}

	acct := models.Account{
		UserID:       uuid.NewString(),
		Email:        NormalizeEmail(email),
		PasswordHash: string(hash),
		CreatedAt:    p.now().UTC(),
	}
	err = p.store.Create(ctx, constants.CollectionAccounts, acct.Email, acct)
	switch {
	case errors.Is(err, docstore.ErrAlreadyExists):
		return models.User{}, apperrors.Auth(op, apperrors.ReasonEmailExists, err)
	case err != nil:
		return models.User{}, apperrors.Auth(op, apperrors.ReasonNetwork, err)
	}

	logger.Info("Account created", "user", acct.UserID)
	return p.startSession(op, acct.User())
}

func (p *LocalProvider) SignIn(ctx context.Context, email, password string) (models.User, error) {
	const op = "auth.signin"
	id := NormalizeEmail(email)
	if id == "" || password == "" {
		return models.User{}, apperrors.Auth(op, apperrors.ReasonInvalidCredentials, nil)
	}

	acct, err := p.account(ctx, id)
	if errors.Is(err, docstore.ErrNotFound) {
		return models.User{}, apperrors.Auth(op, apperrors.ReasonInvalidCredentials, nil)
	}
	if err != nil {
		return models.User{}, apperrors.Auth(op, apperrors.ReasonNetwork, err)
	}

	now := p.now()
	if acct.Throttled(now, constants.MaxFailedSignIns, constants.FailedSignInWindow) {
		logger.Warn("Sign-in throttled", "user", acct.UserID)
		return models.User{}, apperrors.Auth(op, apperrors.ReasonRateLimited, nil)
	}

	if err := bcrypt.CompareHashAndPassword([]byte(acct.PasswordHash), []byte(password)); err != nil {
		if err := p.recordFailure(ctx, acct, now); err != nil {
			return models.User{}, apperrors.Auth(op, apperrors.ReasonNetwork, err)
		}
		return models.User{}, apperrors.Auth(op, apperrors.ReasonInvalidCredentials, nil)
	}

	if acct.FailedSignIns > 0 {
		err := p.store.Update(ctx, constants.CollectionAccounts, id, map[string]any{
			"failed_sign_ins": 0,
			"first_failed_at": nil,
		})
		if err != nil {
			return models.User{}, apperrors.Auth(op, apperrors.ReasonNetwork, err)
		}
	}
	return p.startSession(op, acct.User())
}

func (p *LocalProvider) SignOut(ctx context.Context) error {
	if err := p.local.RemoveItem(constants.SessionTokenKey); err != nil {
		return apperrors.Auth("auth.signout", apperrors.ReasonNetwork, err)
	}
	return nil
}

// Restore validates the persisted token. An expired or forged token is
// removed and reported as session_expired.
func (p *LocalProvider) Restore(ctx context.Context) (models.User, bool, error) {
	const op = "auth.restore"
	token, ok, err := p.local.GetItem(constants.SessionTokenKey)
	if err != nil {
		return models.User{}, false, apperrors.Auth(op, apperrors.ReasonNetwork, err)
	}
	if !ok || token == "" {
		return models.User{}, false, nil
	}

	tokens, err := p.tokens()
	if err != nil {
		return models.User{}, false, apperrors.Auth(op, apperrors.ReasonNetwork, err)
	}
	claims, err := tokens.Validate(token)
	if err != nil {
		if rmErr := p.local.RemoveItem(constants.SessionTokenKey); rmErr != nil {
			logger.Warn("Failed to remove stale session token", "error", rmErr)
		}
		return models.User{}, false, apperrors.Auth(op, apperrors.ReasonSessionExpired, err)
	}
	return models.User{ID: claims.UserID, Email: claims.Email}, true, nil
}

func (p *LocalProvider) account(ctx context.Context, id string) (models.Account, error) {
	doc, err := p.store.Get(ctx, constants.CollectionAccounts, id)
	if err != nil {
		return models.Account{}, err
	}
	var acct models.Account
	if err := doc.Decode(&acct); err != nil {
		return models.Account{}, err
	}
	return acct, nil
}

func (p *LocalProvider) recordFailure(ctx context.Context, acct models.Account, now time.Time) error {
	count, first := acct.FailedSignIns+1, now.UTC()
	if acct.FirstFailedAt != nil && now.Sub(*acct.FirstFailedAt) < constants.FailedSignInWindow {
		first = acct.FirstFailedAt.UTC()
	} else {
		count = 1
	}
	logger.Debug("Failed sign-in", "user", acct.UserID, "count", count)
	return p.store.Update(ctx, constants.CollectionAccounts, acct.Email, map[string]any{
		"failed_sign_ins": count,
		"first_failed_at": first,
	})
}

func (p *LocalProvider) startSession(op string, user models.User) (models.User, error) {
	tokens, err := p.tokens()
	if err != nil {
		return models.User{}, apperrors.Auth(op, apperrors.ReasonNetwork, err)
	}
	token, err := tokens.Generate(user)
	if err != nil {
		return models.User{}, apperrors.Auth(op, apperrors.ReasonNetwork, err)
	}
	if err := p.local.SetItem(constants.SessionTokenKey, token); err != nil {
		return models.User{}, apperrors.Auth(op, apperrors.ReasonNetwork, fmt.Errorf("storing session: %w", err))
	}
	logger.Info("Signed in", "user", user.ID)
	return user, nil
}

func (p *LocalProvider) tokens() (*TokenManager, error) {
	key, err := signingKey(p.local)
	if err != nil {
		return nil, err
	}
	return NewTokenManager(key, p.ttl, p.now), nil
}
