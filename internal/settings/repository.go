// Package settings reads and writes the per-user settings document.
package settings

import (
	"context"

	"github.com/julianstephens/routineo/internal/constants"
	"github.com/julianstephens/routineo/internal/docstore"
	apperrors "github.com/julianstephens/routineo/internal/errors"
	"github.com/julianstephens/routineo/internal/models"
)

// Repository owns the user_settings document whose id is the user id.
type Repository struct {
	store docstore.Store
	user  models.User
}

func New(store docstore.Store, user models.User) *Repository {
	return &Repository{store: store, user: user}
}

// Get returns the user's settings. ok is false when no document exists.
func (r *Repository) Get(ctx context.Context) (models.UserSettings, bool, error) {
	doc, err := r.store.Get(ctx, constants.CollectionSettings, r.user.ID)
	if apperrors.Is(err, docstore.ErrNotFound) {
		return models.UserSettings{UserID: r.user.ID}, false, nil
	}
	if err != nil {
		return models.UserSettings{}, false, apperrors.StoreRead("settings.get", err)
	}
	var s models.UserSettings
	if err := doc.Decode(&s); err != nil {
		return models.UserSettings{}, false, apperrors.StoreRead("settings.get", err)
	}
	s.UserID = r.user.ID
	return s, true, nil
}

// ResetTime returns the configured reset time, or nil if none is set.
func (r *Repository) ResetTime(ctx context.Context) (*models.ResetTime, error) {
	s, ok, err := r.Get(ctx)
	if err != nil || !ok {
		return nil, err
	}
	return s.ResetTime, nil
}

// SetResetTime stores rt, creating the settings document if needed.
func (r *Repository) SetResetTime(ctx context.Context, rt models.ResetTime) error {
	err := r.store.Set(ctx, constants.CollectionSettings, r.user.ID, map[string]any{
		constants.FieldUserID:    r.user.ID,
		constants.FieldResetTime: rt.String(),
	}, true)
	if err != nil {
		return apperrors.StoreWrite("settings.set_reset_time", err)
	}
	return nil
}
