package settings

import (
	"context"
	"path/filepath"
	"testing"
	"time"

	"github.com/julianstephens/routineo/internal/cli"
	"github.com/julianstephens/routineo/internal/config"
	"github.com/julianstephens/routineo/internal/docstore"
	apperrors "github.com/julianstephens/routineo/internal/errors"
	"github.com/julianstephens/routineo/internal/localstore"
	"github.com/julianstephens/routineo/internal/models"
)

// 2025-03-10 is a Monday.
var monday = time.Date(2025, 3, 10, 10, 0, 0, 0, time.UTC)

func setupTestDB(t *testing.T) *cli.Context {
	t.Helper()
	store := docstore.New(filepath.Join(t.TempDir(), "test.db"), docstore.WithPollInterval(0))
	if err := store.Init(); err != nil {
		t.Fatalf("failed to init store: %v", err)
	}
	t.Cleanup(func() { store.Close() })

	ctx := &cli.Context{
		Store:    store,
		Config:   config.Default(),
		Local:    localstore.NewMemoryStore(),
		Location: time.UTC,
		Now:      func() time.Time { return monday },
	}
	p, _ := ctx.Provider()
	if _, err := p.SignUp(context.Background(), "ada@example.com", "correct horse"); err != nil {
		t.Fatalf("SignUp() failed: %v", err)
	}
	return ctx
}

func strPtr(s string) *string { return &s }

func TestSettingsCmd_List(t *testing.T) {
	ctx := setupTestDB(t)
	if err := (&SettingsCmd{List: true}).Run(ctx); err != nil {
		t.Errorf("settings list failed: %v", err)
	}
}

func TestSettingsCmd_ResetTime(t *testing.T) {
	ctx := setupTestDB(t)

	if err := (&SettingsCmd{ResetTime: strPtr("07:45")}).Run(ctx); err != nil {
		t.Fatalf("settings update failed: %v", err)
	}
	s, _ := ctx.Session()
	rt, err := s.Settings.ResetTime(context.Background())
	if err != nil || rt == nil || rt.String() != "07:45" {
		t.Errorf("ResetTime() = %v, %v; want 07:45", rt, err)
	}

	for _, bad := range []string{"25:00", "7pm", ""} {
		if err := (&SettingsCmd{ResetTime: strPtr(bad)}).Run(ctx); !apperrors.Is(err, apperrors.ErrValidation) {
			t.Errorf("reset time %q error = %v, want validation", bad, err)
		}
	}
}

func TestResetCmd(t *testing.T) {
	ctx := setupTestDB(t)
	s, _ := ctx.Session()
	bg := context.Background()
	item, _ := s.Items.Create(bg, models.ItemDraft{Name: "Meds", PartOfDay: models.PartSet{models.Morning}, DayOfWeek: models.DaySet{time.Monday}})
	s.Items.SetChecked(bg, item.ID, true)

	if err := (&ResetCmd{}).Run(ctx); err != nil {
		t.Fatalf("reset without a reset time failed: %v", err)
	}
	if got, _ := s.Items.Get(bg, item.ID); !got.IsChecked {
		t.Error("items must not reset before a reset time is configured")
	}

	s.Settings.SetResetTime(bg, models.ResetTime{Hour: 6})
	if err := (&ResetCmd{Status: true}).Run(ctx); err != nil {
		t.Fatalf("reset --status failed: %v", err)
	}
	if got, _ := s.Items.Get(bg, item.ID); !got.IsChecked {
		t.Error("reset --status must not change anything")
	}

	if err := (&ResetCmd{}).Run(ctx); err != nil {
		t.Fatalf("reset failed: %v", err)
	}
	if got, _ := s.Items.Get(bg, item.ID); got.IsChecked {
		t.Error("reset should clear today's items")
	}

	s.Items.SetChecked(bg, item.ID, true)
	(&ResetCmd{}).Run(ctx)
	if got, _ := s.Items.Get(bg, item.ID); !got.IsChecked {
		t.Error("a second reset on the same day should be skipped")
	}
	if err := (&ResetCmd{Force: true}).Run(ctx); err != nil {
		t.Fatalf("reset --force failed: %v", err)
	}
	if got, _ := s.Items.Get(bg, item.ID); got.IsChecked {
		t.Error("reset --force should clear again")
	}

	if err := (&ResetCmd{Status: true, Force: true}).Run(ctx); err == nil {
		t.Error("--status with --force should be rejected")
	}
}
