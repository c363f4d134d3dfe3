package system

import (
	"context"
	"os"
	"path/filepath"
	"testing"

	"github.com/julianstephens/routineo/internal/cli"
	"github.com/julianstephens/routineo/internal/config"
	"github.com/julianstephens/routineo/internal/constants"
	"github.com/julianstephens/routineo/internal/docstore"
)

func setupTestInitDB(t *testing.T) (*cli.Context, string) {
	t.Helper()
	dbPath := filepath.Join(t.TempDir(), "test.db")
	cfg := config.Default()
	cfg.PollIntervalMS = 0
	ctx := &cli.Context{Config: cfg}
	ctx.Store = ctx.OpenStore(dbPath)
	t.Cleanup(func() { ctx.Store.Close() })
	return ctx, dbPath
}

func TestInitCmd_Success(t *testing.T) {
	ctx, dbPath := setupTestInitDB(t)

	if err := (&InitCmd{}).Run(ctx); err != nil {
		t.Errorf("init command failed: %v", err)
	}
	if _, err := os.Stat(dbPath); os.IsNotExist(err) {
		t.Errorf("database file was not created at %s", dbPath)
	}
}

func TestInitCmd_Idempotent(t *testing.T) {
	ctx, _ := setupTestInitDB(t)

	cmd := &InitCmd{}
	if err := cmd.Run(ctx); err != nil {
		t.Fatalf("first init failed: %v", err)
	}
	if err := cmd.Run(ctx); err != nil {
		t.Errorf("second init failed (should be idempotent): %v", err)
	}
}

func TestInitCmd_ForceDeletesExisting(t *testing.T) {
	ctx, dbPath := setupTestInitDB(t)

	if err := (&InitCmd{}).Run(ctx); err != nil {
		t.Fatalf("initial init failed: %v", err)
	}
	if _, err := ctx.Store.Add(context.Background(), constants.CollectionItems, map[string]any{"name": "Old"}); err != nil {
		t.Fatalf("failed to seed item: %v", err)
	}

	if err := (&InitCmd{Force: true}).Run(ctx); err != nil {
		t.Fatalf("init with force failed: %v", err)
	}
	if _, err := os.Stat(dbPath); os.IsNotExist(err) {
		t.Fatalf("database file was not recreated after force")
	}

	docs, err := ctx.Store.Query(context.Background(), constants.CollectionItems)
	if err != nil {
		t.Fatalf("failed to query fresh database: %v", err)
	}
	if len(docs) != 0 {
		t.Errorf("fresh database holds %d items, want 0", len(docs))
	}
}

func TestInitCmd_ForceWithNonExistentDatabase(t *testing.T) {
	ctx, dbPath := setupTestInitDB(t)

	if err := (&InitCmd{Force: true}).Run(ctx); err != nil {
		t.Fatalf("init with force on non-existent database failed: %v", err)
	}
	if _, err := os.Stat(dbPath); os.IsNotExist(err) {
		t.Errorf("database file was not created")
	}
}

func TestInitCmd_ForceRejectsSameSource(t *testing.T) {
	ctx, dbPath := setupTestInitDB(t)

	if err := (&InitCmd{Force: true, Source: dbPath}).Run(ctx); err == nil {
		t.Error("init --force with the destination as source should fail")
	}
}

func TestInitCmd_CopiesFromSource(t *testing.T) {
	srcPath := filepath.Join(t.TempDir(), "source.db")
	src := docstore.New(srcPath, docstore.WithPollInterval(0))
	if err := src.Init(); err != nil {
		t.Fatalf("failed to init source: %v", err)
	}
	bg := context.Background()
	src.Create(bg, constants.CollectionAccounts, "ada@example.com", map[string]any{"user_id": "u1", "email": "ada@example.com"})
	src.Set(bg, constants.CollectionSettings, "u1", map[string]any{"user_id": "u1", "reset_time": "06:00"}, false)
	src.Add(bg, constants.CollectionItems, map[string]any{"user_id": "u1", "name": "Meds"})
	src.Add(bg, constants.CollectionItems, map[string]any{"user_id": "u1", "name": "Walk"})
	src.Close()

	ctx, _ := setupTestInitDB(t)
	if err := (&InitCmd{Source: srcPath}).Run(ctx); err != nil {
		t.Fatalf("init --source failed: %v", err)
	}

	want := map[string]int{
		constants.CollectionAccounts: 1,
		constants.CollectionSettings: 1,
		constants.CollectionItems:    2,
	}
	for collection, n := range want {
		docs, err := ctx.Store.Query(bg, collection)
		if err != nil {
			t.Fatalf("query %s: %v", collection, err)
		}
		if len(docs) != n {
			t.Errorf("%s holds %d documents, want %d", collection, len(docs), n)
		}
	}

	settings, err := ctx.Store.Get(bg, constants.CollectionSettings, "u1")
	if err != nil {
		t.Fatalf("copied settings missing: %v", err)
	}
	body, _ := settings.Fields()
	if body["reset_time"] != "06:00" {
		t.Errorf("copied settings body = %v", body)
	}
}
