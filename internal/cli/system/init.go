package system

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"

	"github.com/julianstephens/routineo/internal/cli"
	"github.com/julianstephens/routineo/internal/constants"
	"github.com/julianstephens/routineo/internal/docstore"
	"github.com/julianstephens/routineo/internal/utils"
)

// copiedCollections are carried over by init --source, in this order.
var copiedCollections = []string{
	constants.CollectionAccounts,
	constants.CollectionSettings,
	constants.CollectionItems,
}

type InitCmd struct {
	Force  bool   `help:"Force reset by deleting existing database before initialization."`
	Source string `help:"Source database path or connection string to copy documents from."`
}

func (c *InitCmd) Run(ctx *cli.Context) error {
	if c.Force && ctx.Store.Dialect() == docstore.DialectSQLite {
		dbPath, err := utils.ExpandHome(ctx.Store.Path())
		if err != nil {
			return err
		}
		if abs, err := filepath.Abs(dbPath); err == nil {
			dbPath = abs
		}
		if c.Source != "" {
			if absSource, err := filepath.Abs(c.Source); err == nil && absSource == dbPath {
				return fmt.Errorf("cannot use --force when source and destination are the same: %s", dbPath)
			}
		}
		if _, err := os.Stat(dbPath); err == nil {
			if err := ctx.Store.Close(); err != nil {
				return fmt.Errorf("failed to close existing database: %w", err)
			}
			if err := os.Remove(dbPath); err != nil {
				return fmt.Errorf("failed to delete existing database: %w", err)
			}
			for _, suffix := range []string{"-wal", "-shm"} {
				_ = os.Remove(dbPath + suffix)
			}
			fmt.Printf("Deleted existing database at: %s\n", dbPath)
			ctx.Store = ctx.OpenStore(dbPath)
		} else if !os.IsNotExist(err) {
			return fmt.Errorf("failed to access existing database: %w", err)
		}
	} else if c.Force {
		fmt.Println("⚠ --force only deletes SQLite databases; PostgreSQL schemas are left in place.")
	}

	if err := ctx.Store.Init(); err != nil {
		return err
	}
	fmt.Printf("Initialized %s storage at: %s\n", constants.AppName, ctx.Store.Path())

	if c.Source != "" {
		fmt.Printf("Copying data from: %s\n", c.Source)
		if err := c.copyData(ctx, c.Source); err != nil {
			return fmt.Errorf("migration failed: %w", err)
		}
		fmt.Println("Migration completed successfully!")
	}
	return nil
}

func (c *InitCmd) copyData(ctx *cli.Context, source string) error {
	if docstore.DetectDialect(source) == docstore.DialectPostgres {
		if valid, err := docstore.ValidateConnString(source); !valid {
			if errors.Is(err, docstore.ErrEmbeddedCredentials) {
				return fmt.Errorf("PostgreSQL source connection string contains embedded credentials. Use environment variables or .pgpass instead")
			}
			return err
		}
	}

	src := docstore.New(source, docstore.WithPollInterval(0))

	if err := src.Load(); err != nil {
		return fmt.Errorf("failed to load source database: %w", err)
	}
	defer src.Close()

	for _, collection := range copiedCollections {
		docs, err := src.Query(ctx.Background(), collection)
		if err != nil {
			return fmt.Errorf("failed to read %s from source: %w", collection, err)
		}
		if len(docs) == 0 {
			fmt.Printf("  %s: nothing to copy\n", collection)
			continue
		}
		writes := make([]docstore.Write, 0, len(docs))
		for _, doc := range docs {
			writes = append(writes, docstore.SetWrite(collection, doc.ID, doc.Data, false))
		}
		if err := ctx.Store.Batch(ctx.Background(), writes); err != nil {
			return fmt.Errorf("failed to write %s: %w", collection, err)
		}
		fmt.Printf("  %s: copied %d document(s)\n", collection, len(docs))
	}
	return nil
}
