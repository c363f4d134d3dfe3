package system

import (
	"fmt"

	"github.com/julianstephens/routineo/internal/cli"
	"github.com/julianstephens/routineo/internal/items"
)

type MigrateCmd struct {
	Normalize bool `help:"Also rewrite legacy item documents into canonical array form."`
}

func (c *MigrateCmd) Run(ctx *cli.Context) error {
	if err := ctx.Store.Open(); err != nil {
		return fmt.Errorf("failed to open database: %w", err)
	}

	count, err := ctx.Store.Migrate(func(msg string) {
		fmt.Println(msg)
	})
	if err != nil {
		return fmt.Errorf("migration failed: %w", err)
	}
	if count == 0 {
		fmt.Println("No migrations to apply. Database is up to date.")
	} else {
		fmt.Printf("\nSuccessfully applied %d migration(s).\n", count)
	}

	if !c.Normalize {
		return nil
	}
	n, err := items.NormalizeAll(ctx.Background(), ctx.Store)
	if err != nil {
		return err
	}
	if n == 0 {
		fmt.Println("All items are already in canonical form.")
	} else {
		fmt.Printf("Normalized %d legacy item(s).\n", n)
	}
	return nil
}
