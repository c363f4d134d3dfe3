package system

import (
	"fmt"

	"github.com/julianstephens/routineo/internal/cli"
	"github.com/julianstephens/routineo/internal/items"
	"github.com/julianstephens/routineo/internal/models"
	"github.com/julianstephens/routineo/internal/validation"
	"github.com/julianstephens/routineo/internal/viewmodel"
)

type ValidateCmd struct {
	Fix bool `help:"Renumber buckets whose items share an order value."`
}

func (cmd *ValidateCmd) Run(ctx *cli.Context) error {
	s, err := ctx.Session()
	if err != nil {
		return err
	}
	list, err := s.Items.List(ctx.Background(), items.ModeAll)
	if err != nil {
		return fmt.Errorf("failed to load items: %w", err)
	}

	fmt.Println("Validating items...")
	result := validation.New().ValidateItems(s.User.ID, list)
	fmt.Println()
	fmt.Println(result.FormatReport())

	if !cmd.Fix {
		return nil
	}
	buckets := result.Buckets(validation.ConflictOrderCollision)
	if len(buckets) == 0 {
		fmt.Println("Nothing to fix.")
		return nil
	}
	groups := viewmodel.Group(list)
	for _, name := range buckets {
		b, err := models.ParseBucket(name)
		if err != nil {
			return err
		}
		ids := make([]string, 0, len(groups[b]))
		for _, it := range groups[b] {
			ids = append(ids, it.ID)
		}
		if err := s.Items.Reorder(ctx.Background(), b, ids); err != nil {
			return fmt.Errorf("failed to renumber %s: %w", name, err)
		}
		fmt.Printf("✓ Renumbered %s\n", name)
	}
	return nil
}
