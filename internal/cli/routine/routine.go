package routine

import (
	"fmt"
	"strings"

	"github.com/julianstephens/routineo/internal/cli"
	"github.com/julianstephens/routineo/internal/items"
	"github.com/julianstephens/routineo/internal/models"
	"github.com/julianstephens/routineo/internal/reset"
	"github.com/julianstephens/routineo/internal/viewmodel"
)

// TodayCmd runs the daily reset pass and prints today's checklist.
type TodayCmd struct {
	ShowIDs bool `help:"Show item IDs." name:"show-ids"`
}

func (c *TodayCmd) Run(ctx *cli.Context) error {
	s, err := ctx.Session()
	if err != nil {
		return err
	}
	res, err := s.Evaluator.Evaluate(ctx.Background())
	if err != nil {
		fmt.Printf("⚠ Daily reset failed, it will be retried next time: %v\n", err)
	} else if res.Outcome == reset.OutcomeReset {
		fmt.Printf("New day: cleared %d item(s).\n", res.Cleared)
	}

	list, err := s.Items.List(ctx.Background(), items.ModeToday)
	if err != nil {
		return err
	}
	today := s.Items.Today()
	if len(list) == 0 {
		fmt.Printf("Nothing scheduled for %s.\n", today)
		return nil
	}

	done := 0
	for _, it := range list {
		if it.IsChecked {
			done++
		}
	}
	fmt.Printf("%s: %d/%d done\n\n", today, done, len(list))
	printGrouped(list, c.ShowIDs, func(b models.Bucket) bool { return b.Day == today })
	return nil
}

type ListCmd struct {
	All     bool `help:"List items for every day, not only today."`
	ShowIDs bool `help:"Show item IDs." name:"show-ids"`
	Flat    bool `help:"One line per item instead of grouping by day and part."`
}

func (c *ListCmd) Run(ctx *cli.Context) error {
	s, err := ctx.Session()
	if err != nil {
		return err
	}
	mode := items.ModeToday
	if c.All {
		mode = items.ModeAll
	}
	list, err := s.Items.List(ctx.Background(), mode)
	if err != nil {
		return err
	}
	if len(list) == 0 {
		fmt.Println("No items found")
		return nil
	}

	if c.Flat {
		for _, it := range viewmodel.Sort(list) {
			fmt.Println(cli.FormatItem(it, c.ShowIDs))
		}
		return nil
	}
	var only func(models.Bucket) bool
	if !c.All {
		today := s.Items.Today()
		only = func(b models.Bucket) bool { return b.Day == today }
	}
	printGrouped(list, c.ShowIDs, only)
	return nil
}

type AddCmd struct {
	Name  string `arg:"" help:"Item name."`
	Parts string `short:"p" help:"Comma-separated parts of the day (morning, afternoon, evening)." default:"morning"`
	Days  string `short:"d" help:"Comma-separated weekdays, or 'daily'." default:"daily"`
	Order *int   `short:"o" help:"Position within its bucket. Defaults to the end."`
}

func (c *AddCmd) Run(ctx *cli.Context) error {
	parts, err := models.ParseParts(c.Parts)
	if err != nil {
		return err
	}
	days, err := models.ParseDays(c.Days)
	if err != nil {
		return err
	}
	s, err := ctx.Session()
	if err != nil {
		return err
	}

	item, err := s.Items.Create(ctx.Background(), models.ItemDraft{Name: c.Name, PartOfDay: parts, DayOfWeek: days, Order: c.Order})
	if err != nil {
		return err
	}
	fmt.Printf("Added item: %s (ID: %s)\n", item.Name, item.ID)
	return nil
}

type EditCmd struct {
	Item  string  `arg:"" help:"Item ID, ID prefix or name."`
	Name  *string `help:"New name."`
	Parts string  `short:"p" help:"New comma-separated parts of the day."`
	Days  string  `short:"d" help:"New comma-separated weekdays, or 'daily'."`
}

func (c *EditCmd) Run(ctx *cli.Context) error {
	var patch models.ItemPatch
	patch.Name = c.Name
	if c.Parts != "" {
		parts, err := models.ParseParts(c.Parts)
		if err != nil {
			return err
		}
		patch.PartOfDay = parts
	}
	if c.Days != "" {
		days, err := models.ParseDays(c.Days)
		if err != nil {
			return err
		}
		patch.DayOfWeek = days
	}
	if patch.Empty() {
		return fmt.Errorf("nothing to change, use --name, --parts or --days")
	}

	s, err := ctx.Session()
	if err != nil {
		return err
	}
	item, err := resolve(ctx.Background(), s.Items, c.Item)
	if err != nil {
		return err
	}
	if err := s.Items.Edit(ctx.Background(), item.ID, patch); err != nil {
		return err
	}
	fmt.Printf("Updated item: %s (ID: %s)\n", item.Name, item.ID)
	return nil
}

type DeleteCmd struct {
	Item string `arg:"" help:"Item ID, ID prefix or name."`
}

func (c *DeleteCmd) Run(ctx *cli.Context) error {
	s, err := ctx.Session()
	if err != nil {
		return err
	}
	item, err := resolve(ctx.Background(), s.Items, c.Item)
	if err != nil {
		return err
	}
	if err := s.Items.Delete(ctx.Background(), item.ID); err != nil {
		return fmt.Errorf("failed to delete item: %w", err)
	}
	fmt.Printf("Deleted item: %s (ID: %s)\n", item.Name, item.ID)
	return nil
}

type CheckCmd struct {
	Items []string `arg:"" help:"Item IDs, ID prefixes or names."`
}

func (c *CheckCmd) Run(ctx *cli.Context) error {
	return setChecked(ctx, c.Items, true)
}

type UncheckCmd struct {
	Items []string `arg:"" help:"Item IDs, ID prefixes or names."`
}

func (c *UncheckCmd) Run(ctx *cli.Context) error {
	return setChecked(ctx, c.Items, false)
}

func setChecked(ctx *cli.Context, refs []string, checked bool) error {
	s, err := ctx.Session()
	if err != nil {
		return err
	}
	for _, ref := range refs {
		item, err := resolve(ctx.Background(), s.Items, ref)
		if err != nil {
			return err
		}
		if err := s.Items.SetChecked(ctx.Background(), item.ID, checked); err != nil {
			return err
		}
		verb := "Checked"
		if !checked {
			verb = "Unchecked"
		}
		fmt.Printf("%s: %s\n", verb, item.Name)
	}
	return nil
}

// ReorderCmd rewrites the order of one bucket.
type ReorderCmd struct {
	Bucket string   `arg:"" help:"Bucket as day/part, e.g. mon/morning."`
	Items  []string `arg:"" help:"Every item of the bucket in the new order."`
}

func (c *ReorderCmd) Run(ctx *cli.Context) error {
	bucket, err := models.ParseBucket(c.Bucket)
	if err != nil {
		return err
	}
	s, err := ctx.Session()
	if err != nil {
		return err
	}

	ids := make([]string, 0, len(c.Items))
	for _, ref := range c.Items {
		item, err := resolve(ctx.Background(), s.Items, ref)
		if err != nil {
			return err
		}
		ids = append(ids, item.ID)
	}
	if err := s.Items.Reorder(ctx.Background(), bucket, ids); err != nil {
		return err
	}
	fmt.Printf("Reordered %s %s: %s\n", bucket.Day, bucket.Part, strings.Join(c.Items, ", "))
	return nil
}
