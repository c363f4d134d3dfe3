package routine

import (
	"context"
	"fmt"
	"strings"

	"github.com/julianstephens/routineo/internal/items"
	"github.com/julianstephens/routineo/internal/models"
	"github.com/julianstephens/routineo/internal/viewmodel"
)

// resolve finds an item by id, id prefix, or case-insensitive name.
func resolve(ctx context.Context, repo *items.Repository, ref string) (models.RoutineItem, error) {
	all, err := repo.List(ctx, items.ModeAll)
	if err != nil {
		return models.RoutineItem{}, err
	}

	var matches []models.RoutineItem
	for _, it := range all {
		if it.ID == ref {
			return it, nil
		}
		if strings.HasPrefix(it.ID, ref) || strings.EqualFold(it.Name, ref) {
			matches = append(matches, it)
		}
	}
	switch len(matches) {
	case 0:
		return models.RoutineItem{}, fmt.Errorf("no item matches %q", ref)
	case 1:
		return matches[0], nil
	default:
		return models.RoutineItem{}, fmt.Errorf("%q matches %d items, use the item ID (see 'routineo list --show-ids')", ref, len(matches))
	}
}

// printGrouped prints items bucket by bucket.
func printGrouped(list []models.RoutineItem, showIDs bool, only func(models.Bucket) bool) {
	groups := viewmodel.Group(list)
	for _, b := range viewmodel.SortedBuckets(groups) {
		if only != nil && !only(b) {
			continue
		}
		fmt.Printf("%s %s:\n", b.Day, b.Part)
		for _, it := range groups[b] {
			box := "[ ]"
			if it.IsChecked {
				box = "[x]"
			}
			if showIDs {
				fmt.Printf("  %s %s (ID: %s)\n", box, it.Name, it.ID)
			} else {
				fmt.Printf("  %s %s\n", box, it.Name)
			}
		}
	}
}
