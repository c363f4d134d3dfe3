package viewmodel

import (
	"sort"

	"github.com/julianstephens/routineo/internal/models"
)

// Sort orders items by order ascending. Items without an order go last.
// Ties keep their input (store) order.
func Sort(items []models.RoutineItem) []models.RoutineItem {
	out := append([]models.RoutineItem(nil), items...)
	sort.SliceStable(out, func(i, j int) bool {
		a, b := out[i].Order, out[j].Order
		switch {
		case a == nil:
			return false
		case b == nil:
			return true
		default:
			return *a < *b
		}
	})
	return out
}

// Group places each item in every (day, part) bucket it declares and sorts
// each bucket independently.
func Group(items []models.RoutineItem) map[models.Bucket][]models.RoutineItem {
	groups := make(map[models.Bucket][]models.RoutineItem)
	for _, item := range items {
		for _, b := range item.Buckets() {
			groups[b] = append(groups[b], item)
		}
	}
	for b, members := range groups {
		groups[b] = Sort(members)
	}
	return groups
}

// SortedBuckets returns the keys of groups Monday-first, morning to evening.
func SortedBuckets(groups map[models.Bucket][]models.RoutineItem) []models.Bucket {
	keys := make([]models.Bucket, 0, len(groups))
	for b := range groups {
		keys = append(keys, b)
	}
	sort.Slice(keys, func(i, j int) bool { return keys[i].Less(keys[j]) })
	return keys
}

// Move returns ids with the item at id shifted by delta positions, clamped to
// the ends. ok is false when id is not present or nothing would change.
func Move(ids []string, id string, delta int) ([]string, bool) {
	from := -1
	for i, v := range ids {
		if v == id {
			from = i
			break
		}
	}
	if from < 0 {
		return ids, false
	}
	to := from + delta
	if to < 0 {
		to = 0
	}
	if to > len(ids)-1 {
		to = len(ids) - 1
	}
	if to == from {
		return ids, false
	}
	out := append([]string(nil), ids...)
	moved := out[from]
	if to < from {
		copy(out[to+1:from+1], out[to:from])
	} else {
		copy(out[from:to], out[from+1:to+1])
	}
	out[to] = moved
	return out, true
}
