package validation

import (
	"fmt"
	"sort"
	"strings"
	"unicode/utf8"

	apperrors "github.com/julianstephens/routineo/internal/errors"
	"github.com/julianstephens/routineo/internal/models"
)

// MaxNameLength bounds item names so they fit a TUI row.
const MaxNameLength = 120

// ValidateDraft checks a new item before anything is written.
func ValidateDraft(d models.ItemDraft) error {
	const op = "items.create"
	if err := validateName(op, d.Name); err != nil {
		return err
	}
	if err := validateParts(op, d.PartOfDay); err != nil {
		return err
	}
	if err := validateDays(op, d.DayOfWeek); err != nil {
		return err
	}
	if d.Order != nil && *d.Order < 0 {
		return apperrors.Validationf(op, "order must not be negative, got %d", *d.Order)
	}
	return nil
}

// ValidatePatch checks the fields an edit sets. Sets present in the patch
// must not be empty.
func ValidatePatch(p models.ItemPatch) error {
	const op = "items.edit"
	if p.Empty() {
		return apperrors.Validation(op, "nothing to change")
	}
	if p.Name != nil {
		if err := validateName(op, *p.Name); err != nil {
			return err
		}
	}
	if p.PartOfDay != nil {
		if err := validateParts(op, p.PartOfDay); err != nil {
			return err
		}
	}
	if p.DayOfWeek != nil {
		if err := validateDays(op, p.DayOfWeek); err != nil {
			return err
		}
	}
	return nil
}

// ParseResetTime validates user input for the reset time setting.
func ParseResetTime(s string) (models.ResetTime, error) {
	rt, err := models.ParseResetTime(s)
	if err != nil {
		return models.ResetTime{}, apperrors.Validationf("settings.reset_time", "%q is not a valid time, use HH:MM (24-hour)", s)
	}
	return rt, nil
}

// ValidateCredentials checks sign-up input.
func ValidateCredentials(email, password string, minPassword int) error {
	const op = "auth.signup"
	email = strings.TrimSpace(email)
	at := strings.IndexByte(email, '@')
	if at < 1 || at == len(email)-1 || strings.ContainsAny(email, " \t") {
		return apperrors.Validationf(op, "%q is not a valid email address", email)
	}
	if utf8.RuneCountInString(password) < minPassword {
		return apperrors.Validationf(op, "password must be at least %d characters", minPassword)
	}
	return nil
}

func validateName(op, name string) error {
	name = strings.TrimSpace(name)
	if name == "" {
		return apperrors.Validation(op, "name cannot be empty")
	}
	if utf8.RuneCountInString(name) > MaxNameLength {
		return apperrors.Validationf(op, "name is longer than %d characters", MaxNameLength)
	}
	return nil
}

func validateParts(op string, parts models.PartSet) error {
	if len(parts) == 0 {
		return apperrors.Validation(op, "select at least one part of day")
	}
	for _, p := range parts {
		if !p.Valid() {
			return apperrors.Validationf(op, "invalid part of day %q", p)
		}
	}
	return nil
}

func validateDays(op string, days models.DaySet) error {
	if len(days) == 0 {
		return apperrors.Validation(op, "select at least one day of week")
	}
	return nil
}

// ConflictType represents the type of problem found in a stored item set
type ConflictType string

const (
	ConflictMissingItemID  ConflictType = "missing_item_id"
	ConflictDuplicateName  ConflictType = "duplicate_name"
	ConflictOrderCollision ConflictType = "order_collision"
	ConflictEmptySchedule  ConflictType = "empty_schedule"
	ConflictForeignOwner   ConflictType = "foreign_owner"
)

// Conflict represents a detected problem in a user's items
type Conflict struct {
	Type        ConflictType
	Description string
	Bucket      string   // "Monday/morning" (if applicable)
	Items       []string // Item names involved
	ItemIDs     []string // IDs of items involved (for auto-fixing)
}

// ValidationResult contains all detected conflicts
type ValidationResult struct {
	Conflicts []Conflict
}

// HasConflicts returns true if there are any conflicts
func (vr *ValidationResult) HasConflicts() bool {
	return len(vr.Conflicts) > 0
}

// FormatReport returns a human-readable report of all conflicts
func (vr *ValidationResult) FormatReport() string {
	if !vr.HasConflicts() {
		return "No conflicts detected."
	}

	var b strings.Builder
	b.WriteString("Conflicts detected:\n")
	for _, conflict := range vr.Conflicts {
		fmt.Fprintf(&b, "- %s\n", conflict.Description)
	}
	return b.String()
}

// Buckets lists the buckets holding fixable conflicts, for reorder repair.
func (vr *ValidationResult) Buckets(t ConflictType) []string {
	seen := map[string]bool{}
	var out []string
	for _, c := range vr.Conflicts {
		if c.Type == t && c.Bucket != "" && !seen[c.Bucket] {
			seen[c.Bucket] = true
			out = append(out, c.Bucket)
		}
	}
	sort.Strings(out)
	return out
}

// Validator checks a user's stored items for problems the write path
// cannot prevent, such as duplicated names or colliding order values.
type Validator struct{}

func New() *Validator {
	return &Validator{}
}

// ValidateItems inspects items owned by userID.
func (v *Validator) ValidateItems(userID string, items []models.RoutineItem) ValidationResult {
	result := ValidationResult{Conflicts: []Conflict{}}

	byBucket := make(map[models.Bucket][]models.RoutineItem)
	for _, item := range items {
		if item.ID == "" {
			result.Conflicts = append(result.Conflicts, Conflict{
				Type:        ConflictMissingItemID,
				Description: fmt.Sprintf("Item \"%s\" has no id", item.Name),
				Items:       []string{item.Name},
			})
		}
		if item.UserID != userID {
			result.Conflicts = append(result.Conflicts, Conflict{
				Type:        ConflictForeignOwner,
				Description: fmt.Sprintf("Item \"%s\" belongs to another user", item.Name),
				Items:       []string{item.Name},
				ItemIDs:     []string{item.ID},
			})
			continue
		}
		if len(item.PartOfDay) == 0 || len(item.DayOfWeek) == 0 {
			result.Conflicts = append(result.Conflicts, Conflict{
				Type:        ConflictEmptySchedule,
				Description: fmt.Sprintf("Item \"%s\" is not scheduled on any day or part of day", item.Name),
				Items:       []string{item.Name},
				ItemIDs:     []string{item.ID},
			})
			continue
		}
		for _, b := range item.Buckets() {
			byBucket[b] = append(byBucket[b], item)
		}
	}

	buckets := make([]models.Bucket, 0, len(byBucket))
	for b := range byBucket {
		buckets = append(buckets, b)
	}
	sort.Slice(buckets, func(i, j int) bool { return buckets[i].Less(buckets[j]) })

	for _, b := range buckets {
		bucketItems := byBucket[b]

		names := make(map[string][]string)
		var nameOrder []string
		orders := make(map[int][]models.RoutineItem)
		var orderKeys []int
		for _, item := range bucketItems {
			key := strings.ToLower(strings.TrimSpace(item.Name))
			if _, ok := names[key]; !ok {
				nameOrder = append(nameOrder, key)
			}
			names[key] = append(names[key], item.ID)
			if item.Order != nil {
				if _, ok := orders[*item.Order]; !ok {
					orderKeys = append(orderKeys, *item.Order)
				}
				orders[*item.Order] = append(orders[*item.Order], item)
			}
		}

		for _, key := range nameOrder {
			if ids := names[key]; len(ids) > 1 {
				result.Conflicts = append(result.Conflicts, Conflict{
					Type:        ConflictDuplicateName,
					Description: fmt.Sprintf("Duplicate item name in %s: \"%s\" (IDs: %v)", b, key, ids),
					Bucket:      b.String(),
					Items:       []string{key},
					ItemIDs:     ids,
				})
			}
		}

		sort.Ints(orderKeys)
		for _, order := range orderKeys {
			same := orders[order]
			if len(same) < 2 {
				continue
			}
			c := Conflict{
				Type:        ConflictOrderCollision,
				Description: fmt.Sprintf("%d items in %s share order %d", len(same), b, order),
				Bucket:      b.String(),
			}
			for _, item := range same {
				c.Items = append(c.Items, item.Name)
				c.ItemIDs = append(c.ItemIDs, item.ID)
			}
			result.Conflicts = append(result.Conflicts, c)
		}
	}

	return result
}
