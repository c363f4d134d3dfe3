package models

import (
	"encoding/json"
	"fmt"
	"sort"
	"strings"
	"time"
)

type PartOfDay string

const (
	Morning   PartOfDay = "morning"
	Afternoon PartOfDay = "afternoon"
	Evening   PartOfDay = "evening"
)

// AllParts lists the parts of the day in display order.
var AllParts = []PartOfDay{Morning, Afternoon, Evening}

// AllDays lists the days of the week in display order (Monday first).
var AllDays = []time.Weekday{
	time.Monday, time.Tuesday, time.Wednesday, time.Thursday,
	time.Friday, time.Saturday, time.Sunday,
}

func (p PartOfDay) Valid() bool {
	return p.rank() >= 0
}

func (p PartOfDay) rank() int {
	for i, part := range AllParts {
		if part == p {
			return i
		}
	}
	return -1
}

// ParsePart parses a part of the day, case-insensitively.
func ParsePart(s string) (PartOfDay, error) {
	p := PartOfDay(strings.ToLower(strings.TrimSpace(s)))
	if !p.Valid() {
		return "", fmt.Errorf("invalid part of day: %q", s)
	}
	return p, nil
}

// ParseDay parses a weekday name or three-letter abbreviation.
func ParseDay(s string) (time.Weekday, error) {
	key := strings.ToLower(strings.TrimSpace(s))
	for _, d := range AllDays {
		name := strings.ToLower(d.String())
		if key == name || key == name[:3] {
			return d, nil
		}
	}
	return 0, fmt.Errorf("invalid weekday: %q", s)
}

func dayRank(d time.Weekday) int {
	// Monday=0 ... Sunday=6
	return (int(d) + 6) % 7
}

// PartSet is a non-empty set of parts of the day. On the wire it is an array
// of names; a single string is accepted when decoding older documents.
type PartSet []PartOfDay

// NewPartSet returns the canonical (deduplicated, ordered) set.
func NewPartSet(parts ...PartOfDay) PartSet {
	seen := make(map[PartOfDay]bool, len(parts))
	out := make(PartSet, 0, len(parts))
	for _, p := range parts {
		if seen[p] {
			continue
		}
		seen[p] = true
		out = append(out, p)
	}
	sort.SliceStable(out, func(i, j int) bool { return out[i].rank() < out[j].rank() })
	return out
}

// ParseParts parses a comma-separated list of parts of the day.
func ParseParts(s string) (PartSet, error) {
	var parts []PartOfDay
	for _, field := range strings.Split(s, ",") {
		if strings.TrimSpace(field) == "" {
			continue
		}
		p, err := ParsePart(field)
		if err != nil {
			return nil, err
		}
		parts = append(parts, p)
	}
	return NewPartSet(parts...), nil
}

func (s PartSet) Contains(p PartOfDay) bool {
	for _, part := range s {
		if part == p {
			return true
		}
	}
	return false
}

func (s PartSet) String() string {
	names := make([]string, len(s))
	for i, p := range s {
		names[i] = string(p)
	}
	return strings.Join(names, ",")
}

func (s *PartSet) UnmarshalJSON(data []byte) error {
	var names []string
	if err := json.Unmarshal(data, &names); err != nil {
		var single string
		if err2 := json.Unmarshal(data, &single); err2 != nil {
			return fmt.Errorf("part_of_day: expected array or string: %w", err)
		}
		names = []string{single}
	}
	parts := make([]PartOfDay, 0, len(names))
	for _, n := range names {
		p, err := ParsePart(n)
		if err != nil {
			return err
		}
		parts = append(parts, p)
	}
	*s = NewPartSet(parts...)
	return nil
}

func (s PartSet) MarshalJSON() ([]byte, error) {
	names := make([]string, 0, len(s))
	for _, p := range NewPartSet(s...) {
		names = append(names, string(p))
	}
	return json.Marshal(names)
}

// DaySet is a non-empty set of weekdays, encoded as English day names.
type DaySet []time.Weekday

// NewDaySet returns the canonical (deduplicated, Monday-first) set.
func NewDaySet(days ...time.Weekday) DaySet {
	seen := make(map[time.Weekday]bool, len(days))
	out := make(DaySet, 0, len(days))
	for _, d := range days {
		if seen[d] {
			continue
		}
		seen[d] = true
		out = append(out, d)
	}
	sort.SliceStable(out, func(i, j int) bool { return dayRank(out[i]) < dayRank(out[j]) })
	return out
}

// ParseDays parses a comma-separated list of weekdays. "daily" expands to
// every day of the week.
func ParseDays(s string) (DaySet, error) {
	if strings.EqualFold(strings.TrimSpace(s), "daily") {
		return NewDaySet(AllDays...), nil
	}
	var days []time.Weekday
	for _, field := range strings.Split(s, ",") {
		if strings.TrimSpace(field) == "" {
			continue
		}
		d, err := ParseDay(field)
		if err != nil {
			return nil, err
		}
		days = append(days, d)
	}
	return NewDaySet(days...), nil
}

func (s DaySet) Contains(d time.Weekday) bool {
	for _, day := range s {
		if day == d {
			return true
		}
	}
	return false
}

func (s DaySet) String() string {
	if len(NewDaySet(s...)) == len(AllDays) {
		return "daily"
	}
	names := make([]string, len(s))
	for i, d := range s {
		names[i] = d.String()[:3]
	}
	return strings.Join(names, ",")
}

func (s *DaySet) UnmarshalJSON(data []byte) error {
	var names []string
	if err := json.Unmarshal(data, &names); err != nil {
		var single string
		if err2 := json.Unmarshal(data, &single); err2 != nil {
			return fmt.Errorf("day_of_week: expected array or string: %w", err)
		}
		names = []string{single}
	}
	days := make([]time.Weekday, 0, len(names))
	for _, n := range names {
		d, err := ParseDay(n)
		if err != nil {
			return err
		}
		days = append(days, d)
	}
	*s = NewDaySet(days...)
	return nil
}

func (s DaySet) MarshalJSON() ([]byte, error) {
	names := make([]string, 0, len(s))
	for _, d := range NewDaySet(s...) {
		names = append(names, d.String())
	}
	return json.Marshal(names)
}

// Bucket is the (day-of-week, part-of-day) key items are grouped and ordered by.
type Bucket struct {
	Day  time.Weekday
	Part PartOfDay
}

func (b Bucket) String() string {
	return fmt.Sprintf("%s/%s", b.Day, b.Part)
}

// Less orders buckets Monday-first, then morning to evening.
func (b Bucket) Less(other Bucket) bool {
	if b.Day != other.Day {
		return dayRank(b.Day) < dayRank(other.Day)
	}
	return b.Part.rank() < other.Part.rank()
}

// ParseBucket parses "day/part", e.g. "mon/morning".
func ParseBucket(s string) (Bucket, error) {
	day, part, ok := strings.Cut(s, "/")
	if !ok {
		return Bucket{}, fmt.Errorf("invalid bucket %q (expected day/part)", s)
	}
	d, err := ParseDay(day)
	if err != nil {
		return Bucket{}, err
	}
	p, err := ParsePart(part)
	if err != nil {
		return Bucket{}, err
	}
	return Bucket{Day: d, Part: p}, nil
}

// RoutineItem is a recurring checklist entry. The JSON field names are the
// document store wire format.
type RoutineItem struct {
	ID        string     `json:"-"`
	Name      string     `json:"name"`
	PartOfDay PartSet    `json:"part_of_day"`
	DayOfWeek DaySet     `json:"day_of_week"`
	Order     *int       `json:"order,omitempty"`
	IsChecked bool       `json:"is_checked"`
	UserID    string     `json:"user_id"`
	CreatedAt *time.Time `json:"created_at,omitempty"`
}

// ActiveOn reports whether the item is scheduled on the given weekday.
func (i RoutineItem) ActiveOn(day time.Weekday) bool {
	return i.DayOfWeek.Contains(day)
}

// Buckets returns every (day, part) pair the item belongs to.
func (i RoutineItem) Buckets() []Bucket {
	buckets := make([]Bucket, 0, len(i.DayOfWeek)*len(i.PartOfDay))
	for _, d := range NewDaySet(i.DayOfWeek...) {
		for _, p := range NewPartSet(i.PartOfDay...) {
			buckets = append(buckets, Bucket{Day: d, Part: p})
		}
	}
	return buckets
}

func (i RoutineItem) InBucket(b Bucket) bool {
	return i.DayOfWeek.Contains(b.Day) && i.PartOfDay.Contains(b.Part)
}

func (i *RoutineItem) Validate() error {
	if strings.TrimSpace(i.Name) == "" {
		return fmt.Errorf("item name cannot be empty")
	}
	if len(i.PartOfDay) == 0 {
		return fmt.Errorf("at least one part of day must be selected")
	}
	for _, p := range i.PartOfDay {
		if !p.Valid() {
			return fmt.Errorf("invalid part of day: %q", p)
		}
	}
	if len(i.DayOfWeek) == 0 {
		return fmt.Errorf("at least one day of week must be selected")
	}
	for _, d := range i.DayOfWeek {
		if d < time.Sunday || d > time.Saturday {
			return fmt.Errorf("invalid weekday: %d", d)
		}
	}
	if i.UserID == "" {
		return fmt.Errorf("item must have an owner")
	}
	return nil
}

// ItemDraft holds the user-supplied fields of a new item.
type ItemDraft struct {
	Name      string
	PartOfDay PartSet
	DayOfWeek DaySet
	Order     *int
}

// ItemPatch holds the editable fields of an item; nil fields are left unchanged.
type ItemPatch struct {
	Name      *string
	PartOfDay PartSet
	DayOfWeek DaySet
}

func (p ItemPatch) Empty() bool {
	return p.Name == nil && p.PartOfDay == nil && p.DayOfWeek == nil
}
