// Package checklist renders a user's items grouped by weekday and part of
// the day with a movable cursor.
package checklist

import (
	"fmt"
	"strings"

	"github.com/charmbracelet/lipgloss"

	"github.com/julianstephens/routineo/internal/models"
)

var (
	headerStyle  = lipgloss.NewStyle().Foreground(lipgloss.Color("99")).Bold(true)
	cursorStyle  = lipgloss.NewStyle().Foreground(lipgloss.Color("205")).Bold(true)
	checkedStyle = lipgloss.NewStyle().Foreground(lipgloss.Color("240")).Strikethrough(true)
	emptyStyle   = lipgloss.NewStyle().Foreground(lipgloss.Color("240")).Italic(true)
)

// row is either a bucket header or one item within a bucket. An item that
// is scheduled in several buckets gets one row per bucket.
type row struct {
	bucket models.Bucket
	item   *models.RoutineItem
}

type Model struct {
	rows   []row
	cursor int
	offset int
	height int
	width  int
	empty  string
}

func New(width, height int) Model {
	return Model{
		cursor: -1,
		width:  width,
		height: height,
		empty:  "Nothing here yet. Press 'a' to add an item.",
	}
}

func (m *Model) SetSize(width, height int) {
	m.width = width
	m.height = height
	m.scroll()
}

func (m *Model) SetEmptyText(s string) { m.empty = s }

// SetGroups replaces the rows. The cursor stays on the same bucket and item
// when they still exist.
func (m *Model) SetGroups(buckets []models.Bucket, items func(models.Bucket) []models.RoutineItem) {
	prevBucket, prevItem, hadSelection := m.Selected()

	m.rows = m.rows[:0]
	for _, b := range buckets {
		m.rows = append(m.rows, row{bucket: b})
		for _, it := range items(b) {
			it := it
			m.rows = append(m.rows, row{bucket: b, item: &it})
		}
	}

	m.cursor = m.firstItem(0, 1)
	if hadSelection {
		for i, r := range m.rows {
			if r.item != nil && r.bucket == prevBucket && r.item.ID == prevItem.ID {
				m.cursor = i
				break
			}
		}
	}
	if m.offset >= len(m.rows) {
		m.offset = 0
	}
	m.scroll()
}

// firstItem returns the first item row from i stepping by dir, or -1.
func (m Model) firstItem(i, dir int) int {
	for ; i >= 0 && i < len(m.rows); i += dir {
		if m.rows[i].item != nil {
			return i
		}
	}
	return -1
}

// Selected returns the item under the cursor and the bucket it is shown in.
func (m Model) Selected() (models.Bucket, models.RoutineItem, bool) {
	if m.cursor < 0 || m.cursor >= len(m.rows) || m.rows[m.cursor].item == nil {
		return models.Bucket{}, models.RoutineItem{}, false
	}
	r := m.rows[m.cursor]
	return r.bucket, *r.item, true
}

func (m *Model) Up() {
	if next := m.firstItem(m.cursor-1, -1); next >= 0 {
		m.cursor = next
	}
	m.scroll()
}

func (m *Model) Down() {
	if next := m.firstItem(m.cursor+1, 1); next >= 0 {
		m.cursor = next
	}
	m.scroll()
}

// Progress counts checked and total item rows.
func (m Model) Progress() (done, total int) {
	for _, r := range m.rows {
		if r.item == nil {
			continue
		}
		total++
		if r.item.IsChecked {
			done++
		}
	}
	return done, total
}

func (m *Model) scroll() {
	if m.height <= 0 || m.cursor < 0 {
		return
	}
	top := m.cursor
	// keep the bucket header visible with its first item
	if top > 0 && m.rows[top-1].item == nil {
		top--
	}
	if top < m.offset {
		m.offset = top
	}
	if m.cursor >= m.offset+m.height {
		m.offset = m.cursor - m.height + 1
	}
}

func (m Model) View() string {
	if _, total := m.Progress(); total == 0 {
		return emptyStyle.Render(m.empty)
	}

	end := len(m.rows)
	if m.height > 0 && m.offset+m.height < end {
		end = m.offset + m.height
	}

	var b strings.Builder
	for i := m.offset; i < end; i++ {
		r := m.rows[i]
		if r.item == nil {
			if i > m.offset {
				b.WriteString("\n")
			}
			b.WriteString(headerStyle.Render(fmt.Sprintf("%s · %s", r.bucket.Day, r.bucket.Part)))
			b.WriteString("\n")
			continue
		}

		box := "[ ]"
		name := r.item.Name
		if r.item.IsChecked {
			box = "[x]"
			name = checkedStyle.Render(name)
		}
		prefix := "  "
		if i == m.cursor {
			prefix = cursorStyle.Render("> ")
		}
		b.WriteString(prefix + box + " " + name + "\n")
	}
	return strings.TrimRight(b.String(), "\n")
}
