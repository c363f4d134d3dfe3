package tui

import (
	"fmt"
	"strings"

	"github.com/charmbracelet/lipgloss"

	"github.com/julianstephens/routineo/internal/constants"
	"github.com/julianstephens/routineo/internal/items"
	"github.com/julianstephens/routineo/internal/reset"
)

func (m Model) View() string {
	if m.quitting {
		return ""
	}

	var content string
	switch m.state {
	case constants.StateResolving:
		content = m.viewResolving()
	case constants.StateSignIn:
		content = m.viewSignIn()
	case constants.StateItems:
		content = m.viewItems()
	case constants.StateAddItem, constants.StateEditItem:
		content = docStyle.Render(m.form.View())
	case constants.StateSettings:
		content = m.viewSettings()
	case constants.StateConfirmDelete:
		content = m.viewConfirmDelete()
	}

	parts := []string{}
	if m.sess != nil {
		parts = append(parts, m.viewTabs())
	}
	parts = append(parts, content)
	if m.flash != "" {
		parts = append(parts, warningStyle.Render(m.flash))
	}
	parts = append(parts, m.help.View(m))
	return lipgloss.JoinVertical(lipgloss.Left, parts...)
}

func (m Model) viewTabs() string {
	itemsTab, settingsTab := activeTabStyle, inactiveTabStyle
	if m.state == constants.StateSettings {
		itemsTab, settingsTab = inactiveTabStyle, activeTabStyle
	}
	mode := "Today"
	if m.sess.View.Mode() == items.ModeAll {
		mode = "All days"
	}
	return lipgloss.JoinHorizontal(lipgloss.Top,
		itemsTab.Render(mode),
		settingsTab.Render("Settings"),
		mutedStyle.Render("  "+m.user.Email),
	)
}

func (m Model) viewResolving() string {
	label := "Restoring session..."
	if m.opening {
		label = "Loading your routine..."
	}
	return docStyle.Render(fmt.Sprintf("%s %s", m.spinner.View(), label))
}

func (m Model) viewSignIn() string {
	var b strings.Builder
	if m.form != nil {
		b.WriteString(m.form.View())
	}
	if m.authErr != "" {
		b.WriteString("\n")
		b.WriteString(dangerStyle.Render(m.authErr))
	}
	return docStyle.Render(b.String())
}

func (m Model) viewItems() string {
	if m.sess == nil {
		return docStyle.Render(mutedStyle.Render("No items loaded. Press 'q' to quit."))
	}
	done, total := m.checklist.Progress()
	header := titleStyle.Render(m.sess.Items.Today().String())
	if total > 0 {
		header += mutedStyle.Render(fmt.Sprintf("  %d/%d done", done, total))
	}
	return docStyle.Render(header + "\n\n" + m.checklist.View())
}

func (m Model) viewSettings() string {
	if m.form != nil {
		body := m.form.View()
		if m.formErr != "" {
			body += "\n" + dangerStyle.Render(m.formErr)
		}
		return docStyle.Render(body)
	}

	var b strings.Builder
	b.WriteString(titleStyle.Render("Settings"))
	b.WriteString("\n\n")
	fmt.Fprintf(&b, "Signed in as: %s\n", m.user.Email)

	st := m.resetStatus
	if st == nil {
		b.WriteString(mutedStyle.Render("Loading reset status..."))
		return docStyle.Render(b.String())
	}
	if st.ResetTime == nil {
		b.WriteString("Daily reset:  not set\n")
		b.WriteString(mutedStyle.Render("Press 'e' to choose when checked items clear each day."))
		return docStyle.Render(b.String())
	}

	fmt.Fprintf(&b, "Daily reset:  %s\n", st.ResetTime)
	if st.Marker != nil {
		fmt.Fprintf(&b, "Last reset:   %s on this device\n", st.Marker.LastReset.Local().Format("Mon Jan 2 "+constants.TimeFormat))
	} else {
		b.WriteString("Last reset:   never on this device\n")
	}
	if !st.NextReset.IsZero() {
		fmt.Fprintf(&b, "Next reset:   %s\n", st.NextReset.Format("Mon "+constants.TimeFormat))
	}
	switch st.Outcome {
	case reset.OutcomeMarkerAhead:
		b.WriteString(warningStyle.Render("The last reset is dated in the future; check this device's clock."))
	case reset.OutcomeBeforeResetTime:
		b.WriteString(mutedStyle.Render("Today's reset has not happened yet."))
	}
	return docStyle.Render(b.String())
}

func (m Model) viewConfirmDelete() string {
	return lipgloss.Place(m.width, m.height-4,
		lipgloss.Center, lipgloss.Center,
		lipgloss.JoinVertical(lipgloss.Center,
			dangerStyle.Render(fmt.Sprintf("Delete %q?", m.deleteName)),
			"",
			"[y] Yes",
			"[n] No",
		),
	)
}
