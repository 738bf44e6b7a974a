package dashboard

import (
	"fmt"
	"strings"
	"time"

	"github.com/charmbracelet/lipgloss"
)

// View renders the current model state
func (m Model) View() string {
	switch m.viewMode {
	case ViewDetail:
		return m.renderDetailView()
	case ViewHelp:
		return m.renderHelpView()
	default:
		return m.renderListView()
	}
}

func (m Model) renderListView() string {
	var content strings.Builder

	content.WriteString(m.renderHeader())
	content.WriteString("\n")

	if m.showError {
		content.WriteString(errorBannerStyle.Render(m.errorMsg))
		content.WriteString("\n")
	}

	if len(m.rows) == 0 {
		content.WriteString(itemStyle.Render(mutedStyle.Render("No bundles registered.")))
		content.WriteString("\n")
	}
	for i, row := range m.rows {
		line := fmt.Sprintf("%s %-20s %-24s %d models, %d services",
			stateIcon(row.Activated), row.Namespace, row.Reference, len(row.Models), len(row.Services))
		if i == m.cursor {
			content.WriteString(selectedItemStyle.Render(line))
		} else {
			content.WriteString(itemStyle.Render(line))
		}
		content.WriteString("\n")
	}

	content.WriteString(footerStyle.Render("↑/↓ navigate • enter details • r refresh • ? help • q quit"))
	return content.String()
}

func (m Model) renderHeader() string {
	title := titleStyle.Render("Bulkhead Dashboard")

	summary := fmt.Sprintf("%s %d activated  %s %d pending",
		stateIcon(true), m.ActivatedCount(),
		stateIcon(false), len(m.rows)-m.ActivatedCount(),
	)
	if m.refreshing {
		summary += fmt.Sprintf("  %s Refreshing", m.spinner.View())
	} else if m.lastRefresh > 0 {
		summary += mutedStyle.Render(fmt.Sprintf("  last refresh %s", m.lastRefresh.Round(time.Millisecond)))
	}

	return headerStyle.Render(lipgloss.JoinVertical(lipgloss.Left, title, "  "+summary))
}

func (m Model) renderDetailView() string {
	row, ok := m.GetSelected()
	if !ok {
		return m.renderListView()
	}

	var content strings.Builder
	content.WriteString(headerStyle.Render(lipgloss.JoinVertical(lipgloss.Left,
		titleStyle.Render(row.Namespace),
		"  "+mutedStyle.Render(fmt.Sprintf("%s (%s)", row.Reference, row.Location)),
	)))
	content.WriteString("\n")

	if m.showError {
		content.WriteString(errorBannerStyle.Render(m.errorMsg))
		content.WriteString("\n")
	}

	state := pendingStyle.Render("pending activation")
	if row.Activated {
		state = activatedStyle.Render("activated")
	}
	content.WriteString(itemStyle.Render("state: " + state))
	content.WriteString("\n")

	writeSection(&content, "models", row.Models)
	writeSection(&content, "services", row.Services)
	writeSection(&content, "config", row.Config)

	content.WriteString(footerStyle.Render("esc back • r refresh • q quit"))
	return content.String()
}

func writeSection(b *strings.Builder, title string, items []string) {
	b.WriteString(sectionStyle.Render(title))
	b.WriteString("\n")
	if len(items) == 0 {
		b.WriteString(itemStyle.Render(mutedStyle.Render("(none)")))
		b.WriteString("\n")
		return
	}
	for _, item := range items {
		b.WriteString(itemStyle.Render(item))
		b.WriteString("\n")
	}
}

func (m Model) renderHelpView() string {
	keys := [][2]string{
		{"↑/k ↓/j", "Move selection"},
		{"1-9", "Jump to bundle"},
		{"enter", "Show bundle details"},
		{"esc", "Back to list"},
		{"r", "Re-merge and reactivate all bundles"},
		{"x", "Dismiss error"},
		{"q", "Quit"},
	}

	lines := []string{titleStyle.Render("Keys"), ""}
	for _, k := range keys {
		lines = append(lines, helpKeyStyle.Render(k[0])+k[1])
	}
	lines = append(lines, "", mutedStyle.Render("Press any key to return"))
	return helpBoxStyle.Render(strings.Join(lines, "\n"))
}

func stateIcon(activated bool) string {
	if activated {
		return activatedStyle.Render("●")
	}
	return pendingStyle.Render("○")
}
