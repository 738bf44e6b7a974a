package dashboard

import (
	"fmt"
	"strings"

	"github.com/charmbracelet/bubbles/spinner"
	tea "github.com/charmbracelet/bubbletea"
)

const (
	minWidth  = 60
	minHeight = 16
)

// Update handles incoming messages and updates the model
func (m Model) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	switch msg := msg.(type) {
	case tea.WindowSizeMsg:
		m.width = msg.Width
		m.height = msg.Height

		if m.width < minWidth || m.height < minHeight {
			m.showError = true
			m.errorMsg = fmt.Sprintf("Terminal too small (%dx%d). Minimum size: %dx%d",
				m.width, m.height, minWidth, minHeight)
		} else if m.showError && strings.HasPrefix(m.errorMsg, "Terminal too small") {
			m.showError = false
			m.errorMsg = ""
		}
		return m, nil

	case tea.KeyMsg:
		return m.handleKeyPress(msg)

	case spinner.TickMsg:
		if !m.refreshing {
			return m, nil
		}
		var cmd tea.Cmd
		m.spinner, cmd = m.spinner.Update(msg)
		return m, cmd

	case SnapshotMsg:
		m.setRows(msg.Rows)
		return m, nil

	case pollMsg:
		return m, tea.Batch(snapshotCmd(m.source), pollCmd(m.pollInterval))

	case RefreshCompleteMsg:
		m.refreshing = false
		m.lastRefresh = msg.Took
		if msg.Err != nil {
			m.showError = true
			m.errorMsg = fmt.Sprintf("Refresh failed: %s", msg.Err.Error())
		}
		return m, snapshotCmd(m.source)

	case ErrorMsg:
		m.showError = true
		m.errorMsg = msg.Message
		return m, nil

	case ClearErrorMsg:
		m.showError = false
		m.errorMsg = ""
		return m, nil
	}

	return m, nil
}

// handleKeyPress handles keyboard input based on current view mode
func (m Model) handleKeyPress(msg tea.KeyMsg) (tea.Model, tea.Cmd) {
	if msg.String() == "ctrl+c" {
		return m, tea.Quit
	}

	switch m.viewMode {
	case ViewList:
		return m.handleListKeys(msg)
	case ViewDetail:
		return m.handleDetailKeys(msg)
	case ViewHelp:
		m.viewMode = ViewList
		return m, nil
	default:
		return m, nil
	}
}

func (m Model) handleListKeys(msg tea.KeyMsg) (tea.Model, tea.Cmd) {
	switch msg.String() {
	case "x":
		m.showError = false
		m.errorMsg = ""
		return m, nil

	case "q":
		return m, tea.Quit

	case "up", "k":
		m.MoveCursorUp()
		return m, nil

	case "down", "j":
		m.MoveCursorDown()
		return m, nil

	case "1", "2", "3", "4", "5", "6", "7", "8", "9":
		index := int(msg.String()[0] - '1')
		if index < len(m.rows) {
			m.cursor = index
		}
		return m, nil

	case "enter", " ":
		if _, ok := m.GetSelected(); ok {
			m.viewMode = ViewDetail
		}
		return m, nil

	case "r":
		return m.startRefresh()

	case "?":
		m.viewMode = ViewHelp
		return m, nil
	}
	return m, nil
}

func (m Model) handleDetailKeys(msg tea.KeyMsg) (tea.Model, tea.Cmd) {
	switch msg.String() {
	case "esc", "backspace", "h", "left":
		m.viewMode = ViewList
		return m, nil
	case "q":
		return m, tea.Quit
	case "r":
		return m.startRefresh()
	}
	return m, nil
}
