// Package dashboard renders a live view of the registered bundles and lets the
// operator trigger a refresh.
package dashboard

import (
	"context"
	"time"

	"github.com/charmbracelet/bubbles/spinner"
	tea "github.com/charmbracelet/bubbletea"
)

// DefaultPollInterval is how often the dashboard re-reads bundle state.
const DefaultPollInterval = time.Second

// Row is what the dashboard knows about one registered bundle.
type Row struct {
	Namespace string
	Reference string
	Location  string
	Activated bool
	Models    []string
	Services  []string
	Config    []string
}

// Source supplies bundle rows and refreshes them.
type Source interface {
	Snapshot() []Row
	Refresh(ctx context.Context) error
}

// Model is the main dashboard model
type Model struct {
	source Source
	rows   []Row

	viewMode ViewMode
	cursor   int

	spinner spinner.Model

	refreshing   bool
	lastRefresh  time.Duration
	showError    bool
	errorMsg     string

	width  int
	height int

	pollInterval time.Duration
	ctx          context.Context
}

// Option customises a Model.
type Option func(*Model)

// WithPollInterval overrides DefaultPollInterval. Zero disables polling.
func WithPollInterval(d time.Duration) Option {
	return func(m *Model) { m.pollInterval = d }
}

// WithContext bounds refreshes started from the dashboard.
func WithContext(ctx context.Context) Option {
	return func(m *Model) { m.ctx = ctx }
}

// NewModel creates a new dashboard model
func NewModel(src Source, opts ...Option) Model {
	s := spinner.New()
	s.Spinner = spinner.Dot
	s.Style = spinnerStyle

	m := Model{
		source:       src,
		viewMode:     ViewList,
		spinner:      s,
		width:        80,
		height:       24,
		pollInterval: DefaultPollInterval,
		ctx:          context.Background(),
	}
	for _, opt := range opts {
		opt(&m)
	}
	return m
}

// Init initializes the model and returns initial commands
func (m Model) Init() tea.Cmd {
	return tea.Batch(m.spinner.Tick, snapshotCmd(m.source), pollCmd(m.pollInterval))
}

// Rows returns the rows currently displayed.
func (m Model) Rows() []Row {
	return m.rows
}

// Cursor returns the index of the selected row.
func (m Model) Cursor() int {
	return m.cursor
}

// GetViewMode returns the current view mode
func (m Model) GetViewMode() ViewMode {
	return m.viewMode
}

// IsRefreshing returns whether a refresh is in progress
func (m Model) IsRefreshing() bool {
	return m.refreshing
}

// ActivatedCount returns how many rows are activated.
func (m Model) ActivatedCount() int {
	n := 0
	for _, r := range m.rows {
		if r.Activated {
			n++
		}
	}
	return n
}

// GetSelected returns the currently selected row
func (m Model) GetSelected() (Row, bool) {
	if m.cursor < 0 || m.cursor >= len(m.rows) {
		return Row{}, false
	}
	return m.rows[m.cursor], true
}

// MoveCursorUp moves cursor up with wrapping
func (m *Model) MoveCursorUp() {
	if len(m.rows) == 0 {
		return
	}
	m.cursor--
	if m.cursor < 0 {
		m.cursor = len(m.rows) - 1
	}
}

// MoveCursorDown moves cursor down with wrapping
func (m *Model) MoveCursorDown() {
	if len(m.rows) == 0 {
		return
	}
	m.cursor++
	if m.cursor >= len(m.rows) {
		m.cursor = 0
	}
}

func (m *Model) setRows(rows []Row) {
	selected, hadSelection := m.GetSelected()
	m.rows = rows
	if hadSelection {
		for i, r := range rows {
			if r.Location == selected.Location {
				m.cursor = i
				return
			}
		}
	}
	if m.cursor >= len(rows) {
		m.cursor = max(len(rows)-1, 0)
	}
	if len(rows) == 0 && m.viewMode == ViewDetail {
		m.viewMode = ViewList
	}
}

func (m Model) startRefresh() (Model, tea.Cmd) {
	if m.refreshing || m.source == nil {
		return m, nil
	}
	m.refreshing = true
	return m, tea.Batch(m.spinner.Tick, refreshCmd(m.ctx, m.source))
}
