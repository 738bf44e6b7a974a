package dashboard

import (
	"context"
	"time"

	tea "github.com/charmbracelet/bubbletea"
)

// snapshotCmd reads the current bundle rows from the source
func snapshotCmd(src Source) tea.Cmd {
	return func() tea.Msg {
		return SnapshotMsg{Rows: src.Snapshot()}
	}
}

// refreshCmd re-merges and reactivates every bundle
func refreshCmd(ctx context.Context, src Source) tea.Cmd {
	return func() tea.Msg {
		started := time.Now()
		err := src.Refresh(ctx)
		return RefreshCompleteMsg{Err: err, Took: time.Since(started)}
	}
}

// pollCmd schedules the next snapshot. A zero interval disables polling.
func pollCmd(interval time.Duration) tea.Cmd {
	if interval <= 0 {
		return nil
	}
	return tea.Tick(interval, func(time.Time) tea.Msg { return pollMsg{} })
}
