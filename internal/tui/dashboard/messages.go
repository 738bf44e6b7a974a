package dashboard

import "time"

// ViewMode determines which screen to render
type ViewMode int

const (
	ViewList ViewMode = iota
	ViewDetail
	ViewHelp
)

// SnapshotMsg carries the current state of every registered bundle.
type SnapshotMsg struct {
	Rows []Row
}

// RefreshCompleteMsg reports the outcome of a refresh
type RefreshCompleteMsg struct {
	Err  error
	Took time.Duration
}

// ErrorMsg shows an error banner
type ErrorMsg struct {
	Message string
}

// ClearErrorMsg hides the error banner
type ClearErrorMsg struct{}

type pollMsg struct{}
