package main

import (
	"context"
	"fmt"
	"io"
	"os"
	"os/signal"
	"syscall"

	tea "github.com/charmbracelet/bubbletea"
	"github.com/spf13/cobra"

	"github.com/alexisbeaulieu97/bulkhead/internal/host"
	"github.com/alexisbeaulieu97/bulkhead/internal/plugin"
	"github.com/alexisbeaulieu97/bulkhead/internal/tui/dashboard"
)

func newDashboardCmd(rootFlags *rootFlags) *cobra.Command {
	flags := &hostFlags{}

	cmd := &cobra.Command{
		Use:   "dashboard [bundle...]",
		Short: "Launch the interactive dashboard",
		Long:  `Register and activate bundles, then show them in an interactive dashboard that can refresh them on demand.`,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runDashboard(cmd, rootFlags, flags, args)
		},
	}

	flags.register(cmd)
	return cmd
}

func runDashboard(cmd *cobra.Command, rootFlags *rootFlags, flags *hostFlags, args []string) error {
	ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	// Logs would tear the alternate screen, so only verbose runs keep them.
	var logOut io.Writer = io.Discard
	if rootFlags.verbose {
		logOut = cmd.ErrOrStderr()
	}

	h, _, err := bootHost(ctx, "launch dashboard", rootFlags, flags, args, logOut)
	if err != nil {
		return err
	}
	defer h.Close()

	m := dashboard.NewModel(&hostSource{host: h}, dashboard.WithContext(ctx))
	p := tea.NewProgram(m, tea.WithAltScreen(), tea.WithContext(ctx))
	if _, err := p.Run(); err != nil && ctx.Err() == nil {
		return fmt.Errorf("failed to run dashboard: %w", err)
	}
	return nil
}

// hostSource exposes a host to the dashboard.
type hostSource struct {
	host *host.Host
}

func (s *hostSource) Snapshot() []dashboard.Row {
	return snapshotRows(s.host.Registry())
}

func (s *hostSource) Refresh(ctx context.Context) error {
	return s.host.Refresh(ctx)
}

func snapshotRows(reg *plugin.Registry) []dashboard.Row {
	bundles := reg.All()
	rows := make([]dashboard.Row, 0, len(bundles))
	for _, b := range bundles {
		rows = append(rows, dashboard.Row{
			Namespace: b.Namespace,
			Reference: fmt.Sprintf("%s@%s", b.Manifest.Name, b.Manifest.Version),
			Location:  b.Location,
			Activated: b.Activated(),
			Models:    sortedKeys(b.ModelDefs),
			Services:  sortedKeys(b.ServiceDefs),
			Config:    sortedKeys(b.Config),
		})
	}
	return rows
}
