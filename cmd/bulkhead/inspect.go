package main

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"os"
	"os/signal"
	"sort"
	"strings"
	"syscall"

	"github.com/charmbracelet/lipgloss"
	"github.com/spf13/cobra"
	"golang.org/x/term"

	"github.com/alexisbeaulieu97/bulkhead/internal/plugin"
)

var (
	titleStyle   = lipgloss.NewStyle().Bold(true).Foreground(lipgloss.Color("205"))
	sectionStyle = lipgloss.NewStyle().Bold(true).Foreground(lipgloss.Color("39"))
	mutedStyle   = lipgloss.NewStyle().Foreground(lipgloss.Color("244"))
)

type inspectOptions struct {
	hostFlags
	jsonOutput bool
}

func newInspectCmd(rootFlags *rootFlags) *cobra.Command {
	opts := &inspectOptions{}

	cmd := &cobra.Command{
		Use:   "inspect [bundle...]",
		Short: "Register and activate bundles, then show what each one exposes",
		RunE: func(cmd *cobra.Command, args []string) error {
			return runInspect(cmd, rootFlags, opts, args)
		},
	}

	opts.register(cmd)
	cmd.Flags().BoolVar(&opts.jsonOutput, "json", false, "Output in JSON format")

	return cmd
}

func runInspect(cmd *cobra.Command, rootFlags *rootFlags, opts *inspectOptions, args []string) error {
	ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	h, cfg, err := bootHost(ctx, "inspect", rootFlags, &opts.hostFlags, args, cmd.ErrOrStderr())
	if err != nil {
		return err
	}
	defer h.Close()

	reports := buildReports(ctx, h.Registry())
	if opts.jsonOutput {
		if err := renderInspectJSON(cmd.OutOrStdout(), reports); err != nil {
			return err
		}
	} else {
		renderInspectText(cmd.OutOrStdout(), reports, isTerminal(cmd.OutOrStdout()))
	}

	if cfg.Watch.Enabled {
		<-ctx.Done()
	}
	return nil
}

type modelReport struct {
	Identity     string `json:"identity"`
	Materialized string `json:"materialized"`
	Records      *int64 `json:"records,omitempty"`
}

type bundleReport struct {
	Location  string        `json:"location"`
	Namespace string        `json:"namespace"`
	Name      string        `json:"name"`
	Version   string        `json:"version"`
	Models    []modelReport `json:"models"`
	Services  []string      `json:"services"`
	Config    []string      `json:"config"`
}

// counter is implemented by store-backed models.
type counter interface {
	Count(ctx context.Context) (int64, error)
}

func buildReports(ctx context.Context, reg *plugin.Registry) []bundleReport {
	bundles := reg.All()
	reports := make([]bundleReport, 0, len(bundles))

	for _, b := range bundles {
		report := bundleReport{
			Location:  b.Location,
			Namespace: b.Namespace,
			Name:      b.Manifest.Name,
			Version:   b.Manifest.Version,
			Models:    []modelReport{},
			Services:  sortedKeys(b.Services),
			Config:    sortedKeys(b.Config),
		}

		for _, identity := range sortedKeys(b.Models) {
			model := b.Models[identity]
			entry := modelReport{Identity: identity, Materialized: model.Identity()}
			if c, ok := model.(counter); ok {
				if n, err := c.Count(ctx); err == nil {
					entry.Records = &n
				}
			}
			report.Models = append(report.Models, entry)
		}
		reports = append(reports, report)
	}
	return reports
}

func renderInspectJSON(w io.Writer, reports []bundleReport) error {
	encoder := json.NewEncoder(w)
	encoder.SetIndent("", "  ")
	return encoder.Encode(struct {
		Count   int            `json:"count"`
		Bundles []bundleReport `json:"bundles"`
	}{Count: len(reports), Bundles: reports})
}

func renderInspectText(w io.Writer, reports []bundleReport, styled bool) {
	render := func(style lipgloss.Style, s string) string {
		if !styled {
			return s
		}
		return style.Render(s)
	}

	for i, r := range reports {
		if i > 0 {
			fmt.Fprintln(w)
		}
		fmt.Fprintf(w, "%s %s\n", render(titleStyle, r.Namespace), render(mutedStyle, fmt.Sprintf("%s@%s (%s)", r.Name, r.Version, r.Location)))

		fmt.Fprintln(w, render(sectionStyle, "models"))
		if len(r.Models) == 0 {
			fmt.Fprintln(w, "  (none)")
		}
		for _, m := range r.Models {
			records := ""
			if m.Records != nil {
				records = fmt.Sprintf(" [%d records]", *m.Records)
			}
			fmt.Fprintf(w, "  %s -> %s%s\n", m.Identity, m.Materialized, records)
		}

		fmt.Fprintln(w, render(sectionStyle, "services"))
		fmt.Fprintf(w, "  %s\n", valueOrFallback(strings.Join(r.Services, ", "), "(none)"))

		fmt.Fprintln(w, render(sectionStyle, "config"))
		fmt.Fprintf(w, "  %s\n", valueOrFallback(strings.Join(r.Config, ", "), "(none)"))
	}
}

func sortedKeys[V any](m map[string]V) []string {
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}

func isTerminal(writer any) bool {
	if file, ok := writer.(*os.File); ok {
		return term.IsTerminal(int(file.Fd()))
	}
	return false
}

func valueOrFallback(value, fallback string) string {
	trimmed := strings.TrimSpace(value)
	if trimmed == "" {
		return fallback
	}
	return trimmed
}
