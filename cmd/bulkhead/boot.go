package main

import (
	"context"
	"fmt"
	"io"

	"github.com/spf13/cobra"

	"github.com/alexisbeaulieu97/bulkhead/internal/config"
	"github.com/alexisbeaulieu97/bulkhead/internal/host"
	"github.com/alexisbeaulieu97/bulkhead/internal/logger"
)

// hostFlags are shared by every command that boots a host.
type hostFlags struct {
	configPath string
	dsn        string
	watch      bool
}

func (f *hostFlags) register(cmd *cobra.Command) {
	cmd.Flags().StringVarP(&f.configPath, "config", "c", "", "Path to a bulkhead config file")
	cmd.Flags().StringVar(&f.dsn, "dsn", "", "Model store DSN (overrides config)")
	cmd.Flags().BoolVar(&f.watch, "watch", false, "Reactivate when bundle models change")
}

// bootHost loads configuration, registers the requested bundles and runs
// activation. logOut receives the host logs.
func bootHost(ctx context.Context, operation string, rootFlags *rootFlags, flags *hostFlags, args []string, logOut io.Writer) (*host.Host, *config.Config, error) {
	cfg, err := config.Load(flags.configPath)
	if err != nil {
		return nil, nil, newCommandError(operation, "loading configuration", err, "Check the config file and BULKHEAD_* environment variables.")
	}
	if flags.dsn != "" {
		cfg.Store.DSN = flags.dsn
	}
	if flags.watch {
		cfg.Watch.Enabled = true
	}

	locations := args
	if len(locations) == 0 {
		locations = cfg.Bundles
	}
	if len(locations) == 0 {
		return nil, nil, newCommandError(operation, "selecting bundles", fmt.Errorf("no bundles given"), "Pass bundle locations as arguments or list them under 'bundles' in the config.")
	}

	level := cfg.Log.Level
	if rootFlags.verbose {
		level = "debug"
	}
	log, err := logger.New(logger.Options{Level: level, HumanReadable: rootFlags.human || cfg.Log.Human, Writer: logOut})
	if err != nil {
		return nil, nil, newCommandError(operation, "creating logger", err, "Use one of trace, debug, info, warn or error for log.level.")
	}

	h, err := host.New(ctx, host.Options{Config: cfg, Logger: log})
	if err != nil {
		return nil, nil, newCommandError(operation, "starting host", err, "Check the store DSN.")
	}

	if _, err := h.RegisterAll(ctx, locations); err != nil {
		_ = h.Close()
		return nil, nil, newCommandError(operation, "registering bundles", err, "Fix the reported bundle and run the command again.")
	}
	if err := h.Activate(ctx); err != nil {
		_ = h.Close()
		return nil, nil, newCommandError(operation, "activating bundles", err, "Check the store DSN and model definitions.")
	}

	if cfg.Watch.Enabled {
		if err := h.Watch(ctx); err != nil {
			_ = h.Close()
			return nil, nil, newCommandError(operation, "watching bundles", err, "Make sure the bundles are local directories.")
		}
	}
	return h, cfg, nil
}
