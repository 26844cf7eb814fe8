package main

import (
	"errors"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"octapulse/internal/audit"
	"octapulse/internal/config"
	"octapulse/internal/logging"
)

func newAuditCmd() *cobra.Command {
	var dbPath string
	cmd := &cobra.Command{
		Use:   "audit",
		Short: "Check every stored image blob for corruption (read-only)",
		RunE: func(cmd *cobra.Command, _ []string) error {
			return runAudit(cmd, dbPath)
		},
	}
	cmd.Flags().StringVar(&dbPath, "db", "", "database to audit (default database.path from the config)")
	return cmd
}

func runAudit(cmd *cobra.Command, dbPath string) error {
	stdout, stderr := cmd.OutOrStdout(), cmd.ErrOrStderr()

	if dbPath == "" {
		cfg, err := config.Load(configPath)
		switch {
		case err == nil:
			dbPath = cfg.Database.Path
		case !errors.Is(err, config.ErrNotFound):
			return fail(ExitError, err)
		}
	}
	if dbPath == "" {
		return fail(ExitError, errors.New("no database given: use --db or set database.path"))
	}

	logger, err := logging.New(logging.Options{Level: "warn", Color: true}, stderr)
	if err != nil {
		return fail(ExitError, err)
	}
	defer func() { _ = logger.Sync() }()

	fmt.Fprintf(stdout, "%s Scanning %s\n", cInfo("[AUDIT]"), dbPath)

	a, err := audit.Open(dbPath, logger)
	if err != nil {
		statusErr(stderr, "%v", err)
		return fail(ExitError, err)
	}
	defer a.Close()

	ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	stats, err := a.Scan(ctx)
	if err != nil {
		return fail(ExitError, err)
	}
	audit.Render(stdout, stats)

	if stats.Damaged() {
		return fail(ExitThresholdFailed, errors.New("audit found damaged rows"))
	}
	return nil
}
