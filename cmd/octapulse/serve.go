package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"octapulse/internal/config"
	"octapulse/internal/logging"
	"octapulse/internal/store"
	"octapulse/internal/testserver"
)

type serveOptions struct {
	addr    string
	secret  string
	db      string
	verbose bool
}

func newServeCmd() *cobra.Command {
	var opts serveOptions
	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Run a stand-in avatar service to benchmark against",
		RunE: func(cmd *cobra.Command, _ []string) error {
			return serve(cmd, &opts)
		},
	}
	f := cmd.Flags()
	f.StringVar(&opts.addr, "addr", "localhost:9980", "address to listen on")
	f.StringVar(&opts.secret, "secret", "", "upload secret (default $"+config.SecretEnv+" or \"secret\")")
	f.StringVar(&opts.db, "db", "", "persist uploads in this SQLite database instead of memory")
	f.BoolVarP(&opts.verbose, "verbose", "v", false, "log every request")
	return cmd
}

func serve(cmd *cobra.Command, opts *serveOptions) error {
	stdout := cmd.OutOrStdout()

	level := "info"
	if opts.verbose {
		level = "debug"
	}
	logger, err := logging.New(logging.Options{Level: level, Color: true}, cmd.ErrOrStderr())
	if err != nil {
		return fail(ExitError, err)
	}
	defer func() { _ = logger.Sync() }()

	secret := opts.secret
	if secret == "" {
		secret = os.Getenv(config.SecretEnv)
	}
	if secret == "" {
		secret = "secret"
		statusWarn(stdout, "Using the default upload secret %q", secret)
	}

	srvOpts := []testserver.Option{testserver.WithLogger(logger)}
	if opts.db != "" {
		st, err := store.Open(opts.db)
		if err != nil {
			return fail(ExitError, err)
		}
		defer st.Close()
		srvOpts = append(srvOpts, testserver.WithStore(st))
	}
	target := testserver.NewServer(secret, srvOpts...)

	srv := &http.Server{
		Addr:              opts.addr,
		Handler:           target.Handler(),
		ReadHeaderTimeout: 10 * time.Second,
	}

	fmt.Fprintln(stdout, cTitle("Octapulse Test Server"))
	fmt.Fprintf(stdout, "Listening on http://%s\n\n", opts.addr)
	fmt.Fprintln(stdout, "Endpoints:")
	fmt.Fprintln(stdout, "  GET  /                 - Health check")
	fmt.Fprintln(stdout, "  GET  /avatar/{seed}    - Deterministic JPEG (?size=64)")
	fmt.Fprintln(stdout, "  POST /upload           - Multipart avatar upload (X-Secret-Key)")
	fmt.Fprintln(stdout, "  GET  /stats            - Request counters")
	fmt.Fprintln(stdout, "  GET  /status/{code}    - Return specific status code")
	fmt.Fprintln(stdout, "  GET  /delay/{ms}       - Delay response by milliseconds")
	fmt.Fprintln(stdout, "  GET  /fail-rate        - Fail percentage of requests (?rate=10)")
	fmt.Fprintln(stdout)

	ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	errCh := make(chan error, 1)
	go func() { errCh <- srv.ListenAndServe() }()

	select {
	case err := <-errCh:
		return fail(ExitError, fmt.Errorf("listen: %w", err))
	case <-ctx.Done():
	}

	fmt.Fprintln(stdout, "\nShutting down...")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		return fail(ExitError, err)
	}
	if err := <-errCh; err != nil && !errors.Is(err, http.ErrServerClosed) {
		return fail(ExitError, err)
	}

	c := target.Counters()
	logger.Info("server stopped",
		zap.Int64("reads", c.Reads),
		zap.Int64("created", c.Created),
		zap.Int64("updated", c.Updated),
		zap.Int64("denied", c.Denied))
	return nil
}
