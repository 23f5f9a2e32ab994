// Package cmd defines the bidharvest command line.
package cmd

import (
	"context"
	"errors"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/JakeFAU/bidharvest/internal/app"
	"github.com/JakeFAU/bidharvest/internal/config"
	"github.com/JakeFAU/bidharvest/internal/logging"
	"github.com/JakeFAU/bidharvest/internal/metrics"
	"github.com/JakeFAU/bidharvest/internal/telemetry"
)

type sessionKeyType string

const sessionKey sessionKeyType = "session"

// session is what PersistentPreRunE hands to subcommands.
type session struct {
	app           *app.App
	stopMetrics   context.CancelFunc
	metricsDone   chan struct{}
	stopTelemetry telemetry.Shutdown
}

func (s *session) close() {
	if s.stopMetrics != nil {
		s.stopMetrics()
		<-s.metricsDone
	}
	if s.stopTelemetry != nil {
		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		if err := s.stopTelemetry(ctx); err != nil {
			s.app.Logger().Warn("Failed to flush traces", zap.Error(err))
		}
		cancel()
	}
	s.app.Close()
	_ = s.app.Logger().Sync()
}

// newApp opens the shared state. Tests replace it to inject options.
var newApp = func(ctx context.Context, cfg config.Config, logger *zap.Logger) (*app.App, error) {
	return app.New(ctx, cfg, logger)
}

type rootOptions struct {
	configFile  string
	metricsAddr string
}

func newRootCmd() *cobra.Command {
	opts := &rootOptions{}
	cmd := &cobra.Command{
		Use:   "bidharvest",
		Short: "Harvests tender documents and contact addresses from a public procurement portal.",
		Long: `bidharvest walks a paginated tender listing, downloads each bid document
and the documents it links to, flags inspection-related tenders and records
every contact address it finds. Contacts are later handed to a mail sender
on a follow-up schedule.`,
		SilenceUsage: true,
		PersistentPreRunE: func(cmd *cobra.Command, _ []string) error {
			sess, err := openSession(cmd, opts)
			if err != nil {
				return err
			}
			cmd.SetContext(context.WithValue(cmd.Context(), sessionKey, sess))
			return nil
		},
	}

	cmd.PersistentFlags().StringVar(&opts.configFile, "config", "", "config file (YAML, JSON or TOML)")
	cmd.PersistentFlags().StringVar(&opts.metricsAddr, "metrics-addr", "", "serve /metrics and /healthz on this address")

	cmd.AddCommand(newCrawlCmd())
	cmd.AddCommand(newOutreachCmd())
	cmd.AddCommand(newStatsCmd())
	cmd.AddCommand(newDomainsCmd())
	return cmd
}

func openSession(cmd *cobra.Command, opts *rootOptions) (*session, error) {
	cfg, err := config.Load(opts.configFile)
	if err != nil {
		return nil, fmt.Errorf("load config: %w", err)
	}
	if cmd.Flags().Changed("metrics-addr") {
		cfg.Metrics.Addr = opts.metricsAddr
	}
	logger, err := logging.New(cfg.Logging.Development, cfg.Logging.Level)
	if err != nil {
		return nil, fmt.Errorf("init logger: %w", err)
	}

	a, err := newApp(cmd.Context(), cfg, logger)
	if err != nil {
		return nil, fmt.Errorf("failed to initialize application services: %w", err)
	}
	shutdown, err := telemetry.Init(cmd.Context(), telemetry.Config{
		Enabled:     cfg.Telemetry.Enabled,
		ServiceName: cfg.Telemetry.ServiceName,
		ProjectID:   cfg.Telemetry.ProjectID,
		SampleRatio: cfg.Telemetry.SampleRatio,
	}, logger)
	if err != nil {
		a.Close()
		return nil, fmt.Errorf("init telemetry: %w", err)
	}
	sess := &session{app: a, stopTelemetry: shutdown}

	if cfg.Metrics.Addr != "" {
		metrics.Init()
		ctx, cancel := context.WithCancel(cmd.Context())
		sess.stopMetrics = cancel
		sess.metricsDone = make(chan struct{})
		go func() {
			defer close(sess.metricsDone)
			if err := metrics.Serve(ctx, cfg.Metrics.Addr, logger); err != nil {
				logger.Error("Metrics server stopped", zap.Error(err))
			}
		}()
	}
	return sess, nil
}

func sessionFrom(ctx context.Context) (*session, error) {
	sess, ok := ctx.Value(sessionKey).(*session)
	if !ok || sess == nil {
		return nil, errors.New("application services not initialized")
	}
	return sess, nil
}

// withSession hands fn the session and releases it when fn returns, including
// on error, where cobra skips post-run hooks.
func withSession(fn func(cmd *cobra.Command, sess *session) error) func(*cobra.Command, []string) error {
	return func(cmd *cobra.Command, _ []string) error {
		sess, err := sessionFrom(cmd.Context())
		if err != nil {
			return err
		}
		defer sess.close()
		return fn(cmd, sess)
	}
}

// Execute runs the command line until it finishes or the process is signaled.
func Execute() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if err := newRootCmd().ExecuteContext(ctx); err != nil {
		stop()
		os.Exit(1)
	}
}
