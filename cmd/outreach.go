package cmd

import (
	"context"
	"fmt"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/JakeFAU/bidharvest/internal/config"
	"github.com/JakeFAU/bidharvest/internal/harvest"
	"github.com/JakeFAU/bidharvest/internal/outreach"
	"github.com/JakeFAU/bidharvest/internal/sink/memory"
	pubsubsink "github.com/JakeFAU/bidharvest/internal/sink/pubsub"
	"github.com/JakeFAU/bidharvest/internal/sink/webhook"
)

type outreachOptions struct {
	dryRun  bool
	mode    string
	domains []string
}

func newOutreachCmd() *cobra.Command {
	opts := &outreachOptions{}
	cmd := &cobra.Command{
		Use:   "outreach",
		Short: "Hand contacts that are due a message to the mail sender",
		Long: `Selects contacts that were never messaged or whose last message is at
least ten days old and have fewer than four sends, hands them to the
configured sink and records the send.`,
		RunE: withSession(func(cmd *cobra.Command, sess *session) error {
			return runOutreach(cmd, sess, opts)
		}),
	}
	cmd.Flags().BoolVar(&opts.dryRun, "dry-run", false, "list the selection without sending or recording it")
	cmd.Flags().StringVar(&opts.mode, "mode", "", "batch or single, overriding outreach.mode")
	cmd.Flags().StringSliceVar(&opts.domains, "domain", nil, "restrict to these domains, overriding outreach.domains")
	return cmd
}

// notifier is a harvest.Notifier that may hold resources.
type notifier interface {
	harvest.Notifier
	Stop()
}

type stopless struct{ harvest.Notifier }

func (stopless) Stop() {}

// openNotifier builds the configured sink. Tests replace it.
var openNotifier = func(ctx context.Context, cfg config.OutreachConfig, logger *zap.Logger) (notifier, error) {
	switch cfg.Sink {
	case config.SinkPubSub:
		return pubsubsink.Dial(ctx, pubsubsink.Config{
			ProjectID: cfg.PubSub.ProjectID,
			Topic:     cfg.PubSub.Topic,
		}, logger)
	default:
		s, err := webhook.New(webhook.Config{
			URL:     cfg.WebhookURL,
			Headers: cfg.WebhookHeaders,
		}, nil, logger)
		if err != nil {
			return nil, err
		}
		return stopless{s}, nil
	}
}

func runOutreach(cmd *cobra.Command, sess *session, opts *outreachOptions) error {
	ctx := cmd.Context()
	a := sess.app
	cfg := a.Config()
	logger := a.Logger()

	mode := harvest.PayloadKind(cfg.Outreach.Mode)
	if opts.mode != "" {
		mode = harvest.PayloadKind(opts.mode)
	}
	domains := cfg.Outreach.Domains
	if len(opts.domains) > 0 {
		domains = opts.domains
	}
	schedCfg := outreach.Config{Mode: mode, Domains: domains, MaxBatch: cfg.Outreach.MaxBatch}

	if opts.dryRun {
		sched := outreach.New(a.Contacts(), memory.New(), a.Clock(), schedCfg, logger)
		due := sched.Select(a.Clock().Now().UTC())
		fmt.Fprintf(cmd.OutOrStdout(), "%d contacts due (%s)\n", len(due), mode)
		for _, addr := range due {
			fmt.Fprintln(cmd.OutOrStdout(), addr)
		}
		return nil
	}

	if err := cfg.ValidateOutreach(); err != nil {
		return err
	}
	sink, err := openNotifier(ctx, cfg.Outreach, logger)
	if err != nil {
		return fmt.Errorf("init outreach sink: %w", err)
	}
	defer sink.Stop()

	res, err := outreach.New(a.Contacts(), sink, a.Clock(), schedCfg, logger).Run(ctx)
	if err != nil {
		return fmt.Errorf("run outreach: %w", err)
	}
	fmt.Fprintf(cmd.OutOrStdout(), "%d eligible, %d sent\n", res.Eligible, len(res.Sent))
	return nil
}
