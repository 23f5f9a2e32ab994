package cmd

import (
	"github.com/spf13/cobra"

	"github.com/JakeFAU/bidharvest/internal/report"
)

func newStatsCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "stats",
		Short: "Show bid and contact counts for today, this week and this month",
		Args:  cobra.NoArgs,
		RunE: withSession(func(cmd *cobra.Command, sess *session) error {
			a := sess.app
			s := report.Compute(
				a.Ledger().Entries(),
				a.Contacts().Records(),
				a.Contacts().DomainCounts(1),
				a.Clock().Now().Local(),
			)
			report.Render(cmd.OutOrStdout(), s)
			return nil
		}),
	}
}

func newDomainsCmd() *cobra.Command {
	var threshold int
	cmd := &cobra.Command{
		Use:   "domains",
		Short: "List contact domains with at least --threshold addresses",
		Args:  cobra.NoArgs,
		RunE: withSession(func(cmd *cobra.Command, sess *session) error {
			if !cmd.Flags().Changed("threshold") {
				threshold = sess.app.Config().Outreach.DomainThreshold
			}
			counts := sess.app.Contacts().DomainCounts(threshold)
			report.RenderDomains(cmd.OutOrStdout(), "Domains", counts)
			return nil
		}),
	}
	cmd.Flags().IntVarP(&threshold, "threshold", "t", 10, "minimum addresses per domain")
	return cmd
}
