package main

import (
	"fmt"
	"strings"

	"github.com/gagliardetto/solana-go"
	"github.com/spf13/cobra"

	"dexloan-indexer/internal/domain"
	"dexloan-indexer/internal/reconcile"
)

func (cli *CLI) reconcileCommand() *cobra.Command {
	var (
		owner     string
		kinds     []string
		skipsOnly bool
		sweepOnly bool
	)

	cmd := &cobra.Command{
		Use:   "reconcile",
		Short: "Replay skipped operations and refresh the mirror from canonical state",
		RunE: func(cmd *cobra.Command, args []string) error {
			if skipsOnly && sweepOnly {
				return fmt.Errorf("--skips-only and --sweep-only are exclusive")
			}
			opts, err := sweepOptions(owner, kinds)
			if err != nil {
				return err
			}

			ctx := cmd.Context()
			d, err := buildDeps(ctx, cli.config, cli.logger)
			if err != nil {
				return err
			}
			defer d.cleanup()

			r := d.reconciler(cli.config, cli.logger)
			var report *reconcile.Report
			switch {
			case skipsOnly:
				report, err = r.ReplaySkips(ctx)
			case sweepOnly:
				report, err = r.Sweep(ctx, opts)
			default:
				report, err = r.Run(ctx, opts)
			}
			if report != nil {
				printReport(cmd, report)
			}
			return err
		},
	}

	cmd.Flags().StringVar(&owner, "owner", "", "only refresh accounts owned by this wallet")
	cmd.Flags().StringSliceVar(&kinds, "kind", nil, "entity kinds to refresh (default all)")
	cmd.Flags().BoolVar(&skipsOnly, "skips-only", false, "only replay the skip journal")
	cmd.Flags().BoolVar(&sweepOnly, "sweep-only", false, "only refresh accounts")
	return cmd
}

func sweepOptions(owner string, kinds []string) (reconcile.SweepOptions, error) {
	var opts reconcile.SweepOptions
	if owner != "" {
		key, err := solana.PublicKeyFromBase58(owner)
		if err != nil {
			return opts, fmt.Errorf("--owner: %w", err)
		}
		opts.Owner = &key
	}
	for _, k := range kinds {
		kind := domain.EntityKind(strings.TrimSpace(k))
		if !kind.IsValid() {
			return opts, fmt.Errorf("--kind: unknown kind %q", k)
		}
		opts.Kinds = append(opts.Kinds, kind)
	}
	return opts, nil
}

func printReport(cmd *cobra.Command, report *reconcile.Report) {
	out := cmd.OutOrStdout()
	fmt.Fprintf(out, "skips replayed:  %d\n", report.SkipsReplayed)
	fmt.Fprintf(out, "skips resolved:  %d\n", report.SkipsResolved)
	fmt.Fprintf(out, "skips closed:    %d\n", report.SkipsClosed)
	for _, kind := range domain.AllKinds {
		if n, ok := report.Refreshed[kind]; ok {
			fmt.Fprintf(out, "refreshed %-15s %d\n", kind+":", n)
		}
	}
	fmt.Fprintf(out, "write failures:  %d\n", report.WriteFailures)
}
