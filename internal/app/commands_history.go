package app

import (
	"strings"

	"github.com/spf13/cobra"

	clierr "github.com/ggonzalez94/lingo-wallet/internal/errors"
	"github.com/ggonzalez94/lingo-wallet/internal/history"
)

func (s *runtimeState) newHistoryCommand() *cobra.Command {
	root := &cobra.Command{Use: "history", Short: "Transaction history"}

	var wallet, typ, status, chain string
	var limit, offset int
	list := &cobra.Command{
		Use:   "list",
		Short: "List transactions, newest first",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			d, err := s.services()
			if err != nil {
				return err
			}
			f := history.Filter{Wallet: wallet, Chain: chain, Limit: limit, Offset: offset}
			if typ != "" {
				if f.Type, err = history.ParseType(strings.ToLower(typ)); err != nil {
					return clierr.Wrap(clierr.CodeUsage, "parse --type", err)
				}
			}
			if status != "" {
				if f.Status, err = history.ParseStatus(strings.ToLower(status)); err != nil {
					return clierr.Wrap(clierr.CodeUsage, "parse --status", err)
				}
			}
			page, err := d.history.List(cmd.Context(), f)
			if err != nil {
				return err
			}
			return s.emit(page)
		},
	}
	list.Flags().StringVar(&wallet, "wallet", "", "Wallet address")
	list.Flags().StringVar(&typ, "type", "", "Filter by type (send|receive|swap|bridge|claim)")
	list.Flags().StringVar(&status, "status", "", "Filter by status (pending|confirmed|failed)")
	list.Flags().StringVar(&chain, "chain", "", "Filter by chain slug")
	list.Flags().IntVar(&limit, "limit", history.DefaultLimit, "Maximum records to return")
	list.Flags().IntVar(&offset, "offset", 0, "Records to skip")
	_ = list.MarkFlagRequired("wallet")

	get := &cobra.Command{
		Use:   "get <id>",
		Short: "Show one transaction by id or tx hash",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			d, err := s.services()
			if err != nil {
				return err
			}
			ref := strings.TrimSpace(args[0])
			var rec history.Record
			if strings.HasPrefix(ref, "0x") {
				rec, err = d.history.GetByHash(cmd.Context(), ref)
			} else {
				rec, err = d.history.Get(cmd.Context(), ref)
			}
			if err != nil {
				return err
			}
			return s.emit(rec)
		},
	}

	var statsWallet string
	stats := &cobra.Command{
		Use:   "stats",
		Short: "Summarize a wallet's activity",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			d, err := s.services()
			if err != nil {
				return err
			}
			st, err := d.history.Stats(cmd.Context(), statsWallet)
			if err != nil {
				return err
			}
			return s.emit(st)
		},
	}
	stats.Flags().StringVar(&statsWallet, "wallet", "", "Wallet address")
	_ = stats.MarkFlagRequired("wallet")

	var nextStatus, txHash, errMsg string
	update := &cobra.Command{
		Use:   "update <id>",
		Short: "Settle a pending transaction as confirmed or failed",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			d, err := s.services()
			if err != nil {
				return err
			}
			next, err := history.ParseStatus(strings.ToLower(nextStatus))
			if err != nil {
				return clierr.Wrap(clierr.CodeUsage, "parse --status", err)
			}
			rec, err := d.history.UpdateStatus(cmd.Context(), args[0], next, txHash, errMsg)
			if err != nil {
				return err
			}
			return s.emit(rec)
		},
	}
	update.Flags().StringVar(&nextStatus, "status", "", "New status (confirmed|failed)")
	update.Flags().StringVar(&txHash, "tx-hash", "", "Transaction hash")
	update.Flags().StringVar(&errMsg, "error", "", "Failure reason")
	_ = update.MarkFlagRequired("status")

	root.AddCommand(list, get, stats, update)
	return root
}

func (s *runtimeState) newReconcileCommand() *cobra.Command {
	return &cobra.Command{
		Use:   "reconcile",
		Short: "Settle pending transactions from chain receipts and purge expired plans",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			d, err := s.services()
			if err != nil {
				return err
			}
			sum, err := d.reconciler.RunOnce(cmd.Context())
			if err != nil {
				return err
			}
			purged, err := d.pipeline.PurgeExpired(cmd.Context())
			if err != nil {
				return err
			}
			var warnings []string
			if sum.Errors > 0 {
				warnings = append(warnings, "some receipts could not be fetched, run reconcile again")
			}
			return s.emitSuccess(map[string]any{
				"transactions":  sum,
				"plans_expired": purged,
			}, warnings, nil)
		},
	}
}
