package app

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/spf13/cobra"
	"golang.org/x/sync/errgroup"

	clierr "github.com/ggonzalez94/lingo-wallet/internal/errors"
	"github.com/ggonzalez94/lingo-wallet/internal/schema"
	"github.com/ggonzalez94/lingo-wallet/internal/server"
	"github.com/ggonzalez94/lingo-wallet/internal/version"
)

func newVersionCommand() *cobra.Command {
	var long bool
	cmd := &cobra.Command{
		Use:   "version",
		Short: "Print CLI version",
		Run: func(cmd *cobra.Command, args []string) {
			if long {
				_, _ = fmt.Fprintln(cmd.OutOrStdout(), version.Long())
				return
			}
			_, _ = fmt.Fprintln(cmd.OutOrStdout(), version.CLIVersion)
		},
	}
	cmd.Flags().BoolVar(&long, "long", false, "Print extended build metadata")
	return cmd
}

func (s *runtimeState) newSchemaCommand() *cobra.Command {
	return &cobra.Command{
		Use:   "schema [command path]",
		Short: "Print machine-readable command schema",
		Args:  cobra.ArbitraryArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			data, err := schema.Build(s.root, strings.Join(args, " "))
			if err != nil {
				return clierr.Wrap(clierr.CodeUsage, "build schema", err)
			}
			return s.emit(data)
		},
	}
}

func (s *runtimeState) newServeCommand() *cobra.Command {
	var addr string
	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Serve the HTTP API with background reconciliation",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			d, err := s.services()
			if err != nil {
				return err
			}
			if addr == "" {
				addr = s.settings.HTTPAddr
			}
			srv := server.New(server.Deps{
				Pipeline:   d.pipeline,
				History:    d.history,
				Translator: d.translator,
				Bridge:     d.routing,
				Store:      d.store,
				JWTSecret:  s.settings.JWTSecret,
				Log:        d.log,
			})
			if s.settings.JWTSecret == "" {
				d.log.Warn("no jwt secret configured, the api accepts unauthenticated requests")
			}

			ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
			defer stop()
			g, ctx := errgroup.WithContext(ctx)
			g.Go(func() error {
				if err := srv.Run(ctx, addr); err != nil {
					return clierr.Wrap(clierr.CodeUnavailable, "http server", err)
				}
				// A clean shutdown stops the background loops too.
				stop()
				return nil
			})
			g.Go(func() error {
				return d.reconciler.Run(ctx, s.settings.ReconcileInterval)
			})
			g.Go(func() error {
				purgeLoop(ctx, s.settings.PlanTTL, func(ctx context.Context) {
					if _, err := d.pipeline.PurgeExpired(ctx); err != nil && ctx.Err() == nil {
						d.log.WithError(err).Warn("purge expired plans")
					}
				})
				return nil
			})
			return g.Wait()
		},
	}
	cmd.Flags().StringVar(&addr, "addr", "", "Listen address (default from config, :8080)")
	return cmd
}

// purgeLoop runs fn every ttl/2, with a one minute floor, until ctx ends.
func purgeLoop(ctx context.Context, ttl time.Duration, fn func(context.Context)) {
	every := ttl / 2
	if every < time.Minute {
		every = time.Minute
	}
	ticker := time.NewTicker(every)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			fn(ctx)
		}
	}
}

func (s *runtimeState) newTokenCommand() *cobra.Command {
	var ttl time.Duration
	cmd := &cobra.Command{
		Use:   "token <wallet>",
		Short: "Issue an API bearer token for a wallet",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			if s.settings.JWTSecret == "" {
				return clierr.New(clierr.CodeUsage, "no jwt secret configured (set server.jwt_secret or LINGO_JWT_SECRET)")
			}
			if ttl <= 0 {
				return clierr.New(clierr.CodeUsage, "--ttl must be positive")
			}
			wallet := strings.TrimSpace(args[0])
			tok, err := server.IssueToken([]byte(s.settings.JWTSecret), wallet, ttl)
			if err != nil {
				return clierr.Wrap(clierr.CodeInternal, "sign token", err)
			}
			return s.emit(map[string]any{
				"token":      tok,
				"wallet":     wallet,
				"expires_at": s.runner.now().Add(ttl).UTC(),
			})
		},
	}
	cmd.Flags().DurationVar(&ttl, "ttl", 24*time.Hour, "Token lifetime")
	return cmd
}
