package app

import (
	"crypto/rand"
	"encoding/hex"
	"fmt"
	"io"
	"os"
	"strings"
	"time"

	"github.com/spf13/cobra"

	"github.com/ggonzalez94/lingo-wallet/internal/config"
	clierr "github.com/ggonzalez94/lingo-wallet/internal/errors"
	"github.com/ggonzalez94/lingo-wallet/internal/model"
	"github.com/ggonzalez94/lingo-wallet/internal/out"
	"github.com/ggonzalez94/lingo-wallet/internal/policy"
	"github.com/ggonzalez94/lingo-wallet/internal/version"
)

type Runner struct {
	stdout io.Writer
	stderr io.Writer
	now    func() time.Time
}

func NewRunner() *Runner {
	return NewRunnerWithWriters(os.Stdout, os.Stderr)
}

func NewRunnerWithWriters(stdout, stderr io.Writer) *Runner {
	return &Runner{
		stdout: stdout,
		stderr: stderr,
		now:    time.Now,
	}
}

type runtimeState struct {
	runner      *Runner
	flags       config.GlobalFlags
	settings    config.Settings
	selectRaw   string
	resultsOnly bool
	privateKey  string
	root        *cobra.Command
	lastCommand string

	// deps is built on first use so version and schema never touch the
	// store or the network.
	deps *deps
	// build replaces buildDeps in tests.
	build func(*runtimeState) (*deps, error)

	lastWarnings  []string
	lastProviders []model.ProviderStatus
}

func (r *Runner) Run(args []string) int {
	return r.run(args, nil)
}

func (r *Runner) run(args []string, build func(*runtimeState) (*deps, error)) int {
	state := &runtimeState{runner: r, build: build}
	if state.build == nil {
		state.build = buildDeps
	}
	root := state.newRootCommand()
	state.root = root
	root.SetArgs(args)
	root.SetOut(r.stdout)
	root.SetErr(r.stderr)
	root.SilenceUsage = true
	root.SilenceErrors = true

	err := root.Execute()
	err = normalizeRunError(err)
	state.close()
	if err == nil {
		return 0
	}
	state.renderError("", err)
	return clierr.ExitCode(err)
}

func (s *runtimeState) newRootCommand() *cobra.Command {
	cmd := &cobra.Command{
		Use:   version.CLIName,
		Short: "Multilingual wallet assistant: parse, plan, claim and settle transfers",
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
			if cmd.Name() == "help" {
				return nil
			}
			settings, err := config.Load(s.flags)
			if err != nil {
				return clierr.Wrap(clierr.CodeUsage, "load configuration", err)
			}
			s.settings = settings

			path := trimRootPath(cmd.CommandPath())
			s.lastCommand = path
			return policy.CheckCommandAllowed(settings.EnableCommands, path)
		},
	}
	cmd.SetFlagErrorFunc(func(_ *cobra.Command, err error) error {
		return clierr.Wrap(clierr.CodeUsage, "parse flags", err)
	})

	pf := cmd.PersistentFlags()
	pf.BoolVar(&s.flags.JSON, "json", false, "Output JSON (default)")
	pf.BoolVar(&s.flags.Plain, "plain", false, "Output plain text")
	pf.StringVar(&s.selectRaw, "select", "", "Select fields from data (comma-separated)")
	pf.BoolVar(&s.resultsOnly, "results-only", false, "Output only data payload")
	pf.StringVar(&s.flags.EnableCommands, "enable-commands", "", "Allowlist command paths (comma-separated)")
	pf.StringVar(&s.flags.Timeout, "timeout", "", "Provider request timeout")
	pf.IntVar(&s.flags.Retries, "retries", -1, "Retries per provider request")
	pf.BoolVar(&s.flags.NoCache, "no-cache", false, "Disable the translation cache")
	pf.StringVar(&s.flags.ConfigPath, "config", "", "Path to config file")
	pf.StringVar(&s.flags.EnvFile, "env-file", "", "Path to a .env file (default ./.env when present)")
	pf.StringVar(&s.flags.StoreDriver, "store-driver", "", "Store driver (sqlite|postgres)")
	pf.StringVar(&s.flags.StoreDSN, "store-dsn", "", "Store DSN or sqlite path")
	pf.StringVar(&s.flags.LogLevel, "log-level", "", "Log level (debug|info|warn|error)")
	pf.StringVar(&s.flags.LogFormat, "log-format", "", "Log format (text|json)")
	pf.StringVar(&s.flags.KeySource, "key-source", "", "Signing key source (auto|env|file|keystore)")
	pf.StringVar(&s.privateKey, "private-key", "", "User signing key as hex, overrides every other key source")

	cmd.AddCommand(newVersionCommand())
	cmd.AddCommand(s.newSchemaCommand())
	cmd.AddCommand(s.newParseCommand())
	cmd.AddCommand(s.newResolveCommand())
	cmd.AddCommand(s.newLinkCommand())
	cmd.AddCommand(s.newClaimsCommand())
	cmd.AddCommand(s.newPlanCommand())
	cmd.AddCommand(s.newExecuteCommand())
	cmd.AddCommand(s.newCancelCommand())
	cmd.AddCommand(s.newMessageCommand())
	cmd.AddCommand(s.newHistoryCommand())
	cmd.AddCommand(s.newReconcileCommand())
	cmd.AddCommand(s.newBalanceCommand())
	cmd.AddCommand(s.newTranslateCommand())
	cmd.AddCommand(s.newServeCommand())
	cmd.AddCommand(s.newTokenCommand())
	return cmd
}

func (s *runtimeState) outputOptions() out.Options {
	mode := s.settings.OutputMode
	if mode == "" {
		mode = out.ModeJSON
	}
	return out.Options{Mode: mode, Fields: out.ParseFields(s.selectRaw), ResultsOnly: s.resultsOnly}
}

func (s *runtimeState) emitSuccess(data any, warnings []string, providers []model.ProviderStatus) error {
	env := model.Envelope{
		Version:  model.EnvelopeVersion,
		Success:  true,
		Data:     data,
		Error:    nil,
		Warnings: warnings,
		Meta: model.EnvelopeMeta{
			RequestID: newRequestID(),
			Timestamp: s.runner.now().UTC(),
			Command:   s.lastCommand,
			Providers: providers,
		},
	}
	return out.Render(s.runner.stdout, env, s.outputOptions())
}

// emit is emitSuccess for commands with nothing to report beyond data.
func (s *runtimeState) emit(data any) error {
	return s.emitSuccess(data, nil, nil)
}

func (s *runtimeState) renderError(commandPath string, err error) {
	if strings.TrimSpace(commandPath) == "" {
		commandPath = s.lastCommand
		if commandPath == "" {
			commandPath = version.CLIName
		}
	}
	code := clierr.ExitCode(err)
	typ := clierr.TypeName(clierr.CodeInternal)
	message := err.Error()
	if cErr, ok := clierr.As(err); ok {
		typ = clierr.TypeName(cErr.Code)
		message = cErr.Message
		if cErr.Cause != nil {
			message = fmt.Sprintf("%s: %v", cErr.Message, cErr.Cause)
		}
	}

	opts := s.outputOptions()
	opts.ResultsOnly = false
	opts.Fields = nil
	env := model.Envelope{
		Version: model.EnvelopeVersion,
		Success: false,
		Data:    []any{},
		Error: &model.ErrorBody{
			Code:    code,
			Type:    typ,
			Message: message,
		},
		Warnings: s.lastWarnings,
		Meta: model.EnvelopeMeta{
			RequestID: newRequestID(),
			Timestamp: s.runner.now().UTC(),
			Command:   commandPath,
			Providers: s.lastProviders,
		},
	}
	_ = out.Render(s.runner.stderr, env, opts)
}

// trackProvider records a provider call for the envelope meta, including
// calls made by a command that later fails.
func (s *runtimeState) trackProvider(name string, started time.Time, err error) []model.ProviderStatus {
	s.lastProviders = append(s.lastProviders, model.ProviderStatus{
		Name:      name,
		Status:    statusFromErr(err),
		LatencyMS: s.runner.now().Sub(started).Milliseconds(),
	})
	return s.lastProviders
}

func (s *runtimeState) close() {
	if s.deps != nil {
		s.deps.Close()
		s.deps = nil
	}
}

func newRequestID() string {
	buf := make([]byte, 16)
	_, _ = rand.Read(buf)
	return hex.EncodeToString(buf)
}

func trimRootPath(path string) string {
	parts := strings.Fields(path)
	if len(parts) <= 1 {
		return path
	}
	return strings.Join(parts[1:], " ")
}

func statusFromErr(err error) string {
	if err == nil {
		return "ok"
	}
	if cErr, ok := clierr.As(err); ok {
		switch cErr.Code {
		case clierr.CodeAuth:
			return "auth_error"
		case clierr.CodeRateLimited:
			return "rate_limited"
		case clierr.CodeUnavailable, clierr.CodeQuoteUnavailable:
			return "unavailable"
		default:
			return "error"
		}
	}
	return "error"
}

func normalizeRunError(err error) error {
	if err == nil {
		return nil
	}
	if _, ok := clierr.As(err); ok {
		return err
	}
	if isLikelyUsageError(err) {
		return clierr.Wrap(clierr.CodeUsage, "invalid command input", err)
	}
	return clierr.Wrap(clierr.CodeInternal, "execute command", err)
}

func isLikelyUsageError(err error) bool {
	if err == nil {
		return false
	}
	msg := strings.ToLower(strings.TrimSpace(err.Error()))
	patterns := []string{
		"unknown command",
		"unknown flag",
		"required flag(s)",
		"flag needs an argument",
		"requires at least",
		"requires exactly",
		"accepts ",
		"invalid argument",
		"invalid args",
	}
	for _, p := range patterns {
		if strings.Contains(msg, p) {
			return true
		}
	}
	return false
}
