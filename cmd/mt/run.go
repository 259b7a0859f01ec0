package main

import (
	"encoding/json"
	"errors"
	"fmt"
	"os"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/daviddao/mailtriage/internal/audit"
	"github.com/daviddao/mailtriage/internal/audit/pgsink"
	"github.com/daviddao/mailtriage/internal/auth"
	"github.com/daviddao/mailtriage/internal/config"
	"github.com/daviddao/mailtriage/internal/db"
	"github.com/daviddao/mailtriage/internal/display"
	"github.com/daviddao/mailtriage/internal/gmail"
	"github.com/daviddao/mailtriage/internal/llm"
	"github.com/daviddao/mailtriage/internal/llm/claude"
	"github.com/daviddao/mailtriage/internal/llm/ollama"
	"github.com/daviddao/mailtriage/internal/policy"
	"github.com/daviddao/mailtriage/internal/runner"
	"github.com/daviddao/mailtriage/internal/triage"
	"github.com/daviddao/mailtriage/internal/types"
)

var (
	runFetch              int64
	runSinceDays          int
	runDryRun             bool
	runApply              bool
	runModel              string
	runProvider           string
	runMaxBodyChars       int
	runLabelPrefix        string
	runVIPSenders         string
	runArchiveNewsletters bool
	runArchiveSpam        bool
	runMaxRetries         int
	runFailFast           bool
	runAuditLog           string
	runAuditDB            string
	runAuditDatabaseURL   string
	runMetricsFile        string
	runCredentials        string
	runToken              string
)

var errEmailsFailed = errors.New("some emails could not be triaged")

var runCmd = &cobra.Command{
	Use:   "run",
	Short: "Triage recent emails",
	Long: `Fetch recent Gmail messages, classify each with the configured model,
apply business rules and report the decisions.

Dry-run is the default: nothing in the mailbox changes and only the
gmail.readonly scope is requested. Pass --apply to label, star and archive
(requests gmail.modify). --dry-run always wins over --apply.

Every email is appended to the audit log. Emails the model cannot triage
are recorded as failed and the run continues unless --fail-fast is set.`,
	RunE: func(cmd *cobra.Command, args []string) error {
		if err := checkFetch(runFetch); err != nil {
			return err
		}
		applyRunFlags(cmd)
		if err := cfg.Validate(); err != nil {
			return fmt.Errorf("invalid configuration:\n%w", err)
		}

		mode := types.ModeDryRun
		if runApply && !runDryRun {
			mode = types.ModeApply
		}
		ctx := cmd.Context()

		gw, err := newGateway(cfg)
		if err != nil {
			return err
		}

		svc, err := auth.LoadGmailService(ctx, auth.Options{
			CredentialsPath: cfg.CredentialsPath,
			TokenPath:       cfg.TokenPath,
			Mode:            mode,
			In:              os.Stdin,
			Out:             cmd.ErrOrStderr(),
			Logger:          logger,
		})
		if err != nil {
			return fmt.Errorf("gmail auth: %w", err)
		}
		mailbox := gmail.NewClient(svc)

		sink, auditPath, err := openSinks(cmd, cfg)
		if err != nil {
			return err
		}
		defer func() {
			if err := sink.Close(); err != nil {
				logger.Warn("close audit sinks", zap.Error(err))
			}
		}()

		reg := prometheus.NewRegistry()
		metrics := triage.NewMetrics(reg)

		opts := triage.DefaultOptions(cfg.Model, cfg.LabelPrefix)
		opts.MaxRetries = cfg.MaxRetries
		client := triage.NewClient(gw, opts, logger, metrics.Hooks())

		engine := policy.NewEngine(policy.NewConfig(cfg.LabelPrefix, cfg.VIPSenders, cfg.ArchiveNewsletters, cfg.ArchiveSpam))

		out := cmd.OutOrStdout()
		if jsonOutput || quietFlag {
			out = nil
		}
		var exec runner.Executor
		if mode == types.ModeApply {
			exec = mailbox
		}
		r, err := runner.New(runner.Deps{
			Source:   mailbox,
			Executor: exec,
			Triager:  client,
			Policy:   engine,
			Sink:     sink,
			Recorder: metrics,
			Out:      out,
			Logger:   logger,
		}, runner.Options{
			Mode:         mode,
			Model:        cfg.Model,
			Fetch:        runFetch,
			SinceDays:    runSinceDays,
			MaxBodyChars: cfg.MaxBodyChars,
			FailFast:     runFailFast,
			AuditPath:    auditPath,
		})
		if err != nil {
			return err
		}

		sum, runErr := r.Run(ctx)

		if cfg.MetricsFile != "" {
			if err := prometheus.WriteToTextfile(cfg.MetricsFile, reg); err != nil {
				logger.Warn("write metrics file", zap.Error(err))
			}
		}

		if jsonOutput {
			enc := json.NewEncoder(cmd.OutOrStdout())
			enc.SetIndent("", "  ")
			if err := enc.Encode(sum); err != nil {
				return err
			}
		} else if !quietFlag {
			display.Summary(cmd.OutOrStdout(), sum)
		}

		if runErr != nil {
			return runErr
		}
		if sum.Failed > 0 {
			return fmt.Errorf("%w: %d of %d", errEmailsFailed, sum.Failed, sum.Fetched)
		}
		return nil
	},
}

func checkFetch(n int64) error {
	if n < 1 {
		return fmt.Errorf("--fetch must be at least 1, got %d", n)
	}
	return nil
}

// applyRunFlags layers explicitly set flags over the loaded configuration.
func applyRunFlags(cmd *cobra.Command) {
	f := cmd.Flags()
	if f.Changed("model") {
		cfg.Model = runModel
	}
	if f.Changed("provider") {
		cfg.Provider = runProvider
	}
	if f.Changed("max-body-chars") {
		cfg.MaxBodyChars = runMaxBodyChars
	}
	if f.Changed("label-prefix") {
		cfg.LabelPrefix = runLabelPrefix
	}
	if f.Changed("vip-senders") {
		cfg.VIPSenders = policy.ParseSenders(runVIPSenders)
	}
	if f.Changed("archive-newsletters") {
		cfg.ArchiveNewsletters = runArchiveNewsletters
	}
	if f.Changed("archive-spam") {
		cfg.ArchiveSpam = runArchiveSpam
	}
	if f.Changed("max-retries") {
		cfg.MaxRetries = runMaxRetries
	}
	if f.Changed("audit-log") {
		cfg.LogPath = runAuditLog
	}
	if f.Changed("audit-db") {
		cfg.AuditDB = runAuditDB
	}
	if f.Changed("audit-database-url") {
		cfg.DatabaseURL = runAuditDatabaseURL
	}
	if f.Changed("metrics-file") {
		cfg.MetricsFile = runMetricsFile
	}
	if f.Changed("credentials") {
		cfg.CredentialsPath = runCredentials
	}
	if f.Changed("token") {
		cfg.TokenPath = runToken
	}
}

func newGateway(c config.Config) (llm.Gateway, error) {
	switch c.Provider {
	case config.ProviderOllama:
		return ollama.New(c.OllamaBaseURL), nil
	case config.ProviderClaude:
		return claude.New(c.AnthropicAPIKey), nil
	default:
		return nil, fmt.Errorf("unknown provider %q", c.Provider)
	}
}

// openSinks opens every configured audit sink. The returned path is the
// JSONL log, if any, for the run summary.
func openSinks(cmd *cobra.Command, c config.Config) (audit.Sink, string, error) {
	var sinks audit.Multi
	fail := func(err error) (audit.Sink, string, error) {
		_ = sinks.Close()
		return nil, "", err
	}

	if c.LogPath != "" {
		j, err := audit.OpenJSONL(c.LogPath)
		if err != nil {
			return fail(err)
		}
		sinks = append(sinks, j)
	}
	if c.AuditDB != "" {
		store, err := db.Open(c.AuditDB)
		if err != nil {
			return fail(fmt.Errorf("open audit database: %w", err))
		}
		sinks = append(sinks, store)
	}
	if c.DatabaseURL != "" {
		pg, err := pgsink.New(cmd.Context(), c.DatabaseURL)
		if err != nil {
			return fail(fmt.Errorf("connect audit postgres: %w", err))
		}
		sinks = append(sinks, pg)
	}
	return sinks, c.LogPath, nil
}

func init() {
	f := runCmd.Flags()
	f.Int64Var(&runFetch, "fetch", 20, "Number of emails to fetch")
	f.IntVar(&runSinceDays, "since-days", 7, "Fetch emails newer than N days")
	f.BoolVar(&runDryRun, "dry-run", false, "Dry-run mode (safe, no changes)")
	f.BoolVar(&runApply, "apply", false, "Apply label/star/archive actions (requires gmail.modify)")
	f.StringVar(&runModel, "model", "", "Model name (default from config: llama3.1)")
	f.StringVar(&runProvider, "provider", "", "Model provider: ollama or claude")
	f.IntVar(&runMaxBodyChars, "max-body-chars", 0, "Max body chars sent to the model (default from config: 2000)")
	f.StringVar(&runLabelPrefix, "label-prefix", "", "Gmail label prefix (default from config: AI/)")
	f.StringVar(&runVIPSenders, "vip-senders", "", "Comma-separated VIP sender emails (force High priority)")
	f.BoolVar(&runArchiveNewsletters, "archive-newsletters", false, "Archive newsletters (low/medium priority)")
	f.BoolVar(&runArchiveSpam, "archive-spam", false, "Archive spam emails")
	f.IntVar(&runMaxRetries, "max-retries", triage.DefaultMaxRetries, "Retries after a failed model attempt")
	f.BoolVar(&runFailFast, "fail-fast", false, "Stop at the first email that cannot be triaged")
	f.StringVar(&runAuditLog, "audit-log", "", "JSONL audit log path (default from config: data/triage_runs.jsonl)")
	f.StringVar(&runAuditDB, "audit-db", "", "Also record audit entries in this SQLite database")
	f.StringVar(&runAuditDatabaseURL, "audit-database-url", "", "Also record audit entries in this PostgreSQL database")
	f.StringVar(&runMetricsFile, "metrics-file", "", "Write Prometheus metrics to this textfile after the run")
	f.StringVar(&runCredentials, "credentials", "", "OAuth client secrets file (default: secrets/client_secret.json)")
	f.StringVar(&runToken, "token", "", "OAuth token file (default: token.json)")

	rootCmd.AddCommand(runCmd)
}
