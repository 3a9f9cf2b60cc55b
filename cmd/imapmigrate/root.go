package main

import (
	"context"
	"fmt"
	"io"
	"time"

	"github.com/google/uuid"
	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/tastythames/imap-migrator/internal/config"
	"github.com/tastythames/imap-migrator/internal/inventory"
	"github.com/tastythames/imap-migrator/internal/logging"
	"github.com/tastythames/imap-migrator/internal/metrics"
	"github.com/tastythames/imap-migrator/internal/migrator"
	"github.com/tastythames/imap-migrator/internal/report"
	"github.com/tastythames/imap-migrator/internal/scheduler"
	"github.com/tastythames/imap-migrator/internal/sshclient"
)

type flags struct {
	configPath  string
	csvPath     string
	oldHost     string
	newHost     string
	concurrency int
	noHeader    bool
	logLevel    string
	logFormat   string
	metricsFile string
	imapsync    string
	timeout     time.Duration
	remoteHost  string
	remoteUser  string
	knownHosts  string
}

func newRootCmd() *cobra.Command {
	var f flags

	cmd := &cobra.Command{
		Use:           "imapmigrate",
		Short:         "Migrate IMAP mailboxes in bulk with imapsync",
		Long:          "Reads old_email,old_password,new_email,new_password records from a CSV file and runs one imapsync per mailbox, a bounded number at a time.",
		Args:          cobra.NoArgs,
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, _ []string) error {
			cfg, err := config.Load(f.configPath)
			if err != nil {
				return err
			}
			f.apply(cmd, cfg)
			if err := cfg.Validate(); err != nil {
				return fmt.Errorf("invalid configuration: %w", err)
			}

			_, err = run(cmd.Context(), cfg, cmd.OutOrStdout(), cmd.ErrOrStderr())
			return err
		},
	}

	fs := cmd.Flags()
	fs.StringVar(&f.configPath, "config", "", "YAML configuration file")
	fs.StringVarP(&f.csvPath, "csv-file-path", "c", "", "Specify the path to the CSV file containing email credentials.")
	fs.StringVarP(&f.oldHost, "old-host", "o", "", "The hostname or IP address of the old email server.")
	fs.StringVarP(&f.newHost, "new-host", "n", "", "The hostname or IP address of the new email server.")
	fs.IntVarP(&f.concurrency, "concurrency", "j", 0, "Maximum simultaneous migrations (default: CPUs/4, at least 1)")
	fs.BoolVar(&f.noHeader, "no-header", false, "The CSV file has no header row")
	fs.StringVar(&f.logLevel, "log-level", "info", "Log level: debug, info, warn, error")
	fs.StringVar(&f.logFormat, "log-format", "console", "Log format: console or json")
	fs.StringVar(&f.metricsFile, "metrics-file", "", "Write run totals to this Prometheus textfile")
	fs.StringVar(&f.imapsync, "imapsync", "imapsync", "imapsync program to run")
	fs.DurationVar(&f.timeout, "timeout", 0, "Per-mailbox time limit (0 for none)")
	fs.StringVar(&f.remoteHost, "remote-host", "", "Run imapsync on this host over SSH")
	fs.StringVar(&f.remoteUser, "remote-user", "root", "SSH user on the remote host")
	fs.StringVar(&f.knownHosts, "known-hosts", "", "Verify the remote host key against this known_hosts file")

	return cmd
}

// apply overlays the flags the user actually set.
func (f *flags) apply(cmd *cobra.Command, cfg *config.Config) {
	changed := cmd.Flags().Changed
	if changed("csv-file-path") {
		cfg.RecordSourcePath = f.csvPath
	}
	if changed("old-host") {
		cfg.SourceHost = f.oldHost
	}
	if changed("new-host") {
		cfg.DestHost = f.newHost
	}
	if changed("concurrency") {
		cfg.MaxConcurrency = f.concurrency
	}
	if changed("no-header") {
		cfg.HasHeader = !f.noHeader
	}
	if changed("log-level") {
		cfg.LogLevel = f.logLevel
	}
	if changed("log-format") {
		cfg.LogFormat = f.logFormat
	}
	if changed("metrics-file") {
		cfg.MetricsFile = f.metricsFile
	}
	if changed("imapsync") {
		cfg.Imapsync.Binary = f.imapsync
	}
	if changed("timeout") {
		cfg.Imapsync.Timeout = f.timeout
	}
	if changed("remote-host") {
		cfg.Remote.Host = f.remoteHost
	}
	if changed("remote-user") {
		cfg.Remote.User = f.remoteUser
	}
	if changed("known-hosts") {
		cfg.Remote.KnownHosts = f.knownHosts
	}
}

// run executes one batch. Only an unreadable record source is an error;
// per-mailbox failures end up in the Summary.
func run(ctx context.Context, cfg *config.Config, stdout, stderr io.Writer) (report.Summary, error) {
	log, err := logging.New(stderr, cfg.LogLevel, cfg.LogFormat)
	if err != nil {
		return report.Summary{}, err
	}
	runID := uuid.NewString()
	log = log.With(zap.String("run_id", runID))
	defer func() { _ = log.Sync() }()

	inv, err := inventory.Load(cfg.RecordSourcePath, inventory.Options{
		SourceHost: cfg.SourceHost,
		DestHost:   cfg.DestHost,
		HasHeader:  cfg.HasHeader,
		OnSkip: func(s inventory.SkippedRecord) {
			log.Warn("skipping record",
				zap.Int("line", s.Line),
				zap.Strings("record", s.Record),
				zap.String("reason", s.Reason),
			)
		},
	})
	if err != nil {
		return report.Summary{}, fmt.Errorf("load %s: %w", cfg.RecordSourcePath, err)
	}

	var runner migrator.Runner = migrator.LocalRunner{}
	if cfg.Remote.Enabled() {
		runner = &migrator.SSHRunner{
			Client: sshclient.New(sshclient.Config{
				Port:       cfg.Remote.Port,
				Timeout:    cfg.Remote.Timeout,
				KnownHosts: cfg.Remote.KnownHosts,
			}),
			Host:     cfg.Remote.Host,
			User:     cfg.Remote.User,
			Password: cfg.Remote.Password(),
		}
	}

	exec := migrator.New(migrator.Options{
		Binary:  cfg.Imapsync.Binary,
		Flags:   cfg.Imapsync.Flags,
		Timeout: cfg.Imapsync.Timeout,
		Runner:  runner,
		Logger:  log,
	})
	sched := scheduler.NewScheduler(scheduler.Options{
		MaxConcurrency: cfg.Concurrency(),
		Executor:       exec,
		Logger:         log,
	})

	log.Info("starting migration",
		zap.String("source_host", cfg.SourceHost),
		zap.String("dest_host", cfg.DestHost),
		zap.Int("jobs", len(inv.Jobs)),
		zap.Int("skipped", len(inv.Skipped)),
		zap.Int("max_concurrency", sched.MaxConcurrency()),
		zap.String("remote_host", cfg.Remote.Host),
	)

	started := time.Now()
	summary := report.Consume(log, inv.Skipped, sched.Dispatch(ctx, inv.Jobs))

	if cfg.MetricsFile != "" {
		r := metrics.NewRenderer(summary, metrics.Run{
			ID:             runID,
			StartedAt:      started,
			FinishedAt:     time.Now(),
			MaxConcurrency: sched.MaxConcurrency(),
		})
		if err := r.WriteFile(cfg.MetricsFile); err != nil {
			log.Warn("metrics not written", zap.Error(err))
		}
	}

	fmt.Fprintln(stdout, "Migration complete.")
	return summary, nil
}
