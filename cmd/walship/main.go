// Package main is the entrypoint for the walship CLI.
package main

import (
	"errors"
	"fmt"
	"io"
	"os"
	"os/signal"
	"runtime"
	"syscall"
	"time"

	"github.com/MacJediWizard/walship/internal/backup"
	"github.com/MacJediWizard/walship/internal/config"
	"github.com/MacJediWizard/walship/internal/health"
	"github.com/MacJediWizard/walship/internal/logs"
	"github.com/MacJediWizard/walship/internal/metrics"
	"github.com/MacJediWizard/walship/internal/pipeline"
	"github.com/MacJediWizard/walship/internal/telemetry"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/rs/zerolog"
	"github.com/spf13/cobra"
)

// Build-time variables set via ldflags.
var (
	Version   = "dev"
	Commit    = "unknown"
	BuildDate = "unknown"
)

func main() {
	if err := newRootCmd().Execute(); err != nil {
		os.Exit(1)
	}
}

// globalOptions are flags shared by every subcommand.
type globalOptions struct {
	configPath  string
	logLevel    string
	logFormat   string
	metricsFile string
}

// runOptions are the flags of the backup subcommands.
type runOptions struct {
	collector      string
	password       string
	source         string
	dst            string
	filename       string
	index          string
	host           string
	zip            bool
	dbname         string
	verbose        bool
	baseBackupPath string
	writeTimeout   time.Duration
	connectTimeout time.Duration
}

func newRootCmd() *cobra.Command {
	var global globalOptions

	rootCmd := &cobra.Command{
		Use:   "walship",
		Short: "Back up PostgreSQL WAL segments and base backups, reporting every run",
		Long: `walship performs a single backup and always reports the outcome to a
log collector (for example a Logstash tcp input) as one JSON record.

Use 'walship wal' from archive_command and 'walship full' for base backups.`,
		SilenceUsage: true,
	}

	rootCmd.PersistentFlags().StringVar(&global.configPath, "config", "", "Config file (default: ~/.walship/config.yml)")
	rootCmd.PersistentFlags().StringVar(&global.logLevel, "log-level", "", "Log level: debug, info, warn, error")
	rootCmd.PersistentFlags().StringVar(&global.logFormat, "log-format", "", "Log format: console or json")
	rootCmd.PersistentFlags().StringVar(&global.metricsFile, "metrics-file", "", "Write run metrics to this Prometheus textfile")

	rootCmd.AddCommand(
		newVersionCmd(),
		newWalCmd(&global),
		newFullCmd(&global),
		newConfigCmd(&global),
	)

	return rootCmd
}

func newVersionCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "version",
		Short: "Print version information",
		Run: func(cmd *cobra.Command, args []string) {
			out := cmd.OutOrStdout()
			fmt.Fprintf(out, "walship %s\n", Version)
			fmt.Fprintf(out, "  Commit:     %s\n", Commit)
			fmt.Fprintf(out, "  Built:      %s\n", BuildDate)
			fmt.Fprintf(out, "  Go version: %s\n", runtime.Version())
			fmt.Fprintf(out, "  OS/Arch:    %s/%s\n", runtime.GOOS, runtime.GOARCH)
		},
	}
}

// addReportFlags registers the flags shared by wal and full.
func addReportFlags(cmd *cobra.Command, opts *runOptions) {
	cmd.Flags().StringVar(&opts.collector, "elk", "", "Collector host:port that receives the report")
	cmd.Flags().StringVar(&opts.password, "password", "", "Shared secret embedded in the report")
	cmd.Flags().StringVar(&opts.dst, "dst", "", "Destination directory (required)")
	cmd.Flags().StringVar(&opts.index, "index", "", "Index name for the collector")
	cmd.Flags().StringVar(&opts.host, "host", "", "Host name reported as the sender (default: this host)")
	cmd.Flags().BoolVar(&opts.zip, "zip", false, "Compress the backup")
	cmd.Flags().DurationVar(&opts.writeTimeout, "write-timeout", 0, "Report write deadline (default 250ms)")
	cmd.Flags().DurationVar(&opts.connectTimeout, "connect-timeout", 0, "Collector connect timeout (default 5s)")
	_ = cmd.MarkFlagRequired("dst")
}

func newWalCmd(global *globalOptions) *cobra.Command {
	var opts runOptions

	cmd := &cobra.Command{
		Use:   "wal",
		Short: "Copy or zip a single WAL segment",
		Example: `  walship wal --elk logstash:5000 --password secret \
    --source %p --filename %f --dst /backups/wal --zip`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runJob(cmd, global, &opts, "wal")
		},
	}

	addReportFlags(cmd, &opts)
	cmd.Flags().StringVar(&opts.source, "source", "", "Path of the file to back up (required)")
	cmd.Flags().StringVar(&opts.filename, "filename", "", "Name to store the backup under (default: source base name)")
	_ = cmd.MarkFlagRequired("source")

	return cmd
}

func newFullCmd(global *globalOptions) *cobra.Command {
	var opts runOptions

	cmd := &cobra.Command{
		Use:   "full",
		Short: "Take a base backup with pg_basebackup",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runJob(cmd, global, &opts, "full")
		},
	}

	addReportFlags(cmd, &opts)
	cmd.Flags().StringVar(&opts.dbname, "dbname", "", "Connection string passed to pg_basebackup --dbname")
	cmd.Flags().BoolVar(&opts.verbose, "verbose", false, "Run pg_basebackup with progress and verbose output")
	cmd.Flags().StringVar(&opts.baseBackupPath, "pg-basebackup", "", "Path to pg_basebackup (default: search PATH)")

	return cmd
}

// loadConfig reads the config file and overlays global flags.
func loadConfig(global *globalOptions) (*config.Config, error) {
	var (
		cfg *config.Config
		err error
	)
	if global.configPath != "" {
		cfg, err = config.Load(global.configPath)
	} else {
		cfg, err = config.LoadDefault()
	}
	if err != nil {
		return nil, fmt.Errorf("load config: %w", err)
	}

	if global.logLevel != "" {
		cfg.LogLevel = global.logLevel
	}
	if global.logFormat != "" {
		cfg.LogFormat = global.logFormat
	}
	if global.metricsFile != "" {
		cfg.MetricsFile = global.metricsFile
	}
	return cfg, nil
}

// resolve overlays run flags on cfg, validates and applies defaults.
func (o *runOptions) resolve(cfg *config.Config) error {
	if o.collector != "" {
		cfg.Collector = o.collector
	}
	if o.password != "" {
		cfg.Password = o.password
	}
	if o.index != "" {
		cfg.IndexName = o.index
	}
	if o.host != "" {
		cfg.Hostname = o.host
	}
	if o.writeTimeout != 0 {
		cfg.WriteTimeout = o.writeTimeout
	}
	if o.connectTimeout != 0 {
		cfg.ConnectTimeout = o.connectTimeout
	}
	if o.baseBackupPath != "" {
		cfg.BaseBackupPath = o.baseBackupPath
	}

	if err := cfg.Validate(); err != nil {
		return fmt.Errorf("invalid configuration: %w", err)
	}
	if cfg.Password == "" {
		return errors.New("password is required (--password or config)")
	}
	cfg.ApplyDefaults()
	return nil
}

func runJob(cmd *cobra.Command, global *globalOptions, opts *runOptions, command string) error {
	cfg, err := loadConfig(global)
	if err != nil {
		return err
	}
	if err := opts.resolve(cfg); err != nil {
		return err
	}

	logger, err := logs.New(cmd.ErrOrStderr(), cfg.LogLevel, logs.Format(cfg.LogFormat), Version)
	if err != nil {
		return err
	}

	variant, err := backup.ParseVariant(command, opts.zip)
	if err != nil {
		return err
	}

	job := backup.Job{
		Source:        opts.source,
		DestDir:       opts.dst,
		Filename:      opts.filename,
		Variant:       variant,
		Zip:           opts.zip,
		CollectorHost: cfg.Collector,
		Password:      cfg.Password,
		IndexName:     cfg.IndexName,
		SourceHost:    cfg.Hostname,
		DBConnString:  opts.dbname,
		Verbose:       opts.verbose,
	}

	ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	executor := backup.NewExecutor(logger,
		backup.WithBaseBackupBinary(cfg.BaseBackupPath),
		backup.WithDiskThresholds(diskThresholds(cfg)),
	)
	sender := telemetry.NewSender(logger,
		telemetry.WithWriteTimeout(cfg.WriteTimeout),
		telemetry.WithConnectTimeout(cfg.ConnectTimeout),
	)

	res, runErr := pipeline.New(executor, sender, logger).Run(ctx, job)

	if res != nil && cfg.MetricsFile != "" {
		writeMetrics(logger, cfg.MetricsFile, variant, res, runErr)
	}
	if res != nil {
		printSummary(cmd.OutOrStdout(), res)
	}

	return runErr
}

// diskThresholds converts the configured low-space levels for the executor.
func diskThresholds(cfg *config.Config) health.Thresholds {
	return health.Thresholds{
		DiskWarning:  cfg.DiskWarningPercent,
		DiskCritical: cfg.DiskCriticalPercent,
	}
}

// runStatus maps a pipeline result to a metrics status.
func runStatus(res *pipeline.Result, runErr error) string {
	switch {
	case !res.Delivered():
		return metrics.StatusUndelivered
	case runErr != nil || res.Outcome.Failed():
		return metrics.StatusFailed
	default:
		return metrics.StatusCompleted
	}
}

func writeMetrics(logger zerolog.Logger, path string, variant backup.Variant, res *pipeline.Result, runErr error) {
	m, err := metrics.NewPrometheusMetrics(prometheus.NewRegistry())
	if err != nil {
		logger.Warn().Err(err).Msg("failed to create metrics")
		return
	}

	m.RecordRun(metrics.Run{
		Variant:     string(variant),
		Status:      runStatus(res, runErr),
		Duration:    res.Duration,
		SourceBytes: res.Outcome.SourceBytes,
		ResultBytes: res.Outcome.ResultBytes,
		BytesSent:   res.BytesSent,
		FinishedAt:  res.StartedAt.Add(res.Duration),
	})
	if err := m.WriteTextfile(path); err != nil {
		logger.Warn().Err(err).Str("path", path).Msg("failed to write metrics")
	}
}

func printSummary(w io.Writer, res *pipeline.Result) {
	if res.Outcome.Failed() {
		fmt.Fprintf(w, "Backup failed: %s\n", res.Outcome.Message)
	} else {
		fmt.Fprintf(w, "Backup completed successfully!\n")
		fmt.Fprintf(w, "  Original size: %d bytes\n", res.Outcome.SourceBytes)
		fmt.Fprintf(w, "  Backup size:   %d bytes\n", res.Outcome.ResultBytes)
		fmt.Fprintf(w, "  Duration:      %s\n", res.Duration.Round(time.Millisecond))
	}

	if res.Delivered() {
		fmt.Fprintf(w, "Report sent (%d bytes)\n", res.BytesSent)
	} else {
		fmt.Fprintf(w, "Report not delivered: %v\n", res.DeliveryErr)
	}
}
