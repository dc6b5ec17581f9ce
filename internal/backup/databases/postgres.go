// Package databases wraps external PostgreSQL backup tooling.
package databases

import (
	"context"
	"errors"
	"fmt"
	"os"
	"os/exec"
	"strings"
	"time"

	"github.com/jackc/pgx/v5/pgconn"
	"github.com/rs/zerolog"
)

const (
	defaultBaseBackupBinary = "pg_basebackup"
	// compressionLevel is passed to -Z when compression is requested.
	compressionLevel = "9"
)

// BaseBackupConfig configures a pg_basebackup run.
type BaseBackupConfig struct {
	// Binary overrides the pg_basebackup executable.
	Binary string
	// TargetDir is passed to -D.
	TargetDir string
	// Compress adds -z -Z 9.
	Compress bool
	// Verbose adds -P --verbose.
	Verbose bool
	// ConnString is passed to --dbname when set.
	ConnString string
}

// BaseBackupResult contains the result of a pg_basebackup run.
type BaseBackupResult struct {
	Success      bool
	Output       string
	Duration     time.Duration
	ErrorMessage string
}

// ConnInfo is the non-secret part of a parsed connection string.
type ConnInfo struct {
	Host     string
	Port     uint16
	User     string
	Database string
}

// ErrBinaryUnavailable is returned when pg_basebackup cannot be started.
var ErrBinaryUnavailable = errors.New("pg_basebackup unavailable")

// BaseBackup runs pg_basebackup.
type BaseBackup struct {
	Config *BaseBackupConfig
	logger zerolog.Logger
}

// NewBaseBackup creates a new BaseBackup with the given configuration.
func NewBaseBackup(config *BaseBackupConfig, logger zerolog.Logger) *BaseBackup {
	if config == nil {
		config = &BaseBackupConfig{}
	}
	return &BaseBackup{
		Config: config,
		logger: logger.With().Str("component", "pg_basebackup").Logger(),
	}
}

// ParseConnString validates a libpq connection string or URL without connecting.
func ParseConnString(conn string) (*ConnInfo, error) {
	cfg, err := pgconn.ParseConfig(conn)
	if err != nil {
		return nil, fmt.Errorf("invalid database connection string: %w", err)
	}
	return &ConnInfo{
		Host:     cfg.Host,
		Port:     cfg.Port,
		User:     cfg.User,
		Database: cfg.Database,
	}, nil
}

// Probe checks that the binary can be spawned and returns its version line.
// Only a spawn failure is an error; the exit status is not inspected.
func (b *BaseBackup) Probe(ctx context.Context) (string, error) {
	binary := b.findBinary()
	out, err := exec.CommandContext(ctx, binary, "--version").Output()
	if err != nil {
		var exitErr *exec.ExitError
		if !errors.As(err, &exitErr) {
			return "", fmt.Errorf("%w: command '%s --version': %v", ErrBinaryUnavailable, binary, err)
		}
	}
	return strings.TrimSpace(string(out)), nil
}

// Run executes pg_basebackup and captures its combined output.
func (b *BaseBackup) Run(ctx context.Context) (*BaseBackupResult, error) {
	startTime := time.Now()
	result := &BaseBackupResult{}

	if b.Config.TargetDir == "" {
		result.ErrorMessage = "target directory is required"
		return result, errors.New(result.ErrorMessage)
	}

	binary := b.findBinary()
	args := b.buildArgs()

	b.logger.Info().
		Str("target_dir", b.Config.TargetDir).
		Bool("compress", b.Config.Compress).
		Msg("starting pg_basebackup")
	b.logger.Debug().
		Str("binary", binary).
		Strs("args", redactArgs(args)).
		Msg("executing pg_basebackup")

	cmd := exec.CommandContext(ctx, binary, args...)
	cmd.Env = os.Environ()

	output, err := cmd.CombinedOutput()
	result.Output = string(output)
	result.Duration = time.Since(startTime)
	if err != nil {
		var exitErr *exec.ExitError
		if errors.As(err, &exitErr) {
			result.ErrorMessage = fmt.Sprintf("pg_basebackup failed: %v: %s", err, result.Output)
			return result, fmt.Errorf("pg_basebackup: %w", err)
		}
		result.ErrorMessage = fmt.Sprintf("execute pg_basebackup: %v", err)
		return result, fmt.Errorf("%w: %v", ErrBinaryUnavailable, err)
	}

	result.Success = true
	b.logger.Info().
		Str("duration", result.Duration.String()).
		Msg("pg_basebackup completed")

	return result, nil
}

// buildArgs builds the command line arguments for pg_basebackup.
func (b *BaseBackup) buildArgs() []string {
	args := []string{"-D", b.Config.TargetDir, "-Fp", "-R"}

	if b.Config.Compress {
		args = append(args, "-z", "-Z", compressionLevel)
	}
	if b.Config.Verbose {
		args = append(args, "-P", "--verbose")
	}
	if b.Config.ConnString != "" {
		args = append(args, "--dbname", b.Config.ConnString)
	}

	return args
}

// redactArgs hides the connection string, which may carry a password.
func redactArgs(args []string) []string {
	out := make([]string, len(args))
	copy(out, args)
	for i := 0; i < len(out)-1; i++ {
		if out[i] == "--dbname" {
			out[i+1] = "<redacted>"
		}
	}
	return out
}

// findBinary locates pg_basebackup, checking the config override first.
func (b *BaseBackup) findBinary() string {
	if b.Config.Binary != "" {
		return b.Config.Binary
	}

	path, err := exec.LookPath(defaultBaseBackupBinary)
	if err == nil {
		return path
	}

	commonPaths := []string{
		"/usr/bin/" + defaultBaseBackupBinary,
		"/usr/local/bin/" + defaultBaseBackupBinary,
		"/usr/local/pgsql/bin/" + defaultBaseBackupBinary,
		"/opt/homebrew/bin/" + defaultBaseBackupBinary,
	}

	for _, p := range commonPaths {
		if _, err := os.Stat(p); err == nil {
			return p
		}
	}

	return defaultBaseBackupBinary
}
