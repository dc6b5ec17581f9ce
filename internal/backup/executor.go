package backup

import (
	"context"
	"errors"
	"fmt"
	"io"
	"io/fs"
	"os"
	"path/filepath"

	"github.com/MacJediWizard/walship/internal/backup/databases"
	"github.com/MacJediWizard/walship/internal/health"
	"github.com/rs/zerolog"
)

// Executor runs backup jobs. Every failure is captured in the returned Outcome.
type Executor struct {
	logger           zerolog.Logger
	baseBackupBinary string
	thresholds       health.Thresholds
	openSource       func(name string) (io.ReadCloser, error)
}

// ExecutorOption configures an Executor.
type ExecutorOption func(*Executor)

// WithBaseBackupBinary overrides the pg_basebackup executable.
func WithBaseBackupBinary(path string) ExecutorOption {
	return func(e *Executor) {
		e.baseBackupBinary = path
	}
}

// WithDiskThresholds sets the usage levels at which the destination is logged as low on space.
func WithDiskThresholds(t health.Thresholds) ExecutorOption {
	return func(e *Executor) {
		e.thresholds = t
	}
}

// NewExecutor creates a new Executor.
func NewExecutor(logger zerolog.Logger, opts ...ExecutorOption) *Executor {
	e := &Executor{
		logger:     logger.With().Str("component", "executor").Logger(),
		thresholds: health.DefaultThresholds(),
		openSource: func(name string) (io.ReadCloser, error) {
			return os.Open(name)
		},
	}
	for _, opt := range opts {
		opt(e)
	}
	return e
}

// Execute performs the job. It never panics and never returns an error;
// failures are reported through the Outcome.
func (e *Executor) Execute(ctx context.Context, job Job) (out Outcome) {
	defer func() {
		if r := recover(); r != nil {
			e.logger.Error().Interface("panic", r).Msg("backup panicked")
			out = Failed(fmt.Sprintf("backup aborted: %v", r))
		}
	}()

	logger := e.logger.With().
		Str("variant", string(job.Variant)).
		Str("filename", job.LogicalName()).
		Logger()
	logger.Debug().
		Str("source", job.Source).
		Str("dst", job.DestDir).
		Msg("executing backup")

	var (
		srcBytes, resBytes uint64
		err                error
	)
	switch job.Variant {
	case VariantCopy:
		srcBytes, resBytes, err = e.copyFile(ctx, job)
	case VariantArchive:
		srcBytes, resBytes, err = e.archiveFile(ctx, job)
	case VariantFull:
		err = e.fullBackup(ctx, job)
	default:
		err = preconditionf("unknown backup variant %q", job.Variant)
	}

	if err != nil {
		logger.Error().Err(err).Str("kind", string(KindOf(err))).Msg("backup failed")
		return FailedWith(err)
	}

	logger.Info().
		Uint64("orig_size", srcBytes).
		Uint64("back_size", resBytes).
		Msg("backup completed")
	return Succeeded(srcBytes, resBytes)
}

// checkWAL runs the pre-checks shared by the copy and archive variants and
// returns the canonical source path. The first problem found is returned.
func checkWAL(job Job) (string, os.FileInfo, error) {
	src, err := canonicalize(job.Source)
	if err != nil {
		return "", nil, preconditionf("source file does not exist: %v", err)
	}
	info, err := os.Stat(src)
	if err != nil || info.IsDir() {
		return "", nil, preconditionf("source file does not exist or is a directory: %s", job.Source)
	}

	dirInfo, err := os.Stat(job.DestDir)
	if err != nil || !dirInfo.IsDir() {
		return "", nil, preconditionf("destination dir does not exist: %s", job.DestDir)
	}

	if name := job.LogicalName(); name != filepath.Base(name) || name == "." || name == ".." {
		return "", nil, preconditionf("invalid backup filename: %q", name)
	}

	dst := job.DestPath()
	if _, err := os.Lstat(dst); err == nil {
		return "", nil, preconditionf("would overwrite existing file: %s", dst)
	} else if !errors.Is(err, fs.ErrNotExist) {
		return "", nil, ioError(fmt.Sprintf("check destination file %s", dst), err)
	}

	return src, info, nil
}

func canonicalize(path string) (string, error) {
	abs, err := filepath.Abs(path)
	if err != nil {
		return "", err
	}
	return filepath.EvalSymlinks(abs)
}

// resultSize re-reads the written file's size from disk.
func resultSize(path string) (uint64, error) {
	info, err := os.Stat(path)
	if err != nil {
		return 0, ioError(fmt.Sprintf("stat backup file %s", path), err)
	}
	return uint64(info.Size()), nil
}

// logDestination records free space on the destination filesystem. It never fails the job.
func (e *Executor) logDestination(ctx context.Context, dir string, need uint64) {
	stats, err := health.DiskUsage(ctx, dir)
	if err != nil {
		e.logger.Debug().Err(err).Msg("destination disk usage unavailable")
		return
	}

	event := e.logger.Debug()
	switch status := e.thresholds.Evaluate(stats); {
	case !stats.Fits(need):
		event = e.logger.Warn().Uint64("need_bytes", need)
	case status != health.StatusHealthy:
		event = e.logger.Warn().Str("status", string(status))
	}
	event.
		Str("dst", dir).
		Uint64("free_bytes", stats.FreeBytes).
		Float64("used_percent", stats.UsedPercent).
		Msg("destination disk usage")
}

func (e *Executor) fullBackup(ctx context.Context, job Job) error {
	if job.DBConnString != "" {
		info, err := databases.ParseConnString(job.DBConnString)
		if err != nil {
			return preconditionf("%v", err)
		}
		e.logger.Debug().
			Str("db_host", info.Host).
			Uint16("db_port", info.Port).
			Str("db_user", info.User).
			Msg("using database connection")
	}

	e.logDestination(ctx, filepath.Dir(filepath.Clean(job.DestDir)), 0)

	bb := databases.NewBaseBackup(&databases.BaseBackupConfig{
		Binary:     e.baseBackupBinary,
		TargetDir:  job.DestDir,
		Compress:   job.Zip,
		Verbose:    job.Verbose,
		ConnString: job.DBConnString,
	}, e.logger)

	version, err := bb.Probe(ctx)
	if err != nil {
		return subprocessError("probe pg_basebackup", err)
	}
	e.logger.Debug().Str("version", version).Msg("found pg_basebackup")

	result, err := bb.Run(ctx)
	if err != nil {
		return &Error{Kind: KindSubprocess, Msg: result.ErrorMessage}
	}
	if result.Output != "" {
		e.logger.Info().Str("output", result.Output).Msg("pg_basebackup output")
	}
	return nil
}
