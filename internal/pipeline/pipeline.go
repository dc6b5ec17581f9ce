// Package pipeline runs a backup job and reports its outcome to the collector.
//
// Stages run strictly in order: Start, Execute, BuildReport, Deliver, Done.
// Execute never ends the run early; BuildReport and Deliver form a single
// deferred final stage so that exactly one record is sent on every path.
package pipeline

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/MacJediWizard/walship/internal/backup"
	"github.com/MacJediWizard/walship/internal/telemetry"
	"github.com/google/uuid"
	"github.com/rs/zerolog"
)

// ErrCollectorHostRequired is returned before anything runs when no collector is configured.
var ErrCollectorHostRequired = errors.New("collector host is required (host:port)")

// ExecutionError reports a backup that failed after its record was delivered.
type ExecutionError struct {
	Message string
}

func (e *ExecutionError) Error() string {
	return "backup failed: " + e.Message
}

// Stage is a step of the pipeline.
type Stage string

const (
	StageStart       Stage = "start"
	StageExecute     Stage = "execute"
	StageBuildReport Stage = "build_report"
	StageDeliver     Stage = "deliver"
	StageDone        Stage = "done"
)

// Executor performs a backup job.
type Executor interface {
	Execute(ctx context.Context, job backup.Job) backup.Outcome
}

// Sender delivers an encoded record.
type Sender interface {
	Send(ctx context.Context, addr string, payload []byte) (int, error)
}

// Result describes a completed run.
type Result struct {
	RunID       string
	Stage       Stage
	Outcome     backup.Outcome
	Record      telemetry.Record
	BytesSent   int
	DeliveryErr error
	StartedAt   time.Time
	Duration    time.Duration
}

// Delivered reports whether the record reached the collector.
func (r *Result) Delivered() bool {
	return r.Stage == StageDone && r.DeliveryErr == nil
}

// Pipeline sequences execution, reporting and delivery.
type Pipeline struct {
	executor Executor
	sender   Sender
	logger   zerolog.Logger
	now      func() time.Time
}

// Option configures a Pipeline.
type Option func(*Pipeline)

// WithClock overrides the time source.
func WithClock(now func() time.Time) Option {
	return func(p *Pipeline) {
		p.now = now
	}
}

// New creates a new Pipeline.
func New(executor Executor, sender Sender, logger zerolog.Logger, opts ...Option) *Pipeline {
	p := &Pipeline{
		executor: executor,
		sender:   sender,
		logger:   logger.With().Str("component", "pipeline").Logger(),
		now:      time.Now,
	}
	for _, opt := range opts {
		opt(p)
	}
	return p
}

// Run executes job and reports it. The returned error is, in order of
// precedence: ErrCollectorHostRequired, a *telemetry.TransportError when the
// record could not be delivered, an *ExecutionError when the backup failed,
// or nil.
func (p *Pipeline) Run(ctx context.Context, job backup.Job) (res *Result, err error) {
	if strings.TrimSpace(job.CollectorHost) == "" {
		p.logger.Error().Msg("collector host is required, nothing will be sent")
		return nil, ErrCollectorHostRequired
	}

	res = &Result{
		RunID:     uuid.NewString(),
		Stage:     StageStart,
		Outcome:   backup.Failed("backup did not run"),
		StartedAt: p.now(),
	}
	logger := p.logger.With().
		Str("run_id", res.RunID).
		Str("variant", string(job.Variant)).
		Logger()

	defer func() {
		if r := recover(); r != nil {
			logger.Error().Interface("panic", r).Str("stage", string(res.Stage)).Msg("pipeline panicked")
			res.Outcome = backup.Failed(fmt.Sprintf("backup aborted: %v", r))
		}
		err = p.report(ctx, logger, job, res)
	}()

	res.Stage = StageExecute
	logger.Info().Str("filename", job.LogicalName()).Msg("starting backup")
	res.Outcome = p.executor.Execute(ctx, job)

	return res, nil
}

// report builds and delivers the record, then derives the final error.
func (p *Pipeline) report(ctx context.Context, logger zerolog.Logger, job backup.Job, res *Result) error {
	res.Stage = StageBuildReport
	now := p.now()
	res.Duration = now.Sub(res.StartedAt)
	res.Record = telemetry.BuildRecord(job, res.Outcome, res.StartedAt, now)

	res.Stage = StageDeliver
	// Delivery must still be attempted when the run was interrupted.
	n, sendErr := p.sender.Send(context.WithoutCancel(ctx), job.CollectorHost, res.Record.Encode())
	res.BytesSent = n
	res.DeliveryErr = sendErr
	res.Stage = StageDone

	if sendErr != nil {
		event := logger.Error().Err(sendErr).Str("collector", job.CollectorHost)
		if res.Outcome.Failed() {
			event = event.Str("backup_error", res.Outcome.Message)
		}
		event.Msg("failed to deliver backup report")
		return sendErr
	}

	logger.Debug().Int("bytes", n).Msg("backup report delivered")

	if res.Outcome.Failed() {
		return &ExecutionError{Message: res.Outcome.Message}
	}

	logger.Info().
		Uint64("orig_size", res.Outcome.SourceBytes).
		Uint64("back_size", res.Outcome.ResultBytes).
		Dur("duration", res.Duration).
		Msg("backup reported")
	return nil
}
