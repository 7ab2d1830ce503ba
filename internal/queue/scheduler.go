// Package queue holds the single-flight job scheduler.
//
// The Scheduler is an actor: one goroutine owns the current job, the pending
// buffer, the prompt history and the per-job narration. Submissions, clock
// ticks and pipeline outcomes all reach it as messages, so every state change
// and every job event happens in one order.
package queue

import (
	"context"
	"errors"
	"sync"
	"time"

	"github.com/ternarybob/arbor"
	"github.com/ternarybob/playforge/internal/common"
	"github.com/ternarybob/playforge/internal/interfaces"
	"github.com/ternarybob/playforge/internal/models"
	"github.com/ternarybob/playforge/internal/services/broadcast"
)

// ErrStopped is returned when the scheduler is not running
var ErrStopped = errors.New("scheduler stopped")

// Options controls scheduler cadence
type Options struct {
	PostCompleteTicks int
	HistorySize       int
	CommandBuffer     int
}

// OptionsFromConfig reads scheduler options from application config
func OptionsFromConfig(cfg *common.QueueConfig) Options {
	return Options{
		PostCompleteTicks: cfg.PostCompleteTicks,
		HistorySize:       cfg.HistorySize,
		CommandBuffer:     cfg.CommandBuffer,
	}
}

// entry is the tracked state of the current job
type entry struct {
	job         models.Job
	narration   *broadcast.Narration
	result      *models.GenerationResult
	duration    float64
	artifactURL string
	countdown   int
}

func (e *entry) tracked() models.TrackedJob {
	return models.TrackedJob{
		Job:         e.job,
		Result:      e.result,
		Duration:    e.duration,
		ArtifactURL: e.artifactURL,
	}
}

// Scheduler runs at most one job at a time and buffers the rest in arrival order
type Scheduler struct {
	generator interfaces.Generator
	artifacts interfaces.ArtifactService
	events    *broadcast.Broadcaster
	clock     Clock
	logger    arbor.ILogger
	opts      Options

	commands chan func()
	done     chan struct{}
	stopped  chan struct{}
	ctx      context.Context
	cancel   context.CancelFunc
	runOnce  sync.Once
	stopOnce sync.Once

	// owned by the actor goroutine
	current *entry
	pending []models.Job
	history *history
}

// NewScheduler creates a scheduler. Call Run to start it.
func NewScheduler(
	generator interfaces.Generator,
	artifacts interfaces.ArtifactService,
	events *broadcast.Broadcaster,
	clock Clock,
	opts Options,
	logger arbor.ILogger,
) *Scheduler {
	if opts.CommandBuffer <= 0 {
		opts.CommandBuffer = 64
	}
	if opts.PostCompleteTicks < 0 {
		opts.PostCompleteTicks = 0
	}

	return &Scheduler{
		generator: generator,
		artifacts: artifacts,
		events:    events,
		clock:     clock,
		logger:    logger,
		opts:      opts,
		commands:  make(chan func(), opts.CommandBuffer),
		done:      make(chan struct{}),
		stopped:   make(chan struct{}),
		history:   newHistory(opts.HistorySize),
	}
}

// Run starts the actor goroutine. The scheduler stops when ctx is cancelled or Stop is called.
func (s *Scheduler) Run(ctx context.Context) {
	s.runOnce.Do(func() {
		s.ctx, s.cancel = context.WithCancel(ctx)

		common.SafeGo(s.logger, "scheduler", s.loop)
		common.SafeGo(s.logger, "scheduler-watch", func() {
			select {
			case <-s.ctx.Done():
				s.Stop()
			case <-s.done:
			}
		})

		s.logger.Info().
			Int("post_complete_ticks", s.opts.PostCompleteTicks).
			Int("history_size", s.history.size).
			Str("model", s.generator.Model()).
			Msg("Scheduler started")
	})
}

// Stop halts the actor and waits for it to exit. An in-flight generation is abandoned.
func (s *Scheduler) Stop() {
	s.stopOnce.Do(func() {
		close(s.done)
		if s.cancel != nil {
			s.cancel()
			<-s.stopped
		}
		s.clock.Stop()
		s.logger.Info().Msg("Scheduler stopped")
	})
}

func (s *Scheduler) loop() {
	defer close(s.stopped)
	for {
		select {
		case <-s.done:
			if s.current != nil {
				s.current.narration.Stop()
			}
			return
		case cmd := <-s.commands:
			cmd()
		case <-s.clock.Ticks():
			s.tick()
		}
	}
}

// call runs fn on the actor goroutine and waits for it to finish
func (s *Scheduler) call(ctx context.Context, fn func()) error {
	finished := make(chan struct{})
	cmd := func() {
		defer close(finished)
		fn()
	}

	select {
	case s.commands <- cmd:
	case <-s.done:
		return ErrStopped
	case <-ctx.Done():
		return ctx.Err()
	}

	select {
	case <-finished:
		return nil
	case <-s.done:
		return ErrStopped
	case <-ctx.Done():
		return ctx.Err()
	}
}

// post queues fn for the actor without waiting
func (s *Scheduler) post(fn func()) bool {
	select {
	case s.commands <- fn:
		return true
	case <-s.done:
		return false
	}
}

// Submit admits a validated submission
func (s *Scheduler) Submit(ctx context.Context, submission models.Submission, source models.Source, origin interfaces.ClientSink) (interfaces.SubmitReceipt, error) {
	var receipt interfaces.SubmitReceipt
	err := s.call(ctx, func() {
		receipt = s.submit(submission, source)
	})
	return receipt, err
}

func (s *Scheduler) submit(submission models.Submission, source models.Source) interfaces.SubmitReceipt {
	now := time.Now()
	job := models.Job{
		ID:          common.NewJobID(),
		Prompt:      submission.Prompt,
		Mode:        submission.Mode,
		Source:      source,
		Status:      models.JobStatusQueued,
		SubmittedAt: now,
	}

	s.history.add(models.HistoryRecord{
		Prompt:      job.Prompt,
		RequestID:   job.ID,
		Timestamp:   now.UnixMilli(),
		CommandType: job.Mode,
	})

	if s.current == nil {
		s.logger.Info().
			Str("request_id", job.ID).
			Str("mode", string(job.Mode)).
			Str("source", string(job.Source)).
			Msg("Job submitted, starting immediately")

		s.events.JobQueued(job, 0)
		started := s.promote(job)
		return interfaces.SubmitReceipt{Job: started, Position: 0, Started: true}
	}

	s.pending = append(s.pending, job)
	position := len(s.pending)

	s.logger.Info().
		Str("request_id", job.ID).
		Str("mode", string(job.Mode)).
		Str("source", string(job.Source)).
		Int("position", position).
		Msg("Job submitted, queued")

	s.events.QueueDepth(position)
	s.events.JobQueued(job, position)

	return interfaces.SubmitReceipt{Job: job, Position: position}
}

// promote makes job current and launches its pipeline
func (s *Scheduler) promote(job models.Job) models.Job {
	job.Status = models.JobStatusProcessing
	job.StartedAt = time.Now()

	e := &entry{job: job, countdown: -1}
	s.current = e
	e.narration = s.events.JobStarted(job, len(s.pending))

	ctx := s.ctx
	common.SafeGo(s.logger, "pipeline-"+job.ID, func() {
		out := runPipeline(ctx, s.generator, job)
		s.post(func() { s.finish(out) })
	})

	return job
}

// finish applies a pipeline outcome to the current job
func (s *Scheduler) finish(out outcome) {
	e := s.current
	if e == nil || e.job.ID != out.jobID {
		s.logger.Warn().Str("request_id", out.jobID).Msg("Discarding outcome for job that is no longer current")
		return
	}

	e.narration.Stop()
	e.duration = broadcast.Seconds(out.elapsed)

	if out.err != nil {
		e.job.Status = models.JobStatusFailed
		e.job.Error = out.message()

		s.logger.Error().
			Err(out.err).
			Str("request_id", e.job.ID).
			Str("error_type", out.errorType()).
			Msg("Generation failed")

		s.events.GenerationFailed(e.job, e.job.Error, out.errorType(), e.duration)
	} else {
		result := out.result
		e.result = &result
		s.events.Generated(e.job, result, out.parsed.Bytes, out.parsed.Recovered, e.duration)

		artifact, err := s.artifacts.Save(s.ctx, e.job, out.document)
		if err != nil {
			s.logger.Error().Err(err).Str("request_id", e.job.ID).Msg("Failed to save artifact")
			s.events.ArtifactFailed(e.job, err)
		} else {
			e.artifactURL = artifact.URL
			s.events.ArtifactSaved(e.job, artifact.Name, artifact.URL)
		}

		e.job.Status = models.JobStatusCompleted
	}

	e.job.FinishedAt = time.Now()
	e.job.DurationSeconds = broadcast.Seconds(e.job.FinishedAt.Sub(e.job.StartedAt))

	s.logger.Info().
		Str("request_id", e.job.ID).
		Str("status", string(e.job.Status)).
		Float64("duration_seconds", e.job.DurationSeconds).
		Msg("Job finished")

	e.countdown = s.opts.PostCompleteTicks
	s.events.JobFinished(e.job, e.countdown)
	if e.countdown == 0 {
		s.advance()
	}
}

func (s *Scheduler) tick() {
	e := s.current
	if e == nil {
		return
	}

	if !e.job.Status.IsTerminal() {
		e.narration.Tick()
		return
	}

	e.countdown--
	if e.countdown < 0 {
		e.countdown = 0
	}
	s.events.PostCountdown(e.job, e.countdown)
	if e.countdown == 0 {
		s.advance()
	}
}

// advance drops the finished job and promotes the next pending one
func (s *Scheduler) advance() {
	if s.current != nil {
		s.current.narration.Stop()
		s.current = nil
	}

	if len(s.pending) == 0 {
		s.events.Idle()
		return
	}

	next := s.pending[0]
	s.pending[0] = models.Job{}
	s.pending = s.pending[1:]
	s.promote(next)
}

// Attach runs fn on the actor goroutine with a consistent snapshot
func (s *Scheduler) Attach(ctx context.Context, fn func(models.ObserverSnapshot)) error {
	return s.call(ctx, func() {
		fn(s.snapshot())
	})
}

// Snapshot returns the state a newly connected observer needs
func (s *Scheduler) Snapshot(ctx context.Context) (models.ObserverSnapshot, error) {
	var snap models.ObserverSnapshot
	err := s.call(ctx, func() {
		snap = s.snapshot()
	})
	return snap, err
}

func (s *Scheduler) snapshot() models.ObserverSnapshot {
	snap := models.ObserverSnapshot{
		History:     s.history.list(),
		QueueLength: len(s.pending),
		Tracked:     []models.TrackedJob{},
	}
	if s.current != nil {
		snap.Tracked = append(snap.Tracked, s.current.tracked())
	}
	return snap
}

// History returns the prompt history, oldest first
func (s *Scheduler) History(ctx context.Context) ([]models.HistoryRecord, error) {
	var records []models.HistoryRecord
	err := s.call(ctx, func() {
		records = s.history.list()
	})
	return records, err
}

// LookupHistory finds the history record for requestID
func (s *Scheduler) LookupHistory(ctx context.Context, requestID string) (models.HistoryRecord, bool) {
	var (
		record models.HistoryRecord
		found  bool
	)
	if err := s.call(ctx, func() {
		record, found = s.history.lookup(requestID)
	}); err != nil {
		return models.HistoryRecord{}, false
	}
	return record, found
}

// Status summarises scheduler load
type Status struct {
	QueueLength int    `json:"queue_length"`
	Processing  bool   `json:"processing"`
	CurrentID   string `json:"current_id,omitempty"`
}

// Status returns the pending count and whether a job is current
func (s *Scheduler) Status(ctx context.Context) (Status, error) {
	var st Status
	err := s.call(ctx, func() {
		st.QueueLength = len(s.pending)
		if s.current != nil {
			st.Processing = true
			st.CurrentID = s.current.job.ID
		}
	})
	return st, err
}
