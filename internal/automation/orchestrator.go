package automation

import (
	"context"
	"encoding/json"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"
	"go.uber.org/multierr"

	"github.com/nexavest/nexavest-backend/pkg/db/models"
	"github.com/nexavest/nexavest-backend/pkg/enums"
	"github.com/nexavest/nexavest-backend/pkg/errors"
	"github.com/nexavest/nexavest-backend/pkg/logger"
	"github.com/nexavest/nexavest-backend/pkg/metrics"
)

const defaultInterval = 1 * time.Hour

// Orchestrator runs the registered jobs on a schedule and on demand. Manual
// triggers share the execution path with scheduled ticks; only the trigger
// label on the run record differs. Per-job single-flight is enforced in
// process, cluster-wide exclusion by the tick lock.
type Orchestrator struct {
	logg     *logger.Logger
	registry *Registry
	runs     RunsRepository
	lock     Lock
	metrics  *metrics.CronJobMetrics
	interval time.Duration
	now      func() time.Time

	mu     sync.Mutex
	states map[string]*jobState
}

type jobState struct {
	running bool
	paused  bool
}

// OrchestratorParams configure the orchestrator.
type OrchestratorParams struct {
	Logger   *logger.Logger
	Registry *Registry
	Runs     RunsRepository
	Lock     Lock
	Metrics  *metrics.CronJobMetrics
	Interval time.Duration
	Now      func() time.Time
}

// NewOrchestrator builds an orchestrator.
func NewOrchestrator(params OrchestratorParams) (*Orchestrator, error) {
	if params.Logger == nil {
		return nil, fmt.Errorf("logger required")
	}
	if params.Runs == nil {
		return nil, fmt.Errorf("runs repository required")
	}
	if params.Lock == nil {
		return nil, fmt.Errorf("lock required")
	}
	registry := params.Registry
	if registry == nil {
		registry = NewRegistry()
	}
	interval := params.Interval
	if interval <= 0 {
		interval = defaultInterval
	}
	now := params.Now
	if now == nil {
		now = time.Now
	}
	states := make(map[string]*jobState)
	for _, job := range registry.Jobs() {
		states[job.Name()] = &jobState{}
	}
	return &Orchestrator{
		logg:     params.Logger,
		registry: registry,
		runs:     params.Runs,
		lock:     params.Lock,
		metrics:  params.Metrics,
		interval: interval,
		now:      now,
		states:   states,
	}, nil
}

// RunLoop executes ticks until the context is canceled.
func (o *Orchestrator) RunLoop(ctx context.Context) error {
	if ctx == nil {
		ctx = context.Background()
	}
	if err := o.tick(ctx); err != nil {
		o.logg.Error(ctx, "scheduled tick failed", err)
	}
	ticker := time.NewTicker(o.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			o.logg.Info(ctx, "orchestrator context canceled")
			return ctx.Err()
		case <-ticker.C:
			if err := o.tick(ctx); err != nil {
				o.logg.Error(ctx, "scheduled tick failed", err)
			}
		}
	}
}

func (o *Orchestrator) tick(ctx context.Context) error {
	locked, err := o.lock.Acquire(ctx)
	if err != nil {
		return fmt.Errorf("lock acquire: %w", err)
	}
	if !locked {
		o.logg.Info(ctx, "another worker instance holds the tick lock; skipping")
		return nil
	}
	defer func() {
		if relErr := o.lock.Release(ctx); relErr != nil {
			o.logg.Error(ctx, "failed to release tick lock", relErr)
		}
	}()

	o.logg.Info(ctx, "scheduled tick starting")
	var tickErr error
	for _, job := range o.registry.Jobs() {
		if err := o.execute(ctx, job, enums.TriggerTypeAutomatic); err != nil {
			// Paused and already-running jobs are expected skips on a tick.
			if errors.IsCode(err, errors.CodeInvalidState) {
				continue
			}
			tickErr = multierr.Append(tickErr, fmt.Errorf("job %s: %w", job.Name(), err))
		}
	}
	o.logg.Info(ctx, "scheduled tick complete")
	return tickErr
}

// Trigger runs one job immediately. A job that is already running or is
// unknown is rejected; a paused job can still be triggered by hand.
func (o *Orchestrator) Trigger(ctx context.Context, jobName string) error {
	job, ok := o.registry.Find(jobName)
	if !ok {
		return errors.New(errors.CodeNotFound, fmt.Sprintf("unknown job %q", jobName))
	}
	return o.execute(ctx, job, enums.TriggerTypeManual)
}

// Pause stops the job from running on scheduled ticks.
func (o *Orchestrator) Pause(jobName string) error {
	return o.setPaused(jobName, true)
}

// Resume re-enables scheduled runs for the job.
func (o *Orchestrator) Resume(jobName string) error {
	return o.setPaused(jobName, false)
}

func (o *Orchestrator) setPaused(jobName string, paused bool) error {
	o.mu.Lock()
	defer o.mu.Unlock()
	state, ok := o.states[jobName]
	if !ok {
		return errors.New(errors.CodeNotFound, fmt.Sprintf("unknown job %q", jobName))
	}
	state.paused = paused
	return nil
}

// JobStatus is the control-surface view of one job.
type JobStatus struct {
	Name          string          `json:"name"`
	Category      string          `json:"category"`
	State         string          `json:"state"`
	Paused        bool            `json:"paused"`
	LastRunAt     *time.Time      `json:"last_run_at"`
	LastRunStatus enums.RunStatus `json:"last_run_status,omitempty"`
	NextRunAt     *time.Time      `json:"next_run_at"`
}

// Status reports every registered job with its most recent run and, for jobs
// still on the schedule, the projected next tick.
func (o *Orchestrator) Status(ctx context.Context) ([]JobStatus, error) {
	latest, err := o.runs.LatestPerJob(ctx)
	if err != nil {
		return nil, errors.Wrap(errors.CodeDependency, err, "loading latest runs")
	}
	latestByJob := make(map[string]models.AutomationRun, len(latest))
	for _, run := range latest {
		latestByJob[run.JobName] = run
	}

	o.mu.Lock()
	defer o.mu.Unlock()

	statuses := make([]JobStatus, 0, len(o.states))
	for _, job := range o.registry.Jobs() {
		state := o.states[job.Name()]
		jobState := "idle"
		if state.running {
			jobState = "running"
		}
		status := JobStatus{
			Name:     job.Name(),
			Category: job.Category(),
			State:    jobState,
			Paused:   state.paused,
		}
		if run, ok := latestByJob[job.Name()]; ok {
			started := run.StartedAt
			status.LastRunAt = &started
			status.LastRunStatus = run.Status
			if !state.paused {
				next := started.Add(o.interval)
				status.NextRunAt = &next
			}
		}
		statuses = append(statuses, status)
	}
	return statuses, nil
}

// Runs lists recent run records, optionally narrowed to one job.
func (o *Orchestrator) Runs(ctx context.Context, jobName string, limit int) ([]models.AutomationRun, error) {
	runs, err := o.runs.ListRecent(ctx, jobName, limit)
	if err != nil {
		return nil, errors.Wrap(errors.CodeDependency, err, "listing automation runs")
	}
	return runs, nil
}

func (o *Orchestrator) execute(ctx context.Context, job Job, trigger enums.TriggerType) error {
	if err := o.acquireJob(job.Name(), trigger); err != nil {
		return err
	}
	defer o.releaseJob(job.Name())

	started := o.now().UTC()
	run := &models.AutomationRun{
		ID:          uuid.New(),
		JobName:     job.Name(),
		Category:    job.Category(),
		TriggerType: trigger,
		Status:      enums.RunStatusRunning,
		StartedAt:   started,
	}
	if err := o.runs.Create(ctx, run); err != nil {
		return errors.Wrap(errors.CodeDependency, err, "recording automation run")
	}

	jobCtx := o.logg.WithJob(ctx, job.Name())
	jobCtx = o.logg.WithField(jobCtx, "trigger", string(trigger))
	o.logg.Info(jobCtx, "job start")

	result, runErr := job.Run(jobCtx)
	duration := time.Since(started)

	if o.metrics != nil {
		o.metrics.ObserveDuration(job.Name(), duration)
	}

	finished := o.now().UTC()
	run.FinishedAt = &finished
	run.DurationMS = duration.Milliseconds()
	run.RecordsProcessed = result.Records
	if result.Metadata != nil {
		if payload, marshalErr := json.Marshal(result.Metadata); marshalErr == nil {
			run.Metadata = payload
		}
	}

	jobCtx = o.logg.WithField(jobCtx, "duration_ms", duration.Milliseconds())
	if runErr != nil {
		message := runErr.Error()
		run.Status = enums.RunStatusFailed
		run.Error = &message
		if o.metrics != nil {
			o.metrics.IncFailure(job.Name())
		}
		o.logg.Error(jobCtx, "job failed", runErr)
	} else {
		run.Status = enums.RunStatusCompleted
		if o.metrics != nil {
			o.metrics.IncSuccess(job.Name())
		}
		o.logg.Info(jobCtx, "job completed")
	}

	if err := o.runs.Update(ctx, run); err != nil {
		o.logg.Error(jobCtx, "failed to update automation run", err)
	}
	return runErr
}

func (o *Orchestrator) acquireJob(jobName string, trigger enums.TriggerType) error {
	o.mu.Lock()
	defer o.mu.Unlock()
	state, ok := o.states[jobName]
	if !ok {
		return errors.New(errors.CodeNotFound, fmt.Sprintf("unknown job %q", jobName))
	}
	if state.running {
		return errors.New(errors.CodeInvalidState, fmt.Sprintf("job %q is already running", jobName))
	}
	if state.paused && trigger == enums.TriggerTypeAutomatic {
		return errors.New(errors.CodeInvalidState, fmt.Sprintf("job %q is paused", jobName))
	}
	state.running = true
	return nil
}

func (o *Orchestrator) releaseJob(jobName string) {
	o.mu.Lock()
	defer o.mu.Unlock()
	if state, ok := o.states[jobName]; ok {
		state.running = false
	}
}
