package automation

import (
	"context"
	stdErrors "errors"
	"io"
	"sync"
	"testing"
	"time"

	"github.com/rs/zerolog"

	"github.com/nexavest/nexavest-backend/pkg/db/models"
	"github.com/nexavest/nexavest-backend/pkg/enums"
	pkgerrors "github.com/nexavest/nexavest-backend/pkg/errors"
	"github.com/nexavest/nexavest-backend/pkg/logger"
)

type fakeJob struct {
	name    string
	mu      sync.Mutex
	runs    int
	err     error
	started chan struct{}
	release chan struct{}
}

func (j *fakeJob) Name() string     { return j.name }
func (j *fakeJob) Category() string { return "test" }

func (j *fakeJob) Run(ctx context.Context) (Result, error) {
	j.mu.Lock()
	j.runs++
	j.mu.Unlock()
	if j.started != nil {
		close(j.started)
	}
	if j.release != nil {
		<-j.release
	}
	return Result{Records: 3, Metadata: map[string]int{"records": 3}}, j.err
}

func (j *fakeJob) runCount() int {
	j.mu.Lock()
	defer j.mu.Unlock()
	return j.runs
}

type fakeLock struct {
	acquire bool
}

func (l *fakeLock) Acquire(ctx context.Context) (bool, error) { return l.acquire, nil }
func (l *fakeLock) Release(ctx context.Context) error         { return nil }

type memoryRuns struct {
	mu   sync.Mutex
	rows []*models.AutomationRun
}

func (m *memoryRuns) Create(ctx context.Context, run *models.AutomationRun) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	copied := *run
	m.rows = append(m.rows, &copied)
	return nil
}

func (m *memoryRuns) Update(ctx context.Context, run *models.AutomationRun) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	for i, row := range m.rows {
		if row.ID == run.ID {
			copied := *run
			m.rows[i] = &copied
		}
	}
	return nil
}

func (m *memoryRuns) ListRecent(ctx context.Context, jobName string, limit int) ([]models.AutomationRun, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var out []models.AutomationRun
	for _, row := range m.rows {
		if jobName == "" || row.JobName == jobName {
			out = append(out, *row)
		}
	}
	return out, nil
}

func (m *memoryRuns) LatestPerJob(ctx context.Context) ([]models.AutomationRun, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	latest := make(map[string]models.AutomationRun)
	for _, row := range m.rows {
		if current, ok := latest[row.JobName]; !ok || row.StartedAt.After(current.StartedAt) {
			latest[row.JobName] = *row
		}
	}
	out := make([]models.AutomationRun, 0, len(latest))
	for _, run := range latest {
		out = append(out, run)
	}
	return out, nil
}

func (m *memoryRuns) last(t *testing.T) models.AutomationRun {
	t.Helper()
	m.mu.Lock()
	defer m.mu.Unlock()
	if len(m.rows) == 0 {
		t.Fatal("no automation runs recorded")
	}
	return *m.rows[len(m.rows)-1]
}

func newTestOrchestrator(t *testing.T, jobs ...Job) (*Orchestrator, *memoryRuns) {
	t.Helper()
	runs := &memoryRuns{}
	orch, err := NewOrchestrator(OrchestratorParams{
		Logger:   logger.New(logger.Options{Level: zerolog.ErrorLevel, Output: io.Discard}),
		Registry: NewRegistry(jobs...),
		Runs:     runs,
		Lock:     &fakeLock{acquire: true},
	})
	if err != nil {
		t.Fatalf("orchestrator: %v", err)
	}
	return orch, runs
}

func TestTriggerRecordsCompletedRun(t *testing.T) {
	t.Parallel()

	job := &fakeJob{name: "daily-accrual"}
	orch, runs := newTestOrchestrator(t, job)

	if err := orch.Trigger(context.Background(), "daily-accrual"); err != nil {
		t.Fatalf("trigger: %v", err)
	}
	if job.runCount() != 1 {
		t.Fatalf("expected 1 run, got %d", job.runCount())
	}

	run := runs.last(t)
	if run.Status != enums.RunStatusCompleted {
		t.Fatalf("expected completed run, got %s", run.Status)
	}
	if run.TriggerType != enums.TriggerTypeManual {
		t.Fatalf("expected manual trigger, got %s", run.TriggerType)
	}
	if run.RecordsProcessed != 3 {
		t.Fatalf("expected 3 records, got %d", run.RecordsProcessed)
	}
	if run.FinishedAt == nil || len(run.Metadata) == 0 {
		t.Fatalf("expected finished run with metadata, got %+v", run)
	}
}

func TestTriggerUnknownJob(t *testing.T) {
	t.Parallel()

	orch, _ := newTestOrchestrator(t)
	err := orch.Trigger(context.Background(), "nope")
	if !pkgerrors.IsCode(err, pkgerrors.CodeNotFound) {
		t.Fatalf("expected not found, got %v", err)
	}
}

func TestTriggerWhileRunningIsRejected(t *testing.T) {
	t.Parallel()

	job := &fakeJob{
		name:    "daily-accrual",
		started: make(chan struct{}),
		release: make(chan struct{}),
	}
	orch, _ := newTestOrchestrator(t, job)

	done := make(chan error, 1)
	go func() {
		done <- orch.Trigger(context.Background(), "daily-accrual")
	}()

	select {
	case <-job.started:
	case <-time.After(2 * time.Second):
		t.Fatal("job never started")
	}

	err := orch.Trigger(context.Background(), "daily-accrual")
	if !pkgerrors.IsCode(err, pkgerrors.CodeInvalidState) {
		t.Fatalf("expected invalid state, got %v", err)
	}

	close(job.release)
	if err := <-done; err != nil {
		t.Fatalf("first trigger: %v", err)
	}
}

func TestFailedRunIsRecorded(t *testing.T) {
	t.Parallel()

	job := &fakeJob{name: "ledger-reconcile", err: stdErrors.New("boom")}
	orch, runs := newTestOrchestrator(t, job)

	if err := orch.Trigger(context.Background(), "ledger-reconcile"); err == nil {
		t.Fatal("expected trigger to surface the job error")
	}

	run := runs.last(t)
	if run.Status != enums.RunStatusFailed {
		t.Fatalf("expected failed run, got %s", run.Status)
	}
	if run.Error == nil || *run.Error != "boom" {
		t.Fatalf("expected error on run record, got %+v", run.Error)
	}
}

func TestPausedJobSkipsTickButAllowsManual(t *testing.T) {
	t.Parallel()

	job := &fakeJob{name: "special-bonus"}
	orch, _ := newTestOrchestrator(t, job)

	if err := orch.Pause("special-bonus"); err != nil {
		t.Fatalf("pause: %v", err)
	}
	if err := orch.tick(context.Background()); err != nil {
		t.Fatalf("tick: %v", err)
	}
	if job.runCount() != 0 {
		t.Fatalf("paused job must not run on a tick, ran %d times", job.runCount())
	}

	if err := orch.Trigger(context.Background(), "special-bonus"); err != nil {
		t.Fatalf("manual trigger while paused: %v", err)
	}
	if job.runCount() != 1 {
		t.Fatalf("expected manual run, got %d", job.runCount())
	}

	if err := orch.Resume("special-bonus"); err != nil {
		t.Fatalf("resume: %v", err)
	}
	if err := orch.tick(context.Background()); err != nil {
		t.Fatalf("tick after resume: %v", err)
	}
	if job.runCount() != 2 {
		t.Fatalf("expected tick run after resume, got %d", job.runCount())
	}
}

func TestTickSkipsWhenLockHeldElsewhere(t *testing.T) {
	t.Parallel()

	job := &fakeJob{name: "daily-accrual"}
	runs := &memoryRuns{}
	orch, err := NewOrchestrator(OrchestratorParams{
		Logger:   logger.New(logger.Options{Level: zerolog.ErrorLevel, Output: io.Discard}),
		Registry: NewRegistry(job),
		Runs:     runs,
		Lock:     &fakeLock{acquire: false},
	})
	if err != nil {
		t.Fatalf("orchestrator: %v", err)
	}

	if err := orch.tick(context.Background()); err != nil {
		t.Fatalf("tick: %v", err)
	}
	if job.runCount() != 0 {
		t.Fatalf("expected no runs without the lock, got %d", job.runCount())
	}
}

func TestStatusReflectsPauseState(t *testing.T) {
	t.Parallel()

	orch, _ := newTestOrchestrator(t, &fakeJob{name: "daily-accrual"}, &fakeJob{name: "special-bonus"})
	if err := orch.Pause("special-bonus"); err != nil {
		t.Fatalf("pause: %v", err)
	}

	statuses, err := orch.Status(context.Background())
	if err != nil {
		t.Fatalf("status: %v", err)
	}
	if len(statuses) != 2 {
		t.Fatalf("expected 2 statuses, got %d", len(statuses))
	}
	byName := make(map[string]JobStatus)
	for _, status := range statuses {
		byName[status.Name] = status
	}
	if byName["special-bonus"].Paused != true || byName["daily-accrual"].Paused != false {
		t.Fatalf("unexpected pause flags: %+v", byName)
	}
	if byName["daily-accrual"].State != "idle" {
		t.Fatalf("expected idle state, got %s", byName["daily-accrual"].State)
	}
}

func TestStatusReportsLastAndNextRun(t *testing.T) {
	t.Parallel()

	accrual := &fakeJob{name: "daily-accrual"}
	bonus := &fakeJob{name: "special-bonus"}
	orch, _ := newTestOrchestrator(t, accrual, bonus)

	before, err := orch.Status(context.Background())
	if err != nil {
		t.Fatalf("status: %v", err)
	}
	for _, status := range before {
		if status.LastRunAt != nil || status.NextRunAt != nil {
			t.Fatalf("expected no run history before first run, got %+v", status)
		}
	}

	if err := orch.Trigger(context.Background(), "daily-accrual"); err != nil {
		t.Fatalf("trigger: %v", err)
	}
	if err := orch.Pause("special-bonus"); err != nil {
		t.Fatalf("pause: %v", err)
	}
	if err := orch.Trigger(context.Background(), "special-bonus"); err != nil {
		t.Fatalf("manual trigger: %v", err)
	}

	statuses, err := orch.Status(context.Background())
	if err != nil {
		t.Fatalf("status: %v", err)
	}
	byName := make(map[string]JobStatus)
	for _, status := range statuses {
		byName[status.Name] = status
	}

	ran := byName["daily-accrual"]
	if ran.LastRunAt == nil || ran.LastRunStatus != enums.RunStatusCompleted {
		t.Fatalf("expected completed last run, got %+v", ran)
	}
	if ran.NextRunAt == nil {
		t.Fatal("expected a projected next run for a scheduled job")
	}
	if got, want := *ran.NextRunAt, ran.LastRunAt.Add(orch.interval); !got.Equal(want) {
		t.Fatalf("expected next run %s, got %s", want, got)
	}

	paused := byName["special-bonus"]
	if paused.LastRunAt == nil {
		t.Fatal("expected manual run to surface as last run")
	}
	if paused.NextRunAt != nil {
		t.Fatalf("paused job must not project a next run, got %s", paused.NextRunAt)
	}
}
