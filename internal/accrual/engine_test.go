package accrual

import (
	"context"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"

	"github.com/nexavest/nexavest-backend/internal/ledger"
	"github.com/nexavest/nexavest-backend/internal/positions"
	"github.com/nexavest/nexavest-backend/pkg/db/models"
	"github.com/nexavest/nexavest-backend/pkg/enums"
)

type txClient struct {
	conn *gorm.DB
}

func (c *txClient) WithTx(ctx context.Context, fn func(tx *gorm.DB) error) error {
	return c.conn.WithContext(ctx).Transaction(fn)
}

type fixture struct {
	conn      *gorm.DB
	engine    *Engine
	ledger    *ledger.Service
	positions positions.Repository
	clock     *fakeClock
}

type fakeClock struct {
	current time.Time
}

func (c *fakeClock) now() time.Time {
	return c.current
}

func (c *fakeClock) advanceDay() {
	c.current = c.current.Add(24 * time.Hour)
}

func newFixture(t *testing.T) *fixture {
	t.Helper()
	dsn := "file:accrual_" + uuid.NewString() + "?mode=memory&cache=shared"
	conn, err := gorm.Open(sqlite.Open(dsn), &gorm.Config{})
	if err != nil {
		t.Fatalf("open db: %v", err)
	}
	if err := conn.AutoMigrate(
		&models.PackageTerm{}, &models.Position{},
		&models.LedgerEntry{}, &models.UserBalance{},
	); err != nil {
		t.Fatalf("migrate: %v", err)
	}

	client := &txClient{conn: conn}
	ledgerSvc, err := ledger.NewService(ledger.ServiceParams{
		DB:   client,
		Repo: ledger.NewRepository(conn),
	})
	if err != nil {
		t.Fatalf("ledger service: %v", err)
	}

	clock := &fakeClock{current: time.Date(2026, 3, 1, 0, 0, 0, 0, time.UTC)}
	posRepo := positions.NewRepository(conn)
	engine, err := NewEngine(EngineParams{
		DB:        client,
		Positions: posRepo,
		Ledger:    ledgerSvc,
		BatchSize: 50,
		Now:       clock.now,
	})
	if err != nil {
		t.Fatalf("engine: %v", err)
	}
	return &fixture{conn: conn, engine: engine, ledger: ledgerSvc, positions: posRepo, clock: clock}
}

func (f *fixture) seedTerm(t *testing.T, rate string, daysPerCycle, pauseDays, totalCycles int) *models.PackageTerm {
	t.Helper()
	term := &models.PackageTerm{
		ID:                uuid.New(),
		Name:              "term-" + uuid.NewString()[:8],
		DailyRate:         decimal.RequireFromString(rate),
		DaysPerCycle:      daysPerCycle,
		PauseDays:         pauseDays,
		TotalCycles:       totalCycles,
		TotalDurationDays: daysPerCycle*totalCycles + pauseDays*totalCycles,
		ReferralRate:      decimal.RequireFromString("0.05"),
		Active:            true,
	}
	if err := f.positions.CreateTerm(context.Background(), term); err != nil {
		t.Fatalf("seed term: %v", err)
	}
	return term
}

func (f *fixture) seedActivePosition(t *testing.T, term *models.PackageTerm, principal string) *models.Position {
	t.Helper()
	due := f.clock.current
	activated := due.Add(-24 * time.Hour)
	position := &models.Position{
		ID:            uuid.New(),
		UserID:        uuid.New(),
		PackageTermID: term.ID,
		Principal:     decimal.RequireFromString(principal),
		Status:        enums.PositionStatusActive,
		CurrentCycle:  1,
		CurrentDay:    1,
		NextAccrualAt: &due,
		ActivatedAt:   &activated,
		TotalCredited: decimal.Zero,
	}
	if err := f.positions.Create(context.Background(), position); err != nil {
		t.Fatalf("seed position: %v", err)
	}
	return position
}

func (f *fixture) reload(t *testing.T, id uuid.UUID) *models.Position {
	t.Helper()
	position, err := f.positions.FindByID(context.Background(), id)
	if err != nil {
		t.Fatalf("reload position: %v", err)
	}
	return position
}

// The canonical package: $100 at 12.5% daily over an eight-day cycle pays
// $12.50 a day and exactly $100 across the cycle.
func TestEightDayCycleAccruesFullReturn(t *testing.T) {
	t.Parallel()

	f := newFixture(t)
	ctx := context.Background()
	term := f.seedTerm(t, "0.125", 8, 1, 3)
	position := f.seedActivePosition(t, term, "100")

	for day := 1; day <= 8; day++ {
		summary, err := f.engine.Run(ctx)
		if err != nil {
			t.Fatalf("run day %d: %v", day, err)
		}
		if summary.Credited != 1 {
			t.Fatalf("day %d: expected 1 credit, got %+v", day, summary)
		}
		f.clock.advanceDay()
	}

	balance, err := f.ledger.GetBalance(ctx, position.UserID)
	if err != nil {
		t.Fatalf("balance: %v", err)
	}
	if !balance.Available.Equal(decimal.RequireFromString("100")) {
		t.Fatalf("expected available=100 after cycle, got %s", balance.Available)
	}

	reloaded := f.reload(t, position.ID)
	if !reloaded.FirstCycleCompleted {
		t.Fatal("expected first cycle milestone")
	}
	if reloaded.CurrentCycle != 2 || reloaded.CurrentDay != 1 {
		t.Fatalf("expected cursor c2/d1, got c%d/d%d", reloaded.CurrentCycle, reloaded.CurrentDay)
	}
	if reloaded.PausedUntil == nil {
		t.Fatal("expected pause window between cycles")
	}
	if !reloaded.TotalCredited.Equal(decimal.RequireFromString("100")) {
		t.Fatalf("expected total credited 100, got %s", reloaded.TotalCredited)
	}
}

// Re-running a day that was already credited must not create money, no
// matter how many times it happens.
func TestRepeatedDayIsIdempotent(t *testing.T) {
	t.Parallel()

	f := newFixture(t)
	ctx := context.Background()
	term := f.seedTerm(t, "0.125", 8, 1, 3)
	position := f.seedActivePosition(t, term, "100")

	if _, err := f.engine.Run(ctx); err != nil {
		t.Fatalf("first run: %v", err)
	}

	// Rewind the cursor as a crashed run would leave it: entry written,
	// advance lost.
	for i := 0; i < 3; i++ {
		due := f.clock.current
		if err := f.conn.Model(&models.Position{}).
			Where("id = ?", position.ID).
			Updates(map[string]any{
				"current_day":     1,
				"current_cycle":   1,
				"next_accrual_at": due,
				"total_credited":  decimal.Zero,
			}).Error; err != nil {
			t.Fatalf("rewind: %v", err)
		}

		summary, err := f.engine.Run(ctx)
		if err != nil {
			t.Fatalf("rerun %d: %v", i, err)
		}
		if summary.Credited != 0 {
			t.Fatalf("rerun %d minted money: %+v", i, summary)
		}
		if summary.Processed != 1 {
			t.Fatalf("rerun %d: expected the position processed, got %+v", i, summary)
		}
	}

	balance, err := f.ledger.GetBalance(ctx, position.UserID)
	if err != nil {
		t.Fatalf("balance: %v", err)
	}
	if !balance.Available.Equal(decimal.RequireFromString("12.5")) {
		t.Fatalf("expected a single 12.5 credit, got %s", balance.Available)
	}

	// Even after the rewind, the duplicate pass advanced the cursor again.
	reloaded := f.reload(t, position.ID)
	if reloaded.CurrentDay != 2 {
		t.Fatalf("expected cursor advanced to day 2, got %d", reloaded.CurrentDay)
	}

	report, err := f.ledger.Reconcile(ctx)
	if err != nil {
		t.Fatalf("reconcile: %v", err)
	}
	if len(report.Divergences) != 0 {
		t.Fatalf("expected clean reconcile, got %+v", report.Divergences)
	}
}

func TestPositionCompletesAfterFinalCycle(t *testing.T) {
	t.Parallel()

	f := newFixture(t)
	ctx := context.Background()
	term := f.seedTerm(t, "0.1", 2, 0, 1)
	position := f.seedActivePosition(t, term, "50")

	for day := 1; day <= 2; day++ {
		if _, err := f.engine.Run(ctx); err != nil {
			t.Fatalf("run day %d: %v", day, err)
		}
		f.clock.advanceDay()
	}

	reloaded := f.reload(t, position.ID)
	if reloaded.Status != enums.PositionStatusCompleted {
		t.Fatalf("expected completed, got %s", reloaded.Status)
	}
	if reloaded.NextAccrualAt != nil {
		t.Fatal("completed position must not be scheduled")
	}
	if reloaded.CompletedAt == nil {
		t.Fatal("expected completion timestamp")
	}

	// A completed position is never picked up again.
	summary, err := f.engine.Run(ctx)
	if err != nil {
		t.Fatalf("post-completion run: %v", err)
	}
	if summary.Processed != 0 {
		t.Fatalf("expected idle pass, got %+v", summary)
	}
}

func TestPauseWindowDelaysNextCycle(t *testing.T) {
	t.Parallel()

	f := newFixture(t)
	ctx := context.Background()
	term := f.seedTerm(t, "0.1", 1, 2, 2)
	position := f.seedActivePosition(t, term, "10")

	summary, err := f.engine.Run(ctx)
	if err != nil {
		t.Fatalf("run: %v", err)
	}
	if summary.Credited != 1 || summary.MilestonesEmitted != 1 {
		t.Fatalf("unexpected summary: %+v", summary)
	}

	reloaded := f.reload(t, position.ID)
	if reloaded.PausedUntil == nil || reloaded.NextAccrualAt == nil {
		t.Fatalf("expected pause scheduling, got %+v", reloaded)
	}
	wantPause := f.clock.current.Add(2 * 24 * time.Hour)
	if !reloaded.PausedUntil.Equal(wantPause) {
		t.Fatalf("expected pause until %v, got %v", wantPause, reloaded.PausedUntil)
	}
	if !reloaded.NextAccrualAt.Equal(wantPause.Add(24 * time.Hour)) {
		t.Fatalf("expected next accrual after pause, got %v", reloaded.NextAccrualAt)
	}

	// Inside the pause window nothing is due.
	f.clock.advanceDay()
	summary, err = f.engine.Run(ctx)
	if err != nil {
		t.Fatalf("paused run: %v", err)
	}
	if summary.Processed != 0 {
		t.Fatalf("expected idle pass inside pause, got %+v", summary)
	}
}
