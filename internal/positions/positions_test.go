package positions

import (
	"context"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"

	"github.com/nexavest/nexavest-backend/pkg/db/models"
	"github.com/nexavest/nexavest-backend/pkg/enums"
	pkgerrors "github.com/nexavest/nexavest-backend/pkg/errors"
)

func newTestService(t *testing.T, now func() time.Time) (*Service, Repository) {
	t.Helper()
	dsn := "file:positions_" + uuid.NewString() + "?mode=memory&cache=shared"
	conn, err := gorm.Open(sqlite.Open(dsn), &gorm.Config{})
	if err != nil {
		t.Fatalf("open db: %v", err)
	}
	if err := conn.AutoMigrate(&models.PackageTerm{}, &models.Position{}); err != nil {
		t.Fatalf("migrate: %v", err)
	}
	repo := NewRepository(conn)
	svc, err := NewService(ServiceParams{Repo: repo, Now: now})
	if err != nil {
		t.Fatalf("new service: %v", err)
	}
	return svc, repo
}

func seedTerm(t *testing.T, repo Repository) *models.PackageTerm {
	t.Helper()
	term := &models.PackageTerm{
		ID:                uuid.New(),
		Name:              "starter-" + uuid.NewString()[:8],
		DailyRate:         decimal.RequireFromString("0.125"),
		DaysPerCycle:      8,
		PauseDays:         1,
		TotalCycles:       3,
		TotalDurationDays: 30,
		ReferralRate:      decimal.RequireFromString("0.05"),
		MinPrincipal:      decimal.RequireFromString("50"),
		MaxPrincipal:      decimal.RequireFromString("10000"),
		Active:            true,
	}
	if err := repo.CreateTerm(context.Background(), term); err != nil {
		t.Fatalf("seed term: %v", err)
	}
	return term
}

func TestPurchaseValidatesPrincipalBounds(t *testing.T) {
	t.Parallel()

	svc, repo := newTestService(t, nil)
	term := seedTerm(t, repo)
	ctx := context.Background()

	_, err := svc.Purchase(ctx, PurchaseInput{
		UserID:        uuid.New(),
		PackageTermID: term.ID,
		Principal:     decimal.RequireFromString("10"),
	})
	if !pkgerrors.IsCode(err, pkgerrors.CodeValidation) {
		t.Fatalf("expected validation error for low principal, got %v", err)
	}

	position, err := svc.Purchase(ctx, PurchaseInput{
		UserID:        uuid.New(),
		PackageTermID: term.ID,
		Principal:     decimal.RequireFromString("100"),
	})
	if err != nil {
		t.Fatalf("purchase: %v", err)
	}
	if position.Status != enums.PositionStatusPending {
		t.Fatalf("expected pending position, got %s", position.Status)
	}
	if position.CurrentCycle != 1 || position.CurrentDay != 1 {
		t.Fatalf("expected cursor at c1/d1, got c%d/d%d", position.CurrentCycle, position.CurrentDay)
	}
}

func TestActivateSchedulesFirstAccrual(t *testing.T) {
	t.Parallel()

	frozen := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)
	svc, repo := newTestService(t, func() time.Time { return frozen })
	term := seedTerm(t, repo)
	ctx := context.Background()

	position, err := svc.Purchase(ctx, PurchaseInput{
		UserID:        uuid.New(),
		PackageTermID: term.ID,
		Principal:     decimal.RequireFromString("100"),
	})
	if err != nil {
		t.Fatalf("purchase: %v", err)
	}

	activated, err := svc.Activate(ctx, position.ID)
	if err != nil {
		t.Fatalf("activate: %v", err)
	}
	if activated.Status != enums.PositionStatusActive {
		t.Fatalf("expected active, got %s", activated.Status)
	}
	if activated.NextAccrualAt == nil || !activated.NextAccrualAt.Equal(frozen.Add(24*time.Hour)) {
		t.Fatalf("expected first accrual a day after activation, got %v", activated.NextAccrualAt)
	}
}

func TestTransitionGuards(t *testing.T) {
	t.Parallel()

	svc, repo := newTestService(t, nil)
	term := seedTerm(t, repo)
	ctx := context.Background()

	position, err := svc.Purchase(ctx, PurchaseInput{
		UserID:        uuid.New(),
		PackageTermID: term.ID,
		Principal:     decimal.RequireFromString("100"),
	})
	if err != nil {
		t.Fatalf("purchase: %v", err)
	}

	// A pending position cannot pause.
	if _, err := svc.Pause(ctx, position.ID); !pkgerrors.IsCode(err, pkgerrors.CodeInvalidState) {
		t.Fatalf("expected invalid state, got %v", err)
	}

	if _, err := svc.Activate(ctx, position.ID); err != nil {
		t.Fatalf("activate: %v", err)
	}
	if _, err := svc.Pause(ctx, position.ID); err != nil {
		t.Fatalf("pause: %v", err)
	}
	if _, err := svc.Resume(ctx, position.ID); err != nil {
		t.Fatalf("resume: %v", err)
	}
	if _, err := svc.Cancel(ctx, position.ID); err != nil {
		t.Fatalf("cancel: %v", err)
	}

	// Cancelled is terminal.
	if _, err := svc.Activate(ctx, position.ID); !pkgerrors.IsCode(err, pkgerrors.CodeInvalidState) {
		t.Fatalf("expected invalid state after cancel, got %v", err)
	}
}

func TestFindDueForAccrual(t *testing.T) {
	t.Parallel()

	_, repo := newTestService(t, nil)
	term := seedTerm(t, repo)
	ctx := context.Background()
	now := time.Now().UTC()

	due := &models.Position{
		ID:            uuid.New(),
		UserID:        uuid.New(),
		PackageTermID: term.ID,
		Principal:     decimal.RequireFromString("100"),
		Status:        enums.PositionStatusActive,
		CurrentCycle:  1,
		CurrentDay:    1,
		NextAccrualAt: timePtr(now.Add(-time.Hour)),
		TotalCredited: decimal.Zero,
	}
	notYet := &models.Position{
		ID:            uuid.New(),
		UserID:        uuid.New(),
		PackageTermID: term.ID,
		Principal:     decimal.RequireFromString("100"),
		Status:        enums.PositionStatusActive,
		CurrentCycle:  1,
		CurrentDay:    1,
		NextAccrualAt: timePtr(now.Add(time.Hour)),
		TotalCredited: decimal.Zero,
	}
	for _, p := range []*models.Position{due, notYet} {
		if err := repo.Create(ctx, p); err != nil {
			t.Fatalf("seed position: %v", err)
		}
	}
	found, err := repo.FindDueForAccrual(ctx, now, 10)
	if err != nil {
		t.Fatalf("find due: %v", err)
	}
	if len(found) != 1 || found[0].ID != due.ID {
		t.Fatalf("expected only the due position, got %+v", found)
	}
	if found[0].PackageTerm == nil {
		t.Fatal("expected preloaded package term")
	}
}

func timePtr(t time.Time) *time.Time {
	return &t
}
