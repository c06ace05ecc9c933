package commission

import (
	"context"
	"testing"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"

	"github.com/nexavest/nexavest-backend/internal/ledger"
	"github.com/nexavest/nexavest-backend/internal/users"
	"github.com/nexavest/nexavest-backend/pkg/config"
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
	conn   *gorm.DB
	repo   Repository
	users  users.Repository
	ledger *ledger.Service
}

func newFixture(t *testing.T) *fixture {
	t.Helper()
	dsn := "file:commission_" + uuid.NewString() + "?mode=memory&cache=shared"
	conn, err := gorm.Open(sqlite.Open(dsn), &gorm.Config{})
	if err != nil {
		t.Fatalf("open db: %v", err)
	}
	if err := conn.AutoMigrate(
		&models.User{}, &models.PackageTerm{}, &models.Position{},
		&models.LedgerEntry{}, &models.UserBalance{}, &models.CommissionRecord{},
	); err != nil {
		t.Fatalf("migrate: %v", err)
	}
	ledgerSvc, err := ledger.NewService(ledger.ServiceParams{
		DB:   &txClient{conn: conn},
		Repo: ledger.NewRepository(conn),
	})
	if err != nil {
		t.Fatalf("ledger service: %v", err)
	}
	return &fixture{
		conn:   conn,
		repo:   NewRepository(conn),
		users:  users.NewRepository(conn),
		ledger: ledgerSvc,
	}
}

func (f *fixture) newEngine(t *testing.T, policy string) *Engine {
	t.Helper()
	engine, err := NewEngine(EngineParams{
		DB:     &txClient{conn: f.conn},
		Repo:   f.repo,
		Users:  f.users,
		Ledger: f.ledger,
		Config: config.CommissionConfig{Policy: policy, BatchSize: 50},
	})
	if err != nil {
		t.Fatalf("engine: %v", err)
	}
	return engine
}

func (f *fixture) seedUser(t *testing.T, referrerID *uuid.UUID) *models.User {
	t.Helper()
	user := &models.User{
		ID:           uuid.New(),
		Email:        uuid.NewString()[:8] + "@example.com",
		Name:         "user",
		ReferralCode: uuid.NewString()[:10],
		ReferrerID:   referrerID,
	}
	if err := f.conn.Create(user).Error; err != nil {
		t.Fatalf("seed user: %v", err)
	}
	return user
}

func (f *fixture) seedPosition(t *testing.T, owner *models.User, status enums.PositionStatus, firstCycleDone bool) *models.Position {
	t.Helper()
	term := &models.PackageTerm{
		ID:           uuid.New(),
		Name:         "term-" + uuid.NewString()[:8],
		DailyRate:    decimal.RequireFromString("0.125"),
		DaysPerCycle: 8,
		TotalCycles:  3,
		ReferralRate: decimal.RequireFromString("0.05"),
		Active:       true,
	}
	if err := f.conn.Create(term).Error; err != nil {
		t.Fatalf("seed term: %v", err)
	}
	position := &models.Position{
		ID:                  uuid.New(),
		UserID:              owner.ID,
		PackageTermID:       term.ID,
		Principal:           decimal.RequireFromString("200"),
		Status:              status,
		CurrentCycle:        2,
		CurrentDay:          1,
		FirstCycleCompleted: firstCycleDone,
		TotalCredited:       decimal.Zero,
	}
	if err := f.conn.Create(position).Error; err != nil {
		t.Fatalf("seed position: %v", err)
	}
	return position
}

func TestPaysReferrerOnceFirstCycleCompletes(t *testing.T) {
	t.Parallel()

	f := newFixture(t)
	ctx := context.Background()
	referrer := f.seedUser(t, nil)
	owner := f.seedUser(t, &referrer.ID)
	position := f.seedPosition(t, owner, enums.PositionStatusActive, true)

	engine := f.newEngine(t, config.CommissionPolicyStrict)
	summary, err := engine.Run(ctx)
	if err != nil {
		t.Fatalf("run: %v", err)
	}
	if summary.Paid != 1 {
		t.Fatalf("expected 1 payout, got %+v", summary)
	}

	balance, err := f.ledger.GetBalance(ctx, referrer.ID)
	if err != nil {
		t.Fatalf("balance: %v", err)
	}
	// 5% of the 200 principal.
	if !balance.Commission.Equal(decimal.RequireFromString("10")) {
		t.Fatalf("expected commission=10, got %s", balance.Commission)
	}

	records, err := f.repo.ListByReceiver(ctx, referrer.ID)
	if err != nil {
		t.Fatalf("list records: %v", err)
	}
	if len(records) != 1 || records[0].PositionID != position.ID {
		t.Fatalf("unexpected records: %+v", records)
	}
	if records[0].Status != enums.CommissionStatusPaid {
		t.Fatalf("expected paid record, got %s", records[0].Status)
	}
}

func TestSecondRunPaysNothing(t *testing.T) {
	t.Parallel()

	f := newFixture(t)
	ctx := context.Background()
	referrer := f.seedUser(t, nil)
	owner := f.seedUser(t, &referrer.ID)
	f.seedPosition(t, owner, enums.PositionStatusActive, true)

	engine := f.newEngine(t, config.CommissionPolicyStrict)
	if _, err := engine.Run(ctx); err != nil {
		t.Fatalf("first run: %v", err)
	}
	summary, err := engine.Run(ctx)
	if err != nil {
		t.Fatalf("second run: %v", err)
	}
	if summary.Paid != 0 || summary.Scanned != 0 {
		t.Fatalf("expected nothing to scan, got %+v", summary)
	}

	balance, _ := f.ledger.GetBalance(ctx, referrer.ID)
	if !balance.Commission.Equal(decimal.RequireFromString("10")) {
		t.Fatalf("expected commission unchanged at 10, got %s", balance.Commission)
	}
}

func TestStrictPolicySkipsPendingPositions(t *testing.T) {
	t.Parallel()

	f := newFixture(t)
	ctx := context.Background()
	referrer := f.seedUser(t, nil)
	owner := f.seedUser(t, &referrer.ID)
	f.seedPosition(t, owner, enums.PositionStatusPending, true)

	strict := f.newEngine(t, config.CommissionPolicyStrict)
	summary, err := strict.Run(ctx)
	if err != nil {
		t.Fatalf("strict run: %v", err)
	}
	if summary.Scanned != 0 {
		t.Fatalf("strict policy must ignore pending positions, got %+v", summary)
	}

	relaxed := f.newEngine(t, config.CommissionPolicyRelaxed)
	summary, err = relaxed.Run(ctx)
	if err != nil {
		t.Fatalf("relaxed run: %v", err)
	}
	if summary.Paid != 1 {
		t.Fatalf("relaxed policy should pay, got %+v", summary)
	}
}

func TestUnfinishedFirstCycleIsNotEligible(t *testing.T) {
	t.Parallel()

	f := newFixture(t)
	ctx := context.Background()
	referrer := f.seedUser(t, nil)
	owner := f.seedUser(t, &referrer.ID)
	f.seedPosition(t, owner, enums.PositionStatusActive, false)

	engine := f.newEngine(t, config.CommissionPolicyStrict)
	summary, err := engine.Run(ctx)
	if err != nil {
		t.Fatalf("run: %v", err)
	}
	if summary.Scanned != 0 || summary.Paid != 0 {
		t.Fatalf("expected no candidates before the milestone, got %+v", summary)
	}
}

func TestOwnerWithoutReferrerIsNoOp(t *testing.T) {
	t.Parallel()

	f := newFixture(t)
	ctx := context.Background()
	owner := f.seedUser(t, nil)
	f.seedPosition(t, owner, enums.PositionStatusActive, true)

	engine := f.newEngine(t, config.CommissionPolicyStrict)
	summary, err := engine.Run(ctx)
	if err != nil {
		t.Fatalf("run: %v", err)
	}
	if summary.Paid != 0 || summary.NoReferrer != 1 {
		t.Fatalf("expected a no-referrer skip, got %+v", summary)
	}
}
