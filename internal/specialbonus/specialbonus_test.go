package specialbonus

import (
	"context"
	"testing"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"

	"github.com/nexavest/nexavest-backend/internal/commission"
	"github.com/nexavest/nexavest-backend/internal/ledger"
	"github.com/nexavest/nexavest-backend/internal/positions"
	"github.com/nexavest/nexavest-backend/internal/users"
	"github.com/nexavest/nexavest-backend/pkg/db/models"
	"github.com/nexavest/nexavest-backend/pkg/enums"
	pkgerrors "github.com/nexavest/nexavest-backend/pkg/errors"
)

type txClient struct {
	conn *gorm.DB
}

func (c *txClient) WithTx(ctx context.Context, fn func(tx *gorm.DB) error) error {
	return c.conn.WithContext(ctx).Transaction(fn)
}

type fixture struct {
	conn    *gorm.DB
	repo    Repository
	users   users.Repository
	service *Service
	ledger  *ledger.Service
	engine  *Engine
}

func newFixture(t *testing.T) *fixture {
	t.Helper()
	dsn := "file:specialbonus_" + uuid.NewString() + "?mode=memory&cache=shared"
	conn, err := gorm.Open(sqlite.Open(dsn), &gorm.Config{})
	if err != nil {
		t.Fatalf("open db: %v", err)
	}
	if err := conn.AutoMigrate(
		&models.User{}, &models.PackageTerm{}, &models.Position{},
		&models.LedgerEntry{}, &models.UserBalance{},
		&models.CommissionRecord{}, &models.SpecialAccount{},
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

	repo := NewRepository(conn)
	userRepo := users.NewRepository(conn)
	svc, err := NewService(repo, userRepo, nil)
	if err != nil {
		t.Fatalf("service: %v", err)
	}
	engine, err := NewEngine(EngineParams{
		DB:          client,
		Repo:        repo,
		Users:       userRepo,
		Positions:   positions.NewRepository(conn),
		Commissions: commission.NewRepository(conn),
		Ledger:      ledgerSvc,
		Rate:        decimal.RequireFromString("0.05"),
	})
	if err != nil {
		t.Fatalf("engine: %v", err)
	}
	return &fixture{conn: conn, repo: repo, users: userRepo, service: svc, ledger: ledgerSvc, engine: engine}
}

func (f *fixture) seedUser(t *testing.T, referredByCode string) *models.User {
	t.Helper()
	user := &models.User{
		ID:             uuid.New(),
		Email:          uuid.NewString()[:8] + "@example.com",
		Name:           "user",
		ReferralCode:   uuid.NewString()[:10],
		ReferredByCode: referredByCode,
	}
	if err := f.conn.Create(user).Error; err != nil {
		t.Fatalf("seed user: %v", err)
	}
	return user
}

func (f *fixture) seedDownstreamPosition(t *testing.T, owner *models.User, accruedDays int) *models.Position {
	t.Helper()
	term := &models.PackageTerm{
		ID:           uuid.New(),
		Name:         "term-" + uuid.NewString()[:8],
		DailyRate:    decimal.RequireFromString("0.01"),
		DaysPerCycle: 30,
		TotalCycles:  2,
		Active:       true,
	}
	if err := f.conn.Create(term).Error; err != nil {
		t.Fatalf("seed term: %v", err)
	}
	position := &models.Position{
		ID:            uuid.New(),
		UserID:        owner.ID,
		PackageTermID: term.ID,
		Principal:     decimal.RequireFromString("1000"),
		Status:        enums.PositionStatusActive,
		CurrentCycle:  1,
		CurrentDay:    accruedDays + 1,
		TotalCredited: decimal.Zero,
	}
	if err := f.conn.Create(position).Error; err != nil {
		t.Fatalf("seed position: %v", err)
	}
	return position
}

func TestAssignEnforcesSingleHolderPerRole(t *testing.T) {
	t.Parallel()

	f := newFixture(t)
	ctx := context.Background()
	first := f.seedUser(t, "")
	second := f.seedUser(t, "")

	if _, err := f.service.Assign(ctx, first.ID, enums.SpecialRoleLeader); err != nil {
		t.Fatalf("assign leader: %v", err)
	}

	// The leader seat is taken.
	if _, err := f.service.Assign(ctx, second.ID, enums.SpecialRoleLeader); !pkgerrors.IsCode(err, pkgerrors.CodeInvalidState) {
		t.Fatalf("expected invalid state, got %v", err)
	}

	// One user cannot hold both roles.
	if _, err := f.service.Assign(ctx, first.ID, enums.SpecialRoleParent); !pkgerrors.IsCode(err, pkgerrors.CodeInvalidState) {
		t.Fatalf("expected invalid state for double role, got %v", err)
	}

	// A different user can still take the parent seat.
	if _, err := f.service.Assign(ctx, second.ID, enums.SpecialRoleParent); err != nil {
		t.Fatalf("assign parent: %v", err)
	}
}

func TestDeactivateFreesTheRole(t *testing.T) {
	t.Parallel()

	f := newFixture(t)
	ctx := context.Background()
	first := f.seedUser(t, "")
	second := f.seedUser(t, "")

	if _, err := f.service.Assign(ctx, first.ID, enums.SpecialRoleLeader); err != nil {
		t.Fatalf("assign: %v", err)
	}
	if err := f.service.Deactivate(ctx, enums.SpecialRoleLeader); err != nil {
		t.Fatalf("deactivate: %v", err)
	}
	if _, err := f.service.Assign(ctx, second.ID, enums.SpecialRoleLeader); err != nil {
		t.Fatalf("reassign after deactivate: %v", err)
	}

	if err := f.service.Deactivate(ctx, enums.SpecialRoleParent); !pkgerrors.IsCode(err, pkgerrors.CodeNotFound) {
		t.Fatalf("expected not found for vacant role, got %v", err)
	}
}

func TestWeeklyBonusPaysPerCompletedWeek(t *testing.T) {
	t.Parallel()

	f := newFixture(t)
	ctx := context.Background()
	leader := f.seedUser(t, "")
	account, err := f.service.Assign(ctx, leader.ID, enums.SpecialRoleLeader)
	if err != nil {
		t.Fatalf("assign: %v", err)
	}

	downstream := f.seedUser(t, account.Code)
	// 15 accrued days = two completed weeks.
	f.seedDownstreamPosition(t, downstream, 15)

	summary, err := f.engine.Run(ctx)
	if err != nil {
		t.Fatalf("run: %v", err)
	}
	if summary.Paid != 2 {
		t.Fatalf("expected 2 weekly bonuses, got %+v", summary)
	}

	balance, err := f.ledger.GetBalance(ctx, leader.ID)
	if err != nil {
		t.Fatalf("balance: %v", err)
	}
	// 5% of 1000, twice.
	if !balance.Commission.Equal(decimal.RequireFromString("100")) {
		t.Fatalf("expected commission=100, got %s", balance.Commission)
	}

	// A second pass pays nothing new.
	summary, err = f.engine.Run(ctx)
	if err != nil {
		t.Fatalf("second run: %v", err)
	}
	if summary.Paid != 0 || summary.Duplicates != 2 {
		t.Fatalf("expected duplicates only, got %+v", summary)
	}
}

func TestBonusStillPaysAfterPositionCompletes(t *testing.T) {
	t.Parallel()

	f := newFixture(t)
	ctx := context.Background()
	leader := f.seedUser(t, "")
	account, err := f.service.Assign(ctx, leader.ID, enums.SpecialRoleLeader)
	if err != nil {
		t.Fatalf("assign: %v", err)
	}

	downstream := f.seedUser(t, account.Code)
	position := f.seedDownstreamPosition(t, downstream, 14)

	// The position finished before the bonus pass got around to it.
	err = f.conn.Model(&models.Position{}).
		Where("id = ?", position.ID).
		Update("status", enums.PositionStatusCompleted).Error
	if err != nil {
		t.Fatalf("complete position: %v", err)
	}

	summary, err := f.engine.Run(ctx)
	if err != nil {
		t.Fatalf("run: %v", err)
	}
	if summary.Paid != 2 {
		t.Fatalf("expected both earned weeks paid, got %+v", summary)
	}

	balance, err := f.ledger.GetBalance(ctx, leader.ID)
	if err != nil {
		t.Fatalf("balance: %v", err)
	}
	if !balance.Commission.Equal(decimal.RequireFromString("100")) {
		t.Fatalf("expected commission=100, got %s", balance.Commission)
	}
}

func TestBonusIgnoresUnrelatedPositions(t *testing.T) {
	t.Parallel()

	f := newFixture(t)
	ctx := context.Background()
	leader := f.seedUser(t, "")
	if _, err := f.service.Assign(ctx, leader.ID, enums.SpecialRoleLeader); err != nil {
		t.Fatalf("assign: %v", err)
	}

	// Signed up under nobody's code.
	stranger := f.seedUser(t, "")
	f.seedDownstreamPosition(t, stranger, 20)

	summary, err := f.engine.Run(ctx)
	if err != nil {
		t.Fatalf("run: %v", err)
	}
	if summary.Paid != 0 || summary.Positions != 0 {
		t.Fatalf("expected no downstream positions, got %+v", summary)
	}
}

func TestParentBonusUsesParentKind(t *testing.T) {
	t.Parallel()

	f := newFixture(t)
	ctx := context.Background()
	parent := f.seedUser(t, "")
	account, err := f.service.Assign(ctx, parent.ID, enums.SpecialRoleParent)
	if err != nil {
		t.Fatalf("assign: %v", err)
	}

	downstream := f.seedUser(t, account.Code)
	f.seedDownstreamPosition(t, downstream, 7)

	if _, err := f.engine.Run(ctx); err != nil {
		t.Fatalf("run: %v", err)
	}

	var entry models.LedgerEntry
	if err := f.conn.First(&entry, "user_id = ?", parent.ID).Error; err != nil {
		t.Fatalf("load entry: %v", err)
	}
	if entry.Kind != enums.LedgerEntryKindParentBonus {
		t.Fatalf("expected parent bonus kind, got %s", entry.Kind)
	}
}
