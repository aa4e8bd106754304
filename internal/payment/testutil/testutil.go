// Package testutil wires in-memory stores and fakes for payment tests.
package testutil

import (
	"context"
	"fmt"
	"os"
	"strings"
	"sync"
	"testing"

	"github.com/google/uuid"
	"github.com/stretchr/testify/require"
	"gorm.io/driver/postgres"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
	gormlogger "gorm.io/gorm/logger"

	"github.com/tair/course-payments/internal/payment/domain"
	"github.com/tair/course-payments/internal/payment/repository"
)

// NewDB opens a private in-memory sqlite database with every table migrated
func NewDB(t *testing.T) *gorm.DB {
	t.Helper()
	dsn := fmt.Sprintf("file:%s?mode=memory&cache=shared", strings.ReplaceAll(uuid.New().String(), "-", ""))
	db, err := gorm.Open(sqlite.Open(dsn), &gorm.Config{
		TranslateError: true,
		Logger:         gormlogger.Default.LogMode(gormlogger.Silent),
	})
	require.NoError(t, err)

	sqlDB, err := db.DB()
	require.NoError(t, err)
	sqlDB.SetMaxOpenConns(1)
	t.Cleanup(func() { _ = sqlDB.Close() })

	require.NoError(t, repository.AutoMigrate(db))
	return db
}

// NewRepositories returns the gorm repositories over a fresh database
func NewRepositories(t *testing.T) (domain.Repositories, *gorm.DB) {
	t.Helper()
	db := NewDB(t)
	return repository.NewGormRepositories(db), db
}

// PostgresDSNEnv names the database used by tests that need real row locking
const PostgresDSNEnv = "PAYMENT_TEST_POSTGRES_DSN"

// NewPostgresRepositories returns repositories over the database in
// PostgresDSNEnv and skips the test when it is unset. Tables are shared
// between runs, so callers use fresh user ids.
func NewPostgresRepositories(t *testing.T) domain.Repositories {
	t.Helper()
	dsn := os.Getenv(PostgresDSNEnv)
	if dsn == "" {
		t.Skipf("%s not set", PostgresDSNEnv)
	}
	db, err := gorm.Open(postgres.Open(dsn), &gorm.Config{
		TranslateError: true,
		Logger:         gormlogger.Default.LogMode(gormlogger.Silent),
	})
	require.NoError(t, err)

	sqlDB, err := db.DB()
	require.NoError(t, err)
	t.Cleanup(func() { _ = sqlDB.Close() })

	require.NoError(t, repository.AutoMigrate(db))
	return repository.NewGormRepositories(db)
}

// SeedBalance credits amount to userID as a manual adjustment
func SeedBalance(t *testing.T, repos domain.Repositories, userID uint, amount int64) {
	t.Helper()
	err := repos.Tx.WithinTx(context.Background(), func(ctx context.Context, tx domain.Repositories) error {
		_, err := tx.Ledger.Credit(ctx, userID, amount, domain.LedgerEntry{
			UserID:        userID,
			Type:          domain.EntryEarned,
			AmountMinor:   amount,
			ReferenceType: domain.RefManualAdjustment,
			ReferenceID:   uuid.New().String(),
			Description:   "seed",
		})
		return err
	})
	require.NoError(t, err)
}

// SeedCourse inserts an active course
func SeedCourse(t *testing.T, db *gorm.DB, price, finalModulesPrice int64) *domain.Course {
	t.Helper()
	course := &domain.Course{
		Title:                  "Go in production",
		PriceMinor:             price,
		FinalModulesPriceMinor: finalModulesPrice,
		IsActive:               true,
	}
	require.NoError(t, db.Create(course).Error)
	return course
}

// RequireLedgerConsistent checks the stored balance equals the sum of the entries
func RequireLedgerConsistent(t *testing.T, repos domain.Repositories, userID uint) {
	t.Helper()
	ctx := context.Background()
	bal, err := repos.Ledger.GetBalance(ctx, userID)
	require.NoError(t, err)
	derived, err := repos.Ledger.DerivedBalance(ctx, userID)
	require.NoError(t, err)
	require.Equal(t, derived, bal.Balance, "balance of user %d diverged from its ledger", userID)
	require.GreaterOrEqual(t, bal.Balance, int64(0))
}

// FakeGateway is a scripted domain.Gateway
type FakeGateway struct {
	mu sync.Mutex

	ChargeErr    error
	PayoutErr    error
	PayoutStatus domain.PayoutStatus

	// OnCharge runs after a charge is created, OnPayout before a payout answers
	OnCharge func(domain.ChargeRequest)
	OnPayout func(domain.PayoutRequest)

	Charges    []domain.ChargeRequest
	ChargeKeys []string
	Payouts    []domain.PayoutRequest
	PayoutKeys []string

	// charges answers a repeated idempotency key with the first charge
	charges map[string]*domain.ChargeResult
}

// NewFakeGateway returns a gateway whose payouts succeed synchronously
func NewFakeGateway() *FakeGateway {
	return &FakeGateway{
		PayoutStatus: domain.PayoutSucceeded,
		charges:      make(map[string]*domain.ChargeResult),
	}
}

func (g *FakeGateway) CreateCharge(_ context.Context, req domain.ChargeRequest, key string) (*domain.ChargeResult, error) {
	g.mu.Lock()
	defer g.mu.Unlock()

	g.Charges = append(g.Charges, req)
	g.ChargeKeys = append(g.ChargeKeys, key)
	if g.ChargeErr != nil {
		return nil, g.ChargeErr
	}
	if res, ok := g.charges[key]; ok {
		return res, nil
	}
	id := fmt.Sprintf("pay_%d", len(g.charges)+1)
	res := &domain.ChargeResult{ExternalID: id, ConfirmationURL: "https://gateway.test/confirm/" + id}
	g.charges[key] = res
	if g.OnCharge != nil {
		g.OnCharge(req)
	}
	return res, nil
}

func (g *FakeGateway) CreatePayout(_ context.Context, req domain.PayoutRequest, key string) (*domain.PayoutResult, error) {
	g.mu.Lock()
	defer g.mu.Unlock()

	g.Payouts = append(g.Payouts, req)
	g.PayoutKeys = append(g.PayoutKeys, key)
	if g.OnPayout != nil {
		g.OnPayout(req)
	}
	if g.PayoutErr != nil {
		return nil, g.PayoutErr
	}
	return &domain.PayoutResult{
		ExternalID: fmt.Sprintf("po_%d", len(g.Payouts)),
		Status:     g.PayoutStatus,
	}, nil
}

// LastCharge returns the most recent charge request
func (g *FakeGateway) LastCharge() domain.ChargeRequest {
	g.mu.Lock()
	defer g.mu.Unlock()
	return g.Charges[len(g.Charges)-1]
}

// Publisher records published events
type Publisher struct {
	mu     sync.Mutex
	Events []domain.Event
}

func (p *Publisher) Publish(_ context.Context, event domain.Event) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.Events = append(p.Events, event)
	return nil
}

// Types returns the types of the recorded events in publish order
func (p *Publisher) Types() []string {
	p.mu.Lock()
	defer p.mu.Unlock()
	types := make([]string, 0, len(p.Events))
	for _, e := range p.Events {
		types = append(types, e.Type)
	}
	return types
}
