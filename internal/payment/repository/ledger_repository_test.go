package repository_test

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"sync/atomic"
	"testing"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/tair/course-payments/internal/payment/domain"
	"github.com/tair/course-payments/internal/payment/testutil"
)

func entry(userID uint, typ domain.EntryType, amount int64, refType string) domain.LedgerEntry {
	return domain.LedgerEntry{
		UserID:        userID,
		Type:          typ,
		AmountMinor:   amount,
		ReferenceType: refType,
		ReferenceID:   "1",
	}
}

func TestLedger_CreditDebit(t *testing.T) {
	repos, _ := testutil.NewRepositories(t)
	ctx := context.Background()

	bal, err := repos.Ledger.Credit(ctx, 1, 100000, entry(1, domain.EntryEarned, 100000, domain.RefBalanceTopup))
	require.NoError(t, err)
	assert.Equal(t, int64(100000), bal.Balance)
	assert.Equal(t, int64(100000), bal.TotalEarned)

	bal, err = repos.Ledger.Debit(ctx, 1, 30000,
		entry(1, domain.EntryWithdrawn, 29100, domain.RefWithdrawal),
		entry(1, domain.EntrySpent, 900, domain.RefWithdrawalCommission))
	require.NoError(t, err)
	assert.Equal(t, int64(70000), bal.Balance)
	assert.Equal(t, int64(29100), bal.TotalWithdrawn)

	entries, err := repos.Ledger.ListEntries(ctx, 1, true, 10, 0)
	require.NoError(t, err)
	assert.Len(t, entries, 3)

	testutil.RequireLedgerConsistent(t, repos, 1)
}

func TestLedger_DebitInsufficientFunds(t *testing.T) {
	repos, _ := testutil.NewRepositories(t)
	ctx := context.Background()
	testutil.SeedBalance(t, repos, 1, 5000)

	_, err := repos.Ledger.Debit(ctx, 1, 5001, entry(1, domain.EntrySpent, 5001, domain.RefCoursePurchase))
	assert.ErrorIs(t, err, domain.ErrInsufficientFunds)

	// a user with no balance row at all
	_, err = repos.Ledger.Debit(ctx, 2, 1, entry(2, domain.EntrySpent, 1, domain.RefCoursePurchase))
	assert.ErrorIs(t, err, domain.ErrInsufficientFunds)

	bal, err := repos.Ledger.GetBalance(ctx, 1)
	require.NoError(t, err)
	assert.Equal(t, int64(5000), bal.Balance)

	entries, err := repos.Ledger.ListEntries(ctx, 1, true, 10, 0)
	require.NoError(t, err)
	assert.Len(t, entries, 1, "a rejected debit appends nothing")
}

func TestLedger_RejectsUnbalancedPosting(t *testing.T) {
	repos, _ := testutil.NewRepositories(t)

	_, err := repos.Ledger.Credit(context.Background(), 1, 1000, entry(1, domain.EntryEarned, 999, domain.RefBalanceTopup))
	assert.ErrorIs(t, err, domain.ErrValidation)

	bal, err := repos.Ledger.GetBalance(context.Background(), 1)
	require.NoError(t, err)
	assert.Equal(t, int64(0), bal.Balance)
}

func TestLedger_TransactionRollback(t *testing.T) {
	repos, _ := testutil.NewRepositories(t)
	ctx := context.Background()
	testutil.SeedBalance(t, repos, 1, 1000)

	boom := errors.New("boom")
	err := repos.Tx.WithinTx(ctx, func(ctx context.Context, tx domain.Repositories) error {
		if _, err := tx.Ledger.Debit(ctx, 1, 400, entry(1, domain.EntrySpent, 400, domain.RefCoursePurchase)); err != nil {
			return err
		}
		return boom
	})
	require.ErrorIs(t, err, boom)

	bal, err := repos.Ledger.GetBalance(ctx, 1)
	require.NoError(t, err)
	assert.Equal(t, int64(1000), bal.Balance)
	testutil.RequireLedgerConsistent(t, repos, 1)
}

func TestLedger_NestedSavepointRollsBackOnlyInner(t *testing.T) {
	repos, _ := testutil.NewRepositories(t)
	ctx := context.Background()

	err := repos.Tx.WithinTx(ctx, func(ctx context.Context, tx domain.Repositories) error {
		if _, err := tx.Ledger.Credit(ctx, 1, 500, entry(1, domain.EntryEarned, 500, domain.RefBalanceTopup)); err != nil {
			return err
		}
		inner := tx.Tx.WithinTx(ctx, func(ctx context.Context, sp domain.Repositories) error {
			if _, err := sp.Ledger.Credit(ctx, 2, 50, entry(2, domain.EntryEarned, 50, domain.RefReferralCommission)); err != nil {
				return err
			}
			return errors.New("commission failed")
		})
		assert.Error(t, inner)
		return nil
	})
	require.NoError(t, err)

	bal, err := repos.Ledger.GetBalance(ctx, 1)
	require.NoError(t, err)
	assert.Equal(t, int64(500), bal.Balance)

	bal, err = repos.Ledger.GetBalance(ctx, 2)
	require.NoError(t, err)
	assert.Equal(t, int64(0), bal.Balance)
}

func TestLedger_ListEntriesHidesSystem(t *testing.T) {
	repos, _ := testutil.NewRepositories(t)
	ctx := context.Background()

	system := entry(1, domain.EntryEarned, 900, domain.RefGatewayCharge)
	system.IsSystem = true
	_, err := repos.Ledger.Credit(ctx, 1, 900, system)
	require.NoError(t, err)
	_, err = repos.Ledger.Debit(ctx, 1, 900, entry(1, domain.EntrySpent, 900, domain.RefCoursePurchase))
	require.NoError(t, err)

	visible, err := repos.Ledger.ListEntries(ctx, 1, false, 10, 0)
	require.NoError(t, err)
	require.Len(t, visible, 1)
	assert.Equal(t, domain.EntrySpent, visible[0].Type)

	all, err := repos.Ledger.ListEntries(ctx, 1, true, 10, 0)
	require.NoError(t, err)
	assert.Len(t, all, 2)

	bal, err := repos.Ledger.GetBalance(ctx, 1)
	require.NoError(t, err)
	assert.Equal(t, int64(0), bal.Balance)
	assert.Equal(t, int64(0), bal.TotalEarned)
}

func TestLedger_ConcurrentCreditDebit(t *testing.T) {
	t.Run("sqlite", func(t *testing.T) {
		repos, _ := testutil.NewRepositories(t)
		concurrentCreditDebit(t, repos, 1)
	})
	t.Run("postgres", func(t *testing.T) {
		repos := testutil.NewPostgresRepositories(t)
		concurrentCreditDebit(t, repos, uint(uuid.New().ID()))
	})
}

// concurrentCreditDebit races credits and debits for one user. The final
// balance must account for every committed posting and never go negative.
func concurrentCreditDebit(t *testing.T, repos domain.Repositories, userID uint) {
	ctx := context.Background()
	testutil.SeedBalance(t, repos, userID, 50000)

	post := func(credit bool, amount int64, ref string) error {
		return repos.Tx.WithinTx(ctx, func(ctx context.Context, tx domain.Repositories) error {
			if credit {
				e := entry(userID, domain.EntryEarned, amount, domain.RefManualAdjustment)
				e.ReferenceID = ref
				_, err := tx.Ledger.Credit(ctx, userID, amount, e)
				return err
			}
			e := entry(userID, domain.EntrySpent, amount, domain.RefManualAdjustment)
			e.ReferenceID = ref
			_, err := tx.Ledger.Debit(ctx, userID, amount, e)
			return err
		})
	}

	// 20 credits of 1000 and 20 debits of 2000 can never overdraw 50000
	var wg sync.WaitGroup
	errs := make(chan error, 40)
	for i := 0; i < 20; i++ {
		wg.Add(2)
		go func(i int) {
			defer wg.Done()
			errs <- post(true, 1000, fmt.Sprintf("credit-%d", i))
		}(i)
		go func(i int) {
			defer wg.Done()
			errs <- post(false, 2000, fmt.Sprintf("debit-%d", i))
		}(i)
	}
	wg.Wait()
	close(errs)
	for err := range errs {
		require.NoError(t, err)
	}

	bal, err := repos.Ledger.GetBalance(ctx, userID)
	require.NoError(t, err)
	assert.Equal(t, int64(30000), bal.Balance)
	testutil.RequireLedgerConsistent(t, repos, userID)

	// 10 debits of 5000 against 30000: exactly six fit
	var succeeded, rejected atomic.Int32
	for i := 0; i < 10; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			err := post(false, 5000, fmt.Sprintf("drain-%d", i))
			switch {
			case err == nil:
				succeeded.Add(1)
			case errors.Is(err, domain.ErrInsufficientFunds):
				rejected.Add(1)
			default:
				t.Errorf("unexpected debit error: %v", err)
			}
		}(i)
	}
	wg.Wait()

	assert.Equal(t, int32(6), succeeded.Load())
	assert.Equal(t, int32(4), rejected.Load())
	bal, err = repos.Ledger.GetBalance(ctx, userID)
	require.NoError(t, err)
	assert.Equal(t, int64(0), bal.Balance)
	testutil.RequireLedgerConsistent(t, repos, userID)
}
