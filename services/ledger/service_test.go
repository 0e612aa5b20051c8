package ledger

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/bwmarrin/snowflake"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"gorm.io/gorm"

	"promoflow/pkg/config"
	"promoflow/pkg/errutil"
	"promoflow/services/account"
	"promoflow/services/testutil"
)

func init() {
	zap.ReplaceGlobals(zap.NewNop())
}

func newTestService(t *testing.T, balance int64) *Service {
	t.Helper()

	db := testutil.NewTestDB(t, &account.Account{}, &Transaction{}, &PricingItem{})
	node, err := snowflake.NewNode(1)
	require.NoError(t, err)

	require.NoError(t, db.Create(&account.Account{ID: "acct-1", Balance: balance}).Error)

	cfg := &config.Config{}
	cfg.Ledger.PricingCacheTTL = time.Minute

	return NewService(ServiceParams{DB: db, Node: node, Config: cfg})
}

func seedPrice(t *testing.T, s *Service, action Action, price int64, enabled bool) {
	t.Helper()
	item := &PricingItem{ID: string(action), Action: action, Price: price, Enabled: enabled}
	require.NoError(t, s.db.Create(item).Error)
	s.pricing.Invalidate(action)
}

func transactions(t *testing.T, s *Service) []*Transaction {
	t.Helper()
	var out []*Transaction
	require.NoError(t, s.db.Order("created_at asc").Find(&out).Error)
	return out
}

func TestDeductSuccess(t *testing.T) {
	s := newTestService(t, 1000)

	res, err := s.Deduct(context.Background(), "acct-1", ActionCampaignCreate, DeductContext{RelatedID: "work-1", RelatedType: "work"})
	require.NoError(t, err)
	require.True(t, res.Success)
	require.Equal(t, int64(500), res.Price)
	require.Equal(t, int64(500), res.BalanceAfter)
	require.NotEmpty(t, res.TransactionID)

	txns := transactions(t, s)
	require.Len(t, txns, 1)
	require.Equal(t, TransactionConsume, txns[0].Type)
	require.Equal(t, int64(-500), txns[0].Amount)
	require.Equal(t, int64(1000), txns[0].BalanceBefore)
	require.Equal(t, int64(500), txns[0].BalanceAfter)
	require.Equal(t, "work-1", txns[0].RelatedID)

	var acct account.Account
	require.NoError(t, s.db.First(&acct, "id = ?", "acct-1").Error)
	require.Equal(t, int64(500), acct.TotalConsumed)
}

func TestDeductInsufficientBalance(t *testing.T) {
	s := newTestService(t, 100)

	res, err := s.Deduct(context.Background(), "acct-1", ActionCampaignCreate, DeductContext{})
	require.NoError(t, err)
	require.False(t, res.Success)
	require.Equal(t, "insufficient balance, needed 500, have 100", res.Error)

	balance, err := s.GetBalance(context.Background(), "acct-1")
	require.NoError(t, err)
	require.Equal(t, int64(100), balance)
	require.Empty(t, transactions(t, s))
}

func TestDeductSucceedsExactlyOnceUnderConcurrency(t *testing.T) {
	s := newTestService(t, 500)
	seedPrice(t, s, "x", 500, true)

	var (
		wg        sync.WaitGroup
		mu        sync.Mutex
		successes int
		failures  []string
	)
	for i := 0; i < 10; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			res, err := s.Deduct(context.Background(), "acct-1", "x", DeductContext{})

			mu.Lock()
			defer mu.Unlock()
			if err != nil {
				failures = append(failures, err.Error())
				return
			}
			if res.Success {
				successes++
				return
			}
			failures = append(failures, res.Error)
		}()
	}
	wg.Wait()

	require.Equal(t, 1, successes)
	require.Len(t, failures, 9)
	for _, f := range failures {
		require.Contains(t, f, "insufficient balance")
	}

	balance, err := s.GetBalance(context.Background(), "acct-1")
	require.NoError(t, err)
	require.Equal(t, int64(0), balance)
}

func TestDeductTransactionDeltasMatchBalance(t *testing.T) {
	const initial = int64(1000)
	s := newTestService(t, initial)
	seedPrice(t, s, ActionAPICall, 30, true)

	var (
		wg   sync.WaitGroup
		errs = make(chan error, 50)
	)
	for i := 0; i < 50; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			if _, err := s.Deduct(context.Background(), "acct-1", ActionAPICall, DeductContext{}); err != nil {
				errs <- err
			}
		}()
	}
	wg.Wait()
	close(errs)
	for err := range errs {
		require.NoError(t, err)
	}

	final, err := s.GetBalance(context.Background(), "acct-1")
	require.NoError(t, err)
	require.GreaterOrEqual(t, final, int64(0))
	require.Equal(t, initial%30, final)

	var sum int64
	for _, txn := range transactions(t, s) {
		sum += txn.Amount
	}
	require.Equal(t, final-initial, sum)
}

func TestDeductDisabledActionIsFree(t *testing.T) {
	s := newTestService(t, 100)
	seedPrice(t, s, ActionAIGenerate, 80, false)

	res, err := s.Deduct(context.Background(), "acct-1", ActionAIGenerate, DeductContext{})
	require.NoError(t, err)
	require.True(t, res.Success)
	require.Equal(t, int64(100), res.BalanceAfter)
	require.Empty(t, transactions(t, s))
}

func TestDeductUnknownAction(t *testing.T) {
	s := newTestService(t, 100)

	_, err := s.Deduct(context.Background(), "acct-1", "teleport", DeductContext{})
	require.True(t, errutil.IsStatus(err, errutil.StatusBadRequest))
}

func TestDeductMissingAccount(t *testing.T) {
	s := newTestService(t, 100)

	_, err := s.Deduct(context.Background(), "nobody", ActionCampaignCreate, DeductContext{})
	require.True(t, errutil.IsStatus(err, errutil.StatusNotFound))
}

func TestRecharge(t *testing.T) {
	s := newTestService(t, 100)

	res, err := s.Recharge(context.Background(), "acct-1", 0, "admin", "")
	require.NoError(t, err)
	require.False(t, res.Success)

	res, err = s.Recharge(context.Background(), "acct-1", 250, "admin", "top up")
	require.NoError(t, err)
	require.True(t, res.Success)
	require.Equal(t, int64(350), res.BalanceAfter)

	var acct account.Account
	require.NoError(t, s.db.First(&acct, "id = ?", "acct-1").Error)
	require.Equal(t, int64(250), acct.TotalRecharge)

	txns := transactions(t, s)
	require.Len(t, txns, 1)
	require.Equal(t, TransactionRecharge, txns[0].Type)
	require.Equal(t, int64(100), txns[0].BalanceBefore)
	require.Equal(t, "admin", txns[0].OperatorID)

	_, err = s.Recharge(context.Background(), "nobody", 10, "admin", "")
	require.True(t, errutil.IsStatus(err, errutil.StatusNotFound))
}

func TestRefundRestoresBalance(t *testing.T) {
	s := newTestService(t, 600)

	res, err := s.Deduct(context.Background(), "acct-1", ActionCampaignCreate, DeductContext{})
	require.NoError(t, err)
	require.True(t, res.Success)

	refund, err := s.Refund(context.Background(), "acct-1", ActionCampaignCreate, res.Price, DeductContext{RelatedID: res.TransactionID})
	require.NoError(t, err)
	require.True(t, refund.Success)
	require.Equal(t, int64(600), refund.BalanceAfter)

	var acct account.Account
	require.NoError(t, s.db.First(&acct, "id = ?", "acct-1").Error)
	require.Equal(t, int64(0), acct.TotalConsumed)

	txns, err := s.ListTransactions(context.Background(), "acct-1", 10)
	require.NoError(t, err)
	require.Len(t, txns, 2)
}

func TestCheckBalance(t *testing.T) {
	s := newTestService(t, 499)

	check, err := s.CheckBalance(context.Background(), "acct-1", ActionCampaignCreate)
	require.NoError(t, err)
	require.False(t, check.Sufficient)
	require.Equal(t, int64(500), check.Required)
	require.Equal(t, int64(499), check.Current)
}

func TestDeductRecordsTransactionAfterCallerCancels(t *testing.T) {
	s := newTestService(t, 1000)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	// the caller goes away right after the charge commits
	require.NoError(t, s.db.Callback().Create().Before("gorm:create").Register("test:cancel_caller", func(*gorm.DB) {
		cancel()
	}))

	res, err := s.Deduct(ctx, "acct-1", ActionCampaignCreate, DeductContext{})
	require.NoError(t, err)
	require.True(t, res.Success)
	require.NotEmpty(t, res.TransactionID)

	txns := transactions(t, s)
	require.Len(t, txns, 1)
	require.Equal(t, int64(-500), txns[0].Amount)
}
