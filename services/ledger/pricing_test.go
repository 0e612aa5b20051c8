package ledger

import (
	"context"
	"errors"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
	"gorm.io/gorm"

	"promoflow/pkg/db/option"
	"promoflow/pkg/repository"
)

type mockPricingRepository struct {
	calls     atomic.Int32
	findOneFn func(ctx context.Context, query *PricingItem) (*PricingItem, error)
}

func (m *mockPricingRepository) WithTrx(*gorm.DB) repository.Repository[PricingItem] { return m }

func (m *mockPricingRepository) Find(context.Context, *PricingItem, ...option.QueryOption) ([]*PricingItem, error) {
	return nil, nil
}

func (m *mockPricingRepository) FindOne(ctx context.Context, query *PricingItem, _ ...option.QueryOption) (*PricingItem, error) {
	m.calls.Add(1)
	if m.findOneFn != nil {
		return m.findOneFn(ctx, query)
	}
	return nil, nil
}

func (m *mockPricingRepository) FindByID(context.Context, string, ...option.QueryOption) (*PricingItem, error) {
	return nil, nil
}

func (m *mockPricingRepository) Create(context.Context, *PricingItem) error         { return nil }
func (m *mockPricingRepository) Update(context.Context, string, any) error          { return nil }
func (m *mockPricingRepository) BatchCreate(context.Context, []*PricingItem) error  { return nil }
func (m *mockPricingRepository) BatchUpdate(context.Context, []*PricingItem) error  { return nil }
func (m *mockPricingRepository) Count(context.Context, *PricingItem) (int64, error) { return 0, nil }

func TestCatalogFallsBackToDefaults(t *testing.T) {
	repo := &mockPricingRepository{}
	c := NewCatalog(repo, time.Minute)

	price, err := c.Price(context.Background(), ActionContentScan)
	require.NoError(t, err)
	require.Equal(t, DefaultPrices[ActionContentScan], price)
}

func TestCatalogUsesTableRow(t *testing.T) {
	repo := &mockPricingRepository{findOneFn: func(_ context.Context, q *PricingItem) (*PricingItem, error) {
		return &PricingItem{Action: q.Action, Price: 42, Enabled: true}, nil
	}}
	c := NewCatalog(repo, time.Minute)

	price, err := c.Price(context.Background(), ActionAIGenerate)
	require.NoError(t, err)
	require.Equal(t, int64(42), price)
}

func TestCatalogCachesUntilTTL(t *testing.T) {
	repo := &mockPricingRepository{}
	c := NewCatalog(repo, time.Minute)
	now := time.Now()
	c.now = func() time.Time { return now }

	for i := 0; i < 3; i++ {
		_, err := c.Price(context.Background(), ActionAPICall)
		require.NoError(t, err)
	}
	require.Equal(t, int32(1), repo.calls.Load())

	now = now.Add(2 * time.Minute)
	_, err := c.Price(context.Background(), ActionAPICall)
	require.NoError(t, err)
	require.Equal(t, int32(2), repo.calls.Load())

	c.Invalidate(ActionAPICall)
	_, err = c.Price(context.Background(), ActionAPICall)
	require.NoError(t, err)
	require.Equal(t, int32(3), repo.calls.Load())
}

func TestCatalogDoesNotCacheErrors(t *testing.T) {
	repo := &mockPricingRepository{findOneFn: func(context.Context, *PricingItem) (*PricingItem, error) {
		return nil, errors.New("db down")
	}}
	c := NewCatalog(repo, time.Minute)

	_, err := c.Price(context.Background(), ActionAPICall)
	require.Error(t, err)

	repo.findOneFn = nil
	price, err := c.Price(context.Background(), ActionAPICall)
	require.NoError(t, err)
	require.Equal(t, DefaultPrices[ActionAPICall], price)
}
