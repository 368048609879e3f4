package temporal

import (
	"context"
	"errors"
	"log/slog"
	"testing"
	"time"

	"github.com/brojonat/txledger/service/db"
	"github.com/brojonat/txledger/service/ledger"
	natspkg "github.com/brojonat/txledger/service/nats"
	"github.com/brojonat/txledger/service/solana"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"
)

const testAddress = "11111111111111111111111111111111" // Valid 32-byte base58 address

// MockFeed is a testify mock of the Solana feed.
type MockFeed struct {
	mock.Mock
}

func (m *MockFeed) FetchTransactions(ctx context.Context, params solana.FetchParams) ([]*ledger.Transaction, error) {
	args := m.Called(ctx, params)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).([]*ledger.Transaction), args.Error(1)
}

func (m *MockFeed) GetConfirmations(ctx context.Context, ids []string) (map[string]int, error) {
	args := m.Called(ctx, ids)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(map[string]int), args.Error(1)
}

// MockStore is a testify mock of the database store.
type MockStore struct {
	mock.Mock
}

func (m *MockStore) GetWallet(ctx context.Context, id string) (*db.Wallet, error) {
	args := m.Called(ctx, id)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*db.Wallet), args.Error(1)
}

func (m *MockStore) GetTransactionIDs(ctx context.Context, walletID string, limit int) ([]string, error) {
	args := m.Called(ctx, walletID, limit)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).([]string), args.Error(1)
}

func (m *MockStore) ListUnsettledTransactionIDs(ctx context.Context, walletID string, minConfirmations int) ([]string, error) {
	args := m.Called(ctx, walletID, minConfirmations)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).([]string), args.Error(1)
}

func (m *MockStore) UpsertTransactions(ctx context.Context, walletID string, txs []*ledger.Transaction) (int, error) {
	args := m.Called(ctx, walletID, txs)
	return args.Int(0), args.Error(1)
}

func (m *MockStore) UpdateConfirmations(ctx context.Context, walletID string, counts map[string]int) (int, error) {
	args := m.Called(ctx, walletID, counts)
	return args.Int(0), args.Error(1)
}

func (m *MockStore) UpdateWalletSyncTime(ctx context.Context, id string, syncTime time.Time) error {
	args := m.Called(ctx, id, syncTime)
	return args.Error(0)
}

func sampleTransactions() []*ledger.Transaction {
	return []*ledger.Transaction{
		{ID: "sig1", Slot: 1000, Fees: decimal.RequireFromString("0.000005"), Confirmations: 32},
		{ID: "sig2", Slot: 999, Fees: decimal.RequireFromString("0.000005"), Confirmations: 3},
	}
}

func TestActivities_LoadWallet(t *testing.T) {
	tests := []struct {
		name      string
		setupMock func(*MockStore)
		want      *LoadWalletResult
		wantErr   bool
	}{
		{
			name: "loads wallet with known and unsettled ids",
			setupMock: func(m *MockStore) {
				m.On("GetWallet", mock.Anything, "savings").Return(&db.Wallet{
					ID:        "savings",
					Network:   "mainnet",
					Status:    db.WalletStatusActive,
					Addresses: []string{testAddress},
				}, nil)
				m.On("GetTransactionIDs", mock.Anything, "savings", maxKnownIDs).Return([]string{"sig1", "sig2"}, nil)
				m.On("ListUnsettledTransactionIDs", mock.Anything, "savings", 32).Return([]string{"sig2"}, nil)
			},
			want: &LoadWalletResult{
				WalletID:     "savings",
				Network:      "mainnet",
				Status:       db.WalletStatusActive,
				Addresses:    []string{testAddress},
				KnownIDs:     []string{"sig1", "sig2"},
				UnsettledIDs: []string{"sig2"},
			},
		},
		{
			name: "missing wallet",
			setupMock: func(m *MockStore) {
				m.On("GetWallet", mock.Anything, "savings").Return(nil, errors.New("no rows"))
			},
			wantErr: true,
		},
		{
			name: "known ids fail",
			setupMock: func(m *MockStore) {
				m.On("GetWallet", mock.Anything, "savings").Return(&db.Wallet{ID: "savings"}, nil)
				m.On("GetTransactionIDs", mock.Anything, "savings", maxKnownIDs).Return(nil, errors.New("db down"))
			},
			wantErr: true,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			store := new(MockStore)
			tt.setupMock(store)

			activities := NewActivities(store, nil, nil, 32, nil, slog.Default())
			got, err := activities.LoadWallet(context.Background(), LoadWalletInput{WalletID: "savings"})

			if tt.wantErr {
				assert.Error(t, err)
				assert.Nil(t, got)
			} else {
				require.NoError(t, err)
				assert.Equal(t, tt.want, got)
			}
			store.AssertExpectations(t)
		})
	}
}

func TestActivities_FetchTransactions(t *testing.T) {
	t.Run("passes addresses and known ids to the feed", func(t *testing.T) {
		feed := new(MockFeed)
		feed.On("FetchTransactions", mock.Anything, mock.MatchedBy(func(p solana.FetchParams) bool {
			return p.WalletID == "savings" &&
				len(p.Addresses) == 1 && p.Addresses[0].String() == testAddress &&
				p.Limit == 100 &&
				assert.ObjectsAreEqual([]string{"old"}, p.Known)
		})).Return(sampleTransactions(), nil)

		activities := NewActivities(nil, map[string]FeedInterface{"mainnet": feed}, nil, 32, nil, slog.Default())
		got, err := activities.FetchTransactions(context.Background(), FetchTransactionsInput{
			WalletID:  "savings",
			Network:   "mainnet",
			Addresses: []string{testAddress},
			Known:     []string{"old"},
		})
		require.NoError(t, err)
		assert.Len(t, got.Transactions, 2)
		feed.AssertExpectations(t)
	})

	t.Run("unknown network", func(t *testing.T) {
		activities := NewActivities(nil, map[string]FeedInterface{}, nil, 32, nil, slog.Default())
		_, err := activities.FetchTransactions(context.Background(), FetchTransactionsInput{
			WalletID:  "savings",
			Network:   "testnet",
			Addresses: []string{testAddress},
		})
		assert.ErrorContains(t, err, "no feed configured")
	})

	t.Run("invalid address", func(t *testing.T) {
		feed := new(MockFeed)
		activities := NewActivities(nil, map[string]FeedInterface{"mainnet": feed}, nil, 32, nil, slog.Default())
		_, err := activities.FetchTransactions(context.Background(), FetchTransactionsInput{
			WalletID:  "savings",
			Network:   "mainnet",
			Addresses: []string{"not-an-address!"},
		})
		assert.Error(t, err)
		feed.AssertNotCalled(t, "FetchTransactions", mock.Anything, mock.Anything)
	})

	t.Run("feed error", func(t *testing.T) {
		feed := new(MockFeed)
		feed.On("FetchTransactions", mock.Anything, mock.Anything).Return(nil, errors.New("rpc down"))

		activities := NewActivities(nil, map[string]FeedInterface{"mainnet": feed}, nil, 32, nil, slog.Default())
		_, err := activities.FetchTransactions(context.Background(), FetchTransactionsInput{
			WalletID:  "savings",
			Network:   "mainnet",
			Addresses: []string{testAddress},
		})
		assert.ErrorContains(t, err, "rpc down")
	})
}

func TestActivities_RefreshConfirmations(t *testing.T) {
	feed := new(MockFeed)
	store := new(MockStore)
	counts := map[string]int{"sig2": 12}
	feed.On("GetConfirmations", mock.Anything, []string{"sig2"}).Return(counts, nil)
	store.On("UpdateConfirmations", mock.Anything, "savings", counts).Return(1, nil)

	activities := NewActivities(store, map[string]FeedInterface{"mainnet": feed}, nil, 32, nil, slog.Default())
	got, err := activities.RefreshConfirmations(context.Background(), RefreshConfirmationsInput{
		WalletID: "savings",
		Network:  "mainnet",
		IDs:      []string{"sig2"},
	})
	require.NoError(t, err)
	assert.Equal(t, 1, got.Updated)
	feed.AssertExpectations(t)
	store.AssertExpectations(t)

	// nothing to refresh never touches the feed
	got, err = activities.RefreshConfirmations(context.Background(), RefreshConfirmationsInput{WalletID: "savings", Network: "devnet"})
	require.NoError(t, err)
	assert.Zero(t, got.Updated)
}

func TestActivities_WriteTransactions(t *testing.T) {
	txs := sampleTransactions()

	t.Run("writes", func(t *testing.T) {
		store := new(MockStore)
		store.On("UpsertTransactions", mock.Anything, "savings", txs).Return(2, nil)

		activities := NewActivities(store, nil, nil, 32, nil, slog.Default())
		got, err := activities.WriteTransactions(context.Background(), WriteTransactionsInput{
			WalletID:     "savings",
			Transactions: txs,
		})
		require.NoError(t, err)
		assert.Equal(t, 2, got.Written)
		store.AssertExpectations(t)
	})

	t.Run("database error", func(t *testing.T) {
		store := new(MockStore)
		store.On("UpsertTransactions", mock.Anything, "savings", txs).Return(0, errors.New("database error"))

		activities := NewActivities(store, nil, nil, 32, nil, slog.Default())
		got, err := activities.WriteTransactions(context.Background(), WriteTransactionsInput{
			WalletID:     "savings",
			Transactions: txs,
		})
		assert.Error(t, err)
		assert.Nil(t, got)
	})
}

func TestActivities_PublishLedgerUpdated(t *testing.T) {
	publisher := natspkg.NewMockPublisher()
	activities := NewActivities(nil, nil, publisher, 32, nil, slog.Default())

	syncedAt := time.Date(2026, 10, 18, 12, 0, 0, 0, time.UTC)
	err := activities.PublishLedgerUpdated(context.Background(), PublishLedgerUpdatedInput{
		WalletID:   "savings",
		Written:    2,
		TxIDs:      []string{"sig1", "sig2"},
		LatestSlot: 1000,
		SyncedAt:   syncedAt,
	})
	require.NoError(t, err)

	events := publisher.GetLedgerUpdatedEvents()
	require.Len(t, events, 1)
	assert.Equal(t, "savings", events[0].WalletID)
	assert.Equal(t, 2, events[0].Written)
	assert.Equal(t, uint64(1000), events[0].LatestSlot)
	assert.Equal(t, syncedAt, events[0].SyncedAt)

	publisher.SetPublishError(errors.New("nats down"))
	err = activities.PublishLedgerUpdated(context.Background(), PublishLedgerUpdatedInput{WalletID: "savings"})
	assert.ErrorContains(t, err, "nats down")

	// without a publisher events are dropped
	noop := NewActivities(nil, nil, nil, 32, nil, slog.Default())
	assert.NoError(t, noop.PublishLedgerUpdated(context.Background(), PublishLedgerUpdatedInput{WalletID: "savings"}))
}

func TestActivities_CompleteSync(t *testing.T) {
	syncTime := time.Date(2026, 10, 18, 12, 0, 0, 0, time.UTC)

	store := new(MockStore)
	store.On("UpdateWalletSyncTime", mock.Anything, "savings", syncTime).Return(nil).Once()
	store.On("UpdateWalletSyncTime", mock.Anything, "gone", syncTime).Return(errors.New("no rows")).Once()

	activities := NewActivities(store, nil, nil, 32, nil, slog.Default())
	require.NoError(t, activities.CompleteSync(context.Background(), CompleteSyncInput{
		WalletID:  "savings",
		StartedAt: syncTime.Add(-time.Second),
		SyncTime:  syncTime,
	}))
	assert.Error(t, activities.CompleteSync(context.Background(), CompleteSyncInput{WalletID: "gone", SyncTime: syncTime}))
	store.AssertExpectations(t)
}
