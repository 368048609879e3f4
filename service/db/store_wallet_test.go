package db

import (
	"context"
	"testing"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func createTestWallet(t *testing.T, store *TestStore, id string, addrs ...string) *Wallet {
	t.Helper()
	w, err := store.CreateWallet(context.Background(), CreateWalletParams{
		ID:           id,
		Network:      "mainnet",
		Addresses:    addrs,
		SyncInterval: 30 * time.Second,
		Status:       "active",
	})
	require.NoError(t, err)
	return w
}

func TestCreateWallet(t *testing.T) {
	SkipIfNoTestDB(t)

	store := NewTestStore(t)
	defer store.Close()
	defer store.Cleanup(t)

	wallet := createTestWallet(t, store, "savings", "addr1", "addr2", "addr1")

	assert.Equal(t, "savings", wallet.ID)
	assert.Equal(t, "mainnet", wallet.Network)
	assert.Equal(t, []string{"addr1", "addr2"}, wallet.Addresses)
	assert.Equal(t, 30*time.Second, wallet.SyncInterval)
	assert.Equal(t, "active", wallet.Status)
	assert.Nil(t, wallet.LastSyncTime)
	assert.False(t, wallet.CreatedAt.IsZero())
	assert.False(t, wallet.UpdatedAt.IsZero())
}

func TestCreateWallet_DuplicateID(t *testing.T) {
	SkipIfNoTestDB(t)

	store := NewTestStore(t)
	defer store.Close()
	defer store.Cleanup(t)

	createTestWallet(t, store, "savings", "addr1")

	_, err := store.CreateWallet(context.Background(), CreateWalletParams{
		ID:           "savings",
		Network:      "mainnet",
		SyncInterval: time.Minute,
		Status:       "active",
	})
	require.Error(t, err)
}

func TestGetWallet(t *testing.T) {
	SkipIfNoTestDB(t)

	store := NewTestStore(t)
	defer store.Close()
	defer store.Cleanup(t)

	ctx := context.Background()
	createTestWallet(t, store, "savings", "addr2", "addr1")

	wallet, err := store.GetWallet(ctx, "savings")
	require.NoError(t, err)
	assert.Equal(t, []string{"addr2", "addr1"}, wallet.Addresses, "registration order is kept")

	_, err = store.GetWallet(ctx, "missing")
	assert.ErrorIs(t, err, pgx.ErrNoRows)
}

func TestListWallets(t *testing.T) {
	SkipIfNoTestDB(t)

	store := NewTestStore(t)
	defer store.Close()
	defer store.Cleanup(t)

	ctx := context.Background()
	createTestWallet(t, store, "b-wallet", "addr3")
	createTestWallet(t, store, "a-wallet", "addr1", "addr2")

	wallets, err := store.ListWallets(ctx)
	require.NoError(t, err)
	require.Len(t, wallets, 2)
	assert.Equal(t, "a-wallet", wallets[0].ID)
	assert.Equal(t, []string{"addr1", "addr2"}, wallets[0].Addresses)
	assert.Equal(t, []string{"addr3"}, wallets[1].Addresses)
}

func TestListActiveWallets(t *testing.T) {
	SkipIfNoTestDB(t)

	store := NewTestStore(t)
	defer store.Close()
	defer store.Cleanup(t)

	ctx := context.Background()
	createTestWallet(t, store, "synced", "addr1")
	createTestWallet(t, store, "fresh", "addr2")
	createTestWallet(t, store, "paused", "addr3")

	require.NoError(t, store.UpdateWalletSyncTime(ctx, "synced", time.Now()))
	require.NoError(t, store.UpdateWalletStatus(ctx, "paused", "paused"))

	wallets, err := store.ListActiveWallets(ctx)
	require.NoError(t, err)
	require.Len(t, wallets, 2)
	assert.Equal(t, "fresh", wallets[0].ID, "never synced first")
	assert.Equal(t, "synced", wallets[1].ID)
	require.NotNil(t, wallets[1].LastSyncTime)
}

func TestUpdateWallet_Missing(t *testing.T) {
	SkipIfNoTestDB(t)

	store := NewTestStore(t)
	defer store.Close()
	defer store.Cleanup(t)

	ctx := context.Background()
	assert.ErrorIs(t, store.UpdateWalletSyncTime(ctx, "missing", time.Now()), pgx.ErrNoRows)
	assert.ErrorIs(t, store.UpdateWalletStatus(ctx, "missing", "paused"), pgx.ErrNoRows)
}

func TestDeleteWallet(t *testing.T) {
	SkipIfNoTestDB(t)

	store := NewTestStore(t)
	defer store.Close()
	defer store.Cleanup(t)

	ctx := context.Background()
	createTestWallet(t, store, "savings", "addr1")

	exists, err := store.WalletExists(ctx, "savings")
	require.NoError(t, err)
	assert.True(t, exists)

	require.NoError(t, store.DeleteWallet(ctx, "savings"))

	exists, err = store.WalletExists(ctx, "savings")
	require.NoError(t, err)
	assert.False(t, exists)

	addrs, err := store.ListWalletAddresses(ctx, "savings")
	require.NoError(t, err)
	assert.Empty(t, addrs)
}
