package temporal

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/brojonat/txledger/service/db"
	"github.com/brojonat/txledger/service/ledger"
	"github.com/brojonat/txledger/service/metrics"
	natspkg "github.com/brojonat/txledger/service/nats"
	"github.com/brojonat/txledger/service/solana"
)

// maxKnownIDs bounds the stored ids passed to the feed for skipping.
const maxKnownIDs = 1000

// SyncWalletInput contains the input parameters for syncing a wallet.
type SyncWalletInput struct {
	WalletID string `json:"wallet_id"`
}

// SyncWalletResult contains the result of syncing a wallet.
type SyncWalletResult struct {
	WalletID   string    `json:"wallet_id"`
	Skipped    bool      `json:"skipped,omitempty"` // wallet not active
	Fetched    int       `json:"fetched"`
	Written    int       `json:"written"`
	Refreshed  int       `json:"refreshed"`
	LatestSlot uint64    `json:"latest_slot"`
	SyncTime   time.Time `json:"sync_time"`
	Error      *string   `json:"error,omitempty"`
}

// LoadWalletInput contains parameters for the LoadWallet activity.
type LoadWalletInput struct {
	WalletID string `json:"wallet_id"`
}

// LoadWalletResult is the wallet as the sync sees it.
type LoadWalletResult struct {
	WalletID     string   `json:"wallet_id"`
	Network      string   `json:"network"`
	Status       string   `json:"status"`
	Addresses    []string `json:"addresses"`
	KnownIDs     []string `json:"known_ids"`
	UnsettledIDs []string `json:"unsettled_ids"`
}

// FetchTransactionsInput contains parameters for the FetchTransactions activity.
type FetchTransactionsInput struct {
	WalletID  string   `json:"wallet_id"`
	Network   string   `json:"network"`
	Addresses []string `json:"addresses"`
	Known     []string `json:"known"`
	Limit     int      `json:"limit"`
}

// FetchTransactionsResult contains the transactions the feed returned.
type FetchTransactionsResult struct {
	Transactions []*ledger.Transaction `json:"transactions"`
}

// RefreshConfirmationsInput contains parameters for the RefreshConfirmations activity.
type RefreshConfirmationsInput struct {
	WalletID string   `json:"wallet_id"`
	Network  string   `json:"network"`
	IDs      []string `json:"ids"`
}

// RefreshConfirmationsResult contains the ids whose count changed.
type RefreshConfirmationsResult struct {
	Updated int `json:"updated"`
}

// WriteTransactionsInput contains parameters for the WriteTransactions activity.
type WriteTransactionsInput struct {
	WalletID     string                `json:"wallet_id"`
	Transactions []*ledger.Transaction `json:"transactions"`
}

// WriteTransactionsResult contains the result of writing transactions.
type WriteTransactionsResult struct {
	Written int `json:"written"`
}

// PublishLedgerUpdatedInput contains parameters for the PublishLedgerUpdated activity.
type PublishLedgerUpdatedInput struct {
	WalletID   string    `json:"wallet_id"`
	Written    int       `json:"written"`
	TxIDs      []string  `json:"tx_ids"`
	LatestSlot uint64    `json:"latest_slot"`
	SyncedAt   time.Time `json:"synced_at"`
}

// CompleteSyncInput contains parameters for the CompleteSync activity.
type CompleteSyncInput struct {
	WalletID  string    `json:"wallet_id"`
	StartedAt time.Time `json:"started_at"`
	SyncTime  time.Time `json:"sync_time"`
}

// StoreInterface defines the database operations needed by activities.
// This allows for easy mocking in tests.
type StoreInterface interface {
	GetWallet(ctx context.Context, id string) (*db.Wallet, error)
	GetTransactionIDs(ctx context.Context, walletID string, limit int) ([]string, error)
	ListUnsettledTransactionIDs(ctx context.Context, walletID string, minConfirmations int) ([]string, error)
	UpsertTransactions(ctx context.Context, walletID string, txs []*ledger.Transaction) (int, error)
	UpdateConfirmations(ctx context.Context, walletID string, counts map[string]int) (int, error)
	UpdateWalletSyncTime(ctx context.Context, id string, syncTime time.Time) error
}

// FeedInterface defines the Solana operations needed by activities.
// This allows for easy mocking in tests.
type FeedInterface interface {
	FetchTransactions(ctx context.Context, params solana.FetchParams) ([]*ledger.Transaction, error)
	GetConfirmations(ctx context.Context, ids []string) (map[string]int, error)
}

// PublisherInterface defines the NATS publishing operations needed by activities.
type PublisherInterface interface {
	PublishLedgerUpdated(ctx context.Context, event *natspkg.LedgerUpdatedEvent) error
}

// Activities holds the dependencies needed by Temporal activities.
// Following go-kit pattern, all dependencies are explicit.
type Activities struct {
	store       StoreInterface
	feeds       map[string]FeedInterface // by network
	publisher   PublisherInterface
	recommended int
	metrics     *metrics.Metrics
	logger      *slog.Logger
}

// NewActivities creates a new Activities instance with explicit dependencies.
// If metrics is nil, no metrics will be recorded. A nil publisher disables
// ledger update events.
func NewActivities(
	store StoreInterface,
	feeds map[string]FeedInterface,
	publisher PublisherInterface,
	recommended int,
	m *metrics.Metrics,
	logger *slog.Logger,
) *Activities {
	if logger == nil {
		logger = slog.Default()
	}
	return &Activities{
		store:       store,
		feeds:       feeds,
		publisher:   publisher,
		recommended: recommended,
		metrics:     m,
		logger:      logger,
	}
}

func (a *Activities) feedFor(network string) (FeedInterface, error) {
	feed, ok := a.feeds[network]
	if !ok || feed == nil {
		return nil, fmt.Errorf("no feed configured for network %q", network)
	}
	return feed, nil
}

func (a *Activities) observe(activity, walletID string, start time.Time) {
	if a.metrics != nil {
		a.metrics.RecordActivityDuration(activity, walletID, time.Since(start).Seconds())
	}
}

// LoadWallet reads the wallet, its addresses and the transaction ids the
// sync should skip or refresh.
func (a *Activities) LoadWallet(ctx context.Context, input LoadWalletInput) (*LoadWalletResult, error) {
	defer a.observe("LoadWallet", input.WalletID, time.Now())

	w, err := a.store.GetWallet(ctx, input.WalletID)
	if err != nil {
		return nil, fmt.Errorf("failed to get wallet: %w", err)
	}

	known, err := a.store.GetTransactionIDs(ctx, input.WalletID, maxKnownIDs)
	if err != nil {
		return nil, fmt.Errorf("failed to get existing transaction ids: %w", err)
	}

	unsettled, err := a.store.ListUnsettledTransactionIDs(ctx, input.WalletID, a.recommended)
	if err != nil {
		return nil, fmt.Errorf("failed to get unsettled transaction ids: %w", err)
	}

	a.logger.InfoContext(ctx, "loaded wallet for sync",
		"wallet_id", w.ID,
		"network", w.Network,
		"addresses", len(w.Addresses),
		"known", len(known),
		"unsettled", len(unsettled),
	)

	return &LoadWalletResult{
		WalletID:     w.ID,
		Network:      w.Network,
		Status:       w.Status,
		Addresses:    w.Addresses,
		KnownIDs:     known,
		UnsettledIDs: unsettled,
	}, nil
}

// FetchTransactions asks the feed for transactions not yet stored.
func (a *Activities) FetchTransactions(ctx context.Context, input FetchTransactionsInput) (*FetchTransactionsResult, error) {
	defer a.observe("FetchTransactions", input.WalletID, time.Now())

	feed, err := a.feedFor(input.Network)
	if err != nil {
		return nil, err
	}

	addrs, err := solana.ParseAddresses(input.Addresses)
	if err != nil {
		return nil, err
	}

	limit := input.Limit
	if limit == 0 {
		limit = 100
	}

	txs, err := feed.FetchTransactions(ctx, solana.FetchParams{
		WalletID:  input.WalletID,
		Addresses: addrs,
		Limit:     limit,
		Known:     input.Known,
	})
	if err != nil {
		a.logger.ErrorContext(ctx, "failed to fetch transactions",
			"wallet_id", input.WalletID,
			"error", err,
		)
		return nil, fmt.Errorf("failed to fetch transactions: %w", err)
	}

	return &FetchTransactionsResult{Transactions: txs}, nil
}

// RefreshConfirmations updates the stored confirmation counts of
// transactions that have not reached the recommended count yet.
func (a *Activities) RefreshConfirmations(ctx context.Context, input RefreshConfirmationsInput) (*RefreshConfirmationsResult, error) {
	defer a.observe("RefreshConfirmations", input.WalletID, time.Now())

	if len(input.IDs) == 0 {
		return &RefreshConfirmationsResult{}, nil
	}

	feed, err := a.feedFor(input.Network)
	if err != nil {
		return nil, err
	}

	counts, err := feed.GetConfirmations(ctx, input.IDs)
	if err != nil {
		return nil, fmt.Errorf("failed to get confirmations: %w", err)
	}

	updated, err := a.store.UpdateConfirmations(ctx, input.WalletID, counts)
	if err != nil {
		return nil, fmt.Errorf("failed to update confirmations: %w", err)
	}

	a.logger.DebugContext(ctx, "refreshed confirmations",
		"wallet_id", input.WalletID,
		"requested", len(input.IDs),
		"updated", updated,
	)
	return &RefreshConfirmationsResult{Updated: updated}, nil
}

// WriteTransactions persists fetched transactions.
func (a *Activities) WriteTransactions(ctx context.Context, input WriteTransactionsInput) (*WriteTransactionsResult, error) {
	defer a.observe("WriteTransactions", input.WalletID, time.Now())

	written, err := a.store.UpsertTransactions(ctx, input.WalletID, input.Transactions)
	if err != nil {
		a.logger.ErrorContext(ctx, "failed to write transactions",
			"wallet_id", input.WalletID,
			"error", err,
		)
		return nil, fmt.Errorf("failed to write transactions: %w", err)
	}

	if a.metrics != nil {
		a.metrics.RecordTransactionsWritten(input.WalletID, written)
	}

	a.logger.InfoContext(ctx, "wrote transactions to database",
		"wallet_id", input.WalletID,
		"written", written,
		"total", len(input.Transactions),
	)
	return &WriteTransactionsResult{Written: written}, nil
}

// PublishLedgerUpdated tells live views to reload the wallet's ledger.
func (a *Activities) PublishLedgerUpdated(ctx context.Context, input PublishLedgerUpdatedInput) error {
	defer a.observe("PublishLedgerUpdated", input.WalletID, time.Now())

	if a.publisher == nil {
		return nil
	}

	event := &natspkg.LedgerUpdatedEvent{
		WalletID:   input.WalletID,
		Written:    input.Written,
		TxIDs:      input.TxIDs,
		LatestSlot: input.LatestSlot,
		SyncedAt:   input.SyncedAt,
	}
	if err := a.publisher.PublishLedgerUpdated(ctx, event); err != nil {
		return fmt.Errorf("failed to publish ledger update: %w", err)
	}
	return nil
}

// CompleteSync records the sync time of the wallet.
func (a *Activities) CompleteSync(ctx context.Context, input CompleteSyncInput) error {
	defer a.observe("CompleteSync", input.WalletID, time.Now())

	if err := a.store.UpdateWalletSyncTime(ctx, input.WalletID, input.SyncTime); err != nil {
		return fmt.Errorf("failed to update wallet sync time: %w", err)
	}
	if a.metrics != nil && !input.StartedAt.IsZero() {
		a.metrics.RecordWorkflowDuration(input.WalletID, "success", input.SyncTime.Sub(input.StartedAt).Seconds())
	}
	return nil
}
