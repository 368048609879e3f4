package db

import (
	"context"
	_ "embed"
	"errors"
	"fmt"
	"math/big"
	"time"

	"github.com/brojonat/txledger/service/ledger"
	"github.com/brojonat/txledger/service/metrics"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgtype"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/shopspring/decimal"
)

//go:embed schema.sql
var schema string

// Store provides database operations for the service.
type Store struct {
	pool    *pgxpool.Pool
	metrics *metrics.Metrics
}

// NewStore creates a new Store with the given database connection pool.
// Metrics may be nil.
func NewStore(pool *pgxpool.Pool, m *metrics.Metrics) *Store {
	return &Store{
		pool:    pool,
		metrics: m,
	}
}

// Migrate creates the tables the store needs if they do not exist.
func (s *Store) Migrate(ctx context.Context) error {
	if _, err := s.pool.Exec(ctx, schema); err != nil {
		return fmt.Errorf("failed to apply schema: %w", err)
	}
	return nil
}

// Ping checks the database connection.
func (s *Store) Ping(ctx context.Context) error {
	return s.pool.Ping(ctx)
}

func (s *Store) observe(operation, table string, start time.Time, err error) {
	if s.metrics != nil {
		s.metrics.RecordDBQuery(operation, table, time.Since(start).Seconds(), err)
	}
}

// Wallet is a registered wallet: a named set of owned addresses that the
// worker syncs and the server renders as one ledger.
type Wallet struct {
	ID           string
	Network      string // "mainnet" or "devnet"
	Addresses    []string
	SyncInterval time.Duration
	LastSyncTime *time.Time
	Status       string
	CreatedAt    time.Time
	UpdatedAt    time.Time
}

// Wallet statuses. Only active wallets are synced.
const (
	WalletStatusActive = "active"
	WalletStatusPaused = "paused"
)

// CreateWalletParams contains the parameters for registering a wallet.
type CreateWalletParams struct {
	ID           string
	Network      string
	Addresses    []string
	SyncInterval time.Duration
	Status       string
}

const walletColumns = `id, network, sync_interval, last_sync_time, status, created_at, updated_at`

// CreateWallet registers a wallet and its addresses in one transaction.
func (s *Store) CreateWallet(ctx context.Context, params CreateWalletParams) (w *Wallet, err error) {
	start := time.Now()
	defer func() { s.observe("create", "wallets", start, err) }()

	tx, err := s.pool.Begin(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback(ctx)

	row := tx.QueryRow(ctx, `
		INSERT INTO wallets (id, network, sync_interval, status)
		VALUES ($1, $2, $3, $4)
		RETURNING `+walletColumns,
		params.ID,
		params.Network,
		pgIntervalFromDuration(params.SyncInterval),
		params.Status,
	)
	w, err = scanWallet(row)
	if err != nil {
		return nil, fmt.Errorf("failed to create wallet: %w", err)
	}

	for i, addr := range params.Addresses {
		if _, err = tx.Exec(ctx, `
			INSERT INTO wallet_addresses (wallet_id, address, position)
			VALUES ($1, $2, $3)
			ON CONFLICT DO NOTHING`,
			params.ID, addr, i,
		); err != nil {
			return nil, fmt.Errorf("failed to add wallet address %s: %w", addr, err)
		}
	}

	if err = tx.Commit(ctx); err != nil {
		return nil, fmt.Errorf("failed to commit wallet: %w", err)
	}

	w.Addresses = dedupe(params.Addresses)
	return w, nil
}

// GetWallet retrieves a wallet and its addresses. A missing wallet returns
// an error wrapping pgx.ErrNoRows.
func (s *Store) GetWallet(ctx context.Context, id string) (w *Wallet, err error) {
	start := time.Now()
	defer func() { s.observe("get", "wallets", start, err) }()

	w, err = scanWallet(s.pool.QueryRow(ctx, `SELECT `+walletColumns+` FROM wallets WHERE id = $1`, id))
	if err != nil {
		return nil, fmt.Errorf("failed to get wallet %s: %w", id, err)
	}
	w.Addresses, err = s.ListWalletAddresses(ctx, id)
	if err != nil {
		return nil, err
	}
	return w, nil
}

// ListWallets retrieves all registered wallets.
func (s *Store) ListWallets(ctx context.Context) ([]*Wallet, error) {
	return s.listWallets(ctx, `SELECT `+walletColumns+` FROM wallets ORDER BY id`)
}

// ListActiveWallets retrieves active wallets, least recently synced first.
func (s *Store) ListActiveWallets(ctx context.Context) ([]*Wallet, error) {
	return s.listWallets(ctx, `
		SELECT `+walletColumns+` FROM wallets
		WHERE status = 'active'
		ORDER BY last_sync_time ASC NULLS FIRST, id`)
}

func (s *Store) listWallets(ctx context.Context, query string) (wallets []*Wallet, err error) {
	start := time.Now()
	defer func() { s.observe("list", "wallets", start, err) }()

	rows, err := s.pool.Query(ctx, query)
	if err != nil {
		return nil, fmt.Errorf("failed to query wallets: %w", err)
	}
	defer rows.Close()

	byID := make(map[string]*Wallet)
	for rows.Next() {
		w, err := scanWallet(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan wallet: %w", err)
		}
		wallets = append(wallets, w)
		byID[w.ID] = w
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("failed to iterate wallets: %w", err)
	}

	addrRows, err := s.pool.Query(ctx, `
		SELECT wallet_id, address FROM wallet_addresses
		ORDER BY wallet_id, position`)
	if err != nil {
		return nil, fmt.Errorf("failed to query wallet addresses: %w", err)
	}
	defer addrRows.Close()

	for addrRows.Next() {
		var walletID, addr string
		if err := addrRows.Scan(&walletID, &addr); err != nil {
			return nil, fmt.Errorf("failed to scan wallet address: %w", err)
		}
		if w, ok := byID[walletID]; ok {
			w.Addresses = append(w.Addresses, addr)
		}
	}
	return wallets, addrRows.Err()
}

// ListWalletAddresses returns the owned addresses of a wallet in
// registration order.
func (s *Store) ListWalletAddresses(ctx context.Context, walletID string) (addrs []string, err error) {
	start := time.Now()
	defer func() { s.observe("list", "wallet_addresses", start, err) }()

	rows, err := s.pool.Query(ctx, `
		SELECT address FROM wallet_addresses
		WHERE wallet_id = $1
		ORDER BY position`, walletID)
	if err != nil {
		return nil, fmt.Errorf("failed to query wallet addresses: %w", err)
	}
	addrs, err = pgx.CollectRows(rows, pgx.RowTo[string])
	if err != nil {
		return nil, fmt.Errorf("failed to collect wallet addresses: %w", err)
	}
	return addrs, nil
}

// UpdateWalletSyncTime records the time of the last completed sync.
func (s *Store) UpdateWalletSyncTime(ctx context.Context, id string, syncTime time.Time) (err error) {
	start := time.Now()
	defer func() { s.observe("update", "wallets", start, err) }()

	tag, err := s.pool.Exec(ctx, `
		UPDATE wallets SET last_sync_time = $2, updated_at = NOW()
		WHERE id = $1`, id, syncTime)
	if err != nil {
		return fmt.Errorf("failed to update sync time: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return fmt.Errorf("failed to update sync time for %s: %w", id, pgx.ErrNoRows)
	}
	return nil
}

// UpdateWalletStatus sets the status of a wallet.
func (s *Store) UpdateWalletStatus(ctx context.Context, id, status string) (err error) {
	start := time.Now()
	defer func() { s.observe("update", "wallets", start, err) }()

	tag, err := s.pool.Exec(ctx, `
		UPDATE wallets SET status = $2, updated_at = NOW()
		WHERE id = $1`, id, status)
	if err != nil {
		return fmt.Errorf("failed to update status: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return fmt.Errorf("failed to update status for %s: %w", id, pgx.ErrNoRows)
	}
	return nil
}

// DeleteWallet removes a wallet with its addresses and transactions.
func (s *Store) DeleteWallet(ctx context.Context, id string) (err error) {
	start := time.Now()
	defer func() { s.observe("delete", "wallets", start, err) }()

	if _, err = s.pool.Exec(ctx, `DELETE FROM wallets WHERE id = $1`, id); err != nil {
		return fmt.Errorf("failed to delete wallet: %w", err)
	}
	return nil
}

// WalletExists checks if a wallet is registered.
func (s *Store) WalletExists(ctx context.Context, id string) (exists bool, err error) {
	start := time.Now()
	defer func() { s.observe("exists", "wallets", start, err) }()

	err = s.pool.QueryRow(ctx, `SELECT EXISTS(SELECT 1 FROM wallets WHERE id = $1)`, id).Scan(&exists)
	if err != nil {
		return false, fmt.Errorf("failed to check wallet: %w", err)
	}
	return exists, nil
}

// UpsertTransactions writes transactions for a wallet. Existing rows get
// their confirmation state and legs refreshed. It returns the number of rows
// written.
func (s *Store) UpsertTransactions(ctx context.Context, walletID string, txs []*ledger.Transaction) (n int, err error) {
	start := time.Now()
	defer func() { s.observe("upsert", "transactions", start, err) }()

	if len(txs) == 0 {
		return 0, nil
	}

	batch := &pgx.Batch{}
	for _, tx := range txs {
		inputs, outputs := tx.Inputs, tx.Outputs
		if inputs == nil {
			inputs = []ledger.Transfer{}
		}
		if outputs == nil {
			outputs = []ledger.Transfer{}
		}
		batch.Queue(`
			INSERT INTO transactions (
				wallet_id, id, slot, block_time, fees, inputs, outputs,
				confirmations, unpublished, unique_hash
			)
			VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10)
			ON CONFLICT (wallet_id, id) DO UPDATE SET
				block_time = EXCLUDED.block_time,
				inputs = EXCLUDED.inputs,
				outputs = EXCLUDED.outputs,
				confirmations = EXCLUDED.confirmations,
				unpublished = EXCLUDED.unpublished,
				updated_at = NOW()`,
			walletID,
			tx.ID,
			int64(tx.Slot),
			tx.BlockTime,
			numericFromDecimal(tx.Fees),
			inputs,
			outputs,
			tx.Confirmations,
			tx.Unpublished,
			tx.UniqueHash,
		)
	}

	results := s.pool.SendBatch(ctx, batch)
	defer results.Close()

	for range txs {
		if _, err = results.Exec(); err != nil {
			return n, fmt.Errorf("failed to upsert transaction: %w", err)
		}
		n++
	}
	return n, nil
}

// ListTransactions returns the newest transactions of a wallet, newest
// first. A limit of 0 returns all of them.
func (s *Store) ListTransactions(ctx context.Context, walletID string, limit int) (txs []*ledger.Transaction, err error) {
	start := time.Now()
	defer func() { s.observe("list", "transactions", start, err) }()

	query := `
		SELECT id, slot, block_time, fees, inputs, outputs,
		       confirmations, unpublished, unique_hash
		FROM transactions
		WHERE wallet_id = $1
		ORDER BY slot DESC, id`
	args := []any{walletID}
	if limit > 0 {
		query += ` LIMIT $2`
		args = append(args, limit)
	}

	rows, err := s.pool.Query(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to query transactions: %w", err)
	}
	defer rows.Close()

	for rows.Next() {
		var (
			tx        ledger.Transaction
			slot      int64
			blockTime pgtype.Timestamptz
			fees      pgtype.Numeric
		)
		if err := rows.Scan(
			&tx.ID,
			&slot,
			&blockTime,
			&fees,
			&tx.Inputs,
			&tx.Outputs,
			&tx.Confirmations,
			&tx.Unpublished,
			&tx.UniqueHash,
		); err != nil {
			return nil, fmt.Errorf("failed to scan transaction: %w", err)
		}
		tx.Slot = uint64(slot)
		tx.BlockTime = timePtrFromPgTimestamptz(blockTime)
		tx.Fees = decimalFromNumeric(fees)
		txs = append(txs, &tx)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("failed to iterate transactions: %w", err)
	}
	return txs, nil
}

// ListUnsettledTransactionIDs returns the ids of transactions that still
// have fewer than minConfirmations, so the feed can refresh them.
func (s *Store) ListUnsettledTransactionIDs(ctx context.Context, walletID string, minConfirmations int) (ids []string, err error) {
	start := time.Now()
	defer func() { s.observe("list", "transactions", start, err) }()

	rows, err := s.pool.Query(ctx, `
		SELECT id FROM transactions
		WHERE wallet_id = $1 AND (confirmations < $2 OR unpublished)
		ORDER BY slot DESC`, walletID, minConfirmations)
	if err != nil {
		return nil, fmt.Errorf("failed to query unsettled transactions: %w", err)
	}
	ids, err = pgx.CollectRows(rows, pgx.RowTo[string])
	if err != nil {
		return nil, fmt.Errorf("failed to collect unsettled transactions: %w", err)
	}
	return ids, nil
}

// GetTransactionIDs returns the ids already stored for a wallet, newest first.
func (s *Store) GetTransactionIDs(ctx context.Context, walletID string, limit int) (ids []string, err error) {
	start := time.Now()
	defer func() { s.observe("list", "transactions", start, err) }()

	rows, err := s.pool.Query(ctx, `
		SELECT id FROM transactions
		WHERE wallet_id = $1
		ORDER BY slot DESC
		LIMIT $2`, walletID, limit)
	if err != nil {
		return nil, fmt.Errorf("failed to query transaction ids: %w", err)
	}
	ids, err = pgx.CollectRows(rows, pgx.RowTo[string])
	if err != nil {
		return nil, fmt.Errorf("failed to collect transaction ids: %w", err)
	}
	return ids, nil
}

// CountTransactions counts the transactions stored for a wallet.
func (s *Store) CountTransactions(ctx context.Context, walletID string) (n int64, err error) {
	start := time.Now()
	defer func() { s.observe("count", "transactions", start, err) }()

	err = s.pool.QueryRow(ctx, `SELECT COUNT(*) FROM transactions WHERE wallet_id = $1`, walletID).Scan(&n)
	if err != nil {
		return 0, fmt.Errorf("failed to count transactions: %w", err)
	}
	return n, nil
}

// TransactionExists reports whether txID is stored for the wallet.
func (s *Store) TransactionExists(ctx context.Context, walletID, txID string) (exists bool, err error) {
	start := time.Now()
	defer func() { s.observe("exists", "transactions", start, err) }()

	err = s.pool.QueryRow(ctx, `
		SELECT EXISTS(SELECT 1 FROM transactions WHERE wallet_id = $1 AND id = $2)`, walletID, txID).Scan(&exists)
	if err != nil {
		return false, fmt.Errorf("failed to check transaction existence: %w", err)
	}
	return exists, nil
}

// UpdateConfirmations sets the confirmation count of existing transactions.
// A transaction the node reports again is no longer unpublished. Unknown ids
// are ignored. It returns the number of rows whose count changed.
func (s *Store) UpdateConfirmations(ctx context.Context, walletID string, counts map[string]int) (n int, err error) {
	start := time.Now()
	defer func() { s.observe("update", "transactions", start, err) }()

	if len(counts) == 0 {
		return 0, nil
	}

	batch := &pgx.Batch{}
	for id, c := range counts {
		batch.Queue(`
			UPDATE transactions
			SET confirmations = $3, unpublished = FALSE, updated_at = NOW()
			WHERE wallet_id = $1 AND id = $2
			  AND (confirmations <> $3 OR unpublished)`,
			walletID, id, c,
		)
	}

	results := s.pool.SendBatch(ctx, batch)
	defer results.Close()

	for range counts {
		tag, err := results.Exec()
		if err != nil {
			return n, fmt.Errorf("failed to update confirmations: %w", err)
		}
		n += int(tag.RowsAffected())
	}
	return n, nil
}

// Annotation is a note one wallet attached to a transaction/address pair.
type Annotation struct {
	WalletID  string
	TxID      string
	Address   string
	Note      string
	UpdatedAt time.Time
}

// GetAnnotation returns the wallet's note for a transaction/address pair.
// ok is false when none is stored.
func (s *Store) GetAnnotation(ctx context.Context, walletID, txID, address string) (note string, ok bool, err error) {
	start := time.Now()
	defer func() { s.observe("get", "annotations", start, err) }()

	err = s.pool.QueryRow(ctx, `
		SELECT note FROM annotations
		WHERE wallet_id = $1 AND tx_id = $2 AND address = $3`, walletID, txID, address).Scan(&note)
	if errors.Is(err, pgx.ErrNoRows) {
		return "", false, nil
	}
	if err != nil {
		return "", false, fmt.Errorf("failed to get annotation: %w", err)
	}
	return note, true, nil
}

// SaveAnnotation stores a wallet's note. An empty note removes it.
func (s *Store) SaveAnnotation(ctx context.Context, walletID, txID, address, note string) (err error) {
	start := time.Now()
	defer func() { s.observe("upsert", "annotations", start, err) }()

	if note == "" {
		_, err = s.pool.Exec(ctx, `
			DELETE FROM annotations
			WHERE wallet_id = $1 AND tx_id = $2 AND address = $3`, walletID, txID, address)
	} else {
		_, err = s.pool.Exec(ctx, `
			INSERT INTO annotations (wallet_id, tx_id, address, note)
			VALUES ($1, $2, $3, $4)
			ON CONFLICT (wallet_id, tx_id, address) DO UPDATE SET
				note = EXCLUDED.note,
				updated_at = NOW()`, walletID, txID, address, note)
	}
	if err != nil {
		return fmt.Errorf("failed to save annotation: %w", err)
	}
	return nil
}

// ListAnnotationsByWallet returns every note the wallet has saved.
func (s *Store) ListAnnotationsByWallet(ctx context.Context, walletID string) (out []Annotation, err error) {
	start := time.Now()
	defer func() { s.observe("list", "annotations", start, err) }()

	rows, err := s.pool.Query(ctx, `
		SELECT wallet_id, tx_id, address, note, updated_at
		FROM annotations
		WHERE wallet_id = $1
		ORDER BY updated_at DESC`, walletID)
	if err != nil {
		return nil, fmt.Errorf("failed to query annotations: %w", err)
	}
	out, err = pgx.CollectRows(rows, func(row pgx.CollectableRow) (Annotation, error) {
		var a Annotation
		err := row.Scan(&a.WalletID, &a.TxID, &a.Address, &a.Note, &a.UpdatedAt)
		return a, err
	})
	if err != nil {
		return nil, fmt.Errorf("failed to collect annotations: %w", err)
	}
	return out, nil
}

// Helper functions to convert between pgtype and domain types

func scanWallet(row pgx.Row) (*Wallet, error) {
	var (
		w            Wallet
		syncInterval pgtype.Interval
		lastSync     pgtype.Timestamptz
	)
	if err := row.Scan(
		&w.ID,
		&w.Network,
		&syncInterval,
		&lastSync,
		&w.Status,
		&w.CreatedAt,
		&w.UpdatedAt,
	); err != nil {
		return nil, err
	}
	w.SyncInterval = durationFromPgInterval(syncInterval)
	w.LastSyncTime = timePtrFromPgTimestamptz(lastSync)
	return &w, nil
}

func dedupe(addrs []string) []string {
	seen := make(map[string]struct{}, len(addrs))
	out := make([]string, 0, len(addrs))
	for _, a := range addrs {
		if _, ok := seen[a]; ok {
			continue
		}
		seen[a] = struct{}{}
		out = append(out, a)
	}
	return out
}

func numericFromDecimal(d decimal.Decimal) pgtype.Numeric {
	return pgtype.Numeric{
		Int:   new(big.Int).Set(d.Coefficient()),
		Exp:   d.Exponent(),
		Valid: true,
	}
}

func decimalFromNumeric(n pgtype.Numeric) decimal.Decimal {
	if !n.Valid || n.Int == nil || n.NaN {
		return decimal.Zero
	}
	return decimal.NewFromBigInt(n.Int, n.Exp)
}

func pgIntervalFromDuration(d time.Duration) pgtype.Interval {
	return pgtype.Interval{
		Microseconds: d.Microseconds(),
		Valid:        true,
	}
}

func durationFromPgInterval(i pgtype.Interval) time.Duration {
	if !i.Valid {
		return 0
	}
	return time.Duration(i.Microseconds)*time.Microsecond +
		time.Duration(i.Days)*24*time.Hour +
		time.Duration(i.Months)*30*24*time.Hour
}

func timePtrFromPgTimestamptz(t pgtype.Timestamptz) *time.Time {
	if !t.Valid {
		return nil
	}
	return &t.Time
}
