package solana

import (
	"context"
	"fmt"
	"log/slog"
	"sort"
	"strings"
	"time"

	"github.com/brojonat/txledger/service/ledger"
	"github.com/brojonat/txledger/service/metrics"
	"github.com/gagliardetto/solana-go"
	"github.com/gagliardetto/solana-go/rpc"
)

// RPCClient is an interface for the Solana RPC operations we need.
// This allows us to mock the RPC layer in tests without hitting real Solana nodes.
type RPCClient interface {
	GetSignaturesForAddress(
		ctx context.Context,
		address solana.PublicKey,
		opts *rpc.GetSignaturesForAddressOpts,
	) ([]*rpc.TransactionSignature, error)

	GetTransaction(
		ctx context.Context,
		signature solana.Signature,
		opts *rpc.GetTransactionOpts,
	) (*rpc.GetTransactionResult, error)

	GetSignatureStatuses(
		ctx context.Context,
		searchTransactionHistory bool,
		signatures ...solana.Signature,
	) (*rpc.GetSignatureStatusesResult, error)
}

// Client turns wallet addresses into ledger transactions.
type Client struct {
	rpc          RPCClient
	logger       *slog.Logger
	metrics      *metrics.Metrics
	endpoint     string // RPC endpoint identifier for metrics (e.g., "mainnet", "devnet", rpc host)
	recommended  int
	requestDelay time.Duration
	maxAttempts  int
}

// NewClient creates a new Solana client.
// The endpoint parameter is used for metrics labeling (e.g., "mainnet", "devnet", or RPC hostname).
// If metrics is nil, no metrics will be recorded.
func NewClient(rpcClient RPCClient, endpoint string, m *metrics.Metrics, logger *slog.Logger) *Client {
	return &Client{
		rpc:          rpcClient,
		logger:       logger,
		metrics:      m,
		endpoint:     endpoint,
		recommended:  32,
		requestDelay: 600 * time.Millisecond,
		maxAttempts:  3,
	}
}

// WithRecommendedConfirmations sets the count reported for finalized
// transactions.
func (c *Client) WithRecommendedConfirmations(n int) *Client {
	c.recommended = n
	return c
}

// WithRequestDelay sets the pause between GetTransaction calls.
// Public mainnet needs ~600ms; premium endpoints can go down to ~100ms.
func (c *Client) WithRequestDelay(d time.Duration) *Client {
	c.requestDelay = d
	return c
}

// FetchParams selects the transactions to fetch for a wallet.
type FetchParams struct {
	WalletID  string
	Addresses []solana.PublicKey
	Limit     int // signatures per address

	// Known ids are skipped; their confirmations are refreshed separately.
	Known []string
}

// FetchTransactions returns the transactions touching any of the wallet's
// addresses that are not already known, newest first. A transaction touching
// several addresses is fetched once. Transactions that cannot be fetched or
// parsed are skipped and retried on the next sync.
func (c *Client) FetchTransactions(ctx context.Context, params FetchParams) ([]*ledger.Transaction, error) {
	known := make(map[string]struct{}, len(params.Known))
	for _, id := range params.Known {
		known[id] = struct{}{}
	}

	var pending []*rpc.TransactionSignature
	for _, addr := range params.Addresses {
		sigs, err := c.signaturesFor(ctx, addr, params.Limit)
		if err != nil {
			return nil, err
		}
		skipped := 0
		for _, sig := range sigs {
			id := sig.Signature.String()
			if _, ok := known[id]; ok {
				skipped++
				continue
			}
			known[id] = struct{}{}
			pending = append(pending, sig)
		}
		if skipped > 0 && c.metrics != nil {
			c.metrics.RecordTransactionsSkipped(addr.String(), "already_fetched", skipped)
		}
	}

	transactions := make([]*ledger.Transaction, 0, len(pending))
	for i, sig := range pending {
		if i > 0 && c.requestDelay > 0 {
			if err := sleep(ctx, c.requestDelay); err != nil {
				return nil, err
			}
		}

		result, err := c.getTransaction(ctx, sig.Signature)
		if err != nil {
			if ctx.Err() != nil {
				return nil, ctx.Err()
			}
			c.logger.WarnContext(ctx, "failed to get transaction details after retries, skipping",
				"signature", sig.Signature.String(),
				"error", err,
			)
			if c.metrics != nil {
				c.metrics.RecordTransactionParsed(params.WalletID, "unavailable")
			}
			continue
		}

		txn, err := parseTransactionFromResult(sig, result, c.recommended)
		if err != nil {
			c.logger.WarnContext(ctx, "failed to parse transaction, skipping",
				"signature", sig.Signature.String(),
				"error", err,
			)
			if c.metrics != nil {
				c.metrics.RecordTransactionParsed(params.WalletID, "error")
			}
			continue
		}

		if c.metrics != nil {
			c.metrics.RecordTransactionParsed(params.WalletID, "success")
		}
		transactions = append(transactions, txn)
	}

	if err := c.fillConfirmations(ctx, transactions); err != nil {
		c.logger.WarnContext(ctx, "failed to refresh confirmations of new transactions",
			"wallet_id", params.WalletID,
			"error", err,
		)
	}

	sort.SliceStable(transactions, func(i, j int) bool {
		if transactions[i].Slot != transactions[j].Slot {
			return transactions[i].Slot > transactions[j].Slot
		}
		return transactions[i].ID < transactions[j].ID
	})

	if c.metrics != nil {
		c.metrics.RecordTransactionsFetched(params.WalletID, c.endpoint, len(transactions))
	}
	c.logger.InfoContext(ctx, "fetched and parsed transactions",
		"wallet_id", params.WalletID,
		"addresses", len(params.Addresses),
		"count", len(transactions),
	)

	return transactions, nil
}

// GetConfirmations returns the current confirmation count of each id.
// Ids the node does not know are omitted.
func (c *Client) GetConfirmations(ctx context.Context, ids []string) (map[string]int, error) {
	out := make(map[string]int, len(ids))
	for start := 0; start < len(ids); start += maxStatusBatch {
		end := min(start+maxStatusBatch, len(ids))
		batch := make([]solana.Signature, 0, end-start)
		for _, id := range ids[start:end] {
			sig, err := solana.SignatureFromBase58(id)
			if err != nil {
				return nil, fmt.Errorf("invalid signature %q: %w", id, err)
			}
			batch = append(batch, sig)
		}

		callStart := time.Now()
		res, err := c.rpc.GetSignatureStatuses(ctx, true, batch...)
		c.recordCall("GetSignatureStatuses", callStart, err)
		if err != nil {
			return nil, fmt.Errorf("failed to get signature statuses: %w", err)
		}

		for i, st := range res.Value {
			if st == nil || i >= len(batch) {
				continue
			}
			out[batch[i].String()] = confirmationsFor(st.ConfirmationStatus, st.Confirmations, c.recommended)
		}
	}
	return out, nil
}

func (c *Client) fillConfirmations(ctx context.Context, txs []*ledger.Transaction) error {
	var ids []string
	for _, tx := range txs {
		if tx.Confirmations < c.recommended {
			ids = append(ids, tx.ID)
		}
	}
	if len(ids) == 0 {
		return nil
	}
	counts, err := c.GetConfirmations(ctx, ids)
	if err != nil {
		return err
	}
	for _, tx := range txs {
		if n, ok := counts[tx.ID]; ok {
			tx.Confirmations = n
		}
	}
	return nil
}

func (c *Client) signaturesFor(ctx context.Context, addr solana.PublicKey, limit int) ([]*rpc.TransactionSignature, error) {
	opts := &rpc.GetSignaturesForAddressOpts{}
	if limit > 0 {
		opts.Limit = &limit
	}

	c.logger.DebugContext(ctx, "calling GetSignaturesForAddress",
		"address", addr.String(),
		"limit", limit,
	)

	start := time.Now()
	signatures, err := c.rpc.GetSignaturesForAddress(ctx, addr, opts)
	c.recordCall("GetSignaturesForAddress", start, err)
	if err != nil {
		c.logger.ErrorContext(ctx, "failed to get signatures",
			"address", addr.String(),
			"error", err,
		)
		return nil, fmt.Errorf("failed to get signatures for %s: %w", addr, err)
	}
	if c.metrics != nil {
		c.metrics.RecordRPCSignaturesPerCall(c.endpoint, float64(len(signatures)))
	}
	return signatures, nil
}

// getTransaction fetches one transaction with retries: rate limits back off
// longer, and a versioned-decode failure is retried once as legacy.
func (c *Client) getTransaction(ctx context.Context, sig solana.Signature) (*rpc.GetTransactionResult, error) {
	var (
		result *rpc.GetTransactionResult
		err    error
	)
	for attempt := range c.maxAttempts {
		opts := &rpc.GetTransactionOpts{
			Encoding:                       solana.EncodingBase64,
			MaxSupportedTransactionVersion: &[]uint64{0}[0],
		}
		start := time.Now()
		result, err = c.rpc.GetTransaction(ctx, sig, opts)
		c.recordCall("GetTransaction", start, err)
		if err == nil {
			return result, nil
		}

		if strings.Contains(err.Error(), "429") {
			backoff := time.Duration(2<<uint(attempt)) * time.Second // 2s, 4s, 8s
			c.logger.WarnContext(ctx, "rate limited, sleeping before retry",
				"signature", sig.String(),
				"attempt", attempt+1,
				"backoff_seconds", backoff.Seconds(),
			)
			if c.metrics != nil {
				c.metrics.RecordRateLimitHit(c.endpoint)
				c.metrics.RecordRPCRetry("GetTransaction", "rate_limit")
			}
			if err := sleep(ctx, backoff); err != nil {
				return nil, err
			}
			continue
		}

		if strings.Contains(err.Error(), "expects '\"' or 'n', but found '{'") {
			c.logger.WarnContext(ctx, "could not parse as versioned tx, retrying as legacy",
				"signature", sig.String(),
			)
			if c.metrics != nil {
				c.metrics.RecordRPCRetry("GetTransaction", "parse_error")
			}
			start := time.Now()
			result, err = c.rpc.GetTransaction(ctx, sig, &rpc.GetTransactionOpts{Encoding: solana.EncodingBase64})
			c.recordCall("GetTransaction", start, err)
			if err == nil {
				return result, nil
			}
		}

		backoff := time.Duration(1<<uint(attempt)) * time.Second // 1s, 2s, 4s
		c.logger.WarnContext(ctx, "failed to get transaction on attempt",
			"signature", sig.String(),
			"attempt", attempt+1,
			"error", err,
			"backoff_seconds", backoff.Seconds(),
		)
		if c.metrics != nil {
			c.metrics.RecordRPCRetry("GetTransaction", "timeout_or_error")
		}
		if attempt+1 < c.maxAttempts {
			if err := sleep(ctx, backoff); err != nil {
				return nil, err
			}
		}
	}
	return nil, err
}

func (c *Client) recordCall(method string, start time.Time, err error) {
	if c.metrics == nil {
		return
	}
	status := "success"
	if err != nil {
		status = "error"
	}
	c.metrics.RecordRPCCall(method, status, c.endpoint, time.Since(start).Seconds())
}

func sleep(ctx context.Context, d time.Duration) error {
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-t.C:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}
