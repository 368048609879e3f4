package temporal

import (
	"fmt"
	"time"

	"github.com/brojonat/txledger/service/db"
	temporalsdk "go.temporal.io/sdk/temporal"
	"go.temporal.io/sdk/workflow"
)

var a *Activities // for type-safe activity invocation

// fetchLimit is the number of signatures requested per address and sync.
const fetchLimit = 1000

// SyncWalletWorkflow is the Temporal workflow that syncs one wallet's ledger.
// It is triggered by a Temporal schedule at the wallet's sync interval.
//
// The workflow performs these steps:
//  1. Load the wallet, its addresses and the ids already stored (LoadWallet)
//  2. Fetch transactions not yet stored (FetchTransactions)
//  3. Refresh confirmation counts of unsettled transactions (RefreshConfirmations)
//  4. Write the new transactions (WriteTransactions)
//  5. Publish ledger.{wallet}.updated when anything changed (PublishLedgerUpdated)
//  6. Record the sync time (CompleteSync)
func SyncWalletWorkflow(ctx workflow.Context, input SyncWalletInput) (*SyncWalletResult, error) {
	logger := workflow.GetLogger(ctx)
	logger.Info("SyncWalletWorkflow started", "wallet_id", input.WalletID)

	startedAt := workflow.Now(ctx)
	result := &SyncWalletResult{
		WalletID: input.WalletID,
		SyncTime: startedAt,
	}
	fail := func(step string, err error) (*SyncWalletResult, error) {
		msg := fmt.Sprintf("failed to %s: %v", step, err)
		result.Error = &msg
		logger.Error("SyncWalletWorkflow failed", "wallet_id", input.WalletID, "step", step, "error", err)
		return result, fmt.Errorf("failed to %s: %w", step, err)
	}

	ctx = workflow.WithActivityOptions(ctx, workflow.ActivityOptions{
		StartToCloseTimeout: 300 * time.Second,
		RetryPolicy: &temporalsdk.RetryPolicy{
			InitialInterval:    time.Second,
			BackoffCoefficient: 2.0,
			MaximumInterval:    30 * time.Second,
			MaximumAttempts:    3,
		},
	})

	// Step 1: load the wallet
	var wallet *LoadWalletResult
	if err := workflow.ExecuteActivity(ctx, a.LoadWallet, LoadWalletInput{WalletID: input.WalletID}).Get(ctx, &wallet); err != nil {
		return fail("load wallet", err)
	}
	if wallet.Status != db.WalletStatusActive {
		logger.Info("wallet is not active, skipping sync", "wallet_id", input.WalletID, "status", wallet.Status)
		result.Skipped = true
		return result, nil
	}

	// Step 2: fetch new transactions
	var fetched *FetchTransactionsResult
	err := workflow.ExecuteActivity(ctx, a.FetchTransactions, FetchTransactionsInput{
		WalletID:  wallet.WalletID,
		Network:   wallet.Network,
		Addresses: wallet.Addresses,
		Known:     wallet.KnownIDs,
		Limit:     fetchLimit,
	}).Get(ctx, &fetched)
	if err != nil {
		return fail("fetch transactions", err)
	}
	result.Fetched = len(fetched.Transactions)

	// Step 3: refresh confirmations. A failure here only delays the
	// confirmation display, so the sync carries on.
	if len(wallet.UnsettledIDs) > 0 {
		var refreshed *RefreshConfirmationsResult
		err := workflow.ExecuteActivity(ctx, a.RefreshConfirmations, RefreshConfirmationsInput{
			WalletID: wallet.WalletID,
			Network:  wallet.Network,
			IDs:      wallet.UnsettledIDs,
		}).Get(ctx, &refreshed)
		if err != nil {
			logger.Warn("failed to refresh confirmations", "wallet_id", input.WalletID, "error", err)
		} else {
			result.Refreshed = refreshed.Updated
		}
	}

	// Step 4: write new transactions
	var txIDs []string
	if len(fetched.Transactions) > 0 {
		var written *WriteTransactionsResult
		err := workflow.ExecuteActivity(ctx, a.WriteTransactions, WriteTransactionsInput{
			WalletID:     wallet.WalletID,
			Transactions: fetched.Transactions,
		}).Get(ctx, &written)
		if err != nil {
			return fail("write transactions", err)
		}
		result.Written = written.Written

		for _, tx := range fetched.Transactions {
			txIDs = append(txIDs, tx.ID)
			result.LatestSlot = max(result.LatestSlot, tx.Slot)
		}
	}

	// Step 5: publish, best effort
	if result.Written > 0 || result.Refreshed > 0 {
		err := workflow.ExecuteActivity(ctx, a.PublishLedgerUpdated, PublishLedgerUpdatedInput{
			WalletID:   wallet.WalletID,
			Written:    result.Written,
			TxIDs:      txIDs,
			LatestSlot: result.LatestSlot,
			SyncedAt:   result.SyncTime,
		}).Get(ctx, nil)
		if err != nil {
			logger.Warn("failed to publish ledger update", "wallet_id", input.WalletID, "error", err)
		}
	}

	// Step 6: record the sync
	err = workflow.ExecuteActivity(ctx, a.CompleteSync, CompleteSyncInput{
		WalletID:  wallet.WalletID,
		StartedAt: startedAt,
		SyncTime:  workflow.Now(ctx),
	}).Get(ctx, nil)
	if err != nil {
		logger.Warn("failed to record sync time", "wallet_id", input.WalletID, "error", err)
	}

	logger.Info("SyncWalletWorkflow completed successfully",
		"wallet_id", input.WalletID,
		"fetched", result.Fetched,
		"written", result.Written,
		"refreshed", result.Refreshed,
	)
	return result, nil
}
