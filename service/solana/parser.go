package solana

import (
	"errors"
	"fmt"
	"strconv"

	"github.com/brojonat/txledger/service/ledger"
	"github.com/gagliardetto/solana-go"
	"github.com/gagliardetto/solana-go/rpc"
	"github.com/shopspring/decimal"
)

// ErrNoMeta is returned for transactions the node returned without metadata.
var ErrNoMeta = errors.New("transaction has no metadata")

// parseTransactionFromResult turns a full GetTransactionResult into a ledger
// transaction. Legs come from the lamport balance deltas: accounts whose
// balance dropped are inputs (the fee payer's input includes the fee) and
// accounts whose balance grew are outputs.
func parseTransactionFromResult(sig *rpc.TransactionSignature, result *rpc.GetTransactionResult, recommended int) (*ledger.Transaction, error) {
	if result == nil || result.Transaction == nil {
		return nil, fmt.Errorf("transaction %s not available", sig.Signature)
	}
	if result.Meta == nil {
		return nil, fmt.Errorf("%w: %s", ErrNoMeta, sig.Signature)
	}

	tx, err := result.Transaction.GetTransaction()
	if err != nil {
		return nil, fmt.Errorf("failed to decode transaction: %w", err)
	}

	keys := accountKeys(tx, result.Meta)
	meta := result.Meta
	if len(meta.PreBalances) != len(meta.PostBalances) || len(meta.PreBalances) > len(keys) {
		return nil, fmt.Errorf("balance arrays do not match %d account keys", len(keys))
	}

	slot := result.Slot
	if slot == 0 {
		slot = sig.Slot
	}

	out := &ledger.Transaction{
		ID:            sig.Signature.String(),
		Slot:          slot,
		Fees:          decimal.New(int64(meta.Fee), LamportsExponent),
		Confirmations: confirmationsFor(sig.ConfirmationStatus, nil, recommended),
		UniqueHash:    strconv.FormatUint(slot, 10),
	}

	switch {
	case result.BlockTime != nil:
		t := result.BlockTime.Time()
		out.BlockTime = &t
	case sig.BlockTime != nil:
		t := sig.BlockTime.Time()
		out.BlockTime = &t
	}

	for i := range meta.PreBalances {
		delta := int64(meta.PostBalances[i]) - int64(meta.PreBalances[i])
		switch {
		case delta < 0:
			out.Inputs = append(out.Inputs, ledger.Transfer{
				Address: keys[i].String(),
				Amount:  decimal.New(-delta, LamportsExponent),
			})
		case delta > 0:
			out.Outputs = append(out.Outputs, ledger.Transfer{
				Address: keys[i].String(),
				Amount:  decimal.New(delta, LamportsExponent),
			})
		}
	}

	return out, nil
}

// accountKeys returns the static keys followed by the keys loaded from
// address lookup tables, in the order the balance arrays use.
func accountKeys(tx *solana.Transaction, meta *rpc.TransactionMeta) []solana.PublicKey {
	keys := make([]solana.PublicKey, 0, len(tx.Message.AccountKeys)+len(meta.LoadedAddresses.Writable)+len(meta.LoadedAddresses.ReadOnly))
	keys = append(keys, tx.Message.AccountKeys...)
	keys = append(keys, meta.LoadedAddresses.Writable...)
	keys = append(keys, meta.LoadedAddresses.ReadOnly...)
	return keys
}
