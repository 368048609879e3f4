package solana

import (
	"fmt"

	"github.com/gagliardetto/solana-go"
	"github.com/gagliardetto/solana-go/rpc"
)

// LamportsExponent converts lamports to SOL: 1 SOL = 10^9 lamports.
const LamportsExponent = -9

// maxStatusBatch is the most signatures getSignatureStatuses accepts.
const maxStatusBatch = 256

// ParseAddresses validates base58 wallet addresses.
func ParseAddresses(addrs []string) ([]solana.PublicKey, error) {
	keys := make([]solana.PublicKey, 0, len(addrs))
	for _, a := range addrs {
		key, err := solana.PublicKeyFromBase58(a)
		if err != nil {
			return nil, fmt.Errorf("invalid address %q: %w", a, err)
		}
		keys = append(keys, key)
	}
	return keys, nil
}

// confirmationsFor maps a signature status to a confirmation count. A
// finalized transaction (or one the node no longer counts) has at least
// recommended confirmations.
func confirmationsFor(status rpc.ConfirmationStatusType, count *uint64, recommended int) int {
	if status == rpc.ConfirmationStatusFinalized {
		return recommended
	}
	if count == nil {
		if status == rpc.ConfirmationStatusConfirmed {
			return 1
		}
		return 0
	}
	return int(*count)
}
