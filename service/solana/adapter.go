package solana

import (
	"context"
	"errors"
	"math/rand/v2"
	"strings"

	"github.com/gagliardetto/solana-go"
	"github.com/gagliardetto/solana-go/rpc"
)

// rpcAdapter narrows *rpc.Client to the three calls the feed makes.
type rpcAdapter struct {
	rpc *rpc.Client
}

// NewRPCClient returns an RPCClient backed by solana-go. Provider API keys
// travel in the URL (query string for Helius, path for QuickNode and Alchemy).
func NewRPCClient(endpoint string) RPCClient {
	return &rpcAdapter{rpc: rpc.New(endpoint)}
}

func (a *rpcAdapter) GetSignaturesForAddress(ctx context.Context, address solana.PublicKey, opts *rpc.GetSignaturesForAddressOpts) ([]*rpc.TransactionSignature, error) {
	return a.rpc.GetSignaturesForAddressWithOpts(ctx, address, opts)
}

func (a *rpcAdapter) GetTransaction(ctx context.Context, sig solana.Signature, opts *rpc.GetTransactionOpts) (*rpc.GetTransactionResult, error) {
	return a.rpc.GetTransaction(ctx, sig, opts)
}

func (a *rpcAdapter) GetSignatureStatuses(ctx context.Context, searchHistory bool, sigs ...solana.Signature) (*rpc.GetSignatureStatusesResult, error) {
	return a.rpc.GetSignatureStatuses(ctx, searchHistory, sigs...)
}

// ErrNoEndpoints is returned when a network has no RPC URL configured.
var ErrNoEndpoints = errors.New("no RPC endpoints configured")

// SplitEndpoints parses a comma separated list of RPC URLs, dropping blanks.
func SplitEndpoints(s string) []string {
	var out []string
	for _, part := range strings.Split(s, ",") {
		if part = strings.TrimSpace(part); part != "" {
			out = append(out, part)
		}
	}
	return out
}

// SelectRandomEndpoint picks one of endpoints uniformly.
func SelectRandomEndpoint(endpoints []string) (string, error) {
	if len(endpoints) == 0 {
		return "", ErrNoEndpoints
	}
	return endpoints[rand.IntN(len(endpoints))], nil
}
