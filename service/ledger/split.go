package ledger

import "github.com/shopspring/decimal"

// BalanceSplit is the wallet-relative view of one transaction.
type BalanceSplit struct {
	Own   AddressAmounts  // received by owned addresses
	Other AddressAmounts  // sent to addresses the wallet does not own
	Net   decimal.Decimal // signed effect on the wallet balance
}

// SplitBalance computes how a transaction changes the wallet's balance,
// per address and in total. It never mutates tx, so repeated calls with
// the same owned set return identical results.
//
// Owned inputs reduce the net balance. Outputs to owned addresses go to Own
// and increase it, all other outputs go to Other. A transaction without raw
// legs returns its precomputed summaries.
func SplitBalance(tx *Transaction, owned AddressSet) BalanceSplit {
	if !tx.HasLegs() {
		return BalanceSplit{
			Own:   append(AddressAmounts(nil), tx.SummaryOwn...),
			Other: append(AddressAmounts(nil), tx.SummaryOther...),
			Net:   tx.BalanceChanged,
		}
	}

	var split BalanceSplit
	for _, in := range tx.Inputs {
		if owned.Has(in.Address) {
			split.Net = split.Net.Sub(in.Amount)
		}
	}
	for _, out := range tx.Outputs {
		if owned.Has(out.Address) {
			split.Own = split.Own.Add(out.Address, out.Amount)
			split.Net = split.Net.Add(out.Amount)
		} else {
			split.Other = split.Other.Add(out.Address, out.Amount)
		}
	}
	return split
}
