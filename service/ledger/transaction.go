package ledger

import (
	"time"

	"github.com/shopspring/decimal"
)

// Transaction is one wallet transaction as delivered by the feed.
// The engine treats it as immutable apart from Confirmations and Unpublished,
// which the feed updates as blocks arrive.
type Transaction struct {
	ID        string
	BlockTime *time.Time // nil means "now" for grouping and labels
	Fees      decimal.Decimal
	Slot      uint64

	// Raw legs of the transaction. When present, the balance split is
	// derived from them; otherwise the precomputed summaries are used.
	Inputs  []Transfer
	Outputs []Transfer

	SummaryOwn     AddressAmounts
	SummaryOther   AddressAmounts
	BalanceChanged decimal.Decimal

	Confirmations int
	Unpublished   bool

	// UniqueHash links transactions that render as one visual batch.
	UniqueHash string
}

// Transfer is a single input or output leg.
type Transfer struct {
	Address string          `json:"address"`
	Amount  decimal.Decimal `json:"amount"`
}

// HasLegs reports whether the transaction carries raw inputs or outputs.
func (t *Transaction) HasLegs() bool {
	return len(t.Inputs) > 0 || len(t.Outputs) > 0
}

// AddressAmount is one entry of an ordered address mapping.
type AddressAmount struct {
	Address string          `json:"address"`
	Amount  decimal.Decimal `json:"amount"`
}

// AddressAmounts is an address to amount mapping that iterates in insertion order.
type AddressAmounts []AddressAmount

// Add accumulates amount onto address, appending it if it has not been seen.
func (a AddressAmounts) Add(address string, amount decimal.Decimal) AddressAmounts {
	for i := range a {
		if a[i].Address == address {
			a[i].Amount = a[i].Amount.Add(amount)
			return a
		}
	}
	return append(a, AddressAmount{Address: address, Amount: amount})
}

// AddressSet is the set of addresses owned by the wallet.
type AddressSet map[string]struct{}

// NewAddressSet builds a set from the given addresses.
func NewAddressSet(addresses ...string) AddressSet {
	s := make(AddressSet, len(addresses))
	for _, a := range addresses {
		s[a] = struct{}{}
	}
	return s
}

// Has reports whether address is owned.
func (s AddressSet) Has(address string) bool {
	_, ok := s[address]
	return ok
}
