package ledger

import (
	"time"

	"github.com/shopspring/decimal"
)

// InternalAddress labels the synthetic row emitted for a sent transaction
// with no counterparty outputs, i.e. a transfer between owned addresses.
const InternalAddress = "(internal transaction)"

// Row is one display line derived from a transaction/address pair.
// Rows are values; every pipeline pass builds a fresh slice of them.
type Row struct {
	Tx            *Transaction
	Address       string
	BalanceChange decimal.Decimal
	Seq           int
}

// RowKey identifies a row across pipeline passes.
type RowKey struct {
	TxID    string `json:"tx_id"`
	Address string `json:"address"`
}

// String renders the key as the concatenated list identity.
func (k RowKey) String() string {
	return k.TxID + k.Address
}

// Key returns the row identity.
func (r Row) Key() RowKey {
	return RowKey{TxID: r.Tx.ID, Address: r.Address}
}

// Batched reports whether the row continues a batch, in which case a
// separator is drawn above it.
func (r Row) Batched() bool {
	return r.Seq != 0
}

// Sent reports whether the row is on the outgoing side.
func (r Row) Sent() bool {
	return !r.BalanceChange.IsPositive()
}

// Time returns the block time of the row's transaction, or now when absent.
func (r Row) Time(now time.Time) time.Time {
	if r.Tx.BlockTime != nil {
		return *r.Tx.BlockTime
	}
	return now
}

// TimeLabel formats the row time as HH:mm in loc.
func (r Row) TimeLabel(now time.Time, loc *time.Location) string {
	if loc == nil {
		loc = time.Local
	}
	return r.Time(now).In(loc).Format("15:04")
}

// Expand decomposes transactions into display rows, in input order.
//
// Sent or internal transactions (net <= 0) yield one row per counterparty
// with the amount negated, or a single InternalAddress row when there is no
// counterparty. Received transactions yield one row per owned output and
// none when the wallet has no own-side entry. Seq counts rows within one
// transaction, starting at 0.
func Expand(txs []*Transaction, owned AddressSet) []Row {
	rows := make([]Row, 0, len(txs))

	var prev *Transaction
	seq := 0
	push := func(tx *Transaction, address string, change decimal.Decimal) {
		if tx != prev {
			prev = tx
			seq = 0
		}
		rows = append(rows, Row{Tx: tx, Address: address, BalanceChange: change, Seq: seq})
		seq++
	}

	for _, tx := range txs {
		split := SplitBalance(tx, owned)

		if !split.Net.IsPositive() {
			before := len(rows)
			for _, e := range split.Other {
				push(tx, e.Address, e.Amount.Neg())
			}
			if len(rows) == before {
				push(tx, InternalAddress, decimal.Zero)
			}
			continue
		}

		for _, e := range split.Own {
			push(tx, e.Address, e.Amount)
		}
	}

	return rows
}
