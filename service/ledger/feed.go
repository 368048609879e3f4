package ledger

import "fmt"

// ValidateFeed rejects transaction lists that cannot be expanded safely:
// nil entries and repeated transaction ids.
func ValidateFeed(txs []*Transaction) error {
	seen := make(map[string]int, len(txs))
	for i, tx := range txs {
		if tx == nil {
			return fmt.Errorf("%w: nil transaction at index %d", ErrMalformedFeed, i)
		}
		if j, dup := seen[tx.ID]; dup {
			return fmt.Errorf("%w: transaction %q repeated at index %d and %d", ErrMalformedFeed, tx.ID, j, i)
		}
		seen[tx.ID] = i
	}
	return nil
}

// SameFeed reports whether a and b are the same list by identity: the same
// backing array and length. Contents are not compared.
func SameFeed(a, b []*Transaction) bool {
	if len(a) != len(b) {
		return false
	}
	if len(a) == 0 {
		return (a == nil) == (b == nil)
	}
	return &a[0] == &b[0]
}
