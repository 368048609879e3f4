package ledger

import (
	"fmt"
	"regexp"
)

// Direction restricts rows by the sign of their balance change.
type Direction string

const (
	DirectionAll      Direction = "all"
	DirectionSent     Direction = "sent"
	DirectionReceived Direction = "received"
)

// ParseDirection validates a direction name. The empty string means all.
func ParseDirection(s string) (Direction, error) {
	switch Direction(s) {
	case "", DirectionAll:
		return DirectionAll, nil
	case DirectionSent, DirectionReceived:
		return Direction(s), nil
	default:
		return "", fmt.Errorf("%w: %q", ErrInvalidDirection, s)
	}
}

// AnnotationLookup returns the cached annotation for a row. It must not do I/O.
type AnnotationLookup interface {
	CachedAnnotation(txID, address string) (string, bool)
}

// Filter is a direction plus an optional case-insensitive pattern.
// The zero value keeps every row.
type Filter struct {
	Direction Direction
	Text      string
	pattern   *regexp.Regexp
}

// NewFilter compiles text as a case-insensitive regular expression.
// An empty text disables pattern matching.
func NewFilter(direction Direction, text string) (Filter, error) {
	f := Filter{Direction: direction, Text: text}
	if f.Direction == "" {
		f.Direction = DirectionAll
	}
	if text == "" {
		return f, nil
	}
	re, err := regexp.Compile("(?i)" + text)
	if err != nil {
		return Filter{}, fmt.Errorf("%w: %q: %v", ErrInvalidPattern, text, err)
	}
	f.pattern = re
	return f, nil
}

// Active reports whether the filter can drop any row.
func (f Filter) Active() bool {
	return f.pattern != nil || (f.Direction != "" && f.Direction != DirectionAll)
}

// Match decides whether a row is kept. Direction is checked first, then the
// pattern against the transaction id, the address and the cached annotation.
func (f Filter) Match(row Row, lookup AnnotationLookup) bool {
	switch f.Direction {
	case DirectionReceived:
		if !row.BalanceChange.IsPositive() {
			return false
		}
	case DirectionSent:
		if row.BalanceChange.IsPositive() {
			return false
		}
	}

	if f.pattern == nil {
		return true
	}
	if f.pattern.MatchString(row.Tx.ID) || f.pattern.MatchString(row.Address) {
		return true
	}
	var note string
	if lookup != nil {
		note, _ = lookup.CachedAnnotation(row.Tx.ID, row.Address)
	}
	return f.pattern.MatchString(note)
}

// ApplyFilter keeps the matching rows in their original order and re-keys
// the result. The input slice is not modified.
func ApplyFilter(rows []Row, f Filter, lookup AnnotationLookup) []Row {
	out := make([]Row, 0, len(rows))
	for _, r := range rows {
		if f.Match(r, lookup) {
			out = append(out, r)
		}
	}
	Rekey(out)
	return out
}

// Rekey resets Seq to 0 on every row whose batch hash differs from the
// previous visible row. Rows continuing a batch keep their expansion key.
// The first row always starts a batch.
func Rekey(rows []Row) {
	for i := range rows {
		if i == 0 || rows[i].Tx.UniqueHash != rows[i-1].Tx.UniqueHash {
			rows[i].Seq = 0
		}
	}
}
