package ledger

import (
	"fmt"
	"time"

	"github.com/dustin/go-humanize"
	"github.com/shopspring/decimal"
)

// DailySummary is the fee roll-up for one calendar day.
type DailySummary struct {
	Fee  decimal.Decimal `json:"fee"`
	Date string          `json:"date"`
}

// DaySummaries maps a position in the filtered row slice to the summary of
// the day that ends just before it, so a separator is rendered above that row.
type DaySummaries map[int]DailySummary

// DayLabel formats t as e.g. "Oct 18th 2026" in loc.
func DayLabel(t time.Time, loc *time.Location) string {
	if loc == nil {
		loc = time.Local
	}
	t = t.In(loc)
	return fmt.Sprintf("%s %s %d", t.Format("Jan"), humanize.Ordinal(t.Day()), t.Year())
}

// Summarize scans rows from oldest (the end) to newest and emits one fee
// summary per calendar day. A transaction spanning several consecutive rows
// contributes its fee once, and only when its row is on the sending side.
// Transactions without a block time fall on the day of now.
func Summarize(rows []Row, now time.Time, loc *time.Location) DaySummaries {
	summaries := make(DaySummaries)
	if len(rows) == 0 {
		return summaries
	}

	var prev *Transaction
	acc := decimal.Zero
	prevDate := ""

	i := len(rows) - 1
	for ; i >= 0; i-- {
		row := rows[i]
		if row.Tx == prev {
			continue
		}

		date := DayLabel(row.Time(now), loc)
		if prev != nil && date != prevDate {
			summaries[i+1] = DailySummary{Fee: acc, Date: prevDate}
			acc = decimal.Zero
		}

		if !row.BalanceChange.IsPositive() {
			acc = acc.Add(row.Tx.Fees)
		}

		prev = row.Tx
		prevDate = date
	}

	summaries[i+1] = DailySummary{Fee: acc, Date: prevDate}
	return summaries
}
