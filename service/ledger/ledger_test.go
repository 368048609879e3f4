package ledger

import (
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func dec(s string) decimal.Decimal {
	return decimal.RequireFromString(s)
}

func at(t time.Time) *time.Time {
	return &t
}

func assertDecimal(t *testing.T, want string, got decimal.Decimal) {
	t.Helper()
	assert.True(t, dec(want).Equal(got), "want %s, got %s", want, got.String())
}

func TestSplitBalance_FromLegs(t *testing.T) {
	owned := NewAddressSet("me1", "me2")
	tx := &Transaction{
		ID:      "t1",
		Inputs:  []Transfer{{Address: "me1", Amount: dec("10")}, {Address: "stranger", Amount: dec("3")}},
		Outputs: []Transfer{{Address: "bob", Amount: dec("4")}, {Address: "me2", Amount: dec("5.9")}, {Address: "bob", Amount: dec("1")}},
	}

	split := SplitBalance(tx, owned)

	assertDecimal(t, "-4.1", split.Net)
	require.Len(t, split.Own, 1)
	assert.Equal(t, "me2", split.Own[0].Address)
	assertDecimal(t, "5.9", split.Own[0].Amount)
	require.Len(t, split.Other, 1)
	assert.Equal(t, "bob", split.Other[0].Address)
	assertDecimal(t, "5", split.Other[0].Amount)
}

func TestSplitBalance_Idempotent(t *testing.T) {
	owned := NewAddressSet("me")
	tx := &Transaction{
		ID:      "t1",
		Inputs:  []Transfer{{Address: "alice", Amount: dec("2")}},
		Outputs: []Transfer{{Address: "me", Amount: dec("1.5")}, {Address: "carol", Amount: dec("0.5")}},
	}

	first := SplitBalance(tx, owned)
	second := SplitBalance(tx, owned)

	assert.Equal(t, first, second)
	assertDecimal(t, "1.5", first.Net)
}

func TestSplitBalance_EmptyOwnedSetIsSent(t *testing.T) {
	tx := &Transaction{
		ID:      "t1",
		Inputs:  []Transfer{{Address: "a", Amount: dec("1")}},
		Outputs: []Transfer{{Address: "b", Amount: dec("1")}},
	}

	split := SplitBalance(tx, NewAddressSet())

	assert.Empty(t, split.Own)
	assert.False(t, split.Net.IsPositive())
}

func TestSplitBalance_PrecomputedSummaries(t *testing.T) {
	tx := &Transaction{
		ID:             "t1",
		SummaryOther:   AddressAmounts{{Address: "A", Amount: dec("5")}},
		BalanceChanged: dec("-5"),
	}

	split := SplitBalance(tx, nil)
	split.Other = split.Other.Add("A", dec("1"))

	assertDecimal(t, "5", tx.SummaryOther[0].Amount)
	assertDecimal(t, "-5", split.Net)
}

func TestExpand_SingleSentScenario(t *testing.T) {
	txs := []*Transaction{{
		ID:             "t1",
		BlockTime:      at(time.Unix(1000, 0)),
		Fees:           dec("0.001"),
		SummaryOther:   AddressAmounts{{Address: "A", Amount: dec("5")}},
		BalanceChanged: dec("-5"),
	}}

	rows := Expand(txs, NewAddressSet())

	require.Len(t, rows, 1)
	assert.Equal(t, "t1", rows[0].Tx.ID)
	assert.Equal(t, "A", rows[0].Address)
	assertDecimal(t, "-5", rows[0].BalanceChange)
	assert.Equal(t, 0, rows[0].Seq)
}

func TestExpand(t *testing.T) {
	tests := []struct {
		name      string
		tx        *Transaction
		owned     AddressSet
		wantAddrs []string
		wantDelta []string
	}{
		{
			name: "sent to several counterparties",
			tx: &Transaction{
				ID:             "s",
				SummaryOther:   AddressAmounts{{"x", dec("1")}, {"y", dec("2")}, {"z", dec("3")}},
				BalanceChanged: dec("-6"),
			},
			wantAddrs: []string{"x", "y", "z"},
			wantDelta: []string{"-1", "-2", "-3"},
		},
		{
			name: "internal transfer",
			tx: &Transaction{
				ID:      "i",
				Inputs:  []Transfer{{"me1", dec("1")}},
				Outputs: []Transfer{{"me2", dec("1")}},
			},
			owned:     NewAddressSet("me1", "me2"),
			wantAddrs: []string{InternalAddress},
			wantDelta: []string{"0"},
		},
		{
			name: "received",
			tx: &Transaction{
				ID:      "r",
				Inputs:  []Transfer{{"alice", dec("3")}},
				Outputs: []Transfer{{"me1", dec("1")}, {"alice", dec("1")}, {"me2", dec("1")}},
			},
			owned:     NewAddressSet("me1", "me2"),
			wantAddrs: []string{"me1", "me2"},
			wantDelta: []string{"1", "1"},
		},
		{
			name: "received without own entries",
			tx: &Transaction{
				ID:             "m",
				BalanceChanged: dec("2"),
			},
			wantAddrs: []string{},
			wantDelta: []string{},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			rows := Expand([]*Transaction{tt.tx}, tt.owned)

			require.Len(t, rows, len(tt.wantAddrs))
			for i, row := range rows {
				assert.Equal(t, tt.wantAddrs[i], row.Address)
				assertDecimal(t, tt.wantDelta[i], row.BalanceChange)
				assert.Equal(t, i, row.Seq)
				assert.Same(t, tt.tx, row.Tx)
			}
		})
	}
}

func TestExpand_SeqResetsPerTransaction(t *testing.T) {
	a := &Transaction{ID: "a", SummaryOther: AddressAmounts{{"x", dec("1")}, {"y", dec("1")}}, BalanceChanged: dec("-2")}
	b := &Transaction{ID: "b", SummaryOther: AddressAmounts{{"x", dec("1")}, {"y", dec("1")}, {"z", dec("1")}}, BalanceChanged: dec("-3")}

	rows := Expand([]*Transaction{a, b}, nil)

	var seqs []int
	for _, r := range rows {
		seqs = append(seqs, r.Seq)
	}
	assert.Equal(t, []int{0, 1, 0, 1, 2}, seqs)
}

func TestExpand_Deterministic(t *testing.T) {
	tx := &Transaction{
		ID:      "d",
		Inputs:  []Transfer{{"me", dec("10")}},
		Outputs: []Transfer{{"q", dec("1")}, {"b", dec("2")}, {"k", dec("3")}, {"a", dec("4")}},
	}
	owned := NewAddressSet("me")

	first := Expand([]*Transaction{tx}, owned)
	for range 5 {
		assert.Equal(t, first, Expand([]*Transaction{tx}, owned))
	}
	assert.Equal(t, "q", first[0].Address)
	assert.Equal(t, "a", first[3].Address)
}

type staticNotes map[RowKey]string

func (n staticNotes) CachedAnnotation(txID, address string) (string, bool) {
	s, ok := n[RowKey{TxID: txID, Address: address}]
	return s, ok
}

func filterFixture() []Row {
	sent := &Transaction{ID: "aaa111", UniqueHash: "h1", SummaryOther: AddressAmounts{{"bob", dec("1")}, {"carol", dec("2")}}, BalanceChanged: dec("-3")}
	recv := &Transaction{ID: "bbb222", UniqueHash: "h1", SummaryOwn: AddressAmounts{{"me", dec("4")}}, BalanceChanged: dec("4")}
	other := &Transaction{ID: "ccc333", UniqueHash: "h2", SummaryOther: AddressAmounts{{"dave", dec("1")}, {"erin", dec("1")}}, BalanceChanged: dec("-2")}
	return Expand([]*Transaction{sent, recv, other}, nil)
}

func TestFilter_Direction(t *testing.T) {
	rows := filterFixture()

	sent, err := NewFilter(DirectionSent, "")
	require.NoError(t, err)
	received, err := NewFilter(DirectionReceived, "")
	require.NoError(t, err)
	all, err := NewFilter(DirectionAll, "")
	require.NoError(t, err)

	assert.Len(t, ApplyFilter(rows, sent, nil), 4)
	assert.Len(t, ApplyFilter(rows, received, nil), 1)
	assert.Len(t, ApplyFilter(rows, all, nil), 5)
	assert.False(t, all.Active())
	assert.True(t, sent.Active())
}

func TestFilter_Pattern(t *testing.T) {
	rows := filterFixture()
	notes := staticNotes{{TxID: "ccc333", Address: "erin"}: "Rent for October"}

	tests := []struct {
		name    string
		pattern string
		want    []string
	}{
		{"matches id case-insensitively", "AAA", []string{"bob", "carol"}},
		{"matches address", "^dave$", []string{"dave"}},
		{"matches cached annotation", "rent", []string{"erin"}},
		{"regex alternation", "bob|me", []string{"bob", "me"}},
		{"no match", "zzz", nil},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			f, err := NewFilter(DirectionAll, tt.pattern)
			require.NoError(t, err)

			var got []string
			for _, r := range ApplyFilter(rows, f, notes) {
				got = append(got, r.Address)
			}
			assert.Equal(t, tt.want, got)
		})
	}
}

func TestFilter_AbsentAnnotationIsEmpty(t *testing.T) {
	rows := filterFixture()
	f, err := NewFilter(DirectionAll, "^$")
	require.NoError(t, err)

	assert.Len(t, ApplyFilter(rows[:1], f, staticNotes{}), 1)
	assert.Len(t, ApplyFilter(rows[:1], f, nil), 1)
	assert.Empty(t, ApplyFilter(rows[:1], f, staticNotes{{TxID: "aaa111", Address: "bob"}: "lunch"}))
}

func TestNewFilter_InvalidPattern(t *testing.T) {
	_, err := NewFilter(DirectionAll, "([")
	require.Error(t, err)
	assert.ErrorIs(t, err, ErrInvalidPattern)
}

func TestParseDirection(t *testing.T) {
	d, err := ParseDirection("")
	require.NoError(t, err)
	assert.Equal(t, DirectionAll, d)

	d, err = ParseDirection("sent")
	require.NoError(t, err)
	assert.Equal(t, DirectionSent, d)

	_, err = ParseDirection("sideways")
	assert.ErrorIs(t, err, ErrInvalidDirection)
}

func TestApplyFilter_StableAndIdempotent(t *testing.T) {
	rows := filterFixture()
	f, err := NewFilter(DirectionSent, "o|a")
	require.NoError(t, err)

	once := ApplyFilter(rows, f, nil)
	twice := ApplyFilter(once, f, nil)

	assert.Equal(t, once, twice)
	for i := 1; i < len(once); i++ {
		assert.NotEqual(t, once[i-1].Key(), once[i].Key())
	}
}

func TestApplyFilter_DoesNotMutateInput(t *testing.T) {
	rows := filterFixture()
	before := append([]Row(nil), rows...)
	f, err := NewFilter(DirectionAll, "carol")
	require.NoError(t, err)

	out := ApplyFilter(rows, f, nil)

	require.Len(t, out, 1)
	assert.Equal(t, 0, out[0].Seq)
	assert.Equal(t, before, rows)
}

func TestRekey_ResetsAtBatchBoundaries(t *testing.T) {
	rows := filterFixture()
	all, err := NewFilter(DirectionAll, "")
	require.NoError(t, err)

	out := ApplyFilter(rows, all, nil)

	var seqs []int
	for _, r := range out {
		seqs = append(seqs, r.Seq)
	}
	// aaa111 and bbb222 share h1, so bbb222 keeps its expansion key 0 and
	// carol keeps 1. ccc333 starts h2.
	assert.Equal(t, []int{0, 1, 0, 0, 1}, seqs)

	// Dropping bob leaves carol first in the batch.
	noBob, err := NewFilter(DirectionAll, "carol|dave|erin")
	require.NoError(t, err)
	out = ApplyFilter(rows, noBob, nil)
	assert.Equal(t, 0, out[0].Seq)
	assert.Equal(t, "carol", out[0].Address)
}

func TestSummarize_SameDayFees(t *testing.T) {
	day := time.Date(2026, 10, 18, 9, 0, 0, 0, time.UTC)
	txs := []*Transaction{
		{ID: "t2", BlockTime: at(day.Add(2 * time.Hour)), Fees: dec("0.002"), SummaryOther: AddressAmounts{{"B", dec("1")}}, BalanceChanged: dec("-1")},
		{ID: "t1", BlockTime: at(day), Fees: dec("0.001"), SummaryOther: AddressAmounts{{"A", dec("1")}}, BalanceChanged: dec("-1")},
	}

	summaries := Summarize(Expand(txs, nil), day, time.UTC)

	require.Len(t, summaries, 1)
	s, ok := summaries[0]
	require.True(t, ok)
	assertDecimal(t, "0.003", s.Fee)
	assert.Equal(t, "Oct 18th 2026", s.Date)
}

func TestSummarize_DayBoundaries(t *testing.T) {
	d1 := time.Date(2026, 10, 16, 12, 0, 0, 0, time.UTC)
	d2 := d1.Add(24 * time.Hour)
	now := d2.Add(24 * time.Hour)

	txs := []*Transaction{
		// newest first; no block time means now (Oct 18th)
		{ID: "pending", Fees: dec("0.5"), SummaryOther: AddressAmounts{{"x", dec("1")}}, BalanceChanged: dec("-1")},
		{ID: "multi", BlockTime: at(d2), Fees: dec("0.25"), SummaryOther: AddressAmounts{{"x", dec("1")}, {"y", dec("1")}}, BalanceChanged: dec("-2")},
		{ID: "recv", BlockTime: at(d2), Fees: dec("7"), SummaryOwn: AddressAmounts{{"me", dec("1")}}, BalanceChanged: dec("1")},
		{ID: "old", BlockTime: at(d1), Fees: dec("0.1"), SummaryOther: AddressAmounts{{"z", dec("1")}}, BalanceChanged: dec("-1")},
	}
	rows := Expand(txs, nil)
	require.Len(t, rows, 5)

	summaries := Summarize(rows, now, time.UTC)

	require.Len(t, summaries, 3)
	assert.Equal(t, "Oct 16th 2026", summaries[4].Date)
	assertDecimal(t, "0.1", summaries[4].Fee)
	assert.Equal(t, "Oct 17th 2026", summaries[1].Date)
	assertDecimal(t, "0.25", summaries[1].Fee)
	assert.Equal(t, "Oct 18th 2026", summaries[0].Date)
	assertDecimal(t, "0.5", summaries[0].Fee)

	total := decimal.Zero
	for _, s := range summaries {
		total = total.Add(s.Fee)
	}
	assertDecimal(t, "0.85", total)
}

func TestSummarize_Empty(t *testing.T) {
	assert.Empty(t, Summarize(nil, time.Now(), time.UTC))
}

func TestDayLabel_UsesLocation(t *testing.T) {
	ts := time.Date(2026, 1, 1, 3, 0, 0, 0, time.UTC)
	ny, err := time.LoadLocation("America/New_York")
	if err != nil {
		t.Skip("tzdata not available")
	}
	assert.Equal(t, "Jan 1st 2026", DayLabel(ts, time.UTC))
	assert.Equal(t, "Dec 31st 2025", DayLabel(ts, ny))
	assert.Equal(t, "Jan 22nd 2026", DayLabel(ts.AddDate(0, 0, 21), time.UTC))
}

func TestRowTimeLabel(t *testing.T) {
	now := time.Date(2026, 10, 18, 14, 5, 0, 0, time.UTC)
	row := Row{Tx: &Transaction{ID: "t"}}
	assert.Equal(t, "14:05", row.TimeLabel(now, time.UTC))

	row.Tx.BlockTime = at(now.Add(-90 * time.Minute))
	assert.Equal(t, "12:35", row.TimeLabel(now, time.UTC))
}

func TestValidateFeed(t *testing.T) {
	assert.NoError(t, ValidateFeed(nil))
	assert.NoError(t, ValidateFeed([]*Transaction{{ID: "a"}, {ID: "b"}}))
	assert.ErrorIs(t, ValidateFeed([]*Transaction{{ID: "a"}, nil}), ErrMalformedFeed)
	assert.ErrorIs(t, ValidateFeed([]*Transaction{{ID: "a"}, {ID: "a"}}), ErrMalformedFeed)
}

func TestSameFeed(t *testing.T) {
	a := []*Transaction{{ID: "a"}, {ID: "b"}}
	b := append([]*Transaction(nil), a...)

	assert.True(t, SameFeed(a, a))
	assert.False(t, SameFeed(a, b))
	assert.False(t, SameFeed(a, a[:1]))
	assert.True(t, SameFeed(nil, nil))
}
