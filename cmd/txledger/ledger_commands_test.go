package main

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/brojonat/txledger/client"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const ledgerPageJSON = `{
	"wallet_id": "savings",
	"row_count": 2,
	"offset": 0,
	"limit": 50,
	"filter": {"direction": "all", "text": ""},
	"rows": [
		{"index": 0, "tx_id": "5VERv8NMvzbJMEkV8xnrLkEaWRtSz9CosKDYjCJjBRnbJLgp8uirBgmQpjKhoR4tjF3ZpRzrFmBV6UjKdiSZkQUW",
		 "address": "SysvarRent111111111111111111111111111111111", "direction": "sent", "balance_change": "-0.6",
		 "batched": false, "time": "10:00", "slot": 200, "fees": "0.001", "live": true, "label": "Rent",
		 "status": "40/32", "day_summary": {"date": "Oct 17th 2026", "fee": "0.001"}},
		{"index": 1, "tx_id": "5VERv8NMvzbJMEkV8xnrLkEaWRtSz9CosKDYjCJjBRnbJLgp8uirBgmQpjKhoR4tjF3ZpRzrFmBV6UjKdiSZkQUW",
		 "address": "SysvarC1ock11111111111111111111111111111111", "direction": "sent", "balance_change": "-0.4",
		 "batched": true, "time": "10:00", "slot": 200, "fees": "0.001", "live": true, "label": "SysvarC1ock11111111111111111111111111111111",
		 "status": "40/32"}
	]
}`

func TestLedgerShow(t *testing.T) {
	var query string
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/api/v1/wallets/savings/ledger", r.URL.Path)
		query = r.URL.RawQuery
		w.Write([]byte(ledgerPageJSON))
	}))
	defer server.Close()

	out, err := runApp(t, server.URL, "ledger", "show", "savings")
	require.NoError(t, err)
	assert.Empty(t, query)

	assert.Contains(t, out, "── Oct 17th 2026")
	assert.Contains(t, out, "5VERv8…SZkQUW")
	assert.Contains(t, out, "↳")
	assert.Contains(t, out, "-0.6")
	assert.Contains(t, out, "Rent")
	assert.Contains(t, out, "Rows 0-2 of 2")

	_, err = runApp(t, server.URL, "ledger", "show", "--offset", "10", "savings")
	require.NoError(t, err)
	assert.Equal(t, "limit=50&offset=10", query)
}

func TestLedgerShow_JQ(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte(ledgerPageJSON))
	}))
	defer server.Close()

	out, err := runApp(t, server.URL, "ledger", "show", "--jq", `[.rows[] | select(.batched | not) | .label]`, "savings")
	require.NoError(t, err)
	assert.JSONEq(t, `["Rent"]`, out)
}

func TestLedgerFilter(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "PUT", r.Method)
		assert.Equal(t, "/api/v1/wallets/savings/ledger/filter", r.URL.Path)

		var body map[string]string
		require.NoError(t, json.NewDecoder(r.Body).Decode(&body))
		assert.Equal(t, "received", body["direction"])
		assert.Equal(t, "coffee", body["text"])

		w.Write([]byte(`{"wallet_id":"savings","row_count":0,"empty_state":"no_match","filter":{"direction":"received","text":"coffee"},"rows":[]}`))
	}))
	defer server.Close()

	out, err := runApp(t, server.URL, "ledger", "filter", "-d", "received", "-t", "coffee", "savings")
	require.NoError(t, err)
	assert.Contains(t, out, "No transactions match the filter")
}

func TestLedgerAnnotate(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/api/v1/wallets/savings/annotations/sig1/addr1", r.URL.Path)
		w.Write([]byte(`{}`))
	}))
	defer server.Close()

	out, err := runApp(t, server.URL, "ledger", "annotate", "savings", "sig1", "addr1", "Coffee")
	require.NoError(t, err)
	assert.Contains(t, out, "Note saved for sig1/addr1")

	out, err = runApp(t, server.URL, "ledger", "annotate", "savings", "sig1", "addr1")
	require.NoError(t, err)
	assert.Contains(t, out, "Note cleared for sig1/addr1")

	_, err = runApp(t, server.URL, "ledger", "annotate", "savings")
	require.Error(t, err)
}

func TestLedgerWatch_Until(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/api/v1/wallets/savings/ledger/stream", r.URL.Path)
		w.Header().Set("Content-Type", "text/event-stream")
		fmt.Fprint(w, "event: connected\ndata: {\"wallet_id\":\"savings\",\"row_count\":2}\n\n")
		fmt.Fprint(w, "event: rows\ndata: {\"kind\":\"rows\",\"key\":{\"tx_id\":\"\",\"address\":\"\"},\"row_count\":3}\n\n")
		fmt.Fprint(w, "event: confirmation\ndata: {\"kind\":\"confirmation\",\"key\":{\"tx_id\":\"sig1\",\"address\":\"addr1\"},\"confirmation\":{\"regime\":\"confirmed\",\"confirmations\":32,\"recommended\":32}}\n\n")
		fmt.Fprint(w, "event: annotation\ndata: {\"kind\":\"annotation\",\"key\":{\"tx_id\":\"sig1\",\"address\":\"addr1\"}}\n\n")
		w.(http.Flusher).Flush()

		// Hold the stream open; the command must exit on the match.
		<-r.Context().Done()
	}))
	defer server.Close()

	out, err := runApp(t, server.URL, "ledger", "watch", "--until", `.kind == "confirmation" and .confirmation.regime == "confirmed"`, "savings")
	require.NoError(t, err)

	assert.Contains(t, out, "connected: 2 rows")
	assert.Contains(t, out, "rows: 3 rows")
	assert.Contains(t, out, "confirmation: sig1/addr1 confirmed (32/32)")
	assert.NotContains(t, out, "annotation")
}

func TestEventMatches(t *testing.T) {
	code, err := compileJQ(`.row_count > 1`)
	require.NoError(t, err)

	tests := []struct {
		name string
		data string
		want bool
	}{
		{"true", `{"row_count": 2}`, true},
		{"false", `{"row_count": 1}`, false},
		{"not json", `nope`, false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			ok, err := eventMatches(context.Background(), code, &client.Event{Name: "rows", Data: json.RawMessage(tt.data)})
			require.NoError(t, err)
			assert.Equal(t, tt.want, ok)
		})
	}
}

func TestPrintPage_EmptyStates(t *testing.T) {
	tests := []struct {
		state string
		want  string
	}{
		{"loading", "Loading..."},
		{"no_match", "No transactions match the filter"},
		{"no_transactions", "No transactions yet"},
	}

	for _, tt := range tests {
		t.Run(tt.state, func(t *testing.T) {
			var buf bytes.Buffer
			printPage(&buf, &client.LedgerPage{EmptyState: tt.state})
			assert.Equal(t, tt.want+"\n", buf.String())
		})
	}
}

func TestShorten(t *testing.T) {
	assert.Equal(t, "short", shorten("short"))
	assert.Equal(t, "abcdef…uvwxyz", shorten("abcdefghijklmnopqrstuvwxyz"))
}
