package server

import (
	"bufio"
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/brojonat/txledger/service/db"
	"github.com/brojonat/txledger/service/ledger"
	natspkg "github.com/brojonat/txledger/service/nats"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func sampleFeed() []*ledger.Transaction {
	day := time.Date(2026, 10, 17, 0, 0, 0, 0, time.UTC)
	t1 := day.Add(10 * time.Hour)
	t2 := day.Add(9 * time.Hour)
	return []*ledger.Transaction{
		{
			ID:        "sent",
			BlockTime: &t1,
			Fees:      decimal.RequireFromString("0.001"),
			Slot:      200,
			Inputs:    []ledger.Transfer{{Address: ownAddress, Amount: decimal.RequireFromString("1.001")}},
			Outputs: []ledger.Transfer{
				{Address: rentAddress, Amount: decimal.RequireFromString("0.6")},
				{Address: clockAddress, Amount: decimal.RequireFromString("0.4")},
			},
			Confirmations: 40,
			UniqueHash:    "sent",
		},
		{
			ID:            "recv",
			BlockTime:     &t2,
			Fees:          decimal.RequireFromString("0.002"),
			Slot:          100,
			Inputs:        []ledger.Transfer{{Address: rentAddress, Amount: decimal.RequireFromString("2.002")}},
			Outputs:       []ledger.Transfer{{Address: ownAddress, Amount: decimal.RequireFromString("2")}},
			Confirmations: 3,
			UniqueHash:    "recv",
		},
	}
}

// newLedgerEnv registers "savings" directly in the store with sampleFeed.
func newLedgerEnv(t *testing.T) *testEnv {
	t.Helper()
	env := newTestEnv(t)
	_, err := env.store.CreateWallet(context.Background(), db.CreateWalletParams{
		ID:        "savings",
		Network:   "mainnet",
		Addresses: []string{ownAddress},
		Status:    db.WalletStatusActive,
	})
	require.NoError(t, err)
	env.store.setTransactions("savings", sampleFeed())
	return env
}

func (e *testEnv) ledger(t *testing.T, query string) ledgerResponse {
	t.Helper()
	rec := e.do(t, http.MethodGet, "/api/v1/wallets/savings/ledger"+query, "")
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	return decodeJSON[ledgerResponse](t, rec)
}

func TestGetLedger(t *testing.T) {
	env := newLedgerEnv(t)

	resp := env.ledger(t, "")
	assert.Equal(t, "savings", resp.WalletID)
	assert.Equal(t, 3, resp.RowCount)
	assert.Empty(t, resp.EmptyState)
	assert.Equal(t, "all", resp.Filter.Direction)
	assert.Equal(t, 0, resp.Offset)
	assert.Equal(t, defaultPageLimit, resp.Limit)
	require.Len(t, resp.Rows, 3)

	sent, batched, received := resp.Rows[0], resp.Rows[1], resp.Rows[2]

	assert.Equal(t, "sent", sent.TxID)
	assert.Equal(t, rentAddress, sent.Address)
	assert.Equal(t, "sent", sent.Direction)
	assert.Equal(t, "-0.6", sent.BalanceChange)
	assert.False(t, sent.Batched)
	assert.Equal(t, "10:00", sent.Time)
	assert.True(t, sent.Live)
	assert.Equal(t, rentAddress, sent.Label)
	require.NotNil(t, sent.Confirmation)
	assert.Equal(t, "40/32", sent.Status)

	assert.Equal(t, clockAddress, batched.Address)
	assert.True(t, batched.Batched)

	assert.Equal(t, "recv", received.TxID)
	assert.Equal(t, ownAddress, received.Address)
	assert.Equal(t, "received", received.Direction)
	assert.Equal(t, "2", received.BalanceChange)
	require.NotNil(t, received.Confirmation)
	assert.Equal(t, "3/32", received.Status)
}

func TestGetLedger_Window(t *testing.T) {
	env := newLedgerEnv(t)

	resp := env.ledger(t, "?offset=1&limit=1")
	require.Len(t, resp.Rows, 1)
	assert.Equal(t, 1, resp.Rows[0].Index)
	assert.Equal(t, clockAddress, resp.Rows[0].Address)
	assert.True(t, resp.Rows[0].Live)

	// Without parameters the current window is rendered.
	resp = env.ledger(t, "")
	assert.Equal(t, 1, resp.Offset)
	assert.Equal(t, 1, resp.Limit)
	require.Len(t, resp.Rows, 1)

	rec := env.do(t, http.MethodPut, "/api/v1/wallets/savings/ledger/window", `{"offset":0,"limit":2}`)
	require.Equal(t, http.StatusOK, rec.Code)
	resp = decodeJSON[ledgerResponse](t, rec)
	assert.Len(t, resp.Rows, 2)

	// Past the end renders nothing but keeps the count.
	resp = env.ledger(t, "?offset=10")
	assert.Equal(t, 3, resp.RowCount)
	assert.Empty(t, resp.Rows)
}

func TestGetLedger_Errors(t *testing.T) {
	env := newLedgerEnv(t)

	tests := []struct {
		name   string
		method string
		path   string
		body   string
		status int
	}{
		{"unknown wallet", http.MethodGet, "/api/v1/wallets/missing/ledger", "", http.StatusNotFound},
		{"invalid wallet id", http.MethodGet, "/api/v1/wallets/a.b/ledger", "", http.StatusBadRequest},
		{"limit not a number", http.MethodGet, "/api/v1/wallets/savings/ledger?limit=abc", "", http.StatusBadRequest},
		{"limit too large", http.MethodGet, "/api/v1/wallets/savings/ledger?limit=100000", "", http.StatusBadRequest},
		{"negative offset", http.MethodGet, "/api/v1/wallets/savings/ledger?offset=-1", "", http.StatusBadRequest},
		{"negative window", http.MethodPut, "/api/v1/wallets/savings/ledger/window", `{"offset":-1,"limit":1}`, http.StatusBadRequest},
		{"window too large", http.MethodPut, "/api/v1/wallets/savings/ledger/window", `{"offset":0,"limit":100000}`, http.StatusBadRequest},
		{"window bad JSON", http.MethodPut, "/api/v1/wallets/savings/ledger/window", `{`, http.StatusBadRequest},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			rec := env.do(t, tt.method, tt.path, tt.body)
			assert.Equal(t, tt.status, rec.Code, rec.Body.String())
		})
	}
}

func TestGetLedger_StoreFailure(t *testing.T) {
	env := newLedgerEnv(t)
	env.store.listTxErr = errors.New("database down")

	rec := env.do(t, http.MethodGet, "/api/v1/wallets/savings/ledger", "")
	assert.Equal(t, http.StatusInternalServerError, rec.Code)
	assert.Zero(t, env.hub.Len(), "failed views are not kept")
}

func TestGetLedger_EmptyStates(t *testing.T) {
	env := newLedgerEnv(t)
	env.store.setTransactions("savings", []*ledger.Transaction{})

	resp := env.ledger(t, "")
	assert.Zero(t, resp.RowCount)
	assert.Equal(t, "no_transactions", resp.EmptyState)
	assert.NotNil(t, resp.Rows)

	rec := env.do(t, http.MethodPut, "/api/v1/wallets/savings/ledger/filter", `{"text":"anything"}`)
	require.Equal(t, http.StatusOK, rec.Code)
	resp = decodeJSON[ledgerResponse](t, rec)
	assert.Equal(t, "no_match", resp.EmptyState)
}

func TestSetFilter(t *testing.T) {
	tests := []struct {
		name      string
		body      string
		status    int
		wantRows  int
		wantError string
	}{
		{name: "received only", body: `{"direction":"received"}`, status: http.StatusOK, wantRows: 1},
		{name: "sent only", body: `{"direction":"sent"}`, status: http.StatusOK, wantRows: 2},
		{name: "address pattern", body: `{"text":"sysvarc1ock"}`, status: http.StatusOK, wantRows: 1},
		{name: "transaction id pattern", body: `{"text":"^recv$"}`, status: http.StatusOK, wantRows: 1},
		{name: "pattern and direction", body: `{"direction":"received","text":"sent"}`, status: http.StatusOK, wantRows: 0},
		{name: "clear filter", body: `{}`, status: http.StatusOK, wantRows: 3},
		{name: "invalid pattern", body: `{"text":"("}`, status: http.StatusBadRequest, wantError: "invalid"},
		{name: "invalid direction", body: `{"direction":"sideways"}`, status: http.StatusBadRequest, wantError: "sideways"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			env := newLedgerEnv(t)
			rec := env.do(t, http.MethodPut, "/api/v1/wallets/savings/ledger/filter", tt.body)
			require.Equal(t, tt.status, rec.Code, rec.Body.String())

			if tt.wantError != "" {
				assert.Contains(t, rec.Body.String(), tt.wantError)
				// The previous filter stays active.
				assert.Equal(t, 3, env.ledger(t, "").RowCount)
				return
			}
			resp := decodeJSON[ledgerResponse](t, rec)
			assert.Equal(t, tt.wantRows, resp.RowCount)
			assert.Len(t, resp.Rows, tt.wantRows)
		})
	}
}

func TestSaveAnnotation(t *testing.T) {
	env := newLedgerEnv(t)
	env.ledger(t, "") // open the view so rows are live

	path := "/api/v1/wallets/savings/annotations/sent/" + rentAddress
	rec := env.do(t, http.MethodPut, path, `{"note":"Rent for October"}`)
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())

	require.Eventually(t, func() bool {
		resp := env.ledger(t, "")
		return resp.Rows[0].Label == "Rent for October" && resp.Rows[0].Note == "Rent for October"
	}, 2*time.Second, 10*time.Millisecond)

	events := env.publisher.GetAnnotationSavedEvents()
	require.Len(t, events, 1)
	assert.Equal(t, "savings", events[0].WalletID)
	assert.Equal(t, "sent", events[0].TxID)
	assert.Equal(t, rentAddress, events[0].Address)

	// The cached note is searchable.
	rec = env.do(t, http.MethodPut, "/api/v1/wallets/savings/ledger/filter", `{"text":"october"}`)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, 1, decodeJSON[ledgerResponse](t, rec).RowCount)

	// Clearing the note falls back to the address.
	env.do(t, http.MethodPut, "/api/v1/wallets/savings/ledger/filter", `{}`)
	rec = env.do(t, http.MethodPut, path, `{"note":""}`)
	require.Equal(t, http.StatusOK, rec.Code)
	require.Eventually(t, func() bool {
		return env.ledger(t, "").Rows[0].Label == rentAddress
	}, 2*time.Second, 10*time.Millisecond)
}

func TestSaveAnnotation_Errors(t *testing.T) {
	env := newLedgerEnv(t)

	tests := []struct {
		name   string
		path   string
		body   string
		status int
	}{
		{"unknown wallet", "/api/v1/wallets/missing/annotations/sent/" + rentAddress, `{"note":"x"}`, http.StatusNotFound},
		{"invalid address", "/api/v1/wallets/savings/annotations/sent/0OIl", `{"note":"x"}`, http.StatusBadRequest},
		{"invalid tx id", "/api/v1/wallets/savings/annotations/0OIl/" + rentAddress, `{"note":"x"}`, http.StatusBadRequest},
		{"note too long", "/api/v1/wallets/savings/annotations/sent/" + rentAddress, `{"note":"` + strings.Repeat("x", 2000) + `"}`, http.StatusBadRequest},
		{"bad JSON", "/api/v1/wallets/savings/annotations/sent/" + rentAddress, `{"note":`, http.StatusBadRequest},
		{"transaction not in wallet", "/api/v1/wallets/savings/annotations/elsewhere/" + rentAddress, `{"note":"x"}`, http.StatusNotFound},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			rec := env.do(t, http.MethodPut, tt.path, tt.body)
			assert.Equal(t, tt.status, rec.Code, rec.Body.String())
		})
	}
}

func TestSaveAnnotation_SharedTransaction(t *testing.T) {
	env := newLedgerEnv(t)
	ctx := context.Background()
	_, err := env.store.CreateWallet(ctx, db.CreateWalletParams{
		ID:        "landlord",
		Network:   "mainnet",
		Addresses: []string{rentAddress},
		Status:    db.WalletStatusActive,
	})
	require.NoError(t, err)
	env.store.setTransactions("landlord", sampleFeed())

	rec := env.do(t, http.MethodPut, "/api/v1/wallets/savings/annotations/sent/"+rentAddress, `{"note":"rent to landlord"}`)
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	rec = env.do(t, http.MethodPut, "/api/v1/wallets/landlord/annotations/sent/"+rentAddress, `{"note":"rent from tenant"}`)
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())

	for wallet, want := range map[string]string{
		"savings":  "rent to landlord",
		"landlord": "rent from tenant",
	} {
		note, ok, err := env.notes.GetAnnotation(ctx, wallet, "sent", rentAddress)
		require.NoError(t, err)
		require.True(t, ok, wallet)
		assert.Equal(t, want, note, wallet)
	}

	require.Eventually(t, func() bool {
		return env.ledger(t, "").Rows[0].Label == "rent to landlord"
	}, 2*time.Second, 10*time.Millisecond)
}

func TestHub_LedgerUpdatedReloads(t *testing.T) {
	env := newLedgerEnv(t)
	view, err := env.hub.View(context.Background(), "savings")
	require.NoError(t, err)

	feed := sampleFeed()
	feed[1].Confirmations = 32
	env.store.setTransactions("savings", feed[1:])

	require.NoError(t, view.Reload(context.Background()))

	resp := env.ledger(t, "")
	require.Equal(t, 1, resp.RowCount)
	assert.Equal(t, "32/32", resp.Rows[0].Status)
}

func TestHub_ReusesViews(t *testing.T) {
	env := newLedgerEnv(t)
	ctx := context.Background()

	v1, err := env.hub.View(ctx, "savings")
	require.NoError(t, err)
	v2, err := env.hub.View(ctx, "savings")
	require.NoError(t, err)
	assert.Same(t, v1, v2)
	assert.Equal(t, 1, env.store.txLoads)

	env.hub.Drop("savings")
	select {
	case <-v1.Done():
	case <-time.After(time.Second):
		t.Fatal("dropped view not closed")
	}
	_, ok := env.hub.Lookup("savings")
	assert.False(t, ok)
}

// fakeEvents hands the subscribed handler to the test.
type fakeEvents struct {
	handlers chan natspkg.Handler
}

func (f *fakeEvents) Subscribe(ctx context.Context, filter string, h natspkg.Handler) error {
	f.handlers <- h
	<-ctx.Done()
	return nil
}

func TestHub_RoutesEvents(t *testing.T) {
	env := newLedgerEnv(t)
	events := &fakeEvents{handlers: make(chan natspkg.Handler, 1)}
	env.hub.events = events

	_, err := env.hub.View(context.Background(), "savings")
	require.NoError(t, err)
	env.ledger(t, "")

	var h natspkg.Handler
	select {
	case h = <-events.handlers:
	case <-time.After(time.Second):
		t.Fatal("view did not subscribe")
	}

	ctx := context.Background()
	env.store.setTransactions("savings", sampleFeed()[:1])
	h.OnLedgerUpdated(ctx, &natspkg.LedgerUpdatedEvent{WalletID: "savings", Written: 0})
	assert.Equal(t, 2, env.ledger(t, "").RowCount)

	// A note saved by another instance arrives through the event only.
	require.NoError(t, env.notes.SaveAnnotation(ctx, "savings", "sent", clockAddress, "Clock"))
	h.OnAnnotationSaved(ctx, &natspkg.AnnotationSavedEvent{
		WalletID: "savings",
		TxID:     "sent",
		Address:  clockAddress,
		Note:     "Clock",
	})
	require.Eventually(t, func() bool {
		return env.ledger(t, "").Rows[1].Label == "Clock"
	}, 2*time.Second, 10*time.Millisecond)
}

func TestStreamLedger(t *testing.T) {
	env := newLedgerEnv(t)
	ts := httptest.NewServer(env.handler)
	defer ts.Close()

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, ts.URL+"/api/v1/wallets/savings/ledger/stream", nil)
	require.NoError(t, err)
	resp, err := http.DefaultClient.Do(req)
	require.NoError(t, err)
	defer resp.Body.Close()

	require.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Equal(t, "text/event-stream", resp.Header.Get("Content-Type"))

	lines := make(chan string, 64)
	go func() {
		defer close(lines)
		sc := bufio.NewScanner(resp.Body)
		for sc.Scan() {
			lines <- sc.Text()
		}
	}()

	waitFor := func(prefix string) string {
		t.Helper()
		deadline := time.After(3 * time.Second)
		for {
			select {
			case line, ok := <-lines:
				if !ok {
					t.Fatalf("stream closed before %q", prefix)
				}
				if strings.HasPrefix(line, prefix) {
					return line
				}
			case <-deadline:
				t.Fatalf("timed out waiting for %q", prefix)
			}
		}
	}

	waitFor("event: connected")
	data := waitFor("data: ")
	assert.Contains(t, data, `"row_count":3`)

	rec := env.do(t, http.MethodPut, "/api/v1/wallets/savings/ledger/filter", `{"direction":"sent"}`)
	require.Equal(t, http.StatusOK, rec.Code)

	waitFor("event: rows")
	data = waitFor("data: ")
	assert.Contains(t, data, `"row_count":2`)
}
