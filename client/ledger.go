package client

import (
	"bufio"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"github.com/shopspring/decimal"
)

// LedgerPage is one rendered window of a wallet ledger.
type LedgerPage struct {
	WalletID   string `json:"wallet_id"`
	RowCount   int    `json:"row_count"`
	EmptyState string `json:"empty_state,omitempty"`
	Offset     int    `json:"offset"`
	Limit      int    `json:"limit"`
	Filter     Filter `json:"filter"`
	Rows       []Row  `json:"rows"`
}

// Filter is the active ledger filter.
type Filter struct {
	Direction string `json:"direction"`
	Text      string `json:"text"`
}

// Row is one ledger row. Label, Note and Confirmation are only filled for
// live rows.
type Row struct {
	Index         int             `json:"index"`
	TxID          string          `json:"tx_id"`
	Address       string          `json:"address"`
	Direction     string          `json:"direction"`
	BalanceChange decimal.Decimal `json:"balance_change"`
	Batched       bool            `json:"batched"`
	Time          string          `json:"time"`
	BlockTime     *time.Time      `json:"block_time,omitempty"`
	Slot          uint64          `json:"slot"`
	Fees          decimal.Decimal `json:"fees"`

	Live         bool          `json:"live"`
	Label        string        `json:"label"`
	Note         string        `json:"note,omitempty"`
	Confirmation *Confirmation `json:"confirmation,omitempty"`
	Status       string        `json:"status,omitempty"`

	DaySummary *DaySummary `json:"day_summary,omitempty"`
}

// Confirmation is the confirmation state of a live row.
type Confirmation struct {
	Regime        string        `json:"regime"` // unpublished, pending, confirmed
	Progress      float64       `json:"progress"`
	Confirmations int           `json:"confirmations"`
	Recommended   int           `json:"recommended"`
	Unpublished   bool          `json:"unpublished"`
	Transition    time.Duration `json:"transition"`
}

// DaySummary is the fee roll-up rendered above a row.
type DaySummary struct {
	Date string          `json:"date"`
	Fee  decimal.Decimal `json:"fee"`
}

// Ledger fetches a page of the wallet's ledger. A nil window renders the
// server's current window; otherwise the window is moved first.
func (c *Client) Ledger(ctx context.Context, walletID string, window *Window) (*LedgerPage, error) {
	path := walletPath(walletID) + "/ledger"
	if window != nil {
		q := url.Values{}
		q.Set("offset", strconv.Itoa(window.Offset))
		q.Set("limit", strconv.Itoa(window.Limit))
		path += "?" + q.Encode()
	}

	var page LedgerPage
	if err := c.doJSON(ctx, http.MethodGet, path, nil, http.StatusOK, &page); err != nil {
		return nil, err
	}
	return &page, nil
}

// Window selects the live rows of a ledger.
type Window struct {
	Offset int `json:"offset"`
	Limit  int `json:"limit"`
}

// SetFilter replaces the wallet ledger's filter and returns the re-filtered
// page. direction is "all", "sent" or "received"; text is a
// case-insensitive regular expression.
func (c *Client) SetFilter(ctx context.Context, walletID, direction, text string) (*LedgerPage, error) {
	var page LedgerPage
	body := Filter{Direction: direction, Text: text}
	if err := c.doJSON(ctx, http.MethodPut, walletPath(walletID)+"/ledger/filter", body, http.StatusOK, &page); err != nil {
		return nil, err
	}
	return &page, nil
}

// SetWindow moves the live window and returns the rendered page.
func (c *Client) SetWindow(ctx context.Context, walletID string, window Window) (*LedgerPage, error) {
	var page LedgerPage
	if err := c.doJSON(ctx, http.MethodPut, walletPath(walletID)+"/ledger/window", window, http.StatusOK, &page); err != nil {
		return nil, err
	}
	return &page, nil
}

// Annotate stores a note for one ledger row. An empty note clears it.
func (c *Client) Annotate(ctx context.Context, walletID, txID, address, note string) error {
	path := fmt.Sprintf("%s/annotations/%s/%s", walletPath(walletID), url.PathEscape(txID), url.PathEscape(address))
	return c.doJSON(ctx, http.MethodPut, path, map[string]string{"note": note}, http.StatusOK, nil)
}

// Event is one Server-Sent Event of a ledger stream.
type Event struct {
	Name string          `json:"event"`
	Data json.RawMessage `json:"data"`
}

// Change decodes the data of a rows, annotation or confirmation event.
func (e *Event) Change() (*Change, error) {
	var ch Change
	if err := json.Unmarshal(e.Data, &ch); err != nil {
		return nil, fmt.Errorf("failed to decode %s event: %w", e.Name, err)
	}
	return &ch, nil
}

// Change is a ledger view change.
type Change struct {
	Kind string `json:"kind"`
	Key  struct {
		TxID    string `json:"tx_id"`
		Address string `json:"address"`
	} `json:"key"`
	RowCount     int           `json:"row_count,omitempty"`
	Confirmation *Confirmation `json:"confirmation,omitempty"`
}

// ErrStopStream ends Stream without error when returned by the callback.
var ErrStopStream = errors.New("stop stream")

// Stream follows the wallet's ledger changes and calls fn for every event,
// including the initial "connected" event. It returns when ctx ends, the
// server closes the stream, or fn returns an error (ErrStopStream yields nil).
func (c *Client) Stream(ctx context.Context, walletID string, fn func(*Event) error) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.baseURL+walletPath(walletID)+"/ledger/stream", nil)
	if err != nil {
		return fmt.Errorf("failed to create request: %w", err)
	}
	req.Header.Set("Accept", "text/event-stream")

	// Streams are long lived; the client timeout must not apply.
	hc := *c.httpClient
	hc.Timeout = 0
	resp, err := hc.Do(req)
	if err != nil {
		return fmt.Errorf("request failed: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return c.parseErrorResponse(resp)
	}

	c.logger.Debug("ledger stream connected", "wallet_id", walletID)

	scanner := bufio.NewScanner(resp.Body)
	var event Event
	for scanner.Scan() {
		line := scanner.Text()
		switch {
		case line == "":
			if event.Name == "" && event.Data == nil {
				continue
			}
			if err := fn(&event); err != nil {
				if errors.Is(err, ErrStopStream) {
					return nil
				}
				return err
			}
			event = Event{}
		case strings.HasPrefix(line, ":"):
			// keepalive comment
		case strings.HasPrefix(line, "event:"):
			event.Name = strings.TrimSpace(strings.TrimPrefix(line, "event:"))
		case strings.HasPrefix(line, "data:"):
			event.Data = json.RawMessage(strings.TrimSpace(strings.TrimPrefix(line, "data:")))
		}
	}

	if err := scanner.Err(); err != nil {
		if ctx.Err() != nil {
			return ctx.Err()
		}
		return fmt.Errorf("stream read failed: %w", err)
	}
	return ctx.Err()
}

// Await blocks until an event of the wallet's stream satisfies match.
func (c *Client) Await(ctx context.Context, walletID string, match func(*Event) bool) (*Event, error) {
	var found *Event
	err := c.Stream(ctx, walletID, func(e *Event) error {
		if match(e) {
			ev := *e
			found = &ev
			return ErrStopStream
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	if found == nil {
		return nil, errors.New("stream closed before a matching event")
	}
	return found, nil
}
