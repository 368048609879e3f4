package server

import (
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"regexp"
	"strconv"
	"strings"
	"time"
	"unicode"

	"github.com/andres-erbsen/clock"
	"github.com/brojonat/txledger/service/annotation"
	"github.com/brojonat/txledger/service/config"
	"github.com/brojonat/txledger/service/db"
	"github.com/brojonat/txledger/service/ledger"
	"github.com/brojonat/txledger/service/temporal"
	"github.com/brojonat/txledger/service/viewmodel"
	"github.com/dustin/go-humanize"
	solanago "github.com/gagliardetto/solana-go"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
)

const (
	maxRequestBodySize = 1 << 20 // 1MB
	maxAddressLength   = 100     // Solana addresses are 44 chars, give buffer
	maxWalletAddresses = 256
	maxSyncInterval    = 24 * time.Hour
	defaultPageLimit   = 50
	maxPageLimit       = 500
)

var (
	// Valid Solana address characters: base58 (no 0, O, I, l)
	validAddressRegex = regexp.MustCompile(`^[1-9A-HJ-NP-Za-km-z]+$`)

	// Wallet ids end up in NATS subjects and schedule ids.
	validWalletIDRegex = regexp.MustCompile(`^[A-Za-z0-9_-]{1,64}$`)
)

// pgUniqueViolation is the SQLSTATE for duplicate keys.
const pgUniqueViolation = "23505"

// handleRegisterWallet returns a handler that registers a wallet and creates
// its sync schedule.
// POST /api/v1/wallets
func handleRegisterWallet(store Store, scheduler temporal.Scheduler, cfg *config.Config, logger *slog.Logger) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		var req struct {
			ID           string   `json:"id"`
			Network      string   `json:"network"`
			Addresses    []string `json:"addresses"`
			SyncInterval string   `json:"sync_interval"`
		}
		if !decodeBody(w, r, &req, logger) {
			return
		}

		if err := validateWalletID(req.ID); err != nil {
			writeError(w, err.Error(), http.StatusBadRequest)
			return
		}
		if req.Network == "" {
			req.Network = config.NetworkMainnet
		}
		if err := validateNetwork(req.Network); err != nil {
			writeError(w, err.Error(), http.StatusBadRequest)
			return
		}
		if err := validateAddresses(req.Addresses); err != nil {
			logger.Debug("invalid addresses", "wallet_id", req.ID, "error", err)
			writeError(w, err.Error(), http.StatusBadRequest)
			return
		}

		interval := cfg.DefaultSyncInterval
		if req.SyncInterval != "" {
			d, err := time.ParseDuration(req.SyncInterval)
			if err != nil {
				writeError(w, "invalid sync_interval: must be a valid duration (e.g. '30s', '1m')", http.StatusBadRequest)
				return
			}
			interval = d
		}
		if err := validateSyncInterval(interval, cfg.MinSyncInterval); err != nil {
			writeError(w, err.Error(), http.StatusBadRequest)
			return
		}

		wallet, err := store.CreateWallet(r.Context(), db.CreateWalletParams{
			ID:           req.ID,
			Network:      req.Network,
			Addresses:    req.Addresses,
			SyncInterval: interval,
			Status:       db.WalletStatusActive,
		})
		if err != nil {
			var pgErr *pgconn.PgError
			if errors.As(err, &pgErr) && pgErr.Code == pgUniqueViolation {
				writeError(w, fmt.Sprintf("wallet %q already exists", req.ID), http.StatusConflict)
				return
			}
			logger.Error("failed to create wallet", "wallet_id", req.ID, "error", err)
			writeError(w, "failed to register wallet", http.StatusInternalServerError)
			return
		}

		if err := scheduler.UpsertWalletSchedule(r.Context(), wallet.ID, interval); err != nil {
			logger.Error("failed to create schedule", "wallet_id", wallet.ID, "error", err)

			// Rollback: delete the wallet we just created
			if delErr := store.DeleteWallet(r.Context(), wallet.ID); delErr != nil {
				logger.Error("failed to rollback wallet creation", "wallet_id", wallet.ID, "error", delErr)
			}
			writeError(w, "failed to create schedule for wallet", http.StatusInternalServerError)
			return
		}

		logger.Info("wallet registered with schedule",
			"wallet_id", wallet.ID,
			"network", wallet.Network,
			"addresses", len(wallet.Addresses),
			"sync_interval", interval,
		)
		writeJSON(w, walletToResponse(wallet, time.Now()), http.StatusCreated)
	})
}

// handleGetWallet returns a handler that retrieves one wallet.
// GET /api/v1/wallets/{wallet}
func handleGetWallet(store Store, logger *slog.Logger) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		walletID := r.PathValue("wallet")
		if err := validateWalletID(walletID); err != nil {
			writeError(w, err.Error(), http.StatusBadRequest)
			return
		}

		wallet, err := store.GetWallet(r.Context(), walletID)
		if errors.Is(err, pgx.ErrNoRows) {
			writeError(w, "wallet not found", http.StatusNotFound)
			return
		}
		if err != nil {
			logger.Error("failed to get wallet", "wallet_id", walletID, "error", err)
			writeError(w, "internal server error", http.StatusInternalServerError)
			return
		}
		writeJSON(w, walletToResponse(wallet, time.Now()), http.StatusOK)
	})
}

// handleListWallets returns a handler that lists all registered wallets.
// GET /api/v1/wallets
func handleListWallets(store Store, logger *slog.Logger) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		wallets, err := store.ListWallets(r.Context())
		if err != nil {
			logger.Error("failed to list wallets", "error", err)
			writeError(w, "internal server error", http.StatusInternalServerError)
			return
		}

		now := time.Now()
		resp := make([]walletResponse, len(wallets))
		for i, wallet := range wallets {
			resp[i] = walletToResponse(wallet, now)
		}
		writeJSON(w, map[string]any{
			"wallets": resp,
			"count":   len(resp),
		}, http.StatusOK)
	})
}

// handleUnregisterWallet returns a handler that deletes a wallet's schedule,
// the wallet itself and its open view.
// DELETE /api/v1/wallets/{wallet}
func handleUnregisterWallet(store Store, scheduler temporal.Scheduler, hub *Hub, logger *slog.Logger) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		walletID := r.PathValue("wallet")
		if err := validateWalletID(walletID); err != nil {
			writeError(w, err.Error(), http.StatusBadRequest)
			return
		}

		exists, err := store.WalletExists(r.Context(), walletID)
		if err != nil {
			logger.Error("failed to check wallet existence", "wallet_id", walletID, "error", err)
			writeError(w, "internal server error", http.StatusInternalServerError)
			return
		}
		if !exists {
			writeError(w, "wallet not found", http.StatusNotFound)
			return
		}

		// Delete the schedule first; if this fails the wallet stays registered.
		if err := scheduler.DeleteWalletSchedule(r.Context(), walletID); err != nil {
			logger.Error("failed to delete schedule", "wallet_id", walletID, "error", err)
			writeError(w, "failed to delete schedule for wallet", http.StatusInternalServerError)
			return
		}

		if err := store.DeleteWallet(r.Context(), walletID); err != nil {
			logger.Error("failed to delete wallet", "wallet_id", walletID, "error", err)
			writeError(w, "failed to unregister wallet", http.StatusInternalServerError)
			return
		}
		hub.Drop(walletID)

		logger.Info("wallet unregistered", "wallet_id", walletID)
		w.WriteHeader(http.StatusNoContent)
	})
}

// handleTriggerSync returns a handler that runs a wallet's sync now.
// POST /api/v1/wallets/{wallet}/sync
func handleTriggerSync(store Store, scheduler temporal.Scheduler, logger *slog.Logger) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		walletID := r.PathValue("wallet")
		if err := validateWalletID(walletID); err != nil {
			writeError(w, err.Error(), http.StatusBadRequest)
			return
		}

		exists, err := store.WalletExists(r.Context(), walletID)
		if err != nil {
			logger.Error("failed to check wallet existence", "wallet_id", walletID, "error", err)
			writeError(w, "internal server error", http.StatusInternalServerError)
			return
		}
		if !exists {
			writeError(w, "wallet not found", http.StatusNotFound)
			return
		}

		if err := scheduler.TriggerWalletSync(r.Context(), walletID); err != nil {
			logger.Error("failed to trigger sync", "wallet_id", walletID, "error", err)
			writeError(w, "failed to trigger sync", http.StatusInternalServerError)
			return
		}
		writeJSON(w, map[string]string{"wallet_id": walletID, "status": "triggered"}, http.StatusAccepted)
	})
}

// handleGetLedger returns a handler that renders a page of the wallet's
// ledger. When offset or limit are given they become the view's window, so
// the returned rows are live; otherwise the current window is rendered.
// GET /api/v1/wallets/{wallet}/ledger?offset=N&limit=N
func handleGetLedger(hub *Hub, logger *slog.Logger) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		view, ok := openView(w, r, hub, logger)
		if !ok {
			return
		}

		query := r.URL.Query()
		setWindow := query.Has("offset") || query.Has("limit")
		offset, err := parseIntParam(query.Get("offset"), 0, 0, -1)
		if err != nil {
			writeError(w, "invalid offset parameter: "+err.Error(), http.StatusBadRequest)
			return
		}
		limit, err := parseIntParam(query.Get("limit"), defaultPageLimit, 1, maxPageLimit)
		if err != nil {
			writeError(w, "invalid limit parameter: "+err.Error(), http.StatusBadRequest)
			return
		}

		var resp ledgerResponse
		err = view.Do(r.Context(), func(vm *viewmodel.ViewModel) {
			if setWindow {
				vm.SetWindow(offset, limit)
			} else if _, l := vm.Window(); l == 0 {
				vm.SetWindow(0, defaultPageLimit)
			}
			resp = renderLedger(view.WalletID, vm, hub.cfg.Clock, hub.cfg.Location)
		})
		if err != nil {
			writeError(w, "request cancelled", http.StatusServiceUnavailable)
			return
		}
		writeJSON(w, resp, http.StatusOK)
	})
}

// handleSetFilter returns a handler that replaces the ledger filter and
// renders the re-filtered ledger.
// PUT /api/v1/wallets/{wallet}/ledger/filter
func handleSetFilter(hub *Hub, logger *slog.Logger) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		var req struct {
			Direction string `json:"direction"`
			Text      string `json:"text"`
		}
		if !decodeBody(w, r, &req, logger) {
			return
		}

		direction, err := ledger.ParseDirection(req.Direction)
		if err != nil {
			writeError(w, err.Error(), http.StatusBadRequest)
			return
		}

		view, ok := openView(w, r, hub, logger)
		if !ok {
			return
		}

		var filterErr error
		if err := view.Do(r.Context(), func(vm *viewmodel.ViewModel) {
			filterErr = vm.SetFilter(direction, req.Text)
		}); err != nil {
			writeError(w, "request cancelled", http.StatusServiceUnavailable)
			return
		}
		if filterErr != nil {
			writeError(w, filterErr.Error(), http.StatusBadRequest)
			return
		}

		// The re-filter runs on the next tick; this call queues behind it.
		var resp ledgerResponse
		if err := view.Do(r.Context(), func(vm *viewmodel.ViewModel) {
			resp = renderLedger(view.WalletID, vm, hub.cfg.Clock, hub.cfg.Location)
		}); err != nil {
			writeError(w, "request cancelled", http.StatusServiceUnavailable)
			return
		}
		writeJSON(w, resp, http.StatusOK)
	})
}

// handleSetWindow returns a handler that moves the live window.
// PUT /api/v1/wallets/{wallet}/ledger/window
func handleSetWindow(hub *Hub, logger *slog.Logger) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		var req struct {
			Offset int `json:"offset"`
			Limit  int `json:"limit"`
		}
		if !decodeBody(w, r, &req, logger) {
			return
		}
		if req.Offset < 0 {
			writeError(w, "offset cannot be negative", http.StatusBadRequest)
			return
		}
		if req.Limit < 0 || req.Limit > maxPageLimit {
			writeError(w, fmt.Sprintf("limit must be between 0 and %d", maxPageLimit), http.StatusBadRequest)
			return
		}

		view, ok := openView(w, r, hub, logger)
		if !ok {
			return
		}

		var resp ledgerResponse
		if err := view.Do(r.Context(), func(vm *viewmodel.ViewModel) {
			vm.SetWindow(req.Offset, req.Limit)
			resp = renderLedger(view.WalletID, vm, hub.cfg.Clock, hub.cfg.Location)
		}); err != nil {
			writeError(w, "request cancelled", http.StatusServiceUnavailable)
			return
		}
		writeJSON(w, resp, http.StatusOK)
	})
}

// handleSaveAnnotation returns a handler that stores the note for one row.
// An empty note clears it.
// PUT /api/v1/wallets/{wallet}/annotations/{txid}/{address}
func handleSaveAnnotation(store Store, hub *Hub, annotations *annotation.Service, logger *slog.Logger) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		walletID := r.PathValue("wallet")
		txID := r.PathValue("txid")
		address := r.PathValue("address")

		if err := validateWalletID(walletID); err != nil {
			writeError(w, err.Error(), http.StatusBadRequest)
			return
		}
		if txID == "" || len(txID) > 128 || !validAddressRegex.MatchString(txID) {
			writeError(w, "invalid transaction id", http.StatusBadRequest)
			return
		}
		if address != ledger.InternalAddress {
			if err := validateAddress(address); err != nil {
				writeError(w, err.Error(), http.StatusBadRequest)
				return
			}
		}

		var req struct {
			Note string `json:"note"`
		}
		if !decodeBody(w, r, &req, logger) {
			return
		}

		exists, err := store.WalletExists(r.Context(), walletID)
		if err != nil {
			logger.Error("failed to check wallet existence", "wallet_id", walletID, "error", err)
			writeError(w, "internal server error", http.StatusInternalServerError)
			return
		}
		if !exists {
			writeError(w, "wallet not found", http.StatusNotFound)
			return
		}
		held, err := store.TransactionExists(r.Context(), walletID, txID)
		if err != nil {
			logger.Error("failed to check transaction", "wallet_id", walletID, "tx_id", txID, "error", err)
			writeError(w, "internal server error", http.StatusInternalServerError)
			return
		}
		if !held {
			writeError(w, "transaction not found", http.StatusNotFound)
			return
		}

		if err := annotations.Save(r.Context(), walletID, txID, address, req.Note); err != nil {
			if errors.Is(err, annotation.ErrNoteTooLong) {
				writeError(w, err.Error(), http.StatusBadRequest)
				return
			}
			logger.Error("failed to save annotation", "wallet_id", walletID, "tx_id", txID, "error", err)
			writeError(w, "failed to save annotation", http.StatusInternalServerError)
			return
		}

		// Deliver locally right away; the NATS event covers other instances.
		if view, ok := hub.Lookup(walletID); ok {
			view.NotifyAnnotation(txID, address)
		}

		writeJSON(w, map[string]string{
			"wallet_id": walletID,
			"tx_id":     txID,
			"address":   address,
			"note":      req.Note,
		}, http.StatusOK)
	})
}

// openView validates the wallet path value and returns its view, writing
// the error response itself when it fails.
func openView(w http.ResponseWriter, r *http.Request, hub *Hub, logger *slog.Logger) (*WalletView, bool) {
	walletID := r.PathValue("wallet")
	if err := validateWalletID(walletID); err != nil {
		writeError(w, err.Error(), http.StatusBadRequest)
		return nil, false
	}

	view, err := hub.View(r.Context(), walletID)
	if errors.Is(err, pgx.ErrNoRows) {
		writeError(w, "wallet not found", http.StatusNotFound)
		return nil, false
	}
	if err != nil {
		logger.Error("failed to open wallet view", "wallet_id", walletID, "error", err)
		writeError(w, "failed to load ledger", http.StatusInternalServerError)
		return nil, false
	}
	return view, true
}

// ledgerResponse is one rendered page of a wallet ledger.
type ledgerResponse struct {
	WalletID   string         `json:"wallet_id"`
	RowCount   int            `json:"row_count"`
	EmptyState string         `json:"empty_state,omitempty"`
	Offset     int            `json:"offset"`
	Limit      int            `json:"limit"`
	Filter     filterResponse `json:"filter"`
	Rows       []rowResponse  `json:"rows"`
}

type filterResponse struct {
	Direction string `json:"direction"`
	Text      string `json:"text"`
}

// rowResponse is one rendered ledger row. Live fields are only set for rows
// inside the window.
type rowResponse struct {
	Index         int        `json:"index"`
	TxID          string     `json:"tx_id"`
	Address       string     `json:"address"`
	Direction     string     `json:"direction"`
	BalanceChange string     `json:"balance_change"`
	Batched       bool       `json:"batched"`
	Time          string     `json:"time"`
	BlockTime     *time.Time `json:"block_time,omitempty"`
	Slot          uint64     `json:"slot"`
	Fees          string     `json:"fees"`

	Live         bool                         `json:"live"`
	Label        string                       `json:"label"`
	Note         string                       `json:"note,omitempty"`
	Confirmation *viewmodel.ConfirmationState `json:"confirmation,omitempty"`
	Status       string                       `json:"status,omitempty"`

	DaySummary *daySummaryResponse `json:"day_summary,omitempty"`
}

type daySummaryResponse struct {
	Date string `json:"date"`
	Fee  string `json:"fee"`
}

// renderLedger renders the view's window. It must run on the view's loop.
func renderLedger(walletID string, vm *viewmodel.ViewModel, clk clock.Clock, loc *time.Location) ledgerResponse {
	offset, limit := vm.Window()
	f := vm.Filter()
	resp := ledgerResponse{
		WalletID:   walletID,
		RowCount:   vm.RowCount(),
		EmptyState: vm.EmptyState(),
		Offset:     offset,
		Limit:      limit,
		Filter:     filterResponse{Direction: string(f.Direction), Text: f.Text},
		Rows:       []rowResponse{},
	}

	now := clk.Now()
	end := min(offset+limit, vm.RowCount())
	for i := offset; i < end; i++ {
		row, _ := vm.RowAt(i)
		rr := rowResponse{
			Index:         i,
			TxID:          row.Tx.ID,
			Address:       row.Address,
			Direction:     string(ledger.DirectionReceived),
			BalanceChange: row.BalanceChange.String(),
			Batched:       row.Batched(),
			Time:          row.TimeLabel(now, loc),
			BlockTime:     row.Tx.BlockTime,
			Slot:          row.Tx.Slot,
			Fees:          row.Tx.Fees.String(),
			Label:         row.Address,
		}
		if row.Sent() {
			rr.Direction = string(ledger.DirectionSent)
		}
		if lr, ok := vm.Live(row.Key()); ok {
			st := lr.Confirmation()
			rr.Live = true
			rr.Label = lr.Label()
			rr.Note, _ = lr.Annotation()
			rr.Confirmation = &st
			rr.Status = st.Label()
		}
		if s, ok := vm.DailySummaryAt(i); ok {
			rr.DaySummary = &daySummaryResponse{Date: s.Date, Fee: s.Fee.String()}
		}
		resp.Rows = append(resp.Rows, rr)
	}
	return resp
}

// walletResponse is the JSON response format for a wallet.
type walletResponse struct {
	ID           string     `json:"id"`
	Network      string     `json:"network"`
	Addresses    []string   `json:"addresses"`
	SyncInterval string     `json:"sync_interval"`
	LastSyncTime *time.Time `json:"last_sync_time,omitempty"`
	LastSyncAgo  string     `json:"last_sync_ago,omitempty"`
	Status       string     `json:"status"`
	CreatedAt    time.Time  `json:"created_at"`
	UpdatedAt    time.Time  `json:"updated_at"`
}

// walletToResponse converts a stored Wallet to a response format.
func walletToResponse(w *db.Wallet, now time.Time) walletResponse {
	resp := walletResponse{
		ID:           w.ID,
		Network:      w.Network,
		Addresses:    w.Addresses,
		SyncInterval: w.SyncInterval.String(),
		LastSyncTime: w.LastSyncTime,
		Status:       w.Status,
		CreatedAt:    w.CreatedAt,
		UpdatedAt:    w.UpdatedAt,
	}
	if resp.Addresses == nil {
		resp.Addresses = []string{}
	}
	if w.LastSyncTime != nil {
		resp.LastSyncAgo = humanize.RelTime(*w.LastSyncTime, now, "ago", "from now")
	}
	return resp
}

// decodeBody decodes a size-limited JSON body into dst, writing a 400 when
// it cannot.
func decodeBody(w http.ResponseWriter, r *http.Request, dst any, logger *slog.Logger) bool {
	r.Body = http.MaxBytesReader(w, r.Body, maxRequestBodySize)
	if err := json.NewDecoder(r.Body).Decode(dst); err != nil {
		logger.Debug("failed to decode request body", "path", r.URL.Path, "error", err)
		var maxErr *http.MaxBytesError
		if errors.As(err, &maxErr) {
			writeError(w, "request body too large: maximum size is 1MB", http.StatusBadRequest)
			return false
		}
		writeError(w, "invalid request body: must be valid JSON", http.StatusBadRequest)
		return false
	}
	return true
}

// parseIntParam parses an optional integer query parameter. hi < 0 means
// unbounded.
func parseIntParam(s string, def, lo, hi int) (int, error) {
	if s == "" {
		return def, nil
	}
	n, err := strconv.Atoi(s)
	if err != nil {
		return 0, errors.New("must be an integer")
	}
	if n < lo {
		return 0, fmt.Errorf("must be at least %d", lo)
	}
	if hi >= 0 && n > hi {
		return 0, fmt.Errorf("cannot exceed %d", hi)
	}
	return n, nil
}

// writeJSON writes a JSON response.
func writeJSON(w http.ResponseWriter, data any, statusCode int) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(statusCode)
	json.NewEncoder(w).Encode(data)
}

// writeError writes a JSON error response.
func writeError(w http.ResponseWriter, message string, statusCode int) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(statusCode)
	json.NewEncoder(w).Encode(map[string]string{
		"error": message,
	})
}

// validateWalletID validates a wallet id.
func validateWalletID(id string) error {
	if id == "" {
		return errorf("wallet id is required")
	}
	if !validWalletIDRegex.MatchString(id) {
		return errorf("invalid wallet id: use 1-64 letters, digits, '-' or '_'")
	}
	return nil
}

// validateAddress validates a wallet address for security and format.
func validateAddress(address string) error {
	if address == "" {
		return errorf("address is required")
	}

	if len(address) > maxAddressLength {
		return errorf("address too long: maximum length is %d characters", maxAddressLength)
	}

	for _, r := range address {
		if r == 0 || unicode.IsControl(r) {
			return errorf("invalid characters in address: control characters not allowed")
		}
	}

	if !validAddressRegex.MatchString(address) {
		return errorf("invalid address format: must contain only valid base58 characters")
	}

	if _, err := solanago.PublicKeyFromBase58(address); err != nil {
		return errorf("invalid address %s: %v", address, err)
	}

	return nil
}

// validateAddresses validates the owned address list of a wallet.
func validateAddresses(addresses []string) error {
	if len(addresses) == 0 {
		return errorf("at least one address is required")
	}
	if len(addresses) > maxWalletAddresses {
		return errorf("too many addresses: maximum is %d", maxWalletAddresses)
	}
	for _, a := range addresses {
		if err := validateAddress(a); err != nil {
			return err
		}
	}
	return nil
}

// validateNetwork validates a network parameter.
func validateNetwork(network string) error {
	if network == "" {
		return errorf("network is required")
	}

	if network != config.NetworkMainnet && network != config.NetworkDevnet {
		return errorf("invalid network: must be '%s' or '%s'", config.NetworkMainnet, config.NetworkDevnet)
	}

	return nil
}

// validateSyncInterval validates a sync interval for reasonable bounds.
func validateSyncInterval(interval, minInterval time.Duration) error {
	if interval <= 0 {
		return errorf("sync_interval must be positive")
	}

	if interval < minInterval {
		return errorf("sync_interval must be at least %v", minInterval)
	}

	if interval > maxSyncInterval {
		return errorf("sync_interval cannot exceed %v", maxSyncInterval)
	}

	return nil
}

// errorf is a helper to format error strings.
func errorf(format string, args ...any) error {
	return &validationError{msg: strings.TrimSpace(fmt.Sprintf(format, args...))}
}

type validationError struct {
	msg string
}

func (e *validationError) Error() string {
	return e.msg
}
