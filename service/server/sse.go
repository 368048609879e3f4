package server

import (
	"encoding/json"
	"fmt"
	"log/slog"
	"net/http"
	"time"

	"github.com/brojonat/txledger/service/metrics"
	"github.com/brojonat/txledger/service/viewmodel"
)

// keepaliveInterval spaces comment lines that keep idle streams open.
const keepaliveInterval = 10 * time.Second

// streamBuffer is the number of changes queued per client before dropping.
const streamBuffer = 64

// handleStreamLedger streams the wallet view's changes as Server-Sent Events.
// Each event is named after the change kind (rows, annotation, confirmation).
// GET /api/v1/wallets/{wallet}/ledger/stream
func handleStreamLedger(hub *Hub, m *metrics.Metrics, logger *slog.Logger) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		view, ok := openView(w, r, hub, logger)
		if !ok {
			return
		}

		changes := make(chan viewmodel.Change, streamBuffer)
		unsubscribe, err := view.Subscribe(r.Context(), changes)
		if err != nil {
			writeError(w, "request cancelled", http.StatusServiceUnavailable)
			return
		}
		defer unsubscribe()

		rc := http.NewResponseController(w)
		// Streams outlive the server's write timeout.
		if err := rc.SetWriteDeadline(time.Time{}); err != nil {
			logger.DebugContext(r.Context(), "cannot clear write deadline", "error", err)
		}

		w.Header().Set("Content-Type", "text/event-stream")
		w.Header().Set("Cache-Control", "no-cache")
		w.Header().Set("Connection", "keep-alive")
		w.WriteHeader(http.StatusOK)

		if m != nil {
			m.RecordSSEConnectionChange(view.WalletID, 1)
			defer m.RecordSSEConnectionChange(view.WalletID, -1)
		}

		logger.DebugContext(r.Context(), "SSE client connected",
			"wallet_id", view.WalletID,
			"remote_addr", r.RemoteAddr,
		)

		var rowCount int
		if err := view.Do(r.Context(), func(vm *viewmodel.ViewModel) { rowCount = vm.RowCount() }); err != nil {
			return
		}
		fmt.Fprintf(w, "event: connected\ndata: {\"wallet_id\":%q,\"row_count\":%d}\n\n", view.WalletID, rowCount)
		if err := rc.Flush(); err != nil {
			logger.WarnContext(r.Context(), "streaming unsupported", "error", err)
			return
		}

		keepalive := time.NewTicker(keepaliveInterval)
		defer keepalive.Stop()

		for {
			select {
			case <-keepalive.C:
				fmt.Fprintf(w, ": keepalive\n\n")
				if err := rc.Flush(); err != nil {
					return
				}

			case c := <-changes:
				data, err := json.Marshal(c)
				if err != nil {
					logger.WarnContext(r.Context(), "failed to marshal change", "error", err)
					continue
				}
				fmt.Fprintf(w, "event: %s\ndata: %s\n\n", c.Kind, data)
				if err := rc.Flush(); err != nil {
					return
				}
				if m != nil {
					m.RecordSSEEventSent(view.WalletID, string(c.Kind))
				}

			case <-view.Done():
				return

			case <-r.Context().Done():
				logger.DebugContext(r.Context(), "SSE client disconnected",
					"wallet_id", view.WalletID,
					"remote_addr", r.RemoteAddr,
				)
				return
			}
		}
	})
}
