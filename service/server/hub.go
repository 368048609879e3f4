package server

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/andres-erbsen/clock"
	"github.com/brojonat/txledger/service/annotation"
	"github.com/brojonat/txledger/service/db"
	"github.com/brojonat/txledger/service/ledger"
	"github.com/brojonat/txledger/service/metrics"
	natspkg "github.com/brojonat/txledger/service/nats"
	"github.com/brojonat/txledger/service/viewmodel"
)

// Store is the persistence the server needs. *db.Store satisfies it.
type Store interface {
	CreateWallet(ctx context.Context, params db.CreateWalletParams) (*db.Wallet, error)
	GetWallet(ctx context.Context, id string) (*db.Wallet, error)
	ListWallets(ctx context.Context) ([]*db.Wallet, error)
	DeleteWallet(ctx context.Context, id string) error
	WalletExists(ctx context.Context, id string) (bool, error)
	ListTransactions(ctx context.Context, walletID string, limit int) ([]*ledger.Transaction, error)
	TransactionExists(ctx context.Context, walletID, txID string) (bool, error)
}

// ErrHubClosed is returned by View after Close.
var ErrHubClosed = errors.New("hub closed")

// EventSource delivers ledger events. *natspkg.Subscriber satisfies it.
type EventSource interface {
	Subscribe(ctx context.Context, filter string, h natspkg.Handler) error
}

// HubConfig configures the views a Hub creates.
type HubConfig struct {
	Recommended int
	SettleDelay time.Duration
	Location    *time.Location
	Clock       clock.Clock
}

// Hub owns one live view per wallet. Views are created on first access and
// kept until the wallet is deleted or the hub is closed.
type Hub struct {
	store       Store
	annotations *annotation.Service
	events      EventSource
	cfg         HubConfig
	metrics     *metrics.Metrics
	logger      *slog.Logger

	ctx    context.Context
	cancel context.CancelFunc

	mu      sync.Mutex
	views   map[string]*WalletView
	loading map[string]*pendingView
	closed  bool
}

// pendingView is a view being loaded. done is closed once v or err is set.
type pendingView struct {
	done chan struct{}
	v    *WalletView
	err  error
}

// NewHub creates a hub. events and m may be nil; without events, views only
// change through this process.
func NewHub(store Store, annotations *annotation.Service, events EventSource, cfg HubConfig, m *metrics.Metrics, logger *slog.Logger) *Hub {
	if cfg.Clock == nil {
		cfg.Clock = clock.New()
	}
	if cfg.Location == nil {
		cfg.Location = time.Local
	}
	ctx, cancel := context.WithCancel(context.Background())
	return &Hub{
		store:       store,
		annotations: annotations,
		events:      events,
		cfg:         cfg,
		metrics:     m,
		logger:      logger.With("component", "hub"),
		ctx:         ctx,
		cancel:      cancel,
		views:       make(map[string]*WalletView),
		loading:     make(map[string]*pendingView),
	}
}

// WalletView is the live ledger of one wallet.
type WalletView struct {
	WalletID string

	vm     *viewmodel.ViewModel
	loop   *viewmodel.Loop
	hub    *Hub
	ctx    context.Context
	cancel context.CancelFunc

	reloadMu sync.Mutex
}

// View returns the wallet's view, creating and loading it on first use.
// A missing wallet returns an error wrapping pgx.ErrNoRows. Loading happens
// outside the hub lock; concurrent callers for the same wallet share one
// load.
func (h *Hub) View(ctx context.Context, walletID string) (*WalletView, error) {
	h.mu.Lock()
	if v, ok := h.views[walletID]; ok {
		h.mu.Unlock()
		return v, nil
	}
	if h.closed {
		h.mu.Unlock()
		return nil, ErrHubClosed
	}
	if p, ok := h.loading[walletID]; ok {
		h.mu.Unlock()
		select {
		case <-p.done:
		case <-ctx.Done():
			return nil, ctx.Err()
		}
		// The loading caller may have given up; that is not our failure.
		if errors.Is(p.err, context.Canceled) || errors.Is(p.err, context.DeadlineExceeded) {
			return h.View(ctx, walletID)
		}
		return p.v, p.err
	}
	p := &pendingView{done: make(chan struct{})}
	h.loading[walletID] = p
	h.mu.Unlock()

	v, err := h.open(ctx, walletID)

	h.mu.Lock()
	delete(h.loading, walletID)
	if err == nil && h.closed {
		v.cancel()
		v, err = nil, ErrHubClosed
	}
	if err == nil {
		h.views[walletID] = v
	}
	h.mu.Unlock()

	p.v, p.err = v, err
	close(p.done)
	return v, err
}

// open builds and loads a view. The caller registers it.
func (h *Hub) open(ctx context.Context, walletID string) (*WalletView, error) {
	wallet, err := h.store.GetWallet(ctx, walletID)
	if err != nil {
		return nil, err
	}

	viewCtx, cancel := context.WithCancel(h.ctx)
	loop := viewmodel.NewLoop()
	var annotations viewmodel.AnnotationStore
	if h.annotations != nil {
		annotations = h.annotations.ForWallet(walletID)
	}
	v := &WalletView{
		WalletID: walletID,
		loop:     loop,
		hub:      h,
		ctx:      viewCtx,
		cancel:   cancel,
		vm: viewmodel.New(loop, viewmodel.Options{
			Name:        walletID,
			Owned:       viewmodel.StaticAddresses(ledger.NewAddressSet(wallet.Addresses...)),
			Annotations: annotations,
			Recommended: h.cfg.Recommended,
			SettleDelay: h.cfg.SettleDelay,
			Location:    h.cfg.Location,
			Clock:       h.cfg.Clock,
			Metrics:     h.metrics,
			Logger:      h.logger,
		}),
	}
	v.vm.SetLoading(true)
	go loop.Run(viewCtx)

	if h.annotations != nil {
		if _, err := h.annotations.Warm(ctx, walletID); err != nil {
			h.logger.WarnContext(ctx, "failed to warm annotations", "wallet_id", walletID, "error", err)
		}
	}
	if err := v.Reload(ctx); err != nil {
		cancel()
		return nil, err
	}

	if h.events != nil {
		go h.follow(viewCtx, v)
	}

	h.logger.InfoContext(ctx, "wallet view opened",
		"wallet_id", walletID,
		"addresses", len(wallet.Addresses),
	)
	return v, nil
}

// follow routes the wallet's NATS events into its view until ctx ends.
func (h *Hub) follow(ctx context.Context, v *WalletView) {
	handler := natspkg.HandlerFuncs{
		LedgerUpdated: func(ctx context.Context, event *natspkg.LedgerUpdatedEvent) {
			if err := v.Reload(ctx); err != nil {
				h.logger.WarnContext(ctx, "failed to reload ledger",
					"wallet_id", v.WalletID,
					"error", err,
				)
			}
		},
		AnnotationSaved: func(ctx context.Context, event *natspkg.AnnotationSavedEvent) {
			if h.annotations != nil {
				h.annotations.Apply(v.WalletID, event.TxID, event.Address, event.Note)
			}
			v.NotifyAnnotation(event.TxID, event.Address)
		},
	}
	err := h.events.Subscribe(ctx, natspkg.WalletSubjects(v.WalletID), handler)
	if err != nil && ctx.Err() == nil {
		h.logger.Error("ledger event subscription ended",
			"wallet_id", v.WalletID,
			"error", err,
		)
	}
}

// Lookup returns an already open view.
func (h *Hub) Lookup(walletID string) (*WalletView, bool) {
	h.mu.Lock()
	defer h.mu.Unlock()
	v, ok := h.views[walletID]
	return v, ok
}

// Drop closes and forgets a wallet's view.
func (h *Hub) Drop(walletID string) {
	h.mu.Lock()
	v, ok := h.views[walletID]
	delete(h.views, walletID)
	h.mu.Unlock()

	if h.annotations != nil {
		h.annotations.Forget(walletID)
	}
	if ok {
		v.cancel()
		h.logger.Info("wallet view closed", "wallet_id", walletID)
	}
}

// Len returns the number of open views.
func (h *Hub) Len() int {
	h.mu.Lock()
	defer h.mu.Unlock()
	return len(h.views)
}

// Close stops every view.
func (h *Hub) Close() {
	h.cancel()
	h.mu.Lock()
	h.closed = true
	h.views = make(map[string]*WalletView)
	h.mu.Unlock()
}

// Reload reads the wallet's transactions from the store and feeds them to
// the view model. Concurrent reloads are serialized.
func (v *WalletView) Reload(ctx context.Context) error {
	v.reloadMu.Lock()
	defer v.reloadMu.Unlock()

	txs, err := v.hub.store.ListTransactions(ctx, v.WalletID, 0)
	if err != nil {
		return fmt.Errorf("failed to load transactions for %s: %w", v.WalletID, err)
	}

	var setErr error
	if err := v.Do(ctx, func(vm *viewmodel.ViewModel) {
		vm.SetLoading(false)
		setErr = vm.SetTransactions(txs)
	}); err != nil {
		return err
	}
	return setErr
}

// Do runs fn on the view's loop and waits for it. It gives up when ctx ends
// or the view is closed.
func (v *WalletView) Do(ctx context.Context, fn func(vm *viewmodel.ViewModel)) error {
	ctx, cancel := context.WithCancel(ctx)
	defer cancel()
	stop := context.AfterFunc(v.ctx, cancel)
	defer stop()
	return v.loop.Call(ctx, func() { fn(v.vm) })
}

// Done is closed when the view is closed.
func (v *WalletView) Done() <-chan struct{} {
	return v.ctx.Done()
}

// NotifyAnnotation tells the live row for (txID, address), if any, that its
// note changed.
func (v *WalletView) NotifyAnnotation(txID, address string) {
	v.loop.Post(func() { v.vm.OnAnnotationSaved(txID, address) })
}

// Subscribe forwards view changes to ch without blocking the loop. Changes
// that do not fit are dropped and counted. The returned func unsubscribes.
func (v *WalletView) Subscribe(ctx context.Context, ch chan<- viewmodel.Change) (func(), error) {
	var unsubscribe func()
	dropped := 0
	err := v.Do(ctx, func(vm *viewmodel.ViewModel) {
		unsubscribe = vm.Subscribe(func(c viewmodel.Change) {
			select {
			case ch <- c:
			default:
				dropped++
			}
		})
	})
	if err != nil {
		return nil, err
	}
	return func() {
		v.loop.Post(func() {
			unsubscribe()
			if dropped > 0 {
				v.hub.logger.Debug("stream dropped changes",
					"wallet_id", v.WalletID,
					"dropped", dropped,
				)
			}
		})
	}, nil
}
