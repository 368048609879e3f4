// Package annotation stores the notes a wallet attaches to
// transaction/address pairs. Notes are scoped to the wallet that wrote them:
// two wallets sharing a transaction each keep their own note. The package
// keeps an in-process cache that the ledger filter reads synchronously and
// publishes a saved event for every write.
package annotation

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/brojonat/txledger/service/db"
	"github.com/brojonat/txledger/service/ledger"
	"github.com/brojonat/txledger/service/metrics"
	natspkg "github.com/brojonat/txledger/service/nats"
)

// MaxNoteLength bounds the size of a stored note in bytes.
const MaxNoteLength = 1024

// ErrNoteTooLong is returned by Save for notes over MaxNoteLength.
var ErrNoteTooLong = errors.New("note too long")

// Backend is the durable annotation storage.
type Backend interface {
	GetAnnotation(ctx context.Context, walletID, txID, address string) (string, bool, error)
	SaveAnnotation(ctx context.Context, walletID, txID, address, note string) error
	ListAnnotationsByWallet(ctx context.Context, walletID string) ([]db.Annotation, error)
}

type cacheKey struct {
	walletID string
	row      ledger.RowKey
}

func keyOf(walletID, txID, address string) cacheKey {
	return cacheKey{walletID: walletID, row: ledger.RowKey{TxID: txID, Address: address}}
}

// Service serves annotation reads and writes.
type Service struct {
	backend   Backend
	publisher natspkg.Publisher
	metrics   *metrics.Metrics
	logger    *slog.Logger

	mu    sync.RWMutex
	cache map[cacheKey]string
}

// NewService creates an annotation service. publisher and m may be nil.
func NewService(backend Backend, publisher natspkg.Publisher, m *metrics.Metrics, logger *slog.Logger) *Service {
	return &Service{
		backend:   backend,
		publisher: publisher,
		metrics:   m,
		logger:    logger,
		cache:     make(map[cacheKey]string),
	}
}

// Cached answers from memory only. It never blocks on I/O.
func (s *Service) Cached(walletID, txID, address string) (string, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	note, ok := s.cache[keyOf(walletID, txID, address)]
	return note, ok
}

// Load reads a wallet's note from the backend and refreshes the cache.
func (s *Service) Load(ctx context.Context, walletID, txID, address string) (string, bool, error) {
	note, ok, err := s.backend.GetAnnotation(ctx, walletID, txID, address)
	if err != nil {
		return "", false, fmt.Errorf("failed to load annotation for %s/%s: %w", txID, address, err)
	}
	s.Apply(walletID, txID, address, note)
	return note, ok, nil
}

// Save stores a wallet's note, updates the cache and publishes a saved
// event. An empty note clears the annotation. A publish failure is logged;
// the note is already durable.
func (s *Service) Save(ctx context.Context, walletID, txID, address, note string) error {
	if len(note) > MaxNoteLength {
		return fmt.Errorf("%w: exceeds %d bytes", ErrNoteTooLong, MaxNoteLength)
	}
	if err := s.backend.SaveAnnotation(ctx, walletID, txID, address, note); err != nil {
		return fmt.Errorf("failed to save annotation: %w", err)
	}
	s.Apply(walletID, txID, address, note)

	s.logger.DebugContext(ctx, "annotation saved",
		"wallet_id", walletID,
		"tx_id", txID,
		"address", address,
	)

	if s.publisher == nil {
		return nil
	}
	event := &natspkg.AnnotationSavedEvent{
		WalletID: walletID,
		TxID:     txID,
		Address:  address,
		Note:     note,
		SavedAt:  time.Now().UTC(),
	}
	if err := s.publisher.PublishAnnotationSaved(ctx, event); err != nil {
		s.logger.WarnContext(ctx, "failed to publish annotation saved event",
			"wallet_id", walletID,
			"tx_id", txID,
			"error", err,
		)
	}
	return nil
}

// Apply updates the cache without touching the backend. Saved events from
// other instances come in through here.
func (s *Service) Apply(walletID, txID, address, note string) {
	key := keyOf(walletID, txID, address)
	s.mu.Lock()
	defer s.mu.Unlock()
	if note == "" {
		delete(s.cache, key)
		return
	}
	s.cache[key] = note
}

// Warm loads every note of a wallet into the cache.
func (s *Service) Warm(ctx context.Context, walletID string) (int, error) {
	all, err := s.backend.ListAnnotationsByWallet(ctx, walletID)
	if err != nil {
		if s.metrics != nil {
			s.metrics.RecordAnnotationLoad("error")
		}
		return 0, fmt.Errorf("failed to warm annotation cache for %s: %w", walletID, err)
	}

	s.mu.Lock()
	for _, a := range all {
		s.cache[keyOf(walletID, a.TxID, a.Address)] = a.Note
	}
	s.mu.Unlock()

	if s.metrics != nil {
		s.metrics.RecordAnnotationLoad("warm")
	}
	s.logger.DebugContext(ctx, "annotation cache warmed",
		"wallet_id", walletID,
		"count", len(all),
	)
	return len(all), nil
}

// Forget drops a wallet's cached notes.
func (s *Service) Forget(walletID string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	for k := range s.cache {
		if k.walletID == walletID {
			delete(s.cache, k)
		}
	}
}

// Len returns the number of cached notes.
func (s *Service) Len() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.cache)
}

// ForWallet returns the notes of one wallet as a view model annotation
// store.
func (s *Service) ForWallet(walletID string) *WalletNotes {
	return &WalletNotes{svc: s, walletID: walletID}
}

// WalletNotes is a Service bound to one wallet.
type WalletNotes struct {
	svc      *Service
	walletID string
}

// CachedAnnotation answers from memory only.
func (w *WalletNotes) CachedAnnotation(txID, address string) (string, bool) {
	return w.svc.Cached(w.walletID, txID, address)
}

// Load reads the wallet's note from the backend.
func (w *WalletNotes) Load(ctx context.Context, txID, address string) (string, bool, error) {
	return w.svc.Load(ctx, w.walletID, txID, address)
}
