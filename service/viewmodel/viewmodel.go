package viewmodel

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sort"
	"time"

	"github.com/andres-erbsen/clock"
	"github.com/brojonat/txledger/service/ledger"
	"github.com/brojonat/txledger/service/metrics"
)

// ErrRowOutOfRange is returned when a row index is outside the filtered rows.
var ErrRowOutOfRange = errors.New("row index out of range")

// AddressProvider supplies the addresses owned by the wallet.
type AddressProvider interface {
	OwnedAddresses() ledger.AddressSet
}

// StaticAddresses is an AddressProvider over a fixed set.
type StaticAddresses ledger.AddressSet

// OwnedAddresses returns the set.
func (s StaticAddresses) OwnedAddresses() ledger.AddressSet {
	return ledger.AddressSet(s)
}

// AnnotationStore loads annotations. CachedAnnotation must answer from
// memory only; Load may do I/O and is never called on the Loop.
type AnnotationStore interface {
	ledger.AnnotationLookup
	Load(ctx context.Context, txID, address string) (string, bool, error)
}

// Empty states reported when the view has no rows.
const (
	EmptyLoading        = "loading"
	EmptyNoMatch        = "no_match"
	EmptyNoTransactions = "no_transactions"
)

// ChangeKind classifies view model notifications.
type ChangeKind string

const (
	ChangeRows         ChangeKind = "rows"
	ChangeAnnotation   ChangeKind = "annotation"
	ChangeConfirmation ChangeKind = "confirmation"
)

// Change describes one update of the view.
type Change struct {
	Kind         ChangeKind         `json:"kind"`
	Key          ledger.RowKey      `json:"key"`
	RowCount     int                `json:"row_count,omitempty"`
	Confirmation *ConfirmationState `json:"confirmation,omitempty"`
}

// Options configures a ViewModel.
type Options struct {
	// Name labels logs and metrics, typically the wallet id.
	Name string

	Owned       AddressProvider
	Annotations AnnotationStore

	Recommended       int
	SettleDelay       time.Duration
	Location          *time.Location
	AnnotationTimeout time.Duration

	Clock   clock.Clock
	Metrics *metrics.Metrics
	Logger  *slog.Logger
}

// ViewModel turns a raw transaction list into filtered, summarized rows.
// It is driven by a Loop: every method must be called from a task running
// on that loop (Loop.Call from other goroutines).
type ViewModel struct {
	name              string
	loop              *Loop
	owned             AddressProvider
	annotations       AnnotationStore
	location          *time.Location
	annotationTimeout time.Duration
	clock             clock.Clock
	metrics           *metrics.Metrics
	logger            *slog.Logger

	feed     []*ledger.Transaction
	fed      bool
	loading  bool
	expanded []ledger.Row

	filter         ledger.Filter
	pending        *ledger.Filter
	refilterQueued bool
	hasFiltered    bool

	rows      []ledger.Row
	summaries ledger.DaySummaries

	tracker *Tracker
	router  *Router
	live    map[ledger.RowKey]*LiveRow

	windowOffset int
	windowLimit  int

	subscribers map[int]func(Change)
	nextSub     int
}

// New creates a view model bound to loop.
func New(loop *Loop, opts Options) *ViewModel {
	if opts.Logger == nil {
		opts.Logger = slog.Default()
	}
	if opts.Clock == nil {
		opts.Clock = clock.New()
	}
	if opts.Location == nil {
		opts.Location = time.Local
	}
	if opts.Owned == nil {
		opts.Owned = StaticAddresses(nil)
	}
	if opts.AnnotationTimeout <= 0 {
		opts.AnnotationTimeout = 5 * time.Second
	}

	vm := &ViewModel{
		name:              opts.Name,
		loop:              loop,
		owned:             opts.Owned,
		annotations:       opts.Annotations,
		location:          opts.Location,
		annotationTimeout: opts.AnnotationTimeout,
		clock:             opts.Clock,
		metrics:           opts.Metrics,
		logger:            opts.Logger.With("view", opts.Name),
		filter:            ledger.Filter{Direction: ledger.DirectionAll},
		summaries:         ledger.DaySummaries{},
		router:            NewRouter(),
		live:              make(map[ledger.RowKey]*LiveRow),
		subscribers:       make(map[int]func(Change)),
	}
	vm.tracker = NewTracker(opts.Recommended, opts.SettleDelay, opts.Clock, loop.Post)
	vm.tracker.OnChange(func(key ledger.RowKey, st ConfirmationState) {
		if vm.metrics != nil && st.Regime == RegimeConfirmed {
			vm.metrics.RecordConfirmationSettled(vm.name)
		}
		vm.notify(Change{Kind: ChangeConfirmation, Key: key, Confirmation: &st})
	})
	return vm
}

// Loop returns the loop the view model runs on.
func (vm *ViewModel) Loop() *Loop {
	return vm.loop
}

// Router returns the annotation router owned by the view model.
func (vm *ViewModel) Router() *Router {
	return vm.router
}

// Tracker returns the confirmation tracker owned by the view model.
func (vm *ViewModel) Tracker() *Tracker {
	return vm.tracker
}

// SetLoading marks the feed as loading. While loading, SetTransactions
// calls are ignored.
func (vm *ViewModel) SetLoading(loading bool) {
	vm.loading = loading
}

// Loading reports whether the feed is loading.
func (vm *ViewModel) Loading() bool {
	return vm.loading
}

// SetTransactions replaces the raw transaction list. Passing the same
// slice again is a no-op; a different slice is validated, expanded,
// filtered and summarized.
func (vm *ViewModel) SetTransactions(txs []*ledger.Transaction) error {
	if vm.loading {
		vm.logger.Debug("ignoring transactions while loading", "count", len(txs))
		return nil
	}
	if vm.fed && ledger.SameFeed(vm.feed, txs) {
		return nil
	}
	if err := ledger.ValidateFeed(txs); err != nil {
		return fmt.Errorf("set transactions: %w", err)
	}

	start := time.Now()
	vm.feed = txs
	vm.fed = true
	vm.expanded = ledger.Expand(txs, vm.owned.OwnedAddresses())
	if vm.metrics != nil {
		vm.metrics.RecordExpansion(vm.name, len(vm.expanded), time.Since(start).Seconds())
	}

	keys := make(map[ledger.RowKey]struct{}, len(vm.expanded))
	for _, r := range vm.expanded {
		keys[r.Key()] = struct{}{}
	}
	dropped := vm.tracker.Retain(func(k ledger.RowKey) bool {
		_, ok := keys[k]
		return ok
	})

	vm.logger.Debug("transactions expanded",
		"transactions", len(txs),
		"rows", len(vm.expanded),
		"forgotten", dropped,
	)

	vm.refilter()
	return nil
}

// Transactions returns the current raw list.
func (vm *ViewModel) Transactions() []*ledger.Transaction {
	return vm.feed
}

// SetFilter validates a new filter and schedules a re-filter on the next
// tick. Several calls within one tick produce a single pass using the last
// filter. An invalid pattern is rejected and the active filter is kept.
func (vm *ViewModel) SetFilter(direction ledger.Direction, text string) error {
	f, err := ledger.NewFilter(direction, text)
	if err != nil {
		if vm.metrics != nil {
			vm.metrics.RecordFilterRejected(vm.name)
		}
		vm.logger.Debug("filter rejected", "pattern", text, "error", err)
		return err
	}

	vm.pending = &f
	if !vm.refilterQueued {
		vm.refilterQueued = true
		vm.loop.Post(vm.applyPendingFilter)
	}
	return nil
}

// Filter returns the active filter.
func (vm *ViewModel) Filter() ledger.Filter {
	return vm.filter
}

func (vm *ViewModel) applyPendingFilter() {
	vm.refilterQueued = false
	if vm.pending == nil {
		return
	}
	vm.filter = *vm.pending
	vm.pending = nil
	vm.refilter()
}

func (vm *ViewModel) refilter() {
	start := time.Now()
	vm.rows = ledger.ApplyFilter(vm.expanded, vm.filter, vm.annotations)
	vm.summaries = ledger.Summarize(vm.rows, vm.clock.Now(), vm.location)
	vm.hasFiltered = true
	if vm.metrics != nil {
		vm.metrics.RecordFilterPass(vm.name, len(vm.rows), time.Since(start).Seconds())
	}

	vm.reconcileWindow()
	vm.notify(Change{Kind: ChangeRows, RowCount: len(vm.rows)})
}

// RowCount returns the number of filtered rows.
func (vm *ViewModel) RowCount() int {
	return len(vm.rows)
}

// RowAt returns the filtered row at index.
func (vm *ViewModel) RowAt(index int) (ledger.Row, bool) {
	if index < 0 || index >= len(vm.rows) {
		return ledger.Row{}, false
	}
	return vm.rows[index], true
}

// DailySummaryAt returns the day summary rendered just above row index.
func (vm *ViewModel) DailySummaryAt(index int) (ledger.DailySummary, bool) {
	s, ok := vm.summaries[index]
	return s, ok
}

// EmptyState explains an empty view. It returns "" when there are rows.
func (vm *ViewModel) EmptyState() string {
	switch {
	case len(vm.rows) > 0:
		return ""
	case vm.loading || !vm.hasFiltered:
		return EmptyLoading
	case vm.filter.Active():
		return EmptyNoMatch
	default:
		return EmptyNoTransactions
	}
}

// Activate makes the row at index live: it is registered for annotation
// routing, its confirmation state is tracked and its annotation is loaded.
// Activating an already live identity returns the existing row.
func (vm *ViewModel) Activate(index int) (*LiveRow, error) {
	row, ok := vm.RowAt(index)
	if !ok {
		return nil, fmt.Errorf("%w: %d of %d", ErrRowOutOfRange, index, len(vm.rows))
	}
	key := row.Key()
	if lr, ok := vm.live[key]; ok {
		lr.row = row
		return lr, nil
	}

	lr := &LiveRow{vm: vm, key: key, row: row, active: true}
	vm.live[key] = lr
	vm.router.Register(key, lr)
	vm.tracker.Update(key, row.Tx.Confirmations, row.Tx.Unpublished)
	lr.ReloadAnnotation()

	if vm.metrics != nil {
		vm.metrics.SetLiveRows(vm.name, len(vm.live))
	}
	return lr, nil
}

// Deactivate releases a live row. It is safe to call more than once.
func (vm *ViewModel) Deactivate(lr *LiveRow) {
	if lr == nil || !lr.active {
		return
	}
	lr.active = false
	vm.router.Release(lr.key, lr)
	if cur, ok := vm.live[lr.key]; ok && cur == lr {
		delete(vm.live, lr.key)
	}
	if vm.metrics != nil {
		vm.metrics.SetLiveRows(vm.name, len(vm.live))
	}
}

// Live returns the live row for key.
func (vm *ViewModel) Live(key ledger.RowKey) (*LiveRow, bool) {
	lr, ok := vm.live[key]
	return lr, ok
}

// LiveRows returns all live rows ordered by their position in the view.
func (vm *ViewModel) LiveRows() []*LiveRow {
	pos := make(map[ledger.RowKey]int, len(vm.live))
	for i, r := range vm.rows {
		if _, ok := vm.live[r.Key()]; ok {
			pos[r.Key()] = i
		}
	}
	out := make([]*LiveRow, 0, len(vm.live))
	for _, lr := range vm.live {
		out = append(out, lr)
	}
	sort.Slice(out, func(i, j int) bool {
		return pos[out[i].key] < pos[out[j].key]
	})
	return out
}

// SetWindow sets the visible window. Rows entering it are activated and
// rows leaving it are deactivated. A limit of 0 deactivates everything.
func (vm *ViewModel) SetWindow(offset, limit int) {
	if offset < 0 {
		offset = 0
	}
	if limit < 0 {
		limit = 0
	}
	vm.windowOffset, vm.windowLimit = offset, limit
	vm.reconcileWindow()
}

// Window returns the visible window.
func (vm *ViewModel) Window() (offset, limit int) {
	return vm.windowOffset, vm.windowLimit
}

func (vm *ViewModel) reconcileWindow() {
	start := min(vm.windowOffset, len(vm.rows))
	end := min(start+vm.windowLimit, len(vm.rows))

	visible := make(map[ledger.RowKey]int, end-start)
	for i := start; i < end; i++ {
		visible[vm.rows[i].Key()] = i
	}

	for key, lr := range vm.live {
		if _, ok := visible[key]; !ok {
			vm.Deactivate(lr)
		}
	}
	for i := start; i < end; i++ {
		if _, err := vm.Activate(i); err != nil {
			vm.logger.Warn("failed to activate row", "index", i, "error", err)
		}
	}
	vm.RefreshConfirmations()
}

// RefreshConfirmations re-reads the confirmation count of every live row's
// transaction. Rows whose count did not change are skipped by the tracker.
func (vm *ViewModel) RefreshConfirmations() int {
	changed := 0
	for key, lr := range vm.live {
		st, ok := vm.tracker.Update(key, lr.row.Tx.Confirmations, lr.row.Tx.Unpublished)
		if !ok {
			continue
		}
		changed++
		vm.notify(Change{Kind: ChangeConfirmation, Key: key, Confirmation: &st})
	}
	return changed
}

// OnAnnotationSaved routes a saved-annotation event to the live row, if any.
func (vm *ViewModel) OnAnnotationSaved(txID, address string) bool {
	delivered := vm.router.Dispatch(txID, address)
	if vm.metrics != nil {
		vm.metrics.RecordAnnotationDispatch(vm.name, delivered)
	}
	vm.logger.Debug("annotation saved event",
		"tx_id", txID,
		"address", address,
		"delivered", delivered,
	)
	return delivered
}

// Subscribe registers fn for change notifications. fn runs on the Loop and
// must not block. The returned func unsubscribes.
func (vm *ViewModel) Subscribe(fn func(Change)) func() {
	id := vm.nextSub
	vm.nextSub++
	vm.subscribers[id] = fn
	return func() { delete(vm.subscribers, id) }
}

func (vm *ViewModel) notify(c Change) {
	for _, fn := range vm.subscribers {
		fn(c)
	}
}
