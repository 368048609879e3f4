package viewmodel

import (
	"fmt"
	"math"
	"time"

	"github.com/andres-erbsen/clock"
	"github.com/brojonat/txledger/service/ledger"
)

// Regime is the confirmation state of a row.
type Regime int

const (
	RegimeUnpublished Regime = iota
	RegimePending
	RegimeConfirmed
)

func (r Regime) String() string {
	switch r {
	case RegimeUnpublished:
		return "unpublished"
	case RegimePending:
		return "pending"
	case RegimeConfirmed:
		return "confirmed"
	default:
		return fmt.Sprintf("regime(%d)", int(r))
	}
}

// MarshalText renders the regime name in JSON payloads.
func (r Regime) MarshalText() ([]byte, error) {
	return []byte(r.String()), nil
}

// progressSteps quantizes progress into 0, 1/6, ..., 1.
const progressSteps = 6

// fullTransition is the animation hint for a progress change from 0 to 1.
const fullTransition = 2400 * time.Millisecond

// Progress maps a confirmation count to a fraction in [0, 1], quantized to
// sixths. A non-positive recommended count means confirmed.
func Progress(confirmations, recommended int) float64 {
	if recommended <= 0 {
		return 1
	}
	if confirmations <= 0 {
		return 0
	}
	p := math.Floor(float64(progressSteps*confirmations)/float64(recommended)) / progressSteps
	return math.Min(p, 1)
}

// ConfirmationState is the tracked state of one row.
type ConfirmationState struct {
	Regime        Regime        `json:"regime"`
	Progress      float64       `json:"progress"`
	Confirmations int           `json:"confirmations"`
	Recommended   int           `json:"recommended"`
	Unpublished   bool          `json:"unpublished"`
	Transition    time.Duration `json:"transition"`
}

// Label renders the count as "confirmations/recommended".
func (s ConfirmationState) Label() string {
	return fmt.Sprintf("%d/%d", s.Confirmations, s.Recommended)
}

// ShowHourglass reports whether a pending indicator is still meaningful.
func (s ConfirmationState) ShowHourglass() bool {
	return s.Confirmations <= s.Recommended
}

type trackedState struct {
	ConfirmationState
	settling bool
	gen      uint64
}

// Tracker keeps the confirmation state machine of every row identity.
// It is not safe for concurrent use; all calls happen on the Loop.
type Tracker struct {
	recommended int
	settleDelay time.Duration
	clock       clock.Clock
	post        func(func())
	onChange    func(ledger.RowKey, ConfirmationState)
	states      map[ledger.RowKey]*trackedState
}

// NewTracker creates a tracker. Settle timers fire on clk and are delivered
// through post, which must hand the callback to the Loop.
func NewTracker(recommended int, settleDelay time.Duration, clk clock.Clock, post func(func())) *Tracker {
	if clk == nil {
		clk = clock.New()
	}
	return &Tracker{
		recommended: recommended,
		settleDelay: settleDelay,
		clock:       clk,
		post:        post,
		states:      make(map[ledger.RowKey]*trackedState),
	}
}

// OnChange registers a callback for transitions that happen outside Update,
// i.e. a settle timer moving a row to Confirmed.
func (t *Tracker) OnChange(fn func(ledger.RowKey, ConfirmationState)) {
	t.onChange = fn
}

// Update feeds the current confirmation count and unpublished flag for key.
// It returns the new state and whether anything changed; an update with the
// same count and flag as last time is a no-op.
func (t *Tracker) Update(key ledger.RowKey, confirmations int, unpublished bool) (ConfirmationState, bool) {
	st, tracked := t.states[key]
	if tracked && st.Confirmations == confirmations && st.Unpublished == unpublished {
		return st.ConfirmationState, false
	}
	if !tracked {
		st = &trackedState{}
		t.states[key] = st
	}

	prev := st.Progress
	st.Confirmations = confirmations
	st.Unpublished = unpublished
	st.Recommended = t.recommended
	st.Transition = 0

	if st.Regime == RegimeConfirmed {
		return st.ConfirmationState, true
	}

	if unpublished {
		st.Regime = RegimeUnpublished
		st.Progress = 0
		t.cancelSettle(st)
		return st.ConfirmationState, true
	}

	p := Progress(confirmations, t.recommended)
	if tracked && p > prev {
		st.Transition = time.Duration(float64(fullTransition) * (p - prev))
	}
	st.Progress = p

	switch {
	case p < 1:
		st.Regime = RegimePending
		t.cancelSettle(st)
	case !tracked || t.settleDelay <= 0:
		st.Regime = RegimeConfirmed
	default:
		st.Regime = RegimePending
		if !st.settling {
			t.scheduleSettle(key, st)
		}
	}

	return st.ConfirmationState, true
}

// State returns the tracked state for key.
func (t *Tracker) State(key ledger.RowKey) (ConfirmationState, bool) {
	st, ok := t.states[key]
	if !ok {
		return ConfirmationState{}, false
	}
	return st.ConfirmationState, true
}

// Forget drops the state of key and cancels its settle timer.
func (t *Tracker) Forget(key ledger.RowKey) {
	if st, ok := t.states[key]; ok {
		t.cancelSettle(st)
		delete(t.states, key)
	}
}

// Retain forgets every key for which keep returns false.
func (t *Tracker) Retain(keep func(ledger.RowKey) bool) int {
	dropped := 0
	for key := range t.states {
		if !keep(key) {
			t.Forget(key)
			dropped++
		}
	}
	return dropped
}

// Len returns the number of tracked rows.
func (t *Tracker) Len() int {
	return len(t.states)
}

func (t *Tracker) scheduleSettle(key ledger.RowKey, st *trackedState) {
	st.gen++
	st.settling = true
	gen := st.gen

	fired := t.clock.After(t.settleDelay)
	go func() {
		<-fired
		t.post(func() { t.settle(key, gen) })
	}()
}

func (t *Tracker) cancelSettle(st *trackedState) {
	if st.settling {
		st.gen++
		st.settling = false
	}
}

func (t *Tracker) settle(key ledger.RowKey, gen uint64) {
	st, ok := t.states[key]
	if !ok || st.gen != gen || !st.settling {
		return
	}
	st.settling = false
	if st.Regime != RegimePending || st.Progress < 1 {
		return
	}
	st.Regime = RegimeConfirmed
	st.Transition = 0
	if t.onChange != nil {
		t.onChange(key, st.ConfirmationState)
	}
}
