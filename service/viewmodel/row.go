package viewmodel

import (
	"context"

	"github.com/brojonat/txledger/service/ledger"
)

// LiveRow is an active row: it is registered with the Router, tracks its
// confirmation state and holds the annotation loaded for it. LiveRow
// methods must be called on the Loop.
type LiveRow struct {
	vm  *ViewModel
	key ledger.RowKey
	row ledger.Row

	annotation    string
	hasAnnotation bool
	loads         uint64
	active        bool
}

// Key returns the row identity.
func (r *LiveRow) Key() ledger.RowKey {
	return r.key
}

// Row returns the latest row value for this identity.
func (r *LiveRow) Row() ledger.Row {
	return r.row
}

// Active reports whether the row is still registered.
func (r *LiveRow) Active() bool {
	return r.active
}

// Annotation returns the loaded note, if any.
func (r *LiveRow) Annotation() (string, bool) {
	return r.annotation, r.hasAnnotation
}

// Label is the note when one is loaded, else the address.
func (r *LiveRow) Label() string {
	if r.hasAnnotation && r.annotation != "" {
		return r.annotation
	}
	return r.key.Address
}

// Confirmation returns the tracked confirmation state.
func (r *LiveRow) Confirmation() ConfirmationState {
	st, _ := r.vm.tracker.State(r.key)
	return st
}

// ReloadAnnotation starts an asynchronous load from the annotation store.
// The result is applied on the Loop; a result that arrives after the row
// was deactivated, or after a newer load started, is discarded.
func (r *LiveRow) ReloadAnnotation() {
	store := r.vm.annotations
	if store == nil {
		return
	}
	r.loads++
	seq := r.loads
	key := r.key
	timeout := r.vm.annotationTimeout

	go func() {
		ctx, cancel := context.WithTimeout(context.Background(), timeout)
		defer cancel()
		note, ok, err := store.Load(ctx, key.TxID, key.Address)
		r.vm.loop.Post(func() { r.applyAnnotation(seq, note, ok, err) })
	}()
}

func (r *LiveRow) applyAnnotation(seq uint64, note string, ok bool, err error) {
	if !r.active || seq != r.loads {
		return
	}
	if err != nil {
		r.vm.logger.Debug("annotation load failed, showing address",
			"tx_id", r.key.TxID,
			"address", r.key.Address,
			"error", err,
		)
		if r.vm.metrics != nil {
			r.vm.metrics.RecordAnnotationLoad("error")
		}
		r.annotation, r.hasAnnotation = "", false
	} else {
		if r.vm.metrics != nil {
			r.vm.metrics.RecordAnnotationLoad("success")
		}
		r.annotation, r.hasAnnotation = note, ok
	}
	r.vm.notify(Change{Kind: ChangeAnnotation, Key: r.key})
}
