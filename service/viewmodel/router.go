package viewmodel

import "github.com/brojonat/txledger/service/ledger"

// AnnotationHandle is a live row that can reload its annotation.
type AnnotationHandle interface {
	ReloadAnnotation()
}

// Router maps row identities to the live row currently showing them, so a
// saved annotation reaches that row without a re-filter. Each view model
// owns its own Router. Not safe for concurrent use.
type Router struct {
	handles map[ledger.RowKey]AnnotationHandle
}

// NewRouter creates an empty router.
func NewRouter() *Router {
	return &Router{handles: make(map[ledger.RowKey]AnnotationHandle)}
}

// Register makes h the live handle for key. A previous handle is replaced.
func (r *Router) Register(key ledger.RowKey, h AnnotationHandle) {
	r.handles[key] = h
}

// Unregister removes whatever handle is registered for key.
func (r *Router) Unregister(key ledger.RowKey) {
	delete(r.handles, key)
}

// Release removes h if it is still the handle registered for key. A row
// that was replaced by a newer instance does not evict its successor.
func (r *Router) Release(key ledger.RowKey, h AnnotationHandle) bool {
	if cur, ok := r.handles[key]; ok && cur == h {
		delete(r.handles, key)
		return true
	}
	return false
}

// Dispatch asks the live handle for (txID, address) to reload its
// annotation. It returns false, doing nothing, when no row is live.
func (r *Router) Dispatch(txID, address string) bool {
	h, ok := r.handles[ledger.RowKey{TxID: txID, Address: address}]
	if !ok {
		return false
	}
	h.ReloadAnnotation()
	return true
}

// Lookup returns the handle registered for key.
func (r *Router) Lookup(key ledger.RowKey) (AnnotationHandle, bool) {
	h, ok := r.handles[key]
	return h, ok
}

// Len returns the number of live handles.
func (r *Router) Len() int {
	return len(r.handles)
}
