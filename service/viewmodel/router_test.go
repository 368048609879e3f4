package viewmodel

import (
	"testing"

	"github.com/brojonat/txledger/service/ledger"
	"github.com/stretchr/testify/assert"
)

type countingHandle struct{ reloads int }

func (h *countingHandle) ReloadAnnotation() { h.reloads++ }

func TestRouter(t *testing.T) {
	r := NewRouter()
	key := ledger.RowKey{TxID: "t1", Address: "a"}
	first := &countingHandle{}
	second := &countingHandle{}

	assert.False(t, r.Dispatch("t1", "a"), "no live row")

	r.Register(key, first)
	r.Register(key, second)
	assert.Equal(t, 1, r.Len())

	assert.True(t, r.Dispatch("t1", "a"))
	assert.Zero(t, first.reloads)
	assert.Equal(t, 1, second.reloads)

	assert.False(t, r.Release(key, first), "stale handle must not evict its successor")
	assert.True(t, r.Release(key, second))
	assert.False(t, r.Dispatch("t1", "a"))

	r.Register(key, first)
	r.Unregister(key)
	_, ok := r.Lookup(key)
	assert.False(t, ok)
}
