package store

import (
	"container/heap"

	"github.com/bridgecall/bridgecall/pkg/models"
)

// priorityMap is an indexed min-heap from uid to a priority, supporting
// O(log n) Upsert/Remove and O(1) Top. Ties are broken by uid so ordering is
// total and deterministic.
type priorityMap[P any] struct {
	less  func(a, b P) bool
	heap  pmHeap[P]
	index map[models.Uid]int
}

type pmEntry[P any] struct {
	uid models.Uid
	pri P
}

type pmHeap[P any] struct {
	entries []pmEntry[P]
	pm      *priorityMap[P]
}

func newPriorityMap[P any](less func(a, b P) bool) *priorityMap[P] {
	pm := &priorityMap[P]{
		less:  less,
		index: make(map[models.Uid]int),
	}
	pm.heap.pm = pm
	return pm
}

func (h *pmHeap[P]) Len() int { return len(h.entries) }

func (h *pmHeap[P]) Less(i, j int) bool {
	a, b := h.entries[i], h.entries[j]
	if h.pm.less(a.pri, b.pri) {
		return true
	}
	if h.pm.less(b.pri, a.pri) {
		return false
	}
	return a.uid < b.uid
}

func (h *pmHeap[P]) Swap(i, j int) {
	h.entries[i], h.entries[j] = h.entries[j], h.entries[i]
	h.pm.index[h.entries[i].uid] = i
	h.pm.index[h.entries[j].uid] = j
}

func (h *pmHeap[P]) Push(x any) {
	e := x.(pmEntry[P])
	h.pm.index[e.uid] = len(h.entries)
	h.entries = append(h.entries, e)
}

func (h *pmHeap[P]) Pop() any {
	n := len(h.entries)
	e := h.entries[n-1]
	h.entries = h.entries[:n-1]
	delete(h.pm.index, e.uid)
	return e
}

// Upsert inserts or reprioritises uid.
func (pm *priorityMap[P]) Upsert(uid models.Uid, pri P) {
	if i, ok := pm.index[uid]; ok {
		pm.heap.entries[i].pri = pri
		heap.Fix(&pm.heap, i)
		return
	}
	heap.Push(&pm.heap, pmEntry[P]{uid: uid, pri: pri})
}

// Remove deletes uid if present.
func (pm *priorityMap[P]) Remove(uid models.Uid) {
	i, ok := pm.index[uid]
	if !ok {
		return
	}
	heap.Remove(&pm.heap, i)
}

// Top returns the minimum-priority uid.
func (pm *priorityMap[P]) Top() (models.Uid, bool) {
	if len(pm.heap.entries) == 0 {
		return 0, false
	}
	return pm.heap.entries[0].uid, true
}

// TopPriority returns the minimum priority itself.
func (pm *priorityMap[P]) TopPriority() (P, bool) {
	var zero P
	if len(pm.heap.entries) == 0 {
		return zero, false
	}
	return pm.heap.entries[0].pri, true
}

// Len returns the number of entries.
func (pm *priorityMap[P]) Len() int { return len(pm.heap.entries) }

// Contains reports whether uid is present, returning its priority.
func (pm *priorityMap[P]) Contains(uid models.Uid) (P, bool) {
	var zero P
	i, ok := pm.index[uid]
	if !ok {
		return zero, false
	}
	return pm.heap.entries[i].pri, true
}
