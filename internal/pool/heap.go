package pool

import (
	"container/heap"
	"time"
)

// sessionHeapEntry is one active session's expiry deadline, tracked both by
// heap position (for O(log n) pop-min) and by a side index keyed on
// SessionId (for O(log n) update/remove by key) — the "hash-indexed binary
// heap" spec §4.1 requires.
type sessionHeapEntry struct {
	sessionID string
	deadline  time.Time
	index     int
}

type rawHeap []*sessionHeapEntry

func (h rawHeap) Len() int            { return len(h) }
func (h rawHeap) Less(i, j int) bool  { return h[i].deadline.Before(h[j].deadline) }
func (h rawHeap) Swap(i, j int) {
	h[i], h[j] = h[j], h[i]
	h[i].index = i
	h[j].index = j
}

func (h *rawHeap) Push(x any) {
	entry := x.(*sessionHeapEntry)
	entry.index = len(*h)
	*h = append(*h, entry)
}

func (h *rawHeap) Pop() any {
	old := *h
	n := len(old)
	entry := old[n-1]
	old[n-1] = nil
	entry.index = -1
	*h = old[:n-1]
	return entry
}

// ActiveHeap is the active-sessions expiry structure: O(log n) insert,
// O(log n) key-based update/remove, O(1) peek-min, O(log n) pop-min (spec
// §4.1 "Data-structure requirements").
type ActiveHeap struct {
	h     rawHeap
	index map[string]*sessionHeapEntry
}

// NewActiveHeap returns an empty ActiveHeap.
func NewActiveHeap() *ActiveHeap {
	return &ActiveHeap{index: map[string]*sessionHeapEntry{}}
}

func (a *ActiveHeap) Len() int { return len(a.h) }

// Insert adds sessionID with deadline, or moves it if already present.
func (a *ActiveHeap) Insert(sessionID string, deadline time.Time) {
	if entry, ok := a.index[sessionID]; ok {
		entry.deadline = deadline
		heap.Fix(&a.h, entry.index)
		return
	}
	entry := &sessionHeapEntry{sessionID: sessionID, deadline: deadline}
	a.index[sessionID] = entry
	heap.Push(&a.h, entry)
}

// Update moves sessionID's deadline; it is a no-op if sessionID is absent.
func (a *ActiveHeap) Update(sessionID string, deadline time.Time) {
	entry, ok := a.index[sessionID]
	if !ok {
		return
	}
	entry.deadline = deadline
	heap.Fix(&a.h, entry.index)
}

// Get returns the current deadline for sessionID, if present.
func (a *ActiveHeap) Get(sessionID string) (time.Time, bool) {
	entry, ok := a.index[sessionID]
	if !ok {
		return time.Time{}, false
	}
	return entry.deadline, true
}

// Remove drops sessionID from the heap, if present.
func (a *ActiveHeap) Remove(sessionID string) {
	entry, ok := a.index[sessionID]
	if !ok {
		return
	}
	heap.Remove(&a.h, entry.index)
	delete(a.index, sessionID)
}

// PeekDeadline returns the minimum deadline currently held, if any.
func (a *ActiveHeap) PeekDeadline() (time.Time, bool) {
	if len(a.h) == 0 {
		return time.Time{}, false
	}
	return a.h[0].deadline, true
}

// PopMin removes and returns the session with the earliest deadline.
func (a *ActiveHeap) PopMin() (sessionID string, deadline time.Time, ok bool) {
	if len(a.h) == 0 {
		return "", time.Time{}, false
	}
	entry := heap.Pop(&a.h).(*sessionHeapEntry)
	delete(a.index, entry.sessionID)
	return entry.sessionID, entry.deadline, true
}
