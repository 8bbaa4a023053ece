package store

import (
	"container/heap"
	"sort"
)

// candidate is a scored record whose payload is decoded only if it survives ranking.
type candidate[T any] struct {
	id       int64
	distance float64
	payload  T
}

func less[T any](a, b candidate[T]) bool {
	if a.distance != b.distance {
		return a.distance < b.distance
	}
	return a.id < b.id
}

// worstFirst is a max-heap on (distance, id).
type worstFirst[T any] []candidate[T]

func (h worstFirst[T]) Len() int           { return len(h) }
func (h worstFirst[T]) Less(i, j int) bool { return less(h[j], h[i]) }
func (h worstFirst[T]) Swap(i, j int)      { h[i], h[j] = h[j], h[i] }
func (h *worstFirst[T]) Push(x any)        { *h = append(*h, x.(candidate[T])) }
func (h *worstFirst[T]) Pop() any {
	old := *h
	n := len(old)
	item := old[n-1]
	*h = old[:n-1]
	return item
}

// topK keeps the k best candidates seen so far.
type topK[T any] struct {
	k int
	h worstFirst[T]
}

func newTopK[T any](k int) *topK[T] {
	return &topK[T]{k: k, h: make(worstFirst[T], 0, k)}
}

func (t *topK[T]) offer(id int64, distance float64, payload T) {
	c := candidate[T]{id: id, distance: distance, payload: payload}
	if len(t.h) < t.k {
		heap.Push(&t.h, c)
		return
	}
	if less(c, t.h[0]) {
		t.h[0] = c
		heap.Fix(&t.h, 0)
	}
}

// sorted returns the kept candidates best first.
func (t *topK[T]) sorted() []candidate[T] {
	out := append([]candidate[T](nil), t.h...)
	sort.Slice(out, func(i, j int) bool { return less(out[i], out[j]) })
	return out
}
