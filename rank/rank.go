// Package rank selects the best N items of a slice by score.
package rank

import (
	"container/heap"
	"sort"
)

type entry struct {
	idx   int
	score float64
}

// worse reports whether a ranks below b. Equal scores rank by position, the
// earlier item winning.
func worse(a, b entry) bool {
	if a.score != b.score {
		return a.score < b.score
	}
	return a.idx > b.idx
}

// minHeap keeps the weakest retained entry at the root.
type minHeap []entry

func (h minHeap) Len() int           { return len(h) }
func (h minHeap) Less(i, j int) bool { return worse(h[i], h[j]) }
func (h minHeap) Swap(i, j int)      { h[i], h[j] = h[j], h[i] }
func (h *minHeap) Push(x any)        { *h = append(*h, x.(entry)) }
func (h *minHeap) Pop() any {
	old := *h
	e := old[len(old)-1]
	*h = old[:len(old)-1]
	return e
}

// Top returns at most n items with the highest score, best first. The
// selection is O(len(items) log n).
func Top[T any](items []T, n int, score func(T) float64) []T {
	if n <= 0 || len(items) == 0 {
		return nil
	}
	if n > len(items) {
		n = len(items)
	}

	h := make(minHeap, 0, n)
	for i, it := range items {
		e := entry{idx: i, score: score(it)}
		if h.Len() < n {
			heap.Push(&h, e)
			continue
		}
		if worse(h[0], e) {
			h[0] = e
			heap.Fix(&h, 0)
		}
	}

	sort.Slice(h, func(i, j int) bool { return worse(h[j], h[i]) })
	out := make([]T, len(h))
	for i, e := range h {
		out[i] = items[e.idx]
	}
	return out
}
