package hnsw

import "container/heap"

// candidate is one entry in a priority queue during beam search: a node id
// at a given distance from the query.
type candidate struct {
	id       string
	distance float32
}

// minHeap orders candidates nearest-first; used as the "to expand" frontier
// in searchLayer.
type minHeap []candidate

func (h minHeap) Len() int            { return len(h) }
func (h minHeap) Less(i, j int) bool  { return h[i].distance < h[j].distance }
func (h minHeap) Swap(i, j int)       { h[i], h[j] = h[j], h[i] }
func (h *minHeap) Push(x interface{}) { *h = append(*h, x.(candidate)) }
func (h *minHeap) Pop() interface{} {
	old := *h
	n := len(old)
	item := old[n-1]
	*h = old[:n-1]
	return item
}

// maxHeap orders candidates farthest-first; used to track the current
// "worst of the best ef results" so it can be evicted in O(log ef).
type maxHeap []candidate

func (h maxHeap) Len() int            { return len(h) }
func (h maxHeap) Less(i, j int) bool  { return h[i].distance > h[j].distance }
func (h maxHeap) Swap(i, j int)       { h[i], h[j] = h[j], h[i] }
func (h *maxHeap) Push(x interface{}) { *h = append(*h, x.(candidate)) }
func (h *maxHeap) Pop() interface{} {
	old := *h
	n := len(old)
	item := old[n-1]
	*h = old[:n-1]
	return item
}

// newMinHeap / newMaxHeap return initialized, heap-ready queues.
func newMinHeap() *minHeap {
	h := &minHeap{}
	heap.Init(h)
	return h
}

func newMaxHeap() *maxHeap {
	h := &maxHeap{}
	heap.Init(h)
	return h
}
