package scheduler

// wakeHeap implements container/heap.Interface for WakePoint, ordered by
// fire time (earliest first); simultaneous deadlines fire in insertion order.
type wakeHeap []WakePoint

func (h wakeHeap) Len() int { return len(h) }

func (h wakeHeap) Less(i, j int) bool {
	if h[i].At.Equal(h[j].At) {
		return h[i].seq < h[j].seq
	}
	return h[i].At.Before(h[j].At)
}

func (h wakeHeap) Swap(i, j int) { h[i], h[j] = h[j], h[i] }

func (h *wakeHeap) Push(x any) {
	*h = append(*h, x.(WakePoint))
}

func (h *wakeHeap) Pop() any {
	old := *h
	n := len(old)
	x := old[n-1]
	*h = old[:n-1]
	return x
}
