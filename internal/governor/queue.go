package governor

import "container/heap"

// requestQueue is a max-heap of pending requests ordered by priority,
// with FIFO insertion order breaking ties. Retried requests re-enter with a
// bumped priority value; entries are never mutated in place while queued.
type requestQueue struct {
	items []*request
}

// Compile-time interface compliance check.
var _ heap.Interface = (*requestQueue)(nil)

func (q *requestQueue) Len() int { return len(q.items) }

func (q *requestQueue) Less(i, j int) bool {
	a, b := q.items[i], q.items[j]
	if a.priority != b.priority {
		return a.priority > b.priority
	}
	return a.seq < b.seq
}

func (q *requestQueue) Swap(i, j int) {
	q.items[i], q.items[j] = q.items[j], q.items[i]
}

func (q *requestQueue) Push(x any) {
	q.items = append(q.items, x.(*request))
}

func (q *requestQueue) Pop() any {
	old := q.items
	n := len(old)
	item := old[n-1]
	old[n-1] = nil
	q.items = old[:n-1]
	return item
}

// push adds a request to the queue.
func (q *requestQueue) push(r *request) {
	heap.Push(q, r)
}

// pop removes and returns the highest-priority request, or nil when empty.
func (q *requestQueue) pop() *request {
	if q.Len() == 0 {
		return nil
	}
	return heap.Pop(q).(*request)
}
