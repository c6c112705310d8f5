package scheduler

// taskQueue is a min-heap of tasks ordered by nextRun. Pop order is
// non-decreasing nextRun; ties resolve in arbitrary (but internally
// consistent) order.
//
// The queue may hold stale entries for cancelled tasks; liveness is always
// checked against the id lookup table after a pop (lazy deletion).
type taskQueue []*task

func (q taskQueue) Len() int { return len(q) }

func (q taskQueue) Less(i, j int) bool { return q[i].nextRun.Before(q[j].nextRun) }

func (q taskQueue) Swap(i, j int) {
	q[i], q[j] = q[j], q[i]
	q[i].heapIndex = i
	q[j].heapIndex = j
}

func (q *taskQueue) Push(x any) {
	t := x.(*task)
	t.heapIndex = len(*q)
	*q = append(*q, t)
}

func (q *taskQueue) Pop() any {
	old := *q
	n := len(old)
	t := old[n-1]
	old[n-1] = nil
	t.heapIndex = -1
	*q = old[:n-1]
	return t
}
