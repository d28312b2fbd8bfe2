package scheduler

import "container/heap"

type queueItem struct {
	task Task
	seq  uint64
}

// readyQueue orders tasks by priority, highest first, then by insertion order
type readyQueue []*queueItem

func (q readyQueue) Len() int { return len(q) }

func (q readyQueue) Less(i, j int) bool {
	pi, pj := q[i].task.Priority(), q[j].task.Priority()
	if pi != pj {
		return pi > pj
	}
	return q[i].seq < q[j].seq
}

func (q readyQueue) Swap(i, j int) { q[i], q[j] = q[j], q[i] }

func (q *readyQueue) Push(x any) {
	*q = append(*q, x.(*queueItem))
}

func (q *readyQueue) Pop() any {
	old := *q
	n := len(old)
	item := old[n-1]
	old[n-1] = nil
	*q = old[:n-1]
	return item
}

// remove deletes task from the queue and reports whether it was present
func (q *readyQueue) remove(task Task) bool {
	for i, item := range *q {
		if item.task == task {
			heap.Remove(q, i)
			return true
		}
	}
	return false
}
