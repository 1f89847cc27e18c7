package transport

import "container/heap"

type scheduled struct {
	trig Trigger
	seq  uint64
	loop *Loop // nil for one-shots
}

// triggerQueue orders pending triggers by frame, then by insertion order.
type triggerQueue []*scheduled

func (q triggerQueue) Len() int { return len(q) }

func (q triggerQueue) Less(i, j int) bool {
	if q[i].trig.Frame != q[j].trig.Frame {
		return q[i].trig.Frame < q[j].trig.Frame
	}
	return q[i].seq < q[j].seq
}

func (q triggerQueue) Swap(i, j int) { q[i], q[j] = q[j], q[i] }

func (q *triggerQueue) Push(x any) { *q = append(*q, x.(*scheduled)) }

func (q *triggerQueue) Pop() any {
	old := *q
	n := len(old)
	item := old[n-1]
	old[n-1] = nil
	*q = old[:n-1]
	return item
}

func (q triggerQueue) peek() *scheduled {
	if len(q) == 0 {
		return nil
	}
	return q[0]
}

// dropLoop removes every pending trigger owned by l.
func (q *triggerQueue) dropLoop(l *Loop) {
	kept := (*q)[:0]
	for _, s := range *q {
		if s.loop != l {
			kept = append(kept, s)
		}
	}
	for i := len(kept); i < len(*q); i++ {
		(*q)[i] = nil
	}
	*q = kept
	heap.Init(q)
}
