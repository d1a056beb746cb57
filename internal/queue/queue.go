package queue

import (
	"sync"
	"sync/atomic"
)

// Basic is a FIFO of received messages, drained by one dispatcher.
type Basic struct {
	h, t *Item
	n    int
	sync.Mutex

	trig   *sync.Cond
	killed int32
}

func (q *Basic) Init() {
	q.trig = sync.NewCond(q)
}

func (q *Basic) Add(i *Item) {
	q.Lock()
	if q.h == nil {
		q.h = i
		q.t = i
	} else {
		q.t.next = i
		q.t = i
	}
	q.n++
	q.trig.Signal()
	q.Unlock()
}

// Len returns the number of items not yet dispatched.
func (q *Basic) Len() int {
	q.Lock()
	defer q.Unlock()
	return q.n
}

// Kill stops the dispatcher once it is done with the current item. Queued items are dropped.
func (q *Basic) Kill() {
	atomic.StoreInt32(&q.killed, 1)
	q.Lock()
	q.trig.Broadcast()
	q.Unlock()
}

// StartDispatcher will continuously dispatch queue items and remove them,
// until the queue is killed or d returns an error.
// Items are returned to the pool after d.
func (q *Basic) StartDispatcher(d func(*Item) error, wg *sync.WaitGroup) {
	defer func() {
		if wg != nil {
			wg.Done()
		}
	}()
	for {
		q.Lock()
		for q.h == nil && atomic.LoadInt32(&q.killed) == 0 {
			q.trig.Wait()
		}
		if atomic.LoadInt32(&q.killed) == 1 {
			q.Unlock()
			return
		}

		i := q.h
		q.h = i.next
		if q.h == nil {
			q.t = nil
		}
		i.next = nil // avoid memory leakage
		q.n--
		q.Unlock()

		err := d(i)
		ReturnItem(i)
		if err != nil {
			return
		}
	}
}
