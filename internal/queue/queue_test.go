package queue

import (
	"errors"
	"strconv"
	"sync"
	"testing"
	"time"

	"github.com/RoanBrand/oneshot/internal/model"
)

func TestDispatchOrder(t *testing.T) {
	t.Parallel()
	var q Basic
	q.Init()

	got := make(chan string, 100)
	var wg sync.WaitGroup
	wg.Add(1)
	go q.StartDispatcher(func(i *Item) error {
		got <- string(i.M.Payload)
		return nil
	}, &wg)

	for n := 0; n < 100; n++ {
		q.Add(GetItem(model.Message{Topic: "sensors/temp", Payload: []byte(strconv.Itoa(n))}))
	}

	for n := 0; n < 100; n++ {
		select {
		case p := <-got:
			if p != strconv.Itoa(n) {
				t.Fatalf("got %s, expected %d", p, n)
			}
		case <-time.After(5 * time.Second):
			t.Fatal("timed out waiting for dispatch")
		}
	}

	q.Kill()
	wg.Wait()
	if q.Len() != 0 {
		t.Fatal("queue not drained:", q.Len())
	}
}

func TestKillIdleDispatcher(t *testing.T) {
	t.Parallel()
	var q Basic
	q.Init()

	var wg sync.WaitGroup
	wg.Add(1)
	go q.StartDispatcher(func(*Item) error { return nil }, &wg)

	time.Sleep(10 * time.Millisecond)
	q.Kill()

	done := make(chan struct{})
	go func() {
		wg.Wait()
		close(done)
	}()
	select {
	case <-done:
	case <-time.After(5 * time.Second):
		t.Fatal("dispatcher did not stop")
	}
}

func TestDispatcherStopsOnError(t *testing.T) {
	t.Parallel()
	var q Basic
	q.Init()

	q.Add(GetItem(model.Message{Topic: "a"}))
	q.Add(GetItem(model.Message{Topic: "b"}))

	var calls int
	var wg sync.WaitGroup
	wg.Add(1)
	q.StartDispatcher(func(*Item) error {
		calls++
		return errors.New("relay failed")
	}, &wg)
	wg.Wait()

	if calls != 1 || q.Len() != 1 {
		t.Fatalf("dispatched %d, %d left", calls, q.Len())
	}
}
