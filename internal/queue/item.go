package queue

import (
	"sync"

	"github.com/RoanBrand/oneshot/internal/model"
)

// Item is a received message waiting to be relayed.
type Item struct {
	M model.Message

	next *Item
}

var pool = sync.Pool{}

func GetItem(m model.Message) (i *Item) {
	if pi := pool.Get(); pi == nil {
		i = new(Item)
	} else {
		i = pi.(*Item)
	}

	i.M = m
	return i
}

func ReturnItem(i *Item) {
	i.M, i.next = model.Message{}, nil
	pool.Put(i)
}
