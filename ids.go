package oneshot

import "sync"

// IDSource hands out SUBSCRIBE packet identifiers per client.
// Identifiers must be non-zero, and should not repeat before wrapping.
type IDSource interface {
	NextID(clientID string) (uint16, error)
}

// memIDs counts from 1 to 65535 and wraps back to 1, per client.
type memIDs struct {
	sync.Mutex
	next map[string]uint16
}

func (m *memIDs) NextID(clientID string) (uint16, error) {
	m.Lock()
	defer m.Unlock()

	if m.next == nil {
		m.next = make(map[string]uint16, 1)
	}

	pID := m.next[clientID]
	if pID == 0 {
		pID = 1
	}

	newID := pID + 1
	if newID == 0 {
		newID = 1
	}
	m.next[clientID] = newID

	return pID, nil
}
