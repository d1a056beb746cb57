package store

import (
	"encoding/binary"

	"github.com/dgraph-io/badger"
	"github.com/pkg/errors"
)

// IDs keeps the next packet identifier of every client on disk.
type IDs struct {
	db *badger.DB
}

func Open(dir string) (*IDs, error) {
	opts := badger.DefaultOptions
	opts.Dir, opts.ValueDir = dir, dir
	db, err := badger.Open(opts)
	if err != nil {
		return nil, errors.Wrap(err, "unable to open packet identifier store")
	}

	return &IDs{db: db}, nil
}

func (s *IDs) Close() error {
	return s.db.Close()
}

func idKey(cID string) []byte {
	key := make([]byte, 0, 4+len(cID))
	key = append(key, 'c')
	key = append(key, cID...)
	key = append(key, "pID"...)
	return key
}

// NextID returns the packet identifier to use for client cID and increments the stored one.
// Identifiers start at 1 and wrap from 65535 back to 1.
func (s *IDs) NextID(cID string) (uint16, error) {
	for {
		id, err := s.nextID(idKey(cID))
		if err == badger.ErrConflict {
			continue // concurrent update of the same client
		}
		return id, err
	}
}

func (s *IDs) nextID(key []byte) (uint16, error) {
	var pID uint16
	err := s.db.Update(func(txn *badger.Txn) error {
		item, err := txn.Get(key)
		if err != nil {
			if err != badger.ErrKeyNotFound {
				return err
			}
			pID = 1
		} else {
			val, err := item.Value()
			if err != nil {
				return err
			}

			pID = binary.BigEndian.Uint16(val)
		}

		newID := pID + 1
		if newID == 0 {
			newID = 1
		}
		return txn.Set(key, []byte{byte(newID >> 8), byte(newID)})
	})

	return pID, err
}

// Reset forgets the stored identifier of client cID.
func (s *IDs) Reset(cID string) error {
	return s.db.Update(func(txn *badger.Txn) error {
		return txn.Delete(idKey(cID))
	})
}
