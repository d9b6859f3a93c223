package storage

import (
	"sync"
	"time"

	"github.com/cockroachdb/pebble"
)

// syncInterval is the interval between background WAL syncs.
const syncInterval = 100 * time.Millisecond

// KeyValue is one pair of a batch write.
type KeyValue struct {
	Key   []byte
	Value []byte
}

// Storage is a key-value store backed by Pebble. Writes go in with
// NoSync; a background goroutine syncs the WAL periodically, so a
// crash can lose at most the last sync interval of writes.
type Storage struct {
	db   *pebble.DB
	stop chan struct{}
	wg   sync.WaitGroup
}

// New opens (or creates) a store at the given path and starts the
// WAL sync loop.
func New(path string) (*Storage, error) {
	opts := &pebble.Options{
		Cache:                       pebble.NewCache(32 << 20),
		MemTableSize:                16 << 20,
		MemTableStopWritesThreshold: 2,
	}

	db, err := pebble.Open(path, opts)
	if err != nil {
		return nil, err
	}

	s := &Storage{
		db:   db,
		stop: make(chan struct{}),
	}

	s.wg.Add(1)
	go s.syncLoop()

	return s, nil
}

// Get returns the value for key, or nil if the key does not exist.
func (s *Storage) Get(key []byte) ([]byte, error) {
	value, closer, err := s.db.Get(key)
	if err == pebble.ErrNotFound {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	defer closer.Close()

	// The slice is only valid until closer.Close().
	result := make([]byte, len(value))
	copy(result, value)

	return result, nil
}

// Set stores a key-value pair.
func (s *Storage) Set(key, value []byte) error {
	return s.db.Set(key, value, pebble.NoSync)
}

// Delete removes a key.
func (s *Storage) Delete(key []byte) error {
	return s.db.Delete(key, pebble.NoSync)
}

// SetBatch writes multiple pairs atomically: either all land or none.
func (s *Storage) SetBatch(pairs []KeyValue) error {
	return s.Batch(pairs, nil)
}

// Batch applies sets and deletes in one atomic write.
func (s *Storage) Batch(sets []KeyValue, deletes [][]byte) error {
	batch := s.db.NewBatch()
	defer batch.Close()

	for _, kv := range sets {
		if err := batch.Set(kv.Key, kv.Value, nil); err != nil {
			return err
		}
	}

	for _, key := range deletes {
		if err := batch.Delete(key, nil); err != nil {
			return err
		}
	}

	return batch.Commit(pebble.NoSync)
}

// Iterate calls fn for every pair in lexicographic key order.
// Returning an error from fn stops the iteration.
func (s *Storage) Iterate(fn func(key, value []byte) error) error {
	iter, err := s.db.NewIter(nil)
	if err != nil {
		return err
	}
	defer iter.Close()

	for iter.First(); iter.Valid(); iter.Next() {
		value, err := iter.ValueAndErr()
		if err != nil {
			return err
		}

		if err := fn(iter.Key(), value); err != nil {
			return err
		}
	}

	return iter.Error()
}

// IteratePrefix calls fn for every pair whose key has the prefix.
func (s *Storage) IteratePrefix(prefix []byte, fn func(key, value []byte) error) error {
	iter, err := s.db.NewIter(&pebble.IterOptions{
		LowerBound: prefix,
		UpperBound: prefixUpperBound(prefix),
	})
	if err != nil {
		return err
	}
	defer iter.Close()

	for iter.First(); iter.Valid(); iter.Next() {
		value, err := iter.ValueAndErr()
		if err != nil {
			return err
		}

		if err := fn(iter.Key(), value); err != nil {
			return err
		}
	}

	return iter.Error()
}

// prefixUpperBound returns the exclusive upper bound for a prefix
// scan, or nil (unbounded) if the prefix is all 0xFF.
func prefixUpperBound(prefix []byte) []byte {
	upper := make([]byte, len(prefix))
	copy(upper, prefix)

	for i := len(upper) - 1; i >= 0; i-- {
		upper[i]++
		if upper[i] != 0 {
			return upper
		}
	}

	return nil
}

// Close stops the sync loop, syncs one final time, and closes the
// database.
func (s *Storage) Close() error {
	close(s.stop)
	s.wg.Wait()

	if err := s.sync(); err != nil {
		return err
	}

	return s.db.Close()
}

// syncLoop syncs the WAL until Close.
func (s *Storage) syncLoop() {
	defer s.wg.Done()

	ticker := time.NewTicker(syncInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ticker.C:
			_ = s.sync()
		case <-s.stop:
			return
		}
	}
}

// sync forces a WAL sync to disk.
func (s *Storage) sync() error {
	return s.db.LogData(nil, pebble.Sync)
}
