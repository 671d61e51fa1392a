package state

import (
	"errors"
	"sync"

	"splitescrow/storage"
)

// Journal is a copy-on-write overlay over a database. Writes stay in memory
// until Commit flushes them in one batch; Discard drops them.
type Journal struct {
	mu    sync.Mutex
	db    storage.Database
	dirty map[string][]byte
	order []string
}

// NewJournal opens an empty overlay over db.
func NewJournal(db storage.Database) *Journal {
	return &Journal{db: db, dirty: make(map[string][]byte)}
}

// Get returns the value visible through the overlay. Missing keys yield a nil
// slice and no error.
func (j *Journal) Get(key []byte) ([]byte, error) {
	j.mu.Lock()
	value, ok := j.dirty[string(key)]
	j.mu.Unlock()
	if ok {
		return append([]byte(nil), value...), nil
	}
	value, err := j.db.Get(key)
	if errors.Is(err, storage.ErrNotFound) {
		return nil, nil
	}
	return value, err
}

// Update stages value under key.
func (j *Journal) Update(key, value []byte) error {
	j.mu.Lock()
	defer j.mu.Unlock()
	k := string(key)
	if _, ok := j.dirty[k]; !ok {
		j.order = append(j.order, k)
	}
	j.dirty[k] = append([]byte(nil), value...)
	return nil
}

// Len returns the number of staged keys.
func (j *Journal) Len() int {
	j.mu.Lock()
	defer j.mu.Unlock()
	return len(j.order)
}

// Commit writes every staged key atomically and empties the overlay.
func (j *Journal) Commit() error {
	j.mu.Lock()
	defer j.mu.Unlock()
	if len(j.order) == 0 {
		return nil
	}
	batch := j.db.NewBatch()
	for _, k := range j.order {
		batch.Put([]byte(k), j.dirty[k])
	}
	if err := batch.Write(); err != nil {
		return err
	}
	j.reset()
	return nil
}

// Discard drops every staged write.
func (j *Journal) Discard() {
	j.mu.Lock()
	defer j.mu.Unlock()
	j.reset()
}

func (j *Journal) reset() {
	j.dirty = make(map[string][]byte)
	j.order = nil
}
