// Package store implements the two shared key-value stores handed to
// modules (§4.7, §5): an in-memory map and an on-disk store backed by
// sqlite3 or postgres. It is grounded on the teacher's pluggable
// Open(driver, source) factory (vigoux-soju/database/database.go) and
// schema/migration style (db_sqlite.go), generalized from soju's
// relational bouncer schema to a flat key-value table, and
// on msgstore/msgstore.go's Store interface shape, repurposed here as
// the on-disk KV contract.
package store

import "sync"

// Memory is the in-memory key-value store handed to modules. Unlike
// dispatch.Memory (the per-module variable namespace), this store has
// no namespacing: any module may read any key, by design, to allow data
// sharing between cooperating modules.
type Memory struct {
	mu   sync.RWMutex
	data map[string]string
}

// NewMemory returns an empty in-memory store.
func NewMemory() *Memory {
	return &Memory{data: make(map[string]string)}
}

func (m *Memory) Get(key string) (string, bool, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	v, ok := m.data[key]
	return v, ok, nil
}

func (m *Memory) Set(key, value string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.data[key] = value
	return nil
}

func (m *Memory) Delete(key string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	delete(m.data, key)
	return nil
}
