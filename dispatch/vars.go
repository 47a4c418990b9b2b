package dispatch

import "sync"

// Memory is the process-wide variable memory (§4.7, §5): a single
// namespaced map guarded by one lock. varset/varget prefix name with
// the caller module's identifier except when raw is requested.
type Memory struct {
	mu   sync.Mutex
	data map[string]string
}

// NewMemory returns an empty variable store.
func NewMemory() *Memory {
	return &Memory{data: make(map[string]string)}
}

func namespacedKey(module, name string, raw bool) string {
	if raw {
		return name
	}
	return module + "\x00" + name
}

// Get implements Vars.
func (m *Memory) Get(module, name string, raw bool) (string, bool) {
	m.mu.Lock()
	defer m.mu.Unlock()
	v, ok := m.data[namespacedKey(module, name, raw)]
	return v, ok
}

// GetOr implements Vars.
func (m *Memory) GetOr(module, name, def string, raw bool) string {
	if v, ok := m.Get(module, name, raw); ok {
		return v
	}
	return def
}

// Set implements Vars.
func (m *Memory) Set(module, name, value string, raw bool) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.data[namespacedKey(module, name, raw)] = value
}
