package gateway

import "sync"

// IDTable correlates local order ids with broker-assigned sysids for active
// orders only. Entries are written from the broker delivery goroutine (order
// pushes, query callbacks) and read from whichever goroutine issues
// cancellations, so every access takes the table lock.
type IDTable struct {
	mu sync.Mutex
	m  map[string]string // local id → broker sysid
}

// NewIDTable creates an empty table.
func NewIDTable() *IDTable {
	return &IDTable{m: make(map[string]string)}
}

// RecordActive stores or revises the sysid for a non-terminal order. Broker
// ids can be assigned and revised mid-flight; the latest push wins.
func (t *IDTable) RecordActive(localID, sysID string) {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.m[localID] = sysID
}

// Resolve returns the sysid for a local id. A miss is a normal outcome: the
// order is either not yet acknowledged or already terminal.
func (t *IDTable) Resolve(localID string) (string, bool) {
	t.mu.Lock()
	defer t.mu.Unlock()
	sysID, ok := t.m[localID]
	return sysID, ok
}

// Remove drops the entry when an order goes terminal. Removing an absent
// entry is a no-op.
func (t *IDTable) Remove(localID string) {
	t.mu.Lock()
	defer t.mu.Unlock()
	delete(t.m, localID)
}

// Len returns the number of active entries.
func (t *IDTable) Len() int {
	t.mu.Lock()
	defer t.mu.Unlock()
	return len(t.m)
}

// Clear drops all entries. Called on full disconnect.
func (t *IDTable) Clear() {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.m = make(map[string]string)
}
