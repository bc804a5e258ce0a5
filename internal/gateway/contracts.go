package gateway

import (
	"sync"

	"xtgate/internal/domain"
)

// ContractCache is the registry of canonical symbol → contract metadata.
// It is fully repopulated on every successful connect and consulted by the
// order path and both normalizers. Lookups never create entries.
type ContractCache struct {
	mu sync.RWMutex
	m  map[string]*domain.Contract
}

// NewContractCache creates an empty cache.
func NewContractCache() *ContractCache {
	return &ContractCache{m: make(map[string]*domain.Contract)}
}

// Add inserts a contract. Entries are immutable within a session: a second
// insert for the same key is ignored and Add returns false.
func (c *ContractCache) Add(contract *domain.Contract) bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	key := contract.Key()
	if _, exists := c.m[key]; exists {
		return false
	}
	c.m[key] = contract
	return true
}

// Get returns the contract for a (symbol, exchange) pair.
func (c *ContractCache) Get(symbol string, ex domain.Exchange) (*domain.Contract, bool) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	contract, ok := c.m[domain.SymbolKey(symbol, ex)]
	return contract, ok
}

// Len returns the number of cached contracts.
func (c *ContractCache) Len() int {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return len(c.m)
}

// Clear empties the cache. Called on full disconnect so a reconnect never
// observes a partially stale population.
func (c *ContractCache) Clear() {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.m = make(map[string]*domain.Contract)
}
