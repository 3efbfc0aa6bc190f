package registry

import (
	"context"
	"sync"
)

// MemoryRegistry is a process-local registry for single-instance runs and
// tests. Sessions on other instances cannot be resolved through it.
type MemoryRegistry struct {
	mu    sync.RWMutex
	conns map[string]string
}

func NewMemoryRegistry() *MemoryRegistry {
	return &MemoryRegistry{conns: make(map[string]string)}
}

func (r *MemoryRegistry) Persist(ctx context.Context, sessionID, identity, serverID string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.conns[connKey(sessionID, serverID)] = identity
}

func (r *MemoryRegistry) Remove(ctx context.Context, sessionID, serverID string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	delete(r.conns, connKey(sessionID, serverID))
}

func (r *MemoryRegistry) Resolve(ctx context.Context, sessionID, serverID string) string {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.conns[connKey(sessionID, serverID)]
}
