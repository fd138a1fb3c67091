package service

import (
	"fmt"
	"strings"
	"sync"
)

// InFlightGuard drops duplicate triggers of an operation that is still running.
type InFlightGuard struct {
	mu     sync.Mutex
	active map[string]struct{}
}

// NewInFlightGuard returns an empty guard.
func NewInFlightGuard() *InFlightGuard {
	return &InFlightGuard{active: make(map[string]struct{})}
}

// InFlightKey builds the guard key for op on a path.
func InFlightKey(op, org, repo, path string) string {
	return fmt.Sprintf("%s:%s/%s:%s", op, strings.ToLower(org), strings.ToLower(repo), path)
}

// TryAcquire marks every key busy and returns a release func. It returns false
// and marks nothing when any key is already busy.
func (g *InFlightGuard) TryAcquire(keys ...string) (func(), bool) {
	g.mu.Lock()
	defer g.mu.Unlock()
	for _, key := range keys {
		if _, busy := g.active[key]; busy {
			return func() {}, false
		}
	}
	for _, key := range keys {
		g.active[key] = struct{}{}
	}
	var once sync.Once
	return func() {
		once.Do(func() {
			g.mu.Lock()
			defer g.mu.Unlock()
			for _, key := range keys {
				delete(g.active, key)
			}
		})
	}, true
}

// Busy reports whether key is held.
func (g *InFlightGuard) Busy(key string) bool {
	g.mu.Lock()
	defer g.mu.Unlock()
	_, busy := g.active[key]
	return busy
}
