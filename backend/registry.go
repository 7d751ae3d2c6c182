package backend

import (
	"sync"
)

// Factory creates a new backend instance. A factory may return nil to
// signal that its backend is compiled out (the legacy scaler does
// this).
type Factory func() Backend

var (
	registryMu sync.RWMutex
	backends   = make(map[string]Factory)
	// Priority order for fullscreen correction (first supported wins).
	// The plane backend sits outside this list: it corrects a hardware
	// overlay, not the rendered frame, and is attached explicitly.
	priority = []string{BackendVulkanCompute, BackendGLESCompute, BackendGLESFragment}
)

// Register registers a backend factory under the given name.
// Called from init() functions in the backend packages. Registering a
// name twice replaces the earlier factory.
func Register(name string, factory Factory) {
	registryMu.Lock()
	defer registryMu.Unlock()
	backends[name] = factory
}

// Unregister removes a backend from the registry. Useful in tests.
func Unregister(name string) {
	registryMu.Lock()
	defer registryMu.Unlock()
	delete(backends, name)
}

// Available returns the registered backend names.
func Available() []string {
	registryMu.RLock()
	defer registryMu.RUnlock()

	names := make([]string, 0, len(backends))
	for name := range backends {
		names = append(names, name)
	}
	return names
}

// IsRegistered reports whether a backend with the given name exists.
func IsRegistered(name string) bool {
	registryMu.RLock()
	defer registryMu.RUnlock()
	_, ok := backends[name]
	return ok
}

// Get returns a new backend instance by name, or nil if the name is not
// registered or its factory declines.
func Get(name string) Backend {
	registryMu.RLock()
	factory, ok := backends[name]
	registryMu.RUnlock()
	if !ok {
		return nil
	}
	return factory()
}

// Priority returns the fullscreen selection order.
func Priority() []string {
	out := make([]string, len(priority))
	copy(out, priority)
	return out
}
