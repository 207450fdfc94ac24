package backend

import (
	"fmt"
	"sort"
	"sync"

	"github.com/gogpu/gfxcore/gpucore"
)

// Backend name constants.
const (
	// BackendVulkan is the name of the Vulkan backend (vulkan-go).
	BackendVulkan = "vulkan"
	// BackendNative is the name of the Pure Go backend on the gogpu/wgpu HAL.
	BackendNative = "native"
	// BackendSoftware is the name of the in-memory CPU backend.
	BackendSoftware = "software"
)

// Factory opens a device.
type Factory func(opts Options) (gpucore.Device, error)

// registry holds registered backends.
var (
	registryMu sync.RWMutex
	backends   = make(map[string]Factory)
	// Priority order for backend selection (first that opens wins).
	// Vulkan > Native > Software.
	backendPriority = []string{BackendVulkan, BackendNative, BackendSoftware}
)

// Register registers a backend factory with the given name.
// This is typically called from init() functions in backend packages.
// If a backend with the same name is already registered, it will be replaced.
func Register(name string, factory Factory) {
	registryMu.Lock()
	defer registryMu.Unlock()
	backends[name] = factory
}

// Unregister removes a backend from the registry.
// This is useful for testing.
func Unregister(name string) {
	registryMu.Lock()
	defer registryMu.Unlock()
	delete(backends, name)
}

// Available returns the registered backend names in sorted order.
func Available() []string {
	registryMu.RLock()
	defer registryMu.RUnlock()

	names := make([]string, 0, len(backends))
	for name := range backends {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// IsRegistered checks if a backend with the given name is registered.
func IsRegistered(name string) bool {
	registryMu.RLock()
	defer registryMu.RUnlock()
	_, ok := backends[name]
	return ok
}

// Open opens a device on the named backend.
func Open(name string, opts Options) (gpucore.Device, error) {
	registryMu.RLock()
	factory, ok := backends[name]
	registryMu.RUnlock()

	if !ok {
		return nil, fmt.Errorf("%w: %q is not registered", ErrBackendNotAvailable, name)
	}
	dev, err := factory(opts)
	if err != nil {
		return nil, fmt.Errorf("backend %s: %w", name, err)
	}
	return dev, nil
}

// Default opens a device on the best available backend.
// Priority order: vulkan > native > software, then any other registered
// backend in name order. A backend that fails to open is logged and skipped.
func Default(opts Options) (gpucore.Device, error) {
	log := opts.Log()

	tried := make(map[string]bool)
	order := make([]string, 0, len(backendPriority))
	order = append(order, backendPriority...)
	order = append(order, Available()...)

	var lastErr error
	for _, name := range order {
		if tried[name] || !IsRegistered(name) {
			continue
		}
		tried[name] = true
		dev, err := Open(name, opts)
		if err != nil {
			log.Debug("backend: skipping", "backend", name, "err", err)
			lastErr = err
			continue
		}
		log.Info("backend: opened device", "backend", name, "device", dev.Info().Name)
		return dev, nil
	}
	if lastErr != nil {
		return nil, lastErr
	}
	return nil, ErrBackendNotAvailable
}

// MustDefault opens the default backend or panics.
func MustDefault(opts Options) gpucore.Device {
	dev, err := Default(opts)
	if err != nil {
		panic(err)
	}
	return dev
}
