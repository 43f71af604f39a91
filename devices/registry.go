package devices

import (
	"sync"

	lru "github.com/hashicorp/golang-lru/v2"
	"github.com/mobile-next/adbctl/utils"
)

// controllers kept open at once; the least recently used is closed first
const defaultRegistrySize = 16

// DeviceRegistry caches Controllers by device ID so repeated commands
// skip renegotiation, and closes them on eviction or cleanup.
type DeviceRegistry struct {
	mu          sync.Mutex
	controllers *lru.Cache[string, *Controller]
}

// NewDeviceRegistry creates a new device registry instance
func NewDeviceRegistry() *DeviceRegistry {
	return NewDeviceRegistrySize(defaultRegistrySize)
}

func NewDeviceRegistrySize(size int) *DeviceRegistry {
	cache, err := lru.NewWithEvict(size, func(serial string, c *Controller) {
		if err := c.Close(); err != nil {
			utils.Verbose("Error closing controller for %s: %v", serial, err)
		}
	})
	if err != nil {
		// only for size <= 0
		panic(err)
	}
	return &DeviceRegistry{controllers: cache}
}

func (r *DeviceRegistry) Get(serial string) (*Controller, bool) {
	return r.controllers.Get(serial)
}

// GetOrCreate returns the cached controller for serial or registers a new
// one from create.
func (r *DeviceRegistry) GetOrCreate(serial string, create func() (*Controller, error)) (*Controller, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	if c, ok := r.controllers.Get(serial); ok {
		return c, nil
	}
	c, err := create()
	if err != nil {
		return nil, err
	}
	r.controllers.Add(serial, c)
	return c, nil
}

// Remove closes and forgets the controller for serial, if any.
func (r *DeviceRegistry) Remove(serial string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.controllers.Remove(serial)
}

func (r *DeviceRegistry) Len() int {
	return r.controllers.Len()
}

// CleanupAll gracefully closes all registered controllers
func (r *DeviceRegistry) CleanupAll() {
	r.mu.Lock()
	defer r.mu.Unlock()

	if r.controllers.Len() == 0 {
		return
	}
	r.controllers.Purge()
}
