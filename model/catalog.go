package model

import (
	"fmt"
	"slices"
	"strings"
	"sync"
)

// Catalog maps model keys to their factories. It is filled by the host
// application before the registry is initialized.
type Catalog struct {
	factories map[Key]Factory
	mu        sync.RWMutex
}

// NewCatalog creates an empty catalog.
func NewCatalog() *Catalog {
	return &Catalog{
		factories: make(map[Key]Factory),
	}
}

// Register adds a factory under key.
func (c *Catalog) Register(key Key, factory Factory) error {
	if key == "" {
		return ErrKeyEmpty
	}
	if strings.TrimSpace(string(key)) != string(key) || strings.Contains(string(key), ",") {
		return fmt.Errorf("%w: %q", ErrKeyMalformed, key)
	}
	if factory == nil {
		return fmt.Errorf("%w: nil factory for %q", ErrInvalidModel, key)
	}

	c.mu.Lock()
	defer c.mu.Unlock()

	if _, exists := c.factories[key]; exists {
		return fmt.Errorf("%w: %s", ErrAlreadyRegistered, key)
	}

	c.factories[key] = factory
	return nil
}

// MustRegister is like Register but panics on error. It is meant for
// package-level catalog setup.
func (c *Catalog) MustRegister(key Key, factory Factory) {
	if err := c.Register(key, factory); err != nil {
		panic(err)
	}
}

// Provide registers a typed constructor under key.
func Provide[T Model](c *Catalog, key Key, ctor func() T) error {
	if ctor == nil {
		return fmt.Errorf("%w: nil constructor for %q", ErrInvalidModel, key)
	}

	return c.Register(key, func() (Model, error) {
		return ctor(), nil
	})
}

// Lookup returns the factory registered under key.
func (c *Catalog) Lookup(key Key) (Factory, bool) {
	c.mu.RLock()
	defer c.mu.RUnlock()

	f, ok := c.factories[key]
	return f, ok
}

// Keys returns the registered keys in lexical order.
func (c *Catalog) Keys() []Key {
	c.mu.RLock()
	defer c.mu.RUnlock()

	keys := make([]Key, 0, len(c.factories))
	for k := range c.factories {
		keys = append(keys, k)
	}
	slices.Sort(keys)

	return keys
}

// Len returns the number of registered factories.
func (c *Catalog) Len() int {
	c.mu.RLock()
	defer c.mu.RUnlock()

	return len(c.factories)
}
