// Package config is the sectioned, file-backed configuration for browsermcp.
package config

import (
	"sync"
)

var (
	// globalManager is the singleton configuration manager instance
	globalManager *Manager
	globalMu      sync.Mutex
)

// NewDefaultManager builds a manager over store with every browsermcp
// section registered, without loading it.
func NewDefaultManager(store Store) (*Manager, error) {
	manager := NewManager(store)
	for _, section := range []Section{
		NewServerSection(),
		NewPortReclaimSection(),
		NewNavigationSection(),
	} {
		if err := manager.RegisterSection(section); err != nil {
			return nil, err
		}
	}
	return manager, nil
}

// Initialize loads the configuration at configPath (DefaultPath when empty)
// into the global manager. Call it once at startup.
func Initialize(configPath string) error {
	globalMu.Lock()
	defer globalMu.Unlock()

	store, err := NewFileStore(configPath)
	if err != nil {
		return err
	}

	manager, err := NewDefaultManager(store)
	if err != nil {
		return err
	}

	if err := manager.LoadAll(); err != nil {
		return err
	}

	globalManager = manager
	return nil
}

// Global returns the global configuration manager.
// Panics if Initialize has not been called.
func Global() *Manager {
	globalMu.Lock()
	defer globalMu.Unlock()

	if globalManager == nil {
		panic("config not initialized: call config.Initialize first")
	}

	return globalManager
}

// IsInitialized returns true if the global configuration has been initialized.
func IsInitialized() bool {
	globalMu.Lock()
	defer globalMu.Unlock()
	return globalManager != nil
}

// GetServer returns the server section, or nil before Initialize.
func GetServer() *ServerSection {
	return globalSection[*ServerSection](SectionIDServer)
}

// GetPortReclaim returns the port reclaim section, or nil before Initialize.
func GetPortReclaim() *PortReclaimSection {
	return globalSection[*PortReclaimSection](SectionIDPortReclaim)
}

// GetNavigation returns the navigation section, or nil before Initialize.
func GetNavigation() *NavigationSection {
	return globalSection[*NavigationSection](SectionIDNavigation)
}

func globalSection[T Section](id string) T {
	var zero T
	if !IsInitialized() {
		return zero
	}

	section, ok := Global().GetSection(id)
	if !ok {
		return zero
	}

	typed, ok := section.(T)
	if !ok {
		return zero
	}
	return typed
}
