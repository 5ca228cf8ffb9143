// Section types owned by other packages.
//
// DESIGN: Each package defines and validates its own config struct next to
// the code that reads it. This file re-exports those types for the root
// Config so callers only import config.
package config

import (
	"github.com/askcos/prediction-gateway/internal/adapters"
	"github.com/askcos/prediction-gateway/internal/dispatch"
	"github.com/askcos/prediction-gateway/internal/store"
)

// =============================================================================
// RE-EXPORTS
// =============================================================================

// StoreConfig is an alias for store.Config.
type StoreConfig = store.Config

// BrokerConfig is an alias for dispatch.Config.
type BrokerConfig = dispatch.Config

// WorkersConfig is an alias for dispatch.WorkersConfig.
type WorkersConfig = dispatch.WorkersConfig

// BackendConfig is an alias for adapters.BackendConfig.
type BackendConfig = adapters.BackendConfig

// GenericQueue is the queue shared by adapters without a dedicated one.
const GenericQueue = dispatch.GenericQueue

// =============================================================================
// BACKENDS
// =============================================================================

// BackendsConfig maps adapter names to backend settings.
type BackendsConfig map[string]BackendConfig

// Validate checks every backend entry and rejects unknown adapter names.
func (b BackendsConfig) Validate() error {
	return adapters.ValidateBackends(b)
}

// Enabled returns the names of the enabled backends, in registration order.
func (b BackendsConfig) Enabled() []string {
	var names []string
	for _, name := range adapters.KnownBackends() {
		if cfg, ok := b[name]; ok && cfg.Enabled {
			names = append(names, name)
		}
	}
	return names
}

// Queues returns the dedicated queues of the enabled backends.
func (b BackendsConfig) Queues() []string {
	return adapters.Queues(b)
}
