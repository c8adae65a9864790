package ai

import (
	"fmt"
	"sort"
	"sync"

	"github.com/kolosalai/kolosal-agentd/core"
)

var (
	registryMu sync.RWMutex
	registry   = make(map[string]ProviderFactory)
)

// Register adds a provider factory under its own name. Called from each
// provider package's init; a duplicate name is an error so two packages
// can't silently shadow each other.
func Register(factory ProviderFactory) error {
	if factory == nil {
		return fmt.Errorf("ai: cannot register nil provider factory")
	}
	name := factory.Name()
	if name == "" {
		return fmt.Errorf("ai: provider factory has empty name")
	}

	registryMu.Lock()
	defer registryMu.Unlock()
	if _, exists := registry[name]; exists {
		return fmt.Errorf("ai: provider %q already registered", name)
	}
	registry[name] = factory
	return nil
}

// GetProvider looks a factory up by name.
func GetProvider(name string) (ProviderFactory, bool) {
	registryMu.RLock()
	defer registryMu.RUnlock()
	f, ok := registry[name]
	return f, ok
}

// ListProviders returns every registered provider name, sorted.
func ListProviders() []string {
	registryMu.RLock()
	defer registryMu.RUnlock()
	names := make([]string, 0, len(registry))
	for name := range registry {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// detectBestProvider returns the available provider with the highest
// detected priority, or an error naming what was registered when none is
// usable.
func detectBestProvider(logger core.Logger) (string, error) {
	registryMu.RLock()
	defer registryMu.RUnlock()

	best := ""
	bestPriority := -1
	for name, f := range registry {
		priority, available := f.DetectEnvironment()
		if !available {
			continue
		}
		if priority > bestPriority {
			best = name
			bestPriority = priority
		}
	}
	if best == "" {
		registered := make([]string, 0, len(registry))
		for name := range registry {
			registered = append(registered, name)
		}
		sort.Strings(registered)
		return "", fmt.Errorf("ai: no provider detected an available environment (registered: %v)", registered)
	}

	if logger != nil {
		logger.Debug("ai provider auto-detected", map[string]interface{}{
			"provider": best,
			"priority": bestPriority,
		})
	}
	return best, nil
}
