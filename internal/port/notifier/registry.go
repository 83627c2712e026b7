package notifier

import (
	"errors"
	"fmt"
	"slices"
	"strconv"
	"sync"
)

// ErrUnknownProvider is returned by New for a name nobody registered.
var ErrUnknownProvider = errors.New("notifier: unknown provider")

// Settings are the provider-specific options read from configuration.
type Settings map[string]string

// Require reports every key in keys that is empty, wrapped in ErrNotConfigured.
func (s Settings) Require(keys ...string) error {
	var missing []string
	for _, k := range keys {
		if s[k] == "" {
			missing = append(missing, k)
		}
	}
	if len(missing) > 0 {
		return fmt.Errorf("%w: missing %v", ErrNotConfigured, missing)
	}
	return nil
}

// Int parses key as an integer, returning def when it is unset.
func (s Settings) Int(key string, def int) (int, error) {
	v := s[key]
	if v == "" {
		return def, nil
	}
	n, err := strconv.Atoi(v)
	if err != nil {
		return 0, fmt.Errorf("invalid %s %q: %w", key, v, err)
	}
	return n, nil
}

// Factory builds a Notifier from its settings.
type Factory func(Settings) (Notifier, error)

var (
	mu        sync.RWMutex
	factories = map[string]Factory{}
)

// Register adds a provider. Adapters call it from init; a second
// registration under the same name is a programming error and panics.
func Register(name string, f Factory) {
	mu.Lock()
	defer mu.Unlock()
	if _, dup := factories[name]; dup {
		panic("notifier: " + name + " registered twice")
	}
	factories[name] = f
}

// New builds the provider registered as name.
func New(name string, s Settings) (Notifier, error) {
	mu.RLock()
	f := factories[name]
	mu.RUnlock()
	if f == nil {
		return nil, fmt.Errorf("%w %q, have %v", ErrUnknownProvider, name, Available())
	}
	n, err := f(s)
	if err != nil {
		return nil, fmt.Errorf("notifier %s: %w", name, err)
	}
	return n, nil
}

// Available lists the registered provider names in order.
func Available() []string {
	mu.RLock()
	defer mu.RUnlock()
	names := make([]string, 0, len(factories))
	for name := range factories {
		names = append(names, name)
	}
	slices.Sort(names)
	return names
}
