// Package secrets holds rotatable credentials such as the JWT signing key.
// Values are read through a Loader and can be swapped at runtime without
// restarting the server.
package secrets

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"sync"
)

// Key names served by ConfigLoader.
const (
	KeyJWTSecret = "auth.jwt_secret"
)

// Loader returns the current set of secret values.
type Loader func() (map[string]string, error)

// Vault caches secret values and replaces them atomically on Reload.
type Vault struct {
	mu     sync.RWMutex
	values map[string]string
	loader Loader
}

// NewVault performs the initial load. A failing loader is fatal here but
// only logged on later reloads.
func NewVault(loader Loader) (*Vault, error) {
	vals, err := loader()
	if err != nil {
		return nil, fmt.Errorf("load secrets: %w", err)
	}
	return &Vault{values: vals, loader: loader}, nil
}

// Get returns the value for key, or "" when unset.
func (v *Vault) Get(key string) string {
	v.mu.RLock()
	defer v.mu.RUnlock()
	return v.values[key]
}

// Getter binds key to v for consumers that take a func() string.
func (v *Vault) Getter(key string) func() string {
	return func() string { return v.Get(key) }
}

// Reload re-runs the loader and returns the keys whose values changed.
// On error the previous values stay in place.
func (v *Vault) Reload() ([]string, error) {
	vals, err := v.loader()
	if err != nil {
		return nil, fmt.Errorf("reload secrets: %w", err)
	}

	v.mu.Lock()
	defer v.mu.Unlock()
	var changed []string
	for k, nv := range vals {
		if v.values[k] != nv {
			changed = append(changed, k)
		}
	}
	for k := range v.values {
		if _, ok := vals[k]; !ok {
			changed = append(changed, k)
		}
	}
	v.values = vals
	return changed, nil
}

// ReloadOn reloads the vault every time one of sigs arrives until ctx is
// done. Typical use is SIGHUP after rotating the key in the environment.
func (v *Vault) ReloadOn(ctx context.Context, sigs ...os.Signal) {
	ch := make(chan os.Signal, 1)
	signal.Notify(ch, sigs...)
	defer signal.Stop(ch)

	for {
		select {
		case <-ctx.Done():
			return
		case <-ch:
			changed, err := v.Reload()
			if err != nil {
				slog.Error("secret reload failed, keeping previous values", "error", err)
				continue
			}
			// Names only, never values.
			slog.Info("secrets reloaded", "changed", changed)
		}
	}
}
