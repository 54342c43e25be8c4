// keysource.go: Pluggable external key sources for the keyring contract.
//
// Version 1 of a keyring usually comes from an environment-provisioned
// secret, but deployments that keep key material in an external secret
// manager can back the KeyManager contract with a provider plugin powered by
// github.com/agilira/go-plugins. The encryption service never depends on the
// origin, only on the three-method contract.
//
// Copyright (c) 2025 ReshADX
// SPDX-License-Identifier: MPL-2.0

package fieldcrypt

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	goerrors "github.com/agilira/go-errors"
	goplugins "github.com/agilira/go-plugins"
)

// DefaultKeySourceTimeout bounds every external key lookup. The key source
// is the only possible blocking point in the core, so it must time out
// rather than hang.
const DefaultKeySourceTimeout = 5 * time.Second

// KeySourceRequest is the wire request for key-source provider plugins.
type KeySourceRequest struct {
	Operation string `json:"operation"`         // "current_version", "key", "rotate"
	Version   int    `json:"version,omitempty"` // key version for "key" lookups
}

// KeySourceResponse is the wire response from key-source provider plugins.
type KeySourceResponse struct {
	Success bool   `json:"success"`           // operation outcome
	Version int    `json:"version,omitempty"` // resolved version number
	Key     string `json:"key,omitempty"`     // base64 key material (key lookups only)
	Error   string `json:"error,omitempty"`   // provider error message
}

// KeySourceProvider is the interface external key-source plugins implement.
// Providers own transport, authentication and caching; the core only passes
// contexts with deadlines through.
type KeySourceProvider interface {
	// Name identifies the provider (e.g. "vault", "aws-secrets-manager").
	Name() string

	// Initialize sets up the provider connection with its configuration.
	Initialize(ctx context.Context, config map[string]interface{}) error

	// Close releases provider resources.
	Close() error

	// IsHealthy reports whether the provider can currently serve lookups.
	IsHealthy() bool

	// CurrentVersion returns the version used for new encryptions.
	CurrentVersion(ctx context.Context) (int, error)

	// Key returns the 32-byte key for a version. A version the source has
	// never issued must yield ErrKeyNotFound.
	Key(ctx context.Context, version int) ([]byte, error)

	// Rotate activates a new version at the source and returns its number.
	Rotate(ctx context.Context) (int, error)
}

// RemoteKeySourceConfig configures the remote key source.
type RemoteKeySourceConfig struct {
	DefaultProvider  string                            `json:"default_provider"`  // provider used when none is named
	ProviderConfigs  map[string]map[string]interface{} `json:"provider_configs"`  // per-provider configuration
	OperationTimeout time.Duration                     `json:"operation_timeout"` // per-lookup deadline
}

// RemoteKeySource implements KeyManager on top of registered provider
// plugins. Timeouts and transport failures surface as ErrKeyUnavailable,
// distinct from ErrKeyNotFound (a version the source genuinely never
// issued).
type RemoteKeySource struct {
	mu              sync.RWMutex
	pluginManager   *goplugins.Manager[KeySourceRequest, KeySourceResponse]
	providers       map[string]KeySourceProvider
	defaultProvider string
	config          *RemoteKeySourceConfig
}

// NewRemoteKeySource creates a remote key source with plugin support. A nil
// config applies the default operation timeout.
func NewRemoteKeySource(config *RemoteKeySourceConfig, pluginManager *goplugins.Manager[KeySourceRequest, KeySourceResponse]) (*RemoteKeySource, error) {
	if config == nil {
		config = &RemoteKeySourceConfig{OperationTimeout: DefaultKeySourceTimeout}
	}
	if config.OperationTimeout <= 0 {
		config.OperationTimeout = DefaultKeySourceTimeout
	}
	return &RemoteKeySource{
		pluginManager: pluginManager,
		providers:     make(map[string]KeySourceProvider),
		config:        config,
	}, nil
}

// RegisterProvider initializes a provider and makes it available for
// lookups. The first registered provider, or the configured default,
// becomes the active one.
func (r *RemoteKeySource) RegisterProvider(name string, provider KeySourceProvider) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	if provider == nil {
		return goerrors.New(ErrCodeProvision, "key source provider cannot be nil")
	}

	ctx, cancel := context.WithTimeout(context.Background(), r.config.OperationTimeout)
	defer cancel()

	if err := provider.Initialize(ctx, r.config.ProviderConfigs[name]); err != nil {
		richErr := goerrors.Wrap(err, ErrCodeKeyUnavailable, fmt.Sprintf("failed to initialize key source provider %s", name))
		return fmt.Errorf("%w: %w", ErrKeyUnavailable, richErr)
	}

	r.providers[name] = provider
	if r.defaultProvider == "" || r.config.DefaultProvider == name {
		r.defaultProvider = name
	}
	return nil
}

// Close shuts down all registered providers.
func (r *RemoteKeySource) Close() error {
	r.mu.Lock()
	defer r.mu.Unlock()

	var errs []error
	for name, provider := range r.providers {
		if err := provider.Close(); err != nil {
			errs = append(errs, fmt.Errorf("failed to close key source provider %s: %w", name, err))
		}
	}
	return errors.Join(errs...)
}

func (r *RemoteKeySource) provider() (KeySourceProvider, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	provider, ok := r.providers[r.defaultProvider]
	if !ok {
		richErr := goerrors.New(ErrCodeKeyUnavailable, "no key source provider registered")
		return nil, fmt.Errorf("%w: %w", ErrKeyUnavailable, richErr)
	}
	if !provider.IsHealthy() {
		richErr := goerrors.New(ErrCodeKeyUnavailable, fmt.Sprintf("key source provider %s is unhealthy", provider.Name()))
		return nil, fmt.Errorf("%w: %w", ErrKeyUnavailable, richErr)
	}
	return provider, nil
}

// CurrentVersion implements KeyManager.
func (r *RemoteKeySource) CurrentVersion() (int, error) {
	provider, err := r.provider()
	if err != nil {
		return 0, err
	}

	ctx, cancel := context.WithTimeout(context.Background(), r.config.OperationTimeout)
	defer cancel()

	version, err := provider.CurrentVersion(ctx)
	if err != nil {
		return 0, unavailable(err, "current version lookup failed")
	}
	return version, nil
}

// Key implements KeyManager. ErrKeyNotFound from the provider passes
// through untouched; every other failure, including a deadline, becomes
// ErrKeyUnavailable.
func (r *RemoteKeySource) Key(version int) ([]byte, error) {
	provider, err := r.provider()
	if err != nil {
		return nil, err
	}

	ctx, cancel := context.WithTimeout(context.Background(), r.config.OperationTimeout)
	defer cancel()

	key, err := provider.Key(ctx, version)
	if err != nil {
		if errors.Is(err, ErrKeyNotFound) {
			return nil, err
		}
		return nil, unavailable(err, fmt.Sprintf("key lookup for version %d failed", version))
	}
	if err := ValidateKey(key); err != nil {
		return nil, err
	}
	return key, nil
}

// Rotate implements KeyManager.
func (r *RemoteKeySource) Rotate() (int, error) {
	provider, err := r.provider()
	if err != nil {
		return 0, err
	}

	ctx, cancel := context.WithTimeout(context.Background(), r.config.OperationTimeout)
	defer cancel()

	version, err := provider.Rotate(ctx)
	if err != nil {
		return 0, unavailable(err, "rotation failed at key source")
	}
	return version, nil
}

func unavailable(err error, msg string) error {
	richErr := goerrors.Wrap(err, ErrCodeKeyUnavailable, msg)
	return fmt.Errorf("%w: %w", ErrKeyUnavailable, richErr)
}
