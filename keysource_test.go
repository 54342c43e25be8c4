// keysource_test.go: Tests for plugin-backed external key sources.
//
// Copyright (c) 2025 ReshADX
// SPDX-License-Identifier: MPL-2.0

package fieldcrypt_test

import (
	"context"
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/reshadx/fieldcrypt"
)

// mockKeySourceProvider is an in-memory KeySourceProvider with controllable
// health and latency.
type mockKeySourceProvider struct {
	mu          sync.Mutex
	name        string
	healthy     bool
	delay       time.Duration
	keys        map[int][]byte
	current     int
	initialized bool
	closed      bool
}

func newMockProvider(t *testing.T) *mockKeySourceProvider {
	t.Helper()
	k1 := make([]byte, fieldcrypt.KeySize)
	for i := range k1 {
		k1[i] = byte(i * 3)
	}
	return &mockKeySourceProvider{
		name:    "mock-vault",
		healthy: true,
		keys:    map[int][]byte{1: k1},
		current: 1,
	}
}

func (m *mockKeySourceProvider) Name() string { return m.name }

func (m *mockKeySourceProvider) Initialize(ctx context.Context, config map[string]interface{}) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.initialized = true
	return nil
}

func (m *mockKeySourceProvider) Close() error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.closed = true
	return nil
}

func (m *mockKeySourceProvider) IsHealthy() bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.healthy
}

func (m *mockKeySourceProvider) wait(ctx context.Context) error {
	if m.delay == 0 {
		return nil
	}
	select {
	case <-time.After(m.delay):
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

func (m *mockKeySourceProvider) CurrentVersion(ctx context.Context) (int, error) {
	if err := m.wait(ctx); err != nil {
		return 0, err
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.current, nil
}

func (m *mockKeySourceProvider) Key(ctx context.Context, version int) ([]byte, error) {
	if err := m.wait(ctx); err != nil {
		return nil, err
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	key, ok := m.keys[version]
	if !ok {
		return nil, fmt.Errorf("%w: version %d", fieldcrypt.ErrKeyNotFound, version)
	}
	out := make([]byte, len(key))
	copy(out, key)
	return out, nil
}

func (m *mockKeySourceProvider) Rotate(ctx context.Context) (int, error) {
	if err := m.wait(ctx); err != nil {
		return 0, err
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	next := m.current + 1
	key, err := fieldcrypt.GenerateKey()
	if err != nil {
		return 0, err
	}
	m.keys[next] = key
	m.current = next
	return next, nil
}

func newRemoteSource(t *testing.T, provider fieldcrypt.KeySourceProvider, timeout time.Duration) *fieldcrypt.RemoteKeySource {
	t.Helper()
	source, err := fieldcrypt.NewRemoteKeySource(&fieldcrypt.RemoteKeySourceConfig{
		OperationTimeout: timeout,
	}, nil)
	require.NoError(t, err)
	require.NoError(t, source.RegisterProvider(provider.Name(), provider))
	return source
}

func TestRemoteKeySource_Basic(t *testing.T) {
	provider := newMockProvider(t)
	source := newRemoteSource(t, provider, time.Second)

	assert.True(t, provider.initialized, "RegisterProvider must initialize the provider")

	version, err := source.CurrentVersion()
	require.NoError(t, err)
	assert.Equal(t, 1, version)

	key, err := source.Key(1)
	require.NoError(t, err)
	assert.Len(t, key, fieldcrypt.KeySize)

	_, err = source.Key(42)
	assert.ErrorIs(t, err, fieldcrypt.ErrKeyNotFound)

	next, err := source.Rotate()
	require.NoError(t, err)
	assert.Equal(t, 2, next)

	require.NoError(t, source.Close())
	assert.True(t, provider.closed)
}

func TestRemoteKeySource_TimeoutIsUnavailable(t *testing.T) {
	provider := newMockProvider(t)
	provider.delay = 200 * time.Millisecond
	source := newRemoteSource(t, provider, 20*time.Millisecond)

	_, err := source.Key(1)
	assert.ErrorIs(t, err, fieldcrypt.ErrKeyUnavailable,
		"a slow source must surface as ErrKeyUnavailable, never hang")
	assert.NotErrorIs(t, err, fieldcrypt.ErrKeyNotFound)

	_, err = source.CurrentVersion()
	assert.ErrorIs(t, err, fieldcrypt.ErrKeyUnavailable)
}

func TestRemoteKeySource_UnhealthyProvider(t *testing.T) {
	provider := newMockProvider(t)
	source := newRemoteSource(t, provider, time.Second)

	provider.mu.Lock()
	provider.healthy = false
	provider.mu.Unlock()

	_, err := source.Key(1)
	assert.ErrorIs(t, err, fieldcrypt.ErrKeyUnavailable)
}

func TestRemoteKeySource_NoProvider(t *testing.T) {
	source, err := fieldcrypt.NewRemoteKeySource(nil, nil)
	require.NoError(t, err)

	_, err = source.CurrentVersion()
	assert.ErrorIs(t, err, fieldcrypt.ErrKeyUnavailable)

	err = source.RegisterProvider("nil", nil)
	assert.Error(t, err)
}

// The encryption service runs unchanged over an external key source: the
// three-method contract is the only coupling.
func TestServiceOverRemoteKeySource(t *testing.T) {
	provider := newMockProvider(t)
	source := newRemoteSource(t, provider, time.Second)

	macKey := make([]byte, fieldcrypt.KeySize)
	for i := range macKey {
		macKey[i] = byte(200 - i)
	}
	svc, err := fieldcrypt.NewServiceWithKeyManager(source, macKey)
	require.NoError(t, err)

	envelope, err := svc.Encrypt("remote-keyed secret")
	require.NoError(t, err)

	value, err := svc.Decrypt(envelope)
	require.NoError(t, err)
	assert.Equal(t, "remote-keyed secret", value)

	// Rotation at the source moves new encryptions to the new version.
	next, err := svc.Rotate()
	require.NoError(t, err)
	assert.Equal(t, 2, next)

	rotated, err := svc.Encrypt("after rotation")
	require.NoError(t, err)
	meta := svc.Metadata(rotated)
	require.NotNil(t, meta)
	assert.Equal(t, 2, meta.Version)

	// Old envelopes still decrypt.
	value, err = svc.Decrypt(envelope)
	require.NoError(t, err)
	assert.Equal(t, "remote-keyed secret", value)

	// An unreachable source is an infrastructure failure, not an
	// authentication failure.
	provider.mu.Lock()
	provider.delay = 200 * time.Millisecond
	provider.mu.Unlock()
	slow := newRemoteSource(t, provider, 20*time.Millisecond)
	slowSvc, err := fieldcrypt.NewServiceWithKeyManager(slow, macKey)
	require.NoError(t, err)
	_, err = slowSvc.Decrypt(envelope)
	assert.ErrorIs(t, err, fieldcrypt.ErrKeyUnavailable)
}
