package hitl

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestRegisterAndNew(t *testing.T) {
	withCleanRegistry(t)
	Register("fake", func(cfg Config) (Manager, error) { return fakeManager{}, nil })

	m, err := New("fake", Config{})
	require.NoError(t, err)
	require.NotNil(t, m)
}

func TestNew_UnknownManager(t *testing.T) {
	withCleanRegistry(t)

	_, err := New("nonexistent", Config{})
	assert.ErrorContains(t, err, "unknown manager")
}

func TestList_SortedOrder(t *testing.T) {
	withCleanRegistry(t)
	Register("zzz", func(cfg Config) (Manager, error) { return fakeManager{}, nil })
	Register("aaa", func(cfg Config) (Manager, error) { return fakeManager{}, nil })

	assert.Equal(t, []string{"aaa", "zzz"}, List())
}

func TestLiveKitManager_RegisteredByDefault(t *testing.T) {
	assert.Contains(t, List(), "livekit")
}

func TestNewLiveKitManager_RequiresCredentials(t *testing.T) {
	_, err := New("livekit", Config{})
	assert.Error(t, err)
}

func TestLiveKitManager_RequestEscalation_MintsTokenAndPersists(t *testing.T) {
	store := &fakeStore{}
	m, err := New("livekit", Config{APIKey: "key", APISecret: "01234567890123456789012345678901", Store: store})
	require.NoError(t, err)

	token, err := m.RequestEscalation(context.Background(), "s1", "room-1", "student is stuck")
	require.NoError(t, err)
	assert.NotEmpty(t, token)

	require.Len(t, store.calls, 1)
	assert.Equal(t, "s1", store.calls[0].sessionID)
	assert.Equal(t, "room-1", store.calls[0].roomName)
	assert.Equal(t, "student is stuck", store.calls[0].reason)
	assert.Equal(t, token, store.calls[0].joinToken)
}

func TestLiveKitManager_RequestEscalation_StoreFailureStillReturnsToken(t *testing.T) {
	store := &fakeStore{err: assertErr("store unavailable")}
	m, err := New("livekit", Config{APIKey: "key", APISecret: "01234567890123456789012345678901", Store: store})
	require.NoError(t, err)

	token, err := m.RequestEscalation(context.Background(), "s1", "room-1", "reason")
	require.NoError(t, err)
	assert.NotEmpty(t, token)
}

func TestLiveKitManager_RequestEscalation_NilStoreSkipsPersistence(t *testing.T) {
	m, err := New("livekit", Config{APIKey: "key", APISecret: "01234567890123456789012345678901"})
	require.NoError(t, err)

	token, err := m.RequestEscalation(context.Background(), "s1", "room-1", "reason")
	require.NoError(t, err)
	assert.NotEmpty(t, token)
}

type fakeManager struct{}

func (fakeManager) RequestEscalation(ctx context.Context, sessionID, roomName, reason string) (string, error) {
	return "token", nil
}

type storeCall struct {
	sessionID, roomName, reason, joinToken string
}

type fakeStore struct {
	mu    sync.Mutex
	calls []storeCall
	err   error
}

func (f *fakeStore) RecordEscalation(ctx context.Context, sessionID, roomName, reason, joinToken string, occurredAt time.Time) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.calls = append(f.calls, storeCall{sessionID: sessionID, roomName: roomName, reason: reason, joinToken: joinToken})
	return f.err
}

type assertErr string

func (e assertErr) Error() string { return string(e) }

func withCleanRegistry(t *testing.T) {
	t.Helper()
	registryMu.Lock()
	saved := registry
	registry = make(map[string]Factory)
	registryMu.Unlock()

	t.Cleanup(func() {
		registryMu.Lock()
		registry = saved
		registryMu.Unlock()
	})
}
