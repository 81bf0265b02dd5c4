package store

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/rmax-ai/proximl/pkg/auth"
)

var _ auth.Locker = (*Store)(nil)

func leaseHolder(t *testing.T, s *Store, name string) string {
	t.Helper()
	var holder string
	err := s.db.QueryRow("SELECT holder_id FROM leases WHERE name = ?", name).Scan(&holder)
	if err != nil {
		return ""
	}
	return holder
}

func TestLease_AcquireAndRelease(t *testing.T) {
	store, _, cleanup := setupTestStore(t)
	defer cleanup()
	ctx := context.Background()
	const name = "proximl:tokens:client-1:user"

	ok, err := store.Acquire(ctx, name, "cli-a", time.Minute)
	require.NoError(t, err)
	assert.True(t, ok)

	ok, err = store.Acquire(ctx, name, "cli-a", time.Minute)
	require.NoError(t, err)
	assert.True(t, ok, "holder re-acquires its own lease")

	ok, err = store.Acquire(ctx, name, "cli-b", time.Minute)
	require.NoError(t, err)
	assert.False(t, ok, "lease is held by another process")

	require.NoError(t, store.Release(ctx, name, "cli-b"))
	assert.Equal(t, "cli-a", leaseHolder(t, store, name), "only the holder releases")

	require.NoError(t, store.Release(ctx, name, "cli-a"))
	assert.Empty(t, leaseHolder(t, store, name))

	ok, err = store.Acquire(ctx, name, "cli-b", time.Minute)
	require.NoError(t, err)
	assert.True(t, ok)
}

func TestLease_ExpiredIsTakenOver(t *testing.T) {
	store, _, cleanup := setupTestStore(t)
	defer cleanup()
	ctx := context.Background()

	ok, err := store.Acquire(ctx, "exchange", "crashed", time.Minute)
	require.NoError(t, err)
	require.True(t, ok)
	_, err = store.db.Exec("UPDATE leases SET expires_at = ?", time.Now().UTC().Add(-time.Minute))
	require.NoError(t, err)

	ok, err = store.Acquire(ctx, "exchange", "cli-b", time.Minute)
	require.NoError(t, err)
	assert.True(t, ok)
	assert.Equal(t, "cli-b", leaseHolder(t, store, "exchange"))
}

func TestLease_SerializesTokenExchange(t *testing.T) {
	store, _, cleanup := setupTestStore(t)
	defer cleanup()

	idToken, err := jwt.NewWithClaims(jwt.SigningMethodHS256, jwt.MapClaims{
		"exp": time.Now().Add(time.Hour).Unix(),
	}).SignedString([]byte("test-secret"))
	require.NoError(t, err)

	var exchanges atomic.Int32
	release := make(chan struct{})
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		exchanges.Add(1)
		<-release
		w.Header().Set("Content-Type", "application/x-amz-json-1.1")
		json.NewEncoder(w).Encode(map[string]any{"AuthenticationResult": map[string]any{
			"IdToken":      idToken,
			"RefreshToken": "refresh-1",
		}})
	}))
	defer server.Close()

	// Two processes sharing one archive database and token cache.
	cache := auth.NewMemoryCache()
	provider := func(holder string) *auth.Cognito {
		return &auth.Cognito{
			Username: "user@example.com",
			Password: "key",
			Pool:     auth.PoolConfig{Region: "us-east-1", ClientID: "client-1"},
			Endpoint: server.URL,
			Cache:    cache,
			Lock:     store,
			Holder:   holder,
		}
	}

	var wg sync.WaitGroup
	results := make([]string, 2)
	for i, holder := range []string{"cli-a", "cli-b"} {
		wg.Add(1)
		go func() {
			defer wg.Done()
			tokens, err := provider(holder).Tokens(context.Background())
			assert.NoError(t, err)
			results[i] = tokens.IDToken
		}()
	}

	require.Eventually(t, func() bool { return exchanges.Load() == 1 }, 5*time.Second, 10*time.Millisecond)
	// Let the waiting process observe the held lease before the exchange completes.
	time.Sleep(300 * time.Millisecond)
	close(release)
	wg.Wait()

	assert.Equal(t, int32(1), exchanges.Load())
	assert.Equal(t, []string{idToken, idToken}, results)

	var leases int
	require.NoError(t, store.db.QueryRow("SELECT COUNT(*) FROM leases").Scan(&leases))
	assert.Zero(t, leases, "lease released after the exchange")
}
