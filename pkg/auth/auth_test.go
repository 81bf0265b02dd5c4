package auth

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

	"github.com/rmax-ai/proximl/pkg/client"
)

func signedToken(t *testing.T, exp time.Time) string {
	t.Helper()
	token, err := jwt.NewWithClaims(jwt.SigningMethodHS256, jwt.MapClaims{
		"sub": "user-1",
		"exp": exp.Unix(),
	}).SignedString([]byte("test-secret"))
	require.NoError(t, err)
	return token
}

// identityServer answers InitiateAuth calls, recording the flows it saw.
type identityServer struct {
	mu      sync.Mutex
	flows   []string
	respond func(req initiateAuthRequest) (int, any)
}

func (s *identityServer) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	var req initiateAuthRequest
	json.NewDecoder(r.Body).Decode(&req)
	s.mu.Lock()
	s.flows = append(s.flows, req.AuthFlow)
	s.mu.Unlock()

	status, body := s.respond(req)
	w.Header().Set("Content-Type", "application/x-amz-json-1.1")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(body)
}

func authResult(id, refresh string) map[string]any {
	return map[string]any{"AuthenticationResult": map[string]any{
		"IdToken":      id,
		"AccessToken":  "access",
		"RefreshToken": refresh,
		"ExpiresIn":    3600,
	}}
}

func newCognito(url string) *Cognito {
	return &Cognito{
		Username: "user@example.com",
		Password: "key",
		Pool:     PoolConfig{Region: "us-east-1", ClientID: "client-1", PoolID: "pool-1"},
		Endpoint: url,
	}
}

func TestCognito_PasswordThenCached(t *testing.T) {
	fresh := signedToken(t, time.Now().Add(time.Hour))
	is := &identityServer{respond: func(req initiateAuthRequest) (int, any) {
		assert.Equal(t, "client-1", req.ClientID)
		assert.Equal(t, "user@example.com", req.AuthParameters["USERNAME"])
		return http.StatusOK, authResult(fresh, "refresh-1")
	}}
	server := httptest.NewServer(is)
	defer server.Close()

	c := newCognito(server.URL)
	for i := 0; i < 3; i++ {
		tokens, err := c.Tokens(context.Background())
		require.NoError(t, err)
		assert.Equal(t, fresh, tokens.IDToken)
	}
	assert.Equal(t, []string{"USER_PASSWORD_AUTH"}, is.flows)
}

func TestCognito_RefreshesStaleToken(t *testing.T) {
	stale := signedToken(t, time.Now().Add(30*time.Second))
	renewed := signedToken(t, time.Now().Add(time.Hour))
	is := &identityServer{respond: func(req initiateAuthRequest) (int, any) {
		if req.AuthFlow == "REFRESH_TOKEN_AUTH" {
			assert.Equal(t, "refresh-1", req.AuthParameters["REFRESH_TOKEN"])
			return http.StatusOK, authResult(renewed, "")
		}
		return http.StatusOK, authResult(stale, "refresh-1")
	}}
	server := httptest.NewServer(is)
	defer server.Close()

	cache := NewMemoryCache()
	c := newCognito(server.URL)
	c.Cache = cache

	first, err := c.Tokens(context.Background())
	require.NoError(t, err)
	assert.Equal(t, stale, first.IDToken)

	second, err := c.Tokens(context.Background())
	require.NoError(t, err)
	assert.Equal(t, renewed, second.IDToken)
	assert.Equal(t, "refresh-1", second.RefreshToken, "refresh token carried over")
	assert.Equal(t, []string{"USER_PASSWORD_AUTH", "REFRESH_TOKEN_AUTH"}, is.flows)
}

func TestCognito_CredentialErrors(t *testing.T) {
	is := &identityServer{respond: func(req initiateAuthRequest) (int, any) {
		return http.StatusBadRequest, map[string]string{
			"__type":  "NotAuthorizedException",
			"message": "Incorrect username or password.",
		}
	}}
	server := httptest.NewServer(is)
	defer server.Close()

	_, err := newCognito(server.URL).Tokens(context.Background())

	var authErr *client.AuthError
	require.ErrorAs(t, err, &authErr)
	assert.Equal(t, "Incorrect username or password.", authErr.Message)
}

func TestCognito_TransientErrorIsNotAuthError(t *testing.T) {
	is := &identityServer{respond: func(req initiateAuthRequest) (int, any) {
		return http.StatusInternalServerError, map[string]string{"__type": "InternalErrorException"}
	}}
	server := httptest.NewServer(is)
	defer server.Close()

	_, err := newCognito(server.URL).Tokens(context.Background())
	require.Error(t, err)

	var authErr *client.AuthError
	assert.NotErrorAs(t, err, &authErr)
}

func TestCognito_MissingCredentials(t *testing.T) {
	c := &Cognito{Pool: PoolConfig{Region: "us-east-1", ClientID: "c"}}
	_, err := c.Tokens(context.Background())

	var authErr *client.AuthError
	require.ErrorAs(t, err, &authErr)
}

func TestCognito_ConcurrentCallersShareExchange(t *testing.T) {
	fresh := signedToken(t, time.Now().Add(time.Hour))
	var calls int32
	is := &identityServer{respond: func(req initiateAuthRequest) (int, any) {
		atomic.AddInt32(&calls, 1)
		return http.StatusOK, authResult(fresh, "r")
	}}
	server := httptest.NewServer(is)
	defer server.Close()

	c := newCognito(server.URL)
	var wg sync.WaitGroup
	for i := 0; i < 10; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_, err := c.Tokens(context.Background())
			assert.NoError(t, err)
		}()
	}
	wg.Wait()
	assert.Equal(t, int32(1), atomic.LoadInt32(&calls))
}

func TestDiscoverPool(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte(`{"region":"us-east-2","userPoolSDKClientId":"sdk-client","userPoolId":"pool-9"}`))
	}))
	defer server.Close()

	pool, err := DiscoverPool(context.Background(), nil, server.URL+"/prod/configuration")
	require.NoError(t, err)
	assert.Equal(t, PoolConfig{Region: "us-east-2", ClientID: "sdk-client", PoolID: "pool-9"}, pool)
}

func TestExpiry(t *testing.T) {
	exp := time.Now().Add(time.Hour).Truncate(time.Second)
	got, err := Expiry(signedToken(t, exp))
	require.NoError(t, err)
	assert.True(t, exp.Equal(got))

	_, err = Expiry("not-a-jwt")
	assert.Error(t, err)
}

func TestStatic(t *testing.T) {
	tokens, err := Static{IDToken: "abc"}.Tokens(context.Background())
	require.NoError(t, err)
	assert.Equal(t, "abc", tokens.IDToken)

	_, err = Static{}.Tokens(context.Background())
	var authErr *client.AuthError
	assert.ErrorAs(t, err, &authErr)
}

func TestMemoryCache_Expiry(t *testing.T) {
	now := time.Now()
	m := NewMemoryCache()
	m.now = func() time.Time { return now }

	require.NoError(t, m.Set(context.Background(), "k", client.Tokens{IDToken: "a"}, time.Minute))
	got, ok, err := m.Get(context.Background(), "k")
	require.NoError(t, err)
	assert.True(t, ok)
	assert.Equal(t, "a", got.IDToken)

	now = now.Add(2 * time.Minute)
	_, ok, _ = m.Get(context.Background(), "k")
	assert.False(t, ok)
}

type fakeLocker struct {
	mu       sync.Mutex
	deny     int
	onDeny   func()
	acquired int
	released int
}

func (f *fakeLocker) Acquire(ctx context.Context, name, holderID string, ttl time.Duration) (bool, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.deny > 0 {
		f.deny--
		if f.onDeny != nil {
			f.onDeny()
		}
		return false, nil
	}
	f.acquired++
	return true, nil
}

func (f *fakeLocker) Release(ctx context.Context, name, holderID string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.released++
	return nil
}

func TestCognito_LockHeldElsewhere(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		t.Error("exchange must not run while another process holds the lock")
	}))
	defer server.Close()

	shared := NewMemoryCache()
	c := newCognito(server.URL)
	c.Cache = shared
	fresh := signedToken(t, time.Now().Add(time.Hour))
	lock := &fakeLocker{deny: 1, onDeny: func() {
		shared.Set(context.Background(), c.cacheKey(), client.Tokens{IDToken: fresh}, time.Hour)
	}}
	c.Lock = lock

	tokens, err := c.Tokens(context.Background())
	require.NoError(t, err)
	assert.Equal(t, fresh, tokens.IDToken)
	assert.Zero(t, lock.acquired)
}

func TestCognito_LockAcquiredAndReleased(t *testing.T) {
	fresh := signedToken(t, time.Now().Add(time.Hour))
	is := &identityServer{respond: func(req initiateAuthRequest) (int, any) {
		return http.StatusOK, authResult(fresh, "r")
	}}
	server := httptest.NewServer(is)
	defer server.Close()

	lock := &fakeLocker{}
	c := newCognito(server.URL)
	c.Lock = lock

	_, err := c.Tokens(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 1, lock.acquired)
	assert.Equal(t, 1, lock.released)
}
