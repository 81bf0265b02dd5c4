// Package auth provides token providers for the proximl client.
package auth

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/rmax-ai/proximl/pkg/client"
)

const (
	defaultSkew       = time.Minute
	defaultRefreshTTL = 30 * 24 * time.Hour

	lockTTL  = 30 * time.Second
	lockWait = 10 * time.Second
	lockPoll = 200 * time.Millisecond
)

// Locker is a cross-process lease, see store/redis.ExchangeLock.
type Locker interface {
	Acquire(ctx context.Context, name, holderID string, ttl time.Duration) (bool, error)
	Release(ctx context.Context, name, holderID string) error
}

// PoolConfig identifies the identity pool that issues tokens.
type PoolConfig struct {
	Region   string `json:"region"`
	ClientID string `json:"userPoolSDKClientId"`
	PoolID   string `json:"userPoolId"`
}

// DiscoverPool fetches the identity pool settings published at url.
func DiscoverPool(ctx context.Context, httpClient *http.Client, url string) (PoolConfig, error) {
	if httpClient == nil {
		httpClient = &http.Client{Timeout: 10 * time.Second}
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return PoolConfig{}, err
	}
	resp, err := httpClient.Do(req)
	if err != nil {
		return PoolConfig{}, fmt.Errorf("failed to fetch auth configuration: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return PoolConfig{}, fmt.Errorf("unexpected status fetching auth configuration: %d", resp.StatusCode)
	}

	var pool PoolConfig
	if err := json.NewDecoder(resp.Body).Decode(&pool); err != nil {
		return PoolConfig{}, fmt.Errorf("failed to decode auth configuration: %w", err)
	}
	return pool, nil
}

// Cognito exchanges a user key for tokens against the identity provider's
// JSON API, refreshing them when the id token is about to expire.
type Cognito struct {
	Username string
	Password string
	Pool     PoolConfig
	// Endpoint overrides the identity provider URL. Default: https://cognito-idp.<region>.amazonaws.com/
	Endpoint string
	// Cache keeps tokens between calls. Default: a MemoryCache.
	Cache Cache
	// Lock, when set, serializes exchanges across processes sharing Cache.
	Lock Locker
	// Holder identifies this process to Lock. Default: a random uuid.
	Holder string
	// Skew is how long before expiry a token is considered stale. Default: 1m.
	Skew time.Duration
	// RefreshTTL is how long cached tokens are kept for refresh. Default: 30 days.
	RefreshTTL time.Duration
	HTTPClient *http.Client
	Logger     *slog.Logger

	mu   sync.Mutex
	now  func() time.Time
	once sync.Once
}

type initiateAuthRequest struct {
	AuthFlow       string            `json:"AuthFlow"`
	ClientID       string            `json:"ClientId"`
	AuthParameters map[string]string `json:"AuthParameters"`
}

type initiateAuthResponse struct {
	AuthenticationResult struct {
		IDToken      string `json:"IdToken"`
		AccessToken  string `json:"AccessToken"`
		RefreshToken string `json:"RefreshToken"`
		ExpiresIn    int    `json:"ExpiresIn"`
	} `json:"AuthenticationResult"`
}

type identityError struct {
	Type    string `json:"__type"`
	Message string `json:"message"`
}

var credentialErrors = map[string]bool{
	"NotAuthorizedException":         true,
	"UserNotFoundException":          true,
	"UserNotConfirmedException":      true,
	"PasswordResetRequiredException": true,
	"InvalidParameterException":      true,
	"ResourceNotFoundException":      true,
}

func (c *Cognito) init() {
	c.once.Do(func() {
		if c.Cache == nil {
			c.Cache = NewMemoryCache()
		}
		if c.Skew == 0 {
			c.Skew = defaultSkew
		}
		if c.RefreshTTL == 0 {
			c.RefreshTTL = defaultRefreshTTL
		}
		if c.HTTPClient == nil {
			c.HTTPClient = &http.Client{Timeout: 30 * time.Second}
		}
		if c.Logger == nil {
			c.Logger = slog.Default()
		}
		if c.now == nil {
			c.now = time.Now
		}
		if c.Holder == "" {
			c.Holder = uuid.NewString()
		}
	})
}

// Tokens implements client.TokenProvider. Exchanges are serialized so
// concurrent callers share one refresh.
func (c *Cognito) Tokens(ctx context.Context) (client.Tokens, error) {
	c.init()
	if c.Username == "" || c.Password == "" {
		return client.Tokens{}, &client.AuthError{Message: "user and key must be configured"}
	}
	if c.Pool.ClientID == "" || c.Pool.Region == "" {
		return client.Tokens{}, &client.AuthError{Message: "identity pool region and client id must be configured"}
	}

	c.mu.Lock()
	defer c.mu.Unlock()

	key := c.cacheKey()
	cached, ok := c.lookup(ctx, key)
	if ok && c.fresh(cached.IDToken) {
		return cached, nil
	}

	if c.Lock != nil {
		release, err := c.acquire(ctx, key)
		if err != nil {
			return client.Tokens{}, err
		}
		defer release()
		// Another process may have finished an exchange while we waited.
		cached, ok = c.lookup(ctx, key)
		if ok && c.fresh(cached.IDToken) {
			return cached, nil
		}
	}

	if ok && cached.RefreshToken != "" {
		tokens, err := c.initiate(ctx, "REFRESH_TOKEN_AUTH", map[string]string{"REFRESH_TOKEN": cached.RefreshToken})
		if err == nil {
			if tokens.RefreshToken == "" {
				tokens.RefreshToken = cached.RefreshToken
			}
			c.store(ctx, key, tokens)
			return tokens, nil
		}
		c.Logger.Debug("token refresh failed, re-authenticating", "error", err)
	}

	tokens, err := c.initiate(ctx, "USER_PASSWORD_AUTH", map[string]string{
		"USERNAME": c.Username,
		"PASSWORD": c.Password,
	})
	if err != nil {
		return client.Tokens{}, err
	}
	c.store(ctx, key, tokens)
	return tokens, nil
}

func (c *Cognito) lookup(ctx context.Context, key string) (client.Tokens, bool) {
	cached, ok, err := c.Cache.Get(ctx, key)
	if err != nil {
		c.Logger.Warn("token cache read failed", "error", err)
		return client.Tokens{}, false
	}
	return cached, ok
}

// acquire waits for the exchange lock. If it cannot be taken within
// lockWait the exchange proceeds without it.
func (c *Cognito) acquire(ctx context.Context, key string) (func(), error) {
	deadline := c.now().Add(lockWait)
	for {
		ok, err := c.Lock.Acquire(ctx, key, c.Holder, lockTTL)
		if err != nil {
			c.Logger.Warn("token exchange lock failed", "error", err)
			return func() {}, nil
		}
		if ok {
			return func() {
				if err := c.Lock.Release(context.WithoutCancel(ctx), key, c.Holder); err != nil {
					c.Logger.Warn("token exchange unlock failed", "error", err)
				}
			}, nil
		}
		if c.now().After(deadline) {
			return func() {}, nil
		}
		if cached, ok := c.lookup(ctx, key); ok && c.fresh(cached.IDToken) {
			return func() {}, nil
		}
		select {
		case <-ctx.Done():
			return nil, ctx.Err()
		case <-time.After(lockPoll):
		}
	}
}

func (c *Cognito) cacheKey() string {
	return "proximl:tokens:" + c.Pool.ClientID + ":" + c.Username
}

func (c *Cognito) fresh(idToken string) bool {
	if idToken == "" {
		return false
	}
	exp, err := Expiry(idToken)
	if err != nil {
		return false
	}
	return exp.After(c.now().Add(c.Skew))
}

func (c *Cognito) store(ctx context.Context, key string, tokens client.Tokens) {
	if err := c.Cache.Set(ctx, key, tokens, c.RefreshTTL); err != nil {
		c.Logger.Warn("token cache write failed", "error", err)
	}
}

func (c *Cognito) endpoint() string {
	if c.Endpoint != "" {
		return c.Endpoint
	}
	return fmt.Sprintf("https://cognito-idp.%s.amazonaws.com/", c.Pool.Region)
}

func (c *Cognito) initiate(ctx context.Context, flow string, params map[string]string) (client.Tokens, error) {
	body, err := json.Marshal(initiateAuthRequest{
		AuthFlow:       flow,
		ClientID:       c.Pool.ClientID,
		AuthParameters: params,
	})
	if err != nil {
		return client.Tokens{}, err
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.endpoint(), bytes.NewReader(body))
	if err != nil {
		return client.Tokens{}, err
	}
	req.Header.Set("Content-Type", "application/x-amz-json-1.1")
	req.Header.Set("X-Amz-Target", "AWSCognitoIdentityProviderService.InitiateAuth")

	resp, err := c.HTTPClient.Do(req)
	if err != nil {
		return client.Tokens{}, fmt.Errorf("identity provider request failed: %w", err)
	}
	defer resp.Body.Close()

	data, err := io.ReadAll(resp.Body)
	if err != nil {
		return client.Tokens{}, fmt.Errorf("failed to read identity provider response: %w", err)
	}

	if resp.StatusCode != http.StatusOK {
		var idErr identityError
		json.Unmarshal(data, &idErr)
		if credentialErrors[idErr.Type] {
			return client.Tokens{}, &client.AuthError{Message: idErr.Message, Err: errors.New(idErr.Type)}
		}
		return client.Tokens{}, fmt.Errorf("identity provider returned %d: %s", resp.StatusCode, bytes.TrimSpace(data))
	}

	var out initiateAuthResponse
	if err := json.Unmarshal(data, &out); err != nil {
		return client.Tokens{}, fmt.Errorf("failed to decode identity provider response: %w", err)
	}
	if out.AuthenticationResult.IDToken == "" {
		return client.Tokens{}, &client.AuthError{Message: "identity provider returned no id token (additional challenge required?)"}
	}
	return client.Tokens{
		IDToken:      out.AuthenticationResult.IDToken,
		AccessToken:  out.AuthenticationResult.AccessToken,
		RefreshToken: out.AuthenticationResult.RefreshToken,
	}, nil
}
