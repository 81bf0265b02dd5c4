package config

import (
	"context"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/rmax-ai/proximl/pkg/auth"
)

func writeFile(t *testing.T, dir, name, content string) {
	t.Helper()
	require.NoError(t, os.WriteFile(filepath.Join(dir, name), []byte(content), 0o600))
}

func clearEnv(t *testing.T) {
	for _, k := range []string{
		"PROXIML_DOMAIN_SUFFIX", "PROXIML_API_URL", "PROXIML_WS_URL", "PROXIML_PROJECT",
		"PROXIML_USER", "PROXIML_KEY", "PROXIML_REGION", "PROXIML_CLIENT_ID", "PROXIML_POOL_ID",
		"PROXIML_ID_TOKEN", "PROXIML_MAX_RETRIES", "PROXIML_BACKOFF_FACTOR", "PROXIML_REDIS_URL",
		"PROXIML_LOG_ARCHIVE", "PROXIML_LOG_LEVEL",
	} {
		t.Setenv(k, "")
		os.Unsetenv(k)
	}
}

func TestLoad_Defaults(t *testing.T) {
	clearEnv(t)
	dir := t.TempDir()
	t.Setenv("PROXIML_CONFIG_DIR", dir)

	c, err := Load()
	require.NoError(t, err)

	assert.Equal(t, dir, c.ConfigDir)
	assert.Equal(t, "proximl.ai", c.DomainSuffix)
	assert.Equal(t, "api.proximl.ai", c.APIURL)
	assert.Equal(t, "api-ws.proximl.ai", c.WSURL)
	assert.Empty(t, c.Project)
	assert.Equal(t, 3, c.MaxRetries)
	assert.Equal(t, 0.5, c.BackoffFactor)
	assert.Equal(t, "warn", c.LogLevel)
}

func TestLoad_Files(t *testing.T) {
	clearEnv(t)
	dir := t.TempDir()
	t.Setenv("PROXIML_CONFIG_DIR", dir)
	writeFile(t, dir, "environment.json", `{"domain_suffix":"dev.proximl.ai"}`)
	writeFile(t, dir, "config.json", `{"project":"proj-file"}`)
	writeFile(t, dir, "credentials.json", `{"user":"u-file","key":"k-file"}`)

	c, err := Load()
	require.NoError(t, err)

	assert.Equal(t, "dev.proximl.ai", c.DomainSuffix)
	assert.Equal(t, "api.dev.proximl.ai", c.APIURL)
	assert.Equal(t, "api-ws.dev.proximl.ai", c.WSURL)
	assert.Equal(t, "proj-file", c.Project)
	assert.Equal(t, "u-file", c.User)
	assert.Equal(t, "k-file", c.Key)
}

func TestLoad_EnvOverridesFiles(t *testing.T) {
	clearEnv(t)
	dir := t.TempDir()
	t.Setenv("PROXIML_CONFIG_DIR", dir)
	writeFile(t, dir, "environment.json", `{"api_url":"api.file","ws_url":"ws.file"}`)
	writeFile(t, dir, "config.json", `{"project":"proj-file"}`)
	t.Setenv("PROXIML_API_URL", "api.env")
	t.Setenv("PROXIML_PROJECT", "proj-env")
	t.Setenv("PROXIML_MAX_RETRIES", "5")

	c, err := Load()
	require.NoError(t, err)

	assert.Equal(t, "api.env", c.APIURL)
	assert.Equal(t, "ws.file", c.WSURL)
	assert.Equal(t, "proj-env", c.Project)
	assert.Equal(t, 5, c.MaxRetries)

	cc := c.Client(nil)
	assert.Equal(t, "api.env", cc.APIURL)
	assert.Equal(t, "proj-env", cc.Project)
	assert.Equal(t, 5, cc.MaxRetries)
}

func TestLoad_Invalid(t *testing.T) {
	clearEnv(t)
	dir := t.TempDir()
	t.Setenv("PROXIML_CONFIG_DIR", dir)

	writeFile(t, dir, "config.json", `{not json`)
	_, err := Load()
	assert.Error(t, err)

	writeFile(t, dir, "config.json", `{}`)
	t.Setenv("PROXIML_LOG_LEVEL", "loud")
	_, err = Load()
	assert.Error(t, err)
}

func TestSetActiveProject(t *testing.T) {
	clearEnv(t)
	dir := filepath.Join(t.TempDir(), "nested")
	t.Setenv("PROXIML_CONFIG_DIR", dir)

	require.NoError(t, SetActiveProject(dir, "proj-1"))
	require.NoError(t, SetActiveProject(dir, "proj-2"))

	data, err := os.ReadFile(filepath.Join(dir, "config.json"))
	require.NoError(t, err)
	assert.JSONEq(t, `{"project":"proj-2"}`, string(data))

	entries, err := os.ReadDir(dir)
	require.NoError(t, err)
	assert.Len(t, entries, 1, "temp files cleaned up")

	c, err := Load()
	require.NoError(t, err)
	assert.Equal(t, "proj-2", c.Project)
}

func TestTokenProvider_Static(t *testing.T) {
	c := &Config{IDToken: "tok"}
	p, err := c.TokenProvider(context.Background(), nil, nil, nil)
	require.NoError(t, err)

	tokens, err := p.Tokens(context.Background())
	require.NoError(t, err)
	assert.Equal(t, "tok", tokens.IDToken)
}

func TestTokenProvider_ConfiguredPool(t *testing.T) {
	c := &Config{User: "u", Key: "k", Region: "eu-west-1", ClientID: "cid", PoolID: "pid"}
	p, err := c.TokenProvider(context.Background(), auth.NewMemoryCache(), nil, nil)
	require.NoError(t, err)

	cognito, ok := p.(*auth.Cognito)
	require.True(t, ok)
	assert.Equal(t, auth.PoolConfig{Region: "eu-west-1", ClientID: "cid", PoolID: "pid"}, cognito.Pool)
	assert.Equal(t, "u", cognito.Username)
}

func TestParseLevel(t *testing.T) {
	for _, name := range []string{"debug", "info", "warn", "error"} {
		_, err := ParseLevel(name)
		assert.NoError(t, err, name)
	}
	_, err := ParseLevel("verbose")
	assert.Error(t, err)
}
