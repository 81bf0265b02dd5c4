package main

import (
	"bytes"
	"context"
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/rmax-ai/proximl/pkg/client"
	"github.com/rmax-ai/proximl/pkg/store"
)

type recorded struct {
	Method string
	Path   string
	Query  map[string]string
	Body   map[string]any
}

type fakeAPI struct {
	mu       sync.Mutex
	requests []recorded
	routes   map[string]string
}

func (f *fakeAPI) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	rec := recorded{Method: r.Method, Path: r.URL.Path, Query: map[string]string{}}
	for k := range r.URL.Query() {
		rec.Query[k] = r.URL.Query().Get(k)
	}
	if data, _ := io.ReadAll(r.Body); len(data) > 0 {
		json.Unmarshal(data, &rec.Body)
	}
	f.mu.Lock()
	f.requests = append(f.requests, rec)
	f.mu.Unlock()

	body, ok := f.routes[r.Method+" "+r.URL.Path]
	if !ok {
		http.NotFound(w, r)
		return
	}
	w.Header().Set("Content-Type", "application/json")
	w.Write([]byte(body))
}

func (f *fakeAPI) last(t *testing.T) recorded {
	t.Helper()
	f.mu.Lock()
	defer f.mu.Unlock()
	require.NotEmpty(t, f.requests)
	return f.requests[len(f.requests)-1]
}

// setupEnv points the CLI at a fake API and an empty config directory.
func setupEnv(t *testing.T, routes map[string]string) (*fakeAPI, string) {
	t.Helper()
	api := &fakeAPI{routes: routes}
	ts := httptest.NewServer(api)
	t.Cleanup(ts.Close)

	dir := t.TempDir()
	t.Setenv("PROXIML_CONFIG_DIR", dir)
	t.Setenv("PROXIML_API_URL", ts.URL)
	t.Setenv("PROXIML_ID_TOKEN", "id-token")
	t.Setenv("PROXIML_PROJECT", "proj-1")
	t.Setenv("PROXIML_REDIS_URL", "")
	t.Setenv("PROXIML_LOG_ARCHIVE", "")
	return api, dir
}

func run(t *testing.T, args ...string) (string, error) {
	t.Helper()
	cmd := newRootCmd()
	var out, errOut bytes.Buffer
	cmd.SetOut(&out)
	cmd.SetErr(&errOut)
	cmd.SetArgs(args)
	err := cmd.ExecuteContext(context.Background())
	return out.String(), err
}

func TestParseParams(t *testing.T) {
	params, err := parseParams([]string{"status=ready", "q=a=b"})
	require.NoError(t, err)
	assert.Equal(t, map[string]any{"status": "ready", "q": "a=b"}, params)

	params, err = parseParams(nil)
	require.NoError(t, err)
	assert.Nil(t, params)

	_, err = parseParams([]string{"novalue"})
	assert.Error(t, err)
	_, err = parseParams([]string{"=x"})
	assert.Error(t, err)
}

func TestDatasetList(t *testing.T) {
	api, _ := setupEnv(t, map[string]string{
		"GET /dataset": `[{"dataset_uuid":"ds-1","name":"mnist","status":"ready","size":1024},
			{"dataset_uuid":"ds-2","name":"cifar","status":"downloading","used_size":10}]`,
	})

	out, err := run(t, "dataset", "list", "-o", "csv")
	require.NoError(t, err)
	assert.Equal(t, "id,name,status,size\nds-1,mnist,ready,1024\nds-2,cifar,downloading,10\n", out)
	assert.Equal(t, "proj-1", api.last(t).Query["project_uuid"])
}

func TestDatasetList_QueryAndProjectOverride(t *testing.T) {
	api, _ := setupEnv(t, map[string]string{
		"GET /dataset": `[{"dataset_uuid":"ds-1","name":"mnist","status":"ready"}]`,
	})

	out, err := run(t, "dataset", "list", "--project", "proj-9", "-o", "json", "-q", "[].name")
	require.NoError(t, err)
	assert.JSONEq(t, `["mnist"]`, out)
	assert.Equal(t, "proj-9", api.last(t).Query["project_uuid"])
}

func TestInvalidOutputFormat(t *testing.T) {
	setupEnv(t, nil)

	_, err := run(t, "dataset", "list", "-o", "xml")
	assert.ErrorContains(t, err, "unknown output format")
}

func TestQueryCommand(t *testing.T) {
	api, _ := setupEnv(t, map[string]string{
		"PATCH /dataset/ds-1": `{"dataset_uuid":"ds-1","name":"renamed"}`,
	})

	out, err := run(t, "query", "patch", "/dataset/ds-1", "--param", "force=true", "--body", `{"name":"renamed"}`, "-o", "json")
	require.NoError(t, err)
	assert.JSONEq(t, `{"dataset_uuid":"ds-1","name":"renamed"}`, out)

	req := api.last(t)
	assert.Equal(t, http.MethodPatch, req.Method)
	assert.Equal(t, "true", req.Query["force"])
	assert.Equal(t, map[string]any{"name": "renamed"}, req.Body)

	_, err = run(t, "query", "GET", "/dataset", "--body", "{nope")
	assert.ErrorContains(t, err, "not valid JSON")
}

func TestQueryCommand_NotFound(t *testing.T) {
	setupEnv(t, nil)

	_, err := run(t, "query", "GET", "/missing")
	require.Error(t, err)
	assert.True(t, client.IsNotFound(err))
}

func TestProjectSetActive(t *testing.T) {
	_, dir := setupEnv(t, map[string]string{
		"GET /project/proj-2": `{"id":"proj-2","name":"research"}`,
	})

	out, err := run(t, "project", "set-active", "proj-2")
	require.NoError(t, err)
	assert.Equal(t, "Active project: research (proj-2)\n", out)

	data, err := os.ReadFile(filepath.Join(dir, "config.json"))
	require.NoError(t, err)
	assert.JSONEq(t, `{"project":"proj-2"}`, string(data))
}

func TestProjectSecretPut(t *testing.T) {
	api, _ := setupEnv(t, map[string]string{
		"PUT /project/proj-1/secret/TOKEN": `{"name":"TOKEN","project_uuid":"proj-1"}`,
	})

	_, err := run(t, "project", "secret", "put", "TOKEN", "s3cr3t")
	require.NoError(t, err)
	assert.Equal(t, map[string]any{"value": "s3cr3t"}, api.last(t).Body)
}

func TestServiceSignCertificate(t *testing.T) {
	api, _ := setupEnv(t, map[string]string{
		"GET /provider/prov-1/region/reg-1/service/svc-1":                 `{"provider_uuid":"prov-1","region_uuid":"reg-1","service_id":"svc-1","name":"web","status":"active"}`,
		"POST /provider/prov-1/region/reg-1/service/svc-1/certificate/sign": `{"certificate":"signed"}`,
	})

	csr := filepath.Join(t.TempDir(), "client.csr")
	require.NoError(t, os.WriteFile(csr, []byte("REQUEST"), 0o600))

	out, err := run(t, "cloudbender", "service", "sign-certificate", "prov-1", "reg-1", "svc-1", csr, "-o", "json")
	require.NoError(t, err)
	assert.JSONEq(t, `{"certificate":"signed"}`, out)

	req := api.last(t)
	assert.Equal(t, "/provider/prov-1/region/reg-1/service/svc-1/certificate/sign", req.Path)
	assert.Equal(t, map[string]any{"csr": "REQUEST"}, req.Body)
}

func TestJobCreateFromFile(t *testing.T) {
	api, _ := setupEnv(t, map[string]string{
		"POST /job": `{"job_uuid":"job-1","name":"train","type":"training","status":"new"}`,
	})

	file := filepath.Join(t.TempDir(), "job.yaml")
	require.NoError(t, os.WriteFile(file, []byte(`name: train
type: training
resources:
  gpu_types: [rtx3090]
  gpu_count: 2
workers:
  - command: python train.py
`), 0o600))

	out, err := run(t, "job", "create", "-f", file, "-o", "csv")
	require.NoError(t, err)
	assert.Equal(t, "id,name,type,status,gpus\njob-1,train,training,new,\n", out)

	body := api.last(t).Body
	assert.Equal(t, "train", body["name"])
	assert.Equal(t, "proj-1", body["project_uuid"])
	assert.Equal(t, map[string]any{"gpu_types": []any{"rtx3090"}, "gpu_count": float64(2), "disk_size": float64(0)}, body["resources"])
	assert.Equal(t, []any{map[string]any{"command": "python train.py"}}, body["workers"])
}

func TestReadJobSpec_Invalid(t *testing.T) {
	_, err := readJobSpec(filepath.Join(t.TempDir(), "missing.yaml"))
	assert.Error(t, err)

	file := filepath.Join(t.TempDir(), "bad.yaml")
	require.NoError(t, os.WriteFile(file, []byte("resources: [1, 2"), 0o600))
	_, err = readJobSpec(file)
	assert.Error(t, err)
}

func TestLogsShow(t *testing.T) {
	setupEnv(t, nil)
	dbPath := filepath.Join(t.TempDir(), "archive.db")
	t.Setenv("PROXIML_LOG_ARCHIVE", dbPath)

	st, err := store.NewStore(dbPath)
	require.NoError(t, err)
	src := store.Source{Entity: "job", EntityID: "job-1", ProjectUUID: "proj-1"}
	for _, msg := range []string{"epoch 1", "epoch 2"} {
		_, err := st.AppendFrame(context.Background(), src, client.Frame{
			"type": "subscription", "msg": msg, "time": float64(time.Now().UnixMilli()),
		})
		require.NoError(t, err)
	}
	require.NoError(t, st.Close())

	out, err := run(t, "logs", "show", "job", "job-1")
	require.NoError(t, err)
	lines := strings.Split(strings.TrimSpace(out), "\n")
	require.Len(t, lines, 2)
	assert.True(t, strings.HasSuffix(lines[0], ": epoch 1"), lines[0])
	assert.True(t, strings.HasSuffix(lines[1], ": epoch 2"), lines[1])

	out, err = run(t, "logs", "report", "summary")
	require.NoError(t, err)
	assert.Contains(t, out, "entity,entity_id,stream,frames,first_seen,last_seen\n")
	assert.Contains(t, out, "job,job-1,,2,")

	saveDir := t.TempDir()
	out, err = run(t, "logs", "report", "logs", "--save-dir", saveDir)
	require.NoError(t, err)
	assert.True(t, strings.HasPrefix(out, "Saved "+filepath.Join(saveDir, "logs")), out)

	out, err = run(t, "logs", "saved", "--save-dir", saveDir)
	require.NoError(t, err)
	require.Len(t, strings.Split(strings.TrimSpace(out), "\n"), 1)
	assert.True(t, strings.HasPrefix(out, "logs/"), out)
	assert.True(t, strings.HasSuffix(strings.TrimSpace(out), ".csv"), out)
}

func TestLogsWithoutArchive(t *testing.T) {
	setupEnv(t, nil)

	_, err := run(t, "logs", "show", "job", "job-1")
	assert.ErrorContains(t, err, "PROXIML_LOG_ARCHIVE")
}
