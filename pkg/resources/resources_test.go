package resources

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/rmax-ai/proximl/pkg/client"
	"github.com/rmax-ai/proximl/pkg/poll"
)

type call struct {
	Method string
	Path   string
	Params map[string]any
	Body   map[string]any
}

type reply struct {
	body string
	err  error
}

// fakeAPI records every call and answers from a queue. An empty queue answers "{}".
type fakeAPI struct {
	mu      sync.Mutex
	project string
	calls   []call
	replies []reply

	frames     []client.Frame
	subscribed []string
}

func (f *fakeAPI) reply(body string) *fakeAPI {
	f.replies = append(f.replies, reply{body: body})
	return f
}

func (f *fakeAPI) fail(err error) *fakeAPI {
	f.replies = append(f.replies, reply{err: err})
	return f
}

func (f *fakeAPI) Query(ctx context.Context, req client.Request) (json.RawMessage, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	c := call{Method: req.Method, Path: req.Path, Params: req.Params}
	if req.Body != nil {
		data, _ := json.Marshal(req.Body)
		json.Unmarshal(data, &c.Body)
	}
	f.calls = append(f.calls, c)
	if len(f.replies) == 0 {
		return json.RawMessage("{}"), nil
	}
	r := f.replies[0]
	f.replies = f.replies[1:]
	if r.err != nil {
		return nil, r.err
	}
	return json.RawMessage(r.body), nil
}

func (f *fakeAPI) Subscribe(ctx context.Context, entity, projectID, id string, handler client.FrameHandler) error {
	f.mu.Lock()
	f.subscribed = append(f.subscribed, entity+"/"+projectID+"/"+id)
	frames := f.frames
	f.mu.Unlock()
	for _, frame := range frames {
		handler(frame)
	}
	return nil
}

func (f *fakeAPI) Project() string { return f.project }

func (f *fakeAPI) last(t *testing.T) call {
	t.Helper()
	require.NotEmpty(t, f.calls)
	return f.calls[len(f.calls)-1]
}

func noSleep(ctx context.Context, d time.Duration) error { return nil }

func newTestProxiML(api *fakeAPI) (*ProxiML, *bytes.Buffer) {
	var out bytes.Buffer
	return New(api, WithPoller(poll.New(poll.WithSleep(noSleep))), WithLogOutput(&out)), &out
}

func notFound() error {
	return &client.APIError{Status: http.StatusNotFound, Message: "not found"}
}

func TestPrintLogs(t *testing.T) {
	var out bytes.Buffer
	ts := time.Date(2024, 3, 9, 14, 5, 7, 0, time.Local)
	PrintLogs(&out)(client.Frame{"type": "subscription", "msg": "epoch 1 done\n", "time": float64(ts.UnixMilli())})

	assert.Equal(t, "03/09/2024, 14:05:07: epoch 1 done\n", out.String())
}

func TestDecodeList_Empty(t *testing.T) {
	for _, body := range []string{"", "null", "[]"} {
		items, err := decodeList(json.RawMessage(body), func(data json.RawMessage) (Project, error) {
			return newProject(nil, data)
		})
		require.NoError(t, err)
		assert.Empty(t, items)
	}
}

func TestProxiML_OverHTTP(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/dataset", r.URL.Path)
		assert.Equal(t, "proj-1", r.URL.Query().Get("project_uuid"))
		assert.Equal(t, "id-token", r.Header.Get("Authorization"))
		w.Header().Set("Content-Type", "application/json")
		w.Write([]byte(`[{"dataset_uuid":"ds-1","name":"mnist","status":"ready","size":1024}]`))
	}))
	defer server.Close()

	tokens := client.TokenProviderFunc(func(ctx context.Context) (client.Tokens, error) {
		return client.Tokens{IDToken: "id-token"}, nil
	})
	c := client.New(client.Config{APIURL: server.URL, Project: "proj-1"}, tokens)
	px := New(c)

	datasets, err := px.Datasets.List(context.Background(), nil)
	require.NoError(t, err)
	require.Len(t, datasets, 1)
	assert.Equal(t, "ds-1", datasets[0].ID())
	assert.Equal(t, "mnist", datasets[0].Name())
	n, ok := datasets[0].Size().Bytes()
	assert.True(t, ok)
	assert.Equal(t, int64(1024), n)
}

func TestStorage_RefreshUsesActiveProject(t *testing.T) {
	var queries []string
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		queries = append(queries, r.URL.Path+"?"+r.URL.Query().Get("project_uuid"))
		w.Header().Set("Content-Type", "application/json")
		w.Write([]byte(`{"dataset_uuid":"ds-1","name":"mnist","status":"ready"}`))
	}))
	defer server.Close()

	tokens := client.TokenProviderFunc(func(ctx context.Context) (client.Tokens, error) {
		return client.Tokens{IDToken: "id-token"}, nil
	})
	px := New(client.New(client.Config{APIURL: server.URL, Project: "active-proj"}, tokens))

	ds, err := px.Datasets.Get(context.Background(), "ds-1", nil)
	require.NoError(t, err)
	require.Empty(t, ds.ProjectUUID())

	_, err = ds.Refresh(context.Background())
	require.NoError(t, err)
	assert.Equal(t, []string{"/dataset/ds-1?active-proj", "/dataset/ds-1?active-proj"}, queries)
}
