// Package resources wraps the proximl REST catalogue in typed services.
//
// Entities are immutable snapshots of server JSON. Operations that change or
// re-read a resource return a new snapshot; callers replace the value they hold.
package resources

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"os"
	"strings"

	"github.com/rmax-ai/proximl/pkg/client"
	"github.com/rmax-ai/proximl/pkg/poll"
)

// API is the subset of *client.Client the services use.
type API interface {
	Query(ctx context.Context, req client.Request) (json.RawMessage, error)
	Subscribe(ctx context.Context, entity, projectID, id string, handler client.FrameHandler) error
	Project() string
}

// ProxiML groups every resource service behind one client.
type ProxiML struct {
	API         API
	Datasets    *StorageService
	Models      *StorageService
	Checkpoints *StorageService
	Volumes     *StorageService
	Jobs        *JobService
	Projects    *ProjectService
	Cloudbender *Cloudbender
}

// Option customizes the services built by New.
type Option func(*settings)

type settings struct {
	poller *poll.Poller
	out    io.Writer
	logger *slog.Logger
}

// WithPoller sets the poller used by WaitFor.
func WithPoller(p *poll.Poller) Option {
	return func(s *settings) { s.poller = p }
}

// WithLogOutput sets where Attach prints log lines when no handler is given.
func WithLogOutput(w io.Writer) Option {
	return func(s *settings) { s.out = w }
}

// WithLogger sets the logger used for create and remove notices.
func WithLogger(logger *slog.Logger) Option {
	return func(s *settings) { s.logger = logger }
}

// New wires every service to api.
func New(api API, opts ...Option) *ProxiML {
	s := settings{out: os.Stdout, logger: slog.Default()}
	for _, opt := range opts {
		opt(&s)
	}
	if s.poller == nil {
		s.poller = poll.New()
	}
	b := &backend{api: api, poller: s.poller, out: s.out, logger: s.logger}
	return &ProxiML{
		API:         api,
		Datasets:    newStorageService(b, "dataset"),
		Models:      newStorageService(b, "model"),
		Checkpoints: newStorageService(b, "checkpoint"),
		Volumes:     newStorageService(b, "volume"),
		Jobs:        &JobService{b: b},
		Projects:    &ProjectService{b: b},
		Cloudbender: newCloudbender(b),
	}
}

// backend is shared by every service.
type backend struct {
	api    API
	poller *poll.Poller
	out    io.Writer
	logger *slog.Logger
}

func (b *backend) query(ctx context.Context, method, path string, params map[string]any, body any) (json.RawMessage, error) {
	return b.api.Query(ctx, client.Request{Path: path, Method: method, Params: params, Body: body})
}

// attach subscribes to an entity's logs. Only "subscription" frames reach
// handler; a nil handler prints them to the configured output.
func (b *backend) attach(ctx context.Context, entity, projectID, id string, handler client.FrameHandler) error {
	if handler == nil {
		handler = PrintLogs(b.out)
	}
	return b.api.Subscribe(ctx, entity, projectID, id, func(f client.Frame) {
		if f.Type() == "subscription" {
			handler(f)
		}
	})
}

// PrintLogs writes each frame as "MM/DD/YYYY, HH:MM:SS: msg" in local time.
func PrintLogs(w io.Writer) client.FrameHandler {
	return func(f client.Frame) {
		fmt.Fprintf(w, "%s: %s\n", f.Time().Local().Format("01/02/2006, 15:04:05"), strings.TrimRight(f.Message(), " \t\r\n"))
	}
}

// snapshot carries the raw payload every entity keeps for display.
type snapshot struct {
	raw json.RawMessage
}

// Raw returns the JSON the entity was decoded from.
func (s snapshot) Raw() json.RawMessage { return s.raw }

// String renders the entity as its JSON payload.
func (s snapshot) String() string { return string(s.raw) }

// decode unmarshals data into the wire struct and keeps data as the raw snapshot.
func decode(data json.RawMessage, wire any) (snapshot, error) {
	if len(data) == 0 || string(data) == "null" {
		return snapshot{raw: json.RawMessage("{}")}, nil
	}
	if err := json.Unmarshal(data, wire); err != nil {
		return snapshot{}, fmt.Errorf("failed to decode entity: %w", err)
	}
	return snapshot{raw: append(json.RawMessage(nil), data...)}, nil
}

func decodeList[T any](data json.RawMessage, build func(json.RawMessage) (T, error)) ([]T, error) {
	var items []json.RawMessage
	if len(data) > 0 && string(data) != "null" {
		if err := json.Unmarshal(data, &items); err != nil {
			return nil, fmt.Errorf("failed to decode list: %w", err)
		}
	}
	out := make([]T, 0, len(items))
	for _, item := range items {
		v, err := build(item)
		if err != nil {
			return nil, err
		}
		out = append(out, v)
	}
	return out, nil
}

// uuidField reads "<kind>_uuid" from a payload whose "id" is missing.
func uuidField(data json.RawMessage, kind string) string {
	var m map[string]any
	if err := json.Unmarshal(data, &m); err != nil {
		return ""
	}
	s, _ := m[kind+"_uuid"].(string)
	return s
}

// projectScope scopes an entity call to the entity's own project. Entities
// without one fall back to the client's active project.
func projectScope(project string) map[string]any {
	if project == "" {
		return nil
	}
	return map[string]any{"project_uuid": project}
}

func merge(params map[string]any, extra map[string]any) map[string]any {
	out := make(map[string]any, len(params)+len(extra))
	for k, v := range params {
		out[k] = v
	}
	for k, v := range extra {
		out[k] = v
	}
	return out
}
