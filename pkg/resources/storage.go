package resources

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"net/http"
	"slices"
	"strconv"
	"time"

	"github.com/rmax-ai/proximl/pkg/client"
	"github.com/rmax-ai/proximl/pkg/poll"
)

// Quantity is a size reported either as bytes or as a string like "177M".
type Quantity string

// UnmarshalJSON accepts numbers and strings.
func (q *Quantity) UnmarshalJSON(data []byte) error {
	if string(data) == "null" {
		*q = ""
		return nil
	}
	if len(data) > 0 && data[0] == '"' {
		var s string
		if err := json.Unmarshal(data, &s); err != nil {
			return err
		}
		*q = Quantity(s)
		return nil
	}
	var n json.Number
	if err := json.Unmarshal(data, &n); err != nil {
		return fmt.Errorf("invalid quantity %s", data)
	}
	*q = Quantity(n.String())
	return nil
}

// Bytes returns the quantity as a byte count when it is numeric.
func (q Quantity) Bytes() (int64, bool) {
	n, err := strconv.ParseInt(string(q), 10, 64)
	return n, err == nil
}

type storageWire struct {
	ID          string   `json:"id"`
	Name        string   `json:"name"`
	Status      string   `json:"status"`
	ProjectUUID string   `json:"project_uuid"`
	Size        Quantity `json:"size"`
	UsedSize    Quantity `json:"used_size"`
	BilledSize  Quantity `json:"billed_size"`
	Capacity    Quantity `json:"capacity"`
	SourceURI   string   `json:"source_uri"`
	OutputURI   string   `json:"output_uri"`
	VPN         *struct {
		CIDR   string `json:"cidr"`
		Client struct {
			SSHPort int `json:"ssh_port"`
		} `json:"client"`
	} `json:"vpn"`
}

// Storage is a dataset, model, checkpoint or volume snapshot.
type Storage struct {
	snapshot
	kind string
	w    storageWire
	b    *backend
}

func newStorage(b *backend, kind string, data json.RawMessage) (Storage, error) {
	var w storageWire
	snap, err := decode(data, &w)
	if err != nil {
		return Storage{}, err
	}
	if w.ID == "" {
		w.ID = uuidField(data, kind)
	}
	return Storage{snapshot: snap, kind: kind, w: w, b: b}, nil
}

func (s Storage) ID() string          { return s.w.ID }
func (s Storage) Kind() string        { return s.kind }
func (s Storage) Name() string        { return s.w.Name }
func (s Storage) Status() string      { return s.w.Status }
func (s Storage) ProjectUUID() string { return s.w.ProjectUUID }
func (s Storage) Capacity() Quantity  { return s.w.Capacity }
func (s Storage) Exists() bool        { return s.w.ID != "" }

// Size is the stored size, falling back to used_size.
func (s Storage) Size() Quantity {
	if s.w.Size != "" {
		return s.w.Size
	}
	return s.w.UsedSize
}

// BilledSize falls back to size when the server omits billed_size.
func (s Storage) BilledSize() Quantity {
	if s.w.BilledSize != "" {
		return s.w.BilledSize
	}
	return s.w.Size
}

func (s Storage) path(suffix string) string {
	return "/" + s.kind + "/" + s.w.ID + suffix
}

func (s Storage) call(ctx context.Context, method, suffix string, params map[string]any, body any) (json.RawMessage, error) {
	if s.b == nil || !s.Exists() {
		return nil, &client.SpecificationError{Attribute: "id", Message: s.kind + " does not exist"}
	}
	return s.b.query(ctx, method, s.path(suffix), merge(projectScope(s.w.ProjectUUID), params), body)
}

// Refresh re-reads the entity.
func (s Storage) Refresh(ctx context.Context) (Storage, error) {
	data, err := s.call(ctx, http.MethodGet, "", nil, nil)
	if err != nil {
		return Storage{}, err
	}
	return newStorage(s.b, s.kind, data)
}

// Rename changes the entity name.
func (s Storage) Rename(ctx context.Context, name string) (Storage, error) {
	data, err := s.call(ctx, http.MethodPatch, "", nil, map[string]any{"name": name})
	if err != nil {
		return Storage{}, err
	}
	return newStorage(s.b, s.kind, data)
}

// Export copies the entity to an external location.
func (s Storage) Export(ctx context.Context, outputType, outputURI string, outputOptions map[string]any) (Storage, error) {
	if outputOptions == nil {
		outputOptions = map[string]any{}
	}
	data, err := s.call(ctx, http.MethodPost, "/export", nil, map[string]any{
		"output_type":    outputType,
		"output_uri":     outputURI,
		"output_options": outputOptions,
	})
	if err != nil {
		return Storage{}, err
	}
	return newStorage(s.b, s.kind, data)
}

// Remove deletes the entity.
func (s Storage) Remove(ctx context.Context, force bool) error {
	_, err := s.call(ctx, http.MethodDelete, "", map[string]any{"force": force}, nil)
	return err
}

// LogURL returns the download location of the entity's logs.
func (s Storage) LogURL(ctx context.Context) (json.RawMessage, error) {
	return s.call(ctx, http.MethodGet, "/logs", nil, nil)
}

// Details returns the server-side detail view of the entity.
func (s Storage) Details(ctx context.Context) (json.RawMessage, error) {
	return s.call(ctx, http.MethodGet, "/details", nil, nil)
}

// ConnectionUtilityURL returns the download location of the connection utility.
func (s Storage) ConnectionUtilityURL(ctx context.Context) (json.RawMessage, error) {
	return s.call(ctx, http.MethodGet, "/download", nil, nil)
}

// ConnectionDetails describes how a local connection reaches the entity.
type ConnectionDetails struct {
	EntityType  string `json:"entity_type"`
	ProjectUUID string `json:"project_uuid"`
	CIDR        string `json:"cidr"`
	SSHPort     int    `json:"ssh_port"`
	InputPath   string `json:"input_path,omitempty"`
	OutputPath  string `json:"output_path,omitempty"`
}

// ConnectionDetails returns ok=false when the entity has no vpn assigned.
func (s Storage) ConnectionDetails() (ConnectionDetails, bool) {
	if s.w.VPN == nil {
		return ConnectionDetails{}, false
	}
	d := ConnectionDetails{
		EntityType:  s.kind,
		ProjectUUID: s.w.ProjectUUID,
		CIDR:        s.w.VPN.CIDR,
		SSHPort:     s.w.VPN.Client.SSHPort,
	}
	switch s.w.Status {
	case "new", "downloading":
		d.InputPath = s.w.SourceURI
	case "exporting":
		d.OutputPath = s.w.OutputURI
	}
	return d, true
}

// Attach streams the entity's logs unless it is already ready or failed.
// A nil handler prints each line.
func (s Storage) Attach(ctx context.Context, handler client.FrameHandler) error {
	current, err := s.Refresh(ctx)
	if err != nil {
		return err
	}
	if slices.Contains([]string{"ready", "failed"}, current.Status()) {
		return nil
	}
	return s.b.attach(ctx, s.kind, current.ProjectUUID(), current.ID(), handler)
}

// WaitFor polls until the entity reaches status. Waiting for "archived"
// returns a snapshot with Exists()==false once the entity is gone.
func (s Storage) WaitFor(ctx context.Context, status string, timeout time.Duration) (Storage, error) {
	var p *poll.Poller
	if s.b != nil {
		p = s.b.poller
	}
	return poll.Until(ctx, p, storageSpec(s.kind), s, status, timeout, s.Refresh)
}

func storageSpec(kind string) poll.Spec {
	return poll.Spec{
		Kind:     kind,
		Valid:    []string{"downloading", "ready", "archived"},
		Terminal: "archived",
		Failed:   "failed",
	}
}

// LogValue implements slog.LogValuer.
func (s Storage) LogValue() slog.Value {
	return slog.GroupValue(slog.String("kind", s.kind), slog.String("id", s.w.ID), slog.String("status", s.w.Status))
}

// StorageService manages one storage collection.
type StorageService struct {
	b    *backend
	kind string
}

func newStorageService(b *backend, kind string) *StorageService {
	return &StorageService{b: b, kind: kind}
}

// Kind returns the entity type served, e.g. "dataset".
func (s *StorageService) Kind() string { return s.kind }

// Get fetches one entity.
func (s *StorageService) Get(ctx context.Context, id string, params map[string]any) (Storage, error) {
	data, err := s.b.query(ctx, http.MethodGet, "/"+s.kind+"/"+id, params, nil)
	if err != nil {
		return Storage{}, err
	}
	return newStorage(s.b, s.kind, data)
}

// List fetches every entity visible in the active project.
func (s *StorageService) List(ctx context.Context, params map[string]any) ([]Storage, error) {
	data, err := s.b.query(ctx, http.MethodGet, "/"+s.kind, params, nil)
	if err != nil {
		return nil, err
	}
	return decodeList(data, func(item json.RawMessage) (Storage, error) {
		return newStorage(s.b, s.kind, item)
	})
}

// CreateStorage describes a new storage entity.
type CreateStorage struct {
	Name          string         `json:"name"`
	SourceType    string         `json:"source_type"`
	SourceURI     string         `json:"source_uri"`
	SourceOptions map[string]any `json:"source_options,omitempty"`
	// Capacity applies to volumes only, e.g. "10G".
	Capacity    string `json:"capacity,omitempty"`
	ProjectUUID string `json:"project_uuid,omitempty"`
}

// Create creates an entity in spec.ProjectUUID, defaulting to the active project.
func (s *StorageService) Create(ctx context.Context, spec CreateStorage) (Storage, error) {
	if spec.Name == "" {
		return Storage{}, &client.SpecificationError{Attribute: "name", Message: "name is required"}
	}
	if s.kind == "volume" && spec.Capacity == "" {
		return Storage{}, &client.SpecificationError{Attribute: "capacity", Message: "capacity is required for volumes"}
	}
	if spec.ProjectUUID == "" {
		spec.ProjectUUID = s.b.api.Project()
	}
	data, err := s.b.query(ctx, http.MethodPost, "/"+s.kind, nil, spec)
	if err != nil {
		return Storage{}, err
	}
	created, err := newStorage(s.b, s.kind, data)
	if err != nil {
		return Storage{}, err
	}
	s.b.logger.Info("created "+s.kind, "name", spec.Name, "id", created.ID())
	return created, nil
}

// Remove force-deletes an entity by id.
func (s *StorageService) Remove(ctx context.Context, id string, params map[string]any) error {
	_, err := s.b.query(ctx, http.MethodDelete, "/"+s.kind+"/"+id, merge(params, map[string]any{"force": true}), nil)
	return err
}
