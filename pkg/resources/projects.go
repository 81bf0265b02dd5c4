package resources

import (
	"context"
	"encoding/json"
	"net/http"
	"net/url"

	"github.com/rmax-ai/proximl/pkg/client"
)

type projectWire struct {
	ID        string `json:"id"`
	Name      string `json:"name"`
	OwnerName string `json:"owner_name"`
	Owner     bool   `json:"owner"`
}

// Project is a project snapshot. Its sub-collections are scoped to its id.
type Project struct {
	snapshot
	w projectWire
	b *backend
}

func newProject(b *backend, data json.RawMessage) (Project, error) {
	var w projectWire
	snap, err := decode(data, &w)
	if err != nil {
		return Project{}, err
	}
	if w.ID == "" {
		w.ID = uuidField(data, "project")
	}
	return Project{snapshot: snap, w: w, b: b}, nil
}

func (p Project) ID() string        { return p.w.ID }
func (p Project) Name() string      { return p.w.Name }
func (p Project) OwnerName() string { return p.w.OwnerName }
func (p Project) IsOwner() bool     { return p.w.Owner }
func (p Project) Exists() bool      { return p.w.ID != "" }

func (p Project) Keys() *ProjectKeys             { return &ProjectKeys{b: p.b, project: p.w.ID} }
func (p Project) Secrets() *ProjectSecrets       { return &ProjectSecrets{b: p.b, project: p.w.ID} }
func (p Project) Services() *ProjectServices     { return &ProjectServices{b: p.b, project: p.w.ID} }
func (p Project) Datastores() *ProjectDatastores { return &ProjectDatastores{b: p.b, project: p.w.ID} }

// Remove deletes the project.
func (p Project) Remove(ctx context.Context) error {
	if p.b == nil || !p.Exists() {
		return &client.SpecificationError{Attribute: "id", Message: "project does not exist"}
	}
	_, err := p.b.query(ctx, http.MethodDelete, "/project/"+p.w.ID, nil, nil)
	return err
}

// ProjectService manages projects.
type ProjectService struct {
	b *backend
}

// Get fetches one project.
func (s *ProjectService) Get(ctx context.Context, id string) (Project, error) {
	data, err := s.b.query(ctx, http.MethodGet, "/project/"+id, nil, nil)
	if err != nil {
		return Project{}, err
	}
	return newProject(s.b, data)
}

// Current fetches the active project.
func (s *ProjectService) Current(ctx context.Context) (Project, error) {
	id := s.b.api.Project()
	if id == "" {
		return Project{}, &client.SpecificationError{Attribute: "project", Message: "no active project configured"}
	}
	return s.Get(ctx, id)
}

// List fetches every project the user can access.
func (s *ProjectService) List(ctx context.Context) ([]Project, error) {
	data, err := s.b.query(ctx, http.MethodGet, "/project", nil, nil)
	if err != nil {
		return nil, err
	}
	return decodeList(data, func(item json.RawMessage) (Project, error) { return newProject(s.b, item) })
}

// Create creates a project, optionally copying the caller's keys into it.
func (s *ProjectService) Create(ctx context.Context, name string, copyKeys bool) (Project, error) {
	if name == "" {
		return Project{}, &client.SpecificationError{Attribute: "name", Message: "name is required"}
	}
	data, err := s.b.query(ctx, http.MethodPost, "/project", nil, map[string]any{"name": name, "copy_keys": copyKeys})
	if err != nil {
		return Project{}, err
	}
	project, err := newProject(s.b, data)
	if err != nil {
		return Project{}, err
	}
	s.b.logger.Info("created project", "name", name, "id", project.ID())
	return project, nil
}

// Remove deletes a project by id.
func (s *ProjectService) Remove(ctx context.Context, id string) error {
	_, err := s.b.query(ctx, http.MethodDelete, "/project/"+id, nil, nil)
	return err
}

// Keys returns the key collection of a project.
func (s *ProjectService) Keys(projectID string) *ProjectKeys {
	return &ProjectKeys{b: s.b, project: projectID}
}

// Secrets returns the secret collection of a project.
func (s *ProjectService) Secrets(projectID string) *ProjectSecrets {
	return &ProjectSecrets{b: s.b, project: projectID}
}

// Services returns the service collection of a project.
func (s *ProjectService) Services(projectID string) *ProjectServices {
	return &ProjectServices{b: s.b, project: projectID}
}

// Datastores returns the datastore collection of a project.
func (s *ProjectService) Datastores(projectID string) *ProjectDatastores {
	return &ProjectDatastores{b: s.b, project: projectID}
}

// ProjectKey is a third-party key stored in a project.
type ProjectKey struct {
	snapshot
	w struct {
		Type        string `json:"type"`
		ProjectUUID string `json:"project_uuid"`
		KeyID       string `json:"key_id"`
		UpdatedAt   string `json:"updatedAt"`
	}
}

func newProjectKey(data json.RawMessage) (ProjectKey, error) {
	var k ProjectKey
	snap, err := decode(data, &k.w)
	k.snapshot = snap
	return k, err
}

func (k ProjectKey) Type() string        { return k.w.Type }
func (k ProjectKey) ProjectUUID() string { return k.w.ProjectUUID }
func (k ProjectKey) KeyID() string       { return k.w.KeyID }
func (k ProjectKey) UpdatedAt() string   { return k.w.UpdatedAt }
func (k ProjectKey) Exists() bool        { return k.w.Type != "" }

// ProjectKeys manages the keys of one project.
type ProjectKeys struct {
	b       *backend
	project string
}

func (s *ProjectKeys) base() string { return "/project/" + s.project }

// List fetches the project's keys.
func (s *ProjectKeys) List(ctx context.Context) ([]ProjectKey, error) {
	data, err := s.b.query(ctx, http.MethodGet, s.base()+"/keys", nil, nil)
	if err != nil {
		return nil, err
	}
	return decodeList(data, newProjectKey)
}

// Put stores or replaces the key of a type. tenant is only sent when set.
func (s *ProjectKeys) Put(ctx context.Context, keyType, keyID, secret, tenant string) (ProjectKey, error) {
	body := map[string]any{"key_id": keyID, "secret": secret}
	if tenant != "" {
		body["tenant"] = tenant
	}
	data, err := s.b.query(ctx, http.MethodPut, s.base()+"/key/"+url.PathEscape(keyType), nil, body)
	if err != nil {
		return ProjectKey{}, err
	}
	key, err := newProjectKey(data)
	if err != nil {
		return ProjectKey{}, err
	}
	s.b.logger.Info("stored project key", "project", s.project, "type", keyType)
	return key, nil
}

// Remove deletes the key of a type.
func (s *ProjectKeys) Remove(ctx context.Context, keyType string) error {
	_, err := s.b.query(ctx, http.MethodDelete, s.base()+"/key/"+url.PathEscape(keyType), nil, nil)
	return err
}

// ProjectSecret is a named secret. Values are write-only.
type ProjectSecret struct {
	snapshot
	w struct {
		Name        string `json:"name"`
		ProjectUUID string `json:"project_uuid"`
		UpdatedAt   string `json:"updatedAt"`
	}
}

func newProjectSecret(data json.RawMessage) (ProjectSecret, error) {
	var s ProjectSecret
	snap, err := decode(data, &s.w)
	s.snapshot = snap
	return s, err
}

func (s ProjectSecret) Name() string        { return s.w.Name }
func (s ProjectSecret) ProjectUUID() string { return s.w.ProjectUUID }
func (s ProjectSecret) UpdatedAt() string   { return s.w.UpdatedAt }
func (s ProjectSecret) Exists() bool        { return s.w.Name != "" }

// ProjectSecrets manages the secrets of one project.
type ProjectSecrets struct {
	b       *backend
	project string
}

func (s *ProjectSecrets) base() string { return "/project/" + s.project }

// List fetches the project's secrets.
func (s *ProjectSecrets) List(ctx context.Context) ([]ProjectSecret, error) {
	data, err := s.b.query(ctx, http.MethodGet, s.base()+"/secrets", nil, nil)
	if err != nil {
		return nil, err
	}
	return decodeList(data, newProjectSecret)
}

// Put stores or replaces a secret.
func (s *ProjectSecrets) Put(ctx context.Context, name, value string) (ProjectSecret, error) {
	data, err := s.b.query(ctx, http.MethodPut, s.base()+"/secret/"+url.PathEscape(name), nil, map[string]any{"value": value})
	if err != nil {
		return ProjectSecret{}, err
	}
	return newProjectSecret(data)
}

// Remove deletes a secret.
func (s *ProjectSecrets) Remove(ctx context.Context, name string) error {
	_, err := s.b.query(ctx, http.MethodDelete, s.base()+"/secret/"+url.PathEscape(name), nil, nil)
	return err
}

// ProjectServiceEntity is a cloudbender service as seen from a project.
type ProjectServiceEntity struct {
	snapshot
	w struct {
		ID          string `json:"id"`
		ProjectUUID string `json:"project_uuid"`
		RegionUUID  string `json:"region_uuid"`
		Name        string `json:"name"`
		Hostname    string `json:"hostname"`
		Public      bool   `json:"public"`
	}
	b *backend
}

func (s ProjectServiceEntity) ID() string          { return s.w.ID }
func (s ProjectServiceEntity) Name() string        { return s.w.Name }
func (s ProjectServiceEntity) ProjectUUID() string { return s.w.ProjectUUID }
func (s ProjectServiceEntity) RegionUUID() string  { return s.w.RegionUUID }
func (s ProjectServiceEntity) Hostname() string    { return s.w.Hostname }
func (s ProjectServiceEntity) Public() bool        { return s.w.Public }
func (s ProjectServiceEntity) Exists() bool        { return s.w.ID != "" }

func (s ProjectServiceEntity) path(suffix string) string {
	return "/project/" + s.w.ProjectUUID + "/services/" + s.w.ID + suffix
}

// Enable exposes the service to the project.
func (s ProjectServiceEntity) Enable(ctx context.Context) error {
	_, err := s.b.query(ctx, http.MethodPatch, s.path("/enable"), nil, nil)
	return err
}

// Disable hides the service from the project.
func (s ProjectServiceEntity) Disable(ctx context.Context) error {
	_, err := s.b.query(ctx, http.MethodPatch, s.path("/disable"), nil, nil)
	return err
}

// CertificateAuthority returns the CA certificate clients verify the service with.
func (s ProjectServiceEntity) CertificateAuthority(ctx context.Context) (json.RawMessage, error) {
	return s.b.query(ctx, http.MethodGet, s.path("/certificate/ca"), nil, nil)
}

// SignCertificate signs a client certificate request for the service.
func (s ProjectServiceEntity) SignCertificate(ctx context.Context, csr string) (json.RawMessage, error) {
	return s.b.query(ctx, http.MethodPost, s.path("/certificate/sign"), nil, map[string]any{"csr": csr})
}

// ProjectServices manages the services visible to one project.
type ProjectServices struct {
	b       *backend
	project string
}

func (s *ProjectServices) build(data json.RawMessage) (ProjectServiceEntity, error) {
	e := ProjectServiceEntity{b: s.b}
	snap, err := decode(data, &e.w)
	e.snapshot = snap
	return e, err
}

// Get fetches one service.
func (s *ProjectServices) Get(ctx context.Context, id string) (ProjectServiceEntity, error) {
	data, err := s.b.query(ctx, http.MethodGet, "/project/"+s.project+"/services/"+id, nil, nil)
	if err != nil {
		return ProjectServiceEntity{}, err
	}
	return s.build(data)
}

// List fetches every service visible to the project.
func (s *ProjectServices) List(ctx context.Context) ([]ProjectServiceEntity, error) {
	data, err := s.b.query(ctx, http.MethodGet, "/project/"+s.project+"/services", nil, nil)
	if err != nil {
		return nil, err
	}
	return decodeList(data, s.build)
}

// Refresh asks the server to resynchronize the project's service list.
func (s *ProjectServices) Refresh(ctx context.Context) error {
	_, err := s.b.query(ctx, http.MethodPatch, "/project/"+s.project+"/services", nil, nil)
	return err
}

// ProjectDatastore is a cloudbender datastore as seen from a project.
type ProjectDatastore struct {
	snapshot
	w struct {
		ID          string `json:"id"`
		Name        string `json:"name"`
		ProjectUUID string `json:"project_uuid"`
		Type        string `json:"type"`
		RegionUUID  string `json:"region_uuid"`
	}
	b *backend
}

func (d ProjectDatastore) ID() string          { return d.w.ID }
func (d ProjectDatastore) Name() string        { return d.w.Name }
func (d ProjectDatastore) ProjectUUID() string { return d.w.ProjectUUID }
func (d ProjectDatastore) Type() string        { return d.w.Type }
func (d ProjectDatastore) RegionUUID() string  { return d.w.RegionUUID }
func (d ProjectDatastore) Exists() bool        { return d.w.ID != "" }

func (d ProjectDatastore) path(suffix string) string {
	return "/project/" + d.w.ProjectUUID + "/datastores/" + d.w.ID + suffix
}

// Enable makes the datastore available to the project.
func (d ProjectDatastore) Enable(ctx context.Context) error {
	_, err := d.b.query(ctx, http.MethodPatch, d.path("/enable"), nil, nil)
	return err
}

// Disable withdraws the datastore from the project.
func (d ProjectDatastore) Disable(ctx context.Context) error {
	_, err := d.b.query(ctx, http.MethodPatch, d.path("/disable"), nil, nil)
	return err
}

// ProjectDatastores manages the datastores visible to one project.
type ProjectDatastores struct {
	b       *backend
	project string
}

func (s *ProjectDatastores) build(data json.RawMessage) (ProjectDatastore, error) {
	d := ProjectDatastore{b: s.b}
	snap, err := decode(data, &d.w)
	d.snapshot = snap
	return d, err
}

// Get fetches one datastore.
func (s *ProjectDatastores) Get(ctx context.Context, id string) (ProjectDatastore, error) {
	data, err := s.b.query(ctx, http.MethodGet, "/project/"+s.project+"/datastores/"+id, nil, nil)
	if err != nil {
		return ProjectDatastore{}, err
	}
	return s.build(data)
}

// List fetches every datastore visible to the project.
func (s *ProjectDatastores) List(ctx context.Context) ([]ProjectDatastore, error) {
	data, err := s.b.query(ctx, http.MethodGet, "/project/"+s.project+"/datastores", nil, nil)
	if err != nil {
		return nil, err
	}
	return decodeList(data, s.build)
}

// Refresh asks the server to resynchronize the project's datastore list.
func (s *ProjectDatastores) Refresh(ctx context.Context) error {
	_, err := s.b.query(ctx, http.MethodPatch, "/project/"+s.project+"/datastores", nil, nil)
	return err
}
