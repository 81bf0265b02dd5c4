package resources

import (
	"context"
	"encoding/json"
	"net/http"
	"time"

	"github.com/rmax-ai/proximl/pkg/client"
	"github.com/rmax-ai/proximl/pkg/poll"
)

// Cloudbender groups the bring-your-own-infrastructure collections.
type Cloudbender struct {
	Providers  *Providers
	Regions    *Regions
	Services   *Services
	Datastores *Datastores
}

func newCloudbender(b *backend) *Cloudbender {
	return &Cloudbender{
		Providers:  &Providers{b: b},
		Regions:    &Regions{b: b},
		Services:   &Services{b: b},
		Datastores: &Datastores{b: b},
	}
}

func regionPath(provider, region string) string {
	return "/provider/" + provider + "/region/" + region
}

// Provider is a compute provider account.
type Provider struct {
	snapshot
	w struct {
		ID      string  `json:"provider_uuid"`
		Type    string  `json:"type"`
		Credits float64 `json:"credits"`
	}
	b *backend
}

func (p Provider) ID() string       { return p.w.ID }
func (p Provider) Type() string     { return p.w.Type }
func (p Provider) Credits() float64 { return p.w.Credits }
func (p Provider) Exists() bool     { return p.w.ID != "" }

// Refresh re-reads the provider.
func (p Provider) Refresh(ctx context.Context) (Provider, error) {
	if p.b == nil || !p.Exists() {
		return Provider{}, &client.SpecificationError{Attribute: "id", Message: "provider does not exist"}
	}
	return (&Providers{b: p.b}).Get(ctx, p.w.ID)
}

// Remove deletes the provider.
func (p Provider) Remove(ctx context.Context) error {
	if p.b == nil || !p.Exists() {
		return &client.SpecificationError{Attribute: "id", Message: "provider does not exist"}
	}
	return (&Providers{b: p.b}).Remove(ctx, p.w.ID)
}

// Providers manages provider accounts.
type Providers struct {
	b *backend
}

func (s *Providers) build(data json.RawMessage) (Provider, error) {
	p := Provider{b: s.b}
	snap, err := decode(data, &p.w)
	p.snapshot = snap
	return p, err
}

// Get fetches one provider.
func (s *Providers) Get(ctx context.Context, id string) (Provider, error) {
	data, err := s.b.query(ctx, http.MethodGet, "/provider/"+id, nil, nil)
	if err != nil {
		return Provider{}, err
	}
	return s.build(data)
}

// List fetches every enabled provider.
func (s *Providers) List(ctx context.Context) ([]Provider, error) {
	data, err := s.b.query(ctx, http.MethodGet, "/provider", nil, nil)
	if err != nil {
		return nil, err
	}
	return decodeList(data, s.build)
}

// Enable registers a provider of type with extra provider-specific settings.
func (s *Providers) Enable(ctx context.Context, providerType string, settings map[string]any) (Provider, error) {
	data, err := s.b.query(ctx, http.MethodPost, "/provider", nil, merge(settings, map[string]any{"type": providerType}))
	if err != nil {
		return Provider{}, err
	}
	return s.build(data)
}

// Remove deletes a provider by id.
func (s *Providers) Remove(ctx context.Context, id string) error {
	_, err := s.b.query(ctx, http.MethodDelete, "/provider/"+id, nil, nil)
	return err
}

// Region is a location within a provider.
type Region struct {
	snapshot
	w struct {
		ID           string `json:"region_uuid"`
		ProviderUUID string `json:"provider_uuid"`
		ProviderType string `json:"provider_type"`
		Name         string `json:"name"`
		Status       string `json:"status"`
	}
	b *backend
}

func (r Region) ID() string           { return r.w.ID }
func (r Region) ProviderUUID() string { return r.w.ProviderUUID }
func (r Region) ProviderType() string { return r.w.ProviderType }
func (r Region) Name() string         { return r.w.Name }
func (r Region) Status() string       { return r.w.Status }
func (r Region) Exists() bool         { return r.w.ID != "" }

// Refresh re-reads the region.
func (r Region) Refresh(ctx context.Context) (Region, error) {
	if r.b == nil || !r.Exists() {
		return Region{}, &client.SpecificationError{Attribute: "id", Message: "region does not exist"}
	}
	return (&Regions{b: r.b}).Get(ctx, r.w.ProviderUUID, r.w.ID)
}

// Remove deletes the region.
func (r Region) Remove(ctx context.Context) error {
	if r.b == nil || !r.Exists() {
		return &client.SpecificationError{Attribute: "id", Message: "region does not exist"}
	}
	return (&Regions{b: r.b}).Remove(ctx, r.w.ProviderUUID, r.w.ID)
}

// Regions manages regions.
type Regions struct {
	b *backend
}

func (s *Regions) build(data json.RawMessage) (Region, error) {
	r := Region{b: s.b}
	snap, err := decode(data, &r.w)
	r.snapshot = snap
	return r, err
}

// Get fetches one region.
func (s *Regions) Get(ctx context.Context, provider, id string) (Region, error) {
	data, err := s.b.query(ctx, http.MethodGet, regionPath(provider, id), nil, nil)
	if err != nil {
		return Region{}, err
	}
	return s.build(data)
}

// List fetches the regions of a provider.
func (s *Regions) List(ctx context.Context, provider string) ([]Region, error) {
	data, err := s.b.query(ctx, http.MethodGet, "/provider/"+provider+"/region", nil, nil)
	if err != nil {
		return nil, err
	}
	return decodeList(data, s.build)
}

// CreateRegion describes a new region.
type CreateRegion struct {
	Name    string         `json:"name"`
	Public  bool           `json:"public"`
	Storage map[string]any `json:"storage,omitempty"`
}

// Create adds a region to a provider.
func (s *Regions) Create(ctx context.Context, provider string, spec CreateRegion) (Region, error) {
	if spec.Name == "" {
		return Region{}, &client.SpecificationError{Attribute: "name", Message: "name is required"}
	}
	data, err := s.b.query(ctx, http.MethodPost, "/provider/"+provider+"/region", nil, spec)
	if err != nil {
		return Region{}, err
	}
	return s.build(data)
}

// Remove deletes a region.
func (s *Regions) Remove(ctx context.Context, provider, id string) error {
	_, err := s.b.query(ctx, http.MethodDelete, regionPath(provider, id), nil, nil)
	return err
}

var serviceSpec = poll.Spec{
	Kind:     "service",
	Valid:    []string{"active", "archived"},
	Terminal: "archived",
}

// Service is a network service published from a region.
type Service struct {
	snapshot
	w struct {
		ID             string `json:"service_id"`
		ProviderUUID   string `json:"provider_uuid"`
		RegionUUID     string `json:"region_uuid"`
		Name           string `json:"name"`
		Type           string `json:"type"`
		Hostname       string `json:"hostname"`
		CustomHostname string `json:"custom_hostname"`
		Public         bool   `json:"public"`
		Port           int    `json:"port"`
		Status         string `json:"status"`
	}
	b *backend
}

func (s Service) ID() string           { return s.w.ID }
func (s Service) ProviderUUID() string { return s.w.ProviderUUID }
func (s Service) RegionUUID() string   { return s.w.RegionUUID }
func (s Service) Name() string         { return s.w.Name }
func (s Service) Type() string         { return s.w.Type }
func (s Service) Public() bool         { return s.w.Public }
func (s Service) Port() int            { return s.w.Port }
func (s Service) Status() string       { return s.w.Status }
func (s Service) Exists() bool         { return s.w.ID != "" }

// Hostname prefers the custom hostname when one is configured.
func (s Service) Hostname() string {
	if s.w.CustomHostname != "" {
		return s.w.CustomHostname
	}
	return s.w.Hostname
}

func (s Service) path() string {
	return regionPath(s.w.ProviderUUID, s.w.RegionUUID) + "/service/" + s.w.ID
}

func (s Service) check() error {
	if s.b == nil || !s.Exists() {
		return &client.SpecificationError{Attribute: "id", Message: "service does not exist"}
	}
	return nil
}

// Refresh re-reads the service.
func (s Service) Refresh(ctx context.Context) (Service, error) {
	if err := s.check(); err != nil {
		return Service{}, err
	}
	return (&Services{b: s.b}).Get(ctx, s.w.ProviderUUID, s.w.RegionUUID, s.w.ID)
}

// Remove deletes the service.
func (s Service) Remove(ctx context.Context) error {
	if err := s.check(); err != nil {
		return err
	}
	_, err := s.b.query(ctx, http.MethodDelete, s.path(), nil, nil)
	return err
}

// GenerateCertificate issues a new server certificate. An empty algorithm means ed25519.
func (s Service) GenerateCertificate(ctx context.Context, algorithm string) (Service, error) {
	if err := s.check(); err != nil {
		return Service{}, err
	}
	if algorithm == "" {
		algorithm = "ed25519"
	}
	data, err := s.b.query(ctx, http.MethodPost, s.path()+"/certificate", nil, map[string]any{"algorithm": algorithm})
	if err != nil {
		return Service{}, err
	}
	return (&Services{b: s.b}).build(data)
}

// SignClientCertificate signs a PEM certificate request for a client of the service.
func (s Service) SignClientCertificate(ctx context.Context, csr string) (json.RawMessage, error) {
	if err := s.check(); err != nil {
		return nil, err
	}
	return s.b.query(ctx, http.MethodPost, s.path()+"/certificate/sign", nil, map[string]any{"csr": csr})
}

// WaitFor polls until the service reaches status.
func (s Service) WaitFor(ctx context.Context, status string, timeout time.Duration) (Service, error) {
	var p *poll.Poller
	if s.b != nil {
		p = s.b.poller
	}
	return poll.Until(ctx, p, serviceSpec, s, status, timeout, s.Refresh)
}

// Services manages region services.
type Services struct {
	b *backend
}

func (s *Services) build(data json.RawMessage) (Service, error) {
	svc := Service{b: s.b}
	snap, err := decode(data, &svc.w)
	svc.snapshot = snap
	return svc, err
}

// Get fetches one service.
func (s *Services) Get(ctx context.Context, provider, region, id string) (Service, error) {
	data, err := s.b.query(ctx, http.MethodGet, regionPath(provider, region)+"/service/"+id, nil, nil)
	if err != nil {
		return Service{}, err
	}
	return s.build(data)
}

// List fetches the services of a region.
func (s *Services) List(ctx context.Context, provider, region string) ([]Service, error) {
	data, err := s.b.query(ctx, http.MethodGet, regionPath(provider, region)+"/service", nil, nil)
	if err != nil {
		return nil, err
	}
	return decodeList(data, s.build)
}

// CreateService describes a new service.
type CreateService struct {
	Name   string `json:"name"`
	Type   string `json:"type"`
	Public bool   `json:"public"`
}

// Create publishes a service in a region.
func (s *Services) Create(ctx context.Context, provider, region string, spec CreateService) (Service, error) {
	if spec.Name == "" {
		return Service{}, &client.SpecificationError{Attribute: "name", Message: "name is required"}
	}
	data, err := s.b.query(ctx, http.MethodPost, regionPath(provider, region)+"/service", nil, spec)
	if err != nil {
		return Service{}, err
	}
	return s.build(data)
}

// Remove deletes a service.
func (s *Services) Remove(ctx context.Context, provider, region, id string) error {
	_, err := s.b.query(ctx, http.MethodDelete, regionPath(provider, region)+"/service/"+id, nil, nil)
	return err
}

// Datastore is a storage location registered in a region.
type Datastore struct {
	snapshot
	w struct {
		ID           string `json:"store_id"`
		ProviderUUID string `json:"provider_uuid"`
		RegionUUID   string `json:"region_uuid"`
		Name         string `json:"name"`
		Type         string `json:"type"`
		URI          string `json:"uri"`
		Root         string `json:"root"`
	}
	b *backend
}

func (d Datastore) ID() string           { return d.w.ID }
func (d Datastore) ProviderUUID() string { return d.w.ProviderUUID }
func (d Datastore) RegionUUID() string   { return d.w.RegionUUID }
func (d Datastore) Name() string         { return d.w.Name }
func (d Datastore) Type() string         { return d.w.Type }
func (d Datastore) URI() string          { return d.w.URI }
func (d Datastore) Root() string         { return d.w.Root }
func (d Datastore) Exists() bool         { return d.w.ID != "" }

// Remove deletes the datastore.
func (d Datastore) Remove(ctx context.Context) error {
	if d.b == nil || !d.Exists() {
		return &client.SpecificationError{Attribute: "id", Message: "datastore does not exist"}
	}
	return (&Datastores{b: d.b}).Remove(ctx, d.w.ProviderUUID, d.w.RegionUUID, d.w.ID)
}

// Datastores manages region datastores.
type Datastores struct {
	b *backend
}

func (s *Datastores) build(data json.RawMessage) (Datastore, error) {
	d := Datastore{b: s.b}
	snap, err := decode(data, &d.w)
	d.snapshot = snap
	return d, err
}

// Get fetches one datastore.
func (s *Datastores) Get(ctx context.Context, provider, region, id string) (Datastore, error) {
	data, err := s.b.query(ctx, http.MethodGet, regionPath(provider, region)+"/datastore/"+id, nil, nil)
	if err != nil {
		return Datastore{}, err
	}
	return s.build(data)
}

// List fetches the datastores of a region.
func (s *Datastores) List(ctx context.Context, provider, region string) ([]Datastore, error) {
	data, err := s.b.query(ctx, http.MethodGet, regionPath(provider, region)+"/datastore", nil, nil)
	if err != nil {
		return nil, err
	}
	return decodeList(data, s.build)
}

// CreateDatastore describes a new datastore.
type CreateDatastore struct {
	Name string `json:"name"`
	Type string `json:"type"`
	URI  string `json:"uri"`
	Root string `json:"root"`
}

// Create registers a datastore in a region.
func (s *Datastores) Create(ctx context.Context, provider, region string, spec CreateDatastore) (Datastore, error) {
	if spec.Name == "" {
		return Datastore{}, &client.SpecificationError{Attribute: "name", Message: "name is required"}
	}
	data, err := s.b.query(ctx, http.MethodPost, regionPath(provider, region)+"/datastore", nil, spec)
	if err != nil {
		return Datastore{}, err
	}
	return s.build(data)
}

// Remove deletes a datastore.
func (s *Datastores) Remove(ctx context.Context, provider, region, id string) error {
	_, err := s.b.query(ctx, http.MethodDelete, regionPath(provider, region)+"/datastore/"+id, nil, nil)
	return err
}
