package resources

import (
	"context"
	"net/http"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/rmax-ai/proximl/pkg/client"
)

func TestProjectService(t *testing.T) {
	ctx := context.Background()
	api := (&fakeAPI{project: "proj-1"}).
		reply(`{"id":"proj-1","name":"Personal","owner":true,"owner_name":"Me"}`).
		reply(`[{"id":"proj-1","name":"Personal"},{"id":"proj-2","name":"Shared"}]`).
		reply(`{"id":"proj-3","name":"New"}`)
	px, _ := newTestProxiML(api)

	current, err := px.Projects.Current(ctx)
	require.NoError(t, err)
	assert.Equal(t, "Personal", current.Name())
	assert.True(t, current.IsOwner())
	assert.Equal(t, call{Method: http.MethodGet, Path: "/project/proj-1"}, api.last(t))

	projects, err := px.Projects.List(ctx)
	require.NoError(t, err)
	assert.Len(t, projects, 2)

	created, err := px.Projects.Create(ctx, "New", true)
	require.NoError(t, err)
	assert.Equal(t, "proj-3", created.ID())
	assert.Equal(t, call{Method: http.MethodPost, Path: "/project", Body: map[string]any{"name": "New", "copy_keys": true}}, api.last(t))

	require.NoError(t, created.Remove(ctx))
	assert.Equal(t, call{Method: http.MethodDelete, Path: "/project/proj-3"}, api.last(t))
}

func TestProjectService_NoActiveProject(t *testing.T) {
	px, _ := newTestProxiML(&fakeAPI{})
	_, err := px.Projects.Current(context.Background())
	var specErr *client.SpecificationError
	require.ErrorAs(t, err, &specErr)
	assert.Equal(t, "project", specErr.Attribute)
}

func TestProjectKeys(t *testing.T) {
	ctx := context.Background()
	api := (&fakeAPI{}).
		reply(`[{"type":"aws","project_uuid":"1","key_id":"AIUDHADA"},{"type":"gcp","project_uuid":"1","key_id":"x"}]`).
		reply(`{"type":"aws","project_uuid":"1","key_id":"AIUDHADA","updatedAt":"2023-06-02T21:22:40.084Z"}`)
	px, _ := newTestProxiML(api)
	keys := px.Projects.Keys("1")

	list, err := keys.List(ctx)
	require.NoError(t, err)
	require.Len(t, list, 2)
	assert.Equal(t, call{Method: http.MethodGet, Path: "/project/1/keys"}, api.last(t))

	key, err := keys.Put(ctx, "aws", "AIUDHADA", "ASKHJSLKF", "")
	require.NoError(t, err)
	assert.Equal(t, "aws", key.Type())
	assert.True(t, key.Exists())
	assert.Equal(t, call{
		Method: http.MethodPut,
		Path:   "/project/1/key/aws",
		Body:   map[string]any{"key_id": "AIUDHADA", "secret": "ASKHJSLKF"},
	}, api.last(t))

	_, err = keys.Put(ctx, "azure", "id", "secret", "tenant-1")
	require.NoError(t, err)
	assert.Equal(t, "tenant-1", api.last(t).Body["tenant"])

	require.NoError(t, keys.Remove(ctx, "aws"))
	assert.Equal(t, call{Method: http.MethodDelete, Path: "/project/1/key/aws"}, api.last(t))
}

func TestProjectSecrets(t *testing.T) {
	ctx := context.Background()
	api := (&fakeAPI{}).
		reply(`[{"name":"a","project_uuid":"1"},{"name":"b","project_uuid":"1"}]`).
		reply(`{"project_uuid":"project-id-1","name":"secret_value"}`)
	px, _ := newTestProxiML(api)
	secrets := px.Projects.Secrets("1")

	list, err := secrets.List(ctx)
	require.NoError(t, err)
	assert.Len(t, list, 2)
	assert.Equal(t, call{Method: http.MethodGet, Path: "/project/1/secrets"}, api.last(t))

	secret, err := secrets.Put(ctx, "secret_value", "ASKHJSLKF")
	require.NoError(t, err)
	assert.Equal(t, "secret_value", secret.Name())
	assert.Equal(t, call{Method: http.MethodPut, Path: "/project/1/secret/secret_value", Body: map[string]any{"value": "ASKHJSLKF"}}, api.last(t))

	require.NoError(t, secrets.Remove(ctx, "secret_value"))
	assert.Equal(t, call{Method: http.MethodDelete, Path: "/project/1/secret/secret_value"}, api.last(t))
}

func TestProjectServices(t *testing.T) {
	ctx := context.Background()
	api := (&fakeAPI{}).reply(`{"id":"res-id-1","project_uuid":"proj-id-1","region_uuid":"reg-1","name":"On-Prem Service A","hostname":"service-a.local","public":true}`)
	px, _ := newTestProxiML(api)
	services := px.Projects.Services("proj-id-1")

	svc, err := services.Get(ctx, "res-id-1")
	require.NoError(t, err)
	assert.Equal(t, call{Method: http.MethodGet, Path: "/project/proj-id-1/services/res-id-1"}, api.last(t))
	assert.Equal(t, "service-a.local", svc.Hostname())
	assert.True(t, svc.Public())

	require.NoError(t, services.Refresh(ctx))
	assert.Equal(t, call{Method: http.MethodPatch, Path: "/project/proj-id-1/services"}, api.last(t))

	require.NoError(t, svc.Enable(ctx))
	assert.Equal(t, call{Method: http.MethodPatch, Path: "/project/proj-id-1/services/res-id-1/enable"}, api.last(t))
	require.NoError(t, svc.Disable(ctx))
	assert.Equal(t, call{Method: http.MethodPatch, Path: "/project/proj-id-1/services/res-id-1/disable"}, api.last(t))

	_, err = svc.CertificateAuthority(ctx)
	require.NoError(t, err)
	assert.Equal(t, call{Method: http.MethodGet, Path: "/project/proj-id-1/services/res-id-1/certificate/ca"}, api.last(t))

	_, err = svc.SignCertificate(ctx, "-----BEGIN CERTIFICATE REQUEST-----")
	require.NoError(t, err)
	assert.Equal(t, call{
		Method: http.MethodPost,
		Path:   "/project/proj-id-1/services/res-id-1/certificate/sign",
		Body:   map[string]any{"csr": "-----BEGIN CERTIFICATE REQUEST-----"},
	}, api.last(t))
}

func TestProjectDatastores(t *testing.T) {
	ctx := context.Background()
	api := (&fakeAPI{}).
		reply(`{"id":"ds-1","name":"nas","project_uuid":"1","type":"nfs","region_uuid":"reg-1"}`).
		reply(`[{"id":"ds-1"},{"id":"ds-2"}]`)
	px, _ := newTestProxiML(api)
	datastores := px.Projects.Datastores("1")

	ds, err := datastores.Get(ctx, "ds-1")
	require.NoError(t, err)
	assert.Equal(t, "nfs", ds.Type())
	assert.Equal(t, call{Method: http.MethodGet, Path: "/project/1/datastores/ds-1"}, api.last(t))

	list, err := datastores.List(ctx)
	require.NoError(t, err)
	assert.Len(t, list, 2)

	require.NoError(t, datastores.Refresh(ctx))
	assert.Equal(t, call{Method: http.MethodPatch, Path: "/project/1/datastores"}, api.last(t))

	require.NoError(t, ds.Enable(ctx))
	assert.Equal(t, call{Method: http.MethodPatch, Path: "/project/1/datastores/ds-1/enable"}, api.last(t))
}
