package resources

import (
	"context"
	"encoding/json"
	"net/http"
	"slices"
	"time"

	"github.com/rmax-ai/proximl/pkg/client"
	"github.com/rmax-ai/proximl/pkg/poll"
)

var jobSpec = poll.Spec{
	Kind: "job",
	Valid: []string{
		"waiting for data/model download",
		"waiting for GPUs",
		"waiting for resources",
		"running",
		"stopped",
		"finished",
		"archived",
	},
	Terminal: "archived",
	Failed:   "failed",
}

type jobWire struct {
	ID          string `json:"id"`
	Name        string `json:"name"`
	Status      string `json:"status"`
	Type        string `json:"type"`
	ProjectUUID string `json:"project_uuid"`
	Resources   struct {
		GPUCount int      `json:"gpu_count"`
		GPUTypes []string `json:"gpu_types"`
		DiskSize int      `json:"disk_size"`
	} `json:"resources"`
	Workers []struct {
		ID      string `json:"job_worker_uuid"`
		Command string `json:"command"`
		Status  string `json:"status"`
	} `json:"workers"`
}

// Job is a training, inference, notebook or endpoint job snapshot.
type Job struct {
	snapshot
	w jobWire
	b *backend
}

func newJob(b *backend, data json.RawMessage) (Job, error) {
	var w jobWire
	snap, err := decode(data, &w)
	if err != nil {
		return Job{}, err
	}
	if w.ID == "" {
		w.ID = uuidField(data, "job")
	}
	return Job{snapshot: snap, w: w, b: b}, nil
}

func (j Job) ID() string          { return j.w.ID }
func (j Job) Name() string        { return j.w.Name }
func (j Job) Status() string      { return j.w.Status }
func (j Job) Type() string        { return j.w.Type }
func (j Job) ProjectUUID() string { return j.w.ProjectUUID }
func (j Job) GPUCount() int       { return j.w.Resources.GPUCount }
func (j Job) GPUTypes() []string  { return slices.Clone(j.w.Resources.GPUTypes) }
func (j Job) Exists() bool        { return j.w.ID != "" }

// WorkerCount is the number of workers the job runs.
func (j Job) WorkerCount() int { return len(j.w.Workers) }

// WorkerStatuses lists each worker's status in order.
func (j Job) WorkerStatuses() []string {
	out := make([]string, 0, len(j.w.Workers))
	for _, w := range j.w.Workers {
		out = append(out, w.Status)
	}
	return out
}

func (j Job) call(ctx context.Context, method string, params map[string]any, body any) (json.RawMessage, error) {
	if j.b == nil || !j.Exists() {
		return nil, &client.SpecificationError{Attribute: "id", Message: "job does not exist"}
	}
	return j.b.query(ctx, method, "/job/"+j.w.ID, merge(projectScope(j.w.ProjectUUID), params), body)
}

// Refresh re-reads the job.
func (j Job) Refresh(ctx context.Context) (Job, error) {
	data, err := j.call(ctx, http.MethodGet, nil, nil)
	if err != nil {
		return Job{}, err
	}
	return newJob(j.b, data)
}

func (j Job) command(ctx context.Context, command string) (Job, error) {
	data, err := j.call(ctx, http.MethodPatch, nil, map[string]any{"command": command})
	if err != nil {
		return Job{}, err
	}
	return newJob(j.b, data)
}

// Start resumes a stopped job.
func (j Job) Start(ctx context.Context) (Job, error) { return j.command(ctx, "start") }

// Stop stops a running job.
func (j Job) Stop(ctx context.Context) (Job, error) { return j.command(ctx, "stop") }

// Remove deletes the job.
func (j Job) Remove(ctx context.Context, force bool) error {
	_, err := j.call(ctx, http.MethodDelete, map[string]any{"force": force}, nil)
	return err
}

// Attach streams the job's logs unless it already finished, stopped or failed.
func (j Job) Attach(ctx context.Context, handler client.FrameHandler) error {
	current, err := j.Refresh(ctx)
	if err != nil {
		return err
	}
	if slices.Contains([]string{"finished", "stopped", "failed"}, current.Status()) {
		return nil
	}
	return j.b.attach(ctx, "job", current.ProjectUUID(), current.ID(), handler)
}

// WaitFor polls until the job reaches status.
func (j Job) WaitFor(ctx context.Context, status string, timeout time.Duration) (Job, error) {
	var p *poll.Poller
	if j.b != nil {
		p = j.b.poller
	}
	return poll.Until(ctx, p, jobSpec, j, status, timeout, j.Refresh)
}

// JobService manages jobs.
type JobService struct {
	b *backend
}

// Get fetches one job.
func (s *JobService) Get(ctx context.Context, id string, params map[string]any) (Job, error) {
	data, err := s.b.query(ctx, http.MethodGet, "/job/"+id, params, nil)
	if err != nil {
		return Job{}, err
	}
	return newJob(s.b, data)
}

// List fetches every job in the active project.
func (s *JobService) List(ctx context.Context, params map[string]any) ([]Job, error) {
	data, err := s.b.query(ctx, http.MethodGet, "/job", params, nil)
	if err != nil {
		return nil, err
	}
	return decodeList(data, func(item json.RawMessage) (Job, error) { return newJob(s.b, item) })
}

// JobWorker is one worker command.
type JobWorker struct {
	Command string `json:"command"`
}

// JobResources selects the hardware a job runs on.
type JobResources struct {
	GPUTypes []string `json:"gpu_types"`
	GPUCount int      `json:"gpu_count"`
	DiskSize int      `json:"disk_size"`
}

// CreateJob describes a new job.
type CreateJob struct {
	Name        string         `json:"name"`
	Type        string         `json:"type"`
	Resources   JobResources   `json:"resources"`
	Workers     []JobWorker    `json:"workers,omitempty"`
	Environment map[string]any `json:"environment,omitempty"`
	Data        map[string]any `json:"data,omitempty"`
	Model       map[string]any `json:"model,omitempty"`
	ProjectUUID string         `json:"project_uuid,omitempty"`
}

var jobTypes = []string{"training", "inference", "notebook", "endpoint"}

// Create submits a job.
func (s *JobService) Create(ctx context.Context, spec CreateJob) (Job, error) {
	if spec.Name == "" {
		return Job{}, &client.SpecificationError{Attribute: "name", Message: "name is required"}
	}
	if !slices.Contains(jobTypes, spec.Type) {
		return Job{}, &client.SpecificationError{Attribute: "type", Message: "type must be one of training, inference, notebook or endpoint"}
	}
	if spec.Resources.GPUCount < 1 {
		spec.Resources.GPUCount = 1
	}
	if spec.ProjectUUID == "" {
		spec.ProjectUUID = s.b.api.Project()
	}
	data, err := s.b.query(ctx, http.MethodPost, "/job", nil, spec)
	if err != nil {
		return Job{}, err
	}
	job, err := newJob(s.b, data)
	if err != nil {
		return Job{}, err
	}
	s.b.logger.Info("created job", "name", spec.Name, "id", job.ID())
	return job, nil
}

// Remove force-deletes a job by id.
func (s *JobService) Remove(ctx context.Context, id string, params map[string]any) error {
	_, err := s.b.query(ctx, http.MethodDelete, "/job/"+id, merge(params, map[string]any{"force": true}), nil)
	return err
}
