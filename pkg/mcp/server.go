package mcp

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/mark3labs/mcp-go/mcp"
	"github.com/mark3labs/mcp-go/server"

	"github.com/rmax-ai/proximl/pkg/client"
	"github.com/rmax-ai/proximl/pkg/resources"
)

// Server exposes proximl resources over the Model Context Protocol.
type Server struct {
	mcpServer *server.MCPServer
	px        *resources.ProxiML
	logger    *slog.Logger
}

// NewServer creates a new MCP server instance.
func NewServer(px *resources.ProxiML, version string, logger *slog.Logger) *Server {
	if logger == nil {
		logger = slog.Default()
	}
	s := &Server{
		mcpServer: server.NewMCPServer(
			"proximl",
			version,
		),
		px:     px,
		logger: logger,
	}
	s.registerResources()
	s.registerTools()
	s.registerPrompts()
	return s
}

// Serve starts the MCP server on stdio.
func (s *Server) Serve() error {
	return server.ServeStdio(s.mcpServer)
}

var kinds = []string{"dataset", "model", "checkpoint", "volume", "job", "project"}

// --- Resources ---

func (s *Server) registerResources() {
	for _, kind := range kinds {
		uri := "proximl://" + kind + "s"
		s.mcpServer.AddResource(mcp.NewResource(
			uri,
			"proximl "+kind+"s",
			mcp.WithResourceDescription(fmt.Sprintf("Every %s visible in the active project", kind)),
			mcp.WithMIMEType("application/json"),
		), s.listHandler(kind))
	}
}

// --- Tools ---

func (s *Server) registerTools() {
	s.mcpServer.AddTool(mcp.NewTool(
		"get_resource",
		mcp.WithDescription("Fetch the current state of a dataset, model, checkpoint, volume, job or project."),
		mcp.WithString("kind", mcp.Required(), mcp.Enum(kinds...), mcp.Description("Resource type")),
		mcp.WithString("id", mcp.Required(), mcp.Description("Resource id")),
	), s.handleGetResource)

	s.mcpServer.AddTool(mcp.NewTool(
		"wait_for_status",
		mcp.WithDescription("Poll a storage entity or job until it reaches a status. Returns the final state."),
		mcp.WithString("kind", mcp.Required(), mcp.Enum(kinds[:5]...), mcp.Description("Resource type")),
		mcp.WithString("id", mcp.Required(), mcp.Description("Resource id")),
		mcp.WithString("status", mcp.Required(), mcp.Description("Target status, e.g. 'ready' or 'running'")),
		mcp.WithNumber("timeout_seconds", mcp.Description("Maximum wait (default 300)")),
	), s.handleWaitForStatus)

	s.mcpServer.AddTool(mcp.NewTool(
		"job_command",
		mcp.WithDescription("Start or stop a job."),
		mcp.WithString("id", mcp.Required(), mcp.Description("Job id")),
		mcp.WithString("command", mcp.Required(), mcp.Enum("start", "stop"), mcp.Description("Command to send")),
	), s.handleJobCommand)

	s.mcpServer.AddTool(mcp.NewTool(
		"remove_resource",
		mcp.WithDescription("Delete a dataset, model, checkpoint, volume, job or project."),
		mcp.WithString("kind", mcp.Required(), mcp.Enum(kinds...), mcp.Description("Resource type")),
		mcp.WithString("id", mcp.Required(), mcp.Description("Resource id")),
	), s.handleRemoveResource)
}

// --- Prompts ---

func (s *Server) registerPrompts() {
	s.mcpServer.AddPrompt(mcp.NewPrompt(
		"proximl-aware",
		mcp.WithPromptDescription("Provides context about proximl concepts (datasets, models, jobs, projects)"),
	), s.handleGetPrompt)
}

// --- Handlers ---

func (s *Server) storage(kind string) *resources.StorageService {
	switch kind {
	case "dataset":
		return s.px.Datasets
	case "model":
		return s.px.Models
	case "checkpoint":
		return s.px.Checkpoints
	case "volume":
		return s.px.Volumes
	}
	return nil
}

type rawEntity interface {
	Raw() json.RawMessage
}

func raws[T rawEntity](items []T) []json.RawMessage {
	out := make([]json.RawMessage, len(items))
	for i, item := range items {
		out[i] = item.Raw()
	}
	return out
}

func (s *Server) list(ctx context.Context, kind string) ([]json.RawMessage, error) {
	if svc := s.storage(kind); svc != nil {
		items, err := svc.List(ctx, nil)
		return raws(items), err
	}
	switch kind {
	case "job":
		items, err := s.px.Jobs.List(ctx, nil)
		return raws(items), err
	case "project":
		items, err := s.px.Projects.List(ctx)
		return raws(items), err
	}
	return nil, fmt.Errorf("unknown resource kind: %s", kind)
}

func (s *Server) get(ctx context.Context, kind, id string) (json.RawMessage, error) {
	if svc := s.storage(kind); svc != nil {
		item, err := svc.Get(ctx, id, nil)
		return item.Raw(), err
	}
	switch kind {
	case "job":
		item, err := s.px.Jobs.Get(ctx, id, nil)
		return item.Raw(), err
	case "project":
		item, err := s.px.Projects.Get(ctx, id)
		return item.Raw(), err
	}
	return nil, fmt.Errorf("unknown resource kind: %s", kind)
}

func (s *Server) listHandler(kind string) server.ResourceHandlerFunc {
	return func(ctx context.Context, request mcp.ReadResourceRequest) ([]mcp.ResourceContents, error) {
		items, err := s.list(ctx, kind)
		if err != nil {
			return nil, fmt.Errorf("failed to list %ss: %w", kind, err)
		}

		data, err := json.MarshalIndent(items, "", "  ")
		if err != nil {
			return nil, fmt.Errorf("failed to marshal %ss: %w", kind, err)
		}

		return []mcp.ResourceContents{
			mcp.TextResourceContents{
				URI:      request.Params.URI,
				MIMEType: "application/json",
				Text:     string(data),
			},
		}, nil
	}
}

func jsonResult(raw json.RawMessage) (*mcp.CallToolResult, error) {
	data, err := json.MarshalIndent(raw, "", "  ")
	if err != nil {
		return nil, fmt.Errorf("failed to marshal result: %w", err)
	}
	return mcp.NewToolResultText(string(data)), nil
}

func (s *Server) handleGetResource(ctx context.Context, request mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	kind := mcp.ParseString(request, "kind", "")
	id := mcp.ParseString(request, "id", "")

	raw, err := s.get(ctx, kind, id)
	if err != nil {
		return mcp.NewToolResultError(fmt.Sprintf("API error: %v", err)), nil
	}
	return jsonResult(raw)
}

func (s *Server) handleWaitForStatus(ctx context.Context, request mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	kind := mcp.ParseString(request, "kind", "")
	id := mcp.ParseString(request, "id", "")
	status := mcp.ParseString(request, "status", "")
	timeout := time.Duration(mcp.ParseFloat64(request, "timeout_seconds", 300) * float64(time.Second))

	var (
		raw json.RawMessage
		err error
	)
	if svc := s.storage(kind); svc != nil {
		var item resources.Storage
		if item, err = svc.Get(ctx, id, nil); err == nil {
			item, err = item.WaitFor(ctx, status, timeout)
			raw = item.Raw()
		}
	} else if kind == "job" {
		var item resources.Job
		if item, err = s.px.Jobs.Get(ctx, id, nil); err == nil {
			item, err = item.WaitFor(ctx, status, timeout)
			raw = item.Raw()
		}
	} else {
		return mcp.NewToolResultError(fmt.Sprintf("cannot wait on resource kind: %s", kind)), nil
	}

	var timeoutErr *client.TimeoutError
	var entityErr *client.EntityError
	switch {
	case errors.As(err, &timeoutErr):
		return mcp.NewToolResultError(fmt.Sprintf("%s %s did not reach %s: %v", kind, id, status, err)), nil
	case errors.As(err, &entityErr):
		return mcp.NewToolResultError(fmt.Sprintf("%s %s failed: %v", kind, id, err)), nil
	case err != nil:
		return mcp.NewToolResultError(fmt.Sprintf("API error: %v", err)), nil
	}
	if raw == nil {
		return mcp.NewToolResultText(fmt.Sprintf("%s %s no longer exists", kind, id)), nil
	}
	return jsonResult(raw)
}

func (s *Server) handleJobCommand(ctx context.Context, request mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	id := mcp.ParseString(request, "id", "")
	command := mcp.ParseString(request, "command", "")

	job, err := s.px.Jobs.Get(ctx, id, nil)
	if err != nil {
		return mcp.NewToolResultError(fmt.Sprintf("API error: %v", err)), nil
	}
	switch command {
	case "start":
		job, err = job.Start(ctx)
	case "stop":
		job, err = job.Stop(ctx)
	default:
		return mcp.NewToolResultError(fmt.Sprintf("unknown job command: %s", command)), nil
	}
	if err != nil {
		return mcp.NewToolResultError(fmt.Sprintf("API error: %v", err)), nil
	}
	s.logger.Info("job command sent", "job", id, "command", command)
	return jsonResult(job.Raw())
}

func (s *Server) handleRemoveResource(ctx context.Context, request mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	kind := mcp.ParseString(request, "kind", "")
	id := mcp.ParseString(request, "id", "")

	var err error
	if svc := s.storage(kind); svc != nil {
		err = svc.Remove(ctx, id, nil)
	} else {
		switch kind {
		case "job":
			err = s.px.Jobs.Remove(ctx, id, nil)
		case "project":
			err = s.px.Projects.Remove(ctx, id)
		default:
			return mcp.NewToolResultError(fmt.Sprintf("unknown resource kind: %s", kind)), nil
		}
	}
	if err != nil {
		return mcp.NewToolResultError(fmt.Sprintf("API error: %v", err)), nil
	}
	s.logger.Info("resource removed", "kind", kind, "id", id)
	return mcp.NewToolResultText(fmt.Sprintf("Removed %s %s", kind, id)), nil
}

func (s *Server) handleGetPrompt(ctx context.Context, request mcp.GetPromptRequest) (*mcp.GetPromptResult, error) {
	name := request.Params.Name
	if name != "proximl-aware" {
		return nil, fmt.Errorf("prompt not found: %s", name)
	}

	promptText := `You are interacting with proximl, a managed platform for machine learning workloads.

Concepts:
- Project: The workspace every resource belongs to. Requests are scoped to the active project.
- Dataset, Model, Checkpoint: Read-only storage populated from a source URI.
- Volume: Writable storage with a fixed capacity.
- Job: GPU workers running a command (training, inference, notebook or endpoint).

Statuses move forward (e.g. new -> downloading -> ready). Use 'wait_for_status' instead of polling 'get_resource' in a loop.
Removing a resource is permanent; confirm with the user before calling 'remove_resource'.
`

	return mcp.NewGetPromptResult(
		"proximl-aware",
		[]mcp.PromptMessage{
			mcp.NewPromptMessage(mcp.RoleUser, mcp.NewTextContent(promptText)),
		},
	), nil
}
