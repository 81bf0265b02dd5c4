package reports

import (
	"context"
	"io"
	"time"

	"github.com/rmax-ai/proximl/pkg/store"
)

type ReportType string

const (
	ReportTypeLogs    ReportType = "logs"
	ReportTypeSummary ReportType = "summary"
)

type ReportParams struct {
	Start   time.Time
	End     time.Time
	Filters map[string]interface{}
}

// ReportStore defines the interface for data access required by reports.
type ReportStore interface {
	ReadFrames(ctx context.Context, filter store.Filter) ([]store.Record, error)
}

type Generator interface {
	Generate(ctx context.Context, params ReportParams) (io.Reader, error)
}

// frameFilter builds the archive filter shared by every report.
func frameFilter(params ReportParams) store.Filter {
	filter := store.Filter{
		From: params.Start,
		To:   params.End,
	}
	if entity, ok := params.Filters["entity"].(string); ok && entity != "" {
		filter.Entity = entity
	}
	if id, ok := params.Filters["entity_id"].(string); ok && id != "" {
		filter.EntityID = id
	}
	if project, ok := params.Filters["project_uuid"].(string); ok && project != "" {
		filter.Project = project
	}
	if frameType, ok := params.Filters["type"].(string); ok && frameType != "" {
		filter.Type = frameType
	}
	return filter
}
