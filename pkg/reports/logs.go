package reports

import (
	"context"
	"fmt"
	"io"
	"time"
)

// LogReport generates CSV reports of archived log lines.
type LogReport struct {
	store ReportStore
}

// NewLogReport creates a new LogReport generator.
func NewLogReport(s ReportStore) *LogReport {
	return &LogReport{store: s}
}

// Generate writes one row per archived subscription frame, oldest first.
func (r *LogReport) Generate(ctx context.Context, params ReportParams) (io.Reader, error) {
	report, err := newCSVReport([]string{"timestamp", "entity", "entity_id", "project_uuid", "stream", "msg"})
	if err != nil {
		return nil, err
	}

	filter := frameFilter(params)
	if filter.Type == "" {
		filter.Type = "subscription"
	}

	records, err := r.store.ReadFrames(ctx, filter)
	if err != nil {
		return nil, fmt.Errorf("failed to read frames: %w", err)
	}

	for _, rec := range records {
		row := []string{
			rec.Time.UTC().Format(time.RFC3339Nano),
			rec.Source.Entity,
			rec.Source.EntityID,
			rec.Source.ProjectUUID,
			rec.Stream,
			rec.Message,
		}
		if err := report.write(row); err != nil {
			return nil, err
		}
	}

	return report.finish()
}
