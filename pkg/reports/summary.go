package reports

import (
	"context"
	"fmt"
	"io"
	"sort"
	"strconv"
	"time"
)

// SummaryReport generates CSV reports counting archived frames per stream.
type SummaryReport struct {
	store ReportStore
}

// NewSummaryReport creates a new SummaryReport generator.
func NewSummaryReport(s ReportStore) *SummaryReport {
	return &SummaryReport{store: s}
}

type streamKey struct {
	entity   string
	entityID string
	stream   string
}

type streamStats struct {
	frames int
	first  time.Time
	last   time.Time
}

// Generate aggregates frames by entity, entity id and stream.
func (r *SummaryReport) Generate(ctx context.Context, params ReportParams) (io.Reader, error) {
	report, err := newCSVReport([]string{"entity", "entity_id", "stream", "frames", "first_seen", "last_seen"})
	if err != nil {
		return nil, err
	}

	records, err := r.store.ReadFrames(ctx, frameFilter(params))
	if err != nil {
		return nil, fmt.Errorf("failed to read frames: %w", err)
	}

	stats := make(map[streamKey]*streamStats)
	for _, rec := range records {
		key := streamKey{entity: rec.Source.Entity, entityID: rec.Source.EntityID, stream: rec.Stream}
		s, ok := stats[key]
		if !ok {
			s = &streamStats{first: rec.Time, last: rec.Time}
			stats[key] = s
		}
		s.frames++
		if rec.Time.Before(s.first) {
			s.first = rec.Time
		}
		if rec.Time.After(s.last) {
			s.last = rec.Time
		}
	}

	keys := make([]streamKey, 0, len(stats))
	for k := range stats {
		keys = append(keys, k)
	}
	sort.Slice(keys, func(i, j int) bool {
		if keys[i].entity != keys[j].entity {
			return keys[i].entity < keys[j].entity
		}
		if keys[i].entityID != keys[j].entityID {
			return keys[i].entityID < keys[j].entityID
		}
		return keys[i].stream < keys[j].stream
	})

	for _, k := range keys {
		s := stats[k]
		row := []string{
			k.entity,
			k.entityID,
			k.stream,
			strconv.Itoa(s.frames),
			s.first.UTC().Format(time.RFC3339),
			s.last.UTC().Format(time.RFC3339),
		}
		if err := report.write(row); err != nil {
			return nil, err
		}
	}

	return report.finish()
}
