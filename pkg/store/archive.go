package store

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"github.com/rmax-ai/proximl/pkg/client"
)

// AppendFrame archives one frame received from src.
func (s *Store) AppendFrame(ctx context.Context, src Source, frame client.Frame) (int64, error) {
	payload, err := json.Marshal(frame)
	if err != nil {
		return 0, fmt.Errorf("failed to marshal frame: %w", err)
	}

	now := time.Now().UTC()
	ts := frame.Time().UTC()
	if ts.Unix() <= 0 {
		ts = now
	}

	res, err := s.db.ExecContext(ctx, `
		INSERT INTO frames (entity, entity_id, project_uuid, frame_type, stream, msg, ts_frame, ts_ingest, payload)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)
	`, src.Entity, src.EntityID, src.ProjectUUID, frame.Type(), frame.Stream(), frame.Message(), ts, now, string(payload))
	if err != nil {
		return 0, fmt.Errorf("failed to insert frame: %w", err)
	}

	return res.LastInsertId()
}

// ReadFrames returns archived frames in arrival order.
func (s *Store) ReadFrames(ctx context.Context, f Filter) ([]Record, error) {
	var (
		where []string
		args  []any
	)
	add := func(clause string, arg any) {
		where = append(where, clause)
		args = append(args, arg)
	}
	if f.Entity != "" {
		add("entity = ?", f.Entity)
	}
	if f.EntityID != "" {
		add("entity_id = ?", f.EntityID)
	}
	if f.Project != "" {
		add("project_uuid = ?", f.Project)
	}
	if f.Type != "" {
		add("frame_type = ?", f.Type)
	}
	if !f.From.IsZero() {
		add("ts_frame >= ?", f.From.UTC())
	}
	if !f.To.IsZero() {
		add("ts_frame < ?", f.To.UTC())
	}
	if f.AfterID > 0 {
		add("id > ?", f.AfterID)
	}

	query := `SELECT id, entity, entity_id, project_uuid, frame_type, stream, msg, ts_frame, ts_ingest, payload FROM frames`
	if len(where) > 0 {
		query += " WHERE " + strings.Join(where, " AND ")
	}
	query += " ORDER BY id ASC"
	if f.Limit > 0 {
		query += " LIMIT ?"
		args = append(args, f.Limit)
	}

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to query frames: %w", err)
	}
	defer rows.Close()

	var out []Record
	for rows.Next() {
		var (
			r       Record
			payload string
		)
		if err := rows.Scan(&r.ID, &r.Source.Entity, &r.Source.EntityID, &r.Source.ProjectUUID,
			&r.Type, &r.Stream, &r.Message, &r.Time, &r.Ingested, &payload); err != nil {
			return nil, fmt.Errorf("failed to scan frame: %w", err)
		}
		r.Payload = json.RawMessage(payload)
		out = append(out, r)
	}
	return out, rows.Err()
}

// Prune deletes frames ingested before cutoff and reports how many were removed.
func (s *Store) Prune(ctx context.Context, cutoff time.Time) (int64, error) {
	res, err := s.db.ExecContext(ctx, `DELETE FROM frames WHERE ts_ingest < ?`, cutoff.UTC())
	if err != nil {
		return 0, fmt.Errorf("failed to prune frames: %w", err)
	}
	return res.RowsAffected()
}

// Archive returns a handler that stores every frame before passing it to next.
// Write failures are logged and never interrupt the stream.
func (s *Store) Archive(ctx context.Context, src Source, next client.FrameHandler) client.FrameHandler {
	return func(f client.Frame) {
		if _, err := s.AppendFrame(context.WithoutCancel(ctx), src, f); err != nil {
			s.logger.Warn("failed to archive frame", "entity", src.Entity, "id", src.EntityID, "error", err)
		}
		if next != nil {
			next(f)
		}
	}
}

// Frame rebuilds the original frame from a record.
func (r Record) Frame() client.Frame {
	var f client.Frame
	if err := json.Unmarshal(r.Payload, &f); err != nil || f == nil {
		f = client.Frame{"type": r.Type, "stream": r.Stream, "msg": r.Message, "time": float64(r.Time.UnixMilli())}
	}
	return f
}
