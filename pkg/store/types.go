package store

import (
	"encoding/json"
	"time"
)

// Source identifies the log stream a frame was received on.
type Source struct {
	Entity      string `json:"entity"`
	EntityID    string `json:"entity_id"`
	ProjectUUID string `json:"project_uuid"`
}

// Record is one archived frame.
type Record struct {
	ID       int64           `json:"id"`
	Source   Source          `json:"source"`
	Type     string          `json:"type"`
	Stream   string          `json:"stream"`
	Message  string          `json:"msg"`
	Time     time.Time       `json:"time"`
	Ingested time.Time       `json:"ingested"`
	Payload  json.RawMessage `json:"payload"`
}

// Filter selects archived frames. Zero fields match everything.
type Filter struct {
	Entity   string
	EntityID string
	Project  string
	Type     string
	From     time.Time
	To       time.Time
	// AfterID returns only records with a larger id, for incremental reads.
	AfterID int64
	Limit   int
}
