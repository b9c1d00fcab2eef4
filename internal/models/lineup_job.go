package models

import (
	"database/sql/driver"
	"encoding/json"
	"fmt"
	"time"
)

// JobType enumerates supported asynchronous job categories.
type JobType string

const (
	JobTypeGenerate JobType = "generate"
	JobTypeExport   JobType = "export"
)

// ExportFormat enumerates supported export formats.
type ExportFormat string

const (
	ExportFormatCSV ExportFormat = "csv"
	ExportFormatPDF ExportFormat = "pdf"
)

// Valid reports whether the format is renderable.
func (f ExportFormat) Valid() bool {
	return f == ExportFormatCSV || f == ExportFormatPDF
}

// JobStatus captures background job lifecycle states.
type JobStatus string

const (
	JobStatusQueued     JobStatus = "QUEUED"
	JobStatusProcessing JobStatus = "PROCESSING"
	JobStatusFinished   JobStatus = "FINISHED"
	JobStatusFailed     JobStatus = "FAILED"
)

// LineupJob persisted background job metadata. Generate jobs reference the
// produced lineup; export jobs reference a downloadable artifact.
type LineupJob struct {
	ID           string          `db:"id" json:"id"`
	Type         JobType         `db:"type" json:"type"`
	Params       LineupJobParams `db:"params" json:"params"`
	Status       JobStatus       `db:"status" json:"status"`
	Progress     int             `db:"progress" json:"progress"`
	LineupID     *string         `db:"lineup_id" json:"lineup_id,omitempty"`
	ResultURL    *string         `db:"result_url" json:"result_url,omitempty"`
	CreatedBy    string          `db:"created_by" json:"created_by"`
	CreatedAt    time.Time       `db:"created_at" json:"created_at"`
	FinishedAt   *time.Time      `db:"finished_at" json:"finished_at,omitempty"`
	ErrorMessage *string         `db:"error_message" json:"error_message,omitempty"`
}

// LineupJobParams stores request-scoped options persisted as JSONB.
type LineupJobParams struct {
	ProfileID        string       `json:"profileId"`
	LineupID         string       `json:"lineupId,omitempty"`
	Iterations       int          `json:"iterations,omitempty"`
	Seed             *int64       `json:"seed,omitempty"`
	Parallelism      int          `json:"parallelism,omitempty"`
	IncludeBreakdown bool         `json:"includeBreakdown,omitempty"`
	ItemIDs          []string     `json:"itemIds,omitempty"`
	Format           ExportFormat `json:"format,omitempty"`
}

// Value marshals params to JSON for persistence.
func (p LineupJobParams) Value() (driver.Value, error) {
	data, err := json.Marshal(p)
	if err != nil {
		return nil, fmt.Errorf("marshal lineup job params: %w", err)
	}
	return data, nil
}

// Scan unmarshals JSON payloads into the params struct.
func (p *LineupJobParams) Scan(value interface{}) error {
	if value == nil {
		*p = LineupJobParams{}
		return nil
	}
	var data []byte
	switch v := value.(type) {
	case []byte:
		data = v
	case string:
		data = []byte(v)
	default:
		return fmt.Errorf("unsupported type %T for LineupJobParams", value)
	}
	if len(data) == 0 {
		*p = LineupJobParams{}
		return nil
	}
	if err := json.Unmarshal(data, p); err != nil {
		return fmt.Errorf("unmarshal lineup job params: %w", err)
	}
	return nil
}
