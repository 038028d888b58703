// Package store persists attribute snapshots so a resolution run can be
// restored without prompting again.
package store

import (
	"context"
	"encoding/json"
	"time"

	"github.com/rotisserie/eris"
)

// ErrRunNotFound is returned when a run id has no stored snapshot.
var ErrRunNotFound = eris.New("store: run not found")

// Run is one stored snapshot.
type Run struct {
	ID        string    `json:"id"`
	Model     string    `json:"model"`
	Records   int       `json:"records"`
	CreatedAt time.Time `json:"created_at"`
}

// Record is the persisted state of one attribute of one entity. Value holds
// the magnitude for quantities, with the unit symbol in Unit.
type Record struct {
	GUID        string `json:"guid"`
	Type        string `json:"type"`
	Field       string `json:"field"`
	Status      string `json:"status"`
	Source      string `json:"source,omitempty"`
	Value       any    `json:"value"`
	Unit        string `json:"unit,omitempty"`
	DecisionKey string `json:"decision_key,omitempty"`
}

// Store defines the persistence interface for attribute snapshots.
type Store interface {
	SaveRun(ctx context.Context, model string, records []Record) (*Run, error)
	GetRun(ctx context.Context, runID string) (*Run, error)
	ListRuns(ctx context.Context, limit int) ([]Run, error)
	LoadRecords(ctx context.Context, runID string) ([]Record, error)

	Migrate(ctx context.Context) error
	Close() error
}

var recordColumns = []string{
	"run_id", "guid", "type_name", "field", "status", "source", "value", "unit", "decision_key",
}

func encodeValue(v any) (string, error) {
	b, err := json.Marshal(v)
	if err != nil {
		return "", eris.Wrap(err, "store: marshal value")
	}
	return string(b), nil
}

func decodeValue(s string) (any, error) {
	if s == "" {
		return nil, nil
	}
	var v any
	if err := json.Unmarshal([]byte(s), &v); err != nil {
		return nil, eris.Wrap(err, "store: unmarshal value")
	}
	return v, nil
}

type scannable interface {
	Scan(dest ...any) error
}

func scanRecord(row scannable) (Record, error) {
	var r Record
	var value string
	if err := row.Scan(&r.GUID, &r.Type, &r.Field, &r.Status, &r.Source, &value, &r.Unit, &r.DecisionKey); err != nil {
		return r, err
	}
	v, err := decodeValue(value)
	if err != nil {
		return r, err
	}
	r.Value = v
	return r, nil
}
