package index

import (
	"encoding/json"
	"fmt"
	"time"
)

// Run kinds recorded in the journal.
const (
	RunPublish = "publish"
	RunPrune   = "prune"
	RunDiff    = "diff"
)

// RunRecord is one journaled publish, diff or prune run.
type RunRecord struct {
	ID        int64           `json:"id"`
	Kind      string          `json:"kind"`
	StartedAt time.Time       `json:"started_at"`
	Duration  time.Duration   `json:"duration"`
	Success   bool            `json:"success"`
	Summary   json.RawMessage `json:"summary"`
	Errors    []string        `json:"errors"`
}

// RecordRun appends r to the journal and returns its id. Summary is
// stored as given and may be any JSON document.
func (db *DB) RecordRun(r RunRecord) (int64, error) {
	summary := r.Summary
	if len(summary) == 0 {
		summary = json.RawMessage(`{}`)
	}
	errs := r.Errors
	if errs == nil {
		errs = []string{}
	}
	errsJSON, _ := json.Marshal(errs)

	res, err := db.conn.Exec(`
		INSERT INTO runs (kind, started_at, duration_ms, success, summary, errors)
		VALUES (?, ?, ?, ?, ?, ?)
	`, r.Kind, r.StartedAt.UTC(), r.Duration.Milliseconds(), r.Success, string(summary), string(errsJSON))
	if err != nil {
		return 0, fmt.Errorf("index: record run: %w", err)
	}
	return res.LastInsertId()
}

// ListRuns returns the most recent runs first. An empty kind matches all.
func (db *DB) ListRuns(kind string, limit int) ([]RunRecord, error) {
	if limit <= 0 {
		limit = 20
	}
	rows, err := db.conn.Query(`
		SELECT id, kind, started_at, duration_ms, success, summary, errors
		FROM runs
		WHERE ? = '' OR kind = ?
		ORDER BY started_at DESC, id DESC
		LIMIT ?
	`, kind, kind, limit)
	if err != nil {
		return nil, fmt.Errorf("index: list runs: %w", err)
	}
	defer rows.Close()

	var out []RunRecord
	for rows.Next() {
		var r RunRecord
		var ms int64
		var summary, errs string
		if err := rows.Scan(&r.ID, &r.Kind, &r.StartedAt, &ms, &r.Success, &summary, &errs); err != nil {
			return nil, err
		}
		r.Duration = time.Duration(ms) * time.Millisecond
		r.Summary = json.RawMessage(summary)
		if err := json.Unmarshal([]byte(errs), &r.Errors); err != nil {
			return nil, fmt.Errorf("index: decode run errors: %w", err)
		}
		out = append(out, r)
	}
	return out, rows.Err()
}
