package db

import (
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/josephlewis42/magpie/internal/submission"
	"github.com/josephlewis42/magpie/internal/tap"
)

// timeLayout sorts lexically in the same order as time.
const timeLayout = "2006-01-02 15:04:05.000000"

func now() string {
	return FormatTime(time.Now())
}

// FormatTime formats t as stored in created_at columns, for range filters.
func FormatTime(t time.Time) string {
	return t.UTC().Format(timeLayout)
}

func parseTime(s string) time.Time {
	t, err := time.Parse(timeLayout, s)
	if err != nil {
		return time.Time{}
	}
	return t
}

// Submission represents a row in the submissions table.
type Submission struct {
	ID        string
	User      string
	Frontend  string
	Test      string
	Files     []string
	Passed    bool
	CreatedAt time.Time
}

// CheckResult represents a row in the check_results table.
type CheckResult struct {
	ID           int
	SubmissionID string
	Title        string
	TAP          string
	Records      string // JSON-encoded []tap.Record
	PassedCount  int
	FailedCount  int
	CreatedAt    time.Time
}

// Collector decodes the stored records. Rows logged before records were
// stored fall back to their TAP text.
func (r CheckResult) Collector() *tap.Collector {
	var records []tap.Record
	if err := json.Unmarshal([]byte(r.Records), &records); err != nil ||
		(len(records) == 0 && r.PassedCount+r.FailedCount > 0) {
		return tap.ParseTitled(r.Title, r.TAP)
	}
	return tap.FromRecords(r.Title, records)
}

// LogSubmission inserts a submission, or updates it when already logged.
func (d *DB) LogSubmission(doc *submission.Document) error {
	files, err := json.Marshal(doc.Files)
	if err != nil {
		return fmt.Errorf("encode files: %w", err)
	}
	if doc.Files == nil {
		files = []byte("[]")
	}
	_, err = d.exec(
		`INSERT INTO submissions (id, user_name, frontend, test, files, passed, created_at) VALUES (?, ?, ?, ?, ?, ?, ?)
		 ON CONFLICT (id) DO UPDATE SET passed = excluded.passed, files = excluded.files`,
		doc.ID, doc.User, doc.Frontend, doc.Test, string(files), doc.Passed(), FormatTime(doc.CreatedAt),
	)
	if err != nil {
		return fmt.Errorf("log submission: %w", err)
	}
	return nil
}

// LogResult stores one checker's collector for a submission.
func (d *DB) LogResult(submissionID string, c *tap.Collector) error {
	records, err := json.Marshal(c.Records())
	if err != nil {
		return fmt.Errorf("encode records: %w", err)
	}
	_, err = d.exec(
		`INSERT INTO check_results (submission_id, title, tap, records, passed_count, failed_count, created_at) VALUES (?, ?, ?, ?, ?, ?, ?)`,
		submissionID, c.Title(), c.String(), string(records), c.Passed(), c.Failed(), now(),
	)
	if err != nil {
		return fmt.Errorf("log result: %w", err)
	}
	return nil
}

func scanSubmission(scan func(dest ...any) error) (*Submission, error) {
	var s Submission
	var files, created string
	if err := scan(&s.ID, &s.User, &s.Frontend, &s.Test, &files, &s.Passed, &created); err != nil {
		return nil, err
	}
	if err := json.Unmarshal([]byte(files), &s.Files); err != nil {
		return nil, fmt.Errorf("decode files of %s: %w", s.ID, err)
	}
	s.CreatedAt = parseTime(created)
	return &s, nil
}

// GetSubmission returns a submission by ID, or nil if none exists.
func (d *DB) GetSubmission(id string) (*Submission, error) {
	row := d.queryRow(
		`SELECT id, user_name, frontend, test, files, passed, created_at FROM submissions WHERE id = ?`, id,
	)
	s, err := scanSubmission(row.Scan)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("get submission: %w", err)
	}
	return s, nil
}

// ListSubmissions returns the most recent submissions, newest first.
// A limit of zero or less returns all of them.
func (d *DB) ListSubmissions(limit int) ([]Submission, error) {
	q := `SELECT id, user_name, frontend, test, files, passed, created_at FROM submissions ORDER BY created_at DESC, id`
	var args []any
	if limit > 0 {
		q += ` LIMIT ?`
		args = append(args, limit)
	}
	rows, err := d.query(q, args...)
	if err != nil {
		return nil, fmt.Errorf("list submissions: %w", err)
	}
	defer rows.Close()

	var subs []Submission
	for rows.Next() {
		s, err := scanSubmission(rows.Scan)
		if err != nil {
			return nil, fmt.Errorf("scan submission: %w", err)
		}
		subs = append(subs, *s)
	}
	return subs, rows.Err()
}

// ResultsFor returns a submission's stored results in the order they were logged.
func (d *DB) ResultsFor(submissionID string) ([]CheckResult, error) {
	rows, err := d.query(
		`SELECT id, submission_id, title, tap, records, passed_count, failed_count, created_at
		 FROM check_results WHERE submission_id = ? ORDER BY id`, submissionID,
	)
	if err != nil {
		return nil, fmt.Errorf("query results: %w", err)
	}
	defer rows.Close()

	var results []CheckResult
	for rows.Next() {
		var r CheckResult
		var created string
		if err := rows.Scan(&r.ID, &r.SubmissionID, &r.Title, &r.TAP, &r.Records, &r.PassedCount, &r.FailedCount, &created); err != nil {
			return nil, fmt.Errorf("scan result: %w", err)
		}
		r.CreatedAt = parseTime(created)
		results = append(results, r)
	}
	return results, rows.Err()
}

// LoadDocument rebuilds a submitted document and its results, or returns
// nil if the submission is unknown.
func (d *DB) LoadDocument(id string) (*submission.Document, error) {
	s, err := d.GetSubmission(id)
	if err != nil || s == nil {
		return nil, err
	}
	results, err := d.ResultsFor(id)
	if err != nil {
		return nil, err
	}
	doc := &submission.Document{
		ID:        s.ID,
		User:      s.User,
		Frontend:  s.Frontend,
		Test:      s.Test,
		Files:     s.Files,
		Meta:      make(map[string]string),
		CreatedAt: s.CreatedAt,
	}
	for _, r := range results {
		doc.AddResults(r.Collector())
	}
	return doc, nil
}

// Stats summarizes everything logged so far.
type Stats struct {
	Submissions int
	Passed      int
	Results     int
}

// GetStats counts submissions and results.
func (d *DB) GetStats() (Stats, error) {
	var s Stats
	err := d.queryRow(
		`SELECT COUNT(*), COALESCE(SUM(CASE WHEN passed THEN 1 ELSE 0 END), 0) FROM submissions`,
	).Scan(&s.Submissions, &s.Passed)
	if err != nil {
		return s, fmt.Errorf("count submissions: %w", err)
	}
	if err := d.queryRow(`SELECT COUNT(*) FROM check_results`).Scan(&s.Results); err != nil {
		return s, fmt.Errorf("count results: %w", err)
	}
	return s, nil
}

// DeleteSubmission removes a submission and its results.
func (d *DB) DeleteSubmission(id string) error {
	if _, err := d.exec(`DELETE FROM check_results WHERE submission_id = ?`, id); err != nil {
		return fmt.Errorf("delete results: %w", err)
	}
	res, err := d.exec(`DELETE FROM submissions WHERE id = ?`, id)
	if err != nil {
		return fmt.Errorf("delete submission: %w", err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return fmt.Errorf("submission %s not found", id)
	}
	return nil
}
