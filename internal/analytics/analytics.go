// Package analytics summarizes logged submissions: pass rates per test,
// failure rates per checker, and how many attempts users need.
package analytics

import (
	"database/sql"
	"fmt"
	"math"
	"sort"
	"strings"
	"time"

	"github.com/josephlewis42/magpie/internal/db"
)

// DB is the interface for database queries used by analytics.
type DB interface {
	Conn() *sql.DB
	Rebind(query string) string
}

func query(database DB, q string, args ...any) (*sql.Rows, error) {
	return database.Conn().Query(database.Rebind(q), args...)
}

// timestamp formats to try when parsing timestamps from the database
var timestampFormats = []string{
	"2006-01-02 15:04:05.000000",
	"2006-01-02 15:04:05",
	"2006-01-02T15:04:05Z",
}

func parseTimestamp(s string) (time.Time, error) {
	for _, f := range timestampFormats {
		if t, err := time.Parse(f, s); err == nil {
			return t, nil
		}
	}
	return time.Time{}, fmt.Errorf("unrecognized timestamp format: %q", s)
}

// sinceClause appends a created_at filter when since is set.
func sinceClause(column, since string, args []any) (string, []any) {
	if since == "" {
		return "", args
	}
	return " AND " + column + " >= ?", append(args, since)
}

// TestPassRate holds submission outcomes for one test configuration.
type TestPassRate struct {
	Test        string  `json:"test"`
	Submissions int     `json:"submissions"`
	Passed      int     `json:"passed"`
	PassRate    float64 `json:"pass_rate_pct"`
}

// QueryTestPassRates returns pass rates per test, ordered by test name.
func QueryTestPassRates(database DB, since string) ([]TestPassRate, error) {
	filter, args := sinceClause("created_at", since, nil)
	rows, err := query(database, `
		SELECT test, COUNT(*) as total,
			SUM(CASE WHEN passed THEN 1 ELSE 0 END) as passed
		FROM submissions
		WHERE 1 = 1`+filter+`
		GROUP BY test ORDER BY test`, args...)
	if err != nil {
		return nil, fmt.Errorf("query test pass rates: %w", err)
	}
	defer rows.Close()

	var results []TestPassRate
	for rows.Next() {
		var r TestPassRate
		if err := rows.Scan(&r.Test, &r.Submissions, &r.Passed); err != nil {
			return nil, fmt.Errorf("scan test pass rate: %w", err)
		}
		r.PassRate = pct(r.Passed, r.Submissions)
		results = append(results, r)
	}
	return results, rows.Err()
}

// CheckerFailure holds how often a checker reports failures.
type CheckerFailure struct {
	Checker       string  `json:"checker"`
	Runs          int     `json:"runs"`
	FailedRuns    int     `json:"failed_runs"`
	FailRate      float64 `json:"fail_rate_pct"`
	AvgFailures   float64 `json:"avg_failures"`
	CommonFailure string  `json:"common_failure"`
}

// checkerName groups per-file result titles such as "lint: main.go" under
// their rule name.
func checkerName(title string) string {
	if name, _, ok := strings.Cut(title, ": "); ok {
		return name
	}
	return title
}

// QueryCheckerFailures returns failure rates per checker, worst first. The
// most common failing description (first line only) is reported with each.
func QueryCheckerFailures(database DB, since string) ([]CheckerFailure, error) {
	filter, args := sinceClause("s.created_at", since, nil)
	rows, err := query(database, `
		SELECT cr.title, cr.tap, cr.records, cr.passed_count, cr.failed_count
		FROM check_results cr
		JOIN submissions s ON s.id = cr.submission_id
		WHERE 1 = 1`+filter, args...)
	if err != nil {
		return nil, fmt.Errorf("query checker failures: %w", err)
	}
	defer rows.Close()

	type checkerInfo struct {
		runs     int
		failures []float64
		messages map[string]int
	}
	byChecker := make(map[string]*checkerInfo)
	for rows.Next() {
		var r db.CheckResult
		if err := rows.Scan(&r.Title, &r.TAP, &r.Records, &r.PassedCount, &r.FailedCount); err != nil {
			return nil, fmt.Errorf("scan checker failure: %w", err)
		}
		name := checkerName(r.Title)
		info := byChecker[name]
		if info == nil {
			info = &checkerInfo{messages: make(map[string]int)}
			byChecker[name] = info
		}
		info.runs++
		if r.FailedCount == 0 {
			continue
		}
		info.failures = append(info.failures, float64(r.FailedCount))
		for _, rec := range r.Collector().Records() {
			if !rec.Passed {
				first, _, _ := strings.Cut(rec.Description, "\n")
				info.messages[first]++
			}
		}
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}

	results := make([]CheckerFailure, 0, len(byChecker))
	for name, info := range byChecker {
		results = append(results, CheckerFailure{
			Checker:       name,
			Runs:          info.runs,
			FailedRuns:    len(info.failures),
			FailRate:      pct(len(info.failures), info.runs),
			AvgFailures:   avg(info.failures),
			CommonFailure: mostCommon(info.messages),
		})
	}
	sort.Slice(results, func(i, j int) bool {
		if results[i].FailRate != results[j].FailRate {
			return results[i].FailRate > results[j].FailRate
		}
		return results[i].Checker < results[j].Checker
	})
	return results, nil
}

func mostCommon(counts map[string]int) string {
	best, bestN := "", 0
	for msg, n := range counts {
		if n > bestN || (n == bestN && msg < best) {
			best, bestN = msg, n
		}
	}
	return best
}

// AttemptStats holds how many submissions users need before one passes.
type AttemptStats struct {
	Test        string  `json:"test"`
	Users       int     `json:"users"`
	PassedUsers int     `json:"passed_users"`
	PassRate    float64 `json:"pass_rate_pct"`
	AvgAttempts float64 `json:"avg_attempts"`
	P50Attempts float64 `json:"p50_attempts"`
	P95Attempts float64 `json:"p95_attempts"`
}

// QueryAttemptsToPass counts, per test and user, the submissions up to and
// including the first passing one. Users who never passed count towards
// Users but not the attempt statistics.
func QueryAttemptsToPass(database DB, since string) ([]AttemptStats, error) {
	filter, args := sinceClause("created_at", since, nil)
	rows, err := query(database, `
		SELECT user_name, test, passed
		FROM submissions
		WHERE 1 = 1`+filter+`
		ORDER BY created_at, id`, args...)
	if err != nil {
		return nil, fmt.Errorf("query attempts: %w", err)
	}
	defer rows.Close()

	type key struct{ test, user string }
	type progress struct {
		attempts int
		passed   bool
	}
	users := make(map[key]*progress)
	for rows.Next() {
		var k key
		var passed bool
		if err := rows.Scan(&k.user, &k.test, &passed); err != nil {
			return nil, fmt.Errorf("scan attempt: %w", err)
		}
		p := users[k]
		if p == nil {
			p = &progress{}
			users[k] = p
		}
		if p.passed {
			continue
		}
		p.attempts++
		p.passed = passed
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}

	type testInfo struct {
		users    int
		attempts []float64
	}
	byTest := make(map[string]*testInfo)
	for k, p := range users {
		info := byTest[k.test]
		if info == nil {
			info = &testInfo{}
			byTest[k.test] = info
		}
		info.users++
		if p.passed {
			info.attempts = append(info.attempts, float64(p.attempts))
		}
	}

	results := make([]AttemptStats, 0, len(byTest))
	for test, info := range byTest {
		sort.Float64s(info.attempts)
		results = append(results, AttemptStats{
			Test:        test,
			Users:       info.users,
			PassedUsers: len(info.attempts),
			PassRate:    pct(len(info.attempts), info.users),
			AvgAttempts: avg(info.attempts),
			P50Attempts: percentile(info.attempts, 50),
			P95Attempts: percentile(info.attempts, 95),
		})
	}
	sort.Slice(results, func(i, j int) bool {
		return results[i].Test < results[j].Test
	})
	return results, nil
}

// Throughput holds submissions per day and front-end.
type Throughput struct {
	Day         string `json:"day"`
	Frontend    string `json:"frontend"`
	Submissions int    `json:"submissions"`
	Passed      int    `json:"passed"`
}

// QueryThroughput returns daily submission counts (UTC days).
func QueryThroughput(database DB, since string) ([]Throughput, error) {
	filter, args := sinceClause("created_at", since, nil)
	rows, err := query(database, `
		SELECT SUBSTR(created_at, 1, 10) as day, frontend, COUNT(*) as total,
			SUM(CASE WHEN passed THEN 1 ELSE 0 END) as passed
		FROM submissions
		WHERE 1 = 1`+filter+`
		GROUP BY day, frontend
		ORDER BY day, frontend`, args...)
	if err != nil {
		return nil, fmt.Errorf("query throughput: %w", err)
	}
	defer rows.Close()

	var results []Throughput
	for rows.Next() {
		var t Throughput
		if err := rows.Scan(&t.Day, &t.Frontend, &t.Submissions, &t.Passed); err != nil {
			return nil, fmt.Errorf("scan throughput: %w", err)
		}
		results = append(results, t)
	}
	return results, rows.Err()
}

// UserSubmission is one entry of a user's history.
type UserSubmission struct {
	ID        string    `json:"id"`
	Test      string    `json:"test"`
	Frontend  string    `json:"frontend"`
	Passed    bool      `json:"passed"`
	Failures  int       `json:"failures"`
	CreatedAt time.Time `json:"created_at"`
}

// QueryUserHistory returns every submission by user, oldest first, with the
// number of failing records in each.
func QueryUserHistory(database DB, user string) ([]UserSubmission, error) {
	rows, err := query(database, `
		SELECT s.id, s.test, s.frontend, s.passed,
			COALESCE(SUM(cr.failed_count), 0) as failures, s.created_at
		FROM submissions s
		LEFT JOIN check_results cr ON cr.submission_id = s.id
		WHERE s.user_name = ?
		GROUP BY s.id, s.test, s.frontend, s.passed, s.created_at
		ORDER BY s.created_at, s.id`, user)
	if err != nil {
		return nil, fmt.Errorf("query user history: %w", err)
	}
	defer rows.Close()

	var results []UserSubmission
	for rows.Next() {
		var u UserSubmission
		var ts string
		if err := rows.Scan(&u.ID, &u.Test, &u.Frontend, &u.Passed, &u.Failures, &ts); err != nil {
			return nil, fmt.Errorf("scan user submission: %w", err)
		}
		if t, err := parseTimestamp(ts); err == nil {
			u.CreatedAt = t
		}
		results = append(results, u)
	}
	return results, rows.Err()
}

func avg(values []float64) float64 {
	if len(values) == 0 {
		return 0
	}
	sum := 0.0
	for _, v := range values {
		sum += v
	}
	return math.Round(sum/float64(len(values))*10) / 10
}

func percentile(sorted []float64, p int) float64 {
	if len(sorted) == 0 {
		return 0
	}
	rank := float64(p) / 100.0 * float64(len(sorted)-1)
	lower := int(math.Floor(rank))
	upper := int(math.Ceil(rank))
	if lower == upper || upper >= len(sorted) {
		return math.Round(sorted[lower]*10) / 10
	}
	weight := rank - float64(lower)
	return math.Round((sorted[lower]*(1-weight)+sorted[upper]*weight)*10) / 10
}

func pct(n, total int) float64 {
	if total == 0 {
		return 0
	}
	return math.Round(float64(n)/float64(total)*1000) / 10
}
