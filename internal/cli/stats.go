package cli

import (
	"fmt"
	"io"
	"time"

	"github.com/jedib0t/go-pretty/v6/table"
	"github.com/spf13/cobra"

	"github.com/josephlewis42/magpie/internal/analytics"
	"github.com/josephlewis42/magpie/internal/db"
)

var dbStatsCmd = &cobra.Command{
	Use:   "stats",
	Short: "Summarize logged submissions",
	Long: `Print pass rates per test, failure rates per checker, the number of
attempts users needed before passing, and daily throughput.

With --user, print that user's submission history instead.`,
	RunE: func(cmd *cobra.Command, args []string) error {
		since, _ := cmd.Flags().GetDuration("since")
		user, _ := cmd.Flags().GetString("user")

		d, _, err := openDB()
		if err != nil {
			return err
		}
		defer d.Close()
		if err := d.Migrate(); err != nil {
			return fmt.Errorf("migrate: %w", err)
		}

		out := cmd.OutOrStdout()
		if user != "" {
			return printUserHistory(out, d, user)
		}

		var sinceTS string
		if since > 0 {
			sinceTS = db.FormatTime(time.Now().Add(-since))
		}
		return printStats(out, d, sinceTS)
	},
}

func newStatsTable(out io.Writer, title string, header table.Row) table.Writer {
	t := table.NewWriter()
	t.SetOutputMirror(out)
	t.SetTitle(title)
	t.SetStyle(table.StyleLight)
	t.AppendHeader(header)
	return t
}

func testLabel(name string) string {
	if name == "" {
		return "(default)"
	}
	return name
}

func printStats(out io.Writer, d *db.DB, since string) error {
	rates, err := analytics.QueryTestPassRates(d, since)
	if err != nil {
		return err
	}
	t := newStatsTable(out, "Tests", table.Row{"Test", "Submissions", "Passed", "Pass %"})
	for _, r := range rates {
		t.AppendRow(table.Row{testLabel(r.Test), r.Submissions, r.Passed, r.PassRate})
	}
	t.Render()

	failures, err := analytics.QueryCheckerFailures(d, since)
	if err != nil {
		return err
	}
	t = newStatsTable(out, "Checkers", table.Row{"Checker", "Runs", "Failed", "Fail %", "Avg failures", "Most common failure"})
	for _, f := range failures {
		t.AppendRow(table.Row{f.Checker, f.Runs, f.FailedRuns, f.FailRate, f.AvgFailures, f.CommonFailure})
	}
	t.Render()

	attempts, err := analytics.QueryAttemptsToPass(d, since)
	if err != nil {
		return err
	}
	t = newStatsTable(out, "Attempts to pass", table.Row{"Test", "Users", "Passed", "Pass %", "Avg", "P50", "P95"})
	for _, a := range attempts {
		t.AppendRow(table.Row{testLabel(a.Test), a.Users, a.PassedUsers, a.PassRate, a.AvgAttempts, a.P50Attempts, a.P95Attempts})
	}
	t.Render()

	daily, err := analytics.QueryThroughput(d, since)
	if err != nil {
		return err
	}
	t = newStatsTable(out, "Throughput", table.Row{"Day", "Via", "Submissions", "Passed"})
	for _, r := range daily {
		t.AppendRow(table.Row{r.Day, r.Frontend, r.Submissions, r.Passed})
	}
	t.Render()
	return nil
}

func printUserHistory(out io.Writer, d *db.DB, user string) error {
	history, err := analytics.QueryUserHistory(d, user)
	if err != nil {
		return err
	}
	if len(history) == 0 {
		fmt.Fprintf(out, "No submissions from %s.\n", user)
		return nil
	}
	t := newStatsTable(out, "Submissions from "+user, table.Row{"ID", "When", "Test", "Via", "Result", "Failures"})
	for _, s := range history {
		result := "PASS"
		if !s.Passed {
			result = "FAIL"
		}
		t.AppendRow(table.Row{s.ID, s.CreatedAt.Local().Format("2006-01-02 15:04"), testLabel(s.Test), s.Frontend, result, s.Failures})
	}
	t.Render()
	return nil
}

func init() {
	dbStatsCmd.Flags().Duration("since", 0, "only count submissions this recent (e.g. 168h)")
	dbStatsCmd.Flags().String("user", "", "show one user's history instead")
	dbCmd.AddCommand(dbStatsCmd)
}
