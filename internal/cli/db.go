package cli

import (
	"fmt"
	"strings"

	"github.com/jedib0t/go-pretty/v6/table"
	"github.com/jedib0t/go-pretty/v6/text"
	"github.com/spf13/cobra"

	"github.com/josephlewis42/magpie/internal/config"
	"github.com/josephlewis42/magpie/internal/db"
)

var dbCmd = &cobra.Command{
	Use:   "db",
	Short: "Database management",
}

// openDB opens the database named by the configuration.
func openDB() (*db.DB, *config.Config, error) {
	cfg, _, err := loadConfig()
	if err != nil {
		return nil, nil, err
	}
	d, err := db.Open(cfg.Storage.Database)
	if err != nil {
		return nil, nil, fmt.Errorf("open db: %w", err)
	}
	return d, cfg, nil
}

var dbMigrateCmd = &cobra.Command{
	Use:   "migrate",
	Short: "Apply database schema migrations",
	RunE: func(cmd *cobra.Command, args []string) error {
		d, _, err := openDB()
		if err != nil {
			return err
		}
		defer d.Close()
		if err := d.Migrate(); err != nil {
			return fmt.Errorf("migrate: %w", err)
		}
		cmd.Println("Database is up to date.")
		return nil
	},
}

var dbResetCmd = &cobra.Command{
	Use:   "reset",
	Short: "Reset the database (destructive!)",
	RunE: func(cmd *cobra.Command, args []string) error {
		if force, _ := cmd.Flags().GetBool("force"); !force {
			return fmt.Errorf("refusing to drop all submissions without --force")
		}
		d, _, err := openDB()
		if err != nil {
			return err
		}
		defer d.Close()
		if err := d.Reset(); err != nil {
			return fmt.Errorf("reset: %w", err)
		}
		cmd.Println("Database reset.")
		return nil
	},
}

var dbHistoryCmd = &cobra.Command{
	Use:   "history",
	Short: "List recent submissions",
	RunE: func(cmd *cobra.Command, args []string) error {
		limit, _ := cmd.Flags().GetInt("limit")
		d, _, err := openDB()
		if err != nil {
			return err
		}
		defer d.Close()
		if err := d.Migrate(); err != nil {
			return fmt.Errorf("migrate: %w", err)
		}

		subs, err := d.ListSubmissions(limit)
		if err != nil {
			return err
		}
		stats, err := d.GetStats()
		if err != nil {
			return err
		}

		t := table.NewWriter()
		t.SetOutputMirror(cmd.OutOrStdout())
		t.SetStyle(table.StyleLight)
		t.Style().Format.Footer = text.FormatDefault
		t.AppendHeader(table.Row{"ID", "When", "User", "Via", "Test", "Files", "Result"})
		for _, s := range subs {
			result := "PASS"
			if !s.Passed {
				result = "FAIL"
			}
			t.AppendRow(table.Row{
				s.ID,
				s.CreatedAt.Local().Format("2006-01-02 15:04"),
				s.User,
				s.Frontend,
				s.Test,
				len(s.Files),
				result,
			})
		}
		t.AppendFooter(table.Row{
			"TOTAL", "", "", "", "",
			fmt.Sprintf("%d results", stats.Results),
			fmt.Sprintf("%d/%d passed", stats.Passed, stats.Submissions),
		})
		t.Render()
		return nil
	},
}

var dbShowCmd = &cobra.Command{
	Use:   "show [submission-id]",
	Short: "Print the stored results of one submission",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		format, _ := cmd.Flags().GetString("format")
		d, cfg, err := openDB()
		if err != nil {
			return err
		}
		defer d.Close()

		doc, err := d.LoadDocument(args[0])
		if err != nil {
			return err
		}
		if doc == nil {
			return fmt.Errorf("submission %s not found", args[0])
		}

		out := cmd.OutOrStdout()
		fmt.Fprintf(out, "# %s via %s, test %q: %s\n", doc.User, doc.Frontend, doc.Test, strings.Join(doc.Files, ", "))
		return writeResults(out, doc.Results, format, cfg.Labels, isTerminal(out))
	},
}

func init() {
	dbResetCmd.Flags().Bool("force", false, "confirm dropping all data")
	dbHistoryCmd.Flags().Int("limit", 20, "number of submissions to list (0 for all)")
	dbShowCmd.Flags().StringP("format", "o", formatTAP, "output format: tap, table or html")

	dbCmd.AddCommand(dbMigrateCmd)
	dbCmd.AddCommand(dbResetCmd)
	dbCmd.AddCommand(dbHistoryCmd)
	dbCmd.AddCommand(dbShowCmd)
}
