package cli

import (
	"fmt"
	"os"
	"os/user"
	"path/filepath"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/josephlewis42/magpie/internal/core"
	"github.com/josephlewis42/magpie/internal/submission"
)

var checkCmd = &cobra.Command{
	Use:   "check [files...]",
	Short: "Run the checkers on local files",
	Long: `Run every enabled checker on the given files and print the results.

Output defaults to a table on a terminal and TAP otherwise. The command fails
when any check failed, so it can gate scripts and CI jobs.`,
	Args: cobra.MinimumNArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		test, _ := cmd.Flags().GetString("test")
		format, _ := cmd.Flags().GetString("format")

		cfg, path, err := loadConfig()
		if err != nil {
			return err
		}
		if test != "" {
			if _, ok := cfg.Tests[test]; !ok {
				logger.Warn("unknown test, using checker defaults", zap.String("test", test))
			}
		}

		m, err := core.New(core.Options{
			Config:     cfg,
			ConfigPath: path,
			Logger:     logger,
			Checkers:   core.DefaultCheckers(logger),
		})
		if err != nil {
			return err
		}

		doc := submission.New(currentUser(), "CLI", test)
		for _, arg := range args {
			abs, err := filepath.Abs(arg)
			if err != nil {
				return fmt.Errorf("resolve %s: %w", arg, err)
			}
			if _, err := os.Stat(abs); err != nil {
				return err
			}
			doc.Files = append(doc.Files, abs)
		}

		if err := m.Submit(cmd.Context(), doc); err != nil {
			return err
		}

		out := cmd.OutOrStdout()
		tty := isTerminal(out)
		if format == "" {
			format = formatTAP
			if tty {
				format = formatTable
			}
		}
		if err := writeResults(out, doc.Results, format, cfg.Labels, tty); err != nil {
			return err
		}

		if _, failed := doc.Counts(); failed > 0 {
			return fmt.Errorf("%d check(s) failed", failed)
		}
		return nil
	},
}

// currentUser names the submitter of a local check.
func currentUser() string {
	if u, err := user.Current(); err == nil && u.Username != "" {
		return u.Username
	}
	return "cli"
}

func init() {
	checkCmd.Flags().StringP("test", "t", "", "test configuration to check against")
	checkCmd.Flags().StringP("format", "o", "", "output format: tap, table or html (default: table on a terminal, else tap)")
}
