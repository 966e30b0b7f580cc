package cli

import (
	"fmt"
	"io"
	"os"

	"github.com/spf13/cobra"

	"github.com/josephlewis42/magpie/internal/tap"
)

var tapCmd = &cobra.Command{
	Use:   "tap",
	Short: "Work with TAP result streams",
}

var tapRenderCmd = &cobra.Command{
	Use:   "render [file|-]",
	Short: "Decode a TAP stream and re-encode it as text, HTML or a table",
	Long: `Decode TAP from a file, or stdin when the file is "-" or omitted, and
print it again. Lines that are not part of the TAP dialect are dropped, so
"render --format text" also normalizes tool output.`,
	Args: cobra.MaximumNArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		format, _ := cmd.Flags().GetString("format")
		title, _ := cmd.Flags().GetString("title")

		var in io.Reader = cmd.InOrStdin()
		if len(args) == 1 && args[0] != "-" {
			f, err := os.Open(args[0])
			if err != nil {
				return err
			}
			defer f.Close()
			in = f
		}
		data, err := io.ReadAll(in)
		if err != nil {
			return fmt.Errorf("read input: %w", err)
		}

		c := tap.ParseTitled(title, string(data))
		out := cmd.OutOrStdout()
		return writeResults(out, []*tap.Collector{c}, format, tap.DefaultLabels(), isTerminal(out))
	},
}

func init() {
	tapRenderCmd.Flags().StringP("format", "o", formatText, "output format: text, html or table")
	tapRenderCmd.Flags().String("title", "", "title for the rendered results")
	tapCmd.AddCommand(tapRenderCmd)
}
