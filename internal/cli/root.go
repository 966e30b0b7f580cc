package cli

import (
	"fmt"

	"github.com/spf13/cobra"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"

	"github.com/josephlewis42/magpie/internal/config"
)

var (
	version = "dev"
	cfgFile string
	verbose bool
	logger  = zap.NewNop()
)

func SetVersion(v string) {
	version = v
}

var rootCmd = &cobra.Command{
	Use:   "magpie",
	Short: "magpie: automated checks for submitted files",
	Long: `magpie accepts file submissions through a web form or a POP3 mailbox,
runs the configured checkers on them and reports the results back to the
submitter as an HTML report.

Checker results use a small TAP dialect; "magpie tap render" converts it to
HTML or a terminal table. Configuration lives in ./magpie.yaml or
~/.magpie/config.yaml unless --config is given.`,
	SilenceUsage: true,
	PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
		logCfg := zap.NewProductionConfig()
		if verbose {
			logCfg.Level = zap.NewAtomicLevelAt(zapcore.DebugLevel)
		}
		l, err := logCfg.Build()
		if err != nil {
			return fmt.Errorf("failed to initialize logger: %w", err)
		}
		logger = l
		return nil
	},
	PersistentPostRun: func(cmd *cobra.Command, args []string) {
		_ = logger.Sync()
	},
}

func Execute() error {
	return rootCmd.Execute()
}

// loadConfig reads --config, or the first default config file, and returns
// the path later saves go to.
func loadConfig() (*config.Config, string, error) {
	if cfgFile != "" {
		cfg, err := config.Load(cfgFile)
		return cfg, cfgFile, err
	}
	return config.LoadDefault()
}

func init() {
	rootCmd.PersistentFlags().StringVarP(&cfgFile, "config", "c", "", "path to the configuration file")
	rootCmd.PersistentFlags().BoolVarP(&verbose, "verbose", "v", false, "enable debug logging")

	rootCmd.AddCommand(versionCmd)
	rootCmd.AddCommand(serveCmd)
	rootCmd.AddCommand(checkCmd)
	rootCmd.AddCommand(tapCmd)
	rootCmd.AddCommand(configCmd)
	rootCmd.AddCommand(dbCmd)
}
