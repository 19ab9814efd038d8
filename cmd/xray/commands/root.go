package commands

import (
	"fmt"

	"github.com/dyluth/xray/internal/config"
	"github.com/dyluth/xray/internal/printer"
	"github.com/spf13/cobra"
)

var (
	version = "dev"
	commit  string
	date    string

	configPath string
)

// rootCmd represents the base command when called without any subcommands
var rootCmd = &cobra.Command{
	Use:   "xray",
	Short: "Xray - project discovery and caching for Atlas pages",
	Long: `Xray watches HTML pages for links to Atlas projects. Each project it
has not seen before is fetched once over GraphQL and cached in Redis or
SQLite, where the projects commands can browse it.`,
	Version: version,
	RunE: func(cmd *cobra.Command, args []string) error {
		return cmd.Help()
	},
	FParseErrWhitelist: cobra.FParseErrWhitelist{},
}

// Execute adds all child commands to the root command and sets flags appropriately.
// This is called by main.main(). It only needs to happen once to the rootCmd.
func Execute() error {
	// We print formatted colored errors directly in the printer package
	rootCmd.SilenceErrors = true
	rootCmd.SilenceUsage = true
	return rootCmd.Execute()
}

// SetVersionInfo sets the version information for the CLI
func SetVersionInfo(v, c, d string) {
	version = v
	commit = c
	date = d
	rootCmd.Version = fmt.Sprintf("%s (commit: %s, built: %s)", v, c, d)
}

func init() {
	rootCmd.PersistentFlags().StringVarP(&configPath, "config", "c", config.DefaultPath, "Path to xray.yml")
}

// loadConfig loads configuration, rendering failures for the terminal.
func loadConfig() (*config.XrayConfig, error) {
	cfg, err := config.Load(configPath)
	if err != nil {
		return nil, printer.ErrorWithContext(
			"invalid configuration",
			err.Error(),
			map[string]string{"Config": configPath},
			[]string{
				"Fix the file and retry",
				"Run without --config to use defaults and XRAY_* environment variables",
			},
		)
	}

	if cfg.GraphQL.ClientVersion == "" {
		cfg.GraphQL.ClientVersion = version
	}
	return cfg, nil
}
