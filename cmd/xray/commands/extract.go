package commands

import (
	"context"
	"fmt"

	"github.com/dyluth/xray/internal/config"
	"github.com/dyluth/xray/internal/printer"
	"github.com/dyluth/xray/internal/scanner"
	"github.com/spf13/cobra"
)

var extractUnique bool

var extractCmd = &cobra.Command{
	Use:   "extract <target>",
	Short: "Print the project references found in a page",
	Long: `Extract runs the link scanner only: no store, no network beyond loading
an http(s) target. One reference is printed per line as KEY<TAB>CLOUD_ID.

Examples:
  xray extract ./projects.html
  xray extract --unique - < saved-page.html`,
	Args: cobra.ExactArgs(1),
	RunE: runExtract,
}

func init() {
	extractCmd.Flags().BoolVarP(&extractUnique, "unique", "u", false, "Print each project key once")
	rootCmd.AddCommand(extractCmd)
}

func runExtract(cmd *cobra.Command, args []string) error {
	ctx := context.Background()

	cfg, err := config.Load(configPath)
	if err != nil {
		// Extraction needs no store or gateway; fall back to defaults
		cfg = config.Default()
	}

	stdin, err := readStdinIfNeeded(cmd, args[0])
	if err != nil {
		return err
	}

	src, err := openSource(cfg, args[0], stdin)
	if err != nil {
		return err
	}

	doc, err := src.Load(ctx)
	if err != nil {
		return printer.Error("failed to load document", err.Error(), []string{"Check the target exists and is readable"})
	}

	seen := make(map[string]bool)
	out := cmd.OutOrStdout()
	for _, ref := range scanner.Scan(doc) {
		if extractUnique && seen[ref.ProjectID] {
			continue
		}
		seen[ref.ProjectID] = true

		fmt.Fprintf(out, "%s\t%s\n", ref.ProjectID, ref.CloudID)
		if err := ref.Validate(); err != nil {
			fmt.Fprintf(cmd.ErrOrStderr(), "warning: %s: %v\n", ref.ProjectID, err)
		}
	}

	return nil
}
