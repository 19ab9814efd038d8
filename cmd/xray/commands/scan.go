package commands

import (
	"context"
	"encoding/json"
	"io"
	"os"
	"os/signal"
	"syscall"

	"github.com/dyluth/xray/internal/printer"
	"github.com/dyluth/xray/internal/session"
	"github.com/spf13/cobra"
)

var scanJSON bool

// scanOutput is the --json shape of a scan.
type scanOutput struct {
	Report        *session.ScanReport `json:"report"`
	FetchesOK     int64               `json:"fetches_ok"`
	FetchesFailed int64               `json:"fetches_failed"`
}

var scanCmd = &cobra.Command{
	Use:   "scan <target>",
	Short: "Scan a page once and fetch any new projects",
	Long: `Scan runs a single discovery pass over the target, waits for every
fetch it started to finish, and prints a summary.

Examples:
  xray scan ./projects.html
  curl -s "$PAGE" | xray scan -
  xray scan --json https://home.atlassian.com/o/<cloud>/projects`,
	Args: cobra.ExactArgs(1),
	RunE: runScan,
}

func init() {
	scanCmd.Flags().BoolVar(&scanJSON, "json", false, "Print the scan report as JSON")
	rootCmd.AddCommand(scanCmd)
}

func runScan(cmd *cobra.Command, args []string) error {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	cfg, err := loadConfig()
	if err != nil {
		return err
	}

	stdin, err := readStdinIfNeeded(cmd, args[0])
	if err != nil {
		return err
	}

	store, err := openStore(ctx, cfg)
	if err != nil {
		return err
	}
	defer store.Close()

	src, err := openSource(cfg, args[0], stdin)
	if err != nil {
		return err
	}

	p, err := buildPipeline(cfg, store, src)
	if err != nil {
		return err
	}

	p.queue.Start(context.WithoutCancel(ctx))
	report, err := p.session.ScanOnce(ctx)
	p.queue.Stop()

	if err != nil {
		return printer.ErrorWithContext(
			"scan failed",
			err.Error(),
			map[string]string{"Target": src.String()},
			[]string{"Check the target exists and is readable"},
		)
	}

	queueStats := p.queue.Stats()

	if scanJSON {
		enc := json.NewEncoder(cmd.OutOrStdout())
		return enc.Encode(scanOutput{
			Report:        report,
			FetchesOK:     queueStats.Completed,
			FetchesFailed: queueStats.Failed,
		})
	}

	printer.Success("Scanned %s\n", src)
	printer.Detail("found", report.Found)
	printer.Detail("new", report.New)
	printer.Detail("known", report.Known)
	printer.Detail("failed", report.Failed)
	printer.Detail("fetched", queueStats.Completed)
	if queueStats.Failed > 0 {
		printer.Warning("%d fetches had errors; see the log for details\n", queueStats.Failed)
	}

	return nil
}

// readStdinIfNeeded reads the whole of stdin when target is "-".
func readStdinIfNeeded(cmd *cobra.Command, target string) ([]byte, error) {
	if target != "-" {
		return nil, nil
	}
	return io.ReadAll(cmd.InOrStdin())
}
