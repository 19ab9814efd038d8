package commands

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/dyluth/xray/internal/config"
	"github.com/dyluth/xray/internal/printer"
	"github.com/dyluth/xray/internal/watch"
	"github.com/spf13/cobra"
)

var eventsOutputFormat string

var eventsCmd = &cobra.Command{
	Use:   "events",
	Short: "Stream project saves as they happen",
	Long: `Stream an event for every project record saved by any xray process
sharing this Redis instance. Requires the redis store backend.

Output Formats:
  default - Human-readable lines with timestamps
  json    - Line-delimited JSON for programmatic processing

Examples:
  xray events
  xray events --output=json > events.jsonl`,
	Args: cobra.NoArgs,
	RunE: runEvents,
}

func init() {
	eventsCmd.Flags().StringVarP(&eventsOutputFormat, "output", "o", "default", "Output format (default or json)")
	rootCmd.AddCommand(eventsCmd)
}

func runEvents(cmd *cobra.Command, args []string) error {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	var outputFormat watch.OutputFormat
	switch eventsOutputFormat {
	case "default":
		outputFormat = watch.OutputFormatDefault
	case "json":
		outputFormat = watch.OutputFormatJSON
	default:
		return printer.Error(
			"invalid output format",
			fmt.Sprintf("Unknown format: %s", eventsOutputFormat),
			[]string{"Valid formats: default, json"},
		)
	}

	cfg, err := loadConfig()
	if err != nil {
		return err
	}

	if cfg.Store.Backend != config.BackendRedis {
		return printer.Error(
			"events need the redis backend",
			fmt.Sprintf("The %s store does not publish events.", cfg.Store.Backend),
			[]string{"Switch to Redis:\n  XRAY_STORE_BACKEND=redis xray events"},
		)
	}

	store, err := openStore(ctx, cfg)
	if err != nil {
		return err
	}
	defer store.Close()

	subscriber, ok := store.(watch.EventSubscriber)
	if !ok {
		return fmt.Errorf("store does not support event subscriptions")
	}

	return watch.StreamProjectEvents(ctx, subscriber, cfg.Instance, outputFormat, cmd.OutOrStdout())
}
