package commands

import (
	"context"
	"strings"

	"github.com/dyluth/xray/internal/printer"
	"github.com/dyluth/xray/internal/projects"
	"github.com/spf13/cobra"
)

var seenCmd = &cobra.Command{
	Use:   "seen",
	Short: "Inspect or clear discovery markers",
	Long: `Every project xray discovers gets a seen marker, and a project with a
marker is never fetched again. Clearing a marker makes the next scan that
finds the project fetch it again.`,
}

var seenListCmd = &cobra.Command{
	Use:   "list",
	Short: "List projects with a seen marker",
	Args:  cobra.NoArgs,
	RunE:  runSeenList,
}

var seenForgetCmd = &cobra.Command{
	Use:   "forget <KEY>...",
	Short: "Clear seen markers so the projects are fetched again",
	Args:  cobra.MinimumNArgs(1),
	RunE:  runSeenForget,
}

func init() {
	seenCmd.AddCommand(seenListCmd, seenForgetCmd)
	rootCmd.AddCommand(seenCmd)
}

func runSeenList(cmd *cobra.Command, args []string) error {
	ctx := context.Background()

	cfg, err := loadConfig()
	if err != nil {
		return err
	}

	store, err := openStore(ctx, cfg)
	if err != nil {
		return err
	}
	defer store.Close()

	return projects.ListSeen(ctx, store, cfg.Instance, cmd.OutOrStdout())
}

func runSeenForget(cmd *cobra.Command, args []string) error {
	ctx := context.Background()

	cfg, err := loadConfig()
	if err != nil {
		return err
	}

	store, err := openStore(ctx, cfg)
	if err != nil {
		return err
	}
	defer store.Close()

	missing, err := projects.ForgetSeen(ctx, store, args)
	if err != nil {
		return err
	}

	forgotten := len(args) - len(missing)
	if forgotten > 0 {
		printer.Success("Cleared %d seen marker(s)\n", forgotten)
	}
	if len(missing) > 0 {
		printer.Warning("No marker for: %s\n", strings.Join(missing, ", "))
	}

	return nil
}
