package commands

import (
	"context"
	"fmt"
	"time"

	"github.com/dyluth/xray/internal/printer"
	"github.com/dyluth/xray/internal/projects"
	"github.com/dyluth/xray/internal/resolver"
	"github.com/dyluth/xray/internal/timespec"
	"github.com/dyluth/xray/internal/watch"
	"github.com/spf13/cobra"
)

var (
	projectsOutputFormat string
	projectsSince        string
	projectsUntil        string
	projectsKey          string
	projectsField        string
	projectsWait         time.Duration
)

var projectsCmd = &cobra.Command{
	Use:   "projects",
	Short: "Browse cached project records",
}

var projectsListCmd = &cobra.Command{
	Use:   "list",
	Short: "List cached projects",
	Long: `List the projects cached in the store, oldest first.

Output Formats:
  default - Table with key, name, stored fields and age
  jsonl   - Line-delimited JSON, one record per line

Time Filters (on first discovery):
  --since  - Show projects found after this time
  --until  - Show projects found before this time

Examples:
  xray projects list
  xray projects list --since=24h --key="ABC-*"
  xray projects list --output=jsonl | jq '.fields.project.name'`,
	Args: cobra.NoArgs,
	RunE: runProjectsList,
}

var projectsGetCmd = &cobra.Command{
	Use:   "get <KEY>",
	Short: "Show one cached project as JSON",
	Long: `Print a project's full record as indented JSON.

The key may be typed in any case, or shortened to a prefix that matches
exactly one cached project.

With --wait the command polls until the record exists and carries both the
project view and the status history, which is useful right after a scan.
The full key is required with --wait.

Examples:
  xray projects get ABC-123
  xray projects get abc-12
  xray projects get ABC-123 --wait=30s`,
	Args: cobra.ExactArgs(1),
	RunE: runProjectsGet,
}

func init() {
	projectsListCmd.Flags().StringVarP(&projectsOutputFormat, "output", "o", "default", "Output format: default or jsonl")
	projectsListCmd.Flags().StringVar(&projectsSince, "since", "", "Show projects found after time (duration or RFC3339)")
	projectsListCmd.Flags().StringVar(&projectsUntil, "until", "", "Show projects found before time (duration or RFC3339)")
	projectsListCmd.Flags().StringVar(&projectsKey, "key", "", "Filter by project key (glob pattern)")
	projectsListCmd.Flags().StringVar(&projectsField, "field", "", "Only projects whose record carries this field")

	projectsGetCmd.Flags().DurationVar(&projectsWait, "wait", 0, "Wait up to this long for the record to be complete")

	projectsCmd.AddCommand(projectsListCmd, projectsGetCmd)
	rootCmd.AddCommand(projectsCmd)
}

func runProjectsList(cmd *cobra.Command, args []string) error {
	ctx := context.Background()

	var outputFormat projects.OutputFormat
	switch projectsOutputFormat {
	case "default":
		outputFormat = projects.OutputFormatDefault
	case "jsonl":
		outputFormat = projects.OutputFormatJSONL
	default:
		return printer.Error(
			"invalid output format",
			fmt.Sprintf("Unknown format: %s", projectsOutputFormat),
			[]string{"Valid formats: default, jsonl"},
		)
	}

	sinceMs, untilMs, err := timespec.ParseRange(projectsSince, projectsUntil)
	if err != nil {
		return printer.Error(
			"invalid time filter",
			err.Error(),
			[]string{"Use a duration like --since=2h or a time like --since=2025-10-29T13:00:00Z"},
		)
	}

	cfg, err := loadConfig()
	if err != nil {
		return err
	}

	store, err := openStore(ctx, cfg)
	if err != nil {
		return err
	}
	defer store.Close()

	filters := &projects.FilterCriteria{
		SinceTimestampMs: sinceMs,
		UntilTimestampMs: untilMs,
		KeyGlob:          projectsKey,
		Field:            projectsField,
	}

	return projects.ListProjects(ctx, store, cfg.Instance, outputFormat, filters, cmd.OutOrStdout())
}

func runProjectsGet(cmd *cobra.Command, args []string) error {
	ctx := context.Background()
	key := args[0]

	cfg, err := loadConfig()
	if err != nil {
		return err
	}

	store, err := openStore(ctx, cfg)
	if err != nil {
		return err
	}
	defer store.Close()

	if projectsWait > 0 {
		fields := []string{"project", "projectStatusHistory"}
		if _, err := watch.PollForRecord(ctx, store, key, fields, projectsWait); err != nil {
			return printer.Error(
				fmt.Sprintf("project '%s' not ready", key),
				err.Error(),
				[]string{"Check that a running watch has discovered it:\n  xray seen list"},
			)
		}
	}

	resolved, err := resolver.ResolveProjectKey(ctx, store, key)
	switch {
	case resolver.IsAmbiguousError(err):
		return printer.Error(
			fmt.Sprintf("ambiguous project key '%s'", key),
			"Matching projects:\n"+resolver.FormatMatches(err.(*resolver.AmbiguousError)),
			[]string{"Use a longer prefix or the full key"},
		)
	case resolver.IsNotFoundError(err):
		return projectNotFound(key)
	case err != nil:
		return err
	}

	err = projects.GetProject(ctx, store, resolved, cmd.OutOrStdout())
	if projects.IsNotFound(err) {
		return projectNotFound(resolved)
	}
	return err
}

func projectNotFound(key string) error {
	return printer.Error(
		fmt.Sprintf("project '%s' not found", key),
		"No record is cached for this project.",
		[]string{
			"List cached projects:\n  xray projects list",
			fmt.Sprintf("If it was seen but its fetch failed, clear the marker and rescan:\n  xray seen forget %s", key),
		},
	)
}
