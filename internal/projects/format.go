package projects

import (
	"encoding/json"
	"fmt"
	"io"
	"strings"
	"time"

	"github.com/dyluth/xray/pkg/projectstore"
)

// recordJSON is the output shape of a record: fields are embedded as real
// JSON rather than strings.
type recordJSON struct {
	ProjectKey  string                     `json:"project_key"`
	CreatedAtMs int64                      `json:"created_at_ms"`
	UpdatedAtMs int64                      `json:"updated_at_ms"`
	Fields      map[string]json.RawMessage `json:"fields"`
}

func toJSON(rec *projectstore.ProjectRecord) recordJSON {
	fields := rec.Fields
	if fields == nil {
		fields = map[string]json.RawMessage{}
	}
	return recordJSON{
		ProjectKey:  rec.ProjectKey,
		CreatedAtMs: rec.CreatedAtMs,
		UpdatedAtMs: rec.UpdatedAtMs,
		Fields:      fields,
	}
}

// FormatTable writes records as a table with columns KEY, NAME, FIELDS,
// FOUND and UPDATED. Returns the number of records formatted.
func FormatTable(w io.Writer, records []*projectstore.ProjectRecord, instanceName string) int {
	if len(records) == 0 {
		fmt.Fprintf(w, "No projects found for instance '%s'\n", instanceName)
		return 0
	}

	fmt.Fprintf(w, "Projects for instance '%s':\n\n", instanceName)

	fmt.Fprintf(w, "%-12s %-30s %-32s %-8s %s\n", "KEY", "NAME", "FIELDS", "FOUND", "UPDATED")
	fmt.Fprintf(w, "%-12s %-30s %-32s %-8s %s\n",
		"------------", "------------------------------", "--------------------------------", "--------", "--------")

	for _, rec := range records {
		fmt.Fprintf(w, "%-12s %-30s %-32s %-8s %s\n",
			rec.ProjectKey,
			formatName(rec),
			formatFields(rec.FieldNames()),
			formatTimestamp(rec.CreatedAtMs),
			formatTimestamp(rec.UpdatedAtMs),
		)
	}

	noun := "project"
	if len(records) != 1 {
		noun = "projects"
	}
	fmt.Fprintf(w, "\n%d %s found\n", len(records), noun)

	return len(records)
}

// FormatJSONL writes one compact JSON object per record.
func FormatJSONL(w io.Writer, records []*projectstore.ProjectRecord) error {
	for _, rec := range records {
		data, err := json.Marshal(toJSON(rec))
		if err != nil {
			return fmt.Errorf("failed to marshal project to JSON: %w", err)
		}

		if _, err := fmt.Fprintf(w, "%s\n", data); err != nil {
			return fmt.Errorf("failed to write JSONL output: %w", err)
		}
	}

	return nil
}

// FormatSingleJSON writes one record as indented JSON.
func FormatSingleJSON(w io.Writer, rec *projectstore.ProjectRecord) error {
	data, err := json.MarshalIndent(toJSON(rec), "", "  ")
	if err != nil {
		return fmt.Errorf("failed to marshal project to JSON: %w", err)
	}

	if _, err := w.Write(data); err != nil {
		return fmt.Errorf("failed to write JSON output: %w", err)
	}
	fmt.Fprintln(w)

	return nil
}

// formatName pulls project.name out of the project view payload when present.
func formatName(rec *projectstore.ProjectRecord) string {
	raw, ok := rec.Fields["project"]
	if !ok {
		return "-"
	}

	var project struct {
		Name string `json:"name"`
	}
	if err := json.Unmarshal(raw, &project); err != nil || project.Name == "" {
		return "-"
	}

	return truncate(project.Name, 30)
}

func formatFields(names []string) string {
	if len(names) == 0 {
		return "-"
	}
	return truncate(strings.Join(names, ","), 32)
}

func truncate(s string, n int) string {
	if len(s) > n {
		return s[:n-3] + "..."
	}
	return s
}

// formatTimestamp renders a millisecond timestamp as relative time, e.g. "2m ago".
func formatTimestamp(timestampMs int64) string {
	if timestampMs == 0 {
		return "-"
	}

	diff := time.Since(time.UnixMilli(timestampMs))

	switch {
	case diff < time.Minute:
		return fmt.Sprintf("%ds ago", int(diff.Seconds()))
	case diff < time.Hour:
		return fmt.Sprintf("%dm ago", int(diff.Minutes()))
	case diff < 24*time.Hour:
		return fmt.Sprintf("%dh ago", int(diff.Hours()))
	default:
		return fmt.Sprintf("%dd ago", int(diff.Hours()/24))
	}
}
