package printer

import (
	"fmt"
	"io"
	"os"
	"sort"
	"strings"

	"github.com/fatih/color"
)

func init() {
	// Force color output even when not connected to TTY
	// Users can disable with NO_COLOR environment variable
	if os.Getenv("NO_COLOR") == "" {
		color.NoColor = false
	}
}

// Output destinations; tests swap these for buffers.
var (
	Out    io.Writer = os.Stdout
	ErrOut io.Writer = os.Stderr
)

var (
	green  = color.New(color.FgGreen)
	yellow = color.New(color.FgYellow)
	red    = color.New(color.FgRed, color.Bold)
	cyan   = color.New(color.FgCyan)
	faint  = color.New(color.Faint)
)

// Success prints a success message in green with a checkmark prefix
func Success(format string, a ...any) {
	green.Fprint(Out, withPrefix("✓", fmt.Sprintf(format, a...)))
}

// Info prints an informational message in the default color
func Info(format string, a ...any) {
	fmt.Fprintf(Out, format, a...)
}

// Warning prints a warning message in yellow with a warning prefix
func Warning(format string, a ...any) {
	yellow.Fprint(Out, withPrefix("⚠️ ", fmt.Sprintf(format, a...)))
}

// Step prints a step message with emphasis (used in multi-step operations)
func Step(format string, a ...any) {
	cyan.Fprintf(Out, "→ %s", fmt.Sprintf(format, a...))
}

// Detail prints a dimmed key/value line, used under a Step or Success line
func Detail(key string, value any) {
	faint.Fprintf(Out, "    %-10s %v\n", key+":", value)
}

// Error prints a formatted error with title, explanation and suggestions to
// ErrOut and returns a plain error carrying only the title, for Cobra.
func Error(title string, explanation string, suggestions []string) error {
	return ErrorWithContext(title, explanation, nil, suggestions)
}

// ErrorWithContext is Error with extra key/value context lines, printed in
// key order.
func ErrorWithContext(title string, explanation string, context map[string]string, suggestions []string) error {
	red.Fprintf(ErrOut, "%s\n\n", title)

	if explanation != "" {
		fmt.Fprintf(ErrOut, "%s\n", explanation)
	}

	if len(context) > 0 {
		keys := make([]string, 0, len(context))
		for key := range context {
			keys = append(keys, key)
		}
		sort.Strings(keys)

		fmt.Fprintln(ErrOut)
		for _, key := range keys {
			fmt.Fprintf(ErrOut, "  %s: %s\n", key, context[key])
		}
	}

	writeSuggestions(ErrOut, suggestions)

	// Returned error won't be printed again due to SilenceErrors
	return fmt.Errorf("%s", title)
}

func writeSuggestions(w io.Writer, suggestions []string) {
	switch len(suggestions) {
	case 0:
		return
	case 1:
		fmt.Fprintf(w, "\n%s\n", suggestions[0])
	default:
		fmt.Fprintf(w, "\nEither:\n")
		for i, suggestion := range suggestions {
			fmt.Fprintf(w, "  %d. %s\n", i+1, suggestion)
		}
	}
}

func withPrefix(prefix, msg string) string {
	if strings.HasPrefix(msg, strings.TrimSpace(prefix)) {
		return msg
	}
	return prefix + " " + msg
}
