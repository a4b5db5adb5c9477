// Package output provides formatted terminal output utilities for the CLI.
package output

import (
	"fmt"
	"io"
	"os"
	"strings"

	"github.com/fatih/color"

	"github.com/enclaveops/enclavectl/internal/constants"
)

var (
	green  = color.New(color.FgGreen)
	red    = color.New(color.FgRed)
	yellow = color.New(color.FgYellow)
	cyan   = color.New(color.FgCyan)
	gray   = color.New(color.FgHiBlack)
	bold   = color.New(color.Bold)

	// Stdout is the writer for normal output (overridable for testing).
	Stdout io.Writer = os.Stdout
	// Stderr is the writer for progress and error output (overridable for testing).
	Stderr io.Writer = os.Stderr
)

func init() {
	if os.Getenv("NO_COLOR") != "" {
		color.NoColor = true
	}
}

// Successf prints a success message with a checkmark (to stderr).
// Example: ✓ Cluster created
func Successf(format string, a ...any) {
	_, _ = fmt.Fprintf(Stderr, green.Sprint("✓")+" "+format+"\n", a...)
}

// Infof prints an informational message with an arrow (to stderr).
// Example: → Creating project...
func Infof(format string, a ...any) {
	_, _ = fmt.Fprintf(Stderr, cyan.Sprint("→")+" "+format+"\n", a...)
}

// Warningf prints a warning message (to stderr).
func Warningf(format string, a ...any) {
	_, _ = fmt.Fprintf(Stderr, yellow.Sprint("⚠")+" "+format+"\n", a...)
}

// Errorf prints an error message (to stderr).
func Errorf(format string, a ...any) {
	_, _ = fmt.Fprintf(Stderr, red.Sprint("✗")+" "+format+"\n", a...)
}

// Step prints a step in a multi-step process (to stderr).
// Example: [3/9] enable-api container.googleapis.com
func Step(step, total int, message string) {
	_, _ = gray.Fprintf(Stderr, "[%d/%d] ", step, total)
	_, _ = fmt.Fprintln(Stderr, message)
}

// ReportStep prints a step of a finished run report (to stdout).
// Progress steps go to stderr via Step; report lines are results and
// belong on stdout with the rest of the report.
func ReportStep(step, total int, message string) {
	_, _ = gray.Fprintf(Stdout, "[%d/%d] ", step, total)
	_, _ = fmt.Fprintln(Stdout, message)
}

// KeyValue prints an indented key-value pair (to stdout).
func KeyValue(key, value string) {
	_, _ = fmt.Fprintf(Stdout, "  %s: %s\n", gray.Sprint(key), value)
}

// Blank prints a blank line (to stdout).
func Blank() {
	_, _ = fmt.Fprintln(Stdout)
}

// Println prints a plain line without any formatting (to stdout).
func Println(a ...any) {
	_, _ = fmt.Fprintln(Stdout, a...)
}

// Header prints a bold section header with a separator line (to stderr).
func Header(text string) {
	_, _ = fmt.Fprintln(Stderr)
	_, _ = fmt.Fprintln(Stderr, bold.Sprint(text))
	_, _ = fmt.Fprintln(Stderr, gray.Sprint(strings.Repeat("━", constants.HeaderSeparatorLength)))
}

// Bold returns the text styled bold.
func Bold(text string) string {
	return bold.Sprint(text)
}

// Green returns the text styled green.
func Green(text string) string {
	return green.Sprint(text)
}

// Red returns the text styled red.
func Red(text string) string {
	return red.Sprint(text)
}

// Prompt asks the operator a question and returns the trimmed response.
func Prompt(prompt string) string {
	_, _ = fmt.Fprintf(Stderr, "%s: ", cyan.Sprint("?")+" "+prompt)

	var response string
	_, _ = fmt.Scanln(&response)

	return strings.TrimSpace(response)
}

// Confirm asks a yes/no question and returns true only on explicit consent.
func Confirm(question string) bool {
	response := strings.ToLower(Prompt(question + " [y/N]"))
	return response == "y" || response == "yes"
}
