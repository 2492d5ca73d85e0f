package diag

import (
	"fmt"
	"io"
	"strings"

	"github.com/fatih/color"
)

// Reporter formats a Sink's messages for a terminal with fatih/color —
// red/bold for errors, yellow/bold for warnings. There is no
// source-line/caret rendering; the core never holds file text.
type Reporter struct {
	w io.Writer
}

// NewReporter returns a Reporter writing to w.
func NewReporter(w io.Writer) *Reporter {
	return &Reporter{w: w}
}

// Report prints every message in msgs, one per line.
func (r *Reporter) Report(msgs []Message) {
	for _, m := range msgs {
		r.reportOne(m)
	}
}

func (r *Reporter) reportOne(m Message) {
	var level string
	switch m.Severity {
	case SeverityError:
		level = color.New(color.FgRed, color.Bold).Sprint("error")
	case SeverityWarning:
		level = color.New(color.FgYellow, color.Bold).Sprint("warning")
	}
	loc := color.New(color.Faint).Sprintf("%s:%d", m.File, m.Line)
	fmt.Fprintf(r.w, "%s[%s]: %s %s\n", level, m.Code, m.Text, loc)
}

// Summary returns a one-line "N errors, M warnings" string, colored
// green when clean, matching a CLI's color.Green success line.
func (r *Reporter) Summary(msgs []Message) string {
	var errs, warns int
	for _, m := range msgs {
		if m.Severity == SeverityError {
			errs++
		} else {
			warns++
		}
	}
	if errs == 0 && warns == 0 {
		return color.GreenString("no diagnostics")
	}
	var parts []string
	if errs > 0 {
		parts = append(parts, color.RedString("%d error(s)", errs))
	}
	if warns > 0 {
		parts = append(parts, color.YellowString("%d warning(s)", warns))
	}
	return strings.Join(parts, ", ")
}
