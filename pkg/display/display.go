// Package display renders CLI output, styled when stdout is a terminal and
// plain when piped.
package display

import (
	"fmt"
	"io"
	"os"
	"strings"

	"github.com/mattn/go-runewidth"
	"golang.org/x/term"

	"cmsg_cli/pkg/gitdiff"
	"cmsg_cli/pkg/usage"
)

const maxStatLineWidth = 80

// Renderer writes formatted output to a destination.
type Renderer struct {
	out    io.Writer
	styled bool
}

// New creates a renderer for stdout, enabling styles only when stdout is a
// terminal.
func New() *Renderer {
	return &Renderer{
		out:    os.Stdout,
		styled: term.IsTerminal(int(os.Stdout.Fd())),
	}
}

// NewWriter creates a renderer for an arbitrary writer, with styling forced
// on or off. Used by tests.
func NewWriter(out io.Writer, styled bool) *Renderer {
	return &Renderer{out: out, styled: styled}
}

// Message prints the generated commit message, boxed when styled.
func (r *Renderer) Message(message string) {
	message = strings.TrimRight(message, "\n")
	if r.styled {
		fmt.Fprintln(r.out, messageStyle.Render(message))
		return
	}
	fmt.Fprintln(r.out, message)
}

// Success prints a confirmation line.
func (r *Renderer) Success(format string, args ...any) {
	text := fmt.Sprintf(format, args...)
	if r.styled {
		text = successStyle.Render(text)
	}
	fmt.Fprintln(r.out, text)
}

// Error prints an error line.
func (r *Renderer) Error(format string, args ...any) {
	text := fmt.Sprintf(format, args...)
	if r.styled {
		text = errorStyle.Render(text)
	}
	fmt.Fprintln(r.out, text)
}

// Warning prints a warning line.
func (r *Renderer) Warning(format string, args ...any) {
	text := fmt.Sprintf(format, args...)
	if r.styled {
		text = warningStyle.Render(text)
	}
	fmt.Fprintln(r.out, text)
}

// Info prints a muted informational line.
func (r *Renderer) Info(format string, args ...any) {
	text := fmt.Sprintf(format, args...)
	if r.styled {
		text = mutedStyle.Render(text)
	}
	fmt.Fprintln(r.out, text)
}

// ChangeSummary prints the staged changeset overview: one header and a line
// per file, truncated to the terminal-friendly width.
func (r *Renderer) ChangeSummary(changes gitdiff.Changes) {
	stats := changes.Stats()
	header := fmt.Sprintf("%d file(s) staged, +%d -%d", stats.Files, stats.Insertions, stats.Deletions)
	if r.styled {
		header = titleStyle.Render(header)
	}
	fmt.Fprintln(r.out, header)

	for _, f := range changes.Files {
		line := fmt.Sprintf("  %-8s %s", f.Status, f.Path)
		if f.Binary {
			line += " (binary)"
		} else {
			line += fmt.Sprintf(" +%d -%d", f.Insertions, f.Deletions)
		}
		line = runewidth.Truncate(line, maxStatLineWidth, "…")
		if r.styled {
			line = mutedStyle.Render(line)
		}
		fmt.Fprintln(r.out, line)
	}
	if changes.Truncated {
		r.Warning("diff truncated before sending")
	}
}

// UsageTotals prints the accumulated usage ledger.
func (r *Renderer) UsageTotals(totals usage.Totals) {
	header := "usage totals"
	if r.styled {
		header = titleStyle.Render(header)
	}
	fmt.Fprintln(r.out, header)
	fmt.Fprintf(r.out, "  calls:             %d\n", totals.Calls)
	fmt.Fprintf(r.out, "  prompt tokens:     %d\n", totals.PromptTokens)
	fmt.Fprintf(r.out, "  completion tokens: %d\n", totals.CompletionTokens)
	fmt.Fprintf(r.out, "  estimated cost:    %s\n", usage.FormatCost(totals.CostUSD))
}
