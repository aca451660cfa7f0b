// Package clipboard copies text to the system clipboard, falling back to an
// OSC 52 escape sequence when no native clipboard is available (SSH, headless
// sessions).
package clipboard

import (
	"fmt"
	"os"

	"github.com/atotto/clipboard"
	"github.com/aymanbagabas/go-osc52/v2"
	"golang.org/x/term"
)

// Copy places text on the clipboard. Native clipboard first; if that fails
// and stdout is a terminal, emit an OSC 52 sequence and let the terminal do
// it.
func Copy(text string) error {
	if err := clipboard.WriteAll(text); err == nil {
		return nil
	}
	if !term.IsTerminal(int(os.Stdout.Fd())) {
		return fmt.Errorf("no clipboard available")
	}
	seq := osc52.New(text)
	if os.Getenv("TMUX") != "" {
		seq = seq.Tmux()
	}
	if _, err := seq.WriteTo(os.Stdout); err != nil {
		return fmt.Errorf("failed to write osc52 sequence: %w", err)
	}
	return nil
}
