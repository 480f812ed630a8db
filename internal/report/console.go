// Package report prints operator-facing status lines.
package report

import (
	"fmt"
	"io"
	"os"
	"sync"

	"github.com/bryanchriswhite/DetectorSim/internal/logger"
	"github.com/mattn/go-isatty"
)

const (
	clearLine = "\r\033[2K"
)

// Console writes status lines to a terminal. On a TTY the latest status line
// is redrawn in place and permanent lines scroll above it; otherwise every
// line is printed as is. All lines are also written to the log.
type Console struct {
	mu     sync.Mutex
	out    io.Writer
	screen bool
	// status line currently drawn
	pending bool
}

// NewConsole creates a console on stdout. disableScreen forces plain output.
func NewConsole(disableScreen bool) *Console {
	return NewConsoleWriter(os.Stdout, !disableScreen && isTerminal(os.Stdout))
}

// NewConsoleWriter creates a console on w
func NewConsoleWriter(w io.Writer, screen bool) *Console {
	return &Console{out: w, screen: screen}
}

func isTerminal(f *os.File) bool {
	return isatty.IsTerminal(f.Fd()) || isatty.IsCygwinTerminal(f.Fd())
}

// Screen reports whether in-place redraw is enabled
func (c *Console) Screen() bool {
	return c.screen
}

// Report replaces the status line with text
func (c *Console) Report(text string) {
	c.mu.Lock()
	defer c.mu.Unlock()

	logger.WithComponent("report").Info().Msg(text)
	if c.screen {
		fmt.Fprint(c.out, clearLine+text)
		c.pending = true
		return
	}
	fmt.Fprintln(c.out, text)
}

// Announce prints a permanent line
func (c *Console) Announce(text string) {
	c.mu.Lock()
	defer c.mu.Unlock()

	logger.WithComponent("report").Info().Msg(text)
	if c.screen && c.pending {
		fmt.Fprint(c.out, clearLine)
		c.pending = false
	}
	fmt.Fprintln(c.out, text)
}

// Close ends a pending status line
func (c *Console) Close() error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.screen && c.pending {
		fmt.Fprintln(c.out)
		c.pending = false
	}
	return nil
}
