package indicator

import (
	"fmt"
	"io"
	"sync"

	"github.com/charmbracelet/lipgloss"
)

var (
	pillBase       = lipgloss.NewStyle().Bold(true).Padding(0, 1)
	recordingPill  = pillBase.Foreground(lipgloss.Color("#FFFFFF")).Background(lipgloss.Color("#D7263D"))
	processingPill = pillBase.Foreground(lipgloss.Color("#000000")).Background(lipgloss.Color("#F4D35E"))
)

// Console draws the pill on a terminal line, rewriting it in place.
type Console struct {
	mu      sync.Mutex
	w       io.Writer
	showing bool
}

// NewConsole draws the pill on w.
func NewConsole(w io.Writer) *Console {
	return &Console{w: w}
}

func (c *Console) Show(mode Mode) {
	c.mu.Lock()
	defer c.mu.Unlock()
	fmt.Fprintf(c.w, "\r\033[K%s", Render(mode))
	c.showing = true
}

func (c *Console) Hide() {
	c.mu.Lock()
	defer c.mu.Unlock()
	if !c.showing {
		return
	}
	fmt.Fprint(c.w, "\r\033[K")
	c.showing = false
}

// Render returns the styled pill text for mode.
func Render(mode Mode) string {
	if mode == ModeProcessing {
		return processingPill.Render("… processing")
	}
	return recordingPill.Render("● recording")
}
