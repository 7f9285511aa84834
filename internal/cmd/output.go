package cmd

import (
	"io"
	"os"

	"github.com/fatih/color"
	"github.com/mattn/go-isatty"

	"github.com/harrison/pursuit/internal/models"
)

// palette holds the colors used by command output. Colors are disabled
// unless the writer is a terminal.
type palette struct {
	ok   *color.Color
	fail *color.Color
	warn *color.Color
	info *color.Color
	dim  *color.Color
	bold *color.Color
}

func newPalette(w io.Writer) palette {
	enabled := false
	if f, ok := w.(*os.File); ok && os.Getenv("NO_COLOR") == "" {
		enabled = isatty.IsTerminal(f.Fd()) || isatty.IsCygwinTerminal(f.Fd())
	}

	mk := func(attrs ...color.Attribute) *color.Color {
		c := color.New(attrs...)
		if enabled {
			c.EnableColor()
		} else {
			c.DisableColor()
		}
		return c
	}
	return palette{
		ok:   mk(color.FgGreen),
		fail: mk(color.FgRed),
		warn: mk(color.FgYellow),
		info: mk(color.FgCyan),
		dim:  mk(color.Faint),
		bold: mk(color.Bold),
	}
}

func (p palette) goalStatus(s models.GoalStatus) *color.Color {
	switch {
	case s == models.GoalCompletedSuccess || s == models.GoalCompletedNoAction:
		return p.ok
	case s.IsFailure():
		return p.fail
	case s == models.GoalActive:
		return p.info
	case s == models.GoalPausedDependency || s == models.GoalCancelled:
		return p.warn
	default:
		return p.dim
	}
}

func truncate(s string, n int) string {
	r := []rune(s)
	if len(r) <= n {
		return s
	}
	if n <= 3 {
		return string(r[:n])
	}
	return string(r[:n-3]) + "..."
}

func shortID(id string) string {
	if len(id) > 8 {
		return id[:8]
	}
	return id
}
