package cliutil

import (
	"fmt"
	"io"
	"os"

	"github.com/mattn/go-isatty"
)

// Progress renders an in-place "N of M done" line on a TTY, or a plain
// line-per-update log when stdout is redirected — the distinction
// distr1/distri's build output makes via mattn/go-isatty before deciding
// whether carriage-return redraws are safe to emit.
type Progress struct {
	out   io.Writer
	tty   bool
	label string
	last  string
}

func NewProgress(out *os.File, label string) *Progress {
	return &Progress{out: out, tty: isatty.IsTerminal(out.Fd()), label: label}
}

// Update reports done/total units complete plus a short status word
// ("reading", "verifying", ...).
func (p *Progress) Update(done, total int64, status string) {
	line := fmt.Sprintf("%s: %s %s / %s (%s)", p.label, status, FormatBytes(done), FormatBytes(total), percent(done, total))
	if p.tty {
		fmt.Fprintf(p.out, "\r%s", line)
	} else if line != p.last {
		fmt.Fprintln(p.out, line)
	}
	p.last = line
}

// Done finalizes the progress line.
func (p *Progress) Done() {
	if p.tty {
		fmt.Fprintln(p.out)
	}
}

func percent(done, total int64) string {
	if total <= 0 {
		return "0%"
	}
	return fmt.Sprintf("%.1f%%", float64(done)/float64(total)*100)
}
