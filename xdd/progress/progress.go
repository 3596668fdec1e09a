// Package progress renders the carriage-return-overwritten status line
// described in spec §6: `<path><padding><pct>% <humanBytes> <MiB/s>
// <HH:MM:SS> ETA`. Adapted from the teacher's cmd/cli download-progress
// bar (cmd/cli dsort/download status renderers), generalized from a
// bucket/object name to an arbitrary destination path and switched from
// the teacher's internal width probe to golang.org/x/term.
/*
 * Copyright (c) 2018-2024, NVIDIA CORPORATION. All rights reserved.
 */
package progress

import (
	"fmt"
	"io"
	"os"
	"time"

	"golang.org/x/term"

	"github.com/bws-xdd/xddmcp/xdd/mono"
)

const defaultWidth = 80

// Width returns the controlling terminal's column count, or 80 when
// none is available (spec §6).
func Width() int {
	if w, _, err := term.GetSize(int(os.Stdout.Fd())); err == nil && w > 0 {
		return w
	}
	return defaultWidth
}

// Renderer writes one overwritten status line per Update call and
// tracks the elapsed time needed for the throughput/ETA fields, using
// mono.NanoTime so a wall-clock adjustment mid-transfer cannot produce
// a negative or skewed rate.
type Renderer struct {
	out     io.Writer
	startNS int64
	lastLen int
}

func NewRenderer(out io.Writer) *Renderer {
	return &Renderer{out: out, startNS: mono.NanoTime()}
}

// Update renders one line for path, given transferred/total bytes.
func (r *Renderer) Update(path string, transferred, total int64) {
	elapsed := time.Duration(mono.NanoTime() - r.startNS)
	pct := 0.0
	if total > 0 {
		pct = float64(transferred) / float64(total) * 100
	}

	rate := 0.0 // MiB/s
	if secs := elapsed.Seconds(); secs > 0 {
		rate = float64(transferred) / (1024 * 1024) / secs
	}

	var eta time.Duration
	if rate > 0 && total > transferred {
		remaining := float64(total-transferred) / (1024 * 1024)
		eta = time.Duration(remaining/rate*1000) * time.Millisecond
	}

	line := fmt.Sprintf("%-30s %5.1f%% %12s %7.2f MiB/s %s ETA",
		truncatePath(path, 30), pct, humanBytes(transferred), rate,
		formatHMS(eta))

	line = padTo(line, Width())
	fmt.Fprintf(r.out, "\r%s", line)
	r.lastLen = len(line)
}

// Done finalizes the line with a trailing newline so the next output
// does not overwrite it (spec §7 "progress bar ends on its current
// line").
func (r *Renderer) Done() {
	fmt.Fprintln(r.out)
}

func truncatePath(p string, n int) string {
	if len(p) <= n {
		return p
	}
	if n <= 3 {
		return p[:n]
	}
	return "..." + p[len(p)-(n-3):]
}

func padTo(s string, width int) string {
	if width <= 0 || len(s) >= width {
		return s
	}
	for len(s) < width {
		s += " "
	}
	return s
}

func formatHMS(d time.Duration) string {
	d = d.Round(time.Second)
	h := d / time.Hour
	d -= h * time.Hour
	m := d / time.Minute
	d -= m * time.Minute
	s := d / time.Second
	return fmt.Sprintf("%02d:%02d:%02d", h, m, s)
}

func humanBytes(n int64) string {
	const unit = 1024
	if n < unit {
		return fmt.Sprintf("%dB", n)
	}
	div, exp := int64(unit), 0
	for m := n / unit; m >= unit; m /= unit {
		div *= unit
		exp++
	}
	return fmt.Sprintf("%.1f%ciB", float64(n)/float64(div), "KMGTPE"[exp])
}
