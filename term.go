package main

import (
	"bytes"
	"errors"
	"fmt"
	"io"
	"os"
	"strings"

	"golang.org/x/term"
)

var errNotTerminal = errors.New("input is not a terminal")

const (
	colorReset   = "\033[0m"
	colorGreen   = "\033[32m"
	colorRed     = "\033[31m"
	colorCyan    = "\033[36m"
	colorYellow  = "\033[33m"
	colorBlue    = "\033[34m"
	colorMagenta = "\033[35m"
	colorDim     = "\033[2m"
	colorBold    = "\033[1m"
)

// chunkColors cycles through the palette so neighbouring chunks differ.
var chunkColors = []string{colorCyan, colorYellow, colorGreen, colorMagenta, colorBlue}

func chunkColor(n int) string {
	if n <= 0 {
		return ""
	}
	return chunkColors[(n-1)%len(chunkColors)]
}

// rawTerminal holds the state needed to undo raw mode on a tty.
type rawTerminal struct {
	fd    int
	saved *term.State
}

// enableRaw switches f to unbuffered, non-echoing input. It fails when f is
// not a terminal, in which case the caller falls back to typed commands.
func enableRaw(f *os.File) (*rawTerminal, error) {
	fd := int(f.Fd())
	if !term.IsTerminal(fd) {
		return nil, errNotTerminal
	}
	saved, err := term.MakeRaw(fd)
	if err != nil {
		return nil, err
	}
	return &rawTerminal{fd: fd, saved: saved}, nil
}

func (t *rawTerminal) restore() {
	_ = term.Restore(t.fd, t.saved)
}

// termWidth reports the column count of stdout, or 0 when unknown.
func termWidth() int {
	width, _, err := term.GetSize(int(os.Stdout.Fd()))
	if err != nil {
		return 0
	}
	return width
}

// crlfWriter ends lines with \r\n. Raw mode turns off output newline
// translation.
type crlfWriter struct {
	w io.Writer
}

func (c crlfWriter) Write(b []byte) (int, error) {
	if _, err := c.w.Write(bytes.ReplaceAll(b, []byte("\n"), []byte("\r\n"))); err != nil {
		return 0, err
	}
	return len(b), nil
}

func clearScreen(w io.Writer) {
	fmt.Fprint(w, "\033[2J\033[H")
}

func colorize(s, color string) string {
	if color == "" {
		return s
	}
	return color + s + colorReset
}

func padRight(s string, width int) string {
	runes := []rune(s)
	if len(runes) >= width {
		return s
	}
	return s + strings.Repeat(" ", width-len(runes))
}

// visibleLen counts runes outside ANSI escape sequences.
func visibleLen(s string) int {
	n, inEscape := 0, false
	for _, r := range s {
		switch {
		case inEscape:
			if r == 'm' {
				inEscape = false
			}
		case r == '\033':
			inEscape = true
		default:
			n++
		}
	}
	return n
}

// renderBlock prints lines left-aligned within a centered block.
func renderBlock(w io.Writer, lines []string, width int) {
	maxLen := 0
	for _, l := range lines {
		if n := visibleLen(l); n > maxLen {
			maxLen = n
		}
	}
	margin := 0
	if width > 0 && maxLen < width {
		margin = (width - maxLen) / 2
	}
	space := strings.Repeat(" ", margin)
	for _, l := range lines {
		if l == "" {
			fmt.Fprintln(w)
			continue
		}
		fmt.Fprintln(w, space+l)
	}
}

// wrapText breaks s into lines of at most width runes on word boundaries.
func wrapText(s string, width int) []string {
	words := strings.Fields(s)
	if len(words) == 0 {
		return nil
	}
	if width <= 0 {
		return []string{strings.Join(words, " ")}
	}
	var lines []string
	line := words[0]
	for _, word := range words[1:] {
		if len([]rune(line))+1+len([]rune(word)) > width {
			lines = append(lines, line)
			line = word
			continue
		}
		line += " " + word
	}
	return append(lines, line)
}
