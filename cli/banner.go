// Package cli renders fsmctl output and drives its interactive prompts.
package cli

import (
	"fmt"
	"io"
	"os"
	"strconv"
	"strings"
	"sync"
	"unicode"
)

const (
	boxTopLeft     = "╒"
	boxBottomLeft  = "└"
	boxTopRight    = "╕"
	boxBottomRight = "┘"
	boxSide        = "│"
	boxTop         = "═"
	boxBottom      = "─"
	ellipsis       = "…"
)

// Alignment of banner lines.
type Alignment int

const (
	AlignLeft Alignment = iota
	AlignCenter
	AlignRight
)

const (
	DefaultTerminalWidth = 80

	bannerPadding = 2
)

// FSMCTL_NO_BANNER=1 prints banner text without the box, for piping.
var suppressBanner = sync.OnceValue(func() bool {
	v, err := strconv.ParseBool(os.Getenv("FSMCTL_NO_BANNER"))

	return err == nil && v
})

// TerminalWidth reads COLUMNS, falling back to DefaultTerminalWidth.
func TerminalWidth() int {
	if w, err := strconv.Atoi(os.Getenv("COLUMNS")); err == nil && w > bannerPadding {
		return w
	}

	return DefaultTerminalWidth
}

// PrintBanner writes a boxed banner sized to the terminal.
func PrintBanner(w io.Writer, text string, align Alignment) {
	_, _ = fmt.Fprintln(w, Banner(text, TerminalWidth(), align))
}

// Banner draws text inside a box width columns wide. Long lines are cut
// with an ellipsis.
func Banner(text string, width int, align Alignment) string {
	if suppressBanner() {
		return text
	}

	if width <= bannerPadding {
		return ""
	}

	inner := width - bannerPadding
	lines := strings.Split(strings.ReplaceAll(text, "\r\n", "\n"), "\n")

	parts := make([]string, 0, len(lines)+2) //nolint:mnd
	parts = append(parts, boxTopLeft+strings.Repeat(boxTop, inner)+boxTopRight)

	for _, l := range lines {
		parts = append(parts, boxSide+pad(l, inner, align)+boxSide)
	}

	parts = append(parts, boxBottomLeft+strings.Repeat(boxBottom, inner)+boxBottomRight)

	return strings.Join(parts, "\n")
}

func pad(text string, width int, align Alignment) string {
	length := countGraphic(text)

	if length > width {
		text = truncateGraphic(text, width-1) + ellipsis
		length = width
	}

	diff := width - length

	switch align {
	case AlignCenter:
		left := diff / 2 //nolint:mnd

		return strings.Repeat(" ", left) + text + strings.Repeat(" ", diff-left)
	case AlignRight:
		return strings.Repeat(" ", diff) + text
	default:
		return text + strings.Repeat(" ", diff)
	}
}

func countGraphic(s string) int {
	count := 0

	for _, r := range s {
		if unicode.IsGraphic(r) {
			count++
		}
	}

	return count
}

func truncateGraphic(s string, n int) string {
	var sb strings.Builder

	count := 0

	for _, r := range s {
		if unicode.IsGraphic(r) {
			if count == n {
				break
			}

			count++
		}

		sb.WriteRune(r)
	}

	return sb.String()
}
