package textutil

import (
	"fmt"
	"strings"
	"unicode/utf8"
)

// FormatPlace converts a numeric place (1, 2, 3, ...) to a string ("1st", "2nd", "3rd", ...).
func FormatPlace(place int) string {
	suffix := "th"
	if place%100 < 11 || place%100 > 13 {
		switch place % 10 {
		case 1:
			suffix = "st"
		case 2:
			suffix = "nd"
		case 3:
			suffix = "rd"
		}
	}
	return fmt.Sprintf("%d%s", place, suffix)
}

// PadRight pads s with spaces to width runes.  Longer strings are cut and
// end in "...".
func PadRight(s string, width int) string {
	n := utf8.RuneCountInString(s)
	if n > width {
		return Truncate(s, width)
	}
	return s + strings.Repeat(" ", width-n)
}

// PadLeft right-aligns s in width runes, for money columns.
func PadLeft(s string, width int) string {
	n := utf8.RuneCountInString(s)
	if n >= width {
		return s
	}
	return strings.Repeat(" ", width-n) + s
}

// Truncate shortens s to at most width runes.
func Truncate(s string, width int) string {
	if utf8.RuneCountInString(s) <= width {
		return s
	}
	if width <= 3 {
		return string([]rune(s)[:max(width, 0)])
	}
	return string([]rune(s)[:width-3]) + "..."
}
