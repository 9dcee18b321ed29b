package outputbuffer

import "strings"

// StripEscapes removes terminal escape sequences and cursor-movement
// artifacts from s. It handles, in order: CSI sequences (ESC [ ... final
// byte), OSC sequences terminated by either ST (ESC \) or BEL (0x07),
// single-character ESC sequences (ESC followed by one byte outside the
// CSI/OSC introducers), and bare backspace/carriage-return bytes.
//
// The exact escape-sequence repertoire emitted by a given CLI is not
// something callers can enumerate in advance, so this errs on the side of
// stripping too much rather than too little — a false-positive strip loses
// at most a rare literal control byte, while under-stripping corrupts the
// classifier's view of the text.
func StripEscapes(s string) string {
	var out strings.Builder
	out.Grow(len(s))
	i := 0
	for i < len(s) {
		c := s[i]

		switch {
		case c == '\x1b' && i+1 < len(s) && s[i+1] == '[':
			// CSI: ESC [ parameter-bytes intermediate-bytes final-byte
			j := i + 2
			for j < len(s) && s[j] >= 0x20 && s[j] <= 0x3F {
				j++
			}
			if j < len(s) && s[j] >= 0x40 && s[j] <= 0x7E {
				j++
			}
			i = j

		case c == '\x1b' && i+1 < len(s) && s[i+1] == ']':
			// OSC: ESC ] ... terminated by BEL or ESC \ (ST)
			j := i + 2
			for j < len(s) {
				if s[j] == 0x07 {
					j++
					break
				}
				if s[j] == '\x1b' && j+1 < len(s) && s[j+1] == '\\' {
					j += 2
					break
				}
				j++
			}
			i = j

		case c == '\x1b' && i+1 < len(s):
			// Single-character escape sequence, e.g. ESC M (reverse index).
			i += 2

		case c == '\x1b':
			i++

		case c == '\b' || c == '\r':
			i++

		default:
			out.WriteByte(c)
			i++
		}
	}
	return out.String()
}

// TrimTrailingEmptyLines drops trailing blank lines (cursor artifacts left
// by alternate-screen redraws) from lines before comparison or hashing.
func TrimTrailingEmptyLines(lines []string) []string {
	end := len(lines)
	for end > 0 && strings.TrimSpace(lines[end-1]) == "" {
		end--
	}
	return lines[:end]
}
