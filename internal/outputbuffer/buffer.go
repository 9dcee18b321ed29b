// Package outputbuffer turns a raw pane capture into a deduplicated stream
// of newly-seen lines: strip escapes, trim
// trailing blank lines, hash each line, emit only unseen hashes, and keep a
// bounded rolling window plus a bounded seen-hash set.
package outputbuffer

import (
	"strings"

	"github.com/cespare/xxhash/v2"
)

// DefaultMaxLines is the default rolling-window cap.
const DefaultMaxLines = 5000

// DefaultMaxHashes is the default seen-hash set cap.
const DefaultMaxHashes = 10000

// Buffer is stateful and single-threaded from the owning pane monitor — it
// must never be shared across monitors.
type Buffer struct {
	maxLines  int
	maxHashes int

	window    []string
	seen      map[uint64]struct{}
	seenOrder []uint64 // insertion order, oldest first, for halving on overflow
}

// New creates a Buffer with the given rolling-window and seen-hash caps.
// Passing 0 for either uses its default.
func New(maxLines, maxHashes int) *Buffer {
	if maxLines <= 0 {
		maxLines = DefaultMaxLines
	}
	if maxHashes <= 0 {
		maxHashes = DefaultMaxHashes
	}
	return &Buffer{
		maxLines:  maxLines,
		maxHashes: maxHashes,
		seen:      make(map[uint64]struct{}),
	}
}

// Process strips escapes and trailing blank lines from a fresh capture,
// then returns only the lines whose content hash has not been seen before,
// in the order they first appear in capture. A line that flickers in and
// out of visibility (e.g. via alternate-screen toggles) is therefore
// emitted at most once — a deduplication promise, not an ordering one.
func (b *Buffer) Process(capture []string) []string {
	stripped := make([]string, len(capture))
	for i, line := range capture {
		stripped[i] = StripEscapes(line)
	}
	stripped = TrimTrailingEmptyLines(stripped)

	var emitted []string
	for _, line := range stripped {
		h := xxhash.Sum64String(line)
		if _, ok := b.seen[h]; ok {
			continue
		}
		b.seen[h] = struct{}{}
		b.seenOrder = append(b.seenOrder, h)
		emitted = append(emitted, line)

		b.window = append(b.window, line)
		if len(b.window) > b.maxLines {
			b.window = b.window[len(b.window)-b.maxLines:]
		}
	}

	if len(b.seenOrder) > b.maxHashes {
		half := len(b.seenOrder) / 2
		for _, h := range b.seenOrder[:half] {
			delete(b.seen, h)
		}
		b.seenOrder = append([]uint64(nil), b.seenOrder[half:]...)
	}

	return emitted
}

// Window returns a copy of the current rolling window, oldest first.
func (b *Buffer) Window() []string {
	out := make([]string, len(b.window))
	copy(out, b.window)
	return out
}

// LastLines returns up to n of the most recently emitted lines, joined with
// newlines — used by the AI Adapter's deterministic summarize fallback
// for summarization.
func (b *Buffer) LastLines(n int) string {
	if n <= 0 || len(b.window) == 0 {
		return ""
	}
	if n > len(b.window) {
		n = len(b.window)
	}
	return strings.Join(b.window[len(b.window)-n:], "\n")
}
