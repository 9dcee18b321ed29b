package outputbuffer

import "testing"

func TestStripEscapesCSI(t *testing.T) {
	in := "\x1b[31mhello\x1b[0m world"
	want := "hello world"
	if got := StripEscapes(in); got != want {
		t.Fatalf("StripEscapes(%q) = %q, want %q", in, got, want)
	}
}

func TestStripEscapesOSCWithBEL(t *testing.T) {
	in := "\x1b]0;window title\x07prompt> "
	want := "prompt> "
	if got := StripEscapes(in); got != want {
		t.Fatalf("StripEscapes(%q) = %q, want %q", in, got, want)
	}
}

func TestStripEscapesOSCWithST(t *testing.T) {
	in := "\x1b]0;window title\x1b\\prompt> "
	want := "prompt> "
	if got := StripEscapes(in); got != want {
		t.Fatalf("StripEscapes(%q) = %q, want %q", in, got, want)
	}
}

func TestStripEscapesSingleCharAndControlBytes(t *testing.T) {
	in := "abc\x1bMdef\bghi\r"
	want := "abcdefghi"
	if got := StripEscapes(in); got != want {
		t.Fatalf("StripEscapes(%q) = %q, want %q", in, got, want)
	}
}

func TestStripEscapesIdempotent(t *testing.T) {
	in := "\x1b[1;32mready\x1b[0m\n> "
	once := StripEscapes(in)
	twice := StripEscapes(once)
	if once != twice {
		t.Fatalf("StripEscapes is not idempotent: once=%q twice=%q", once, twice)
	}
}

func TestTrimTrailingEmptyLines(t *testing.T) {
	in := []string{"a", "b", "", "  ", ""}
	want := []string{"a", "b"}
	got := TrimTrailingEmptyLines(in)
	if len(got) != len(want) {
		t.Fatalf("TrimTrailingEmptyLines(%v) = %v, want %v", in, got, want)
	}
	for i := range want {
		if got[i] != want[i] {
			t.Fatalf("TrimTrailingEmptyLines(%v) = %v, want %v", in, got, want)
		}
	}
}
