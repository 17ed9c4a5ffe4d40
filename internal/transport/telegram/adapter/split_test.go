package adapter

import (
	"strings"
	"testing"
	"unicode/utf8"
)

func TestSplitTextShortIsUntouched(t *testing.T) {
	t.Parallel()
	if got := splitText("привет", 10); len(got) != 1 || got[0] != "привет" {
		t.Fatalf("got %q", got)
	}
	if got := splitText("", 10); len(got) != 1 || got[0] != "" {
		t.Fatalf("empty: got %q", got)
	}
}

func TestSplitTextPrefersNewlines(t *testing.T) {
	t.Parallel()
	line := strings.Repeat("я", 6)
	s := strings.Join([]string{line, line, line, line}, "\n") // 27 runes
	got := splitText(s, 14)
	if len(got) != 2 {
		t.Fatalf("chunks = %q", got)
	}
	for _, c := range got {
		if strings.HasPrefix(c, "\n") || strings.HasSuffix(c, "\n") {
			t.Fatalf("chunk has edge newline: %q", c)
		}
		if utf8.RuneCountInString(c) > 14 {
			t.Fatalf("chunk too long: %q", c)
		}
	}
	if strings.Join(got, "\n") != s {
		t.Fatalf("rejoined text differs: %q", got)
	}
}

func TestSplitTextHardCut(t *testing.T) {
	t.Parallel()
	s := strings.Repeat("x", 25)
	got := splitText(s, 10)
	if len(got) != 3 || got[0] != strings.Repeat("x", 10) || got[2] != "xxxxx" {
		t.Fatalf("chunks = %q", got)
	}
}
