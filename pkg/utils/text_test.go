package utils

import (
	"testing"
)

func TestTruncate(t *testing.T) {
	if Truncate("hello", 10) != "hello" {
		t.Error("short string unchanged")
	}
	if got := Truncate("hello world", 5); got != "hello..." {
		t.Errorf("got %s", got)
	}
	if Truncate("x", 0) != "x" {
		t.Error("maxLen 0 returns as-is")
	}
	// Rune-aware: multi-byte characters are not split.
	if got := Truncate("héllo wörld", 5); got != "héllo..." {
		t.Errorf("got %s", got)
	}
}
