package embedding

import (
	"testing"
)

func TestSimpleTokenizer_Tokenize(t *testing.T) {
	tok := &SimpleTokenizer{}
	ids, attn, types := tok.Tokenize("hello world", 10)
	if len(ids) != 10 || len(attn) != 10 || len(types) != 10 {
		t.Errorf("lengths: %d %d %d", len(ids), len(attn), len(types))
	}
	if ids[0] != 101 {
		t.Errorf("expected CLS 101, got %d", ids[0])
	}
	if attn[0] != 1 {
		t.Error("attention[0] should be 1")
	}
	if ids[3] != 102 {
		t.Errorf("expected SEP 102 after 2 words, got %d", ids[3])
	}
}

func TestSimpleTokenizer_truncates(t *testing.T) {
	tok := &SimpleTokenizer{}
	ids, _, _ := tok.Tokenize("a b c d e f g h i j", 4)
	if len(ids) != 4 {
		t.Fatalf("len(ids)=%d", len(ids))
	}
}

func TestHashWord(t *testing.T) {
	h := hashWord("abc")
	if h <= 0 {
		t.Errorf("hash should be positive, got %d", h)
	}
	if hashWord("abc") != hashWord("abc") {
		t.Error("hash should be deterministic")
	}
}
