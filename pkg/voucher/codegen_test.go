package voucher

import "testing"

func TestGenerateCode(t *testing.T) {
	for _, length := range []int{4, 10, 24} {
		code := generateCode(length)
		if len(code) != length {
			t.Fatalf("generateCode(%d) length = %d, want %d", length, len(code), length)
		}
		for _, c := range code {
			if !containsRune(Alphabet, c) {
				t.Fatalf("generateCode produced out-of-alphabet character %q", c)
			}
		}
	}
}

func TestGenerateCodeVaries(t *testing.T) {
	seen := map[string]bool{}
	for i := 0; i < 20; i++ {
		seen[generateCode(10)] = true
	}
	if len(seen) < 15 {
		t.Fatalf("generateCode produced only %d distinct codes in 20 draws", len(seen))
	}
}

func containsRune(s string, r rune) bool {
	for _, c := range s {
		if c == r {
			return true
		}
	}
	return false
}
