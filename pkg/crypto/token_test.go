package crypto

import (
	"encoding/base64"
	"strings"
	"testing"
)

func TestRandomToken(t *testing.T) {
	tests := []struct {
		name      string
		args      []int
		wantBytes int
	}{
		{name: "default length", wantBytes: DefaultTokenBytes},
		{name: "custom length", args: []int{16}, wantBytes: 16},
		{name: "non-positive falls back", args: []int{0}, wantBytes: DefaultTokenBytes},
	}

	for _, test := range tests {
		test := test
		t.Run(test.name, func(t *testing.T) {
			// Act
			token, err := RandomToken(test.args...)

			// Assert
			if err != nil {
				t.Fatalf("RandomToken() error = %v", err)
			}
			raw, err := base64.RawURLEncoding.DecodeString(token)
			if err != nil {
				t.Fatalf("token %q is not raw URL base64: %v", token, err)
			}
			if len(raw) != test.wantBytes {
				t.Errorf("decoded length = %d, want %d", len(raw), test.wantBytes)
			}
			if strings.ContainsAny(token, "+/=") {
				t.Errorf("token %q is not URL safe", token)
			}
		})
	}
}

// Requirement: tokens never repeat in practice.
func TestRandomToken_Unique(t *testing.T) {
	seen := make(map[string]bool, 1000)
	for i := 0; i < 1000; i++ {
		token, err := RandomToken()
		if err != nil {
			t.Fatalf("RandomToken() error = %v", err)
		}
		if seen[token] {
			t.Fatalf("duplicate token after %d draws", i)
		}
		seen[token] = true
	}
}

func TestHashToken(t *testing.T) {
	// sha256("abc")
	const want = "ba7816bf8f01cfea414140de5dae2223b00361a396177a9cb410ff61f20015ad"

	if got := HashToken("abc"); got != want {
		t.Errorf("HashToken(abc) = %s, want %s", got, want)
	}
	if HashToken("abc") == HashToken("abd") {
		t.Error("different tokens share a hash")
	}
	if got := len(HashToken("")); got != 64 {
		t.Errorf("hash length = %d, want 64", got)
	}
}
