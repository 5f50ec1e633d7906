package digest

import (
	"errors"
	"strings"
	"testing"

	"github.com/vietddude/paywatch/internal/core/domain"
)

func TestFromString(t *testing.T) {
	got, err := FromString("hello")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	want := domain.Digest("0x1c8aff950685c2ed4bc3174f3472287b56d9517b9c948127319a09a7a36deac8")
	if got != want {
		t.Errorf("FromString(hello) = %s, want %s", got, want)
	}

	again, _ := FromString("hello")
	if again != got {
		t.Errorf("FromString is not deterministic: %s vs %s", got, again)
	}
}

func TestFromString_AlreadyDigest(t *testing.T) {
	in := "0xABCDEF0000000000000000000000000000000000000000000000000000000001"
	got, err := FromString(in)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if string(got) != strings.ToLower(in) {
		t.Errorf("expected lower-cased passthrough, got %s", got)
	}
}

func TestFromString_Empty(t *testing.T) {
	_, err := FromString("")
	if !errors.Is(err, domain.ErrInvalidInput) {
		t.Fatalf("expected InvalidInput, got %v", err)
	}
}

func TestFromStoredID(t *testing.T) {
	tests := []struct {
		name string
		in   string
		want string
	}{
		{
			name: "utf8 is right padded",
			in:   "abc",
			want: "0x616263" + strings.Repeat("0", 58),
		},
		{
			name: "hex digest passes through lower-cased",
			in:   "0xAA" + strings.Repeat("0", 62),
			want: "0xaa" + strings.Repeat("0", 62),
		},
		{
			name: "long utf8 is truncated",
			in:   strings.Repeat("a", 40),
			want: "0x" + strings.Repeat("61", 32),
		},
		{
			name: "short hex is right padded",
			in:   "0x1234",
			want: "0x1234" + strings.Repeat("0", 60),
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := FromStoredID(tt.in)
			if err != nil {
				t.Fatalf("unexpected error: %v", err)
			}
			if string(got) != tt.want {
				t.Errorf("FromStoredID(%q) = %s, want %s", tt.in, got, tt.want)
			}
		})
	}
}

func TestFromStoredID_DiffersFromHash(t *testing.T) {
	padded, _ := FromStoredID("merchant")
	hashed, _ := FromString("merchant")
	if padded == hashed {
		t.Fatal("padding and hashing conventions must differ")
	}
}

func TestNormalize(t *testing.T) {
	tests := map[string]domain.Digest{
		"":         "",
		"   ":      "",
		"ABCD":     "0xabcd",
		"0xABCD":   "0xabcd",
		"0XABCD":   "0xabcd",
		" 0xabcd ": "0xabcd",
	}
	for in, want := range tests {
		if got := Normalize(in); got != want {
			t.Errorf("Normalize(%q) = %q, want %q", in, got, want)
		}
	}
}

func TestNewRandom(t *testing.T) {
	a, err := NewRandom()
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	b, _ := NewRandom()
	if a == b {
		t.Error("two random ids collided")
	}
	if !IsDigest(string(a)) {
		t.Errorf("random id %s is not a digest", a)
	}
}
