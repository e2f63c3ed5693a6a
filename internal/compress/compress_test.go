package compress

import (
	"bytes"
	"testing"
)

func TestCompressDecompressRoundTrip(t *testing.T) {
	input := bytes.Repeat([]byte("reed solomon parity bytes "), 500)
	compressed, err := Compress(input)
	if err != nil {
		t.Fatalf("Compress: %v", err)
	}
	out, err := Decompress(compressed)
	if err != nil {
		t.Fatalf("Decompress: %v", err)
	}
	if !bytes.Equal(out, input) {
		t.Fatalf("round-trip mismatch")
	}
}

func TestCompressEmptyInput(t *testing.T) {
	compressed, err := Compress(nil)
	if err != nil {
		t.Fatalf("Compress: %v", err)
	}
	out, err := Decompress(compressed)
	if err != nil {
		t.Fatalf("Decompress: %v", err)
	}
	if len(out) != 0 {
		t.Fatalf("expected empty output, got %d bytes", len(out))
	}
}
