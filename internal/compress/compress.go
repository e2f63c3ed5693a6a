// Package compress wraps a DEFLATE-compatible codec applied to the
// master ciphertext, per spec.md §4.3. Compressing ciphertext (rather
// than plaintext) trades a usually-poor compression ratio for not
// leaking plaintext entropy through the compressed size; the protocol
// preserves this behavior for manifest compatibility regardless.
package compress

import (
	"bytes"
	"fmt"
	"io"

	"github.com/klauspost/compress/flate"
)

// Compress returns the raw DEFLATE stream of input.
func Compress(input []byte) ([]byte, error) {
	var buf bytes.Buffer
	w, err := flate.NewWriter(&buf, flate.DefaultCompression)
	if err != nil {
		return nil, fmt.Errorf("compress: new writer: %w", err)
	}
	if _, err := w.Write(input); err != nil {
		return nil, fmt.Errorf("compress: write: %w", err)
	}
	if err := w.Close(); err != nil {
		return nil, fmt.Errorf("compress: close: %w", err)
	}
	return buf.Bytes(), nil
}

// Decompress inflates a raw DEFLATE stream produced by Compress.
func Decompress(input []byte) ([]byte, error) {
	r := flate.NewReader(bytes.NewReader(input))
	defer r.Close()
	out, err := io.ReadAll(r)
	if err != nil {
		return nil, fmt.Errorf("compress: inflate: %w", err)
	}
	return out, nil
}
