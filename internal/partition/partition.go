// Package partition implements the non-erasure-coded split/merge path
// of spec.md §4.4: a ceiling-chunk split into N pieces and the inverse
// concatenation, used when Reed-Solomon is disabled.
package partition

import "bytes"

// Split divides input into n chunks of ceil(len/n) bytes; the last
// chunk may be shorter (the erasure codec, if used downstream, pads
// it to S). n must be positive.
func Split(input []byte, n int) [][]byte {
	chunk := (len(input) + n - 1) / n
	if chunk == 0 {
		chunk = 1
	}
	out := make([][]byte, n)
	for i := 0; i < n; i++ {
		start := i * chunk
		if start > len(input) {
			start = len(input)
		}
		end := start + chunk
		if end > len(input) {
			end = len(input)
		}
		out[i] = append([]byte(nil), input[start:end]...)
	}
	return out
}

// Merge concatenates shards in index order. The caller is responsible
// for verifying the resulting length matches what's expected (the
// pre-split buffer length on the non-RS path).
func Merge(shards [][]byte) []byte {
	var buf bytes.Buffer
	for _, s := range shards {
		buf.Write(s)
	}
	return buf.Bytes()
}
