// Package erasure implements the Reed-Solomon erasure codec specified
// in spec.md §4.1: D data shards, P = ceil(D*0.4) parity shards (when
// enabled), built on a Vandermonde-like generator over internal/gf256
// with the exact coefficient formula
//
//	coef(p, i) = exp[((p+1)*(i+1)) mod 255]
//
// pinned so independent implementations interoperate bit-for-bit.
//
// This package intentionally does not wrap github.com/klauspost/reedsolomon:
// that library's internal generator matrix is not the one the spec
// pins, so its output would not match byte-for-byte (see DESIGN.md).
package erasure

import (
	"bytes"
	"fmt"

	"github.com/mmyneni/mystvault/internal/gf256"
	"github.com/mmyneni/mystvault/internal/mysterrors"
)

// Codec encodes/decodes a buffer into D data shards plus P parity
// shards, where every shard shares the same byte length S.
type Codec struct {
	D, P int
}

// New returns a Codec for D data shards and P parity shards. P may be
// zero (erasure coding disabled; Encode degenerates to plain split,
// Decode requires every data shard present).
func New(d, p int) (*Codec, error) {
	if d <= 0 {
		return nil, fmt.Errorf("erasure: data shard count must be positive, got %d", d)
	}
	if p < 0 {
		return nil, fmt.Errorf("erasure: parity shard count must be non-negative, got %d", p)
	}
	return &Codec{D: d, P: p}, nil
}

// ParityCount returns P = ceil(d*0.4), the default parity share per
// spec.md §4.5 step 5.
func ParityCount(d int) int {
	return (d*4 + 9) / 10
}

// coef implements coef(p,i) = exp[((p+1)*(i+1)) mod 255].
func coef(p, i int) byte {
	e := ((p + 1) * (i + 1)) % 255
	return gf256.Exp(e)
}

// Encode splits input into c.D data shards of length S = ceil(len/D)
// (the last data shard is right-padded with zero bytes), then derives
// c.P parity shards via the pinned generator. It returns the D+P
// shards in index order and S.
func (c *Codec) Encode(input []byte) ([][]byte, int, error) {
	s := (len(input) + c.D - 1) / c.D
	if s == 0 {
		s = 1
	}
	shards := make([][]byte, c.D+c.P)
	for i := 0; i < c.D; i++ {
		shard := make([]byte, s)
		start := i * s
		if start < len(input) {
			end := start + s
			if end > len(input) {
				end = len(input)
			}
			copy(shard, input[start:end])
		}
		shards[i] = shard
	}
	for p := 0; p < c.P; p++ {
		parity := make([]byte, s)
		for j := 0; j < s; j++ {
			var acc byte
			for i := 0; i < c.D; i++ {
				acc = gf256.Add(acc, gf256.Mul(shards[i][j], coef(p, i)))
			}
			parity[j] = acc
		}
		shards[c.D+p] = parity
	}
	return shards, s, nil
}

// Decode reconstructs the D*S buffer from a sparse shard list (nil
// entries mark missing shards). It does not trim trailing zero
// padding; the caller's outer AEAD layer recovers the exact plaintext
// length.
func (c *Codec) Decode(shards [][]byte) ([]byte, error) {
	if len(shards) != c.D+c.P {
		return nil, fmt.Errorf("erasure: expected %d shards, got %d", c.D+c.P, len(shards))
	}

	allDataPresent := true
	have := 0
	for i, sh := range shards {
		if sh != nil {
			have++
		}
		if i < c.D && sh == nil {
			allDataPresent = false
		}
	}
	if allDataPresent {
		var buf bytes.Buffer
		for i := 0; i < c.D; i++ {
			buf.Write(shards[i])
		}
		return buf.Bytes(), nil
	}
	if have < c.D {
		return nil, &mysterrors.InsufficientShards{Have: have, Need: c.D}
	}

	s := shardSize(shards)
	dataShards, err := reconstructData(shards, c.D, c.P, s)
	if err != nil {
		return nil, err
	}
	var buf bytes.Buffer
	for i := 0; i < c.D; i++ {
		buf.Write(dataShards[i])
	}
	return buf.Bytes(), nil
}

func shardSize(shards [][]byte) int {
	for _, sh := range shards {
		if sh != nil {
			return len(sh)
		}
	}
	return 0
}

// reconstructData solves the linear system defined by the generator
// matrix for the missing data shards, using whichever D shards
// (data or parity) are available.
func reconstructData(shards [][]byte, d, p, s int) ([][]byte, error) {
	// Build the D x D coefficient matrix + the corresponding value
	// rows (picking one row per selected shard, D rows total).
	type row struct {
		coeffs []byte // length d
		values []byte // length s, the selected shard's bytes
	}
	var rows []row
	for i := 0; i < d && len(rows) < d; i++ {
		if shards[i] != nil {
			coeffs := make([]byte, d)
			coeffs[i] = 1
			rows = append(rows, row{coeffs: coeffs, values: shards[i]})
		}
	}
	for pi := 0; pi < p && len(rows) < d; pi++ {
		if shards[d+pi] != nil {
			coeffs := make([]byte, d)
			for i := 0; i < d; i++ {
				coeffs[i] = coef(pi, i)
			}
			rows = append(rows, row{coeffs: coeffs, values: shards[d+pi]})
		}
	}
	if len(rows) < d {
		return nil, &mysterrors.InsufficientShards{Have: len(rows), Need: d}
	}

	// Gauss-Jordan elimination over GF(256) to invert the d x d matrix,
	// applying the same row operations to the value vectors so the
	// solution falls out directly (augmented-matrix method).
	matrix := make([][]byte, d)
	values := make([][]byte, d)
	for r := 0; r < d; r++ {
		matrix[r] = append([]byte(nil), rows[r].coeffs...)
		values[r] = append([]byte(nil), rows[r].values...)
	}

	for col := 0; col < d; col++ {
		pivot := -1
		for r := col; r < d; r++ {
			if matrix[r][col] != 0 {
				pivot = r
				break
			}
		}
		if pivot == -1 {
			return nil, fmt.Errorf("erasure: singular generator submatrix, cannot reconstruct")
		}
		matrix[col], matrix[pivot] = matrix[pivot], matrix[col]
		values[col], values[pivot] = values[pivot], values[col]

		inv := gf256.Div(1, matrix[col][col])
		for c2 := 0; c2 < d; c2++ {
			matrix[col][c2] = gf256.Mul(matrix[col][c2], inv)
		}
		for b := 0; b < s; b++ {
			values[col][b] = gf256.Mul(values[col][b], inv)
		}

		for r := 0; r < d; r++ {
			if r == col || matrix[r][col] == 0 {
				continue
			}
			factor := matrix[r][col]
			for c2 := 0; c2 < d; c2++ {
				matrix[r][c2] = gf256.Add(matrix[r][c2], gf256.Mul(factor, matrix[col][c2]))
			}
			for b := 0; b < s; b++ {
				values[r][b] = gf256.Add(values[r][b], gf256.Mul(factor, values[col][b]))
			}
		}
	}

	out := make([][]byte, d)
	for i := 0; i < d; i++ {
		if shards[i] != nil {
			out[i] = shards[i]
			continue
		}
		out[i] = values[i]
	}
	return out, nil
}
