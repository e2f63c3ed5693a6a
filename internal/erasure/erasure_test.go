package erasure

import (
	"bytes"
	"testing"

	"github.com/mmyneni/mystvault/internal/mysterrors"
)

func TestEncodeDecodeRoundTrip(t *testing.T) {
	c, err := New(10, ParityCount(10))
	if err != nil {
		t.Fatalf("New: %v", err)
	}

	input := bytes.Repeat([]byte("The quick brown fox jumps over the lazy dog. "), 100)
	shards, s, err := c.Encode(input)
	if err != nil {
		t.Fatalf("Encode: %v", err)
	}
	if len(shards) != c.D+c.P {
		t.Fatalf("got %d shards, want %d", len(shards), c.D+c.P)
	}
	for i, sh := range shards {
		if len(sh) != s {
			t.Fatalf("shard %d has length %d, want %d", i, len(sh), s)
		}
	}

	// lose one shard: must still recover.
	shards[3] = nil
	out, err := c.Decode(shards)
	if err != nil {
		t.Fatalf("Decode: %v", err)
	}
	if !bytes.Equal(out[:len(input)], input) {
		t.Fatalf("recovered mismatch")
	}
}

func TestDecodeRecoversUpToParityLosses(t *testing.T) {
	c, _ := New(10, 4)
	input := bytes.Repeat([]byte{0}, 1<<16)
	shards, _, _ := c.Encode(input)

	// lose 4 shards (mix of data and parity): still exactly D=10 remain.
	for _, idx := range []int{1, 2, 12, 13} {
		shards[idx] = nil
	}
	out, err := c.Decode(shards)
	if err != nil {
		t.Fatalf("Decode: %v", err)
	}
	if !bytes.Equal(out[:len(input)], input) {
		t.Fatalf("recovered mismatch")
	}
}

func TestDecodeFailsBelowThreshold(t *testing.T) {
	c, _ := New(10, 4)
	input := bytes.Repeat([]byte{1}, 1<<10)
	shards, _, _ := c.Encode(input)

	for _, idx := range []int{0, 1, 2, 3, 11} {
		shards[idx] = nil
	}
	_, err := c.Decode(shards)
	var insufficient *mysterrors.InsufficientShards
	if err == nil {
		t.Fatalf("expected InsufficientShards, got nil")
	}
	if !errorsAs(err, &insufficient) {
		t.Fatalf("expected InsufficientShards, got %T: %v", err, err)
	}
	if insufficient.Have != 9 || insufficient.Need != 10 {
		t.Fatalf("got have=%d need=%d, want have=9 need=10", insufficient.Have, insufficient.Need)
	}
}

func TestDeterministicShardSize(t *testing.T) {
	c, _ := New(7, ParityCount(7))
	input := []byte("hello world")
	shards, s, err := c.Encode(input)
	if err != nil {
		t.Fatalf("Encode: %v", err)
	}
	for _, sh := range shards {
		if len(sh) != s {
			t.Fatalf("shard length %d != %d", len(sh), s)
		}
	}
}

func errorsAs(err error, target **mysterrors.InsufficientShards) bool {
	e, ok := err.(*mysterrors.InsufficientShards)
	if !ok {
		return false
	}
	*target = e
	return true
}
