package partition

import (
	"bytes"
	"testing"
)

func TestSplitSizesTinyInput(t *testing.T) {
	// spec.md §8 scenario 1: "hello world" (11 bytes), D=4 -> [3,3,3,2]
	shards := Split([]byte("hello world"), 4)
	want := []int{3, 3, 3, 2}
	for i, sh := range shards {
		if len(sh) != want[i] {
			t.Fatalf("shard %d has length %d, want %d", i, len(sh), want[i])
		}
	}
}

func TestMergeRoundTrip(t *testing.T) {
	input := []byte("The quick brown fox jumps over the lazy dog")
	shards := Split(input, 6)
	if got := Merge(shards); !bytes.Equal(got, input) {
		t.Fatalf("Merge mismatch: got %q, want %q", got, input)
	}
}
