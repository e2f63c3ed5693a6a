package fingerprint

import "testing"

func TestEvalDeterministic(t *testing.T) {
	seed := uint64(31)
	fp := NewWithSeed(seed)

	data := []byte{1, 2, 3, 4, 5}
	want := uint64(986115) // ((((1*31)+2)*31+3)*31+4)*31+5

	if got := fp.Eval(data); got != want {
		t.Errorf("Eval mismatch: got %d, want %d", got, want)
	}
}

func TestEvalDetectsSingleByteFlip(t *testing.T) {
	fp := NewWithSeed(99)
	a := []byte{10, 20, 30, 40}
	b := append([]byte(nil), a...)
	b[2] ^= 0x01

	if fp.Eval(a) == fp.Eval(b) {
		t.Fatalf("fingerprint failed to detect single-byte tamper")
	}
}
