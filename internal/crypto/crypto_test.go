package crypto

import (
	"bytes"
	"testing"
)

func TestEncryptDecryptRoundTrip(t *testing.T) {
	key, _ := RandomBytes(KeySize)
	plaintext := []byte("the secret file contents")

	ct, iv, tag, err := Encrypt(key, plaintext)
	if err != nil {
		t.Fatalf("Encrypt: %v", err)
	}
	got, err := Decrypt(key, ct, iv, tag, "test")
	if err != nil {
		t.Fatalf("Decrypt: %v", err)
	}
	if !bytes.Equal(got, plaintext) {
		t.Fatalf("got %q, want %q", got, plaintext)
	}
}

func TestDecryptFailsOnTamperedCiphertext(t *testing.T) {
	key, _ := RandomBytes(KeySize)
	ct, iv, tag, _ := Encrypt(key, []byte("data"))
	ct[0] ^= 0xFF

	if _, err := Decrypt(key, ct, iv, tag, "test"); err == nil {
		t.Fatalf("expected authentication failure on tampered ciphertext")
	}
}

func TestDecryptFailsOnTamperedTag(t *testing.T) {
	key, _ := RandomBytes(KeySize)
	ct, iv, tag, _ := Encrypt(key, []byte("data"))
	tag[0] ^= 0xFF

	if _, err := Decrypt(key, ct, iv, tag, "test"); err == nil {
		t.Fatalf("expected authentication failure on tampered tag")
	}
}

func TestDeriveMasterKeyDeterministic(t *testing.T) {
	salt := bytes.Repeat([]byte{7}, MasterSaltSize)
	a := DeriveMasterKey("correct horse", salt)
	b := DeriveMasterKey("correct horse", salt)
	if !bytes.Equal(a, b) {
		t.Fatalf("PBKDF2 derivation is not deterministic")
	}
	if bytes.Equal(a, DeriveMasterKey("wrong", salt)) {
		t.Fatalf("different passwords produced the same key")
	}
}

func TestFragmentKeysAreIndependent(t *testing.T) {
	raw1, _ := RandomBytes(KeySize)
	raw2, _ := RandomBytes(KeySize)
	salt, _ := RandomBytes(FragmentSalt)

	k1 := DeriveFragmentKey(raw1, salt)
	k2 := DeriveFragmentKey(raw2, salt)
	if bytes.Equal(k1, k2) {
		t.Fatalf("distinct raw keys produced identical effective keys")
	}
}
