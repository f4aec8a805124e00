package crypto

import (
	"encoding/hex"
	"testing"
)

func TestBlake3(t *testing.T) {
	// BLAKE3 of the empty input
	expected := "af1349b9f5f9a1a6a0404dea36dcc9499bcb25c9adc112b7cc9a93cae41f3262"

	h := Blake3([]byte{})
	if hex.EncodeToString(h[:]) != expected {
		t.Fatalf("Blake3 should be %s, not %x", expected, h)
	}
}

func TestSHA256(t *testing.T) {
	expected := "e3b0c44298fc1c149afbf4c8996fb92427ae41e4649b934ca495991b7852b855"

	h := SHA256([]byte{})
	if hex.EncodeToString(h) != expected {
		t.Fatalf("SHA256 should be %s, not %x", expected, h)
	}
}

func TestSimpleHashFromTwoHashes(t *testing.T) {
	left := []byte("left")
	right := []byte("right")

	h := SimpleHashFromTwoHashes(left, right)
	if hex.EncodeToString(h) != hex.EncodeToString(SHA256([]byte("leftright"))) {
		t.Fatalf("SimpleHashFromTwoHashes should hash the concatenation, got %x", h)
	}
}
