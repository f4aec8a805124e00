package crypto

import (
	"crypto/sha256"

	"lukechampine.com/blake3"
)

// SHA256 returns the SHA256 hash of the data. It is the digest signed by node
// keys.
func SHA256(data []byte) []byte {
	hasher := sha256.New()
	hasher.Write(data)
	hash := hasher.Sum(nil)
	return hash
}

// Blake3 returns the 32-byte BLAKE3 hash of the data. Block identifiers and
// DHT request identifiers are BLAKE3 hashes.
func Blake3(data []byte) [32]byte {
	return blake3.Sum256(data)
}

// SimpleHashFromTwoHashes returns the SHA256 hash of the concatenation of
// left and right.
func SimpleHashFromTwoHashes(left []byte, right []byte) []byte {
	var hasher = sha256.New()
	hasher.Write(left)
	hasher.Write(right)
	return hasher.Sum(nil)
}
