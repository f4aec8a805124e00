package keys

import (
	"crypto/ecdsa"
	"crypto/rand"
	"errors"
	"math/big"

	"github.com/mosaicnetworks/streamlet/src/crypto"
)

// SignatureLen is the length in bytes of an encoded signature.
const SignatureLen = 64

// ErrInvalidSignature is returned when a signature does not verify.
var ErrInvalidSignature = errors.New("invalid signature")

// Sign signs the SHA256 digest of data and returns the 64-byte r||s encoding.
// The s value is normalised to the lower half of the curve order.
func Sign(priv *ecdsa.PrivateKey, data []byte) ([]byte, error) {
	r, s, err := ecdsa.Sign(rand.Reader, priv, crypto.SHA256(data))
	if err != nil {
		return nil, err
	}

	if s.Cmp(secp256k1halfN) > 0 {
		s = new(big.Int).Sub(secp256k1N, s)
	}

	sig := make([]byte, 0, SignatureLen)
	sig = append(sig, padded(r, SignatureLen/2)...)
	sig = append(sig, padded(s, SignatureLen/2)...)

	return sig, nil
}

// Verify checks a signature produced by Sign against the uncompressed public
// key pub.
func Verify(pub []byte, data []byte, sig []byte) error {
	if len(sig) != SignatureLen {
		return ErrInvalidSignature
	}

	pubKey, err := ToPublicKey(pub)
	if err != nil {
		return err
	}

	r := new(big.Int).SetBytes(sig[:SignatureLen/2])
	s := new(big.Int).SetBytes(sig[SignatureLen/2:])

	if !ecdsa.Verify(pubKey, crypto.SHA256(data), r, s) {
		return ErrInvalidSignature
	}

	return nil
}
