package keys

import (
	"crypto/ecdsa"
	"crypto/elliptic"
	"errors"

	"github.com/mosaicnetworks/streamlet/src/common"
)

// ErrInvalidPublicKey is returned when bytes do not encode a point on the
// curve.
var ErrInvalidPublicKey = errors.New("invalid public key")

// ToPublicKey parses the uncompressed form of a point on the curve, as
// returned by FromPublicKey.
func ToPublicKey(pub []byte) (*ecdsa.PublicKey, error) {
	if len(pub) == 0 {
		return nil, ErrInvalidPublicKey
	}
	x, y := elliptic.Unmarshal(Curve(), pub)
	if x == nil {
		return nil, ErrInvalidPublicKey
	}
	return &ecdsa.PublicKey{Curve: Curve(), X: x, Y: y}, nil
}

// FromPublicKey outputs the public key in uncompressed form.
func FromPublicKey(pub *ecdsa.PublicKey) []byte {
	if pub == nil || pub.X == nil || pub.Y == nil {
		return nil
	}
	return elliptic.Marshal(Curve(), pub.X, pub.Y)
}

// PublicKeyHex returns the hexadecimal representation of the uncompressed form
// of the public key. This is the identity string of a participant.
func PublicKeyHex(pub *ecdsa.PublicKey) string {
	return common.EncodeToString(FromPublicKey(pub))
}
