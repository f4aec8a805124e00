// Package keys implements the public key cryptography of streamlet nodes.
//
// Every consensus participant owns a secp256k1 ECDSA key-pair. The public key,
// in uncompressed form, is the participant's identity: it appears in votes,
// participant announcements and block metadata, and it verifies the
// signatures carried by votes, proposals and keepalives.
//
// Signatures are 64 bytes, the big-endian r and s values each padded to 32
// bytes, computed over the SHA256 digest of the signed bytes.
package keys
