package node

import (
	"crypto/ecdsa"

	"github.com/mosaicnetworks/streamlet/src/consensus"
	"github.com/mosaicnetworks/streamlet/src/crypto/keys"
)

// Validator holds information about the operator of a node. A Validator
// without a key only follows the finalized chain.
type Validator struct {
	Key     *ecdsa.PrivateKey
	Moniker string

	// Address is the advertised address of the consensus network. It must
	// match the address other nodes know the participant by.
	Address string
}

// NewValidator is a factory method for a Validator
func NewValidator(key *ecdsa.PrivateKey, moniker, address string) *Validator {
	return &Validator{
		Key:     key,
		Moniker: moniker,
		Address: address,
	}
}

// ID returns the participant identity of the validator: the hex form of its
// public key. It is empty without a key.
func (v *Validator) ID() string {
	if v.Key == nil {
		return ""
	}
	return keys.PublicKeyHex(&v.Key.PublicKey)
}

// Participant returns the participant operated by the validator, joining at
// epoch.
func (v *Validator) Participant(epoch uint64) *consensus.Participant {
	return consensus.NewParticipant(&v.Key.PublicKey, v.Address, epoch)
}
