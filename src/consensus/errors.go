package consensus

import "errors"

var (
	// ErrUnknownVoter is returned for votes from outside the epoch roster.
	ErrUnknownVoter = errors.New("voter not in roster")

	// ErrQuarantinedVoter is returned for votes from a quarantined
	// participant.
	ErrQuarantinedVoter = errors.New("voter is quarantined")

	// ErrEquivocation is returned when a voter already voted for another
	// block at the same slot.
	ErrEquivocation = errors.New("voter already voted for another block at this slot")

	// ErrUnknownBlock is returned for votes on a block that is not known
	// locally.
	ErrUnknownBlock = errors.New("unknown block")

	// ErrInvalidSignature is returned when a signature or an eligibility
	// proof does not verify.
	ErrInvalidSignature = errors.New("invalid signature")

	// ErrSlotMismatch is returned when a vote's slot differs from its
	// block's slot, or a block's slot does not follow its parent's.
	ErrSlotMismatch = errors.New("slot mismatch")

	// ErrUnknownParent is returned when a block's parent is not known
	// locally.
	ErrUnknownParent = errors.New("unknown parent block")

	// ErrNotLeader is returned when the local node proposes for a slot it
	// does not lead, or when a slot has no leader.
	ErrNotLeader = errors.New("not the slot leader")

	// ErrInsufficientVotes is returned when a finalized block announcement
	// does not carry a quorum of valid votes.
	ErrInsufficientVotes = errors.New("insufficient votes")

	// ErrConflictingBlock is returned when an announced block does not
	// extend the local finalized chain.
	ErrConflictingBlock = errors.New("block conflicts with the finalized chain")

	// ErrUnknownParticipant is returned for a keepalive from an address no
	// participant announced.
	ErrUnknownParticipant = errors.New("unknown participant")

	// ErrNoKey is returned when an operation needs the local key and the
	// node runs without one.
	ErrNoKey = errors.New("no validator key")
)
