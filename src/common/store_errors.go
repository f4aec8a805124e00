package common

import "fmt"

// StoreErrType enumerates the failure classes reported by the chain stores.
type StoreErrType uint32

const (
	// KeyNotFound is returned when the requested item is not in the store.
	KeyNotFound StoreErrType = iota
	// KeyAlreadyExists is returned when an immutable item is written twice.
	KeyAlreadyExists
	// UnknownParticipant ...
	UnknownParticipant
	// NoRoster is returned when no roster was recorded for an epoch.
	NoRoster
	// Empty ...
	Empty
)

// StoreErr ...
type StoreErr struct {
	dataType string
	errType  StoreErrType
	key      string
}

// NewStoreErr ...
func NewStoreErr(dataType string, errType StoreErrType, key string) StoreErr {
	return StoreErr{
		dataType: dataType,
		errType:  errType,
		key:      key,
	}
}

// Error ...
func (e StoreErr) Error() string {
	m := ""
	switch e.errType {
	case KeyNotFound:
		m = "Not Found"
	case KeyAlreadyExists:
		m = "Key Already Exists"
	case UnknownParticipant:
		m = "Unknown Participant"
	case NoRoster:
		m = "No Roster"
	case Empty:
		m = "Empty"
	}

	return fmt.Sprintf("%s, %s, %s", e.dataType, e.key, m)
}

// IsStore checks that an error is of type StoreErr and that it's code matches
// the provided StoreErr code.
func IsStore(err error, t StoreErrType) bool {
	storeErr, ok := err.(StoreErr)
	return ok && storeErr.errType == t
}
