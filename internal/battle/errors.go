package battle

import "errors"

// Kind classifies why a battle action was rejected. Rejections never change
// session state; the legitimate caller may retry with a corrected action.
type Kind uint8

const (
	BadStatus Kind = iota
	Unauthorized
	BadLastBlock
	BadBlockHeight
	InvalidMerkleRoot
	BadInterimBlockIndex
	InterimBlockMissing
	BadInterimPrevHash
	BadSyscoinStatus
	BadTimestamp
	BadPrevBlock
	BadAccumulatedWork
	InvalidAccumulatedWork
	BadMismatch
	BadRetarget
	BadBits
	NoTimeoutYet
)

func (k Kind) String() string {
	switch k {
	case BadStatus:
		return "operation not allowed in current state"
	case Unauthorized:
		return "caller may not perform this action"
	case BadLastBlock:
		return "last block hash does not match the superblock"
	case BadBlockHeight:
		return "block list length does not match the superblock duration"
	case InvalidMerkleRoot:
		return "merkle root does not match the superblock"
	case BadInterimBlockIndex:
		return "disputed block index out of range"
	case InterimBlockMissing:
		return "interim block header missing"
	case BadInterimPrevHash:
		return "interim header previous hash mismatch"
	case BadSyscoinStatus:
		return "header status precondition violated"
	case BadTimestamp:
		return "timestamp inconsistent with superblock"
	case BadPrevBlock:
		return "last header does not chain to the previous block"
	case BadAccumulatedWork:
		return "accumulated work does not match expected work"
	case InvalidAccumulatedWork:
		return "accumulated work not ahead of parent"
	case BadMismatch:
		return "verified header does not match committed hash"
	case BadRetarget:
		return "retargeted difficulty outside allowed bounds"
	case BadBits:
		return "difficulty bits changed off retarget boundary"
	case NoTimeoutYet:
		return "no timeout condition met"
	default:
		return "unknown rejection"
	}
}

// Error is a classified battle rejection.
type Error struct {
	Kind Kind
}

func (e *Error) Error() string {
	return "battle: " + e.Kind.String()
}

// One instance per kind so errors.Is works by identity.
var (
	ErrBadStatus              = &Error{Kind: BadStatus}
	ErrUnauthorized           = &Error{Kind: Unauthorized}
	ErrBadLastBlock           = &Error{Kind: BadLastBlock}
	ErrBadBlockHeight         = &Error{Kind: BadBlockHeight}
	ErrInvalidMerkleRoot      = &Error{Kind: InvalidMerkleRoot}
	ErrBadInterimBlockIndex   = &Error{Kind: BadInterimBlockIndex}
	ErrInterimBlockMissing    = &Error{Kind: InterimBlockMissing}
	ErrBadInterimPrevHash     = &Error{Kind: BadInterimPrevHash}
	ErrBadSyscoinStatus       = &Error{Kind: BadSyscoinStatus}
	ErrBadTimestamp           = &Error{Kind: BadTimestamp}
	ErrBadPrevBlock           = &Error{Kind: BadPrevBlock}
	ErrBadAccumulatedWork     = &Error{Kind: BadAccumulatedWork}
	ErrInvalidAccumulatedWork = &Error{Kind: InvalidAccumulatedWork}
	ErrBadMismatch            = &Error{Kind: BadMismatch}
	ErrBadRetarget            = &Error{Kind: BadRetarget}
	ErrBadBits                = &Error{Kind: BadBits}
	ErrNoTimeoutYet           = &Error{Kind: NoTimeoutYet}
)

// KindOf extracts the rejection kind from an error chain.
func KindOf(err error) (Kind, bool) {
	var e *Error
	if errors.As(err, &e) {
		return e.Kind, true
	}
	return 0, false
}

var (
	// ErrSessionExists is returned when opening a session whose id is
	// already live.
	ErrSessionExists = errors.New("battle: session already exists")

	// ErrSessionNotFound is returned when no session is stored under the
	// given id.
	ErrSessionNotFound = errors.New("battle: session not found")

	// ErrBound is returned when Bind runs twice.
	ErrBound = errors.New("battle: claim manager already bound")
)
