package superblocks

import "errors"

var (
	// ErrNotFound is returned when no superblock exists under the given id.
	ErrNotFound = errors.New("superblocks: superblock not found")

	// ErrExists is returned when a proposal derives the id of an already
	// registered superblock.
	ErrExists = errors.New("superblocks: superblock already exists")

	// ErrUnauthorized is returned when a mutating call does not come from
	// the registered claim manager.
	ErrUnauthorized = errors.New("superblocks: caller is not the claim manager")

	// ErrBadStatus is returned when a transition is not allowed from the
	// superblock's current status.
	ErrBadStatus = errors.New("superblocks: operation not allowed in current status")

	// ErrParentUnknown is returned when a proposal references a parent id
	// the registry has never seen.
	ErrParentUnknown = errors.New("superblocks: parent superblock not found")

	// ErrParentStatus is returned when the parent's status does not allow
	// the operation, such as proposing on an invalidated parent or
	// confirming under an unapproved one.
	ErrParentStatus = errors.New("superblocks: parent status does not allow this")

	// ErrAlreadyBootstrapped is returned when Bootstrap runs on a registry
	// that already holds a chain tip.
	ErrAlreadyBootstrapped = errors.New("superblocks: registry already bootstrapped")

	// ErrManagerSet is returned when SetManager runs twice.
	ErrManagerSet = errors.New("superblocks: claim manager already set")
)
