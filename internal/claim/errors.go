package claim

import "errors"

var (
	// ErrBadAmount is returned when a deposit or withdrawal amount is nil
	// or not positive.
	ErrBadAmount = errors.New("claim: amount must be positive")

	// ErrInsufficientDeposit is returned when a party's withdrawable
	// balance cannot cover a withdrawal or a required bond.
	ErrInsufficientDeposit = errors.New("claim: insufficient deposit")

	// ErrClaimUnknown is returned when no claim exists for the superblock.
	ErrClaimUnknown = errors.New("claim: no claim for superblock")

	// ErrClaimDecided is returned when a challenge arrives after the claim
	// was already settled.
	ErrClaimDecided = errors.New("claim: claim already decided")

	// ErrClaimClosed is returned when a finished claim is finished again.
	ErrClaimClosed = errors.New("claim: claim already closed")

	// ErrSelfChallenge is returned when a submitter challenges their own
	// superblock.
	ErrSelfChallenge = errors.New("claim: submitter cannot challenge own superblock")

	// ErrWindowClosed is returned when a challenge arrives after the
	// challenge window lapsed.
	ErrWindowClosed = errors.New("claim: challenge window closed")

	// ErrClaimPending is returned by CheckClaimFinished while the window
	// is still open, battle sessions are still live, or the parent
	// superblock has not been approved yet.
	ErrClaimPending = errors.New("claim: claim not ready to finish")
)
