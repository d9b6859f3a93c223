package attestation

import "errors"

var (
	// ErrInvalidPhase is returned when an operation is not legal from
	// the attester slot's current state. Nothing is mutated.
	ErrInvalidPhase = errors.New("operation not legal in current phase")

	// ErrUnknownAttester is returned when the attester slot index is
	// out of range for the record's attester set size.
	ErrUnknownAttester = errors.New("attester slot out of range")

	// ErrVotingPeriodElapsed is returned for commits and reveals that
	// arrive after the voting window closed. Late calls are no-ops.
	ErrVotingPeriodElapsed = errors.New("voting period elapsed")

	// ErrVotingPeriodOpen is returned when an outcome is requested
	// before the voting window has closed.
	ErrVotingPeriodOpen = errors.New("voting period still open")

	// ErrCounterExhausted is returned when a board's buffer head has
	// consumed the full range of its index type. The board needs a
	// migration before it can accept further posts.
	ErrCounterExhausted = errors.New("buffer head counter exhausted")

	// ErrStorageBound is returned when a claim would exceed the fixed
	// storage bounds (shard count or attester set size).
	ErrStorageBound = errors.New("storage bound exceeded")

	// ErrNoRecord is returned for operations against a buffer slot no
	// post has claimed.
	ErrNoRecord = errors.New("no attestation record for slot")
)
