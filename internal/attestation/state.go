package attestation

// Hash is a 32-byte commitment hash.
type Hash [32]byte

// Salt is the 32-byte reveal salt bound into a commitment.
type Salt [32]byte

// Vote is an attester's private choice about shard availability.
// It only ever appears as a reveal pre-image, never in storage.
type Vote uint8

const (
	// VoteTrue means the attester holds the shard data.
	VoteTrue Vote = iota
	// VoteFalse means the attester could not obtain the shard data.
	VoteFalse
)

// RevealedVote is the persisted, public result of one attester's reveal.
type RevealedVote uint8

const (
	// Aye records a verified reveal of VoteTrue.
	Aye RevealedVote = iota
	// Nay records a verified reveal of VoteFalse.
	Nay
	// Invalid records a reveal whose pre-image did not match the
	// stored commitments.
	Invalid
)

// String returns a short name for logging.
func (v RevealedVote) String() string {
	switch v {
	case Aye:
		return "aye"
	case Nay:
		return "nay"
	case Invalid:
		return "invalid"
	default:
		return "unknown"
	}
}

// State is one attester slot's position in the commit-reveal lifecycle.
// The four implementations form a closed set; transitions only ever move
// forward through Pending -> FirstCommit -> SecondCommit -> Revealed.
// Rewinding happens exclusively through a slot reset on reuse.
type State interface {
	sealed()
}

// Pending is the initial state: no commitment submitted.
type Pending struct{}

// FirstCommit holds the first-round commitment hash.
type FirstCommit struct {
	H1 Hash
}

// SecondCommit holds both commitment hashes; the reveal is still open.
type SecondCommit struct {
	H1 Hash
	H2 Hash
}

// Revealed is terminal. The commitment hashes are dropped once consumed
// so a record costs the same regardless of phase.
type Revealed struct {
	Vote RevealedVote
}

func (Pending) sealed()      {}
func (FirstCommit) sealed()  {}
func (SecondCommit) sealed() {}
func (Revealed) sealed()     {}

// phaseName returns the state's name for error messages.
func phaseName(s State) string {
	switch s.(type) {
	case Pending:
		return "pending"
	case FirstCommit:
		return "first-commit"
	case SecondCommit:
		return "second-commit"
	case Revealed:
		return "revealed"
	default:
		return "corrupt"
	}
}
