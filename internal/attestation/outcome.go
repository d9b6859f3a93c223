package attestation

// Outcome is a shard's public verdict once the voting period closes.
type Outcome uint8

const (
	// Available means the ayes strictly outnumber nays plus invalids.
	Available Outcome = iota
	// Unavailable means nays plus invalids reached the ayes and at
	// least one reveal happened.
	Unavailable
	// Indeterminate means nobody revealed before the deadline.
	Indeterminate
)

// String returns a short name for logging.
func (o Outcome) String() string {
	switch o {
	case Available:
		return "available"
	case Unavailable:
		return "unavailable"
	case Indeterminate:
		return "indeterminate"
	default:
		return "unknown"
	}
}

// Tally counts a record's revealed votes. Slots still mid-lifecycle
// count as abstentions; that is a valid terminal condition, not an
// error.
type Tally struct {
	Aye     int
	Nay     int
	Invalid int
	Abstain int
}

// Policy reduces a tally to a verdict. The quorum and tie-break rules
// live here so deployments can override them without touching the
// state machine.
type Policy func(Tally) Outcome

// DefaultPolicy implements the default rule: invalid reveals count
// against availability, abstentions count for nothing, and zero
// reveals give no verdict at all.
func DefaultPolicy(t Tally) Outcome {
	if t.Aye+t.Nay+t.Invalid == 0 {
		return Indeterminate
	}

	if t.Aye > t.Nay+t.Invalid {
		return Available
	}

	return Unavailable
}

// Tally counts the record's slots by revealed vote.
func (r *Record) Tally() Tally {
	var t Tally

	for _, s := range r.Slots {
		rev, ok := s.(Revealed)
		if !ok {
			t.Abstain++
			continue
		}

		switch rev.Vote {
		case Aye:
			t.Aye++
		case Nay:
			t.Nay++
		default:
			t.Invalid++
		}
	}

	return t
}

// Derive reduces a record to its public verdict under the given
// policy. A nil policy selects DefaultPolicy.
func Derive(r *Record, policy Policy) Outcome {
	if policy == nil {
		policy = DefaultPolicy
	}

	return policy(r.Tally())
}
