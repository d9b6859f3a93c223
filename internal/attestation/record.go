package attestation

import (
	"encoding/binary"
	"fmt"
)

// State tags used in the storage encoding.
const (
	tagPending      = 0
	tagFirstCommit  = 1
	tagSecondCommit = 2
	tagRevealed     = 3
)

// Record is one shard's attestation aggregate for a buffered post:
// the height it was (re)initialized at plus one lifecycle state per
// attester slot. The slot vector has a fixed length equal to the
// configured attester set size, whether or not anyone participates.
type Record struct {
	// CreatedAt is the height the record was (re)initialized at.
	// Deadline checks derive from it without a second storage read.
	CreatedAt uint64

	// Slots holds one State per attester slot, ordered by slot index.
	Slots []State
}

// NewRecord creates a record of size all-Pending attester slots.
func NewRecord(createdAt uint64, size int) *Record {
	slots := make([]State, size)
	for i := range slots {
		slots[i] = Pending{}
	}

	return &Record{
		CreatedAt: createdAt,
		Slots:     slots,
	}
}

// ApplyFirstCommit stores the first-round commitment hash for a slot.
// Legal only from Pending.
func (r *Record) ApplyFirstCommit(slot int, h1 Hash) error {
	if slot < 0 || slot >= len(r.Slots) {
		return fmt.Errorf("%w: slot %d of %d", ErrUnknownAttester, slot, len(r.Slots))
	}

	if _, ok := r.Slots[slot].(Pending); !ok {
		return fmt.Errorf("%w: first commit from %s", ErrInvalidPhase, phaseName(r.Slots[slot]))
	}

	r.Slots[slot] = FirstCommit{H1: h1}

	return nil
}

// ApplySecondCommit stores the second-round commitment hash for a slot.
// Legal only from FirstCommit; the first hash is carried forward.
func (r *Record) ApplySecondCommit(slot int, h2 Hash) error {
	if slot < 0 || slot >= len(r.Slots) {
		return fmt.Errorf("%w: slot %d of %d", ErrUnknownAttester, slot, len(r.Slots))
	}

	first, ok := r.Slots[slot].(FirstCommit)
	if !ok {
		return fmt.Errorf("%w: second commit from %s", ErrInvalidPhase, phaseName(r.Slots[slot]))
	}

	r.Slots[slot] = SecondCommit{H1: first.H1, H2: h2}

	return nil
}

// ApplyReveal verifies the reveal pre-image against both stored
// commitment hashes and moves the slot to Revealed. Legal only from
// SecondCommit. A pre-image mismatch is recorded as Invalid rather
// than rejected: failing the call would let one dishonest attester
// block the shard's outcome.
func (r *Record) ApplyReveal(slot int, vote Vote, salt Salt, scheme Scheme) (RevealedVote, error) {
	if slot < 0 || slot >= len(r.Slots) {
		return Invalid, fmt.Errorf("%w: slot %d of %d", ErrUnknownAttester, slot, len(r.Slots))
	}

	commit, ok := r.Slots[slot].(SecondCommit)
	if !ok {
		return Invalid, fmt.Errorf("%w: reveal from %s", ErrInvalidPhase, phaseName(r.Slots[slot]))
	}

	outcome := Invalid
	if scheme.Verify(vote, salt, commit.H1, commit.H2) {
		if vote == VoteTrue {
			outcome = Aye
		} else {
			outcome = Nay
		}
	}

	r.Slots[slot] = Revealed{Vote: outcome}

	return outcome, nil
}

// Encode serializes the record for storage.
// Layout: u64 createdAt | u16 slot count | per slot: tag byte + payload.
// All integers are big-endian.
func (r *Record) Encode() []byte {
	buf := make([]byte, 10, 10+len(r.Slots)*(1+64))
	binary.BigEndian.PutUint64(buf[0:8], r.CreatedAt)
	binary.BigEndian.PutUint16(buf[8:10], uint16(len(r.Slots)))

	for _, s := range r.Slots {
		switch v := s.(type) {
		case Pending:
			buf = append(buf, tagPending)
		case FirstCommit:
			buf = append(buf, tagFirstCommit)
			buf = append(buf, v.H1[:]...)
		case SecondCommit:
			buf = append(buf, tagSecondCommit)
			buf = append(buf, v.H1[:]...)
			buf = append(buf, v.H2[:]...)
		case Revealed:
			buf = append(buf, tagRevealed, byte(v.Vote))
		}
	}

	return buf
}

// DecodeRecord parses a stored record.
func DecodeRecord(data []byte) (*Record, error) {
	if len(data) < 10 {
		return nil, fmt.Errorf("record too short: %d bytes", len(data))
	}

	rec := &Record{
		CreatedAt: binary.BigEndian.Uint64(data[0:8]),
	}

	count := int(binary.BigEndian.Uint16(data[8:10]))
	rec.Slots = make([]State, 0, count)

	off := 10
	for i := 0; i < count; i++ {
		if off >= len(data) {
			return nil, fmt.Errorf("record truncated at slot %d", i)
		}

		tag := data[off]
		off++

		switch tag {
		case tagPending:
			rec.Slots = append(rec.Slots, Pending{})
		case tagFirstCommit:
			if off+32 > len(data) {
				return nil, fmt.Errorf("record truncated at slot %d", i)
			}
			var s FirstCommit
			copy(s.H1[:], data[off:off+32])
			off += 32
			rec.Slots = append(rec.Slots, s)
		case tagSecondCommit:
			if off+64 > len(data) {
				return nil, fmt.Errorf("record truncated at slot %d", i)
			}
			var s SecondCommit
			copy(s.H1[:], data[off:off+32])
			copy(s.H2[:], data[off+32:off+64])
			off += 64
			rec.Slots = append(rec.Slots, s)
		case tagRevealed:
			if off >= len(data) {
				return nil, fmt.Errorf("record truncated at slot %d", i)
			}
			rec.Slots = append(rec.Slots, Revealed{Vote: RevealedVote(data[off])})
			off++
		default:
			return nil, fmt.Errorf("unknown state tag %d at slot %d", tag, i)
		}
	}

	if off != len(data) {
		return nil, fmt.Errorf("record has %d trailing bytes", len(data)-off)
	}

	return rec, nil
}
