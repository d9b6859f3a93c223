package attestation

import "github.com/zeebo/blake3"

// Domain separation tags for the two commitment rounds.
const (
	domainFirstCommit  = 0x01
	domainSecondCommit = 0x02
)

// Scheme binds reveal pre-images to the two commitment rounds.
// The relationship between the first and second hash is deliberately
// behind this interface so the binding can change without touching
// the state machine.
type Scheme interface {
	// Commit derives both round hashes from a vote and salt.
	Commit(vote Vote, salt Salt) (first, second Hash)

	// Verify reports whether the pre-image derives both stored hashes.
	Verify(vote Vote, salt Salt, first, second Hash) bool
}

// DoubleBlake is the default scheme: both rounds commit to the same
// (vote, salt) pre-image under domain-separated blake3, so the two
// hashes differ but a single reveal checks both.
type DoubleBlake struct{}

// Commit derives the round hashes.
func (DoubleBlake) Commit(vote Vote, salt Salt) (Hash, Hash) {
	return roundHash(domainFirstCommit, vote, salt), roundHash(domainSecondCommit, vote, salt)
}

// Verify recomputes both round hashes and compares.
func (s DoubleBlake) Verify(vote Vote, salt Salt, first, second Hash) bool {
	h1, h2 := s.Commit(vote, salt)
	return h1 == first && h2 == second
}

// roundHash computes blake3(domain || vote || salt).
func roundHash(domain byte, vote Vote, salt Salt) Hash {
	var buf [34]byte
	buf[0] = domain
	buf[1] = byte(vote)
	copy(buf[2:], salt[:])

	return blake3.Sum256(buf[:])
}
