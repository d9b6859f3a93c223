package attestation

import "testing"

func TestDoubleBlakeRoundsDiffer(t *testing.T) {
	scheme := DoubleBlake{}

	h1, h2 := scheme.Commit(VoteTrue, Salt{0x01})
	if h1 == h2 {
		t.Error("round hashes must differ under domain separation")
	}
}

func TestDoubleBlakeVerify(t *testing.T) {
	scheme := DoubleBlake{}
	salt := Salt{0xAB, 0xCD}

	h1, h2 := scheme.Commit(VoteTrue, salt)

	if !scheme.Verify(VoteTrue, salt, h1, h2) {
		t.Error("matching pre-image rejected")
	}

	if scheme.Verify(VoteFalse, salt, h1, h2) {
		t.Error("wrong vote accepted")
	}

	if scheme.Verify(VoteTrue, Salt{0xFF}, h1, h2) {
		t.Error("wrong salt accepted")
	}

	if scheme.Verify(VoteTrue, salt, h2, h1) {
		t.Error("swapped round hashes accepted")
	}
}

func TestDoubleBlakeDeterministic(t *testing.T) {
	scheme := DoubleBlake{}
	salt := Salt{0x09}

	a1, a2 := scheme.Commit(VoteFalse, salt)
	b1, b2 := scheme.Commit(VoteFalse, salt)

	if a1 != b1 || a2 != b2 {
		t.Error("commitment is not deterministic")
	}
}
