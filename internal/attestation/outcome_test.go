package attestation

import "testing"

func TestDefaultPolicy(t *testing.T) {
	cases := []struct {
		name  string
		tally Tally
		want  Outcome
	}{
		{"no reveals", Tally{Abstain: 3}, Indeterminate},
		{"clear majority", Tally{Aye: 3, Nay: 1}, Available},
		{"single aye", Tally{Aye: 1, Abstain: 2}, Available},
		{"invalid counts against", Tally{Aye: 1, Invalid: 1, Abstain: 1}, Unavailable},
		{"tie goes unavailable", Tally{Aye: 2, Nay: 1, Invalid: 1}, Unavailable},
		{"all nay", Tally{Nay: 3}, Unavailable},
		{"single invalid", Tally{Invalid: 1, Abstain: 2}, Unavailable},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			if got := DefaultPolicy(tc.tally); got != tc.want {
				t.Errorf("expected %s, got %s", tc.want, got)
			}
		})
	}
}

func TestRecordTally(t *testing.T) {
	rec := NewRecord(0, 4)
	scheme := DoubleBlake{}

	// Slot 0: Aye
	h1, h2 := scheme.Commit(VoteTrue, Salt{0x01})
	mustAdvance(t, rec, 0, h1, h2)
	if _, err := rec.ApplyReveal(0, VoteTrue, Salt{0x01}, scheme); err != nil {
		t.Fatal(err)
	}

	// Slot 1: Invalid (bad salt)
	h1, h2 = scheme.Commit(VoteTrue, Salt{0x02})
	mustAdvance(t, rec, 1, h1, h2)
	if _, err := rec.ApplyReveal(1, VoteTrue, Salt{0x03}, scheme); err != nil {
		t.Fatal(err)
	}

	// Slot 2: stuck at first commit, counts as abstention
	if err := rec.ApplyFirstCommit(2, h1); err != nil {
		t.Fatal(err)
	}

	// Slot 3: never participated

	tally := rec.Tally()
	want := Tally{Aye: 1, Invalid: 1, Abstain: 2}
	if tally != want {
		t.Errorf("expected %+v, got %+v", want, tally)
	}

	if got := Derive(rec, nil); got != Unavailable {
		t.Errorf("expected Unavailable, got %s", got)
	}
}

func TestDeriveCustomPolicy(t *testing.T) {
	rec := NewRecord(0, 2)

	// A policy that treats any participation at all as availability.
	lenient := func(tally Tally) Outcome {
		if tally.Aye+tally.Nay+tally.Invalid == 0 {
			return Indeterminate
		}
		return Available
	}

	scheme := DoubleBlake{}
	h1, h2 := scheme.Commit(VoteFalse, Salt{0x05})
	mustAdvance(t, rec, 0, h1, h2)
	if _, err := rec.ApplyReveal(0, VoteFalse, Salt{0x05}, scheme); err != nil {
		t.Fatal(err)
	}

	if got := Derive(rec, nil); got != Unavailable {
		t.Errorf("default: expected Unavailable, got %s", got)
	}

	if got := Derive(rec, lenient); got != Available {
		t.Errorf("lenient: expected Available, got %s", got)
	}
}

// mustAdvance moves a slot from Pending to SecondCommit.
func mustAdvance(t *testing.T, rec *Record, slot int, h1, h2 Hash) {
	t.Helper()

	if err := rec.ApplyFirstCommit(slot, h1); err != nil {
		t.Fatal(err)
	}
	if err := rec.ApplySecondCommit(slot, h2); err != nil {
		t.Fatal(err)
	}
}
