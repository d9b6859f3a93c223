package api

import (
	"bytes"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"testing"

	"boardstate/internal/attestation"
	"boardstate/internal/board"
	"boardstate/internal/storage"
)

// testHeight is a manually advanced height source.
type testHeight struct {
	h uint64
}

func (t *testHeight) Height() uint64 {
	return t.h
}

// newTestServer creates a server over temporary storage.
func newTestServer(t *testing.T) (*Server, *testHeight) {
	t.Helper()

	dir, err := os.MkdirTemp("", "api_test_*")
	if err != nil {
		t.Fatalf("failed to create temp dir: %v", err)
	}

	t.Cleanup(func() {
		os.RemoveAll(dir)
	})

	db, err := storage.New(filepath.Join(dir, "db"))
	if err != nil {
		t.Fatalf("failed to create storage: %v", err)
	}

	t.Cleanup(func() {
		db.Close()
	})

	boards := board.NewStore(db, board.DefaultLimits)

	ctrl := attestation.NewController(db, attestation.Params{
		BufferCapacity:  8,
		AttesterSetSize: 3,
		VotingPeriod:    10,
	}, nil, nil)

	height := &testHeight{h: 100}

	return New(":0", db, boards, ctrl, height), height
}

// doJSON performs a JSON request against the server's handler.
func doJSON(t *testing.T, s *Server, method, path string, body any) *httptest.ResponseRecorder {
	t.Helper()

	var reader *bytes.Reader
	if body != nil {
		data, err := json.Marshal(body)
		if err != nil {
			t.Fatalf("marshal body: %v", err)
		}
		reader = bytes.NewReader(data)
	} else {
		reader = bytes.NewReader(nil)
	}

	req := httptest.NewRequest(method, path, reader)
	w := httptest.NewRecorder()
	s.Handler().ServeHTTP(w, req)

	return w
}

// decodeResponse parses a JSON response body.
func decodeResponse(t *testing.T, w *httptest.ResponseRecorder) map[string]any {
	t.Helper()

	var out map[string]any
	if err := json.Unmarshal(w.Body.Bytes(), &out); err != nil {
		t.Fatalf("decode response %q: %v", w.Body.String(), err)
	}

	return out
}

func TestHealthEndpoint(t *testing.T) {
	s, _ := newTestServer(t)

	w := doJSON(t, s, "GET", "/health", nil)
	if w.Code != http.StatusOK {
		t.Errorf("expected 200, got %d", w.Code)
	}
}

func TestStatusEndpoint(t *testing.T) {
	s, height := newTestServer(t)
	height.h = 123

	w := doJSON(t, s, "GET", "/status", nil)
	if w.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", w.Code)
	}

	resp := decodeResponse(t, w)
	if resp["height"].(float64) != 123 {
		t.Errorf("expected height 123, got %v", resp["height"])
	}
	if resp["attesterSetSize"].(float64) != 3 {
		t.Errorf("expected attesterSetSize 3, got %v", resp["attesterSetSize"])
	}
}

func TestCreateBoardValidation(t *testing.T) {
	s, _ := newTestServer(t)

	w := doJSON(t, s, "POST", "/boards", map[string]any{
		"board": 1, "name": "general", "postsPerThread": 10,
	})
	if w.Code != http.StatusCreated {
		t.Fatalf("expected 201, got %d: %s", w.Code, w.Body.String())
	}

	// Duplicate board
	w = doJSON(t, s, "POST", "/boards", map[string]any{
		"board": 1, "name": "general", "postsPerThread": 10,
	})
	if w.Code != http.StatusConflict {
		t.Errorf("expected 409 for duplicate, got %d", w.Code)
	}

	// Empty body
	w = doJSON(t, s, "POST", "/boards", nil)
	if w.Code != http.StatusBadRequest {
		t.Errorf("expected 400 for empty body, got %d", w.Code)
	}
}

func TestAttestationFlow(t *testing.T) {
	s, height := newTestServer(t)

	w := doJSON(t, s, "POST", "/boards", map[string]any{
		"board": 1, "name": "general", "postsPerThread": 10,
	})
	if w.Code != http.StatusCreated {
		t.Fatalf("create board: %d", w.Code)
	}

	w = doJSON(t, s, "POST", "/threads", map[string]any{"board": 1})
	if w.Code != http.StatusCreated {
		t.Fatalf("create thread: %d", w.Code)
	}

	cid := hex.EncodeToString(bytes.Repeat([]byte{0x01}, 32))
	author := hex.EncodeToString(bytes.Repeat([]byte{0x02}, 32))

	w = doJSON(t, s, "POST", "/posts", map[string]any{
		"board": 1, "thread": 0, "cid": cid, "author": author, "shards": 1,
	})
	if w.Code != http.StatusAccepted {
		t.Fatalf("create post: %d: %s", w.Code, w.Body.String())
	}

	slot := decodeResponse(t, w)["slot"].(float64)
	if slot != 0 {
		t.Fatalf("expected slot 0, got %v", slot)
	}

	// Attester 0: full honest lifecycle
	salt := attestation.Salt{0x42}
	h1, h2 := attestation.DoubleBlake{}.Commit(attestation.VoteTrue, salt)

	w = doJSON(t, s, "POST", "/attest/first", map[string]any{
		"board": 1, "slot": 0, "shard": 0, "attester": 0,
		"hash": hex.EncodeToString(h1[:]),
	})
	if w.Code != http.StatusAccepted {
		t.Fatalf("first commit: %d: %s", w.Code, w.Body.String())
	}

	// Out-of-order second commit for another attester is rejected
	w = doJSON(t, s, "POST", "/attest/second", map[string]any{
		"board": 1, "slot": 0, "shard": 0, "attester": 1,
		"hash": hex.EncodeToString(h2[:]),
	})
	if w.Code != http.StatusConflict {
		t.Errorf("expected 409 for phase violation, got %d", w.Code)
	}

	w = doJSON(t, s, "POST", "/attest/second", map[string]any{
		"board": 1, "slot": 0, "shard": 0, "attester": 0,
		"hash": hex.EncodeToString(h2[:]),
	})
	if w.Code != http.StatusAccepted {
		t.Fatalf("second commit: %d: %s", w.Code, w.Body.String())
	}

	w = doJSON(t, s, "POST", "/attest/reveal", map[string]any{
		"board": 1, "slot": 0, "shard": 0, "attester": 0,
		"available": true, "salt": hex.EncodeToString(salt[:]),
	})
	if w.Code != http.StatusOK {
		t.Fatalf("reveal: %d: %s", w.Code, w.Body.String())
	}
	if got := decodeResponse(t, w)["result"]; got != "aye" {
		t.Errorf("expected aye, got %v", got)
	}

	// Outcome is refused while the window is open
	w = doJSON(t, s, "GET", "/attest/outcome?board=1&slot=0&shard=0", nil)
	if w.Code != http.StatusTooEarly {
		t.Errorf("expected 425 before deadline, got %d", w.Code)
	}

	height.h = 111

	w = doJSON(t, s, "GET", "/attest/outcome?board=1&slot=0&shard=0", nil)
	if w.Code != http.StatusOK {
		t.Fatalf("outcome: %d: %s", w.Code, w.Body.String())
	}
	if got := decodeResponse(t, w)["outcome"]; got != "available" {
		t.Errorf("expected available, got %v", got)
	}

	// All shards available: finalize promotes the post into its thread
	w = doJSON(t, s, "POST", "/posts/finalize", map[string]any{
		"board": 1, "slot": 0,
	})
	if w.Code != http.StatusOK {
		t.Fatalf("finalize: %d: %s", w.Code, w.Body.String())
	}

	resp := decodeResponse(t, w)
	if resp["finalized"] != true {
		t.Fatalf("expected finalized, got %v", resp)
	}
	if resp["post"].(float64) != 0 {
		t.Errorf("expected post slot 0, got %v", resp["post"])
	}

	// The buffer slot was consumed: finalizing again finds no post
	w = doJSON(t, s, "POST", "/posts/finalize", map[string]any{
		"board": 1, "slot": 0,
	})
	if w.Code != http.StatusNotFound {
		t.Errorf("expected 404 on second finalize, got %d: %s", w.Code, w.Body.String())
	}
}

func TestFinalizeConsultsEveryShard(t *testing.T) {
	s, height := newTestServer(t)

	doJSON(t, s, "POST", "/boards", map[string]any{"board": 1, "name": "g", "postsPerThread": 5})
	doJSON(t, s, "POST", "/threads", map[string]any{"board": 1})

	cid := hex.EncodeToString(bytes.Repeat([]byte{0x05}, 32))
	author := hex.EncodeToString(bytes.Repeat([]byte{0x06}, 32))

	w := doJSON(t, s, "POST", "/posts", map[string]any{
		"board": 1, "thread": 0, "cid": cid, "author": author, "shards": 2,
	})
	if w.Code != http.StatusAccepted {
		t.Fatalf("create post: %d", w.Code)
	}

	// Only shard 0 gets a full honest attestation
	salt := attestation.Salt{0x07}
	h1, h2 := attestation.DoubleBlake{}.Commit(attestation.VoteTrue, salt)

	for _, call := range []struct {
		path string
		hash string
	}{
		{"/attest/first", hex.EncodeToString(h1[:])},
		{"/attest/second", hex.EncodeToString(h2[:])},
	} {
		w = doJSON(t, s, "POST", call.path, map[string]any{
			"board": 1, "slot": 0, "shard": 0, "attester": 0, "hash": call.hash,
		})
		if w.Code != http.StatusAccepted {
			t.Fatalf("%s: %d: %s", call.path, w.Code, w.Body.String())
		}
	}

	w = doJSON(t, s, "POST", "/attest/reveal", map[string]any{
		"board": 1, "slot": 0, "shard": 0, "attester": 0,
		"available": true, "salt": hex.EncodeToString(salt[:]),
	})
	if w.Code != http.StatusOK {
		t.Fatalf("reveal: %d: %s", w.Code, w.Body.String())
	}

	// The window is still open: no shard verdict exists yet
	w = doJSON(t, s, "POST", "/posts/finalize", map[string]any{"board": 1, "slot": 0})
	if w.Code != http.StatusTooEarly {
		t.Errorf("expected 425 before deadline, got %d: %s", w.Code, w.Body.String())
	}

	height.h = 111

	// Shard 1 never revealed, so the post must not be promoted
	w = doJSON(t, s, "POST", "/posts/finalize", map[string]any{"board": 1, "slot": 0})
	if w.Code != http.StatusOK {
		t.Fatalf("finalize: %d: %s", w.Code, w.Body.String())
	}

	resp := decodeResponse(t, w)
	if resp["finalized"] != false {
		t.Fatalf("expected finalized=false, got %v", resp)
	}
	if resp["shard"].(float64) != 1 {
		t.Errorf("expected shard 1 to block, got %v", resp["shard"])
	}
	if resp["outcome"] != "indeterminate" {
		t.Errorf("expected indeterminate, got %v", resp["outcome"])
	}
}

func TestLateCommitGone(t *testing.T) {
	s, height := newTestServer(t)

	doJSON(t, s, "POST", "/boards", map[string]any{"board": 1, "name": "g", "postsPerThread": 5})
	doJSON(t, s, "POST", "/threads", map[string]any{"board": 1})

	cid := hex.EncodeToString(bytes.Repeat([]byte{0x03}, 32))
	author := hex.EncodeToString(bytes.Repeat([]byte{0x04}, 32))

	w := doJSON(t, s, "POST", "/posts", map[string]any{
		"board": 1, "thread": 0, "cid": cid, "author": author, "shards": 2,
	})
	if w.Code != http.StatusAccepted {
		t.Fatalf("create post: %d", w.Code)
	}

	height.h = 200

	h1, _ := attestation.DoubleBlake{}.Commit(attestation.VoteTrue, attestation.Salt{})

	w = doJSON(t, s, "POST", "/attest/first", map[string]any{
		"board": 1, "slot": 0, "shard": 0, "attester": 0,
		"hash": hex.EncodeToString(h1[:]),
	})
	if w.Code != http.StatusGone {
		t.Errorf("expected 410 for late commit, got %d", w.Code)
	}
}

func TestInvalidHexRejected(t *testing.T) {
	s, _ := newTestServer(t)

	for _, bad := range []string{"", "zz", "0102"} {
		w := doJSON(t, s, "POST", "/attest/first", map[string]any{
			"board": 1, "slot": 0, "shard": 0, "attester": 0, "hash": bad,
		})
		if w.Code != http.StatusBadRequest {
			t.Errorf("hash %q: expected 400, got %d", bad, w.Code)
		}
	}
}

func TestOutcomeQueryValidation(t *testing.T) {
	s, _ := newTestServer(t)

	cases := []string{
		"/attest/outcome",
		"/attest/outcome?board=1",
		"/attest/outcome?board=1&slot=0&shard=999",
		"/attest/outcome?board=x&slot=0&shard=0",
	}

	for _, path := range cases {
		w := doJSON(t, s, "GET", path, nil)
		if w.Code != http.StatusBadRequest {
			t.Errorf("%s: expected 400, got %d", path, w.Code)
		}
	}
}

func TestSnapshotEndpoints(t *testing.T) {
	src, _ := newTestServer(t)

	w := doJSON(t, src, "POST", "/boards", map[string]any{
		"board": 1, "name": "general", "postsPerThread": 10,
	})
	if w.Code != http.StatusCreated {
		t.Fatalf("create board: %d", w.Code)
	}

	w = doJSON(t, src, "GET", "/snapshot", nil)
	if w.Code != http.StatusOK {
		t.Fatalf("export: %d", w.Code)
	}

	dst, _ := newTestServer(t)

	req := httptest.NewRequest("POST", "/snapshot", bytes.NewReader(w.Body.Bytes()))
	rec := httptest.NewRecorder()
	dst.Handler().ServeHTTP(rec, req)
	if rec.Code != http.StatusOK {
		t.Fatalf("restore: %d: %s", rec.Code, rec.Body.String())
	}

	// The restored node knows the board
	w = doJSON(t, dst, "POST", "/boards", map[string]any{
		"board": 1, "name": "general", "postsPerThread": 10,
	})
	if w.Code != http.StatusConflict {
		t.Errorf("expected 409 on restored board, got %d", w.Code)
	}
}

func TestUnclaimedSlotNotFound(t *testing.T) {
	s, _ := newTestServer(t)

	w := doJSON(t, s, "GET", fmt.Sprintf("/attest/outcome?board=%d&slot=%d&shard=%d", 9, 0, 0), nil)
	if w.Code != http.StatusNotFound {
		t.Errorf("expected 404, got %d", w.Code)
	}
}
