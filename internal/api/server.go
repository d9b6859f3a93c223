package api

import (
	"context"
	"encoding/hex"
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"time"

	"boardstate/internal/attestation"
	"boardstate/internal/board"
	"boardstate/internal/logger"
	"boardstate/internal/snapshot"
	"boardstate/internal/storage"
)

// maxBodySize caps request bodies.
const maxBodySize = 1 << 16 // 64 KB

// maxSnapshotSize caps uploaded snapshots.
const maxSnapshotSize = 256 << 20 // 256 MB

// HeightSource supplies the current height for attestation deadlines.
type HeightSource interface {
	Height() uint64
}

// Server is the HTTP dispatch layer in front of the attestation core.
// It validates and decodes requests, stamps them with the current
// height, and maps core errors onto HTTP statuses.
type Server struct {
	addr   string
	db     *storage.Storage
	boards *board.Store
	ctrl   *attestation.Controller
	height HeightSource
	server *http.Server
}

// New creates a new HTTP API server.
func New(addr string, db *storage.Storage, boards *board.Store, ctrl *attestation.Controller, height HeightSource) *Server {
	return &Server{
		addr:   addr,
		db:     db,
		boards: boards,
		ctrl:   ctrl,
		height: height,
	}
}

// Handler builds the route table.
func (s *Server) Handler() http.Handler {
	mux := http.NewServeMux()
	mux.HandleFunc("POST /boards", s.handleCreateBoard)
	mux.HandleFunc("POST /threads", s.handleCreateThread)
	mux.HandleFunc("POST /posts", s.handleCreatePost)
	mux.HandleFunc("POST /posts/finalize", s.handleFinalizePost)
	mux.HandleFunc("POST /attest/first", s.handleFirstCommit)
	mux.HandleFunc("POST /attest/second", s.handleSecondCommit)
	mux.HandleFunc("POST /attest/reveal", s.handleReveal)
	mux.HandleFunc("GET /attest/outcome", s.handleOutcome)
	mux.HandleFunc("GET /snapshot", s.handleSnapshot)
	mux.HandleFunc("POST /snapshot", s.handleRestoreSnapshot)
	mux.HandleFunc("GET /health", s.handleHealth)
	mux.HandleFunc("GET /status", s.handleStatus)

	return mux
}

// Start starts the HTTP server in a goroutine.
func (s *Server) Start() {
	s.server = &http.Server{
		Addr:         s.addr,
		Handler:      s.Handler(),
		ReadTimeout:  10 * time.Second,
		WriteTimeout: 10 * time.Second,
	}

	go func() {
		logger.Info("http api started", "addr", s.addr)

		if err := s.server.ListenAndServe(); err != http.ErrServerClosed {
			logger.Error("http server error", "error", err)
		}
	}()
}

// Stop gracefully shuts down the HTTP server.
func (s *Server) Stop() error {
	if s.server == nil {
		return nil
	}

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	return s.server.Shutdown(ctx)
}

// handleCreateBoard handles POST /boards.
func (s *Server) handleCreateBoard(w http.ResponseWriter, r *http.Request) {
	var req struct {
		Board          uint16 `json:"board"`
		Name           string `json:"name"`
		Description    string `json:"description"`
		Rules          string `json:"rules"`
		PostsPerThread uint16 `json:"postsPerThread"`
	}

	if !decodeBody(w, r, &req) {
		return
	}

	err := s.boards.CreateBoard(board.BoardIndex(req.Board), board.Metadata{
		Name:           req.Name,
		Description:    req.Description,
		Rules:          req.Rules,
		PostsPerThread: board.PostIndex(req.PostsPerThread),
	})
	if err != nil {
		writeCoreError(w, err)
		return
	}

	logger.Info("board created", "board", req.Board, "name", req.Name)

	writeJSON(w, http.StatusCreated, map[string]any{"board": req.Board})
}

// handleCreateThread handles POST /threads.
func (s *Server) handleCreateThread(w http.ResponseWriter, r *http.Request) {
	var req struct {
		Board uint16 `json:"board"`
	}

	if !decodeBody(w, r, &req) {
		return
	}

	thread, err := s.boards.CreateThread(board.BoardIndex(req.Board), s.height.Height())
	if err != nil {
		writeCoreError(w, err)
		return
	}

	writeJSON(w, http.StatusCreated, map[string]any{"thread": uint16(thread)})
}

// handleCreatePost handles POST /posts: the post enters the board's
// ring buffer and every shard's attestation record is reset.
func (s *Server) handleCreatePost(w http.ResponseWriter, r *http.Request) {
	var req struct {
		Board  uint16 `json:"board"`
		Thread uint16 `json:"thread"`
		Cid    string `json:"cid"`
		Author string `json:"author"`
		Shards int    `json:"shards"`
	}

	if !decodeBody(w, r, &req) {
		return
	}

	cid, err := parseHash32(req.Cid)
	if err != nil {
		writeError(w, http.StatusBadRequest, "invalid cid: "+err.Error())
		return
	}

	author, err := parseHash32(req.Author)
	if err != nil {
		writeError(w, http.StatusBadRequest, "invalid author: "+err.Error())
		return
	}

	height := s.height.Height()

	post := board.BufferedPost{
		Data: board.PostData{
			Cid:       board.Cid(cid),
			Author:    board.AccountID(author),
			CreatedAt: height,
		},
		Board:  board.BoardIndex(req.Board),
		Thread: board.ThreadIndex(req.Thread),
	}

	slot, err := s.ctrl.ClaimSlot(board.BoardIndex(req.Board), post, req.Shards, height)
	if err != nil {
		writeCoreError(w, err)
		return
	}

	writeJSON(w, http.StatusAccepted, map[string]any{"slot": uint16(slot)})
}

// handleFinalizePost handles POST /posts/finalize: once every shard's
// voting period has closed, an all-Available verdict promotes the
// buffered post into its thread and consumes the buffer slot.
func (s *Server) handleFinalizePost(w http.ResponseWriter, r *http.Request) {
	var req struct {
		Board uint16 `json:"board"`
		Slot  uint16 `json:"slot"`
	}

	if !decodeBody(w, r, &req) {
		return
	}

	b := board.BoardIndex(req.Board)
	slot := board.BufferIndex(req.Slot)
	height := s.height.Height()

	// The shard count was fixed at claim time; a finalized or
	// unclaimed slot has no buffered post and stops here.
	buffered, err := s.boards.BufferedPost(b, slot)
	if err != nil {
		writeCoreError(w, err)
		return
	}

	for shard := 0; shard < int(buffered.Shards); shard++ {
		outcome, err := s.ctrl.Outcome(b, slot, board.ShardIndex(shard), height)
		if err != nil {
			writeCoreError(w, err)
			return
		}

		if outcome != attestation.Available {
			writeJSON(w, http.StatusOK, map[string]any{
				"finalized": false,
				"shard":     shard,
				"outcome":   outcome.String(),
			})
			return
		}
	}

	post, err := s.boards.PromoteBuffered(b, slot)
	if err != nil {
		writeCoreError(w, err)
		return
	}

	logger.Info("post finalized",
		"board", req.Board,
		"slot", req.Slot,
		"thread", uint16(buffered.Thread),
		"post", uint16(post),
	)

	writeJSON(w, http.StatusOK, map[string]any{
		"finalized": true,
		"post":      uint16(post),
	})
}

// attestTarget is the common addressing of attestation requests.
type attestTarget struct {
	Board    uint16 `json:"board"`
	Slot     uint16 `json:"slot"`
	Shard    uint8  `json:"shard"`
	Attester int    `json:"attester"`
}

// handleFirstCommit handles POST /attest/first.
func (s *Server) handleFirstCommit(w http.ResponseWriter, r *http.Request) {
	var req struct {
		attestTarget
		Hash string `json:"hash"`
	}

	if !decodeBody(w, r, &req) {
		return
	}

	h, err := parseHash32(req.Hash)
	if err != nil {
		writeError(w, http.StatusBadRequest, "invalid hash: "+err.Error())
		return
	}

	err = s.ctrl.SubmitFirstCommit(
		board.BoardIndex(req.Board), board.BufferIndex(req.Slot),
		board.ShardIndex(req.Shard), req.Attester, h, s.height.Height())
	if err != nil {
		writeCoreError(w, err)
		return
	}

	writeJSON(w, http.StatusAccepted, map[string]string{"phase": "first-commit"})
}

// handleSecondCommit handles POST /attest/second.
func (s *Server) handleSecondCommit(w http.ResponseWriter, r *http.Request) {
	var req struct {
		attestTarget
		Hash string `json:"hash"`
	}

	if !decodeBody(w, r, &req) {
		return
	}

	h, err := parseHash32(req.Hash)
	if err != nil {
		writeError(w, http.StatusBadRequest, "invalid hash: "+err.Error())
		return
	}

	err = s.ctrl.SubmitSecondCommit(
		board.BoardIndex(req.Board), board.BufferIndex(req.Slot),
		board.ShardIndex(req.Shard), req.Attester, h, s.height.Height())
	if err != nil {
		writeCoreError(w, err)
		return
	}

	writeJSON(w, http.StatusAccepted, map[string]string{"phase": "second-commit"})
}

// handleReveal handles POST /attest/reveal.
func (s *Server) handleReveal(w http.ResponseWriter, r *http.Request) {
	var req struct {
		attestTarget
		Available bool   `json:"available"`
		Salt      string `json:"salt"`
	}

	if !decodeBody(w, r, &req) {
		return
	}

	salt, err := parseHash32(req.Salt)
	if err != nil {
		writeError(w, http.StatusBadRequest, "invalid salt: "+err.Error())
		return
	}

	vote := attestation.VoteFalse
	if req.Available {
		vote = attestation.VoteTrue
	}

	result, err := s.ctrl.Reveal(
		board.BoardIndex(req.Board), board.BufferIndex(req.Slot),
		board.ShardIndex(req.Shard), req.Attester,
		vote, attestation.Salt(salt), s.height.Height())
	if err != nil {
		writeCoreError(w, err)
		return
	}

	writeJSON(w, http.StatusOK, map[string]string{"result": result.String()})
}

// handleOutcome handles GET /attest/outcome.
func (s *Server) handleOutcome(w http.ResponseWriter, r *http.Request) {
	b, ok := queryUint(w, r, "board", 16)
	if !ok {
		return
	}

	slot, ok := queryUint(w, r, "slot", 16)
	if !ok {
		return
	}

	shard, ok := queryUint(w, r, "shard", 8)
	if !ok {
		return
	}

	outcome, err := s.ctrl.Outcome(
		board.BoardIndex(b), board.BufferIndex(slot),
		board.ShardIndex(shard), s.height.Height())
	if err != nil {
		writeCoreError(w, err)
		return
	}

	writeJSON(w, http.StatusOK, map[string]string{"outcome": outcome.String()})
}

// handleSnapshot handles GET /snapshot: a compressed export of the
// full board keyspace.
func (s *Server) handleSnapshot(w http.ResponseWriter, r *http.Request) {
	data, err := snapshot.Create(s.db)
	if err != nil {
		writeError(w, http.StatusInternalServerError, err.Error())
		return
	}

	logger.Info("snapshot exported", "bytes", len(data))

	w.Header().Set("Content-Type", "application/octet-stream")
	w.WriteHeader(http.StatusOK)
	w.Write(data)
}

// handleRestoreSnapshot handles POST /snapshot.
func (s *Server) handleRestoreSnapshot(w http.ResponseWriter, r *http.Request) {
	body, err := io.ReadAll(io.LimitReader(r.Body, maxSnapshotSize))
	if err != nil {
		writeError(w, http.StatusBadRequest, "failed to read body")
		return
	}

	if err := snapshot.Restore(s.db, body); err != nil {
		writeError(w, http.StatusBadRequest, "restore: "+err.Error())
		return
	}

	logger.Info("snapshot restored", "bytes", len(body))

	writeJSON(w, http.StatusOK, map[string]string{"status": "restored"})
}

// handleHealth handles GET /health.
func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

// handleStatus handles GET /status.
func (s *Server) handleStatus(w http.ResponseWriter, r *http.Request) {
	params := s.ctrl.Params()

	writeJSON(w, http.StatusOK, map[string]any{
		"height":          s.height.Height(),
		"bufferCapacity":  params.BufferCapacity,
		"attesterSetSize": params.AttesterSetSize,
		"votingPeriod":    params.VotingPeriod,
	})
}

// parseHash32 decodes a 64-character hex string into 32 bytes.
func parseHash32(s string) ([32]byte, error) {
	var out [32]byte

	raw, err := hex.DecodeString(s)
	if err != nil {
		return out, err
	}

	if len(raw) != 32 {
		return out, errors.New("want 32 bytes")
	}

	copy(out[:], raw)

	return out, nil
}

// writeJSON writes a JSON response.
func writeJSON(w http.ResponseWriter, status int, data any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(data)
}

// writeError writes an error response.
func writeError(w http.ResponseWriter, status int, message string) {
	writeJSON(w, status, map[string]string{"error": message})
}
