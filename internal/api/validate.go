package api

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strconv"

	"boardstate/internal/attestation"
	"boardstate/internal/board"
)

// decodeBody reads and decodes a JSON request body into dst. On
// failure it writes a 400 response and returns false.
func decodeBody(w http.ResponseWriter, r *http.Request, dst any) bool {
	body, err := io.ReadAll(io.LimitReader(r.Body, maxBodySize))
	if err != nil {
		writeError(w, http.StatusBadRequest, "failed to read body")
		return false
	}

	if len(body) == 0 {
		writeError(w, http.StatusBadRequest, "empty body")
		return false
	}

	if err := json.Unmarshal(body, dst); err != nil {
		writeError(w, http.StatusBadRequest, "invalid json: "+err.Error())
		return false
	}

	return true
}

// queryUint parses an unsigned query parameter of the given bit size.
// On failure it writes a 400 response and returns ok=false.
func queryUint(w http.ResponseWriter, r *http.Request, name string, bits int) (uint64, bool) {
	raw := r.URL.Query().Get(name)
	if raw == "" {
		writeError(w, http.StatusBadRequest, fmt.Sprintf("missing %q parameter", name))
		return 0, false
	}

	v, err := strconv.ParseUint(raw, 10, bits)
	if err != nil {
		writeError(w, http.StatusBadRequest, fmt.Sprintf("invalid %q parameter: %v", name, err))
		return 0, false
	}

	return v, true
}

// writeCoreError maps core errors onto HTTP statuses.
func writeCoreError(w http.ResponseWriter, err error) {
	switch {
	case errors.Is(err, attestation.ErrInvalidPhase):
		writeError(w, http.StatusConflict, err.Error())
	case errors.Is(err, attestation.ErrUnknownAttester):
		writeError(w, http.StatusBadRequest, err.Error())
	case errors.Is(err, attestation.ErrVotingPeriodElapsed):
		writeError(w, http.StatusGone, err.Error())
	case errors.Is(err, attestation.ErrVotingPeriodOpen):
		writeError(w, http.StatusTooEarly, err.Error())
	case errors.Is(err, attestation.ErrCounterExhausted),
		errors.Is(err, attestation.ErrStorageBound):
		writeError(w, http.StatusInsufficientStorage, err.Error())
	case errors.Is(err, attestation.ErrNoRecord),
		errors.Is(err, board.ErrNotFound):
		writeError(w, http.StatusNotFound, err.Error())
	case errors.Is(err, board.ErrExists):
		writeError(w, http.StatusConflict, err.Error())
	case errors.Is(err, board.ErrLimitExceeded),
		errors.Is(err, board.ErrThreadFull):
		writeError(w, http.StatusUnprocessableEntity, err.Error())
	default:
		writeError(w, http.StatusInternalServerError, err.Error())
	}
}
