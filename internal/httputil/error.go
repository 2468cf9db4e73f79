package httputil

import (
	"encoding/json"
	"errors"
	"net/http"

	"github.com/AdamBeresnev/bracket-engine/internal/bracket"
	"github.com/charmbracelet/log"
)

type errorBody struct {
	Error string `json:"error"`
	Code  string `json:"code,omitempty"`
}

// WriteJSON encodes v with the given status.
func WriteJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		log.Error("Failed to encode response", "error", err)
	}
}

// DecodeJSON reads the request body into v, rejecting unknown fields.
func DecodeJSON(r *http.Request, v any) error {
	dec := json.NewDecoder(r.Body)
	dec.DisallowUnknownFields()
	return dec.Decode(v)
}

func InternalServerError(w http.ResponseWriter, msg string, err error) {
	log.Error(msg, "error", err)
	WriteJSON(w, http.StatusInternalServerError, errorBody{Error: "Internal Server Error"})
}

func BadRequest(w http.ResponseWriter, msg string, err error) {
	if err != nil {
		log.Warn("bad request", "message", msg, "error", err)
	} else {
		log.Warn("bad request", "message", msg)
	}
	WriteJSON(w, http.StatusBadRequest, errorBody{Error: msg})
}

func NotFound(w http.ResponseWriter, msg string, err error) {
	if err != nil {
		log.Warn("not found", "message", msg, "error", err)
	} else {
		log.Warn("not found", "message", msg)
	}
	WriteJSON(w, http.StatusNotFound, errorBody{Error: msg})
}

var statusTable = []struct {
	err    error
	status int
	code   string
}{
	{bracket.ErrNotFound, http.StatusNotFound, "not_found"},
	{bracket.ErrBracketAlreadyExists, http.StatusConflict, "bracket_already_exists"},
	{bracket.ErrInvalidStateTransition, http.StatusConflict, "invalid_state_transition"},
	{bracket.ErrAlreadyResolved, http.StatusConflict, "already_resolved"},
	{bracket.ErrNodeNotReady, http.StatusConflict, "node_not_ready"},
	{bracket.ErrNodeFrozen, http.StatusConflict, "node_frozen"},
	{bracket.ErrDisputed, http.StatusConflict, "disputed"},
	{bracket.ErrRoundIncomplete, http.StatusConflict, "round_incomplete"},
	{bracket.ErrFormatNotApplicable, http.StatusUnprocessableEntity, "format_not_applicable"},
	{bracket.ErrInsufficientParticipants, http.StatusUnprocessableEntity, "insufficient_participants"},
	{bracket.ErrInvalidSeedAssignment, http.StatusUnprocessableEntity, "invalid_seed_assignment"},
	{bracket.ErrInvalidScore, http.StatusUnprocessableEntity, "invalid_score"},
	{bracket.ErrReasonRequired, http.StatusUnprocessableEntity, "reason_required"},
	{bracket.ErrNotParticipant, http.StatusForbidden, "not_participant"},
	{bracket.ErrUnknownFormat, http.StatusBadRequest, "unknown_format"},
}

// Status maps a domain error to its HTTP status and a stable code.
func Status(err error) (int, string) {
	for _, e := range statusTable {
		if errors.Is(err, e.err) {
			return e.status, e.code
		}
	}
	return http.StatusInternalServerError, ""
}

// Error writes err with the status its sentinel maps to. Unmapped errors are
// logged and hidden behind a 500.
func Error(w http.ResponseWriter, msg string, err error) {
	status, code := Status(err)
	switch {
	case status == http.StatusInternalServerError:
		InternalServerError(w, msg, err)
		return
	case errors.Is(err, bracket.ErrNodeNotReady):
		log.Error(msg, "error", err)
	default:
		log.Warn(msg, "status", status, "error", err)
	}
	WriteJSON(w, status, errorBody{Error: err.Error(), Code: code})
}
