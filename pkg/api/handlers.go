package api

import (
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"strconv"

	"github.com/gorilla/mux"

	"github.com/quarterdeck/captain/pkg/archive"
	"github.com/quarterdeck/captain/pkg/captain"
	"github.com/quarterdeck/captain/pkg/chores"
	"github.com/quarterdeck/captain/pkg/crew"
	"github.com/quarterdeck/captain/pkg/types"
	"github.com/quarterdeck/captain/pkg/users"
)

type okResponse struct {
	OK      bool  `json:"ok"`
	ChoreID int64 `json:"chore_id,omitempty"`
}

type errorResponse struct {
	Error string `json:"error"`
}

type cancelRequest struct {
	ChoreID int64  `json:"chore_id"`
	Reason  string `json:"reason,omitempty"`
}

type preregRequest struct {
	Name     string   `json:"name"`
	IP       string   `json:"ip"`
	Port     int      `json:"port,omitempty"`
	Services []string `json:"services,omitempty"`
	MaxTime  string   `json:"max_time,omitempty"`
}

type loginRequest struct {
	UID string `json:"uid"`
}

// statusFor maps the sentinel errors of the inner packages to HTTP
// status codes.
func statusFor(err error) int {
	switch {
	case errors.Is(err, captain.ErrValidation):
		return http.StatusBadRequest
	case errors.Is(err, captain.ErrUnauthorized):
		return http.StatusUnauthorized
	case errors.Is(err, users.ErrQuotaExceeded):
		return http.StatusForbidden
	case errors.Is(err, users.ErrUnknownUser),
		errors.Is(err, crew.ErrUnknownSailor),
		errors.Is(err, chores.ErrNotFound),
		errors.Is(err, archive.ErrNotFound):
		return http.StatusNotFound
	case errors.Is(err, chores.ErrInvalidTransition):
		return http.StatusConflict
	default:
		return http.StatusInternalServerError
	}
}

func (s *Server) writeJSON(w http.ResponseWriter, code int, v interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		s.logger.Error().Err(err).Msg("failed to encode response")
	}
}

func (s *Server) writeError(w http.ResponseWriter, err error) {
	code := statusFor(err)
	if code == http.StatusInternalServerError {
		s.logger.Error().Err(err).Msg("request failed")
	}
	s.writeJSON(w, code, errorResponse{Error: err.Error()})
}

// decode reads the JSON body into v, replying 400 on malformed input.
func (s *Server) decode(w http.ResponseWriter, r *http.Request, v interface{}) bool {
	if err := json.NewDecoder(r.Body).Decode(v); err != nil {
		s.writeError(w, fmt.Errorf("malformed json body: %s: %w", err, captain.ErrValidation))
		return false
	}
	return true
}

// bearerUID resolves the Authorization header to a uid, or replies 401.
func (s *Server) bearerUID(w http.ResponseWriter, r *http.Request) (string, bool) {
	auth := r.Header.Get("Authorization")
	const prefix = "Bearer "
	if len(auth) <= len(prefix) || auth[:len(prefix)] != prefix {
		s.writeError(w, fmt.Errorf("missing bearer token: %w", captain.ErrUnauthorized))
		return "", false
	}
	uid, err := s.captain.Authenticate(auth[len(prefix):])
	if err != nil {
		s.writeError(w, err)
		return "", false
	}
	return uid, true
}

func (s *Server) handleListCrew(w http.ResponseWriter, r *http.Request) {
	fleet := s.captain.ListCrew()
	if fleet == nil {
		fleet = []types.Sailor{}
	}
	s.writeJSON(w, http.StatusOK, fleet)
}

func (s *Server) handleRemoveSailor(w http.ResponseWriter, r *http.Request) {
	name := mux.Vars(r)["name"]
	if err := s.captain.RemoveSailor(name); err != nil {
		s.writeError(w, err)
		return
	}
	s.writeJSON(w, http.StatusOK, okResponse{OK: true})
}

func (s *Server) handlePrereg(w http.ResponseWriter, r *http.Request) {
	var req preregRequest
	if !s.decode(w, r, &req) {
		return
	}
	if _, err := s.captain.Preregister(req.Name, req.IP, req.Port, req.Services, req.MaxTime); err != nil {
		s.writeError(w, err)
		return
	}
	s.writeJSON(w, http.StatusOK, okResponse{OK: true})
}

func (s *Server) handleHeartbeat(w http.ResponseWriter, r *http.Request) {
	var report types.HeartbeatReport
	if !s.decode(w, r, &report) {
		return
	}
	reply, err := s.captain.Heartbeat(&report)
	if err != nil {
		s.writeError(w, err)
		return
	}
	s.writeJSON(w, http.StatusOK, reply)
}

func (s *Server) handleListChores(w http.ResponseWriter, r *http.Request) {
	var list []types.Chore
	if owner := r.URL.Query().Get("owner"); owner != "" {
		list = s.captain.ListChoresOwned(owner)
	} else {
		list = s.captain.ListChores()
	}
	if list == nil {
		list = []types.Chore{}
	}
	s.writeJSON(w, http.StatusOK, list)
}

func (s *Server) handleGetChore(w http.ResponseWriter, r *http.Request) {
	id, err := strconv.ParseInt(mux.Vars(r)["id"], 10, 64)
	if err != nil {
		s.writeError(w, fmt.Errorf("bad chore id: %w", captain.ErrValidation))
		return
	}
	chore, err := s.captain.GetChore(id)
	if err != nil {
		s.writeError(w, err)
		return
	}
	s.writeJSON(w, http.StatusOK, chore)
}

func (s *Server) handleSubmitChore(w http.ResponseWriter, r *http.Request) {
	var req captain.SubmitRequest
	if !s.decode(w, r, &req) {
		return
	}
	chore, err := s.captain.SubmitChore(req)
	if err != nil {
		s.writeError(w, err)
		return
	}
	s.writeJSON(w, http.StatusOK, okResponse{OK: true, ChoreID: chore.ID})
}

func (s *Server) handleCancelChore(w http.ResponseWriter, r *http.Request) {
	var req cancelRequest
	if !s.decode(w, r, &req) {
		return
	}
	if _, err := s.captain.CancelChore(req.ChoreID, req.Reason); err != nil {
		s.writeError(w, err)
		return
	}
	s.writeJSON(w, http.StatusOK, okResponse{OK: true})
}

func (s *Server) handleArchive(w http.ResponseWriter, r *http.Request) {
	archived, err := s.captain.ArchivedChores()
	if err != nil {
		s.writeError(w, err)
		return
	}
	if archived == nil {
		archived = []types.Chore{}
	}
	s.writeJSON(w, http.StatusOK, archived)
}

func (s *Server) handleListUsers(w http.ResponseWriter, r *http.Request) {
	list := s.captain.ListUsers()
	if list == nil {
		list = []types.User{}
	}
	s.writeJSON(w, http.StatusOK, list)
}

func (s *Server) handleSetUser(w http.ResponseWriter, r *http.Request) {
	var upd captain.UserUpdate
	if !s.decode(w, r, &upd) {
		return
	}
	if _, err := s.captain.SetUser(upd); err != nil {
		s.writeError(w, err)
		return
	}
	s.writeJSON(w, http.StatusOK, okResponse{OK: true})
}

func (s *Server) handleLogin(w http.ResponseWriter, r *http.Request) {
	var req loginRequest
	if !s.decode(w, r, &req) {
		return
	}
	token, err := s.captain.Login(req.UID)
	if err != nil {
		s.writeError(w, err)
		return
	}
	s.writeJSON(w, http.StatusOK, token)
}

func (s *Server) handleMyChores(w http.ResponseWriter, r *http.Request) {
	uid, ok := s.bearerUID(w, r)
	if !ok {
		return
	}
	list := s.captain.ListChoresOwned(uid)
	if list == nil {
		list = []types.Chore{}
	}
	s.writeJSON(w, http.StatusOK, list)
}

// handleMyCancel cancels one of the caller's own chores. Chores of
// other owners are reported as not found rather than forbidden.
func (s *Server) handleMyCancel(w http.ResponseWriter, r *http.Request) {
	uid, ok := s.bearerUID(w, r)
	if !ok {
		return
	}
	var req cancelRequest
	if !s.decode(w, r, &req) {
		return
	}
	chore, err := s.captain.GetChore(req.ChoreID)
	if err != nil || chore.Owner != uid {
		s.writeError(w, fmt.Errorf("chore %d: %w", req.ChoreID, chores.ErrNotFound))
		return
	}
	if _, err := s.captain.CancelChore(req.ChoreID, req.Reason); err != nil {
		s.writeError(w, err)
		return
	}
	s.writeJSON(w, http.StatusOK, okResponse{OK: true})
}
