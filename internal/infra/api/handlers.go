package api

import (
	"encoding/json"
	"errors"
	"io"
	"net/http"

	"github.com/go-chi/chi/v5"

	"compat-assistant/internal/domain"
	"compat-assistant/internal/domain/model"
	"compat-assistant/internal/infra/logging"
)

const maxBodyBytes = 64 << 10

type createSessionRequest struct {
	Title string `json:"title"`
}

type submitRequest struct {
	Text string `json:"text"`
}

// sessionResponse is a session plus whether a reply is being composed.
type sessionResponse struct {
	*model.ChatSession
	Composing bool `json:"composing"`
}

func (s *Server) handleCreateSession(w http.ResponseWriter, r *http.Request) {
	var req createSessionRequest
	if err := decodeBody(r, &req, true); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body")
		return
	}
	session, err := s.chat.CreateSession(r.Context(), req.Title)
	if err != nil {
		s.fail(w, r, err)
		return
	}
	writeJSON(w, http.StatusCreated, sessionResponse{ChatSession: session})
}

func (s *Server) handleListSessions(w http.ResponseWriter, r *http.Request) {
	items, err := s.chat.ListSessions(r.Context())
	if err != nil {
		s.fail(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"items": items})
}

func (s *Server) handleGetSession(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")
	session, err := s.chat.GetSession(r.Context(), id)
	if err != nil {
		s.fail(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, sessionResponse{ChatSession: session, Composing: s.chat.IsComposing(id)})
}

// handleSubmit answers 202 once the user message is on the timeline; the
// reply arrives later on the event stream. Blank text is a 200 with
// accepted=false.
func (s *Server) handleSubmit(w http.ResponseWriter, r *http.Request) {
	var req submitRequest
	if err := decodeBody(r, &req, false); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body")
		return
	}
	ctx := logging.WithSessID(r.Context(), chi.URLParam(r, "id"))
	res, err := s.chat.Submit(ctx, chi.URLParam(r, "id"), req.Text)
	if err != nil {
		s.fail(w, r, err)
		return
	}
	status := http.StatusAccepted
	if !res.Accepted {
		status = http.StatusOK
	}
	writeJSON(w, status, res)
}

func (s *Server) handleGetProfile(w http.ResponseWriter, r *http.Request) {
	p, err := s.chat.GetProfile(r.Context())
	if err != nil {
		s.fail(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, p)
}

func (s *Server) handleSetProfile(w http.ResponseWriter, r *http.Request) {
	// omitted flags default to on, like a freshly configured profile
	p := model.UserProfile{IncludeInReasoning: model.DefaultReasoningFlags()}
	if err := decodeBody(r, &p, false); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body")
		return
	}
	saved, err := s.chat.SetProfile(r.Context(), p)
	if err != nil {
		s.fail(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, saved)
}

func (s *Server) handleCatalog(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, s.catalog)
}

func (s *Server) handleQuickActions(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, map[string]any{"items": s.quickActions})
}

func (s *Server) handleStats(w http.ResponseWriter, r *http.Request) {
	o, err := s.stats.Totals(r.Context())
	if err != nil {
		s.fail(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, o)
}

// fail maps domain errors to status codes and logs the unexpected ones.
func (s *Server) fail(w http.ResponseWriter, r *http.Request, err error) {
	status := errStatus(err)
	if status >= http.StatusInternalServerError {
		logging.With(r.Context(), s.log).Error().Err(err).Msg("request failed")
		writeError(w, status, http.StatusText(status))
		return
	}
	writeError(w, status, err.Error())
}

func errStatus(err error) int {
	switch {
	case errors.Is(err, domain.ErrNotFound):
		return http.StatusNotFound
	case errors.Is(err, domain.ErrInvalidArgument):
		return http.StatusBadRequest
	case errors.Is(err, domain.ErrRateLimited):
		return http.StatusTooManyRequests
	case errors.Is(err, domain.ErrClosed):
		return http.StatusServiceUnavailable
	default:
		return http.StatusInternalServerError
	}
}

// decodeBody reads a JSON body. allowEmpty accepts a missing body.
func decodeBody(r *http.Request, dst any, allowEmpty bool) error {
	dec := json.NewDecoder(io.LimitReader(r.Body, maxBodyBytes))
	dec.DisallowUnknownFields()
	if err := dec.Decode(dst); err != nil {
		if allowEmpty && errors.Is(err, io.EOF) {
			return nil
		}
		return err
	}
	return nil
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

func writeError(w http.ResponseWriter, status int, msg string) {
	writeJSON(w, status, map[string]string{"error": msg})
}
