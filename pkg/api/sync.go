package api

import (
	"encoding/json"
	"errors"
	"net/http"

	"github.com/gorilla/mux"

	"chatsync/pkg/auth"
	"chatsync/pkg/remote"
)

func (s *Server) triggerSync(w http.ResponseWriter, r *http.Request) {
	if err := s.Sync.Sync(r.Context()); err != nil {
		writeError(w, remoteStatus(err), err.Error())
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{
		"status": "ok",
		"state":  s.Sync.State().String(),
	})
}

func (s *Server) resetConversation(w http.ResponseWriter, r *http.Request) {
	if err := s.Sync.ResetCurrent(r.Context()); err != nil {
		writeError(w, http.StatusInternalServerError, err.Error())
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

func (s *Server) generateTitle(w http.ResponseWriter, r *http.Request) {
	if err := s.Sync.GenerateTitle(r.Context()); err != nil {
		writeError(w, remoteStatus(err), err.Error())
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"title": s.Local.Title()})
}

func (s *Server) suggest(w http.ResponseWriter, r *http.Request) {
	summary, questions, err := s.Sync.Suggest(r.Context())
	if err != nil {
		writeError(w, http.StatusServiceUnavailable, err.Error())
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"summary":       summary,
		"nextQuestions": questions,
	})
}

func (s *Server) availability(w http.ResponseWriter, r *http.Request) {
	ok := s.Sync.CheckAvailability()
	if ok {
		// first successful availability check kicks off the one-time
		// initial reconciliation
		if err := s.Sync.LoadInitial(r.Context()); err != nil {
			writeError(w, remoteStatus(err), err.Error())
			return
		}
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"available": ok,
		"state":     s.Sync.State().String(),
		"needsSync": s.Sync.NeedsSync(),
	})
}

func (s *Server) listConversations(w http.ResponseWriter, r *http.Request) {
	entries, err := s.Sync.ListConversations(r.Context())
	if err != nil {
		writeError(w, remoteStatus(err), err.Error())
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"conversations": entries})
}

type createRequest struct {
	Name string `json:"name"`
}

func (s *Server) createConversation(w http.ResponseWriter, r *http.Request) {
	var req createRequest
	if r.Body != nil {
		_ = json.NewDecoder(r.Body).Decode(&req)
	}
	id, err := s.Sync.CreateConversation(r.Context(), req.Name)
	if err != nil {
		writeError(w, remoteStatus(err), err.Error())
		return
	}
	writeJSON(w, http.StatusCreated, map[string]string{"id": id})
}

func (s *Server) deleteConversation(w http.ResponseWriter, r *http.Request) {
	if err := s.Sync.DeleteConversation(r.Context(), mux.Vars(r)["id"]); err != nil {
		writeError(w, remoteStatus(err), err.Error())
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{
		"status": "ok",
		"active": s.Local.ActiveID(),
	})
}

type renameRequest struct {
	Name string `json:"name"`
}

func (s *Server) renameConversation(w http.ResponseWriter, r *http.Request) {
	var req renameRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil || req.Name == "" {
		writeError(w, http.StatusBadRequest, "name required")
		return
	}
	if err := s.Sync.RenameConversation(r.Context(), mux.Vars(r)["id"], req.Name); err != nil {
		writeError(w, remoteStatus(err), err.Error())
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

func (s *Server) switchConversation(w http.ResponseWriter, r *http.Request) {
	if err := s.Sync.SwitchConversation(r.Context(), mux.Vars(r)["id"]); err != nil {
		writeError(w, remoteStatus(err), err.Error())
		return
	}
	writeJSON(w, http.StatusOK, conversationView{
		ID:       s.Local.ActiveID(),
		Title:    s.Local.Title(),
		Messages: s.Local.Visible(),
	})
}

// remoteStatus maps the error taxonomy to HTTP statuses for the UI.
func remoteStatus(err error) int {
	switch {
	case errors.Is(err, auth.ErrNoToken), errors.Is(err, remote.ErrUnauthorized):
		return http.StatusUnauthorized
	case errors.Is(err, remote.ErrNotFound):
		return http.StatusNotFound
	case errors.Is(err, remote.ErrConflict):
		return http.StatusConflict
	case errors.Is(err, remote.ErrMalformed):
		return http.StatusBadGateway
	default:
		return http.StatusBadGateway
	}
}
