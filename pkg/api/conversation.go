package api

import (
	"encoding/json"
	"io"
	"net/http"
	"strconv"
	"strings"

	"github.com/gorilla/mux"

	"chatsync/pkg/models"
	"chatsync/pkg/validation"
)

// conversationView is what the UI renders: the visible snapshot plus the
// identity binding.
type conversationView struct {
	ID       string           `json:"id,omitempty"`
	Title    string           `json:"title,omitempty"`
	Messages []models.Message `json:"messages"`
}

func (s *Server) getConversation(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, conversationView{
		ID:       s.Local.ActiveID(),
		Title:    s.Local.Title(),
		Messages: s.Local.Visible(),
	})
}

type appendRequest struct {
	Role  models.Role   `json:"role"`
	Parts []models.Part `json:"parts"`
}

func (s *Server) appendMessage(w http.ResponseWriter, r *http.Request) {
	var req appendRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid json")
		return
	}
	if err := validation.ValidateMessage(req.Role, req.Parts); err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	m, err := s.Local.Append(req.Role, req.Parts)
	if err != nil {
		writeError(w, http.StatusInternalServerError, err.Error())
		return
	}
	writeJSON(w, http.StatusCreated, m)
}

func messageTS(r *http.Request) (int64, bool) {
	ts, err := strconv.ParseInt(mux.Vars(r)["ts"], 10, 64)
	return ts, err == nil && ts > 0
}

type editPartRequest struct {
	Text string `json:"text"`
}

func (s *Server) editPart(w http.ResponseWriter, r *http.Request) {
	ts, ok := messageTS(r)
	if !ok {
		writeError(w, http.StatusBadRequest, "invalid message timestamp")
		return
	}
	var req editPartRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid json")
		return
	}
	if err := s.Local.EditPart(ts, mux.Vars(r)["uuid"], req.Text); err != nil {
		writeError(w, http.StatusNotFound, err.Error())
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

func (s *Server) deleteMessage(w http.ResponseWriter, r *http.Request) {
	ts, ok := messageTS(r)
	if !ok {
		writeError(w, http.StatusBadRequest, "invalid message timestamp")
		return
	}
	if err := s.Local.DeleteMessage(ts); err != nil {
		writeError(w, http.StatusNotFound, err.Error())
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

func (s *Server) deletePart(w http.ResponseWriter, r *http.Request) {
	ts, ok := messageTS(r)
	if !ok {
		writeError(w, http.StatusBadRequest, "invalid message timestamp")
		return
	}
	if err := s.Local.DeletePart(ts, mux.Vars(r)["uuid"]); err != nil {
		writeError(w, http.StatusNotFound, err.Error())
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

func (s *Server) exportConversation(w http.ResponseWriter, r *http.Request) {
	doc := s.Local.Doc()
	b, err := doc.Encode()
	if err != nil {
		writeError(w, http.StatusInternalServerError, err.Error())
		return
	}
	w.Header().Set("Content-Type", "application/json")
	w.Header().Set("Content-Disposition", `attachment; filename="conversation.json"`)
	_, _ = w.Write(b)
}

const maxImportBytes = 32 << 20

func (s *Server) importConversation(w http.ResponseWriter, r *http.Request) {
	body, err := io.ReadAll(io.LimitReader(r.Body, maxImportBytes+1))
	if err != nil {
		writeError(w, http.StatusBadRequest, "read body failed")
		return
	}
	if len(body) > maxImportBytes {
		writeError(w, http.StatusRequestEntityTooLarge, "import too large")
		return
	}
	doc, err := models.DecodeConversationDoc(body)
	if err != nil {
		writeError(w, http.StatusBadRequest, "unrecognized conversation format")
		return
	}
	title := strings.TrimSpace(r.URL.Query().Get("title"))
	if err := s.Sync.ImportConversation(doc, title); err != nil {
		writeError(w, http.StatusInternalServerError, err.Error())
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"status":   "ok",
		"messages": len(doc.Conversation),
	})
}
