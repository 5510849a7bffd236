// Package api is the local HTTP surface the chat UI talks to. It is a
// thin translation layer: every route maps onto one localstate mutation
// or one orchestrator operation, with no sync logic of its own.
package api

import (
	"encoding/json"
	"net/http"

	"github.com/gorilla/mux"

	"chatsync/pkg/localstate"
	"chatsync/pkg/syncer"
)

// Server holds the dependencies the handlers operate on.
type Server struct {
	Local *localstate.State
	Sync  *syncer.Orchestrator
}

// Register attaches all routes to the provided router.
func (s *Server) Register(r *mux.Router) {
	// Active conversation and its messages
	r.HandleFunc("/v1/conversation", s.getConversation).Methods(http.MethodGet)
	r.HandleFunc("/v1/conversation/messages", s.appendMessage).Methods(http.MethodPost)
	r.HandleFunc("/v1/conversation/messages/{ts}", s.deleteMessage).Methods(http.MethodDelete)
	r.HandleFunc("/v1/conversation/messages/{ts}/parts/{uuid}", s.editPart).Methods(http.MethodPut)
	r.HandleFunc("/v1/conversation/messages/{ts}/parts/{uuid}", s.deletePart).Methods(http.MethodDelete)

	// Conversation collection (remote index backed)
	r.HandleFunc("/v1/conversations", s.listConversations).Methods(http.MethodGet)
	r.HandleFunc("/v1/conversations", s.createConversation).Methods(http.MethodPost)
	r.HandleFunc("/v1/conversations/{id}", s.deleteConversation).Methods(http.MethodDelete)
	r.HandleFunc("/v1/conversations/{id}/name", s.renameConversation).Methods(http.MethodPut)
	r.HandleFunc("/v1/conversations/{id}/switch", s.switchConversation).Methods(http.MethodPost)

	// Sync lifecycle
	r.HandleFunc("/v1/sync", s.triggerSync).Methods(http.MethodPost)
	r.HandleFunc("/v1/reset", s.resetConversation).Methods(http.MethodPost)
	r.HandleFunc("/v1/title", s.generateTitle).Methods(http.MethodPost)
	r.HandleFunc("/v1/suggestions", s.suggest).Methods(http.MethodPost)
	r.HandleFunc("/v1/availability", s.availability).Methods(http.MethodGet)

	// Import/export round-trips the conversation document shape
	r.HandleFunc("/v1/export", s.exportConversation).Methods(http.MethodGet)
	r.HandleFunc("/v1/import", s.importConversation).Methods(http.MethodPost)
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

func writeError(w http.ResponseWriter, status int, msg string) {
	writeJSON(w, status, map[string]string{"error": msg})
}
