// Package localstate owns the authoritative local copy of the active
// conversation. Every mutation is written to the storage port before it
// returns, so any sync scheduled afterwards observes a snapshot at least
// as fresh as the triggering change. Nothing here talks to the network.
package localstate

import (
	"encoding/json"
	"fmt"
	"sync"

	"github.com/google/uuid"

	"chatsync/pkg/logger"
	"chatsync/pkg/models"
	"chatsync/pkg/storage"
	"chatsync/pkg/timeutil"
)

// Storage keys. The three values are kept mutually consistent: the
// conversation array, the remote id it maps to, and the cached title.
const (
	KeyConversation = "local:conversation"
	KeyActiveID     = "local:conversation_id"
	KeyActiveTitle  = "local:conversation_title"
)

// State is the single writer of the local conversation value. Readers go
// through copying accessors.
type State struct {
	mu    sync.RWMutex
	store storage.Store

	msgs  []models.Message // working set, tombstones included
	id    string
	title string

	// carried through sync untouched
	summaries     []json.RawMessage
	uploadedFiles map[string]json.RawMessage
}

// Load reads persisted state from the store. A missing conversation key
// yields an empty state; a corrupt one is an error the caller surfaces
// rather than silently discarding user data.
func Load(store storage.Store) (*State, error) {
	s := &State{store: store}
	b, err := store.Read(KeyConversation)
	switch {
	case err == nil:
		// the stored payload may be a bare array (legacy) or a full
		// document; both normalize through the same decoder
		doc, derr := models.DecodeConversationDoc(b)
		if derr != nil {
			return nil, fmt.Errorf("load local conversation: %w", derr)
		}
		s.msgs = doc.Conversation
		s.summaries = doc.Summaries
		s.uploadedFiles = doc.UploadedFiles
	case storage.IsNotFound(err):
		s.msgs = []models.Message{}
	default:
		return nil, fmt.Errorf("load local conversation: %w", err)
	}

	if v, err := store.Read(KeyActiveID); err == nil {
		s.id = string(v)
	} else if !storage.IsNotFound(err) {
		return nil, fmt.Errorf("load conversation id: %w", err)
	}
	if v, err := store.Read(KeyActiveTitle); err == nil {
		s.title = string(v)
	} else if !storage.IsNotFound(err) {
		return nil, fmt.Errorf("load conversation title: %w", err)
	}
	return s, nil
}

// persistLocked writes the conversation array. Callers hold s.mu.
func (s *State) persistLocked() error {
	b, err := json.Marshal(s.msgs)
	if err != nil {
		return fmt.Errorf("marshal conversation: %w", err)
	}
	if err := s.store.Write(KeyConversation, b); err != nil {
		return fmt.Errorf("persist conversation: %w", err)
	}
	return nil
}

// Messages returns a copy of the working set, tombstones included.
func (s *State) Messages() []models.Message {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.copyMessagesLocked()
}

// copyMessagesLocked copies the working set including each message's part
// slice. Edits mutate part structs in place, so handing out the live
// slices would let callers read them unlocked while a mutation runs.
func (s *State) copyMessagesLocked() []models.Message {
	out := make([]models.Message, len(s.msgs))
	for i := range s.msgs {
		out[i] = s.msgs[i]
		out[i].Parts = append([]models.Part(nil), s.msgs[i].Parts...)
	}
	return out
}

// Visible returns the user-facing snapshot (no tombstones).
func (s *State) Visible() []models.Message {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make([]models.Message, 0, len(s.msgs))
	for i := range s.msgs {
		m := s.msgs[i]
		if m.Deleted {
			continue
		}
		parts := make([]models.Part, 0, len(m.Parts))
		for _, p := range m.Parts {
			if !p.Deleted {
				parts = append(parts, p)
			}
		}
		m.Parts = parts
		out = append(out, m)
	}
	return out
}

// Snapshot returns the canonical bytes of the working conversation; the
// orchestrator compares these against the last synced snapshot to skip
// no-op uploads.
func (s *State) Snapshot() ([]byte, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return json.Marshal(s.msgs)
}

// Empty reports whether the visible conversation has no messages.
func (s *State) Empty() bool {
	s.mu.RLock()
	defer s.mu.RUnlock()
	for i := range s.msgs {
		if !s.msgs[i].Deleted {
			return false
		}
	}
	return true
}

// Append creates a message with a fresh creation timestamp and uuids on
// every part. The timestamp is the cross-replica join key; it is stamped
// exactly once, here.
func (s *State) Append(role models.Role, parts []models.Part) (models.Message, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	now := timeutil.NowMs()
	// creation timestamps double as map keys during merge; never reuse one
	for i := range s.msgs {
		if s.msgs[i].Timestamp >= now {
			now = s.msgs[i].Timestamp + 1
		}
	}
	m := models.Message{Role: role, Timestamp: now, Parts: make([]models.Part, len(parts))}
	for i, p := range parts {
		if p.UUID == "" {
			p.UUID = uuid.NewString()
		}
		if p.Timestamp == 0 {
			p.Timestamp = now
		}
		m.Parts[i] = p
	}
	s.msgs = append(s.msgs, m)
	if err := s.persistLocked(); err != nil {
		// roll the in-memory append back; local storage defines truth
		s.msgs = s.msgs[:len(s.msgs)-1]
		return models.Message{}, err
	}
	return m, nil
}

// EditPart replaces the text of one part, bumping lastUpdate on both the
// part and its message.
func (s *State) EditPart(msgTS int64, partUUID, text string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	m := s.findLocked(msgTS)
	if m == nil {
		return fmt.Errorf("message %d not found", msgTS)
	}
	for i := range m.Parts {
		if m.Parts[i].UUID != partUUID {
			continue
		}
		now := timeutil.NowMs()
		m.Parts[i].Text = text
		m.Parts[i].LastUpdate = now
		m.LastUpdate = now
		return s.persistLocked()
	}
	return fmt.Errorf("part %s not found in message %d", partUUID, msgTS)
}

// DeleteMessage tombstones a message. The entry stays in the working set
// so a later merge can carry the deletion to replicas that missed it.
func (s *State) DeleteMessage(msgTS int64) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	m := s.findLocked(msgTS)
	if m == nil {
		return fmt.Errorf("message %d not found", msgTS)
	}
	m.Deleted = true
	m.LastUpdate = timeutil.NowMs()
	return s.persistLocked()
}

// DeletePart tombstones a single part.
func (s *State) DeletePart(msgTS int64, partUUID string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	m := s.findLocked(msgTS)
	if m == nil {
		return fmt.Errorf("message %d not found", msgTS)
	}
	for i := range m.Parts {
		if m.Parts[i].UUID != partUUID {
			continue
		}
		now := timeutil.NowMs()
		m.Parts[i].Deleted = true
		m.Parts[i].LastUpdate = now
		m.LastUpdate = now
		return s.persistLocked()
	}
	return fmt.Errorf("part %s not found in message %d", partUUID, msgTS)
}

func (s *State) findLocked(ts int64) *models.Message {
	for i := range s.msgs {
		if s.msgs[i].Timestamp == ts {
			return &s.msgs[i]
		}
	}
	return nil
}

// Compact physically removes tombstoned messages and parts whose last
// activity predates cutoff (epoch ms). Fresh tombstones are kept so
// merges can still propagate the deletion to lagging replicas. Returns
// the number of entries removed.
func (s *State) Compact(cutoff int64) (int, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	removed := 0
	kept := make([]models.Message, 0, len(s.msgs))
	for i := range s.msgs {
		m := s.msgs[i]
		if m.Deleted && m.EffectiveUpdate() < cutoff {
			removed++
			continue
		}
		parts := make([]models.Part, 0, len(m.Parts))
		for _, p := range m.Parts {
			if p.Deleted && p.EffectiveUpdate() < cutoff {
				removed++
				continue
			}
			parts = append(parts, p)
		}
		m.Parts = parts
		kept = append(kept, m)
	}
	if removed == 0 {
		return 0, nil
	}
	prev := s.msgs
	s.msgs = kept
	if err := s.persistLocked(); err != nil {
		s.msgs = prev
		return 0, err
	}
	return removed, nil
}

// SetMessages replaces the working set wholesale (merge results,
// conversation switches) and persists synchronously.
func (s *State) SetMessages(msgs []models.Message) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	prev := s.msgs
	s.msgs = append([]models.Message(nil), msgs...)
	if err := s.persistLocked(); err != nil {
		s.msgs = prev
		return err
	}
	return nil
}

// ActiveID returns the remote conversation id, or "" when the
// conversation exists only locally.
func (s *State) ActiveID() string {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.id
}

// SetActiveID persists the remote id binding.
func (s *State) SetActiveID(id string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if err := s.store.Write(KeyActiveID, []byte(id)); err != nil {
		return fmt.Errorf("persist conversation id: %w", err)
	}
	s.id = id
	return nil
}

// Title returns the cached conversation title.
func (s *State) Title() string {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.title
}

// SetTitle persists the cached title.
func (s *State) SetTitle(title string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if err := s.store.Write(KeyActiveTitle, []byte(title)); err != nil {
		return fmt.Errorf("persist conversation title: %w", err)
	}
	s.title = title
	return nil
}

// ClearActive drops the id/title binding and empties the conversation.
// Used by reset and by delete-of-active when no conversation remains.
func (s *State) ClearActive() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if err := s.store.Delete(KeyActiveID); err != nil {
		return err
	}
	if err := s.store.Delete(KeyActiveTitle); err != nil {
		return err
	}
	s.id = ""
	s.title = ""
	s.msgs = []models.Message{}
	s.summaries = nil
	s.uploadedFiles = nil
	return s.persistLocked()
}

// Doc builds the remote conversation document for the current state. The
// document shares nothing with the working set; callers encode it after
// the lock is gone.
func (s *State) Doc() *models.ConversationDoc {
	s.mu.RLock()
	defer s.mu.RUnlock()
	msgs := s.copyMessagesLocked()
	var files map[string]json.RawMessage
	if s.uploadedFiles != nil {
		files = make(map[string]json.RawMessage, len(s.uploadedFiles))
		for k, v := range s.uploadedFiles {
			files[k] = v
		}
	}
	return &models.ConversationDoc{
		Version:       models.DocVersion,
		Conversation:  msgs,
		Summaries:     append([]json.RawMessage(nil), s.summaries...),
		UploadedFiles: files,
		ID:            s.id,
		Metadata: models.DocMetadata{
			UpdatedAt: models.ContentUpdatedAt(msgs),
		},
	}
}

// AddSummary records a generated conversation summary. Summaries live on
// the remote document; they ride along on the next upload.
func (s *State) AddSummary(raw json.RawMessage) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.summaries = append(s.summaries, raw)
}

// ReplaceFromDoc swaps in a fetched conversation wholesale. Switching
// identity is a context change, not a divergence, so no merge happens.
func (s *State) ReplaceFromDoc(doc *models.ConversationDoc, title string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.msgs = append([]models.Message(nil), doc.Conversation...)
	s.summaries = doc.Summaries
	s.uploadedFiles = doc.UploadedFiles
	if err := s.persistLocked(); err != nil {
		return err
	}
	if err := s.store.Write(KeyActiveID, []byte(doc.ID)); err != nil {
		return err
	}
	if err := s.store.Write(KeyActiveTitle, []byte(title)); err != nil {
		return err
	}
	s.id = doc.ID
	s.title = title
	logger.Info("conversation_replaced", "id", doc.ID, "messages", len(s.msgs))
	return nil
}
