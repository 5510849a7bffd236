package models

import (
	"encoding/json"
	"fmt"
	"sort"
)

// IndexVersion is the schema version of the index document.
const IndexVersion = "1.0"

// IndexEntry is one conversation's metadata in the index document.
// Conversation-level metadata lives here, not inside the conversation
// document itself.
type IndexEntry struct {
	ID        string   `json:"id"`
	Name      string   `json:"name,omitempty"`
	AutoTitle bool     `json:"autoTitle,omitempty"`
	CreatedAt int64    `json:"createdAt,omitempty"`
	UpdatedAt int64    `json:"updatedAt,omitempty"`
	Size      int      `json:"size,omitempty"`
	Tags      []string `json:"tags,omitempty"`
	// FileID caches the store-assigned item id of the conversation
	// document, saving a resolution round-trip.
	FileID string `json:"fileId,omitempty"`
}

// Index is the directory document listing all conversations.
type Index struct {
	Version       string       `json:"version"`
	Conversations []IndexEntry `json:"conversations"`
}

// NewIndex returns an empty index at the current version.
func NewIndex() *Index {
	return &Index{Version: IndexVersion, Conversations: []IndexEntry{}}
}

// DecodeIndex decodes an index document.
func DecodeIndex(b []byte) (*Index, error) {
	var idx Index
	if err := json.Unmarshal(b, &idx); err != nil {
		return nil, fmt.Errorf("invalid index document: %w", err)
	}
	if idx.Version == "" {
		idx.Version = IndexVersion
	}
	if idx.Conversations == nil {
		idx.Conversations = []IndexEntry{}
	}
	return &idx, nil
}

// Encode marshals the index document.
func (x *Index) Encode() ([]byte, error) {
	if x.Version == "" {
		x.Version = IndexVersion
	}
	return json.Marshal(x)
}

// Find returns the entry for id, or nil.
func (x *Index) Find(id string) *IndexEntry {
	for i := range x.Conversations {
		if x.Conversations[i].ID == id {
			return &x.Conversations[i]
		}
	}
	return nil
}

// Upsert inserts or replaces the entry with the same id.
func (x *Index) Upsert(e IndexEntry) {
	for i := range x.Conversations {
		if x.Conversations[i].ID == e.ID {
			x.Conversations[i] = e
			return
		}
	}
	x.Conversations = append(x.Conversations, e)
}

// Remove deletes the entry with the given id; returns true if removed.
func (x *Index) Remove(id string) bool {
	for i := range x.Conversations {
		if x.Conversations[i].ID == id {
			x.Conversations = append(x.Conversations[:i], x.Conversations[i+1:]...)
			return true
		}
	}
	return false
}

// MostRecent returns the entry with the latest UpdatedAt, excluding the
// given id; nil when none remain. Used when the active conversation is
// deleted and the orchestrator must pick a successor.
func (x *Index) MostRecent(excludeID string) *IndexEntry {
	var best *IndexEntry
	for i := range x.Conversations {
		e := &x.Conversations[i]
		if e.ID == excludeID {
			continue
		}
		if best == nil || e.UpdatedAt > best.UpdatedAt {
			best = e
		}
	}
	return best
}

// SortByRecency orders entries newest-first for conversation pickers.
func (x *Index) SortByRecency() {
	sort.SliceStable(x.Conversations, func(i, j int) bool {
		return x.Conversations[i].UpdatedAt > x.Conversations[j].UpdatedAt
	})
}
