package models

import (
	"bytes"
	"encoding/json"
	"fmt"
)

// DocVersion marks the export format that carries uploaded_files. Older
// exports are a bare message array with no version field at all; those
// are upgraded to this shape immediately on decode and never branched-on
// downstream.
const DocVersion = "1.2"

// DocMetadata carries document-level times (epoch ms). UpdatedAt is
// content-derived (see ContentUpdatedAt); LastSyncedAt records when the
// document was last pushed and is the only wall-clock field.
type DocMetadata struct {
	CreatedAt    int64 `json:"createdAt,omitempty"`
	UpdatedAt    int64 `json:"updatedAt,omitempty"`
	LastSyncedAt int64 `json:"lastSyncedAt,omitempty"`
}

// ConversationDoc is the remote per-conversation document.
type ConversationDoc struct {
	Version      string            `json:"version,omitempty"`
	Conversation []Message         `json:"conversation"`
	Summaries    []json.RawMessage `json:"conversation_summaries,omitempty"`
	// UploadedFiles maps file names to opaque upload descriptors the UI
	// attached to this conversation. Preserved verbatim across sync.
	UploadedFiles map[string]json.RawMessage `json:"uploaded_files,omitempty"`
	ID            string                     `json:"id,omitempty"`
	Metadata      DocMetadata                `json:"metadata,omitempty"`
}

// DecodeConversationDoc decodes b as either the current versioned document
// or the legacy format where the entire body is the message array. The
// legacy shape is normalized to the current one here; callers never see it.
func DecodeConversationDoc(b []byte) (*ConversationDoc, error) {
	trimmed := bytes.TrimLeft(b, " \t\r\n")
	if len(trimmed) == 0 {
		return nil, fmt.Errorf("empty conversation document")
	}
	if trimmed[0] == '[' {
		var msgs []Message
		if err := json.Unmarshal(trimmed, &msgs); err != nil {
			return nil, fmt.Errorf("invalid legacy conversation document: %w", err)
		}
		return &ConversationDoc{Version: DocVersion, Conversation: msgs}, nil
	}
	var doc ConversationDoc
	if err := json.Unmarshal(trimmed, &doc); err != nil {
		return nil, fmt.Errorf("invalid conversation document: %w", err)
	}
	if doc.Version == "" {
		doc.Version = DocVersion
	}
	if doc.Conversation == nil {
		doc.Conversation = []Message{}
	}
	return &doc, nil
}

// Encode marshals the document in the current versioned shape.
func (d *ConversationDoc) Encode() ([]byte, error) {
	if d.Version == "" {
		d.Version = DocVersion
	}
	return json.Marshal(d)
}
