package localstate

import (
	"bytes"
	"encoding/json"
	"fmt"

	"chatsync/pkg/logger"
	"chatsync/pkg/models"
	"chatsync/pkg/storage"
)

// NormalizeStoredConversation upgrades the persisted conversation value
// to the canonical bare-array encoding. Older installs stored the full
// versioned document; decoding tolerates both, but keeping one at-rest
// shape makes snapshot comparison byte-stable across restarts.
func NormalizeStoredConversation(s storage.Store) error {
	b, err := s.Read(KeyConversation)
	if err != nil {
		if storage.IsNotFound(err) {
			return nil
		}
		return fmt.Errorf("read conversation for migration: %w", err)
	}
	doc, err := models.DecodeConversationDoc(b)
	if err != nil {
		// never destroy data we cannot parse; leave it for Load to surface
		logger.Warn("migration_conversation_unparseable", "error", err)
		return nil
	}
	nb, err := json.Marshal(doc.Conversation)
	if err != nil {
		return err
	}
	if bytes.Equal(nb, b) {
		return nil
	}
	if err := s.Write(KeyConversation, nb); err != nil {
		return fmt.Errorf("rewrite conversation: %w", err)
	}
	logger.Info("migration_conversation_normalized", "bytes", len(nb))
	return nil
}
