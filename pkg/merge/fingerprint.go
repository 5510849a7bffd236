package merge

import (
	"crypto/sha256"
	"encoding/hex"
	"fmt"

	"chatsync/pkg/models"
)

// fingerprintLen is how many leading content characters participate in
// the fingerprint. Enough to separate real content, short enough that a
// trailing edit does not defeat matching of an otherwise identical part.
const fingerprintLen = 32

// Fingerprint derives a content identity for a part that lacks a uuid on
// one or both sides: creation timestamp + coarse content kind + a hash of
// the leading content. Two devices that rendered the same content before
// either synced produce the same fingerprint even though each generated
// its own uuid.
func Fingerprint(p *models.Part) string {
	content := p.Content()
	if len(content) > fingerprintLen {
		content = content[:fingerprintLen]
	}
	sum := sha256.Sum256([]byte(content))
	return fmt.Sprintf("%d|%s|%s", p.Timestamp, p.Kind(), hex.EncodeToString(sum[:8]))
}
