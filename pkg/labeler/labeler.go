// Package labeler assigns deterministic identifiers and positional metadata
// to document fragments.
package labeler

import (
	"crypto/sha256"
	"encoding/hex"
	"fmt"

	"github.com/tkhr/ragdex/internal/models"
)

// HashString returns the hex SHA-256 of the UTF-8 bytes of s. Used so that
// non-ASCII document names still yield ASCII-safe vector ids.
func HashString(s string) string {
	sum := sha256.Sum256([]byte(s))
	return hex.EncodeToString(sum[:])
}

// Label attaches {name, chunk_id, timestamp} metadata to each fragment and
// derives its id from the fragment position and source name. The returned id
// list is index-aligned with fragments. Ids are a pure function of
// (position, sourceName): re-ingesting the same source overwrites rather
// than duplicates.
func Label(fragments []models.Fragment, sourceName string, timestamp int64) ([]string, []models.Fragment) {
	ids := make([]string, len(fragments))
	labeled := make([]models.Fragment, len(fragments))
	for i, frag := range fragments {
		labeled[i] = models.Fragment{
			Content: frag.Content,
			Metadata: map[string]interface{}{
				"name":      sourceName,
				"chunk_id":  i,
				"timestamp": timestamp,
			},
			StartOffset: frag.StartOffset,
		}
		ids[i] = HashString(fmt.Sprintf("%d_%s", i, sourceName))
	}
	return ids, labeled
}
