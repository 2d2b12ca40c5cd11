package event

import (
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"fmt"

	"github.com/gowebpki/jcs"
)

// ContentHash computes the deterministic sha256 digest of the event over
// its RFC 8785 canonical JSON form. The logical clock is excluded: it is
// local bookkeeping, not content, and the same event must hash identically
// on every device that holds it.
func ContentHash(e *Event) (string, error) {
	stripped := e.Clone()
	stripped.LogicalClock = 0

	raw, err := json.Marshal(stripped)
	if err != nil {
		return "", fmt.Errorf("event: marshal for hashing: %w", err)
	}
	canonical, err := jcs.Transform(raw)
	if err != nil {
		return "", fmt.Errorf("event: canonicalize for hashing: %w", err)
	}
	sum := sha256.Sum256(canonical)
	return "sha256:" + hex.EncodeToString(sum[:]), nil
}
