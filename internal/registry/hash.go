package registry

import (
	"crypto/sha256"
	"fmt"

	"github.com/dunimd/zi/internal/record"
)

// ContentHash hashes a canonical-JSON encoding of v and returns it as a
// "sha256:<hex>" string, the same deterministic-digest idiom the reference
// engine's prompt registry uses for its template content hash.
func ContentHash(v any) (string, error) {
	payload, err := record.CanonicalJSON(v)
	if err != nil {
		return "", fmt.Errorf("hash content: %w", err)
	}
	sum := sha256.Sum256(payload)
	return fmt.Sprintf("sha256:%x", sum[:]), nil
}
