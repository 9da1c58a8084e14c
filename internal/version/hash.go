// Package version implements spec.md §4.J/§4.K: the content-addressed
// triple hash over data, code, and environment, and the append-only
// version store built on top of it.
package version

import (
	"crypto/sha256"
	"encoding/hex"
	"encoding/binary"
	"fmt"

	"github.com/dunimd/zi/internal/record"
)

// Hash32 is a 32-byte cryptographic digest.
type Hash32 [32]byte

func (h Hash32) Hex() string { return hex.EncodeToString(h[:]) }

// TripleHash is the triple of digests identifying a reproducible run.
type TripleHash struct {
	Data Hash32
	Code Hash32
	Env  Hash32
}

// Equal reports whether two triples match on all three components.
func (t TripleHash) Equal(other TripleHash) bool {
	return t.Data == other.Data && t.Code == other.Code && t.Env == other.Env
}

// String renders the triple as comma-separated, prefixed hex components.
func (t TripleHash) String() string {
	return fmt.Sprintf("data:%s,code:%s,env:%s", t.Data.Hex(), t.Code.Hex(), t.Env.Hex())
}

// CompactString concatenates the three hex components with no separators or
// labels, used as the version's stored digest field.
func (t TripleHash) CompactString() string {
	return t.Data.Hex() + t.Code.Hex() + t.Env.Hex()
}

// ParseTripleHashHex parses a 192-character compact hex string (64 hex
// chars per component) back into a TripleHash.
func ParseTripleHashHex(s string) (TripleHash, error) {
	if len(s) != 192 {
		return TripleHash{}, fmt.Errorf("triple hash hex must be 192 characters, got %d", len(s))
	}
	data, err := decodeHash32(s[0:64])
	if err != nil {
		return TripleHash{}, err
	}
	code, err := decodeHash32(s[64:128])
	if err != nil {
		return TripleHash{}, err
	}
	env, err := decodeHash32(s[128:192])
	if err != nil {
		return TripleHash{}, err
	}
	return TripleHash{Data: data, Code: code, Env: env}, nil
}

func decodeHash32(hexStr string) (Hash32, error) {
	var out Hash32
	b, err := hex.DecodeString(hexStr)
	if err != nil {
		return out, err
	}
	copy(out[:], b)
	return out, nil
}

// ComputeDataHash folds every record into a single digest: per record, the
// id (if present), the canonical-JSON payload, and the canonical-JSON
// metadata (if present), each newline-delimited, with a "---\n" separator
// between records.
func ComputeDataHash(batch record.Batch) (Hash32, error) {
	h := sha256.New()
	for _, r := range batch {
		if r.ID != nil {
			h.Write([]byte("id:" + *r.ID))
		}
		h.Write([]byte("\n"))

		payloadJSON, err := record.CanonicalJSON(r.Payload)
		if err != nil {
			return Hash32{}, err
		}
		h.Write([]byte("payload:"))
		h.Write(payloadJSON)
		h.Write([]byte("\n"))

		if r.Metadata != nil {
			metaJSON, err := record.CanonicalJSON(r.Metadata)
			if err != nil {
				return Hash32{}, err
			}
			h.Write([]byte("metadata:"))
			h.Write(metaJSON)
			h.Write([]byte("\n"))
		}
		h.Write([]byte("---\n"))
	}
	var out Hash32
	copy(out[:], h.Sum(nil))
	return out, nil
}

// ComputeCodeHash folds the pipeline's operator names, in execution order,
// into a single digest — two pipelines with the same operators in the same
// order hash identically regardless of their configuration values.
func ComputeCodeHash(operatorNames []string) Hash32 {
	h := sha256.New()
	for _, name := range operatorNames {
		h.Write([]byte("operator:" + name + "\n"))
	}
	var out Hash32
	copy(out[:], h.Sum(nil))
	return out
}

// ComputeEnvHash folds the engine version, Go runtime version, and random
// seed used for a run into a single digest.
func ComputeEnvHash(engineVersion, languageVersion string, randomSeed uint64) Hash32 {
	h := sha256.New()
	h.Write([]byte("zi_version=" + engineVersion + "\n"))
	h.Write([]byte("language_version=" + languageVersion + "\n"))
	h.Write([]byte("random_seed="))
	var seedBytes [8]byte
	binary.LittleEndian.PutUint64(seedBytes[:], randomSeed)
	h.Write(seedBytes[:])
	h.Write([]byte("\n"))
	var out Hash32
	copy(out[:], h.Sum(nil))
	return out
}
