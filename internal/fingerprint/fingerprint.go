// Package fingerprint computes the content-addressed identity used to detect
// unchanged, moved, and orphaned chunks across ingestion runs.
package fingerprint

import (
	"crypto/sha256"
	"encoding/hex"
)

// Checksum returns the lowercase hex SHA-256 digest of content's UTF-8 bytes.
// No normalization is applied: whitespace-only edits produce a distinct checksum.
// This is the sole identity used by the reconciler to detect unchanged content.
func Checksum(content string) string {
	sum := sha256.Sum256([]byte(content))
	return hex.EncodeToString(sum[:])
}

// SourceType is the persisted chunk kind. Legacy rows may carry the aliased
// values (mdx, typescript, python, rust); readers normalize them to Doc/Code.
type SourceType string

const (
	SourceDoc  SourceType = "doc"
	SourceCode SourceType = "code"

	legacyMDX        SourceType = "mdx"
	legacyTypeScript SourceType = "typescript"
	legacyPython     SourceType = "python"
	legacyRust       SourceType = "rust"
)

// Normalize maps a legacy alias onto its canonical doc/code value. Unknown
// values pass through unchanged so callers can detect a genuine schema error.
func Normalize(t SourceType) SourceType {
	switch t {
	case legacyMDX:
		return SourceDoc
	case legacyTypeScript, legacyPython, legacyRust:
		return SourceCode
	default:
		return t
	}
}

// Equivalent reports whether two source types name the same canonical kind
// once legacy aliases are normalized. Two values that normalize equal but are
// not byte-identical (e.g. "mdx" vs "doc") are alias-equivalent: the reconciler
// treats this as a metadata-only move rather than an identity change.
func Equivalent(a, b SourceType) bool {
	return Normalize(a) == Normalize(b)
}

// IdenticalLiteral reports whether a and b are the exact same stored value,
// with no alias normalization. Used to decide whether reclassifying a row as
// "unchanged" also requires a metadata-only update of its source_type column.
func IdenticalLiteral(a, b SourceType) bool {
	return a == b
}

// LocationKey is the reconciler's per-target identity: filepath, chunk id, and
// normalized source type. Two desired chunks that collide on LocationKey are a
// configuration bug upstream (duplicate chunk numbering within one file).
type LocationKey struct {
	FilePath   string
	ChunkID    int
	SourceType SourceType
}

// Key builds the LocationKey used by the reconciler's deterministic
// target-state iteration: filepath, chunkId, and normalized source type.
func Key(filePath string, chunkID int, sourceType SourceType) LocationKey {
	return LocationKey{FilePath: filePath, ChunkID: chunkID, SourceType: Normalize(sourceType)}
}

// StrandedPrefix marks rows left behind by a failed two-phase move.
const StrandedPrefix = "__moving__"

// IsStranded reports whether filepath carries the reserved stranded prefix.
func IsStranded(filePath string) bool {
	return len(filePath) >= len(StrandedPrefix) && filePath[:len(StrandedPrefix)] == StrandedPrefix
}
