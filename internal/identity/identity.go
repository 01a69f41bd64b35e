// Package identity generates the content-addressed identifiers Magellan
// uses in place of storage-order row numbers, grounded on the dual-hash
// approach (xxhash for fast equality, SHA-256 for content-addressed IDs)
// in standardbeagle-lci's internal/core/file_content_store.go.
package identity

import (
	"crypto/sha256"
	"encoding/binary"
	"encoding/hex"
	"fmt"
	"os"
	"time"

	"github.com/cespare/xxhash/v2"
)

// SpanID is the content-addressed span_id: spec.md §3/§4.5.
func SpanID(filePath string, byteStart, byteEnd uint64) string {
	h := sha256.New()
	h.Write([]byte(filePath))
	h.Write([]byte(":"))
	writeBEU64(h, byteStart)
	h.Write([]byte(":"))
	writeBEU64(h, byteEnd)
	sum := h.Sum(nil)
	return hex.EncodeToString(sum[:8])
}

// FileID is the content-addressed identifier for a File entity
// (spec.md §3: "Identity: path"). It is derived solely from the
// canonical path so the same path always yields the same id across
// runs, independent of insertion order or storage-assigned row number.
func FileID(filePath string) string {
	sum := sha256.Sum256([]byte(filePath))
	return hex.EncodeToString(sum[:8])
}

// SymbolID is the content-addressed symbol_id: spec.md §3/§4.5.
func SymbolID(language, fqn, spanID string) string {
	h := sha256.New()
	h.Write([]byte(language))
	h.Write([]byte(":"))
	h.Write([]byte(fqn))
	h.Write([]byte(":"))
	h.Write([]byte(spanID))
	sum := h.Sum(nil)
	return hex.EncodeToString(sum[:8])
}

// MatchID is the stable 64-bit hash identifying a Reference, from a
// distinct hash family than SymbolID/SpanID (spec.md §4.5 requires this
// distinction so the two ID spaces never collide by construction).
func MatchID(name, path string, byteStart uint64) string {
	buf := make([]byte, 0, len(name)+len(path)+8+2)
	buf = append(buf, name...)
	buf = append(buf, ':')
	buf = append(buf, path...)
	buf = append(buf, ':')
	var b8 [8]byte
	binary.BigEndian.PutUint64(b8[:], byteStart)
	buf = append(buf, b8[:]...)
	return fmt.Sprintf("%016x", xxhash.Sum64(buf))
}

// ContentHash is the SHA-256 of a file's bytes, used by the Reconciler to
// decide skip vs reindex (spec.md §4.7 step 4).
func ContentHash(content []byte) [32]byte {
	return sha256.Sum256(content)
}

// FastHash is a cheap 64-bit xxhash of a file's bytes, mirroring
// file_content_store.go's FastHash/ContentHash split. The Reconciler does
// not call it; its skip-vs-reindex decision compares ContentHash only.
func FastHash(content []byte) uint64 {
	return xxhash.Sum64(content)
}

// ExecutionID is "{unix-seconds-hex}-{process-id-hex}", 16 hex chars total
// per spec.md §4.5, recorded once per invocation.
func ExecutionID() string {
	return ExecutionIDAt(time.Now(), os.Getpid())
}

// ExecutionIDAt is the deterministic form of ExecutionID for testing.
func ExecutionIDAt(t time.Time, pid int) string {
	return fmt.Sprintf("%08x-%08x", uint32(t.Unix()), uint32(pid))
}

func writeBEU64(w interface{ Write([]byte) (int, error) }, v uint64) {
	var b8 [8]byte
	binary.BigEndian.PutUint64(b8[:], v)
	w.Write(b8[:])
}
