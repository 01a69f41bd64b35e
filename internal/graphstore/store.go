// Package graphstore defines the polymorphic Graph Store contract
// (spec.md §4.6, component C6) and its two interchangeable backends:
// sqlitestore (relational) and nativestore (adjacency map + KV, no
// external storage engine). Callers — the Reconciler and Cross-file
// Wirer — depend only on the Store interface, never on a backend type.
package graphstore

import (
	"fmt"

	"github.com/oldnordic/magellan-sub003/internal/magerr"
)

// SchemaVersion is the graph schema version this build writes and
// expects. A stored database with a different version fails the
// compatibility gate in Open (spec.md §4.6).
const SchemaVersion = 1

// Direction selects which edge endpoint Neighbors traverses from.
type Direction uint8

const (
	DirectionOut Direction = iota
	DirectionIn
	DirectionBoth
)

// Store is the contract both backends implement, per spec.md §4.6.
// entity_id is monotonic and backend-assigned; it is never
// content-addressed and never derived from iteration order once
// assigned.
type Store interface {
	// InsertNode creates a new entity and returns its monotonic id.
	// name and filePath may be empty; dataJSON may be nil.
	InsertNode(kind, name, filePath string, dataJSON []byte) (int64, error)

	// InsertEdge creates a directed edge from src to dst with label.
	InsertEdge(src, dst int64, label string) error

	// DeleteEntity removes id and every edge touching it.
	DeleteEntity(id int64) error

	// Neighbors returns the entity ids reachable from id in direction,
	// optionally filtered to a single edge label (empty = any label).
	Neighbors(id int64, direction Direction, edgeLabel string) ([]int64, error)

	// EntityIDs returns every entity id, optionally filtered to a
	// normalized kind tag (empty = all kinds).
	EntityIDs(kind string) ([]int64, error)

	// GetNode returns the stored attributes for id. This is the one
	// read primitive spec.md §4.6 does not enumerate alongside
	// insert_node/delete_entity/neighbors/entity_ids; it reads back the
	// attributes of a fact inserted earlier. The Cross-file Wirer (C10)
	// does not call it: it works from the in-memory entries the
	// Reconciler hands it. ok is false when id does not exist.
	GetNode(id int64) (n Node, ok bool, err error)

	// AddLabel tags id with label. Labels are applied at insert time
	// for language and normalized-kind tags (spec.md §4.6) but may also
	// be added later (e.g. collision markers).
	AddLabel(id int64, label string) error

	// EntitiesByLabel returns every entity id tagged with label.
	EntitiesByLabel(label string) ([]int64, error)

	KVGet(key string) ([]byte, bool, error)
	KVPut(key string, value []byte) error
	KVDelete(key string) error
	KVPrefixScan(prefix string) (map[string][]byte, error)

	// InsertCodeChunk records a chunk's backing source bytes.
	InsertCodeChunk(path string, byteStart, byteEnd uint64, source []byte) error

	// DeleteFileFacts implements spec.md §4.6's deletion discipline:
	// every fact whose file equals path, the File node among them, is
	// removed in ascending-id order (the File node is not held back to
	// go last), then any in-memory cache entry for path. Idempotent — calling it again on an already-clean path
	// is a no-op, not an error.
	DeleteFileFacts(path string) error

	// AppendExecutionLog records one scan/watch invocation's summary
	// row (spec.md §4.6's execution_log table).
	AppendExecutionLog(entry ExecutionLogEntry) error

	Close() error
}

// Node is the full set of attributes InsertNode recorded for one entity.
type Node struct {
	ID       int64
	Kind     string
	Name     string
	FilePath string
	DataJSON []byte
}

// ExecutionLogEntry mirrors spec.md §4.6's execution_log row.
type ExecutionLogEntry struct {
	ExecutionID      string
	ToolVersion      string
	ArgsJSON         string
	Root             string
	DBPath           string
	StartedAt        int64
	FinishedAt       int64
	DurationMs       int64
	Outcome          string
	ErrorMessage     string
	FilesIndexed     int
	SymbolsIndexed   int
	ReferencesIndexed int
}

// ErrSchemaMismatch is raised during the read-only preflight phase of
// Open when an existing store's graph_schema_version does not match
// SchemaVersion. The file is never mutated when this is returned
// (spec.md §4.6's "Errors raised in (1) never alter the file").
func ErrSchemaMismatch(dbPath string, found, expected int) error {
	msg := fmt.Sprintf("graph schema version mismatch: found %d, expected %d", found, expected)
	return magerr.New(magerr.CodeDBCompatVersionMismatch, msg).WithPath(dbPath)
}
