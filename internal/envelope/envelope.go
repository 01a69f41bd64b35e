// Package envelope implements the response envelope spec.md §6 describes
// for machine-readable output: a fixed schema_version/execution_id/partial
// wrapper around a core-supplied data payload, with deterministic key
// ordering inside data.
//
// This is an external-collaborator contract, not core logic (spec.md §1
// explicitly puts "help/version text, human-readable pretty-printing" out
// of scope for the core) — but cmd/magellan, as the one concrete CLI this
// module ships, is exactly the kind of external wrapper spec.md §6
// describes, so it owns this package the way standardbeagle-lci's
// cmd/lci/main.go owns its own output formatting rather than pushing it
// into internal/indexing.
package envelope

import (
	"bytes"
	"encoding/json"
)

// SchemaVersion is the envelope's own schema version (spec.md §6),
// distinct from graphstore.SchemaVersion which versions the on-disk graph.
const SchemaVersion = "1.0.0"

// Envelope is the exact wire shape from spec.md §6.
type Envelope struct {
	SchemaVersion string          `json:"schema_version"`
	ExecutionID   string          `json:"execution_id"`
	Partial       bool            `json:"partial"`
	Data          json.RawMessage `json:"data"`
}

// New marshals data (a struct or map — encoding/json already serializes
// struct fields in declaration order and map keys in sorted order, so
// "deterministic order" falls out of the standard library without extra
// bookkeeping) and wraps it per spec.md §6. partial must be true whenever
// diagnostics were recorded for skipped files during the run.
func New(executionID string, partial bool, data interface{}) (*Envelope, error) {
	raw, err := json.Marshal(data)
	if err != nil {
		return nil, err
	}
	return &Envelope{
		SchemaVersion: SchemaVersion,
		ExecutionID:   executionID,
		Partial:       partial,
		Data:          raw,
	}, nil
}

// Format selects how Marshal renders the envelope. Both render the exact
// same key order; Pretty only adds indentation, per SPEC_FULL.md's
// `--format` flag ("purely a CLI presentation detail... same deterministic
// key order either way").
type Format int

const (
	Compact Format = iota
	Pretty
)

// Marshal renders e in the requested format.
func (e *Envelope) Marshal(format Format) ([]byte, error) {
	if format == Pretty {
		var buf bytes.Buffer
		enc := json.NewEncoder(&buf)
		enc.SetIndent("", "  ")
		enc.SetEscapeHTML(false)
		if err := enc.Encode(e); err != nil {
			return nil, err
		}
		return bytes.TrimRight(buf.Bytes(), "\n"), nil
	}

	var buf bytes.Buffer
	enc := json.NewEncoder(&buf)
	enc.SetEscapeHTML(false)
	if err := enc.Encode(e); err != nil {
		return nil, err
	}
	return bytes.TrimRight(buf.Bytes(), "\n"), nil
}

// DiagnosticRecord is the wire shape of diagnostics.Record from spec.md §6,
// kept distinct from diagnostics.Record itself so the diagnostics package
// stays free of JSON-tag concerns that are purely an output-format detail.
type DiagnosticRecord struct {
	Path    string `json:"path"`
	Stage   string `json:"stage"`
	Reason  string `json:"reason"`
	Message string `json:"message"`
}
