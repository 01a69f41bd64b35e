// Package nativestore implements graphstore.Store as an in-process
// adjacency map paired with a key-value map and an append-only binary
// log for durability (spec.md §4.6's native backend). Grounded on
// standardbeagle-lci's internal/core/file_content_store.go: an
// atomic.Value holding an immutable snapshot, a single writer mutating
// under a mutex, and lock-free readers that load the current snapshot
// once per call. Unlike the teacher's in-memory-only store, every
// mutation here is additionally appended to an on-disk log and fsynced
// before the snapshot swap, so a crash mid-write never leaves the
// on-disk log ahead of a published snapshot.
package nativestore

import (
	"bufio"
	"encoding/binary"
	"encoding/json"
	"fmt"
	"io"
	"os"
	"sort"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"github.com/oldnordic/magellan-sub003/internal/graphstore"
	"github.com/oldnordic/magellan-sub003/internal/magerr"
)

type node struct {
	ID       int64
	Kind     string
	Name     string
	FilePath string
	DataJSON []byte
}

type edge struct {
	Src, Dst int64
	Label    string
}

// snapshot is the immutable, copy-on-write state readers load via
// atomic.Value. Every mutation builds a new snapshot from the prior
// one plus the delta, then swaps it in.
type snapshot struct {
	nodes     map[int64]node
	outEdges  map[int64][]edge
	inEdges   map[int64][]edge
	labels    map[int64]map[string]bool
	byLabel   map[string]map[int64]bool
	kv        map[string][]byte
	nextID    int64
}

func emptySnapshot() *snapshot {
	return &snapshot{
		nodes:    make(map[int64]node),
		outEdges: make(map[int64][]edge),
		inEdges:  make(map[int64][]edge),
		labels:   make(map[int64]map[string]bool),
		byLabel:  make(map[string]map[int64]bool),
		kv:       make(map[string][]byte),
		nextID:   1,
	}
}

// clone makes a shallow-structural copy sufficient for copy-on-write:
// the map headers are copied but entries are shared until overwritten,
// since the mutator always replaces an entry wholesale rather than
// mutating it in place.
func (s *snapshot) clone() *snapshot {
	out := &snapshot{
		nodes:    make(map[int64]node, len(s.nodes)),
		outEdges: make(map[int64][]edge, len(s.outEdges)),
		inEdges:  make(map[int64][]edge, len(s.inEdges)),
		labels:   make(map[int64]map[string]bool, len(s.labels)),
		byLabel:  make(map[string]map[int64]bool, len(s.byLabel)),
		kv:       make(map[string][]byte, len(s.kv)),
		nextID:   s.nextID,
	}
	for k, v := range s.nodes {
		out.nodes[k] = v
	}
	for k, v := range s.outEdges {
		out.outEdges[k] = v
	}
	for k, v := range s.inEdges {
		out.inEdges[k] = v
	}
	for k, v := range s.labels {
		out.labels[k] = v
	}
	for k, v := range s.byLabel {
		out.byLabel[k] = v
	}
	for k, v := range s.kv {
		out.kv[k] = v
	}
	return out
}

// Store is the native, log-backed graphstore.Store implementation.
type Store struct {
	mu      sync.Mutex // serializes writers; readers never block on it
	current atomic.Value
	log     *os.File
	path    string
	chunks  map[string][]chunk
}

var _ graphstore.Store = (*Store)(nil)

type chunk struct {
	ByteStart, ByteEnd uint64
	Source             []byte
}

// Open implements spec.md §4.6's three-phase compatibility gate against
// the append-only log at path, mirroring sqlitestore.Open's shape: (1) a
// read-only preflight that checks an existing log's version header
// without writing anything, failing fast on a mismatch; (2) for a brand
// new (empty) log, writing the version header record that phase (1) will
// check on every subsequent open; (3) replaying the log to rebuild the
// in-memory snapshot. A version mismatch in phase (1) returns before any
// write, so the log file is left byte-identical to how Open found it.
func Open(path string) (*Store, error) {
	f, err := os.OpenFile(path, os.O_CREATE|os.O_RDWR, 0o644)
	if err != nil {
		return nil, magerr.Wrap(magerr.CodeDBCompatUnreadable, "open native store log", err).WithPath(path)
	}

	s := &Store{log: f, path: path, chunks: make(map[string][]chunk)}

	info, err := f.Stat()
	if err != nil {
		f.Close()
		return nil, magerr.Wrap(magerr.CodeDBCompatUnreadable, "stat native store log", err).WithPath(path)
	}

	if info.Size() == 0 {
		if err := s.writeMetaHeader(); err != nil {
			f.Close()
			return nil, err
		}
	} else if err := s.preflightSchemaVersion(); err != nil {
		f.Close()
		return nil, err
	}

	snap, err := s.replay()
	if err != nil {
		f.Close()
		return nil, err
	}
	s.current.Store(snap)
	return s, nil
}

// preflightSchemaVersion implements phase (1): the log's very first
// record must be a version header; if its graph_schema_version does not
// equal graphstore.SchemaVersion, Open fails with a DB_COMPAT error
// before anything else is read or written (spec.md §4.6: "Errors raised
// in (1) never alter the file").
func (s *Store) preflightSchemaVersion() error {
	if _, err := s.log.Seek(0, io.SeekStart); err != nil {
		return magerr.Wrap(magerr.CodeDBCompatUnreadable, "seek native store log", err).WithPath(s.path)
	}
	rec, err := readRecord(bufio.NewReader(s.log))
	if err == io.EOF {
		return magerr.New(magerr.CodeDBCompatCorrupt, "native store log missing version header").WithPath(s.path)
	}
	if err != nil {
		return magerr.Wrap(magerr.CodeDBCompatCorrupt, "read native store version header", err).WithPath(s.path)
	}
	if rec.Kind != recMeta || rec.Meta == nil {
		return magerr.New(magerr.CodeDBCompatCorrupt, "native store log missing version header").WithPath(s.path)
	}
	if rec.Meta.GraphSchemaVersion != graphstore.SchemaVersion {
		return graphstore.ErrSchemaMismatch(s.path, rec.Meta.GraphSchemaVersion, graphstore.SchemaVersion)
	}
	return nil
}

// writeMetaHeader appends the version header record a brand new log
// needs, mirroring sqlitestore's magellan_meta row (phase 2/3 for a new
// database: there is nothing to preflight yet, so the header is written
// unconditionally).
func (s *Store) writeMetaHeader() error {
	meta := &metaRecord{
		MagellanSchemaVersion: graphstore.SchemaVersion,
		GraphSchemaVersion:    graphstore.SchemaVersion,
		CreatedAt:             time.Now().Unix(),
	}
	return s.append(logRecord{Kind: recMeta, Meta: meta})
}

func (s *Store) snap() *snapshot {
	return s.current.Load().(*snapshot)
}

// record kinds in the append-only log. recMeta must be the very first
// record in any log Open writes or reads (spec.md §4.6's compatibility
// gate, mirroring the sqlite backend's magellan_meta row).
const (
	recMeta         = byte(0)
	recInsertNode   = byte(1)
	recInsertEdge   = byte(2)
	recDeleteNode   = byte(3)
	recAddLabel     = byte(4)
	recKVPut        = byte(5)
	recKVDelete     = byte(6)
	recChunk        = byte(7)
	recDeleteChunks = byte(8)
)

type logRecord struct {
	Kind       byte
	Meta       *metaRecord
	Node       *node
	Edge       *edge
	DeleteID   int64
	Label      *labelRecord
	KVKey      string
	KVValue    []byte
	Chunk      *chunkRecord
	ChunksPath string
}

// metaRecord mirrors sqlitestore's magellan_meta row: the pair of
// schema versions spec.md §4.6 names plus a creation timestamp.
type metaRecord struct {
	MagellanSchemaVersion int
	GraphSchemaVersion    int
	CreatedAt             int64
}

type labelRecord struct {
	ID    int64
	Label string
}

type chunkRecord struct {
	Path      string
	ByteStart uint64
	ByteEnd   uint64
	Source    []byte
}

func (s *Store) replay() (*snapshot, error) {
	snap := emptySnapshot()
	if _, err := s.log.Seek(0, io.SeekStart); err != nil {
		return nil, magerr.Wrap(magerr.CodeDBCompatCorrupt, "seek native store log", err).WithPath(s.path)
	}
	r := bufio.NewReader(s.log)
	for {
		rec, err := readRecord(r)
		if err == io.EOF {
			break
		}
		if err != nil {
			return nil, magerr.Wrap(magerr.CodeDBCompatCorrupt, "replay native store log", err).WithPath(s.path)
		}
		applyRecord(snap, rec, s.chunks)
	}
	if _, err := s.log.Seek(0, io.SeekEnd); err != nil {
		return nil, magerr.Wrap(magerr.CodeDBCompatCorrupt, "seek to log end", err).WithPath(s.path)
	}
	return snap, nil
}

func applyRecord(snap *snapshot, rec logRecord, chunks map[string][]chunk) {
	switch rec.Kind {
	case recMeta:
		// Version header, already validated by preflightSchemaVersion
		// before replay runs; carries no graph/KV mutation of its own.
	case recInsertNode:
		snap.nodes[rec.Node.ID] = *rec.Node
		if rec.Node.ID >= snap.nextID {
			snap.nextID = rec.Node.ID + 1
		}
	case recInsertEdge:
		snap.outEdges[rec.Edge.Src] = append(snap.outEdges[rec.Edge.Src], *rec.Edge)
		snap.inEdges[rec.Edge.Dst] = append(snap.inEdges[rec.Edge.Dst], *rec.Edge)
	case recDeleteNode:
		deleteNodeFromSnapshot(snap, rec.DeleteID)
	case recAddLabel:
		addLabelToSnapshot(snap, rec.Label.ID, rec.Label.Label)
	case recKVPut:
		snap.kv[rec.KVKey] = rec.KVValue
	case recKVDelete:
		delete(snap.kv, rec.KVKey)
	case recChunk:
		chunks[rec.Chunk.Path] = append(chunks[rec.Chunk.Path], chunk{
			ByteStart: rec.Chunk.ByteStart, ByteEnd: rec.Chunk.ByteEnd, Source: rec.Chunk.Source,
		})
		snap.kv[chunkKVKey(rec.Chunk.Path, rec.Chunk.ByteStart, rec.Chunk.ByteEnd)] = rec.Chunk.Source
	case recDeleteChunks:
		for _, c := range chunks[rec.ChunksPath] {
			delete(snap.kv, chunkKVKey(rec.ChunksPath, c.ByteStart, c.ByteEnd))
		}
		delete(chunks, rec.ChunksPath)
	}
}

// chunkKVKey is the KV mirror key spec.md §6 fixes for the native
// backend: chunk:{escaped_path}:{byte_start}:{byte_end}, with colons in
// the path escaped as "::" so the key remains unambiguous.
func chunkKVKey(path string, byteStart, byteEnd uint64) string {
	escaped := strings.ReplaceAll(path, ":", "::")
	return fmt.Sprintf("chunk:%s:%d:%d", escaped, byteStart, byteEnd)
}

// deleteNodeFromSnapshot mutates snap in place. Callers must only pass
// a freshly cloned snapshot that has not yet been published via
// current.Store, since this replaces nested maps wholesale (never
// mutates a map that an older, still-published snapshot might share).
func deleteNodeFromSnapshot(snap *snapshot, id int64) {
	delete(snap.nodes, id)
	for _, e := range snap.outEdges[id] {
		snap.inEdges[e.Dst] = removeEdge(snap.inEdges[e.Dst], e)
	}
	for _, e := range snap.inEdges[id] {
		snap.outEdges[e.Src] = removeEdge(snap.outEdges[e.Src], e)
	}
	delete(snap.outEdges, id)
	delete(snap.inEdges, id)
	for l := range snap.labels[id] {
		snap.byLabel[l] = copyIDSetWithout(snap.byLabel[l], id)
	}
	delete(snap.labels, id)
}

func copyIDSetWithout(set map[int64]bool, id int64) map[int64]bool {
	out := make(map[int64]bool, len(set))
	for k, v := range set {
		if k != id {
			out[k] = v
		}
	}
	return out
}

// removeEdge returns a new slice omitting target. It never mutates
// edges in place: edges may still be shared with an older snapshot
// that a concurrent lock-free reader holds a reference to.
func removeEdge(edges []edge, target edge) []edge {
	out := make([]edge, 0, len(edges))
	for _, e := range edges {
		if e != target {
			out = append(out, e)
		}
	}
	return out
}

// addLabelToSnapshot mutates snap in place under the same contract as
// deleteNodeFromSnapshot: snap must not yet be published. Per-entity
// and per-label sets are replaced wholesale rather than mutated, so an
// older published snapshot's sets are never touched.
func addLabelToSnapshot(snap *snapshot, id int64, label string) {
	labels := make(map[string]bool, len(snap.labels[id])+1)
	for k, v := range snap.labels[id] {
		labels[k] = v
	}
	labels[label] = true
	snap.labels[id] = labels

	byLabel := make(map[int64]bool, len(snap.byLabel[label])+1)
	for k, v := range snap.byLabel[label] {
		byLabel[k] = v
	}
	byLabel[id] = true
	snap.byLabel[label] = byLabel
}

// append writes rec to the log and fsyncs before returning, so the
// caller's subsequent snapshot swap always follows durable state.
func (s *Store) append(rec logRecord) error {
	buf, err := encodeRecord(rec)
	if err != nil {
		return magerr.Wrap(magerr.CodeStoreWriteFailure, "encode native store record", err)
	}
	if _, err := s.log.Write(buf); err != nil {
		return magerr.Wrap(magerr.CodeStoreWriteFailure, "write native store record", err)
	}
	if err := s.log.Sync(); err != nil {
		return magerr.Wrap(magerr.CodeStoreWriteFailure, "fsync native store log", err)
	}
	return nil
}

func encodeRecord(rec logRecord) ([]byte, error) {
	payload, err := json.Marshal(rec)
	if err != nil {
		return nil, err
	}
	header := make([]byte, 5)
	header[0] = rec.Kind
	binary.BigEndian.PutUint32(header[1:], uint32(len(payload)))
	return append(header, payload...), nil
}

func readRecord(r *bufio.Reader) (logRecord, error) {
	header := make([]byte, 5)
	if _, err := io.ReadFull(r, header); err != nil {
		return logRecord{}, err
	}
	size := binary.BigEndian.Uint32(header[1:])
	payload := make([]byte, size)
	if _, err := io.ReadFull(r, payload); err != nil {
		return logRecord{}, err
	}
	var rec logRecord
	if err := json.Unmarshal(payload, &rec); err != nil {
		return logRecord{}, err
	}
	rec.Kind = header[0]
	return rec, nil
}

func (s *Store) InsertNode(kind, name, filePath string, dataJSON []byte) (int64, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	cur := s.snap()
	id := cur.nextID
	n := node{ID: id, Kind: kind, Name: name, FilePath: filePath, DataJSON: dataJSON}

	if err := s.append(logRecord{Kind: recInsertNode, Node: &n}); err != nil {
		return 0, err
	}
	labelRec := logRecord{Kind: recAddLabel, Label: &labelRecord{ID: id, Label: kind}}
	if err := s.append(labelRec); err != nil {
		return 0, err
	}

	next := cur.clone()
	next.nodes[id] = n
	next.nextID = id + 1
	addLabelToSnapshot(next, id, kind)
	s.current.Store(next)
	return id, nil
}

func (s *Store) InsertEdge(src, dst int64, label string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	e := edge{Src: src, Dst: dst, Label: label}
	if err := s.append(logRecord{Kind: recInsertEdge, Edge: &e}); err != nil {
		return err
	}
	next := s.snap().clone()
	next.outEdges[src] = append(append([]edge{}, next.outEdges[src]...), e)
	next.inEdges[dst] = append(append([]edge{}, next.inEdges[dst]...), e)
	s.current.Store(next)
	return nil
}

func (s *Store) DeleteEntity(id int64) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.deleteEntityLocked(id)
}

func (s *Store) deleteEntityLocked(id int64) error {
	if err := s.append(logRecord{Kind: recDeleteNode, DeleteID: id}); err != nil {
		return err
	}
	next := s.snap().clone()
	deleteNodeFromSnapshot(next, id)
	s.current.Store(next)
	return nil
}

func (s *Store) Neighbors(id int64, direction graphstore.Direction, edgeLabel string) ([]int64, error) {
	cur := s.snap()
	var edges []edge
	switch direction {
	case graphstore.DirectionOut:
		edges = cur.outEdges[id]
	case graphstore.DirectionIn:
		edges = cur.inEdges[id]
	default:
		edges = append(append([]edge{}, cur.outEdges[id]...), cur.inEdges[id]...)
	}

	var out []int64
	for _, e := range edges {
		if edgeLabel != "" && e.Label != edgeLabel {
			continue
		}
		if e.Src == id {
			out = append(out, e.Dst)
		} else {
			out = append(out, e.Src)
		}
	}
	return out, nil
}

func (s *Store) GetNode(id int64) (graphstore.Node, bool, error) {
	cur := s.snap()
	n, ok := cur.nodes[id]
	if !ok {
		return graphstore.Node{}, false, nil
	}
	return graphstore.Node{ID: n.ID, Kind: n.Kind, Name: n.Name, FilePath: n.FilePath, DataJSON: n.DataJSON}, true, nil
}

func (s *Store) EntityIDs(kind string) ([]int64, error) {
	cur := s.snap()
	var out []int64
	for id, n := range cur.nodes {
		if kind == "" || n.Kind == kind {
			out = append(out, id)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i] < out[j] })
	return out, nil
}

func (s *Store) AddLabel(id int64, label string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if err := s.append(logRecord{Kind: recAddLabel, Label: &labelRecord{ID: id, Label: label}}); err != nil {
		return err
	}
	next := s.snap().clone()
	addLabelToSnapshot(next, id, label)
	s.current.Store(next)
	return nil
}

func (s *Store) EntitiesByLabel(label string) ([]int64, error) {
	cur := s.snap()
	var out []int64
	for id := range cur.byLabel[label] {
		out = append(out, id)
	}
	sort.Slice(out, func(i, j int) bool { return out[i] < out[j] })
	return out, nil
}

func (s *Store) KVGet(key string) ([]byte, bool, error) {
	cur := s.snap()
	v, ok := cur.kv[key]
	return v, ok, nil
}

func (s *Store) KVPut(key string, value []byte) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if err := s.append(logRecord{Kind: recKVPut, KVKey: key, KVValue: value}); err != nil {
		return err
	}
	next := s.snap().clone()
	next.kv[key] = value
	s.current.Store(next)
	return nil
}

func (s *Store) KVDelete(key string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if err := s.append(logRecord{Kind: recKVDelete, KVKey: key}); err != nil {
		return err
	}
	next := s.snap().clone()
	delete(next.kv, key)
	s.current.Store(next)
	return nil
}

func (s *Store) KVPrefixScan(prefix string) (map[string][]byte, error) {
	cur := s.snap()
	out := make(map[string][]byte)
	for k, v := range cur.kv {
		if len(k) >= len(prefix) && k[:len(prefix)] == prefix {
			out[k] = v
		}
	}
	return out, nil
}

// InsertCodeChunk records the chunk as primary storage and mirrors it
// into the KV map under the chunk:{escaped_path}:{start}:{end} key
// scheme spec.md §6 fixes for the native backend.
func (s *Store) InsertCodeChunk(path string, byteStart, byteEnd uint64, source []byte) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	rec := logRecord{Kind: recChunk, Chunk: &chunkRecord{Path: path, ByteStart: byteStart, ByteEnd: byteEnd, Source: source}}
	if err := s.append(rec); err != nil {
		return err
	}
	s.chunks[path] = append(s.chunks[path], chunk{ByteStart: byteStart, ByteEnd: byteEnd, Source: source})
	next := s.snap().clone()
	next.kv[chunkKVKey(path, byteStart, byteEnd)] = source
	s.current.Store(next)
	return nil
}

// DeleteFileFacts implements spec.md §4.6's deletion discipline against
// the in-memory snapshot: every node tagged with file_path == path is
// collected, sorted ascending, and deleted in that order, then that
// path's code chunks are dropped.
func (s *Store) DeleteFileFacts(path string) error {
	s.mu.Lock()
	cur := s.snap()
	var ids []int64
	for id, n := range cur.nodes {
		if n.FilePath == path {
			ids = append(ids, id)
		}
	}
	sort.Slice(ids, func(i, j int) bool { return ids[i] < ids[j] })
	for _, id := range ids {
		if err := s.deleteEntityLocked(id); err != nil {
			s.mu.Unlock()
			return err
		}
	}
	if len(s.chunks[path]) > 0 {
		if err := s.append(logRecord{Kind: recDeleteChunks, ChunksPath: path}); err != nil {
			s.mu.Unlock()
			return err
		}
		next := s.snap().clone()
		for _, c := range s.chunks[path] {
			delete(next.kv, chunkKVKey(path, c.ByteStart, c.ByteEnd))
		}
		s.current.Store(next)
	}
	delete(s.chunks, path)
	s.mu.Unlock()

	remaining, err := s.EntityIDs("")
	if err != nil {
		return err
	}
	for _, id := range remaining {
		n, ok := s.snap().nodes[id]
		if ok && n.FilePath == path {
			return magerr.New(magerr.CodeDeleteResidue, fmt.Sprintf("node %d still references path after delete_file_facts", id)).WithPath(path)
		}
	}
	return nil
}

func (s *Store) AppendExecutionLog(entry graphstore.ExecutionLogEntry) error {
	payload, err := json.Marshal(entry)
	if err != nil {
		return magerr.Wrap(magerr.CodeStoreWriteFailure, "marshal execution log entry", err)
	}
	return s.KVPut("execution_log/"+entry.ExecutionID, payload)
}

func (s *Store) Close() error {
	return s.log.Close()
}
