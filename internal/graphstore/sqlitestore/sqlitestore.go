// Package sqlitestore implements graphstore.Store over
// modernc.org/sqlite (pure Go, no cgo), the relational-graph backend
// named in spec.md §4.6. Grounded on theRebelliousNerd-codenerd's
// internal/mcp/store.go: database/sql with a single file DSN,
// CREATE TABLE IF NOT EXISTS schema setup run once at Open, and a
// mutex guarding all writes since modernc.org/sqlite serializes
// access through one *sql.DB connection.
package sqlitestore

import (
	"database/sql"
	"fmt"
	"sort"
	"sync"
	"time"

	_ "modernc.org/sqlite"

	"github.com/oldnordic/magellan-sub003/internal/graphstore"
	"github.com/oldnordic/magellan-sub003/internal/magerr"
)

// Store is the SQLite-backed graphstore.Store implementation.
type Store struct {
	mu sync.Mutex
	db *sql.DB
}

var _ graphstore.Store = (*Store)(nil)

// Open opens (or creates) a graph store at dbPath, running the
// three-phase compatibility gate from spec.md §4.6: a read-only
// preflight schema-version check, schema creation for new databases,
// and a magellan_meta upsert.
func Open(dbPath string) (*Store, error) {
	db, err := sql.Open("sqlite", dbPath+"?_pragma=journal_mode(WAL)&_pragma=busy_timeout(5000)")
	if err != nil {
		return nil, magerr.Wrap(magerr.CodeDBCompatUnreadable, "open sqlite database", err).WithPath(dbPath)
	}

	if err := preflightSchemaVersion(db, dbPath); err != nil {
		db.Close()
		return nil, err
	}

	s := &Store{db: db}
	if err := s.createSchema(); err != nil {
		db.Close()
		return nil, err
	}
	if err := s.upsertMeta(); err != nil {
		db.Close()
		return nil, err
	}
	return s, nil
}

// preflightSchemaVersion implements phase (1): if magellan_meta already
// exists with a mismatched version, fail without touching the file.
func preflightSchemaVersion(db *sql.DB, dbPath string) error {
	var exists int
	err := db.QueryRow(`SELECT count(*) FROM sqlite_master WHERE type='table' AND name='magellan_meta'`).Scan(&exists)
	if err != nil {
		return magerr.Wrap(magerr.CodeDBCompatUnreadable, "read sqlite_master", err).WithPath(dbPath)
	}
	if exists == 0 {
		return nil // new database, nothing to check yet
	}
	var found int
	err = db.QueryRow(`SELECT graph_schema_version FROM magellan_meta WHERE id = 1`).Scan(&found)
	if err != nil {
		return magerr.Wrap(magerr.CodeDBCompatCorrupt, "read magellan_meta", err).WithPath(dbPath)
	}
	if found != graphstore.SchemaVersion {
		return graphstore.ErrSchemaMismatch(dbPath, found, graphstore.SchemaVersion)
	}
	return nil
}

func (s *Store) createSchema() error {
	stmts := []string{
		`CREATE TABLE IF NOT EXISTS nodes (
			id INTEGER PRIMARY KEY AUTOINCREMENT,
			kind TEXT NOT NULL,
			name TEXT,
			file_path TEXT,
			data_json TEXT
		)`,
		`CREATE INDEX IF NOT EXISTS idx_nodes_file_path ON nodes(file_path)`,
		`CREATE INDEX IF NOT EXISTS idx_nodes_kind ON nodes(kind)`,
		`CREATE TABLE IF NOT EXISTS edges (
			id INTEGER PRIMARY KEY AUTOINCREMENT,
			src INTEGER NOT NULL,
			dst INTEGER NOT NULL,
			label TEXT NOT NULL
		)`,
		`CREATE INDEX IF NOT EXISTS idx_edges_src ON edges(src, label)`,
		`CREATE INDEX IF NOT EXISTS idx_edges_dst ON edges(dst, label)`,
		`CREATE TABLE IF NOT EXISTS labels (
			entity_id INTEGER NOT NULL,
			label TEXT NOT NULL,
			PRIMARY KEY (entity_id, label)
		)`,
		`CREATE INDEX IF NOT EXISTS idx_labels_label ON labels(label)`,
		`CREATE TABLE IF NOT EXISTS kv (
			key TEXT PRIMARY KEY,
			value BLOB
		)`,
		`CREATE TABLE IF NOT EXISTS code_chunks (
			path TEXT NOT NULL,
			byte_start INTEGER NOT NULL,
			byte_end INTEGER NOT NULL,
			source BLOB
		)`,
		`CREATE INDEX IF NOT EXISTS idx_code_chunks_path ON code_chunks(path)`,
		`CREATE TABLE IF NOT EXISTS execution_log (
			execution_id TEXT PRIMARY KEY,
			tool_version TEXT,
			args_json TEXT,
			root TEXT,
			db_path TEXT,
			started_at INTEGER,
			finished_at INTEGER,
			duration_ms INTEGER,
			outcome TEXT,
			error_message TEXT,
			files_indexed INTEGER,
			symbols_indexed INTEGER,
			references_indexed INTEGER
		)`,
		`CREATE TABLE IF NOT EXISTS magellan_meta (
			id INTEGER PRIMARY KEY CHECK (id = 1),
			magellan_schema_version INTEGER NOT NULL,
			graph_schema_version INTEGER NOT NULL,
			created_at INTEGER NOT NULL
		)`,
	}
	tx, err := s.db.Begin()
	if err != nil {
		return magerr.Wrap(magerr.CodeStoreWriteFailure, "begin schema transaction", err)
	}
	for _, stmt := range stmts {
		if _, err := tx.Exec(stmt); err != nil {
			tx.Rollback()
			return magerr.Wrap(magerr.CodeStoreWriteFailure, "create schema", err)
		}
	}
	if err := tx.Commit(); err != nil {
		return magerr.Wrap(magerr.CodeStoreWriteFailure, "commit schema transaction", err)
	}
	return nil
}

func (s *Store) upsertMeta() error {
	_, err := s.db.Exec(`
		INSERT INTO magellan_meta (id, magellan_schema_version, graph_schema_version, created_at)
		VALUES (1, ?, ?, ?)
		ON CONFLICT(id) DO UPDATE SET magellan_schema_version = excluded.magellan_schema_version
	`, graphstore.SchemaVersion, graphstore.SchemaVersion, time.Now().Unix())
	if err != nil {
		return magerr.Wrap(magerr.CodeStoreWriteFailure, "upsert magellan_meta", err)
	}
	return nil
}

func (s *Store) InsertNode(kind, name, filePath string, dataJSON []byte) (int64, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	res, err := s.db.Exec(`INSERT INTO nodes (kind, name, file_path, data_json) VALUES (?, ?, ?, ?)`,
		kind, nullable(name), nullable(filePath), dataJSON)
	if err != nil {
		return 0, magerr.Wrap(magerr.CodeStoreWriteFailure, "insert node", err)
	}
	id, err := res.LastInsertId()
	if err != nil {
		return 0, magerr.Wrap(magerr.CodeStoreWriteFailure, "read inserted node id", err)
	}
	if err := s.addLabelLocked(id, kind); err != nil {
		return 0, err
	}
	return id, nil
}

func (s *Store) InsertEdge(src, dst int64, label string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	_, err := s.db.Exec(`INSERT INTO edges (src, dst, label) VALUES (?, ?, ?)`, src, dst, label)
	if err != nil {
		return magerr.Wrap(magerr.CodeStoreWriteFailure, "insert edge", err)
	}
	return nil
}

func (s *Store) DeleteEntity(id int64) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.deleteEntityLocked(id)
}

func (s *Store) deleteEntityLocked(id int64) error {
	if _, err := s.db.Exec(`DELETE FROM edges WHERE src = ? OR dst = ?`, id, id); err != nil {
		return magerr.Wrap(magerr.CodeStoreWriteFailure, "delete edges for entity", err)
	}
	if _, err := s.db.Exec(`DELETE FROM labels WHERE entity_id = ?`, id); err != nil {
		return magerr.Wrap(magerr.CodeStoreWriteFailure, "delete labels for entity", err)
	}
	if _, err := s.db.Exec(`DELETE FROM nodes WHERE id = ?`, id); err != nil {
		return magerr.Wrap(magerr.CodeStoreWriteFailure, "delete node", err)
	}
	return nil
}

func (s *Store) Neighbors(id int64, direction graphstore.Direction, edgeLabel string) ([]int64, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if direction == graphstore.DirectionBoth {
		out, err := s.neighborsLocked(id, graphstore.DirectionOut, edgeLabel)
		if err != nil {
			return nil, err
		}
		in, err := s.neighborsLocked(id, graphstore.DirectionIn, edgeLabel)
		if err != nil {
			return nil, err
		}
		return append(out, in...), nil
	}
	return s.neighborsLocked(id, direction, edgeLabel)
}

func (s *Store) neighborsLocked(id int64, direction graphstore.Direction, edgeLabel string) ([]int64, error) {
	var query string
	args := []any{id}
	if direction == graphstore.DirectionOut {
		query = "SELECT dst FROM edges WHERE src = ?"
	} else {
		query = "SELECT src FROM edges WHERE dst = ?"
	}
	if edgeLabel != "" {
		query += " AND label = ?"
		args = append(args, edgeLabel)
	}

	rows, err := s.db.Query(query, args...)
	if err != nil {
		return nil, magerr.Wrap(magerr.CodeStoreWriteFailure, "query neighbors", err)
	}
	defer rows.Close()

	var out []int64
	for rows.Next() {
		var neighbor int64
		if err := rows.Scan(&neighbor); err != nil {
			return nil, magerr.Wrap(magerr.CodeStoreWriteFailure, "scan neighbor", err)
		}
		out = append(out, neighbor)
	}
	return out, rows.Err()
}

func (s *Store) GetNode(id int64) (graphstore.Node, bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	var n graphstore.Node
	var name, filePath sql.NullString
	var dataJSON []byte
	row := s.db.QueryRow(`SELECT id, kind, name, file_path, data_json FROM nodes WHERE id = ?`, id)
	if err := row.Scan(&n.ID, &n.Kind, &name, &filePath, &dataJSON); err != nil {
		if err == sql.ErrNoRows {
			return graphstore.Node{}, false, nil
		}
		return graphstore.Node{}, false, magerr.Wrap(magerr.CodeStoreWriteFailure, "get node", err)
	}
	n.Name = name.String
	n.FilePath = filePath.String
	n.DataJSON = dataJSON
	return n, true, nil
}

func (s *Store) EntityIDs(kind string) ([]int64, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	var rows *sql.Rows
	var err error
	if kind == "" {
		rows, err = s.db.Query(`SELECT id FROM nodes ORDER BY id`)
	} else {
		rows, err = s.db.Query(`SELECT id FROM nodes WHERE kind = ? ORDER BY id`, kind)
	}
	if err != nil {
		return nil, magerr.Wrap(magerr.CodeStoreWriteFailure, "query entity ids", err)
	}
	defer rows.Close()

	var out []int64
	for rows.Next() {
		var id int64
		if err := rows.Scan(&id); err != nil {
			return nil, magerr.Wrap(magerr.CodeStoreWriteFailure, "scan entity id", err)
		}
		out = append(out, id)
	}
	return out, rows.Err()
}

func (s *Store) AddLabel(id int64, label string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.addLabelLocked(id, label)
}

func (s *Store) addLabelLocked(id int64, label string) error {
	_, err := s.db.Exec(`INSERT OR IGNORE INTO labels (entity_id, label) VALUES (?, ?)`, id, label)
	if err != nil {
		return magerr.Wrap(magerr.CodeStoreWriteFailure, "add label", err)
	}
	return nil
}

func (s *Store) EntitiesByLabel(label string) ([]int64, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	rows, err := s.db.Query(`SELECT entity_id FROM labels WHERE label = ? ORDER BY entity_id`, label)
	if err != nil {
		return nil, magerr.Wrap(magerr.CodeStoreWriteFailure, "query entities by label", err)
	}
	defer rows.Close()

	var out []int64
	for rows.Next() {
		var id int64
		if err := rows.Scan(&id); err != nil {
			return nil, magerr.Wrap(magerr.CodeStoreWriteFailure, "scan labeled entity", err)
		}
		out = append(out, id)
	}
	return out, rows.Err()
}

func (s *Store) KVGet(key string) ([]byte, bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	var value []byte
	err := s.db.QueryRow(`SELECT value FROM kv WHERE key = ?`, key).Scan(&value)
	if err == sql.ErrNoRows {
		return nil, false, nil
	}
	if err != nil {
		return nil, false, magerr.Wrap(magerr.CodeStoreWriteFailure, "kv get", err)
	}
	return value, true, nil
}

func (s *Store) KVPut(key string, value []byte) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	_, err := s.db.Exec(`INSERT INTO kv (key, value) VALUES (?, ?) ON CONFLICT(key) DO UPDATE SET value = excluded.value`, key, value)
	if err != nil {
		return magerr.Wrap(magerr.CodeStoreWriteFailure, "kv put", err)
	}
	return nil
}

func (s *Store) KVDelete(key string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	_, err := s.db.Exec(`DELETE FROM kv WHERE key = ?`, key)
	if err != nil {
		return magerr.Wrap(magerr.CodeStoreWriteFailure, "kv delete", err)
	}
	return nil
}

func (s *Store) KVPrefixScan(prefix string) (map[string][]byte, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	rows, err := s.db.Query(`SELECT key, value FROM kv WHERE key >= ? AND key < ?`, prefix, prefix+"\xff")
	if err != nil {
		return nil, magerr.Wrap(magerr.CodeStoreWriteFailure, "kv prefix scan", err)
	}
	defer rows.Close()

	out := make(map[string][]byte)
	for rows.Next() {
		var k string
		var v []byte
		if err := rows.Scan(&k, &v); err != nil {
			return nil, magerr.Wrap(magerr.CodeStoreWriteFailure, "scan kv row", err)
		}
		out[k] = v
	}
	return out, rows.Err()
}

func (s *Store) InsertCodeChunk(path string, byteStart, byteEnd uint64, source []byte) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	_, err := s.db.Exec(`INSERT INTO code_chunks (path, byte_start, byte_end, source) VALUES (?, ?, ?, ?)`,
		path, byteStart, byteEnd, source)
	if err != nil {
		return magerr.Wrap(magerr.CodeStoreWriteFailure, "insert code chunk", err)
	}
	return nil
}

// DeleteFileFacts implements spec.md §4.6's deletion discipline: every
// node whose file_path equals path is collected, sorted ascending by
// id, and deleted in that order, then code_chunks for path are
// dropped. Row-count assertions guard against partial deletion.
func (s *Store) DeleteFileFacts(path string) error {
	ids, err := s.nodeIDsForPath(path)
	if err != nil {
		return err
	}
	sort.Slice(ids, func(i, j int) bool { return ids[i] < ids[j] })

	for _, id := range ids {
		s.mu.Lock()
		err := s.deleteEntityLocked(id)
		s.mu.Unlock()
		if err != nil {
			return err
		}
	}

	remaining, err := s.nodeIDsForPath(path)
	if err != nil {
		return err
	}
	if len(remaining) != 0 {
		return magerr.New(magerr.CodeDeleteResidue, fmt.Sprintf("%d node(s) remain for path after delete_file_facts", len(remaining))).WithPath(path)
	}

	s.mu.Lock()
	_, err = s.db.Exec(`DELETE FROM code_chunks WHERE path = ?`, path)
	s.mu.Unlock()
	if err != nil {
		return magerr.Wrap(magerr.CodeStoreWriteFailure, "delete code chunks", err)
	}
	return nil
}

func (s *Store) nodeIDsForPath(path string) ([]int64, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	rows, err := s.db.Query(`SELECT id FROM nodes WHERE file_path = ?`, path)
	if err != nil {
		return nil, magerr.Wrap(magerr.CodeStoreWriteFailure, "query nodes for path", err)
	}
	defer rows.Close()
	var ids []int64
	for rows.Next() {
		var id int64
		if err := rows.Scan(&id); err != nil {
			return nil, magerr.Wrap(magerr.CodeStoreWriteFailure, "scan node id", err)
		}
		ids = append(ids, id)
	}
	return ids, rows.Err()
}

func (s *Store) AppendExecutionLog(entry graphstore.ExecutionLogEntry) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	_, err := s.db.Exec(`
		INSERT INTO execution_log (
			execution_id, tool_version, args_json, root, db_path,
			started_at, finished_at, duration_ms, outcome, error_message,
			files_indexed, symbols_indexed, references_indexed
		) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
	`, entry.ExecutionID, entry.ToolVersion, entry.ArgsJSON, entry.Root, entry.DBPath,
		entry.StartedAt, entry.FinishedAt, entry.DurationMs, entry.Outcome, entry.ErrorMessage,
		entry.FilesIndexed, entry.SymbolsIndexed, entry.ReferencesIndexed)
	if err != nil {
		return magerr.Wrap(magerr.CodeStoreWriteFailure, "append execution log", err)
	}
	return nil
}

func (s *Store) Close() error {
	return s.db.Close()
}

func nullable(s string) any {
	if s == "" {
		return nil
	}
	return s
}
