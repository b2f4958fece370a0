package storage

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/codeatlas/codeatlas/pkg/types"
)

var (
	// ErrNotFound is returned when a requested entity doesn't exist
	ErrNotFound = errors.New("not found")
)

// SQLiteStorage implements the Storage interface using SQLite
type SQLiteStorage struct {
	db *sql.DB
}

// openDatabase opens a SQLite database with appropriate settings
func openDatabase(dbPath string) (*sql.DB, error) {
	db, err := sql.Open(DriverName, dbPath)
	if err != nil {
		return nil, err
	}

	// Enable WAL mode for better concurrency
	if _, err := db.Exec("PRAGMA journal_mode=WAL"); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("failed to enable WAL mode: %w", err)
	}

	// Set connection pool settings
	db.SetMaxOpenConns(1) // SQLite benefits from single writer
	db.SetMaxIdleConns(1)
	db.SetConnMaxLifetime(0)

	// Enable foreign keys
	if _, err := db.Exec("PRAGMA foreign_keys=ON"); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("failed to enable foreign keys: %w", err)
	}

	return db, nil
}

// NewSQLiteStorage creates a new SQLite storage instance
func NewSQLiteStorage(dbPath string) (*SQLiteStorage, error) {
	db, err := openDatabase(dbPath)
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}

	// Apply migrations
	if err := ApplyMigrations(context.Background(), db); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("failed to apply migrations: %w", err)
	}

	return &SQLiteStorage{db: db}, nil
}

// Close closes the database connection
func (s *SQLiteStorage) Close() error {
	return s.db.Close()
}

// File operations

// UpsertFile replaces the file row and everything extracted from the file
// in a single transaction. Symbols and references from a previous version
// of the file are deleted first, so re-indexing an unchanged file is
// idempotent.
func (s *SQLiteStorage) UpsertFile(ctx context.Context, file types.FileInfo, symbols []types.Symbol, refs []types.Reference) (int64, error) {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return 0, fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer func() { _ = tx.Rollback() }()

	now := time.Now()

	var fileID int64
	err = tx.QueryRowContext(ctx, "SELECT id FROM files WHERE path = ?", file.Path).Scan(&fileID)
	switch {
	case err == sql.ErrNoRows:
		res, err := tx.ExecContext(ctx, `
			INSERT INTO files (path, language, content_hash, mod_time, last_indexed_at)
			VALUES (?, ?, ?, ?, ?)
		`, file.Path, file.Language, file.Hash, file.ModTime, now)
		if err != nil {
			return 0, fmt.Errorf("failed to insert file %s: %w", file.Path, err)
		}
		fileID, err = res.LastInsertId()
		if err != nil {
			return 0, fmt.Errorf("failed to get file id: %w", err)
		}
	case err != nil:
		return 0, fmt.Errorf("failed to look up file %s: %w", file.Path, err)
	default:
		_, err = tx.ExecContext(ctx, `
			UPDATE files SET language = ?, content_hash = ?, mod_time = ?, last_indexed_at = ?
			WHERE id = ?
		`, file.Language, file.Hash, file.ModTime, now, fileID)
		if err != nil {
			return 0, fmt.Errorf("failed to update file %s: %w", file.Path, err)
		}
		if _, err := tx.ExecContext(ctx, "DELETE FROM symbols WHERE file_id = ?", fileID); err != nil {
			return 0, fmt.Errorf("failed to clear symbols for %s: %w", file.Path, err)
		}
		if _, err := tx.ExecContext(ctx, "DELETE FROM refs WHERE file_id = ?", fileID); err != nil {
			return 0, fmt.Errorf("failed to clear references for %s: %w", file.Path, err)
		}
	}

	for i := range symbols {
		sym := &symbols[i]
		_, err = tx.ExecContext(ctx, `
			INSERT INTO symbols (symbol_id, file_id, name, qualified_name, kind, signature,
				doc_comment, parent_id, start_line, start_col, end_line, end_col)
			VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
		`, string(sym.ID), fileID, sym.Name, sym.Qualified, string(sym.Kind), sym.Signature,
			sym.Doc, nullString(string(sym.ParentID)),
			sym.Span.Start.Line, sym.Span.Start.Column, sym.Span.End.Line, sym.Span.End.Column)
		if err != nil {
			return 0, fmt.Errorf("failed to insert symbol %s: %w", sym.Qualified, err)
		}
	}

	for i := range refs {
		ref := &refs[i]
		_, err = tx.ExecContext(ctx, `
			INSERT INTO refs (file_id, origin_id, target_name, target_id, kind,
				start_line, start_col, end_line, end_col)
			VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)
		`, fileID, nullString(string(ref.OriginID)), ref.TargetName, nullString(string(ref.TargetID)),
			string(ref.Kind),
			ref.Span.Start.Line, ref.Span.Start.Column, ref.Span.End.Line, ref.Span.End.Column)
		if err != nil {
			return 0, fmt.Errorf("failed to insert reference to %s: %w", ref.TargetName, err)
		}
	}

	if err := tx.Commit(); err != nil {
		return 0, fmt.Errorf("failed to commit file %s: %w", file.Path, err)
	}
	return fileID, nil
}

// GetFile retrieves a file record by path
func (s *SQLiteStorage) GetFile(ctx context.Context, path string) (types.FileInfo, error) {
	row := s.db.QueryRowContext(ctx, `
		SELECT id, path, language, content_hash, mod_time FROM files WHERE path = ?
	`, path)
	return scanFile(row)
}

// GetFileByID retrieves a file record by id
func (s *SQLiteStorage) GetFileByID(ctx context.Context, id int64) (types.FileInfo, error) {
	row := s.db.QueryRowContext(ctx, `
		SELECT id, path, language, content_hash, mod_time FROM files WHERE id = ?
	`, id)
	return scanFile(row)
}

// ListFiles returns all indexed files ordered by path
func (s *SQLiteStorage) ListFiles(ctx context.Context) ([]types.FileInfo, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT id, path, language, content_hash, mod_time FROM files ORDER BY path
	`)
	if err != nil {
		return nil, fmt.Errorf("failed to list files: %w", err)
	}
	defer func() { _ = rows.Close() }()

	var files []types.FileInfo
	for rows.Next() {
		file, err := scanFile(rows)
		if err != nil {
			return nil, err
		}
		files = append(files, file)
	}
	return files, rows.Err()
}

// DeleteFile removes a file and all symbols and references extracted from
// it. Deleting an unknown path is not an error.
func (s *SQLiteStorage) DeleteFile(ctx context.Context, path string) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer func() { _ = tx.Rollback() }()

	var fileID int64
	err = tx.QueryRowContext(ctx, "SELECT id FROM files WHERE path = ?", path).Scan(&fileID)
	if err == sql.ErrNoRows {
		return nil
	}
	if err != nil {
		return fmt.Errorf("failed to look up file %s: %w", path, err)
	}

	// Explicit deletes so the FTS triggers fire.
	if _, err := tx.ExecContext(ctx, "DELETE FROM symbols WHERE file_id = ?", fileID); err != nil {
		return fmt.Errorf("failed to delete symbols for %s: %w", path, err)
	}
	if _, err := tx.ExecContext(ctx, "DELETE FROM refs WHERE file_id = ?", fileID); err != nil {
		return fmt.Errorf("failed to delete references for %s: %w", path, err)
	}
	if _, err := tx.ExecContext(ctx, "DELETE FROM files WHERE id = ?", fileID); err != nil {
		return fmt.Errorf("failed to delete file %s: %w", path, err)
	}
	return tx.Commit()
}

// Symbol operations

const symbolColumns = `s.symbol_id, s.file_id, s.name, s.qualified_name, s.kind,
	s.signature, s.doc_comment, s.parent_id,
	s.start_line, s.start_col, s.end_line, s.end_col, f.path`

// GetSymbol retrieves a symbol by its deterministic id
func (s *SQLiteStorage) GetSymbol(ctx context.Context, id types.SymbolID) (types.Symbol, error) {
	row := s.db.QueryRowContext(ctx, `
		SELECT `+symbolColumns+`
		FROM symbols s JOIN files f ON f.id = s.file_id
		WHERE s.symbol_id = ?
	`, string(id))
	return scanSymbol(row)
}

// ListSymbolsByFile returns the symbols of one file in span order
func (s *SQLiteStorage) ListSymbolsByFile(ctx context.Context, fileID int64) ([]types.Symbol, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT `+symbolColumns+`
		FROM symbols s JOIN files f ON f.id = s.file_id
		WHERE s.file_id = ?
		ORDER BY s.start_line, s.start_col
	`, fileID)
	if err != nil {
		return nil, fmt.Errorf("failed to list symbols: %w", err)
	}
	return collectSymbols(rows)
}

// FindSymbolsByName returns symbols whose name or qualified name matches
// exactly, ordered by file path and position
func (s *SQLiteStorage) FindSymbolsByName(ctx context.Context, name string) ([]types.Symbol, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT `+symbolColumns+`
		FROM symbols s JOIN files f ON f.id = s.file_id
		WHERE s.name = ?1 OR s.qualified_name = ?1
		ORDER BY f.path, s.start_line
	`, name)
	if err != nil {
		return nil, fmt.Errorf("failed to find symbols: %w", err)
	}
	return collectSymbols(rows)
}

// SearchSymbols performs full-text search over symbol names, signatures,
// and doc comments. Results are ordered by BM25 relevance.
func (s *SQLiteStorage) SearchSymbols(ctx context.Context, query string, limit int) ([]SymbolMatch, error) {
	if limit <= 0 {
		limit = 20
	}
	ftsQuery := prepareFTSQuery(query)
	if ftsQuery == "" {
		return nil, nil
	}

	rows, err := s.db.QueryContext(ctx, `
		SELECT `+symbolColumns+`, bm25(symbols_fts) AS score
		FROM symbols_fts
		JOIN symbols s ON s.id = symbols_fts.rowid
		JOIN files f ON f.id = s.file_id
		WHERE symbols_fts MATCH ?
		ORDER BY score
		LIMIT ?
	`, ftsQuery, limit)
	if err != nil {
		return nil, fmt.Errorf("failed to search symbols: %w", err)
	}
	defer func() { _ = rows.Close() }()

	var matches []SymbolMatch
	for rows.Next() {
		var m SymbolMatch
		if err := scanSymbolInto(rows, &m.Symbol, &m.Score); err != nil {
			return nil, err
		}
		// bm25() returns negative scores where lower is better; flip so
		// callers see higher as better.
		m.Score = -m.Score
		matches = append(matches, m)
	}
	return matches, rows.Err()
}

// SearchFiles returns files whose path contains the pattern
func (s *SQLiteStorage) SearchFiles(ctx context.Context, pattern string, limit int) ([]types.FileInfo, error) {
	if limit <= 0 {
		limit = 20
	}
	rows, err := s.db.QueryContext(ctx, `
		SELECT id, path, language, content_hash, mod_time
		FROM files WHERE path LIKE ? ORDER BY path LIMIT ?
	`, "%"+pattern+"%", limit)
	if err != nil {
		return nil, fmt.Errorf("failed to search files: %w", err)
	}
	defer func() { _ = rows.Close() }()

	var files []types.FileInfo
	for rows.Next() {
		file, err := scanFile(rows)
		if err != nil {
			return nil, err
		}
		files = append(files, file)
	}
	return files, rows.Err()
}

// Reference and call graph operations

// refTargetMatch joins a reference row to a target symbol: through the
// stored target id when resolved, by name or qualified name otherwise.
const refTargetMatch = `(r.target_id = ?1 OR
	((r.target_id IS NULL OR r.target_id = '') AND r.target_name IN (?2, ?3)))`

// callableKinds limits name-based call resolution to definitions a call
// expression can actually reach, including constructor-style type calls.
const callableKinds = `('function', 'method', 'class', 'struct')`

// GetCallers returns the symbols containing call references that resolve
// to the given symbol, in deterministic file/position order
func (s *SQLiteStorage) GetCallers(ctx context.Context, id types.SymbolID) ([]types.Symbol, error) {
	target, err := s.GetSymbol(ctx, id)
	if err != nil {
		return nil, err
	}

	rows, err := s.db.QueryContext(ctx, `
		SELECT DISTINCT `+symbolColumns+`
		FROM refs r
		JOIN symbols s ON s.symbol_id = r.origin_id
		JOIN files f ON f.id = s.file_id
		WHERE r.kind = 'call' AND `+refTargetMatch+`
		ORDER BY f.path, s.start_line
	`, string(id), target.Name, target.Qualified)
	if err != nil {
		return nil, fmt.Errorf("failed to query callers: %w", err)
	}
	return collectSymbols(rows)
}

// GetCallees returns the symbols that call references originating in the
// given symbol resolve to, in deterministic file/position order
func (s *SQLiteStorage) GetCallees(ctx context.Context, id types.SymbolID) ([]types.Symbol, error) {
	if _, err := s.GetSymbol(ctx, id); err != nil {
		return nil, err
	}

	rows, err := s.db.QueryContext(ctx, `
		SELECT DISTINCT `+symbolColumns+`
		FROM refs r
		JOIN symbols s ON (s.symbol_id = r.target_id OR
			((r.target_id IS NULL OR r.target_id = '')
				AND (s.name = r.target_name OR s.qualified_name = r.target_name)
				AND s.kind IN `+callableKinds+`))
		JOIN files f ON f.id = s.file_id
		WHERE r.kind = 'call' AND r.origin_id = ?
		ORDER BY f.path, s.start_line
	`, string(id))
	if err != nil {
		return nil, fmt.Errorf("failed to query callees: %w", err)
	}
	return collectSymbols(rows)
}

// GetReferencesTo returns every reference site that resolves to the given
// symbol, regardless of reference kind
func (s *SQLiteStorage) GetReferencesTo(ctx context.Context, id types.SymbolID) ([]types.RefSite, error) {
	target, err := s.GetSymbol(ctx, id)
	if err != nil {
		return nil, err
	}

	rows, err := s.db.QueryContext(ctx, `
		SELECT f.path, r.start_line, COALESCE(o.qualified_name, '')
		FROM refs r
		JOIN files f ON f.id = r.file_id
		LEFT JOIN symbols o ON o.symbol_id = r.origin_id
		WHERE `+refTargetMatch+`
		ORDER BY f.path, r.start_line
	`, string(id), target.Name, target.Qualified)
	if err != nil {
		return nil, fmt.Errorf("failed to query references: %w", err)
	}
	defer func() { _ = rows.Close() }()

	var sites []types.RefSite
	for rows.Next() {
		var site types.RefSite
		if err := rows.Scan(&site.Path, &site.Line, &site.Origin); err != nil {
			return nil, fmt.Errorf("failed to scan reference site: %w", err)
		}
		sites = append(sites, site)
	}
	return sites, rows.Err()
}

// GetReferencesFrom returns every reference site occurring inside the
// given symbol. Origin carries the referenced target's qualified name, or
// its raw name when the target is not in the index.
func (s *SQLiteStorage) GetReferencesFrom(ctx context.Context, id types.SymbolID) ([]types.RefSite, error) {
	if _, err := s.GetSymbol(ctx, id); err != nil {
		return nil, err
	}

	rows, err := s.db.QueryContext(ctx, `
		SELECT f.path, r.start_line, COALESCE(t.qualified_name, r.target_name)
		FROM refs r
		JOIN files f ON f.id = r.file_id
		LEFT JOIN symbols t ON t.symbol_id = r.target_id
		WHERE r.origin_id = ?
		ORDER BY f.path, r.start_line
	`, string(id))
	if err != nil {
		return nil, fmt.Errorf("failed to query references: %w", err)
	}
	defer func() { _ = rows.Close() }()

	var sites []types.RefSite
	for rows.Next() {
		var site types.RefSite
		if err := rows.Scan(&site.Path, &site.Line, &site.Origin); err != nil {
			return nil, fmt.Errorf("failed to scan reference site: %w", err)
		}
		sites = append(sites, site)
	}
	return sites, rows.Err()
}

// GetReferenceCount returns how many reference sites resolve to the symbol
func (s *SQLiteStorage) GetReferenceCount(ctx context.Context, id types.SymbolID) (int64, error) {
	target, err := s.GetSymbol(ctx, id)
	if err != nil {
		return 0, err
	}

	var count int64
	err = s.db.QueryRowContext(ctx, `
		SELECT COUNT(*) FROM refs r WHERE `+refTargetMatch+`
	`, string(id), target.Name, target.Qualified).Scan(&count)
	if err != nil {
		return 0, fmt.Errorf("failed to count references: %w", err)
	}
	return count, nil
}

// ListCallEdges resolves every call reference in one pass and returns the
// distinct edges of the call graph, ordered for determinism. Graph
// traversals load adjacency from this instead of issuing per-node queries.
func (s *SQLiteStorage) ListCallEdges(ctx context.Context) ([]CallEdge, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT DISTINCT o.symbol_id, t.symbol_id
		FROM refs r
		JOIN symbols o ON o.symbol_id = r.origin_id
		JOIN symbols t ON (t.symbol_id = r.target_id OR
			((r.target_id IS NULL OR r.target_id = '')
				AND (t.name = r.target_name OR t.qualified_name = r.target_name)
				AND t.kind IN `+callableKinds+`))
		WHERE r.kind = 'call'
		ORDER BY o.symbol_id, t.symbol_id
	`)
	if err != nil {
		return nil, fmt.Errorf("failed to query call edges: %w", err)
	}
	defer func() { _ = rows.Close() }()

	var edges []CallEdge
	for rows.Next() {
		var from, to string
		if err := rows.Scan(&from, &to); err != nil {
			return nil, fmt.Errorf("failed to scan call edge: %w", err)
		}
		edges = append(edges, CallEdge{From: types.SymbolID(from), To: types.SymbolID(to)})
	}
	return edges, rows.Err()
}

// ListCallables returns every function and method symbol in the index
func (s *SQLiteStorage) ListCallables(ctx context.Context) ([]types.Symbol, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT `+symbolColumns+`
		FROM symbols s JOIN files f ON f.id = s.file_id
		WHERE s.kind IN ('function', 'method')
		ORDER BY f.path, s.start_line
	`)
	if err != nil {
		return nil, fmt.Errorf("failed to list callables: %w", err)
	}
	return collectSymbols(rows)
}

// Index-wide operations

// GetTree returns the full containment forest: every file with its symbols
// nested under their parents, ordered by path and position
func (s *SQLiteStorage) GetTree(ctx context.Context) (types.Tree, error) {
	files, err := s.ListFiles(ctx)
	if err != nil {
		return types.Tree{}, err
	}

	rows, err := s.db.QueryContext(ctx, `
		SELECT `+symbolColumns+`
		FROM symbols s JOIN files f ON f.id = s.file_id
		ORDER BY f.path, s.start_line, s.start_col
	`)
	if err != nil {
		return types.Tree{}, fmt.Errorf("failed to query tree: %w", err)
	}
	symbols, err := collectSymbols(rows)
	if err != nil {
		return types.Tree{}, err
	}

	byFile := make(map[int64][]*types.Symbol)
	for i := range symbols {
		sym := &symbols[i]
		byFile[sym.FileID] = append(byFile[sym.FileID], sym)
	}

	tree := types.Tree{Files: make([]types.FileNode, 0, len(files))}
	for _, file := range files {
		node := types.FileNode{File: file}
		byID := make(map[types.SymbolID]*types.Symbol)
		for _, sym := range byFile[file.ID] {
			byID[sym.ID] = sym
		}
		for _, sym := range byFile[file.ID] {
			if parent, ok := byID[sym.ParentID]; ok && sym.ParentID != "" {
				parent.Children = append(parent.Children, sym)
				continue
			}
			node.Symbols = append(node.Symbols, sym)
		}
		tree.Files = append(tree.Files, node)
	}
	return tree, nil
}

// Stats returns the persisted index counters
func (s *SQLiteStorage) Stats(ctx context.Context) (Stats, error) {
	var stats Stats
	var lastIndexed sql.NullTime
	err := s.db.QueryRowContext(ctx, `
		SELECT
			(SELECT COUNT(*) FROM files),
			(SELECT COUNT(*) FROM symbols),
			(SELECT COUNT(*) FROM refs),
			(SELECT MAX(last_indexed_at) FROM files)
	`).Scan(&stats.Files, &stats.Symbols, &stats.References, &lastIndexed)
	if err != nil {
		return Stats{}, fmt.Errorf("failed to query stats: %w", err)
	}
	if lastIndexed.Valid {
		stats.LastIndexed = lastIndexed.Time
	}
	return stats, nil
}

// Scan helpers

type rowScanner interface {
	Scan(dest ...interface{}) error
}

func scanFile(row rowScanner) (types.FileInfo, error) {
	var file types.FileInfo
	var modTime sql.NullTime
	err := row.Scan(&file.ID, &file.Path, &file.Language, &file.Hash, &modTime)
	if err == sql.ErrNoRows {
		return types.FileInfo{}, ErrNotFound
	}
	if err != nil {
		return types.FileInfo{}, fmt.Errorf("failed to scan file: %w", err)
	}
	if modTime.Valid {
		file.ModTime = modTime.Time
	}
	return file, nil
}

func scanSymbol(row rowScanner) (types.Symbol, error) {
	var sym types.Symbol
	if err := scanSymbolInto(row, &sym); err != nil {
		return types.Symbol{}, err
	}
	return sym, nil
}

// scanSymbolInto scans the symbolColumns projection plus any trailing
// columns (such as a relevance score) into extra.
func scanSymbolInto(row rowScanner, sym *types.Symbol, extra ...interface{}) error {
	var id, kind string
	var signature, doc, parentID sql.NullString
	dest := []interface{}{
		&id, &sym.FileID, &sym.Name, &sym.Qualified, &kind,
		&signature, &doc, &parentID,
		&sym.Span.Start.Line, &sym.Span.Start.Column,
		&sym.Span.End.Line, &sym.Span.End.Column, &sym.FilePath,
	}
	dest = append(dest, extra...)

	err := row.Scan(dest...)
	if err == sql.ErrNoRows {
		return ErrNotFound
	}
	if err != nil {
		return fmt.Errorf("failed to scan symbol: %w", err)
	}

	sym.ID = types.SymbolID(id)
	sym.Kind = types.SymbolKind(kind)
	sym.Signature = signature.String
	sym.Doc = doc.String
	sym.ParentID = types.SymbolID(parentID.String)
	return nil
}

func collectSymbols(rows *sql.Rows) ([]types.Symbol, error) {
	defer func() { _ = rows.Close() }()
	var symbols []types.Symbol
	for rows.Next() {
		sym, err := scanSymbol(rows)
		if err != nil {
			return nil, err
		}
		symbols = append(symbols, sym)
	}
	return symbols, rows.Err()
}

func nullString(s string) interface{} {
	if s == "" {
		return nil
	}
	return s
}

// prepareFTSQuery quotes each term so user input can't inject FTS5 query
// syntax, and adds a prefix wildcard to the final term for as-you-type
// style matching.
func prepareFTSQuery(query string) string {
	terms := strings.Fields(query)
	if len(terms) == 0 {
		return ""
	}
	quoted := make([]string, len(terms))
	for i, term := range terms {
		term = strings.ReplaceAll(term, `"`, `""`)
		quoted[i] = `"` + term + `"`
	}
	quoted[len(quoted)-1] += "*"
	return strings.Join(quoted, " ")
}
