package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"os"
	"path/filepath"

	_ "github.com/mattn/go-sqlite3"

	"rmlines/internal/diag"
)

// DefaultBusyTimeoutMs is used by Open.
const DefaultBusyTimeoutMs = 5000

// Store represents the SQLite parse catalog.
type Store struct {
	db *sql.DB
}

// Open opens or creates the catalog at the given path and runs migrations.
func Open(path string) (*Store, error) {
	return OpenWithTimeout(path, DefaultBusyTimeoutMs)
}

// OpenWithTimeout is Open with an explicit SQLite busy timeout.
func OpenWithTimeout(path string, busyTimeoutMs int) (*Store, error) {
	dir := filepath.Dir(path)
	if err := os.MkdirAll(dir, 0755); err != nil {
		return nil, fmt.Errorf("create database directory: %w", err)
	}

	dsn := fmt.Sprintf("%s?_foreign_keys=on&_journal_mode=WAL&_busy_timeout=%d", path, busyTimeoutMs)
	db, err := sql.Open("sqlite3", dsn)
	if err != nil {
		return nil, fmt.Errorf("open database: %w", err)
	}

	if err := MigrateDB(db); err != nil {
		db.Close()
		return nil, fmt.Errorf("apply schema: %w", err)
	}

	return &Store{db: db}, nil
}

// Close closes the database connection.
func (s *Store) Close() error {
	if s.db != nil {
		return s.db.Close()
	}
	return nil
}

// DB returns the underlying database for migration management.
func (s *Store) DB() *sql.DB {
	return s.db
}

// Ping checks that the database still answers.
func (s *Store) Ping(ctx context.Context) error {
	var n int
	return s.db.QueryRowContext(ctx, "SELECT COUNT(*) FROM schema_migrations").Scan(&n)
}

// RecordParse stores the outcome of a parse: the file row is created or
// replaced, its diagnostics are replaced and a history entry is appended.
func (s *Store) RecordParse(rec *ParseRecord) (*File, error) {
	tx, err := s.db.Begin()
	if err != nil {
		return nil, fmt.Errorf("begin transaction: %w", err)
	}
	defer tx.Rollback()

	parsedAt := rec.ParsedAt.UnixNano()
	_, err = tx.Exec(`
		INSERT INTO files (path, content_hash, size, parsed_at, block_count, unreadable_count, has_text, paragraph_count, page_text)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT(path) DO UPDATE SET
			content_hash = excluded.content_hash,
			size = excluded.size,
			parsed_at = excluded.parsed_at,
			block_count = excluded.block_count,
			unreadable_count = excluded.unreadable_count,
			has_text = excluded.has_text,
			paragraph_count = excluded.paragraph_count,
			page_text = excluded.page_text`,
		rec.Path, rec.ContentHash[:], rec.Size, parsedAt, rec.BlockCount, rec.UnreadableCount,
		rec.HasText, rec.ParagraphCount, rec.Text,
	)
	if err != nil {
		return nil, fmt.Errorf("upsert file: %w", err)
	}

	var fileID int64
	if err := tx.QueryRow("SELECT id FROM files WHERE path = ?", rec.Path).Scan(&fileID); err != nil {
		return nil, fmt.Errorf("get file id: %w", err)
	}

	if _, err := tx.Exec("DELETE FROM diagnostics WHERE file_id = ?", fileID); err != nil {
		return nil, fmt.Errorf("clear diagnostics: %w", err)
	}

	stmt, err := tx.Prepare(`
		INSERT INTO diagnostics (file_id, ordinal, block_index, block_type, byte_offset, kind, reason)
		VALUES (?, ?, ?, ?, ?, ?, ?)`)
	if err != nil {
		return nil, fmt.Errorf("prepare statement: %w", err)
	}
	defer stmt.Close()

	for i, d := range rec.Diagnostics {
		if _, err := stmt.Exec(fileID, i, d.BlockIndex, d.BlockType, d.Offset, string(d.Kind), d.Reason); err != nil {
			return nil, fmt.Errorf("insert diagnostic: %w", err)
		}
	}

	if _, err := tx.Exec(`
		INSERT INTO parses (file_id, content_hash, parsed_at, block_count, unreadable_count, diagnostic_count)
		VALUES (?, ?, ?, ?, ?, ?)`,
		fileID, rec.ContentHash[:], parsedAt, rec.BlockCount, rec.UnreadableCount, len(rec.Diagnostics),
	); err != nil {
		return nil, fmt.Errorf("insert parse: %w", err)
	}

	if err := tx.Commit(); err != nil {
		return nil, fmt.Errorf("commit transaction: %w", err)
	}

	return &File{
		ID:              fileID,
		Path:            rec.Path,
		ContentHash:     rec.ContentHash,
		Size:            rec.Size,
		ParsedAtNs:      parsedAt,
		BlockCount:      rec.BlockCount,
		UnreadableCount: rec.UnreadableCount,
		HasText:         rec.HasText,
		ParagraphCount:  rec.ParagraphCount,
		Text:            rec.Text,
		DiagnosticCount: len(rec.Diagnostics),
	}, nil
}

const fileColumns = `
	f.id, f.path, f.content_hash, f.size, f.parsed_at, f.block_count, f.unreadable_count,
	f.has_text, f.paragraph_count, f.page_text,
	(SELECT COUNT(*) FROM diagnostics d WHERE d.file_id = f.id)`

type rowScanner interface {
	Scan(dest ...any) error
}

func scanFile(row rowScanner) (*File, error) {
	var f File
	var hash []byte
	if err := row.Scan(&f.ID, &f.Path, &hash, &f.Size, &f.ParsedAtNs, &f.BlockCount, &f.UnreadableCount,
		&f.HasText, &f.ParagraphCount, &f.Text, &f.DiagnosticCount); err != nil {
		return nil, err
	}
	copy(f.ContentHash[:], hash)
	return &f, nil
}

// GetFile retrieves the catalog entry for a path. It returns nil if the path
// has never been recorded.
func (s *Store) GetFile(path string) (*File, error) {
	f, err := scanFile(s.db.QueryRow("SELECT "+fileColumns+" FROM files f WHERE f.path = ?", path))
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, nil
		}
		return nil, fmt.Errorf("get file: %w", err)
	}
	return f, nil
}

// IsCurrent reports whether path was last recorded with the given content.
func (s *Store) IsCurrent(path string, hash [32]byte) (bool, error) {
	var n int
	err := s.db.QueryRow("SELECT COUNT(*) FROM files WHERE path = ? AND content_hash = ?", path, hash[:]).Scan(&n)
	if err != nil {
		return false, fmt.Errorf("check file: %w", err)
	}
	return n > 0, nil
}

// ListFiles returns every catalog entry ordered by path.
func (s *Store) ListFiles() ([]File, error) {
	rows, err := s.db.Query("SELECT " + fileColumns + " FROM files f ORDER BY f.path")
	if err != nil {
		return nil, fmt.Errorf("query files: %w", err)
	}
	defer rows.Close()

	var files []File
	for rows.Next() {
		f, err := scanFile(rows)
		if err != nil {
			return nil, fmt.Errorf("scan file: %w", err)
		}
		files = append(files, *f)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate files: %w", err)
	}
	return files, nil
}

// Diagnostics returns the diagnostics of a file's latest parse in the order
// they were reported.
func (s *Store) Diagnostics(fileID int64) ([]Diagnostic, error) {
	rows, err := s.db.Query(`
		SELECT file_id, ordinal, block_index, block_type, byte_offset, kind, reason
		FROM diagnostics WHERE file_id = ?
		ORDER BY ordinal ASC`, fileID,
	)
	if err != nil {
		return nil, fmt.Errorf("query diagnostics: %w", err)
	}
	defer rows.Close()

	var diags []Diagnostic
	for rows.Next() {
		var d Diagnostic
		var kind string
		if err := rows.Scan(&d.FileID, &d.Ordinal, &d.BlockIndex, &d.BlockType, &d.Offset, &kind, &d.Reason); err != nil {
			return nil, fmt.Errorf("scan diagnostic: %w", err)
		}
		d.Kind = diag.Kind(kind)
		diags = append(diags, d)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate diagnostics: %w", err)
	}
	return diags, nil
}

// History returns every recorded parse of a file, oldest first.
func (s *Store) History(fileID int64) ([]Parse, error) {
	rows, err := s.db.Query(`
		SELECT file_id, content_hash, parsed_at, block_count, unreadable_count, diagnostic_count
		FROM parses WHERE file_id = ?
		ORDER BY parsed_at ASC, id ASC`, fileID,
	)
	if err != nil {
		return nil, fmt.Errorf("query parses: %w", err)
	}
	defer rows.Close()

	var parses []Parse
	for rows.Next() {
		var p Parse
		var hash []byte
		if err := rows.Scan(&p.FileID, &hash, &p.ParsedAtNs, &p.BlockCount, &p.UnreadableCount, &p.DiagnosticCount); err != nil {
			return nil, fmt.Errorf("scan parse: %w", err)
		}
		copy(p.ContentHash[:], hash)
		parses = append(parses, p)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate parses: %w", err)
	}
	return parses, nil
}

// DiagnosticCounts returns the number of stored diagnostics of each kind.
func (s *Store) DiagnosticCounts() (map[string]int, error) {
	rows, err := s.db.Query("SELECT kind, COUNT(*) FROM diagnostics GROUP BY kind")
	if err != nil {
		return nil, fmt.Errorf("query diagnostic counts: %w", err)
	}
	defer rows.Close()

	counts := make(map[string]int)
	for rows.Next() {
		var kind string
		var n int
		if err := rows.Scan(&kind, &n); err != nil {
			return nil, fmt.Errorf("scan diagnostic count: %w", err)
		}
		counts[kind] = n
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate diagnostic counts: %w", err)
	}
	return counts, nil
}

// RemoveFile deletes a file with its diagnostics and history. Removing an
// unknown path is not an error.
func (s *Store) RemoveFile(path string) error {
	if _, err := s.db.Exec("DELETE FROM files WHERE path = ?", path); err != nil {
		return fmt.Errorf("remove file: %w", err)
	}
	return nil
}
