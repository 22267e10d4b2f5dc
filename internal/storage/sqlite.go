package storage

import (
	"context"
	"database/sql"
	"embed"
	"encoding/binary"
	"errors"
	"fmt"
	"math"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"time"

	_ "modernc.org/sqlite"

	"github.com/kalambet/sverka/internal/retrieval"
)

//go:embed migrations/*.sql
var migrationsFS embed.FS

// Store wraps a SQLite database holding persisted project indexes.
type Store struct {
	db *sql.DB
}

// Open opens (or creates) a SQLite database in dataDir and runs pending migrations.
// Pass ":memory:" as dataDir for an in-memory database (used by tests).
func Open(dataDir string) (*Store, error) {
	var dsn string
	if dataDir == ":memory:" {
		dsn = ":memory:"
	} else {
		if err := os.MkdirAll(dataDir, 0o755); err != nil {
			return nil, fmt.Errorf("creating data directory: %w", err)
		}
		dsn = filepath.Join(dataDir, "sverka.db")
	}

	db, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, fmt.Errorf("opening database: %w", err)
	}
	if err := db.Ping(); err != nil {
		db.Close()
		return nil, fmt.Errorf("pinging database: %w", err)
	}

	// Limit to single connection to avoid "database is locked" errors.
	db.SetMaxOpenConns(1)

	// Set busy timeout so concurrent access waits briefly instead of failing immediately.
	if _, err := db.Exec("PRAGMA busy_timeout = 5000"); err != nil {
		db.Close()
		return nil, fmt.Errorf("setting busy timeout: %w", err)
	}

	// Enable WAL mode for better concurrent read performance.
	if _, err := db.Exec("PRAGMA journal_mode=WAL"); err != nil {
		db.Close()
		return nil, fmt.Errorf("setting journal mode: %w", err)
	}

	s := &Store{db: db}
	if err := s.migrate(); err != nil {
		db.Close()
		return nil, fmt.Errorf("running migrations: %w", err)
	}

	return s, nil
}

// Close closes the underlying database connection.
func (s *Store) Close() error {
	return s.db.Close()
}

// migrate reads embedded SQL migration files and applies any that haven't been run yet.
func (s *Store) migrate() error {
	// Ensure schema_version table exists (bootstrap).
	if _, err := s.db.Exec(`CREATE TABLE IF NOT EXISTS schema_version (
		version INTEGER PRIMARY KEY,
		applied_at DATETIME DEFAULT CURRENT_TIMESTAMP
	)`); err != nil {
		return fmt.Errorf("creating schema_version table: %w", err)
	}

	entries, err := migrationsFS.ReadDir("migrations")
	if err != nil {
		return fmt.Errorf("reading migrations directory: %w", err)
	}

	// Sort by filename to guarantee ascending order.
	sort.Slice(entries, func(i, j int) bool {
		return entries[i].Name() < entries[j].Name()
	})

	for _, entry := range entries {
		if entry.IsDir() || !strings.HasSuffix(entry.Name(), ".sql") {
			continue
		}

		version, err := parseMigrationVersion(entry.Name())
		if err != nil {
			return err
		}

		// Check if already applied.
		var exists int
		if err := s.db.QueryRow("SELECT COUNT(*) FROM schema_version WHERE version = ?", version).Scan(&exists); err != nil {
			return fmt.Errorf("checking migration %d: %w", version, err)
		}
		if exists > 0 {
			continue
		}

		content, err := migrationsFS.ReadFile("migrations/" + entry.Name())
		if err != nil {
			return fmt.Errorf("reading migration %s: %w", entry.Name(), err)
		}

		tx, err := s.db.Begin()
		if err != nil {
			return fmt.Errorf("beginning transaction for migration %d: %w", version, err)
		}

		if _, err := tx.Exec(string(content)); err != nil {
			tx.Rollback()
			return fmt.Errorf("applying migration %d: %w", version, err)
		}

		if _, err := tx.Exec("INSERT INTO schema_version (version) VALUES (?)", version); err != nil {
			tx.Rollback()
			return fmt.Errorf("recording migration %d: %w", version, err)
		}

		if err := tx.Commit(); err != nil {
			return fmt.Errorf("committing migration %d: %w", version, err)
		}
	}

	return nil
}

func parseMigrationVersion(filename string) (int, error) {
	var version int
	if _, err := fmt.Sscanf(filename, "%d_", &version); err != nil {
		return 0, fmt.Errorf("parsing migration version from %q: %w", filename, err)
	}
	return version, nil
}

// AppliedMigrations returns the list of applied migration versions in ascending order.
func (s *Store) AppliedMigrations() ([]int, error) {
	rows, err := s.db.Query("SELECT version FROM schema_version ORDER BY version ASC")
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var versions []int
	for rows.Next() {
		var v int
		if err := rows.Scan(&v); err != nil {
			return nil, err
		}
		versions = append(versions, v)
	}
	return versions, rows.Err()
}

// SaveIndex replaces the stored index of project with chunks and their
// aligned embeddings, recording docsDir as the folder they were built from.
func (s *Store) SaveIndex(ctx context.Context, project, docsDir string, chunks []retrieval.Chunk, vectors [][]float32) error {
	if len(chunks) != len(vectors) {
		return fmt.Errorf("saving index %q: %d vectors for %d chunks", project, len(vectors), len(chunks))
	}
	dim := 0
	if len(vectors) > 0 {
		dim = len(vectors[0])
	}

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("beginning index transaction: %w", err)
	}
	defer tx.Rollback()

	if _, err := tx.ExecContext(ctx, "DELETE FROM index_chunks WHERE project = ?", project); err != nil {
		return fmt.Errorf("clearing index %q: %w", project, err)
	}

	stmt, err := tx.PrepareContext(ctx, `
		INSERT INTO index_chunks (project, position, content, source_id, page, slide, embedding)
		VALUES (?, ?, ?, ?, ?, ?, ?)`)
	if err != nil {
		return fmt.Errorf("preparing chunk insert: %w", err)
	}
	defer stmt.Close()

	for i, c := range chunks {
		if len(vectors[i]) != dim {
			return fmt.Errorf("saving index %q: chunk %d has dimension %d, want %d", project, i, len(vectors[i]), dim)
		}
		if _, err := stmt.ExecContext(ctx, project, i, c.Content, c.SourceID, c.Page, c.Slide, encodeVector(vectors[i])); err != nil {
			return fmt.Errorf("inserting chunk %d: %w", i, err)
		}
	}

	if _, err := tx.ExecContext(ctx, `
		INSERT INTO index_meta (project, docs_dir, chunk_count, dimension, built_at) VALUES (?, ?, ?, ?, ?)
		ON CONFLICT(project) DO UPDATE SET docs_dir = excluded.docs_dir,
			chunk_count = excluded.chunk_count, dimension = excluded.dimension,
			built_at = excluded.built_at`,
		project, docsDir, len(chunks), dim, time.Now().UTC().Format(time.RFC3339),
	); err != nil {
		return fmt.Errorf("recording index %q: %w", project, err)
	}

	return tx.Commit()
}

// LoadIndex returns the stored chunks and embeddings of project in index
// order. It returns ErrNotFound when nothing is stored for project or the
// stored index was built from a folder other than docsDir.
func (s *Store) LoadIndex(ctx context.Context, project, docsDir string) ([]retrieval.Chunk, [][]float32, error) {
	var builtFrom string
	err := s.db.QueryRowContext(ctx, "SELECT docs_dir FROM index_meta WHERE project = ?", project).Scan(&builtFrom)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil, ErrNotFound
	}
	if err != nil {
		return nil, nil, err
	}
	if builtFrom != docsDir {
		return nil, nil, ErrNotFound
	}

	rows, err := s.db.QueryContext(ctx, `
		SELECT content, source_id, page, slide, embedding
		FROM index_chunks WHERE project = ? ORDER BY position ASC`, project)
	if err != nil {
		return nil, nil, err
	}
	defer rows.Close()

	var (
		chunks  []retrieval.Chunk
		vectors [][]float32
	)
	for rows.Next() {
		var c retrieval.Chunk
		var blob []byte
		if err := rows.Scan(&c.Content, &c.SourceID, &c.Page, &c.Slide, &blob); err != nil {
			return nil, nil, err
		}
		vec, err := decodeVector(blob)
		if err != nil {
			return nil, nil, fmt.Errorf("decoding chunk %d of %q: %w", len(chunks), project, err)
		}
		chunks = append(chunks, c)
		vectors = append(vectors, vec)
	}
	if err := rows.Err(); err != nil {
		return nil, nil, err
	}
	if len(chunks) == 0 {
		return nil, nil, ErrNotFound
	}
	return chunks, vectors, nil
}

// DeleteIndex removes the stored index of project. Deleting a missing index
// is not an error.
func (s *Store) DeleteIndex(ctx context.Context, project string) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return err
	}
	defer tx.Rollback()
	if _, err := tx.ExecContext(ctx, "DELETE FROM index_chunks WHERE project = ?", project); err != nil {
		return err
	}
	if _, err := tx.ExecContext(ctx, "DELETE FROM index_meta WHERE project = ?", project); err != nil {
		return err
	}
	return tx.Commit()
}

// ListIndexes returns metadata for every stored index ordered by project.
func (s *Store) ListIndexes(ctx context.Context) ([]IndexInfo, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT project, docs_dir, chunk_count, dimension, built_at FROM index_meta ORDER BY project ASC`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []IndexInfo
	for rows.Next() {
		var info IndexInfo
		var builtAt string
		if err := rows.Scan(&info.Project, &info.DocsDir, &info.ChunkCount, &info.Dimension, &builtAt); err != nil {
			return nil, err
		}
		t, err := time.Parse(time.RFC3339, builtAt)
		if err != nil {
			return nil, fmt.Errorf("parsing built_at: %w", err)
		}
		info.BuiltAt = t
		out = append(out, info)
	}
	return out, rows.Err()
}

// encodeVector stores float32 values little-endian, 4 bytes each.
func encodeVector(v []float32) []byte {
	buf := make([]byte, 4*len(v))
	for i, f := range v {
		binary.LittleEndian.PutUint32(buf[4*i:], math.Float32bits(f))
	}
	return buf
}

func decodeVector(b []byte) ([]float32, error) {
	if len(b)%4 != 0 {
		return nil, fmt.Errorf("embedding blob length %d is not a multiple of 4", len(b))
	}
	v := make([]float32, len(b)/4)
	for i := range v {
		v[i] = math.Float32frombits(binary.LittleEndian.Uint32(b[4*i:]))
	}
	return v, nil
}
