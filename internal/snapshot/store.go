package snapshot

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"sort"
	"strconv"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/tendant/product-snapshot-pipeline/internal/normalize"
	"github.com/tendant/product-snapshot-pipeline/pkg/pipeline"
)

// Dialect selects the SQL flavor for the backing store
type Dialect string

const (
	DialectPostgres Dialect = "postgres"
	DialectSQLite   Dialect = "sqlite"
)

// PersistenceError signals that the backing store is unavailable. It is
// distinct from a same-fingerprint race, which Save resolves by returning
// the winning row.
type PersistenceError struct {
	Op  string
	Err error
}

func (e *PersistenceError) Error() string {
	return fmt.Sprintf("snapshot store %s failed: %v", e.Op, e.Err)
}

func (e *PersistenceError) Unwrap() error {
	return e.Err
}

// Store persists product snapshots. It is the only component with durable
// state; all writes go through Save, which carries the atomic
// insert-or-detect-conflict guarantee.
type Store struct {
	db      *sql.DB
	dialect Dialect
}

// NewStore creates a snapshot store over an open database handle
func NewStore(db *sql.DB, dialect Dialect) *Store {
	return &Store{db: db, dialect: dialect}
}

// EnsureSchema creates the snapshot table and its indexes if missing.
// The partial unique index is what enforces at-most-one completed snapshot
// per (product, fingerprint) under concurrent writers.
func (s *Store) EnsureSchema(ctx context.Context) error {
	stmts := []string{
		`CREATE TABLE IF NOT EXISTS product_snapshots (
			id                TEXT PRIMARY KEY,
			product_id        TEXT NOT NULL,
			captured_at_us    BIGINT NOT NULL,
			fingerprint       TEXT NOT NULL,
			image_digest      TEXT NOT NULL DEFAULT '',
			image_size        BIGINT NOT NULL DEFAULT 0,
			status            TEXT NOT NULL,
			normalized_result TEXT,
			raw_result_blob   TEXT,
			error_reason      TEXT
		)`,
		`CREATE UNIQUE INDEX IF NOT EXISTS idx_product_snapshots_dedupe
			ON product_snapshots(product_id, fingerprint)
			WHERE status = 'completed'`,
		`CREATE INDEX IF NOT EXISTS idx_product_snapshots_latest
			ON product_snapshots(product_id, captured_at_us DESC)`,
	}
	for _, stmt := range stmts {
		if _, err := s.db.ExecContext(ctx, stmt); err != nil {
			return fmt.Errorf("failed to ensure snapshot schema: %w", err)
		}
	}
	return nil
}

// Save persists one snapshot and returns the stored row. CapturedAt and ID
// are assigned at commit time.
//
// For completed snapshots the insert races against the partial unique index:
// when another writer already stored the same (product, fingerprint), the
// insert is a no-op and the winning row is read back and returned — both
// callers end up holding the same snapshot id. Failed snapshots always insert
// so the audit trail keeps every analysis attempt.
func (s *Store) Save(ctx context.Context, snap *Snapshot) (*Snapshot, error) {
	stored := *snap
	stored.ID = uuid.New().String()
	stored.CapturedAt = time.Now().UTC()

	var normalizedJSON sql.NullString
	if stored.NormalizedResult != nil {
		data, err := json.Marshal(stored.NormalizedResult)
		if err != nil {
			return nil, fmt.Errorf("failed to serialize normalized result: %w", err)
		}
		normalizedJSON = sql.NullString{String: string(data), Valid: true}
	}

	var rawBlob sql.NullString
	if len(stored.RawResultBlob) > 0 {
		rawBlob = sql.NullString{String: string(stored.RawResultBlob), Valid: true}
	}

	var errorReason sql.NullString
	if stored.ErrorReason != "" {
		errorReason = sql.NullString{String: stored.ErrorReason, Valid: true}
	}

	query := `INSERT INTO product_snapshots
		(id, product_id, captured_at_us, fingerprint, image_digest, image_size, status, normalized_result, raw_result_blob, error_reason)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`
	if stored.Status == pipeline.StatusCompleted {
		query += ` ON CONFLICT (product_id, fingerprint) WHERE status = 'completed' DO NOTHING`
	}

	res, err := s.db.ExecContext(ctx, s.rebind(query),
		stored.ID,
		stored.ProductID,
		stored.CapturedAt.UnixMicro(),
		stored.Fingerprint,
		stored.ImageDigest,
		stored.ImageSize,
		stored.Status,
		normalizedJSON,
		rawBlob,
		errorReason,
	)
	if err != nil {
		return nil, &PersistenceError{Op: "save", Err: err}
	}

	rows, err := res.RowsAffected()
	if err != nil {
		return nil, &PersistenceError{Op: "save", Err: err}
	}
	if rows > 0 {
		return &stored, nil
	}

	// Lost the race: another writer stored the same fingerprint first.
	// Re-read and return the winning row.
	winner, err := s.completedByFingerprint(ctx, stored.ProductID, stored.Fingerprint)
	if err != nil {
		return nil, err
	}
	if winner == nil {
		return nil, &PersistenceError{Op: "save", Err: fmt.Errorf("conflicting row for product %s not found after insert no-op", stored.ProductID)}
	}
	return winner, nil
}

// LatestCompleted returns the most recent completed snapshot for a product,
// or nil when none exists
func (s *Store) LatestCompleted(ctx context.Context, productID string) (*Snapshot, error) {
	query := s.rebind(selectColumns + ` FROM product_snapshots
		WHERE product_id = ? AND status = 'completed'
		ORDER BY captured_at_us DESC LIMIT 1`)
	snap, err := s.scanOne(s.db.QueryRowContext(ctx, query, productID))
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, &PersistenceError{Op: "latest", Err: err}
	}
	return snap, nil
}

// History returns snapshots for a product, newest first
func (s *Store) History(ctx context.Context, productID string, limit, offset int) ([]*Snapshot, error) {
	if limit <= 0 || limit > 1000 {
		limit = 100
	}
	if offset < 0 {
		offset = 0
	}
	query := s.rebind(selectColumns + ` FROM product_snapshots
		WHERE product_id = ?
		ORDER BY captured_at_us DESC LIMIT ` + strconv.Itoa(limit) + ` OFFSET ` + strconv.Itoa(offset))

	rows, err := s.db.QueryContext(ctx, query, productID)
	if err != nil {
		return nil, &PersistenceError{Op: "history", Err: err}
	}
	defer rows.Close()

	var snaps []*Snapshot
	for rows.Next() {
		snap, err := s.scanOne(rows)
		if err != nil {
			return nil, &PersistenceError{Op: "history", Err: err}
		}
		snaps = append(snaps, snap)
	}
	if err := rows.Err(); err != nil {
		return nil, &PersistenceError{Op: "history", Err: err}
	}
	return snaps, nil
}

// Stats summarizes the snapshot table: row counts, stored image volume, and
// the ten most frequent tags across completed snapshots
func (s *Store) Stats(ctx context.Context) (*Stats, error) {
	stats := &Stats{MostCommonTags: []TagCount{}}

	row := s.db.QueryRowContext(ctx, `SELECT
		COUNT(*),
		COALESCE(SUM(CASE WHEN status = 'completed' THEN 1 ELSE 0 END), 0),
		COALESCE(SUM(CASE WHEN status = 'failed' THEN 1 ELSE 0 END), 0),
		COALESCE(SUM(image_size), 0)
		FROM product_snapshots`)
	if err := row.Scan(&stats.TotalSnapshots, &stats.CompletedSnapshots, &stats.FailedSnapshots, &stats.TotalImageBytes); err != nil {
		return nil, &PersistenceError{Op: "stats", Err: err}
	}

	rows, err := s.db.QueryContext(ctx, `SELECT normalized_result FROM product_snapshots
		WHERE status = 'completed' AND normalized_result IS NOT NULL`)
	if err != nil {
		return nil, &PersistenceError{Op: "stats", Err: err}
	}
	defer rows.Close()

	tagCounts := make(map[string]int)
	for rows.Next() {
		var data string
		if err := rows.Scan(&data); err != nil {
			return nil, &PersistenceError{Op: "stats", Err: err}
		}
		var result normalize.NormalizedResult
		if err := json.Unmarshal([]byte(data), &result); err != nil {
			continue
		}
		for _, tag := range result.Tags {
			tagCounts[strings.ToLower(tag.Label)]++
		}
	}
	if err := rows.Err(); err != nil {
		return nil, &PersistenceError{Op: "stats", Err: err}
	}

	for tag, count := range tagCounts {
		stats.MostCommonTags = append(stats.MostCommonTags, TagCount{Tag: tag, Count: count})
	}
	sort.Slice(stats.MostCommonTags, func(i, j int) bool {
		if stats.MostCommonTags[i].Count != stats.MostCommonTags[j].Count {
			return stats.MostCommonTags[i].Count > stats.MostCommonTags[j].Count
		}
		return stats.MostCommonTags[i].Tag < stats.MostCommonTags[j].Tag
	})
	if len(stats.MostCommonTags) > 10 {
		stats.MostCommonTags = stats.MostCommonTags[:10]
	}

	return stats, nil
}

const selectColumns = `SELECT id, product_id, captured_at_us, fingerprint, image_digest, image_size, status, normalized_result, raw_result_blob, error_reason`

// scanner covers both *sql.Row and *sql.Rows
type scanner interface {
	Scan(dest ...any) error
}

func (s *Store) completedByFingerprint(ctx context.Context, productID, fp string) (*Snapshot, error) {
	query := s.rebind(selectColumns + ` FROM product_snapshots
		WHERE product_id = ? AND fingerprint = ? AND status = 'completed'
		LIMIT 1`)
	snap, err := s.scanOne(s.db.QueryRowContext(ctx, query, productID, fp))
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, &PersistenceError{Op: "read-after-conflict", Err: err}
	}
	return snap, nil
}

func (s *Store) scanOne(row scanner) (*Snapshot, error) {
	var snap Snapshot
	var capturedUs int64
	var normalizedJSON, rawBlob, errorReason sql.NullString

	err := row.Scan(
		&snap.ID,
		&snap.ProductID,
		&capturedUs,
		&snap.Fingerprint,
		&snap.ImageDigest,
		&snap.ImageSize,
		&snap.Status,
		&normalizedJSON,
		&rawBlob,
		&errorReason,
	)
	if err != nil {
		return nil, err
	}

	snap.CapturedAt = time.UnixMicro(capturedUs).UTC()
	if normalizedJSON.Valid {
		var result normalize.NormalizedResult
		if err := json.Unmarshal([]byte(normalizedJSON.String), &result); err != nil {
			return nil, fmt.Errorf("corrupt normalized_result for snapshot %s: %w", snap.ID, err)
		}
		snap.NormalizedResult = &result
	}
	if rawBlob.Valid {
		snap.RawResultBlob = json.RawMessage(rawBlob.String)
	}
	if errorReason.Valid {
		snap.ErrorReason = errorReason.String
	}
	return &snap, nil
}

// rebind converts ? placeholders to the $n form Postgres expects
func (s *Store) rebind(query string) string {
	if s.dialect != DialectPostgres {
		return query
	}
	var b strings.Builder
	n := 0
	for _, r := range query {
		if r == '?' {
			n++
			b.WriteString("$" + strconv.Itoa(n))
			continue
		}
		b.WriteRune(r)
	}
	return b.String()
}
