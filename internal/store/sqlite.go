package store

import (
	"context"
	"database/sql"
	"encoding/binary"
	"encoding/json"
	"fmt"
	"math"
	"sort"
	"strings"
	"time"

	_ "modernc.org/sqlite"

	"github.com/postly/scout/internal/model"
)

// Timestamps are stored as unix seconds so comparisons stay portable
// across driver text formats.
const schema = `
CREATE TABLE IF NOT EXISTS jobs (
	id              TEXT PRIMARY KEY,
	dedup_key       TEXT NOT NULL UNIQUE,
	title           TEXT NOT NULL,
	company         TEXT NOT NULL,
	description     TEXT NOT NULL,
	location        TEXT NOT NULL DEFAULT '',
	salary_min      REAL,
	salary_max      REAL,
	employment_type TEXT NOT NULL DEFAULT '',
	workplace       TEXT NOT NULL DEFAULT '',
	skills          TEXT NOT NULL DEFAULT '[]',
	min_experience  INTEGER,
	apply_url       TEXT NOT NULL DEFAULT '',
	source          TEXT NOT NULL,
	meta            TEXT NOT NULL DEFAULT '{}',
	embedding       BLOB,
	active          INTEGER NOT NULL DEFAULT 1,
	posted_at       INTEGER,
	first_seen      INTEGER NOT NULL,
	expires_at      INTEGER
);

CREATE INDEX IF NOT EXISTS idx_jobs_source_active ON jobs(source, active);
CREATE INDEX IF NOT EXISTS idx_jobs_expires ON jobs(expires_at);
CREATE INDEX IF NOT EXISTS idx_jobs_first_seen ON jobs(first_seen);

CREATE VIRTUAL TABLE IF NOT EXISTS jobs_fts USING fts5(
	title, company, description, skills, location,
	content='jobs',
	content_rowid='rowid'
);

CREATE TRIGGER IF NOT EXISTS jobs_ai AFTER INSERT ON jobs BEGIN
	INSERT INTO jobs_fts(rowid, title, company, description, skills, location)
	VALUES (new.rowid, new.title, new.company, new.description, new.skills, new.location);
END;

CREATE TRIGGER IF NOT EXISTS jobs_ad AFTER DELETE ON jobs BEGIN
	INSERT INTO jobs_fts(jobs_fts, rowid, title, company, description, skills, location)
	VALUES ('delete', old.rowid, old.title, old.company, old.description, old.skills, old.location);
END;

CREATE TRIGGER IF NOT EXISTS jobs_au AFTER UPDATE ON jobs BEGIN
	INSERT INTO jobs_fts(jobs_fts, rowid, title, company, description, skills, location)
	VALUES ('delete', old.rowid, old.title, old.company, old.description, old.skills, old.location);
	INSERT INTO jobs_fts(rowid, title, company, description, skills, location)
	VALUES (new.rowid, new.title, new.company, new.description, new.skills, new.location);
END;
`

const jobColumns = `id, dedup_key, title, company, description, location,
	salary_min, salary_max, employment_type, workplace, skills, min_experience,
	apply_url, source, meta, embedding, active, posted_at, first_seen, expires_at`

// SQLiteStore persists jobs, a keyword index, and embedding vectors in one
// SQLite database. Keyword search runs through an FTS5 table kept in sync
// by triggers; vector search deserializes embedding blobs and ranks by
// cosine similarity in Go.
type SQLiteStore struct {
	db *sql.DB
}

var _ model.Store = (*SQLiteStore)(nil)

// NewSQLiteStore opens (or creates) a SQLite database at dbPath and ensures
// the schema exists.
func NewSQLiteStore(dbPath string) (*SQLiteStore, error) {
	db, err := sql.Open("sqlite", dbPath)
	if err != nil {
		return nil, fmt.Errorf("opening sqlite db: %w", err)
	}

	// Verify the connection is alive.
	if err := db.Ping(); err != nil {
		db.Close()
		return nil, fmt.Errorf("pinging sqlite db: %w", err)
	}

	if _, err := db.Exec(schema); err != nil {
		db.Close()
		return nil, fmt.Errorf("creating schema: %w", err)
	}

	return &SQLiteStore{db: db}, nil
}

// UpsertBatch inserts jobs in one transaction. A dedup-key conflict updates
// the mutable fields of the existing row and re-activates it; the original
// id and first_seen survive. An upsert without an embedding keeps the one
// already stored. On error the transaction rolls back and the count is
// zero; no rows from the batch persist.
func (s *SQLiteStore) UpsertBatch(ctx context.Context, jobs []model.Job) (int, error) {
	if len(jobs) == 0 {
		return 0, nil
	}

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return 0, fmt.Errorf("beginning upsert transaction: %w", err)
	}
	defer tx.Rollback()

	stmt, err := tx.PrepareContext(ctx, `
		INSERT INTO jobs (`+jobColumns+`)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT(dedup_key) DO UPDATE SET
			title           = excluded.title,
			company         = excluded.company,
			description     = excluded.description,
			location        = excluded.location,
			salary_min      = excluded.salary_min,
			salary_max      = excluded.salary_max,
			employment_type = excluded.employment_type,
			workplace       = excluded.workplace,
			skills          = excluded.skills,
			min_experience  = excluded.min_experience,
			apply_url       = excluded.apply_url,
			meta            = excluded.meta,
			embedding       = COALESCE(excluded.embedding, jobs.embedding),
			active          = 1,
			posted_at       = COALESCE(excluded.posted_at, jobs.posted_at),
			expires_at      = excluded.expires_at`)
	if err != nil {
		return 0, fmt.Errorf("preparing upsert: %w", err)
	}
	defer stmt.Close()

	written := 0
	for _, j := range jobs {
		skills, err := json.Marshal(j.Skills)
		if err != nil {
			return 0, fmt.Errorf("marshaling skills for %s: %w", j.DedupKey, err)
		}
		meta, err := json.Marshal(j.Meta)
		if err != nil {
			return 0, fmt.Errorf("marshaling meta for %s: %w", j.DedupKey, err)
		}

		_, err = stmt.ExecContext(ctx,
			j.ID, j.DedupKey, j.Title, j.Company, j.Description, j.Location,
			j.SalaryMin, j.SalaryMax, j.EmploymentType, j.Workplace,
			string(skills), j.MinExperience, j.ApplyURL, j.Source, string(meta),
			serializeVector(j.Embedding), boolToInt(j.Active),
			unixOrNil(j.PostedAt), j.FirstSeen.Unix(), unixOrNil(j.ExpiresAt))
		if err != nil {
			return 0, fmt.Errorf("upserting job %s: %w", j.DedupKey, err)
		}
		written++
	}

	if err := tx.Commit(); err != nil {
		return 0, fmt.Errorf("committing upsert: %w", err)
	}
	return written, nil
}

// GetKnownKeys returns the dedup keys of all active jobs for a source.
func (s *SQLiteStore) GetKnownKeys(ctx context.Context, source string) (map[string]struct{}, error) {
	rows, err := s.db.QueryContext(ctx,
		"SELECT dedup_key FROM jobs WHERE source = ? AND active = 1", source)
	if err != nil {
		return nil, fmt.Errorf("querying known keys for %s: %w", source, err)
	}
	defer rows.Close()

	known := make(map[string]struct{})
	for rows.Next() {
		var key string
		if err := rows.Scan(&key); err != nil {
			return nil, fmt.Errorf("scanning known key: %w", err)
		}
		known[key] = struct{}{}
	}
	return known, rows.Err()
}

// VectorSearch ranks active embedded jobs by cosine similarity against the
// query embedding. Candidate vectors are deserialized and scored in Go; a
// dimension mismatch skips the row.
func (s *SQLiteStore) VectorSearch(ctx context.Context, embedding []float32, limit int, filters model.SearchFilters) ([]model.ScoredJob, error) {
	if limit <= 0 || len(embedding) == 0 {
		return nil, nil
	}

	query := "SELECT " + jobColumns + " FROM jobs WHERE active = 1 AND embedding IS NOT NULL"
	query, args := applyFilters(query, nil, filters)

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("querying embedded jobs: %w", err)
	}
	defer rows.Close()

	var scored []model.ScoredJob
	for rows.Next() {
		job, err := scanJob(rows)
		if err != nil {
			return nil, err
		}
		if len(job.Embedding) != len(embedding) {
			continue
		}
		scored = append(scored, model.ScoredJob{
			Job:   job,
			Score: cosineSimilarity(embedding, job.Embedding),
		})
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}

	sort.Slice(scored, func(i, j int) bool { return scored[i].Score > scored[j].Score })
	if len(scored) > limit {
		scored = scored[:limit]
	}
	return scored, nil
}

// KeywordSearch runs an FTS5 match over active jobs and scores by bm25.
// The raw bm25 rank (lower is better) is folded into a positive
// higher-is-better score so callers can normalize uniformly.
func (s *SQLiteStore) KeywordSearch(ctx context.Context, query string, limit int, filters model.SearchFilters) ([]model.ScoredJob, error) {
	if limit <= 0 {
		return nil, nil
	}
	match := ftsMatchExpr(query)
	if match == "" {
		return nil, nil
	}

	sqlQuery := `SELECT ` + prefixColumns("jobs") + `, bm25(jobs_fts) AS rank
		FROM jobs_fts
		JOIN jobs ON jobs.rowid = jobs_fts.rowid
		WHERE jobs_fts MATCH ? AND jobs.active = 1`
	args := []any{match}
	sqlQuery, args = applyFilters(sqlQuery, args, filters)
	sqlQuery += " ORDER BY rank LIMIT ?"
	args = append(args, limit)

	rows, err := s.db.QueryContext(ctx, sqlQuery, args...)
	if err != nil {
		return nil, fmt.Errorf("querying keyword index: %w", err)
	}
	defer rows.Close()

	var scored []model.ScoredJob
	for rows.Next() {
		job, rank, err := scanJobWithRank(rows)
		if err != nil {
			return nil, err
		}
		scored = append(scored, model.ScoredJob{
			Job:   job,
			Score: 1.0 / (1.0 + math.Abs(rank)/50.0),
		})
	}
	return scored, rows.Err()
}

// MarkInactive flags a job as no longer listed without deleting it.
func (s *SQLiteStore) MarkInactive(ctx context.Context, dedupKey string) error {
	_, err := s.db.ExecContext(ctx,
		"UPDATE jobs SET active = 0 WHERE dedup_key = ?", dedupKey)
	if err != nil {
		return fmt.Errorf("marking %s inactive: %w", dedupKey, err)
	}
	return nil
}

// DeleteExpired removes jobs whose expiry has passed.
func (s *SQLiteStore) DeleteExpired(ctx context.Context) (int, error) {
	res, err := s.db.ExecContext(ctx,
		"DELETE FROM jobs WHERE expires_at IS NOT NULL AND expires_at < ?",
		time.Now().Unix())
	if err != nil {
		return 0, fmt.Errorf("deleting expired jobs: %w", err)
	}
	n, _ := res.RowsAffected()
	return int(n), nil
}

// DeleteStale removes jobs first seen longer ago than olderThan.
func (s *SQLiteStore) DeleteStale(ctx context.Context, olderThan time.Duration) (int, error) {
	cutoff := time.Now().Add(-olderThan).Unix()
	res, err := s.db.ExecContext(ctx,
		"DELETE FROM jobs WHERE first_seen < ?", cutoff)
	if err != nil {
		return 0, fmt.Errorf("deleting jobs older than %v: %w", olderThan, err)
	}
	n, _ := res.RowsAffected()
	return int(n), nil
}

// JobsWithoutEmbedding returns active jobs still missing a vector, oldest
// first, for the background embedding sweep.
func (s *SQLiteStore) JobsWithoutEmbedding(ctx context.Context, limit int) ([]model.Job, error) {
	if limit <= 0 {
		return nil, nil
	}
	rows, err := s.db.QueryContext(ctx,
		"SELECT "+jobColumns+" FROM jobs WHERE active = 1 AND embedding IS NULL ORDER BY first_seen LIMIT ?",
		limit)
	if err != nil {
		return nil, fmt.Errorf("querying jobs without embedding: %w", err)
	}
	defer rows.Close()

	var jobs []model.Job
	for rows.Next() {
		job, err := scanJob(rows)
		if err != nil {
			return nil, err
		}
		jobs = append(jobs, job)
	}
	return jobs, rows.Err()
}

// UpdateEmbeddings writes vectors for the given job IDs. Returns the number
// of rows updated.
func (s *SQLiteStore) UpdateEmbeddings(ctx context.Context, updates map[string][]float32) (int, error) {
	if len(updates) == 0 {
		return 0, nil
	}

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return 0, fmt.Errorf("beginning embedding update: %w", err)
	}
	defer tx.Rollback()

	updated := 0
	for id, vector := range updates {
		if vector == nil {
			continue
		}
		res, err := tx.ExecContext(ctx,
			"UPDATE jobs SET embedding = ? WHERE id = ?", serializeVector(vector), id)
		if err != nil {
			return 0, fmt.Errorf("updating embedding for %s: %w", id, err)
		}
		n, _ := res.RowsAffected()
		updated += int(n)
	}

	if err := tx.Commit(); err != nil {
		return 0, fmt.Errorf("committing embedding update: %w", err)
	}
	return updated, nil
}

// Close closes the underlying database connection.
func (s *SQLiteStore) Close() error {
	return s.db.Close()
}

// applyFilters appends WHERE conditions for the optional search filters.
func applyFilters(query string, args []any, filters model.SearchFilters) (string, []any) {
	if filters.RemoteOnly {
		query += " AND workplace = ?"
		args = append(args, model.WorkplaceRemote)
	}
	if filters.EmploymentType != "" {
		query += " AND employment_type = ?"
		args = append(args, filters.EmploymentType)
	}
	if filters.Source != "" {
		query += " AND source = ?"
		args = append(args, filters.Source)
	}
	return query, args
}

// ftsMatchExpr quotes each query token so user input cannot inject FTS5
// operators. Tokens are combined with the implicit AND.
func ftsMatchExpr(query string) string {
	fields := strings.Fields(query)
	if len(fields) == 0 {
		return ""
	}
	quoted := make([]string, len(fields))
	for i, f := range fields {
		quoted[i] = `"` + strings.ReplaceAll(f, `"`, `""`) + `"`
	}
	return strings.Join(quoted, " ")
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanJob(row rowScanner) (model.Job, error) {
	var (
		j          model.Job
		salaryMin  sql.NullFloat64
		salaryMax  sql.NullFloat64
		minExp     sql.NullInt64
		skillsJSON string
		metaJSON   string
		embedding  []byte
		active     int
		postedAt   sql.NullInt64
		firstSeen  int64
		expiresAt  sql.NullInt64
	)
	err := row.Scan(&j.ID, &j.DedupKey, &j.Title, &j.Company, &j.Description,
		&j.Location, &salaryMin, &salaryMax, &j.EmploymentType, &j.Workplace,
		&skillsJSON, &minExp, &j.ApplyURL, &j.Source, &metaJSON, &embedding,
		&active, &postedAt, &firstSeen, &expiresAt)
	if err != nil {
		return model.Job{}, fmt.Errorf("scanning job row: %w", err)
	}
	return buildJob(j, salaryMin, salaryMax, minExp, skillsJSON, metaJSON,
		embedding, active, postedAt, firstSeen, expiresAt)
}

func scanJobWithRank(row rowScanner) (model.Job, float64, error) {
	var (
		j          model.Job
		salaryMin  sql.NullFloat64
		salaryMax  sql.NullFloat64
		minExp     sql.NullInt64
		skillsJSON string
		metaJSON   string
		embedding  []byte
		active     int
		postedAt   sql.NullInt64
		firstSeen  int64
		expiresAt  sql.NullInt64
		rank       float64
	)
	err := row.Scan(&j.ID, &j.DedupKey, &j.Title, &j.Company, &j.Description,
		&j.Location, &salaryMin, &salaryMax, &j.EmploymentType, &j.Workplace,
		&skillsJSON, &minExp, &j.ApplyURL, &j.Source, &metaJSON, &embedding,
		&active, &postedAt, &firstSeen, &expiresAt, &rank)
	if err != nil {
		return model.Job{}, 0, fmt.Errorf("scanning ranked job row: %w", err)
	}
	job, err := buildJob(j, salaryMin, salaryMax, minExp, skillsJSON, metaJSON,
		embedding, active, postedAt, firstSeen, expiresAt)
	return job, rank, err
}

func buildJob(j model.Job, salaryMin, salaryMax sql.NullFloat64, minExp sql.NullInt64,
	skillsJSON, metaJSON string, embedding []byte, active int,
	postedAt sql.NullInt64, firstSeen int64, expiresAt sql.NullInt64) (model.Job, error) {

	if salaryMin.Valid {
		j.SalaryMin = &salaryMin.Float64
	}
	if salaryMax.Valid {
		j.SalaryMax = &salaryMax.Float64
	}
	if minExp.Valid {
		v := int(minExp.Int64)
		j.MinExperience = &v
	}
	if err := json.Unmarshal([]byte(skillsJSON), &j.Skills); err != nil {
		return model.Job{}, fmt.Errorf("parsing skills for %s: %w", j.DedupKey, err)
	}
	if err := json.Unmarshal([]byte(metaJSON), &j.Meta); err != nil {
		return model.Job{}, fmt.Errorf("parsing meta for %s: %w", j.DedupKey, err)
	}
	j.Embedding = deserializeVector(embedding)
	j.Active = active == 1
	if postedAt.Valid {
		t := time.Unix(postedAt.Int64, 0).UTC()
		j.PostedAt = &t
	}
	j.FirstSeen = time.Unix(firstSeen, 0).UTC()
	if expiresAt.Valid {
		t := time.Unix(expiresAt.Int64, 0).UTC()
		j.ExpiresAt = &t
	}
	return j, nil
}

// prefixColumns qualifies the job column list with a table name for joins.
func prefixColumns(table string) string {
	cols := strings.Split(jobColumns, ",")
	for i, c := range cols {
		cols[i] = table + "." + strings.TrimSpace(c)
	}
	return strings.Join(cols, ", ")
}

func boolToInt(b bool) int {
	if b {
		return 1
	}
	return 0
}

func unixOrNil(t *time.Time) any {
	if t == nil {
		return nil
	}
	return t.Unix()
}

// serializeVector encodes a float32 vector as a little-endian blob. A nil
// vector stays nil so the column remains NULL.
func serializeVector(vector []float32) []byte {
	if vector == nil {
		return nil
	}
	blob := make([]byte, len(vector)*4)
	for i, v := range vector {
		binary.LittleEndian.PutUint32(blob[i*4:], math.Float32bits(v))
	}
	return blob
}

func deserializeVector(blob []byte) []float32 {
	if len(blob) == 0 {
		return nil
	}
	vector := make([]float32, len(blob)/4)
	for i := range vector {
		vector[i] = math.Float32frombits(binary.LittleEndian.Uint32(blob[i*4:]))
	}
	return vector
}

// cosineSimilarity computes the cosine similarity between two vectors of
// equal dimension. Zero-magnitude vectors score zero.
func cosineSimilarity(a, b []float32) float64 {
	var dot, normA, normB float64
	for i := range a {
		dot += float64(a[i]) * float64(b[i])
		normA += float64(a[i]) * float64(a[i])
		normB += float64(b[i]) * float64(b[i])
	}
	if normA == 0 || normB == 0 {
		return 0
	}
	return dot / (math.Sqrt(normA) * math.Sqrt(normB))
}
