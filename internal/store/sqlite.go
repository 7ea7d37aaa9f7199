package store

import (
	"context"
	"database/sql"
	"encoding/json"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/rotisserie/eris"
	_ "modernc.org/sqlite"

	"github.com/sells-group/placematch/internal/model"
)

// SQLiteStore implements Store using modernc.org/sqlite.
type SQLiteStore struct {
	db *sql.DB
}

// NewSQLite opens a SQLite database at the given path and configures WAL mode.
func NewSQLite(dsn string) (*SQLiteStore, error) {
	db, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, eris.Wrap(err, "sqlite: open")
	}
	for _, pragma := range []string{
		"PRAGMA journal_mode=WAL",
		"PRAGMA busy_timeout=5000",
		"PRAGMA synchronous=NORMAL",
		"PRAGMA foreign_keys=ON",
	} {
		if _, err := db.Exec(pragma); err != nil {
			db.Close()
			return nil, eris.Wrapf(err, "sqlite: exec %s", pragma)
		}
	}
	return &SQLiteStore{db: db}, nil
}

const sqliteMigration = `
CREATE TABLE IF NOT EXISTS entities (
	id               INTEGER PRIMARY KEY AUTOINCREMENT,
	name             TEXT NOT NULL,
	address          TEXT NOT NULL DEFAULT '',
	latitude         REAL,
	longitude        REAL,
	phone            TEXT NOT NULL DEFAULT '',
	categories       TEXT NOT NULL DEFAULT '[]',
	last_enriched_at DATETIME,
	created_at       DATETIME NOT NULL,
	updated_at       DATETIME NOT NULL
);

CREATE TABLE IF NOT EXISTS entity_ratings (
	entity_id    INTEGER NOT NULL REFERENCES entities(id),
	source       TEXT NOT NULL,
	score        REAL NOT NULL,
	review_count INTEGER NOT NULL DEFAULT 0,
	updated_at   DATETIME NOT NULL,
	PRIMARY KEY (entity_id, source)
);

CREATE TABLE IF NOT EXISTS entity_refs (
	entity_id   INTEGER NOT NULL REFERENCES entities(id),
	source      TEXT NOT NULL,
	external_id TEXT NOT NULL,
	updated_at  DATETIME NOT NULL,
	PRIMARY KEY (entity_id, source)
);

CREATE TABLE IF NOT EXISTS jobs (
	id           TEXT PRIMARY KEY,
	location     TEXT NOT NULL,
	location_key TEXT NOT NULL,
	category     TEXT NOT NULL DEFAULT '',
	status       TEXT NOT NULL DEFAULT 'pending',
	progress     TEXT,
	result       TEXT,
	error        TEXT NOT NULL DEFAULT '',
	created_at   DATETIME NOT NULL,
	started_at   DATETIME,
	completed_at DATETIME
);

CREATE TABLE IF NOT EXISTS provider_budgets (
	provider   TEXT PRIMARY KEY,
	calls      INTEGER NOT NULL DEFAULT 0,
	call_limit INTEGER,
	resets_at  DATETIME NOT NULL
);

CREATE INDEX IF NOT EXISTS idx_entities_coords ON entities(latitude, longitude);
CREATE INDEX IF NOT EXISTS idx_entity_refs_source ON entity_refs(source);
CREATE INDEX IF NOT EXISTS idx_jobs_status ON jobs(status);
CREATE INDEX IF NOT EXISTS idx_jobs_location_key ON jobs(location_key, category);
`

// Migrate creates the schema.
func (s *SQLiteStore) Migrate(ctx context.Context) error {
	_, err := s.db.ExecContext(ctx, sqliteMigration)
	return eris.Wrap(err, "sqlite: migrate")
}

// Close releases the database handle.
func (s *SQLiteStore) Close() error {
	return s.db.Close()
}

// normalizeLocation folds a location string for cache-key comparisons.
func normalizeLocation(location string) string {
	return strings.Join(strings.Fields(strings.ToLower(location)), " ")
}

// --- Entities ---

func (s *SQLiteStore) CreateEntity(ctx context.Context, e *model.Entity) error {
	now := time.Now().UTC()
	cats, err := json.Marshal(e.Categories)
	if err != nil {
		return eris.Wrap(err, "sqlite: marshal categories")
	}

	res, err := s.db.ExecContext(ctx,
		`INSERT INTO entities (name, address, latitude, longitude, phone, categories, last_enriched_at, created_at, updated_at)
		 VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		e.Name, e.Address, e.Latitude, e.Longitude, e.Phone, string(cats), e.LastEnrichedAt, now, now,
	)
	if err != nil {
		return eris.Wrap(err, "sqlite: insert entity")
	}

	id, err := res.LastInsertId()
	if err != nil {
		return eris.Wrap(err, "sqlite: entity insert id")
	}
	e.ID = id
	e.CreatedAt = now
	e.UpdatedAt = now
	return nil
}

func (s *SQLiteStore) GetEntity(ctx context.Context, id int64) (*model.Entity, error) {
	row := s.db.QueryRowContext(ctx,
		`SELECT id, name, address, latitude, longitude, phone, categories, last_enriched_at, created_at, updated_at
		 FROM entities WHERE id = ?`, id)

	e, err := scanEntity(row)
	if err != nil {
		if eris.Is(err, sql.ErrNoRows) {
			return nil, nil
		}
		return nil, err
	}
	if err := s.loadEntityAssoc(ctx, e); err != nil {
		return nil, err
	}
	return e, nil
}

func (s *SQLiteStore) UpdateEntity(ctx context.Context, e *model.Entity) error {
	now := time.Now().UTC()
	cats, err := json.Marshal(e.Categories)
	if err != nil {
		return eris.Wrap(err, "sqlite: marshal categories")
	}

	res, err := s.db.ExecContext(ctx,
		`UPDATE entities SET name = ?, address = ?, latitude = ?, longitude = ?, phone = ?, categories = ?, last_enriched_at = ?, updated_at = ?
		 WHERE id = ?`,
		e.Name, e.Address, e.Latitude, e.Longitude, e.Phone, string(cats), e.LastEnrichedAt, now, e.ID,
	)
	if err != nil {
		return eris.Wrapf(err, "sqlite: update entity %d", e.ID)
	}
	e.UpdatedAt = now
	return checkRowsAffected(res, "entity")
}

func (s *SQLiteStore) CountEntities(ctx context.Context) (int, error) {
	var n int
	err := s.db.QueryRowContext(ctx, `SELECT COUNT(*) FROM entities`).Scan(&n)
	return n, eris.Wrap(err, "sqlite: count entities")
}

func (s *SQLiteStore) FindCandidates(ctx context.Context, box BBox) ([]model.Candidate, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT id, name, address, latitude, longitude, phone FROM entities
		 WHERE latitude IS NOT NULL AND longitude IS NOT NULL
		   AND latitude BETWEEN ? AND ? AND longitude BETWEEN ? AND ?
		 ORDER BY id`,
		box.MinLat, box.MaxLat, box.MinLng, box.MaxLng,
	)
	if err != nil {
		return nil, eris.Wrap(err, "sqlite: find candidates")
	}
	defer rows.Close()

	var out []model.Candidate
	for rows.Next() {
		var c model.Candidate
		if err := rows.Scan(&c.EntityID, &c.Name, &c.Address, &c.Latitude, &c.Longitude, &c.Phone); err != nil {
			return nil, eris.Wrap(err, "sqlite: scan candidate")
		}
		out = append(out, c)
	}
	return out, eris.Wrap(rows.Err(), "sqlite: find candidates iterate")
}

func (s *SQLiteStore) EntitiesMissingSource(ctx context.Context, source string, limit int) ([]model.Entity, error) {
	if limit <= 0 {
		limit = 500
	}
	rows, err := s.db.QueryContext(ctx,
		`SELECT id, name, address, latitude, longitude, phone, categories, last_enriched_at, created_at, updated_at
		 FROM entities
		 WHERE id NOT IN (SELECT entity_id FROM entity_refs WHERE source = ?)
		 ORDER BY id LIMIT ?`,
		source, limit,
	)
	if err != nil {
		return nil, eris.Wrapf(err, "sqlite: entities missing source %s", source)
	}
	defer rows.Close()

	var out []model.Entity
	for rows.Next() {
		e, err := scanEntity(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, *e)
	}
	return out, eris.Wrap(rows.Err(), "sqlite: entities missing source iterate")
}

func (s *SQLiteStore) UpsertRating(ctx context.Context, entityID int64, source string, rating model.SourceRating) error {
	_, err := s.db.ExecContext(ctx,
		`INSERT INTO entity_ratings (entity_id, source, score, review_count, updated_at)
		 VALUES (?, ?, ?, ?, ?)
		 ON CONFLICT(entity_id, source) DO UPDATE SET score = excluded.score, review_count = excluded.review_count, updated_at = excluded.updated_at`,
		entityID, source, rating.Score, rating.ReviewCount, time.Now().UTC(),
	)
	return eris.Wrapf(err, "sqlite: upsert rating %d/%s", entityID, source)
}

func (s *SQLiteStore) UpsertExternalRef(ctx context.Context, entityID int64, source, externalID string) error {
	_, err := s.db.ExecContext(ctx,
		`INSERT INTO entity_refs (entity_id, source, external_id, updated_at)
		 VALUES (?, ?, ?, ?)
		 ON CONFLICT(entity_id, source) DO UPDATE SET external_id = excluded.external_id, updated_at = excluded.updated_at`,
		entityID, source, externalID, time.Now().UTC(),
	)
	return eris.Wrapf(err, "sqlite: upsert external ref %d/%s", entityID, source)
}

func (s *SQLiteStore) HasExternalRef(ctx context.Context, entityID int64, source string) (bool, error) {
	var n int
	err := s.db.QueryRowContext(ctx,
		`SELECT COUNT(*) FROM entity_refs WHERE entity_id = ? AND source = ?`,
		entityID, source,
	).Scan(&n)
	if err != nil {
		return false, eris.Wrapf(err, "sqlite: has external ref %d/%s", entityID, source)
	}
	return n > 0, nil
}

func (s *SQLiteStore) loadEntityAssoc(ctx context.Context, e *model.Entity) error {
	rows, err := s.db.QueryContext(ctx,
		`SELECT source, score, review_count FROM entity_ratings WHERE entity_id = ?`, e.ID)
	if err != nil {
		return eris.Wrap(err, "sqlite: load ratings")
	}
	defer rows.Close()
	for rows.Next() {
		var source string
		var r model.SourceRating
		if err := rows.Scan(&source, &r.Score, &r.ReviewCount); err != nil {
			return eris.Wrap(err, "sqlite: scan rating")
		}
		if e.Ratings == nil {
			e.Ratings = make(map[string]model.SourceRating)
		}
		e.Ratings[source] = r
	}
	if err := rows.Err(); err != nil {
		return eris.Wrap(err, "sqlite: load ratings iterate")
	}

	refRows, err := s.db.QueryContext(ctx,
		`SELECT source, external_id FROM entity_refs WHERE entity_id = ?`, e.ID)
	if err != nil {
		return eris.Wrap(err, "sqlite: load refs")
	}
	defer refRows.Close()
	for refRows.Next() {
		var source, externalID string
		if err := refRows.Scan(&source, &externalID); err != nil {
			return eris.Wrap(err, "sqlite: scan ref")
		}
		if e.ExternalRefs == nil {
			e.ExternalRefs = make(map[string]string)
		}
		e.ExternalRefs[source] = externalID
	}
	return eris.Wrap(refRows.Err(), "sqlite: load refs iterate")
}

// --- Jobs ---

func (s *SQLiteStore) CreateJob(ctx context.Context, location, category string) (*model.Job, error) {
	id := uuid.New().String()
	now := time.Now().UTC()

	_, err := s.db.ExecContext(ctx,
		`INSERT INTO jobs (id, location, location_key, category, status, created_at) VALUES (?, ?, ?, ?, ?, ?)`,
		id, location, normalizeLocation(location), category, string(model.JobPending), now,
	)
	if err != nil {
		return nil, eris.Wrap(err, "sqlite: insert job")
	}

	return &model.Job{
		ID:        id,
		Location:  location,
		Category:  category,
		Status:    model.JobPending,
		CreatedAt: now,
	}, nil
}

const jobColumns = `id, location, category, status, progress, result, error, created_at, started_at, completed_at`

func (s *SQLiteStore) GetJob(ctx context.Context, id string) (*model.Job, error) {
	row := s.db.QueryRowContext(ctx,
		`SELECT `+jobColumns+` FROM jobs WHERE id = ?`, id)
	j, err := scanJob(row)
	if eris.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	return j, err
}

func (s *SQLiteStore) ListJobs(ctx context.Context, limit int) ([]model.Job, error) {
	if limit <= 0 {
		limit = 50
	}
	rows, err := s.db.QueryContext(ctx,
		`SELECT `+jobColumns+` FROM jobs ORDER BY created_at DESC, id LIMIT ?`, limit)
	if err != nil {
		return nil, eris.Wrap(err, "sqlite: list jobs")
	}
	defer rows.Close()

	var jobs []model.Job
	for rows.Next() {
		j, err := scanJob(rows)
		if err != nil {
			return nil, err
		}
		jobs = append(jobs, *j)
	}
	return jobs, eris.Wrap(rows.Err(), "sqlite: list jobs iterate")
}

func (s *SQLiteStore) ClaimNextPending(ctx context.Context) (*model.Job, error) {
	// Single-statement claim so two workers never grab the same job.
	row := s.db.QueryRowContext(ctx,
		`UPDATE jobs SET status = ?, started_at = ?
		 WHERE id = (SELECT id FROM jobs WHERE status = ? ORDER BY created_at, id LIMIT 1)
		 RETURNING `+jobColumns,
		string(model.JobRunning), time.Now().UTC(), string(model.JobPending),
	)
	j, err := scanJob(row)
	if eris.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	return j, err
}

func (s *SQLiteStore) UpdateJobProgress(ctx context.Context, id string, p *model.Progress) error {
	progressJSON, err := json.Marshal(p)
	if err != nil {
		return eris.Wrap(err, "sqlite: marshal progress")
	}
	res, err := s.db.ExecContext(ctx,
		`UPDATE jobs SET progress = ? WHERE id = ? AND status = ?`,
		string(progressJSON), id, string(model.JobRunning),
	)
	if err != nil {
		return eris.Wrapf(err, "sqlite: update job progress %s", id)
	}
	return checkRowsAffected(res, "job")
}

func (s *SQLiteStore) MarkJobCompleted(ctx context.Context, id string, result *model.JobResult) error {
	resultJSON, err := json.Marshal(result)
	if err != nil {
		return eris.Wrap(err, "sqlite: marshal result")
	}
	res, err := s.db.ExecContext(ctx,
		`UPDATE jobs SET status = ?, result = ?, completed_at = ? WHERE id = ? AND status = ?`,
		string(model.JobCompleted), string(resultJSON), time.Now().UTC(), id, string(model.JobRunning),
	)
	if err != nil {
		return eris.Wrapf(err, "sqlite: mark job completed %s", id)
	}
	return checkRowsAffected(res, "job")
}

func (s *SQLiteStore) MarkJobFailed(ctx context.Context, id string, errMsg string) error {
	res, err := s.db.ExecContext(ctx,
		`UPDATE jobs SET status = ?, error = ?, completed_at = ? WHERE id = ? AND status = ?`,
		string(model.JobFailed), errMsg, time.Now().UTC(), id, string(model.JobRunning),
	)
	if err != nil {
		return eris.Wrapf(err, "sqlite: mark job failed %s", id)
	}
	return checkRowsAffected(res, "job")
}

func (s *SQLiteStore) FindRecentCompleted(ctx context.Context, location, category string, within time.Duration) (*model.Job, error) {
	cutoff := time.Now().UTC().Add(-within)
	row := s.db.QueryRowContext(ctx,
		`SELECT `+jobColumns+` FROM jobs
		 WHERE location_key = ? AND category = ? AND status = ? AND completed_at >= ?
		 ORDER BY completed_at DESC LIMIT 1`,
		normalizeLocation(location), category, string(model.JobCompleted), cutoff,
	)
	j, err := scanJob(row)
	if eris.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	return j, err
}

// --- Budgets ---

func (s *SQLiteStore) TryRecordCall(ctx context.Context, provider string, limit *int, window time.Duration) (bool, error) {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return false, eris.Wrap(err, "sqlite: begin budget tx")
	}
	defer tx.Rollback() //nolint:errcheck

	now := time.Now().UTC()

	var calls int
	var resetsAt time.Time
	err = tx.QueryRowContext(ctx,
		`SELECT calls, resets_at FROM provider_budgets WHERE provider = ?`, provider,
	).Scan(&calls, &resetsAt)

	switch {
	case eris.Is(err, sql.ErrNoRows):
		if limit != nil && *limit <= 0 {
			return false, nil
		}
		_, err = tx.ExecContext(ctx,
			`INSERT INTO provider_budgets (provider, calls, call_limit, resets_at) VALUES (?, 1, ?, ?)`,
			provider, limit, now.Add(window),
		)
		if err != nil {
			return false, eris.Wrapf(err, "sqlite: insert budget %s", provider)
		}
		return true, eris.Wrap(tx.Commit(), "sqlite: commit budget tx")
	case err != nil:
		return false, eris.Wrapf(err, "sqlite: read budget %s", provider)
	}

	if !resetsAt.After(now) {
		calls = 0
		resetsAt = now.Add(window)
	}
	if limit != nil && calls >= *limit {
		return false, nil
	}

	_, err = tx.ExecContext(ctx,
		`UPDATE provider_budgets SET calls = ?, call_limit = ?, resets_at = ? WHERE provider = ?`,
		calls+1, limit, resetsAt, provider,
	)
	if err != nil {
		return false, eris.Wrapf(err, "sqlite: update budget %s", provider)
	}
	return true, eris.Wrap(tx.Commit(), "sqlite: commit budget tx")
}

func (s *SQLiteStore) GetBudget(ctx context.Context, provider string) (*model.Budget, error) {
	b := model.Budget{Provider: provider}
	var limit sql.NullInt64
	err := s.db.QueryRowContext(ctx,
		`SELECT calls, call_limit, resets_at FROM provider_budgets WHERE provider = ?`, provider,
	).Scan(&b.Calls, &limit, &b.ResetsAt)
	if eris.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, eris.Wrapf(err, "sqlite: get budget %s", provider)
	}
	if limit.Valid {
		l := int(limit.Int64)
		b.Limit = &l
	}
	return &b, nil
}

// --- scan helpers ---

type rowScanner interface {
	Scan(dest ...any) error
}

func scanEntity(row rowScanner) (*model.Entity, error) {
	var e model.Entity
	var cats string
	var lastEnriched sql.NullTime
	if err := row.Scan(&e.ID, &e.Name, &e.Address, &e.Latitude, &e.Longitude, &e.Phone, &cats, &lastEnriched, &e.CreatedAt, &e.UpdatedAt); err != nil {
		if eris.Is(err, sql.ErrNoRows) {
			return nil, err
		}
		return nil, eris.Wrap(err, "sqlite: scan entity")
	}
	if err := json.Unmarshal([]byte(cats), &e.Categories); err != nil {
		return nil, eris.Wrap(err, "sqlite: unmarshal categories")
	}
	if lastEnriched.Valid {
		t := lastEnriched.Time
		e.LastEnrichedAt = &t
	}
	return &e, nil
}

func scanJob(row rowScanner) (*model.Job, error) {
	var j model.Job
	var status string
	var progress, result sql.NullString
	var started, completed sql.NullTime
	if err := row.Scan(&j.ID, &j.Location, &j.Category, &status, &progress, &result, &j.Error, &j.CreatedAt, &started, &completed); err != nil {
		if eris.Is(err, sql.ErrNoRows) {
			return nil, err
		}
		return nil, eris.Wrap(err, "sqlite: scan job")
	}
	j.Status = model.JobStatus(status)
	if progress.Valid && progress.String != "" {
		var p model.Progress
		if err := json.Unmarshal([]byte(progress.String), &p); err != nil {
			return nil, eris.Wrap(err, "sqlite: unmarshal progress")
		}
		j.Progress = &p
	}
	if result.Valid && result.String != "" {
		var r model.JobResult
		if err := json.Unmarshal([]byte(result.String), &r); err != nil {
			return nil, eris.Wrap(err, "sqlite: unmarshal result")
		}
		j.Result = &r
	}
	if started.Valid {
		t := started.Time
		j.StartedAt = &t
	}
	if completed.Valid {
		t := completed.Time
		j.CompletedAt = &t
	}
	return &j, nil
}

func checkRowsAffected(res sql.Result, kind string) error {
	n, err := res.RowsAffected()
	if err != nil {
		return eris.Wrapf(err, "sqlite: rows affected for %s", kind)
	}
	if n == 0 {
		return eris.Errorf("sqlite: %s not found or not updatable", kind)
	}
	return nil
}
