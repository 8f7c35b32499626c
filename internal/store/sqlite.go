package store

import (
	"context"
	"database/sql"
	"encoding/json"
	"strings"
	"time"

	"github.com/rotisserie/eris"
	"go.uber.org/zap"
	_ "modernc.org/sqlite"

	"github.com/venuewatch/venuewatch/internal/model"
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
CREATE TABLE IF NOT EXISTS pages (
	venue_id   TEXT NOT NULL,
	generation TEXT NOT NULL,
	url        TEXT NOT NULL,
	text       TEXT NOT NULL,
	hash       TEXT NOT NULL,
	fetched_at DATETIME NOT NULL,
	PRIMARY KEY (venue_id, generation, url)
);

CREATE TABLE IF NOT EXISTS gold_records (
	venue_id      TEXT PRIMARY KEY,
	found         INTEGER NOT NULL,
	reason        TEXT NOT NULL DEFAULT '',
	entries       TEXT NOT NULL DEFAULT '[]',
	snapshot_hash TEXT NOT NULL,
	processed_at  DATETIME NOT NULL
);

CREATE TABLE IF NOT EXISTS spots (
	venue_id        TEXT NOT NULL,
	category        TEXT NOT NULL,
	payload         TEXT NOT NULL,
	source          TEXT NOT NULL,
	manual_override INTEGER NOT NULL DEFAULT 0,
	updated_at      DATETIME NOT NULL,
	PRIMARY KEY (venue_id, category)
);

CREATE TABLE IF NOT EXISTS streaks (
	venue_id         TEXT NOT NULL,
	category         TEXT NOT NULL,
	last_changed     TEXT NOT NULL,
	consecutive_days INTEGER NOT NULL,
	PRIMARY KEY (venue_id, category)
);

CREATE TABLE IF NOT EXISTS runs (
	id          TEXT PRIMARY KEY,
	run_date    TEXT NOT NULL,
	area        TEXT NOT NULL DEFAULT '',
	status      TEXT NOT NULL,
	stages      TEXT NOT NULL,
	started_at  DATETIME NOT NULL,
	finished_at DATETIME
);

CREATE TABLE IF NOT EXISTS meta (
	key   TEXT PRIMARY KEY,
	value TEXT NOT NULL
);

CREATE INDEX IF NOT EXISTS idx_pages_generation ON pages(generation);
CREATE INDEX IF NOT EXISTS idx_runs_started_at ON runs(started_at);
`

func (s *SQLiteStore) Migrate(ctx context.Context) error {
	_, err := s.db.ExecContext(ctx, sqliteMigration)
	return eris.Wrap(err, "sqlite: migrate")
}

func (s *SQLiteStore) Close() error {
	return s.db.Close()
}

// --- Pages / snapshots ---

func (s *SQLiteStore) WritePage(ctx context.Context, page model.Page) error {
	_, err := s.db.ExecContext(ctx,
		`INSERT INTO pages (venue_id, generation, url, text, hash, fetched_at)
		 VALUES (?, ?, ?, ?, ?, ?)
		 ON CONFLICT (venue_id, generation, url) DO UPDATE SET
			text = excluded.text, hash = excluded.hash, fetched_at = excluded.fetched_at`,
		page.VenueID, model.GenerationCurrent, page.URL, page.Text, page.Hash, page.FetchedAt.UTC(),
	)
	return eris.Wrapf(err, "sqlite: write page %s", page.URL)
}

func (s *SQLiteStore) ReadSnapshot(ctx context.Context, venueID, generation string) (*model.Snapshot, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT url, text, hash, fetched_at FROM pages
		 WHERE venue_id = ? AND generation = ? ORDER BY url`,
		venueID, generation,
	)
	if err != nil {
		return nil, eris.Wrapf(err, "sqlite: read snapshot %s/%s", venueID, generation)
	}
	defer rows.Close()

	snap := &model.Snapshot{VenueID: venueID}
	for rows.Next() {
		p := model.Page{VenueID: venueID}
		if err := rows.Scan(&p.URL, &p.Text, &p.Hash, &p.FetchedAt); err != nil {
			return nil, eris.Wrap(err, "sqlite: scan page")
		}
		snap.Pages = append(snap.Pages, p)
	}
	if err := rows.Err(); err != nil {
		return nil, eris.Wrap(err, "sqlite: iterate pages")
	}
	if len(snap.Pages) == 0 {
		return nil, nil
	}
	return snap, nil
}

// ReadBaseline reads the baseline snapshot for a venue. Corrupt or missing
// baseline entries are treated as "no baseline", never as a fatal error.
func (s *SQLiteStore) ReadBaseline(ctx context.Context, venueID string) *model.Snapshot {
	snap, err := s.ReadSnapshot(ctx, venueID, model.GenerationBaseline)
	if err != nil {
		zap.L().Warn("store: unreadable baseline, treating as new",
			zap.String("venue", venueID),
			zap.Error(err),
		)
		return nil
	}
	return snap
}

func (s *SQLiteStore) ListGenerationVenueIDs(ctx context.Context, generation string) ([]string, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT DISTINCT venue_id FROM pages WHERE generation = ? ORDER BY venue_id`,
		generation,
	)
	if err != nil {
		return nil, eris.Wrapf(err, "sqlite: list venue ids for %s", generation)
	}
	defer rows.Close()

	var ids []string
	for rows.Next() {
		var id string
		if err := rows.Scan(&id); err != nil {
			return nil, eris.Wrap(err, "sqlite: scan venue id")
		}
		ids = append(ids, id)
	}
	return ids, eris.Wrap(rows.Err(), "sqlite: iterate venue ids")
}

func (s *SQLiteStore) ClearCurrent(ctx context.Context, venueID string) error {
	_, err := s.db.ExecContext(ctx,
		`DELETE FROM pages WHERE generation = ? AND venue_id = ?`,
		model.GenerationCurrent, venueID,
	)
	return eris.Wrapf(err, "sqlite: clear current %s", venueID)
}

// Rotate performs the day-boundary generation rotation in one transaction:
// archive the baseline under the given dated label if that archive does not
// already exist, promote current to baseline, and leave current empty for
// fresh writes.
func (s *SQLiteStore) Rotate(ctx context.Context, archiveDate string) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return eris.Wrap(err, "sqlite: begin rotate")
	}
	defer tx.Rollback() //nolint:errcheck

	label := archiveLabel(archiveDate)

	var exists int
	if err := tx.QueryRowContext(ctx,
		`SELECT COUNT(1) FROM pages WHERE generation = ?`, label,
	).Scan(&exists); err != nil {
		return eris.Wrap(err, "sqlite: check archive")
	}

	if exists == 0 && archiveDate != "" {
		if _, err := tx.ExecContext(ctx,
			`INSERT INTO pages (venue_id, generation, url, text, hash, fetched_at)
			 SELECT venue_id, ?, url, text, hash, fetched_at FROM pages WHERE generation = ?`,
			label, model.GenerationBaseline,
		); err != nil {
			return eris.Wrap(err, "sqlite: archive baseline")
		}
	}

	if _, err := tx.ExecContext(ctx,
		`DELETE FROM pages WHERE generation = ?`, model.GenerationBaseline,
	); err != nil {
		return eris.Wrap(err, "sqlite: drop baseline")
	}

	if _, err := tx.ExecContext(ctx,
		`UPDATE pages SET generation = ? WHERE generation = ?`,
		model.GenerationBaseline, model.GenerationCurrent,
	); err != nil {
		return eris.Wrap(err, "sqlite: promote current")
	}

	return eris.Wrap(tx.Commit(), "sqlite: commit rotate")
}

// PruneArchives removes archived generations older than the retention window.
// Returns the number of archive generations removed.
func (s *SQLiteStore) PruneArchives(ctx context.Context, retentionDays int) (int, error) {
	cutoff := time.Now().UTC().AddDate(0, 0, -retentionDays).Format("20060102")

	rows, err := s.db.QueryContext(ctx,
		`SELECT DISTINCT generation FROM pages WHERE generation LIKE 'archive:%'`,
	)
	if err != nil {
		return 0, eris.Wrap(err, "sqlite: list archives")
	}
	defer rows.Close()

	var stale []string
	for rows.Next() {
		var gen string
		if err := rows.Scan(&gen); err != nil {
			return 0, eris.Wrap(err, "sqlite: scan archive label")
		}
		if archiveDateOf(gen) < cutoff {
			stale = append(stale, gen)
		}
	}
	if err := rows.Err(); err != nil {
		return 0, eris.Wrap(err, "sqlite: iterate archives")
	}

	for _, gen := range stale {
		if _, err := s.db.ExecContext(ctx,
			`DELETE FROM pages WHERE generation = ?`, gen,
		); err != nil {
			return 0, eris.Wrapf(err, "sqlite: prune archive %s", gen)
		}
	}
	return len(stale), nil
}

func archiveLabel(date string) string {
	return model.GenerationArchive + ":" + date
}

func archiveDateOf(generation string) string {
	if len(generation) <= len(model.GenerationArchive)+1 {
		return ""
	}
	return generation[len(model.GenerationArchive)+1:]
}

// --- Gold records ---

func (s *SQLiteStore) GetGoldRecord(ctx context.Context, venueID string) (*model.GoldRecord, error) {
	row := s.db.QueryRowContext(ctx,
		`SELECT venue_id, found, reason, entries, snapshot_hash, processed_at
		 FROM gold_records WHERE venue_id = ?`,
		venueID,
	)

	var rec model.GoldRecord
	var found int
	var entriesJSON string
	err := row.Scan(&rec.VenueID, &found, &rec.Reason, &entriesJSON, &rec.SnapshotHash, &rec.ProcessedAt)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, eris.Wrapf(err, "sqlite: get gold record %s", venueID)
	}
	rec.Found = found != 0
	if err := json.Unmarshal([]byte(entriesJSON), &rec.Entries); err != nil {
		return nil, eris.Wrap(err, "sqlite: unmarshal gold entries")
	}
	return &rec, nil
}

func (s *SQLiteStore) PutGoldRecord(ctx context.Context, rec model.GoldRecord) error {
	entriesJSON, err := json.Marshal(rec.Entries)
	if err != nil {
		return eris.Wrap(err, "sqlite: marshal gold entries")
	}
	if rec.Entries == nil {
		entriesJSON = []byte("[]")
	}

	found := 0
	if rec.Found {
		found = 1
	}

	_, err = s.db.ExecContext(ctx,
		`INSERT INTO gold_records (venue_id, found, reason, entries, snapshot_hash, processed_at)
		 VALUES (?, ?, ?, ?, ?, ?)
		 ON CONFLICT (venue_id) DO UPDATE SET
			found = excluded.found, reason = excluded.reason, entries = excluded.entries,
			snapshot_hash = excluded.snapshot_hash, processed_at = excluded.processed_at`,
		rec.VenueID, found, rec.Reason, string(entriesJSON), rec.SnapshotHash, rec.ProcessedAt.UTC(),
	)
	return eris.Wrapf(err, "sqlite: put gold record %s", rec.VenueID)
}

func (s *SQLiteStore) ListGoldRecords(ctx context.Context) ([]model.GoldRecord, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT venue_id, found, reason, entries, snapshot_hash, processed_at
		 FROM gold_records ORDER BY venue_id`,
	)
	if err != nil {
		return nil, eris.Wrap(err, "sqlite: list gold records")
	}
	defer rows.Close()

	var recs []model.GoldRecord
	for rows.Next() {
		var rec model.GoldRecord
		var found int
		var entriesJSON string
		if err := rows.Scan(&rec.VenueID, &found, &rec.Reason, &entriesJSON, &rec.SnapshotHash, &rec.ProcessedAt); err != nil {
			return nil, eris.Wrap(err, "sqlite: scan gold record")
		}
		rec.Found = found != 0
		if err := json.Unmarshal([]byte(entriesJSON), &rec.Entries); err != nil {
			return nil, eris.Wrap(err, "sqlite: unmarshal gold entries")
		}
		recs = append(recs, rec)
	}
	return recs, eris.Wrap(rows.Err(), "sqlite: iterate gold records")
}

// --- Spots ---

func (s *SQLiteStore) ListSpots(ctx context.Context) ([]model.Spot, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT payload FROM spots ORDER BY venue_id, category`,
	)
	if err != nil {
		return nil, eris.Wrap(err, "sqlite: list spots")
	}
	defer rows.Close()

	var spots []model.Spot
	for rows.Next() {
		var payload string
		if err := rows.Scan(&payload); err != nil {
			return nil, eris.Wrap(err, "sqlite: scan spot")
		}
		var spot model.Spot
		if err := json.Unmarshal([]byte(payload), &spot); err != nil {
			return nil, eris.Wrap(err, "sqlite: unmarshal spot")
		}
		spots = append(spots, spot)
	}
	return spots, eris.Wrap(rows.Err(), "sqlite: iterate spots")
}

func (s *SQLiteStore) PutSpot(ctx context.Context, spot model.Spot) error {
	return s.upsertSpot(ctx, s.db, spot)
}

type execer interface {
	ExecContext(ctx context.Context, query string, args ...any) (sql.Result, error)
}

func (s *SQLiteStore) upsertSpot(ctx context.Context, db execer, spot model.Spot) error {
	payload, err := json.Marshal(spot)
	if err != nil {
		return eris.Wrap(err, "sqlite: marshal spot")
	}
	override := 0
	if spot.ManualOverride {
		override = 1
	}
	_, err = db.ExecContext(ctx,
		`INSERT INTO spots (venue_id, category, payload, source, manual_override, updated_at)
		 VALUES (?, ?, ?, ?, ?, ?)
		 ON CONFLICT (venue_id, category) DO UPDATE SET
			payload = excluded.payload, source = excluded.source,
			manual_override = excluded.manual_override, updated_at = excluded.updated_at`,
		spot.VenueID, spot.Category, string(payload), string(spot.Source), override, spot.UpdatedAt.UTC(),
	)
	return eris.Wrapf(err, "sqlite: put spot %s/%s", spot.VenueID, spot.Category)
}

// ReplaceAutomatedSpots replaces the automated, non-overridden spots of the
// venues in venueIDs with the given regenerated set in one transaction.
// Spots of venues outside venueIDs are left alone, so an area-scoped
// regeneration cannot destroy other areas' rows. Manual spots and manually
// overridden automated spots are never touched.
func (s *SQLiteStore) ReplaceAutomatedSpots(ctx context.Context, venueIDs []string, spots []model.Spot) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return eris.Wrap(err, "sqlite: begin replace spots")
	}
	defer tx.Rollback() //nolint:errcheck

	if len(venueIDs) > 0 {
		placeholders := strings.TrimSuffix(strings.Repeat("?,", len(venueIDs)), ",")
		args := make([]interface{}, 0, len(venueIDs)+1)
		args = append(args, string(model.SpotSourceAutomated))
		for _, id := range venueIDs {
			args = append(args, id)
		}
		if _, err := tx.ExecContext(ctx,
			`DELETE FROM spots WHERE source = ? AND manual_override = 0
			 AND venue_id IN (`+placeholders+`)`,
			args...,
		); err != nil {
			return eris.Wrap(err, "sqlite: delete automated spots")
		}
	}

	for _, spot := range spots {
		// Never clobber a preserved row that shares the key.
		var preserved int
		err := tx.QueryRowContext(ctx,
			`SELECT COUNT(1) FROM spots WHERE venue_id = ? AND category = ?`,
			spot.VenueID, spot.Category,
		).Scan(&preserved)
		if err != nil {
			return eris.Wrap(err, "sqlite: check preserved spot")
		}
		if preserved > 0 {
			continue
		}
		if err := s.upsertSpot(ctx, tx, spot); err != nil {
			return err
		}
	}

	return eris.Wrap(tx.Commit(), "sqlite: commit replace spots")
}

// --- Streaks ---

func (s *SQLiteStore) GetStreak(ctx context.Context, venueID, category string) (*model.StreakRecord, error) {
	row := s.db.QueryRowContext(ctx,
		`SELECT venue_id, category, last_changed, consecutive_days
		 FROM streaks WHERE venue_id = ? AND category = ?`,
		venueID, category,
	)

	var rec model.StreakRecord
	err := row.Scan(&rec.VenueID, &rec.Category, &rec.LastChanged, &rec.ConsecutiveDays)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, eris.Wrapf(err, "sqlite: get streak %s/%s", venueID, category)
	}
	return &rec, nil
}

func (s *SQLiteStore) PutStreak(ctx context.Context, rec model.StreakRecord) error {
	_, err := s.db.ExecContext(ctx,
		`INSERT INTO streaks (venue_id, category, last_changed, consecutive_days)
		 VALUES (?, ?, ?, ?)
		 ON CONFLICT (venue_id, category) DO UPDATE SET
			last_changed = excluded.last_changed, consecutive_days = excluded.consecutive_days`,
		rec.VenueID, rec.Category, rec.LastChanged, rec.ConsecutiveDays,
	)
	return eris.Wrapf(err, "sqlite: put streak %s/%s", rec.VenueID, rec.Category)
}

// --- Runs ---

func (s *SQLiteStore) CreateRun(ctx context.Context, run *model.PipelineRun) error {
	stagesJSON, err := json.Marshal(run.Stages)
	if err != nil {
		return eris.Wrap(err, "sqlite: marshal stages")
	}
	_, err = s.db.ExecContext(ctx,
		`INSERT INTO runs (id, run_date, area, status, stages, started_at)
		 VALUES (?, ?, ?, ?, ?, ?)`,
		run.ID, run.RunDate, run.Area, string(run.Status), string(stagesJSON), run.StartedAt.UTC(),
	)
	return eris.Wrapf(err, "sqlite: insert run %s", run.ID)
}

func (s *SQLiteStore) UpdateRun(ctx context.Context, run *model.PipelineRun) error {
	stagesJSON, err := json.Marshal(run.Stages)
	if err != nil {
		return eris.Wrap(err, "sqlite: marshal stages")
	}

	var finishedAt any
	if run.FinishedAt != nil {
		finishedAt = run.FinishedAt.UTC()
	}

	res, err := s.db.ExecContext(ctx,
		`UPDATE runs SET status = ?, stages = ?, finished_at = ? WHERE id = ?`,
		string(run.Status), string(stagesJSON), finishedAt, run.ID,
	)
	if err != nil {
		return eris.Wrapf(err, "sqlite: update run %s", run.ID)
	}
	return checkRowsAffected(res, "run", run.ID)
}

func (s *SQLiteStore) GetLastRun(ctx context.Context) (*model.PipelineRun, error) {
	row := s.db.QueryRowContext(ctx,
		`SELECT id, run_date, area, status, stages, started_at, finished_at
		 FROM runs ORDER BY started_at DESC LIMIT 1`,
	)
	run, err := scanRun(row)
	if err == errNoRun {
		return nil, nil
	}
	return run, err
}

func (s *SQLiteStore) ListRuns(ctx context.Context, limit int) ([]model.PipelineRun, error) {
	if limit <= 0 {
		limit = 20
	}
	rows, err := s.db.QueryContext(ctx,
		`SELECT id, run_date, area, status, stages, started_at, finished_at
		 FROM runs ORDER BY started_at DESC LIMIT ?`,
		limit,
	)
	if err != nil {
		return nil, eris.Wrap(err, "sqlite: list runs")
	}
	defer rows.Close()

	var runs []model.PipelineRun
	for rows.Next() {
		run, err := scanRun(rows)
		if err != nil {
			return nil, err
		}
		runs = append(runs, *run)
	}
	return runs, eris.Wrap(rows.Err(), "sqlite: iterate runs")
}

// --- Meta ---

func (s *SQLiteStore) GetMeta(ctx context.Context, key string) (string, error) {
	row := s.db.QueryRowContext(ctx, `SELECT value FROM meta WHERE key = ?`, key)
	var value string
	err := row.Scan(&value)
	if err == sql.ErrNoRows {
		return "", nil
	}
	if err != nil {
		return "", eris.Wrapf(err, "sqlite: get meta %s", key)
	}
	return value, nil
}

func (s *SQLiteStore) SetMeta(ctx context.Context, key, value string) error {
	_, err := s.db.ExecContext(ctx,
		`INSERT INTO meta (key, value) VALUES (?, ?)
		 ON CONFLICT (key) DO UPDATE SET value = excluded.value`,
		key, value,
	)
	return eris.Wrapf(err, "sqlite: set meta %s", key)
}

// --- helpers ---

func checkRowsAffected(res sql.Result, entity, id string) error {
	n, err := res.RowsAffected()
	if err != nil {
		return eris.Wrap(err, "rows affected")
	}
	if n == 0 {
		return eris.Errorf("%s not found: %s", entity, id)
	}
	return nil
}

type scannable interface {
	Scan(dest ...any) error
}

var errNoRun = eris.New("run not found")

func scanRun(row scannable) (*model.PipelineRun, error) {
	var run model.PipelineRun
	var stagesJSON string
	var finishedAt sql.NullTime

	err := row.Scan(&run.ID, &run.RunDate, &run.Area, &run.Status, &stagesJSON, &run.StartedAt, &finishedAt)
	if err == sql.ErrNoRows {
		return nil, errNoRun
	}
	if err != nil {
		return nil, eris.Wrap(err, "sqlite: scan run")
	}

	if err := json.Unmarshal([]byte(stagesJSON), &run.Stages); err != nil {
		return nil, eris.Wrap(err, "sqlite: unmarshal stages")
	}
	if finishedAt.Valid {
		t := finishedAt.Time
		run.FinishedAt = &t
	}
	return &run, nil
}
