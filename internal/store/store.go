package store

import (
	"context"

	"github.com/venuewatch/venuewatch/internal/model"
)

// Store defines the persistence interface for the crawl pipeline: page
// generations (current/baseline/archive), gold records, spots, streaks, run
// manifests, and cross-run metadata.
type Store interface {
	// Pages / snapshots
	WritePage(ctx context.Context, page model.Page) error
	ReadSnapshot(ctx context.Context, venueID, generation string) (*model.Snapshot, error)
	ReadBaseline(ctx context.Context, venueID string) *model.Snapshot
	ListGenerationVenueIDs(ctx context.Context, generation string) ([]string, error)
	ClearCurrent(ctx context.Context, venueID string) error

	// Generation rotation
	Rotate(ctx context.Context, archiveDate string) error
	PruneArchives(ctx context.Context, retentionDays int) (int, error)

	// Gold records
	GetGoldRecord(ctx context.Context, venueID string) (*model.GoldRecord, error)
	PutGoldRecord(ctx context.Context, rec model.GoldRecord) error
	ListGoldRecords(ctx context.Context) ([]model.GoldRecord, error)

	// Spots
	ListSpots(ctx context.Context) ([]model.Spot, error)
	PutSpot(ctx context.Context, spot model.Spot) error
	ReplaceAutomatedSpots(ctx context.Context, venueIDs []string, spots []model.Spot) error

	// Streaks
	GetStreak(ctx context.Context, venueID, category string) (*model.StreakRecord, error)
	PutStreak(ctx context.Context, rec model.StreakRecord) error

	// Runs
	CreateRun(ctx context.Context, run *model.PipelineRun) error
	UpdateRun(ctx context.Context, run *model.PipelineRun) error
	GetLastRun(ctx context.Context) (*model.PipelineRun, error)
	ListRuns(ctx context.Context, limit int) ([]model.PipelineRun, error)

	// Cross-run metadata
	GetMeta(ctx context.Context, key string) (string, error)
	SetMeta(ctx context.Context, key, value string) error

	// Lifecycle
	Migrate(ctx context.Context) error
	Close() error
}

// Meta keys tracked across runs.
const (
	MetaLastRawDate   = "last_raw_date"
	MetaLastRunStatus = "last_run_status"
)
