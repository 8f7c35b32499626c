// Package pipeline orchestrates one daily pass: rotate and crawl, assemble
// and classify snapshots, trim the work-set, extract, materialize spots.
// Every stage transition is persisted to the run manifest so a crashed run
// can be resumed without repeating completed work.
package pipeline

import (
	"context"
	"sync/atomic"
	"time"

	"github.com/google/uuid"
	"github.com/rotisserie/eris"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/venuewatch/venuewatch/internal/config"
	"github.com/venuewatch/venuewatch/internal/crawler"
	"github.com/venuewatch/venuewatch/internal/delta"
	"github.com/venuewatch/venuewatch/internal/extract"
	"github.com/venuewatch/venuewatch/internal/materialize"
	"github.com/venuewatch/venuewatch/internal/model"
	"github.com/venuewatch/venuewatch/internal/store"
	"github.com/venuewatch/venuewatch/internal/venues"
)

const dateLayout = "20060102"

// Orchestrator wires the pipeline stages together.
type Orchestrator struct {
	store     store.Store
	crawler   *crawler.Crawler
	extractor *extract.Adapter
	spots     *materialize.Materializer
	dir       *venues.Directory
	cfg       *config.Config
}

// New creates an Orchestrator.
func New(st store.Store, cr *crawler.Crawler, ex *extract.Adapter, mat *materialize.Materializer, dir *venues.Directory, cfg *config.Config) *Orchestrator {
	return &Orchestrator{store: st, crawler: cr, extractor: ex, spots: mat, dir: dir, cfg: cfg}
}

// runState carries in-memory results between stages of one pass.
type runState struct {
	run          *model.PipelineRun
	venues       []model.Venue
	records      []model.ChangeRecord
	workSet      delta.WorkSet
	workSetBuilt bool
}

// Run executes one pipeline pass for runDate (YYYYMMDD; empty means today,
// UTC) restricted to area when non-empty. Returns the finished manifest.
// A held lock returns ErrLockHeld after persisting a refused manifest.
func (o *Orchestrator) Run(ctx context.Context, runDate, area string) (*model.PipelineRun, error) {
	if runDate == "" {
		runDate = time.Now().UTC().Format(dateLayout)
	}
	if _, err := time.Parse(dateLayout, runDate); err != nil {
		return nil, eris.Wrapf(err, "pipeline: invalid run date %q", runDate)
	}

	lock, err := AcquireLock(o.cfg.Pipeline.LockPath)
	if err != nil {
		if eris.Is(err, ErrLockHeld) {
			return o.recordRefusal(ctx, runDate, area), ErrLockHeld
		}
		return nil, err
	}
	defer lock.Release()

	resumeFrom := o.resumeStage(ctx, runDate)

	run := &model.PipelineRun{
		ID:        uuid.NewString(),
		RunDate:   runDate,
		Area:      area,
		Status:    model.RunningStatus(model.StageRaw),
		Stages:    model.NewManifest(),
		StartedAt: time.Now().UTC(),
		Stats:     map[string]interface{}{},
	}
	for _, s := range model.Stages[:model.StageIndex(resumeFrom)] {
		run.Stages[s] = model.StageRecord{Status: model.StageSkipped}
	}
	if err := o.store.CreateRun(ctx, run); err != nil {
		return nil, eris.Wrap(err, "pipeline: create run manifest")
	}

	state := &runState{run: run, venues: o.dir.FilterArea(area)}
	defer o.finalize(state)

	zap.L().Info("pipeline: run started",
		zap.String("run_id", run.ID),
		zap.String("run_date", runDate),
		zap.String("area", area),
		zap.String("resume_from", string(resumeFrom)),
		zap.Int("venues", len(state.venues)),
	)

	type stageFn struct {
		stage model.Stage
		fn    func(context.Context, *runState) error
	}
	for _, s := range []stageFn{
		{model.StageRaw, o.stageRaw},
		{model.StageMerged, o.stageMerged},
		{model.StageTrimmed, o.stageTrimmed},
		{model.StageExtract, o.stageExtract},
		{model.StageSpots, o.stageSpots},
	} {
		if model.StageIndex(s.stage) < model.StageIndex(resumeFrom) {
			continue
		}
		if err := o.runStage(ctx, state, s.stage, s.fn); err != nil {
			return run, err
		}
	}

	run.Status = model.RunStatusCompleted
	return run, nil
}

// resumeStage decides where execution starts. A prior run that failed on the
// same logical date resumes at its failed stage; everything else starts over.
func (o *Orchestrator) resumeStage(ctx context.Context, runDate string) model.Stage {
	last, err := o.store.GetLastRun(ctx)
	if err != nil {
		zap.L().Warn("pipeline: last run unreadable, starting fresh", zap.Error(err))
		return model.StageRaw
	}
	if last == nil || last.RunDate != runDate {
		return model.StageRaw
	}
	stage, failed := model.FailedStage(last.Status)
	if !failed {
		return model.StageRaw
	}
	zap.L().Info("pipeline: resuming failed run",
		zap.String("prior_run", last.ID),
		zap.String("failed_stage", string(stage)),
	)
	return stage
}

// runStage executes one stage with manifest bookkeeping. A stage error marks
// the run failed_at_<stage> and aborts the pass.
func (o *Orchestrator) runStage(ctx context.Context, state *runState, stage model.Stage, fn func(context.Context, *runState) error) error {
	run := state.run
	now := time.Now().UTC()
	run.Status = model.RunningStatus(stage)
	run.Stages[stage] = model.StageRecord{Status: model.StageRunning, StartedAt: &now}
	if err := o.store.UpdateRun(ctx, run); err != nil {
		return eris.Wrapf(err, "pipeline: persist manifest entering %s", stage)
	}

	err := fn(ctx, state)

	finished := time.Now().UTC()
	rec := run.Stages[stage]
	rec.FinishedAt = &finished
	if err != nil {
		rec.Status = model.StageFailed
		rec.Error = err.Error()
		run.Stages[stage] = rec
		run.Status = model.FailedStatus(stage)
		zap.L().Error("pipeline: stage failed", zap.String("stage", string(stage)), zap.Error(err))
		return err
	}
	if rec.Status != model.StageSkipped {
		rec.Status = model.StageCompleted
	}
	run.Stages[stage] = rec
	if perr := o.store.UpdateRun(ctx, run); perr != nil {
		run.Status = model.FailedStatus(stage)
		return eris.Wrapf(perr, "pipeline: persist manifest leaving %s", stage)
	}
	return nil
}

// stageRaw rotates generations on a day boundary and crawls. On a same-day
// rerun only venues missing from the current generation are fetched.
func (o *Orchestrator) stageRaw(ctx context.Context, state *runState) error {
	runDate := state.run.RunDate

	lastRaw, err := o.store.GetMeta(ctx, store.MetaLastRawDate)
	if err != nil {
		return eris.Wrap(err, "pipeline: read last raw date")
	}

	toCrawl := state.venues
	if lastRaw != runDate {
		if err := o.store.Rotate(ctx, lastRaw); err != nil {
			return eris.Wrap(err, "pipeline: rotate generations")
		}
		pruned, err := o.store.PruneArchives(ctx, o.cfg.Snapshot.RetentionDays)
		if err != nil {
			return eris.Wrap(err, "pipeline: prune archives")
		}
		if err := o.store.SetMeta(ctx, store.MetaLastRawDate, runDate); err != nil {
			return eris.Wrap(err, "pipeline: set last raw date")
		}
		zap.L().Info("pipeline: day boundary, generations rotated",
			zap.String("previous", lastRaw),
			zap.Int("archives_pruned", pruned),
		)
	} else {
		done, err := o.store.ListGenerationVenueIDs(ctx, model.GenerationCurrent)
		if err != nil {
			return eris.Wrap(err, "pipeline: list current venues")
		}
		doneSet := make(map[string]bool, len(done))
		for _, id := range done {
			doneSet[id] = true
		}
		toCrawl = nil
		for _, v := range state.venues {
			if !doneSet[v.ID] {
				toCrawl = append(toCrawl, v)
			}
		}
		zap.L().Info("pipeline: same-day catch-up crawl",
			zap.Int("already_fetched", len(done)),
			zap.Int("remaining", len(toCrawl)),
		)
	}
	state.run.Stats["crawled"] = len(toCrawl)

	return o.crawler.FetchAll(ctx, toCrawl, func(v model.Venue, snap *model.Snapshot) error {
		if err := o.store.ClearCurrent(ctx, v.ID); err != nil {
			return eris.Wrapf(err, "pipeline: clear current %s", v.ID)
		}
		for _, p := range snap.Pages {
			p.Hash = delta.PageHash(p.URL, p.Text)
			if err := o.store.WritePage(ctx, p); err != nil {
				return eris.Wrapf(err, "pipeline: write page %s", p.URL)
			}
		}
		return nil
	})
}

// stageMerged assembles current snapshots and classifies each venue against
// its baseline.
func (o *Orchestrator) stageMerged(ctx context.Context, state *runState) error {
	records, err := o.classifyAll(ctx, state.venues)
	if err != nil {
		return err
	}
	state.records = records

	counts := map[model.ChangeType]int{}
	for _, r := range records {
		counts[r.Type]++
	}
	state.run.Stats["new"] = counts[model.ChangeNew]
	state.run.Stats["changed"] = counts[model.ChangeChanged]
	state.run.Stats["unchanged"] = counts[model.ChangeUnchanged]
	state.run.Stats["removed"] = counts[model.ChangeRemoved]
	return nil
}

// classifyAll derives change records from the store. Pure with respect to
// persisted state, so a resumed run can rebuild them without re-crawling.
func (o *Orchestrator) classifyAll(ctx context.Context, vs []model.Venue) ([]model.ChangeRecord, error) {
	records := make([]model.ChangeRecord, 0, len(vs))
	for _, v := range vs {
		current, err := o.store.ReadSnapshot(ctx, v.ID, model.GenerationCurrent)
		if err != nil {
			return nil, eris.Wrapf(err, "pipeline: read current snapshot %s", v.ID)
		}
		baseline := o.store.ReadBaseline(ctx, v.ID)
		records = append(records, delta.Classify(v.ID, current, baseline))
	}
	return records, nil
}

// stageTrimmed builds the extraction work-set and applies the cost ceiling.
func (o *Orchestrator) stageTrimmed(ctx context.Context, state *runState) error {
	if err := o.ensureWorkSet(ctx, state); err != nil {
		return err
	}
	state.run.Stats["work_set"] = len(state.workSet.Records)
	state.run.Stats["extraction_skipped"] = state.workSet.SkipExtraction
	return nil
}

// ensureWorkSet derives classification and the work-set from persisted state.
// Idempotent, so a resumed run whose earlier stages were skipped can rebuild
// the work-set without re-crawling.
func (o *Orchestrator) ensureWorkSet(ctx context.Context, state *runState) error {
	if state.workSetBuilt {
		return nil
	}
	if state.records == nil {
		records, err := o.classifyAll(ctx, state.venues)
		if err != nil {
			return err
		}
		state.records = records
	}
	state.workSet = delta.BuildWorkSet(state.records, o.cfg.Delta.MaxWorkSet)
	state.workSetBuilt = true
	return nil
}

// stageExtract runs extraction over the work-set with bounded concurrency.
// Venues whose current aggregate hash matches their stored gold record are
// memoized and skipped.
func (o *Orchestrator) stageExtract(ctx context.Context, state *runState) error {
	if err := o.ensureWorkSet(ctx, state); err != nil {
		return err
	}
	if state.workSet.SkipExtraction {
		rec := state.run.Stages[model.StageExtract]
		rec.Status = model.StageSkipped
		state.run.Stages[model.StageExtract] = rec
		zap.L().Warn("pipeline: extraction skipped, work-set over ceiling")
		return nil
	}
	if !o.cfg.Anthropic.Enabled {
		rec := state.run.Stages[model.StageExtract]
		rec.Status = model.StageSkipped
		state.run.Stages[model.StageExtract] = rec
		zap.L().Warn("pipeline: extraction disabled by config")
		return nil
	}

	venueByID := make(map[string]model.Venue, len(state.venues))
	for _, v := range state.venues {
		venueByID[v.ID] = v
	}

	concurrency := o.cfg.Extract.Concurrency
	if concurrency <= 0 {
		concurrency = 4
	}
	g, gCtx := errgroup.WithContext(ctx)
	g.SetLimit(concurrency)

	usageBefore := o.extractor.Usage()
	var extracted, memoized atomic.Int64
	for _, rec := range state.workSet.Records {
		venue, ok := venueByID[rec.VenueID]
		if !ok {
			continue
		}
		g.Go(func() error {
			gold, err := o.store.GetGoldRecord(gCtx, rec.VenueID)
			if err != nil {
				return eris.Wrapf(err, "pipeline: get gold record %s", rec.VenueID)
			}
			if gold != nil && rec.AggregateHash != "" && gold.SnapshotHash == rec.AggregateHash {
				memoized.Add(1)
				return nil
			}

			snap, err := o.store.ReadSnapshot(gCtx, rec.VenueID, model.GenerationCurrent)
			if err != nil {
				return eris.Wrapf(err, "pipeline: read snapshot %s", rec.VenueID)
			}
			var pages []model.Page
			if snap != nil {
				pages = snap.Pages
			}

			result := o.extractor.Extract(gCtx, venue, pages, rec.AggregateHash)
			if err := o.store.PutGoldRecord(gCtx, result); err != nil {
				return eris.Wrapf(err, "pipeline: put gold record %s", rec.VenueID)
			}
			extracted.Add(1)
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return err
	}

	// Stage-level usage is the delta against the adapter's running total, so
	// a long-lived scheduler process attributes tokens to the right run.
	usage := o.extractor.Usage()
	usage.InputTokens -= usageBefore.InputTokens
	usage.OutputTokens -= usageBefore.OutputTokens

	state.run.Stats["extracted"] = extracted.Load()
	state.run.Stats["memoized"] = memoized.Load()
	state.run.Stats["input_tokens"] = usage.InputTokens
	state.run.Stats["output_tokens"] = usage.OutputTokens
	state.run.Stats["estimated_cost_usd"] = usage.EstimateCost(o.cfg.Anthropic.Model)
	return nil
}

// stageSpots materializes gold records into display spots and updates streaks.
func (o *Orchestrator) stageSpots(ctx context.Context, state *runState) error {
	written, err := o.spots.Materialize(ctx, state.venues, o.dir.ExclusionSet(), state.run.RunDate)
	if err != nil {
		return err
	}
	state.run.Stats["spots"] = written
	return nil
}

// finalize always stamps the terminal status and finish time on the manifest,
// even when the pass aborted mid-stage. Uses a fresh context so a canceled
// run still records its outcome.
func (o *Orchestrator) finalize(state *runState) {
	run := state.run
	now := time.Now().UTC()
	run.FinishedAt = &now

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	if err := o.store.UpdateRun(ctx, run); err != nil {
		zap.L().Error("pipeline: persist final manifest", zap.Error(err))
	}
	if err := o.store.SetMeta(ctx, store.MetaLastRunStatus, string(run.Status)); err != nil {
		zap.L().Error("pipeline: persist last run status", zap.Error(err))
	}

	zap.L().Info("pipeline: run finished",
		zap.String("run_id", run.ID),
		zap.String("status", string(run.Status)),
		zap.Duration("elapsed", now.Sub(run.StartedAt)),
	)
}

// recordRefusal persists a manifest documenting a lock-refused attempt.
func (o *Orchestrator) recordRefusal(ctx context.Context, runDate, area string) *model.PipelineRun {
	now := time.Now().UTC()
	run := &model.PipelineRun{
		ID:         uuid.NewString(),
		RunDate:    runDate,
		Area:       area,
		Status:     model.RunStatusRefused,
		Stages:     model.NewManifest(),
		StartedAt:  now,
		FinishedAt: &now,
	}
	if err := o.store.CreateRun(ctx, run); err != nil {
		zap.L().Error("pipeline: persist refused manifest", zap.Error(err))
	}
	return run
}
