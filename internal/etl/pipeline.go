package etl

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/BartekS5/movielens-etl/pkg/logger"
	"github.com/BartekS5/movielens-etl/pkg/models"
	"github.com/cenkalti/backoff/v4"
	"github.com/pkg/errors"
)

// BatchPolicy decides what happens to an interaction batch the store rejects.
type BatchPolicy string

const (
	// BatchAtomic drops the whole failed batch and counts one error.
	BatchAtomic BatchPolicy = "atomic"
	// BatchPerRow replays a failed batch one record at a time so only the
	// offending records are lost, each counted as an error.
	BatchPerRow BatchPolicy = "per-row"
)

// Stage is a step of the run state machine.
type Stage string

const (
	StageIdle                Stage = "idle"
	StageExtractItems        Stage = "extracting_items"
	StageLoadItems           Stage = "loading_items"
	StageExtractActors       Stage = "extracting_actors"
	StageLoadActors          Stage = "loading_actors"
	StageExtractInteractions Stage = "extracting_interactions"
	StageLoadInteractions    Stage = "loading_interactions"
	StageFinalizedSuccess    Stage = "finalized_success"
	StageFinalizedFailed     Stage = "finalized_failed"
)

type Options struct {
	BatchSize      int
	BatchPolicy    BatchPolicy
	ProgressEvery  int
	ScoreMin       int
	ScoreMax       int
	ConnectRetries int
	RetryInterval  time.Duration
	Recorder       Recorder
}

func DefaultOptions() Options {
	return Options{
		BatchSize:      1000,
		BatchPolicy:    BatchAtomic,
		ProgressEvery:  10,
		ScoreMin:       1,
		ScoreMax:       5,
		ConnectRetries: 2,
		RetryInterval:  500 * time.Millisecond,
	}
}

// Orchestrator runs extraction, parsing and loading for the three record
// types in a fixed order. It borrows its object store and record store.
type Orchestrator struct {
	Objects   ObjectStore
	Store     RecordStore
	Validator *Validator
	opts      Options

	mu    sync.RWMutex
	stage Stage
}

func NewOrchestrator(objects ObjectStore, store RecordStore, opts Options) *Orchestrator {
	def := DefaultOptions()
	if opts.BatchSize <= 0 {
		opts.BatchSize = def.BatchSize
	}
	if opts.BatchPolicy == "" {
		opts.BatchPolicy = def.BatchPolicy
	}
	if opts.ProgressEvery <= 0 {
		opts.ProgressEvery = def.ProgressEvery
	}
	if opts.ScoreMin == 0 && opts.ScoreMax == 0 {
		opts.ScoreMin, opts.ScoreMax = def.ScoreMin, def.ScoreMax
	}
	if opts.Recorder == nil {
		opts.Recorder = nopRecorder{}
	}
	return &Orchestrator{
		Objects:   objects,
		Store:     store,
		Validator: NewValidator(opts.ScoreMin, opts.ScoreMax),
		opts:      opts,
		stage:     StageIdle,
	}
}

// Stage reports where the current or last run is.
func (o *Orchestrator) Stage() Stage {
	o.mu.RLock()
	defer o.mu.RUnlock()
	return o.stage
}

func (o *Orchestrator) setStage(s Stage) {
	o.mu.Lock()
	o.stage = s
	o.mu.Unlock()
	logger.Debugf("ETL stage: %s", s)
}

// RunFullETL loads items, actors and interactions and returns the finalized
// statistics. It never returns an error: failures are reported through the
// status and message of the statistics.
func (o *Orchestrator) RunFullETL(ctx context.Context) (stats *models.RunStats) {
	stats = models.NewRunStats()
	o.setStage(StageIdle)

	logger.Info("============================================================")
	logger.Infof("Starting ETL run %s. Batch Size: %d, Policy: %s", stats.RunID, o.opts.BatchSize, o.opts.BatchPolicy)

	defer func() {
		if r := recover(); r != nil {
			o.finish(stats, fmt.Sprintf("unexpected failure: %v", r))
		}
		o.opts.Recorder.ObserveRun(stats)
	}()

	if err := o.checkPreconditions(ctx); err != nil {
		o.finish(stats, err.Error())
		return stats
	}

	if err := o.LoadItems(ctx, stats); err != nil {
		o.finish(stats, err.Error())
		return stats
	}
	if err := o.LoadActors(ctx, stats); err != nil {
		o.finish(stats, err.Error())
		return stats
	}
	if err := o.LoadInteractions(ctx, stats); err != nil {
		o.finish(stats, err.Error())
		return stats
	}

	o.finish(stats, "")
	return stats
}

func (o *Orchestrator) finish(stats *models.RunStats, errMsg string) {
	stats.Finalize(errMsg)
	if stats.Succeeded() {
		o.setStage(StageFinalizedSuccess)
		logger.Info("ETL finished successfully.")
	} else {
		o.setStage(StageFinalizedFailed)
		logger.Errorf("ETL failed: %s", errMsg)
	}
	logger.Infof("Items loaded: %d", stats.ItemsLoaded)
	logger.Infof("Actors loaded: %d", stats.ActorsLoaded)
	logger.Infof("Interactions loaded: %d", stats.InteractionsLoaded)
	logger.Infof("Errors: %d", stats.Errors)
	logger.Infof("Duration: %.2fs", stats.DurationSeconds)
	logger.Info("============================================================")
}

// checkPreconditions gates the run on both stores being reachable, retrying
// with bounded exponential backoff.
func (o *Orchestrator) checkPreconditions(ctx context.Context) error {
	if err := o.retry(ctx, func() error {
		return o.Objects.CheckConnection(ctx)
	}); err != nil {
		return errors.Wrap(err, "object store is not reachable")
	}
	if err := o.retry(ctx, func() error {
		if !o.Store.CheckConnection(ctx) {
			return errors.New("liveness check failed")
		}
		return nil
	}); err != nil {
		return errors.Wrap(err, "relational store is not reachable")
	}
	return nil
}

func (o *Orchestrator) retry(ctx context.Context, op func() error) error {
	if o.opts.ConnectRetries <= 0 {
		return op()
	}
	eb := backoff.NewExponentialBackOff()
	if o.opts.RetryInterval > 0 {
		eb.InitialInterval = o.opts.RetryInterval
	}
	b := backoff.WithContext(backoff.WithMaxRetries(eb, uint64(o.opts.ConnectRetries)), ctx)
	return backoff.RetryNotify(op, b, func(err error, wait time.Duration) {
		logger.Warnf("Connectivity check failed, retrying in %s: %v", wait, err)
	})
}

func (o *Orchestrator) extract(ctx context.Context, key string) ([]byte, error) {
	logger.Infof("Extracting %s", key)
	data, err := o.Objects.GetObject(ctx, key)
	if err != nil {
		return nil, errors.Wrapf(err, "extracting %s", key)
	}
	return data, nil
}

// LoadItems extracts, parses and upserts the item file.
func (o *Orchestrator) LoadItems(ctx context.Context, stats *models.RunStats) error {
	o.setStage(StageExtractItems)
	data, err := o.extract(ctx, ItemsKey)
	if err != nil {
		return err
	}
	items, skipped, err := ParseItems(data)
	if err != nil {
		return err
	}
	logParsed("items", len(items), skipped)

	o.setStage(StageLoadItems)
	for start := 0; start < len(items); start += o.opts.BatchSize {
		if err := ctx.Err(); err != nil {
			return errors.Wrap(err, "loading items")
		}
		batch := items[start:min(start+o.opts.BatchSize, len(items))]
		inserted, err := o.Store.InsertItemsBatch(ctx, batch)
		o.opts.Recorder.ObserveBatch("items", len(batch), err)
		if err == nil {
			stats.ItemsLoaded += len(batch)
			logger.Debugf("Items batch at %d: %d new of %d", start, inserted, len(batch))
			continue
		}

		logger.Warnf("Items batch at %d failed, retrying record by record: %v", start, err)
		for _, it := range batch {
			if _, err := o.Store.InsertItem(ctx, it); err != nil {
				logger.Errorf("Failed to insert item %d: %v", it.ID, err)
				stats.Errors++
				continue
			}
			stats.ItemsLoaded++
		}
	}
	logger.Infof("%d items loaded", stats.ItemsLoaded)
	return nil
}

// LoadActors extracts, parses and upserts the user file.
func (o *Orchestrator) LoadActors(ctx context.Context, stats *models.RunStats) error {
	o.setStage(StageExtractActors)
	data, err := o.extract(ctx, ActorsKey)
	if err != nil {
		return err
	}
	actors, skipped, err := ParseActors(data)
	if err != nil {
		return err
	}
	logParsed("actors", len(actors), skipped)

	o.setStage(StageLoadActors)
	for start := 0; start < len(actors); start += o.opts.BatchSize {
		if err := ctx.Err(); err != nil {
			return errors.Wrap(err, "loading actors")
		}
		batch := actors[start:min(start+o.opts.BatchSize, len(actors))]
		inserted, err := o.Store.InsertActorsBatch(ctx, batch)
		o.opts.Recorder.ObserveBatch("actors", len(batch), err)
		if err == nil {
			stats.ActorsLoaded += len(batch)
			logger.Debugf("Actors batch at %d: %d new of %d", start, inserted, len(batch))
			continue
		}

		logger.Warnf("Actors batch at %d failed, retrying record by record: %v", start, err)
		for _, a := range batch {
			if _, err := o.Store.InsertActor(ctx, a); err != nil {
				logger.Errorf("Failed to insert actor %d: %v", a.ID, err)
				stats.Errors++
				continue
			}
			stats.ActorsLoaded++
		}
	}
	logger.Infof("%d actors loaded", stats.ActorsLoaded)
	return nil
}

// LoadInteractions extracts, parses, validates and inserts the rating file
// in fixed-size batches.
func (o *Orchestrator) LoadInteractions(ctx context.Context, stats *models.RunStats) error {
	o.setStage(StageExtractInteractions)
	data, err := o.extract(ctx, InteractionsKey)
	if err != nil {
		return err
	}
	parsed, skipped, err := ParseInteractions(data)
	if err != nil {
		return err
	}
	logParsed("interactions", len(parsed), skipped)

	interactions, rejected := o.Validator.FilterInteractions(parsed)
	if rejected > 0 {
		logger.Warnf("%d interactions rejected by validation", rejected)
		stats.Errors += rejected
	}

	o.setStage(StageLoadInteractions)
	total := len(interactions)
	startTime := time.Now()
	batchNo := 0
	for start := 0; start < total; start += o.opts.BatchSize {
		if err := ctx.Err(); err != nil {
			return errors.Wrap(err, "loading interactions")
		}
		end := min(start+o.opts.BatchSize, total)
		batch := interactions[start:end]
		batchNo++

		n, err := o.Store.InsertInteractionsBatch(ctx, batch)
		o.opts.Recorder.ObserveBatch("interactions", len(batch), err)
		if err != nil {
			logger.Errorf("Interactions batch %d (%d records) failed: %v", batchNo, len(batch), err)
			if o.opts.BatchPolicy == BatchPerRow {
				loaded, failed := o.replayInteractions(ctx, batch)
				stats.InteractionsLoaded += loaded
				stats.Errors += failed
			} else {
				stats.Errors++
			}
		} else {
			stats.InteractionsLoaded += n
		}

		if batchNo%o.opts.ProgressEvery == 0 || end >= total {
			rate := 0.0
			if d := time.Since(startTime).Seconds(); d > 0 {
				rate = float64(end) / d
			}
			logger.Infof("Progress: %d/%d interactions processed. Rate: %.2f rows/sec", end, total, rate)
		}
	}
	logger.Infof("%d interactions loaded", stats.InteractionsLoaded)
	return nil
}

func (o *Orchestrator) replayInteractions(ctx context.Context, batch []models.Interaction) (loaded, failed int) {
	for _, in := range batch {
		n, err := o.Store.InsertInteractionsBatch(ctx, []models.Interaction{in})
		if err != nil {
			logger.Errorf("Failed to insert interaction actor=%d item=%d: %v", in.ActorID, in.ItemID, err)
			failed++
			continue
		}
		loaded += n
	}
	return loaded, failed
}

// Summary reports the row count of every table in the relational store.
func (o *Orchestrator) Summary(ctx context.Context) (map[string]int64, error) {
	counts, err := o.Store.TableRowCounts(ctx)
	if err != nil {
		return nil, errors.Wrap(err, "collecting table row counts")
	}
	return counts, nil
}

func logParsed(kind string, n, skipped int) {
	if skipped > 0 {
		logger.Warnf("Parsed %d %s, skipped %d malformed lines", n, kind, skipped)
		return
	}
	logger.Infof("Parsed %d %s", n, kind)
}
