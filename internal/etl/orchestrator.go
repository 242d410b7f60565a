// Package etl coordinates extraction, drift classification, entity
// resolution, and persistence for each data source.
package etl

import (
	"context"
	"errors"
	"fmt"
	"log"
	"time"

	"crypto-metrics-etl/internal/domain"
	"crypto-metrics-etl/internal/drift"
	"crypto-metrics-etl/internal/ingestion"
	"crypto-metrics-etl/internal/observability"
	"crypto-metrics-etl/internal/resolve"
	"crypto-metrics-etl/internal/storage"
)

// Default retry configuration for extraction.
const (
	DefaultMaxRetries = 3
	DefaultRetryDelay = 1 * time.Second
	DefaultMaxDelay   = 30 * time.Second
	DefaultLeaseTTL   = 5 * time.Minute

	// DefaultMaxPersistFailures is how many per-record store errors a
	// cycle tolerates before the whole cycle fails.
	DefaultMaxPersistFailures = 5
)

// Orchestrator runs ETL cycles. One cycle covers one source: extract,
// classify, resolve, upsert, checkpoint.
type Orchestrator struct {
	// Stores
	assets       storage.AssetStore
	observations storage.ObservationStore
	rawAudit     storage.RawAuditStore
	jobs         storage.JobStore
	leases       storage.LeaseStore
	archive      storage.ObservationArchive // optional

	// Pipeline stages
	adapters []ingestion.Adapter // priority order, lowest first
	resolver *resolve.Resolver
	detector *drift.Detector

	// Options
	owner              string
	leaseTTL           time.Duration
	maxRetries         int
	retryDelay         time.Duration
	maxDelay           time.Duration
	maxPersistFailures int
	metrics            *observability.Metrics
	log                *log.Logger
	now                func() time.Time
}

// Options for creating Orchestrator.
type Options struct {
	// Required stores
	AssetStore       storage.AssetStore
	ObservationStore storage.ObservationStore
	RawAuditStore    storage.RawAuditStore
	JobStore         storage.JobStore
	LeaseStore       storage.LeaseStore

	// Optional append-only analytics mirror. Failures are logged, never fatal.
	Archive storage.ObservationArchive

	// Adapters in priority order, lowest priority first. When several
	// sources report the same (asset, timestamp), the source processed
	// last wins, so put the most trusted source at the end.
	Adapters []ingestion.Adapter

	Resolver *resolve.Resolver
	Detector *drift.Detector

	// Owner identifies this process in lease ownership.
	Owner string

	LeaseTTL   time.Duration
	MaxRetries int
	RetryDelay time.Duration
	MaxDelay   time.Duration

	// MaxPersistFailures bounds how many records may fail to persist
	// before the cycle itself fails. A failing record is skipped.
	MaxPersistFailures int

	Metrics *observability.Metrics
	Logger  *log.Logger
}

// New creates a new Orchestrator.
func New(opts Options) *Orchestrator {
	logger := opts.Logger
	if logger == nil {
		logger = log.Default()
	}
	o := &Orchestrator{
		assets:       opts.AssetStore,
		observations: opts.ObservationStore,
		rawAudit:     opts.RawAuditStore,
		jobs:         opts.JobStore,
		leases:       opts.LeaseStore,
		archive:      opts.Archive,
		adapters:     opts.Adapters,
		resolver:     opts.Resolver,
		detector:     opts.Detector,
		owner:              opts.Owner,
		leaseTTL:           opts.LeaseTTL,
		maxRetries:         opts.MaxRetries,
		retryDelay:         opts.RetryDelay,
		maxDelay:           opts.MaxDelay,
		maxPersistFailures: opts.MaxPersistFailures,
		metrics:            opts.Metrics,
		log:          logger,
		now:          time.Now,
	}
	if o.owner == "" {
		o.owner = "etl"
	}
	if o.leaseTTL <= 0 {
		o.leaseTTL = DefaultLeaseTTL
	}
	if o.maxRetries <= 0 {
		o.maxRetries = DefaultMaxRetries
	}
	if o.retryDelay <= 0 {
		o.retryDelay = DefaultRetryDelay
	}
	if o.maxDelay <= 0 {
		o.maxDelay = DefaultMaxDelay
	}
	if o.maxPersistFailures <= 0 {
		o.maxPersistFailures = DefaultMaxPersistFailures
	}
	if o.detector == nil {
		d := drift.NewDetector(drift.DefaultBaseline())
		o.detector = d
	}
	return o
}

// RunResult describes the outcome of one cycle.
type RunResult struct {
	Source          domain.Source
	Status          domain.JobStatus
	Skipped         bool // another worker held the lease
	Seen            int
	Dropped         int
	Quarantined     int
	Upserted        int
	PersistFailures int // records skipped after store errors
	Checkpoint      *time.Time
	Err             error
}

// RunAll runs one cycle per adapter in priority order. A failing source
// does not stop the others.
func (o *Orchestrator) RunAll(ctx context.Context) []*RunResult {
	results := make([]*RunResult, 0, len(o.adapters))
	for _, adapter := range o.adapters {
		if err := ctx.Err(); err != nil {
			break
		}
		results = append(results, o.RunCycle(ctx, adapter))
	}
	return results
}

// RunCycle runs one ETL cycle for one source.
func (o *Orchestrator) RunCycle(ctx context.Context, adapter ingestion.Adapter) *RunResult {
	source := adapter.Source()
	started := o.now()
	result := &RunResult{Source: source}

	// One cycle per source at a time, across processes.
	leaseName := "etl:" + source.String()
	acquired, err := o.leases.Acquire(ctx, leaseName, o.owner, o.leaseTTL)
	if err != nil {
		result.Err = fmt.Errorf("acquire lease %s: %w", leaseName, err)
		return result
	}
	if !acquired {
		o.log.Printf("etl %s: lease held elsewhere, skipping cycle", source)
		result.Skipped = true
		return result
	}
	defer func() {
		if err := o.leases.Release(context.WithoutCancel(ctx), leaseName, o.owner); err != nil {
			o.log.Printf("etl %s: release lease: %v", source, err)
		}
	}()

	run := &domain.JobRun{Source: source}
	if err := o.jobs.Create(ctx, run); err != nil {
		result.Err = fmt.Errorf("create job run: %w", err)
		return result
	}

	err = o.runCycle(ctx, adapter, run, result)
	result.Err = err

	switch {
	case err != nil:
		run.Status = domain.JobFailed
		run.Error = domain.TruncateJobError(err)
	case result.Dropped > 0 || result.Quarantined > 0 || result.PersistFailures > 0:
		run.Status = domain.JobPartial
	default:
		run.Status = domain.JobSuccess
	}
	result.Status = run.Status
	run.RecordsSeen = result.Seen
	run.RecordsDropped = result.Dropped
	run.RecordsQuarantined = result.Quarantined
	run.RecordsUpserted = result.Upserted
	run.Checkpoint = result.Checkpoint

	if finishErr := o.jobs.Finish(context.WithoutCancel(ctx), run); finishErr != nil {
		o.log.Printf("etl %s: finish job run %d: %v", source, run.ID, finishErr)
		if result.Err == nil {
			result.Err = fmt.Errorf("finish job run: %w", finishErr)
			result.Status = domain.JobFailed
		}
	}

	elapsed := o.now().Sub(started)
	o.recordCycleMetrics(result, elapsed)
	o.log.Printf("etl %s: %s in %s (seen=%d dropped=%d quarantined=%d upserted=%d)",
		source, run.Status, elapsed.Round(time.Millisecond),
		result.Seen, result.Dropped, result.Quarantined, result.Upserted)

	return result
}

// runCycle is the body of a cycle after the lease and job row exist.
func (o *Orchestrator) runCycle(ctx context.Context, adapter ingestion.Adapter, run *domain.JobRun, result *RunResult) error {
	source := adapter.Source()

	since, err := o.checkpoint(ctx, source)
	if err != nil {
		return fmt.Errorf("load checkpoint: %w", err)
	}
	window := domain.ExtractWindow{Since: since, Until: o.now().UTC()}

	batch, err := o.extractWithRetry(ctx, adapter, window)
	if err != nil {
		return fmt.Errorf("extract: %w", err)
	}
	result.Seen = len(batch.Records) + batch.Dropped
	result.Dropped = batch.Dropped

	// Extraction can outlast a good fraction of the lease TTL.
	if renewed, err := o.leases.Renew(ctx, "etl:"+source.String(), o.owner, o.leaseTTL); err != nil {
		return fmt.Errorf("renew lease: %w", err)
	} else if !renewed {
		return fmt.Errorf("lease for %s lost during extraction", source)
	}

	// An empty window is a healthy outcome: the provider had nothing
	// new. The checkpoint stays where it was.
	if len(batch.Records) == 0 {
		result.Checkpoint = since
		return nil
	}

	upserted := make([]*domain.Observation, 0, len(batch.Records))
	var maxObserved time.Time

	for _, rec := range batch.Records {
		if err := ctx.Err(); err != nil {
			return err
		}

		// The raw payload is audited before any verdict on the record.
		audit := &domain.RawAudit{Source: source, Payload: rec.Raw}
		if err := o.rawAudit.Insert(ctx, audit); err != nil {
			if perr := o.persistFailure(result, fmt.Errorf("audit %s/%s: %w", source, rec.SourceID, err)); perr != nil {
				return perr
			}
			continue
		}

		verdict := o.detector.Classify(rec.Metrics)
		o.recordDrift(source, verdict)
		if verdict.Level == drift.LevelBlock {
			result.Quarantined++
			o.log.Printf("etl %s: quarantined %s at %s: %v",
				source, rec.SourceID, rec.ObservedAt.Format(time.RFC3339), verdict.Reasons)
			continue
		}
		if verdict.Level == drift.LevelWarn {
			o.log.Printf("etl %s: degraded record %s: %v", source, rec.SourceID, verdict.Reasons)
		}

		assetID, err := o.resolver.Resolve(ctx, source, rec.SourceID, rec.SourceSymbol, rec.DisplayName)
		if err != nil {
			if errors.Is(err, resolve.ErrResolutionConflict) || errors.Is(err, storage.ErrInvalidInput) {
				result.Quarantined++
				if o.metrics != nil {
					o.metrics.ResolutionFailures.WithLabelValues(source.String()).Inc()
				}
				o.log.Printf("etl %s: unresolvable record %s: %v", source, rec.SourceID, err)
				continue
			}
			return fmt.Errorf("resolve %s/%s: %w", source, rec.SourceID, err)
		}

		obs := &domain.Observation{
			AssetID:      assetID,
			Symbol:       rec.SourceSymbol,
			PriceUSD:     verdict.Values["price_usd"],
			MarketCapUSD: verdict.Values["market_cap_usd"],
			Volume24h:    verdict.Values["volume_24h"],
			Source:       source,
			ObservedAt:   rec.ObservedAt.UTC(),
		}
		if err := o.observations.Upsert(ctx, obs); err != nil {
			if perr := o.persistFailure(result, fmt.Errorf("upsert observation %s@%s: %w", assetID, obs.ObservedAt, err)); perr != nil {
				return perr
			}
			continue
		}
		upserted = append(upserted, obs)
		result.Upserted++
		if obs.ObservedAt.After(maxObserved) {
			maxObserved = obs.ObservedAt
		}
	}

	o.appendToArchive(ctx, upserted)

	if result.Upserted == 0 {
		// Nothing the provider sent survived to the store.
		result.Checkpoint = since
		return fmt.Errorf("all %d records rejected (%d dropped, %d quarantined, %d persist failures)",
			result.Seen, result.Dropped, result.Quarantined, result.PersistFailures)
	}

	// The checkpoint only moves forward.
	cp := maxObserved
	if since != nil && since.After(cp) {
		cp = *since
	}
	result.Checkpoint = &cp

	return nil
}

// persistFailure records one per-record store error. The record is
// skipped and the cycle continues until the failure limit is passed.
func (o *Orchestrator) persistFailure(result *RunResult, err error) error {
	result.PersistFailures++
	if result.PersistFailures > o.maxPersistFailures {
		return fmt.Errorf("persistence failure limit (%d) exceeded: %w", o.maxPersistFailures, err)
	}
	o.log.Printf("etl %s: skipping record after persistence failure %d/%d: %v",
		result.Source, result.PersistFailures, o.maxPersistFailures, err)
	return nil
}

// checkpoint returns the high-water mark for a source: the later of the
// last successful run's checkpoint and the newest persisted observation.
// Nil means a cold start.
func (o *Orchestrator) checkpoint(ctx context.Context, source domain.Source) (*time.Time, error) {
	fromJobs, err := o.jobs.LastCheckpoint(ctx, source)
	if err != nil {
		return nil, err
	}
	fromObs, err := o.observations.LatestObservedAt(ctx, source)
	if err != nil {
		return nil, err
	}

	switch {
	case fromJobs == nil:
		return fromObs, nil
	case fromObs == nil:
		return fromJobs, nil
	case fromObs.After(*fromJobs):
		return fromObs, nil
	default:
		return fromJobs, nil
	}
}

// extractWithRetry calls the adapter, retrying transient failures with
// exponential backoff.
func (o *Orchestrator) extractWithRetry(ctx context.Context, adapter ingestion.Adapter, window domain.ExtractWindow) (*ingestion.Batch, error) {
	source := adapter.Source()
	delay := o.retryDelay
	var lastErr error

	for attempt := 0; attempt <= o.maxRetries; attempt++ {
		if attempt > 0 {
			if o.metrics != nil {
				o.metrics.ExtractRetries.WithLabelValues(source.String()).Inc()
			}
			o.log.Printf("etl %s: extract attempt %d/%d after %s: %v",
				source, attempt+1, o.maxRetries+1, delay, lastErr)
			select {
			case <-ctx.Done():
				return nil, ctx.Err()
			case <-time.After(delay):
			}
			// Exponential backoff
			delay *= 2
			if delay > o.maxDelay {
				delay = o.maxDelay
			}
		}

		batch, err := adapter.Extract(ctx, window)
		if err == nil {
			return batch, nil
		}
		if !errors.Is(err, ingestion.ErrUnavailable) {
			return nil, err
		}
		lastErr = err
	}

	return nil, fmt.Errorf("retries exhausted: %w", lastErr)
}

// appendToArchive mirrors upserted observations into the analytics
// archive. Best effort: the relational write already succeeded.
func (o *Orchestrator) appendToArchive(ctx context.Context, obs []*domain.Observation) {
	if o.archive == nil || len(obs) == 0 {
		return
	}
	if err := o.archive.AppendBatch(ctx, obs); err != nil {
		if o.metrics != nil {
			o.metrics.ArchiveErrors.Inc()
		}
		o.log.Printf("etl: archive append failed for %d observations: %v", len(obs), err)
		return
	}
	if o.metrics != nil {
		o.metrics.ArchiveBatches.Inc()
	}
}

func (o *Orchestrator) recordDrift(source domain.Source, verdict drift.Classification) {
	if o.metrics == nil || verdict.Level == drift.LevelOK {
		return
	}
	o.metrics.DriftFindings.WithLabelValues(source.String(), verdict.Level.String()).Inc()
}

func (o *Orchestrator) recordCycleMetrics(result *RunResult, elapsed time.Duration) {
	if o.metrics == nil || result.Skipped {
		return
	}
	src := result.Source.String()
	status := string(result.Status)
	if status == "" {
		status = "error"
	}
	o.metrics.CyclesTotal.WithLabelValues(src, status).Inc()
	o.metrics.CycleDuration.WithLabelValues(src).Observe(elapsed.Seconds())
	o.metrics.RecordsSeen.WithLabelValues(src).Add(float64(result.Seen))
	o.metrics.RecordsDropped.WithLabelValues(src).Add(float64(result.Dropped))
	o.metrics.RecordsQuarantined.WithLabelValues(src).Add(float64(result.Quarantined))
	o.metrics.RecordsUpserted.WithLabelValues(src).Add(float64(result.Upserted))
	if result.Status.Committed() {
		o.metrics.LastSuccessfulCycle.WithLabelValues(src).Set(float64(o.now().Unix()))
		if result.Checkpoint != nil {
			o.metrics.CheckpointTimestamp.WithLabelValues(src).Set(float64(result.Checkpoint.Unix()))
		}
	}
}
