// Package indexer orchestrates a full indexing run: forward area search
// across every configured provider, then reverse name lookup for providers
// whose coverage came up sparse. Provider failures are isolated per source;
// only persistence failures abort a run.
package indexer

import (
	"context"
	"fmt"

	"github.com/rotisserie/eris"
	"go.uber.org/zap"

	"github.com/sells-group/placematch/internal/budget"
	"github.com/sells-group/placematch/internal/match"
	"github.com/sells-group/placematch/internal/model"
	"github.com/sells-group/placematch/internal/provider"
	"github.com/sells-group/placematch/internal/reconcile"
	"github.com/sells-group/placematch/internal/resilience"
	"github.com/sells-group/placematch/internal/store"
)

// reverseLookupBatch caps how many entities one reverse pass examines per
// provider.
const reverseLookupBatch = 500

// ProgressFunc receives progress events in emission order. Events for a phase
// are strictly increasing in Current; a completed event closes each
// provider/phase before the next one starts.
type ProgressFunc func(model.Progress)

// Indexer drives a run across all registered providers.
type Indexer struct {
	registry   *provider.Registry
	store      store.Store
	locator    *reconcile.Locator
	matcher    *match.Matcher
	reconciler *reconcile.Reconciler
	budget     *budget.Tracker
	retry      resilience.RetryConfig
}

// New creates an Indexer.
func New(reg *provider.Registry, st store.Store, loc *reconcile.Locator, m *match.Matcher, rec *reconcile.Reconciler, b *budget.Tracker, retry resilience.RetryConfig) *Indexer {
	return &Indexer{
		registry:   reg,
		store:      st,
		locator:    loc,
		matcher:    m,
		reconciler: rec,
		budget:     b,
		retry:      retry,
	}
}

// Run executes both phases for a target location. progress may be nil.
func (ix *Indexer) Run(ctx context.Context, location, category string, progress ProgressFunc) (*model.JobResult, error) {
	adapters := ix.registry.Configured()
	if len(adapters) == 0 {
		return nil, model.ErrNoProvidersConfigured
	}

	log := zap.L().With(zap.String("component", "indexer"), zap.String("location", location))
	emit := func(p model.Progress) {
		if progress != nil {
			progress(p)
		}
	}

	result := &model.JobResult{}
	skipped := make(map[string]bool)
	indexed := make(map[string]int)

	// Phase 1: forward indexing, providers strictly sequential.
	for _, a := range adapters {
		name := a.Name()
		ok, err := ix.budget.CanCall(ctx, name)
		if err != nil {
			return nil, eris.Wrap(err, "indexer: budget check")
		}
		if !ok {
			ix.skipProvider(result, skipped, name, "budget exhausted before start")
			continue
		}

		emit(model.Progress{Provider: name, Phase: model.PhaseStarting})

		count, err := ix.forwardIndex(ctx, a, location, category, result, skipped, emit)
		if err != nil {
			return nil, err
		}
		indexed[name] = count

		emit(model.Progress{Provider: name, Phase: model.PhaseCompleted, Current: count, Total: count, Percent: 100})
		log.Info("forward phase complete", zap.String("provider", name), zap.Int("records", count))
	}

	// Phase 2: reverse lookup for providers with sparse forward coverage.
	best := 0
	for _, n := range indexed {
		if n > best {
			best = n
		}
	}
	for _, a := range adapters {
		name := a.Name()
		if skipped[name] || indexed[name]*2 >= best {
			continue
		}
		if err := ix.reverseLookup(ctx, a, location, result, skipped, emit); err != nil {
			return nil, err
		}
		log.Info("reverse phase complete", zap.String("provider", name))
	}

	result.Total = result.Created + result.Merged + result.Updated
	return result, nil
}

// forwardIndex pages one provider's area search, reconciling every record.
// Returns the number of records processed. Provider errors skip the provider
// and return nil; store errors propagate.
func (ix *Indexer) forwardIndex(ctx context.Context, a provider.Adapter, location, category string, result *model.JobResult, skipped map[string]bool, emit ProgressFunc) (int, error) {
	name := a.Name()
	log := zap.L().With(zap.String("provider", name), zap.String("phase", model.PhaseIndexing))

	current := 0
	total := 0
	pageToken := ""

	for {
		ok, err := ix.budget.RecordCall(ctx, name)
		if err != nil {
			return current, eris.Wrap(err, "indexer: record call")
		}
		if !ok {
			ix.skipProvider(result, skipped, name, "budget exhausted mid-run")
			return current, nil
		}

		page, err := resilience.DoVal(ctx, ix.retry, func(ctx context.Context) (*provider.Page, error) {
			return a.SearchByArea(ctx, location, category, pageToken)
		})
		if err != nil {
			log.Warn("area search failed, skipping provider", zap.Error(err))
			ix.skipProvider(result, skipped, name, fmt.Sprintf("unavailable: %v", err))
			return current, nil
		}

		if page.EstimatedTotal > 0 {
			total = page.EstimatedTotal
		} else {
			total = current + len(page.Records)
			if page.NextPageToken != "" {
				// At least one more page is coming.
				total++
			}
		}

		for i := range page.Records {
			rec := &page.Records[i]
			if rec.Name == "" || rec.ExternalID == "" {
				log.Warn("malformed record skipped", zap.String("external_id", rec.ExternalID))
				result.Warnings = append(result.Warnings, fmt.Sprintf("%s: malformed record %q", name, rec.ExternalID))
				continue
			}

			if rec.Shallow() {
				if err := ix.enrich(ctx, a, rec, result, skipped); err != nil {
					return current, err
				}
			}

			if err := ix.reconcileRecord(ctx, rec, name, result); err != nil {
				return current, err
			}

			current++
			percent := 0.0
			if total > 0 {
				percent = 100 * float64(current) / float64(total)
			}
			emit(model.Progress{
				Provider:   name,
				Phase:      model.PhaseIndexing,
				Current:    current,
				Total:      total,
				Percent:    percent,
				RecordName: rec.Name,
			})
		}

		if page.NextPageToken == "" || skipped[name] {
			return current, nil
		}
		pageToken = page.NextPageToken
	}
}

// enrich fills shallow records via GetDetails. Provider failures leave the
// record as-is; enrichment is best effort. Store errors propagate.
func (ix *Indexer) enrich(ctx context.Context, a provider.Adapter, rec *model.Record, result *model.JobResult, skipped map[string]bool) error {
	name := a.Name()

	ok, err := ix.budget.RecordCall(ctx, name)
	if err != nil {
		return eris.Wrap(err, "indexer: record call")
	}
	if !ok {
		ix.skipProvider(result, skipped, name, "budget exhausted mid-run")
		return nil
	}

	detail, err := resilience.DoVal(ctx, ix.retry, func(ctx context.Context) (*model.Record, error) {
		return a.GetDetails(ctx, rec.ExternalID)
	})
	if err != nil {
		zap.L().Debug("detail lookup failed", zap.String("provider", name), zap.String("external_id", rec.ExternalID), zap.Error(err))
		return nil
	}
	if detail == nil {
		return nil
	}

	if !rec.HasGPS() && detail.HasGPS() {
		rec.Latitude = detail.Latitude
		rec.Longitude = detail.Longitude
	}
	if rec.Phone == "" {
		rec.Phone = detail.Phone
	}
	if rec.Address == "" {
		rec.Address = detail.Address
	}
	if len(rec.Categories) == 0 {
		rec.Categories = detail.Categories
	}
	if len(rec.Photos) == 0 {
		rec.Photos = detail.Photos
	}
	return nil
}

// reconcileRecord runs Locator → Matcher → Reconciler for one record.
func (ix *Indexer) reconcileRecord(ctx context.Context, rec *model.Record, source string, result *model.JobResult) error {
	candidates, err := ix.locator.FindCandidates(ctx, rec)
	if err != nil {
		return eris.Wrap(model.ErrPersistenceUnavailable, err.Error())
	}

	var matchedID int64
	if m := ix.matcher.BestMatch(rec, candidates, match.Forward); m != nil {
		matchedID = m.Candidate.EntityID
	}

	outcome, err := ix.reconciler.Apply(ctx, rec, source, matchedID)
	if err != nil {
		return eris.Wrap(model.ErrPersistenceUnavailable, err.Error())
	}
	tally(result, outcome)
	return nil
}

// reverseLookup searches a sparse provider by name for entities it has not
// yet covered, merging only at the strict reverse threshold.
func (ix *Indexer) reverseLookup(ctx context.Context, a provider.Adapter, location string, result *model.JobResult, skipped map[string]bool, emit ProgressFunc) error {
	name := a.Name()
	log := zap.L().With(zap.String("provider", name), zap.String("phase", model.PhaseReverseLookup))

	entities, err := ix.store.EntitiesMissingSource(ctx, name, reverseLookupBatch)
	if err != nil {
		return eris.Wrap(model.ErrPersistenceUnavailable, err.Error())
	}
	if len(entities) == 0 {
		return nil
	}

	emit(model.Progress{Provider: name, Phase: model.PhaseStarting, Total: len(entities)})

	total := len(entities)
	for i := range entities {
		entity := &entities[i]

		if !skipped[name] {
			ok, err := ix.budget.RecordCall(ctx, name)
			if err != nil {
				return eris.Wrap(err, "indexer: record call")
			}
			if !ok {
				ix.skipProvider(result, skipped, name, "budget exhausted during reverse lookup")
			}
		}
		if skipped[name] {
			break
		}

		records, err := resilience.DoVal(ctx, ix.retry, func(ctx context.Context) ([]model.Record, error) {
			return a.SearchByName(ctx, entity.Name, location)
		})
		if err != nil {
			log.Warn("name search failed, skipping provider", zap.Error(err))
			ix.skipProvider(result, skipped, name, fmt.Sprintf("unavailable: %v", err))
			break
		}

		cand := entityCandidate(entity)
		if best := ix.bestReverseRecord(records, cand); best != nil {
			outcome, err := ix.reconciler.Apply(ctx, best, name, entity.ID)
			if err != nil {
				return eris.Wrap(model.ErrPersistenceUnavailable, err.Error())
			}
			tally(result, outcome)
		}

		emit(model.Progress{
			Provider:   name,
			Phase:      model.PhaseReverseLookup,
			Current:    i + 1,
			Total:      total,
			Percent:    100 * float64(i+1) / float64(total),
			RecordName: entity.Name,
		})
	}

	emit(model.Progress{Provider: name, Phase: model.PhaseCompleted, Current: total, Total: total, Percent: 100})
	return nil
}

// bestReverseRecord scores each returned record against the entity and keeps
// the highest one clearing the reverse threshold.
func (ix *Indexer) bestReverseRecord(records []model.Record, cand model.Candidate) *model.Record {
	var best *model.Record
	var bestScore float64
	for i := range records {
		rec := &records[i]
		if rec.Name == "" || rec.ExternalID == "" {
			continue
		}
		if m := ix.matcher.BestMatch(rec, []model.Candidate{cand}, match.Reverse); m != nil {
			if best == nil || m.Score > bestScore {
				best = rec
				bestScore = m.Score
			}
		}
	}
	return best
}

func (ix *Indexer) skipProvider(result *model.JobResult, skipped map[string]bool, name, reason string) {
	if skipped[name] {
		return
	}
	skipped[name] = true
	result.SkippedProviders = append(result.SkippedProviders, name)
	result.Warnings = append(result.Warnings, fmt.Sprintf("%s: %s", name, reason))
}

func tally(result *model.JobResult, outcome reconcile.Outcome) {
	switch outcome {
	case reconcile.Created:
		result.Created++
	case reconcile.Merged:
		result.Merged++
	case reconcile.Updated:
		result.Updated++
	}
}

func entityCandidate(e *model.Entity) model.Candidate {
	return model.Candidate{
		EntityID:  e.ID,
		Name:      e.Name,
		Address:   e.Address,
		Latitude:  e.Latitude,
		Longitude: e.Longitude,
		Phone:     e.Phone,
	}
}
