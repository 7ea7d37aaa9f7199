package reconcile

import (
	"context"
	"time"

	"github.com/rotisserie/eris"
	"go.uber.org/zap"

	"github.com/sells-group/placematch/internal/model"
	"github.com/sells-group/placematch/internal/store"
)

// Outcome reports what Apply did with a record.
type Outcome string

// Outcomes.
const (
	// Created means no candidate matched and a new entity was inserted.
	Created Outcome = "created"

	// Merged means the record attached a new source to an existing entity.
	Merged Outcome = "merged"

	// Updated means the entity already knew this source and its data was
	// refreshed.
	Updated Outcome = "updated"
)

// Reconciler applies match decisions to the store.
type Reconciler struct {
	store store.Store
}

// NewReconciler creates a Reconciler.
func NewReconciler(st store.Store) *Reconciler {
	return &Reconciler{store: st}
}

// Apply persists a record. With no match it creates a new entity carrying
// every available field. With a match it upserts the source's rating and
// external id and back-fills entity fields that are currently empty; a later
// source never overwrites data an earlier source already supplied.
func (r *Reconciler) Apply(ctx context.Context, rec *model.Record, source string, matchedEntityID int64) (Outcome, error) {
	if matchedEntityID == 0 {
		return r.create(ctx, rec, source)
	}
	return r.merge(ctx, rec, source, matchedEntityID)
}

func (r *Reconciler) create(ctx context.Context, rec *model.Record, source string) (Outcome, error) {
	now := time.Now().UTC()
	entity := &model.Entity{
		Name:           rec.Name,
		Address:        rec.Address,
		Latitude:       rec.Latitude,
		Longitude:      rec.Longitude,
		Phone:          rec.Phone,
		Categories:     rec.Categories,
		LastEnrichedAt: &now,
	}
	if err := r.store.CreateEntity(ctx, entity); err != nil {
		return "", eris.Wrap(err, "reconcile: create entity")
	}

	if err := r.attachSource(ctx, entity.ID, source, rec); err != nil {
		return "", err
	}

	zap.L().Debug("reconcile: created entity",
		zap.Int64("entity_id", entity.ID),
		zap.String("source", source),
		zap.String("name", rec.Name),
	)
	return Created, nil
}

func (r *Reconciler) merge(ctx context.Context, rec *model.Record, source string, entityID int64) (Outcome, error) {
	known, err := r.store.HasExternalRef(ctx, entityID, source)
	if err != nil {
		return "", eris.Wrap(err, "reconcile: check source ref")
	}

	entity, err := r.store.GetEntity(ctx, entityID)
	if err != nil {
		return "", eris.Wrap(err, "reconcile: load entity")
	}
	if entity == nil {
		return "", eris.Errorf("reconcile: matched entity %d vanished", entityID)
	}

	if backfill(entity, rec) {
		if err := r.store.UpdateEntity(ctx, entity); err != nil {
			return "", eris.Wrap(err, "reconcile: update entity")
		}
	}

	if err := r.attachSource(ctx, entityID, source, rec); err != nil {
		return "", err
	}

	outcome := Merged
	if known {
		outcome = Updated
	}
	zap.L().Debug("reconcile: merged record",
		zap.Int64("entity_id", entityID),
		zap.String("source", source),
		zap.String("outcome", string(outcome)),
	)
	return outcome, nil
}

func (r *Reconciler) attachSource(ctx context.Context, entityID int64, source string, rec *model.Record) error {
	if err := r.store.UpsertExternalRef(ctx, entityID, source, rec.ExternalID); err != nil {
		return eris.Wrap(err, "reconcile: upsert external ref")
	}
	if rec.Rating != nil {
		rating := model.SourceRating{Score: *rec.Rating, ReviewCount: rec.ReviewCount}
		if err := r.store.UpsertRating(ctx, entityID, source, rating); err != nil {
			return eris.Wrap(err, "reconcile: upsert rating")
		}
	}
	return nil
}

// backfill fills empty entity fields from the record and reports whether
// anything changed. Populated fields are left alone.
func backfill(e *model.Entity, rec *model.Record) bool {
	changed := false
	if e.Address == "" && rec.Address != "" {
		e.Address = rec.Address
		changed = true
	}
	if e.Phone == "" && rec.Phone != "" {
		e.Phone = rec.Phone
		changed = true
	}
	if !e.HasGPS() && rec.HasGPS() {
		e.Latitude = rec.Latitude
		e.Longitude = rec.Longitude
		changed = true
	}
	if len(e.Categories) == 0 && len(rec.Categories) > 0 {
		e.Categories = rec.Categories
		changed = true
	}
	if changed {
		now := time.Now().UTC()
		e.LastEnrichedAt = &now
	}
	return changed
}
