// Package reconcile serves the canonical plan from the denormalized cache,
// rebuilding it from the source of record whenever the cached copy's
// modified timestamp no longer matches.
package reconcile

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/CDLUC3/dmptool-narrative-generator/internal/cache"
	"github.com/CDLUC3/dmptool-narrative-generator/internal/dmp"
	"github.com/CDLUC3/dmptool-narrative-generator/internal/observability"
	"github.com/CDLUC3/dmptool-narrative-generator/internal/store"
	"github.com/rs/zerolog"
	"golang.org/x/sync/singleflight"
)

var (
	ErrNotFound         = errors.New("plan not found")
	ErrGenerationFailed = errors.New("plan generation failed")
)

// Outcomes reported to metrics
const (
	OutcomeFresh    = "fresh"
	OutcomeCreated  = "created"
	OutcomeReplaced = "replaced"
	OutcomeNotFound = "not_found"
	OutcomeFailed   = "failed"
)

type Source interface {
	LoadPlanMetadata(ctx context.Context, dmpID string) (store.PlanMetadata, error)
	LoadPlanDetail(ctx context.Context, internalID int64) (store.PlanDetail, error)
}

type Cache interface {
	Get(ctx context.Context, id string) (*dmp.Plan, error)
	GetVersion(ctx context.Context, id, version string) (*dmp.Plan, error)
	Create(ctx context.Context, plan *dmp.Plan) error
	Replace(ctx context.Context, plan *dmp.Plan) error
}

// Reconciler holds no lock across the read, build and write steps.
// Concurrent regenerations of the same (plan, modified) pair inside one
// process share a single rebuild; across processes the work is duplicated
// and the last identical write wins.
type Reconciler struct {
	source Source
	cache  Cache
	log    zerolog.Logger
	group  singleflight.Group
}

func New(source Source, cache Cache, logger zerolog.Logger) *Reconciler {
	return &Reconciler{source: source, cache: cache, log: logger}
}

// Resolve returns the current canonical plan for id
func (r *Reconciler) Resolve(ctx context.Context, id string) (*dmp.Plan, error) {
	meta, err := r.metadata(ctx, id)
	if err != nil {
		return nil, err
	}
	return r.resolve(ctx, id, meta)
}

// Version is a resolved plan body paired with the live plan. Who may see
// any version is decided by Current, never by the archived body.
type Version struct {
	Plan    *dmp.Plan
	Current *dmp.Plan
}

// ResolveVersion returns the plan as it was when its modified timestamp
// equalled version. An empty version, or the current one, resolves the
// live plan.
func (r *Reconciler) ResolveVersion(ctx context.Context, id, version string) (Version, error) {
	meta, err := r.metadata(ctx, id)
	if err != nil {
		return Version{}, err
	}
	if version == "" {
		return r.resolveCurrent(ctx, id, meta)
	}
	normalized, ok := normalizeVersion(version)
	if !ok {
		return Version{}, fmt.Errorf("%w: invalid version %q", ErrNotFound, version)
	}
	if normalized == dmp.FormatTimestamp(meta.Modified) {
		return r.resolveCurrent(ctx, id, meta)
	}

	archived, err := r.cache.GetVersion(ctx, id, normalized)
	if err != nil {
		return Version{}, fmt.Errorf("load plan version: %w", err)
	}
	if archived == nil {
		return Version{}, fmt.Errorf("%w: no version %s", ErrNotFound, normalized)
	}
	current, err := r.resolve(ctx, id, meta)
	if err != nil {
		return Version{}, err
	}
	return Version{Plan: archived, Current: current}, nil
}

func (r *Reconciler) resolveCurrent(ctx context.Context, id string, meta store.PlanMetadata) (Version, error) {
	plan, err := r.resolve(ctx, id, meta)
	if err != nil {
		return Version{}, err
	}
	return Version{Plan: plan, Current: plan}, nil
}

func (r *Reconciler) metadata(ctx context.Context, id string) (store.PlanMetadata, error) {
	meta, err := r.source.LoadPlanMetadata(ctx, id)
	if errors.Is(err, store.ErrPlanNotFound) {
		observability.RecordReconcile(OutcomeNotFound)
		return store.PlanMetadata{}, fmt.Errorf("%w: %s", ErrNotFound, id)
	}
	if err != nil {
		return store.PlanMetadata{}, fmt.Errorf("load plan metadata: %w", err)
	}
	return meta, nil
}

func (r *Reconciler) resolve(ctx context.Context, id string, meta store.PlanMetadata) (*dmp.Plan, error) {
	want := dmp.FormatTimestamp(meta.Modified)

	cached, err := r.cache.Get(ctx, id)
	existed := cached != nil
	if err != nil {
		// an unreadable copy is rebuilt and overwritten
		r.log.Warn().Err(err).Str("dmp_id", id).Msg("cached plan unreadable")
		existed = true
	}
	if cached != nil && cached.Modified == want {
		observability.RecordReconcile(OutcomeFresh)
		return cached, nil
	}

	// a shared rebuild outlives the cancellation of any one caller
	shared := context.WithoutCancel(ctx)
	v, genErr, _ := r.group.Do(id+"@"+want, func() (any, error) {
		return r.regenerate(shared, id, meta, existed)
	})
	if genErr != nil {
		return nil, genErr
	}
	return v.(*dmp.Plan), nil
}

func (r *Reconciler) regenerate(ctx context.Context, id string, meta store.PlanMetadata, existed bool) (*dmp.Plan, error) {
	detail, err := r.source.LoadPlanDetail(ctx, meta.InternalID)
	if errors.Is(err, store.ErrPlanNotFound) {
		observability.RecordReconcile(OutcomeNotFound)
		return nil, fmt.Errorf("%w: %s", ErrNotFound, id)
	}
	if err != nil {
		observability.RecordReconcile(OutcomeFailed)
		return nil, fmt.Errorf("%w: load plan detail: %w", ErrGenerationFailed, err)
	}
	plan, err := store.BuildPlan(detail)
	if err != nil {
		observability.RecordReconcile(OutcomeFailed)
		return nil, fmt.Errorf("%w: %w", ErrGenerationFailed, err)
	}

	outcome := OutcomeCreated
	if existed {
		outcome = OutcomeReplaced
		err = r.cache.Replace(ctx, plan)
	} else {
		err = r.cache.Create(ctx, plan)
		if errors.Is(err, cache.ErrAlreadyCached) {
			// another writer got there first
			outcome = OutcomeReplaced
			err = r.cache.Replace(ctx, plan)
		}
	}
	if err != nil {
		r.log.Error().Err(err).Str("dmp_id", id).Str("modified", plan.Modified).Msg("cache write failed")
	}
	observability.RecordReconcile(outcome)
	return plan, nil
}

func normalizeVersion(version string) (string, bool) {
	t, err := time.Parse(time.RFC3339Nano, version)
	if err != nil {
		return "", false
	}
	return dmp.FormatTimestamp(t), true
}
