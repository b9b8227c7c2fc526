package app

import (
	"context"
	"errors"
	"time"

	"github.com/CDLUC3/dmptool-narrative-generator/internal/auth"
	"github.com/CDLUC3/dmptool-narrative-generator/internal/config"
	"github.com/CDLUC3/dmptool-narrative-generator/internal/dmp"
	"github.com/CDLUC3/dmptool-narrative-generator/internal/export"
	"github.com/CDLUC3/dmptool-narrative-generator/internal/observability"
	"github.com/CDLUC3/dmptool-narrative-generator/internal/rbac"
	"github.com/CDLUC3/dmptool-narrative-generator/internal/reconcile"
	"github.com/rs/zerolog"
)

type planResolver interface {
	ResolveVersion(ctx context.Context, id, version string) (reconcile.Version, error)
}

type renderer interface {
	Render(ctx context.Context, plan *dmp.Plan, format export.Format, opts export.Options) (*export.Result, error)
}

// Pinger is a dependency checked by the readiness probe
type Pinger interface {
	Ping(ctx context.Context) error
}

type NarrativeRequest struct {
	DMPID   string
	Version string
	Format  export.Format
	Options export.Options
	Claims  *auth.Claims
}

type Service struct {
	cfg      config.Config
	plans    planResolver
	exporter renderer
	checks   map[string]Pinger
	log      zerolog.Logger
}

// New wires the request orchestration. checks name the dependencies the
// readiness probe pings.
func New(cfg config.Config, plans planResolver, exporter renderer, checks map[string]Pinger, logger zerolog.Logger) *Service {
	return &Service{cfg: cfg, plans: plans, exporter: exporter, checks: checks, log: logger}
}

// Narrative resolves the plan, applies the permission gate and renders it.
// The gate reads the live plan even when an older version is requested.
// A plan the caller may not see fails exactly like a missing one.
func (s *Service) Narrative(ctx context.Context, req NarrativeRequest) (*export.Result, error) {
	resolved, err := s.plans.ResolveVersion(ctx, req.DMPID, req.Version)
	if err != nil {
		if errors.Is(err, reconcile.ErrNotFound) {
			return nil, errPlanNotFound(err)
		}
		return nil, err
	}
	if !rbac.CanViewNarrative(rbac.AccessFor(resolved.Current), req.Claims) {
		return nil, errPlanNotFound(nil)
	}
	plan := resolved.Plan

	if s.cfg.RenderTimeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, s.cfg.RenderTimeout)
		defer cancel()
	}
	started := time.Now()
	result, err := s.exporter.Render(ctx, plan, req.Format, req.Options)
	observability.RecordRender(string(req.Format), err == nil, time.Since(started))
	if err != nil {
		return nil, err
	}
	return result, nil
}

// Ready pings every dependency and returns the failures by name
func (s *Service) Ready(ctx context.Context) map[string]error {
	failures := make(map[string]error)
	for name, check := range s.checks {
		if err := check.Ping(ctx); err != nil {
			failures[name] = err
		}
	}
	return failures
}
