package main

import (
	"context"
	"database/sql"
	"fmt"

	"github.com/rs/zerolog"
	"github.com/spf13/cobra"

	"github.com/CDLUC3/dmptool-narrative-generator/internal/archive"
	"github.com/CDLUC3/dmptool-narrative-generator/internal/cache"
	"github.com/CDLUC3/dmptool-narrative-generator/internal/config"
	"github.com/CDLUC3/dmptool-narrative-generator/internal/export"
	"github.com/CDLUC3/dmptool-narrative-generator/internal/reconcile"
	"github.com/CDLUC3/dmptool-narrative-generator/internal/store"
)

func newRootCommand(version string) *cobra.Command {
	rootCmd := &cobra.Command{
		Use:   "narrative",
		Short: "Render DMP Tool plans as HTML, PDF, DOCX, CSV, JSON or text",
		Long: `narrative serves and renders the narrative of a data management plan.

Plans are read from the DMP Tool PostgreSQL database, kept fresh in a
Redis cache, and rendered on request. Configuration comes from the
environment (DATABASE_URL, REDIS_URL, JWT_SECRET, ...).`,
		Version:       version,
		SilenceUsage:  true,
		SilenceErrors: false,
	}

	serveCmd := &cobra.Command{
		Use:   "serve",
		Short: "Run the HTTP server",
		Args:  cobra.NoArgs,
		RunE:  runServe,
	}
	serveCmd.Flags().String("addr", "", "Listen address (overrides API_ADDR)")

	renderCmd := &cobra.Command{
		Use:   "render",
		Short: "Render one plan to a file or stdout",
		Args:  cobra.NoArgs,
		RunE:  runRender,
	}
	renderCmd.Flags().String("id", "", "DMP ID, e.g. 10.48321/D1ABC or https://doi.org/10.48321/D1ABC")
	renderCmd.Flags().StringP("format", "f", string(export.FormatHTML), "Output format: html|csv|docx|json|pdf|txt")
	renderCmd.Flags().StringP("out", "o", "", "Output file (default stdout)")
	renderCmd.Flags().String("plan-version", "", "Render the plan as of this modified timestamp")
	renderCmd.Flags().StringToString("option", nil, "Display or page option, e.g. --option includeCoverPage=false --option fontSize=12")
	_ = renderCmd.MarkFlagRequired("id")

	rootCmd.AddCommand(serveCmd, renderCmd)
	return rootCmd
}

// deps is the wiring shared by serve and render
type deps struct {
	db         *sql.DB
	plans      *store.PostgresStore
	cache      *cache.RedisStore
	reconciler *reconcile.Reconciler
	exporter   *export.Service
}

func (d *deps) Close() {
	if d.cache != nil {
		_ = d.cache.Close()
	}
	if d.db != nil {
		_ = d.db.Close()
	}
}

func openDeps(ctx context.Context, cfg config.Config, logger zerolog.Logger) (*deps, error) {
	d := &deps{}
	db, err := store.Open(ctx, cfg.DatabaseURL)
	if err != nil {
		return nil, fmt.Errorf("database connection failed: %w", err)
	}
	d.db = db
	d.plans = store.NewPostgresStore(db)

	redisStore, err := cache.NewRedisStore(cfg.RedisURL)
	if err != nil {
		d.Close()
		return nil, fmt.Errorf("redis connection failed: %w", err)
	}
	d.cache = redisStore
	d.reconciler = reconcile.New(d.plans, redisStore, logger.With().Str("component", "reconcile").Logger())

	var renditions export.Archive
	if cfg.ArchiveEndpoint != "" {
		objects, err := archive.New(archive.Config{
			Endpoint:  cfg.ArchiveEndpoint,
			AccessKey: cfg.ArchiveAccessKey,
			SecretKey: cfg.ArchiveSecretKey,
			Bucket:    cfg.ArchiveBucket,
			UseSSL:    cfg.ArchiveUseSSL,
		})
		if err != nil {
			d.Close()
			return nil, err
		}
		if err := objects.EnsureBucket(ctx); err != nil {
			// renders still work without the archive
			logger.Warn().Err(err).Msg("rendition archive unavailable")
		} else {
			renditions = objects
			logger.Info().Str("bucket", cfg.ArchiveBucket).Msg("rendition archive enabled")
		}
	}

	pdf := export.NewPDFConverter(cfg.ChromePath, cfg.RenderTimeout)
	d.exporter = export.NewService(pdf, renditions, logger)
	return d, nil
}
