package main

import (
	"context"
	"fmt"

	"github.com/abduss/dropbucket/internal/auth"
	"github.com/abduss/dropbucket/internal/blob"
	"github.com/abduss/dropbucket/internal/bucket"
	"github.com/abduss/dropbucket/internal/bundle"
	"github.com/abduss/dropbucket/internal/config"
	"github.com/abduss/dropbucket/internal/file"
	"github.com/abduss/dropbucket/internal/memstore"
	"github.com/abduss/dropbucket/internal/metrics"
	"github.com/abduss/dropbucket/internal/shortid"
	"github.com/abduss/dropbucket/internal/storage"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/rs/zerolog"
)

// app holds the wired services shared by the serve and sweep commands.
type app struct {
	db      *pgxpool.Pool
	store   blob.Store
	auth    *auth.Service
	buckets *bucket.Service
	files   *file.Service
	bundles *bundle.Builder
}

func (a *app) Close() {
	if a.db != nil {
		a.db.Close()
	}
}

func buildApp(ctx context.Context, cfg config.Config) (*app, error) {
	store, err := openStore(ctx, cfg)
	if err != nil {
		return nil, err
	}
	a := &app{store: store}

	switch cfg.Database.Driver {
	case "memory":
		zerolog.Ctx(ctx).Warn().Msg("catalog held in memory; buckets are lost on restart")
		mem := memstore.New()
		alloc := newAllocator(mem.Files())
		a.files = configureFiles(file.NewService(mem.Files(), mem.Buckets(), store, alloc), cfg)
		a.buckets = bucket.NewService(mem.Buckets(), a.files, store, alloc)
		a.auth = auth.NewService(mem.Keys(), cfg.Auth)

	case "postgres":
		pool, err := storage.NewPostgresPool(ctx, cfg.Postgres)
		if err != nil {
			return nil, fmt.Errorf("connect postgres: %w", err)
		}
		if err := storage.Migrate(ctx, pool); err != nil {
			pool.Close()
			return nil, err
		}
		a.db = pool

		fileRepo := file.NewRepository(pool)
		bucketRepo := bucket.NewRepository(pool)
		alloc := newAllocator(fileRepo)
		a.files = configureFiles(file.NewService(fileRepo, bucketRepo, store, alloc), cfg)
		a.buckets = bucket.NewService(bucketRepo, a.files, store, alloc)
		a.auth = auth.NewService(auth.NewRepository(pool), cfg.Auth)

	default:
		return nil, fmt.Errorf("unsupported database driver %q", cfg.Database.Driver)
	}

	a.bundles = bundle.NewBuilder(a.buckets, store)
	return a, nil
}

func newAllocator(codes shortid.CodeLookup) *shortid.Allocator {
	alloc := shortid.NewAllocator(codes)
	alloc.OnRetry(metrics.ShortCodeRetry)
	return alloc
}

func configureFiles(svc *file.Service, cfg config.Config) *file.Service {
	return svc.
		WithMaxFileSize(cfg.Storage.MaxUploadBytes).
		WithPresignedDownloads(cfg.Storage.PresignTTL)
}

func openStore(ctx context.Context, cfg config.Config) (blob.Store, error) {
	switch cfg.Storage.Driver {
	case "local":
		store, err := blob.NewLocalStore(cfg.Storage.LocalRoot)
		if err != nil {
			return nil, fmt.Errorf("open local store: %w", err)
		}
		return store, nil

	case "minio":
		client, err := storage.NewMinIOClient(cfg.MinIO)
		if err != nil {
			return nil, fmt.Errorf("connect minio: %w", err)
		}
		if err := storage.EnsureBucket(ctx, client, cfg.MinIO.Bucket, cfg.MinIO.Region); err != nil {
			return nil, fmt.Errorf("ensure bucket: %w", err)
		}
		return blob.NewMinIOStore(client, cfg.MinIO.Bucket), nil

	default:
		return nil, fmt.Errorf("unsupported storage driver %q", cfg.Storage.Driver)
	}
}
