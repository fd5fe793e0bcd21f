package main

import (
	"context"
	"database/sql"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"strconv"
	"strings"
	"syscall"
	"time"

	awsconfig "github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/service/dynamodb"
	_ "github.com/lib/pq"
	"github.com/spf13/cobra"

	"github.com/histtext/lexivec/blobstore"
	blobminio "github.com/histtext/lexivec/blobstore/minio"
	blobs3 "github.com/histtext/lexivec/blobstore/s3"
	"github.com/histtext/lexivec/cache"
	"github.com/histtext/lexivec/config"
	"github.com/histtext/lexivec/descriptor"
	dynamostore "github.com/histtext/lexivec/descriptor/dynamo"
	pgstore "github.com/histtext/lexivec/descriptor/postgres"
	"github.com/histtext/lexivec/loader"
	"github.com/histtext/lexivec/resolver"
	"github.com/histtext/lexivec/resource"
	"github.com/histtext/lexivec/similarity"
	"github.com/histtext/lexivec/telemetry"

	"github.com/histtext/lexivec"
	"github.com/histtext/lexivec/server"
)

func NewServeCmd() *cobra.Command {
	var configPath string

	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Run the embedding neighbor HTTP service",
		RunE: func(cmd *cobra.Command, _ []string) error {
			return runServe(cmd.Context(), configPath)
		},
	}

	cmd.Flags().StringVarP(&configPath, "config", "c", "lexivec.yaml", "Path to YAML config file")
	return cmd
}

func runServe(ctx context.Context, configPath string) error {
	ctx, stop := signal.NotifyContext(ctx, os.Interrupt, syscall.SIGTERM)
	defer stop()

	bootLogger := slog.New(slog.NewTextHandler(os.Stderr, nil))

	cfgMgr, err := config.NewManager(configPath, bootLogger)
	if err != nil {
		return err
	}
	defer cfgMgr.Close()
	cfg := cfgMgr.Get()

	logger, levelVar := newLogger(cfg.Logging)
	slog.SetDefault(logger)

	// Only the log level follows hot reloads; component wiring is fixed
	// at startup.
	cfgMgr.OnChange(func(c *config.Config) {
		levelVar.Set(parseLevel(c.Logging.Level))
	})
	if err := cfgMgr.Watch(ctx); err != nil {
		return fmt.Errorf("watch config: %w", err)
	}

	store, closeStore, err := newDescriptorStore(ctx, cfg.Descriptor)
	if err != nil {
		return err
	}
	if closeStore != nil {
		defer closeStore()
	}

	res := resolver.New(store, cfg.Embeddings.EmbedPath, func(o *resolver.Options) {
		o.MemoTTL = cfg.Descriptor.MemoTTL
		o.Logger = logger
	})

	registry, err := newBlobRegistry(ctx, cfg.Blobstore)
	if err != nil {
		return err
	}

	rc := resource.NewController(resource.Config{
		MemoryLimitBytes:   cfg.Embeddings.MaxMemoryBytes(),
		MaxConcurrentLoads: int64(cfg.Embeddings.MaxConcurrentLoads),
		IOLimitBytesPerSec: cfg.Embeddings.IOLimitBytesPerSec,
	})

	ldr := loader.New(loader.Config{
		NormalizeOnLoad:  cfg.Embeddings.NormalizeOnLoad,
		SkipInvalidWords: cfg.Embeddings.SkipInvalidWords,
		UseMemoryMapping: cfg.Embeddings.UseMemoryMapping,
		ParallelWorkers:  cfg.Embeddings.ParallelWorkers,
	}, func(o *loader.Options) {
		o.Controller = rc
		o.Logger = logger
	})

	stats := telemetry.NewStats(cfg.Embeddings.MaxMemoryBytes())

	manager := cache.NewManager(res, func(o *cache.Options) {
		o.MaxMemory = cfg.Embeddings.MaxMemoryBytes()
		o.TTL = cfg.Embeddings.CacheTTL()
		o.Loader = ldr
		o.Registry = registry
		o.Controller = rc
		o.Stats = stats
		o.Logger = logger
	})
	manager.Start()
	defer manager.Stop()

	metric, err := similarity.ParseMetric(cfg.Embeddings.SimilarityMetric)
	if err != nil {
		return err
	}
	engine, err := similarity.NewEngine(metric, func(o *similarity.Options) {
		o.ParallelThreshold = cfg.Embeddings.ParallelThreshold
		o.Recorder = stats
	})
	if err != nil {
		return err
	}

	svc := lexivec.New(manager, engine,
		lexivec.WithLogger(&lexivec.Logger{Logger: logger}),
		lexivec.WithStats(stats),
	)

	srv := &http.Server{
		Addr:         fmt.Sprintf(":%d", cfg.Server.Port),
		Handler:      server.New(svc, cfgMgr, logger).Handler(),
		ReadTimeout:  cfg.Server.ReadTimeout,
		WriteTimeout: cfg.Server.WriteTimeout,
		IdleTimeout:  cfg.Server.IdleTimeout,
	}

	errCh := make(chan error, 1)
	go func() {
		logger.Info("server listening", "addr", srv.Addr, "metric", metric.String())
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			errCh <- err
		}
	}()

	select {
	case err := <-errCh:
		return err
	case <-ctx.Done():
	}

	logger.Info("shutting down")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 15*time.Second)
	defer cancel()
	return srv.Shutdown(shutdownCtx)
}

func newLogger(lc config.LoggingConfig) (*slog.Logger, *slog.LevelVar) {
	levelVar := new(slog.LevelVar)
	levelVar.Set(parseLevel(lc.Level))

	opts := &slog.HandlerOptions{Level: levelVar}
	var handler slog.Handler
	if lc.Format == "text" {
		handler = slog.NewTextHandler(os.Stderr, opts)
	} else {
		handler = slog.NewJSONHandler(os.Stderr, opts)
	}
	return slog.New(handler), levelVar
}

func parseLevel(s string) slog.Level {
	switch strings.ToLower(s) {
	case "debug":
		return slog.LevelDebug
	case "warn":
		return slog.LevelWarn
	case "error":
		return slog.LevelError
	default:
		return slog.LevelInfo
	}
}

// newDescriptorStore builds the configured descriptor backend. The second
// return value closes backing connections, if any.
func newDescriptorStore(ctx context.Context, dc config.DescriptorConfig) (descriptor.Store, func(), error) {
	switch dc.Driver {
	case "postgres":
		db, err := sql.Open("postgres", dc.DSN)
		if err != nil {
			return nil, nil, fmt.Errorf("open postgres: %w", err)
		}
		if err := db.PingContext(ctx); err != nil {
			_ = db.Close()
			return nil, nil, fmt.Errorf("ping postgres: %w", err)
		}
		return pgstore.NewStore(db), func() { _ = db.Close() }, nil

	case "dynamodb":
		awsCfg, err := awsconfig.LoadDefaultConfig(ctx)
		if err != nil {
			return nil, nil, fmt.Errorf("load aws config: %w", err)
		}
		return dynamostore.NewStore(dynamodb.NewFromConfig(awsCfg), dc.Table), nil, nil

	case "static":
		static := descriptor.Static{}
		for spec, path := range dc.Paths {
			key, err := parseStaticKey(spec)
			if err != nil {
				return nil, nil, err
			}
			static[key] = path
		}
		return static, nil, nil

	default:
		return nil, nil, fmt.Errorf("unknown descriptor driver: %q", dc.Driver)
	}
}

// parseStaticKey parses "backend_id:collection".
func parseStaticKey(spec string) (descriptor.Key, error) {
	idStr, collection, ok := strings.Cut(spec, ":")
	if !ok || collection == "" {
		return descriptor.Key{}, fmt.Errorf("invalid descriptor path key %q, want \"backend_id:collection\"", spec)
	}
	id, err := strconv.ParseInt(idStr, 10, 32)
	if err != nil {
		return descriptor.Key{}, fmt.Errorf("invalid backend id in %q: %w", spec, err)
	}
	return descriptor.Key{BackendID: int32(id), Collection: collection}, nil
}

// newBlobRegistry wires the remote fetchers the config enables.
func newBlobRegistry(ctx context.Context, bc config.BlobstoreConfig) (*blobstore.Registry, error) {
	var fetchers []blobstore.Fetcher

	if bc.S3Enabled {
		f, err := blobs3.New(ctx)
		if err != nil {
			return nil, fmt.Errorf("init s3 fetcher: %w", err)
		}
		fetchers = append(fetchers, f)
	}

	if bc.MinioEndpoint != "" {
		f, err := blobminio.New(blobminio.Config{
			Endpoint:  bc.MinioEndpoint,
			AccessKey: bc.MinioAccessKey,
			SecretKey: bc.MinioSecretKey,
			UseSSL:    bc.MinioUseSSL,
		})
		if err != nil {
			return nil, fmt.Errorf("init minio fetcher: %w", err)
		}
		fetchers = append(fetchers, f)
	}

	return blobstore.NewRegistry(bc.SpoolDir, fetchers...), nil
}
