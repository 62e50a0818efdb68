// Package server builds the archiver's dependencies from configuration and
// runs the HTTP service.
package server

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os/signal"
	"syscall"
	"time"

	"cloud.google.com/go/pubsub"
	"cloud.google.com/go/storage"
	"go.uber.org/zap"

	"github.com/joalvis1996/archive-saver-web/internal/api"
	"github.com/joalvis1996/archive-saver-web/internal/archive"
	"github.com/joalvis1996/archive-saver-web/internal/bookmark/raindrop"
	"github.com/joalvis1996/archive-saver-web/internal/clock/system"
	"github.com/joalvis1996/archive-saver-web/internal/config"
	autofetcher "github.com/joalvis1996/archive-saver-web/internal/fetcher/auto"
	collyfetcher "github.com/joalvis1996/archive-saver-web/internal/fetcher/colly"
	headlessfetcher "github.com/joalvis1996/archive-saver-web/internal/fetcher/headless"
	"github.com/joalvis1996/archive-saver-web/internal/hash/sha256"
	"github.com/joalvis1996/archive-saver-web/internal/headless/detector"
	"github.com/joalvis1996/archive-saver-web/internal/id/uuid"
	"github.com/joalvis1996/archive-saver-web/internal/metrics"
	"github.com/joalvis1996/archive-saver-web/internal/page"
	"github.com/joalvis1996/archive-saver-web/internal/policy/ratelimit"
	memorypublisher "github.com/joalvis1996/archive-saver-web/internal/publisher/memory"
	gcppublisher "github.com/joalvis1996/archive-saver-web/internal/publisher/pubsub"
	"github.com/joalvis1996/archive-saver-web/internal/service"
	gcsstorage "github.com/joalvis1996/archive-saver-web/internal/storage/gcs"
	localstorage "github.com/joalvis1996/archive-saver-web/internal/storage/local"
	memorystorage "github.com/joalvis1996/archive-saver-web/internal/storage/memory"
)

// App contains the application's dependencies.
type App struct {
	cfg          config.Config
	logger       *zap.Logger
	archiver     *service.Archiver
	apiServer    *api.Server
	headless     *headlessfetcher.Fetcher
	storage      *storage.Client
	pubsubClient *pubsub.Client
	publisher    *gcppublisher.Publisher
}

// Build creates the application's dependencies.
func Build(ctx context.Context, cfg config.Config, logger *zap.Logger) (*App, error) {
	if logger == nil {
		logger = zap.NewNop()
	}
	metrics.Init()
	app := &App{cfg: cfg, logger: logger}
	app.logger.Info("building application dependencies",
		zap.Int("server_port", cfg.Server.Port),
		zap.String("fetch_mode", string(cfg.Fetch.Mode)),
		zap.String("storage_backend", cfg.Storage.Backend),
		zap.String("link_policy", string(cfg.Storage.LinkPolicy)))

	store, archivesDir, err := app.setupStorage(ctx)
	if err != nil {
		app.Close()
		return nil, err
	}
	fetcher, err := app.setupFetcher()
	if err != nil {
		app.Close()
		return nil, err
	}
	bookmarks, err := raindrop.New(raindrop.Config{
		BaseURL:         cfg.Bookmark.BaseURL,
		Token:           cfg.Bookmark.Token,
		Timeout:         time.Duration(cfg.Bookmark.TimeoutSeconds) * time.Second,
		IncludeChildren: cfg.Bookmark.IncludeChildren,
	}, nil, logger)
	if err != nil {
		app.Close()
		return nil, fmt.Errorf("bookmark client init failed: %w", err)
	}
	publisher, err := app.setupPublisher(ctx)
	if err != nil {
		app.Close()
		return nil, err
	}

	canonicalizer := page.NewCanonicalizer(cfg.Canonical.HostMap(page.DefaultMobileHosts))
	app.archiver = service.New(
		canonicalizer,
		fetcher,
		store,
		bookmarks,
		publisher,
		sha256.New(),
		system.New(),
		uuid.New(),
		service.Config{
			ContentType:  cfg.Storage.ContentType,
			Prefix:       cfg.Storage.Prefix,
			Topic:        cfg.PubSub.TopicName,
			FetchTimeout: cfg.FetchTimeout(),
		},
		logger,
	)
	app.apiServer = api.NewServer(app.archiver, cfg, api.Options{
		ArchivesDir: archivesDir,
		StaticDir:   cfg.Server.StaticDir,
	}, logger)
	return app, nil
}

// Archiver exposes the pipeline for one-shot CLI commands.
func (a *App) Archiver() api.Archiver {
	return a.archiver
}

// Logger returns the application logger.
func (a *App) Logger() *zap.Logger {
	return a.logger
}

// Handler returns the HTTP handler.
func (a *App) Handler() http.Handler {
	return a.apiServer.Handler()
}

// Run serves HTTP and blocks until the context is canceled or a signal arrives.
func (a *App) Run(ctx context.Context) error {
	ctx, stop := signal.NotifyContext(ctx, syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	srv := &http.Server{
		Addr:              fmt.Sprintf(":%d", a.cfg.Server.Port),
		Handler:           a.apiServer.Handler(),
		ReadHeaderTimeout: 5 * time.Second,
	}

	serveErr := make(chan error, 1)
	go func() {
		a.logger.Info("http server started", zap.Int("port", a.cfg.Server.Port))
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			serveErr <- err
			stop()
		}
		close(serveErr)
	}()

	<-ctx.Done()
	a.logger.Info("shutdown initiated")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		a.logger.Error("server shutdown error", zap.Error(err))
	}
	a.Close()

	if err := <-serveErr; err != nil {
		return fmt.Errorf("http server: %w", err)
	}
	return nil
}

// Close releases browser, storage and messaging resources.
func (a *App) Close() {
	if a.headless != nil {
		a.headless.Close()
	}
	if a.publisher != nil {
		a.publisher.Stop()
	}
	if a.pubsubClient != nil {
		if err := a.pubsubClient.Close(); err != nil {
			a.logger.Warn("pubsub client close failed", zap.Error(err))
		}
	}
	if a.storage != nil {
		if err := a.storage.Close(); err != nil {
			a.logger.Warn("gcs client close failed", zap.Error(err))
		}
	}
	a.logger.Info("shutdown complete")
}

func (a *App) setupStorage(ctx context.Context) (archive.ObjectStore, string, error) {
	cfg := a.cfg.Storage
	switch cfg.Backend {
	case config.BackendGCS:
		key, err := cfg.GCS.SignerKey()
		if err != nil {
			return nil, "", err
		}
		a.storage, err = storage.NewClient(ctx)
		if err != nil {
			return nil, "", fmt.Errorf("gcs client init failed: %w", err)
		}
		store, err := gcsstorage.New(a.storage, gcsstorage.Config{
			Bucket:         cfg.GCS.Bucket,
			LinkPolicy:     cfg.LinkPolicy,
			PublicBaseURL:  cfg.GCS.PublicBaseURL,
			CacheControl:   cfg.GCS.CacheControl,
			SignedURLTTL:   time.Duration(cfg.GCS.SignedURLTTLHours) * time.Hour,
			GoogleAccessID: cfg.GCS.GoogleAccessID,
			PrivateKey:     key,
		})
		if err != nil {
			return nil, "", fmt.Errorf("gcs blob store init failed: %w", err)
		}
		a.logger.Info("using GCS storage backend", zap.String("bucket", cfg.GCS.Bucket))
		return store, "", nil
	case config.BackendLocal:
		store, err := localstorage.New(localstorage.Config{
			BaseDir:       cfg.Local.BaseDir,
			PublicBaseURL: cfg.Local.PublicBaseURL,
		})
		if err != nil {
			return nil, "", fmt.Errorf("local blob store init failed: %w", err)
		}
		if cfg.LinkPolicy == archive.LinkTemporary {
			a.logger.Warn("local storage links never expire; temporary link policy ignored")
		}
		a.logger.Info("using local storage backend", zap.String("path", store.Dir()))
		return store, store.Dir(), nil
	default:
		a.logger.Warn("using in-memory storage backend; archives are lost on restart")
		return memorystorage.NewBlobStore(), "", nil
	}
}

func (a *App) setupFetcher() (archive.Fetcher, error) {
	cfg := a.cfg
	direct := collyfetcher.New(collyfetcher.Config{
		UserAgent:     cfg.Fetch.UserAgent,
		RespectRobots: cfg.Fetch.RespectRobots,
		Timeout:       cfg.FetchTimeout(),
		MaxBodyBytes:  cfg.Fetch.MaxBodyBytes,
	})
	limiter := ratelimit.New(ratelimit.Config{
		DefaultRPS:   cfg.Fetch.RateLimitRPS,
		DefaultBurst: cfg.Fetch.RateLimitBurst,
	})
	if cfg.Fetch.Mode == archive.FetchDirect {
		a.logger.Info("using colly fetcher", zap.String("user_agent", cfg.Fetch.UserAgent))
		return limiter.Wrap(direct), nil
	}

	var err error
	a.headless, err = headlessfetcher.NewChromedp(headlessfetcher.Config{
		MaxParallel:       cfg.Headless.MaxParallel,
		UserAgent:         cfg.Fetch.UserAgent,
		NavigationTimeout: time.Duration(cfg.Headless.NavTimeoutSec) * time.Second,
		SettleDelay:       time.Duration(cfg.Headless.SettleDelayMs) * time.Millisecond,
		ExecPath:          cfg.Headless.ExecPath,
		NoSandbox:         cfg.Headless.NoSandbox,
	})
	if err != nil {
		return nil, fmt.Errorf("headless fetcher init failed: %w", err)
	}
	a.logger.Info("using headless fetcher", zap.Int("max_parallel", cfg.Headless.MaxParallel))
	if cfg.Fetch.Mode == archive.FetchHeadless {
		return limiter.Wrap(a.headless), nil
	}

	auto, err := autofetcher.New(direct, a.headless, detector.NewHeuristic(cfg.Headless.PromotionThresh), a.logger)
	if err != nil {
		return nil, fmt.Errorf("auto fetcher init failed: %w", err)
	}
	return limiter.Wrap(auto), nil
}

func (a *App) setupPublisher(ctx context.Context) (archive.Publisher, error) {
	if !a.cfg.PubSub.Enabled {
		a.logger.Info("Pub/Sub disabled, using in-memory publisher")
		return memorypublisher.New(), nil
	}
	var err error
	a.pubsubClient, err = pubsub.NewClient(ctx, a.cfg.PubSub.ProjectID)
	if err != nil {
		return nil, fmt.Errorf("pubsub client init failed: %w", err)
	}
	a.publisher, err = gcppublisher.New(a.pubsubClient, map[string]string{"source": "archiver"})
	if err != nil {
		return nil, fmt.Errorf("pubsub publisher init failed: %w", err)
	}
	a.logger.Info("Pub/Sub publisher initialized",
		zap.String("project", a.cfg.PubSub.ProjectID),
		zap.String("topic", a.cfg.PubSub.TopicName))
	return a.publisher, nil
}
