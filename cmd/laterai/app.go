package main

import (
	"context"
	"fmt"
	"io"
	"strings"

	"github.com/sirupsen/logrus"

	"laterai/internal/auth"
	"laterai/internal/classifier"
	"laterai/internal/config"
	"laterai/internal/metrics"
	"laterai/internal/pipeline"
	"laterai/internal/scraper"
	"laterai/internal/session"
	"laterai/internal/storage"
)

// app holds the components every command shares.
type app struct {
	cfg     config.Config
	log     *logrus.Logger
	repo    *storage.BadgerRepository
	auth    *auth.Service
	metrics *metrics.Metrics
}

func openApp(cfgPath string, logOut io.Writer) (*app, error) {
	cfg, err := config.LoadConfig(cfgPath)
	if err != nil {
		return nil, fmt.Errorf("error loading configuration: %w", err)
	}

	log := newLogger(cfg, logOut)
	log.WithField("badgerdb_path", cfg.BadgerDBPath).Debug("Configuration loaded successfully")

	repo, err := storage.NewBadgerRepository(cfg.BadgerDBPath, log)
	if err != nil {
		return nil, fmt.Errorf("failed to initialize database: %w", err)
	}

	authSvc, err := auth.NewService(repo, repo, auth.Config{
		Secret:     []byte(cfg.JWTSecret),
		AccessTTL:  cfg.AccessTokenTTL,
		RefreshTTL: cfg.RefreshTokenTTL,
	}, log)
	if err != nil {
		_ = repo.Close()
		return nil, err
	}

	return &app{
		cfg:     cfg,
		log:     log,
		repo:    repo,
		auth:    authSvc,
		metrics: metrics.New(),
	}, nil
}

func newLogger(cfg config.Config, out io.Writer) *logrus.Logger {
	log := logrus.New()
	log.SetOutput(out)
	if strings.EqualFold(cfg.LogFormat, "text") {
		log.SetFormatter(&logrus.TextFormatter{FullTimestamp: true})
	} else {
		log.SetFormatter(&logrus.JSONFormatter{})
	}
	level, err := logrus.ParseLevel(cfg.LogLevel)
	if err != nil {
		log.WithField("log_level", cfg.LogLevel).Warn("Unknown log level, using info")
		level = logrus.InfoLevel
	}
	log.SetLevel(level)
	return log
}

func (a *app) Close() {
	a.log.Debug("Closing database")
	if err := a.repo.Close(); err != nil {
		a.log.WithError(err).Error("Error closing database")
	}
}

func (a *app) fetcher() scraper.Fetcher {
	var renderer scraper.Renderer = scraper.NewHTTPRenderer(nil)
	if a.cfg.MetadataRenderer == "rod" {
		renderer = scraper.NewRodRenderer(a.log)
	}
	return scraper.NewService(renderer, a.cfg.MetadataTimeout, a.log, a.metrics)
}

func (a *app) classifier() *classifier.OpenAI {
	c := classifier.NewOpenAI(classifier.OpenAIConfig{
		APIKey:  a.cfg.OpenAIAPIKey,
		Model:   a.cfg.OpenAIModel,
		BaseURL: a.cfg.OpenAIBaseURL,
		Timeout: a.cfg.ClassifyTimeout,
	}, a.log, a.metrics)
	if !c.Enabled() {
		a.log.Warn("OPENAI_API_KEY is not set, items will not be classified")
	}
	return c
}

// orchestrator builds the capture pipeline; src may be nil for callers
// using CaptureWith only.
func (a *app) orchestrator(src session.Source) *pipeline.Orchestrator {
	return pipeline.New(pipeline.Deps{
		Session:    src,
		Fetcher:    a.fetcher(),
		Classifier: a.classifier(),
		Items:      a.repo,
		Logger:     a.log,
		Metrics:    a.metrics,
	})
}

// deviceSession returns the session store backed by the persisted device session.
func (a *app) deviceSession(ctx context.Context) (*session.Store, error) {
	store := session.New(a.auth, a.log,
		session.WithRevoker(a.auth),
		session.WithPersister(a.repo),
		session.WithMetrics(a.metrics),
	)
	if err := store.Restore(ctx); err != nil {
		return nil, err
	}
	return store, nil
}

// owner resolves the signed-in user, refreshing the session if needed.
func (a *app) owner(ctx context.Context, store *session.Store) (string, error) {
	sess, err := store.Session(ctx)
	if err != nil {
		return "", fmt.Errorf("not logged in, run `laterai login`: %w", err)
	}
	return sess.UserID, nil
}
