package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
	"github.com/spf13/cobra"

	"laterai/internal/api"
	"laterai/internal/bot"
	"laterai/internal/ctxsync"
	"laterai/internal/items"
	"laterai/internal/pipeline"
)

const (
	gcInterval      = 10 * time.Minute
	shutdownTimeout = 10 * time.Second
)

func serveCMD(cfgPath *string) *cobra.Command {
	var addr string
	var serve = &cobra.Command{
		Use:   "serve",
		Short: "Run the HTTP API and, when configured, the Telegram bot",
		RunE: func(cmd *cobra.Command, args []string) error {
			a, err := openApp(*cfgPath, os.Stdout)
			if err != nil {
				return err
			}
			defer a.Close()
			if addr != "" {
				a.cfg.HTTPAddr = addr
			}

			ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
			defer stop()
			return runServe(ctx, a)
		},
	}
	serve.Flags().StringVar(&addr, "addr", "", "listen address (overrides HTTP_ADDR)")
	return serve
}

func runServe(ctx context.Context, a *app) error {
	log := a.log
	log.Info("Starting Later AI")

	go a.repo.RunGC(ctx, gcInterval)

	orch := a.orchestrator(nil)
	registry := items.NewRegistry(a.repo, a.cfg.ItemsPageSize, log)
	orch.Subscribe(registry.HandleEvent)

	transport, closeTransport, err := a.transport(ctx)
	if err != nil {
		return err
	}
	defer closeTransport()

	server := api.NewServer(api.Deps{
		Auth:       a.auth,
		Fetcher:    a.fetcher(),
		Classifier: a.classifier(),
		Capturer:   orch,
		Items:      registry,
		Announcer:  ctxsync.NewAnnouncer(transport, "api-"+uuid.NewString()),
		Metrics:    a.metrics,
		Origins:    a.cfg.Origins(),
		Logger:     log,
	})

	if a.cfg.TelegramBotToken != "" {
		if err := a.startBot(ctx, orch, transport); err != nil {
			return err
		}
	} else {
		log.Info("TELEGRAM_BOT_TOKEN is not set, Telegram surface disabled")
	}

	errCh := make(chan error, 1)
	go func() { errCh <- server.Start(a.cfg.HTTPAddr) }()

	log.Info("Later AI is running. Press Ctrl+C to exit.")
	select {
	case <-ctx.Done():
	case err := <-errCh:
		if err != nil {
			return fmt.Errorf("http server: %w", err)
		}
	}

	log.Info("Shutting down Later AI")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()
	if err := server.Shutdown(shutdownCtx); err != nil {
		log.WithError(err).Error("Error shutting down HTTP server")
	}
	orch.Wait()
	log.Info("Later AI shut down gracefully")
	return nil
}

// startBot runs the Telegram surface with the device session, kept in
// step with API logins through transport.
func (a *app) startBot(ctx context.Context, orch *pipeline.Orchestrator, transport ctxsync.Transport) error {
	store, err := a.deviceSession(ctx)
	if err != nil {
		return err
	}

	syncer := ctxsync.New(store, transport, "", a.log)
	go func() {
		if err := syncer.Run(ctx); err != nil && ctx.Err() == nil {
			a.log.WithError(err).Error("Session sync stopped")
		}
	}()
	go store.Run(ctx, a.cfg.SessionCheckInterval)

	handler, err := bot.NewHandler(a.cfg, store, orch, a.log)
	if err != nil {
		return err
	}
	orch.Subscribe(handler.HandleEvent)
	go handler.Start(ctx)
	return nil
}

// transport picks redis pub/sub when REDIS_ADDR is set, otherwise an
// in-process bus.
func (a *app) transport(ctx context.Context) (ctxsync.Transport, func(), error) {
	if a.cfg.RedisAddr == "" {
		return ctxsync.NewMemoryBus(), func() {}, nil
	}

	client := redis.NewClient(&redis.Options{
		Addr:     a.cfg.RedisAddr,
		Password: a.cfg.RedisPassword,
		DB:       a.cfg.RedisDB,
	})
	pingCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()
	if err := client.Ping(pingCtx).Err(); err != nil {
		_ = client.Close()
		return nil, nil, fmt.Errorf("connect to redis: %w", err)
	}
	a.log.WithField("redis_addr", a.cfg.RedisAddr).Info("Session sync over redis")
	return ctxsync.NewRedisTransport(client, a.cfg.SyncChannel, a.log), func() { _ = client.Close() }, nil
}
