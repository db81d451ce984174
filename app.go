package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/alexbalandi/chatwoot-dify/chatwoot"
	"github.com/alexbalandi/chatwoot-dify/config"
	"github.com/alexbalandi/chatwoot-dify/controllers"
	"github.com/alexbalandi/chatwoot-dify/db"
	"github.com/alexbalandi/chatwoot-dify/dify"
	"github.com/alexbalandi/chatwoot-dify/relay"
	"github.com/alexbalandi/chatwoot-dify/router"
	"github.com/alexbalandi/chatwoot-dify/teams"
	"github.com/alexbalandi/chatwoot-dify/workers"

	"github.com/gin-gonic/gin"
	"golang.org/x/sync/errgroup"
)

const shutdownTimeout = 15 * time.Second

func newLogger(conf config.Configuration) *slog.Logger {
	var level slog.Level
	if err := level.UnmarshalText([]byte(conf.LogLevel)); err != nil {
		level = slog.LevelInfo
	}
	opts := &slog.HandlerOptions{Level: level}

	var handler slog.Handler = slog.NewTextHandler(os.Stdout, opts)
	if conf.LogFormat == "json" {
		handler = slog.NewJSONHandler(os.Stdout, opts)
	}
	logger := slog.New(handler)
	slog.SetDefault(logger)
	return logger
}

func loadConfig(path string) (config.Configuration, *slog.Logger, error) {
	conf, err := config.Load(path)
	if err != nil {
		return config.Configuration{}, nil, err
	}
	return conf, newLogger(conf), nil
}

func newChatwoot(conf config.Configuration, logger *slog.Logger) *chatwoot.Client {
	return chatwoot.New(chatwoot.Options{
		BaseURL:     conf.Chatwoot.ApiURL,
		AccountID:   conf.Chatwoot.AccountID,
		APIKey:      conf.Chatwoot.ApiKey,
		AdminAPIKey: conf.Chatwoot.AdminApiKey,
		Timeout:     conf.Chatwoot.Timeout,
		Logger:      logger,
	})
}

func serve(ctx context.Context, configPath string) error {
	if ctx == nil {
		ctx = context.Background()
	}
	conf, logger, err := loadConfig(configPath)
	if err != nil {
		return err
	}

	database, err := db.Connect(conf, logger)
	if err != nil {
		return err
	}
	defer database.Close()
	store := db.NewDialogueStore(database)

	cw := newChatwoot(conf, logger)
	assistant := dify.New(dify.Options{
		BaseURL:      conf.Dify.ApiURL,
		APIKey:       conf.Dify.ApiKey,
		User:         conf.Dify.User,
		ResponseMode: conf.Dify.ResponseMode,
		Timeout:      conf.Dify.Timeout,
		Logger:       logger,
	})

	teamCache := teams.New(cw, conf.Teams.TTL, logger)
	if err := teamCache.Start(conf.Teams.RefreshSchedule); err != nil {
		return err
	}
	defer teamCache.Stop()

	queue, closeQueue, err := workers.BuildQueue(conf, database, logger)
	if err != nil {
		return err
	}
	defer func() {
		if err := closeQueue(); err != nil {
			logger.Warn("closing queue", "error", err)
		}
	}()

	scheduler := workers.NewScheduler(queue, conf.Relay.Workers, logger)
	background := workers.NewBestEffort(conf.BestEffort.Timeout, logger)
	sentinels := relay.Sentinels(conf.SentinelPrefixes())

	pipeline := relay.NewPipeline(assistant, cw, store, relay.PipelineConfig{
		Sentinels:      sentinels,
		ErrorMessage:   conf.Bot.ErrorMessage,
		MaxAttempts:    conf.Relay.MaxAttempts,
		RetryCountdown: conf.Relay.RetryCountdown,
		Timeout:        conf.Dify.Timeout + conf.Chatwoot.Timeout,
	}, logger)
	pipeline.Register(scheduler)

	ingestor := relay.NewIngestor(store, scheduler, cw, assistant, background, relay.IngestorConfig{
		Sentinels:      sentinels,
		BotSenderTypes: conf.Bot.SenderTypes,
		OpenedMessage:  conf.Bot.OpenedMessage,
	}, logger)

	if conf.LogLevel != "debug" {
		gin.SetMode(gin.ReleaseMode)
	}
	engine := gin.New()
	router.Initialize(engine, conf, &controllers.Dependencies{
		Ingestor:      ingestor,
		Chatwoot:      cw,
		Dialogues:     store,
		Teams:         teamCache,
		Database:      store,
		Assistant:     assistant,
		WebhookSecret: conf.Webhook.Secret,
		Logger:        logger,
	}, logger)

	srv := &http.Server{
		Addr:              ":" + conf.ApiPort,
		Handler:           engine,
		ReadHeaderTimeout: 10 * time.Second,
	}

	ctx, stop := signal.NotifyContext(ctx, os.Interrupt, syscall.SIGTERM)
	defer stop()

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		return scheduler.Run(gctx)
	})
	g.Go(func() error {
		logger.Info("listening", "addr", srv.Addr, "queue", conf.Queue.Driver)
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return err
		}
		return nil
	})
	g.Go(func() error {
		<-gctx.Done()
		logger.Info("shutting down")
		shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
		defer cancel()
		return srv.Shutdown(shutdownCtx)
	})

	err = g.Wait()
	scheduler.Wait()
	background.Wait()
	return err
}

func migrate(configPath string) error {
	conf, logger, err := loadConfig(configPath)
	if err != nil {
		return err
	}
	conf.AutoMigrate = false
	database, err := db.Connect(conf, logger)
	if err != nil {
		return err
	}
	defer database.Close()

	if err := db.Migrate(database); err != nil {
		return err
	}
	logger.Info("migrations applied", "database", conf.Database)
	return nil
}

func refreshTeams(ctx context.Context, out io.Writer, configPath string) error {
	if ctx == nil {
		ctx = context.Background()
	}
	conf, logger, err := loadConfig(configPath)
	if err != nil {
		return err
	}

	cache := teams.New(newChatwoot(conf, logger), conf.Teams.TTL, logger)
	n, err := cache.ForceRefresh(ctx)
	if err != nil {
		return err
	}
	fmt.Fprintf(out, "%d teams\n", n)
	for _, name := range cache.Names() {
		fmt.Fprintln(out, name)
	}
	return nil
}
