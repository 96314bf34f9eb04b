package main

import (
	"context"
	"errors"
	"fmt"
	"net"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/joho/godotenv"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/redis/go-redis/v9"
	"github.com/robfig/cron/v3"
	"github.com/rs/zerolog"
	"google.golang.org/grpc"
	"google.golang.org/grpc/health"
	healthpb "google.golang.org/grpc/health/grpc_health_v1"

	"saunafreunde/internal/api"
	"saunafreunde/internal/aufguss"
	"saunafreunde/internal/auth"
	"saunafreunde/internal/blob"
	"saunafreunde/internal/cache"
	"saunafreunde/internal/club"
	"saunafreunde/internal/config"
	"saunafreunde/internal/database"
	"saunafreunde/internal/events"
	"saunafreunde/internal/feed"
	"saunafreunde/internal/logging"
	"saunafreunde/internal/metrics"
	"saunafreunde/internal/notify"
	"saunafreunde/internal/sheets"
	"saunafreunde/shared/access"
	"saunafreunde/shared/audit"
	"saunafreunde/shared/reminders"
)

func main() {
	_ = godotenv.Load()

	cfg, err := config.Load(os.Getenv("CONFIG_PATH"))
	if err != nil {
		fmt.Fprintf(os.Stderr, "failed to load config: %v\n", err)
		os.Exit(1)
	}
	logger := logging.New(cfg.Logging.Level, cfg.Logging.JSON)

	saunas, err := config.LoadSaunasConfig(os.Getenv("SAUNAS_CONFIG_PATH"))
	if err != nil {
		logger.Fatal().Err(err).Msg("Failed to load saunas config")
	}
	settings, err := aufgussSettings(saunas)
	if err != nil {
		logger.Fatal().Err(err).Msg("Invalid saunas config")
	}
	logger.Info().Str("saunas", saunas.String()).Msg("Sauna table loaded")

	db, err := database.NewDB(cfg.Database.Path, &logger)
	if err != nil {
		logger.Fatal().Err(err).Msg("Failed to open database")
	}
	defer db.Close()
	logger.Info().Str("path", db.Path()).Msg("Database ready")

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	var failover *cache.FailoverCache
	var weekCache cache.WeekCache = cache.NewMemoryCache(cfg.CacheTTL())
	if cfg.Redis.Address != "" {
		rdb := redis.NewClient(&redis.Options{Addr: cfg.Redis.Address, Password: cfg.Redis.Password, DB: cfg.Redis.DB})
		defer rdb.Close()
		failover = cache.NewFailoverCache(cache.NewRedisCache(rdb, cfg.CacheTTL()), weekCache, &logger)
		weekCache = failover
	}

	if cfg.Monitoring.PrometheusEnabled {
		metrics.Register()
	}

	bus := events.NewEventBus()
	aufgussSvc := aufguss.NewService(db, weekCache, bus, settings, cfg.RequestTimeout(), &logger)
	accessSvc := access.NewService(db, func(err error) bool { return errors.Is(err, database.ErrProfileNotFound) }, logger)
	clubSvc := club.NewService(db, db, accessSvc, aufgussSvc.HasSauna, cfg.RequestTimeout(), &logger)

	blobs, err := blob.NewStore(cfg.Storage.Dir, cfg.Storage.PublicBaseURL, cfg.MaxUploadBytes())
	if err != nil {
		logger.Fatal().Err(err).Msg("Failed to open media storage")
	}
	feedSvc := feed.NewService(db, blobs, accessSvc, cfg.RequestTimeout(), &logger)

	err = config.WatchSaunas(ctx, os.Getenv("SAUNAS_CONFIG_PATH"), 30*time.Second, func(sc *config.SaunasConfig, change config.SaunasChange) {
		s, err := aufgussSettings(sc)
		if err != nil {
			logger.Error().Err(err).Msg("Ignoring saunas config update")
			return
		}
		aufgussSvc.UpdateSettings(s)
		logger.Info().Str("saunas", sc.String()).Strs("added", change.Added).Msg("Sauna table reloaded")
		if len(change.Removed) > 0 {
			logger.Warn().Strs("removed", change.Removed).Msg("Saunas removed, their claims no longer match a slot")
		}
	}, func(err error) {
		logger.Error().Err(err).Msg("Rejected saunas config edit, keeping the current table")
	})
	if err != nil {
		logger.Error().Err(err).Msg("Saunas config watch disabled")
	}

	var tg *notify.Telegram
	if cfg.Telegram.BotToken != "" {
		bot, err := notify.NewBotClient(cfg.Telegram.BotToken, cfg.Telegram.Debug)
		if err != nil {
			logger.Fatal().Err(err).Msg("Failed to create Telegram bot")
		}
		tg = notify.NewTelegram(bot, cfg.Telegram.ClubChatID, settings.Table.Location, &logger)
		bus.Subscribe(async(tg.HandleEvent, &logger), events.ClaimCancelled)
	}

	if cfg.Sheets.Enabled {
		sheet, err := sheets.NewGoogleSheet(ctx, cfg.Sheets.CredentialsFile, cfg.Sheets.SpreadsheetID)
		if err != nil {
			logger.Fatal().Err(err).Msg("Failed to connect Google Sheets")
		}
		publisher := sheets.NewPublisher(sheet, aufgussSvc, settings.Table.Location, 30*time.Second, &logger)
		bus.Subscribe(async(publisher.HandleEvent, &logger), events.ClaimCreated, events.ClaimCancelled)
	}

	var reminderSvc *reminders.Service
	if cfg.Reminders.Enabled && tg != nil {
		var reminderMetrics *reminders.Metrics
		if cfg.Monitoring.PrometheusEnabled {
			reminderMetrics = reminders.NewMetrics("saunafreunde", prometheus.DefaultRegisterer)
		}
		senderCfg := reminders.DefaultSenderConfig()
		senderCfg.RateLimiter.Rate = float64(cfg.Reminders.RatePerSecond)
		sender := reminders.NewSender(tg, senderCfg, reminderMetrics, logging.NewAdapter(logger, "reminders"))
		reminderSvc = reminders.NewService(&reminders.Config{
			CheckInterval:              time.Duration(cfg.Reminders.CheckIntervalMinute) * time.Minute,
			HoursBefore:                cfg.Reminders.HoursBefore,
			MaxConcurrentNotifications: cfg.Reminders.MaxConcurrent,
		}, db, db, sender, logging.NewAdapter(logger, "reminders"))
		reminderSvc.Start()
	}

	scheduler := cron.New(cron.WithLocation(settings.Table.Location))
	backups := database.NewBackupService(db, database.BackupConfig{
		Enabled:       cfg.Backup.Enabled,
		Schedule:      cfg.Backup.Schedule,
		StoragePath:   cfg.Backup.Path,
		RetentionDays: cfg.Backup.RetentionDays,
	}, &logger)
	if err := backups.Register(scheduler); err != nil {
		logger.Fatal().Err(err).Msg("Failed to schedule backups")
	}
	if err := aufgussSvc.RegisterTally(ctx, scheduler, cfg.Tally.Schedule); err != nil {
		logger.Fatal().Err(err).Msg("Failed to schedule tally")
	}

	var notifier audit.Notifier
	if tg != nil && cfg.Telegram.AdminChatID != 0 {
		notifier = audit.NotifierFunc(func(ctx context.Context, filename string, data []byte, caption string) error {
			return tg.SendDocument(ctx, cfg.Telegram.AdminChatID, filename, data, caption)
		})
	}
	auditSvc := audit.NewService(audit.Config{
		DataRetentionDays: cfg.Audit.RetentionDays,
		ExportDir:         cfg.Audit.ExportDir,
		ClubName:          saunas.Location,
		Location:          settings.Table.Location,
	}, db, nil, notifier, db, logging.NewAdapter(logger, "audit"))
	if cfg.Audit.Enabled {
		if err := auditSvc.Register(scheduler, cfg.Audit.Schedule); err != nil {
			logger.Fatal().Err(err).Msg("Failed to schedule monthly audit")
		}
	}
	scheduler.Start()

	httpServer := api.NewHTTPServer(api.Services{
		Aufguss: aufgussSvc,
		Club:    clubSvc,
		Feed:    feedSvc,
		Access:  accessSvc,
		Audit:   auditSvc,
		Media:   blobs.Handler(),
	}, auth.NewVerifier(cfg.Auth.JWTSecret, cfg.Auth.Issuer), api.Options{
		Address:            cfg.Server.Address,
		RequestTimeout:     cfg.RequestTimeout(),
		MutationsPerMinute: cfg.Server.MutationsPerMinute,
		MaxUploadBytes:     cfg.MaxUploadBytes(),
		Location:           settings.Table.Location,
	}, &logger)

	go startHealthServer(ctx, cfg.Monitoring.HealthCheckPort, db, failover, &logger)
	if cfg.Monitoring.PrometheusEnabled {
		go startMetricsServer(ctx, cfg.Monitoring.PrometheusPort, &logger)
	}
	if cfg.Monitoring.GRPCHealthPort != 0 {
		go startGRPCHealth(ctx, cfg.Monitoring.GRPCHealthPort, db, &logger)
	}

	go func() {
		if err := httpServer.Start(); err != nil {
			logger.Error().Err(err).Msg("HTTP server error")
			stop()
		}
	}()

	logger.Info().Msg("Saunafreunde server started")
	<-ctx.Done()
	logger.Info().Msg("Shutting down")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := httpServer.Shutdown(shutdownCtx); err != nil {
		logger.Error().Err(err).Msg("HTTP shutdown error")
	}
	<-scheduler.Stop().Done()
	if reminderSvc != nil {
		reminderSvc.Stop()
	}
}

func aufgussSettings(sc *config.SaunasConfig) (aufguss.Settings, error) {
	table, err := sc.Table()
	if err != nil {
		return aufguss.Settings{}, err
	}
	categories, err := sc.CategorySet()
	if err != nil {
		return aufguss.Settings{}, err
	}
	return aufguss.Settings{
		Table:             table,
		Categories:        categories,
		Unmatched:         sc.UnmatchedPolicy(),
		ShortNoticeWindow: sc.ShortNoticeWindow(),
		ShareCooldown:     sc.ShareCooldown(),
	}, nil
}

// async keeps slow outbound integrations off the request path.
func async(handler events.EventHandler, logger *zerolog.Logger) events.EventHandler {
	return func(e events.Event) error {
		go func() {
			if err := handler(e); err != nil {
				logger.Error().Err(err).Str("event", e.Type).Msg("Event handler failed")
			}
		}()
		return nil
	}
}

func startHealthServer(ctx context.Context, port int, db *database.DB, weekCache *cache.FailoverCache, logger *zerolog.Logger) {
	mux := http.NewServeMux()
	mux.HandleFunc("/healthz", func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte("ok"))
	})
	mux.HandleFunc("/readyz", func(w http.ResponseWriter, _ *http.Request) {
		ctxPing, cancel := context.WithTimeout(ctx, time.Second)
		defer cancel()
		if err := db.PingContext(ctxPing); err != nil {
			http.Error(w, "db not ready", http.StatusServiceUnavailable)
			return
		}
		// the memory fallback keeps serving while redis is down
		if weekCache != nil && weekCache.Degraded() {
			_, _ = w.Write([]byte("ready (cache degraded)"))
			return
		}
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte("ready"))
	})

	srv := &http.Server{Addr: fmt.Sprintf(":%d", port), Handler: mux, ReadHeaderTimeout: 5 * time.Second}
	go func() {
		<-ctx.Done()
		ctxShutdown, cancel := context.WithTimeout(context.Background(), 3*time.Second)
		defer cancel()
		_ = srv.Shutdown(ctxShutdown)
	}()
	if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
		logger.Error().Err(err).Msg("health server error")
	}
}

func startMetricsServer(ctx context.Context, port int, logger *zerolog.Logger) {
	mux := http.NewServeMux()
	mux.Handle("/metrics", promhttp.Handler())

	srv := &http.Server{Addr: fmt.Sprintf(":%d", port), Handler: mux, ReadHeaderTimeout: 5 * time.Second}
	go func() {
		<-ctx.Done()
		ctxShutdown, cancel := context.WithTimeout(context.Background(), 3*time.Second)
		defer cancel()
		_ = srv.Shutdown(ctxShutdown)
	}()
	if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
		logger.Error().Err(err).Msg("metrics server error")
	}
}

// startGRPCHealth serves grpc.health.v1 and flips to NOT_SERVING when the database stops answering.
func startGRPCHealth(ctx context.Context, port int, db *database.DB, logger *zerolog.Logger) {
	lis, err := net.Listen("tcp", fmt.Sprintf(":%d", port))
	if err != nil {
		logger.Error().Err(err).Msg("grpc health listen error")
		return
	}
	srv := grpc.NewServer()
	hs := health.NewServer()
	healthpb.RegisterHealthServer(srv, hs)

	go func() {
		ticker := time.NewTicker(10 * time.Second)
		defer ticker.Stop()
		for {
			status := healthpb.HealthCheckResponse_SERVING
			pingCtx, cancel := context.WithTimeout(ctx, time.Second)
			if err := db.PingContext(pingCtx); err != nil {
				status = healthpb.HealthCheckResponse_NOT_SERVING
			}
			cancel()
			hs.SetServingStatus("", status)

			select {
			case <-ctx.Done():
				hs.Shutdown()
				srv.GracefulStop()
				return
			case <-ticker.C:
			}
		}
	}()

	if err := srv.Serve(lis); err != nil && !errors.Is(err, grpc.ErrServerStopped) {
		logger.Error().Err(err).Msg("grpc health server error")
	}
}
