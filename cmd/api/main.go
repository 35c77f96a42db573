package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"venuebook/internal/api"
	"venuebook/internal/config"
	"venuebook/internal/database"
	"venuebook/internal/domain"
	"venuebook/internal/events"
	"venuebook/internal/google"
	"venuebook/internal/identity"
	"venuebook/internal/logging"
	"venuebook/internal/metrics"
	"venuebook/internal/notify"
	"venuebook/internal/repository"
	"venuebook/internal/service"
	"venuebook/internal/worker"

	tgbotapi "github.com/go-telegram-bot-api/telegram-bot-api/v5"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog"
	"github.com/spf13/pflag"
	"gopkg.in/yaml.v2"
)

func main() {
	if err := run(); err != nil {
		log.Fatalf("Fatal error: %v", err)
	}
}

func run() error {
	configPath := pflag.String("config", "", "path to config.yaml (defaults to $CONFIG_PATH or configs/config.yaml)")
	venuesPath := pflag.String("venues", "", "path to venues.yaml (defaults to $VENUES_PATH or configs/venues.yaml)")
	pflag.Parse()

	cfg, logger, closer, err := loadConfigAndLogger(*configPath)
	if err != nil {
		return err
	}
	if closer != nil {
		defer (func() { _ = closer.Close() })()
	}

	if err := loadVenues(cfg, *venuesPath, &logger); err != nil {
		return err
	}

	db, err := database.NewDB(cfg.Database.Path, &logger)
	if err != nil {
		logger.Error().Err(err).Str("db_path", cfg.Database.Path).Msg("init database")
		return err
	}
	defer db.Close()

	if !cfg.API.Enabled {
		logger.Warn().Msg("API is disabled in config, but starting API application. Check your config.")
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	redisClient := initRedis(ctx, cfg, &logger)
	if redisClient != nil {
		defer repository.Close(redisClient)
	}
	state := initState(redisClient, &logger)

	loc, err := cfg.Booking.Location()
	if err != nil {
		return err
	}

	policy := identity.NewStorePolicy(db, state, time.Duration(cfg.API.Auth.RoleCacheTTL)*time.Second, &logger)
	locker := repository.NewSlotLocker(state, time.Duration(cfg.Booking.SlotLockTTL)*time.Second, 5*time.Second, &logger)
	bus := events.NewEventBus()
	subscribeAuditLog(bus, &logger)

	taskWorker := initWorker(ctx, cfg, db, redisClient, &logger)
	var tasks domain.TaskQueue
	if taskWorker != nil {
		tasks = taskWorker
	}

	bookings := service.NewBookingService(db, policy, state, locker, bus, tasks, service.BookingOptions{
		SubmissionLimit:           cfg.Booking.SubmissionLimit,
		SubmissionWindow:          time.Duration(cfg.Booking.SubmissionWindow) * time.Second,
		RecheckConflictsOnApprove: cfg.Booking.RecheckConflictsOnApprove,
		Location:                  loc,
	}, &logger)
	users := service.NewUserService(db, policy, &logger)

	svc := api.Services{
		Bookings: bookings,
		Users:    users,
		Auth:     api.NewAuthenticator(cfg.API, users, &logger),
		Venues:   cfg.Venues,
		Ready:    db.PingContext,
	}

	var grpcServer *api.GRPCServer
	if cfg.API.GRPC.Enabled {
		grpcServer, err = api.NewGRPCServer(cfg.API, svc, &logger)
		if err != nil {
			logger.Error().Err(err).Msg("create grpc server")
			return err
		}
	}
	httpServer := api.NewHTTPServer(cfg.API, svc, &logger)

	if taskWorker != nil {
		go taskWorker.Start(ctx)
	}
	if cfg.Backup.Enabled {
		go database.NewBackupService(db, cfg.Backup, &logger).Start(ctx)
	}
	startMetrics(ctx, cfg, &logger)

	return startServers(ctx, grpcServer, httpServer, cfg, &logger)
}

func loadConfigAndLogger(configPath string) (*config.Config, zerolog.Logger, io.Closer, error) {
	if configPath == "" {
		configPath = os.Getenv("CONFIG_PATH")
	}
	if configPath == "" {
		configPath = "configs/config.yaml"
	}

	cfg, err := config.Load(configPath)
	if err != nil {
		return nil, zerolog.Logger{}, nil, fmt.Errorf("load config: %w", err)
	}

	baseLogger, closer, err := logging.New(cfg.Logging, cfg.App)
	if err != nil {
		return nil, zerolog.Logger{}, nil, fmt.Errorf("init logger: %w", err)
	}
	logger := baseLogger.With().Str("component", "api-main").Logger()

	return cfg, logger, closer, nil
}

// loadVenues replaces the catalogue from config.yaml with venues.yaml when
// that file exists.
func loadVenues(cfg *config.Config, venuesPath string, logger *zerolog.Logger) error {
	if venuesPath == "" {
		venuesPath = os.Getenv("VENUES_PATH")
	}
	if venuesPath == "" {
		venuesPath = "configs/venues.yaml"
	}

	data, err := os.ReadFile(venuesPath)
	if errors.Is(err, os.ErrNotExist) {
		return nil
	}
	if err != nil {
		logger.Error().Err(err).Str("venues_path", venuesPath).Msg("read venues")
		return err
	}

	var venuesConfig struct {
		Venues []config.VenueInfo `yaml:"venues"`
	}
	if err := yaml.Unmarshal(data, &venuesConfig); err != nil {
		logger.Error().Err(err).Str("venues_path", venuesPath).Msg("parse venues")
		return err
	}
	if err := config.ValidateVenues(venuesConfig.Venues); err != nil {
		return fmt.Errorf("venues.yaml: %w", err)
	}

	cfg.Venues = venuesConfig.Venues
	logger.Info().Int("count", len(cfg.Venues)).Msg("venue catalogue loaded")
	return nil
}

func initRedis(ctx context.Context, cfg *config.Config, logger *zerolog.Logger) *redis.Client {
	if cfg.Redis.Address == "" {
		return nil
	}

	redisClient := repository.NewRedisClient(cfg.Redis)
	pingCtx, cancel := context.WithTimeout(ctx, 3*time.Second)
	defer cancel()
	if err := repository.Ping(pingCtx, redisClient); err != nil {
		logger.Warn().Err(err).Msg("redis connection failed, continuing with in-memory state")
		_ = redisClient.Close()
		return nil
	}

	logger.Info().Str("addr", cfg.Redis.Address).Msg("redis connected")
	return redisClient
}

// initState keeps rate limits, slot locks and the role cache in redis with an
// in-memory fallback, or in memory only when redis is not configured.
func initState(redisClient *redis.Client, logger *zerolog.Logger) domain.StateRepository {
	memory := repository.NewMemoryStateRepository()
	if redisClient == nil {
		return memory
	}
	return repository.NewFailoverStateRepository(repository.NewRedisStateRepository(redisClient), memory, logger)
}

func subscribeAuditLog(bus *events.EventBus, logger *zerolog.Logger) {
	audit := logger.With().Str("component", "audit").Logger()
	handler := func(event *events.Event) error {
		audit.Info().Str("event", event.Type).RawJSON("payload", event.Payload).Msg("booking event")
		return nil
	}
	for _, eventType := range []string{events.EventBookingCreated, events.EventBookingApproved, events.EventBookingRejected} {
		bus.Subscribe(eventType, handler)
	}
}

func initWorker(ctx context.Context, cfg *config.Config, db *database.DB, redisClient *redis.Client, logger *zerolog.Logger) *worker.TaskWorker {
	if !cfg.Worker.Enabled {
		return nil
	}

	var sheets domain.SheetsWriter
	if sheetsService := initGoogleSheets(ctx, cfg, logger); sheetsService != nil {
		sheets = sheetsService
	}

	var deliverer worker.Deliverer
	if dispatcher := initDispatcher(cfg, db, logger); dispatcher.Enabled() {
		deliverer = dispatcher
	}

	if sheets == nil && deliverer == nil {
		logger.Info().Msg("no sheet mirror or notification channel configured, worker disabled")
		return nil
	}

	w := worker.NewTaskWorker(db, sheets, deliverer, redisClient, worker.RetryPolicy{
		MaxRetries:    cfg.Worker.MaxRetries,
		InitialDelay:  cfg.Worker.InitialDelay,
		MaxDelay:      cfg.Worker.MaxDelay,
		BackoffFactor: cfg.Worker.BackoffFactor,
	}, logger)
	w.SetPollInterval(cfg.Worker.PollInterval)
	return w
}

func initGoogleSheets(ctx context.Context, cfg *config.Config, logger *zerolog.Logger) *google.SheetsService {
	if !cfg.Google.Enabled() {
		return nil
	}

	sheetsService, err := google.NewSheetsService(ctx, cfg.Google.CredentialsFile, cfg.Google.BookingSpreadSheetID, cfg.Google.SheetName, logger)
	if err != nil {
		logger.Warn().Err(err).Msg("google sheets init failed, continuing without sheets")
		return nil
	}
	if err := sheetsService.TestConnection(ctx); err != nil {
		logger.Warn().Err(err).Msg("google sheets unreachable, continuing without sheets")
		return nil
	}
	go sheetsService.StartCacheRefresh(ctx)

	logger.Info().Msg("google sheets connected")
	return sheetsService
}

func initDispatcher(cfg *config.Config, db *database.DB, logger *zerolog.Logger) *notify.Dispatcher {
	var notifiers []domain.Notifier

	if cfg.Notifications.Telegram.Enabled {
		bot, err := tgbotapi.NewBotAPI(cfg.Notifications.Telegram.BotToken)
		if err != nil {
			logger.Warn().Err(err).Msg("telegram init failed, continuing without telegram")
		} else {
			bot.Debug = cfg.Notifications.Telegram.Debug
			logger.Info().Str("bot", bot.Self.UserName).Msg("telegram connected")
			notifiers = append(notifiers, notify.NewTelegramNotifier(bot))
		}
	}

	if cfg.Notifications.Email.Enabled {
		notifiers = append(notifiers, notify.NewEmailNotifier(notify.NewSMTPDialer(cfg.Notifications.Email), cfg.Notifications.Email.From))
	}

	return notify.NewDispatcher(db, logger, notifiers...)
}

func startMetrics(ctx context.Context, cfg *config.Config, logger *zerolog.Logger) {
	if !cfg.Monitoring.PrometheusEnabled {
		return
	}

	metrics.Register()
	go startMetricsServer(ctx, cfg.Monitoring.PrometheusPort, logger)
}

func startServers(
	ctx context.Context,
	grpcServer *api.GRPCServer,
	httpServer *api.HTTPServer,
	cfg *config.Config,
	logger *zerolog.Logger,
) error {
	if grpcServer != nil {
		go func() {
			if err := grpcServer.Serve(); err != nil {
				logger.Error().Err(err).Msg("grpc server stopped")
			}
		}()
	}

	go func() {
		if !cfg.API.HTTP.Enabled {
			return
		}
		if err := httpServer.Start(); err != nil {
			logger.Error().Err(err).Msg("http server stopped")
		}
	}()

	logger.Info().Bool("grpc", grpcServer != nil).Int("http_port", cfg.API.HTTP.Port).Msg("API server started")

	<-ctx.Done()
	logger.Info().Msg("shutdown signal received")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	if grpcServer != nil {
		grpcServer.Shutdown(shutdownCtx)
	}
	_ = httpServer.Shutdown(shutdownCtx)

	logger.Info().Msg("API server stopped")
	return nil
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
	if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		logger.Error().Err(err).Msg("metrics server error")
	}
}
