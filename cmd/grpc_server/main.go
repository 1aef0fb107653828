package main

import (
	"context"
	"encoding/json"
	"errors"
	"flag"
	"fmt"
	"net"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/ThreeDotsLabs/watermill/message"
	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
	"google.golang.org/grpc"
	"google.golang.org/grpc/health"
	"google.golang.org/grpc/health/grpc_health_v1"
	"google.golang.org/grpc/reflection"

	"github.com/mitchelldurbincs/MekEncounter/internal/adapters/redis"
	"github.com/mitchelldurbincs/MekEncounter/internal/config"
	"github.com/mitchelldurbincs/MekEncounter/internal/game/ai"
	"github.com/mitchelldurbincs/MekEncounter/internal/game/events/subscribers"
	"github.com/mitchelldurbincs/MekEncounter/internal/game/manager"
	"github.com/mitchelldurbincs/MekEncounter/internal/grpc/encounterserver"
	"github.com/mitchelldurbincs/MekEncounter/internal/monitoring"
	"github.com/mitchelldurbincs/MekEncounter/internal/storage/sqlite"
)

func main() {
	configPath := flag.String("config", "", "Path to config file")
	port := flag.Int("port", -1, "The server port (-1 to use config default)")
	host := flag.String("host", "", "The server host (empty to use config default)")
	logLevel := flag.String("log-level", "", "Log level (debug, info, warn, error) (empty to use config default)")
	maxSessions := flag.Int("max-sessions", -1, "Maximum concurrent sessions (-1 to use config default)")
	metricsPort := flag.Int("metrics-port", -1, "Metrics and health HTTP port, 0 disables (-1 to use config default)")
	dbPath := flag.String("db", "", "SQLite journal path (empty to use config default)")
	enableReflection := flag.Bool("enable-reflection", false, "Enable gRPC reflection for debugging")
	flag.Parse()

	if err := config.Init(*configPath); err != nil {
		log.Fatal().Err(err).Msg("Failed to initialize config")
	}
	cfg := config.Get()

	// Use config defaults if not overridden by flags
	if *port == -1 {
		*port = cfg.Server.GRPCServer.Port
	}
	if *host == "" {
		*host = cfg.Server.GRPCServer.Host
	}
	if *logLevel == "" {
		*logLevel = cfg.Server.GRPCServer.LogLevel
	}
	if *maxSessions == -1 {
		*maxSessions = cfg.Server.GRPCServer.MaxSessions
	}
	if *metricsPort == -1 {
		*metricsPort = cfg.Server.Metrics.Port
	}
	if *dbPath != "" {
		cfg.Storage.SQLite.Enabled = true
		cfg.Storage.SQLite.Path = *dbPath
	}
	if !*enableReflection {
		*enableReflection = cfg.Server.GRPCServer.EnableReflection
	}

	setupLogging(*logLevel, cfg.Logging.Format)
	logger := log.Logger

	log.Info().
		Int("port", *port).
		Str("host", *host).
		Int("max_sessions", *maxSessions).
		Bool("sqlite", cfg.Storage.SQLite.Enabled).
		Bool("redis", cfg.Storage.Redis.Enabled).
		Msg("Starting gRPC encounter server")

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	registry := prometheus.NewRegistry()
	registry.MustRegister(collectors.NewGoCollector(), collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}))
	metrics := monitoring.NewMetrics(registry)

	idleTTL, finishedTTL := cfg.SessionTTL()
	opts := []manager.Option{
		manager.WithMaxSessions(*maxSessions),
		manager.WithSessionTTL(idleTTL, finishedTTL),
		manager.WithMetrics(metrics),
		manager.WithRunner(ai.NewRunner(logger,
			ai.WithHeatMargin(cfg.AI.HeatMargin),
			ai.WithMaxCallsPerUnit(cfg.AI.MaxCallsPerUnit),
			ai.WithPhysicalThreshold(cfg.AI.PhysicalThreshold),
		)),
	}

	if cfg.Storage.SQLite.Enabled {
		store, err := sqlite.Open(cfg.Storage.SQLite.Path, sqlite.WithLogger(logger))
		if err != nil {
			log.Fatal().Err(err).Str("path", cfg.Storage.SQLite.Path).Msg("Failed to open event journal")
		}
		defer store.Close()
		opts = append(opts, manager.WithEventStore(store))
		log.Info().Str("path", cfg.Storage.SQLite.Path).Msg("Event journal ready")
	}

	if cfg.Storage.Redis.Enabled {
		snapshots := redis.New(cfg.Storage.Redis.Addr, cfg.Storage.Redis.Password, cfg.Storage.Redis.DB,
			redis.WithTTL(cfg.RedisTTL()),
			redis.WithLogger(logger),
		)
		defer snapshots.Close()
		pingCtx, pingCancel := context.WithTimeout(ctx, 3*time.Second)
		if err := snapshots.Ping(pingCtx); err != nil {
			log.Warn().Err(err).Str("addr", cfg.Storage.Redis.Addr).Msg("Redis unreachable, snapshots will be retried per commit")
		}
		pingCancel()
		opts = append(opts, manager.WithObserver(snapshots))
	}

	if cfg.Events.LogEnabled {
		eventLogger := subscribers.NewLoggerSubscriber("event-logger", logger, zerolog.DebugLevel)
		eventLogger.SetDevMode(cfg.Events.DevMode)
		opts = append(opts, manager.WithSubscriber(eventLogger))
	}

	if cfg.Events.ForwardEnabled {
		pubSub := subscribers.NewInMemoryPubSub(logger, false)
		defer pubSub.Close()
		forwarder := subscribers.NewForwarder("event-forwarder", cfg.Events.Topic, pubSub, logger)
		forwarded, err := pubSub.Subscribe(ctx, forwarder.Topic())
		if err != nil {
			log.Fatal().Err(err).Msg("Failed to subscribe to forwarded events")
		}
		go traceForwarded(forwarded)
		opts = append(opts, manager.WithSubscriber(forwarder))
	}

	sessions := manager.NewSessionManager(logger, opts...)
	sessions.Start()
	defer sessions.Close()

	monitor := monitoring.NewGoroutineMonitor(logger, metrics, 30*time.Second, 1000)
	go monitor.Run(ctx)

	lis, err := net.Listen("tcp", fmt.Sprintf("%s:%d", *host, *port))
	if err != nil {
		log.Fatal().Err(err).Msg("Failed to listen")
	}

	grpcServer := grpc.NewServer(
		grpc.ChainUnaryInterceptor(
			encounterserver.LoggingInterceptor(logger),
			encounterserver.RecoveryInterceptor(logger),
		),
	)
	encounterserver.RegisterEncounterServiceServer(grpcServer, encounterserver.NewServer(sessions, logger))

	healthServer := health.NewServer()
	grpc_health_v1.RegisterHealthServer(grpcServer, healthServer)
	healthServer.SetServingStatus("", grpc_health_v1.HealthCheckResponse_SERVING)
	healthServer.SetServingStatus(encounterserver.ServiceName, grpc_health_v1.HealthCheckResponse_SERVING)

	if *enableReflection {
		reflection.Register(grpcServer)
		log.Info().Msg("gRPC reflection enabled")
	}

	var httpServer *http.Server
	if *metricsPort > 0 {
		httpServer = &http.Server{
			Addr:              fmt.Sprintf("%s:%d", cfg.Server.Metrics.Host, *metricsPort),
			Handler:           newHTTPHandler(registry, sessions),
			ReadHeaderTimeout: 5 * time.Second,
		}
		go func() {
			log.Info().Str("address", httpServer.Addr).Msg("Metrics server listening")
			if err := httpServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
				log.Error().Err(err).Msg("Metrics server failed")
			}
		}()
	}

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, os.Interrupt, syscall.SIGTERM)

	go func() {
		sig := <-sigCh
		log.Info().Str("signal", sig.String()).Msg("Received shutdown signal")

		healthServer.SetServingStatus("", grpc_health_v1.HealthCheckResponse_NOT_SERVING)
		healthServer.SetServingStatus(encounterserver.ServiceName, grpc_health_v1.HealthCheckResponse_NOT_SERVING)

		// Give ongoing requests time to complete
		time.Sleep(time.Duration(cfg.Server.GRPCServer.GracefulShutdownDelay) * time.Second)

		log.Info().Msg("Gracefully stopping gRPC server")
		grpcServer.GracefulStop()
		if httpServer != nil {
			shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 5*time.Second)
			_ = httpServer.Shutdown(shutdownCtx)
			shutdownCancel()
		}
		cancel()
	}()

	log.Info().Str("address", lis.Addr().String()).Msg("gRPC server listening")

	go func() {
		if err := grpcServer.Serve(lis); err != nil {
			log.Fatal().Err(err).Msg("Failed to serve")
		}
	}()

	<-ctx.Done()
	log.Info().Msg("Server shutdown complete")
}

func setupLogging(level, format string) {
	var logLevel zerolog.Level
	switch level {
	case "debug":
		logLevel = zerolog.DebugLevel
	case "info":
		logLevel = zerolog.InfoLevel
	case "warn":
		logLevel = zerolog.WarnLevel
	case "error":
		logLevel = zerolog.ErrorLevel
	default:
		logLevel = zerolog.InfoLevel
	}
	zerolog.SetGlobalLevel(logLevel)

	if format == "json" || os.Getenv("APP_ENV") == "production" {
		log.Logger = zerolog.New(os.Stdout).With().Timestamp().Logger()
	} else {
		log.Logger = log.Output(zerolog.ConsoleWriter{
			Out:        os.Stdout,
			TimeFormat: time.RFC3339,
		})
	}
}

// traceForwarded acknowledges forwarded events, logging each at trace level
func traceForwarded(msgs <-chan *message.Message) {
	for msg := range msgs {
		evt, err := subscribers.DecodeMessage(msg)
		if err != nil {
			log.Warn().Err(err).Str("message_uuid", msg.UUID).Msg("Undecodable forwarded event")
			msg.Ack()
			continue
		}
		log.Trace().
			Str("game_id", evt.GameID).
			Int("seq", evt.Sequence).
			Str("event_type", string(evt.Type)).
			Msg("Forwarded event")
		msg.Ack()
	}
}

// newHTTPHandler serves /metrics and /healthz
func newHTTPHandler(registry *prometheus.Registry, sessions *manager.SessionManager) http.Handler {
	r := chi.NewRouter()
	r.Use(middleware.Recoverer)

	r.Handle("/metrics", promhttp.HandlerFor(registry, promhttp.HandlerOpts{Registry: registry}))
	r.Get("/healthz", func(w http.ResponseWriter, _ *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		_ = json.NewEncoder(w).Encode(map[string]any{
			"status":   "ok",
			"sessions": sessions.Count(),
		})
	})
	return r
}
