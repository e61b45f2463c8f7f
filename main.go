package main

import (
	"os"
	"time"

	"github.com/labstack/echo/v4"
	echoMw "github.com/labstack/echo/v4/middleware"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	libredis "github.com/redis/go-redis/v9"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"

	"github.com/brightling/convene/config"
	"github.com/brightling/convene/internal/audit"
	"github.com/brightling/convene/internal/handler"
	"github.com/brightling/convene/internal/metrics"
	"github.com/brightling/convene/internal/middleware"
	"github.com/brightling/convene/internal/notify"
	"github.com/brightling/convene/internal/repository"
	"github.com/brightling/convene/internal/service"
	"github.com/brightling/convene/pkg/database"
	"github.com/brightling/convene/pkg/kafka"
	"github.com/brightling/convene/pkg/rabbitmq"
)

func main() {
	cfg := config.Load()
	setupLogging(cfg)

	if cfg.JWTSecret == "" {
		log.Fatal().Msg("JWT_SECRET is required")
	}

	db := database.NewPostgresDB(cfg.DSN())

	reg := metrics.New(prometheus.DefaultRegisterer)

	// Notifications: RabbitMQ when configured, otherwise dropped.
	var dispatcher notify.Dispatcher = notify.NopDispatcher{}
	if cfg.RabbitURL != "" {
		publisher, err := rabbitmq.NewPublisher(cfg.RabbitURL)
		if err != nil {
			log.Fatal().Err(err).Msg("failed to connect to RabbitMQ")
		}
		defer publisher.Close()
		dispatcher = notify.NewAMQPDispatcher(publisher, reg)
	} else {
		log.Warn().Msg("RABBIT_URL not set, notifications disabled")
	}

	// Audit stream: Kafka when configured, otherwise dropped.
	var trail audit.Trail = audit.NopTrail{}
	if len(cfg.KafkaBrokers) > 0 {
		writer := kafka.NewWriter(cfg.KafkaBrokers, cfg.KafkaTopic)
		defer writer.Close()
		trail = audit.NewKafkaTrail(writer, reg)
	} else {
		log.Warn().Msg("KAFKA_BROKERS not set, audit stream disabled")
	}

	// Shared rate limit counters need Redis; without it each replica
	// counts on its own.
	var redisClient *libredis.Client
	if cfg.RedisAddr != "" {
		redisClient = libredis.NewClient(&libredis.Options{
			Addr:     cfg.RedisAddr,
			Password: cfg.RedisPassword,
			DB:       cfg.RedisDB,
		})
	}

	// Repositories
	eventRepo := repository.NewEventRepository(db)
	rsvpRepo := repository.NewRSVPRepository(db)

	// Services
	rsvpSvc := service.NewRSVPService(rsvpRepo, eventRepo, dispatcher, trail, reg)
	eventSvc := service.NewEventService(eventRepo, rsvpRepo, dispatcher, trail, reg)

	// Echo
	e := echo.New()
	e.HideBanner = true
	e.HTTPErrorHandler = middleware.ErrorHandler
	e.Use(echoMw.RequestLoggerWithConfig(echoMw.RequestLoggerConfig{
		LogStatus:  true,
		LogURI:     true,
		LogMethod:  true,
		LogLatency: true,
		LogValuesFunc: func(c echo.Context, v echoMw.RequestLoggerValues) error {
			log.Info().
				Str("method", v.Method).
				Str("uri", v.URI).
				Int("status", v.Status).
				Dur("latency", v.Latency).
				Msg("request")
			return nil
		},
	}))
	e.Use(echoMw.Recover())

	e.GET("/health", func(c echo.Context) error {
		return c.JSON(200, map[string]string{"status": "ok", "service": "convene"})
	})
	e.GET("/metrics", echo.WrapHandler(promhttp.Handler()))

	api := e.Group("/api/v1",
		middleware.Auth(cfg.JWTSecret, cfg.AllowedEmailDomain),
		middleware.RateLimit(redisClient, cfg.RateLimitPerMinute),
	)
	handler.NewEventHandler(eventSvc, rsvpSvc).RegisterRoutes(api)
	handler.NewRSVPHandler(rsvpSvc).RegisterRoutes(api)

	log.Info().Str("port", cfg.ServerPort).Msg("convene starting")
	if err := e.Start(":" + cfg.ServerPort); err != nil {
		log.Fatal().Err(err).Msg("server stopped")
	}
}

func setupLogging(cfg *config.Config) {
	zerolog.TimeFieldFormat = time.RFC3339

	level, err := zerolog.ParseLevel(cfg.LogLevel)
	if err != nil || level == zerolog.NoLevel {
		level = zerolog.InfoLevel
	}
	zerolog.SetGlobalLevel(level)

	if cfg.LogPretty {
		log.Logger = log.Output(zerolog.ConsoleWriter{Out: os.Stderr, TimeFormat: time.Kitchen})
	}
}
