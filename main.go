package main

import (
	"context"
	"errors"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"incident-dispatch/classifier"
	"incident-dispatch/config"
	"incident-dispatch/database"
	"incident-dispatch/draft"
	"incident-dispatch/email"
	"incident-dispatch/executor"
	"incident-dispatch/gemini"
	"incident-dispatch/handlers"
	"incident-dispatch/llm"
	"incident-dispatch/metrics"
	"incident-dispatch/middleware"
	"incident-dispatch/normalizer"
	"incident-dispatch/observability"
	"incident-dispatch/openai"
	"incident-dispatch/rabbitmq"
	"incident-dispatch/report"
	"incident-dispatch/retrieval"
	"incident-dispatch/router"
	"incident-dispatch/service"
	"incident-dispatch/stubllm"
	"incident-dispatch/version"
	"incident-dispatch/vision"

	"github.com/apex/log"
	"github.com/gin-contrib/cors"
	"github.com/gin-contrib/gzip"
	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

func main() {
	// Load configuration
	cfg := config.Load()
	if err := cfg.Validate(); err != nil {
		log.WithError(err).Fatal("invalid configuration")
	}
	if lvl, err := log.ParseLevel(cfg.LogLevel); err == nil {
		log.SetLevel(lvl)
	}

	v := version.Get(handlers.ServiceName)
	log.WithFields(log.Fields{"version": v.Version, "commit": v.Commit, "llm": cfg.LLMProvider}).Info("service.starting")

	metrics.Register()

	client := newLLMClient(cfg)
	log.Infof("Using %s for vision and classification", client.SourceName())

	// Lifecycle hooks
	hooks := observability.Multi{observability.LogHook{}, observability.MetricsHook{}}

	if cfg.RabbitMQ.Enabled {
		publisher, err := rabbitmq.NewPublisher(cfg.RabbitMQ.GetAMQPURL(), cfg.RabbitMQ.Exchange, cfg.RabbitMQ.RoutingKey)
		if err != nil {
			log.WithError(err).Fatal("failed to create RabbitMQ publisher")
		}
		defer publisher.Close()
		hooks = append(hooks, observability.PublisherHook{Publisher: publisher})
	}

	if cfg.AuditEnabled {
		db, err := database.NewDatabase(cfg)
		if err != nil {
			log.WithError(err).Fatal("failed to initialize database")
		}
		defer db.Close()
		if err := db.CreateDispatchEventsTable(context.Background()); err != nil {
			log.WithError(err).Fatal("failed to create dispatch_events table")
		}
		hooks = append(hooks, observability.AuditHook{Recorder: db})
	}

	if cfg.SendGridAPIKey != "" && len(cfg.NotifyEmails) > 0 {
		sender := email.NewEmailSender(cfg.SendGridAPIKey, cfg.SendGridFromName, cfg.SendGridFromEmail, cfg.NotifyEmails)
		hooks = append(hooks, observability.NotifyHook{Notifier: sender})
	}

	if !cfg.EmergencyConfigured() {
		log.Warn("Emergency call executor is not fully configured; /confirm-911 calls will fail upstream")
	}

	var drafts *draft.Issuer
	if cfg.DraftTokenSecret != "" {
		drafts = draft.NewIssuer(cfg.DraftTokenSecret, cfg.DraftTokenTTL)
	}

	svc := service.New(service.Deps{
		Normalizer: normalizer.New(normalizer.Limits{
			MaxImages:     cfg.MaxImages,
			MaxImageBytes: cfg.MaxImageBytes,
		}),
		Extractor: vision.NewExtractor(client, vision.Options{
			Concurrency: cfg.VisionConcurrency,
			Timeout:     cfg.VisionTimeout,
		}),
		Retriever:        retrieval.NewDefault(),
		RetrievalTimeout: cfg.RetrievalTimeout,
		Classifier:       classifier.NewEngine(client, cfg.ClassifyTimeout),
		Router:           router.New(report.NewComposer(nil)),
		Municipal:        executor.NewMunicipal(cfg.Open311URL, cfg.Open311APIKey, cfg.ExecutorTimeout),
		Emergency: executor.NewEmergency(executor.EmergencyOptions{
			BaseURL:           cfg.VapiBaseURL,
			APIKey:            cfg.VapiAPIKey,
			PhoneNumberID:     cfg.VapiPhoneNumberID,
			DestinationNumber: cfg.EmergencyDestinationNumber,
			Timeout:           cfg.ExecutorTimeout,
		}),
		Drafts: drafts,
		Hook:   hooks,
	})

	srv := &http.Server{
		Addr:    ":" + cfg.Port,
		Handler: setupRouter(cfg, handlers.NewHandlers(svc, cfg.MaxUploadBytes)),
	}

	go func() {
		log.Infof("Starting HTTP server on port %s", cfg.Port)
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			log.WithError(err).Fatal("failed to start server")
		}
	}()

	// Wait for interrupt signal to gracefully shutdown the server
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit
	log.Info("Shutting down server...")

	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	if err := srv.Shutdown(ctx); err != nil {
		log.WithError(err).Error("server forced to shutdown")
	}

	log.Info("Server exited")
}

func newLLMClient(cfg *config.Config) llm.Client {
	switch cfg.LLMProvider {
	case "gemini":
		return gemini.NewClient(cfg.GeminiAPIKey, cfg.GeminiBaseURL, cfg.GeminiModel)
	case "stub":
		return stubllm.NewClient()
	default:
		return openai.NewClient(cfg.OpenAIAPIKey, cfg.OpenAIBaseURL, cfg.OpenAIModel, cfg.OpenAIVisionModel)
	}
}

func setupRouter(cfg *config.Config, h *handlers.Handlers) *gin.Engine {
	engine := gin.Default()

	engine.Use(cors.New(cors.Config{
		AllowMethods:  []string{"GET", "POST", "OPTIONS"},
		AllowHeaders:  []string{"Origin", "Content-Type", "Accept", middleware.RequestIDHeader},
		ExposeHeaders: []string{middleware.RequestIDHeader},
		AllowOrigins:  cfg.AllowedOrigins,
		MaxAge:        12 * time.Hour,
	}))
	engine.Use(gzip.Gzip(gzip.DefaultCompression))
	engine.Use(middleware.RequestID())

	engine.GET("/health", h.HealthCheck)
	engine.GET("/version", h.Version)
	engine.GET("/metrics", gin.WrapH(promhttp.Handler()))

	api := engine.Group("/")
	api.Use(middleware.RateLimitMiddleware(cfg.RateLimitPerMinute))
	{
		api.POST("/evaluate", h.Evaluate)
		api.POST("/confirm-311", h.Confirm311)
		api.POST("/confirm-911", h.Confirm911)
	}

	return engine
}
