package main

import (
	"context"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/fiber/v2/middleware/cors"
	"github.com/gofiber/fiber/v2/middleware/recover"
	"github.com/gofiber/fiber/v2/middleware/requestid"
	"github.com/gofiber/swagger"
	"github.com/rs/zerolog/log"

	"github.com/MuhamadAgungGumelar/micro-system-omnichannel-hub/internal/core/agent"
	"github.com/MuhamadAgungGumelar/micro-system-omnichannel-hub/internal/core/audit"
	"github.com/MuhamadAgungGumelar/micro-system-omnichannel-hub/internal/core/channel"
	"github.com/MuhamadAgungGumelar/micro-system-omnichannel-hub/internal/core/instagram"
	"github.com/MuhamadAgungGumelar/micro-system-omnichannel-hub/internal/core/jobs"
	"github.com/MuhamadAgungGumelar/micro-system-omnichannel-hub/internal/core/llm"
	"github.com/MuhamadAgungGumelar/micro-system-omnichannel-hub/internal/core/memory"
	"github.com/MuhamadAgungGumelar/micro-system-omnichannel-hub/internal/core/notification"
	"github.com/MuhamadAgungGumelar/micro-system-omnichannel-hub/internal/core/scheduler"
	"github.com/MuhamadAgungGumelar/micro-system-omnichannel-hub/internal/core/tenant"
	"github.com/MuhamadAgungGumelar/micro-system-omnichannel-hub/internal/core/webhook"
	"github.com/MuhamadAgungGumelar/micro-system-omnichannel-hub/internal/core/whatsapp"
	"github.com/MuhamadAgungGumelar/micro-system-omnichannel-hub/internal/modules/inbox/handlers"
	"github.com/MuhamadAgungGumelar/micro-system-omnichannel-hub/internal/modules/inbox/repositories"
	"github.com/MuhamadAgungGumelar/micro-system-omnichannel-hub/internal/modules/inbox/services"
	"github.com/MuhamadAgungGumelar/micro-system-omnichannel-hub/internal/shared/config"
	"github.com/MuhamadAgungGumelar/micro-system-omnichannel-hub/internal/shared/database"
	"github.com/MuhamadAgungGumelar/micro-system-omnichannel-hub/internal/shared/utils"

	_ "github.com/MuhamadAgungGumelar/micro-system-omnichannel-hub/cmd/hub/docs"
)

// @title Omnichannel Hub API
// @version 1.0
// @description Multi-tenant WhatsApp and Instagram webhook ingestion, AI agent replies and human escalation
// @contact.name API Support
// @license.name MIT
// @host localhost:8080
// @BasePath /
// @securityDefinitions.apikey TenantID
// @in header
// @name X-Tenant-ID
func main() {
	cfg := config.LoadConfig()
	utils.InitLogger(cfg.Env, cfg.LogLevel)
	log.Info().Str("port", cfg.Port).Str("env", cfg.Env).Msg("🚀 Starting omnichannel hub")

	db := database.NewDB(cfg.DatabaseURL, !cfg.IsProduction())
	defer db.Close()

	// Tenants
	tenantRepo := repositories.NewTenantRepo(db.GORM)
	tenantCache := tenant.NewCache(tenantRepo, cfg.TenantCacheTTL, cfg.TenantCacheSize)
	resolver := tenant.NewResolver(tenantCache, tenantRepo, tenant.FallbackConfig{
		AccountID: cfg.SingleTenantAccountID,
		AppSecrets: map[channel.Channel]string{
			channel.WhatsApp:  cfg.WhatsAppAppSecret,
			channel.Instagram: cfg.InstagramAppSecret,
		},
	})

	// Outbound channels
	router := channel.NewRouter(tenantRepo, cfg.OutboundRatePerSec)
	router.Register(channel.WhatsApp, whatsapp.NewCloudAPIClient(whatsapp.CloudAPIConfig{
		APIVersion: cfg.GraphAPIVersion,
		Timeout:    15 * time.Second,
	}))
	router.Register(channel.Instagram, instagram.NewSendAPIClient(instagram.Config{
		APIVersion: cfg.GraphAPIVersion,
		Timeout:    15 * time.Second,
	}))

	provider, err := llm.NewProvider(llm.ProviderConfig{
		Type:        llm.ProviderType(cfg.LLMProvider),
		OpenAIKey:   cfg.OpenAIKey,
		GroqKey:     cfg.GroqKey,
		DeepSeekKey: cfg.DeepSeekKey,
		GeminiKey:   cfg.GeminiKey,
		BaseURL:     cfg.LLMBaseURL,
		Model:       cfg.LLMModel,
		Temperature: 0.4,
		MaxTokens:   600,
		Timeout:     cfg.AgentTimeout,
	})
	if err != nil {
		log.Fatal().Err(err).Msg("❌ Failed to init LLM provider")
	}
	log.Info().Str("provider", provider.Name()).Msg("🤖 LLM provider ready")

	memoryStore := memory.NewStore(db.GORM, memory.Config{
		MaxTurns: cfg.MemoryMaxMessages,
		TTL:      cfg.MemoryTTL,
	})

	hub := notification.NewHub(64)
	notifier := notification.NewService(hub)
	auditService := audit.NewService(db.GORM)

	queue := jobs.NewService(db.GORM, jobs.RetryPolicy{
		MaxAttempts: cfg.QueueMaxAttempts,
		BaseBackoff: cfg.QueueBackoffBase,
		MaxBackoff:  cfg.QueueBackoffMax,
	})

	// Domain services
	messageService := services.NewMessageService(db.GORM, notifier)
	escalationService := services.NewEscalationService(db.GORM, notifier, auditService)
	engine := agent.NewEngine(provider, router, memoryStore, messageService, escalationService, agent.Config{
		CompletionTimeout: cfg.AgentTimeout,
		Unsupported:       unsupportedTypes(cfg.UnsupportedAudioOn),
	})
	ingestService := services.NewIngestService(db.GORM, notifier, engine)
	statusService := services.NewStatusService(db.GORM, notifier)

	queue.RegisterWorker(jobs.WorkerConfig{
		Lane:         jobs.LaneInboundMessage,
		Concurrency:  cfg.InboundConcurrency,
		PollInterval: cfg.QueuePollInterval,
		Timeout:      cfg.JobTimeout,
	}, ingestService)
	queue.RegisterWorker(jobs.WorkerConfig{
		Lane:         jobs.LaneStatusUpdate,
		Concurrency:  cfg.StatusConcurrency,
		PollInterval: cfg.QueuePollInterval,
		Timeout:      cfg.JobTimeout,
	}, statusService)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	if err := queue.StartWorkers(ctx); err != nil {
		log.Fatal().Err(err).Msg("❌ Failed to start workers")
	}

	sched := scheduler.NewScheduler(5 * time.Minute)
	maintenance := scheduler.Maintenance{
		Memory:             memoryStore,
		Queue:              queue,
		WebhookEvents:      auditService,
		StaleJobAfter:      cfg.StaleJobAfter,
		JobRetention:       cfg.JobRetention,
		EventRetentionDays: cfg.WebhookEventRetentionDays,
	}
	if err := maintenance.Register(sched); err != nil {
		log.Fatal().Err(err).Msg("❌ Failed to register maintenance tasks")
	}
	sched.Start()

	webhookHandler := handlers.NewWebhookHandler(resolver, queue, auditService, handlers.WebhookConfig{
		VerifyToken:    cfg.WebhookVerifyToken,
		ResolveTimeout: cfg.ResolveTimeout,
	})

	app := fiber.New(fiber.Config{
		AppName:     "Omnichannel Hub",
		ReadTimeout: 10 * time.Second,
	})
	app.Use(recover.New())
	app.Use(requestid.New())
	app.Use(cors.New())
	app.Get("/swagger/*", swagger.HandlerDefault)

	handlers.RegisterRoutes(app, handlers.Handlers{
		Webhook:    webhookHandler,
		Escalation: handlers.NewEscalationHandler(escalationService, messageService),
		Admin:      handlers.NewAdminHandler(queue, auditService),
		Realtime:   handlers.NewRealtimeHandler(hub, 25*time.Second),
		Channel:    handlers.NewChannelHandler(tenantRepo),
		Health:     handlers.NewHealthHandler(db),
	})

	go func() {
		if err := app.Listen(":" + cfg.Port); err != nil {
			log.Error().Err(err).Msg("❌ Server stopped")
		}
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit
	log.Info().Msg("🛑 Shutting down")

	if err := app.ShutdownWithTimeout(10 * time.Second); err != nil {
		log.Error().Err(err).Msg("HTTP shutdown")
	}

	drainCtx, drainCancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer drainCancel()
	if err := webhookHandler.Wait(drainCtx); err != nil {
		log.Warn().Err(err).Msg("⚠️ Webhook dispatch did not drain")
	}

	queue.StopWorkers()
	cancel()
	sched.Stop()
	log.Info().Msg("👋 Bye")
}

// unsupportedTypes builds the per-channel list of message types the agent
// leaves to humans. Unknown channel names are ignored.
func unsupportedTypes(audioOn []string) map[channel.Channel][]webhook.MessageType {
	out := make(map[channel.Channel][]webhook.MessageType)
	for _, name := range audioOn {
		ch, ok := channel.Parse(name)
		if !ok {
			log.Warn().Str("channel", name).Msg("⚠️ Ignoring unknown channel in AGENT_AUDIO_UNSUPPORTED_CHANNELS")
			continue
		}
		out[ch] = append(out[ch], webhook.TypeAudio)
	}
	return out
}
