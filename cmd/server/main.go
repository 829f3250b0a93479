// cmd/server/main.go
package main

import (
	"log"
	"net/http"
	"os"

	"github.com/go-chi/chi/v5"
	"github.com/joho/godotenv"

	"github.com/agentzero/phishsim-backend/internal/cache"
	"github.com/agentzero/phishsim-backend/internal/controller"
	"github.com/agentzero/phishsim-backend/internal/db"
	"github.com/agentzero/phishsim-backend/internal/handler"
	"github.com/agentzero/phishsim-backend/internal/provider"
	"github.com/agentzero/phishsim-backend/internal/queue"
	"github.com/agentzero/phishsim-backend/internal/repository"
	"github.com/agentzero/phishsim-backend/internal/service"
)

func main() {
	// Load .env
	if err := godotenv.Load(); err != nil {
		log.Println("⚠️ No .env file found, relying on OS environment variables")
	}

	// Init DB
	db.Init()

	campaignRepo := &repository.CampaignRepository{DB: db.DB}
	recipientRepo := &repository.RecipientRepository{DB: db.DB}
	emailRepo := &repository.EmailRepository{DB: db.DB}
	eventRepo := &repository.EventRepository{DB: db.DB}

	var extIDCache *cache.RedisCache
	if addr := os.Getenv("REDIS_ADDR"); addr != "" {
		var err error
		extIDCache, err = cache.NewRedisCache(addr, os.Getenv("REDIS_PASSWORD"))
		if err != nil {
			log.Fatalf("failed to connect to Redis: %v", err)
		}
		log.Println("✅ Connected to Redis")
	}

	sender := provider.NewClient(
		getEnv("PROVIDER_API_URL", "https://api.resend.com"),
		os.Getenv("PROVIDER_API_KEY"),
		getEnv("PROVIDER_FROM_EMAIL", "AgentZero <onboarding@resend.dev>"),
	)

	// With AMQP configured, sends are consumed by cmd/worker; otherwise an
	// in-process subscriber handles them.
	var q service.Publisher
	if url := os.Getenv("AMQP_URL"); url != "" {
		pub, err := queue.NewAMQPPublisher(url, service.SendQueueTopic)
		if err != nil {
			log.Fatalf("failed to connect to RabbitMQ: %v", err)
		}
		defer pub.Close()
		q = pub
	} else {
		memq := queue.NewInMemoryQueue()
		var cacheStore queue.ExternalIDStore
		if extIDCache != nil {
			cacheStore = extIDCache
		}
		queue.StartSendSubscriber(memq, service.SendQueueTopic, emailRepo, recipientRepo, sender, cacheStore)
		q = memq
	}

	campaignService := &service.CampaignService{
		CampaignRepo:  campaignRepo,
		RecipientRepo: recipientRepo,
		EmailRepo:     emailRepo,
		EventRepo:     eventRepo,
		Queue:         q,
	}

	var resolverCache service.ExternalIDCache
	if extIDCache != nil {
		resolverCache = extIDCache
	}
	webhookService := service.NewWebhookService(emailRepo, eventRepo, resolverCache, os.Getenv("WEBHOOK_SIGNING_SECRET"))

	campaignController := &controller.CampaignController{
		CampaignService: campaignService,
	}
	webhookHandler := handler.NewWebhookHandler(webhookService, eventRepo)

	r := chi.NewRouter()

	// Webhook routes
	r.Post("/webhooks/resend", webhookHandler.HandleWebhook)
	r.Get("/webhooks/resend", webhookHandler.WebhookInfo)

	// Campaign routes
	r.Post("/campaigns", campaignController.CreateCampaign)
	r.Get("/campaigns", campaignController.ListCampaigns)
	r.Get("/campaigns/{id}", campaignController.GetCampaignStats)
	r.Get("/campaigns/{id}/stats", campaignController.GetCampaignStats)
	r.Post("/campaigns/{id}/recipients", campaignController.AddRecipients)
	r.Post("/campaigns/{id}/launch", campaignController.LaunchCampaign)
	r.Post("/campaigns/{id}/personalized-preview", campaignController.PersonalizedPreview)
	r.Get("/emails/{id}/events", campaignController.EmailTimeline)

	port := getEnv("PORT", "8080")
	log.Println("🚀 Server running on :" + port)
	log.Fatal(http.ListenAndServe(":"+port, r))
}

func getEnv(key string, defaultVal string) string {
	val := os.Getenv(key)
	if val == "" {
		return defaultVal
	}
	return val
}
