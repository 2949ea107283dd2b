package main

import (
	"fmt"
	"log"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/gofiber/contrib/swagger"
	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/fiber/v2/middleware/logger"
	"github.com/gofiber/fiber/v2/middleware/recover"
	"github.com/redis/go-redis/v9"

	"github.com/ManuelReschke/VoteFox/app/repository"
	"github.com/ManuelReschke/VoteFox/internal/pkg/cache"
	"github.com/ManuelReschke/VoteFox/internal/pkg/constants"
	"github.com/ManuelReschke/VoteFox/internal/pkg/database"
	"github.com/ManuelReschke/VoteFox/internal/pkg/env"
	"github.com/ManuelReschke/VoteFox/internal/pkg/ledger"
	"github.com/ManuelReschke/VoteFox/internal/pkg/payment"
	"github.com/ManuelReschke/VoteFox/internal/pkg/ratelimit"
	"github.com/ManuelReschke/VoteFox/internal/pkg/reconcile"
	"github.com/ManuelReschke/VoteFox/internal/pkg/router"
	"github.com/ManuelReschke/VoteFox/internal/pkg/ussd"
	"github.com/ManuelReschke/VoteFox/internal/pkg/webhook"
)

func main() {
	app, scheduler := NewApplication()

	// stop accepting requests, then let a running reconciliation cycle finish
	go func() {
		sig := make(chan os.Signal, 1)
		signal.Notify(sig, syscall.SIGINT, syscall.SIGTERM)
		<-sig
		log.Println("Shutting down...")
		if err := app.ShutdownWithTimeout(10 * time.Second); err != nil {
			log.Printf("HTTP shutdown: %v", err)
		}
		scheduler.Stop()
	}()

	err := app.Listen(fmt.Sprintf("%s:%s", env.GetEnv("APP_HOST", "localhost"), env.GetEnv("APP_PORT", "4000")))
	if err != nil {
		log.Fatal(err)
	}
}

func NewApplication() (*fiber.App, *reconcile.Scheduler) {
	env.SetupEnvFile()
	database.SetupDatabase()

	var rdb redis.Cmdable
	if cache.Available() {
		rdb = cache.GetClient()
	} else {
		log.Println("Cache unavailable: USSD sessions use the database, reconciliation runs without a lock")
	}

	repos := repository.NewFactory(database.GetDB()).GetRepositories()
	l := ledger.New(database.GetDB())

	paymentCfg := payment.ConfigFromEnv()
	if err := paymentCfg.Validate(); err != nil {
		log.Fatalf("Invalid payment configuration: %v", err)
	}
	client := payment.NewClient(paymentCfg)
	orchestrator := payment.NewOrchestrator(paymentCfg, client, l, repos.Transaction)
	processor := webhook.NewProcessor(paymentCfg.Provider, paymentCfg.WebhookSecret, l, repos.WebhookEvent)

	machine := ussd.NewMachine(
		sessionStore(rdb, repos.USSDSession),
		repos.Catalog,
		orchestrator,
		env.GetEnvInt("USSD_MAX_VOTES", ussd.DefaultMaxVotes),
		paymentCfg.CountryCode,
	)

	reconcileCfg := reconcile.ConfigFromEnv()
	job := reconcile.NewJob(reconcileCfg, l, repos.Transaction, repos.USSDSession, client)
	scheduler := reconcile.NewScheduler(job, reconcileCfg.Interval, rdb)
	scheduler.Start()

	// Define possible base paths
	basePaths := []string{
		"./",        // Current directory
		"../../",    // From cmd/votefox to project root
		"../../../", // Fallback
	}

	// Find the correct base path
	basePath := ""
	for _, path := range basePaths {
		if _, err := os.Stat(path + "public/docs"); !os.IsNotExist(err) {
			basePath = path
			break
		}
	}

	// init fiber app
	app := fiber.New(fiber.Config{
		AppName:   env.GetEnv("APP_NAME", "VoteFox"),
		BodyLimit: 1 << 20, // callbacks and USSD requests are small
	})

	// recovery and logging
	app.Use(recover.New(), logger.New())

	// SWAGGER / OPENAPI
	if basePath != "" {
		openAPICfg := swagger.Config{
			BasePath: constants.DocsBasePath,
			FilePath: basePath + "public/docs/v1/openapi.yml",
			Path:     constants.DocsVersion,
		}
		app.Use(swagger.New(openAPICfg))
	}

	// ROUTER
	router.InstallRouter(app, router.Dependencies{
		DB:           database.GetDB(),
		Redis:        rdb,
		Dialogs:      machine,
		Callbacks:    processor,
		USSDLimit:    ratelimit.ConfigFromEnv(),
		MetricsUsers: metricsUsers(),
	})

	return app, scheduler
}

// sessionStore picks where USSD dialogs live; USSD_SESSION_STORE=redis needs a reachable cache
func sessionStore(rdb redis.Cmdable, repo repository.USSDSessionRepository) ussd.SessionStore {
	if strings.EqualFold(env.GetEnv("USSD_SESSION_STORE", "db"), "redis") {
		if rdb != nil {
			return ussd.NewRedisStore(rdb, 0)
		}
		log.Println("USSD_SESSION_STORE=redis but cache is unavailable, falling back to database")
	}
	return ussd.NewDBStore(repo)
}

func metricsUsers() map[string]string {
	user := env.GetEnv("METRICS_USER", "")
	password := env.GetEnv("METRICS_PASSWORD", "")
	if user == "" || password == "" {
		return nil
	}
	return map[string]string{user: password}
}
