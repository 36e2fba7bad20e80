package main

import (
	"context"
	"flag"
	"fmt"
	"log"
	"math/rand/v2"
	"time"

	"compat-assistant/internal/assistant"
	"compat-assistant/internal/config"
	"compat-assistant/internal/domain/ports/repository"
	pg "compat-assistant/internal/infra/db/postgres"
	"compat-assistant/internal/infra/logging"
	red "compat-assistant/internal/infra/redis"
	"compat-assistant/internal/infra/security"
	"compat-assistant/internal/usecase"
)

var sampleTitles = []string{
	"Windows Server Setup",
	"MySQL Compatibility",
	"Linux Migration",
}

func main() {
	cfgPath := flag.String("config", "config.yaml", "path to YAML config file")
	flag.Parse()

	// ---- Config ----
	cfg, err := config.LoadConfig(*cfgPath, false)
	if err != nil {
		log.Fatalf("load config: %v", err)
	}
	logger := logging.New(cfg.Log, false)

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	var (
		sessions repository.ChatSessionRepository
		profiles repository.ProfileRepository
		tm       repository.TransactionManager
	)
	switch cfg.Storage.Driver {
	case config.DriverPostgres:
		pool, err := pg.NewPgxPool(ctx, cfg.Database)
		if err != nil {
			log.Fatalf("postgres: %v", err)
		}
		defer pool.Close()
		var encSvc *security.EncryptionService
		if cfg.Security.EncryptionKey != "" {
			if encSvc, err = security.NewEncryptionService(cfg.Security.EncryptionKey); err != nil {
				log.Fatalf("encryption: %v", err)
			}
		}
		sessions, profiles, tm = pg.NewChatSessionRepo(pool, encSvc), pg.NewProfileRepo(pool), pg.NewTxManager(pool)
	case config.DriverRedis:
		c, err := red.NewClient(ctx, &cfg.Redis)
		if err != nil {
			log.Fatalf("redis: %v", err)
		}
		defer c.Close()
		sessions, profiles, tm = red.NewChatSessionStore(c), red.NewProfileStore(c), red.NewTxManager()
	default:
		log.Fatalf("storage.driver %q keeps nothing between runs; seed a redis or postgres store", cfg.Storage.Driver)
	}

	// If sessions already exist, do nothing
	existing, err := sessions.ListSummaries(ctx, nil)
	if err != nil {
		log.Fatalf("list sessions: %v", err)
	}
	if len(existing) > 0 {
		fmt.Printf("%d sessions already present. No changes.\n", len(existing))
		for _, s := range existing {
			fmt.Printf("  - %s (id=%s, messages=%d)\n", s.Title, s.ID, s.MessageCount)
		}
		return
	}

	bank, err := assistant.DefaultBank(cfg.Chat.TemplatesLang)
	if err != nil {
		log.Fatalf("templates: %v", err)
	}
	clock := usecase.SystemClock()
	chatUC := usecase.NewChatUseCase(
		sessions, profiles, tm,
		assistant.NewClassifier(assistant.DefaultLexicon()),
		assistant.NewSynthesizer(bank, rand.New(rand.NewPCG(1, 1))),
		usecase.NewTurnScheduler(clock, rand.New(rand.NewPCG(2, 2)), usecase.DefaultLatencyWindow(), logger),
		clock, usecase.ChatOptions{SeedGreeting: cfg.Chat.GreetingEnabled()}, logger,
	)

	for _, title := range sampleTitles {
		s, err := chatUC.CreateSession(ctx, title)
		if err != nil {
			log.Fatalf("create session %q: %v", title, err)
		}
		fmt.Printf("seeded: %s (id=%s, messages=%d)\n", s.Title, s.ID, len(s.Messages))
	}

	fmt.Println("Seeding complete.")
}
