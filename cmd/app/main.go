// File: cmd/app/main.go
package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"log"
	"math/rand/v2"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/rs/zerolog"
	"golang.org/x/sync/errgroup"

	"compat-assistant/internal/assistant"
	"compat-assistant/internal/config"
	"compat-assistant/internal/domain"
	"compat-assistant/internal/domain/model"
	"compat-assistant/internal/infra/api"
	"compat-assistant/internal/infra/logging"
	"compat-assistant/internal/infra/metrics"
	"compat-assistant/internal/infra/sched"
	"compat-assistant/internal/infra/telegram"
	"compat-assistant/internal/usecase"
)

// Set with -ldflags "-X main.version=... -X main.commit=...".
var (
	version = "dev"
	commit  = "none"
)

const shutdownTimeout = 15 * time.Second

func main() {
	// ---- CLI flags ----
	cfgPath := flag.String("config", "", "path to YAML config file (empty runs in memory with defaults)")
	devMode := flag.Bool("dev", false, "enable developer mode (console logs, verbose turn logging)")
	mintFor := flag.String("mint-token", "", "print an API token for the given client name and exit")
	flag.Parse()

	cfg, err := config.LoadConfig(*cfgPath, *devMode)
	if err != nil {
		log.Fatalf("config: %v", err)
	}
	if *mintFor != "" {
		if cfg.HTTP.AuthSecret == "" {
			log.Fatalf("http.auth_secret is not set in %s", *cfgPath)
		}
		tok, err := api.NewAuthenticator(cfg.HTTP.AuthSecret, cfg.HTTP.TokenTTL).Mint(*mintFor)
		if err != nil {
			log.Fatalf("mint token: %v", err)
		}
		fmt.Println(tok)
		return
	}
	logger := logging.New(cfg.Log, cfg.Runtime.Dev)
	if cfg.Runtime.Dev {
		logger.Warn().Msg("[DEV MODE] Enabled")
	}

	metrics.MustRegister()
	metrics.SetBuildInfo(version, commit)

	if err := run(cfg, logger); err != nil {
		logger.Fatal().Err(err).Msg("compat-assistant stopped")
	}
}

func run(cfg *config.Config, logger *zerolog.Logger) error {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	// ---- Storage ----
	st, err := openStorage(ctx, cfg, logger)
	if err != nil {
		return err
	}
	defer st.Close()
	logger.Info().Str("driver", cfg.Storage.Driver).Msg("storage ready")

	// ---- Assistant ----
	bank, err := loadBank(cfg.Chat)
	if err != nil {
		return err
	}
	lex := assistant.DefaultLexicon().Merge(assistant.Lexicon{
		Database:  cfg.Lexicon.Database,
		WebServer: cfg.Lexicon.WebServer,
		OS:        cfg.Lexicon.OS,
	})

	// ---- Use cases ----
	clock := usecase.SystemClock()
	scheduler := usecase.NewTurnScheduler(clock, newRand(cfg.Chat.RandomSeed), usecase.LatencyWindow{Min: cfg.Chat.MinDelay, Max: cfg.Chat.MaxDelay}, logger)
	opts := usecase.ChatOptions{SeedGreeting: cfg.Chat.GreetingEnabled(), DevMode: cfg.Runtime.Dev}
	if st.limiter != nil {
		opts.Limiter = st.limiter
	}
	chatUC := usecase.NewChatUseCase(
		st.sessions, st.profiles, st.tm,
		assistant.NewClassifier(lex),
		assistant.NewSynthesizer(bank, newRand(cfg.Chat.RandomSeed)),
		scheduler, clock, opts, logger,
	)
	statsUC := usecase.NewStatsUseCase(st.sessions, logger)

	if err := seedProfile(ctx, st, chatUC, cfg.Profile, logger); err != nil {
		return err
	}

	// ---- HTTP ----
	srv := api.NewServer(chatUC, statsUC, cfg.HTTP.RequestTimeout, logger)
	if cfg.HTTP.AuthSecret != "" {
		srv.RequireAuth(api.NewAuthenticator(cfg.HTTP.AuthSecret, cfg.HTTP.TokenTTL))
		logger.Info().Msg("api requires bearer tokens")
	}
	server := srv.HTTPServer(cfg.HTTP.Port)

	// ---- Telegram ----
	var bot *telegram.Bot
	if cfg.Telegram.Token != "" {
		if bot, err = telegram.NewBot(cfg.Telegram, chatUC, statsUC, st.bindings, logger); err != nil {
			return err
		}
	}

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		logger.Info().Str("addr", server.Addr).Msg("http listening")
		if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return fmt.Errorf("http server: %w", err)
		}
		return nil
	})

	// ---- Stats worker ----
	worker := sched.NewStatsWorker(cfg.Stats.Interval, statsUC, logger, st.collectors...)
	g.Go(func() error {
		if err := worker.Run(gctx); err != nil && !errors.Is(err, context.Canceled) {
			return err
		}
		return nil
	})

	if bot != nil {
		g.Go(func() error { return bot.Run(gctx) })
	}

	// ---- Graceful shutdown ----
	g.Go(func() error {
		<-gctx.Done()
		logger.Info().Msg("shutdown requested")
		sctx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
		defer cancel()
		// pending replies still reach open event streams before they close
		if err := chatUC.Close(sctx); err != nil {
			logger.Warn().Err(err).Msg("pending replies not drained")
		}
		if err := server.Shutdown(sctx); err != nil {
			return fmt.Errorf("http shutdown: %w", err)
		}
		return nil
	})

	return g.Wait()
}

func loadBank(cfg config.ChatConfig) (*assistant.Bank, error) {
	if cfg.TemplatesDir != "" {
		bank, err := assistant.LoadBank(os.DirFS(cfg.TemplatesDir), cfg.TemplatesLang+".yaml")
		if err != nil {
			return nil, fmt.Errorf("templates: %w", err)
		}
		return bank, nil
	}
	bank, err := assistant.DefaultBank(cfg.TemplatesLang)
	if err != nil {
		return nil, fmt.Errorf("templates: %w", err)
	}
	return bank, nil
}

// newRand seeds from entropy unless a fixed seed was configured. Each
// consumer gets its own source.
func newRand(seed uint64) *rand.Rand {
	if seed == 0 {
		return rand.New(rand.NewPCG(rand.Uint64(), rand.Uint64()))
	}
	return rand.New(rand.NewPCG(seed, seed))
}

// seedProfile stores the configured profile when storage has none yet.
func seedProfile(ctx context.Context, st *storage, chatUC usecase.ChatUseCase, pc config.ProfileConfig, logger *zerolog.Logger) error {
	if !pc.IsSet() {
		return nil
	}
	if _, err := st.profiles.Get(ctx); err == nil {
		return nil
	} else if !errors.Is(err, domain.ErrNotFound) {
		return fmt.Errorf("read profile: %w", err)
	}

	flags := model.DefaultReasoningFlags()
	if pc.IncludeOS != nil {
		flags.OS = *pc.IncludeOS
	}
	if pc.IncludeDatabase != nil {
		flags.Database = *pc.IncludeDatabase
	}
	if pc.IncludeWebServers != nil {
		flags.WebServers = *pc.IncludeWebServers
	}
	p, err := chatUC.SetProfile(ctx, model.UserProfile{
		OperatingSystem:    pc.OperatingSystem,
		Database:           pc.Database,
		WebServers:         pc.WebServers,
		IncludeInReasoning: flags,
	})
	if err != nil {
		return fmt.Errorf("seed profile: %w", err)
	}
	logger.Info().Str("os", p.OperatingSystem).Str("database", p.Database).Strs("web_servers", p.WebServers).Msg("profile seeded from config")
	return nil
}
