package main

import (
	"context"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/rs/zerolog"

	"volitus/server/internal/broadcast"
	"volitus/server/internal/config"
	"volitus/server/internal/engine"
	"volitus/server/internal/generators"
	"volitus/server/internal/hub"
	"volitus/server/internal/interfaces"
	"volitus/server/internal/logging"
	"volitus/server/internal/metrics"
	"volitus/server/internal/prompts"
	"volitus/server/internal/rtc"
	"volitus/server/internal/storage"
	"volitus/server/internal/web"
)

func main() {
	// Load configuration
	cfg, err := config.Load(config.PathFromEnv())
	if err != nil {
		fmt.Fprintf(os.Stderr, "Failed to load config: %v\n", err)
		os.Exit(1)
	}

	log, logCloser, err := logging.New(cfg.Logging)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Failed to open log output: %v\n", err)
		os.Exit(1)
	}
	defer logCloser.Close()

	var m *metrics.Metrics
	if cfg.Metrics.Enabled {
		m = metrics.New()
	}

	// Optional storage
	var (
		archiver interfaces.Archiver
		archive  web.ArchiveReader
		chatLog  interfaces.ChatLog
	)
	if cfg.Database.MySQL.Enabled {
		mysqlStore, err := storage.NewMySQLStore(cfg.Database.MySQL)
		if err != nil {
			log.Warn().Err(err).Msg("MySQL unavailable, archive disabled")
		} else {
			defer mysqlStore.Close()
			archiver, archive = mysqlStore, mysqlStore
			log.Info().Str("host", cfg.Database.MySQL.Host).Msg("MySQL connected")
		}
	}
	if cfg.Database.Redis.Enabled {
		redisStore, err := storage.NewRedisStore(cfg.Database.Redis, logging.Component(log, "chat_log"))
		if err != nil {
			log.Warn().Err(err).Msg("Redis unavailable, chat history disabled")
		} else {
			defer redisStore.Close()
			chatLog = redisStore
			log.Info().Str("addr", cfg.Database.Redis.Addr).Msg("Redis connected")
		}
	}

	stories := storage.NewFileStoryStore(cfg.Drama.StoryDir)

	// Room session components
	registry := hub.NewRegistry(logging.Component(log, "registry"), m)
	bus := broadcast.NewBus(registry, logging.Component(log, "bus"), m)
	rooms := engine.NewRooms(cfg.Drama.VoteThreshold, m)

	story := engine.NewStoryEngine(rooms, bus, stories, archiver, logging.Component(log, "story"), m)
	votes := engine.NewVoteService(rooms, bus, registry, newGenerator(cfg, log), archiver, story, engine.VoteConfig{
		QuorumRatio:      cfg.Drama.QuorumRatio,
		DefaultDuration:  cfg.Drama.VoteDuration,
		AutoInsertWinner: cfg.Drama.AutoInsertWinner,
		ResolvedKeep:     cfg.Drama.ResolvedVotes,
		ResolvedTTL:      cfg.Drama.ResolvedVoteTTL,
	}, logging.Component(log, "votes"), m)
	interactions := engine.NewInteractionService(rooms, logging.Component(log, "interactions"))

	handlers := web.NewHandlers(web.Deps{
		Config:       *cfg,
		Registry:     registry,
		Bus:          bus,
		Rooms:        rooms,
		Story:        story,
		Votes:        votes,
		Interactions: interactions,
		Stories:      stories,
		Chat:         chatLog,
		Tokens:       rtc.NewStaticIssuer(cfg.RTC),
		Archive:      archive,
		Metrics:      m,
		Log:          logging.Component(log, "web"),
	})
	r := web.NewRouter(handlers, m)

	server := &http.Server{
		Addr:         fmt.Sprintf("%s:%d", cfg.Server.Host, cfg.Server.Port),
		Handler:      r,
		ReadTimeout:  cfg.Server.ReadTimeout,
		WriteTimeout: cfg.Server.WriteTimeout,
	}

	go func() {
		log.Info().Str("addr", server.Addr).Str("story_dir", stories.Root()).Msg("server starting")
		if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Fatal().Err(err).Msg("server failed to start")
		}
	}()

	// Wait for interrupt signal
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	log.Info().Msg("server shutting down")

	timeout := cfg.Server.ShutdownTimeout
	if timeout <= 0 {
		timeout = 30 * time.Second
	}
	ctx, cancel := context.WithTimeout(context.Background(), timeout)
	defer cancel()

	if err := server.Shutdown(ctx); err != nil {
		log.Error().Err(err).Msg("server shutdown error")
	}
	rooms.Close()
	registry.Close()

	log.Info().Msg("server stopped")
}

func newGenerator(cfg *config.Config, log zerolog.Logger) interfaces.ChapterGenerator {
	if cfg.Drama.Generator == "llm" {
		log.Info().Str("model", cfg.AI.LLM.Model).Msg("using LLM chapter generator")
		return generators.NewLLMGenerator(cfg.AI.LLM, prompts.NewTemplateEngine(), logging.Component(log, "generator"))
	}
	return generators.NewMockGenerator()
}
