package main

import (
	"context"
	"log"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"
	"time"

	"github.com/bwmarrin/discordgo"
	"github.com/gofiber/fiber/v2"
	"go.uber.org/zap"

	httptransport "github.com/carrydesk/carry-desk/internal/api/http"
	"github.com/carrydesk/carry-desk/internal/api/http/handlers"
	"github.com/carrydesk/carry-desk/internal/auth"
	"github.com/carrydesk/carry-desk/internal/bot"
	"github.com/carrydesk/carry-desk/internal/clock"
	"github.com/carrydesk/carry-desk/internal/config"
	"github.com/carrydesk/carry-desk/internal/domain"
	"github.com/carrydesk/carry-desk/internal/events"
	"github.com/carrydesk/carry-desk/internal/idgen"
	"github.com/carrydesk/carry-desk/internal/observability"
	"github.com/carrydesk/carry-desk/internal/persistence"
	"github.com/carrydesk/carry-desk/internal/platform"
	"github.com/carrydesk/carry-desk/internal/repository"
	"github.com/carrydesk/carry-desk/internal/repository/memory"
	"github.com/carrydesk/carry-desk/internal/service"
	"github.com/carrydesk/carry-desk/internal/transcript"
	"github.com/carrydesk/carry-desk/internal/worker"
)

// stores groups the repositories behind the services.
type stores struct {
	tickets   repository.TicketRepository
	history   repository.TicketHistoryRepository
	carries   repository.CarryRepository
	feedback  repository.FeedbackRepository
	windows   repository.FeedbackWindowRepository
	helpCalls repository.HelpCallRepository
}

func main() {
	cfg, err := config.Load()
	if err != nil {
		log.Fatalf("failed to load config: %v", err)
	}
	if err := cfg.Discord.Validate(); err != nil {
		log.Fatal(err)
	}

	logger, err := observability.NewLogger(cfg.Logger, "carry-desk-bot")
	if err != nil {
		log.Fatalf("failed to init logger: %v", err)
	}
	defer logger.Sync() //nolint:errcheck

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	pg, err := persistence.NewPostgres(ctx, cfg.Postgres, logger)
	if err != nil {
		logger.Fatal("failed to connect postgres", zap.Error(err))
	}
	defer pg.Close()
	if pg.Enabled() && cfg.Postgres.RunMigrations {
		if err := persistence.RunMigrations(ctx, pg.PoolHandle(), cfg.Postgres.MigrationsDir, logger); err != nil {
			logger.Fatal("failed to run migrations", zap.Error(err))
		}
	}

	redis := persistence.NewRedis(ctx, cfg.Redis, logger)
	defer redis.Close()

	repos, err := openStores(pg, redis, cfg, logger)
	if err != nil {
		logger.Fatal("failed to open stores", zap.Error(err))
	}
	metrics := observability.NewMetrics("carry_desk_bot")
	clk := clock.Real()

	session, err := discordgo.New("Bot " + cfg.Discord.Token)
	if err != nil {
		logger.Fatal("failed to create discord session", zap.Error(err))
	}
	session.Identify.Intents = discordgo.IntentsGuilds | discordgo.IntentsGuildMembers | discordgo.IntentsGuildMessages | discordgo.IntentsDirectMessages
	discord := platform.NewDiscord(session, cfg.Discord.GuildID, logger.Named("discord"))

	dispatcher := events.NewInMemoryDispatcher(logger.Named("events"))
	notifications := service.NewNotificationService(dispatcher, discord, logger.Named("notifications"), service.NotificationConfig{
		PriorityChannelID:   cfg.Discord.PriorityChannelID,
		ApprovalChannelID:   cfg.Discord.ApprovalChannelID,
		FeedbackChannelID:   cfg.Discord.FeedbackChannelID,
		TranscriptChannelID: cfg.Discord.TranscriptChannelID,
		CarrierLogChannelID: cfg.Discord.CarrierLogChannelID,
		CarrierRoleID:       first(cfg.Discord.CarrierRoleIDs),
	})
	reaper := worker.NewChannelReaper(discord, clk, cfg.Tickets.DeleteGrace, logger.Named("reaper"))
	background := worker.NewBackground(notifications, reaper, logger)

	tokens := auth.NewTokenManager(cfg.Auth.JWTSecret, cfg.Auth.ServiceTokenTTL())
	sink := transcript.NewSink(cfg.Sink,
		auth.NewServiceTokenSource(tokens, cfg.Auth.ServiceName, auth.ScopeTranscriptsWrite),
		persistence.NewJSONTable(cfg.Sink.FallbackFile),
		logger.Named("sink"), metrics)

	feedback := service.NewFeedbackService(service.FeedbackDependencies{
		FeedbackRepo: repos.feedback,
		WindowRepo:   repos.windows,
		TicketRepo:   repos.tickets,
		Platform:     discord,
		Dispatcher:   dispatcher,
		Clock:        clk,
		Logger:       logger.Named("feedback"),
		Metrics:      metrics,
	})
	tickets := service.NewTicketService(service.TicketDependencies{
		TicketRepo:   repos.tickets,
		HistoryRepo:  repos.history,
		HelpCallRepo: repos.helpCalls,
		Platform:     discord,
		Sink:         sink,
		Feedback:     feedback,
		Deleter:      reaper,
		Dispatcher:   dispatcher,
		Clock:        clk,
		Logger:       logger.Named("tickets"),
		Metrics:      metrics,
		Config: service.TicketConfig{
			ActiveCategories: activeCategories(cfg.Tickets.ActiveCategories, logger),
			AccessRoleIDs:    append(append([]string(nil), cfg.Discord.StaffRoleIDs...), cfg.Discord.CarrierRoleIDs...),
			CarrierRoleID:    first(cfg.Discord.CarrierRoleIDs),
			HelpCooldown:     cfg.Tickets.HelpCooldown,
			FeedbackExpiry:   cfg.Tickets.FeedbackExpiry,
		},
	})
	feedback.SetClosureConfirmer(tickets)

	ids, err := idgen.NewSnowflake(cfg.Snowflake.NodeID)
	if err != nil {
		logger.Fatal("failed to init id generator", zap.Error(err))
	}
	carries := service.NewCarryService(service.CarryDependencies{
		CarryRepo:   repos.carries,
		TicketRepo:  repos.tickets,
		HistoryRepo: repos.history,
		Platform:    discord,
		IDs:         ids,
		Dispatcher:  dispatcher,
		Clock:       clk,
		Logger:      logger.Named("carries"),
		Metrics:     metrics,
	})

	router := bot.New(bot.Dependencies{
		Tickets:  tickets,
		Carries:  carries,
		Feedback: feedback,
		Roles: auth.NewCapabilityResolver(cfg.Discord.StaffRoleIDs, cfg.Discord.CarrierRoleIDs,
			cfg.Discord.ManagerRoleIDs, cfg.Discord.AdminRoleIDs),
		Platform: discord,
		Logger:   logger.Named("bot"),
		Metrics:  metrics,
	})

	background.Start()
	detach := router.Attach(session)
	defer detach()

	if err := session.Open(); err != nil {
		logger.Fatal("failed to open discord gateway", zap.Error(err))
	}
	if cfg.Discord.RegisterCommands {
		if err := router.RegisterCommands(session, cfg.Discord.GuildID); err != nil {
			_ = session.Close()
			logger.Fatal("failed to register commands", zap.Error(err))
		}
	}
	logger.Info("bot connected", zap.String("guild_id", cfg.Discord.GuildID))

	probes := fiber.New(fiber.Config{AppName: cfg.App.Name, DisableStartupMessage: true})
	httptransport.RegisterMiddlewares(probes, logger, metrics, cfg.App.RequestTimeout())
	httptransport.RegisterProbes(probes, handlers.NewHealthHandler(databasePinger(pg), healthDeps(redis)), metrics)
	go func() {
		if err := probes.Listen(cfg.App.ProbeAddr()); err != nil {
			logger.Error("probe listener stopped", zap.Error(err))
		}
	}()

	waitForShutdown(logger)

	if err := session.Close(); err != nil {
		logger.Warn("close discord session", zap.Error(err))
	}
	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer shutdownCancel()
	if err := background.Stop(shutdownCtx); err != nil {
		logger.Warn("stop background workers", zap.Error(err))
	}
	if err := probes.ShutdownWithContext(shutdownCtx); err != nil {
		logger.Warn("http shutdown", zap.Error(err))
	}
}

// openStores picks Postgres and Redis backed stores when configured.
// Without Postgres the tables live in JSON files under the data dir.
func openStores(pg *persistence.Postgres, redis *persistence.Redis, cfg *config.Config, logger *zap.Logger) (stores, error) {
	var s stores
	if pg.Enabled() {
		pool := pg.PoolHandle()
		s.tickets = repository.NewTicketRepository(pool)
		s.history = repository.NewTicketHistoryRepository(pool)
		s.carries = repository.NewCarryRepository(pool)
		s.feedback = repository.NewFeedbackRepository(pool)
	} else {
		dir := cfg.Tickets.DataDir
		logger.Info("postgres not configured, using json files", zap.String("data_dir", dir))
		table := func(name string) *persistence.JSONTable {
			return persistence.NewJSONTable(filepath.Join(dir, name))
		}
		var err error
		if s.tickets, err = memory.NewFileTicketRepository(table("tickets.json")); err != nil {
			return s, err
		}
		if s.history, err = memory.NewFileTicketHistoryRepository(table("ticket_history.json")); err != nil {
			return s, err
		}
		if s.carries, err = memory.NewFileCarryRepository(table("points.json")); err != nil {
			return s, err
		}
		if s.feedback, err = memory.NewFileFeedbackRepository(table("feedback.json")); err != nil {
			return s, err
		}
	}
	if redis.Enabled() {
		s.windows = repository.NewRedisFeedbackWindowRepository(redis, cfg.Tickets.FeedbackExpiry)
		s.helpCalls = repository.NewRedisHelpCallRepository(redis, cfg.Tickets.HelpCooldown)
	} else {
		s.windows = memory.NewFeedbackWindowRepository()
		s.helpCalls = memory.NewHelpCallRepository()
	}
	return s, nil
}

func activeCategories(raw []string, logger *zap.Logger) []domain.Category {
	var out []domain.Category
	for _, name := range raw {
		c, ok := domain.ParseCategory(name)
		if !ok {
			logger.Warn("ignoring unknown ticket category", zap.String("category", name))
			continue
		}
		out = append(out, c)
	}
	return out
}

// databasePinger returns nil when Postgres is off so /health reports it
// as disabled.
func databasePinger(pg *persistence.Postgres) handlers.Pinger {
	if !pg.Enabled() {
		return nil
	}
	return pg
}

func healthDeps(redis *persistence.Redis) map[string]handlers.Pinger {
	deps := map[string]handlers.Pinger{}
	if redis.Enabled() {
		deps["redis"] = redis
	}
	return deps
}

func first(ids []string) string {
	if len(ids) == 0 {
		return ""
	}
	return ids[0]
}

func waitForShutdown(logger *zap.Logger) {
	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)

	sig := <-sigCh
	logger.Info("shutting down", zap.String("signal", sig.String()))
}
