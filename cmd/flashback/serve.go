package main

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"
	"go.uber.org/fx"
	"go.uber.org/fx/fxevent"

	"github.com/flashbackhq/flashback/internal/analytics"
	"github.com/flashbackhq/flashback/internal/bot"
	"github.com/flashbackhq/flashback/internal/config"
	"github.com/flashbackhq/flashback/internal/conversations"
	"github.com/flashbackhq/flashback/internal/db"
	"github.com/flashbackhq/flashback/internal/events"
	"github.com/flashbackhq/flashback/internal/handlers"
	"github.com/flashbackhq/flashback/internal/l10n"
	"github.com/flashbackhq/flashback/internal/logger"
	"github.com/flashbackhq/flashback/internal/messages"
	"github.com/flashbackhq/flashback/internal/senders"
	"github.com/flashbackhq/flashback/internal/server"
	"github.com/flashbackhq/flashback/internal/settings"
	"github.com/flashbackhq/flashback/internal/templates"
	"github.com/flashbackhq/flashback/internal/users"
)

// provideServerHandler wraps a handler constructor so its result lands in the
// server_handlers value group.
func provideServerHandler(fn any) any {
	return fx.Annotate(fn,
		fx.As(new(server.Handler)),
		fx.ResultTags(`group:"server_handlers"`),
	)
}

func runServe() {
	app := fx.New(
		fx.Provide(
			provideConfig,
			provideLogger,
			provideDBPool,
			l10n.Load,
			events.NewHub,
			users.NewService,
			users.NewPresenceSweeper,
			senders.NewService,
			conversations.NewService,
			messages.NewService,
			templates.NewService,
			settings.NewService,
			analytics.NewService,
			provideIngestor,
			provideBotManager,
			provideDispatcher,
			provideServerHandler(handlers.NewHealthHandler),
			provideServerHandler(provideAuthHandler),
			provideServerHandler(handlers.NewConversationsHandler),
			provideServerHandler(handlers.NewMessagesHandler),
			provideServerHandler(handlers.NewTelegramUsersHandler),
			provideServerHandler(handlers.NewTemplatesHandler),
			provideServerHandler(handlers.NewUsersHandler),
			provideServerHandler(handlers.NewAdminHandler),
			provideServerHandler(handlers.NewBotStatusHandler),
			provideServerHandler(handlers.NewAnalyticsHandler),
			provideServerHandler(provideWSHandler),
			provideServer,
		),
		fx.Invoke(
			startPresence,
			startBot,
			startServer,
		),
		fx.WithLogger(func(log *slog.Logger) fxevent.Logger {
			return &fxevent.SlogLogger{Logger: log.With(slog.String("component", "fx"))}
		}),
	)
	app.Run()
}

func provideConfig() (config.Config, error) {
	return config.Load(os.Getenv("CONFIG_PATH"))
}

func provideLogger(cfg config.Config) *slog.Logger {
	logger.Init(cfg.Log.Level, cfg.Log.Format)
	return logger.L
}

func provideDBPool(lc fx.Lifecycle, cfg config.Config) (*pgxpool.Pool, error) {
	if err := db.Migrate(cfg.Postgres.DSN()); err != nil {
		return nil, fmt.Errorf("migrate database: %w", err)
	}

	pool, err := db.Open(context.Background(), cfg.Postgres)
	if err != nil {
		return nil, err
	}
	lc.Append(fx.Hook{
		OnStop: func(ctx context.Context) error {
			pool.Close()
			return nil
		},
	})
	return pool, nil
}

func provideIngestor(
	log *slog.Logger,
	locales *l10n.Bundle,
	senderService *senders.Service,
	conversationService *conversations.Service,
	messageService *messages.Service,
	userService *users.Service,
	hub *events.Hub,
) *bot.Ingestor {
	return bot.NewIngestor(log, locales, senderService, conversationService, messageService, userService, hub)
}

func provideBotManager(log *slog.Logger, hub *events.Hub, ingest *bot.Ingestor) *bot.Manager {
	return bot.NewManager(log, hub, ingest)
}

func provideDispatcher(
	log *slog.Logger,
	manager *bot.Manager,
	conversationService *conversations.Service,
	messageService *messages.Service,
	senderService *senders.Service,
	hub *events.Hub,
) *bot.Dispatcher {
	return bot.NewDispatcher(log, manager, conversationService, messageService, senderService, hub)
}

func provideAuthHandler(
	log *slog.Logger,
	userService *users.Service,
	presence *users.PresenceSweeper,
	cfg config.Config,
) (*handlers.AuthHandler, error) {
	expiresIn, err := time.ParseDuration(cfg.Auth.JWTExpiresIn)
	if err != nil {
		return nil, fmt.Errorf("parse auth.jwt_expires_in: %w", err)
	}
	return handlers.NewAuthHandler(log, userService, presence, cfg.Auth.JWTSecret, expiresIn), nil
}

func provideWSHandler(log *slog.Logger, hub *events.Hub, cfg config.Config) *handlers.WSHandler {
	return handlers.NewWSHandler(log, hub, cfg.Auth.JWTSecret)
}

type serverParams struct {
	fx.In

	Config   config.Config
	Logger   *slog.Logger
	Handlers []server.Handler `group:"server_handlers"`
}

func provideServer(params serverParams) *server.Server {
	return server.NewServer(params.Config.Server.Addr, params.Config.Auth.JWTSecret, params.Logger, params.Handlers)
}

func startPresence(lc fx.Lifecycle, presence *users.PresenceSweeper) {
	lc.Append(fx.Hook{
		OnStart: func(context.Context) error {
			return presence.Start()
		},
		OnStop: func(context.Context) error {
			presence.Stop()
			return nil
		},
	})
}

// startBot connects the telegram bot on boot when a token is already stored.
// The dial runs in the background so a dead token cannot block startup.
func startBot(lc fx.Lifecycle, log *slog.Logger, manager *bot.Manager, settingsService *settings.Service) {
	lc.Append(fx.Hook{
		OnStart: func(ctx context.Context) error {
			token, err := settingsService.BotToken(ctx)
			if err != nil {
				return fmt.Errorf("load bot token: %w", err)
			}
			if token == "" {
				log.Info("no bot token configured, telegram bridge idle")
				return nil
			}
			go func() {
				if err := manager.Start(context.Background(), token); err != nil {
					log.Error("telegram bot connect", slog.Any("error", err))
				}
			}()
			return nil
		},
		OnStop: func(context.Context) error {
			manager.Stop()
			return nil
		},
	})
}

func startServer(
	lc fx.Lifecycle,
	log *slog.Logger,
	cfg config.Config,
	srv *server.Server,
	userService *users.Service,
	shutdowner fx.Shutdowner,
) {
	lc.Append(fx.Hook{
		OnStart: func(ctx context.Context) error {
			if err := ensureAdminUser(ctx, log, userService, cfg); err != nil {
				return err
			}
			go func() {
				if err := srv.Start(); err != nil && !errors.Is(err, http.ErrServerClosed) {
					log.Error("http server", slog.Any("error", err))
					_ = shutdowner.Shutdown()
				}
			}()
			return nil
		},
		OnStop: func(ctx context.Context) error {
			return srv.Shutdown(ctx)
		},
	})
}

// ensureAdminUser seeds the first admin account on an empty users table.
func ensureAdminUser(ctx context.Context, log *slog.Logger, userService *users.Service, cfg config.Config) error {
	count, err := userService.Count(ctx)
	if err != nil {
		return fmt.Errorf("count users: %w", err)
	}
	if count > 0 {
		return nil
	}

	admin, err := userService.Create(ctx, users.CreateRequest{
		Email:      cfg.Admin.Email,
		Name:       cfg.Admin.Name,
		Password:   cfg.Admin.Password,
		IsOperator: true,
		IsAdmin:    true,
	})
	if err != nil {
		return fmt.Errorf("seed admin user: %w", err)
	}

	log.Info("seeded admin user", slog.String("email", admin.Email))
	if cfg.Admin.Password == "change-your-password-here" {
		log.Warn("admin account uses the default password, change it immediately")
	}
	return nil
}
