package main

import (
	"context"
	"io"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/pkg/errors"
	"go.uber.org/zap"
	"gopkg.in/tucnak/telebot.v2"

	"github.com/slashbinslashnoname/telegram-stock-bot/announce"
	"github.com/slashbinslashnoname/telegram-stock-bot/bot"
	"github.com/slashbinslashnoname/telegram-stock-bot/config"
	"github.com/slashbinslashnoname/telegram-stock-bot/db"
	"github.com/slashbinslashnoname/telegram-stock-bot/httpapi"
	"github.com/slashbinslashnoname/telegram-stock-bot/observability"
	"github.com/slashbinslashnoname/telegram-stock-bot/offers"
)

type store interface {
	offers.Store
	io.Closer
}

func main() {
	// Load configuration
	cfg, err := config.NewConfig()
	if err != nil {
		log.Fatalf("Failed to load configuration: %v", err)
	}

	logger, err := observability.NewLogger(cfg.LogLevel)
	if err != nil {
		log.Fatalf("Failed to initialize logger: %v", err)
	}
	defer func() { _ = logger.Sync() }()

	if err := run(cfg, logger); err != nil {
		logger.Fatal("Bot stopped", zap.Error(err))
	}
}

func run(cfg *config.Config, logger *zap.Logger) error {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	shutdownTracing, err := observability.SetupTracing(ctx, cfg, logger)
	if err != nil {
		return errors.Wrap(err, "failed to set up tracing")
	}
	defer func() {
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if err := shutdownTracing(shutdownCtx); err != nil {
			logger.Warn("Tracing shutdown failed", zap.Error(err))
		}
	}()

	database, err := openStore(ctx, cfg)
	if err != nil {
		return errors.Wrap(err, "failed to initialize database")
	}
	defer database.Close()

	teleBot, err := telebot.NewBot(telebot.Settings{
		Token:  cfg.TelegramToken,
		Poller: &telebot.LongPoller{Timeout: 10 * time.Second},
	})
	if err != nil {
		return errors.Wrap(err, "failed to create bot")
	}

	manager := offers.NewManager(database, announce.NewTelegramGateway(teleBot), logger,
		offers.WithMaxAttempts(cfg.MaxUpdateAttempts),
		offers.WithRefreshTemplate(bot.AnnouncementTemplate(cfg)),
	)

	if cfg.HTTPAddr != "" {
		server := &http.Server{
			Addr:              cfg.HTTPAddr,
			Handler:           httpapi.NewServer(manager, logger),
			ReadHeaderTimeout: 5 * time.Second,
		}
		go func() {
			logger.Info("HTTP server listening", zap.String("addr", cfg.HTTPAddr))
			if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
				logger.Error("HTTP server failed", zap.Error(err))
			}
		}()
		defer func() {
			shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
			defer cancel()
			_ = server.Shutdown(shutdownCtx)
		}()
	}

	telegramBot := bot.NewBot(teleBot, manager, cfg, logger)
	go func() {
		<-ctx.Done()
		logger.Info("Shutting down")
		telegramBot.Stop()
	}()

	telegramBot.Start()
	return nil
}

// openStore picks PostgreSQL when a database URL is configured, SQLite otherwise
func openStore(ctx context.Context, cfg *config.Config) (store, error) {
	if cfg.DatabaseURL != "" {
		return db.NewPostgresDatabase(ctx, cfg.DatabaseURL)
	}
	return db.NewDatabase(cfg.DBDriver, cfg.DBPath)
}
