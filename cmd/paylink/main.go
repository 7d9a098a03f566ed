// Package main запускает HTTP-сервер сервиса платёжных ссылок.
package main

import (
	"context"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/joho/godotenv"
	"github.com/prometheus/client_golang/prometheus"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/mmeshcher/paylink-service/internal/config"
	"github.com/mmeshcher/paylink-service/internal/dadata"
	"github.com/mmeshcher/paylink-service/internal/gateway"
	"github.com/mmeshcher/paylink-service/internal/handler"
	"github.com/mmeshcher/paylink-service/internal/metrics"
	"github.com/mmeshcher/paylink-service/internal/middleware"
	"github.com/mmeshcher/paylink-service/internal/notifier"
	"github.com/mmeshcher/paylink-service/internal/repository"
	"github.com/mmeshcher/paylink-service/internal/service"
	"github.com/mmeshcher/paylink-service/internal/signature"
)

func main() {
	logger, _ := zap.NewProduction()
	defer logger.Sync()

	sugar := logger.Sugar()

	if err := godotenv.Load(); err != nil {
		sugar.Infow("no .env file found, using environment variables")
	}

	cfg, err := config.Parse()
	if err != nil {
		sugar.Fatalw("configuration error", "error", err.Error())
	}

	repo, err := repository.NewPostgresRepository(cfg.DatabaseURI)
	if err != nil {
		sugar.Fatalw("database initialization error", "error", err.Error())
	}
	defer repo.Close()

	keySort := signature.KeySortByte
	if cfg.LegacyKeySort {
		keySort = signature.KeySortFold
	}
	signer := signature.NewSigner(cfg.TerminalKey, cfg.TerminalPassword, keySort)

	bank := gateway.NewClient(cfg.GatewayAddress, cfg.TerminalKey, signer)

	deps := service.Deps{
		Repo:        repo,
		Gateway:     bank,
		Signer:      signer,
		Metrics:     metrics.New(prometheus.DefaultRegisterer),
		Logger:      logger,
		AdminChatID: cfg.AdminChatID,
	}
	if cfg.TelegramBotToken != "" {
		deps.Notifier = notifier.NewClient(cfg.TelegramAPIAddress, cfg.TelegramBotToken, logger)
	}

	svc := service.NewService(deps)

	var suggester handler.Suggester
	if cfg.DadataAPIKey != "" {
		suggester = dadata.NewClient("", cfg.DadataAPIKey)
	}

	authMiddleware := middleware.NewAuthMiddleware(cfg.AdminAPIKey)
	h := handler.NewHandler(svc, suggester, logger, authMiddleware)

	r := h.SetupRouter()

	server := &http.Server{
		Addr:    cfg.RunAddress,
		Handler: r,
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	g, ctx := errgroup.WithContext(ctx)

	// Запуск HTTP-сервера
	g.Go(func() error {
		sugar.Infow("starting paylink server", "addr", cfg.RunAddress)
		if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			return fmt.Errorf("server error: %w", err)
		}
		return nil
	})

	// Graceful shutdown при отмене контекста (сигнал или ошибка в другой горутине)
	g.Go(func() error {
		<-ctx.Done()
		sugar.Info("shutting down server...")

		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()

		if err := server.Shutdown(shutdownCtx); err != nil {
			return fmt.Errorf("server shutdown error: %w", err)
		}
		sugar.Info("server stopped gracefully")
		return nil
	})

	if err := g.Wait(); err != nil {
		sugar.Fatalw("application terminated with error", "error", err)
	}
}
