package main

import (
	"context"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/gin-gonic/gin"

	"github.com/quillchat/quill/internal/auth"
	"github.com/quillchat/quill/internal/config"
	"github.com/quillchat/quill/internal/handler"
	"github.com/quillchat/quill/internal/hub"
	"github.com/quillchat/quill/internal/log"
	"github.com/quillchat/quill/internal/presence"
	"github.com/quillchat/quill/internal/repository"
	"github.com/quillchat/quill/internal/service"
	"github.com/quillchat/quill/internal/storage"
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		fmt.Fprintf(os.Stderr, "failed to load configuration: %v\n", err)
		os.Exit(1)
	}

	log.Init(log.Config{Level: cfg.Log.Level, Pretty: cfg.Log.Pretty})
	l := log.L()

	db, err := repository.Open(cfg.Database)
	if err != nil {
		l.Fatal().Err(err).Msg("failed to open database")
	}
	l.Info().Str("driver", cfg.Database.Driver).Msg("database ready")

	files, err := newStorage(cfg.Storage)
	if err != nil {
		l.Fatal().Err(err).Msg("failed to initialize storage")
	}
	l.Info().Str("driver", cfg.Storage.Driver).Msg("storage ready")

	users := repository.NewGormUserRepository(db)
	messages := repository.NewGormMessageRepository(db)
	resolver := auth.NewResolver(auth.Config{
		Secret:   cfg.Auth.Secret,
		TokenTTL: cfg.Auth.TokenTTL,
		Issuer:   cfg.Auth.Issuer,
	})

	registry := hub.NewRegistry()
	broadcaster := presence.NewBroadcaster(registry)
	dmService := service.NewDMService(registry, broadcaster, messages, files, cfg.Storage.SyncWrites)

	gin.SetMode(gin.ReleaseMode)
	r := gin.New()
	r.Use(gin.Recovery(), handler.RequestLogger(), handler.CORS(cfg.CORS.AllowedOrigin))

	httpHandler := handler.NewHTTPHandler(users, messages, resolver, files, cfg.Auth.TokenTTL)
	httpHandler.RegisterRoutes(r)

	wsHandler := handler.NewWSHandler(registry, broadcaster, dmService, resolver, cfg.WebSocket)
	wsHandler.RegisterRoutes(r)

	server := &http.Server{
		Addr:         fmt.Sprintf("%s:%d", cfg.Server.Host, cfg.Server.Port),
		Handler:      r,
		ReadTimeout:  15 * time.Second,
		WriteTimeout: 15 * time.Second,
		IdleTimeout:  60 * time.Second,
	}

	go func() {
		l.Info().Str("addr", server.Addr).Msg("listening")
		if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			l.Fatal().Err(err).Msg("server error")
		}
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	l.Info().Msg("shutting down")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	if err := server.Shutdown(shutdownCtx); err != nil {
		l.Error().Err(err).Msg("forced shutdown")
	}

	l.Info().Msg("stopped")
}

func newStorage(cfg config.StorageConfig) (storage.Storage, error) {
	switch cfg.Driver {
	case "local":
		return storage.NewLocalStorage(cfg.Local)
	case "s3":
		return storage.NewS3Storage(context.Background(), cfg.S3)
	default:
		return nil, fmt.Errorf("unsupported storage driver: %s", cfg.Driver)
	}
}
