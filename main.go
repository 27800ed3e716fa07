package main

import (
	"context"
	"database/sql"
	"fmt"
	"log"
	"log/slog"
	"net"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/go-chi/chi/v5"
	_ "github.com/mattn/go-sqlite3"
	"github.com/pressly/goose/v3"

	"github.com/teamforge/collab/internal/api"
	"github.com/teamforge/collab/pkg/auth"
	"github.com/teamforge/collab/pkg/config"
	"github.com/teamforge/collab/pkg/server"
)

func main() {
	serverCtx, _ := signal.NotifyContext(context.Background(),
		syscall.SIGINT, syscall.SIGTERM, syscall.SIGQUIT, syscall.SIGHUP)

	cfg, err := config.Load()
	if err != nil {
		log.Fatalf("load config: %v", err)
	}
	if err := cfg.Validate(); err != nil {
		if msg := config.FormatValidationErrors(err); msg != "" {
			log.Fatalf("invalid config:\n%s", msg)
		}
		log.Fatalf("invalid config: %v", err)
	}

	logger := slog.New(slog.NewTextHandler(os.Stdout, &slog.HandlerOptions{Level: slog.LevelInfo}))

	db, err := sql.Open("sqlite3", fmt.Sprintf("file:%s", cfg.SQLite.File))
	if err != nil {
		log.Fatalf("open db: %v", err)
	}
	defer db.Close()

	goose.SetBaseFS(os.DirFS(cfg.SQLite.Migrations))

	if err := goose.SetDialect("sqlite3"); err != nil {
		log.Fatalf("dialect: %v", err)
	}

	if err := goose.Up(db, "."); err != nil {
		log.Fatalf("migrate up: %v", err)
	}

	apiConfig := api.ApiConfig{
		TokenOptions: auth.TokenOptions{
			Secret: cfg.Auth.Secret,
			Exp:    time.Hour,
		},
		AllowedOrigins: cfg.AllowedOrigins,
		OpTimeout:      cfg.Gateway.OpTimeout,
		HistoryLimit:   cfg.Gateway.HistoryLimit,
		TypingTTL:      cfg.Gateway.TypingTTL,
	}
	_api := api.NewApi(serverCtx, db, apiConfig)

	r := chi.NewRouter()
	r.Mount("/", _api.Mux())

	srv := server.Server{
		Server: &http.Server{
			Handler: r,
			Addr:    fmt.Sprintf("%s:%d", cfg.Hostname, cfg.Port),
			BaseContext: func(_ net.Listener) context.Context {
				return serverCtx
			},
		},
		Logger:     logger,
		OnShutdown: []func(){_api.Gateway().Close},
	}

	srv.Start(serverCtx)
}
