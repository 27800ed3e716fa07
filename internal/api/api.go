package api

import (
	"context"
	"database/sql"
	"net/http"
	"time"

	"github.com/go-chi/cors"

	"github.com/teamforge/collab/pkg/auth"
	"github.com/teamforge/collab/pkg/gateway"
	"github.com/teamforge/collab/pkg/membership"
	"github.com/teamforge/collab/pkg/message"
)

type ApiConfig struct {
	TokenOptions   auth.TokenOptions
	AllowedOrigins []string
	OpTimeout      time.Duration
	HistoryLimit   int
	TypingTTL      time.Duration
}

type Api struct {
	db      *sql.DB
	mux     *ApiMux
	gateway *gateway.Gateway
	context context.Context
	config  ApiConfig
}

func NewApi(ctx context.Context, db *sql.DB, config ApiConfig) *Api {
	api := &Api{
		db:      db,
		mux:     NewApiMux(),
		context: ctx,
		config:  config,
	}
	api.mountHandlers()
	return api
}

func (a *Api) Mux() http.Handler {
	return a.mux
}

// Gateway returns the connection gateway so the caller can close it during
// shutdown.
func (a *Api) Gateway() *gateway.Gateway {
	return a.gateway
}

func (a *Api) mountHandlers() {
	messageStore := message.NewSQLiteStore(a.db)
	oracle := membership.NewSQLiteOracle(a.db)
	gate := membership.NewGate(oracle, a.config.OpTimeout)
	authenticator := auth.NewTokenAuthenticator(a.config.TokenOptions)

	a.gateway = gateway.New(messageStore, gate, authenticator,
		gateway.WithBaseContext(a.context),
		gateway.WithOpTimeout(a.config.OpTimeout),
		gateway.WithHistoryLimit(a.config.HistoryLimit),
		gateway.WithTypingTTL(a.config.TypingTTL),
	)

	messageHandler := NewMessageHandler(messageStore, gate)

	a.mux.Router.Use(cors.Handler(cors.Options{
		AllowedOrigins:   a.config.AllowedOrigins,
		AllowCredentials: true,
		AllowedMethods:   []string{"GET", "POST", "PUT", "DELETE", "OPTIONS"},
		AllowedHeaders:   []string{"Authorization", "Content-Type"},
	}))

	a.mux.Router.Get("/ws", a.gateway.ServeHTTP)

	a.mux.Get("/healthz", func(w http.ResponseWriter, r *http.Request) error {
		return WriteJsonResponse(w, map[string]string{"status": "ok"})
	})

	a.mux.Route("/api", func(r *ApiMux) {
		r.Use(JWTMiddleware(a.config.TokenOptions))
		r.Get("/projects/{projectID}/messages", messageHandler.GetProjectMessagesHandler)
		r.Post("/messages/{messageID}/read", messageHandler.MarkMessageReadHandler)
	})
}
