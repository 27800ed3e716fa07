package server

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"os"
	"time"
)

// Server wraps http.Server with signal-driven graceful shutdown. OnShutdown
// hooks run after the listener stops accepting and before the process
// exits; the gateway uses one to drain open websocket connections.
type Server struct {
	*http.Server
	Logger       *slog.Logger
	DrainTimeout time.Duration
	OnShutdown   []func()
}

func (s *Server) Start(ctx context.Context) {
	logger := s.Logger
	if logger == nil {
		logger = slog.Default()
	}
	drain := s.DrainTimeout
	if drain <= 0 {
		drain = 20 * time.Second
	}

	done := make(chan struct{})

	go func() {
		<-ctx.Done()

		logger.Info("server is shutting down")

		exitCtx, cancel := context.WithTimeout(context.Background(), drain)
		defer cancel()

		go func() {
			<-exitCtx.Done()
			if exitCtx.Err() == context.DeadlineExceeded {
				logger.Error("graceful shutdown timed out, forcing exit")
				os.Exit(1)
			}
		}()

		if err := s.Server.Shutdown(exitCtx); err != nil {
			logger.Error("server shutdown", slog.String("error", err.Error()))
			os.Exit(1)
		}

		for _, hook := range s.OnShutdown {
			hook()
		}

		close(done)
	}()

	logger.Info("server started", slog.String("addr", s.Addr))

	err := s.ListenAndServe()
	if err != nil && !errors.Is(err, http.ErrServerClosed) {
		logger.Error("server exit", slog.String("error", err.Error()))
		os.Exit(1)
	}
	<-done
}
