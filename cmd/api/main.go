package main

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/go-chi/chi/v5/middleware"
	"golang.org/x/sync/errgroup"

	"ai-qa-assistant/internal/app"
	"ai-qa-assistant/internal/httputil"
	"ai-qa-assistant/internal/relay"
)

const (
	maxBodyBytes = 1 << 20

	msgAnswerFailed = "Failed to fetch answer"
	msgStreamFailed = "Failed to stream answer"
)

type queryRequest struct {
	Question *string `json:"question" validate:"required"`
}

func main() {
	deps, err := app.Build()
	if err != nil {
		slog.Default().Error("failed to build dependencies", "err", err)
		os.Exit(1)
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if err := serve(ctx, deps); err != nil {
		deps.Log.Error("server error", "err", err)
		os.Exit(1)
	}
}

// serve runs the HTTP server until ctx is done, then drains it.
func serve(ctx context.Context, deps app.Deps) error {
	srv := &http.Server{
		Addr:              fmt.Sprintf(":%d", deps.Config.Port),
		Handler:           newRouter(deps),
		ReadHeaderTimeout: 10 * time.Second,
	}

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		deps.Log.Info("qa relay listening", "addr", srv.Addr)
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return err
		}
		return nil
	})
	g.Go(func() error {
		<-gctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), deps.Config.ShutdownTimeout)
		defer cancel()
		deps.Log.Info("shutting down")
		return srv.Shutdown(shutdownCtx)
	})
	return g.Wait()
}

func newRouter(deps app.Deps) http.Handler {
	r := httputil.NewRouter(deps.Log, deps.Config.CORSAllowedOrigins)

	r.With(middleware.Timeout(deps.Config.RequestTimeout)).Post("/api/query", askHandler(deps))
	r.Post("/api/query/stream", streamHandler(deps))
	r.Get("/api/query/stream", streamHandler(deps))
	r.Get("/healthz", httputil.HealthHandler(deps.Log))
	r.Method(http.MethodGet, "/metrics", deps.Metrics.Handler())

	return r
}

func askHandler(deps app.Deps) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		var req queryRequest
		if err := json.NewDecoder(http.MaxBytesReader(w, r.Body, maxBodyBytes)).Decode(&req); err != nil {
			httputil.Fail(deps.Log, w, r, "invalid payload", err, http.StatusBadRequest)
			return
		}
		if err := httputil.Validator.Struct(&req); err != nil {
			httputil.ValidationError(deps.Log, w, r, err)
			return
		}

		answer, err := deps.Relay.Ask(r.Context(), *req.Question)
		if err != nil {
			httputil.Fail(deps.Log, w, r, msgAnswerFailed, err, http.StatusInternalServerError)
			return
		}
		httputil.WriteJSON(w, http.StatusOK, answer)
	}
}

func streamHandler(deps app.Deps) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		question, err := streamQuestion(w, r)
		if err != nil {
			httputil.Fail(deps.Log, w, r, "invalid payload", err, http.StatusBadRequest)
			return
		}

		events := relay.NewEventWriter(w)
		if err := deps.Relay.Stream(r.Context(), question, events); err != nil {
			httputil.Fail(deps.Log, w, r, msgStreamFailed, err, http.StatusInternalServerError)
		}
	}
}

// streamQuestion takes the question from a JSON body when one carries it,
// else from the "question" query parameter. No question at all is "".
func streamQuestion(w http.ResponseWriter, r *http.Request) (string, error) {
	body, err := io.ReadAll(http.MaxBytesReader(w, r.Body, maxBodyBytes))
	if err != nil {
		return "", err
	}
	if len(bytes.TrimSpace(body)) > 0 {
		var req queryRequest
		if err := json.Unmarshal(body, &req); err != nil {
			return "", err
		}
		if req.Question != nil {
			return *req.Question, nil
		}
	}
	return r.URL.Query().Get("question"), nil
}
