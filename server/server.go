package server

import (
	"context"
	"embed"
	"encoding/json"
	"errors"
	"io"
	"io/fs"
	"net/http"
	"strings"
	"time"

	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"ai_blog_generator/generator"
)

// Messages returned to callers. Details only go to the log.
const (
	msgNotConfigured    = "Deepseek API key is not configured"
	msgGenerationFailed = "Failed to generate blog post"
)

const (
	maxRequestBody  = 64 * 1024
	shutdownTimeout = 10 * time.Second
)

//go:embed web
var embeddedStatic embed.FS

var errClientGone = errors.New("client went away")

type Server struct {
	agent    *generator.Agent
	logger   *zap.Logger
	staticFS http.Handler
}

func New(agent *generator.Agent, logger *zap.Logger) (*Server, error) {
	if agent == nil {
		return nil, errors.New("generator agent required")
	}
	if logger == nil {
		logger = zap.NewNop()
	}

	sub, err := fs.Sub(embeddedStatic, "web")
	if err != nil {
		return nil, err
	}

	return &Server{
		agent:    agent,
		logger:   logger,
		staticFS: http.FileServer(http.FS(sub)),
	}, nil
}

func (s *Server) Routes() http.Handler {
	mux := http.NewServeMux()
	mux.HandleFunc("POST /api/generate", s.handleGenerate)
	mux.HandleFunc("GET /api/perspectives", s.handlePerspectives)
	mux.HandleFunc("GET /healthz", s.handleHealth)
	mux.Handle("GET /metrics", promhttp.Handler())
	mux.Handle("GET /", s.staticHandler())
	return requestIDMiddleware(logMiddleware(s.logger, recoverMiddleware(s.logger, mux)))
}

// Run serves until ctx is cancelled, then shuts down gracefully.
func (s *Server) Run(ctx context.Context, addr string) error {
	srv := &http.Server{
		Addr:              addr,
		Handler:           s.Routes(),
		ReadHeaderTimeout: 10 * time.Second,
	}

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		s.logger.Info("starting web server", zap.String("addr", addr))
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return err
		}
		return nil
	})
	g.Go(func() error {
		<-gctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
		defer cancel()
		s.logger.Info("shutting down web server")
		return srv.Shutdown(shutdownCtx)
	})
	return g.Wait()
}

func (s *Server) staticHandler() http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if strings.HasPrefix(r.URL.Path, "/api/") {
			http.NotFound(w, r)
			return
		}
		if r.URL.Path != "/" {
			if _, err := fs.Stat(embeddedStatic, "web"+r.URL.Path); err != nil {
				// unknown paths fall back to the page
				r.URL.Path = "/"
			}
		}
		s.staticFS.ServeHTTP(w, r)
	})
}

// --- Handlers ---

type perspectiveResp struct {
	ID    string `json:"id"`
	Label string `json:"label"`
}

func (s *Server) handlePerspectives(w http.ResponseWriter, r *http.Request) {
	out := make([]perspectiveResp, 0, len(generator.Perspectives))
	for _, p := range generator.Perspectives {
		out = append(out, perspectiveResp{ID: string(p), Label: p.Label()})
	}
	writeJSON(w, http.StatusOK, out)
}

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

// handleGenerate relays the upstream completion as a plain text stream. Each
// decoded fragment is written and flushed as soon as it arrives. Errors
// before the first byte are JSON 500s; an upstream failure after that aborts
// the connection.
func (s *Server) handleGenerate(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	log := s.logger.With(zap.String("request_id", requestIDFrom(ctx)))

	var req generator.GenerationRequest
	if err := json.NewDecoder(http.MaxBytesReader(w, r.Body, maxRequestBody)).Decode(&req); err != nil {
		log.Error("error decoding generate request", zap.Error(err))
		generationsTotal.WithLabelValues(outcomeBadRequest).Inc()
		writeError(w, http.StatusInternalServerError, msgGenerationFailed)
		return
	}

	start := time.Now()
	body, err := s.agent.Open(ctx, req)
	if err != nil {
		if errors.Is(err, generator.ErrNotConfigured) {
			log.Error("upstream credential is not configured")
			generationsTotal.WithLabelValues(outcomeNotConfigured).Inc()
			writeError(w, http.StatusInternalServerError, msgNotConfigured)
			return
		}
		log.Error("error generating blog post", zap.Error(err))
		generationsTotal.WithLabelValues(outcomeUpstream).Inc()
		writeError(w, http.StatusInternalServerError, msgGenerationFailed)
		return
	}
	defer body.Close()
	// A blocked upstream read is released as soon as the client goes away.
	stop := context.AfterFunc(ctx, func() { body.Close() })
	defer stop()
	defer func() { upstreamDuration.Observe(time.Since(start).Seconds()) }()

	w.Header().Set("Content-Type", "text/plain; charset=utf-8")
	w.Header().Set("Cache-Control", "no-cache")
	w.Header().Set("X-Accel-Buffering", "no")
	w.WriteHeader(http.StatusOK)
	rc := http.NewResponseController(w)
	if err := rc.Flush(); err != nil {
		log.Warn("response does not support flushing", zap.Error(err))
	}

	fragments := 0
	err = generator.NewDecoder(log).Pipe(ctx, body, func(frag string) error {
		if _, err := io.WriteString(w, frag); err != nil {
			return errors.Join(errClientGone, err)
		}
		if err := rc.Flush(); err != nil && !errors.Is(err, http.ErrNotSupported) {
			return errors.Join(errClientGone, err)
		}
		fragments++
		fragmentsTotal.Inc()
		return nil
	})

	switch {
	case err == nil:
		generationsTotal.WithLabelValues(outcomeOK).Inc()
		log.Info("generation complete", zap.Int("fragments", fragments))
	case errors.Is(err, errClientGone) || ctx.Err() != nil:
		generationsTotal.WithLabelValues(outcomeClientGone).Inc()
		log.Info("client disconnected", zap.Int("fragments", fragments), zap.Error(err))
	default:
		generationsTotal.WithLabelValues(outcomeAborted).Inc()
		log.Error("upstream stream failed", zap.Int("fragments", fragments), zap.Error(err))
		panic(http.ErrAbortHandler)
	}
}

// --- Helpers ---

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

func writeError(w http.ResponseWriter, status int, msg string) {
	writeJSON(w, status, map[string]string{"error": msg})
}
