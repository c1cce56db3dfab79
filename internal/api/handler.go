package api

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"net"
	"net/http"
	"strings"
	"time"

	"clawderous/internal/config"
	"clawderous/internal/domain"
	"clawderous/internal/logging"
	"clawderous/internal/pipeline"
	"clawderous/internal/provider"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/rs/cors"
	"go.uber.org/zap"
)

type Processor interface {
	Process(ctx context.Context, email *domain.InboundEmail) (pipeline.Outcome, error)
}

type RateLimiter interface {
	RateLimit(ctx context.Context, key, action string, limit int, window time.Duration) (bool, error)
}

type Pinger interface {
	Ping(ctx context.Context) error
}

type Options struct {
	Limiter  RateLimiter     // nil disables rate limiting
	Ready    Pinger          // nil makes /readyz always ready
	Commands func() []string // registered command names
	Admin    func(r chi.Router)
	Logger   *zap.Logger
}

type Handler struct {
	cfg       *config.Config
	provider  provider.Provider
	processor Processor
	opts      Options
	logger    *zap.Logger
}

func New(cfg *config.Config, p provider.Provider, proc Processor, opts Options) *Handler {
	logger := opts.Logger
	logger = logging.OrNop(logger)
	return &Handler{cfg: cfg, provider: p, processor: proc, opts: opts, logger: logger}
}

func (h *Handler) Router() http.Handler {
	r := chi.NewRouter()

	r.Use(middleware.RequestID)
	r.Use(h.requestLogger)
	r.Use(middleware.Recoverer)

	c := cors.New(cors.Options{
		AllowedOrigins:   []string{"*"},
		AllowedMethods:   []string{"GET", "POST", "DELETE", "OPTIONS"},
		AllowedHeaders:   []string{"Content-Type", "Authorization"},
		AllowCredentials: true,
	})
	r.Use(c.Handler)

	r.Route("/api", func(r chi.Router) {
		r.Get("/healthz", func(w http.ResponseWriter, r *http.Request) {
			w.WriteHeader(http.StatusOK)
		})
		r.Get("/readyz", h.readyz)
		r.Get("/commands", h.listCommands)
		r.Post("/inbound", h.inbound)

		if h.opts.Admin != nil {
			r.Route("/admin", h.opts.Admin)
		}
	})

	return r
}

func (h *Handler) requestLogger(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		ww := middleware.NewWrapResponseWriter(w, r.ProtoMajor)
		start := time.Now()
		next.ServeHTTP(ww, r)
		h.logger.Info("request",
			zap.String("method", r.Method),
			zap.String("path", r.URL.Path),
			zap.Int("status", ww.Status()),
			zap.Duration("duration", time.Since(start)),
			zap.String("request_id", middleware.GetReqID(r.Context())),
		)
	})
}

func (h *Handler) readyz(w http.ResponseWriter, r *http.Request) {
	if h.opts.Ready != nil {
		ctx, cancel := context.WithTimeout(r.Context(), 2*time.Second)
		defer cancel()
		if err := h.opts.Ready.Ping(ctx); err != nil {
			h.logger.Warn("not ready", zap.Error(err))
			http.Error(w, "Storage unavailable", http.StatusServiceUnavailable)
			return
		}
	}
	w.WriteHeader(http.StatusOK)
}

func (h *Handler) listCommands(w http.ResponseWriter, r *http.Request) {
	names := []string{}
	if h.opts.Commands != nil {
		names = h.opts.Commands()
	}
	writeJSON(w, http.StatusOK, map[string]any{"commands": names})
}

type inboundResponse struct {
	Status  string `json:"status"`
	Command string `json:"command,omitempty"`
	Success *bool  `json:"success,omitempty"`
}

func (h *Handler) inbound(w http.ResponseWriter, r *http.Request) {
	if !h.checkRateLimit(w, r, "inbound", h.cfg.RateLimitInboundPerMin) {
		return
	}

	limit := int64(h.cfg.MaxWebhookBytes)
	if limit <= 0 {
		limit = 10 << 20
	}
	body, err := io.ReadAll(http.MaxBytesReader(w, r.Body, limit))
	if err != nil {
		var tooBig *http.MaxBytesError
		if errors.As(err, &tooBig) {
			http.Error(w, "Payload too large", http.StatusRequestEntityTooLarge)
			return
		}
		http.Error(w, "Failed to read body", http.StatusBadRequest)
		return
	}

	sig := h.provider.SignatureFromHeaders(r.Header)
	if sig == "" {
		http.Error(w, "Missing signature", http.StatusUnauthorized)
		return
	}
	if !h.provider.VerifyWebhookSignature(body, sig) {
		h.logger.Warn("webhook signature rejected", zap.String("provider", h.provider.Name()))
		http.Error(w, "Invalid signature", http.StatusUnauthorized)
		return
	}

	email, err := h.provider.HandleInboundWebhook(r.Context(), body, r.Header.Get("Content-Type"))
	if err != nil {
		var perr *provider.ParseError
		if errors.As(err, &perr) {
			h.logger.Warn("unparseable webhook", zap.Error(err))
			http.Error(w, "Invalid payload", http.StatusBadRequest)
			return
		}
		h.logger.Error("webhook decode failed", zap.Error(err))
		http.Error(w, "Internal error", http.StatusInternalServerError)
		return
	}

	out, err := h.processor.Process(r.Context(), email)
	if err != nil {
		h.logger.Error("processing failed", zap.String("id", email.ID), zap.Error(err))
		http.Error(w, "Processing failed", http.StatusInternalServerError)
		return
	}
	writeJSON(w, http.StatusOK, describe(out))
}

func describe(out pipeline.Outcome) inboundResponse {
	switch {
	case out.Duplicate:
		return inboundResponse{Status: "duplicate"}
	case out.Rejected:
		return inboundResponse{Status: "rejected"}
	case out.Command == nil:
		return inboundResponse{Status: "ignored"}
	}
	resp := inboundResponse{Status: "processed", Command: out.Command.Name}
	if out.Result != nil {
		ok := out.Result.Success
		resp.Success = &ok
	}
	return resp
}

func (h *Handler) checkRateLimit(w http.ResponseWriter, r *http.Request, action string, limit int) bool {
	if h.opts.Limiter == nil || limit <= 0 {
		return true
	}
	ip := clientIP(r)

	allowed, err := h.opts.Limiter.RateLimit(r.Context(), ip, action, limit, time.Minute)
	if err != nil {
		// Fail open.
		h.logger.Warn("rate limit check failed", zap.Error(err))
		return true
	}
	if !allowed {
		http.Error(w, "Rate limit exceeded", http.StatusTooManyRequests)
		return false
	}
	return true
}

func clientIP(r *http.Request) string {
	ip := r.RemoteAddr
	if xrip := r.Header.Get("X-Real-IP"); xrip != "" {
		ip = xrip
	} else if xff := r.Header.Get("X-Forwarded-For"); xff != "" {
		first, _, _ := strings.Cut(xff, ",")
		ip = strings.TrimSpace(first)
	}
	if host, _, err := net.SplitHostPort(ip); err == nil {
		ip = host
	}
	return ip
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(v)
}
