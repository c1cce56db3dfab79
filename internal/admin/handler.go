package admin

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"strconv"
	"strings"
	"time"

	"clawderous/internal/config"
	"clawderous/internal/domain"
	"clawderous/internal/logging"
	"clawderous/internal/redisstore"

	"github.com/go-chi/chi/v5"
	"go.uber.org/zap"
)

type Store interface {
	Ping(ctx context.Context) error
	GetStats(ctx context.Context, now time.Time) (*redisstore.Stats, error)
	ListArtifacts(ctx context.Context, offset, limit int) ([]*domain.Artifact, error)
	DeleteArtifact(ctx context.Context, id string) error
	AllowedSenders(ctx context.Context, static []string) ([]string, error)
	AddSender(ctx context.Context, entry string) error
	RemoveSender(ctx context.Context, entry string) error
	Journal(ctx context.Context, owner string, limit int) ([]string, error)
	Reminders(ctx context.Context, owner string) ([]*domain.Reminder, error)
}

type AdminHandler struct {
	cfg    *config.Config
	store  Store
	auth   *AuthService
	logger *zap.Logger
}

func NewAdminHandler(cfg *config.Config, store Store, logger *zap.Logger) (*AdminHandler, error) {
	auth, err := NewAuthService(cfg.AdminPassword, cfg.JWTSecret)
	if err != nil {
		return nil, err
	}
	logger = logging.OrNop(logger)
	return &AdminHandler{cfg: cfg, store: store, auth: auth, logger: logger}, nil
}

// Routes mounts the admin API. Everything except login needs a bearer token.
func (h *AdminHandler) Routes(r chi.Router) {
	r.Post("/login", h.Login)
	r.Group(func(r chi.Router) {
		r.Use(h.AuthMiddleware)
		r.Get("/stats", h.GetStats)
		r.Get("/health", h.GetHealth)
		r.Get("/config", h.GetConfig)
		r.Get("/artifacts", h.GetArtifacts)
		r.Delete("/artifacts/{id}", h.DeleteArtifact)
		r.Get("/senders", h.GetSenders)
		r.Post("/senders", h.AddSender)
		r.Delete("/senders/{entry}", h.RemoveSender)
		r.Get("/journal/{owner}", h.GetJournal)
	})
}

func (h *AdminHandler) AuthMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		authHeader := r.Header.Get("Authorization")
		if authHeader == "" {
			http.Error(w, "Missing authorization header", http.StatusUnauthorized)
			return
		}

		token, ok := strings.CutPrefix(authHeader, "Bearer ")
		if !ok || token == "" {
			http.Error(w, "Invalid authorization header format", http.StatusUnauthorized)
			return
		}
		if _, err := h.auth.ValidateToken(token); err != nil {
			http.Error(w, "Invalid token", http.StatusUnauthorized)
			return
		}

		next.ServeHTTP(w, r)
	})
}

func (h *AdminHandler) Login(w http.ResponseWriter, r *http.Request) {
	var req struct {
		Password string `json:"password"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, "Invalid request body", http.StatusBadRequest)
		return
	}

	if err := h.auth.ValidatePassword(req.Password); err != nil {
		h.logger.Warn("admin login failed")
		http.Error(w, "Invalid password", http.StatusUnauthorized)
		return
	}

	token, err := h.auth.GenerateToken()
	if err != nil {
		http.Error(w, "Failed to generate token", http.StatusInternalServerError)
		return
	}
	writeJSON(w, map[string]string{"token": token})
}

func (h *AdminHandler) GetStats(w http.ResponseWriter, r *http.Request) {
	st, err := h.store.GetStats(r.Context(), time.Now())
	if err != nil {
		h.logger.Error("failed to load stats", zap.Error(err))
		http.Error(w, "Failed to load stats", http.StatusInternalServerError)
		return
	}

	type commandCount struct {
		Command string `json:"command"`
		Count   int64  `json:"count"`
	}
	top := []commandCount{}
	for cmd, n := range st.ByCommand {
		top = append(top, commandCount{Command: cmd, Count: n})
	}

	writeJSON(w, map[string]any{
		"totalArtifacts":   st.TotalArtifacts,
		"artifactsLast24h": st.Last24h,
		"owners":           st.Owners,
		"topCommands":      top,
	})
}

func (h *AdminHandler) GetHealth(w http.ResponseWriter, r *http.Request) {
	redisStatus := "connected"
	if err := h.store.Ping(r.Context()); err != nil {
		redisStatus = "unavailable"
	}
	imapStatus := "disabled"
	if h.cfg.IMAPHost != "" {
		imapStatus = "configured"
	}
	writeJSON(w, map[string]any{
		"redis":    redisStatus,
		"imap":     imapStatus,
		"provider": h.cfg.EmailProvider,
	})
}

// GetConfig returns the non-secret settings.
func (h *AdminHandler) GetConfig(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, map[string]any{
		"emailProvider":          h.cfg.EmailProvider,
		"fromAddress":            h.cfg.FromAddress,
		"artifactBaseURL":        h.cfg.ArtifactBaseURL,
		"workflowsEnabled":       h.cfg.WorkflowURL != "",
		"fetchTimeout":           h.cfg.FetchTimeout.String(),
		"sendTimeout":            h.cfg.SendTimeout.String(),
		"signatureTolerance":     h.cfg.SignatureTolerance.String(),
		"maxWebhookBytes":        h.cfg.MaxWebhookBytes,
		"maxEmailBytes":          h.cfg.MaxEmailBytes,
		"rateLimitInboundPerMin": h.cfg.RateLimitInboundPerMin,
		"dedupeTTLSeconds":       h.cfg.DedupeTTLSeconds,
		"allowedSenders":         h.cfg.AllowedSenders,
	})
}

func (h *AdminHandler) GetArtifacts(w http.ResponseWriter, r *http.Request) {
	offset := queryInt(r, "offset", 0, 0, 1<<30)
	limit := queryInt(r, "limit", 50, 1, 200)

	artifacts, err := h.store.ListArtifacts(r.Context(), offset, limit)
	if err != nil {
		h.logger.Error("failed to list artifacts", zap.Error(err))
		http.Error(w, "Failed to fetch artifacts", http.StatusInternalServerError)
		return
	}
	writeJSON(w, map[string]any{
		"artifacts": artifacts,
		"offset":    offset,
		"limit":     limit,
	})
}

func (h *AdminHandler) DeleteArtifact(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")
	if err := h.store.DeleteArtifact(r.Context(), id); err != nil {
		if errors.Is(err, redisstore.ErrNotFound) {
			http.Error(w, "Artifact not found", http.StatusNotFound)
			return
		}
		h.logger.Error("failed to delete artifact", zap.String("id", id), zap.Error(err))
		http.Error(w, "Failed to delete artifact", http.StatusInternalServerError)
		return
	}
	writeJSON(w, map[string]string{"status": "deleted"})
}

func (h *AdminHandler) GetSenders(w http.ResponseWriter, r *http.Request) {
	senders, err := h.store.AllowedSenders(r.Context(), h.cfg.AllowedSenders)
	if err != nil {
		http.Error(w, "Failed to load senders", http.StatusInternalServerError)
		return
	}
	if senders == nil {
		senders = []string{}
	}
	writeJSON(w, map[string]any{"senders": senders})
}

func (h *AdminHandler) AddSender(w http.ResponseWriter, r *http.Request) {
	var req struct {
		Entry string `json:"entry"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil || !validSenderEntry(req.Entry) {
		http.Error(w, "Expected an address or @domain", http.StatusBadRequest)
		return
	}
	if err := h.store.AddSender(r.Context(), req.Entry); err != nil {
		http.Error(w, "Failed to add sender", http.StatusInternalServerError)
		return
	}
	writeJSON(w, map[string]string{"status": "added"})
}

func (h *AdminHandler) RemoveSender(w http.ResponseWriter, r *http.Request) {
	if err := h.store.RemoveSender(r.Context(), chi.URLParam(r, "entry")); err != nil {
		http.Error(w, "Failed to remove sender", http.StatusInternalServerError)
		return
	}
	writeJSON(w, map[string]string{"status": "removed"})
}

func validSenderEntry(e string) bool {
	e = strings.TrimSpace(e)
	if strings.HasPrefix(e, "@") {
		return len(e) > 1 && strings.Contains(e, ".")
	}
	local, domainPart, ok := strings.Cut(e, "@")
	return ok && local != "" && domainPart != ""
}

// GetJournal returns an owner's recent /log entries and their reminders.
func (h *AdminHandler) GetJournal(w http.ResponseWriter, r *http.Request) {
	owner := domain.NormalizeAddress(chi.URLParam(r, "owner"))
	if owner == "" {
		http.Error(w, "Owner is required", http.StatusBadRequest)
		return
	}
	limit := queryInt(r, "limit", 50, 1, 500)

	entries, err := h.store.Journal(r.Context(), owner, limit)
	if err != nil {
		h.logger.Error("failed to read journal", zap.String("owner", owner), zap.Error(err))
		http.Error(w, "Failed to fetch journal", http.StatusInternalServerError)
		return
	}
	reminders, err := h.store.Reminders(r.Context(), owner)
	if err != nil {
		h.logger.Error("failed to read reminders", zap.String("owner", owner), zap.Error(err))
		http.Error(w, "Failed to fetch reminders", http.StatusInternalServerError)
		return
	}
	writeJSON(w, map[string]any{
		"owner":     owner,
		"entries":   entries,
		"reminders": reminders,
	})
}

func queryInt(r *http.Request, key string, def, min, max int) int {
	v := r.URL.Query().Get(key)
	if v == "" {
		return def
	}
	n, err := strconv.Atoi(v)
	if err != nil || n < min || n > max {
		return def
	}
	return n
}

func writeJSON(w http.ResponseWriter, v any) {
	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(v)
}
