package api

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"strconv"
	"strings"
	"time"

	"go.uber.org/zap"

	"mindhelper.ai/backend/internal/auth"
	"mindhelper.ai/backend/internal/core"
	"mindhelper.ai/backend/internal/reference"
	"mindhelper.ai/backend/internal/store"
)

const (
	initDataMaxAge  = 24 * time.Hour
	maxWebhookBytes = 1 << 20
)

type contextKey string

const userIDKey contextKey = "userID"

type Options struct {
	JWTSecret        string
	TelegramBotToken string
	// AllowLocalLogin accepts a bare telegram_id on /login. Local
	// development only.
	AllowLocalLogin bool
}

type APIHandler struct {
	accounts  *core.AccountService
	chats     *core.ChatService
	moods     *core.MoodService
	reference *reference.Data
	logger    *zap.Logger
	opts      Options
}

func NewAPIHandler(accounts *core.AccountService, chats *core.ChatService, moods *core.MoodService,
	ref *reference.Data, logger *zap.Logger, opts Options) *APIHandler {
	return &APIHandler{
		accounts:  accounts,
		chats:     chats,
		moods:     moods,
		reference: ref,
		logger:    logger,
		opts:      opts,
	}
}

func userIDFromContext(ctx context.Context) int64 {
	id, _ := ctx.Value(userIDKey).(int64)
	return id
}

func (h *APIHandler) writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		h.logger.Warn("Failed to encode response", zap.Error(err))
	}
}

func (h *APIHandler) JWTAuthMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		authHeader := r.Header.Get("Authorization")
		if authHeader == "" {
			http.Error(w, "Authorization header is required", http.StatusUnauthorized)
			return
		}

		tokenString := strings.TrimPrefix(authHeader, "Bearer ")
		telegramID, err := auth.ValidateJWT(h.opts.JWTSecret, tokenString)
		if err != nil {
			http.Error(w, "Invalid token", http.StatusUnauthorized)
			return
		}

		if _, err := h.accounts.GetUser(r.Context(), telegramID); err != nil {
			if errors.Is(err, core.ErrUserNotFound) {
				http.Error(w, "User not found", http.StatusUnauthorized)
				return
			}
			h.logger.Error("Failed to load user for token", zap.Int64("telegram_id", telegramID), zap.Error(err))
			http.Error(w, "Failed to process user identity", http.StatusInternalServerError)
			return
		}

		ctx := context.WithValue(r.Context(), userIDKey, telegramID)
		next.ServeHTTP(w, r.WithContext(ctx))
	})
}

func (h *APIHandler) HealthHandler(w http.ResponseWriter, r *http.Request) {
	h.writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

type LoginRequest struct {
	InitData string `json:"init_data"`

	TelegramID int64  `json:"telegram_id"`
	FirstName  string `json:"first_name"`
	Username   string `json:"username"`
}

type LoginResponse struct {
	Token string      `json:"token"`
	User  *store.User `json:"user"`
}

func (h *APIHandler) LoginHandler(w http.ResponseWriter, r *http.Request) {
	var req LoginRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, "Invalid request body: "+err.Error(), http.StatusBadRequest)
		return
	}

	var (
		telegramID int64
		profile    store.Profile
	)
	switch {
	case req.InitData != "":
		tgUser, err := auth.VerifyInitData(req.InitData, h.opts.TelegramBotToken, initDataMaxAge, time.Now())
		if err != nil {
			h.logger.Info("Rejected Telegram login", zap.Error(err))
			http.Error(w, "Invalid Telegram init data", http.StatusUnauthorized)
			return
		}
		telegramID = tgUser.ID
		profile = store.Profile{FirstName: tgUser.FirstName, Username: tgUser.Username}
	case h.opts.AllowLocalLogin && req.TelegramID != 0:
		telegramID = req.TelegramID
		profile = store.Profile{FirstName: req.FirstName, Username: req.Username}
	default:
		http.Error(w, "init_data is required", http.StatusBadRequest)
		return
	}

	user, err := h.accounts.GetOrCreateUser(r.Context(), telegramID, profile)
	if err != nil {
		h.logger.Error("Failed to get or create user", zap.Int64("telegram_id", telegramID), zap.Error(err))
		http.Error(w, "Failed to process user", http.StatusInternalServerError)
		return
	}

	token, err := auth.GenerateJWT(h.opts.JWTSecret, telegramID)
	if err != nil {
		h.logger.Error("Failed to generate token", zap.Int64("telegram_id", telegramID), zap.Error(err))
		http.Error(w, "Failed to generate token", http.StatusInternalServerError)
		return
	}

	h.writeJSON(w, http.StatusOK, LoginResponse{Token: token, User: user})
}

func (h *APIHandler) GetMeHandler(w http.ResponseWriter, r *http.Request) {
	userID := userIDFromContext(r.Context())
	user, err := h.accounts.GetUser(r.Context(), userID)
	if err != nil {
		if errors.Is(err, core.ErrUserNotFound) {
			http.Error(w, "User not found", http.StatusNotFound)
			return
		}
		h.logger.Error("Failed to get user", zap.Int64("telegram_id", userID), zap.Error(err))
		http.Error(w, "Failed to get user", http.StatusInternalServerError)
		return
	}
	h.writeJSON(w, http.StatusOK, user)
}

type SetTariffRequest struct {
	Tariff string `json:"tariff"`
}

func (h *APIHandler) SetTariffHandler(w http.ResponseWriter, r *http.Request) {
	userID := userIDFromContext(r.Context())

	var req SetTariffRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, "Invalid request body: "+err.Error(), http.StatusBadRequest)
		return
	}
	tariff, err := core.ParseTariff(req.Tariff)
	if err != nil {
		http.Error(w, err.Error(), http.StatusBadRequest)
		return
	}

	user, err := h.accounts.SetTariff(r.Context(), userID, tariff)
	if err != nil {
		if errors.Is(err, core.ErrUserNotFound) {
			http.Error(w, "User not found", http.StatusNotFound)
			return
		}
		h.logger.Error("Failed to set tariff", zap.Int64("telegram_id", userID), zap.Error(err))
		http.Error(w, "Failed to set tariff", http.StatusInternalServerError)
		return
	}
	h.logger.Info("Tariff changed", zap.Int64("telegram_id", userID), zap.Stringer("tariff", tariff))
	h.writeJSON(w, http.StatusOK, user)
}

type MoodRequest struct {
	Score    int      `json:"score"`
	Emotions []string `json:"emotions"`
	Note     string   `json:"note"`
}

type MoodResponse struct {
	store.MoodEntry
	Band core.MoodBand `json:"band"`
}

func (h *APIHandler) CreateMoodHandler(w http.ResponseWriter, r *http.Request) {
	userID := userIDFromContext(r.Context())

	var req MoodRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, "Invalid request body: "+err.Error(), http.StatusBadRequest)
		return
	}

	entry, err := h.moods.Record(r.Context(), userID, req.Score, req.Emotions, req.Note)
	if err != nil {
		if errors.Is(err, core.ErrInvalidMoodScore) {
			http.Error(w, err.Error(), http.StatusBadRequest)
			return
		}
		h.logger.Error("Failed to record mood", zap.Int64("telegram_id", userID), zap.Error(err))
		http.Error(w, "Failed to record mood", http.StatusInternalServerError)
		return
	}
	h.writeJSON(w, http.StatusCreated, MoodResponse{MoodEntry: *entry, Band: core.BandFor(entry.Score)})
}

func (h *APIHandler) ListMoodHandler(w http.ResponseWriter, r *http.Request) {
	userID := userIDFromContext(r.Context())

	limit := 0
	if raw := r.URL.Query().Get("limit"); raw != "" {
		n, err := strconv.Atoi(raw)
		if err != nil || n < 0 {
			http.Error(w, "limit must be a non-negative integer", http.StatusBadRequest)
			return
		}
		limit = n
	}

	entries, err := h.moods.History(r.Context(), userID, limit)
	if err != nil {
		h.logger.Error("Failed to list mood entries", zap.Int64("telegram_id", userID), zap.Error(err))
		http.Error(w, "Failed to list mood entries", http.StatusInternalServerError)
		return
	}

	resp := make([]MoodResponse, 0, len(entries))
	for _, e := range entries {
		resp = append(resp, MoodResponse{MoodEntry: e, Band: core.BandFor(e.Score)})
	}
	h.writeJSON(w, http.StatusOK, resp)
}

func (h *APIHandler) TariffsHandler(w http.ResponseWriter, r *http.Request) {
	h.writeJSON(w, http.StatusOK, h.reference.Tariffs)
}

type EmergencyContactsResponse struct {
	Contacts     []reference.EmergencyContact `json:"contacts"`
	BreathingTip string                       `json:"breathing_tip"`
}

func (h *APIHandler) EmergencyContactsHandler(w http.ResponseWriter, r *http.Request) {
	h.writeJSON(w, http.StatusOK, EmergencyContactsResponse{
		Contacts:     h.reference.EmergencyContacts,
		BreathingTip: h.reference.BreathingTip,
	})
}

func (h *APIHandler) EmotionsHandler(w http.ResponseWriter, r *http.Request) {
	h.writeJSON(w, http.StatusOK, h.reference.Emotions)
}

type SafetyCheckRequest struct {
	Text string `json:"text"`
}

type SafetyCheckResponse struct {
	Emergency    bool                         `json:"emergency"`
	Contacts     []reference.EmergencyContact `json:"contacts,omitempty"`
	BreathingTip string                       `json:"breathing_tip,omitempty"`
}

func (h *APIHandler) SafetyCheckHandler(w http.ResponseWriter, r *http.Request) {
	var req SafetyCheckRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, "Invalid request body: "+err.Error(), http.StatusBadRequest)
		return
	}

	resp := SafetyCheckResponse{Emergency: core.IsEmergency(req.Text)}
	if resp.Emergency {
		resp.Contacts = h.reference.EmergencyContacts
		resp.BreathingTip = h.reference.BreathingTip
	}
	h.writeJSON(w, http.StatusOK, resp)
}

// PaymentWebhookHandler acknowledges payment provider callbacks. Tariffs
// are not changed here yet.
func (h *APIHandler) PaymentWebhookHandler(w http.ResponseWriter, r *http.Request) {
	body, err := io.ReadAll(io.LimitReader(r.Body, maxWebhookBytes))
	if err != nil {
		http.Error(w, "Failed to read body", http.StatusBadRequest)
		return
	}
	h.logger.Info("Payment webhook received",
		zap.Int("bytes", len(body)),
		zap.ByteString("body", body))
	h.writeJSON(w, http.StatusOK, map[string]string{"status": "received"})
}
