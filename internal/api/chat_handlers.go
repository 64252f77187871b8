package api

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"net/http"

	"github.com/go-chi/chi/v5"
	"go.uber.org/zap"

	"mindhelper.ai/backend/internal/core"
	"mindhelper.ai/backend/internal/reference"
	"mindhelper.ai/backend/internal/store"
)

type CreateChatRequest struct {
	Persona string `json:"persona"`
}

type ChatDetailsResponse struct {
	*store.Chat
	Messages []store.Message `json:"messages"`
}

func (h *APIHandler) CreateChatHandler(w http.ResponseWriter, r *http.Request) {
	userID := userIDFromContext(r.Context())

	var req CreateChatRequest
	// An empty body is allowed.
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil && !errors.Is(err, io.EOF) {
		http.Error(w, "Invalid request body: "+err.Error(), http.StatusBadRequest)
		return
	}

	chat, messages, err := h.chats.CreateChat(r.Context(), userID, core.PersonaOrDefault(req.Persona))
	if err != nil {
		h.logger.Error("Failed to create chat", zap.Int64("telegram_id", userID), zap.Error(err))
		http.Error(w, "Failed to create chat", http.StatusInternalServerError)
		return
	}
	h.writeJSON(w, http.StatusCreated, ChatDetailsResponse{Chat: chat, Messages: messages})
}

func (h *APIHandler) ListChatsHandler(w http.ResponseWriter, r *http.Request) {
	userID := userIDFromContext(r.Context())

	chats, err := h.chats.GetChats(r.Context(), userID)
	if err != nil {
		h.logger.Error("Failed to list chats", zap.Int64("telegram_id", userID), zap.Error(err))
		http.Error(w, "Failed to list chats", http.StatusInternalServerError)
		return
	}
	if chats == nil {
		chats = []store.Chat{}
	}
	h.writeJSON(w, http.StatusOK, chats)
}

func (h *APIHandler) GetChatDetailsHandler(w http.ResponseWriter, r *http.Request) {
	userID := userIDFromContext(r.Context())
	chatID := chi.URLParam(r, "chatID")

	chat, messages, err := h.chats.GetChatDetails(r.Context(), chatID, userID)
	if err != nil {
		if errors.Is(err, core.ErrChatNotFound) {
			http.Error(w, "Chat not found", http.StatusNotFound)
			return
		}
		h.logger.Error("Failed to get chat details",
			zap.Int64("telegram_id", userID), zap.String("chat_id", chatID), zap.Error(err))
		http.Error(w, "Failed to get chat details", http.StatusInternalServerError)
		return
	}
	h.writeJSON(w, http.StatusOK, ChatDetailsResponse{Chat: chat, Messages: messages})
}

type UpdateChatRequest struct {
	Persona string `json:"persona"`
}

func (h *APIHandler) UpdateChatHandler(w http.ResponseWriter, r *http.Request) {
	userID := userIDFromContext(r.Context())
	chatID := chi.URLParam(r, "chatID")

	var req UpdateChatRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, "Invalid request body: "+err.Error(), http.StatusBadRequest)
		return
	}
	persona, err := core.ParsePersona(req.Persona)
	if err != nil {
		http.Error(w, err.Error(), http.StatusBadRequest)
		return
	}

	if err := h.chats.UpdatePersona(r.Context(), chatID, userID, persona); err != nil {
		if errors.Is(err, core.ErrChatNotFound) {
			http.Error(w, "Chat not found", http.StatusNotFound)
			return
		}
		h.logger.Error("Failed to update chat persona", zap.String("chat_id", chatID), zap.Error(err))
		http.Error(w, "Failed to update chat", http.StatusInternalServerError)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

type PostMessageRequest struct {
	Content string `json:"content"`
	Persona string `json:"persona,omitempty"`
}

type PostMessageResponse struct {
	UserMessage       *store.Message               `json:"user_message"`
	ModelMessage      *store.Message               `json:"model_message"`
	Emergency         bool                         `json:"emergency"`
	EmergencyContacts []reference.EmergencyContact `json:"emergency_contacts,omitempty"`
}

func (h *APIHandler) PostMessageHandler(w http.ResponseWriter, r *http.Request) {
	userID := userIDFromContext(r.Context())
	chatID := chi.URLParam(r, "chatID")

	var req PostMessageRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, "Invalid request body: "+err.Error(), http.StatusBadRequest)
		return
	}

	// The model request runs to completion even if the client goes away.
	ctx := context.WithoutCancel(r.Context())
	res, err := h.chats.PostMessage(ctx, core.PostMessageInput{
		ChatID:  chatID,
		UserID:  userID,
		Content: req.Content,
		Persona: req.Persona,
		OnEmergency: func() {
			h.logger.Warn("Emergency surface raised", zap.Int64("telegram_id", userID), zap.String("chat_id", chatID))
		},
	})
	if err != nil {
		switch {
		case errors.Is(err, core.ErrChatNotFound):
			http.Error(w, "Chat not found", http.StatusNotFound)
		case errors.Is(err, core.ErrTurnInProgress):
			http.Error(w, "A reply is already being generated for this chat", http.StatusConflict)
		default:
			h.logger.Error("Failed to post message",
				zap.Int64("telegram_id", userID), zap.String("chat_id", chatID), zap.Error(err))
			http.Error(w, "Failed to post message", http.StatusInternalServerError)
		}
		return
	}
	if res.Skipped {
		w.WriteHeader(http.StatusNoContent)
		return
	}

	resp := PostMessageResponse{
		UserMessage:  res.UserMessage,
		ModelMessage: res.ModelMessage,
		Emergency:    res.Emergency,
	}
	if res.Emergency {
		resp.EmergencyContacts = h.reference.EmergencyContacts
	}
	h.writeJSON(w, http.StatusOK, resp)
}
