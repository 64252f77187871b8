package core

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"go.uber.org/zap"

	"mindhelper.ai/backend/internal/store"
)

const WelcomeMessage = "Здравствуйте. Я MindHelper. Как вы себя чувствуете сегодня? Я здесь, чтобы выслушать вас без осуждения."

type ChatService struct {
	dbStore  store.Store
	pipeline *Pipeline
	logger   *zap.Logger
	// timeout bounds the model request. Zero leaves it to the transport.
	timeout time.Duration
}

func NewChatService(db store.Store, pipeline *Pipeline, logger *zap.Logger, timeout time.Duration) *ChatService {
	return &ChatService{
		dbStore:  db,
		pipeline: pipeline,
		logger:   logger,
		timeout:  timeout,
	}
}

// CreateChat opens a chat seeded with the welcome message.
func (s *ChatService) CreateChat(ctx context.Context, userID int64, persona Persona) (*store.Chat, []store.Message, error) {
	if !persona.Valid() {
		persona = PersonaEmpathic
	}
	chat, err := s.dbStore.CreateChat(ctx, userID, persona.String())
	if err != nil {
		return nil, nil, fmt.Errorf("failed to create chat in DB: %w", err)
	}

	welcome := store.Message{
		ChatID: chat.ID,
		Role:   store.RoleModel,
		Text:   WelcomeMessage,
	}
	if err := s.dbStore.CreateMessage(ctx, &welcome); err != nil {
		return nil, nil, fmt.Errorf("failed to store welcome message: %w", err)
	}
	return chat, []store.Message{welcome}, nil
}

func (s *ChatService) GetChats(ctx context.Context, userID int64) ([]store.Chat, error) {
	return s.dbStore.GetChatsByUserID(ctx, userID)
}

func (s *ChatService) GetChatDetails(ctx context.Context, chatID string, userID int64) (*store.Chat, []store.Message, error) {
	chat, err := s.dbStore.GetChatByID(ctx, chatID, userID)
	if err != nil {
		return nil, nil, fmt.Errorf("failed to get chat: %w", err)
	}
	if chat == nil {
		return nil, nil, ErrChatNotFound
	}

	messages, err := s.dbStore.GetMessagesByChatID(ctx, chatID, 0)
	if err != nil {
		return nil, nil, fmt.Errorf("failed to get messages for chat: %w", err)
	}
	return chat, messages, nil
}

// UpdatePersona changes the persona used for future turns. Existing
// messages are left as they are.
func (s *ChatService) UpdatePersona(ctx context.Context, chatID string, userID int64, persona Persona) error {
	if !persona.Valid() {
		return fmt.Errorf("%w: %s", ErrInvalidPersona, persona)
	}
	err := s.dbStore.UpdateChatPersona(ctx, chatID, userID, persona.String())
	if errors.Is(err, store.ErrNotFound) {
		return ErrChatNotFound
	}
	return err
}

type PostMessageInput struct {
	ChatID  string
	UserID  int64
	Content string
	// Persona overrides the chat persona when non-empty. Unknown values
	// fall back to empathic.
	Persona     string
	OnEmergency func()
}

type PostMessageResult struct {
	UserMessage  *store.Message
	ModelMessage *store.Message
	Emergency    bool
	// Skipped is set for blank content; nothing was stored or sent.
	Skipped bool
	// Conversation is the history window the turn was built from followed
	// by the two stored messages.
	Conversation []store.Message
}

// PostMessage runs one chat turn and persists both sides of it. The chat
// stays reserved from loading its history until the reply is stored, so a
// concurrent post gets ErrTurnInProgress and stored order matches
// submission order. A backend failure is not returned as an error: it
// becomes a single model message marked IsError.
func (s *ChatService) PostMessage(ctx context.Context, in PostMessageInput) (*PostMessageResult, error) {
	content := strings.TrimSpace(in.Content)
	if content == "" {
		return &PostMessageResult{Skipped: true}, nil
	}

	chat, err := s.dbStore.GetChatByID(ctx, in.ChatID, in.UserID)
	if err != nil {
		return nil, fmt.Errorf("failed to verify chat: %w", err)
	}
	if chat == nil {
		return nil, ErrChatNotFound
	}

	rsv, err := s.pipeline.Reserve(chat.ID)
	if err != nil {
		return nil, err
	}
	defer rsv.Release()

	persona := PersonaOrDefault(chat.Persona)
	if in.Persona != "" {
		persona = PersonaOrDefault(in.Persona)
		if persona.String() != chat.Persona {
			if err := s.dbStore.UpdateChatPersona(ctx, chat.ID, in.UserID, persona.String()); err != nil {
				return nil, fmt.Errorf("failed to update chat persona: %w", err)
			}
		}
	}

	tariff := TariffFree
	user, err := s.dbStore.GetUserByTelegramID(ctx, in.UserID)
	if err != nil {
		return nil, fmt.Errorf("failed to load user: %w", err)
	}
	if user != nil {
		tariff = TariffOrDefault(user.Tariff)
	}

	history, err := s.dbStore.GetMessagesByChatID(ctx, chat.ID, HistoryWindow)
	if err != nil {
		return nil, fmt.Errorf("failed to load chat history: %w", err)
	}
	conv := NewConversation(history)

	userMsg := store.Message{
		ChatID: chat.ID,
		Role:   store.RoleUser,
		Text:   content,
	}
	if err := s.appendMessage(ctx, conv, &userMsg); err != nil {
		return nil, fmt.Errorf("failed to store user message: %w", err)
	}

	turnCtx := ctx
	if s.timeout > 0 {
		var cancel context.CancelFunc
		turnCtx, cancel = context.WithTimeout(ctx, s.timeout)
		defer cancel()
	}

	res, turnErr := rsv.SendTurn(turnCtx, TurnRequest{
		History:     history,
		Text:        content,
		Persona:     persona,
		Tariff:      tariff,
		OnEmergency: in.OnEmergency,
	})

	modelMsg := store.Message{
		ChatID: chat.ID,
		Role:   store.RoleModel,
		Text:   res.Reply,
	}
	var chatErr *ChatError
	switch {
	case turnErr == nil:
	case errors.As(turnErr, &chatErr):
		s.logger.Warn("Model request failed, storing error reply",
			zap.String("chat_id", chat.ID),
			zap.Stringer("kind", chatErr.Kind))
		modelMsg.Text = UserFacingError(chatErr)
		modelMsg.IsError = true
	default:
		return nil, turnErr
	}

	if err := s.appendMessage(ctx, conv, &modelMsg); err != nil {
		return nil, fmt.Errorf("failed to store model message: %w", err)
	}

	return &PostMessageResult{
		UserMessage:  &userMsg,
		ModelMessage: &modelMsg,
		Emergency:    res.Emergency,
		Conversation: conv.Messages(),
	}, nil
}

func (s *ChatService) appendMessage(ctx context.Context, conv *Conversation, msg *store.Message) error {
	if err := s.dbStore.CreateMessage(ctx, msg); err != nil {
		return err
	}
	conv.Append(*msg)
	return nil
}
