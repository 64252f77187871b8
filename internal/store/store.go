package store

import (
	"context"
	"errors"
	"strings"
)

var ErrNotFound = errors.New("record not found")

var (
	_ Store = (*SQLiteStore)(nil)
	_ Store = (*PostgresStore)(nil)
)

// Store is the persistence surface used by the services. Getters return
// (nil, nil) when the record does not exist; updates return ErrNotFound.
type Store interface {
	GetOrCreateUser(ctx context.Context, telegramID int64, profile Profile) (*User, error)
	GetUserByTelegramID(ctx context.Context, telegramID int64) (*User, error)
	SetUserTariff(ctx context.Context, telegramID int64, tariff string) error

	CreateMoodEntry(ctx context.Context, entry *MoodEntry) error
	ListMoodEntries(ctx context.Context, userID int64, limit int) ([]MoodEntry, error)

	CreateChat(ctx context.Context, userID int64, persona string) (*Chat, error)
	GetChatByID(ctx context.Context, chatID string, userID int64) (*Chat, error)
	GetChatsByUserID(ctx context.Context, userID int64) ([]Chat, error)
	UpdateChatPersona(ctx context.Context, chatID string, userID int64, persona string) error

	CreateMessage(ctx context.Context, msg *Message) error
	GetMessagesByChatID(ctx context.Context, chatID string, limit int) ([]Message, error)

	Close() error
}

// Open picks the backend from the data source name: postgres URLs go to
// pgx, anything else is treated as a SQLite file path.
func Open(ctx context.Context, dataSourceName string) (Store, error) {
	dsn := strings.TrimSpace(dataSourceName)
	if isPostgresURL(dsn) {
		return NewPostgresStore(ctx, dsn)
	}
	return NewSQLiteStore(dsn)
}

func isPostgresURL(dsn string) bool {
	lowered := strings.ToLower(dsn)
	return strings.HasPrefix(lowered, "postgres://") || strings.HasPrefix(lowered, "postgresql://")
}
