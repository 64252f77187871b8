package store

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
)

type PostgresStore struct {
	pool *pgxpool.Pool
}

func NewPostgresStore(ctx context.Context, databaseURL string) (*PostgresStore, error) {
	cfg, err := pgxpool.ParseConfig(databaseURL)
	if err != nil {
		return nil, fmt.Errorf("failed to parse database url: %w", err)
	}
	pool, err := pgxpool.NewWithConfig(ctx, cfg)
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}
	if err := pool.Ping(ctx); err != nil {
		pool.Close()
		return nil, fmt.Errorf("failed to ping database: %w", err)
	}

	store := &PostgresStore{pool: pool}
	if err := store.initSchema(ctx); err != nil {
		pool.Close()
		return nil, fmt.Errorf("failed to initialize schema: %w", err)
	}
	return store, nil
}

func (s *PostgresStore) Close() error {
	s.pool.Close()
	return nil
}

func (s *PostgresStore) initSchema(ctx context.Context) error {
	_, err := s.pool.Exec(ctx, `
      CREATE TABLE IF NOT EXISTS users (
        id SERIAL PRIMARY KEY,
        telegram_id BIGINT UNIQUE NOT NULL,
        first_name TEXT NOT NULL DEFAULT '',
        username TEXT NOT NULL DEFAULT '',
        tariff VARCHAR(50) NOT NULL DEFAULT 'free',
        created_at TIMESTAMPTZ NOT NULL DEFAULT NOW()
      );

      CREATE TABLE IF NOT EXISTS mood_entries (
        id SERIAL PRIMARY KEY,
        user_id BIGINT NOT NULL REFERENCES users(telegram_id),
        score INTEGER NOT NULL CHECK (score BETWEEN 1 AND 10),
        emotions TEXT[] NOT NULL DEFAULT '{}',
        note TEXT NOT NULL DEFAULT '',
        date TIMESTAMPTZ NOT NULL DEFAULT NOW()
      );

      CREATE TABLE IF NOT EXISTS chats (
        id UUID PRIMARY KEY,
        user_id BIGINT NOT NULL REFERENCES users(telegram_id),
        persona VARCHAR(32) NOT NULL DEFAULT 'empathic',
        created_at TIMESTAMPTZ NOT NULL DEFAULT NOW()
      );

      CREATE TABLE IF NOT EXISTS messages (
        seq BIGSERIAL PRIMARY KEY,
        id UUID UNIQUE NOT NULL,
        chat_id UUID NOT NULL REFERENCES chats(id),
        role VARCHAR(8) NOT NULL CHECK (role IN ('user', 'model')),
        text TEXT NOT NULL,
        timestamp TIMESTAMPTZ NOT NULL DEFAULT NOW(),
        is_error BOOLEAN NOT NULL DEFAULT FALSE
      );

      CREATE INDEX IF NOT EXISTS idx_mood_entries_user ON mood_entries (user_id, date);
      CREATE INDEX IF NOT EXISTS idx_messages_chat ON messages (chat_id, seq);
    `)
	return err
}

func (s *PostgresStore) GetOrCreateUser(ctx context.Context, telegramID int64, profile Profile) (*User, error) {
	_, err := s.pool.Exec(ctx,
		`INSERT INTO users (telegram_id, first_name, username, tariff)
		 VALUES ($1, $2, $3, 'free')
		 ON CONFLICT (telegram_id) DO NOTHING`,
		telegramID, profile.FirstName, profile.Username)
	if err != nil {
		return nil, fmt.Errorf("failed to insert user: %w", err)
	}
	user, err := s.GetUserByTelegramID(ctx, telegramID)
	if err != nil {
		return nil, err
	}
	if user == nil {
		return nil, fmt.Errorf("user %d missing after insert", telegramID)
	}
	return user, nil
}

func (s *PostgresStore) GetUserByTelegramID(ctx context.Context, telegramID int64) (*User, error) {
	var user User
	err := s.pool.QueryRow(ctx,
		`SELECT id, telegram_id, first_name, username, tariff, created_at FROM users WHERE telegram_id = $1`,
		telegramID,
	).Scan(&user.ID, &user.TelegramID, &user.FirstName, &user.Username, &user.Tariff, &user.CreatedAt)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to query user: %w", err)
	}
	return &user, nil
}

func (s *PostgresStore) SetUserTariff(ctx context.Context, telegramID int64, tariff string) error {
	tag, err := s.pool.Exec(ctx, `UPDATE users SET tariff = $1 WHERE telegram_id = $2`, tariff, telegramID)
	if err != nil {
		return fmt.Errorf("failed to update tariff: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return ErrNotFound
	}
	return nil
}

func (s *PostgresStore) CreateMoodEntry(ctx context.Context, entry *MoodEntry) error {
	if entry.Emotions == nil {
		entry.Emotions = []string{}
	}
	if entry.Date.IsZero() {
		entry.Date = time.Now().UTC()
	}
	err := s.pool.QueryRow(ctx,
		`INSERT INTO mood_entries (user_id, score, emotions, note, date)
		 VALUES ($1, $2, $3, $4, $5)
		 RETURNING id`,
		entry.UserID, entry.Score, entry.Emotions, entry.Note, entry.Date,
	).Scan(&entry.ID)
	if err != nil {
		return fmt.Errorf("failed to execute mood insert: %w", err)
	}
	return nil
}

func (s *PostgresStore) ListMoodEntries(ctx context.Context, userID int64, limit int) ([]MoodEntry, error) {
	rows, err := s.pool.Query(ctx,
		`SELECT id, user_id, score, emotions, note, date
		 FROM mood_entries
		 WHERE user_id = $1
		 ORDER BY date DESC, id DESC
		 LIMIT $2`,
		userID, limit)
	if err != nil {
		return nil, fmt.Errorf("failed to query mood entries: %w", err)
	}
	defer rows.Close()

	var entries []MoodEntry
	for rows.Next() {
		var entry MoodEntry
		if err := rows.Scan(&entry.ID, &entry.UserID, &entry.Score, &entry.Emotions, &entry.Note, &entry.Date); err != nil {
			return nil, fmt.Errorf("failed to scan mood row: %w", err)
		}
		entries = append(entries, entry)
	}
	return entries, rows.Err()
}

func (s *PostgresStore) CreateChat(ctx context.Context, userID int64, persona string) (*Chat, error) {
	chat := &Chat{ID: uuid.NewString(), UserID: userID, Persona: persona, CreatedAt: time.Now().UTC()}
	_, err := s.pool.Exec(ctx,
		`INSERT INTO chats (id, user_id, persona, created_at) VALUES ($1, $2, $3, $4)`,
		chat.ID, chat.UserID, chat.Persona, chat.CreatedAt)
	if err != nil {
		return nil, fmt.Errorf("failed to execute chat insert: %w", err)
	}
	return chat, nil
}

func (s *PostgresStore) GetChatByID(ctx context.Context, chatID string, userID int64) (*Chat, error) {
	if _, err := uuid.Parse(chatID); err != nil {
		return nil, nil // a malformed id cannot match the UUID column
	}
	var chat Chat
	err := s.pool.QueryRow(ctx,
		`SELECT id::text, user_id, persona, created_at FROM chats WHERE id = $1 AND user_id = $2`,
		chatID, userID,
	).Scan(&chat.ID, &chat.UserID, &chat.Persona, &chat.CreatedAt)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get chat: %w", err)
	}
	return &chat, nil
}

func (s *PostgresStore) GetChatsByUserID(ctx context.Context, userID int64) ([]Chat, error) {
	rows, err := s.pool.Query(ctx,
		`SELECT id::text, user_id, persona, created_at FROM chats WHERE user_id = $1 ORDER BY created_at DESC`,
		userID)
	if err != nil {
		return nil, fmt.Errorf("failed to query chats: %w", err)
	}
	defer rows.Close()

	var chats []Chat
	for rows.Next() {
		var chat Chat
		if err := rows.Scan(&chat.ID, &chat.UserID, &chat.Persona, &chat.CreatedAt); err != nil {
			return nil, fmt.Errorf("failed to scan chat row: %w", err)
		}
		chats = append(chats, chat)
	}
	return chats, rows.Err()
}

func (s *PostgresStore) UpdateChatPersona(ctx context.Context, chatID string, userID int64, persona string) error {
	if _, err := uuid.Parse(chatID); err != nil {
		return ErrNotFound
	}
	tag, err := s.pool.Exec(ctx,
		`UPDATE chats SET persona = $1 WHERE id = $2 AND user_id = $3`, persona, chatID, userID)
	if err != nil {
		return fmt.Errorf("failed to execute chat persona update: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return ErrNotFound
	}
	return nil
}

func (s *PostgresStore) CreateMessage(ctx context.Context, msg *Message) error {
	if msg.ID == "" {
		msg.ID = uuid.NewString()
	}
	if msg.Timestamp.IsZero() {
		msg.Timestamp = time.Now().UTC()
	}
	_, err := s.pool.Exec(ctx,
		`INSERT INTO messages (id, chat_id, role, text, timestamp, is_error) VALUES ($1, $2, $3, $4, $5, $6)`,
		msg.ID, msg.ChatID, msg.Role, msg.Text, msg.Timestamp, msg.IsError)
	if err != nil {
		return fmt.Errorf("failed to execute message insert: %w", err)
	}
	return nil
}

func (s *PostgresStore) GetMessagesByChatID(ctx context.Context, chatID string, limit int) ([]Message, error) {
	var limitArg any
	if limit > 0 {
		limitArg = limit
	}
	rows, err := s.pool.Query(ctx,
		`SELECT id::text, chat_id::text, role, text, timestamp, is_error FROM (
		   SELECT seq, id, chat_id, role, text, timestamp, is_error
		   FROM messages
		   WHERE chat_id = $1
		   ORDER BY seq DESC
		   LIMIT $2
		 ) recent ORDER BY seq ASC`,
		chatID, limitArg)
	if err != nil {
		return nil, fmt.Errorf("failed to query messages: %w", err)
	}
	defer rows.Close()

	var messages []Message
	for rows.Next() {
		var msg Message
		if err := rows.Scan(&msg.ID, &msg.ChatID, &msg.Role, &msg.Text, &msg.Timestamp, &msg.IsError); err != nil {
			return nil, fmt.Errorf("failed to scan message row: %w", err)
		}
		messages = append(messages, msg)
	}
	return messages, rows.Err()
}
