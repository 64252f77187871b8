package store

import "time"

const (
	RoleUser  = "user"
	RoleModel = "model"
)

type User struct {
	ID         int64     `json:"id"`
	TelegramID int64     `json:"telegram_id"`
	FirstName  string    `json:"first_name"`
	Username   string    `json:"username"`
	Tariff     string    `json:"tariff"`
	CreatedAt  time.Time `json:"created_at"`
}

// Profile carries the optional Telegram fields captured on first login.
type Profile struct {
	FirstName string
	Username  string
}

type MoodEntry struct {
	ID       int64     `json:"id"`
	UserID   int64     `json:"user_id"` // Telegram ID of the owner
	Score    int       `json:"score"`
	Emotions []string  `json:"emotions"`
	Note     string    `json:"note"`
	Date     time.Time `json:"date"`
}

type Chat struct {
	ID        string    `json:"id"` // UUID
	UserID    int64     `json:"user_id"`
	Persona   string    `json:"persona"`
	CreatedAt time.Time `json:"created_at"`
}

type Message struct {
	ID        string    `json:"id"` // UUID
	ChatID    string    `json:"chat_id"`
	Role      string    `json:"role"` // "user" or "model"
	Text      string    `json:"text"`
	Timestamp time.Time `json:"timestamp"`
	IsError   bool      `json:"is_error,omitempty"`
}
