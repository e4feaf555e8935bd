package domain

import "time"

type ChatMessage struct {
	ID       string    `json:"id"`
	UserID   UserID    `json:"user_id"`
	Username string    `json:"username"`
	Text     string    `json:"text"`
	SentAt   time.Time `json:"sent_at"`
}
