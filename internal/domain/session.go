package domain

import "time"

// HistoryMessage is one text turn of a session's history.
type HistoryMessage struct {
	Role      string    `json:"role"`
	Content   string    `json:"content"`
	CreatedAt time.Time `json:"created_at"`
}
