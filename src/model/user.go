package model

import "time"

type User struct {
	ID       uint   `gorm:"primaryKey" json:"id"`
	Username string `gorm:"size:60;uniqueIndex" json:"username"`
	Email    string `gorm:"size:120" json:"email"`

	// TelegramChatID is the delivery target for user-facing notifications.
	TelegramChatID string `gorm:"size:40" json:"telegram_chat_id,omitempty"`

	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
}

func (User) TableName() string {
	return "users"
}
