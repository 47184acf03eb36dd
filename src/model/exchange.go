package model

import "time"

type Exchange struct {
	ID        uint      `gorm:"primaryKey" json:"id"`
	Name      string    `gorm:"size:60;uniqueIndex" json:"name"`
	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
}

func (Exchange) TableName() string {
	return "exchanges"
}
