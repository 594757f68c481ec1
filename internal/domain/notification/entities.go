package notification

import "time"

// Notification is an in-app message for one user, append-only.
type Notification struct {
	ID        uint64    `gorm:"primaryKey;column:id" json:"id"`
	UserID    string    `gorm:"column:user_id;size:32;not null;index" json:"user_id"`
	Message   string    `gorm:"column:message;type:text;not null" json:"message"`
	Read      bool      `gorm:"column:is_read;default:false" json:"read"`
	CreatedAt time.Time `gorm:"column:created_at;autoCreateTime" json:"created_at"`
}

func (Notification) TableName() string { return "notifications" }
