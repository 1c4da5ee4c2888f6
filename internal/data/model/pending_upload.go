package model

import (
	"time"

	"gorm.io/datatypes"
)

// PendingUpload 等待用户确认的小票图片
type PendingUpload struct {
	ID            string            `gorm:"primaryKey;type:varchar(36)"`
	UserID        string            `gorm:"index:idx_pending_uploads_user_status,priority:1;type:varchar(36);not null"`
	ImageURL      string            `gorm:"type:varchar(500);not null"`
	ImagePath     string            `gorm:"type:varchar(500)"`
	Status        string            `gorm:"index:idx_pending_uploads_user_status,priority:2;index:idx_pending_uploads_status_expires,priority:1;type:varchar(20);not null;default:'pending'"`
	ExtractedData datatypes.JSONMap `gorm:"type:json"`
	ExpiresAt     time.Time         `gorm:"index:idx_pending_uploads_status_expires,priority:2;not null"`
	CreatedAt     time.Time         `gorm:"autoCreateTime"`
	UpdatedAt     time.Time         `gorm:"autoUpdateTime"`
}

// TableName 指定表名
func (PendingUpload) TableName() string {
	return "pending_uploads"
}
