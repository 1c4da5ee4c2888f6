package model

import (
	"time"
)

// UpgradeToken 升级令牌表
type UpgradeToken struct {
	ID          string     `gorm:"primaryKey;type:varchar(36)"`
	PhoneNumber string     `gorm:"index;type:varchar(20);not null"`
	Token       string     `gorm:"uniqueIndex;type:varchar(64);not null"`
	UserID      *string    `gorm:"index;type:varchar(36)"`
	ExpiresAt   time.Time  `gorm:"index;not null"`
	UsedAt      *time.Time `gorm:"index"`
	CreatedAt   time.Time  `gorm:"autoCreateTime"`
	UpdatedAt   time.Time  `gorm:"autoUpdateTime"`
}

// TableName 指定表名
func (UpgradeToken) TableName() string {
	return "upgrade_tokens"
}
