package model

import (
	"time"
)

// User 用户表（含月度用量和订阅窗口）
type User struct {
	ID                    string     `gorm:"primaryKey;type:varchar(36)"`
	PhoneNumber           string     `gorm:"uniqueIndex;type:varchar(20);not null"`
	Name                  string     `gorm:"type:varchar(255)"`
	Plan                  string     `gorm:"index;type:varchar(20);not null;default:'free'"`
	Status                string     `gorm:"type:varchar(20);not null;default:'active'"`
	ReminderEnabled       bool       `gorm:"not null"`
	ResponseStyle         string     `gorm:"type:varchar(20);not null;default:'santai'"`
	ChatCountMonth        int        `gorm:"not null;default:0"`
	StrukCountMonth       int        `gorm:"not null;default:0"`
	LastResetAt           *time.Time `gorm:"index"`
	SubscriptionStartedAt *time.Time
	SubscriptionExpiresAt *time.Time `gorm:"index:idx_users_subscription,priority:2"`
	SubscriptionStatus    string     `gorm:"index:idx_users_subscription,priority:1;type:varchar(20);not null;default:'active'"`
	CreatedAt             time.Time  `gorm:"autoCreateTime"`
	UpdatedAt             time.Time  `gorm:"autoUpdateTime"`
}

// TableName 指定表名
func (User) TableName() string {
	return "users"
}
