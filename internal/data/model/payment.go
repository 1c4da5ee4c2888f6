package model

import (
	"time"

	"gorm.io/datatypes"
)

// Payment 支付记录表
type Payment struct {
	ID              string            `gorm:"primaryKey;type:varchar(36)"`
	OrderID         string            `gorm:"uniqueIndex;type:varchar(100);not null"`
	UserID          string            `gorm:"index;type:varchar(36);not null"`
	UpgradeTokenID  *string           `gorm:"index;type:varchar(36)"`
	Plan            string            `gorm:"type:varchar(20);not null"`
	Amount          int64             `gorm:"not null"`
	Fee             int64             `gorm:"not null;default:0"`
	TotalPayment    int64             `gorm:"not null"`
	Status          string            `gorm:"index;type:varchar(20);not null;default:'pending'"`
	PaymentMethod   string            `gorm:"type:varchar(50)"`
	ExternalOrderID string            `gorm:"type:varchar(255)"`
	ExpiresAt       *time.Time        `gorm:"index"`
	CompletedAt     *time.Time        `gorm:"index"`
	NeedsReview     bool              `gorm:"index;not null;default:false"`
	Metadata        datatypes.JSONMap `gorm:"type:json"`
	CreatedAt       time.Time         `gorm:"autoCreateTime"`
	UpdatedAt       time.Time         `gorm:"autoUpdateTime"`
}

// TableName 指定表名
func (Payment) TableName() string {
	return "payments"
}
