package model

import (
	"time"
)

// Transaction 记账交易表
type Transaction struct {
	ID          string    `gorm:"primaryKey;type:varchar(36)"`
	UserID      string    `gorm:"index:idx_transactions_user_date,priority:1;type:varchar(36);not null"`
	Tanggal     time.Time `gorm:"index:idx_transactions_user_date,priority:2;not null"`
	Amount      int64     `gorm:"not null"`
	Description string    `gorm:"type:varchar(500);not null"`
	Category    string    `gorm:"type:varchar(50);not null;default:'Lainnya'"`
	Type        string    `gorm:"type:varchar(10);not null"`
	Source      string    `gorm:"type:varchar(10);not null;default:'text'"`
	CreatedAt   time.Time `gorm:"autoCreateTime"`
	UpdatedAt   time.Time `gorm:"autoUpdateTime"`
}

// TableName 指定表名
func (Transaction) TableName() string {
	return "transactions"
}

// All 全部模型，用于 AutoMigrate
func All() []interface{} {
	return []interface{}{
		&User{},
		&Budget{},
		&UpgradeToken{},
		&Payment{},
		&Pricing{},
		&Transaction{},
		&PendingUpload{},
	}
}
