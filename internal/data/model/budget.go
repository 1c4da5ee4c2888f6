package model

import (
	"time"
)

// Budget 月度预算表，(user_id, month, year) 唯一
type Budget struct {
	ID           string    `gorm:"primaryKey;type:varchar(36)"`
	UserID       string    `gorm:"uniqueIndex:uk_budget_user_period,priority:1;type:varchar(36);not null"`
	Month        int       `gorm:"uniqueIndex:uk_budget_user_period,priority:2;not null"`
	Year         int       `gorm:"uniqueIndex:uk_budget_user_period,priority:3;not null"`
	BudgetAmount int64     `gorm:"not null;default:0"`
	CreatedAt    time.Time `gorm:"autoCreateTime"`
	UpdatedAt    time.Time `gorm:"autoUpdateTime"`
}

// TableName 指定表名
func (Budget) TableName() string {
	return "budgets"
}
