package model

import (
	"time"

	"gorm.io/datatypes"
)

// Pricing 套餐价格表
type Pricing struct {
	ID           string         `gorm:"primaryKey;type:varchar(36)"`
	Plan         string         `gorm:"uniqueIndex;type:varchar(20);not null"`
	Price        int64          `gorm:"index;not null"`
	IsActive     bool           `gorm:"not null"`
	Description  string         `gorm:"type:text"`
	Features     datatypes.JSON `gorm:"type:json"`
	DisplayOrder int            `gorm:"not null;default:0"`
	ShowOnMain   bool           `gorm:"not null"`
	BadgeText    string         `gorm:"type:varchar(50)"`
	CreatedAt    time.Time      `gorm:"autoCreateTime"`
	UpdatedAt    time.Time      `gorm:"autoUpdateTime"`
}

// TableName 指定表名
func (Pricing) TableName() string {
	return "pricings"
}
