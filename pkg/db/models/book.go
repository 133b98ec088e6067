package models

import (
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"
)

// Book is an inventory title with copy counts.
type Book struct {
	ID              uuid.UUID      `gorm:"column:id;type:uuid;primaryKey"`
	Title           string         `gorm:"column:title;type:text;not null"`
	Author          string         `gorm:"column:author;type:text;not null"`
	Publisher       string         `gorm:"column:publisher;type:text;not null;default:''"`
	TotalCopies     int            `gorm:"column:total_copies;not null;check:chk_books_total_copies,total_copies >= 1"`
	AvailableCopies int            `gorm:"column:available_copies;not null;check:chk_books_available_copies,available_copies >= 0 AND available_copies <= total_copies"`
	CreatedAt       time.Time      `gorm:"column:created_at;autoCreateTime"`
	UpdatedAt       time.Time      `gorm:"column:updated_at;autoUpdateTime"`
	DeletedAt       gorm.DeletedAt `gorm:"column:deleted_at;index"`
}

func (b *Book) BeforeCreate(*gorm.DB) error {
	if b.ID == uuid.Nil {
		b.ID = uuid.New()
	}
	return nil
}
