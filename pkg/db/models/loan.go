package models

import (
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"
)

// Loan records one borrowing of one book by one user. DateReturn is nil while active.
type Loan struct {
	ID           uuid.UUID  `gorm:"column:id;type:uuid;primaryKey"`
	UserID       uuid.UUID  `gorm:"column:user_id;type:uuid;not null;index;uniqueIndex:ux_loans_active_user_book,where:date_return IS NULL"`
	BookID       uuid.UUID  `gorm:"column:book_id;type:uuid;not null;index;uniqueIndex:ux_loans_active_user_book,where:date_return IS NULL"`
	DateBorrowed time.Time  `gorm:"column:date_borrowed;not null"`
	DueDate      time.Time  `gorm:"column:due_date;not null;index"`
	DateReturn   *time.Time `gorm:"column:date_return"`
	CreatedAt    time.Time  `gorm:"column:created_at;autoCreateTime"`
}

func (l *Loan) BeforeCreate(*gorm.DB) error {
	if l.ID == uuid.Nil {
		l.ID = uuid.New()
	}
	return nil
}

// IsActive reports whether the loan has not been returned yet.
func (l Loan) IsActive() bool {
	return l.DateReturn == nil
}
