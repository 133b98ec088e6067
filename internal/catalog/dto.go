package catalog

import (
	"time"

	"github.com/google/uuid"

	"github.com/angelmondragon/library-backend/pkg/db/models"
)

// BookDTO is the admin view of a book.
type BookDTO struct {
	ID              uuid.UUID `json:"id"`
	Title           string    `json:"title"`
	Author          string    `json:"author"`
	Publisher       string    `json:"publisher"`
	TotalCopies     int       `json:"total_copies"`
	AvailableCopies int       `json:"available_copies"`
	CreatedAt       time.Time `json:"created_at"`
	UpdatedAt       time.Time `json:"updated_at"`
}

// CreateBookInput describes a new title. Every copy starts on the shelf.
type CreateBookInput struct {
	Title       string
	Author      string
	Publisher   string
	TotalCopies int
}

// UpdateBookInput carries optional changes; nil fields are left untouched.
type UpdateBookInput struct {
	Title       *string
	Author      *string
	Publisher   *string
	TotalCopies *int
}

func (in UpdateBookInput) empty() bool {
	return in.Title == nil && in.Author == nil && in.Publisher == nil && in.TotalCopies == nil
}

func toDTO(book *models.Book) *BookDTO {
	if book == nil {
		return nil
	}
	return &BookDTO{
		ID:              book.ID,
		Title:           book.Title,
		Author:          book.Author,
		Publisher:       book.Publisher,
		TotalCopies:     book.TotalCopies,
		AvailableCopies: book.AvailableCopies,
		CreatedAt:       book.CreatedAt.UTC(),
		UpdatedAt:       book.UpdatedAt.UTC(),
	}
}
