package payloads

import (
	"time"

	"github.com/google/uuid"
)

// LoanBorrowedEvent is emitted when a borrow transaction commits.
type LoanBorrowedEvent struct {
	LoanID          uuid.UUID `json:"loan_id"`
	UserID          uuid.UUID `json:"user_id"`
	BookID          uuid.UUID `json:"book_id"`
	BorrowedAt      time.Time `json:"borrowed_at"`
	DueDate         time.Time `json:"due_date"`
	AvailableCopies int       `json:"available_copies"`
}

// LoanReturnedEvent is emitted when a loan is closed.
type LoanReturnedEvent struct {
	LoanID          uuid.UUID `json:"loan_id"`
	UserID          uuid.UUID `json:"user_id"`
	BookID          uuid.UUID `json:"book_id"`
	ReturnedAt      time.Time `json:"returned_at"`
	Late            bool      `json:"late"`
	AvailableCopies int       `json:"available_copies"`
}

// LoanOverdueEvent is emitted once per loan that passed its due date while open.
type LoanOverdueEvent struct {
	LoanID   uuid.UUID `json:"loan_id"`
	UserID   uuid.UUID `json:"user_id"`
	BookID   uuid.UUID `json:"book_id"`
	DueDate  time.Time `json:"due_date"`
	Detected time.Time `json:"detected_at"`
}

// BookResizedEvent is emitted when an admin changes a book's total copies.
type BookResizedEvent struct {
	BookID          uuid.UUID `json:"book_id"`
	PreviousTotal   int       `json:"previous_total"`
	TotalCopies     int       `json:"total_copies"`
	AvailableCopies int       `json:"available_copies"`
}
