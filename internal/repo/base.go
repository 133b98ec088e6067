package repo

import (
	"context"
	"errors"

	"gorm.io/gorm"
)

// Base binds a repository to a connection or to an open transaction.
type Base struct {
	db *gorm.DB
}

func NewBase(db *gorm.DB) Base {
	return Base{db: db}
}

// DB returns the handle scoped to ctx.
func (b Base) DB(ctx context.Context) *gorm.DB {
	if ctx == nil {
		return b.db
	}
	return b.db.WithContext(ctx)
}

// First loads the first T matched by query. A miss returns (nil, nil) so each
// repository decides whether absence is an error.
func First[T any](query *gorm.DB) (*T, error) {
	var out T
	err := query.First(&out).Error
	switch {
	case errors.Is(err, gorm.ErrRecordNotFound):
		return nil, nil
	case err != nil:
		return nil, err
	}
	return &out, nil
}
