// Package repository provides a generic gorm-backed store for simple row types.
package repository

import (
	"context"

	"gorm.io/gorm"
)

// QueryOption customizes a Find/FindOne statement.
type QueryOption func(*gorm.DB) *gorm.DB

// Repository is the row-oriented persistence boundary used by the billing core.
type Repository[T any] interface {
	WithTrx(tx *gorm.DB) Repository[T]
	Find(ctx context.Context, query *T, opts ...QueryOption) ([]*T, error)
	FindOne(ctx context.Context, query *T, opts ...QueryOption) (*T, error)
	Create(ctx context.Context, resource *T) error
	BatchCreate(ctx context.Context, resources []*T) error
}

// WithOrder sorts results, e.g. WithOrder("recorded_at DESC").
func WithOrder(order string) QueryOption {
	return func(db *gorm.DB) *gorm.DB {
		if order == "" {
			return db
		}
		return db.Order(order)
	}
}

// WithWhere adds a raw condition on top of the struct filter.
func WithWhere(query string, args ...any) QueryOption {
	return func(db *gorm.DB) *gorm.DB {
		return db.Where(query, args...)
	}
}
