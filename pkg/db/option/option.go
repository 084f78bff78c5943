// Package option holds reusable query modifiers for repository lookups.
package option

import (
	"fmt"

	"gorm.io/gorm"
)

type QueryOption interface {
	Apply(db *gorm.DB) *gorm.DB
}

type optionFunc func(db *gorm.DB) *gorm.DB

func (f optionFunc) Apply(db *gorm.DB) *gorm.DB { return f(db) }

// ApplyPagination limits the result set, ignoring non-positive values.
func ApplyPagination(limit, offset int) QueryOption {
	return optionFunc(func(db *gorm.DB) *gorm.DB {
		if limit > 0 {
			db = db.Limit(limit)
		}
		if offset > 0 {
			db = db.Offset(offset)
		}
		return db
	})
}

// ApplyOrder sorts by a column. Column names are never taken from user input.
func ApplyOrder(column string, desc bool) QueryOption {
	return optionFunc(func(db *gorm.DB) *gorm.DB {
		direction := "ASC"
		if desc {
			direction = "DESC"
		}
		return db.Order(fmt.Sprintf("%s %s", column, direction))
	})
}

// Where adds a raw condition.
func Where(query string, args ...any) QueryOption {
	return optionFunc(func(db *gorm.DB) *gorm.DB {
		return db.Where(query, args...)
	})
}
