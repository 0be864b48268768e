package option

import (
	"strings"
	"time"

	"github.com/smallbiznis/consigna/pkg/db/pagination"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

// QueryOption mutates a query before it is executed.
type QueryOption interface {
	Apply(db *gorm.DB) *gorm.DB
}

type QueryOptionFunc func(db *gorm.DB) *gorm.DB

func (f QueryOptionFunc) Apply(db *gorm.DB) *gorm.DB {
	return f(db)
}

func Where(query string, args ...any) QueryOption {
	return QueryOptionFunc(func(db *gorm.DB) *gorm.DB {
		return db.Where(query, args...)
	})
}

// Equal filters column = value, skipping empty strings so optional filters can be
// passed through unconditionally.
func Equal(column string, value any) QueryOption {
	return QueryOptionFunc(func(db *gorm.DB) *gorm.DB {
		if s, ok := value.(string); ok && strings.TrimSpace(s) == "" {
			return db
		}
		return db.Where(column+" = ?", value)
	})
}

func OrderBy(expr string) QueryOption {
	return QueryOptionFunc(func(db *gorm.DB) *gorm.DB {
		if strings.TrimSpace(expr) == "" {
			return db
		}
		return db.Order(expr)
	})
}

func Limit(n int) QueryOption {
	return QueryOptionFunc(func(db *gorm.DB) *gorm.DB {
		if n <= 0 {
			return db
		}
		return db.Limit(n)
	})
}

func CreatedBetween(from, to *time.Time) QueryOption {
	return QueryOptionFunc(func(db *gorm.DB) *gorm.DB {
		if from != nil {
			db = db.Where("created_at >= ?", from.UTC())
		}
		if to != nil {
			db = db.Where("created_at <= ?", to.UTC())
		}
		return db
	})
}

// ForUpdate takes a row lock on dialects that support it. SQLite serializes writers on
// its own and rejects the clause.
func ForUpdate() QueryOption {
	return QueryOptionFunc(func(db *gorm.DB) *gorm.DB {
		if db.Dialector != nil && strings.EqualFold(db.Dialector.Name(), "sqlite") {
			return db
		}
		return db.Clauses(clause.Locking{Strength: "UPDATE"})
	})
}

// ApplyPagination applies keyset pagination ordered by created_at desc and the given key.
func ApplyPagination(page pagination.Pagination, keyColumn string) QueryOption {
	return QueryOptionFunc(func(db *gorm.DB) *gorm.DB {
		if token := strings.TrimSpace(page.PageToken); token != "" {
			cursor, err := pagination.DecodeCursor(token)
			if err == nil && cursor != nil && cursor.CreatedAt != "" {
				createdAt, parseErr := time.Parse(time.RFC3339Nano, cursor.CreatedAt)
				if parseErr == nil {
					db = db.Where("(created_at < ?) OR (created_at = ? AND "+keyColumn+" < ?)",
						createdAt.UTC(), createdAt.UTC(), cursor.ID)
				}
			}
		}
		size := page.PageSize
		if size <= 0 {
			size = pagination.DefaultPageSize
		}
		if size > pagination.MaxPageSize {
			size = pagination.MaxPageSize
		}
		return db.Order("created_at desc, " + keyColumn + " desc").Limit(size + 1)
	})
}
