package option

import (
	"fmt"
	"strings"

	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

// QueryOption mutates a gorm query before it is executed.
type QueryOption func(*gorm.DB) *gorm.DB

type Operator string

const (
	EQ  Operator = "="
	NEQ Operator = "<>"
	GT  Operator = ">"
	GTE Operator = ">="
	LT  Operator = "<"
	LTE Operator = "<="
	IN  Operator = "IN"
)

type Condition struct {
	Field    string
	Operator Operator
	Value    any
}

type QuerySortBy struct {
	SortBy  string
	OrderBy string
	// Allow whitelists sortable columns; an empty map only permits "created_at".
	Allow map[string]bool
}

// Apply runs every option on tx in order.
func Apply(tx *gorm.DB, opts ...QueryOption) *gorm.DB {
	for _, opt := range opts {
		if opt != nil {
			tx = opt(tx)
		}
	}
	return tx
}

func WithSortBy(s QuerySortBy) QueryOption {
	return func(tx *gorm.DB) *gorm.DB {
		column := s.SortBy
		if column == "" {
			column = "created_at"
		}
		if !s.Allow[column] && column != "created_at" {
			return tx
		}

		desc := strings.EqualFold(s.OrderBy, "desc")
		return tx.Order(clause.OrderByColumn{Column: clause.Column{Name: column}, Desc: desc})
	}
}

func ApplyOperator(c Condition) QueryOption {
	return func(tx *gorm.DB) *gorm.DB {
		switch c.Operator {
		case IN:
			return tx.Where(fmt.Sprintf("%s IN ?", c.Field), c.Value)
		case EQ, NEQ, GT, GTE, LT, LTE:
			return tx.Where(fmt.Sprintf("%s %s ?", c.Field, c.Operator), c.Value)
		default:
			return tx
		}
	}
}

func WithLimit(limit int) QueryOption {
	return func(tx *gorm.DB) *gorm.DB {
		if limit <= 0 {
			return tx
		}
		return tx.Limit(limit)
	}
}

func WithLockingUpdate() QueryOption {
	return LockingUpdate
}

// LockingUpdate adds SELECT ... FOR UPDATE on dialects that support it.
func LockingUpdate(tx *gorm.DB) *gorm.DB {
	if tx.Dialector != nil && tx.Dialector.Name() == "sqlite" {
		return tx
	}
	return tx.Clauses(clause.Locking{Strength: clause.LockingStrengthUpdate})
}

// WithOrderBy orders by several fixed columns. Columns must be trusted
// identifiers, never request input.
func WithOrderBy(columns ...QuerySortBy) QueryOption {
	return func(tx *gorm.DB) *gorm.DB {
		for _, c := range columns {
			tx = tx.Order(clause.OrderByColumn{
				Column: clause.Column{Name: c.SortBy},
				Desc:   strings.EqualFold(c.OrderBy, "desc"),
			})
		}
		return tx
	}
}
