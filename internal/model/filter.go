package model

import (
	"errors"
	"fmt"
	"math"
	"strings"
)

// SortField names a column a task listing can be ordered by.
type SortField string

const (
	SortByCreatedAt SortField = "createdAt"
	SortByUpdatedAt SortField = "updatedAt"
	SortByTitle     SortField = "title"
)

// SortOrder is the direction of a task listing.
type SortOrder string

const (
	SortAsc  SortOrder = "asc"
	SortDesc SortOrder = "desc"
)

const (
	DefaultPage  = 1
	DefaultLimit = 10
	MaxLimit     = 100
)

// TaskFilter is the query object behind task listings. Optional
// constraints use the zero value for "absent": an empty Status or
// Search places no constraint at all. Call Normalize at every boundary
// so equal intents compare equal with ==.
type TaskFilter struct {
	Page      int
	Limit     int
	Status    TaskStatus
	Search    string
	SortBy    SortField
	SortOrder SortOrder
}

// Normalize fills defaults and drops blank optional fields. A
// whitespace-only search is treated as no search.
func (f TaskFilter) Normalize() TaskFilter {
	if f.Page == 0 {
		f.Page = DefaultPage
	}
	if f.Limit == 0 {
		f.Limit = DefaultLimit
	}
	f.Status = TaskStatus(strings.ToUpper(strings.TrimSpace(string(f.Status))))
	f.Search = strings.TrimSpace(f.Search)
	if f.SortBy == "" {
		f.SortBy = SortByCreatedAt
	}
	f.SortOrder = SortOrder(strings.ToLower(strings.TrimSpace(string(f.SortOrder))))
	if f.SortOrder == "" {
		f.SortOrder = SortDesc
	}
	return f
}

// Validate checks a normalized filter.
func (f TaskFilter) Validate() error {
	var errs []error
	if f.Page < 1 {
		errs = append(errs, errors.New("page must be at least 1"))
	}
	if f.Limit < 1 || f.Limit > MaxLimit {
		errs = append(errs, fmt.Errorf("limit must be between 1 and %d", MaxLimit))
	}
	if f.Status != "" && !f.Status.Valid() {
		errs = append(errs, fmt.Errorf("invalid status %q", f.Status))
	}
	switch f.SortBy {
	case SortByCreatedAt, SortByUpdatedAt, SortByTitle:
	default:
		errs = append(errs, fmt.Errorf("invalid sortBy %q", f.SortBy))
	}
	switch f.SortOrder {
	case SortAsc, SortDesc:
	default:
		errs = append(errs, fmt.Errorf("invalid sortOrder %q", f.SortOrder))
	}
	return errors.Join(errs...)
}

// Offset is the number of rows skipped before the requested page. It
// saturates at math.MaxInt instead of wrapping.
func (f TaskFilter) Offset() int {
	if f.Page < 1 || f.Limit < 1 {
		return 0
	}
	if f.Page-1 > math.MaxInt/f.Limit {
		return math.MaxInt
	}
	return (f.Page - 1) * f.Limit
}
