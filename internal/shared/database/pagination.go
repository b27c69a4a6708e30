package database

import (
	"fmt"

	"gorm.io/gorm"
)

// Page is a paginated listing
type Page[T any] struct {
	Items      []T   `json:"items"`
	TotalCount int64 `json:"total_count"`
	Page       int   `json:"page"`
	PageSize   int   `json:"page_size"`
	TotalPages int   `json:"total_pages"`
}

// Paginate counts query, then loads one page of it newest first.
func Paginate[T any](query *gorm.DB, page, pageSize int) (*Page[T], error) {
	var totalCount int64
	if err := query.Session(&gorm.Session{}).Count(&totalCount).Error; err != nil {
		return nil, fmt.Errorf("failed to count rows: %w", err)
	}

	if page < 1 {
		page = 1
	}
	if pageSize < 1 || pageSize > 200 {
		pageSize = 50
	}
	offset := (page - 1) * pageSize

	items := make([]T, 0)
	if err := query.Session(&gorm.Session{}).Order("created_at DESC").Limit(pageSize).Offset(offset).Find(&items).Error; err != nil {
		return nil, fmt.Errorf("failed to list rows: %w", err)
	}

	totalPages := int(totalCount) / pageSize
	if int(totalCount)%pageSize > 0 {
		totalPages++
	}

	return &Page[T]{
		Items:      items,
		TotalCount: totalCount,
		Page:       page,
		PageSize:   pageSize,
		TotalPages: totalPages,
	}, nil
}
