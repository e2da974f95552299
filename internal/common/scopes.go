package common

import (
	"fmt"
	"strings"

	"gorm.io/gorm"
)

// Paginate 分页
// 使用方法：db.Scopes(common.Paginate(req)).Find(&contacts)
func Paginate(req PaginationRequest) func(db *gorm.DB) *gorm.DB {
	return func(db *gorm.DB) *gorm.DB {
		return db.Offset(req.GetOffset()).Limit(req.GetPageSize())
	}
}

// Keyword 多字段模糊搜索，字段之间为 OR
func Keyword(keyword string, fields ...string) func(db *gorm.DB) *gorm.DB {
	return func(db *gorm.DB) *gorm.DB {
		keyword = strings.TrimSpace(keyword)
		if keyword == "" || len(fields) == 0 {
			return db
		}
		conditions := make([]string, 0, len(fields))
		args := make([]any, 0, len(fields))
		for _, field := range fields {
			conditions = append(conditions, fmt.Sprintf("%s LIKE ?", field))
			args = append(args, "%"+keyword+"%")
		}
		return db.Where("("+strings.Join(conditions, " OR ")+")", args...)
	}
}

// Status 状态过滤，空值不过滤
func Status(status string) func(db *gorm.DB) *gorm.DB {
	return func(db *gorm.DB) *gorm.DB {
		if status == "" {
			return db
		}
		return db.Where("status = ?", status)
	}
}

// CreatedBetween 创建时间范围过滤
func CreatedBetween(req FilterRequest) func(db *gorm.DB) *gorm.DB {
	return func(db *gorm.DB) *gorm.DB {
		if req.From != nil {
			db = db.Where("created_at >= ?", *req.From)
		}
		if req.To != nil {
			db = db.Where("created_at < ?", req.To.AddDate(0, 0, 1))
		}
		return db
	}
}

// Sort 排序，只允许白名单字段，默认 created_at DESC
func Sort(sortBy, sortOrder string, allowed ...string) func(db *gorm.DB) *gorm.DB {
	return func(db *gorm.DB) *gorm.DB {
		if sortBy == "" {
			return db.Order("created_at DESC")
		}
		ok := false
		for _, field := range allowed {
			if field == sortBy {
				ok = true
				break
			}
		}
		if !ok {
			return db.Order("created_at DESC")
		}
		sortOrder = strings.ToLower(sortOrder)
		if sortOrder != "asc" && sortOrder != "desc" {
			sortOrder = "desc"
		}
		return db.Order(fmt.Sprintf("%s %s", sortBy, sortOrder))
	}
}
