package orm

import (
	"math"

	"gorm.io/gorm"
)

const (
	DefaultLimit = 20
	MaxLimit     = 100
)

// Pagination is the metadata returned alongside a page of rows.
type Pagination struct {
	Page     int   `json:"page"`
	Limit    int   `json:"limit"`
	Total    int64 `json:"total"`
	LastPage int   `json:"last_page"`
}

// NormalizePage clamps page to ≥1 and limit to 1..MaxLimit (DefaultLimit when unset).
func NormalizePage(page, limit int) (int, int) {
	if page < 1 {
		page = 1
	}
	if limit < 1 {
		limit = DefaultLimit
	}
	if limit > MaxLimit {
		limit = MaxLimit
	}
	return page, limit
}

// Paginate counts the matching rows and loads one page into dest.
func (q *Query) Paginate(page, limit int, dest interface{}) (Pagination, error) {
	page, limit = NormalizePage(page, limit)

	base := q.db.Session(&gorm.Session{})

	var total int64
	if err := base.Count(&total).Error; err != nil {
		return Pagination{}, err
	}

	p := Pagination{
		Page:     page,
		Limit:    limit,
		Total:    total,
		LastPage: int(math.Max(1, math.Ceil(float64(total)/float64(limit)))),
	}
	if total == 0 {
		return p, nil
	}

	err := q.wrap(base).loader().Offset((page - 1) * limit).Limit(limit).Find(dest).Error
	return p, err
}
