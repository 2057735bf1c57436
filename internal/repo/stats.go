// Package repo implements the data persistence layer for domain entities,
// backed by GORM. This file provides small aggregate queries used for
// conditional responses (ETag generation) in the HTTP layer.
package repo

import (
	"context"
	"time"

	"gorm.io/gorm"

	"github.com/tbourn/go-group-notify/internal/domain"
)

// DeliveriesStats returns the number of delivery records created at or after
// since and the greatest UpdatedAt among them. Status callbacks bump
// UpdatedAt, so the pair changes whenever the history view would.
//
// When no rows match, count is 0 and maxUpdatedAt is nil.
func DeliveriesStats(ctx context.Context, db *gorm.DB, since time.Time) (count int64, maxUpdatedAt *time.Time, err error) {
	q := db.WithContext(ctx).Model(&domain.DeliveryRecord{}).Where("created_at >= ?", since.UTC())

	if err = q.Count(&count).Error; err != nil {
		return 0, nil, err
	}
	if count == 0 {
		return 0, nil, nil
	}

	// Get latest updated_at (avoid MAX() -> TEXT in SQLite)
	var row struct {
		UpdatedAt time.Time
	}
	if err = q.Select("updated_at").Order("updated_at DESC").Limit(1).Scan(&row).Error; err != nil {
		return 0, nil, err
	}
	return count, &row.UpdatedAt, nil
}
