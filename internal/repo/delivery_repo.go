// Package repo implements the data persistence layer for domain entities,
// backed by GORM. This file provides repository functions for delivery
// records and send events.
//
// Records are written once by the dispatcher and afterwards only mutated
// through ApplyTransition, which performs an atomic compare-and-set on the
// status column so concurrent callbacks for the same provider reference can
// never both apply.
package repo

import (
	"context"
	"errors"
	"time"

	"gorm.io/gorm"

	"github.com/tbourn/go-group-notify/internal/domain"
)

// Transition describes a status change to apply to the record identified by
// ProviderRef. It is produced without touching storage and applied
// atomically by ApplyTransition.
type Transition struct {
	ProviderRef   string
	To            domain.Status
	At            time.Time
	FailureReason *string
	ErrorCode     *string
}

// CreateDeliveryRecord inserts rec. ID and CreatedAt must already be set.
func CreateDeliveryRecord(ctx context.Context, db *gorm.DB, rec *domain.DeliveryRecord) error {
	return db.WithContext(ctx).Create(rec).Error
}

// GetDeliveryRecord fetches a record by its id, or ErrNotFound.
func GetDeliveryRecord(ctx context.Context, db *gorm.DB, id string) (*domain.DeliveryRecord, error) {
	var rec domain.DeliveryRecord
	err := db.WithContext(ctx).Where("id = ?", id).First(&rec).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, err
	}
	return &rec, nil
}

// GetDeliveryByProviderRef fetches a record by provider reference, or
// ErrNotFound.
func GetDeliveryByProviderRef(ctx context.Context, db *gorm.DB, ref string) (*domain.DeliveryRecord, error) {
	var rec domain.DeliveryRecord
	err := db.WithContext(ctx).Where("provider_ref = ?", ref).First(&rec).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, err
	}
	return &rec, nil
}

// ApplyTransition moves the record to t.To only if its current status is one
// of t.To.Precedes(). The check and the write are a single UPDATE, so a
// concurrent duplicate callback sees zero affected rows. It reports whether
// a row changed.
func ApplyTransition(ctx context.Context, db *gorm.DB, t Transition) (bool, error) {
	from := t.To.Precedes()
	if len(from) == 0 {
		return false, nil
	}
	at := t.At.UTC()
	updates := map[string]any{
		"status":     t.To,
		"updated_at": at,
	}
	switch t.To {
	case domain.StatusSent:
		updates["sent_at"] = at
	case domain.StatusDelivered:
		updates["delivered_at"] = at
	case domain.StatusFailed:
		updates["failed_at"] = at
		if t.FailureReason != nil {
			updates["failure_reason"] = *t.FailureReason
		}
		if t.ErrorCode != nil {
			updates["error_code"] = *t.ErrorCode
		}
	}

	res := db.WithContext(ctx).
		Model(&domain.DeliveryRecord{}).
		Where("provider_ref = ? AND status IN ?", t.ProviderRef, from).
		Updates(updates)
	if res.Error != nil {
		return false, res.Error
	}
	return res.RowsAffected == 1, nil
}

// ListDeliveriesSince returns records created at or after since, newest
// first (CreatedAt DESC, ID DESC).
func ListDeliveriesSince(ctx context.Context, db *gorm.DB, since time.Time) ([]domain.DeliveryRecord, error) {
	var out []domain.DeliveryRecord
	err := db.WithContext(ctx).
		Where("created_at >= ?", since.UTC()).
		Order("created_at DESC, id DESC").
		Find(&out).Error
	return out, err
}

// ListDeliveriesBySendEvent returns the records of one send event in
// creation order.
func ListDeliveriesBySendEvent(ctx context.Context, db *gorm.DB, sendEventID string) ([]domain.DeliveryRecord, error) {
	var out []domain.DeliveryRecord
	err := db.WithContext(ctx).
		Where("send_event_id = ?", sendEventID).
		Order("created_at ASC, id ASC").
		Find(&out).Error
	return out, err
}

// CreateSendEvent inserts ev.
func CreateSendEvent(ctx context.Context, db *gorm.DB, ev *domain.SendEvent) error {
	return db.WithContext(ctx).Create(ev).Error
}

// GetSendEvent fetches a send event by id, or ErrNotFound.
func GetSendEvent(ctx context.Context, db *gorm.DB, id string) (*domain.SendEvent, error) {
	var ev domain.SendEvent
	err := db.WithContext(ctx).Where("id = ?", id).First(&ev).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, err
	}
	return &ev, nil
}

// ListSendEvents returns the send events with the given ids, in no
// particular order. Unknown ids are ignored.
func ListSendEvents(ctx context.Context, db *gorm.DB, ids []string) ([]domain.SendEvent, error) {
	if len(ids) == 0 {
		return nil, nil
	}
	var out []domain.SendEvent
	err := db.WithContext(ctx).Where("id IN ?", ids).Find(&out).Error
	return out, err
}
