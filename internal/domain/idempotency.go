package domain

import "time"

// Idempotency represents a recorded result of a previously processed
// dispatch, keyed by (caller_id, scope, key). Scope is the dispatch target
// (group or person id); ResultID is the send event id for group dispatches
// and the delivery record id for direct messages. It enables safe retries of
// send requests by returning the originally produced result without
// contacting the provider again.
type Idempotency struct {
	ID        string    `gorm:"type:varchar(36);primaryKey"`
	CallerID  string    `gorm:"type:varchar(128);not null;uniqueIndex:ux_caller_scope_key,priority:1"`
	Scope     string    `gorm:"type:varchar(64);not null;uniqueIndex:ux_caller_scope_key,priority:2"`
	Key       string    `gorm:"type:varchar(128);not null;uniqueIndex:ux_caller_scope_key,priority:3"`
	ResultID  string    `gorm:"type:varchar(36);not null"`
	Status    int       `gorm:"not null"`
	CreatedAt time.Time `gorm:"not null;autoCreateTime"`
	ExpiresAt time.Time `gorm:"not null;index"`
}

// TableName implements the GORM tabler interface.
func (Idempotency) TableName() string { return "idempotency" }
