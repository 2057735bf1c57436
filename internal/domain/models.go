// Package domain defines the persistence models for outbound notifications
// and the roster they are addressed to. These types are mapped with GORM and
// form the core data layer of the group messaging engine.
package domain

import (
	"time"
)

// Channel identifies the transport a delivery record was sent over.
type Channel string

// ChannelSMS is the only channel the engine dispatches on today.
const ChannelSMS Channel = "sms"

// Status is the lifecycle state of a DeliveryRecord.
//
// The forward order is queued → sending → sent → {delivered | failed}.
// delivered and failed are terminal: once reached, no further transition
// is applied.
type Status string

const (
	StatusQueued    Status = "queued"
	StatusSending   Status = "sending"
	StatusSent      Status = "sent"
	StatusDelivered Status = "delivered"
	StatusFailed    Status = "failed"
)

// Terminal reports whether s is delivered or failed.
func (s Status) Terminal() bool {
	return s == StatusDelivered || s == StatusFailed
}

// Pending reports whether s is one of the optional pre-send states.
func (s Status) Pending() bool {
	return s == StatusQueued || s == StatusSending
}

// Valid reports whether s is a known status.
func (s Status) Valid() bool {
	switch s {
	case StatusQueued, StatusSending, StatusSent, StatusDelivered, StatusFailed:
		return true
	}
	return false
}

// rank orders statuses along the forward path. Both terminal states share
// the highest rank.
func (s Status) rank() int {
	switch s {
	case StatusQueued:
		return 1
	case StatusSending:
		return 2
	case StatusSent:
		return 3
	case StatusDelivered, StatusFailed:
		return 4
	}
	return 0
}

// Precedes returns the statuses a record may currently hold for a transition
// to s to be applied. Terminal targets accept every non-terminal state;
// non-terminal targets accept only strictly earlier states.
func (s Status) Precedes() []Status {
	var out []Status
	for _, cur := range []Status{StatusQueued, StatusSending, StatusSent} {
		if cur.rank() < s.rank() {
			out = append(out, cur)
		}
	}
	return out
}

// DeliveryRecord is the durable per-recipient record of one dispatch attempt
// and its outcome. It is created exactly once per (recipient, send event)
// by the dispatcher; afterwards only the delivery status reconciler mutates
// it, in place.
//
// Fields:
//   - ID: UUID primary key.
//   - ProviderRef: provider-assigned message id, unique when present. Used
//     to match asynchronous status callbacks.
//   - GroupID / SendEventID: set for group sends, nil for direct messages.
//   - SentAt / DeliveredAt / FailedAt: timestamps of the matching status.
//   - FailureReason / ErrorCode: provider error detail for failed records.
type DeliveryRecord struct {
	ID            string     `json:"id"                       gorm:"type:char(36);primaryKey"`
	Channel       Channel    `json:"channel"                  gorm:"type:varchar(16);not null;default:'sms'"`
	RecipientID   string     `json:"recipient_id"             gorm:"type:varchar(64);not null;index"`
	RecipientRole Role       `json:"recipient_role"           gorm:"type:varchar(16);not null"`
	PhoneNumber   string     `json:"phone_number"             gorm:"type:varchar(32);not null"`
	Content       string     `json:"content"                  gorm:"type:text;not null"`
	GroupID       *string    `json:"group_id,omitempty"       gorm:"type:varchar(64);index:idx_delivery_group_created,priority:1"`
	SendEventID   *string    `json:"send_event_id,omitempty"  gorm:"type:char(36);index"`
	CreatedAt     time.Time  `json:"created_at"               gorm:"not null;index;index:idx_delivery_group_created,priority:2"`
	UpdatedAt     time.Time  `json:"updated_at"`
	Status        Status     `json:"status"                   gorm:"type:varchar(16);not null;index;check:status IN ('queued','sending','sent','delivered','failed')"`
	ProviderRef   *string    `json:"provider_ref,omitempty"   gorm:"type:varchar(64);uniqueIndex"`
	SentAt        *time.Time `json:"sent_at,omitempty"`
	DeliveredAt   *time.Time `json:"delivered_at,omitempty"`
	FailedAt      *time.Time `json:"failed_at,omitempty"`
	FailureReason *string    `json:"failure_reason,omitempty" gorm:"type:text"`
	ErrorCode     *string    `json:"error_code,omitempty"     gorm:"type:varchar(32)"`
}

// TableName returns the database table name for DeliveryRecord.
func (DeliveryRecord) TableName() string { return "delivery_records" }

// SendEvent summarizes one group dispatch. It is written once, after every
// recipient in the batch has an outcome, and carries the counts that cannot
// be reconstructed from the delivery records alone (skipped, duplicates).
type SendEvent struct {
	ID               string    `json:"id"                      gorm:"type:char(36);primaryKey"`
	GroupID          string    `json:"group_id"                gorm:"type:varchar(64);not null;index"`
	Body             string    `json:"body"                    gorm:"type:text;not null"`
	GuardianBody     *string   `json:"guardian_body,omitempty" gorm:"type:text"`
	IncludeGuardians bool      `json:"include_guardians"       gorm:"not null;default:false"`
	SentCount        int       `json:"sent"                    gorm:"not null;default:0"`
	FailedCount      int       `json:"failed"                  gorm:"not null;default:0"`
	SkippedCount     int       `json:"skipped"                 gorm:"not null;default:0"`
	DuplicateCount   int       `json:"duplicates_removed"      gorm:"not null;default:0"`
	CreatedAt        time.Time `json:"created_at"              gorm:"not null;index"`
}

// TableName returns the database table name for SendEvent.
func (SendEvent) TableName() string { return "send_events" }
