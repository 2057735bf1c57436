// Package services – History
//
// This file turns per-recipient delivery records into the history view:
// one row per group send and one row per individual message. Group sends
// are identified by their send event id; records written without one fall
// back to the (group, content, minute) bucket, which can merge two
// identical sends made within the same minute.
package services

import (
	"context"
	"errors"
	"sort"
	"time"

	"github.com/rs/zerolog"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"
	"gorm.io/gorm"

	"github.com/tbourn/go-group-notify/internal/domain"
	"github.com/tbourn/go-group-notify/internal/repo"
)

// History entry kinds.
const (
	EntryGroup      = "group"
	EntryIndividual = "individual"
)

// History paging defaults.
const (
	DefaultSinceDays    = 30
	DefaultHistoryLimit = 50
	MaxHistoryLimit     = 200
)

// StatusCounts partitions records by current status. Pending is queued
// plus sending.
type StatusCounts struct {
	Sent      int `json:"sent"`
	Delivered int `json:"delivered"`
	Failed    int `json:"failed"`
	Pending   int `json:"pending"`
}

func (c *StatusCounts) add(s domain.Status) {
	switch s {
	case domain.StatusSent:
		c.Sent++
	case domain.StatusDelivered:
		c.Delivered++
	case domain.StatusFailed:
		c.Failed++
	case domain.StatusQueued, domain.StatusSending:
		c.Pending++
	}
}

// HistoryEntry is one row of the history view. Group rows carry counts;
// individual rows carry the recipient and its current status.
type HistoryEntry struct {
	Kind      string    `json:"kind"`
	ID        string    `json:"id"`
	CreatedAt time.Time `json:"created_at"`
	Content   string    `json:"content"`

	GroupID           string        `json:"group_id,omitempty"`
	SendEventID       string        `json:"send_event_id,omitempty"`
	TotalRecipients   int           `json:"total_recipients,omitempty"`
	Counts            *StatusCounts `json:"counts,omitempty"`
	Skipped           int           `json:"skipped,omitempty"`
	DuplicatesRemoved int           `json:"duplicates_removed,omitempty"`

	RecipientID   string        `json:"recipient_id,omitempty"`
	RecipientName string        `json:"recipient_name,omitempty"`
	PhoneNumber   string        `json:"phone_number,omitempty"`
	Status        domain.Status `json:"status,omitempty"`
	ProviderRef   string        `json:"provider_ref,omitempty"`
	FailureReason string        `json:"failure_reason,omitempty"`
}

// History aggregates delivery records for reporting.
type History struct {
	DB     *gorm.DB
	Dir    Directory
	Logger zerolog.Logger
	Now    func() time.Time
}

// NormalizeWindow applies defaults and bounds to history paging input.
func NormalizeWindow(sinceDays, limit, offset int) (int, int, int) {
	if sinceDays <= 0 {
		sinceDays = DefaultSinceDays
	}
	if limit <= 0 {
		limit = DefaultHistoryLimit
	}
	if limit > MaxHistoryLimit {
		limit = MaxHistoryLimit
	}
	if offset < 0 {
		offset = 0
	}
	return sinceDays, limit, offset
}

// Since returns the lower creation bound for a sinceDays window.
func (h *History) Since(sinceDays int) time.Time {
	now := time.Now()
	if h.Now != nil {
		now = h.Now()
	}
	return now.UTC().AddDate(0, 0, -sinceDays)
}

// Summarize returns the history rows of the last sinceDays days, newest
// first, after applying offset and limit.
func (h *History) Summarize(ctx context.Context, sinceDays, limit, offset int) ([]HistoryEntry, error) {
	tr := otel.Tracer("services/History")
	ctx, span := tr.Start(ctx, "Summarize",
		trace.WithAttributes(
			attribute.Int("since_days", sinceDays),
			attribute.Int("limit", limit),
			attribute.Int("offset", offset),
		),
	)
	defer span.End()

	sinceDays, limit, offset = NormalizeWindow(sinceDays, limit, offset)
	recs, err := repo.ListDeliveriesSince(ctx, h.DB, h.Since(sinceDays))
	if err != nil {
		return nil, err
	}

	entries := Aggregate(recs)
	if err := h.enrich(ctx, entries); err != nil {
		return nil, err
	}
	span.SetAttributes(attribute.Int("entries", len(entries)))

	if offset >= len(entries) {
		return []HistoryEntry{}, nil
	}
	end := min(offset+limit, len(entries))
	return entries[offset:end], nil
}

// enrich adds send event counts to group rows and display names to
// individual rows.
func (h *History) enrich(ctx context.Context, entries []HistoryEntry) error {
	var ids []string
	for _, e := range entries {
		if e.SendEventID != "" {
			ids = append(ids, e.SendEventID)
		}
	}
	events, err := repo.ListSendEvents(ctx, h.DB, ids)
	if err != nil {
		return err
	}
	byID := make(map[string]domain.SendEvent, len(events))
	for _, ev := range events {
		byID[ev.ID] = ev
	}

	names := map[string]string{}
	for i := range entries {
		e := &entries[i]
		if ev, ok := byID[e.SendEventID]; ok {
			e.Content = ev.Body
			e.Skipped = ev.SkippedCount
			e.DuplicatesRemoved = ev.DuplicateCount
		}
		if e.Kind != EntryIndividual || h.Dir == nil {
			continue
		}
		name, seen := names[e.RecipientID]
		if !seen {
			rec, err := h.Dir.GetPerson(ctx, e.RecipientID)
			switch {
			case err == nil:
				name = rec.DisplayName
			case !errors.Is(err, repo.ErrNotFound):
				h.Logger.Warn().Err(err).Str("recipient_id", e.RecipientID).Msg("history name lookup")
			}
			names[e.RecipientID] = name
		}
		e.RecipientName = name
	}
	return nil
}

// Aggregate groups records into history rows sorted by creation time,
// newest first. Records with a group but no send event are bucketed by
// (group, content, minute).
func Aggregate(recs []domain.DeliveryRecord) []HistoryEntry {
	type bucketKey struct {
		groupID string
		content string
		minute  int64
	}

	var out []HistoryEntry
	byEvent := map[string]int{}
	byBucket := map[bucketKey]int{}

	for _, r := range recs {
		if r.GroupID == nil {
			out = append(out, individualEntry(r))
			continue
		}

		var idx int
		var ok bool
		if r.SendEventID != nil {
			idx, ok = byEvent[*r.SendEventID]
			if !ok {
				idx = len(out)
				byEvent[*r.SendEventID] = idx
				out = append(out, HistoryEntry{
					Kind: EntryGroup, ID: *r.SendEventID, SendEventID: *r.SendEventID,
					GroupID: *r.GroupID, CreatedAt: r.CreatedAt, Content: r.Content, Counts: &StatusCounts{},
				})
			}
		} else {
			minute := r.CreatedAt.UTC().Truncate(time.Minute)
			k := bucketKey{groupID: *r.GroupID, content: r.Content, minute: minute.Unix()}
			idx, ok = byBucket[k]
			if !ok {
				idx = len(out)
				byBucket[k] = idx
				out = append(out, HistoryEntry{
					Kind: EntryGroup, ID: r.ID, GroupID: *r.GroupID,
					CreatedAt: r.CreatedAt, Content: r.Content, Counts: &StatusCounts{},
				})
			}
		}

		e := &out[idx]
		e.TotalRecipients++
		e.Counts.add(r.Status)
		if r.CreatedAt.Before(e.CreatedAt) {
			e.CreatedAt = r.CreatedAt
		}
		// prefer the non-guardian text as the row's content
		if r.SendEventID != nil && r.RecipientRole != domain.RoleGuardian {
			e.Content = r.Content
		}
	}

	sort.SliceStable(out, func(i, j int) bool {
		if !out[i].CreatedAt.Equal(out[j].CreatedAt) {
			return out[i].CreatedAt.After(out[j].CreatedAt)
		}
		return out[i].ID > out[j].ID
	})
	return out
}

func individualEntry(r domain.DeliveryRecord) HistoryEntry {
	e := HistoryEntry{
		Kind:        EntryIndividual,
		ID:          r.ID,
		CreatedAt:   r.CreatedAt,
		Content:     r.Content,
		RecipientID: r.RecipientID,
		PhoneNumber: r.PhoneNumber,
		Status:      r.Status,
	}
	if r.ProviderRef != nil {
		e.ProviderRef = *r.ProviderRef
	}
	if r.FailureReason != nil {
		e.FailureReason = *r.FailureReason
	}
	return e
}
