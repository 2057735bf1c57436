// Package services – Dispatcher
//
// This file implements the fan-out send path: a group (or single person) is
// resolved into recipients, admitted once against the rate window, and then
// every recipient is sent to through a bounded worker pool. Each recipient
// produces exactly one DeliveryRecord, sent or failed; a failed recipient
// never aborts the rest of the batch.
package services

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
	"golang.org/x/sync/errgroup"
	"gorm.io/gorm"

	"github.com/tbourn/go-group-notify/internal/domain"
	"github.com/tbourn/go-group-notify/internal/provider"
	"github.com/tbourn/go-group-notify/internal/repo"
)

const (
	defaultWorkers     = 4
	defaultSendTimeout = 10 * time.Second
)

// RecipientResult is the outcome of one recipient within a dispatch.
type RecipientResult struct {
	DeliveryID  string      `json:"delivery_id,omitempty"`
	RecipientID string      `json:"recipient_id"`
	PhoneNumber string      `json:"phone_number"`
	Role        domain.Role `json:"role"`
	Success     bool        `json:"success"`
	Content     string      `json:"content"`
	ProviderRef string      `json:"provider_ref,omitempty"`

	// ErrorKind is channel_send_error for failed recipients.
	ErrorKind Kind   `json:"error_kind,omitempty"`
	Error     string `json:"error,omitempty"`

	// Untracked is set when the provider accepted the message but its
	// delivery record could not be written, so status callbacks for it
	// will not be applied.
	Untracked bool `json:"untracked,omitempty"`
}

// Err returns the recipient's failure as an *Error, or nil on success.
func (r RecipientResult) Err() error {
	if r.Success {
		return nil
	}
	k := r.ErrorKind
	if k == "" {
		k = KindChannelSend
	}
	return &Error{Kind: k, Detail: r.Error}
}

// DispatchResult aggregates a dispatch. Sent+Failed equals the number of
// recipients that survived filtering and deduplication.
type DispatchResult struct {
	SendEventID       string            `json:"send_event_id,omitempty"`
	Sent              int               `json:"sent"`
	Failed            int               `json:"failed"`
	Skipped           int               `json:"skipped"`
	DuplicatesRemoved int               `json:"duplicates_removed"`
	Results           []RecipientResult `json:"results"`
}

// Dispatcher drives sends through the channel sender and records outcomes.
type Dispatcher struct {
	DB       *gorm.DB
	Resolver *Resolver
	Sender   provider.Sender
	Limiter  *Limiter
	Composer Composer

	// Workers bounds concurrent provider calls per batch.
	Workers int
	// SendTimeout bounds each provider call. A timeout is a failed send.
	SendTimeout time.Duration

	Logger zerolog.Logger

	// Now and NewID are overridable for tests.
	Now   func() time.Time
	NewID func() string
}

func (d *Dispatcher) now() time.Time {
	if d.Now != nil {
		return d.Now().UTC()
	}
	return time.Now().UTC()
}

func (d *Dispatcher) newID() string {
	if d.NewID != nil {
		return d.NewID()
	}
	return uuid.NewString()
}

// job is one recipient queued for delivery.
type job struct {
	rec       domain.Recipient
	content   string
	groupID   *string
	eventID   *string
	createdAt time.Time
}

// Send dispatches req to every eligible member of req.GroupID.
//
// Batch errors (ErrInvalidRequest, ErrGroupNotFound,
// ErrNoEligibleRecipients, ErrRateLimitExceeded) are returned before any
// provider call and leave no records behind. Per-recipient failures are
// reported in the result only.
func (d *Dispatcher) Send(ctx context.Context, req domain.SendRequest) (res *DispatchResult, err error) {
	tr := otel.Tracer("services/Dispatcher")
	ctx, span := tr.Start(ctx, "Send",
		trace.WithAttributes(
			attribute.String("group.id", req.GroupID),
			attribute.Bool("include_guardians", req.IncludeGuardians),
		),
	)
	defer span.End()
	defer func() {
		dispatchBatches.WithLabelValues(outcomeLabel(err)).Inc()
		if err != nil {
			span.SetStatus(codes.Error, err.Error())
		}
	}()

	if strings.TrimSpace(req.Body) == "" {
		return nil, Errorf(KindInvalidRequest, "body is empty")
	}
	if req.GuardianBody != nil {
		if !req.IncludeGuardians {
			return nil, Errorf(KindInvalidRequest, "guardian_body requires include_guardians")
		}
		if strings.TrimSpace(*req.GuardianBody) == "" {
			return nil, Errorf(KindInvalidRequest, "guardian_body is empty")
		}
	}

	resolved, err := d.Resolver.Resolve(ctx, req.GroupID, req.IncludeGuardians)
	if err != nil {
		return nil, err
	}
	if err := d.admit(); err != nil {
		return nil, err
	}

	eventID := d.newID()
	createdAt := d.now()
	groupID := req.GroupID

	names := make(map[string]string, len(resolved.Members))
	for _, m := range resolved.Members {
		names[m.ID] = m.DisplayName
	}

	all := resolved.All()
	jobs := make([]job, len(all))
	for i, rec := range all {
		jobs[i] = job{
			rec:       rec,
			content:   d.Composer.Content(rec, req.Body, req.GuardianBody, names[rec.LinkedYouthID]),
			groupID:   &groupID,
			eventID:   &eventID,
			createdAt: createdAt,
		}
	}

	out := &DispatchResult{
		SendEventID:       eventID,
		Skipped:           resolved.Skipped,
		DuplicatesRemoved: resolved.Duplicates,
		Results:           d.run(ctx, jobs),
	}
	out.tally()

	ev := &domain.SendEvent{
		ID:               eventID,
		GroupID:          req.GroupID,
		Body:             req.Body,
		GuardianBody:     req.GuardianBody,
		IncludeGuardians: req.IncludeGuardians,
		SentCount:        out.Sent,
		FailedCount:      out.Failed,
		SkippedCount:     out.Skipped,
		DuplicateCount:   out.DuplicatesRemoved,
		CreatedAt:        createdAt,
	}
	if werr := repo.CreateSendEvent(context.WithoutCancel(ctx), d.DB, ev); werr != nil {
		d.Logger.Error().Err(werr).Str("send_event_id", eventID).Msg("persist send event")
	}

	span.SetAttributes(
		attribute.String("send_event.id", eventID),
		attribute.Int("sent", out.Sent),
		attribute.Int("failed", out.Failed),
		attribute.Int("skipped", out.Skipped),
		attribute.Int("duplicates", out.DuplicatesRemoved),
	)
	d.Logger.Info().
		Str("send_event_id", eventID).
		Str("group_id", req.GroupID).
		Int("sent", out.Sent).
		Int("failed", out.Failed).
		Int("skipped", out.Skipped).
		Int("duplicates", out.DuplicatesRemoved).
		Msg("group dispatch complete")
	return out, nil
}

// SendDirect dispatches req to a single person. The record carries no group
// or send event.
func (d *Dispatcher) SendDirect(ctx context.Context, req domain.DirectRequest) (res *DispatchResult, err error) {
	tr := otel.Tracer("services/Dispatcher")
	ctx, span := tr.Start(ctx, "SendDirect",
		trace.WithAttributes(attribute.String("person.id", req.PersonID)),
	)
	defer span.End()
	defer func() {
		dispatchBatches.WithLabelValues(outcomeLabel(err)).Inc()
		if err != nil {
			span.SetStatus(codes.Error, err.Error())
		}
	}()

	if strings.TrimSpace(req.Body) == "" {
		return nil, Errorf(KindInvalidRequest, "body is empty")
	}
	rec, err := d.Resolver.ResolvePerson(ctx, req.PersonID)
	if err != nil {
		return nil, err
	}
	if err := d.admit(); err != nil {
		return nil, err
	}

	out := &DispatchResult{
		Results: d.run(ctx, []job{{rec: rec, content: req.Body, createdAt: d.now()}}),
	}
	out.tally()
	return out, nil
}

func (d *Dispatcher) admit() error {
	if d.Limiter == nil || d.Limiter.Admit() {
		return nil
	}
	wait := d.Limiter.RetryAfter()
	d.Logger.Warn().Dur("retry_after", wait).Msg("dispatch rejected by rate window")
	return Errorf(KindRateLimitExceeded, "hourly send limit reached, retry in %s", wait.Round(time.Second))
}

// run sends every job through a bounded pool and returns results in job
// order.
func (d *Dispatcher) run(ctx context.Context, jobs []job) []RecipientResult {
	workers := d.Workers
	if workers <= 0 {
		workers = defaultWorkers
	}
	results := make([]RecipientResult, len(jobs))

	var g errgroup.Group
	g.SetLimit(workers)
	for i := range jobs {
		g.Go(func() error {
			results[i] = d.deliver(ctx, jobs[i])
			return nil
		})
	}
	_ = g.Wait()
	return results
}

// deliver makes the single provider attempt for j and writes its record.
// Once a batch has started, caller cancellation does not stop it; only
// SendTimeout bounds each call.
func (d *Dispatcher) deliver(ctx context.Context, j job) RecipientResult {
	base := context.WithoutCancel(ctx)
	timeout := d.SendTimeout
	if timeout <= 0 {
		timeout = defaultSendTimeout
	}

	sendCtx, cancel := context.WithTimeout(base, timeout)
	start := time.Now()
	pres, err := d.Sender.Send(sendCtx, j.rec.PhoneNumber, j.content)
	cancel()
	providerSendDuration.Observe(time.Since(start).Seconds())

	now := d.now()
	rec := &domain.DeliveryRecord{
		ID:            d.newID(),
		Channel:       domain.ChannelSMS,
		RecipientID:   j.rec.ID,
		RecipientRole: j.rec.Role,
		PhoneNumber:   j.rec.PhoneNumber,
		Content:       j.content,
		GroupID:       j.groupID,
		SendEventID:   j.eventID,
		CreatedAt:     j.createdAt,
		UpdatedAt:     now,
	}
	out := RecipientResult{
		DeliveryID:  rec.ID,
		RecipientID: j.rec.ID,
		PhoneNumber: j.rec.PhoneNumber,
		Role:        j.rec.Role,
		Content:     j.content,
	}

	switch {
	case err == nil && pres.Accepted:
		ref := pres.ProviderRef
		rec.Status = domain.StatusSent
		rec.SentAt = &now
		if ref != "" {
			rec.ProviderRef = &ref
		}
		out.Success = true
		out.ProviderRef = ref
		if d.Limiter != nil {
			d.Limiter.RecordSuccess()
		}
	default:
		reason := failureReason(pres, err)
		rec.Status = domain.StatusFailed
		rec.FailedAt = &now
		rec.FailureReason = &reason
		if pres.ErrorCode != "" {
			code := pres.ErrorCode
			rec.ErrorCode = &code
		}
		out.ErrorKind = KindChannelSend
		out.Error = reason
		d.Logger.Warn().
			Str("recipient_id", j.rec.ID).
			Str("phone", MaskPhone(j.rec.PhoneNumber)).
			Str("reason", reason).
			Msg("send failed")
	}
	messagesTotal.WithLabelValues(string(j.rec.Role), string(rec.Status)).Inc()

	if werr := repo.CreateDeliveryRecord(base, d.DB, rec); werr != nil {
		recordWriteFailures.WithLabelValues(string(rec.Status)).Inc()
		d.Logger.Error().Err(werr).
			Str("recipient_id", j.rec.ID).
			Str("status", string(rec.Status)).
			Msg("persist delivery record")
		out.DeliveryID = ""
		out.Untracked = out.Success
	}
	return out
}

func failureReason(pres provider.Result, err error) string {
	switch {
	case errors.Is(err, context.DeadlineExceeded):
		return "provider timeout"
	case err != nil:
		return err.Error()
	case pres.Error != "":
		if pres.ErrorCode != "" {
			return fmt.Sprintf("%s (code %s)", pres.Error, pres.ErrorCode)
		}
		return pres.Error
	}
	return "rejected by provider"
}

func (r *DispatchResult) tally() {
	r.Sent, r.Failed = 0, 0
	for _, x := range r.Results {
		if x.Success {
			r.Sent++
		} else {
			r.Failed++
		}
	}
}

// LoadResult rebuilds the result of an earlier dispatch from storage. id is
// a send event id for group sends or a delivery record id for direct
// sends. It returns repo.ErrNotFound when neither exists.
func (d *Dispatcher) LoadResult(ctx context.Context, id string) (*DispatchResult, error) {
	ev, err := repo.GetSendEvent(ctx, d.DB, id)
	switch {
	case err == nil:
		recs, err := repo.ListDeliveriesBySendEvent(ctx, d.DB, id)
		if err != nil {
			return nil, err
		}
		out := &DispatchResult{
			SendEventID:       ev.ID,
			Sent:              ev.SentCount,
			Failed:            ev.FailedCount,
			Skipped:           ev.SkippedCount,
			DuplicatesRemoved: ev.DuplicateCount,
			Results:           make([]RecipientResult, 0, len(recs)),
		}
		for _, r := range recs {
			out.Results = append(out.Results, resultFromRecord(r))
		}
		return out, nil
	case !errors.Is(err, repo.ErrNotFound):
		return nil, err
	}

	rec, err := repo.GetDeliveryRecord(ctx, d.DB, id)
	if err != nil {
		return nil, err
	}
	out := &DispatchResult{Results: []RecipientResult{resultFromRecord(*rec)}}
	out.tally()
	return out, nil
}

// resultFromRecord reports the outcome as it was at send time: a record
// that was accepted counts as a success even if a callback later failed it.
func resultFromRecord(r domain.DeliveryRecord) RecipientResult {
	out := RecipientResult{
		DeliveryID:  r.ID,
		RecipientID: r.RecipientID,
		PhoneNumber: r.PhoneNumber,
		Role:        r.RecipientRole,
		Content:     r.Content,
		Success:     r.SentAt != nil,
	}
	if r.ProviderRef != nil {
		out.ProviderRef = *r.ProviderRef
	}
	if !out.Success {
		out.ErrorKind = KindChannelSend
		if r.FailureReason != nil {
			out.Error = *r.FailureReason
		}
	}
	return out
}
