// Package services – Reconciler
//
// This file applies the provider's asynchronous delivery reports. A
// callback is verified, mapped to a planned transition without touching
// storage, and the transition is then applied by a single compare-and-set
// update, so duplicate or reordered callbacks cannot move a record twice
// or backwards.
package services

import (
	"context"
	"errors"
	"net/url"
	"strings"
	"time"

	"github.com/rs/zerolog"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"
	"gorm.io/gorm"

	"github.com/tbourn/go-group-notify/internal/domain"
	"github.com/tbourn/go-group-notify/internal/provider"
	"github.com/tbourn/go-group-notify/internal/repo"
)

// Callback form fields sent by the provider.
const (
	FieldMessageSID    = "MessageSid"
	FieldSmsSID        = "SmsSid"
	FieldMessageStatus = "MessageStatus"
	FieldSmsStatus     = "SmsStatus"
	FieldErrorCode     = "ErrorCode"
	FieldErrorMessage  = "ErrorMessage"
)

// CallbackResult is what the webhook answers.
type CallbackResult struct {
	ProviderRef string        `json:"provider_ref"`
	Status      domain.Status `json:"status"`
	Applied     bool          `json:"applied"`
}

// MapProviderStatus translates a provider status string. The second return
// is false for statuses the engine does not know.
func MapProviderStatus(s string) (domain.Status, bool) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "queued", "accepted", "scheduled":
		return domain.StatusQueued, true
	case "sending":
		return domain.StatusSending, true
	case "sent":
		return domain.StatusSent, true
	case "delivered", "read":
		return domain.StatusDelivered, true
	case "failed", "undelivered", "canceled":
		return domain.StatusFailed, true
	}
	return "", false
}

// PlanTransition validates a callback and describes the mutation it asks
// for. It performs no I/O.
//
// Errors: ErrInvalidSignature, ErrMalformedCallback.
func PlanTransition(authToken, callbackURL string, params url.Values, signature string, at time.Time) (repo.Transition, error) {
	if !provider.ValidateSignature(authToken, callbackURL, params, signature) {
		return repo.Transition{}, Errorf(KindInvalidSignature, "signature does not match request")
	}

	ref := strings.TrimSpace(params.Get(FieldMessageSID))
	if ref == "" {
		ref = strings.TrimSpace(params.Get(FieldSmsSID))
	}
	if ref == "" {
		return repo.Transition{}, Errorf(KindMalformedCallback, "missing %s", FieldMessageSID)
	}

	raw := params.Get(FieldMessageStatus)
	if raw == "" {
		raw = params.Get(FieldSmsStatus)
	}
	to, ok := MapProviderStatus(raw)
	if !ok {
		return repo.Transition{}, Errorf(KindMalformedCallback, "unknown status %q", raw)
	}

	t := repo.Transition{ProviderRef: ref, To: to, At: at.UTC()}
	if to == domain.StatusFailed {
		reason := strings.ToLower(strings.TrimSpace(raw))
		if msg := strings.TrimSpace(params.Get(FieldErrorMessage)); msg != "" {
			reason = reason + ": " + msg
		}
		t.FailureReason = &reason
	}
	if code := strings.TrimSpace(params.Get(FieldErrorCode)); code != "" {
		t.ErrorCode = &code
	}
	return t, nil
}

// Reconciler applies verified status callbacks to delivery records.
type Reconciler struct {
	DB        *gorm.DB
	AuthToken string
	Logger    zerolog.Logger
	Now       func() time.Time
}

// ApplyCallback verifies and applies one callback. callbackURL must be the
// exact URL the provider posted to. A reference no record carries is not an
// error: the result has Applied=false.
func (r *Reconciler) ApplyCallback(ctx context.Context, params url.Values, callbackURL, signature string) (*CallbackResult, error) {
	tr := otel.Tracer("services/Reconciler")
	ctx, span := tr.Start(ctx, "ApplyCallback",
		trace.WithSpanKind(trace.SpanKindServer),
		trace.WithAttributes(attribute.Int("callback.fields", len(params))),
	)
	defer span.End()

	now := time.Now()
	if r.Now != nil {
		now = r.Now()
	}

	t, err := PlanTransition(r.AuthToken, callbackURL, params, signature, now)
	if err != nil {
		switch KindOf(err) {
		case KindInvalidSignature:
			callbacksTotal.WithLabelValues("invalid_signature").Inc()
			r.Logger.Warn().Str("url", callbackURL).Msg("status callback rejected: invalid signature")
		default:
			callbacksTotal.WithLabelValues("malformed").Inc()
			r.Logger.Warn().Err(err).Msg("status callback rejected")
		}
		return nil, err
	}
	span.SetAttributes(
		attribute.String("provider.ref", t.ProviderRef),
		attribute.String("status", string(t.To)),
	)

	applied, err := repo.ApplyTransition(ctx, r.DB, t)
	if err != nil {
		callbacksTotal.WithLabelValues("error").Inc()
		return nil, err
	}

	res := &CallbackResult{ProviderRef: t.ProviderRef, Status: t.To, Applied: applied}
	if applied {
		callbacksTotal.WithLabelValues("applied").Inc()
		r.Logger.Debug().Str("provider_ref", t.ProviderRef).Str("status", string(t.To)).Msg("delivery status applied")
		return res, nil
	}

	// Distinguish an unknown reference from a no-op for the logs only.
	if _, lerr := repo.GetDeliveryByProviderRef(ctx, r.DB, t.ProviderRef); errors.Is(lerr, repo.ErrNotFound) {
		callbacksTotal.WithLabelValues("unknown_ref").Inc()
		r.Logger.Info().Str("provider_ref", t.ProviderRef).Msg("status callback for unknown message")
	} else {
		callbacksTotal.WithLabelValues("noop").Inc()
	}
	return res, nil
}
