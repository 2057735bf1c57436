package services

import (
	"context"
	"crypto/hmac"
	"crypto/sha1"
	"encoding/base64"
	"errors"
	"net/url"
	"sort"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/rs/zerolog"
	"gorm.io/gorm"

	"github.com/tbourn/go-group-notify/internal/domain"
	"github.com/tbourn/go-group-notify/internal/repo"
)

const (
	testToken = "secret-token"
	testURL   = "https://notify.example.com/webhooks/sms/status"
)

// signCallback signs p the way the provider does.
func signCallback(token, fullURL string, p url.Values) string {
	keys := make([]string, 0, len(p))
	for k := range p {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	s := fullURL
	for _, k := range keys {
		s += k + p.Get(k)
	}
	mac := hmac.New(sha1.New, []byte(token))
	mac.Write([]byte(s))
	return base64.StdEncoding.EncodeToString(mac.Sum(nil))
}

func callback(ref, status string, extra ...string) (url.Values, string) {
	p := url.Values{}
	if ref != "" {
		p.Set(FieldMessageSID, ref)
	}
	if status != "" {
		p.Set(FieldMessageStatus, status)
	}
	for i := 0; i+1 < len(extra); i += 2 {
		p.Set(extra[i], extra[i+1])
	}
	return p, signCallback(testToken, testURL, p)
}

func seedSent(t *testing.T, db *gorm.DB, id, ref string, at time.Time) {
	t.Helper()
	r := ref
	rec := &domain.DeliveryRecord{
		ID: id, Channel: domain.ChannelSMS, RecipientID: "p-" + id, RecipientRole: domain.RoleYouth,
		PhoneNumber: "+15551111111", Content: "hi", CreatedAt: at, UpdatedAt: at,
		Status: domain.StatusSent, ProviderRef: &r, SentAt: &at,
	}
	if err := repo.CreateDeliveryRecord(context.Background(), db, rec); err != nil {
		t.Fatalf("seed: %v", err)
	}
}

func newReconciler(t *testing.T, now time.Time) (*Reconciler, *gorm.DB) {
	t.Helper()
	db := newServiceDB(t)
	return &Reconciler{DB: db, AuthToken: testToken, Logger: zerolog.Nop(), Now: func() time.Time { return now }}, db
}

func TestMapProviderStatus(t *testing.T) {
	cases := map[string]domain.Status{
		"queued": domain.StatusQueued, "accepted": domain.StatusQueued, "scheduled": domain.StatusQueued,
		"sending": domain.StatusSending, "sent": domain.StatusSent,
		"delivered": domain.StatusDelivered, "read": domain.StatusDelivered,
		"failed": domain.StatusFailed, "Undelivered": domain.StatusFailed, "canceled": domain.StatusFailed,
	}
	for in, want := range cases {
		if got, ok := MapProviderStatus(in); !ok || got != want {
			t.Fatalf("MapProviderStatus(%q) = %q, %v; want %q", in, got, ok, want)
		}
	}
	if _, ok := MapProviderStatus("receiving"); ok {
		t.Fatalf("unknown status must not map")
	}
}

func TestPlanTransition(t *testing.T) {
	at := time.Date(2025, 1, 1, 0, 0, 0, 0, time.UTC)

	p, sig := callback("SM1", "undelivered", FieldErrorCode, "30003", FieldErrorMessage, "Unreachable")
	tr, err := PlanTransition(testToken, testURL, p, sig, at)
	if err != nil {
		t.Fatalf("PlanTransition: %v", err)
	}
	if tr.ProviderRef != "SM1" || tr.To != domain.StatusFailed || !tr.At.Equal(at) {
		t.Fatalf("unexpected plan: %+v", tr)
	}
	if tr.ErrorCode == nil || *tr.ErrorCode != "30003" || tr.FailureReason == nil || *tr.FailureReason != "undelivered: Unreachable" {
		t.Fatalf("failure detail: %+v", tr)
	}

	// legacy field names
	legacy := url.Values{FieldSmsSID: {"SM2"}, FieldSmsStatus: {"delivered"}}
	tr, err = PlanTransition(testToken, testURL, legacy, signCallback(testToken, testURL, legacy), at)
	if err != nil || tr.ProviderRef != "SM2" || tr.To != domain.StatusDelivered {
		t.Fatalf("legacy plan: %+v %v", tr, err)
	}

	p, _ = callback("SM1", "delivered")
	if _, err := PlanTransition(testToken, testURL, p, "forged", at); !errors.Is(err, ErrInvalidSignature) {
		t.Fatalf("expected ErrInvalidSignature, got %v", err)
	}
	p, sig = callback("", "delivered")
	if _, err := PlanTransition(testToken, testURL, p, sig, at); !errors.Is(err, ErrMalformedCallback) {
		t.Fatalf("expected ErrMalformedCallback for missing ref, got %v", err)
	}
	p, sig = callback("SM1", "exploded")
	if _, err := PlanTransition(testToken, testURL, p, sig, at); !errors.Is(err, ErrMalformedCallback) {
		t.Fatalf("expected ErrMalformedCallback for unknown status, got %v", err)
	}
}

func TestApplyCallback_IdempotentTerminal(t *testing.T) {
	sentAt := time.Date(2025, 2, 1, 18, 0, 0, 0, time.UTC)
	first := sentAt.Add(time.Minute)
	r, db := newReconciler(t, first)
	seedSent(t, db, "d1", "SM1", sentAt)

	p, sig := callback("SM1", "delivered")
	res, err := r.ApplyCallback(context.Background(), p, testURL, sig)
	if err != nil || !res.Applied || res.Status != domain.StatusDelivered || res.ProviderRef != "SM1" {
		t.Fatalf("first callback: %+v %v", res, err)
	}

	r.Now = func() time.Time { return first.Add(time.Hour) }
	res, err = r.ApplyCallback(context.Background(), p, testURL, sig)
	if err != nil || res.Applied {
		t.Fatalf("duplicate callback must be a no-op: %+v %v", res, err)
	}

	rec, _ := repo.GetDeliveryRecord(context.Background(), db, "d1")
	if rec.DeliveredAt == nil || !rec.DeliveredAt.Equal(first) || !rec.UpdatedAt.Equal(first) {
		t.Fatalf("timestamps changed: %+v", rec)
	}
}

func TestApplyCallback_OutOfOrderIgnored(t *testing.T) {
	at := time.Now().UTC()
	r, db := newReconciler(t, at)
	seedSent(t, db, "d1", "SM1", at)

	p, sig := callback("SM1", "failed", FieldErrorCode, "30005")
	if res, _ := r.ApplyCallback(context.Background(), p, testURL, sig); !res.Applied {
		t.Fatalf("failed should apply")
	}
	p, sig = callback("SM1", "delivered")
	if res, _ := r.ApplyCallback(context.Background(), p, testURL, sig); res.Applied {
		t.Fatalf("terminal record must not change")
	}
	p, sig = callback("SM1", "sending")
	if res, _ := r.ApplyCallback(context.Background(), p, testURL, sig); res.Applied {
		t.Fatalf("earlier status must not apply")
	}
	rec, _ := repo.GetDeliveryRecord(context.Background(), db, "d1")
	if rec.Status != domain.StatusFailed || rec.ErrorCode == nil || *rec.ErrorCode != "30005" {
		t.Fatalf("record: %+v", rec)
	}
}

func TestApplyCallback_UnknownRefTolerated(t *testing.T) {
	r, db := newReconciler(t, time.Now())
	seedSent(t, db, "d1", "SM1", time.Now().UTC())
	before := testutil.ToFloat64(callbacksTotal.WithLabelValues("unknown_ref"))

	p, sig := callback("SM-unknown", "delivered")
	res, err := r.ApplyCallback(context.Background(), p, testURL, sig)
	if err != nil || res.Applied {
		t.Fatalf("unknown ref: %+v %v", res, err)
	}
	if got := testutil.ToFloat64(callbacksTotal.WithLabelValues("unknown_ref")); got != before+1 {
		t.Fatalf("unknown_ref counter = %v", got)
	}
	rec, _ := repo.GetDeliveryRecord(context.Background(), db, "d1")
	if rec.Status != domain.StatusSent {
		t.Fatalf("unrelated record mutated: %+v", rec)
	}
}

func TestApplyCallback_InvalidSignatureChangesNothing(t *testing.T) {
	r, db := newReconciler(t, time.Now())
	seedSent(t, db, "d1", "SM1", time.Now().UTC())

	p, _ := callback("SM1", "delivered")
	_, err := r.ApplyCallback(context.Background(), p, testURL, "bad")
	if !errors.Is(err, ErrInvalidSignature) {
		t.Fatalf("expected ErrInvalidSignature, got %v", err)
	}
	// signature over a different URL
	_, sig := callback("SM1", "delivered")
	if _, err := r.ApplyCallback(context.Background(), p, "http://internal:8080/webhooks/sms/status", sig); !errors.Is(err, ErrInvalidSignature) {
		t.Fatalf("expected ErrInvalidSignature for URL mismatch, got %v", err)
	}
	rec, _ := repo.GetDeliveryRecord(context.Background(), db, "d1")
	if rec.Status != domain.StatusSent {
		t.Fatalf("record mutated: %+v", rec)
	}
}
