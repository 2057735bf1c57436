// Package handlers exposes the notification engine over HTTP.
//
// Handlers are transport-thin: they decode and sanitize input, call the
// engine through the narrow contracts below, and translate results and
// engine errors into HTTP responses (idempotent replays, conditional GETs,
// the error envelope).
package handlers

import (
	"context"
	"net/url"
	"time"

	"gorm.io/gorm"

	"github.com/tbourn/go-group-notify/internal/domain"
	"github.com/tbourn/go-group-notify/internal/services"
)

//
// Service contracts (context-aware)
//

// Dispatcher sends messages and rebuilds stored results.
type Dispatcher interface {
	// Send fans a message out to a group.
	Send(ctx context.Context, req domain.SendRequest) (*services.DispatchResult, error)
	// SendDirect messages a single person.
	SendDirect(ctx context.Context, req domain.DirectRequest) (*services.DispatchResult, error)
	// LoadResult rebuilds the result of a completed send from its send
	// event id or delivery record id.
	LoadResult(ctx context.Context, id string) (*services.DispatchResult, error)
}

// Reconciler applies provider status callbacks.
type Reconciler interface {
	ApplyCallback(ctx context.Context, params url.Values, callbackURL, signature string) (*services.CallbackResult, error)
}

// HistoryService summarizes past sends.
type HistoryService interface {
	Summarize(ctx context.Context, sinceDays, limit, offset int) ([]services.HistoryEntry, error)
	Since(sinceDays int) time.Time
}

// RateStatser reports the dispatch rate window.
type RateStatser interface {
	Stats() services.RateStats
	RetryAfter() time.Duration
}

//
// Handler wiring
//

// Options carries the dependencies of Handlers.
type Options struct {
	Dispatcher Dispatcher
	Reconciler Reconciler
	History    HistoryService
	Rates      RateStatser

	// DB backs idempotency records, delivery lookups and history ETags.
	DB *gorm.DB
	// IdempotencyTTL is how long a stored dispatch result can be replayed.
	IdempotencyTTL time.Duration
	// WebhookURL is the exact public URL the provider posts callbacks to.
	// When empty it is rebuilt from the incoming request.
	WebhookURL string
}

// Handlers groups the HTTP endpoints.
type Handlers struct {
	dispatch   Dispatcher
	reconciler Reconciler
	history    HistoryService
	rates      RateStatser
	db         *gorm.DB
	idemTTL    time.Duration
	webhookURL string
}

// New constructs Handlers from opts.
func New(opts Options) *Handlers {
	ttl := opts.IdempotencyTTL
	if ttl <= 0 {
		ttl = 24 * time.Hour
	}
	return &Handlers{
		dispatch:   opts.Dispatcher,
		reconciler: opts.Reconciler,
		history:    opts.History,
		rates:      opts.Rates,
		db:         opts.DB,
		idemTTL:    ttl,
		webhookURL: opts.WebhookURL,
	}
}
