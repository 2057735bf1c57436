package provider

import (
	"context"

	"github.com/google/uuid"
	"github.com/rs/zerolog"
)

// LogSender accepts every message and only logs it. It is meant for local
// development where no provider credentials exist.
type LogSender struct {
	logger zerolog.Logger
}

// NewLogSender returns a LogSender writing to logger.
func NewLogSender(logger zerolog.Logger) *LogSender {
	return &LogSender{logger: logger.With().Str("provider", "log").Logger()}
}

// Name implements Sender.
func (s *LogSender) Name() string { return "log" }

// Send implements Sender.
func (s *LogSender) Send(ctx context.Context, to, body string) (Result, error) {
	if err := ctx.Err(); err != nil {
		return Result{}, err
	}
	ref := "LOG" + uuid.NewString()
	s.logger.Info().
		Str("provider_ref", ref).
		Int("body_len", len(body)).
		Str("to_suffix", suffix(to, 4)).
		Msg("sms accepted (not sent)")
	return Result{ProviderRef: ref, Accepted: true, Status: "sent"}, nil
}

func suffix(s string, n int) string {
	if len(s) <= n {
		return s
	}
	return s[len(s)-n:]
}
