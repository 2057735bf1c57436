// Package jobs runs periodic maintenance for the notification engine.
//
// Today that is a single job: pruning expired idempotency records so the
// table only holds keys that can still be replayed.
package jobs

import (
	"context"
	"errors"
	"strings"
	"time"

	"github.com/robfig/cron/v3"
	"github.com/rs/zerolog"
	"gorm.io/gorm"

	"github.com/tbourn/go-group-notify/internal/repo"
)

const defaultRunTimeout = 30 * time.Second

// ErrAlreadyStarted is returned by Start on a running Housekeeper.
var ErrAlreadyStarted = errors.New("housekeeping already started")

// Housekeeper schedules maintenance on a cron spec (standard five fields or
// a descriptor such as "@every 1h").
type Housekeeper struct {
	db      *gorm.DB
	log     zerolog.Logger
	now     func() time.Time
	timeout time.Duration

	parser cron.Parser
	c      *cron.Cron
}

// NewHousekeeper builds a stopped Housekeeper.
func NewHousekeeper(db *gorm.DB, log zerolog.Logger) *Housekeeper {
	return &Housekeeper{
		db:      db,
		log:     log.With().Str("component", "housekeeping").Logger(),
		now:     time.Now,
		timeout: defaultRunTimeout,
		parser:  cron.NewParser(cron.Minute | cron.Hour | cron.Dom | cron.Month | cron.Dow | cron.Descriptor),
	}
}

// PruneOnce deletes idempotency records that have expired and reports how
// many were removed.
func (h *Housekeeper) PruneOnce(ctx context.Context) (int64, error) {
	ctx, cancel := context.WithTimeout(ctx, h.timeout)
	defer cancel()
	return repo.PruneIdempotency(ctx, h.db, h.now().UTC())
}

func (h *Housekeeper) run() {
	start := time.Now()
	n, err := h.PruneOnce(context.Background())
	if err != nil {
		h.log.Error().Err(err).Msg("prune idempotency keys")
		return
	}
	h.log.Info().Int64("pruned", n).Dur("took", time.Since(start)).Msg("idempotency keys pruned")
}

// Start schedules the jobs on spec. An empty spec disables housekeeping and
// Start returns nil without scheduling anything.
func (h *Housekeeper) Start(spec string) error {
	spec = strings.TrimSpace(spec)
	if spec == "" {
		h.log.Info().Msg("housekeeping disabled")
		return nil
	}
	if h.c != nil {
		return ErrAlreadyStarted
	}
	sched, err := h.parser.Parse(spec)
	if err != nil {
		return err
	}

	cl := cronLogger{l: h.log}
	c := cron.New(
		cron.WithParser(h.parser),
		cron.WithLogger(cl),
		cron.WithChain(cron.Recover(cl), cron.SkipIfStillRunning(cl)),
	)
	c.Schedule(sched, cron.FuncJob(h.run))
	c.Start()
	h.c = c
	h.log.Info().Str("spec", spec).Time("next", sched.Next(h.now())).Msg("housekeeping scheduled")
	return nil
}

// Stop halts scheduling and waits for a running job to finish or for ctx
// to expire, whichever comes first.
func (h *Housekeeper) Stop(ctx context.Context) {
	if h.c == nil {
		return
	}
	done := h.c.Stop()
	h.c = nil
	select {
	case <-done.Done():
	case <-ctx.Done():
		h.log.Warn().Msg("housekeeping job still running at shutdown")
	}
}

// cronLogger routes robfig/cron's logging into zerolog.
type cronLogger struct{ l zerolog.Logger }

func (c cronLogger) Info(msg string, keysAndValues ...interface{}) {
	c.l.Debug().Fields(keysAndValues).Msg(msg)
}

func (c cronLogger) Error(err error, msg string, keysAndValues ...interface{}) {
	c.l.Error().Err(err).Fields(keysAndValues).Msg(msg)
}
