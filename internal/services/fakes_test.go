package services

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"testing"
	"time"

	sqlite "github.com/glebarez/sqlite"
	"github.com/rs/zerolog"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"

	"github.com/tbourn/go-group-notify/internal/domain"
	"github.com/tbourn/go-group-notify/internal/provider"
	"github.com/tbourn/go-group-notify/internal/repo"
)

// ----- Fake directory -----

type fakeDir struct {
	groups    map[string][]string
	people    map[string]domain.Recipient
	guardians map[string][]string
	err       error
}

func newFakeDir() *fakeDir {
	return &fakeDir{groups: map[string][]string{}, people: map[string]domain.Recipient{}, guardians: map[string][]string{}}
}

func (d *fakeDir) person(id, name, phone string, role domain.Role) *fakeDir {
	d.people[id] = domain.Recipient{ID: id, DisplayName: name, PhoneNumber: phone, Role: role}
	return d
}

func (d *fakeDir) GetGroupMemberIDs(_ context.Context, groupID string) ([]string, error) {
	if d.err != nil {
		return nil, d.err
	}
	ids, ok := d.groups[groupID]
	if !ok {
		return nil, repo.ErrNotFound
	}
	return ids, nil
}

func (d *fakeDir) GetPerson(_ context.Context, id string) (domain.Recipient, error) {
	p, ok := d.people[id]
	if !ok {
		return domain.Recipient{}, repo.ErrNotFound
	}
	return p, nil
}

func (d *fakeDir) GetGuardiansForYouth(_ context.Context, youthID string) ([]domain.Recipient, error) {
	var out []domain.Recipient
	for _, id := range d.guardians[youthID] {
		p := d.people[id]
		p.LinkedYouthID = youthID
		out = append(out, p)
	}
	return out, nil
}

// ----- Fake sender -----

type sentMsg struct {
	To, Body string
}

type fakeSender struct {
	mu    sync.Mutex
	sent  []sentMsg
	n     int
	fail  map[string]error          // by phone: transport error
	deny  map[string]provider.Result // by phone: provider refusal
	delay time.Duration
}

func (s *fakeSender) Name() string { return "fake" }

func (s *fakeSender) Send(ctx context.Context, to, body string) (provider.Result, error) {
	if s.delay > 0 {
		select {
		case <-time.After(s.delay):
		case <-ctx.Done():
			return provider.Result{}, ctx.Err()
		}
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	s.sent = append(s.sent, sentMsg{To: to, Body: body})
	if err, ok := s.fail[to]; ok {
		return provider.Result{}, err
	}
	if r, ok := s.deny[to]; ok {
		return r, nil
	}
	s.n++
	return provider.Result{ProviderRef: fmt.Sprintf("SM%03d", s.n), Accepted: true, Status: "queued"}, nil
}

func (s *fakeSender) calls() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.sent)
}

// ----- DB -----

func newServiceDB(t *testing.T) *gorm.DB {
	t.Helper()
	dsn := fmt.Sprintf("file:svc_%s?mode=memory&cache=shared", t.Name())
	db, err := gorm.Open(sqlite.Open(dsn), &gorm.Config{
		Logger: logger.Default.LogMode(logger.Silent),
	})
	if err != nil {
		t.Fatalf("open sqlite: %v", err)
	}
	if err := repo.AutoMigrate(db); err != nil {
		t.Fatalf("automigrate: %v", err)
	}
	// shared-cache sqlite reports table locks instead of waiting
	if sqlDB, err := db.DB(); err == nil {
		sqlDB.SetMaxOpenConns(1)
	}
	return db
}

func countRecords(t *testing.T, db *gorm.DB) int64 {
	t.Helper()
	var n int64
	if err := db.Model(&domain.DeliveryRecord{}).Count(&n).Error; err != nil {
		t.Fatalf("count: %v", err)
	}
	return n
}

func newDispatcher(t *testing.T, dir Directory, s provider.Sender, l *Limiter) (*Dispatcher, *gorm.DB) {
	t.Helper()
	db := newServiceDB(t)
	return &Dispatcher{
		DB:       db,
		Resolver: &Resolver{Dir: dir, Logger: zerolog.Nop()},
		Sender:   s,
		Limiter:  l,
		Workers:  3,
		Logger:   zerolog.Nop(),
	}, db
}

var errBoom = errors.New("boom")
