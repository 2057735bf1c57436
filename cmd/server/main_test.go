package main

import (
	"bytes"
	"context"
	"errors"
	"net"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"testing"

	"github.com/rs/zerolog"

	"github.com/tbourn/go-group-notify/internal/config"
	"github.com/tbourn/go-group-notify/internal/domain"
	"github.com/tbourn/go-group-notify/internal/repo"
)

func TestNewSender(t *testing.T) {
	cfg := config.Config{Provider: config.ProviderConfig{Name: config.ProviderLog}}
	s, err := newSender(cfg, zerolog.Nop())
	if err != nil || s.Name() != "log" {
		t.Fatalf("log sender: %v %v", s, err)
	}

	cfg.Provider = config.ProviderConfig{
		Name:       config.ProviderTwilio,
		AccountSID: "AC123",
		AuthToken:  "secret",
		FromNumber: "+15550000000",
	}
	s, err = newSender(cfg, zerolog.Nop())
	if err != nil || s.Name() != "twilio" {
		t.Fatalf("twilio sender: %v %v", s, err)
	}

	cfg.Provider.Name = "carrier-pigeon"
	if _, err := newSender(cfg, zerolog.Nop()); err == nil {
		t.Fatalf("expected error for unknown provider")
	}
}

func TestOpenDB_MigratesAndSeeds(t *testing.T) {
	dir := t.TempDir()
	roster := filepath.Join(dir, "roster.yaml")
	if err := os.WriteFile(roster, []byte(`
people:
  - id: y1
    name: ada lovelace
    phone: "+15551111111"
    role: youth
  - id: p1
    name: parent one
    phone: "+15552222222"
    role: guardian
groups:
  - id: g1
    name: Robotics
    members: [y1]
guardians:
  - youth: y1
    guardians: [p1]
`), 0o600); err != nil {
		t.Fatalf("write roster: %v", err)
	}

	cfg := config.Config{DB: config.DBConfig{
		Driver:     repo.DriverSQLite,
		Path:       filepath.Join(dir, "notify.db"),
		RosterPath: roster,
	}}
	db, err := openDB(context.Background(), cfg, zerolog.Nop())
	if err != nil {
		t.Fatalf("openDB: %v", err)
	}
	t.Cleanup(func() {
		if sqlDB, err := db.DB(); err == nil {
			_ = sqlDB.Close()
		}
	})

	ids, err := repo.NewDirectory(db).GetGroupMemberIDs(context.Background(), "g1")
	if err != nil || len(ids) != 1 || ids[0] != "y1" {
		t.Fatalf("members=%v err=%v", ids, err)
	}
	if !db.Migrator().HasTable(&domain.DeliveryRecord{}) {
		t.Fatalf("delivery_records not migrated")
	}
}

func TestOpenDB_MissingRoster(t *testing.T) {
	cfg := config.Config{DB: config.DBConfig{
		Driver:     repo.DriverSQLite,
		Path:       filepath.Join(t.TempDir(), "notify.db"),
		RosterPath: filepath.Join(t.TempDir(), "nope.yaml"),
	}}
	if _, err := openDB(context.Background(), cfg, zerolog.Nop()); err == nil {
		t.Fatalf("expected error for missing roster")
	}
}

func TestCleanup_ReverseOrderAndErrors(t *testing.T) {
	var buf bytes.Buffer
	cl := &cleanup{log: zerolog.New(&buf)}
	var order []string
	for _, name := range []string{"otel", "db", "housekeeping"} {
		cl.add(name, func(context.Context) error {
			order = append(order, name)
			if name == "db" {
				return errors.New("already closed")
			}
			return nil
		})
	}
	cl.run()

	if strings.Join(order, ",") != "housekeeping,db,otel" {
		t.Fatalf("order = %v", order)
	}
	if !strings.Contains(buf.String(), `"step":"db"`) || !strings.Contains(buf.String(), "shutdown step failed") {
		t.Fatalf("failed step not logged: %s", buf.String())
	}
	cl.run()
	if len(order) != 3 {
		t.Fatalf("steps must run once, got %v", order)
	}
}

func TestRun_ListenFailureReleasesResources(t *testing.T) {
	t.Setenv("OTEL_ENABLED", "false")
	t.Setenv("SMS_PROVIDER", "log")
	t.Setenv("DB_DRIVER", "sqlite")
	cfg, err := config.Load()
	if err != nil {
		t.Fatalf("config: %v", err)
	}

	busy, err := net.Listen("tcp", ":0")
	if err != nil {
		t.Fatalf("listen: %v", err)
	}
	defer busy.Close()
	cfg.Port = strconv.Itoa(busy.Addr().(*net.TCPAddr).Port)
	cfg.DB.Path = filepath.Join(t.TempDir(), "notify.db")
	cfg.DB.RosterPath = ""

	var buf bytes.Buffer
	logger := zerolog.New(&buf).Level(zerolog.DebugLevel)
	err = run(context.Background(), cfg, logger)
	if err == nil || !strings.Contains(err.Error(), "listen") {
		t.Fatalf("expected listen error, got %v", err)
	}
	out := buf.String()
	for _, step := range []string{`"step":"db"`, `"step":"otel"`} {
		if !strings.Contains(out, step) {
			t.Fatalf("cleanup step %s did not run: %s", step, out)
		}
	}
}
