package domain

import (
	"fmt"
	"testing"
	"time"

	sqlite "github.com/glebarez/sqlite"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"
)

func newTestDB(t *testing.T) *gorm.DB {
	t.Helper()
	dsn := fmt.Sprintf("file:%s?mode=memory&cache=shared", t.Name())
	db, err := gorm.Open(sqlite.Open(dsn), &gorm.Config{
		Logger: logger.Default.LogMode(logger.Silent),
	})
	if err != nil {
		t.Fatalf("open sqlite: %v", err)
	}
	return db
}

func TestIdempotency_Migration_UniqueIndex_AndInsert(t *testing.T) {
	db := newTestDB(t)
	if err := db.AutoMigrate(&Idempotency{}); err != nil {
		t.Fatalf("automigrate: %v", err)
	}
	m := db.Migrator()
	if !m.HasTable(&Idempotency{}) {
		t.Fatalf("expected table %q to exist", Idempotency{}.TableName())
	}
	if !m.HasIndex(&Idempotency{}, "ux_caller_scope_key") {
		t.Fatalf("expected composite index ux_caller_scope_key to exist")
	}

	now := time.Now().UTC()
	rec := &Idempotency{
		ID:        "id-1",
		CallerID:  "u1",
		Scope:     "g1",
		Key:       "k1",
		ResultID:  "ev-1",
		Status:    200,
		CreatedAt: now,
		ExpiresAt: now.Add(time.Hour),
	}
	if err := db.Create(rec).Error; err != nil {
		t.Fatalf("insert valid: %v", err)
	}

	var got Idempotency
	if err := db.First(&got, "id = ?", "id-1").Error; err != nil {
		t.Fatalf("readback: %v", err)
	}
	if got.CallerID != "u1" || got.Scope != "g1" || got.Key != "k1" || got.ResultID != "ev-1" || got.Status != 200 {
		t.Fatalf("unexpected row: %+v", got)
	}

	// (caller_id, scope, key) must be unique
	again := *rec
	again.ID = "id-2"
	again.ResultID = "ev-2"
	if err := db.Create(&again).Error; err == nil {
		t.Fatalf("expected UNIQUE constraint violation on (caller_id, scope, key)")
	}

	// a different scope is fine
	other := *rec
	other.ID = "id-3"
	other.Scope = "g2"
	if err := db.Create(&other).Error; err != nil {
		t.Fatalf("insert other scope: %v", err)
	}
}
