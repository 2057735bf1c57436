package repo

import (
	"context"
	"testing"

	"gorm.io/gorm"

	"github.com/tbourn/go-group-notify/internal/domain"
)

func newRosterDB(t *testing.T) *gorm.DB {
	t.Helper()
	return newTestDB(t, &domain.Person{}, &domain.Group{}, &domain.GroupMember{}, &domain.GuardianLink{})
}

func TestDirectory_GroupMembersInPositionOrder(t *testing.T) {
	db := newRosterDB(t)
	ctx := context.Background()

	db.Create(&domain.Group{ID: "g1", Name: "Robotics"})
	db.Create(&domain.Group{ID: "empty", Name: "Empty"})
	db.Create(&[]domain.GroupMember{
		{GroupID: "g1", PersonID: "b", Position: 1},
		{GroupID: "g1", PersonID: "a", Position: 2},
		{GroupID: "g1", PersonID: "c", Position: 0},
	})

	d := NewDirectory(db)
	ids, err := d.GetGroupMemberIDs(ctx, "g1")
	if err != nil {
		t.Fatalf("GetGroupMemberIDs: %v", err)
	}
	if len(ids) != 3 || ids[0] != "c" || ids[1] != "b" || ids[2] != "a" {
		t.Fatalf("expected [c b a], got %v", ids)
	}

	ids, err = d.GetGroupMemberIDs(ctx, "empty")
	if err != nil || len(ids) != 0 {
		t.Fatalf("empty group: ids=%v err=%v", ids, err)
	}

	if _, err := d.GetGroupMemberIDs(ctx, "missing"); err != ErrNotFound {
		t.Fatalf("expected ErrNotFound, got %v", err)
	}
}

func TestDirectory_GetPerson(t *testing.T) {
	db := newRosterDB(t)
	ctx := context.Background()
	db.Create(&domain.Person{ID: "y1", DisplayName: "Ana", PhoneNumber: "+15551111111", Role: domain.RoleYouth, OptedOut: true})

	d := NewDirectory(db)
	r, err := d.GetPerson(ctx, "y1")
	if err != nil {
		t.Fatalf("GetPerson: %v", err)
	}
	if r.DisplayName != "Ana" || r.Role != domain.RoleYouth || !r.OptedOut {
		t.Fatalf("unexpected recipient: %+v", r)
	}
	if _, err := d.GetPerson(ctx, "nobody"); err != ErrNotFound {
		t.Fatalf("expected ErrNotFound, got %v", err)
	}

	// soft-deleted people disappear from the directory
	db.Delete(&domain.Person{ID: "y1"})
	if _, err := d.GetPerson(ctx, "y1"); err != ErrNotFound {
		t.Fatalf("expected ErrNotFound after delete, got %v", err)
	}
}

func TestDirectory_GuardiansForYouth(t *testing.T) {
	db := newRosterDB(t)
	ctx := context.Background()
	db.Create(&[]domain.Person{
		{ID: "y1", DisplayName: "Ana", PhoneNumber: "+15551111111", Role: domain.RoleYouth},
		{ID: "p1", DisplayName: "Mom", PhoneNumber: "+15552222222", Role: domain.RoleGuardian},
		{ID: "p2", DisplayName: "Dad", PhoneNumber: "+15553333333", Role: domain.RoleGuardian},
		{ID: "l1", DisplayName: "Coach", PhoneNumber: "+15554444444", Role: domain.RoleLeader},
	})
	db.Create(&[]domain.GuardianLink{
		{YouthID: "y1", GuardianID: "p2", Position: 1},
		{YouthID: "y1", GuardianID: "p1", Position: 0},
		{YouthID: "y1", GuardianID: "l1", Position: 2},
	})

	got, err := NewDirectory(db).GetGuardiansForYouth(ctx, "y1")
	if err != nil {
		t.Fatalf("GetGuardiansForYouth: %v", err)
	}
	if len(got) != 2 || got[0].ID != "p1" || got[1].ID != "p2" {
		t.Fatalf("expected [p1 p2], got %+v", got)
	}
	for _, g := range got {
		if g.LinkedYouthID != "y1" || g.Role != domain.RoleGuardian {
			t.Fatalf("guardian not linked: %+v", g)
		}
	}

	none, err := NewDirectory(db).GetGuardiansForYouth(ctx, "nobody")
	if err != nil || len(none) != 0 {
		t.Fatalf("expected no guardians, got %v err=%v", none, err)
	}
}
