package repo

import (
	"context"
	"errors"

	"gorm.io/gorm"

	"github.com/tbourn/go-group-notify/internal/domain"
)

// Directory serves roster lookups for the dispatcher from the people,
// groups, group_members and guardian_links tables. Membership and guardian
// lists are returned in Position order, which is the order deduplication
// honours.
type Directory struct {
	db *gorm.DB
}

// NewDirectory returns a Directory reading through db.
func NewDirectory(db *gorm.DB) *Directory { return &Directory{db: db} }

// GetGroupMemberIDs returns the person ids of groupID, or ErrNotFound when
// the group does not exist. An existing group with no members yields an
// empty slice.
func (d *Directory) GetGroupMemberIDs(ctx context.Context, groupID string) ([]string, error) {
	var g domain.Group
	err := d.db.WithContext(ctx).Select("id").Where("id = ?", groupID).First(&g).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, err
	}

	var ids []string
	err = d.db.WithContext(ctx).
		Model(&domain.GroupMember{}).
		Where("group_id = ?", groupID).
		Order("position ASC, person_id ASC").
		Pluck("person_id", &ids).Error
	return ids, err
}

// GetPerson returns the recipient view of personID, or ErrNotFound.
func (d *Directory) GetPerson(ctx context.Context, personID string) (domain.Recipient, error) {
	var p domain.Person
	err := d.db.WithContext(ctx).Where("id = ?", personID).First(&p).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return domain.Recipient{}, ErrNotFound
	}
	if err != nil {
		return domain.Recipient{}, err
	}
	return p.Recipient(), nil
}

// GetGuardiansForYouth returns the guardians linked to youthID, each tagged
// with LinkedYouthID. Linked people whose role is not guardian are ignored.
func (d *Directory) GetGuardiansForYouth(ctx context.Context, youthID string) ([]domain.Recipient, error) {
	var people []domain.Person
	err := d.db.WithContext(ctx).
		Table("people").
		Select("people.*").
		Joins("JOIN guardian_links gl ON gl.guardian_id = people.id").
		Where("gl.youth_id = ? AND people.role = ?", youthID, domain.RoleGuardian).
		Order("gl.position ASC, people.id ASC").
		Find(&people).Error
	if err != nil {
		return nil, err
	}
	out := make([]domain.Recipient, 0, len(people))
	for _, p := range people {
		r := p.Recipient()
		r.LinkedYouthID = youthID
		out = append(out, r)
	}
	return out, nil
}
