package repo

import (
	"context"
	"fmt"
	"strings"

	"go.yaml.in/yaml/v3"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	"github.com/tbourn/go-group-notify/internal/domain"
)

// RosterFile is the YAML layout accepted by SeedRoster.
//
//	people:
//	  - id: y1
//	    name: Ana
//	    phone: "+15551111111"
//	    role: youth
//	groups:
//	  - id: g1
//	    name: Robotics
//	    members: [y1, l1]
//	guardians:
//	  - youth: y1
//	    guardians: [p1]
type RosterFile struct {
	People []struct {
		ID       string `yaml:"id"`
		Name     string `yaml:"name"`
		Phone    string `yaml:"phone"`
		Role     string `yaml:"role"`
		OptedOut bool   `yaml:"opted_out"`
	} `yaml:"people"`
	Groups []struct {
		ID      string   `yaml:"id"`
		Name    string   `yaml:"name"`
		Members []string `yaml:"members"`
	} `yaml:"groups"`
	Guardians []struct {
		Youth     string   `yaml:"youth"`
		Guardians []string `yaml:"guardians"`
	} `yaml:"guardians"`
}

// SeedStats reports what SeedRoster wrote.
type SeedStats struct {
	People  int
	Groups  int
	Members int
	Links   int
}

// SeedRoster parses raw as a RosterFile and upserts its contents in one
// transaction. Membership and guardian lists of the groups and youths it
// names are replaced, so list order in the file becomes Position order.
func SeedRoster(ctx context.Context, db *gorm.DB, raw []byte) (SeedStats, error) {
	var rf RosterFile
	if err := yaml.Unmarshal(raw, &rf); err != nil {
		return SeedStats{}, fmt.Errorf("parse roster: %w", err)
	}

	var st SeedStats
	err := db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		// Fresh statement per Create; a shared chain leaks the previous model.
		upsert := func(v any) error {
			return tx.Clauses(clause.OnConflict{UpdateAll: true}).Create(v).Error
		}

		for _, p := range rf.People {
			role := domain.Role(strings.ToLower(strings.TrimSpace(p.Role)))
			if p.ID == "" || !role.Valid() {
				return fmt.Errorf("person %q: invalid id or role %q", p.ID, p.Role)
			}
			row := domain.Person{
				ID:          p.ID,
				DisplayName: strings.TrimSpace(p.Name),
				PhoneNumber: strings.TrimSpace(p.Phone),
				Role:        role,
				OptedOut:    p.OptedOut,
			}
			if err := upsert(&row); err != nil {
				return err
			}
			st.People++
		}

		for _, g := range rf.Groups {
			if g.ID == "" {
				return fmt.Errorf("group with empty id")
			}
			row := domain.Group{ID: g.ID, Name: strings.TrimSpace(g.Name)}
			if err := upsert(&row); err != nil {
				return err
			}
			if err := tx.Where("group_id = ?", g.ID).Delete(&domain.GroupMember{}).Error; err != nil {
				return err
			}
			for i, pid := range g.Members {
				if err := tx.Create(&domain.GroupMember{GroupID: g.ID, PersonID: pid, Position: i}).Error; err != nil {
					return err
				}
				st.Members++
			}
			st.Groups++
		}

		for _, l := range rf.Guardians {
			if err := tx.Where("youth_id = ?", l.Youth).Delete(&domain.GuardianLink{}).Error; err != nil {
				return err
			}
			for i, gid := range l.Guardians {
				if err := tx.Create(&domain.GuardianLink{YouthID: l.Youth, GuardianID: gid, Position: i}).Error; err != nil {
					return err
				}
				st.Links++
			}
		}
		return nil
	})
	if err != nil {
		return SeedStats{}, err
	}
	return st, nil
}
