package domain

import (
	"time"

	"gorm.io/gorm"
)

// Person is a roster entry: a youth, leader, or guardian. The engine only
// reads people; they are maintained by roster imports.
type Person struct {
	ID          string         `json:"id"           gorm:"type:varchar(64);primaryKey"`
	DisplayName string         `json:"display_name" gorm:"type:varchar(255);not null"`
	PhoneNumber string         `json:"phone_number" gorm:"type:varchar(32)"`
	Role        Role           `json:"role"         gorm:"type:varchar(16);not null;check:role IN ('youth','leader','guardian')"`
	OptedOut    bool           `json:"opted_out"    gorm:"not null;default:false"`
	CreatedAt   time.Time      `json:"created_at"`
	UpdatedAt   time.Time      `json:"updated_at"`
	DeletedAt   gorm.DeletedAt `json:"-"            gorm:"index"`
}

// TableName returns the database table name for Person.
func (Person) TableName() string { return "people" }

// Recipient converts the roster row into the engine's recipient view.
func (p Person) Recipient() Recipient {
	return Recipient{
		ID:          p.ID,
		DisplayName: p.DisplayName,
		PhoneNumber: p.PhoneNumber,
		Role:        p.Role,
		OptedOut:    p.OptedOut,
	}
}

// Group is a named set of people that can be messaged together.
type Group struct {
	ID        string         `json:"id"         gorm:"type:varchar(64);primaryKey"`
	Name      string         `json:"name"       gorm:"type:varchar(255);not null"`
	CreatedAt time.Time      `json:"created_at"`
	UpdatedAt time.Time      `json:"updated_at"`
	DeletedAt gorm.DeletedAt `json:"-"          gorm:"index"`
}

// TableName returns the database table name for Group.
func (Group) TableName() string { return "groups" }

// GroupMember links a person to a group. Position preserves roster order,
// which decides which recipient wins phone-number deduplication.
type GroupMember struct {
	GroupID  string `gorm:"type:varchar(64);primaryKey"`
	PersonID string `gorm:"type:varchar(64);primaryKey;index"`
	Position int    `gorm:"not null;default:0"`
}

// TableName returns the database table name for GroupMember.
func (GroupMember) TableName() string { return "group_members" }

// GuardianLink links a guardian to a youth they are responsible for.
type GuardianLink struct {
	YouthID    string `gorm:"type:varchar(64);primaryKey"`
	GuardianID string `gorm:"type:varchar(64);primaryKey;index"`
	Position   int    `gorm:"not null;default:0"`
}

// TableName returns the database table name for GuardianLink.
func (GuardianLink) TableName() string { return "guardian_links" }
