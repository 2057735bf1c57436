package domain

// Role tags the kind of person a recipient is. The resolver and dispatcher
// switch on it to pick filters and message content.
type Role string

const (
	RoleYouth    Role = "youth"
	RoleLeader   Role = "leader"
	RoleGuardian Role = "guardian"
)

// Valid reports whether r is a known role.
func (r Role) Valid() bool {
	switch r {
	case RoleYouth, RoleLeader, RoleGuardian:
		return true
	}
	return false
}

// Recipient is the engine's read-only view of a person supplied by the
// recipient directory. LinkedYouthID is only set on guardians that were
// reached through a youth, and drives guardian message templating.
type Recipient struct {
	ID            string `json:"id"`
	DisplayName   string `json:"display_name"`
	PhoneNumber   string `json:"phone_number"`
	Role          Role   `json:"role"`
	LinkedYouthID string `json:"linked_youth_id,omitempty"`
	OptedOut      bool   `json:"opted_out"`
}

// SendRequest asks for Body to be delivered to every eligible member of
// GroupID. GuardianBody may only be set when IncludeGuardians is true; when
// guardians are included without one, their message is synthesized from the
// linked youth's name.
type SendRequest struct {
	GroupID          string
	Body             string
	IncludeGuardians bool
	GuardianBody     *string
}

// DirectRequest asks for Body to be delivered to a single person.
type DirectRequest struct {
	PersonID string
	Body     string
}
