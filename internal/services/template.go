package services

import (
	"strings"

	"golang.org/x/text/cases"
	"golang.org/x/text/language"

	"github.com/tbourn/go-group-notify/internal/domain"
)

// DefaultGuardianTemplate is used when no guardian body is given. {name} is
// the linked youth's display name and {body} the original message.
const DefaultGuardianTemplate = "Message for the family of {name}: {body}"

// Composer picks the content each recipient receives.
type Composer struct {
	// Template overrides DefaultGuardianTemplate when set.
	Template string
	// Locale drives display-name title casing; zero value means English.
	Locale language.Tag
}

// Content returns the text sent to rec. Guardians reached through a youth
// (LinkedYouthID set) get guardianBody when set, otherwise the template
// filled with youthName. Everyone else, including a guardian who is a
// direct group member, gets body verbatim.
func (c Composer) Content(rec domain.Recipient, body string, guardianBody *string, youthName string) string {
	if rec.Role != domain.RoleGuardian || rec.LinkedYouthID == "" {
		return body
	}
	if guardianBody != nil {
		return *guardianBody
	}
	tpl := c.Template
	if strings.TrimSpace(tpl) == "" {
		tpl = DefaultGuardianTemplate
	}
	return strings.NewReplacer(
		"{name}", c.displayName(youthName),
		"{body}", body,
	).Replace(tpl)
}

func (c Composer) displayName(name string) string {
	name = strings.Join(strings.Fields(name), " ")
	if name == "" {
		return "your child"
	}
	tag := c.Locale
	if tag == language.Und {
		tag = language.English
	}
	// only fix names typed entirely in one case; keep deliberate casing
	if name == strings.ToLower(name) || name == strings.ToUpper(name) {
		return cases.Title(tag).String(name)
	}
	return name
}
