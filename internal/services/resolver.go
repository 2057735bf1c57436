package services

import (
	"context"
	"errors"
	"strings"

	"github.com/rs/zerolog"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"

	"github.com/tbourn/go-group-notify/internal/domain"
	"github.com/tbourn/go-group-notify/internal/repo"
)

// Directory is the read-only roster the engine resolves recipients from.
// Lookups of missing groups or people return repo.ErrNotFound.
type Directory interface {
	GetGroupMemberIDs(ctx context.Context, groupID string) ([]string, error)
	GetPerson(ctx context.Context, personID string) (domain.Recipient, error)
	GetGuardiansForYouth(ctx context.Context, youthID string) ([]domain.Recipient, error)
}

// Resolved is the outcome of expanding a group into recipients.
//
// Members holds every eligible group member in roster order, whatever the
// role; Guardians holds the guardians reached through youth members. Skipped
// counts people dropped for opt-out or a missing phone; Duplicates counts
// people dropped because an earlier recipient had the same phone number.
type Resolved struct {
	Members    []domain.Recipient
	Guardians  []domain.Recipient
	Skipped    int
	Duplicates int
}

// All returns members followed by guardians, the order messages go out in.
func (r Resolved) All() []domain.Recipient {
	out := make([]domain.Recipient, 0, len(r.Members)+len(r.Guardians))
	out = append(out, r.Members...)
	return append(out, r.Guardians...)
}

// Resolver expands groups into deduplicated, opt-out-filtered recipients.
type Resolver struct {
	Dir    Directory
	Logger zerolog.Logger
}

// eligible reports whether r can be messaged at all.
func eligible(r domain.Recipient) bool {
	return !r.OptedOut && strings.TrimSpace(r.PhoneNumber) != "" && NormalizePhone(r.PhoneNumber) != ""
}

// Resolve returns the recipients of groupID. When includeGuardians is set,
// guardians of every surviving youth are added. Phone numbers are
// deduplicated across the combined list, first occurrence wins.
//
// Errors: ErrGroupNotFound, ErrNoEligibleRecipients, or a directory error.
func (r *Resolver) Resolve(ctx context.Context, groupID string, includeGuardians bool) (Resolved, error) {
	tr := otel.Tracer("services/Resolver")
	ctx, span := tr.Start(ctx, "Resolve",
		trace.WithAttributes(
			attribute.String("group.id", groupID),
			attribute.Bool("include_guardians", includeGuardians),
		),
	)
	defer span.End()

	ids, err := r.Dir.GetGroupMemberIDs(ctx, groupID)
	if errors.Is(err, repo.ErrNotFound) {
		return Resolved{}, Errorf(KindGroupNotFound, "group %s", groupID)
	}
	if err != nil {
		return Resolved{}, err
	}

	var out Resolved
	seen := make(map[string]string, len(ids))

	// keep returns true when rec is new; duplicates are counted and logged.
	keep := func(rec domain.Recipient) bool {
		key := PhoneKey(rec.PhoneNumber)
		if first, dup := seen[key]; dup {
			out.Duplicates++
			r.Logger.Info().
				Str("recipient_id", rec.ID).
				Str("kept_recipient_id", first).
				Str("phone", MaskPhone(rec.PhoneNumber)).
				Msg("duplicate phone dropped")
			return false
		}
		seen[key] = rec.ID
		return true
	}

	for _, id := range ids {
		rec, err := r.Dir.GetPerson(ctx, id)
		if errors.Is(err, repo.ErrNotFound) {
			// membership points at a removed person
			out.Skipped++
			continue
		}
		if err != nil {
			return Resolved{}, err
		}
		if !eligible(rec) {
			out.Skipped++
			continue
		}
		rec.LinkedYouthID = ""
		if keep(rec) {
			out.Members = append(out.Members, rec)
		}
	}

	if includeGuardians {
		for _, m := range out.Members {
			if m.Role != domain.RoleYouth {
				continue
			}
			gs, err := r.Dir.GetGuardiansForYouth(ctx, m.ID)
			if err != nil {
				return Resolved{}, err
			}
			for _, g := range gs {
				if !eligible(g) {
					out.Skipped++
					continue
				}
				g.Role = domain.RoleGuardian
				g.LinkedYouthID = m.ID
				if keep(g) {
					out.Guardians = append(out.Guardians, g)
				}
			}
		}
	}

	span.SetAttributes(
		attribute.Int("recipients", len(out.Members)+len(out.Guardians)),
		attribute.Int("skipped", out.Skipped),
		attribute.Int("duplicates", out.Duplicates),
	)
	if len(out.Members)+len(out.Guardians) == 0 {
		return out, Errorf(KindNoEligibleRecipients, "group %s has no eligible recipients", groupID)
	}
	return out, nil
}

// ResolvePerson returns the single recipient personID when eligible.
//
// Errors: ErrPersonNotFound, ErrNoEligibleRecipients, or a directory error.
func (r *Resolver) ResolvePerson(ctx context.Context, personID string) (domain.Recipient, error) {
	tr := otel.Tracer("services/Resolver")
	ctx, span := tr.Start(ctx, "ResolvePerson",
		trace.WithAttributes(attribute.String("person.id", personID)),
	)
	defer span.End()

	rec, err := r.Dir.GetPerson(ctx, personID)
	if errors.Is(err, repo.ErrNotFound) {
		return domain.Recipient{}, Errorf(KindPersonNotFound, "person %s", personID)
	}
	if err != nil {
		return domain.Recipient{}, err
	}
	if !eligible(rec) {
		return domain.Recipient{}, Errorf(KindNoEligibleRecipients, "person %s is opted out or has no phone number", personID)
	}
	rec.LinkedYouthID = ""
	return rec, nil
}
