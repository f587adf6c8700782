package model

import (
	"strings"
	"time"

	"golang.org/x/text/cases"
	"golang.org/x/text/width"

	"github.com/projectloop/mailgrouper/pkg/domain/types"
)

// foldCase applies Unicode-aware case folding (not plain ASCII lower),
// so accented client names and addresses match regardless of casing.
var foldCase = cases.Fold()

// foldWidth normalizes fullwidth/halfwidth forms often produced by IME
// input, so "３０００" and "3000" key identically.
func foldWidth(s string) string {
	return width.Fold.String(s)
}

// ProjectID is a stable opaque identifier, unique per user.
type ProjectID string

// Address is a normalized property address. Street+Postcode is the
// locale-agnostic default matching key (resolver signal 1); Suburb/Region
// are carried for display and for locale-specific normalizers (SPEC_FULL §13).
type Address struct {
	Full      string
	Street    string
	Suburb    string
	Region    string
	Postcode  string
}

// MatchKey returns the locale-agnostic street+postcode key used by the
// resolver's address signal. Empty if either component is missing.
func (a Address) MatchKey() string {
	street := normalizeToken(a.Street)
	postcode := normalizeToken(a.Postcode)
	if street == "" || postcode == "" {
		return ""
	}
	return street + "|" + postcode
}

// IsZero reports whether the address has no usable content.
func (a Address) IsZero() bool {
	return a.Full == "" && a.Street == "" && a.Postcode == ""
}

func normalizeToken(s string) string {
	s = foldCase.String(foldWidth(strings.TrimSpace(s)))
	return strings.Join(strings.Fields(s), " ")
}

// ClientContact is a project's primary point of contact.
type ClientContact struct {
	Name    string
	Email   string
	Phone   string
	Company string
}

// Project is a long-lived grouping representing one customer engagement.
type Project struct {
	ID         ProjectID
	UserID     UserID
	Name       string
	Aliases    []string // stored as given, de-duplicated case-insensitively
	Address    Address
	JobNumbers []string
	Client     ClientContact
	Status     types.ProjectStatus

	EmailCount   int
	LastEmailAt  time.Time

	CreationConfidence float64
	NeedsReview        bool

	CreatedAt time.Time
	UpdatedAt time.Time
}

// NormalizedName case-folds, collapses whitespace and strips punctuation,
// matching resolver signal 4's matching rule.
func NormalizedName(name string) string {
	var b strings.Builder
	prevSpace := false
	for _, r := range foldCase.String(foldWidth(name)) {
		switch {
		case r >= 'a' && r <= 'z', r >= '0' && r <= '9':
			b.WriteRune(r)
			prevSpace = false
		default:
			if !prevSpace && b.Len() > 0 {
				b.WriteRune(' ')
				prevSpace = true
			}
		}
	}
	return strings.TrimSpace(b.String())
}

// HasAlias reports whether name (after normalization) matches the project's
// name or any of its aliases.
func (p Project) HasAlias(name string) bool {
	n := NormalizedName(name)
	if n == "" {
		return false
	}
	if NormalizedName(p.Name) == n {
		return true
	}
	for _, a := range p.Aliases {
		if NormalizedName(a) == n {
			return true
		}
	}
	return false
}

// HasJobNumber reports whether the given job number is a member of the
// project's job-number set.
func (p Project) HasJobNumber(jobNumber string) bool {
	n := normalizeToken(jobNumber)
	for _, j := range p.JobNumbers {
		if normalizeToken(j) == n {
			return true
		}
	}
	return false
}

// AddAlias adds name, as given, as an alias unless it already matches the
// project's name or an existing alias after NormalizedName (the
// de-duplication invariant on Aliases).
func (p *Project) AddAlias(name string) {
	n := NormalizedName(name)
	if n == "" || NormalizedName(p.Name) == n {
		return
	}
	for _, a := range p.Aliases {
		if NormalizedName(a) == n {
			return
		}
	}
	p.Aliases = append(p.Aliases, name)
}

// AddJobNumber adds jobNumber to the project's job-number set if not already present.
func (p *Project) AddJobNumber(jobNumber string) {
	if jobNumber == "" || p.HasJobNumber(jobNumber) {
		return
	}
	p.JobNumbers = append(p.JobNumbers, jobNumber)
}
