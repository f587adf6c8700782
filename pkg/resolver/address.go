package resolver

import (
	"strings"

	"github.com/projectloop/mailgrouper/pkg/domain/model"
)

// AddressNormalizer reduces a raw extracted address to the locale-agnostic
// matching key the address signal compares against Project.Address.MatchKey().
// The default implementation is street+postcode; locale-specific variants
// (e.g. Australian state abbreviation folding) can be swapped in without
// touching the scoring logic.
type AddressNormalizer func(a model.Address) string

// DefaultAddressNormalizer is locale-agnostic: it defers entirely to
// Address.MatchKey (street + postcode, case-folded and whitespace-collapsed).
func DefaultAddressNormalizer(a model.Address) string {
	return a.MatchKey()
}

// AustralianAddressNormalizer additionally folds common Australian street
// suffix abbreviations (St/Rd/Ave) before matching, so "12 Baker Street" and
// "12 Baker St" key identically. Not wired by default (SPEC_FULL §13 open
// question); callers opt in explicitly.
func AustralianAddressNormalizer(a model.Address) string {
	street := foldStreetSuffix(a.Street)
	folded := a
	folded.Street = street
	return folded.MatchKey()
}

var streetSuffixFolds = map[string]string{
	"street": "st", "st": "st",
	"road": "rd", "rd": "rd",
	"avenue": "ave", "ave": "ave",
	"drive": "dr", "dr": "dr",
	"court": "ct", "ct": "ct",
	"place": "pl", "pl": "pl",
	"lane": "ln", "ln": "ln",
	"boulevard": "blvd", "blvd": "blvd",
	"highway": "hwy", "hwy": "hwy",
	"parade": "pde", "pde": "pde",
	"crescent": "cres", "cres": "cres",
}

func foldStreetSuffix(street string) string {
	fields := strings.Fields(street)
	if len(fields) == 0 {
		return street
	}
	last := strings.ToLower(strings.TrimRight(fields[len(fields)-1], "."))
	if folded, ok := streetSuffixFolds[last]; ok {
		fields[len(fields)-1] = folded
	}
	return strings.Join(fields, " ")
}

// extractedAddressToModel converts the extractor's wire shape into the
// domain Address the resolver and Project both key off.
func extractedAddressToModel(a *model.ExtractedAddress) model.Address {
	if a == nil {
		return model.Address{}
	}
	return model.Address{
		Full:     a.Full,
		Street:   a.Street,
		Suburb:   a.Locality,
		Region:   a.Region,
		Postcode: a.Postcode,
	}
}
