package support

import (
	"strings"

	"ramp-quote-go/internal/models"
)

type countryRule struct {
	all      bool
	states   map[string]bool
	excluded map[string]bool
}

// ExactRegions answers region support with country wildcards, explicit state
// allows and explicit state exclusions. An exclusion beats a country wildcard.
// The zero value denies everything.
type ExactRegions struct {
	countries map[string]*countryRule
}

func (r *ExactRegions) rule(country string) *countryRule {
	if r.countries == nil {
		r.countries = make(map[string]*countryRule)
	}
	country = strings.ToUpper(country)
	rule, ok := r.countries[country]
	if !ok {
		rule = &countryRule{states: make(map[string]bool), excluded: make(map[string]bool)}
		r.countries[country] = rule
	}
	return rule
}

// AllowCountry allows every state of the country not explicitly excluded.
func (r *ExactRegions) AllowCountry(country string) {
	r.rule(country).all = true
}

func (r *ExactRegions) AllowState(country, state string) {
	r.rule(country).states[strings.ToUpper(state)] = true
}

func (r *ExactRegions) ExcludeState(country, state string) {
	r.rule(country).excluded[strings.ToUpper(state)] = true
}

// RemoveCountry drops every rule for the country.
func (r *ExactRegions) RemoveCountry(country string) {
	delete(r.countries, strings.ToUpper(country))
}

func (r *ExactRegions) Supports(region models.RegionCode) bool {
	rule, ok := r.countries[strings.ToUpper(region.CountryCode)]
	if !ok {
		return false
	}
	state := strings.ToUpper(region.StateProvinceCode)
	if state != "" && rule.excluded[state] {
		return false
	}
	if rule.all {
		return true
	}
	if state == "" {
		return false
	}
	return rule.states[state]
}

func (r *ExactRegions) Countries() int {
	return len(r.countries)
}
