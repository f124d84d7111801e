package constraints

import (
	"context"
	"fmt"
	"os"
	"strings"

	"ramp-quote-go/internal/httpclient"
	"ramp-quote-go/internal/models"

	"gopkg.in/yaml.v2"
)

// DenyEntry matches when every non-empty field equals the candidate's value.
type DenyEntry struct {
	Provider    string `yaml:"provider"`
	Direction   string `yaml:"direction"`
	PaymentType string `yaml:"payment_type"`
	Country     string `yaml:"country"`
	State       string `yaml:"state"`
	Fiat        string `yaml:"fiat"`
	Plugin      string `yaml:"plugin"`
	Token       string `yaml:"token"`
}

// RuleSet is the remotely supplied veto list.
type RuleSet struct {
	Deny []DenyEntry `yaml:"deny"`
}

var _ Predicate = (*RuleSet)(nil)

func (rs *RuleSet) Allow(p Params) bool {
	for _, entry := range rs.Deny {
		if entry.matches(p) {
			return false
		}
	}
	return true
}

func (d DenyEntry) matches(p Params) bool {
	return field(d.Provider, p.Provider) &&
		field(d.Direction, string(p.Direction)) &&
		field(d.PaymentType, string(p.PaymentType)) &&
		field(d.Country, p.Region.CountryCode) &&
		field(d.State, p.Region.StateProvinceCode) &&
		field(models.NormalizeFiat(d.Fiat), p.Fiat) &&
		field(d.Plugin, p.Asset.PluginID) &&
		field(d.Token, p.Asset.TokenID)
}

func field(want, got string) bool {
	return want == "" || strings.EqualFold(want, got)
}

func ParseRuleSet(data []byte) (*RuleSet, error) {
	var rs RuleSet
	if err := yaml.Unmarshal(data, &rs); err != nil {
		return nil, fmt.Errorf("unable to parse rule set: %w", err)
	}
	for i, entry := range rs.Deny {
		if entry == (DenyEntry{}) {
			return nil, fmt.Errorf("deny entry at index %d has no fields", i)
		}
		if entry.Direction != "" {
			if _, err := models.ParseDirection(entry.Direction); err != nil {
				return nil, fmt.Errorf("deny entry at index %d: %w", i, err)
			}
		}
	}
	return &rs, nil
}

func LoadRuleSet(path string) (*RuleSet, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("unable to read %s: %w", path, err)
	}
	return ParseRuleSet(data)
}

// FetchRuleSet downloads a rule set through the shared provider client.
func FetchRuleSet(ctx context.Context, client *httpclient.Client, path string) (*RuleSet, error) {
	body, err := client.Do(ctx, httpclient.Request{Path: path, Operation: "rules"})
	if err != nil {
		return nil, fmt.Errorf("unable to fetch rule set: %w", err)
	}
	return ParseRuleSet(body)
}
