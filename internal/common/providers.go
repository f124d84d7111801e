package common

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"ramp-quote-go/internal/models"

	"gopkg.in/yaml.v2"
)

// ProvidersFile is the layout of providers.yaml: provider enablement and
// non-secret options, plus optional extra asset symbols.
type ProvidersFile struct {
	Providers []models.ProviderConfig `yaml:"providers"`
	Assets    []models.AssetEntry     `yaml:"assets"`
}

func LoadProvidersFile(providersFile string) (*ProvidersFile, error) {
	var providersPath string
	if filepath.IsAbs(providersFile) {
		providersPath = providersFile
	} else {
		wd, err := os.Getwd()
		if err != nil {
			return nil, fmt.Errorf("failed to get working directory: %w", err)
		}
		providersPath = filepath.Join(wd, providersFile)
	}

	data, err := os.ReadFile(providersPath)
	if err != nil {
		return nil, fmt.Errorf("unable to read %s: %w", providersFile, err)
	}
	return ParseProvidersFile(data)
}

func ParseProvidersFile(data []byte) (*ProvidersFile, error) {
	var file ProvidersFile
	if err := yaml.Unmarshal(data, &file); err != nil {
		return nil, fmt.Errorf("unable to parse providers file: %w", err)
	}

	seen := make(map[string]bool, len(file.Providers))
	for i := range file.Providers {
		p := &file.Providers[i]
		p.ID = strings.ToLower(strings.TrimSpace(p.ID))
		if p.ID == "" {
			return nil, fmt.Errorf("provider at index %d missing id", i)
		}
		if seen[p.ID] {
			return nil, fmt.Errorf("provider %s listed twice", p.ID)
		}
		seen[p.ID] = true
	}

	for i, asset := range file.Assets {
		if asset.PluginID == "" {
			return nil, fmt.Errorf("asset at index %d missing plugin", i)
		}
		if asset.Symbol == "" {
			return nil, fmt.Errorf("asset at index %d missing symbol", i)
		}
	}

	return &file, nil
}

// Enabled returns the enabled providers in file order.
func (f *ProvidersFile) Enabled() []models.ProviderConfig {
	out := make([]models.ProviderConfig, 0, len(f.Providers))
	for _, p := range f.Providers {
		if p.Enabled {
			out = append(out, p)
		}
	}
	return out
}

// Catalog adds the file's asset entries to the built-in ones; a file entry
// wins when both name the same symbol on a chain.
func (f *ProvidersFile) Catalog() *models.AssetCatalog {
	return models.NewAssetCatalog(append(models.DefaultAssetEntries(), f.Assets...))
}
