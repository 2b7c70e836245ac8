package config

import (
	"fmt"
	"os"
	"strings"

	"gopkg.in/yaml.v3"
)

// Catalogue is the seed data loaded from CATALOGUE_PATH: the category
// labels per partition, the funds, and the free-text instructions the
// assistant consults when answering.
type Catalogue struct {
	Categories   []CategorySeed `yaml:"categories"`
	Funds        []FundSeed     `yaml:"funds"`
	Instructions Instructions   `yaml:"instructions"`
}

type CategorySeed struct {
	Label       string `yaml:"label"`
	Group       string `yaml:"group"`
	Description string `yaml:"description"`
	Inactive    bool   `yaml:"inactive"`
}

type FundSeed struct {
	Name    string `yaml:"name"`
	Type    string `yaml:"type"`
	Balance string `yaml:"balance"`
}

// Instructions are contextual notes about the household and how categories
// and budgets should be interpreted.
type Instructions struct {
	Family   string `yaml:"family"`
	Category string `yaml:"category"`
	Budget   string `yaml:"budget"`
}

// Topic returns the instruction text for family, category or budget.
func (i Instructions) Topic(topic string) (string, bool) {
	switch strings.ToLower(strings.TrimSpace(topic)) {
	case "family":
		return i.Family, true
	case "category", "categories":
		return i.Category, true
	case "budget", "budgets":
		return i.Budget, true
	default:
		return "", false
	}
}

// LoadCatalogue reads the YAML catalogue. An empty path yields an empty
// catalogue.
func LoadCatalogue(path string) (*Catalogue, error) {
	if path == "" {
		return &Catalogue{}, nil
	}
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read catalogue: %w", err)
	}
	return ParseCatalogue(data)
}

// ParseCatalogue decodes catalogue YAML and checks labels are unique.
func ParseCatalogue(data []byte) (*Catalogue, error) {
	var cat Catalogue
	if err := yaml.Unmarshal(data, &cat); err != nil {
		return nil, fmt.Errorf("parse catalogue: %w", err)
	}

	seen := make(map[string]bool, len(cat.Categories))
	for i, c := range cat.Categories {
		if strings.TrimSpace(c.Label) == "" {
			return nil, fmt.Errorf("category %d has no label", i+1)
		}
		if seen[c.Label] {
			return nil, fmt.Errorf("duplicate category label %q", c.Label)
		}
		seen[c.Label] = true
	}
	return &cat, nil
}
