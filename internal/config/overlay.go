package config

import (
	"errors"
	"os"
	"strings"

	"github.com/rotisserie/eris"
	"gopkg.in/yaml.v3"

	"jobharvest-engine/internal/domain"
)

type CompaniesFile struct {
	Companies []domain.Company `yaml:"companies"`
}

// OverlayCompanies merges companies.yml into cfg. A company already in cfg
// gains the file's sources; new companies are appended. A missing file is
// not an error.
func OverlayCompanies(cfg *Config, companiesPath string) error {
	b, err := os.ReadFile(companiesPath)
	if errors.Is(err, os.ErrNotExist) {
		return nil
	}
	if err != nil {
		return eris.Wrapf(err, "config: read %s", companiesPath)
	}

	var cf CompaniesFile
	if err := yaml.Unmarshal(b, &cf); err != nil {
		return eris.Wrapf(err, "config: parse %s", companiesPath)
	}

	index := map[string]int{}
	for i, c := range cfg.Companies {
		index[strings.ToLower(strings.TrimSpace(c.Name))] = i
	}
	for _, c := range cf.Companies {
		key := strings.ToLower(strings.TrimSpace(c.Name))
		if key == "" {
			continue
		}
		if i, ok := index[key]; ok {
			cfg.Companies[i].Sources = domain.MergeSources(cfg.Companies[i].Sources, c.Sources)
			if cfg.Companies[i].EmployerName == "" {
				cfg.Companies[i].EmployerName = c.EmployerName
			}
			continue
		}
		index[key] = len(cfg.Companies)
		cfg.Companies = append(cfg.Companies, c)
	}
	return nil
}
