package config

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gopkg.in/yaml.v3"

	"jobharvest-engine/internal/domain"
	"jobharvest-engine/internal/filter"
)

func writeFile(t *testing.T, path, body string) {
	t.Helper()
	require.NoError(t, os.WriteFile(path, []byte(body), 0o644))
}

func TestDefaultIsValid(t *testing.T) {
	_, v := NormalizeAndValidate(Default())
	assert.True(t, v.OK(), v.Errors)
	assert.NoError(t, v.Err())
}

func TestLoadMergesOverDefaultsAndEnv(t *testing.T) {
	path := filepath.Join(t.TempDir(), "config.yml")
	writeFile(t, path, `
app:
  port: 9000
settings:
  role_keywords: [engineer]
  visa_restriction_phrases: []
crawl:
  max_pages: 3
companies:
  - company_name: Acme
    sources:
      - type: greenhouse
        slug: acme
`)
	t.Setenv("CAREERURL_MAX_PAGES", "7")
	t.Setenv("CAREERURL_PLAYWRIGHT", "yes")
	t.Setenv("SCHEDULER_MODE", "LOOP")
	t.Setenv("JOBHARVEST_DATA_DIR", "/tmp/jh")

	cfg, err := Load(path)
	require.NoError(t, err)

	assert.Equal(t, 9000, cfg.App.Port)
	assert.Equal(t, "/tmp/jh", cfg.App.DataDir)
	assert.Equal(t, 7, cfg.Crawl.MaxPages)
	assert.True(t, cfg.Crawl.Playwright)
	assert.Equal(t, 25, cfg.Crawl.TimeBudgetSeconds)
	assert.Equal(t, "loop", cfg.Scheduler.Mode)
	assert.Equal(t, []string{"engineer"}, cfg.Settings.RoleKeywords)
	assert.True(t, cfg.Settings.USOnly)
	// explicit empty list survives decoding; it disables visa phrases
	assert.NotNil(t, cfg.Settings.VisaRestrictionPhrases)
	assert.Empty(t, cfg.Settings.VisaRestrictionPhrases)
	require.Len(t, cfg.Companies, 1)
	assert.Equal(t, domain.SourceGreenhouse, cfg.Companies[0].Sources[0].Type)
}

func TestLoadErrors(t *testing.T) {
	_, err := Load(filepath.Join(t.TempDir(), "missing.yml"))
	require.Error(t, err)

	path := filepath.Join(t.TempDir(), "config.yml")
	writeFile(t, path, "app: [")
	_, err = Load(path)
	require.Error(t, err)

	writeFile(t, path, "app:\n  port: 1\n")
	t.Setenv("FETCH_MAX_WORKERS", "many")
	_, err = Load(path)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "FETCH_MAX_WORKERS")
}

func TestNormalizeAndValidate(t *testing.T) {
	cfg := Default()
	cfg.Settings.RoleKeywords = []string{" Engineer ", "engineer", "", "Developer"}
	cfg.Settings.PreferredStates = []string{"tx", "Texas"}
	cfg.Settings.WorkMode = " Remote "
	cfg.Companies = []domain.Company{{
		Name: "Acme",
		Sources: []domain.Source{
			{Type: domain.SourceGreenhouse, Slug: "acme"},
			{Type: domain.SourceGreenhouse, Slug: "ACME"},
			{Type: domain.SourceLever},
		},
	}}

	out, v := NormalizeAndValidate(cfg)
	assert.True(t, v.OK(), v.Errors)
	assert.Equal(t, []string{"Engineer", "Developer"}, out.Settings.RoleKeywords)
	assert.Equal(t, []string{"TX", "TEXAS"}, out.Settings.PreferredStates)
	assert.Equal(t, "remote", out.Settings.WorkMode)
	assert.Equal(t, filter.DefaultVisaRestrictionPhrases, out.Settings.VisaRestrictionPhrases)
	assert.Len(t, out.Companies[0].Sources, 1)
	assert.Len(t, cfg.Companies[0].Sources, 3, "input is not mutated")
	assert.Contains(t, v.Warnings, `settings.preferred_states entry "TEXAS" is not a two-letter code.`)
}

func TestNormalizeAndValidateErrors(t *testing.T) {
	cfg := Default()
	cfg.App.Port = 0
	cfg.Settings.MLMode = "aggressive"
	cfg.Settings.MLRescueThreshold = 1.5
	cfg.Settings.WorkMode = "space"
	cfg.Scheduler.Mode = "sometimes"
	cfg.ML.Backend = BackendKeyword
	cfg.ML.Rules = []Rule{{Tag: "", Any: []string{" "}}}
	cfg.Companies = []domain.Company{{Name: ""}}

	_, v := NormalizeAndValidate(cfg)
	assert.False(t, v.OK())
	for _, want := range []string{
		"app.port must be 1..65535",
		`settings.ml_mode must be rank_only or rescue (got "aggressive")`,
		"settings.ml_rescue_threshold must be within [0,1]",
		`settings.work_mode must be any, remote, hybrid or onsite (got "space")`,
		`scheduler.mode must be off, once or loop (got "sometimes")`,
		"ml.rules[0] needs a tag",
		"ml.rules[0].any[0] cannot be empty",
		"companies[0].company_name is required",
	} {
		assert.Contains(t, v.Errors, want)
	}
	assert.ErrorContains(t, v.Err(), "config validation failed")
}

func TestSaveAtomicKeepsBackup(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "config.yml")

	cfg := Default()
	require.NoError(t, SaveAtomic(path, cfg))
	cfg.App.Port = 9100
	require.NoError(t, SaveAtomic(path, cfg))

	got, err := Load(path)
	require.NoError(t, err)
	assert.Equal(t, 9100, got.App.Port)

	var bak Config
	b, err := os.ReadFile(path + ".bak")
	require.NoError(t, err)
	require.NoError(t, yaml.Unmarshal(b, &bak))
	assert.Equal(t, Default().App.Port, bak.App.Port)

	cfg.App.Port = -1
	require.Error(t, SaveAtomic(path, cfg))
}

func TestEnsureUserConfig(t *testing.T) {
	dir := filepath.Join(t.TempDir(), "data")

	path, err := EnsureUserConfig(dir, "")
	require.NoError(t, err)
	assert.Equal(t, filepath.Join(dir, "config.yml"), path)

	cfg, err := Load(path)
	require.NoError(t, err)
	assert.Equal(t, dir, cfg.App.DataDir)

	tpl := filepath.Join(t.TempDir(), "default.yml")
	writeFile(t, tpl, "app:\n  port: 1234\n")
	other := filepath.Join(t.TempDir(), "other")
	path, err = EnsureUserConfig(other, tpl)
	require.NoError(t, err)
	b, err := os.ReadFile(path)
	require.NoError(t, err)
	assert.Contains(t, string(b), "1234")

	// existing file is left alone
	writeFile(t, tpl, "app:\n  port: 5678\n")
	_, err = EnsureUserConfig(other, tpl)
	require.NoError(t, err)
	b, err = os.ReadFile(path)
	require.NoError(t, err)
	assert.Contains(t, string(b), "1234")
}

func TestOverlayCompanies(t *testing.T) {
	cfg := Default()
	cfg.Companies = []domain.Company{{
		Name:    "Acme",
		Sources: []domain.Source{{Type: domain.SourceGreenhouse, Slug: "acme"}},
	}}

	require.NoError(t, OverlayCompanies(&cfg, filepath.Join(t.TempDir(), "none.yml")))

	path := filepath.Join(t.TempDir(), "companies.yml")
	writeFile(t, path, `
companies:
  - company_name: acme
    employer_name: Acme Holdings Inc
    sources:
      - type: greenhouse
        slug: acme
      - type: career_url
        url: https://acme.com/careers
  - company_name: Globex
    sources:
      - type: lever
        slug: globex
`)
	require.NoError(t, OverlayCompanies(&cfg, path))
	require.Len(t, cfg.Companies, 2)
	assert.Len(t, cfg.Companies[0].Sources, 2)
	assert.Equal(t, "Acme Holdings Inc", cfg.Companies[0].EmployerName)
	assert.Equal(t, "Globex", cfg.Companies[1].Name)
}
