package config

import (
	"os"
	"strconv"
	"strings"

	"github.com/joho/godotenv"
	"github.com/rotisserie/eris"
	"gopkg.in/yaml.v3"

	"jobharvest-engine/internal/domain"
	"jobharvest-engine/internal/filter"
)

// Rule adds Weight to the relevance logit when any term appears in the
// title or description.
type Rule struct {
	Tag    string   `yaml:"tag" json:"tag"`
	Weight float64  `yaml:"weight" json:"weight"`
	Any    []string `yaml:"any" json:"any"`
}

type Penalty struct {
	Reason string   `yaml:"reason" json:"reason"`
	Weight float64  `yaml:"weight" json:"weight"`
	Any    []string `yaml:"any" json:"any"`
}

const (
	BackendNone    = "none"
	BackendStored  = "stored"
	BackendKeyword = "keyword"
)

type MLConfig struct {
	Backend   string    `yaml:"backend" json:"backend"`
	ModelID   string    `yaml:"model_id" json:"model_id"`
	Bias      float64   `yaml:"bias" json:"bias"`
	Rules     []Rule    `yaml:"rules" json:"rules"`
	Penalties []Penalty `yaml:"penalties" json:"penalties"`
}

type CrawlConfig struct {
	MaxPages             int  `yaml:"max_pages" json:"max_pages"`
	TimeBudgetSeconds    int  `yaml:"time_budget_seconds" json:"time_budget_seconds"`
	ListTimeoutSeconds   int  `yaml:"list_timeout_seconds" json:"list_timeout_seconds"`
	DetailTimeoutSeconds int  `yaml:"detail_timeout_seconds" json:"detail_timeout_seconds"`
	MaxCandidates        int  `yaml:"max_candidates" json:"max_candidates"`
	MaxFetch             int  `yaml:"max_fetch" json:"max_fetch"`
	NoProgressPages      int  `yaml:"no_progress_pages" json:"no_progress_pages"`
	Playwright           bool `yaml:"playwright" json:"playwright"`
	AutoPlaywright       bool `yaml:"auto_playwright" json:"auto_playwright"`
}

const (
	SchedulerOff  = "off"
	SchedulerOnce = "once"
	SchedulerLoop = "loop"
)

type Config struct {
	App struct {
		Port      int    `yaml:"port" json:"port"`
		DataDir   string `yaml:"data_dir" json:"data_dir"`
		OutputDir string `yaml:"output_dir" json:"output_dir"`
		UserID    string `yaml:"user_id" json:"user_id"`
	} `yaml:"app" json:"app"`

	HTTP struct {
		UserAgent         string  `yaml:"user_agent" json:"user_agent"`
		TimeoutSeconds    int     `yaml:"timeout_seconds" json:"timeout_seconds"`
		RequestsPerSecond float64 `yaml:"requests_per_second" json:"requests_per_second"`
		Burst             int     `yaml:"burst" json:"burst"`
	} `yaml:"http" json:"http"`

	Crawl CrawlConfig `yaml:"crawl" json:"crawl"`

	Fetch struct {
		MaxWorkers            int `yaml:"max_workers" json:"max_workers"`
		CompanyTimeoutSeconds int `yaml:"company_timeout_seconds" json:"company_timeout_seconds"`
	} `yaml:"fetch" json:"fetch"`

	Settings domain.Settings `yaml:"settings" json:"settings"`

	H1B struct {
		Enabled  bool   `yaml:"enabled" json:"enabled"`
		Years    []int  `yaml:"years" json:"years"`
		CacheDir string `yaml:"cache_dir" json:"cache_dir"`
	} `yaml:"h1b" json:"h1b"`

	ML MLConfig `yaml:"ml" json:"ml"`

	Scheduler struct {
		Mode            string `yaml:"mode" json:"mode"`
		IntervalMinutes int    `yaml:"interval_minutes" json:"interval_minutes"`
	} `yaml:"scheduler" json:"scheduler"`

	Companies []domain.Company `yaml:"companies" json:"companies"`
}

func Default() Config {
	var c Config
	c.App.Port = 38471
	c.App.DataDir = "./.data"
	c.App.OutputDir = "./output"
	c.App.UserID = "local"

	c.HTTP.TimeoutSeconds = 30
	c.HTTP.RequestsPerSecond = 2
	c.HTTP.Burst = 2

	c.Crawl = CrawlConfig{
		MaxPages:             15,
		TimeBudgetSeconds:    25,
		ListTimeoutSeconds:   25,
		DetailTimeoutSeconds: 20,
		MaxCandidates:        60,
		MaxFetch:             40,
		NoProgressPages:      2,
		AutoPlaywright:       true,
	}

	c.Fetch.MaxWorkers = 6
	c.Fetch.CompanyTimeoutSeconds = 180

	c.Settings = domain.DefaultSettings()
	// spelled out so a saved config round-trips; nil would marshal as []
	c.Settings.VisaRestrictionPhrases = append([]string(nil), filter.DefaultVisaRestrictionPhrases...)

	c.H1B.Enabled = true
	c.H1B.Years = []int{2024, 2023}
	c.H1B.CacheDir = "./.cache/uscis_h1b"

	c.ML.Backend = BackendNone
	c.ML.ModelID = "keyword-v1"

	c.Scheduler.Mode = SchedulerOff
	c.Scheduler.IntervalMinutes = 15
	return c
}

// Load reads .env (if present), then path over the defaults, then applies
// environment overrides. Environment always wins.
func Load(path string) (Config, error) {
	_ = godotenv.Load()

	cfg := Default()
	b, err := os.ReadFile(path)
	if err != nil {
		return cfg, eris.Wrapf(err, "config: read %s", path)
	}
	if err := yaml.Unmarshal(b, &cfg); err != nil {
		return cfg, eris.Wrapf(err, "config: parse %s", path)
	}
	if err := ApplyEnv(&cfg); err != nil {
		return cfg, err
	}
	return cfg, nil
}

// ApplyEnv overlays the process environment onto cfg.
func ApplyEnv(cfg *Config) error {
	if v := strings.TrimSpace(os.Getenv("JOBHARVEST_DATA_DIR")); v != "" {
		cfg.App.DataDir = v
	}
	if v := strings.TrimSpace(os.Getenv("SCHEDULER_MODE")); v != "" {
		cfg.Scheduler.Mode = strings.ToLower(v)
	}

	ints := []struct {
		name string
		dst  *int
	}{
		{"CAREERURL_MAX_PAGES", &cfg.Crawl.MaxPages},
		{"CAREERURL_TIME_BUDGET_S", &cfg.Crawl.TimeBudgetSeconds},
		{"CAREERURL_LIST_TIMEOUT_S", &cfg.Crawl.ListTimeoutSeconds},
		{"CAREERURL_DETAIL_TIMEOUT_S", &cfg.Crawl.DetailTimeoutSeconds},
		{"CAREERURL_MAX_CANDIDATES", &cfg.Crawl.MaxCandidates},
		{"CAREERURL_MAX_FETCH", &cfg.Crawl.MaxFetch},
		{"CAREERURL_NO_PROGRESS_PAGES", &cfg.Crawl.NoProgressPages},
		{"FETCH_MAX_WORKERS", &cfg.Fetch.MaxWorkers},
		{"REFRESH_INTERVAL_MINUTES", &cfg.Scheduler.IntervalMinutes},
	}
	for _, e := range ints {
		v := strings.TrimSpace(os.Getenv(e.name))
		if v == "" {
			continue
		}
		n, err := strconv.Atoi(v)
		if err != nil {
			return eris.Wrapf(err, "config: %s", e.name)
		}
		*e.dst = n
	}

	bools := []struct {
		name string
		dst  *bool
	}{
		{"CAREERURL_PLAYWRIGHT", &cfg.Crawl.Playwright},
		{"CAREERURL_AUTO_PLAYWRIGHT", &cfg.Crawl.AutoPlaywright},
	}
	for _, e := range bools {
		v := strings.TrimSpace(os.Getenv(e.name))
		if v == "" {
			continue
		}
		*e.dst = envTruthy(v)
	}
	return nil
}

func envTruthy(v string) bool {
	switch strings.ToLower(v) {
	case "1", "true", "yes", "on":
		return true
	}
	return false
}
