package main

import (
	"context"
	"crypto/rand"
	"crypto/subtle"
	"encoding/hex"
	"encoding/json"
	"io"
	"net"
	"net/http"
	"path/filepath"
	"strings"
	"time"

	"github.com/rotisserie/eris"
	"github.com/urfave/cli/v2"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"

	"jobharvest-engine/internal/config"
	"jobharvest-engine/internal/domain"
	"jobharvest-engine/internal/events"
	"jobharvest-engine/internal/h1b"
	"jobharvest-engine/internal/rank"
	"jobharvest-engine/internal/runner"
	"jobharvest-engine/internal/scrape/careerurl"
	"jobharvest-engine/internal/scrape/greenhouse"
	"jobharvest-engine/internal/scrape/lever"
	"jobharvest-engine/internal/scrape/types"
	"jobharvest-engine/internal/scrape/util"
	"jobharvest-engine/internal/store"
)

// newLogger builds the root logger. Everything it writes is also offered to
// tap, which keeps a copy for the active run record.
func newLogger(level string, tap *runner.LogTap) (*zap.Logger, error) {
	lvl, err := zapcore.ParseLevel(level)
	if err != nil {
		return nil, eris.Wrapf(err, "invalid log level %q", level)
	}
	zc := zap.NewDevelopmentConfig()
	zc.Level = zap.NewAtomicLevelAt(lvl)
	zc.DisableStacktrace = true
	base, err := zc.Build()
	if err != nil {
		return nil, eris.Wrap(err, "build logger")
	}
	return base.WithOptions(zap.WrapCore(func(c zapcore.Core) zapcore.Core {
		return zapcore.NewTee(c, tap.Core(lvl))
	})), nil
}

// loadConfig resolves the config file, applies the companies overlay and
// validates. Warnings are logged; errors abort.
func loadConfig(c *cli.Context, log *zap.Logger) (config.Config, string, error) {
	path := c.String("config")
	if path == "" {
		p, err := config.EnsureUserConfig(c.String("data-dir"), filepath.Join("config", "config.yml"))
		if err != nil {
			return config.Config{}, "", err
		}
		path = p
	}

	cfg, err := config.Load(path)
	if err != nil {
		return config.Config{}, path, err
	}
	if c.IsSet("data-dir") {
		cfg.App.DataDir = c.String("data-dir")
	}
	if overlay := c.String("companies"); overlay != "" {
		if err := config.OverlayCompanies(&cfg, overlay); err != nil {
			return config.Config{}, path, err
		}
	}

	cfg, v := config.NormalizeAndValidate(cfg)
	for _, w := range v.Warnings {
		log.Warn("config: " + w)
	}
	if !v.OK() {
		return config.Config{}, path, v.Err()
	}
	return cfg, path, nil
}

func openStore(ctx context.Context, cfg config.Config) (*store.DB, error) {
	db, err := store.Open(filepath.Join(cfg.App.DataDir, "jobs.db"))
	if err != nil {
		return nil, err
	}
	if err := store.Migrate(ctx, db.Pool); err != nil {
		_ = db.Close()
		return nil, err
	}
	return db, nil
}

func seconds(n int) time.Duration { return time.Duration(n) * time.Second }

func newClient(cfg config.Config) *util.Client {
	opts := []util.ClientOption{
		util.WithLimiter(util.NewHostLimiter(cfg.HTTP.RequestsPerSecond, cfg.HTTP.Burst)),
	}
	if ua := strings.TrimSpace(cfg.HTTP.UserAgent); ua != "" {
		opts = append(opts, util.WithUserAgent(ua))
	}
	return util.NewClient(opts...)
}

func crawlConfig(cfg config.Config) careerurl.Config {
	cc := careerurl.DefaultConfig()
	cr := cfg.Crawl
	cc.MaxPages = cr.MaxPages
	cc.TimeBudget = seconds(cr.TimeBudgetSeconds)
	cc.ListTimeout = seconds(cr.ListTimeoutSeconds)
	cc.DetailTimeout = seconds(cr.DetailTimeoutSeconds)
	cc.MaxCandidates = cr.MaxCandidates
	cc.MaxFetch = cr.MaxFetch
	cc.NoProgress = cr.NoProgressPages
	cc.RenderEnabled = cr.Playwright
	cc.AutoRender = cr.AutoPlaywright
	return cc
}

func atsAgents(client *util.Client, cfg config.Config, log *zap.Logger) (*greenhouse.Agent, *lever.Agent) {
	timeout := seconds(cfg.HTTP.TimeoutSeconds)
	return greenhouse.New(client, log, greenhouse.WithTimeout(timeout)),
		lever.New(client, log, lever.WithTimeout(timeout))
}

func newRegistry(client *util.Client, cfg config.Config, log *zap.Logger) types.Registry {
	gh, lv := atsAgents(client, cfg, log)
	cc := crawlConfig(cfg)
	opts := []careerurl.Option{careerurl.WithConfig(cc), careerurl.WithATS(gh, lv)}
	if cc.RenderEnabled {
		ua := cfg.HTTP.UserAgent
		if ua == "" {
			ua = util.DefaultUserAgent
		}
		opts = append(opts, careerurl.WithRenderer(careerurl.NewPlaywrightRenderer(cc, ua, log)))
	}
	return types.NewRegistry(gh, lv, careerurl.New(client, log, opts...))
}

// newRunner wires one run from a config snapshot.
func newRunner(ctx context.Context, cfg config.Config, db *store.DB, hub *events.Hub, tap *runner.LogTap, log *zap.Logger) *runner.Runner {
	client := newClient(cfg)
	ro := []runner.Option{
		runner.WithScorer(rank.Detect(ctx, cfg.ML, db.Pool, log)),
		runner.WithHub(hub),
		runner.WithLogTap(tap),
	}
	if cfg.H1B.Enabled {
		cacheDir := cfg.H1B.CacheDir
		if cacheDir == "" {
			cacheDir = filepath.Join(cfg.App.DataDir, "uscis")
		}
		idx := h1b.New(client, cacheDir, log)
		idx.Load(ctx, cfg.H1B.Years)
		ro = append(ro, runner.WithSponsors(idx))
	}
	return runner.New(db, newRegistry(client, cfg, log), runner.Options{
		Settings:       cfg.Settings,
		Companies:      cfg.Companies,
		MaxWorkers:     cfg.Fetch.MaxWorkers,
		CompanyTimeout: seconds(cfg.Fetch.CompanyTimeoutSeconds),
		OutputDir:      cfg.App.OutputDir,
		DataDir:        cfg.App.DataDir,
		UserID:         cfg.App.UserID,
	}, log, ro...)
}

// parseSeeds reads "greenhouse:acme" style flags.
func parseSeeds(vals []string) ([]domain.Source, error) {
	var out []domain.Source
	for _, v := range vals {
		t, slug, ok := strings.Cut(strings.TrimSpace(v), ":")
		st := domain.SourceType(strings.ToLower(strings.TrimSpace(t)))
		if !ok || !st.IsATS() || strings.TrimSpace(slug) == "" {
			return nil, eris.Errorf("invalid seed %q, want greenhouse:<slug> or lever:<slug>", v)
		}
		out = append(out, domain.Source{Type: st, Slug: strings.TrimSpace(slug)})
	}
	return out, nil
}

func outputJSON(w io.Writer, v any) error {
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	enc.SetEscapeHTML(false)
	return enc.Encode(v)
}

func randomToken(n int) (string, error) {
	b := make([]byte, n)
	if _, err := rand.Read(b); err != nil {
		return "", err
	}
	return hex.EncodeToString(b), nil
}

func shutdownHandler(token string, srv *http.Server) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if r.Method != http.MethodPost {
			w.WriteHeader(http.StatusMethodNotAllowed)
			return
		}

		host, _, err := net.SplitHostPort(r.RemoteAddr)
		if err != nil {
			host = r.RemoteAddr
		}
		if host != "127.0.0.1" && host != "::1" && host != "localhost" {
			http.Error(w, "forbidden", http.StatusForbidden)
			return
		}

		got := r.Header.Get("X-Shutdown-Token")
		if got == "" || subtle.ConstantTimeCompare([]byte(got), []byte(token)) != 1 {
			http.Error(w, "unauthorized", http.StatusUnauthorized)
			return
		}

		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte("shutting down\n"))

		go func() {
			ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
			defer cancel()
			_ = srv.Shutdown(ctx)
		}()
	}
}
