package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net"
	"net/http"
	"os"
	"os/signal"
	"strings"
	"sync/atomic"
	"syscall"
	"time"

	"github.com/joho/godotenv"
	"github.com/urfave/cli/v2"
	"go.uber.org/zap"

	"jobharvest-engine/internal/config"
	"jobharvest-engine/internal/discovery"
	"jobharvest-engine/internal/events"
	"jobharvest-engine/internal/httpapi"
	"jobharvest-engine/internal/runner"
	"jobharvest-engine/internal/scheduler"
	"jobharvest-engine/internal/store"
)

// Version is set via -ldflags at build time.
var Version = "dev"

// env is what every command gets after the global flags are processed.
type env struct {
	cfg     config.Config
	cfgPath string
	log     *zap.Logger
	tap     *runner.LogTap
	out     io.Writer
}

func main() {
	_ = godotenv.Load()

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if err := newCLIApp(os.Stdout).RunContext(ctx, os.Args); err != nil {
		fmt.Fprintf(os.Stderr, "error: %v\n", err)
		os.Exit(1)
	}
}

func newCLIApp(out io.Writer) *cli.App {
	e := &env{out: out, tap: runner.NewLogTap()}
	app := &cli.App{
		Name:    "engine",
		Usage:   "Harvest job postings from ATS boards and career pages",
		Version: Version,
		Writer:  out,
		Flags: []cli.Flag{
			&cli.StringFlag{Name: "config", Aliases: []string{"c"}, EnvVars: []string{"JOBHARVEST_CONFIG"}, Usage: "Config file (default: <data-dir>/config.yml)"},
			&cli.StringFlag{Name: "data-dir", EnvVars: []string{"JOBHARVEST_DATA_DIR"}, Value: "./.data", Usage: "State directory"},
			&cli.StringFlag{Name: "companies", Usage: "Extra companies file merged over the config"},
			&cli.StringFlag{Name: "log-level", EnvVars: []string{"JOBHARVEST_LOG_LEVEL"}, Value: "info", Usage: "debug|info|warn|error"},
		},
		Before: func(c *cli.Context) error {
			log, err := newLogger(c.String("log-level"), e.tap)
			if err != nil {
				return err
			}
			e.log = log
			return nil
		},
		After: func(*cli.Context) error {
			if e.log != nil {
				_ = e.log.Sync()
			}
			return nil
		},
		Commands: []*cli.Command{
			runCmd(e),
			serveCmd(e),
			discoverCmd(e),
			overridesCmd(e),
			runsCmd(e),
			jobsCmd(e),
			migrateCmd(e),
		},
	}
	app.ExitErrHandler = func(_ *cli.Context, _ error) {}
	return app
}

// withStore loads config, opens the database and hands both to fn.
func (e *env) withStore(c *cli.Context, fn func(db *store.DB) error) error {
	cfg, path, err := loadConfig(c, e.log)
	if err != nil {
		return err
	}
	e.cfg, e.cfgPath = cfg, path

	db, err := openStore(c.Context, cfg)
	if err != nil {
		return err
	}
	defer db.Close()
	return fn(db)
}

func runCmd(e *env) *cli.Command {
	return &cli.Command{
		Name:  "run",
		Usage: "Run the pipeline now (or on an interval with --mode loop)",
		Flags: []cli.Flag{
			&cli.StringFlag{Name: "mode", Usage: "once|loop (default: scheduler.mode, once when off)"},
			&cli.BoolFlag{Name: "with-logs", Usage: "Include captured logs in the printed stats"},
		},
		Action: func(c *cli.Context) error {
			return e.withStore(c, func(db *store.DB) error {
				mode := c.String("mode")
				if mode == "" {
					mode = e.cfg.Scheduler.Mode
				}
				if mode == "" || mode == scheduler.ModeOff {
					mode = scheduler.ModeOnce
				}
				interval := time.Duration(e.cfg.Scheduler.IntervalMinutes) * time.Minute

				return scheduler.Run(c.Context, mode, interval, "harvest", func(ctx context.Context) error {
					res, err := newRunner(ctx, e.cfg, db, nil, e.tap, e.log).RunOnce(ctx)
					if err != nil {
						return err
					}
					if !c.Bool("with-logs") {
						res.Stats.Logs = ""
					}
					return outputJSON(e.out, map[string]any{
						"run_id":        res.RunID,
						"settings_hash": res.SettingsHash,
						"stats":         res.Stats,
					})
				}, e.log)
			})
		},
	}
}

func serveCmd(e *env) *cli.Command {
	return &cli.Command{
		Name:  "serve",
		Usage: "Serve the HTTP API; runs on the configured schedule in loop mode",
		Flags: []cli.Flag{
			&cli.StringFlag{Name: "addr", Usage: "Listen address (default: 127.0.0.1:<app.port>)"},
		},
		Action: func(c *cli.Context) error {
			return e.withStore(c, func(db *store.DB) error {
				return e.serve(c, db)
			})
		},
	}
}

func (e *env) serve(c *cli.Context, db *store.DB) error {
	ctx := c.Context
	hub := events.NewHub()

	var cfgVal atomic.Value
	cfgVal.Store(e.cfg)
	var status atomic.Value
	status.Store(httpapi.RunStatus{})

	dataDir := c.String("data-dir")
	loadCfg := func() (config.Config, error) {
		cfg, err := config.Load(e.cfgPath)
		if err != nil {
			return cfg, err
		}
		if c.IsSet("data-dir") {
			cfg.App.DataDir = dataDir
		}
		if overlay := c.String("companies"); overlay != "" {
			if err := config.OverlayCompanies(&cfg, overlay); err != nil {
				return cfg, err
			}
		}
		cfg, v := config.NormalizeAndValidate(cfg)
		return cfg, v.Err()
	}
	runOnce := func(ctx context.Context, cfg config.Config) (*runner.Result, error) {
		return newRunner(ctx, cfg, db, hub, e.tap, e.log).RunOnce(ctx)
	}
	discover := func(ctx context.Context, req discovery.Request) discovery.Result {
		cfg := cfgVal.Load().(config.Config)
		client := newClient(cfg)
		gh, lv := atsAgents(client, cfg, e.log)
		return discovery.New(client, e.log, discovery.WithATS(gh, lv)).Discover(ctx, req)
	}

	mux := httpapi.NewMux(httpapi.Deps{
		DB:          db,
		Hub:         hub,
		Log:         e.log,
		CfgVal:      &cfgVal,
		RunStatus:   &status,
		UserCfgPath: e.cfgPath,
		LoadCfg:     loadCfg,
		RunOnce:     runOnce,
		Discover:    discover,
	})

	addr := c.String("addr")
	if addr == "" {
		addr = fmt.Sprintf("127.0.0.1:%d", e.cfg.App.Port)
	}
	ln, err := net.Listen("tcp", addr)
	if err != nil {
		return err
	}

	srv := &http.Server{
		Handler:           httpapi.Chain(mux, httpapi.RequestID, httpapi.Recover(e.log), httpapi.AccessLog(e.log), httpapi.Cors),
		ReadHeaderTimeout: 5 * time.Second,
	}
	token := os.Getenv("JOBHARVEST_SHUTDOWN_TOKEN")
	if token == "" {
		if token, err = randomToken(16); err != nil {
			return err
		}
	}
	mux.HandleFunc("/shutdown", shutdownHandler(token, srv))

	if e.cfg.Scheduler.Mode == scheduler.ModeLoop {
		go func() {
			interval := time.Duration(e.cfg.Scheduler.IntervalMinutes) * time.Minute
			err := scheduler.Run(ctx, scheduler.ModeLoop, interval, "harvest", func(ctx context.Context) error {
				_, err := runOnce(ctx, cfgVal.Load().(config.Config))
				return err
			}, e.log)
			if err != nil {
				e.log.Error("scheduler: stopped", zap.Error(err))
			}
		}()
	}

	go func() {
		<-ctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		_ = srv.Shutdown(shutdownCtx)
	}()

	e.log.Info("engine listening",
		zap.String("addr", "http://"+ln.Addr().String()),
		zap.String("config", e.cfgPath),
		zap.String("shutdown_token", token),
	)
	if err := srv.Serve(ln); err != nil && !errors.Is(err, http.ErrServerClosed) {
		return err
	}
	return nil
}

func discoverCmd(e *env) *cli.Command {
	return &cli.Command{
		Name:      "discover",
		Usage:     "Find and verify ATS boards for a company",
		ArgsUsage: "<company name>",
		Flags: []cli.Flag{
			&cli.StringFlag{Name: "career-url", Usage: "Company careers page to inspect"},
			&cli.StringSliceFlag{Name: "seed", Usage: "Known source, e.g. greenhouse:acme (repeatable)"},
			&cli.StringFlag{Name: "mode", Value: discovery.ModeValidateExisting, Usage: "validate_existing|expand"},
		},
		Action: func(c *cli.Context) error {
			seeds, err := parseSeeds(c.StringSlice("seed"))
			if err != nil {
				return err
			}
			req := discovery.Request{
				CompanyName: strings.Join(c.Args().Slice(), " "),
				CareerURL:   c.String("career-url"),
				Seeds:       seeds,
				Mode:        c.String("mode"),
			}
			if req.CompanyName == "" && req.CareerURL == "" && len(seeds) == 0 {
				return errors.New("discover needs a company name, --career-url or --seed")
			}

			cfg, _, err := loadConfig(c, e.log)
			if err != nil {
				return err
			}
			client := newClient(cfg)
			gh, lv := atsAgents(client, cfg, e.log)
			res := discovery.New(client, e.log, discovery.WithATS(gh, lv)).Discover(c.Context, req)
			return outputJSON(e.out, res)
		},
	}
}

func overridesCmd(e *env) *cli.Command {
	return &cli.Command{
		Name:  "overrides",
		Usage: "Manage manual include/exclude decisions",
		Subcommands: []*cli.Command{
			{
				Name:  "list",
				Usage: "List overrides, most recently changed first",
				Action: func(c *cli.Context) error {
					return e.withStore(c, func(db *store.DB) error {
						list, err := store.ListOverrides(c.Context, db.Pool)
						if err != nil {
							return err
						}
						if list == nil {
							list = []store.Override{}
						}
						return outputJSON(e.out, list)
					})
				},
			},
			{
				Name:      "set",
				Usage:     "Force a job in or out of every future run",
				ArgsUsage: "<dedupe_key> <include|exclude>",
				Flags: []cli.Flag{
					&cli.StringFlag{Name: "note", Usage: "Why"},
				},
				Action: func(c *cli.Context) error {
					if c.NArg() != 2 {
						return errors.New("usage: overrides set <dedupe_key> <include|exclude>")
					}
					return e.withStore(c, func(db *store.DB) error {
						key, action := c.Args().Get(0), c.Args().Get(1)
						if err := store.SetOverride(c.Context, db.Pool, key, action, c.String("note"), time.Now().UTC()); err != nil {
							return err
						}
						return outputJSON(e.out, map[string]any{"ok": true, "dedupe_key": key, "action": strings.ToLower(action)})
					})
				},
			},
			{
				Name:      "clear",
				Usage:     "Remove the override for a job",
				ArgsUsage: "<dedupe_key>",
				Action: func(c *cli.Context) error {
					if c.NArg() != 1 {
						return errors.New("usage: overrides clear <dedupe_key>")
					}
					return e.withStore(c, func(db *store.DB) error {
						removed, err := store.DeleteOverride(c.Context, db.Pool, c.Args().First())
						if err != nil {
							return err
						}
						return outputJSON(e.out, map[string]any{"ok": removed, "dedupe_key": c.Args().First()})
					})
				},
			},
		},
	}
}

func runsCmd(e *env) *cli.Command {
	return &cli.Command{
		Name:  "runs",
		Usage: "Inspect past runs",
		Subcommands: []*cli.Command{
			{
				Name:  "list",
				Usage: "List recent runs",
				Flags: []cli.Flag{
					&cli.IntFlag{Name: "limit", Value: 20},
				},
				Action: func(c *cli.Context) error {
					return e.withStore(c, func(db *store.DB) error {
						runs, err := store.ListRuns(c.Context, db.Pool, c.Int("limit"))
						if err != nil {
							return err
						}
						if runs == nil {
							runs = []store.Run{}
						}
						return outputJSON(e.out, runs)
					})
				},
			},
			{
				Name:      "audit",
				Usage:     "Show the reason trail of every job evaluated in a run",
				ArgsUsage: "<run_id>",
				Flags: []cli.Flag{
					&cli.BoolFlag{Name: "dropped", Usage: "Only jobs that were not included"},
					&cli.BoolFlag{Name: "kept", Usage: "Only jobs that were included"},
				},
				Action: func(c *cli.Context) error {
					if c.NArg() != 1 {
						return errors.New("usage: runs audit <run_id>")
					}
					var included *bool
					switch {
					case c.Bool("dropped") && c.Bool("kept"):
						return errors.New("--dropped and --kept are exclusive")
					case c.Bool("dropped"):
						v := false
						included = &v
					case c.Bool("kept"):
						v := true
						included = &v
					}
					return e.withStore(c, func(db *store.DB) error {
						rows, err := store.ListAudit(c.Context, db.Pool, c.Args().First(), included)
						if err != nil {
							return err
						}
						if rows == nil {
							rows = []store.AuditRow{}
						}
						return outputJSON(e.out, rows)
					})
				},
			},
		},
	}
}

func jobsCmd(e *env) *cli.Command {
	return &cli.Command{
		Name:  "jobs",
		Usage: "List the latest known jobs",
		Flags: []cli.Flag{
			&cli.StringFlag{Name: "sort", Value: "first_seen", Usage: "first_seen|company|title|ml"},
			&cli.StringFlag{Name: "window", Value: "all", Usage: "24h|7d|all"},
			&cli.IntFlag{Name: "limit", Value: 500},
		},
		Action: func(c *cli.Context) error {
			return e.withStore(c, func(db *store.DB) error {
				jobs, err := store.ListLatest(c.Context, db.Pool, store.ListJobsOpts{
					Sort:   c.String("sort"),
					Window: c.String("window"),
					Limit:  c.Int("limit"),
				})
				if err != nil {
					return err
				}
				if jobs == nil {
					jobs = []store.LatestJob{}
				}
				return outputJSON(e.out, jobs)
			})
		},
	}
}

func migrateCmd(e *env) *cli.Command {
	return &cli.Command{
		Name:  "migrate",
		Usage: "Create or upgrade the database schema",
		Action: func(c *cli.Context) error {
			return e.withStore(c, func(db *store.DB) error {
				var v int
				if err := db.Pool.QueryRowContext(c.Context, `PRAGMA user_version;`).Scan(&v); err != nil {
					return err
				}
				return outputJSON(e.out, map[string]any{"ok": true, "schema_version": v})
			})
		},
	}
}
