// Package runner executes one harvesting run: fetch every configured source,
// normalize and evaluate the postings, apply overrides and the ML gate,
// persist state, and write the exports.
package runner

import (
	"context"
	"database/sql"
	"time"

	"github.com/google/uuid"
	"github.com/rotisserie/eris"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"

	"jobharvest-engine/internal/domain"
	"jobharvest-engine/internal/events"
	"jobharvest-engine/internal/identity"
	"jobharvest-engine/internal/normalize"
	"jobharvest-engine/internal/rank"
	"jobharvest-engine/internal/scrape/types"
	"jobharvest-engine/internal/store"
)

// SponsorIndex marks jobs whose employer sponsored H-1B visas before.
type SponsorIndex interface {
	Enrich(jobs []domain.NormalizedJob) []domain.NormalizedJob
	LoadErrors() []string
}

type Options struct {
	Settings       domain.Settings
	Companies      []domain.Company
	MaxWorkers     int
	CompanyTimeout time.Duration
	// OutputDir receives the exports; empty skips them.
	OutputDir string
	// DataDir holds the run lock; empty disables locking.
	DataDir string
	UserID  string
}

type Stats struct {
	Fetched           int               `json:"fetched"`
	Evaluated         int               `json:"evaluated"`
	Kept              int               `json:"kept"`
	Unique            int               `json:"unique"`
	New               int               `json:"new"`
	SourceErrors      map[string]string `json:"source_errors"`
	NormalizeErrors   int               `json:"normalize_errors"`
	H1BErrorsCount    int               `json:"h1b_errors_count"`
	OverridesApplied  int               `json:"overrides_applied"`
	MLBackend         string            `json:"ml_backend"`
	MLScored          int               `json:"ml_scored"`
	MLRescued         int               `json:"ml_rescued"`
	MLUnavailable     bool              `json:"ml_unavailable"`
	UpgradedSources   int               `json:"upgraded_sources"`
	DiscoveredSources int               `json:"discovered_sources"`
	SettingsHash      string            `json:"settings_hash"`
	Logs              string            `json:"logs"`
}

type Result struct {
	RunID        string             `json:"run_id"`
	SettingsHash string             `json:"settings_hash"`
	StartedAt    time.Time          `json:"started_at"`
	FinishedAt   time.Time          `json:"finished_at"`
	Stats        Stats              `json:"stats"`
	Current      []domain.StoredJob `json:"current"`
	New          []domain.StoredJob `json:"new"`
	Decisions    []Decision         `json:"-"`
}

type Runner struct {
	db       *store.DB
	agents   types.Registry
	scorer   rank.ScoringBackend
	sponsors SponsorIndex
	hub      *events.Hub
	tap      *LogTap
	opts     Options
	log      *zap.Logger
	now      func() time.Time
	newID    func() string
}

type Option func(*Runner)

func WithScorer(s rank.ScoringBackend) Option { return func(r *Runner) { r.scorer = s } }
func WithSponsors(s SponsorIndex) Option      { return func(r *Runner) { r.sponsors = s } }
func WithHub(h *events.Hub) Option            { return func(r *Runner) { r.hub = h } }
func WithClock(now func() time.Time) Option   { return func(r *Runner) { r.now = now } }
func WithIDs(newID func() string) Option      { return func(r *Runner) { r.newID = newID } }

// WithLogTap shares a tap already installed on the root logger, so every
// component's output is captured into the run record.
func WithLogTap(t *LogTap) Option { return func(r *Runner) { r.tap = t } }

func New(db *store.DB, agents types.Registry, opts Options, log *zap.Logger, o ...Option) *Runner {
	if log == nil {
		log = zap.NewNop()
	}
	if opts.MaxWorkers <= 0 {
		opts.MaxWorkers = 6
	}
	if opts.CompanyTimeout <= 0 {
		opts.CompanyTimeout = 180 * time.Second
	}
	if opts.UserID == "" {
		opts.UserID = "local"
	}
	r := &Runner{
		db:     db,
		agents: agents,
		opts:   opts,
		log:    log.Named("runner"),
		now:    func() time.Time { return time.Now().UTC() },
		newID:  uuid.NewString,
	}
	for _, fn := range o {
		fn(r)
	}
	if r.tap == nil {
		r.tap = NewLogTap()
		core := r.tap.Core(zapcore.DebugLevel)
		r.log = r.log.WithOptions(zap.WrapCore(func(c zapcore.Core) zapcore.Core {
			return zapcore.NewTee(c, core)
		}))
	}
	return r
}

// RunOnce performs a full run. Source failures are recorded in the stats and
// never abort the run; storage and export failures do.
func (r *Runner) RunOnce(ctx context.Context) (*Result, error) {
	release, err := acquire(r.opts.DataDir)
	if err != nil {
		return nil, err
	}
	defer release()

	hash, settingsJSON, err := SettingsHash(r.opts.Settings)
	if err != nil {
		return nil, err
	}
	res := &Result{
		RunID:        r.newID(),
		SettingsHash: hash,
		StartedAt:    r.now(),
	}
	buf := r.tap.start()
	defer r.tap.stop()

	log := r.log.With(zap.String("run_id", res.RunID))
	r.hub.Emit("", events.TypeRunStarted, events.RunEvent{RunID: res.RunID, SettingsHash: hash})
	log.Info("runner: run started", zap.String("settings_hash", hash), zap.Int("companies", len(r.opts.Companies)))

	if err := r.run(ctx, res, settingsJSON, buf, log); err != nil {
		log.Error("runner: run failed", zap.Error(err))
		r.hub.Emit("", events.TypeRunFailed, events.RunEvent{RunID: res.RunID, SettingsHash: hash, Error: err.Error()})
		return nil, err
	}

	log.Info("runner: run finished",
		zap.Int("kept", res.Stats.Kept),
		zap.Int("new", res.Stats.New),
		zap.Int("source_errors", len(res.Stats.SourceErrors)),
		zap.Duration("took", res.FinishedAt.Sub(res.StartedAt)),
	)
	r.hub.Emit("", events.TypeRunFinished, events.RunEvent{
		RunID:        res.RunID,
		SettingsHash: hash,
		Kept:         res.Stats.Kept,
		New:          res.Stats.New,
		Errors:       len(res.Stats.SourceErrors),
	})
	return res, nil
}

func (r *Runner) run(ctx context.Context, res *Result, settingsJSON []byte, buf *logBuffer, log *zap.Logger) error {
	st := &res.Stats
	st.SettingsHash = res.SettingsHash

	known, err := store.DiscoveredSources(ctx, r.db.Pool, "")
	if err != nil {
		return err
	}
	companies, upgraded := ApplyDiscoveries(r.opts.Companies, known)
	st.UpgradedSources = upgraded

	batches, errs := r.fetchAll(ctx, groupCompanies(companies), log)
	st.SourceErrors = errs

	var normalized []domain.NormalizedJob
	for _, b := range batches {
		st.Fetched += len(b.raws)
		jobs, nerrs := normalize.All(b.raws, b.origin)
		for _, e := range nerrs {
			log.Debug("runner: skip posting", zap.String("company", b.origin.Label), zap.Error(e))
		}
		st.NormalizeErrors += len(nerrs)
		normalized = append(normalized, jobs...)
	}
	evaluated := identity.Unique(identity.Assign(normalized))
	st.Evaluated = len(evaluated)
	log.Info("runner: fetched", zap.Int("postings", st.Fetched), zap.Int("unique", st.Evaluated), zap.Int("source_errors", len(errs)))

	overrides, err := store.LoadOverrides(ctx, r.db.Pool)
	if err != nil {
		return err
	}
	decisions, ds := Decide(ctx, evaluated, r.opts.Settings, overrides, r.scorer, log)
	res.Decisions = decisions
	st.OverridesApplied = ds.Overrides
	st.MLRescued = ds.Rescued
	st.MLUnavailable = r.opts.Settings.MLEnabled && ds.MLUnavailable
	st.MLScored = len(ds.Scores)
	if r.scorer != nil && r.scorer.Available() {
		st.MLBackend = r.scorer.ModelID()
	}

	found := detections(batches)
	for _, list := range found {
		st.DiscoveredSources += len(list)
	}

	keep := kept(decisions)
	if r.sponsors != nil {
		keep = r.sponsors.Enrich(keep)
		st.H1BErrorsCount = len(r.sponsors.LoadErrors())
	} else {
		for i := range keep {
			keep[i] = keep[i].WithH1BSupport(false)
		}
	}
	st.Kept = len(keep)

	rc := store.RunContext{RunID: res.RunID, SettingsHash: res.SettingsHash}
	now := r.now()
	err = r.db.WithTx(ctx, func(tx *sql.Tx) error {
		current, fresh, err := store.UpsertAndComputeNew(ctx, tx, keep, rc, now)
		if err != nil {
			return err
		}
		res.Current, res.New = current, fresh
		st.Unique, st.New = len(current), len(fresh)

		members := make([]store.Membership, len(decisions))
		audit := make([]store.AuditRow, len(decisions))
		for i, d := range decisions {
			members[i] = store.Membership{DedupeKey: d.Job.DedupeKey, Included: d.Included}
			audit[i] = store.NewAuditRow(rc, d.Job, d.Included, d.Reasons, now)
		}
		if err := store.RecordMembership(ctx, tx, rc, members, now); err != nil {
			return err
		}
		if err := store.WriteAudit(ctx, tx, audit); err != nil {
			return err
		}
		if err := store.SaveRunSettings(ctx, tx, store.RunSettings{
			RunID:        res.RunID,
			UserID:       r.opts.UserID,
			SettingsHash: res.SettingsHash,
			SettingsJSON: string(settingsJSON),
			CreatedAt:    store.FormatTime(now),
		}); err != nil {
			return err
		}
		if _, stored := r.scorer.(*rank.StoredScores); !stored && len(ds.Scores) > 0 {
			if err := store.UpsertMLScores(ctx, tx, r.scorer.ModelID(), ds.Scores, now); err != nil {
				return err
			}
		}

		res.FinishedAt = r.now()
		st.Logs = buf.String()
		return store.InsertRun(ctx, tx, res.RunID, res.StartedAt, res.FinishedAt, st)
	})
	if err != nil {
		return eris.Wrap(err, "runner: persist")
	}

	if len(found) > 0 {
		if err := RecordDetections(ctx, r.db, found, now); err != nil {
			log.Warn("runner: record discovered sources", zap.Int("companies", len(found)), zap.Error(err))
		}
	}

	if r.opts.OutputDir != "" {
		if err := WriteExports(r.opts.OutputDir, res.Current, res.New); err != nil {
			return err
		}
	}
	return nil
}
