package store

import (
	"context"
	"database/sql"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"jobharvest-engine/internal/domain"
)

func openTestDB(t *testing.T) *DB {
	t.Helper()
	db, err := Open(filepath.Join(t.TempDir(), "jobs.db"))
	require.NoError(t, err)
	t.Cleanup(func() { _ = db.Close() })
	require.NoError(t, Migrate(context.Background(), db.Pool))
	return db
}

func testJob(key, title string) domain.NormalizedJob {
	return domain.NormalizedJob{
		SourceType:   domain.SourceGreenhouse,
		CompanyLabel: "Acme",
		Title:        title,
		Location:     "Austin, TX",
		URL:          "https://example.com/" + key,
		DedupeKey:    key,
	}
}

var (
	t0 = time.Date(2026, 3, 1, 9, 0, 0, 0, time.UTC)
	t1 = t0.Add(24 * time.Hour)
)

func TestMigrateIsIdempotent(t *testing.T) {
	db := openTestDB(t)
	ctx := context.Background()

	require.NoError(t, Migrate(ctx, db.Pool))

	var v int
	require.NoError(t, db.Pool.QueryRow(`PRAGMA user_version;`).Scan(&v))
	assert.Equal(t, schemaVersion, v)
	assert.True(t, columnExists(ctx, db.Pool, "jobs_latest", "work_mode"))
	assert.False(t, columnExists(ctx, db.Pool, "jobs_latest", "nope"))
}

func TestUpsertAndComputeNew(t *testing.T) {
	db := openTestDB(t)
	ctx := context.Background()
	rc := RunContext{RunID: "run-1", SettingsHash: "h1"}

	jobs := []domain.NormalizedJob{testJob("url:a", "Engineer"), testJob("url:b", "Analyst")}

	var cur, fresh []domain.StoredJob
	err := db.WithTx(ctx, func(tx *sql.Tx) error {
		var err error
		cur, fresh, err = UpsertAndComputeNew(ctx, tx, jobs, rc, t0)
		return err
	})
	require.NoError(t, err)
	assert.Len(t, cur, 2)
	assert.Len(t, fresh, 2)
	assert.Equal(t, FormatTime(t0), cur[0].FirstSeen)

	// second sighting: same first_seen, nothing new
	jobs[0].Title = "Senior Engineer"
	cur, fresh, err = UpsertAndComputeNew(ctx, db.Pool, jobs, RunContext{RunID: "run-2", SettingsHash: "h1"}, t1)
	require.NoError(t, err)
	assert.Empty(t, fresh)
	require.Len(t, cur, 2)
	assert.Equal(t, FormatTime(t0), cur[0].FirstSeen)

	var lastSeen, title string
	require.NoError(t, db.Pool.QueryRow(`SELECT last_seen FROM jobs_seen WHERE dedupe_key = 'url:a'`).Scan(&lastSeen))
	require.NoError(t, db.Pool.QueryRow(`SELECT title FROM jobs_latest WHERE dedupe_key = 'url:a'`).Scan(&title))
	assert.Equal(t, FormatTime(t1), lastSeen)
	assert.Equal(t, "Senior Engineer", title)

	keys, err := MatchedUnderSettings(ctx, db.Pool, "h1")
	require.NoError(t, err)
	assert.Equal(t, []string{"url:a", "url:b"}, keys)
}

func TestUpsertAndComputeNewSameRunIsIdempotent(t *testing.T) {
	db := openTestDB(t)
	ctx := context.Background()
	rc := RunContext{RunID: "run-1", SettingsHash: "h1"}
	jobs := []domain.NormalizedJob{testJob("url:a", "Engineer")}

	_, fresh, err := UpsertAndComputeNew(ctx, db.Pool, jobs, rc, t0)
	require.NoError(t, err)
	assert.Len(t, fresh, 1)

	_, fresh, err = UpsertAndComputeNew(ctx, db.Pool, jobs, rc, t0)
	require.NoError(t, err)
	assert.Empty(t, fresh)

	var n int
	require.NoError(t, db.Pool.QueryRow(`SELECT COUNT(*) FROM run_jobs WHERE run_id = 'run-1'`).Scan(&n))
	assert.Equal(t, 1, n)
}

func TestUpsertDefaultsAndMissingKey(t *testing.T) {
	db := openTestDB(t)
	ctx := context.Background()

	_, _, err := UpsertAndComputeNew(ctx, db.Pool, []domain.NormalizedJob{{Title: "x"}}, RunContext{}, t0)
	require.Error(t, err)

	_, _, err = UpsertAndComputeNew(ctx, db.Pool, []domain.NormalizedJob{testJob("url:z", "Z")}, RunContext{}, t0)
	require.NoError(t, err)

	var h1b, mode string
	require.NoError(t, db.Pool.QueryRow(`SELECT past_h1b_support, work_mode FROM jobs_latest WHERE dedupe_key = 'url:z'`).Scan(&h1b, &mode))
	assert.Equal(t, "no", h1b)
	assert.Equal(t, "unknown", mode)

	// no run context, no membership
	var n int
	require.NoError(t, db.Pool.QueryRow(`SELECT COUNT(*) FROM run_jobs`).Scan(&n))
	assert.Zero(t, n)
}

func TestFailedTransactionRollsBack(t *testing.T) {
	db := openTestDB(t)
	ctx := context.Background()

	err := db.WithTx(ctx, func(tx *sql.Tx) error {
		_, _, err := UpsertAndComputeNew(ctx, tx, []domain.NormalizedJob{testJob("url:a", "A")}, RunContext{}, t0)
		require.NoError(t, err)
		return assert.AnError
	})
	require.ErrorIs(t, err, assert.AnError)

	seen, err := FirstSeen(ctx, db.Pool, []string{"url:a"})
	require.NoError(t, err)
	assert.Empty(t, seen)
}

func TestRecordMembershipAndAudit(t *testing.T) {
	db := openTestDB(t)
	ctx := context.Background()
	rc := RunContext{RunID: "run-1", SettingsHash: "h1"}

	require.Error(t, RecordMembership(ctx, db.Pool, RunContext{}, nil, t0))
	require.NoError(t, RecordMembership(ctx, db.Pool, rc, []Membership{
		{DedupeKey: "url:a", Included: true},
		{DedupeKey: "url:b", Included: false},
	}, t0))

	keys, err := MatchedUnderSettings(ctx, db.Pool, "h1")
	require.NoError(t, err)
	assert.Equal(t, []string{"url:a"}, keys)

	a := testJob("url:a", "Engineer")
	b := testJob("url:b", "Analyst")
	rows := []AuditRow{
		NewAuditRow(rc, a, true, []string{"role:engineer", "ml:rescued"}, t0),
		NewAuditRow(rc, b, false, nil, t0),
	}
	require.NoError(t, WriteAudit(ctx, db.Pool, rows))
	require.NoError(t, WriteAudit(ctx, db.Pool, rows))

	all, err := ListAudit(ctx, db.Pool, "run-1", nil)
	require.NoError(t, err)
	require.Len(t, all, 2)
	assert.Equal(t, "Analyst", all[0].Title)
	assert.Equal(t, []string{}, all[0].Reasons)
	assert.Equal(t, "unknown", all[0].WorkMode)

	inc := true
	kept, err := ListAudit(ctx, db.Pool, "run-1", &inc)
	require.NoError(t, err)
	require.Len(t, kept, 1)
	assert.Equal(t, []string{"role:engineer", "ml:rescued"}, kept[0].Reasons)
}

func TestRunsAndSettings(t *testing.T) {
	db := openTestDB(t)
	ctx := context.Background()

	r, err := GetRun(ctx, db.Pool, "missing")
	require.NoError(t, err)
	assert.Nil(t, r)

	require.NoError(t, InsertRun(ctx, db.Pool, "run-1", t0, t0.Add(time.Minute), map[string]int{"kept": 3}))
	require.NoError(t, InsertRun(ctx, db.Pool, "run-2", t1, t1.Add(time.Minute), map[string]int{"kept": 5}))

	r, err = GetRun(ctx, db.Pool, "run-1")
	require.NoError(t, err)
	require.NotNil(t, r)
	assert.JSONEq(t, `{"kept":3}`, string(r.Stats))

	list, err := ListRuns(ctx, db.Pool, 10)
	require.NoError(t, err)
	require.Len(t, list, 2)
	assert.Equal(t, "run-2", list[0].RunID)

	require.NoError(t, SaveRunSettings(ctx, db.Pool, RunSettings{
		RunID: "run-1", UserID: "local", SettingsHash: "h1", SettingsJSON: `{"us_only":true}`, CreatedAt: FormatTime(t0),
	}))
	s, err := GetRunSettings(ctx, db.Pool, "run-1")
	require.NoError(t, err)
	require.NotNil(t, s)
	assert.Equal(t, "h1", s.SettingsHash)
}

func TestOverrides(t *testing.T) {
	db := openTestDB(t)
	ctx := context.Background()

	require.Error(t, SetOverride(ctx, db.Pool, "url:a", "maybe", "", t0))
	require.Error(t, SetOverride(ctx, db.Pool, " ", "include", "", t0))

	require.NoError(t, SetOverride(ctx, db.Pool, "url:a", "Include", "great team", t0))
	require.NoError(t, SetOverride(ctx, db.Pool, "url:b", "exclude", "", t0))
	require.NoError(t, SetOverride(ctx, db.Pool, "url:a", "exclude", "changed mind", t1))

	list, err := ListOverrides(ctx, db.Pool)
	require.NoError(t, err)
	require.Len(t, list, 2)
	assert.Equal(t, "url:a", list[0].DedupeKey)
	assert.Equal(t, FormatTime(t0), list[0].CreatedAt)
	assert.Equal(t, FormatTime(t1), list[0].UpdatedAt)

	m, err := LoadOverrides(ctx, db.Pool)
	require.NoError(t, err)
	assert.Equal(t, map[string]string{"url:a": "exclude", "url:b": "exclude"}, m)

	ok, err := DeleteOverride(ctx, db.Pool, "url:b")
	require.NoError(t, err)
	assert.True(t, ok)
	ok, err = DeleteOverride(ctx, db.Pool, "url:b")
	require.NoError(t, err)
	assert.False(t, ok)
}

func TestMLScoresAndListLatest(t *testing.T) {
	db := openTestDB(t)
	ctx := context.Background()

	_, _, err := UpsertAndComputeNew(ctx, db.Pool, []domain.NormalizedJob{
		testJob("url:a", "Backend Engineer"),
		testJob("url:b", "Analyst"),
	}, RunContext{}, t0)
	require.NoError(t, err)

	require.NoError(t, UpsertMLScores(ctx, db.Pool, "keyword-v1", map[string]float64{"url:b": 0.9}, t0))
	n, err := CountMLScores(ctx, db.Pool)
	require.NoError(t, err)
	assert.Equal(t, 1, n)

	scores, err := LoadMLScores(ctx, db.Pool, []string{"url:a", "url:b"})
	require.NoError(t, err)
	assert.Equal(t, map[string]float64{"url:b": 0.9}, scores)

	jobs, err := ListLatest(ctx, db.Pool, ListJobsOpts{Sort: "ml", Window: "7d", Now: t1})
	require.NoError(t, err)
	require.Len(t, jobs, 2)
	assert.Equal(t, "url:b", jobs[0].DedupeKey)
	require.NotNil(t, jobs[0].MLProb)
	assert.InDelta(t, 0.9, *jobs[0].MLProb, 1e-9)
	assert.Nil(t, jobs[1].MLProb)

	jobs, err = ListLatest(ctx, db.Pool, ListJobsOpts{Window: "24h", Now: t0.Add(72 * time.Hour)})
	require.NoError(t, err)
	assert.Empty(t, jobs)

	removed, err := CleanupStale(ctx, db.Pool, 48*time.Hour, t0.Add(72*time.Hour))
	require.NoError(t, err)
	assert.EqualValues(t, 2, removed)

	seen, err := FirstSeen(ctx, db.Pool, []string{"url:a"})
	require.NoError(t, err)
	assert.Equal(t, FormatTime(t0), seen["url:a"])
}

func TestDiscoveredSources(t *testing.T) {
	db := openTestDB(t)
	ctx := context.Background()

	det := domain.Detection{Type: domain.SourceGreenhouse, Slug: "Acme", FromURL: "https://acme.com/careers"}
	require.NoError(t, UpsertDiscoveredSource(ctx, db.Pool, "  Acme   Corp ", det, t0))
	require.NoError(t, UpsertDiscoveredSource(ctx, db.Pool, "acme corp", det, t1))
	// career_url detections are not boards
	require.NoError(t, UpsertDiscoveredSource(ctx, db.Pool, "acme corp", domain.Detection{Type: domain.SourceCareerURL, Slug: "x"}, t1))

	got, err := DiscoveredSources(ctx, db.Pool, "ACME CORP")
	require.NoError(t, err)
	require.Len(t, got, 1)
	assert.Equal(t, "acme corp", got[0].Company)
	assert.Equal(t, "acme", got[0].Slug)
	assert.Equal(t, FormatTime(t1), got[0].DiscoveredAt)

	all, err := DiscoveredSources(ctx, db.Pool, "")
	require.NoError(t, err)
	assert.Len(t, all, 1)
}
