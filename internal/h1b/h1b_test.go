package h1b

import (
	"context"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"strings"
	"sync/atomic"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap/zaptest"

	"jobharvest-engine/internal/domain"
	"jobharvest-engine/internal/scrape/util"
)

func TestCanonicalEmployer(t *testing.T) {
	tests := []struct {
		in, want string
	}{
		{"Acme, Inc.", "ACME"},
		{"acme llc", "ACME"},
		{"Widget Corporation", "WIDGET"},
		{"Société Générale", "SOCIETEGENERALE"},
		{"  The Foo Company ", "THEFOO"},
		{"Incorporated", ""},
	}
	for _, tt := range tests {
		t.Run(tt.in, func(t *testing.T) {
			assert.Equal(t, tt.want, CanonicalEmployer(tt.in))
		})
	}
}

func TestEmployerColumn(t *testing.T) {
	assert.Equal(t, 1, employerColumn([]string{"Fiscal Year", " Employer ", "Employer (Petitioner) Name"}))
	assert.Equal(t, 2, employerColumn([]string{"Fiscal Year", "State", "Employer (Petitioner) Name"}))
	assert.Equal(t, -1, employerColumn([]string{"Fiscal Year", "State"}))
}

const exportCSV = "\ufeffFiscal Year,Employer (Petitioner) Name,State\n2024,\"Acme, Inc.\",TX\n2024,Globex LLC,CA\n2024,,NY\n"

func TestLoadDownloadsOnceAndCaches(t *testing.T) {
	var hits atomic.Int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		hits.Add(1)
		if strings.HasSuffix(r.URL.Path, "-2024.csv") {
			_, _ = w.Write([]byte(exportCSV))
			return
		}
		http.NotFound(w, r)
	}))
	defer srv.Close()

	dir := t.TempDir()
	client := util.NewClient(util.WithRetryPolicy(util.NoRetry()))

	x := New(client, dir, zaptest.NewLogger(t), WithBaseURL(srv.URL))
	x.Load(context.Background(), []int{2024, 2023})

	assert.True(t, x.Loaded())
	assert.True(t, x.HasPastSponsorship("ACME"))
	assert.True(t, x.HasPastSponsorship("globex, llc"))
	assert.False(t, x.HasPastSponsorship("Initech"))
	assert.False(t, x.HasPastSponsorship(""))

	errs := x.LoadErrors()
	require.Len(t, errs, 1)
	assert.Contains(t, errs[0], "USCIS download failed for 2023")

	_, err := os.Stat(filepath.Join(dir, "h1b_datahubexport-2024.csv"))
	require.NoError(t, err)
	_, err = os.Stat(filepath.Join(dir, "h1b_datahubexport-2023.csv.tmp"))
	assert.True(t, os.IsNotExist(err))

	before := hits.Load()
	y := New(client, dir, zaptest.NewLogger(t), WithBaseURL(srv.URL))
	y.Load(context.Background(), []int{2024})
	assert.Equal(t, before, hits.Load())
	assert.True(t, y.HasPastSponsorship("Acme Corp"))
}

func TestLoadRejectsFilesWithoutEmployerColumn(t *testing.T) {
	dir := t.TempDir()
	require.NoError(t, os.WriteFile(filepath.Join(dir, "h1b_datahubexport-2022.csv"), []byte("Year,State\n2022,TX\n"), 0o644))

	x := New(nil, dir, zaptest.NewLogger(t))
	x.Load(context.Background(), []int{2022})

	assert.False(t, x.Loaded())
	require.Len(t, x.LoadErrors(), 1)
	assert.Contains(t, x.LoadErrors()[0], "no employer column")
	assert.False(t, x.HasPastSponsorship("Acme"))
}

func TestEnrich(t *testing.T) {
	x := New(nil, t.TempDir(), nil)
	_, err := x.read(strings.NewReader("Employer\nAcme Inc\n"))
	require.NoError(t, err)

	in := []domain.NormalizedJob{
		{CompanyLabel: "Acme"},
		{CompanyLabel: "Display Name", EmployerName: "ACME, INC."},
		{CompanyLabel: "Other"},
	}
	out := x.Enrich(in)

	assert.Equal(t, domain.H1BYes, out[0].PastH1BSupport)
	assert.Equal(t, domain.H1BYes, out[1].PastH1BSupport)
	assert.Equal(t, domain.H1BNo, out[2].PastH1BSupport)
	assert.Empty(t, in[0].PastH1BSupport)
}
