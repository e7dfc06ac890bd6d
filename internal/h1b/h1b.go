// Package h1b answers whether an employer appears in the USCIS H-1B employer
// data hub exports for the configured fiscal years.
package h1b

import (
	"context"
	"encoding/csv"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"regexp"
	"strings"
	"time"
	"unicode"

	"github.com/rotisserie/eris"
	"go.uber.org/zap"
	"golang.org/x/text/runes"
	"golang.org/x/text/transform"
	"golang.org/x/text/unicode/norm"

	"jobharvest-engine/internal/domain"
	"jobharvest-engine/internal/scrape/util"
)

const (
	DefaultCacheDir = "./.cache/uscis_h1b"
	DefaultBaseURL  = "https://www.uscis.gov/sites/default/files/document/data"
	downloadTimeout = 60 * time.Second
)

var (
	legalSuffixRE = regexp.MustCompile(`(?i)\b(incorporated|inc|llc|l\.l\.c\.|ltd|limited|corp|corporation|co|company|pllc)\b`)
	nonAlnumRE    = regexp.MustCompile(`[^A-Z0-9]+`)
)

// CanonicalEmployer folds name to the form used for lookups: accents removed,
// legal suffixes dropped, uppercased, alphanumerics only.
func CanonicalEmployer(name string) string {
	s := strings.ToUpper(strings.TrimSpace(foldAccents(name)))
	s = legalSuffixRE.ReplaceAllString(s, " ")
	return nonAlnumRE.ReplaceAllString(s, "")
}

func foldAccents(s string) string {
	t := transform.Chain(norm.NFD, runes.Remove(runes.In(unicode.Mn)), norm.NFC)
	out, _, err := transform.String(t, s)
	if err != nil {
		return s
	}
	return out
}

type Option func(*Index)

func WithBaseURL(u string) Option { return func(x *Index) { x.baseURL = strings.TrimRight(u, "/") } }

// Index is an in-memory set of canonical employer names. It is read-only once
// Load returns and safe for concurrent lookups.
type Index struct {
	client   *util.Client
	cacheDir string
	baseURL  string
	log      *zap.Logger

	employers  map[string]struct{}
	loadErrors []string
}

func New(client *util.Client, cacheDir string, log *zap.Logger, opts ...Option) *Index {
	if log == nil {
		log = zap.NewNop()
	}
	if strings.TrimSpace(cacheDir) == "" {
		cacheDir = DefaultCacheDir
	}
	x := &Index{
		client:    client,
		cacheDir:  cacheDir,
		baseURL:   DefaultBaseURL,
		log:       log.Named("h1b"),
		employers: map[string]struct{}{},
	}
	for _, o := range opts {
		o(x)
	}
	return x
}

func (x *Index) urlFor(year int) string {
	return fmt.Sprintf("%s/h1b_datahubexport-%d.csv", x.baseURL, year)
}

func (x *Index) cachePath(year int) string {
	return filepath.Join(x.cacheDir, fmt.Sprintf("h1b_datahubexport-%d.csv", year))
}

// Load reads every year, downloading missing files into the cache. Failures
// are recorded in LoadErrors and never abort the load.
func (x *Index) Load(ctx context.Context, years []int) {
	if err := os.MkdirAll(x.cacheDir, 0o755); err != nil {
		x.fail("USCIS cache dir failed: %v", err)
		return
	}
	for _, year := range years {
		path, err := x.ensureCached(ctx, year)
		if err != nil {
			x.fail("USCIS download failed for %d: %v", year, err)
			continue
		}
		n, err := x.loadFile(path)
		if err != nil {
			x.fail("USCIS read failed for %s: %v", path, err)
			continue
		}
		x.log.Debug("h1b: loaded export", zap.Int("year", year), zap.Int("employers", n))
	}
	x.log.Info("h1b: index ready",
		zap.Int("employers", len(x.employers)),
		zap.Int("errors", len(x.loadErrors)),
	)
}

func (x *Index) fail(format string, args ...any) {
	msg := fmt.Sprintf(format, args...)
	x.loadErrors = append(x.loadErrors, msg)
	x.log.Warn("h1b: " + msg)
}

func (x *Index) ensureCached(ctx context.Context, year int) (string, error) {
	path := x.cachePath(year)
	if st, err := os.Stat(path); err == nil && st.Size() > 0 {
		return path, nil
	}
	if x.client == nil {
		return "", eris.New("no http client")
	}

	tmp := path + ".tmp"
	f, err := os.Create(tmp)
	if err != nil {
		return "", err
	}
	_, err = x.client.Download(ctx, x.urlFor(year), downloadTimeout, f)
	if cerr := f.Close(); err == nil {
		err = cerr
	}
	if err != nil {
		_ = os.Remove(tmp)
		return "", err
	}
	if err := os.Rename(tmp, path); err != nil {
		_ = os.Remove(tmp)
		return "", err
	}
	return path, nil
}

func (x *Index) loadFile(path string) (int, error) {
	f, err := os.Open(path)
	if err != nil {
		return 0, err
	}
	defer f.Close()
	return x.read(f)
}

func (x *Index) read(r io.Reader) (int, error) {
	cr := csv.NewReader(r)
	cr.FieldsPerRecord = -1
	cr.LazyQuotes = true

	header, err := cr.Read()
	if errors.Is(err, io.EOF) {
		return 0, eris.New("no headers")
	}
	if err != nil {
		return 0, err
	}
	if len(header) > 0 {
		header[0] = strings.TrimPrefix(header[0], "\ufeff")
	}
	col := employerColumn(header)
	if col < 0 {
		return 0, eris.New("no employer column")
	}

	n := 0
	for {
		rec, err := cr.Read()
		if errors.Is(err, io.EOF) {
			break
		}
		if err != nil {
			return n, err
		}
		if col >= len(rec) {
			continue
		}
		if c := CanonicalEmployer(rec[col]); c != "" {
			x.employers[c] = struct{}{}
			n++
		}
	}
	return n, nil
}

// employerColumn prefers an exact "employer" header, then any header that
// mentions it.
func employerColumn(header []string) int {
	for i, h := range header {
		if strings.ToLower(strings.TrimSpace(h)) == "employer" {
			return i
		}
	}
	for i, h := range header {
		if strings.Contains(strings.ToLower(strings.TrimSpace(h)), "employer") {
			return i
		}
	}
	return -1
}

func (x *Index) Loaded() bool { return len(x.employers) > 0 }

func (x *Index) LoadErrors() []string { return append([]string(nil), x.loadErrors...) }

// HasPastSponsorship is false whenever the index is empty.
func (x *Index) HasPastSponsorship(employer string) bool {
	if !x.Loaded() {
		return false
	}
	c := CanonicalEmployer(employer)
	if c == "" {
		return false
	}
	_, ok := x.employers[c]
	return ok
}

// Enrich returns jobs with past_h1b_support set from each job's employer name.
func (x *Index) Enrich(jobs []domain.NormalizedJob) []domain.NormalizedJob {
	out := make([]domain.NormalizedJob, len(jobs))
	for i, j := range jobs {
		employer := j.EmployerName
		if employer == "" {
			employer = j.CompanyLabel
		}
		out[i] = j.WithH1BSupport(x.HasPastSponsorship(employer))
	}
	return out
}
