// Package normalize maps source-native postings into domain.NormalizedJob.
package normalize

import (
	"strings"
	"unicode/utf8"

	"github.com/rotisserie/eris"

	"jobharvest-engine/internal/domain"
	"jobharvest-engine/internal/geo"
)

// Origin describes where a batch of raw postings came from.
type Origin struct {
	Label    string
	Slug     string
	Employer string
}

func (o Origin) employer() string {
	if e := strings.TrimSpace(o.Employer); e != "" {
		return e
	}
	return o.Label
}

// workModeWindow is how much of the description feeds work-mode detection.
const workModeWindow = 500

// Job normalizes one raw posting. Only unknown variants fail.
func Job(raw domain.RawPosting, o Origin) (domain.NormalizedJob, error) {
	switch p := raw.(type) {
	case domain.GreenhousePosting:
		return greenhouse(p, o), nil
	case *domain.GreenhousePosting:
		return greenhouse(*p, o), nil
	case domain.LeverPosting:
		return lever(p, o), nil
	case *domain.LeverPosting:
		return lever(*p, o), nil
	case domain.CareerPosting:
		return career(p, o), nil
	case *domain.CareerPosting:
		return career(*p, o), nil
	case domain.DetectedPosting:
		return detected(p, o)
	case *domain.DetectedPosting:
		return detected(*p, o)
	default:
		return domain.NormalizedJob{}, eris.Errorf("normalize: unsupported posting %T", raw)
	}
}

// All normalizes a batch, skipping entries that cannot be mapped.
func All(raws []domain.RawPosting, o Origin) ([]domain.NormalizedJob, []error) {
	out := make([]domain.NormalizedJob, 0, len(raws))
	var errs []error
	for _, r := range raws {
		j, err := Job(r, o)
		if err != nil {
			errs = append(errs, err)
			continue
		}
		out = append(out, j)
	}
	return out, errs
}

func greenhouse(p domain.GreenhousePosting, o Origin) domain.NormalizedJob {
	loc := strings.TrimSpace(p.Location.Name)
	dept := ""
	if len(p.Departments) > 0 {
		dept = p.Departments[0].Name
	}
	return domain.NormalizedJob{
		SourceType:   domain.SourceGreenhouse,
		CompanyLabel: o.Label,
		CompanySlug:  o.Slug,
		EmployerName: o.employer(),
		JobID:        string(p.ID),
		Title:        p.Title,
		Location:     loc,
		Description:  p.Content,
		URL:          p.AbsoluteURL,
		Department:   dept,
		DatePosted:   p.UpdatedAt,
		WorkMode:     workMode(p.Title, loc, p.Content),
	}
}

func lever(p domain.LeverPosting, o Origin) domain.NormalizedJob {
	id := firstNonEmpty(p.ID, p.Shortcode)
	title := firstNonEmpty(p.Text, p.Title)
	loc := firstNonEmpty(p.Categories.Location, p.Location)
	return domain.NormalizedJob{
		SourceType:   domain.SourceLever,
		CompanyLabel: o.Label,
		CompanySlug:  o.Slug,
		EmployerName: o.employer(),
		JobID:        id,
		Title:        title,
		Location:     loc,
		Description:  p.Description,
		URL:          firstNonEmpty(p.HostedURL, p.ApplyURL),
		Department:   p.Categories.Department,
		Team:         p.Categories.Team,
		DatePosted:   p.PostedAt(),
		WorkMode:     workMode(title, loc, p.Description),
	}
}

// career uses the company label as the slug; scraped pages have no native one.
func career(p domain.CareerPosting, o Origin) domain.NormalizedJob {
	loc := strings.TrimSpace(p.Location)
	return domain.NormalizedJob{
		SourceType:   domain.SourceCareerURL,
		CompanyLabel: o.Label,
		CompanySlug:  o.Label,
		EmployerName: o.employer(),
		JobID:        p.ID,
		Title:        p.Title,
		Location:     loc,
		Description:  p.Content,
		URL:          p.URL,
		WorkMode:     workMode(p.Title, loc, p.Content),
	}
}

// detected normalizes the wrapped ATS posting natively, then records which
// career page led to it.
func detected(p domain.DetectedPosting, o Origin) (domain.NormalizedJob, error) {
	if p.Posting == nil {
		return domain.NormalizedJob{}, eris.New("normalize: detected posting without payload")
	}
	inner := o
	inner.Slug = p.Detection.Slug
	j, err := Job(p.Posting, inner)
	if err != nil {
		return domain.NormalizedJob{}, err
	}
	return j.WithDetection(p.Detection), nil
}

func workMode(title, loc, desc string) domain.WorkMode {
	return geo.ClassifyWorkMode(title + " " + loc + " " + runePrefix(desc, workModeWindow))
}

func runePrefix(s string, n int) string {
	if utf8.RuneCountInString(s) <= n {
		return s
	}
	i := 0
	for pos := range s {
		if i == n {
			return s[:pos]
		}
		i++
	}
	return s
}

func firstNonEmpty(vals ...string) string {
	for _, v := range vals {
		if v != "" {
			return v
		}
	}
	return ""
}
