package careerurl

import (
	"net/url"
	"regexp"
	"strings"
)

var (
	// Oracle Recruiting Cloud job and requisition links.
	oracleJobRE  = regexp.MustCompile(`(?i)/en/sites/jobsearch/job/\d+/?`)
	oracleJobRE2 = regexp.MustCompile(`(?i)/jobsearch/job/\d+/?`)
	oracleReqRE  = regexp.MustCompile(`(?i)/requisitions/\d+/?`)

	numericJobPathRE = regexp.MustCompile(`/(jobs|careers|positions|listing)/[^?#]*\d{4,}(\b|/|$)`)
	jobIDPathRE      = regexp.MustCompile(`/job/\d+/?`)
	tileJobHrefRE    = regexp.MustCompile(`(?i)/job/\d+/?|/jobs/view/\d+|/careers/job/\d+|/positions/\d+|/job-search/\d+`)
)

func isGreenhouseHosted(low string) bool {
	return strings.Contains(low, "boards.greenhouse.io") || strings.Contains(low, "job-boards.greenhouse.io")
}

func isLeverPosting(low string) bool {
	return strings.Contains(low, "lever.co") && (strings.Contains(low, "/apply") || strings.Contains(low, "/postings/"))
}

func isOracle(low string) bool {
	return oracleJobRE.MatchString(low) || oracleJobRE2.MatchString(low) || oracleReqRE.MatchString(low)
}

// isHighSignal reports whether u has the shape of a job detail link. Results
// from JSON extraction are only trusted when their URL passes.
func isHighSignal(u string) bool {
	low := strings.ToLower(u)
	return strings.Contains(low, "/jobs/listing/") ||
		strings.Contains(low, "gh_jid=") ||
		isGreenhouseHosted(low) ||
		isLeverPosting(low) ||
		isOracle(low) ||
		numericJobPathRE.MatchString(low)
}

// isDetailCandidate is isHighSignal minus hosted Greenhouse boards, whose
// pages are better read through the API.
func isDetailCandidate(u string) bool {
	low := strings.ToLower(u)
	return strings.Contains(low, "/jobs/listing/") ||
		strings.Contains(low, "gh_jid=") ||
		isLeverPosting(low) ||
		isOracle(low) ||
		numericJobPathRE.MatchString(low)
}

// isJobish is the last-resort anchor test used by listing extraction.
func isJobish(u string) bool {
	low := strings.ToLower(u)
	path := ""
	if p, err := url.Parse(u); err == nil {
		path = strings.ToLower(p.Path)
	}
	return strings.Contains(low, "gh_jid=") ||
		isGreenhouseHosted(low) ||
		isLeverPosting(low) ||
		strings.Contains(path, "/jobs/listing/") ||
		jobIDPathRE.MatchString(path) ||
		numericJobPathRE.MatchString(low)
}

func urlPath(u string) string {
	p, err := url.Parse(u)
	if err != nil {
		return ""
	}
	return p.Path
}
