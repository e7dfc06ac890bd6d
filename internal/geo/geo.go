// Package geo holds the US-location and work-mode heuristics used by the
// normalizer and the filter engine.
package geo

import (
	"regexp"
	"sort"
	"strings"

	"jobharvest-engine/internal/domain"
)

var (
	stateCodeRE  = regexp.MustCompile(`(?:,\s*|\s+)([A-Z]{2})(?:\b|$)`)
	usHintRE     = regexp.MustCompile(`(?i)\b(united states|u\.s\.a\.|usa|u\.s\.|us)\b`)
	remoteUSRE   = regexp.MustCompile(`(?i)\bremote\b.*\b(us|u\.s\.|united states)\b`)
	partSplitRE  = regexp.MustCompile(`(?i)\bor\b|/|\||;|•`)
	nonLetterRE  = regexp.MustCompile(`[^A-Z\s]`)
	multiSpaceRE = regexp.MustCompile(`\s+`)
)

type nameCode struct{ name, code string }

// Longest names first so "WEST VIRGINIA" wins over "VIRGINIA".
var stateNames = byLengthDesc([]nameCode{
	{"ALABAMA", "AL"}, {"ALASKA", "AK"}, {"ARIZONA", "AZ"}, {"ARKANSAS", "AR"},
	{"CALIFORNIA", "CA"}, {"COLORADO", "CO"}, {"CONNECTICUT", "CT"}, {"DELAWARE", "DE"},
	{"FLORIDA", "FL"}, {"GEORGIA", "GA"}, {"HAWAII", "HI"}, {"IDAHO", "ID"},
	{"ILLINOIS", "IL"}, {"INDIANA", "IN"}, {"IOWA", "IA"}, {"KANSAS", "KS"},
	{"KENTUCKY", "KY"}, {"LOUISIANA", "LA"}, {"MAINE", "ME"}, {"MARYLAND", "MD"},
	{"MASSACHUSETTS", "MA"}, {"MICHIGAN", "MI"}, {"MINNESOTA", "MN"}, {"MISSISSIPPI", "MS"},
	{"MISSOURI", "MO"}, {"MONTANA", "MT"}, {"NEBRASKA", "NE"}, {"NEVADA", "NV"},
	{"NEW HAMPSHIRE", "NH"}, {"NEW JERSEY", "NJ"}, {"NEW MEXICO", "NM"}, {"NEW YORK", "NY"},
	{"NORTH CAROLINA", "NC"}, {"NORTH DAKOTA", "ND"}, {"OHIO", "OH"}, {"OKLAHOMA", "OK"},
	{"OREGON", "OR"}, {"PENNSYLVANIA", "PA"}, {"RHODE ISLAND", "RI"}, {"SOUTH CAROLINA", "SC"},
	{"SOUTH DAKOTA", "SD"}, {"TENNESSEE", "TN"}, {"TEXAS", "TX"}, {"UTAH", "UT"},
	{"VERMONT", "VT"}, {"VIRGINIA", "VA"}, {"WASHINGTON", "WA"}, {"WEST VIRGINIA", "WV"},
	{"WISCONSIN", "WI"}, {"WYOMING", "WY"}, {"DISTRICT OF COLUMBIA", "DC"},
})

var cities = byLengthDesc([]nameCode{
	{"SEATTLE", "WA"}, {"BELLEVUE", "WA"}, {"REDMOND", "WA"},
	{"SAN FRANCISCO", "CA"}, {"SOUTH SAN FRANCISCO", "CA"}, {"MOUNTAIN VIEW", "CA"},
	{"SUNNYVALE", "CA"}, {"PALO ALTO", "CA"}, {"SAN JOSE", "CA"}, {"LOS ANGELES", "CA"},
	{"SANTA MONICA", "CA"}, {"SAN DIEGO", "CA"}, {"IRVINE", "CA"}, {"SACRAMENTO", "CA"},
	{"PORTLAND", "OR"}, {"BOULDER", "CO"}, {"DENVER", "CO"},
	{"AUSTIN", "TX"}, {"DALLAS", "TX"}, {"HOUSTON", "TX"}, {"SAN ANTONIO", "TX"},
	{"CHICAGO", "IL"}, {"MINNEAPOLIS", "MN"}, {"NEW YORK", "NY"}, {"BROOKLYN", "NY"},
	{"JERSEY CITY", "NJ"}, {"BOSTON", "MA"}, {"CAMBRIDGE", "MA"}, {"WASHINGTON", "DC"},
	{"ARLINGTON", "VA"}, {"ALEXANDRIA", "VA"}, {"ATLANTA", "GA"}, {"MIAMI", "FL"},
	{"PHILADELPHIA", "PA"}, {"RALEIGH", "NC"}, {"CHARLOTTE", "NC"},
})

var validCodes = func() map[string]bool {
	m := make(map[string]bool, len(stateNames))
	for _, s := range stateNames {
		m[s.code] = true
	}
	return m
}()

func byLengthDesc(in []nameCode) []nameCode {
	sort.SliceStable(in, func(i, j int) bool { return len(in[i].name) > len(in[j].name) })
	return in
}

// StateCode extracts a two-letter US state code from free-text location.
// Each alternative ("Austin, TX or Remote") is tried in order: explicit code,
// full state name, then a known city. Uppercase tokens that are not US codes
// ("London, UK") are ignored.
func StateCode(location string) (string, bool) {
	location = strings.TrimSpace(location)
	if location == "" {
		return "", false
	}
	for _, part := range partSplitRE.Split(location, -1) {
		part = strings.TrimSpace(part)
		if part == "" {
			continue
		}
		for _, m := range stateCodeRE.FindAllStringSubmatch(part, -1) {
			if validCodes[m[1]] {
				return m[1], true
			}
		}

		upper := strings.ToUpper(part)
		for _, s := range stateNames {
			if strings.Contains(upper, s.name) {
				return s.code, true
			}
		}

		cleaned := nonLetterRE.ReplaceAllString(upper, " ")
		cleaned = strings.TrimSpace(multiSpaceRE.ReplaceAllString(cleaned, " "))
		for _, c := range cities {
			if strings.Contains(cleaned, c.name) {
				return c.code, true
			}
		}
	}
	return "", false
}

// IsRemoteUS reports "remote" phrasing tied to a US hint.
func IsRemoteUS(location string) bool {
	if !strings.Contains(strings.ToLower(location), "remote") {
		return false
	}
	return usHintRE.MatchString(location) || remoteUSRE.MatchString(location)
}

func IsUSLocation(location string) bool {
	if location == "" {
		return false
	}
	if IsRemoteUS(location) {
		return true
	}
	if _, ok := StateCode(location); ok {
		return true
	}
	return usHintRE.MatchString(location)
}

// ClassifyWorkMode applies fixed priority: hybrid, remote, onsite, unknown.
func ClassifyWorkMode(text string) domain.WorkMode {
	t := strings.ToLower(text)
	switch {
	case strings.Contains(t, "hybrid"):
		return domain.WorkModeHybrid
	case strings.Contains(t, "remote"):
		return domain.WorkModeRemote
	case strings.Contains(t, "on-site"), strings.Contains(t, "onsite"), strings.Contains(t, "on site"):
		return domain.WorkModeOnsite
	default:
		return domain.WorkModeUnknown
	}
}
