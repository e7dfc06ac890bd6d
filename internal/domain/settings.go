package domain

// Settings is the snapshot a run is evaluated under. Its JSON encoding feeds
// the settings hash, so field order here is part of the fingerprint.
type Settings struct {
	RoleKeywords    []string `yaml:"role_keywords" json:"role_keywords"`
	IncludeKeywords []string `yaml:"include_keywords" json:"include_keywords"`
	ExcludeKeywords []string `yaml:"exclude_keywords" json:"exclude_keywords"`
	// nil selects the built-in phrase list; an explicit empty list disables it.
	VisaRestrictionPhrases []string `yaml:"visa_restriction_phrases" json:"visa_restriction_phrases"`
	USOnly                 bool     `yaml:"us_only" json:"us_only"`
	AllowRemoteUS          bool     `yaml:"allow_remote_us" json:"allow_remote_us"`
	PreferredStates        []string `yaml:"preferred_states" json:"preferred_states"`
	WorkMode               string   `yaml:"work_mode" json:"work_mode"`
	MLEnabled              bool     `yaml:"ml_enabled" json:"ml_enabled"`
	MLMode                 string   `yaml:"ml_mode" json:"ml_mode"`
	MLRescueThreshold      float64  `yaml:"ml_rescue_threshold" json:"ml_rescue_threshold"`
}

const (
	MLModeRankOnly = "rank_only"
	MLModeRescue   = "rescue"
)

func DefaultSettings() Settings {
	return Settings{
		USOnly:            true,
		AllowRemoteUS:     true,
		WorkMode:          string(WorkModeAny),
		MLMode:            MLModeRankOnly,
		MLRescueThreshold: 0.8,
	}
}
