package careerurl

import "time"

// Config bounds one career-page fetch.
type Config struct {
	MaxPages      int
	TimeBudget    time.Duration
	ListTimeout   time.Duration
	DetailTimeout time.Duration
	MaxCandidates int
	MaxFetch      int
	// NoProgress is how many render iterations without DOM growth end a render.
	NoProgress int
	// RenderEnabled gates every headless-browser render.
	RenderEnabled bool
	// AutoRender retries a static page through the renderer when nothing
	// else produced jobs. Requires RenderEnabled.
	AutoRender bool
}

func DefaultConfig() Config {
	return Config{
		MaxPages:      15,
		TimeBudget:    25 * time.Second,
		ListTimeout:   25 * time.Second,
		DetailTimeout: 20 * time.Second,
		MaxCandidates: 60,
		MaxFetch:      40,
		NoProgress:    2,
		RenderEnabled: false,
		AutoRender:    true,
	}
}
