package filter

// DefaultVisaRestrictionPhrases is used when settings leave
// visa_restriction_phrases unset.
var DefaultVisaRestrictionPhrases = []string{
	// explicit no-sponsorship
	"no visa sponsorship",
	"visa sponsorship is not available",
	"sponsorship not available",
	"not eligible for visa sponsorship",
	"will not sponsor",
	"we do not sponsor",
	"no sponsorship",
	"no future sponsorship",
	"without visa sponsorship",
	"cannot sponsor",
	"unable to sponsor",
	"do not provide sponsorship",

	// work authorization without sponsorship
	"must be authorized to work in the united states without sponsorship",
	"must be authorized to work in the u.s. without sponsorship",
	"authorized to work in the us without sponsorship",
	"authorized to work in the u.s. without sponsorship",
	"work authorization without sponsorship",

	// contracting
	"no c2c",
	"no corp to corp",
	"no corp-to-corp",

	// citizenship
	"us citizens only",
	"u.s. citizens only",
	"u.s. citizen only",
	"us citizen required",
	"u.s. citizen required",
	"must be a u.s. citizen",
	"must be a us citizen",
	"citizenship required",

	// clearance
	"security clearance",
	"clearance required",
	"must be able to obtain a security clearance",
	"must be eligible for a security clearance",
}
