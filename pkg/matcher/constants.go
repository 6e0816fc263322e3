package matcher

import "github.com/bridgecall/bridgecall/pkg/timeutil"

// Protocol constants. SearchDuration must be an exact multiple of
// SearchUpdateInterval so the countdown always lands on zero.
const (
	// AskingDuration is how long a candidate has to answer
	// "are you available?".
	AskingDuration = timeutil.Duration(19)

	// SearchDuration is the total search window for a newly available user.
	SearchDuration = timeutil.Duration(60)

	// SearchUpdateInterval is the countdown refresh cadence.
	SearchUpdateInterval = timeutil.Duration(5)

	// SurveyDuration is the delay until the post-call survey prompt.
	SurveyDuration = timeutil.Duration(60)
)
