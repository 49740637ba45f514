package quorum

import "errors"

// ErrProviderUnavailable is returned when no registered adapter can
// serve the requested dispatch plan.
var ErrProviderUnavailable = errors.New("no provider available for task")

// ErrUnsupportedStrategy is returned when an assessment names an
// approach the engine does not implement.
var ErrUnsupportedStrategy = errors.New("unsupported orchestration strategy")

// ErrEmptyAssessment is returned when an assessment carries no
// recommendations and no default provider is configured.
var ErrEmptyAssessment = errors.New("assessment has no provider recommendations")
