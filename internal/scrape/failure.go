package scrape

import "fmt"

// FailureKind classifies a failed scrape call.
type FailureKind string

const (
	// FailureNetwork covers permanent fetch errors and transient ones that
	// outlasted the retry budget.
	FailureNetwork         FailureKind = "network"
	FailureDisabled        FailureKind = "disabled"
	FailureUnknownPlatform FailureKind = "unknown_platform"
	FailureInvalidCriteria FailureKind = "invalid_criteria"
)

// Failure is the error returned by a scrape call that produced no result.
type Failure struct {
	Kind     FailureKind
	Platform string
	// Attempts is the number of fetch attempts made; zero for failures
	// raised before any network activity.
	Attempts int
	Err      error
}

func (f *Failure) Error() string {
	if f.Err == nil {
		return fmt.Sprintf("scrape %s: %s", f.Platform, f.Kind)
	}
	return fmt.Sprintf("scrape %s: %s: %v", f.Platform, f.Kind, f.Err)
}

func (f *Failure) Unwrap() error {
	return f.Err
}
