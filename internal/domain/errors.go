package domain

import "errors"

var (
	// ErrInvalidSubmission marks a malformed game submission (unknown hero or
	// composition id, bad outcome shape). Nothing is mutated.
	ErrInvalidSubmission = errors.New("invalid submission")

	// ErrInvalidPerformance marks a rating model input outside its domain.
	// Treated as an internal defect: logged at error level, nothing mutated.
	ErrInvalidPerformance = errors.New("invalid performance value")

	// ErrUnknownUser means the identity layer could not confirm the user.
	ErrUnknownUser = errors.New("unknown user")

	// ErrPersistence marks storage unavailability. Retryable by the caller;
	// no partial state is left behind.
	ErrPersistence = errors.New("persistence failure")

	// ErrStatisticsUpdate means the game committed but the downstream rating
	// and ranking update did not. The update is queued for retry; callers see
	// the saved game together with this error.
	ErrStatisticsUpdate = errors.New("statistics update failed")

	ErrInvalidLogin   = errors.New("invalid login or password")
	ErrLoginTaken     = errors.New("login already taken")
	ErrBadCredentials = errors.New("bad credentials")
)
