package broadcast

import "errors"

var (
	ErrMissingQuizID       = errors.New("quiz id is required")
	ErrMissingStudyGroupID = errors.New("study group id is required")
	ErrMissingSender       = errors.New("sender is required")
	ErrMissingMessage      = errors.New("message is required")
)
