package quiz

import "errors"

var (
	// ErrNoSelection is returned by Submit in choice mode before any option
	// has been picked. The caller should prompt and let the user retry.
	ErrNoSelection = errors.New("pick an option before checking your answer")

	ErrInvalidContent = errors.New("invalid quiz content")
	ErrInvalidBreak   = errors.New("invalid break position")
	ErrUnknownOption  = errors.New("unknown option")
	ErrWrongMode      = errors.New("operation not available in this mode")
)
