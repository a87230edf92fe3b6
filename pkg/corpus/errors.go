package corpus

import "errors"

var (
	ErrInvalidOptions = errors.New("invalid pipeline options")
	ErrTokenRange     = errors.New("token ID outside vocabulary")
	ErrCorrupt        = errors.New("corrupt token corpus")
	ErrNoIndex        = errors.New("token corpus has no index")
	ErrMissingText    = errors.New("source record without text")
)
