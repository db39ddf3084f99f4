package policy

import "errors"

// Configuration errors.
var (
	ErrInvalidPattern = errors.New("invalid path pattern")
	ErrUnknownPolicy  = errors.New("unknown policy")
	ErrInvalidTOML    = errors.New("invalid allowlist TOML")
	ErrInvalidRegex   = errors.New("invalid allowlist regex")
	ErrNoReader       = errors.New("secrets policy requires a content reader")
)
