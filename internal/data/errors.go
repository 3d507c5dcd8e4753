package data

import "errors"

// Shared sentinel errors for data-layer repositories.
var (
	ErrJobIDRequired        = errors.New("job id is required")
	ErrCreateRequestMissing = errors.New("create job request is required")
	ErrCacheKeyEmpty        = errors.New("key cannot be empty")
	ErrDigestIncomplete     = errors.New("digest is missing required fields")
)
