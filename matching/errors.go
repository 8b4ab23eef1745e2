package matching

import "github.com/pkg/errors"

// Error taxonomy for the matching engine. Callers classify with errors.Is;
// the HTTP layer maps each sentinel to a status code.
var (
	// ErrModelUnavailable means the embedding generator is not ready.
	// The whole request fails.
	ErrModelUnavailable = errors.New("embedding model unavailable")

	// ErrStoreUnavailable means a backing store cannot be reached. The
	// failing read or write is surfaced, never silently dropped.
	ErrStoreUnavailable = errors.New("store unavailable")

	// ErrNotFound means the requested item does not exist.
	ErrNotFound = errors.New("item not found")

	// ErrInvalidArgument means the caller supplied a bad threshold,
	// collection, or limit.
	ErrInvalidArgument = errors.New("invalid argument")

	// ErrEmbeddingGenerationFailed means every requested modality failed to
	// produce a vector. Single-modality failures are non-fatal and only
	// logged.
	ErrEmbeddingGenerationFailed = errors.New("embedding generation failed for all modalities")
)
