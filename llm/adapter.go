// Adapter contract - the abstract interface for streaming providers.
//
// Each adapter implementation hides:
// - API client initialization and authentication
// - Request translation into the vendor wire format
// - Normalization of vendor streaming frames into Event variants
// - Classification of vendor errors into the shared taxonomy

package llm

import (
	"context"
)

// Adapter translates normalized requests into a vendor's wire protocol and
// the vendor's streaming frames back into normalized events.
type Adapter interface {
	// Name returns the provider name (for registry lookup and logging).
	Name() string

	// OpenStream starts a streaming completion against the given model.
	// Errors, both here and from the returned Stream, are always *Error.
	OpenStream(ctx context.Context, req *Request, model string) (Stream, error)
}

// Stream is a pull-based sequence of normalized events. Next returns io.EOF
// once the vendor stream is exhausted; any other error is a classified
// *Error. A well-formed stream yields Stop before EOF.
type Stream interface {
	Next() (Event, error)
	Close() error
}
