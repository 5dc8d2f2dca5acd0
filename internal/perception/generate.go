// File: internal/perception/generate.go

// Package perception implements the vision port: it renders situational
// prompts, ships them with a screenshot to a multimodal model provider, and
// parses the structured decision that comes back. Transient provider
// failures are retried with exponential backoff; anything still failing is
// replaced by a safe fallback decision rather than surfaced raw.
package perception

import (
	"context"
	"errors"
	"fmt"

	"github.com/nelieo/superagent/api/schemas"
)

// genRequest is one multimodal generation call. The screenshot is optional;
// planning and reflection calls may be text-only.
type genRequest struct {
	System    string
	User      string
	Image     *schemas.Screenshot
	ForceJSON bool
}

// generator is the thin provider contract. Implementations do exactly one
// attempt per call; retry policy lives in the Port.
type generator interface {
	Generate(ctx context.Context, req genRequest) (string, error)
	Name() string
}

// transientError marks a failure worth retrying: network errors, timeouts,
// rate limits, and server-side 5xx responses.
type transientError struct {
	err error
}

func (e *transientError) Error() string { return e.err.Error() }
func (e *transientError) Unwrap() error { return e.err }

func transient(err error) error {
	if err == nil {
		return nil
	}
	return &transientError{err: err}
}

func isTransient(err error) bool {
	var te *transientError
	return errors.As(err, &te)
}

// apiStatusError classifies an HTTP-level provider failure by status code.
func apiStatusError(provider string, status int, body []byte) error {
	err := fmt.Errorf("%s API error: status %d, body: %s", provider, status, string(body))
	switch {
	case status == 429, status >= 500:
		return transient(err)
	default:
		return err
	}
}
