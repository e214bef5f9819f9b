// Package transport defines the contracts between the core and its
// external collaborators: the send primitive and the identity check.
// The core never talks to a messaging API directly.
package transport

import (
	"context"
	"errors"
)

// Target is an opaque delivery target: a numeric chat id ("-100123456")
// or a public handle ("@channel").
type Target string

// Sender is the external send primitive. Send returns nil on success, a
// plain error for transient failures, and an error wrapped with
// Permanent() when retrying cannot help (bad target, revoked token).
type Sender interface {
	Send(ctx context.Context, to Target, text string) error
}

// Identity describes the account behind the credential, as reported by
// the remote API.
type Identity struct {
	ID       int64
	Username string
	IsBot    bool
}

// Verifier confirms the credential is live before the first dispatch.
type Verifier interface {
	Verify(ctx context.Context) (Identity, error)
}

type permanentError struct{ err error }

func (e *permanentError) Error() string { return e.err.Error() }
func (e *permanentError) Unwrap() error { return e.err }

// Permanent marks err as non-retryable. A nil err stays nil.
func Permanent(err error) error {
	if err == nil {
		return nil
	}
	return &permanentError{err: err}
}

// IsPermanent reports whether err (or anything it wraps) was marked with
// Permanent.
func IsPermanent(err error) bool {
	var pe *permanentError
	return errors.As(err, &pe)
}
