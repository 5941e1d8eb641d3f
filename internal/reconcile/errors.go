package reconcile

import (
	"errors"
	"fmt"

	"github.com/superlearn/school-central/internal/identity"
	"github.com/superlearn/school-central/internal/payments"
	"github.com/superlearn/school-central/internal/repo"
)

// Kind classifies a reconciliation failure. Handlers use it to pick a
// status code and a user-facing next action.
type Kind string

const (
	// KindConflict is a failed optimistic precondition, e.g. the school was
	// claimed by another request. Never retried automatically.
	KindConflict Kind = "conflict"
	// KindProviderTransient is a network failure or 5xx from a provider.
	KindProviderTransient Kind = "provider_transient"
	// KindProviderRejected is a 4xx the provider meant: retrying the same
	// request cannot succeed.
	KindProviderRejected Kind = "provider_rejected"
	// KindDataIntegrity is a violated relational invariant that survived
	// the corrective write. Alert-worthy, but webhooks still ack.
	KindDataIntegrity Kind = "data_integrity"
	// KindConfigurationFatal is missing required metadata or configuration.
	// Indicates an upstream bug, reported distinctly from transient failures.
	KindConfigurationFatal Kind = "configuration_fatal"
	// KindNotFound means the referenced school, row, or organization does
	// not exist or is unreachable.
	KindNotFound Kind = "not_found"
)

// Error is the structured failure every reconciler returns past its
// boundary. Message is human-readable and includes the next action.
type Error struct {
	Kind    Kind
	Message string
	Err     error
}

func (e *Error) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("%s: %s: %v", e.Kind, e.Message, e.Err)
	}
	return fmt.Sprintf("%s: %s", e.Kind, e.Message)
}

func (e *Error) Unwrap() error {
	return e.Err
}

func newError(kind Kind, message string, err error) *Error {
	return &Error{Kind: kind, Message: message, Err: err}
}

// KindOf maps any error surfaced by the reconcilers to its Kind.
func KindOf(err error) Kind {
	var re *Error
	if errors.As(err, &re) {
		return re.Kind
	}
	var me *identity.MembershipError
	if errors.As(err, &me) {
		return KindProviderRejected
	}
	var pe *identity.ProviderError
	if errors.As(err, &pe) {
		if pe.NotFound() {
			return KindNotFound
		}
		if pe.Transient() {
			return KindProviderTransient
		}
		return KindProviderRejected
	}
	var pay *payments.PaymentError
	if errors.As(err, &pay) {
		if pay.Transient() {
			return KindProviderTransient
		}
		return KindProviderRejected
	}
	switch {
	case errors.Is(err, repo.ErrSchoolAlreadyClaimed), errors.Is(err, repo.ErrNoSeatsAvailable):
		return KindConflict
	case errors.Is(err, repo.ErrNotFound):
		return KindNotFound
	}
	return KindProviderTransient
}

// Message returns the user-facing message for an error, falling back to a
// generic next action for untyped failures.
func Message(err error) string {
	var re *Error
	if errors.As(err, &re) {
		return re.Message
	}
	return "something went wrong, refresh and retry or contact support"
}
