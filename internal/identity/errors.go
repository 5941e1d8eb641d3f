package identity

import (
	"fmt"
	"net/http"
	"strings"
)

// ProviderError is a failed call against the identity provider.
// StatusCode 0 means the request never got a response (transport failure
// or timeout), which is treated as transient.
type ProviderError struct {
	Op         string
	StatusCode int
	Message    string
}

func (e *ProviderError) Error() string {
	return fmt.Sprintf("identity provider %s: status=%d: %s", e.Op, e.StatusCode, e.Message)
}

// Transient reports whether the failure is worth retrying as-is.
func (e *ProviderError) Transient() bool {
	return e.StatusCode == 0 ||
		e.StatusCode == http.StatusTooManyRequests ||
		e.StatusCode >= http.StatusInternalServerError
}

// NotFound reports whether the provider answered 404.
func (e *ProviderError) NotFound() bool {
	return e.StatusCode == http.StatusNotFound
}

// RoleAttempt records one candidate role tried against the provider.
type RoleAttempt struct {
	Role   string
	Reason string
}

// MembershipError aggregates the failures of every candidate role tried
// for a membership write. It is only returned when all candidates failed.
type MembershipError struct {
	OrganizationID string
	UserID         string
	Attempts       []RoleAttempt
}

func (e *MembershipError) Error() string {
	parts := make([]string, 0, len(e.Attempts))
	for _, a := range e.Attempts {
		parts = append(parts, fmt.Sprintf("%s: %s", a.Role, a.Reason))
	}
	return fmt.Sprintf("all membership role candidates failed for user %s in org %s: [%s]",
		e.UserID, e.OrganizationID, strings.Join(parts, "; "))
}

// AttemptedRoles lists the candidate roles in the order they were tried.
func (e *MembershipError) AttemptedRoles() []string {
	roles := make([]string, 0, len(e.Attempts))
	for _, a := range e.Attempts {
		roles = append(roles, a.Role)
	}
	return roles
}
