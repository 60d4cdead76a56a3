package domain

import (
	"fmt"
	"strings"
)

// Role is the coarse account type of a user.
type Role string

const (
	RoleAdmin     Role = "admin"
	RoleEmployer  Role = "employer"
	RoleJobseeker Role = "jobseeker"
)

// ParseRole normalizes a role string.
func ParseRole(value string) (Role, error) {
	switch role := Role(strings.ToLower(strings.TrimSpace(value))); role {
	case RoleAdmin, RoleEmployer, RoleJobseeker:
		return role, nil
	default:
		return "", fmt.Errorf("unknown role %q", value)
	}
}

// Actor is the authenticated user performing an operation.
type Actor struct {
	UserID string
	Role   Role
}

// Resource is what an authorization decision is made about.
type Resource struct {
	Application Application
	Posting     JobPosting
}

// Authorizer decides whether actor may act on resource.
type Authorizer interface {
	Authorize(actor Actor, resource Resource) bool
}

// AuthorizerFunc adapts a function to Authorizer.
type AuthorizerFunc func(actor Actor, resource Resource) bool

// Authorize calls f.
func (f AuthorizerFunc) Authorize(actor Actor, resource Resource) bool {
	return f(actor, resource)
}

// AdminAuthorizer permits platform admins.
type AdminAuthorizer struct{}

// Authorize implements Authorizer.
func (AdminAuthorizer) Authorize(actor Actor, _ Resource) bool {
	return actor.UserID != "" && actor.Role == RoleAdmin
}

// EmployerOwnershipAuthorizer permits the employer who owns the job posting.
type EmployerOwnershipAuthorizer struct{}

// Authorize implements Authorizer.
func (EmployerOwnershipAuthorizer) Authorize(actor Actor, resource Resource) bool {
	return actor.UserID != "" &&
		actor.Role == RoleEmployer &&
		resource.Posting.EmployerID == actor.UserID
}

// ApplicantAuthorizer permits the job seeker who submitted the application.
type ApplicantAuthorizer struct{}

// Authorize implements Authorizer.
func (ApplicantAuthorizer) Authorize(actor Actor, resource Resource) bool {
	return actor.UserID != "" && resource.Application.ApplicantID == actor.UserID
}

// AnyOf permits when at least one of authorizers permits.
func AnyOf(authorizers ...Authorizer) Authorizer {
	return AuthorizerFunc(func(actor Actor, resource Resource) bool {
		for _, a := range authorizers {
			if a != nil && a.Authorize(actor, resource) {
				return true
			}
		}
		return false
	})
}

// TransitionAuthorizer permits admins and the owning employer.
func TransitionAuthorizer() Authorizer {
	return AnyOf(AdminAuthorizer{}, EmployerOwnershipAuthorizer{})
}

// ViewerAuthorizer permits admins, the owning employer and the applicant.
func ViewerAuthorizer() Authorizer {
	return AnyOf(AdminAuthorizer{}, EmployerOwnershipAuthorizer{}, ApplicantAuthorizer{})
}
