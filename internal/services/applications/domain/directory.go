package domain

import (
	"context"
	"time"
)

// User is the subset of an account the workflow needs.
type User struct {
	ID          string
	Email       string
	DisplayName string
	Role        Role
	CreatedAt   time.Time
}

// JobPosting is the subset of a posting the workflow needs.
type JobPosting struct {
	ID         string
	EmployerID string
	Title      string
	CreatedAt  time.Time
}

// Directory resolves users and job postings owned by other parts of the board.
type Directory interface {
	GetUser(ctx context.Context, userID string) (User, error)
	GetJobPosting(ctx context.Context, postingID string) (JobPosting, error)
}
