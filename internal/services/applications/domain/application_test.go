package domain

import (
	"context"
	"testing"

	apperrors "github.com/ansa-jobboard/jobboard/internal/platform/errors"
)

func TestCreateDefaultsToPendingWithoutHistory(t *testing.T) {
	f := newFixture(t)
	application := f.apply(t)

	if application.Status.Code != StatusPending {
		t.Fatalf("Status = %q, want %q", application.Status.Code, StatusPending)
	}
	if application.Version != 1 {
		t.Fatalf("Version = %d, want 1", application.Version)
	}
	if !application.CreatedAt.Equal(application.UpdatedAt) {
		t.Fatalf("CreatedAt = %v, UpdatedAt = %v, want equal", application.CreatedAt, application.UpdatedAt)
	}
	if got := f.store.historyFor(application.ID); len(got) != 0 {
		t.Fatalf("history entries = %d, want 0", len(got))
	}
}

func TestCreateWithoutPendingIsConfigurationError(t *testing.T) {
	f := newFixture(t)
	delete(f.store.statuses, StatusPending)

	_, err := f.applications.Create(context.Background(), CreateInput{JobPostingID: "posting-p", ApplicantID: seeker.UserID})
	if !apperrors.HasCode(err, apperrors.CodeConfiguration) {
		t.Fatalf("Create error = %v, want CONFIGURATION", err)
	}
	if len(f.store.applications) != 0 {
		t.Fatal("expected no application persisted")
	}
}

func TestCreateWithExplicitStatus(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	application, err := f.applications.Create(ctx, CreateInput{JobPostingID: "posting-p", ApplicantID: seeker.UserID, StatusCode: StatusUnderReview})
	if err != nil {
		t.Fatalf("create: %v", err)
	}
	if application.Status.Code != StatusUnderReview {
		t.Fatalf("Status = %q, want %q", application.Status.Code, StatusUnderReview)
	}

	_, err = f.applications.Create(ctx, CreateInput{JobPostingID: "posting-p", ApplicantID: seeker.UserID, StatusCode: "Archived"})
	if !apperrors.HasCode(err, apperrors.CodeInvalidStatus) {
		t.Fatalf("Create error = %v, want INVALID_STATUS", err)
	}
}

func TestCreateValidatesPostingAndApplicant(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	tests := []struct {
		name string
		in   CreateInput
		want apperrors.Code
	}{
		{name: "missing posting id", in: CreateInput{ApplicantID: seeker.UserID}, want: apperrors.CodeInvalidArgument},
		{name: "missing applicant", in: CreateInput{JobPostingID: "posting-p"}, want: apperrors.CodeInvalidArgument},
		{name: "unknown posting", in: CreateInput{JobPostingID: "posting-x", ApplicantID: seeker.UserID}, want: apperrors.CodeNotFound},
		{name: "employer applies to own posting", in: CreateInput{JobPostingID: "posting-p", ApplicantID: employer.UserID}, want: apperrors.CodeForbidden},
	}
	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			if _, err := f.applications.Create(ctx, tc.in); !apperrors.HasCode(err, tc.want) {
				t.Fatalf("Create error = %v, want %s", err, tc.want)
			}
		})
	}
}

// Duplicate applications by the same seeker to the same posting are accepted.
func TestCreateAllowsDuplicateApplications(t *testing.T) {
	f := newFixture(t)
	first := f.apply(t)
	second := f.apply(t)
	if first.ID == second.ID {
		t.Fatal("expected distinct application ids")
	}
	page, err := f.applications.ListForApplicant(context.Background(), ListInput{ApplicantID: seeker.UserID})
	if err != nil {
		t.Fatalf("list: %v", err)
	}
	if len(page.Applications) != 2 {
		t.Fatalf("applications = %d, want 2", len(page.Applications))
	}
	if page.Applications[0].ID != second.ID {
		t.Fatalf("first listed = %q, want newest %q", page.Applications[0].ID, second.ID)
	}
}

func TestGetForActor(t *testing.T) {
	f := newFixture(t)
	application := f.apply(t)
	ctx := context.Background()

	for _, actor := range []Actor{admin, employer, seeker} {
		if _, err := f.applications.GetForActor(ctx, actor, application.ID); err != nil {
			t.Fatalf("GetForActor(%s): %v", actor.UserID, err)
		}
	}
	if _, err := f.applications.GetForActor(ctx, employer2, application.ID); !apperrors.HasCode(err, apperrors.CodeForbidden) {
		t.Fatalf("GetForActor(E2) error = %v, want FORBIDDEN", err)
	}
	if _, err := f.applications.Get(ctx, "missing"); !apperrors.HasCode(err, apperrors.CodeNotFound) {
		t.Fatalf("Get error = %v, want NOT_FOUND", err)
	}
}

func TestListForJobPostingAsActorScopesNonOwners(t *testing.T) {
	f := newFixture(t)
	f.apply(t)
	ctx := context.Background()

	if _, err := f.applications.ListForJobPostingAsActor(ctx, employer, ListInput{JobPostingID: "posting-p"}); err != nil {
		t.Fatalf("owner list: %v", err)
	}
	if _, err := f.applications.ListForJobPostingAsActor(ctx, employer2, ListInput{JobPostingID: "posting-p"}); err != nil {
		t.Fatalf("non-owner list: %v", err)
	}
	if len(f.store.listQueries) != 2 {
		t.Fatalf("queries = %d, want 2", len(f.store.listQueries))
	}
	if got := f.store.listQueries[0].ApplicantID; got != "" {
		t.Fatalf("owner query applicant = %q, want empty", got)
	}
	if got := f.store.listQueries[1].ApplicantID; got != employer2.UserID {
		t.Fatalf("non-owner query applicant = %q, want %q", got, employer2.UserID)
	}
	if _, err := f.applications.ListForJobPostingAsActor(ctx, admin, ListInput{JobPostingID: "posting-x"}); !apperrors.HasCode(err, apperrors.CodeNotFound) {
		t.Fatalf("unknown posting error = %v, want NOT_FOUND", err)
	}
}

func TestListNormalizesInput(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	if _, err := f.applications.ListForJobPosting(ctx, ListInput{JobPostingID: "posting-p", PageSize: 1000}); err != nil {
		t.Fatalf("list: %v", err)
	}
	if _, err := f.applications.ListForApplicant(ctx, ListInput{ApplicantID: seeker.UserID}); err != nil {
		t.Fatalf("list: %v", err)
	}
	if got := f.store.listQueries[0].PageSize; got != MaxPageSize {
		t.Fatalf("PageSize = %d, want %d", got, MaxPageSize)
	}
	if got := f.store.listQueries[1].PageSize; got != DefaultPageSize {
		t.Fatalf("PageSize = %d, want %d", got, DefaultPageSize)
	}

	_, err := f.applications.ListForJobPosting(ctx, ListInput{JobPostingID: "posting-p", Filter: `salary > 3`})
	if !apperrors.HasCode(err, apperrors.CodeInvalidArgument) {
		t.Fatalf("bad filter error = %v, want INVALID_ARGUMENT", err)
	}
	if _, err := f.applications.ListForJobPosting(ctx, ListInput{}); !apperrors.HasCode(err, apperrors.CodeInvalidArgument) {
		t.Fatalf("missing posting error = %v, want INVALID_ARGUMENT", err)
	}
	if _, err := f.applications.ListForApplicant(ctx, ListInput{}); !apperrors.HasCode(err, apperrors.CodeInvalidArgument) {
		t.Fatalf("missing applicant error = %v, want INVALID_ARGUMENT", err)
	}
}
