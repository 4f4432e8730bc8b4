package statement

import (
	"context"
	"testing"
	"time"

	"github.com/openevals/benchforge/internal/domain"
	"github.com/openevals/benchforge/internal/gh"
)

type fakeHost struct {
	name     string
	issues   map[int]*domain.Issue
	comments map[int][]domain.Comment
}

func (f *fakeHost) Name() string { return f.name }

func (f *fakeHost) GetIssue(_ context.Context, number int) (*domain.Issue, error) {
	issue, ok := f.issues[number]
	if !ok {
		return nil, gh.ErrNotFound
	}
	return issue, nil
}

func (f *fakeHost) ListIssueComments(_ context.Context, number int) ([]domain.Comment, error) {
	return f.comments[number], nil
}

func prWithCommit(at time.Time, issues ...string) domain.PullRequest {
	return domain.PullRequest{
		Number:         1,
		ResolvedIssues: issues,
		Commits: []domain.Commit{
			{SHA: "abc", Message: "fix", AuthoredAt: at},
		},
	}
}

func TestAssemble_ProblemStatement(t *testing.T) {
	host := &fakeHost{
		name: "proj",
		issues: map[int]*domain.Issue{
			5: {Number: 5, Title: "T", Body: "B"},
		},
	}
	a := New(host, nil)

	problem, hints, err := a.Assemble(context.Background(), prWithCommit(time.Now(), "5"))
	if err != nil {
		t.Fatalf("Assemble: %v", err)
	}
	if problem != "T\nB\n" {
		t.Errorf("problem = %q, want %q", problem, "T\nB\n")
	}
	if hints != "" {
		t.Errorf("hints = %q, want empty", hints)
	}
}

func TestAssemble_MultipleIssuesInOrder(t *testing.T) {
	host := &fakeHost{
		name: "proj",
		issues: map[int]*domain.Issue{
			2: {Number: 2, Title: "second", Body: "b2"},
			1: {Number: 1, Title: "first", Body: "b1"},
		},
	}
	a := New(host, nil)

	problem, _, err := a.Assemble(context.Background(), prWithCommit(time.Now(), "1", "2"))
	if err != nil {
		t.Fatalf("Assemble: %v", err)
	}
	if problem != "first\nb1\nsecond\nb2\n" {
		t.Errorf("problem = %q", problem)
	}
}

func TestAssemble_MissingIssueSkipped(t *testing.T) {
	host := &fakeHost{
		name: "proj",
		issues: map[int]*domain.Issue{
			5: {Number: 5, Title: "T", Body: "B"},
		},
	}
	a := New(host, nil)

	problem, _, err := a.Assemble(context.Background(), prWithCommit(time.Now(), "404", "5"))
	if err != nil {
		t.Fatalf("Assemble: %v", err)
	}
	if problem != "T\nB\n" {
		t.Errorf("problem = %q, want only the found issue", problem)
	}
}

func TestAssemble_HintsBeforeFirstCommit(t *testing.T) {
	cutoff := time.Date(2023, 6, 1, 12, 0, 0, 0, time.UTC)
	host := &fakeHost{
		name: "proj",
		issues: map[int]*domain.Issue{
			5: {Number: 5, Title: "T", Body: "B"},
		},
		comments: map[int][]domain.Comment{
			5: {
				{Body: "early one", UpdatedAt: cutoff.Add(-2 * time.Hour)},
				{Body: "early two", UpdatedAt: cutoff.Add(-time.Hour)},
				{Body: "late", UpdatedAt: cutoff.Add(time.Hour)},
				{Body: "early but after a late one", UpdatedAt: cutoff.Add(-time.Minute)},
			},
		},
	}
	a := New(host, nil)

	_, hints, err := a.Assemble(context.Background(), prWithCommit(cutoff, "5"))
	if err != nil {
		t.Fatalf("Assemble: %v", err)
	}
	// The scan stops at the first late comment, so the trailing early
	// comment is deliberately not collected.
	if hints != "early one\nearly two" {
		t.Errorf("hints = %q", hints)
	}
}

func TestAssemble_NoCommitsNoHints(t *testing.T) {
	host := &fakeHost{
		name: "proj",
		issues: map[int]*domain.Issue{
			5: {Number: 5, Title: "T", Body: "B"},
		},
		comments: map[int][]domain.Comment{
			5: {{Body: "a comment", UpdatedAt: time.Unix(0, 0)}},
		},
	}
	a := New(host, nil)

	pr := domain.PullRequest{Number: 1, ResolvedIssues: []string{"5"}}
	problem, hints, err := a.Assemble(context.Background(), pr)
	if err != nil {
		t.Fatalf("Assemble: %v", err)
	}
	if problem != "T\nB\n" {
		t.Errorf("problem = %q", problem)
	}
	if hints != "" {
		t.Errorf("hints = %q, want empty when the PR has no commits", hints)
	}
}
