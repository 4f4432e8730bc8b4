// Package statement reconstructs the natural-language problem statement and
// pre-solution hints for a pull request from its resolved issues.
package statement

import (
	"context"
	"errors"
	"strconv"
	"strings"

	"github.com/openevals/benchforge/internal/domain"
	"github.com/openevals/benchforge/internal/gh"
)

// Host is the subset of the hosting-service client the assembler needs.
type Host interface {
	Name() string
	GetIssue(ctx context.Context, number int) (*domain.Issue, error)
	ListIssueComments(ctx context.Context, number int) ([]domain.Comment, error)
}

// legacyTrackerRepo is the one repository whose issues live on a legacy Trac
// instance instead of the hosting service.
const legacyTrackerRepo = "django"

// Assembler builds problem statements and hints for pull requests.
type Assembler struct {
	host Host
	trac *TracScraper
}

// New creates an Assembler. trac may be nil when the target repository is
// not the legacy-tracker project.
func New(host Host, trac *TracScraper) *Assembler {
	return &Assembler{host: host, trac: trac}
}

// Assemble returns the problem statement and hints text for a pull request.
// The problem statement concatenates each resolved issue's "title\nbody\n"
// in reference order. Hints are comments visible before the pull request's
// first commit, time-bounded so they cannot leak the solution.
func (a *Assembler) Assemble(ctx context.Context, pr domain.PullRequest) (problem, hints string, err error) {
	if a.host.Name() == legacyTrackerRepo && a.trac != nil {
		return a.trac.Assemble(ctx, pr)
	}

	var sb strings.Builder
	var allHints []string
	for _, ref := range pr.ResolvedIssues {
		number, convErr := strconv.Atoi(ref)
		if convErr != nil {
			continue
		}
		issue, issueErr := a.host.GetIssue(ctx, number)
		if issueErr != nil {
			if errors.Is(issueErr, gh.ErrNotFound) {
				continue
			}
			return "", "", issueErr
		}
		sb.WriteString(issue.Title)
		sb.WriteString("\n")
		sb.WriteString(issue.Body)
		sb.WriteString("\n")

		hintTexts, hintErr := a.issueHints(ctx, pr, issue.Number)
		if hintErr != nil {
			return "", "", hintErr
		}
		allHints = append(allHints, strings.Join(hintTexts, "\n"))
	}

	return sb.String(), strings.Join(allHints, "\n"), nil
}

// issueHints collects the bodies of an issue's comments updated before the
// pull request's first commit. Comments arrive in the order the hosting
// service delivers them, which is not guaranteed chronological; the scan
// stops at the first comment at or after the cutoff rather than filtering
// the full list, trading completeness for simplicity.
func (a *Assembler) issueHints(ctx context.Context, pr domain.PullRequest, issueNumber int) ([]string, error) {
	cutoff, ok := pr.FirstCommitTime()
	if !ok {
		return nil, nil
	}

	comments, err := a.host.ListIssueComments(ctx, issueNumber)
	if err != nil {
		return nil, err
	}

	var hints []string
	for _, c := range comments {
		if !c.UpdatedAt.Before(cutoff) {
			break
		}
		hints = append(hints, c.Body)
	}
	return hints, nil
}
