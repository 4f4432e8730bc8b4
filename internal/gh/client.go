// Package gh wraps the GitHub REST API for harvesting pull request data.
package gh

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log"
	"net/http"
	"time"

	"github.com/google/go-github/v72/github"
	"golang.org/x/oauth2"

	"github.com/openevals/benchforge/internal/domain"
)

// ErrNotFound marks a resource the hosting service reports as missing.
// Callers treat it as an empty result, never as a retryable fault.
var ErrNotFound = errors.New("gh: resource not found")

// BackoffPolicy controls the quota-exhaustion wait loop. When the API
// reports the rate limit exceeded, the client polls the remaining quota at
// Interval until it becomes positive and then retries the same call.
// MaxAttempts bounds the number of retries per call; zero retries until the
// remote quota resets.
type BackoffPolicy struct {
	Interval    time.Duration
	MaxAttempts int
}

// Repo is a client bound to a single repository.
type Repo struct {
	owner   string
	name    string
	client  *github.Client
	httpc   *http.Client
	perPage int
	backoff BackoffPolicy

	sleep func(time.Duration) // overridable in tests
}

// NewRepo dials the hosting service and verifies the repository exists.
func NewRepo(ctx context.Context, owner, name, token string, perPage int, backoff BackoffPolicy) (*Repo, error) {
	if token == "" {
		return nil, errors.New("gh: missing access token")
	}
	tc := oauth2.NewClient(ctx, oauth2.StaticTokenSource(&oauth2.Token{AccessToken: token}))
	r := newRepo(github.NewClient(tc), owner, name, perPage, backoff)

	err := r.withRetry(ctx, func() error {
		_, _, err := r.client.Repositories.Get(ctx, owner, name)
		return err
	})
	if err != nil {
		return nil, fmt.Errorf("fetching repo %s/%s: %w", owner, name, err)
	}
	return r, nil
}

func newRepo(client *github.Client, owner, name string, perPage int, backoff BackoffPolicy) *Repo {
	if perPage <= 0 {
		perPage = 100
	}
	if backoff.Interval <= 0 {
		backoff.Interval = 5 * time.Minute
	}
	return &Repo{
		owner:   owner,
		name:    name,
		client:  client,
		httpc:   &http.Client{Timeout: 30 * time.Second},
		perPage: perPage,
		backoff: backoff,
		sleep:   time.Sleep,
	}
}

// FullName returns "owner/name".
func (r *Repo) FullName() string {
	return r.owner + "/" + r.name
}

// Name returns the repository name without the owner.
func (r *Repo) Name() string {
	return r.name
}

// ScanPulls walks every closed pull request of the repository in creation
// order, oldest first, calling fn for each. Commits, comments and resolved
// issues are left for the caller to fill in.
func (r *Repo) ScanPulls(ctx context.Context, fn func(domain.PullRequest) error) error {
	opts := &github.PullRequestListOptions{
		State:     "closed",
		Sort:      "created",
		Direction: "asc",
		ListOptions: github.ListOptions{
			Page:    1,
			PerPage: r.perPage,
		},
	}

	for {
		var prs []*github.PullRequest
		var resp *github.Response
		err := r.withRetry(ctx, func() error {
			var err error
			prs, resp, err = r.client.PullRequests.List(ctx, r.owner, r.name, opts)
			return err
		})
		if err != nil {
			if errors.Is(err, ErrNotFound) {
				return nil
			}
			return fmt.Errorf("listing pulls for %s page %d: %w", r.FullName(), opts.Page, err)
		}

		for _, pr := range prs {
			if err := fn(convertPull(pr)); err != nil {
				return err
			}
		}

		log.Printf("[%s] processed pull request page %d (%d values)", r.FullName(), opts.Page, len(prs))
		if resp.NextPage == 0 {
			return nil
		}
		opts.Page = resp.NextPage
	}
}

// ListPullCommits returns all commits of a pull request in order.
func (r *Repo) ListPullCommits(ctx context.Context, number int) ([]domain.Commit, error) {
	var commits []domain.Commit
	opts := &github.ListOptions{Page: 1, PerPage: r.perPage}

	for {
		var page []*github.RepositoryCommit
		var resp *github.Response
		err := r.withRetry(ctx, func() error {
			var err error
			page, resp, err = r.client.PullRequests.ListCommits(ctx, r.owner, r.name, number, opts)
			return err
		})
		if err != nil {
			if errors.Is(err, ErrNotFound) {
				return nil, nil
			}
			return nil, fmt.Errorf("listing commits for %s#%d: %w", r.FullName(), number, err)
		}

		for _, rc := range page {
			commits = append(commits, domain.Commit{
				SHA:        rc.GetSHA(),
				Message:    rc.GetCommit().GetMessage(),
				AuthoredAt: rc.GetCommit().GetAuthor().GetDate().Time,
			})
		}
		if resp.NextPage == 0 {
			return commits, nil
		}
		opts.Page = resp.NextPage
	}
}

// ListIssueComments returns the comments of an issue in the order the
// hosting service delivers them. That order is not guaranteed chronological.
func (r *Repo) ListIssueComments(ctx context.Context, number int) ([]domain.Comment, error) {
	var comments []domain.Comment
	opts := &github.IssueListCommentsOptions{
		ListOptions: github.ListOptions{Page: 1, PerPage: r.perPage},
	}

	for {
		var page []*github.IssueComment
		var resp *github.Response
		err := r.withRetry(ctx, func() error {
			var err error
			page, resp, err = r.client.Issues.ListComments(ctx, r.owner, r.name, number, opts)
			return err
		})
		if err != nil {
			if errors.Is(err, ErrNotFound) {
				return nil, nil
			}
			return nil, fmt.Errorf("listing comments for %s#%d: %w", r.FullName(), number, err)
		}

		for _, c := range page {
			comments = append(comments, domain.Comment{
				Body:      c.GetBody(),
				UpdatedAt: c.GetUpdatedAt().Time,
			})
		}
		if resp.NextPage == 0 {
			return comments, nil
		}
		opts.Page = resp.NextPage
	}
}

// GetIssue fetches a single issue. Returns ErrNotFound when the hosting
// service has no such issue.
func (r *Repo) GetIssue(ctx context.Context, number int) (*domain.Issue, error) {
	var issue *github.Issue
	err := r.withRetry(ctx, func() error {
		var err error
		issue, _, err = r.client.Issues.Get(ctx, r.owner, r.name, number)
		return err
	})
	if err != nil {
		return nil, err
	}
	return &domain.Issue{
		Number: issue.GetNumber(),
		Title:  issue.GetTitle(),
		Body:   issue.GetBody(),
	}, nil
}

// GetDiff downloads the unified diff of a pull request from its diff URL.
func (r *Repo) GetDiff(ctx context.Context, url string) (string, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return "", err
	}
	resp, err := r.httpc.Do(req)
	if err != nil {
		return "", fmt.Errorf("fetching diff %s: %w", url, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return "", fmt.Errorf("fetching diff %s: status %d", url, resp.StatusCode)
	}
	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return "", err
	}
	return string(body), nil
}

// RateLimitRemaining returns the remaining core API quota.
func (r *Repo) RateLimitRemaining(ctx context.Context) (int, error) {
	limits, _, err := r.client.RateLimit.Get(ctx)
	if err != nil {
		return 0, err
	}
	return limits.GetCore().Remaining, nil
}

// withRetry runs op, handling the two fault classes the hosting service can
// signal: not-found is terminal and mapped to ErrNotFound; quota exhaustion
// triggers the polling wait loop before retrying the same call.
func (r *Repo) withRetry(ctx context.Context, op func() error) error {
	attempts := 0
	for {
		err := op()
		if err == nil {
			return nil
		}
		if isNotFound(err) {
			return ErrNotFound
		}
		if !isRateLimited(err) {
			return err
		}

		attempts++
		if r.backoff.MaxAttempts > 0 && attempts >= r.backoff.MaxAttempts {
			return fmt.Errorf("rate limit retries exhausted after %d attempts: %w", attempts, err)
		}
		if err := r.waitForQuota(ctx); err != nil {
			return err
		}
	}
}

// waitForQuota polls the rate-limit endpoint until remaining quota is
// positive, sleeping the configured interval between probes.
func (r *Repo) waitForQuota(ctx context.Context) error {
	for {
		if err := ctx.Err(); err != nil {
			return err
		}
		remaining, err := r.RateLimitRemaining(ctx)
		if err == nil && remaining > 0 {
			return nil
		}
		log.Printf("[%s] rate limit exceeded, waiting %s (remaining: %d)", r.FullName(), r.backoff.Interval, remaining)
		r.sleep(r.backoff.Interval)
	}
}

func isNotFound(err error) bool {
	var errResp *github.ErrorResponse
	if errors.As(err, &errResp) && errResp.Response != nil {
		return errResp.Response.StatusCode == http.StatusNotFound
	}
	return false
}

func isRateLimited(err error) bool {
	var rateErr *github.RateLimitError
	if errors.As(err, &rateErr) {
		return true
	}
	var abuseErr *github.AbuseRateLimitError
	if errors.As(err, &abuseErr) {
		return true
	}
	var errResp *github.ErrorResponse
	if errors.As(err, &errResp) && errResp.Response != nil {
		return errResp.Response.StatusCode == http.StatusForbidden
	}
	return false
}

func convertPull(pr *github.PullRequest) domain.PullRequest {
	out := domain.PullRequest{
		Number:  pr.GetNumber(),
		Title:   pr.GetTitle(),
		Body:    pr.GetBody(),
		State:   pr.GetState(),
		DiffURL: pr.GetDiffURL(),
		BaseSHA: pr.GetBase().GetSHA(),
	}
	if pr.MergedAt != nil {
		t := pr.MergedAt.Time
		out.MergedAt = &t
	}
	return out
}
