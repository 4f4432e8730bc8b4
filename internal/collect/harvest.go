package collect

import (
	"context"
	"encoding/json"
	"fmt"
	"log"
	"os"

	"github.com/openevals/benchforge/internal/domain"
	"github.com/openevals/benchforge/internal/refs"
)

// PullSource lists a repository's pull requests together with their commits
// and comments.
type PullSource interface {
	FullName() string
	ScanPulls(ctx context.Context, fn func(domain.PullRequest) error) error
	ListPullCommits(ctx context.Context, number int) ([]domain.Commit, error)
	ListIssueComments(ctx context.Context, number int) ([]domain.Comment, error)
}

// HarvestPulls writes every closed pull request of the repository to path,
// one JSON record per line, with commits, comments and resolved issue
// references filled in. Returns the number of records written.
func HarvestPulls(ctx context.Context, src PullSource, path string) (int, error) {
	f, err := os.Create(path)
	if err != nil {
		return 0, fmt.Errorf("create pull request log: %w", err)
	}
	defer f.Close()

	enc := json.NewEncoder(f)
	count := 0
	err = src.ScanPulls(ctx, func(pr domain.PullRequest) error {
		commits, err := src.ListPullCommits(ctx, pr.Number)
		if err != nil {
			return fmt.Errorf("list commits for #%d: %w", pr.Number, err)
		}
		pr.Commits = commits

		// The pull request's own conversation thread. Hint extraction reads
		// each resolved issue's thread instead, a different set of comments.
		comments, err := src.ListIssueComments(ctx, pr.Number)
		if err != nil {
			return fmt.Errorf("list comments for #%d: %w", pr.Number, err)
		}
		pr.Comments = comments

		pr.ResolvedIssues = refs.ResolvedIssues(pr.Title, pr.Body, pr.CommitMessages())

		if err := enc.Encode(pr); err != nil {
			return fmt.Errorf("write #%d: %w", pr.Number, err)
		}
		count++
		return nil
	})
	if err != nil {
		return count, err
	}

	log.Printf("[%s] Saved %d pull requests to %s", src.FullName(), count, path)
	return count, nil
}
