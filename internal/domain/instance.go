package domain

import (
	"fmt"
	"strings"
	"time"
)

// TaskInstance is a benchmark candidate assembled from a pull request:
// a problem statement paired with the fix patch and the test patch that
// verifies it. An instance is only constructed for a pull request that
// resolves at least one issue and yields a non-empty code patch.
type TaskInstance struct {
	InstanceID       string    `json:"instance_id"`
	Repo             string    `json:"repo"`
	PullNumber       int       `json:"pull_number"`
	IssueNumbers     []string  `json:"issue_numbers"`
	BaseCommit       string    `json:"base_commit"`
	Patch            string    `json:"patch"`
	TestPatch        string    `json:"test_patch"`
	ProblemStatement string    `json:"problem_statement"`
	HintsText        string    `json:"hints_text"`
	TestDirectives   []string  `json:"test_directives"`
	CreatedAt        time.Time `json:"created_at"`
}

// InstanceID derives the canonical instance identifier for a pull request
// of a repository, e.g. "django__django-12345".
func InstanceID(repo string, pullNumber int) string {
	return fmt.Sprintf("%s-%d", strings.ReplaceAll(repo, "/", "__"), pullNumber)
}
