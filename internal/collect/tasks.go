package collect

import (
	"context"
	"encoding/json"
	"fmt"
	"log"
	"os"
	"time"

	"github.com/openevals/benchforge/internal/diffsplit"
	"github.com/openevals/benchforge/internal/domain"
	"github.com/openevals/benchforge/internal/statement"
)

// DiffSource fetches the unified diff of a pull request by URL.
type DiffSource interface {
	GetDiff(ctx context.Context, url string) (string, error)
}

// BuildTasks reads a harvested pull request log and writes a task instance
// log. A pull request yields an instance only when it was merged, resolves
// at least one issue, and its diff classifies into a non-empty code patch.
// Returns the number of instances written.
func BuildTasks(ctx context.Context, repo string, asm *statement.Assembler, diffs DiffSource, prPath, taskPath string) (int, error) {
	pulls, err := ReadPullRequests(prPath)
	if err != nil {
		return 0, err
	}

	f, err := os.Create(taskPath)
	if err != nil {
		return 0, fmt.Errorf("create task instance log: %w", err)
	}
	defer f.Close()

	enc := json.NewEncoder(f)
	count := 0
	for _, pr := range pulls {
		if pr.MergedAt == nil || len(pr.ResolvedIssues) == 0 {
			continue
		}

		problem, hints, err := asm.Assemble(ctx, pr)
		if err != nil {
			return count, fmt.Errorf("assemble statement for #%d: %w", pr.Number, err)
		}

		diff, err := diffs.GetDiff(ctx, pr.DiffURL)
		if err != nil {
			return count, fmt.Errorf("fetch diff for #%d: %w", pr.Number, err)
		}
		codePatch, testPatch := diffsplit.Split(diff)
		if codePatch == "" {
			continue
		}

		inst := domain.TaskInstance{
			InstanceID:       domain.InstanceID(repo, pr.Number),
			Repo:             repo,
			PullNumber:       pr.Number,
			IssueNumbers:     pr.ResolvedIssues,
			BaseCommit:       pr.BaseSHA,
			Patch:            codePatch,
			TestPatch:        testPatch,
			ProblemStatement: problem,
			HintsText:        hints,
			TestDirectives:   diffsplit.TestDirectives(repo, testPatch),
			CreatedAt:        time.Now().UTC(),
		}
		if err := enc.Encode(inst); err != nil {
			return count, fmt.Errorf("write instance %s: %w", inst.InstanceID, err)
		}
		count++
	}

	log.Printf("[%s] Built %d task instances from %d pull requests", repo, count, len(pulls))
	return count, nil
}
