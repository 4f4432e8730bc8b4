// Package verify runs the scripted grading dialogue that decides whether a
// task instance is suitable for benchmark use.
package verify

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log"
	"os"
	"strconv"

	"github.com/openevals/benchforge/internal/domain"
	"github.com/openevals/benchforge/internal/llm"
	"github.com/openevals/benchforge/internal/prompts"
)

// Completer is the judge-model collaborator. Complete returns free-form
// assistant text; CompleteRank returns the integer field of a structured
// completion constrained to the given schema.
type Completer interface {
	Complete(ctx context.Context, system string, msgs []domain.Message) (string, error)
	CompleteRank(ctx context.Context, system string, msgs []domain.Message, schema llm.RankSchema) (int, error)
}

var specQualitySchema = llm.RankSchema{
	Name: "underspecified",
	Description: `Return a rank from 0 to 3 whether response is well-specified. Grades:
- 0: The issue is well-specified and it is clear what is required for a successful solution.
- 1: There are some blanks to fill in about the issue, but there is a sensible interpretation of what is required for a successful solution.
- 2: The issue is vague and there is room for ambiguity. It is unclear what a successful solution would look like.
- 3: It is almost impossible to understand what you are being asked to do without further information.`,
}

var testScopingSchema = llm.RankSchema{
	Name: "false_negative",
	Description: `Return a rank from 0 to 3 whether the response is well-scoped. Grades:
- 0: The tests perfectly cover all possible solutions.
- 1: The tests cover the majority of correct solutions, however some unusual solutions may be missed.
- 2: The tests work but some perfectly reasonable solutions may be missed by the tests.
- 3: The tests are too narrow/broad or they look for something different than what the issue is about.`,
}

var otherIssuesSchema = llm.RankSchema{
	Name: "other_major_issues",
	Description: `Response with 0 if there are no major issues. Response with 1 if there are major issues.
- 0: No
- 1: Yes`,
}

// Engine drives the six-stage verification dialogue. Stages run strictly in
// order; a malformed model response aborts the instance.
type Engine struct {
	model   Completer
	prompts *prompts.Loader
}

// New creates an Engine using the given judge model and prompt loader.
func New(model Completer, loader *prompts.Loader) *Engine {
	if loader == nil {
		loader = prompts.GetDefaultLoader()
	}
	return &Engine{model: model, prompts: loader}
}

// rankStage is one prompt/rank exchange pair in the dialogue.
type rankStage struct {
	promptPath string
	promptData func(inst domain.TaskInstance) any
	rankPath   string
	schema     llm.RankSchema
	setNotes   func(vr *domain.VerificationResult, notes string)
	setRank    func(vr *domain.VerificationResult, rank int)
}

var dialogueStages = []rankStage{
	{
		promptPath: "verify/spec_quality.md",
		promptData: func(inst domain.TaskInstance) any {
			return prompts.StatementData{ProblemStatement: inst.ProblemStatement}
		},
		rankPath: "verify/spec_quality_rank.md",
		schema:   specQualitySchema,
		setNotes: func(vr *domain.VerificationResult, notes string) { vr.UnderspecifiedNotes = notes },
		setRank:  func(vr *domain.VerificationResult, rank int) { vr.Underspecified = rank },
	},
	{
		promptPath: "verify/test_scoping.md",
		promptData: func(inst domain.TaskInstance) any {
			return prompts.PatchData{Patch: inst.Patch, TestPatch: inst.TestPatch}
		},
		rankPath: "verify/test_scoping_rank.md",
		schema:   testScopingSchema,
		setNotes: func(vr *domain.VerificationResult, notes string) { vr.FalseNegativeNotes = notes },
		setRank:  func(vr *domain.VerificationResult, rank int) { vr.FalseNegative = rank },
	},
	{
		promptPath: "verify/other_issues.md",
		promptData: func(domain.TaskInstance) any { return nil },
		rankPath:   "verify/other_issues_rank.md",
		schema:     otherIssuesSchema,
		setNotes:   func(vr *domain.VerificationResult, notes string) { vr.OtherNotes = notes },
		setRank:    func(vr *domain.VerificationResult, rank int) { vr.OtherMajorIssues = rank },
	},
}

// Verify runs the full dialogue for one task instance and returns the graded
// result together with the complete transcript.
func (e *Engine) Verify(ctx context.Context, inst domain.TaskInstance) (domain.VerificationResult, []domain.Message, error) {
	var vr domain.VerificationResult
	var transcript domain.Transcript

	system, err := e.prompts.BuildSystemPrompt(prompts.SystemData{Repo: inst.Repo})
	if err != nil {
		return vr, nil, fmt.Errorf("build system prompt: %w", err)
	}
	transcript.Append(domain.RoleSystem, system)

	for _, stage := range dialogueStages {
		prompt, err := e.prompts.Execute(stage.promptPath, stage.promptData(inst))
		if err != nil {
			return vr, transcript.Messages(), fmt.Errorf("render %s: %w", stage.promptPath, err)
		}
		transcript.Append(domain.RoleHuman, prompt)

		notes, err := e.model.Complete(ctx, system, dialogue(&transcript))
		if err != nil {
			return vr, transcript.Messages(), fmt.Errorf("%s: %w", stage.promptPath, err)
		}
		stage.setNotes(&vr, notes)
		transcript.Append(domain.RoleAssistant, notes)

		rankPrompt, err := e.prompts.Execute(stage.rankPath, nil)
		if err != nil {
			return vr, transcript.Messages(), fmt.Errorf("render %s: %w", stage.rankPath, err)
		}
		transcript.Append(domain.RoleHuman, rankPrompt)

		rank, err := e.model.CompleteRank(ctx, system, dialogue(&transcript), stage.schema)
		if err != nil {
			return vr, transcript.Messages(), fmt.Errorf("%s: %w", stage.rankPath, err)
		}
		stage.setRank(&vr, rank)
		transcript.Append(domain.RoleAssistant, strconv.Itoa(rank))
	}

	vr.Recompute()
	return vr, transcript.Messages(), nil
}

// dialogue returns the transcript without its leading system message, which
// the model API takes as a separate field.
func dialogue(t *domain.Transcript) []domain.Message {
	msgs := t.Messages()
	if len(msgs) > 0 && msgs[0].Role == domain.RoleSystem {
		return msgs[1:]
	}
	return msgs
}

// VerifyFile grades every task instance in taskPath and rewrites resultPath
// wholesale with one record per line. A failed instance aborts the pass so
// a partial file is never mistaken for a completed run.
func (e *Engine) VerifyFile(ctx context.Context, repo, taskPath, resultPath string) error {
	instances, err := readTaskInstances(taskPath)
	if err != nil {
		return err
	}
	log.Printf("Verifying %d task instances for %s using LLM grader.", len(instances), repo)

	out, err := os.Create(resultPath)
	if err != nil {
		return fmt.Errorf("create results log: %w", err)
	}
	defer out.Close()

	enc := json.NewEncoder(out)
	for _, inst := range instances {
		vr, msgs, err := e.Verify(ctx, inst)
		if err != nil {
			return fmt.Errorf("verify %s: %w", inst.InstanceID, err)
		}

		record := domain.VerificationRecord{
			TaskInstance:       inst,
			VerificationResult: vr,
			Messages:           msgs,
		}
		if err := enc.Encode(record); err != nil {
			return fmt.Errorf("write result for %s: %w", inst.InstanceID, err)
		}
		log.Printf("Instance ID: %s, Underspecified: %d, False Negative: %d, Other Major Issues: %d, Filtered Out: %t",
			inst.InstanceID, vr.Underspecified, vr.FalseNegative, vr.OtherMajorIssues, vr.FilterOut)
	}

	log.Printf("Verification results saved to %s", resultPath)
	return nil
}

func readTaskInstances(path string) ([]domain.TaskInstance, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("open task instances: %w", err)
	}
	defer f.Close()

	var instances []domain.TaskInstance
	dec := json.NewDecoder(f)
	for {
		var inst domain.TaskInstance
		if err := dec.Decode(&inst); err == io.EOF {
			break
		} else if err != nil {
			return nil, fmt.Errorf("decode task instance: %w", err)
		}
		instances = append(instances, inst)
	}
	return instances, nil
}
