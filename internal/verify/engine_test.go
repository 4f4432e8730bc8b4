package verify

import (
	"bufio"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/openevals/benchforge/internal/domain"
	"github.com/openevals/benchforge/internal/llm"
)

// fakeModel replays scripted notes and ranks in call order.
type fakeModel struct {
	notes     []string
	ranks     []int
	noteCalls int
	rankCalls int
	schemas   []string
	rankErr   error
}

func (f *fakeModel) Complete(_ context.Context, _ string, _ []domain.Message) (string, error) {
	if f.noteCalls >= len(f.notes) {
		return "", errors.New("unexpected Complete call")
	}
	n := f.notes[f.noteCalls]
	f.noteCalls++
	return n, nil
}

func (f *fakeModel) CompleteRank(_ context.Context, _ string, _ []domain.Message, schema llm.RankSchema) (int, error) {
	if f.rankErr != nil {
		return 0, f.rankErr
	}
	if f.rankCalls >= len(f.ranks) {
		return 0, errors.New("unexpected CompleteRank call")
	}
	f.schemas = append(f.schemas, schema.Name)
	r := f.ranks[f.rankCalls]
	f.rankCalls++
	return r, nil
}

func testInstance() domain.TaskInstance {
	return domain.TaskInstance{
		InstanceID:       "django__django-100",
		Repo:             "django/django",
		PullNumber:       100,
		BaseCommit:       "abc123",
		Patch:            "diff --git a/core.py b/core.py",
		TestPatch:        "diff --git a/tests/test_core.py b/tests/test_core.py",
		ProblemStatement: "T\nB\n",
	}
}

func TestVerifyDialogue(t *testing.T) {
	model := &fakeModel{
		notes: []string{"spec looks clear", "tests seem broad", "nothing else"},
		ranks: []int{1, 2, 0},
	}
	engine := New(model, nil)

	vr, msgs, err := engine.Verify(context.Background(), testInstance())
	if err != nil {
		t.Fatalf("verify failed: %v", err)
	}

	if vr.Underspecified != 1 {
		t.Errorf("underspecified = %d, want 1", vr.Underspecified)
	}
	if vr.FalseNegative != 2 {
		t.Errorf("false_negative = %d, want 2", vr.FalseNegative)
	}
	if vr.OtherMajorIssues != 0 {
		t.Errorf("other_major_issues = %d, want 0", vr.OtherMajorIssues)
	}
	if !vr.FilterOut {
		t.Error("filter_out should be true for false_negative rank 2")
	}
	if vr.UnderspecifiedNotes != "spec looks clear" {
		t.Errorf("unexpected underspecified notes: %q", vr.UnderspecifiedNotes)
	}
	if vr.FalseNegativeNotes != "tests seem broad" {
		t.Errorf("unexpected false negative notes: %q", vr.FalseNegativeNotes)
	}
	if vr.OtherNotes != "nothing else" {
		t.Errorf("unexpected other notes: %q", vr.OtherNotes)
	}

	// 1 system + 3 stages of (prompt, notes, rank prompt, rank)
	if len(msgs) != 13 {
		t.Fatalf("transcript has %d messages, want 13", len(msgs))
	}
	if msgs[0].Role != domain.RoleSystem {
		t.Errorf("first message role = %s, want system", msgs[0].Role)
	}
	if !strings.Contains(msgs[0].Content, "django/django repository") {
		t.Error("system message should name the repository")
	}
	if !strings.Contains(msgs[1].Content, "T\nB\n") {
		t.Error("first prompt should contain the problem statement")
	}
	if !strings.Contains(msgs[5].Content, "a/core.py") {
		t.Error("test scoping prompt should contain the gold patch")
	}
	if msgs[4].Content != "1" {
		t.Errorf("rank reply = %q, want \"1\"", msgs[4].Content)
	}
	for i, want := range []domain.Role{domain.RoleHuman, domain.RoleAssistant, domain.RoleHuman, domain.RoleAssistant} {
		if got := msgs[1+i].Role; got != want {
			t.Errorf("message %d role = %s, want %s", 1+i, got, want)
		}
	}

	if want := []string{"underspecified", "false_negative", "other_major_issues"}; fmt.Sprint(model.schemas) != fmt.Sprint(want) {
		t.Errorf("schema order = %v, want %v", model.schemas, want)
	}
}

func TestVerifyOtherIssuesFiltersOut(t *testing.T) {
	model := &fakeModel{
		notes: []string{"fine", "fine", "uses flaky network calls"},
		ranks: []int{0, 0, 1},
	}
	engine := New(model, nil)

	vr, _, err := engine.Verify(context.Background(), testInstance())
	if err != nil {
		t.Fatalf("verify failed: %v", err)
	}
	if !vr.FilterOut {
		t.Error("filter_out should be true when other_major_issues is 1")
	}
}

func TestVerifyRankFaultAborts(t *testing.T) {
	model := &fakeModel{
		notes:   []string{"fine"},
		rankErr: errors.New("no rank field in response"),
	}
	engine := New(model, nil)

	_, msgs, err := engine.Verify(context.Background(), testInstance())
	if err == nil {
		t.Fatal("expected error for malformed structured response")
	}
	// system, prompt, notes, rank prompt all recorded before the fault
	if len(msgs) != 4 {
		t.Errorf("transcript has %d messages, want 4", len(msgs))
	}
}

func TestVerifyFile(t *testing.T) {
	dir := t.TempDir()
	taskPath := filepath.Join(dir, "django-task-instances.jsonl")
	resultPath := filepath.Join(dir, "django-results.jsonl")

	f, err := os.Create(taskPath)
	if err != nil {
		t.Fatalf("create task file: %v", err)
	}
	enc := json.NewEncoder(f)
	for _, id := range []string{"django__django-1", "django__django-2"} {
		inst := testInstance()
		inst.InstanceID = id
		if err := enc.Encode(inst); err != nil {
			t.Fatalf("write task instance: %v", err)
		}
	}
	f.Close()

	model := &fakeModel{
		notes: []string{"a", "b", "c", "d", "e", "f"},
		ranks: []int{0, 0, 0, 2, 0, 0},
	}
	engine := New(model, nil)

	if err := engine.VerifyFile(context.Background(), "django/django", taskPath, resultPath); err != nil {
		t.Fatalf("verify file failed: %v", err)
	}

	rf, err := os.Open(resultPath)
	if err != nil {
		t.Fatalf("open results: %v", err)
	}
	defer rf.Close()

	var records []domain.VerificationRecord
	scanner := bufio.NewScanner(rf)
	scanner.Buffer(make([]byte, 0, 1024*1024), 16*1024*1024)
	for scanner.Scan() {
		var rec domain.VerificationRecord
		if err := json.Unmarshal(scanner.Bytes(), &rec); err != nil {
			t.Fatalf("decode record: %v", err)
		}
		records = append(records, rec)
	}
	if err := scanner.Err(); err != nil {
		t.Fatalf("scan results: %v", err)
	}

	if len(records) != 2 {
		t.Fatalf("got %d records, want 2", len(records))
	}
	if records[0].TaskInstance.InstanceID != "django__django-1" {
		t.Errorf("first record instance = %s", records[0].TaskInstance.InstanceID)
	}
	if records[0].VerificationResult.FilterOut {
		t.Error("first record should not be filtered out")
	}
	if !records[1].VerificationResult.FilterOut {
		t.Error("second record should be filtered out for rank 2")
	}
	if len(records[0].Messages) != 13 {
		t.Errorf("first record transcript has %d messages, want 13", len(records[0].Messages))
	}
}

func TestVerifyFileMissingInput(t *testing.T) {
	engine := New(&fakeModel{}, nil)
	err := engine.VerifyFile(context.Background(), "x/y", filepath.Join(t.TempDir(), "absent.jsonl"), filepath.Join(t.TempDir(), "out.jsonl"))
	if err == nil {
		t.Fatal("expected error for missing task instances file")
	}
}
