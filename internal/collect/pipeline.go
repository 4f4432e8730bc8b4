package collect

import (
	"context"
	"errors"
	"fmt"
	"log"
	"os"
	"strings"
	"sync"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/openevals/benchforge/internal/config"
	"github.com/openevals/benchforge/internal/gh"
	"github.com/openevals/benchforge/internal/runstore"
	"github.com/openevals/benchforge/internal/statement"
)

// Pipeline stage names, in execution order.
const (
	StagePullRequests  = "pull_requests"
	StageTaskInstances = "task_instances"
	StageVerification  = "verification"
)

// Verifier grades a task instance log and writes a results log.
type Verifier interface {
	VerifyFile(ctx context.Context, repo, taskPath, resultPath string) error
}

// Event reports a stage transition to an observer such as the status server.
type Event struct {
	Repo   string `json:"repo"`
	Stage  string `json:"stage"`
	Status string `json:"status"`
}

// Pipeline runs the collection stages for one repository at a time. The
// harvesting stages are skipped when their output log already exists, so
// re-running is cheap and never clobbers already harvested data; the
// verification stage always runs and rewrites its results log.
type Pipeline struct {
	cfg      *config.Config
	token    string
	store    *runstore.Store
	verifier Verifier
	notify   func(Event)
}

// NewPipeline creates a Pipeline. store and notify may be nil; verifier may
// be nil when only the harvesting stages are wanted.
func NewPipeline(cfg *config.Config, token string, store *runstore.Store, verifier Verifier, notify func(Event)) *Pipeline {
	return &Pipeline{cfg: cfg, token: token, store: store, verifier: verifier, notify: notify}
}

// Run executes all stages for one repository named "owner/name".
func (p *Pipeline) Run(ctx context.Context, repoName string) error {
	owner, name, err := splitRepoName(repoName)
	if err != nil {
		return err
	}
	if err := p.cfg.EnsureDataDirs(); err != nil {
		return err
	}

	var runID string
	if p.store != nil {
		run, err := p.store.CreateRun(repoName)
		if err != nil {
			return fmt.Errorf("record run: %w", err)
		}
		runID = run.ID
	}

	log.Printf("PROCESSING REPO: %s", repoName)
	err = p.runStages(ctx, runID, owner, name, repoName)

	if p.store != nil {
		status, msg := runstore.RunCompleted, ""
		if err != nil {
			status, msg = runstore.RunFailed, err.Error()
		}
		if ferr := p.store.FinishRun(runID, status, msg); ferr != nil {
			log.Printf("record run outcome for %s: %v", repoName, ferr)
		}
	}
	return err
}

func (p *Pipeline) runStages(ctx context.Context, runID, owner, name, repoName string) error {
	prPath := p.cfg.PRLogPath(repoName)
	taskPath := p.cfg.TaskLogPath(repoName)
	resultPath := p.cfg.ResultLogPath(repoName)

	// The hosting-service client is dialed once, and only when some stage
	// actually needs the network.
	var host *gh.Repo
	dial := func() (*gh.Repo, error) {
		if host != nil {
			return host, nil
		}
		h, err := gh.NewRepo(ctx, owner, name, p.token, p.cfg.GitHub.PerPage, p.backoff())
		if err != nil {
			return nil, err
		}
		host = h
		return host, nil
	}

	err := p.stage(runID, repoName, StagePullRequests, prPath, func() (int, error) {
		h, err := dial()
		if err != nil {
			return 0, err
		}
		return HarvestPulls(ctx, h, prPath)
	})
	if err != nil {
		return err
	}

	err = p.stage(runID, repoName, StageTaskInstances, taskPath, func() (int, error) {
		h, err := dial()
		if err != nil {
			return 0, err
		}
		asm := statement.New(h, statement.NewTracScraper())
		return BuildTasks(ctx, repoName, asm, h, prPath, taskPath)
	})
	if err != nil {
		return err
	}

	if p.verifier == nil {
		return nil
	}
	return p.stage(runID, repoName, StageVerification, "", func() (int, error) {
		if err := p.verifier.VerifyFile(ctx, repoName, taskPath, resultPath); err != nil {
			return 0, err
		}
		instances, err := ReadTaskInstances(taskPath)
		if err != nil {
			return 0, fmt.Errorf("count task instances: %w", err)
		}
		return len(instances), nil
	})
}

// stage runs one pipeline stage. A non-empty outPath makes the stage
// idempotent: it is skipped when that file already exists.
func (p *Pipeline) stage(runID, repoName, stage, outPath string, fn func() (int, error)) error {
	if outPath != "" && fileExists(outPath) {
		log.Printf("[%s] %s output already exists at %s, skipping", repoName, stage, outPath)
		p.recordStep(runID, stage, runstore.StepSkipped, 0)
		p.emit(Event{Repo: repoName, Stage: stage, Status: runstore.StepSkipped})
		return nil
	}

	if p.store != nil && runID != "" {
		if err := p.store.StartStep(runID, stage); err != nil {
			log.Printf("record step %s for %s: %v", stage, repoName, err)
		}
	}
	p.emit(Event{Repo: repoName, Stage: stage, Status: runstore.StepRunning})

	records, err := fn()
	if err != nil {
		p.recordStep(runID, stage, runstore.StepFailed, records)
		p.emit(Event{Repo: repoName, Stage: stage, Status: runstore.StepFailed})
		return fmt.Errorf("%s: %w", stage, err)
	}

	p.recordStep(runID, stage, runstore.StepCompleted, records)
	p.emit(Event{Repo: repoName, Stage: stage, Status: runstore.StepCompleted})
	return nil
}

func (p *Pipeline) recordStep(runID, stage, status string, records int) {
	if p.store == nil || runID == "" {
		return
	}
	if status == runstore.StepSkipped {
		if err := p.store.StartStep(runID, stage); err != nil {
			log.Printf("record step %s: %v", stage, err)
			return
		}
	}
	if err := p.store.FinishStep(runID, stage, status, records); err != nil {
		log.Printf("record step %s: %v", stage, err)
	}
}

func (p *Pipeline) emit(ev Event) {
	if p.notify != nil {
		p.notify(ev)
	}
}

func (p *Pipeline) backoff() gh.BackoffPolicy {
	return gh.BackoffPolicy{
		Interval:    time.Duration(p.cfg.GitHub.BackoffIntervalMinutes) * time.Minute,
		MaxAttempts: p.cfg.GitHub.BackoffMaxAttempts,
	}
}

// RunAll processes each repository, fanning out up to parallel repositories
// at once. A failing repository is logged and does not stop the others; the
// joined error reports every failure at the end.
func (p *Pipeline) RunAll(ctx context.Context, repos []string, parallel int) error {
	if parallel < 1 {
		parallel = 1
	}

	var g errgroup.Group
	g.SetLimit(parallel)

	var mu sync.Mutex
	var errs []error
	for _, repo := range repos {
		repo := strings.TrimSpace(strings.Trim(repo, ","))
		if repo == "" {
			continue
		}
		g.Go(func() error {
			if err := p.Run(ctx, repo); err != nil {
				log.Printf("Something went wrong while creating tasks for the repo %s: %v", repo, err)
				mu.Lock()
				errs = append(errs, fmt.Errorf("%s: %w", repo, err))
				mu.Unlock()
			}
			return nil
		})
	}
	g.Wait()
	return errors.Join(errs...)
}

func splitRepoName(repoName string) (owner, name string, err error) {
	parts := strings.Split(repoName, "/")
	if len(parts) != 2 || parts[0] == "" || parts[1] == "" {
		return "", "", fmt.Errorf("repository name %q must be of the form owner/name", repoName)
	}
	return parts[0], parts[1], nil
}

func fileExists(path string) bool {
	_, err := os.Stat(path)
	return err == nil
}
