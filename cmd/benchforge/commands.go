package main

import (
	"bufio"
	"context"
	"fmt"
	"log"
	"os"
	"path/filepath"
	"strings"
	"text/tabwriter"
	"time"

	"github.com/spf13/cobra"

	"github.com/openevals/benchforge/internal/batch"
	"github.com/openevals/benchforge/internal/collect"
	"github.com/openevals/benchforge/internal/config"
	"github.com/openevals/benchforge/internal/gh"
	"github.com/openevals/benchforge/internal/llm"
	"github.com/openevals/benchforge/internal/observer"
	"github.com/openevals/benchforge/internal/prompts"
	"github.com/openevals/benchforge/internal/runstore"
	"github.com/openevals/benchforge/internal/statement"
	"github.com/openevals/benchforge/internal/verify"
	"github.com/openevals/benchforge/web/api"
)

var (
	runParallel   int
	verifyWatch   bool
	batchParallel int
	servePort     int
	statusLimit   int
)

func init() {
	// harvest command
	harvestCmd := &cobra.Command{
		Use:   "harvest REPO...",
		Short: "Download pull request data for repositories",
		Args:  cobra.MinimumNArgs(1),
		RunE:  runHarvest,
	}
	rootCmd.AddCommand(harvestCmd)

	// tasks command
	tasksCmd := &cobra.Command{
		Use:   "tasks REPO...",
		Short: "Build task instances from harvested pull requests",
		Args:  cobra.MinimumNArgs(1),
		RunE:  runTasks,
	}
	rootCmd.AddCommand(tasksCmd)

	// verify command
	verifyCmd := &cobra.Command{
		Use:   "verify REPO...",
		Short: "Grade task instances with the LLM judge",
		RunE:  runVerify,
	}
	verifyCmd.Flags().BoolVar(&verifyWatch, "watch", false, "watch for new task instance logs and verify them as they land")
	rootCmd.AddCommand(verifyCmd)

	// run command
	runCmd := &cobra.Command{
		Use:   "run REPO...",
		Short: "Run the full pipeline: harvest, build tasks, verify",
		Args:  cobra.MinimumNArgs(1),
		RunE:  runPipeline,
	}
	runCmd.Flags().IntVar(&runParallel, "parallel", 1, "number of repositories to process at once")
	rootCmd.AddCommand(runCmd)

	// batch command
	batchCmd := &cobra.Command{
		Use:   "batch",
		Short: "Run the pipeline on the configured cron schedule",
		RunE:  runBatch,
	}
	batchCmd.Flags().IntVar(&batchParallel, "parallel", 1, "number of repositories to process at once")
	rootCmd.AddCommand(batchCmd)

	// status command
	statusCmd := &cobra.Command{
		Use:   "status",
		Short: "Show recent pipeline runs",
		RunE:  runStatus,
	}
	statusCmd.Flags().IntVar(&statusLimit, "limit", 20, "number of runs to show")
	rootCmd.AddCommand(statusCmd)

	// serve command
	serveCmd := &cobra.Command{
		Use:   "serve",
		Short: "Start the status API server",
		RunE:  runServe,
	}
	serveCmd.Flags().IntVar(&servePort, "port", 0, "port to listen on (overrides config)")
	rootCmd.AddCommand(serveCmd)
}

func loadConfig() (*config.Config, error) {
	path := configPath
	if path == "" {
		path = config.DefaultConfigPath()
	}
	return config.Load(path)
}

// resolveToken returns the GitHub token from config or environment, falling
// back to an interactive prompt whose answer is persisted in the config file.
func resolveToken(cfg *config.Config) (string, error) {
	if token, ok := cfg.ResolveGitHubToken(); ok {
		return token, nil
	}

	fmt.Println("Please provide your GitHub authentication token. This is stored locally.")
	fmt.Print("> ")
	line, err := bufio.NewReader(os.Stdin).ReadString('\n')
	if err != nil {
		return "", fmt.Errorf("read token: %w", err)
	}
	token := strings.TrimSpace(line)
	if token == "" {
		return "", fmt.Errorf("a GitHub token is required")
	}

	cfg.GitHub.Token = token
	path := configPath
	if path == "" {
		path = config.DefaultConfigPath()
	}
	if err := cfg.Save(path); err != nil {
		log.Printf("could not persist token to %s: %v", path, err)
	} else {
		fmt.Printf("Thanks! Your token is saved in %s.\n", path)
	}
	return token, nil
}

func newVerifier(cfg *config.Config) (*verify.Engine, error) {
	key, ok := cfg.ResolveLLMKey()
	if !ok {
		return nil, fmt.Errorf("no LLM API key configured; set llm.api_key or ANTHROPIC_API_KEY")
	}
	client := llm.New(cfg.LLM.BaseURL, key, cfg.LLM.Model, cfg.LLM.MaxTokens)
	return verify.New(client, prompts.GetDefaultLoader()), nil
}

func openStore(cfg *config.Config) (*runstore.Store, error) {
	if err := os.MkdirAll(filepath.Dir(cfg.General.DatabasePath), 0o755); err != nil {
		return nil, err
	}
	return runstore.New(cfg.General.DatabasePath)
}

func runHarvest(cmd *cobra.Command, args []string) error {
	cfg, err := loadConfig()
	if err != nil {
		return err
	}
	token, err := resolveToken(cfg)
	if err != nil {
		return err
	}
	if err := cfg.EnsureDataDirs(); err != nil {
		return err
	}

	for _, repoName := range args {
		prPath := cfg.PRLogPath(repoName)
		if _, err := os.Stat(prPath); err == nil {
			log.Printf("[%s] pull request log already exists at %s, skipping", repoName, prPath)
			continue
		}
		h, err := dialRepo(cmd.Context(), cfg, token, repoName)
		if err != nil {
			return err
		}
		if _, err := collect.HarvestPulls(cmd.Context(), h, prPath); err != nil {
			return err
		}
	}
	return nil
}

func runTasks(cmd *cobra.Command, args []string) error {
	cfg, err := loadConfig()
	if err != nil {
		return err
	}
	token, err := resolveToken(cfg)
	if err != nil {
		return err
	}
	if err := cfg.EnsureDataDirs(); err != nil {
		return err
	}

	for _, repoName := range args {
		prPath := cfg.PRLogPath(repoName)
		if _, err := os.Stat(prPath); err != nil {
			return fmt.Errorf("no pull request log for %s at %s; run harvest first", repoName, prPath)
		}
		taskPath := cfg.TaskLogPath(repoName)
		if _, err := os.Stat(taskPath); err == nil {
			log.Printf("[%s] task instance log already exists at %s, skipping", repoName, taskPath)
			continue
		}
		h, err := dialRepo(cmd.Context(), cfg, token, repoName)
		if err != nil {
			return err
		}
		asm := statement.New(h, statement.NewTracScraper())
		if _, err := collect.BuildTasks(cmd.Context(), repoName, asm, h, prPath, taskPath); err != nil {
			return err
		}
	}
	return nil
}

func dialRepo(ctx context.Context, cfg *config.Config, token, repoName string) (*gh.Repo, error) {
	owner, name, ok := strings.Cut(repoName, "/")
	if !ok || owner == "" || name == "" {
		return nil, fmt.Errorf("repository name %q must be of the form owner/name", repoName)
	}
	return gh.NewRepo(ctx, owner, name, token, cfg.GitHub.PerPage, gh.BackoffPolicy{
		Interval:    time.Duration(cfg.GitHub.BackoffIntervalMinutes) * time.Minute,
		MaxAttempts: cfg.GitHub.BackoffMaxAttempts,
	})
}

func runVerify(cmd *cobra.Command, args []string) error {
	cfg, err := loadConfig()
	if err != nil {
		return err
	}
	engine, err := newVerifier(cfg)
	if err != nil {
		return err
	}
	if err := cfg.EnsureDataDirs(); err != nil {
		return err
	}

	if verifyWatch {
		return watchAndVerify(cmd.Context(), cfg, engine)
	}

	if len(args) == 0 {
		return fmt.Errorf("provide at least one repository, or use --watch")
	}
	for _, repo := range args {
		taskPath := cfg.TaskLogPath(repo)
		resultPath := cfg.ResultLogPath(repo)
		if _, err := os.Stat(taskPath); err != nil {
			log.Printf("Task instances file for %s not found at %s. Skipping verification step.", repo, taskPath)
			continue
		}
		if err := engine.VerifyFile(cmd.Context(), repo, taskPath, resultPath); err != nil {
			return err
		}
	}
	return nil
}

// watchAndVerify verifies any task instance log that lands in the tasks
// directory and does not have a results log yet.
func watchAndVerify(ctx context.Context, cfg *config.Config, engine *verify.Engine) error {
	tw, err := observer.NewTaskWatcher(cfg.TasksDir(), func(files []string) {
		for _, taskPath := range files {
			repo := strings.TrimSuffix(filepath.Base(taskPath), "-task-instances.jsonl")
			resultPath := cfg.ResultLogPath(repo)
			if _, err := os.Stat(resultPath); err == nil {
				continue
			}
			if err := engine.VerifyFile(ctx, repo, taskPath, resultPath); err != nil {
				log.Printf("verify %s: %v", repo, err)
			}
		}
	})
	if err != nil {
		return err
	}
	defer tw.Stop()

	tw.Start(ctx)
	log.Printf("Watching %s for new task instance logs", cfg.TasksDir())
	<-ctx.Done()
	return nil
}

func runPipeline(cmd *cobra.Command, args []string) error {
	cfg, err := loadConfig()
	if err != nil {
		return err
	}
	token, err := resolveToken(cfg)
	if err != nil {
		return err
	}
	engine, err := newVerifier(cfg)
	if err != nil {
		return err
	}

	store, err := openStore(cfg)
	if err != nil {
		return err
	}
	defer store.Close()

	p := collect.NewPipeline(cfg, token, store, engine, nil)
	return p.RunAll(cmd.Context(), args, runParallel)
}

func runBatch(cmd *cobra.Command, args []string) error {
	cfg, err := loadConfig()
	if err != nil {
		return err
	}
	if len(cfg.Batch.Repos) == 0 {
		return fmt.Errorf("no repositories configured; set batch.repos in the config file")
	}
	token, err := resolveToken(cfg)
	if err != nil {
		return err
	}
	engine, err := newVerifier(cfg)
	if err != nil {
		return err
	}

	store, err := openStore(cfg)
	if err != nil {
		return err
	}
	defer store.Close()

	// The status server runs alongside the scheduler so stage transitions
	// stream out over SSE while batches execute.
	addr := fmt.Sprintf("%s:%d", cfg.Web.Host, cfg.Web.Port)
	server := api.NewServer(store, addr)
	go func() {
		if err := server.Start(); err != nil {
			log.Printf("status server: %v", err)
		}
	}()

	p := collect.NewPipeline(cfg, token, store, engine, server.BroadcastStage)

	sched, err := batch.NewScheduler([]batch.BatchConfig{{
		Name:     "collection",
		Cron:     cfg.Batch.Schedule,
		Repos:    cfg.Batch.Repos,
		Parallel: batchParallel,
	}})
	if err != nil {
		return err
	}

	log.Printf("Scheduler started; next run at %s", sched.NextRun("collection").Format("2006-01-02 15:04"))
	sched.Start(func(bc batch.BatchConfig) error {
		return p.RunAll(cmd.Context(), bc.Repos, bc.Parallel)
	})
	return nil
}

func runStatus(cmd *cobra.Command, args []string) error {
	cfg, err := loadConfig()
	if err != nil {
		return err
	}

	store, err := openStore(cfg)
	if err != nil {
		return err
	}
	defer store.Close()

	summary, err := store.GetSummary()
	if err != nil {
		return err
	}
	fmt.Printf("Runs: %d total | %d running | %d completed | %d failed\n",
		summary.Total, summary.Running, summary.Completed, summary.Failed)

	runs, err := store.ListRuns(statusLimit)
	if err != nil {
		return err
	}
	if len(runs) == 0 {
		return nil
	}

	w := tabwriter.NewWriter(os.Stdout, 0, 0, 2, ' ', 0)
	fmt.Fprintln(w, "ID\tREPO\tSTATUS\tSTARTED\tERROR")
	for _, r := range runs {
		errMsg := r.ErrorMessage
		if errMsg == "" {
			errMsg = "-"
		}
		fmt.Fprintf(w, "%s\t%s\t%s\t%s\t%s\n",
			r.ID[:8], r.Repo, r.Status, r.StartedAt.Format("2006-01-02 15:04"), errMsg)
	}
	w.Flush()

	return nil
}

func runServe(cmd *cobra.Command, args []string) error {
	cfg, err := loadConfig()
	if err != nil {
		return err
	}

	store, err := openStore(cfg)
	if err != nil {
		return err
	}
	defer store.Close()

	port := cfg.Web.Port
	if servePort != 0 {
		port = servePort
	}
	addr := fmt.Sprintf("%s:%d", cfg.Web.Host, port)
	fmt.Printf("Serving status API on http://%s\n", addr)
	return api.NewServer(store, addr).Start()
}
