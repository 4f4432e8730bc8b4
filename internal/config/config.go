package config

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/pelletier/go-toml/v2"
)

// Config holds all application configuration. It is constructed once at the
// boundary and passed into every collaborator; core packages never read the
// environment themselves.
type Config struct {
	General GeneralConfig `toml:"general"`
	GitHub  GitHubConfig  `toml:"github"`
	LLM     LLMConfig     `toml:"llm"`
	Batch   BatchConfig   `toml:"batch"`
	Web     WebConfig     `toml:"web"`
}

// GeneralConfig holds general settings
type GeneralConfig struct {
	DataDir      string `toml:"data_dir"`
	DatabasePath string `toml:"database_path"`
}

// GitHubConfig holds hosting-service settings
type GitHubConfig struct {
	Token                  string `toml:"token"`
	PerPage                int    `toml:"per_page"`
	BackoffIntervalMinutes int    `toml:"backoff_interval_minutes"`
	BackoffMaxAttempts     int    `toml:"backoff_max_attempts"` // 0 = retry until quota resets
}

// LLMConfig holds judge-model API settings
type LLMConfig struct {
	BaseURL   string `toml:"base_url"`
	APIKey    string `toml:"api_key"`
	Model     string `toml:"model"`
	MaxTokens int    `toml:"max_tokens"`
}

// BatchConfig holds scheduled-harvest settings
type BatchConfig struct {
	Schedule string   `toml:"schedule"`
	Repos    []string `toml:"repos"`
}

// WebConfig holds status server settings
type WebConfig struct {
	Port int    `toml:"port"`
	Host string `toml:"host"`
}

// Default returns a Config with sensible defaults
func Default() *Config {
	home, _ := os.UserHomeDir()
	return &Config{
		General: GeneralConfig{
			DataDir:      filepath.Join(home, ".benchforge", "data"),
			DatabasePath: filepath.Join(home, ".benchforge", "benchforge.db"),
		},
		GitHub: GitHubConfig{
			PerPage:                100,
			BackoffIntervalMinutes: 5,
		},
		LLM: LLMConfig{
			BaseURL:   "https://api.anthropic.com",
			Model:     "claude-3-5-sonnet-20240620",
			MaxTokens: 4096,
		},
		Batch: BatchConfig{
			Schedule: "0 3 * * *",
		},
		Web: WebConfig{
			Port: 8080,
			Host: "127.0.0.1",
		},
	}
}

// Load reads configuration from a TOML file, falling back to defaults
func Load(path string) (*Config, error) {
	cfg := Default()

	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return cfg, nil
		}
		return nil, err
	}

	if err := toml.Unmarshal(data, cfg); err != nil {
		return nil, err
	}

	cfg.General.DataDir = ExpandPath(cfg.General.DataDir)
	cfg.General.DatabasePath = ExpandPath(cfg.General.DatabasePath)

	return cfg, nil
}

// Save writes the configuration to a TOML file, creating parent directories
// as needed.
func (c *Config) Save(path string) error {
	data, err := toml.Marshal(c)
	if err != nil {
		return err
	}
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return err
	}
	return os.WriteFile(path, data, 0o600)
}

// ExpandPath expands ~ to the user's home directory
func ExpandPath(path string) string {
	if strings.HasPrefix(path, "~/") {
		home, _ := os.UserHomeDir()
		return filepath.Join(home, path[2:])
	}
	return path
}

// DefaultConfigPath returns the default config file location
func DefaultConfigPath() string {
	home, _ := os.UserHomeDir()
	return filepath.Join(home, ".config", "benchforge", "config.toml")
}

// PRLogPath returns the pull-request log file for a repository.
func (c *Config) PRLogPath(repo string) string {
	return filepath.Join(c.General.DataDir, "prs", repoFileName(repo)+"-prs.jsonl")
}

// TaskLogPath returns the task-instance log file for a repository.
func (c *Config) TaskLogPath(repo string) string {
	return filepath.Join(c.General.DataDir, "tasks", repoFileName(repo)+"-task-instances.jsonl")
}

// ResultLogPath returns the verification-results log file for a repository.
func (c *Config) ResultLogPath(repo string) string {
	return filepath.Join(c.General.DataDir, "tasks-verified", repoFileName(repo)+"-results.jsonl")
}

// TasksDir returns the directory holding task-instance logs.
func (c *Config) TasksDir() string {
	return filepath.Join(c.General.DataDir, "tasks")
}

// EnsureDataDirs creates the data directory layout.
func (c *Config) EnsureDataDirs() error {
	for _, dir := range []string{"prs", "tasks", "tasks-verified"} {
		if err := os.MkdirAll(filepath.Join(c.General.DataDir, dir), 0o755); err != nil {
			return fmt.Errorf("creating %s dir: %w", dir, err)
		}
	}
	return nil
}

// repoFileName uses only the repository name part of "owner/name" for log
// file names, matching the on-disk layout consumers expect.
func repoFileName(repo string) string {
	if i := strings.LastIndex(repo, "/"); i >= 0 {
		return repo[i+1:]
	}
	return repo
}

// ResolveGitHubToken returns the hosting-service token from config or the
// environment. The bool reports whether a token was found; callers decide
// whether to prompt interactively.
func (c *Config) ResolveGitHubToken() (string, bool) {
	if c.GitHub.Token != "" {
		return c.GitHub.Token, true
	}
	if tok := os.Getenv("GITHUB_TOKEN"); tok != "" {
		return tok, true
	}
	return "", false
}

// ResolveLLMKey returns the judge-model API key from config or the environment.
func (c *Config) ResolveLLMKey() (string, bool) {
	if c.LLM.APIKey != "" {
		return c.LLM.APIKey, true
	}
	if key := os.Getenv("ANTHROPIC_API_KEY"); key != "" {
		return key, true
	}
	return "", false
}
