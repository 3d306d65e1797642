// Package config provides configuration management for the release tooling.
package config

import (
	"fmt"
	"os"
	"time"

	"gopkg.in/yaml.v3"
)

// Config holds the application configuration read from the environment.
type Config struct {
	// CirrusKey is the API key for authenticating with Cirrus CI.
	CirrusKey string
}

// LoadFromEnv loads configuration from environment variables.
func LoadFromEnv() (*Config, error) {
	key := os.Getenv("CIRRUS_KEY")
	if key == "" {
		return nil, fmt.Errorf("CIRRUS_KEY environment variable is required")
	}

	return &Config{
		CirrusKey: key,
	}, nil
}

// MustLoadFromEnv loads configuration from environment variables and panics on error.
// This is useful for initialization in main() where configuration errors should be fatal.
func MustLoadFromEnv() *Config {
	cfg, err := LoadFromEnv()
	if err != nil {
		panic(fmt.Sprintf("failed to load configuration: %v", err))
	}
	return cfg
}

// ArtifactSpec names one build task and the artifact file it produces.
type ArtifactSpec struct {
	Task string `yaml:"task"`
	File string `yaml:"file"`
}

// Orchestration holds every knob the build orchestrator needs. It is built
// once (defaults, optionally overridden from a YAML file) and passed in at
// construction time; nothing mutates it afterwards.
type Orchestration struct {
	// Endpoint is the GraphQL endpoint of the CI provider.
	Endpoint string
	// RepositoryID identifies the repository to build.
	RepositoryID string
	// ArtifactURLTemplate is expanded with build id, task name, and file name.
	ArtifactURLTemplate string
	// Tasks is the ordered list of artifacts to download after a completed build.
	Tasks []ArtifactSpec

	// MaxAttempts bounds the outer submit-and-poll retry loop.
	MaxAttempts int
	// QuiescenceDelay is the mandatory wait after submission before the first
	// status poll; the remote status is not meaningful immediately.
	QuiescenceDelay time.Duration
	// TaskProbeInterval is how often, during the quiescence delay, the
	// orchestrator asks for the build's task ids (needed for cancellation).
	TaskProbeInterval time.Duration
	// PollInterval is the wait between status polls.
	PollInterval time.Duration
	// PollBudget is the total polling time per attempt; the poll count is
	// PollBudget / PollInterval.
	PollBudget time.Duration
	// ErrorCooldown is the longer wait after a status query raises an error.
	ErrorCooldown time.Duration
	// DownloadSettle is the short wait between seeing a completed status and
	// starting artifact downloads.
	DownloadSettle time.Duration
}

// DefaultOrchestration returns the built-in orchestration settings for the
// bottom release pipeline on Cirrus CI.
func DefaultOrchestration() Orchestration {
	return Orchestration{
		Endpoint:            "https://api.cirrus-ci.com/graphql",
		RepositoryID:        "6646638922956800",
		ArtifactURLTemplate: "https://api.cirrus-ci.com/v1/artifact/build/%s/%s/binaries/%s",
		Tasks: []ArtifactSpec{
			{Task: "freebsd_13_3_build", File: "bottom_x86_64-unknown-freebsd-13-3.tar.gz"},
			{Task: "freebsd_14_0_build", File: "bottom_x86_64-unknown-freebsd-14-0.tar.gz"},
			{Task: "linux_2_17_build", File: "bottom_x86_64-unknown-linux-gnu-2-17.tar.gz"},
		},
		MaxAttempts:       5,
		QuiescenceDelay:   4 * time.Minute,
		TaskProbeInterval: 10 * time.Second,
		PollInterval:      30 * time.Second,
		PollBudget:        10 * time.Minute,
		ErrorCooldown:     time.Minute,
		DownloadSettle:    5 * time.Second,
	}
}

// orchestrationFile mirrors Orchestration for YAML decoding. Pointer fields
// distinguish "absent" from "zero" so a partial file only overrides what it
// names. Durations are given in seconds.
type orchestrationFile struct {
	Endpoint            *string        `yaml:"endpoint"`
	RepositoryID        *string        `yaml:"repository_id"`
	ArtifactURLTemplate *string        `yaml:"artifact_url_template"`
	Tasks               []ArtifactSpec `yaml:"tasks"`

	MaxAttempts            *int `yaml:"max_attempts"`
	QuiescenceSeconds      *int `yaml:"quiescence_seconds"`
	TaskProbeSeconds       *int `yaml:"task_probe_seconds"`
	PollIntervalSeconds    *int `yaml:"poll_interval_seconds"`
	PollBudgetSeconds      *int `yaml:"poll_budget_seconds"`
	ErrorCooldownSeconds   *int `yaml:"error_cooldown_seconds"`
	DownloadSettleSeconds  *int `yaml:"download_settle_seconds"`
}

// LoadOrchestration returns the default orchestration settings overridden by
// the YAML file at path. An empty path returns the defaults unchanged.
func LoadOrchestration(path string) (Orchestration, error) {
	orch := DefaultOrchestration()
	if path == "" {
		return orch, nil
	}

	data, err := os.ReadFile(path)
	if err != nil {
		return orch, fmt.Errorf("failed to read orchestration config: %w", err)
	}

	var file orchestrationFile
	if err := yaml.Unmarshal(data, &file); err != nil {
		return orch, fmt.Errorf("failed to parse orchestration config: %w", err)
	}

	if file.Endpoint != nil {
		orch.Endpoint = *file.Endpoint
	}
	if file.RepositoryID != nil {
		orch.RepositoryID = *file.RepositoryID
	}
	if file.ArtifactURLTemplate != nil {
		orch.ArtifactURLTemplate = *file.ArtifactURLTemplate
	}
	if file.Tasks != nil {
		orch.Tasks = file.Tasks
	}
	if file.MaxAttempts != nil {
		orch.MaxAttempts = *file.MaxAttempts
	}
	if file.QuiescenceSeconds != nil {
		orch.QuiescenceDelay = time.Duration(*file.QuiescenceSeconds) * time.Second
	}
	if file.TaskProbeSeconds != nil {
		orch.TaskProbeInterval = time.Duration(*file.TaskProbeSeconds) * time.Second
	}
	if file.PollIntervalSeconds != nil {
		orch.PollInterval = time.Duration(*file.PollIntervalSeconds) * time.Second
	}
	if file.PollBudgetSeconds != nil {
		orch.PollBudget = time.Duration(*file.PollBudgetSeconds) * time.Second
	}
	if file.ErrorCooldownSeconds != nil {
		orch.ErrorCooldown = time.Duration(*file.ErrorCooldownSeconds) * time.Second
	}
	if file.DownloadSettleSeconds != nil {
		orch.DownloadSettle = time.Duration(*file.DownloadSettleSeconds) * time.Second
	}

	return orch, nil
}
