package cirrus

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/google/uuid"

	"release-agent/src/config"
	"release-agent/src/logger"
)

// ErrDownloadFailed marks an artifact download failure. Unlike build
// failures it is fatal for the whole run: a completed build with
// unavailable artifacts will not get better by resubmitting.
var ErrDownloadFailed = errors.New("artifact download failed")

const (
	// ciConfigFile is the local CI configuration sent as a config override
	// when present.
	ciConfigFile = ".cirrus.yml"
	// ciConfigMarker is replaced in the override so release builds can tell
	// they were triggered by this tool.
	ciConfigMarker      = "# -PLACEHOLDER FOR CI-"
	ciConfigReplacement = `BTM_BUILD_RELEASE_CALLER: "ci"`
)

// DownloadResult records one artifact written to disk.
type DownloadResult struct {
	File string
	Path string
}

// Result is the outcome of an orchestrator run. Exit-code mapping from it
// happens at the CLI boundary, not here.
type Result struct {
	// Completed is true when a build finished and all artifacts downloaded.
	Completed bool
	// BuildID is the last build handle used, if any.
	BuildID string
	// Status is the last classified status observed for BuildID.
	Status Status
	// Downloaded lists the artifacts written to disk.
	Downloaded []DownloadResult
	// Attempts is the number of submit-and-poll cycles used.
	Attempts int
}

// Orchestrator submits a build, polls it to completion with bounded retries,
// and downloads the release artifacts. One orchestrator run is fully
// sequential; it holds at most one live build handle at a time.
type Orchestrator struct {
	client *Client
	cfg    config.Orchestration
	log    logger.Logger
}

// NewOrchestrator creates an orchestrator. The orchestration config is
// treated as immutable.
func NewOrchestrator(client *Client, cfg config.Orchestration, log logger.Logger) *Orchestrator {
	return &Orchestrator{
		client: client,
		cfg:    cfg,
		log:    log,
	}
}

// newMutationID builds the idempotency token for one create-build call. The
// readable prefix matches what the remote UI shows; the UUID suffix keeps two
// attempts within the same second from colliding.
func newMutationID(buildType, branch string) string {
	return fmt.Sprintf("Cirrus CI Build %s-%s-%d-%s", buildType, branch, time.Now().Unix(), uuid.NewString())
}

// loadConfigOverride returns the local CI configuration with the release
// marker substituted, or "" when no local configuration exists.
func loadConfigOverride() (string, error) {
	data, err := os.ReadFile(ciConfigFile)
	if err != nil {
		if os.IsNotExist(err) {
			return "", nil
		}
		return "", fmt.Errorf("failed to read %s: %w", ciConfigFile, err)
	}
	return strings.Replace(string(data), ciConfigMarker, ciConfigReplacement, 1), nil
}

// sleep waits for d or until the context is cancelled.
func sleep(ctx context.Context, d time.Duration) error {
	if d <= 0 {
		return ctx.Err()
	}
	timer := time.NewTimer(d)
	defer timer.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-timer.C:
		return nil
	}
}

// Run executes the outer retry loop: cancel any tasks left over from the
// previous attempt, submit a fresh build, poll it, and download artifacts on
// completion. It returns a non-completed Result (not an error) when every
// attempt is exhausted; errors are reserved for fatal conditions such as
// download failures and context cancellation.
func (o *Orchestrator) Run(ctx context.Context, branch, buildType, outDir string) (*Result, error) {
	result := &Result{}

	var taskIDs []string
	var mutationID string

	for attempt := 1; attempt <= o.cfg.MaxAttempts; attempt++ {
		result.Attempts = attempt
		o.log.Info("Attempt %d:", attempt)

		// Best-effort cleanup of the superseded attempt's tasks. Failing to
		// abort only wastes remote resources, so it never fails the run.
		if len(taskIDs) > 0 && mutationID != "" {
			o.log.Info("Stopping tasks from the previous attempt first...")
			aborted, err := o.client.AbortTasks(ctx, taskIDs, mutationID)
			switch {
			case err != nil:
				o.log.Warn("Failed to stop previous tasks: %v", err)
			case aborted:
				o.log.Info("All previous tasks successfully stopped.")
			default:
				o.log.Warn("Not all previous tasks stopped. Not a problem, but a waste.")
			}
		}

		taskIDs = nil
		mutationID = newMutationID(buildType, branch)

		override, err := loadConfigOverride()
		if err != nil {
			return nil, err
		}

		buildID, err := o.client.CreateBuild(ctx, o.cfg.RepositoryID, branch, mutationID, override)
		if err != nil {
			if ctx.Err() != nil {
				return nil, ctx.Err()
			}
			o.log.Error("Failed to create a build job: %v", err)
			continue
		}
		result.BuildID = buildID
		o.log.Info("Created build job %s.", buildID)

		// Bound the whole attempt's wall clock, not just the poll count.
		// Error cooldowns retry the same poll slot, so without this a
		// persistently flaky status endpoint could stretch an attempt
		// indefinitely.
		deadline := time.Now().Add(o.cfg.QuiescenceDelay + o.cfg.PollBudget + o.cfg.PollBudget/2)

		if err := o.quiesce(ctx, buildID, &taskIDs); err != nil {
			return nil, err
		}

		status, err := o.poll(ctx, buildID, deadline)
		if err != nil {
			return nil, err
		}
		result.Status = status

		if status != StatusCompleted {
			continue
		}

		if err := sleep(ctx, o.cfg.DownloadSettle); err != nil {
			return nil, err
		}

		downloaded, err := o.Download(ctx, buildID, outDir)
		result.Downloaded = downloaded
		if err != nil {
			return result, fmt.Errorf("%w: %v", ErrDownloadFailed, err)
		}

		result.Completed = true
		return result, nil
	}

	o.log.Error("All %d attempts exhausted without a completed build.", o.cfg.MaxAttempts)
	return result, nil
}

// quiesce waits out the mandatory post-submission delay in short sub-sleeps,
// probing for the build's task ids until they are known. The remote status is
// not meaningful during this window, so no status queries happen here.
func (o *Orchestrator) quiesce(ctx context.Context, buildID string, taskIDs *[]string) error {
	o.log.Info("Sleeping for %s before polling.", o.cfg.QuiescenceDelay)

	probe := o.cfg.TaskProbeInterval
	if probe <= 0 || probe > o.cfg.QuiescenceDelay {
		probe = o.cfg.QuiescenceDelay
	}

	for elapsed := time.Duration(0); elapsed < o.cfg.QuiescenceDelay; elapsed += probe {
		if err := sleep(ctx, probe); err != nil {
			return err
		}
		if len(*taskIDs) == 0 {
			ids, err := o.client.BuildTasks(ctx, buildID)
			if err != nil {
				if ctx.Err() != nil {
					return ctx.Err()
				}
				o.log.Debug("Task list not available yet: %v", err)
				continue
			}
			*taskIDs = ids
		}
	}

	o.log.Info("Mandatory nap over. Starting to check for completion.")
	return nil
}

// poll issues status queries at the configured interval until a terminal
// status, the poll budget, or the attempt deadline is reached. A query error
// is recoverable: wait the longer cooldown and retry the same poll slot.
func (o *Orchestrator) poll(ctx context.Context, buildID string, deadline time.Time) (Status, error) {
	tries := int(o.cfg.PollBudget / o.cfg.PollInterval)
	if tries < 1 {
		tries = 1
	}

	for polls := 0; polls < tries; {
		if time.Now().After(deadline) {
			o.log.Error("Attempt deadline exceeded while polling, bailing.")
			return StatusUnknown, nil
		}

		o.log.Info("Checking...")
		raw, err := o.client.BuildStatus(ctx, buildID)
		if err != nil {
			if ctx.Err() != nil {
				return StatusUnknown, ctx.Err()
			}
			o.log.Error("Status query failed: %v", err)
			if err := sleep(ctx, o.cfg.ErrorCooldown); err != nil {
				return StatusUnknown, err
			}
			continue
		}
		polls++

		status := ParseStatus(raw)
		switch status {
		case StatusCompleted:
			o.log.Info("Build complete.")
			return status, nil
		case StatusAborted:
			o.log.Error("Build aborted, bailing.")
			return status, nil
		case StatusFailed:
			o.log.Error("Build failed, bailing.")
			return status, nil
		default:
			o.log.Info("Build status: %s", raw)
			if polls < tries {
				if err := sleep(ctx, o.cfg.PollInterval); err != nil {
					return StatusUnknown, err
				}
			}
		}
	}

	o.log.Error("Build failed to complete within %s, bailing.", o.cfg.PollBudget)
	return StatusUnknown, nil
}

// Download fetches every configured artifact for the build into outDir,
// keeping the original file names. The first failure aborts: partial
// downloads are treated as a failed run and no cleanup is attempted.
func (o *Orchestrator) Download(ctx context.Context, buildID, outDir string) ([]DownloadResult, error) {
	var downloaded []DownloadResult
	for _, spec := range o.cfg.Tasks {
		url := fmt.Sprintf(o.cfg.ArtifactURLTemplate, buildID, spec.Task, spec.File)
		dest := filepath.Join(outDir, spec.File)
		o.log.Info("Downloading %s to %s", spec.File, dest)
		if err := o.client.DownloadArtifact(ctx, url, dest); err != nil {
			return downloaded, fmt.Errorf("failed to download %s: %w", spec.File, err)
		}
		downloaded = append(downloaded, DownloadResult{File: spec.File, Path: dest})
	}
	return downloaded, nil
}

// Resume checks a previously submitted build and downloads its artifacts if
// it completed. No retries: the caller supplied the handle, so a build that
// is not complete is simply reported.
func (o *Orchestrator) Resume(ctx context.Context, buildID, outDir string) (*Result, error) {
	result := &Result{BuildID: buildID}

	o.log.Info("Previous build ID was provided, checking if complete.")
	raw, err := o.client.BuildStatus(ctx, buildID)
	if err != nil {
		if ctx.Err() != nil {
			return nil, ctx.Err()
		}
		o.log.Error("Status query failed: %v", err)
		return result, nil
	}

	result.Status = ParseStatus(raw)
	if result.Status != StatusCompleted {
		o.log.Error("Build %s is not complete (status: %s).", buildID, raw)
		return result, nil
	}

	o.log.Info("Starting download of previous build ID.")
	downloaded, err := o.Download(ctx, buildID, outDir)
	result.Downloaded = downloaded
	if err != nil {
		return result, fmt.Errorf("%w: %v", ErrDownloadFailed, err)
	}

	result.Completed = true
	return result, nil
}
