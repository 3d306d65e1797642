// Package cirrus provides a client and build orchestrator for Cirrus CI's
// GraphQL API.
package cirrus

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"os"
	"time"
)

var (
	// ErrRemoteError is returned when the GraphQL response carries an
	// "errors" field. Recoverable at the attempt level.
	ErrRemoteError = errors.New("remote returned errors")
	// ErrMissingField is returned when a response decodes but lacks an
	// expected field. Recoverable at the attempt level.
	ErrMissingField = errors.New("response missing expected field")
)

// Client is a Cirrus CI GraphQL API client.
type Client struct {
	endpoint   string
	apiKey     string
	httpClient *http.Client
}

// NewClient creates a new Cirrus CI API client against the given GraphQL
// endpoint.
func NewClient(endpoint, apiKey string) *Client {
	return &Client{
		endpoint: endpoint,
		apiKey:   apiKey,
		httpClient: &http.Client{
			Timeout: 30 * time.Second,
		},
	}
}

type graphqlRequest struct {
	Query     string                 `json:"query"`
	Variables map[string]interface{} `json:"variables"`
}

type graphqlError struct {
	Message string `json:"message"`
}

type graphqlResponse struct {
	Data   json.RawMessage `json:"data"`
	Errors []graphqlError  `json:"errors"`
}

// do sends one GraphQL operation and decodes the "data" payload into out.
// A non-2xx HTTP status, an "errors" field, or a missing "data" field all
// fail the call.
func (c *Client) do(ctx context.Context, query string, variables map[string]interface{}, out interface{}) error {
	body, err := json.Marshal(graphqlRequest{Query: query, Variables: variables})
	if err != nil {
		return fmt.Errorf("failed to encode request: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, "POST", c.endpoint, bytes.NewReader(body))
	if err != nil {
		return fmt.Errorf("failed to create request: %w", err)
	}

	req.Header.Set("Authorization", fmt.Sprintf("Bearer %s", c.apiKey))
	req.Header.Set("Content-Type", "application/json")

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("failed to execute request: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		respBody, _ := io.ReadAll(resp.Body)
		return fmt.Errorf("API request failed with status %d: %s", resp.StatusCode, string(respBody))
	}

	var gql graphqlResponse
	if err := json.NewDecoder(resp.Body).Decode(&gql); err != nil {
		return fmt.Errorf("failed to decode response: %w", err)
	}

	if len(gql.Errors) > 0 {
		msgs := make([]string, 0, len(gql.Errors))
		for _, e := range gql.Errors {
			msgs = append(msgs, e.Message)
		}
		return fmt.Errorf("%w: %v", ErrRemoteError, msgs)
	}

	if gql.Data == nil {
		return fmt.Errorf("%w: data", ErrMissingField)
	}

	if err := json.Unmarshal(gql.Data, out); err != nil {
		return fmt.Errorf("failed to decode response data: %w", err)
	}

	return nil
}

const createBuildMutation = `
mutation CreateCirrusCIBuild (
    $repo: ID!,
    $branch: String!,
    $mutation_id: String!,
    $config_override: String,
) {
    createBuild (
        input: {
            repositoryId: $repo,
            branch: $branch,
            clientMutationId: $mutation_id,
            configOverride: $config_override
        }
    ) {
        build {
            id,
            status
        }
    }
}`

// CreateBuild submits a build for the branch and returns the remote build id.
// The mutation id must be unique per call; the remote API uses it as an
// idempotency token. configOverride, when non-empty, replaces the build's CI
// configuration.
func (c *Client) CreateBuild(ctx context.Context, repoID, branch, mutationID, configOverride string) (string, error) {
	variables := map[string]interface{}{
		"repo":        repoID,
		"branch":      branch,
		"mutation_id": mutationID,
	}
	if configOverride != "" {
		variables["config_override"] = configOverride
	}

	var result struct {
		CreateBuild struct {
			Build struct {
				ID     string `json:"id"`
				Status string `json:"status"`
			} `json:"build"`
		} `json:"createBuild"`
	}
	if err := c.do(ctx, createBuildMutation, variables, &result); err != nil {
		return "", err
	}

	if result.CreateBuild.Build.ID == "" {
		return "", fmt.Errorf("%w: createBuild.build.id", ErrMissingField)
	}

	return result.CreateBuild.Build.ID, nil
}

const buildStatusQuery = `
query BuildStatus($id: ID!) {
    build(id: $id) {
        status
    }
}`

// BuildStatus fetches the raw status string for a build.
func (c *Client) BuildStatus(ctx context.Context, buildID string) (string, error) {
	var result struct {
		Build struct {
			Status string `json:"status"`
		} `json:"build"`
	}
	if err := c.do(ctx, buildStatusQuery, map[string]interface{}{"id": buildID}, &result); err != nil {
		return "", err
	}

	if result.Build.Status == "" {
		return "", fmt.Errorf("%w: build.status", ErrMissingField)
	}

	return result.Build.Status, nil
}

const buildTasksQuery = `
query BuildTasks($id: ID!) {
    build(id: $id) {
        tasks {
            id
        }
    }
}`

// BuildTasks fetches the ids of the tasks belonging to a build. The ids are
// needed to abort the build's tasks if the attempt is superseded.
func (c *Client) BuildTasks(ctx context.Context, buildID string) ([]string, error) {
	var result struct {
		Build struct {
			Tasks []struct {
				ID string `json:"id"`
			} `json:"tasks"`
		} `json:"build"`
	}
	if err := c.do(ctx, buildTasksQuery, map[string]interface{}{"id": buildID}, &result); err != nil {
		return nil, err
	}

	ids := make([]string, 0, len(result.Build.Tasks))
	for _, task := range result.Build.Tasks {
		ids = append(ids, task.ID)
	}

	return ids, nil
}

const abortTasksMutation = `
mutation StopCirrusCITasks (
    $task_ids: [ID!]!,
    $mutation_id: String!,
) {
    batchAbort (
        input: {
            taskIds: $task_ids,
            clientMutationId: $mutation_id
        }
    ) {
        tasks {
            id
        }
    }
}`

// AbortTasks issues a batch abort for the given task ids. It returns true
// when the remote reports every task as aborted. Best effort: the caller
// treats a false return or an error as a warning, not a failure.
func (c *Client) AbortTasks(ctx context.Context, taskIDs []string, mutationID string) (bool, error) {
	variables := map[string]interface{}{
		"task_ids":    taskIDs,
		"mutation_id": mutationID,
	}

	var result struct {
		BatchAbort struct {
			Tasks []struct {
				ID string `json:"id"`
			} `json:"tasks"`
		} `json:"batchAbort"`
	}
	if err := c.do(ctx, abortTasksMutation, variables, &result); err != nil {
		return false, err
	}

	return len(result.BatchAbort.Tasks) == len(taskIDs), nil
}

// DownloadArtifact streams the file at url to dest. Partially written files
// are left in place on failure; callers treat any error as fatal for the
// whole run and must not rely on dest being usable afterwards.
func (c *Client) DownloadArtifact(ctx context.Context, url, dest string) error {
	req, err := http.NewRequestWithContext(ctx, "GET", url, nil)
	if err != nil {
		return fmt.Errorf("failed to create request: %w", err)
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("failed to execute request: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		body, _ := io.ReadAll(resp.Body)
		return fmt.Errorf("download failed with status %d: %s", resp.StatusCode, string(body))
	}

	out, err := os.Create(dest)
	if err != nil {
		return fmt.Errorf("failed to create %s: %w", dest, err)
	}
	defer out.Close()

	if _, err := io.Copy(out, resp.Body); err != nil {
		return fmt.Errorf("failed to write %s: %w", dest, err)
	}

	return nil
}
