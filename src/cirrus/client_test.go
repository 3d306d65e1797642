package cirrus

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"strings"
	"testing"
)

func TestNewClient(t *testing.T) {
	client := NewClient("https://example.com/graphql", "test-api-key")

	if client == nil {
		t.Fatal("NewClient() returned nil")
	}
	if client.apiKey != "test-api-key" {
		t.Errorf("NewClient() apiKey = %v, want test-api-key", client.apiKey)
	}
	if client.httpClient == nil {
		t.Error("NewClient() httpClient is nil")
	}
}

// graphqlHandler answers every operation with the given body and records the
// last request for assertions.
func graphqlServer(t *testing.T, status int, body string, lastReq *graphqlRequest) *httptest.Server {
	t.Helper()
	return httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if auth := r.Header.Get("Authorization"); auth != "Bearer test-key" {
			t.Errorf("unexpected Authorization header: %q", auth)
		}
		if lastReq != nil {
			if err := json.NewDecoder(r.Body).Decode(lastReq); err != nil {
				t.Errorf("failed to decode request: %v", err)
			}
		}
		w.WriteHeader(status)
		w.Write([]byte(body))
	}))
}

func TestCreateBuild(t *testing.T) {
	var lastReq graphqlRequest
	srv := graphqlServer(t, http.StatusOK, `{"data":{"createBuild":{"build":{"id":"4242","status":"CREATED"}}}}`, &lastReq)
	defer srv.Close()

	client := NewClient(srv.URL, "test-key")
	id, err := client.CreateBuild(context.Background(), "repo-1", "main", "mutation-1", "yaml: here")
	if err != nil {
		t.Fatalf("CreateBuild() error = %v", err)
	}
	if id != "4242" {
		t.Errorf("CreateBuild() id = %q, want 4242", id)
	}

	if lastReq.Variables["repo"] != "repo-1" {
		t.Errorf("repo variable = %v, want repo-1", lastReq.Variables["repo"])
	}
	if lastReq.Variables["branch"] != "main" {
		t.Errorf("branch variable = %v, want main", lastReq.Variables["branch"])
	}
	if lastReq.Variables["mutation_id"] != "mutation-1" {
		t.Errorf("mutation_id variable = %v, want mutation-1", lastReq.Variables["mutation_id"])
	}
	if lastReq.Variables["config_override"] != "yaml: here" {
		t.Errorf("config_override variable = %v, want the override text", lastReq.Variables["config_override"])
	}
}

func TestCreateBuildOmitsEmptyOverride(t *testing.T) {
	var lastReq graphqlRequest
	srv := graphqlServer(t, http.StatusOK, `{"data":{"createBuild":{"build":{"id":"1","status":"CREATED"}}}}`, &lastReq)
	defer srv.Close()

	client := NewClient(srv.URL, "test-key")
	if _, err := client.CreateBuild(context.Background(), "repo-1", "main", "mutation-1", ""); err != nil {
		t.Fatalf("CreateBuild() error = %v", err)
	}

	if _, ok := lastReq.Variables["config_override"]; ok {
		t.Error("config_override should be omitted when empty")
	}
}

func TestCreateBuildErrors(t *testing.T) {
	tests := []struct {
		name     string
		status   int
		body     string
		wantErr  error
	}{
		{
			name:    "errors field",
			status:  http.StatusOK,
			body:    `{"data":null,"errors":[{"message":"repository not found"}]}`,
			wantErr: ErrRemoteError,
		},
		{
			name:    "missing build id",
			status:  http.StatusOK,
			body:    `{"data":{"createBuild":{"build":{"status":"CREATED"}}}}`,
			wantErr: ErrMissingField,
		},
		{
			name:    "missing data",
			status:  http.StatusOK,
			body:    `{}`,
			wantErr: ErrMissingField,
		},
		{
			name:   "http failure",
			status: http.StatusBadGateway,
			body:   `upstream broke`,
		},
		{
			name:   "malformed json",
			status: http.StatusOK,
			body:   `{not json`,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			srv := graphqlServer(t, tt.status, tt.body, nil)
			defer srv.Close()

			client := NewClient(srv.URL, "test-key")
			_, err := client.CreateBuild(context.Background(), "repo-1", "main", "mutation-1", "")
			if err == nil {
				t.Fatal("CreateBuild() expected an error")
			}
			if tt.wantErr != nil && !errors.Is(err, tt.wantErr) {
				t.Errorf("CreateBuild() error = %v, want %v", err, tt.wantErr)
			}
		})
	}
}

func TestBuildStatus(t *testing.T) {
	srv := graphqlServer(t, http.StatusOK, `{"data":{"build":{"status":"EXECUTING"}}}`, nil)
	defer srv.Close()

	client := NewClient(srv.URL, "test-key")
	status, err := client.BuildStatus(context.Background(), "4242")
	if err != nil {
		t.Fatalf("BuildStatus() error = %v", err)
	}
	if status != "EXECUTING" {
		t.Errorf("BuildStatus() = %q, want EXECUTING", status)
	}
}

func TestBuildStatusMissingField(t *testing.T) {
	srv := graphqlServer(t, http.StatusOK, `{"data":{"build":{}}}`, nil)
	defer srv.Close()

	client := NewClient(srv.URL, "test-key")
	if _, err := client.BuildStatus(context.Background(), "4242"); !errors.Is(err, ErrMissingField) {
		t.Errorf("BuildStatus() error = %v, want ErrMissingField", err)
	}
}

func TestBuildTasks(t *testing.T) {
	srv := graphqlServer(t, http.StatusOK, `{"data":{"build":{"tasks":[{"id":"t1"},{"id":"t2"},{"id":"t3"}]}}}`, nil)
	defer srv.Close()

	client := NewClient(srv.URL, "test-key")
	tasks, err := client.BuildTasks(context.Background(), "4242")
	if err != nil {
		t.Fatalf("BuildTasks() error = %v", err)
	}
	want := []string{"t1", "t2", "t3"}
	if len(tasks) != len(want) {
		t.Fatalf("BuildTasks() = %v, want %v", tasks, want)
	}
	for i := range want {
		if tasks[i] != want[i] {
			t.Errorf("BuildTasks()[%d] = %q, want %q", i, tasks[i], want[i])
		}
	}
}

func TestAbortTasks(t *testing.T) {
	tests := []struct {
		name string
		body string
		want bool
	}{
		{
			name: "all aborted",
			body: `{"data":{"batchAbort":{"tasks":[{"id":"t1"},{"id":"t2"}]}}}`,
			want: true,
		},
		{
			name: "partial abort",
			body: `{"data":{"batchAbort":{"tasks":[{"id":"t1"}]}}}`,
			want: false,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			var lastReq graphqlRequest
			srv := graphqlServer(t, http.StatusOK, tt.body, &lastReq)
			defer srv.Close()

			client := NewClient(srv.URL, "test-key")
			aborted, err := client.AbortTasks(context.Background(), []string{"t1", "t2"}, "mutation-2")
			if err != nil {
				t.Fatalf("AbortTasks() error = %v", err)
			}
			if aborted != tt.want {
				t.Errorf("AbortTasks() = %v, want %v", aborted, tt.want)
			}
			if lastReq.Variables["mutation_id"] != "mutation-2" {
				t.Errorf("mutation_id variable = %v, want mutation-2", lastReq.Variables["mutation_id"])
			}
		})
	}
}

func TestDownloadArtifact(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if strings.HasSuffix(r.URL.Path, "missing.tar.gz") {
			http.NotFound(w, r)
			return
		}
		w.Write([]byte("tarball bytes"))
	}))
	defer srv.Close()

	client := NewClient(srv.URL, "test-key")
	dir := t.TempDir()

	dest := filepath.Join(dir, "bottom.tar.gz")
	if err := client.DownloadArtifact(context.Background(), srv.URL+"/bottom.tar.gz", dest); err != nil {
		t.Fatalf("DownloadArtifact() error = %v", err)
	}
	data, err := os.ReadFile(dest)
	if err != nil {
		t.Fatalf("failed to read downloaded file: %v", err)
	}
	if string(data) != "tarball bytes" {
		t.Errorf("downloaded content = %q, want %q", data, "tarball bytes")
	}

	if err := client.DownloadArtifact(context.Background(), srv.URL+"/missing.tar.gz", filepath.Join(dir, "missing.tar.gz")); err == nil {
		t.Error("DownloadArtifact() expected an error for a 404 response")
	}
}
