package processor

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"mime/multipart"
	"net/http"
	"net/url"
	"os"
	"path/filepath"

	"github.com/me/kfpc/internal/config"
)

// KFPClient talks to the Kubeflow Pipelines v1beta1 REST API.
type KFPClient struct {
	baseURL    string
	username   string
	password   string
	httpClient *http.Client
	logger     *slog.Logger
}

// NewKFPClient creates a client for the runtime configuration's endpoint.
func NewKFPClient(rc *config.RuntimeConfig, logger *slog.Logger) *KFPClient {
	if logger == nil {
		logger = slog.Default()
	}
	return &KFPClient{
		baseURL:    rc.APIEndpoint,
		username:   rc.APIUsername,
		password:   rc.APIPassword,
		httpClient: &http.Client{},
		logger:     logger.With("component", "kfp-client"),
	}
}

// NewKFPClientFactory returns a ClientFactory producing REST clients.
func NewKFPClientFactory(logger *slog.Logger) ClientFactory {
	return func(_ context.Context, rc *config.RuntimeConfig) (PlatformClient, error) {
		return NewKFPClient(rc, logger), nil
	}
}

func (c *KFPClient) do(ctx context.Context, method, path string, body io.Reader, contentType string, out any) error {
	req, err := http.NewRequestWithContext(ctx, method, c.baseURL+path, body)
	if err != nil {
		return fmt.Errorf("create request: %w", err)
	}
	if contentType != "" {
		req.Header.Set("Content-Type", contentType)
	}
	if c.username != "" {
		req.SetBasicAuth(c.username, c.password)
	}

	c.logger.Debug("platform request", "method", method, "path", path)

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("request failed: %w", err)
	}
	defer resp.Body.Close()

	respBody, err := io.ReadAll(resp.Body)
	if err != nil {
		return fmt.Errorf("read response: %w", err)
	}
	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return fmt.Errorf("platform returned status %d: %s", resp.StatusCode, respBody)
	}
	if out != nil {
		if err := json.Unmarshal(respBody, out); err != nil {
			return fmt.Errorf("parse response: %w\nbody: %s", err, respBody)
		}
	}
	return nil
}

func (c *KFPClient) get(ctx context.Context, path string, out any) error {
	return c.do(ctx, http.MethodGet, path, nil, "", out)
}

func (c *KFPClient) postJSON(ctx context.Context, path string, body, out any) error {
	data, err := json.Marshal(body)
	if err != nil {
		return fmt.Errorf("marshal request: %w", err)
	}
	return c.do(ctx, http.MethodPost, path, bytes.NewReader(data), "application/json", out)
}

// uploadPackage posts a compiled workflow package as a multipart upload.
func (c *KFPClient) uploadPackage(ctx context.Context, path, packagePath string, out any) error {
	f, err := os.Open(packagePath)
	if err != nil {
		return fmt.Errorf("open package: %w", err)
	}
	defer f.Close()

	var buf bytes.Buffer
	mw := multipart.NewWriter(&buf)
	part, err := mw.CreateFormFile("uploadfile", filepath.Base(packagePath))
	if err != nil {
		return fmt.Errorf("build upload: %w", err)
	}
	if _, err := io.Copy(part, f); err != nil {
		return fmt.Errorf("build upload: %w", err)
	}
	if err := mw.Close(); err != nil {
		return fmt.Errorf("build upload: %w", err)
	}

	return c.do(ctx, http.MethodPost, path, &buf, mw.FormDataContentType(), out)
}

// ListExperiments fetches one page of experiments, optionally scoped to a
// namespace. Only reachability matters to callers.
func (c *KFPClient) ListExperiments(ctx context.Context, namespace string, pageSize int) error {
	q := url.Values{}
	q.Set("page_size", fmt.Sprintf("%d", pageSize))
	if namespace != "" {
		q.Set("resource_reference_key.type", "NAMESPACE")
		q.Set("resource_reference_key.id", namespace)
	}
	return c.get(ctx, "/apis/v1beta1/experiments?"+q.Encode(), nil)
}

// GetPipelineID looks up a pipeline by exact name, returning "" when the
// platform does not know it.
func (c *KFPClient) GetPipelineID(ctx context.Context, name string) (string, error) {
	filter, err := json.Marshal(map[string]any{
		"predicates": []map[string]any{
			{"key": "name", "op": "EQUALS", "string_value": name},
		},
	})
	if err != nil {
		return "", fmt.Errorf("build pipeline filter: %w", err)
	}

	var result struct {
		Pipelines []struct {
			ID string `json:"id"`
		} `json:"pipelines"`
	}
	q := url.Values{}
	q.Set("filter", string(filter))
	if err := c.get(ctx, "/apis/v1beta1/pipelines?"+q.Encode(), &result); err != nil {
		return "", err
	}
	if len(result.Pipelines) == 0 {
		return "", nil
	}
	return result.Pipelines[0].ID, nil
}

// UploadPipeline creates a new pipeline from the package.
func (c *KFPClient) UploadPipeline(ctx context.Context, packagePath, name, description string) (string, error) {
	q := url.Values{}
	q.Set("name", name)
	q.Set("description", description)

	var result struct {
		ID string `json:"id"`
	}
	if err := c.uploadPackage(ctx, "/apis/v1beta1/pipelines/upload?"+q.Encode(), packagePath, &result); err != nil {
		return "", err
	}
	return result.ID, nil
}

// UploadPipelineVersion adds a version to an existing pipeline.
func (c *KFPClient) UploadPipelineVersion(ctx context.Context, packagePath, versionName, pipelineID string) (string, error) {
	q := url.Values{}
	q.Set("name", versionName)
	q.Set("pipelineid", pipelineID)

	var result struct {
		ID string `json:"id"`
	}
	if err := c.uploadPackage(ctx, "/apis/v1beta1/pipelines/upload_version?"+q.Encode(), packagePath, &result); err != nil {
		return "", err
	}
	return result.ID, nil
}

// CreateExperiment creates the named experiment, or returns the existing
// one's ID.
func (c *KFPClient) CreateExperiment(ctx context.Context, name, namespace string) (string, error) {
	if id, err := c.findExperiment(ctx, name, namespace); err == nil && id != "" {
		return id, nil
	}

	body := map[string]any{"name": name}
	if namespace != "" {
		body["resource_references"] = []map[string]any{
			{
				"key":          map[string]string{"type": "NAMESPACE", "id": namespace},
				"relationship": "OWNER",
			},
		}
	}

	var result struct {
		ID string `json:"id"`
	}
	if err := c.postJSON(ctx, "/apis/v1beta1/experiments", body, &result); err != nil {
		return "", err
	}
	return result.ID, nil
}

func (c *KFPClient) findExperiment(ctx context.Context, name, namespace string) (string, error) {
	filter, err := json.Marshal(map[string]any{
		"predicates": []map[string]any{
			{"key": "name", "op": "EQUALS", "string_value": name},
		},
	})
	if err != nil {
		return "", err
	}

	q := url.Values{}
	q.Set("filter", string(filter))
	if namespace != "" {
		q.Set("resource_reference_key.type", "NAMESPACE")
		q.Set("resource_reference_key.id", namespace)
	}

	var result struct {
		Experiments []struct {
			ID string `json:"id"`
		} `json:"experiments"`
	}
	if err := c.get(ctx, "/apis/v1beta1/experiments?"+q.Encode(), &result); err != nil {
		return "", err
	}
	if len(result.Experiments) == 0 {
		return "", nil
	}
	return result.Experiments[0].ID, nil
}

// RunPipeline starts a run of the given pipeline version within the
// experiment.
func (c *KFPClient) RunPipeline(ctx context.Context, experimentID, jobName, pipelineID, versionID string) (string, error) {
	body := map[string]any{
		"name": jobName,
		"resource_references": []map[string]any{
			{
				"key":          map[string]string{"type": "EXPERIMENT", "id": experimentID},
				"relationship": "OWNER",
			},
			{
				"key":          map[string]string{"type": "PIPELINE_VERSION", "id": versionID},
				"relationship": "CREATOR",
			},
		},
	}

	var result struct {
		Run struct {
			ID string `json:"id"`
		} `json:"run"`
	}
	if err := c.postJSON(ctx, "/apis/v1beta1/runs", body, &result); err != nil {
		return "", err
	}
	return result.Run.ID, nil
}
