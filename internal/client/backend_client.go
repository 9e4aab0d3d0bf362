package client

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"time"

	"github.com/voxscribe/worker/internal/model"
)

// ErrNoJob is returned by Lease when the backend has no pending work
// (HTTP 204).
var ErrNoJob = errors.New("no pending job")

// Gateway defines the backend operations the worker depends on.
type Gateway interface {
	BaseURL() string
	Health(ctx context.Context) error
	Lease(ctx context.Context) (*model.Job, error)
	Complete(ctx context.Context, jobID string) (*model.Job, error)
	Fail(ctx context.Context, jobID, message string) (*model.Job, error)
	Progress(ctx context.Context, jobID string, upd *model.ProgressUpdate) error
	GetMedia(ctx context.Context, mediaID string) (*model.MediaFile, error)
	Download(ctx context.Context, mediaID string) ([]byte, error)
	PostSegments(ctx context.Context, mediaID string, segments []model.Segment) (int, error)
	GetSegments(ctx context.Context, mediaID string) ([]model.Segment, error)
	GetParticipants(ctx context.Context, mediaID string) ([]model.Participant, error)
	CreateParticipant(ctx context.Context, mediaID, name, canonicalKey string) (*model.Participant, error)
	AssignParticipant(ctx context.Context, mediaID string, req *AssignRequest) error
}

// AssignRequest binds a participant either to a time interval or to an
// explicit segment id batch. Exactly one of the two forms is used per call.
type AssignRequest struct {
	ParticipantID string   `json:"participantId"`
	StartMs       *int64   `json:"startMs,omitempty"`
	EndMs         *int64   `json:"endMs,omitempty"`
	SegmentIDs    []string `json:"segmentIds,omitempty"`
}

// BackendClient talks to one backend endpoint. Job processing must stay on
// the endpoint that issued the lease, so the worker holds one client per
// resolved endpoint.
type BackendClient struct {
	metaClient     *http.Client
	transferClient *http.Client
	baseURL        string
	apiToken       string
}

// NewBackendClient creates a client for one endpoint base URL. Metadata
// calls use a short timeout; downloads and inference-adjacent calls get a
// generous one so slow-but-healthy transfers are not aborted.
func NewBackendClient(baseURL, apiToken string) *BackendClient {
	return &BackendClient{
		metaClient: &http.Client{
			Timeout: 15 * time.Second,
		},
		transferClient: &http.Client{
			Timeout: 180 * time.Second,
		},
		baseURL:  baseURL,
		apiToken: apiToken,
	}
}

// BaseURL returns the endpoint this client is bound to.
func (c *BackendClient) BaseURL() string {
	return c.baseURL
}

// Health checks whether the endpoint is reachable.
func (c *BackendClient) Health(ctx context.Context) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.baseURL+"/health", nil)
	if err != nil {
		return fmt.Errorf("failed to create request: %w", err)
	}
	c.setHeaders(req)

	resp, err := c.metaClient.Do(req)
	if err != nil {
		return fmt.Errorf("health check failed: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return fmt.Errorf("backend unhealthy: status %d", resp.StatusCode)
	}

	return nil
}

// Lease attempts to acquire exclusive ownership of one pending job.
func (c *BackendClient) Lease(ctx context.Context) (*model.Job, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+"/transcribe-jobs/lease", nil)
	if err != nil {
		return nil, fmt.Errorf("failed to create request: %w", err)
	}
	c.setHeaders(req)

	resp, err := c.metaClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("failed to send request: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode == http.StatusNoContent {
		return nil, ErrNoJob
	}

	respBody, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("failed to read response: %w", err)
	}
	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return nil, fmt.Errorf("backend error (status %d): %s", resp.StatusCode, string(respBody))
	}

	var job model.Job
	if err := json.Unmarshal(respBody, &job); err != nil {
		return nil, fmt.Errorf("failed to unmarshal response: %w", err)
	}
	return &job, nil
}

// Complete marks a job successful. Called exactly once per job.
func (c *BackendClient) Complete(ctx context.Context, jobID string) (*model.Job, error) {
	var job model.Job
	if err := c.post(ctx, "/transcribe-jobs/"+jobID+"/complete", nil, &job); err != nil {
		return nil, err
	}
	return &job, nil
}

// failMessageLimit caps the human-readable error message stored on a job.
const failMessageLimit = 500

// Fail marks a job errored with a length-capped message.
func (c *BackendClient) Fail(ctx context.Context, jobID, message string) (*model.Job, error) {
	if len(message) > failMessageLimit {
		message = message[:failMessageLimit]
	}
	body := map[string]string{"message": message}
	var job model.Job
	if err := c.post(ctx, "/transcribe-jobs/"+jobID+"/fail", body, &job); err != nil {
		return nil, err
	}
	return &job, nil
}

// Progress pushes a best-effort status update.
func (c *BackendClient) Progress(ctx context.Context, jobID string, upd *model.ProgressUpdate) error {
	return c.post(ctx, "/transcribe-jobs/"+jobID+"/progress", upd, nil)
}

// GetMedia fetches media metadata.
func (c *BackendClient) GetMedia(ctx context.Context, mediaID string) (*model.MediaFile, error) {
	var media model.MediaFile
	if err := c.get(ctx, "/media-files/"+mediaID, &media); err != nil {
		return nil, err
	}
	return &media, nil
}

// Download fetches the raw media content bytes.
func (c *BackendClient) Download(ctx context.Context, mediaID string) ([]byte, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.baseURL+"/media-files/"+mediaID+"/download", nil)
	if err != nil {
		return nil, fmt.Errorf("failed to create request: %w", err)
	}
	c.setHeaders(req)

	resp, err := c.transferClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("failed to send request: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("download failed: status %d", resp.StatusCode)
	}

	data, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("failed to read content: %w", err)
	}
	return data, nil
}

// PostSegments inserts the full segment batch for a media item in one
// request and returns the inserted count.
func (c *BackendClient) PostSegments(ctx context.Context, mediaID string, segments []model.Segment) (int, error) {
	body := map[string]any{"segments": segments}
	var result struct {
		Count int `json:"count"`
	}
	if err := c.postLarge(ctx, "/media-files/"+mediaID+"/segments", body, &result); err != nil {
		return 0, err
	}
	return result.Count, nil
}

// GetSegments fetches all persisted segments for a media item.
func (c *BackendClient) GetSegments(ctx context.Context, mediaID string) ([]model.Segment, error) {
	var segments []model.Segment
	if err := c.get(ctx, "/media-files/"+mediaID+"/segments", &segments); err != nil {
		return nil, err
	}
	return segments, nil
}

// GetParticipants fetches existing participants for a media item.
func (c *BackendClient) GetParticipants(ctx context.Context, mediaID string) ([]model.Participant, error) {
	var participants []model.Participant
	if err := c.get(ctx, "/media-files/"+mediaID+"/participants", &participants); err != nil {
		return nil, err
	}
	return participants, nil
}

// CreateParticipant creates a participant keyed by the diarization label.
func (c *BackendClient) CreateParticipant(ctx context.Context, mediaID, name, canonicalKey string) (*model.Participant, error) {
	body := map[string]string{"name": name, "canonicalKey": canonicalKey}
	var participant model.Participant
	if err := c.post(ctx, "/media-files/"+mediaID+"/participants", body, &participant); err != nil {
		return nil, err
	}
	return &participant, nil
}

// AssignParticipant binds a participant to a time interval or segment batch.
func (c *BackendClient) AssignParticipant(ctx context.Context, mediaID string, req *AssignRequest) error {
	return c.post(ctx, "/media-files/"+mediaID+"/participants/assign", req, nil)
}

func (c *BackendClient) setHeaders(req *http.Request) {
	if c.apiToken != "" {
		req.Header.Set("Authorization", "Bearer "+c.apiToken)
	}
}

// get sends a GET request and parses the JSON response.
func (c *BackendClient) get(ctx context.Context, endpoint string, result any) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.baseURL+endpoint, nil)
	if err != nil {
		return fmt.Errorf("failed to create request: %w", err)
	}
	c.setHeaders(req)
	return c.do(c.metaClient, req, result)
}

// post sends a POST request with JSON body and parses the response.
func (c *BackendClient) post(ctx context.Context, endpoint string, body, result any) error {
	req, err := c.newPost(ctx, endpoint, body)
	if err != nil {
		return err
	}
	return c.do(c.metaClient, req, result)
}

// postLarge is post over the transfer client, for bulk payloads.
func (c *BackendClient) postLarge(ctx context.Context, endpoint string, body, result any) error {
	req, err := c.newPost(ctx, endpoint, body)
	if err != nil {
		return err
	}
	return c.do(c.transferClient, req, result)
}

func (c *BackendClient) newPost(ctx context.Context, endpoint string, body any) (*http.Request, error) {
	var reader io.Reader
	if body != nil {
		bodyBytes, err := json.Marshal(body)
		if err != nil {
			return nil, fmt.Errorf("failed to marshal request: %w", err)
		}
		reader = bytes.NewReader(bodyBytes)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+endpoint, reader)
	if err != nil {
		return nil, fmt.Errorf("failed to create request: %w", err)
	}
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	c.setHeaders(req)
	return req, nil
}

func (c *BackendClient) do(httpClient *http.Client, req *http.Request, result any) error {
	resp, err := httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("failed to send request: %w", err)
	}
	defer resp.Body.Close()

	respBody, err := io.ReadAll(resp.Body)
	if err != nil {
		return fmt.Errorf("failed to read response: %w", err)
	}

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return fmt.Errorf("backend error (status %d): %s", resp.StatusCode, string(respBody))
	}

	if result == nil || len(respBody) == 0 {
		return nil
	}
	if err := json.Unmarshal(respBody, result); err != nil {
		return fmt.Errorf("failed to unmarshal response: %w", err)
	}
	return nil
}
