package client

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/voxscribe/worker/internal/model"
)

func TestLeaseNoContentMeansNoJob(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/transcribe-jobs/lease" || r.Method != http.MethodPost {
			t.Errorf("unexpected request %s %s", r.Method, r.URL.Path)
		}
		w.WriteHeader(http.StatusNoContent)
	}))
	defer server.Close()

	c := NewBackendClient(server.URL, "")
	_, err := c.Lease(context.Background())
	if !errors.Is(err, ErrNoJob) {
		t.Fatalf("err = %v, want ErrNoJob", err)
	}
}

func TestLeaseReturnsJob(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		json.NewEncoder(w).Encode(model.Job{ID: "j1", MediaFileID: "m1", Model: "base"})
	}))
	defer server.Close()

	c := NewBackendClient(server.URL, "")
	job, err := c.Lease(context.Background())
	if err != nil {
		t.Fatal(err)
	}
	if job.ID != "j1" || job.MediaFileID != "m1" || job.Model != "base" {
		t.Errorf("job = %+v", job)
	}
}

func TestFailTruncatesMessage(t *testing.T) {
	var received struct {
		Message string `json:"message"`
	}
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/transcribe-jobs/j1/fail" {
			t.Errorf("unexpected path %s", r.URL.Path)
		}
		json.NewDecoder(r.Body).Decode(&received)
		json.NewEncoder(w).Encode(model.Job{ID: "j1"})
	}))
	defer server.Close()

	c := NewBackendClient(server.URL, "")
	long := strings.Repeat("x", 2000)
	if _, err := c.Fail(context.Background(), "j1", long); err != nil {
		t.Fatal(err)
	}
	if len(received.Message) != failMessageLimit {
		t.Errorf("message length = %d, want %d", len(received.Message), failMessageLimit)
	}
}

func TestPostSegmentsSendsBatchAndReadsCount(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/media-files/m1/segments" {
			t.Errorf("unexpected path %s", r.URL.Path)
		}
		var body struct {
			Segments []model.Segment `json:"segments"`
		}
		json.NewDecoder(r.Body).Decode(&body)
		json.NewEncoder(w).Encode(map[string]int{"count": len(body.Segments)})
	}))
	defer server.Close()

	c := NewBackendClient(server.URL, "")
	count, err := c.PostSegments(context.Background(), "m1", []model.Segment{
		{Idx: 0, StartMs: 0, EndMs: 100, Text: "a"},
		{Idx: 1, StartMs: 100, EndMs: 200, Text: "b"},
	})
	if err != nil {
		t.Fatal(err)
	}
	if count != 2 {
		t.Errorf("count = %d, want 2", count)
	}
}

func TestAuthorizationHeader(t *testing.T) {
	var header string
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		header = r.Header.Get("Authorization")
		w.WriteHeader(http.StatusOK)
	}))
	defer server.Close()

	c := NewBackendClient(server.URL, "secret-token")
	if err := c.Health(context.Background()); err != nil {
		t.Fatal(err)
	}
	if header != "Bearer secret-token" {
		t.Errorf("Authorization = %q, want bearer token", header)
	}

	c = NewBackendClient(server.URL, "")
	c.Health(context.Background())
	if header != "" {
		t.Errorf("Authorization = %q, want empty without token", header)
	}
}

func TestProgressOmitsAbsentFields(t *testing.T) {
	var raw map[string]any
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		json.NewDecoder(r.Body).Decode(&raw)
		w.WriteHeader(http.StatusOK)
	}))
	defer server.Close()

	c := NewBackendClient(server.URL, "")
	processed := int64(1234)
	if err := c.Progress(context.Background(), "j1", &model.ProgressUpdate{ProcessedMs: &processed}); err != nil {
		t.Fatal(err)
	}
	if _, ok := raw["processedMs"]; !ok {
		t.Error("processedMs missing from payload")
	}
	if _, ok := raw["totalMs"]; ok {
		t.Error("totalMs must be omitted when unset")
	}
	if _, ok := raw["etaSeconds"]; ok {
		t.Error("etaSeconds must be omitted when unset")
	}
}

func TestBackendErrorIncludesStatusAndBody(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, "lease conflict", http.StatusConflict)
	}))
	defer server.Close()

	c := NewBackendClient(server.URL, "")
	_, err := c.Complete(context.Background(), "j1")
	if err == nil {
		t.Fatal("expected error")
	}
	if !strings.Contains(err.Error(), "409") || !strings.Contains(err.Error(), "lease conflict") {
		t.Errorf("err = %v, want status and body included", err)
	}
}

func TestDownloadReturnsRawBytes(t *testing.T) {
	payload := []byte{0x00, 0x01, 0xfe, 0xff}
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/media-files/m1/download" {
			t.Errorf("unexpected path %s", r.URL.Path)
		}
		w.Write(payload)
	}))
	defer server.Close()

	c := NewBackendClient(server.URL, "")
	data, err := c.Download(context.Background(), "m1")
	if err != nil {
		t.Fatal(err)
	}
	if string(data) != string(payload) {
		t.Errorf("data = %v, want %v", data, payload)
	}
}
