package service

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"
	"time"

	"github.com/avocatt/accident-analyzer/config"
	"github.com/avocatt/accident-analyzer/model"
)

func newTestInference(baseURL string, maxAttempts int) *InferenceClient {
	return NewInferenceClient(&config.InferenceConfig{
		BaseURL:        baseURL,
		APIKey:         "test-key",
		Model:          "test-model",
		RequestTimeout: config.Duration(5 * time.Second),
		MaxAttempts:    maxAttempts,
		BackoffBase:    config.Duration(10 * time.Millisecond),
		MaxConcurrent:  2,
	})
}

func providerSuccess(content string) string {
	body, _ := json.Marshal(map[string]any{
		"choices": []map[string]any{
			{"message": map[string]any{"content": content}, "finish_reason": "stop"},
		},
	})
	return string(body)
}

func testSubmission() (*model.Submission, *model.NormalizedDocument) {
	sub := &model.Submission{
		SessionID:  "sess-1",
		ClientName: "Jane Doe",
		Notes:      "rear-ended at a light",
		Primary:    model.FileUpload{Filename: "report.pdf"},
	}
	doc := &model.NormalizedDocument{
		ReportPages: []model.NormalizedPage{
			{SourceRef: "report", Index: 1, MimeType: "image/png", Data: []byte{1, 2, 3}},
		},
		ReportText: "extracted form text",
		PhotoPages: []model.NormalizedPage{
			{SourceRef: "photo", Index: 1, MimeType: "image/jpeg", Data: []byte{4, 5}},
			{SourceRef: "photo", Index: 2, MimeType: "image/jpeg", Data: []byte{6, 7}},
		},
	}
	return sub, doc
}

func TestInferRetriesTransientFailures(t *testing.T) {
	var calls int32
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		n := atomic.AddInt32(&calls, 1)
		if n <= 2 {
			w.WriteHeader(http.StatusServiceUnavailable)
			return
		}
		fmt.Fprint(w, providerSuccess(`{"case_summary":"ok"}`))
	}))
	defer server.Close()

	client := newTestInference(server.URL, 3)
	sub, doc := testSubmission()

	start := time.Now()
	raw, err := client.Infer(context.Background(), sub, doc)
	if err != nil {
		t.Fatalf("Unexpected error: %v", err)
	}
	if string(raw) != `{"case_summary":"ok"}` {
		t.Errorf("Unexpected payload: %s", raw)
	}
	if got := atomic.LoadInt32(&calls); got != 3 {
		t.Errorf("Expected 3 provider calls, got %d", got)
	}
	// Two failed attempts must each back off; even with jitter the total
	// wait is at least twice the base.
	if elapsed := time.Since(start); elapsed < 2*10*time.Millisecond {
		t.Errorf("Expected two backoff intervals before success, waited only %v", elapsed)
	}
}

func TestInferExhaustsRetryBudget(t *testing.T) {
	var calls int32
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		atomic.AddInt32(&calls, 1)
		w.WriteHeader(http.StatusServiceUnavailable)
	}))
	defer server.Close()

	client := newTestInference(server.URL, 3)
	sub, doc := testSubmission()

	_, err := client.Infer(context.Background(), sub, doc)
	if model.ErrorKind(err) != model.KindInferenceExhausted {
		t.Fatalf("Expected kind %s, got %s (err=%v)", model.KindInferenceExhausted, model.ErrorKind(err), err)
	}
	if got := atomic.LoadInt32(&calls); got != 3 {
		t.Errorf("Expected exactly 3 attempts, got %d", got)
	}

	var infErr *model.InferenceError
	if !errors.As(err, &infErr) {
		t.Fatal("Expected an InferenceError")
	}
	if !infErr.Exhausted || infErr.Attempts != 3 {
		t.Errorf("Expected exhausted after 3 attempts, got %+v", infErr)
	}
}

func TestInferFailsFastOnRejection(t *testing.T) {
	var calls int32
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		atomic.AddInt32(&calls, 1)
		w.WriteHeader(http.StatusUnauthorized)
	}))
	defer server.Close()

	client := newTestInference(server.URL, 3)
	sub, doc := testSubmission()

	_, err := client.Infer(context.Background(), sub, doc)
	if model.ErrorKind(err) != model.KindInferenceRejected {
		t.Fatalf("Expected kind %s, got %s", model.KindInferenceRejected, model.ErrorKind(err))
	}
	if got := atomic.LoadInt32(&calls); got != 1 {
		t.Errorf("Expected a single attempt on rejection, got %d", got)
	}
}

func TestInferHonorsRetryAfter(t *testing.T) {
	var calls int32
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if atomic.AddInt32(&calls, 1) == 1 {
			w.Header().Set("Retry-After", "1")
			w.WriteHeader(http.StatusTooManyRequests)
			return
		}
		fmt.Fprint(w, providerSuccess("{}"))
	}))
	defer server.Close()

	client := newTestInference(server.URL, 2)
	sub, doc := testSubmission()

	start := time.Now()
	if _, err := client.Infer(context.Background(), sub, doc); err != nil {
		t.Fatalf("Unexpected error: %v", err)
	}
	if elapsed := time.Since(start); elapsed < time.Second {
		t.Errorf("Expected Retry-After to delay the retry, waited only %v", elapsed)
	}
}

func TestInferRefusal(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		body, _ := json.Marshal(map[string]any{
			"choices": []map[string]any{
				{"message": map[string]any{"content": "", "refusal": "cannot analyze"}},
			},
		})
		w.Write(body)
	}))
	defer server.Close()

	client := newTestInference(server.URL, 3)
	sub, doc := testSubmission()

	_, err := client.Infer(context.Background(), sub, doc)
	if model.ErrorKind(err) != model.KindInferenceRejected {
		t.Errorf("Expected kind %s, got %s", model.KindInferenceRejected, model.ErrorKind(err))
	}
}

func TestInferRespectsCancellation(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusServiceUnavailable)
	}))
	defer server.Close()

	client := newTestInference(server.URL, 3)
	sub, doc := testSubmission()

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	_, err := client.Infer(ctx, sub, doc)
	if err == nil {
		t.Fatal("Expected error on canceled context")
	}
}

func TestBuildRequestOrdering(t *testing.T) {
	client := newTestInference("http://unused", 1)
	sub, doc := testSubmission()

	req := client.buildRequest(sub, doc)

	if req.Model != "test-model" {
		t.Errorf("Expected model test-model, got %s", req.Model)
	}
	if len(req.Messages) != 2 {
		t.Fatalf("Expected system + user messages, got %d", len(req.Messages))
	}
	if req.Messages[0].Role != "system" {
		t.Errorf("Expected system message first, got %s", req.Messages[0].Role)
	}

	parts, ok := req.Messages[1].Content.([]contentPart)
	if !ok {
		t.Fatal("Expected user content parts")
	}

	// Client context, report text, 1 report image, then label+image per photo
	wantParts := 2 + 1 + 2*len(doc.PhotoPages)
	if len(parts) != wantParts {
		t.Fatalf("Expected %d parts, got %d", wantParts, len(parts))
	}
	if parts[3].Text != "Photo 1:" {
		t.Errorf("Expected photo label before first photo, got %q", parts[3].Text)
	}
	if parts[4].ImageURL == nil {
		t.Error("Expected photo image after its label")
	}
	if parts[5].Text != "Photo 2:" {
		t.Errorf("Expected second photo label, got %q", parts[5].Text)
	}
}
