package service

import (
	"bytes"
	"context"
	"encoding/base64"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/avocatt/accident-analyzer/config"
	"github.com/avocatt/accident-analyzer/model"
	"github.com/avocatt/accident-analyzer/pkg/httpx"
	"github.com/avocatt/accident-analyzer/pkg/logger"
	"golang.org/x/sync/semaphore"
)

// InferenceClient sends normalized pages to the multimodal provider and
// returns the raw (untrusted) extraction payload. It owns the retry/backoff
// and timeout policy; it is the only stage with external I/O.
type InferenceClient struct {
	cfg        *config.InferenceConfig
	httpClient *http.Client

	// sem caps concurrent provider calls across all pipeline runs so a
	// burst of submissions cannot starve other runs' retry budgets.
	sem *semaphore.Weighted
}

func NewInferenceClient(cfg *config.InferenceConfig) *InferenceClient {
	return &InferenceClient{
		cfg: cfg,
		httpClient: &http.Client{
			Timeout: time.Duration(cfg.RequestTimeout),
		},
		sem: semaphore.NewWeighted(int64(cfg.MaxConcurrent)),
	}
}

type chatMessage struct {
	Role    string `json:"role"`
	Content any    `json:"content"`
}

type contentPart struct {
	Type     string    `json:"type"`
	Text     string    `json:"text,omitempty"`
	ImageURL *imageURL `json:"image_url,omitempty"`
}

type imageURL struct {
	URL string `json:"url"`
}

type chatRequest struct {
	Model          string        `json:"model"`
	Messages       []chatMessage `json:"messages"`
	Temperature    float64       `json:"temperature"`
	MaxTokens      int           `json:"max_completion_tokens,omitempty"`
	ResponseFormat any           `json:"response_format,omitempty"`
}

type chatResponse struct {
	Choices []struct {
		Message struct {
			Content string `json:"content"`
			Refusal string `json:"refusal,omitempty"`
		} `json:"message"`
		FinishReason string `json:"finish_reason"`
	} `json:"choices"`
	Error *struct {
		Message string `json:"message"`
		Type    string `json:"type"`
	} `json:"error,omitempty"`
}

// statusError carries the provider's HTTP status through the retry
// classifier.
type statusError struct {
	code int
	body string
}

func (e *statusError) Error() string {
	return fmt.Sprintf("provider returned status %d: %s", e.code, e.body)
}

func (e *statusError) HTTPStatusCode() int { return e.code }

// Infer issues one extraction request covering all normalized pages. On
// transient failures it retries sequentially with jittered exponential
// backoff up to the configured ceiling; non-transient provider rejections
// fail immediately. The returned bytes are the assistant's raw content and
// must be treated as untrusted until validated.
func (c *InferenceClient) Infer(ctx context.Context, sub *model.Submission, doc *model.NormalizedDocument) ([]byte, error) {
	if err := c.sem.Acquire(ctx, 1); err != nil {
		return nil, &model.PipelineError{Kind: model.KindPipelineTimeout, Err: err}
	}
	defer c.sem.Release(1)

	body, err := json.Marshal(c.buildRequest(sub, doc))
	if err != nil {
		return nil, fmt.Errorf("marshal inference request: %w", err)
	}

	var lastErr error
	delay := time.Duration(c.cfg.BackoffBase)
	for attempt := 1; attempt <= c.cfg.MaxAttempts; attempt++ {
		if err := ctx.Err(); err != nil {
			return nil, &model.PipelineError{Kind: model.KindPipelineTimeout, Err: err}
		}

		raw, retryAfter, err := c.doRequest(ctx, body)
		if err == nil {
			return raw, nil
		}

		if !httpx.IsRetryableError(err) {
			return nil, &model.InferenceError{Exhausted: false, Attempts: attempt, Err: err}
		}
		lastErr = err

		if attempt == c.cfg.MaxAttempts {
			break
		}

		sleepFor := httpx.Jitter(delay)
		if retryAfter > 0 {
			sleepFor = retryAfter
		}
		logger.Warn(ctx, "inference attempt failed, backing off",
			"attempt", attempt,
			"delay_ms", sleepFor.Milliseconds(),
			"error", err,
		)
		if err := httpx.SleepContext(ctx, sleepFor); err != nil {
			return nil, &model.PipelineError{Kind: model.KindPipelineTimeout, Err: err}
		}
		delay *= 2
	}

	return nil, &model.InferenceError{Exhausted: true, Attempts: c.cfg.MaxAttempts, Err: lastErr}
}

func (c *InferenceClient) doRequest(ctx context.Context, body []byte) (raw []byte, retryAfter time.Duration, err error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.cfg.BaseURL+"/v1/chat/completions", bytes.NewReader(body))
	if err != nil {
		return nil, 0, fmt.Errorf("create request: %w", err)
	}
	req.Header.Set("Authorization", "Bearer "+c.cfg.APIKey)
	req.Header.Set("Content-Type", "application/json")

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, 0, fmt.Errorf("send request: %w", err)
	}
	defer resp.Body.Close()

	respBody, err := io.ReadAll(io.LimitReader(resp.Body, 4<<20))
	if err != nil {
		return nil, 0, fmt.Errorf("read response: %w", err)
	}

	if resp.StatusCode != http.StatusOK {
		retryAfter = httpx.RetryAfter(resp, 0, 30*time.Second)
		return nil, retryAfter, &statusError{code: resp.StatusCode, body: truncateForLog(respBody)}
	}

	var parsed chatResponse
	if err := json.Unmarshal(respBody, &parsed); err != nil {
		return nil, 0, fmt.Errorf("parse provider envelope: %w", err)
	}
	if parsed.Error != nil {
		return nil, 0, fmt.Errorf("provider error: %s", parsed.Error.Message)
	}
	if len(parsed.Choices) == 0 {
		return nil, 0, fmt.Errorf("provider returned no choices")
	}
	if refusal := parsed.Choices[0].Message.Refusal; refusal != "" {
		return nil, 0, fmt.Errorf("provider refused request: %s", refusal)
	}

	return []byte(parsed.Choices[0].Message.Content), 0, nil
}

// buildRequest assembles the fixed extraction prompt plus every normalized
// page: client context first, extracted PDF text, report pages, then photos
// labeled "Photo N" in submission order.
func (c *InferenceClient) buildRequest(sub *model.Submission, doc *model.NormalizedDocument) chatRequest {
	var parts []contentPart

	if ctxText := clientContext(sub); ctxText != "" {
		parts = append(parts, contentPart{Type: "text", Text: ctxText})
	}

	if doc.ReportText != "" {
		parts = append(parts, contentPart{
			Type: "text",
			Text: "Extracted text from the report PDF:\n" + doc.ReportText,
		})
	}

	for _, page := range doc.ReportPages {
		parts = append(parts, contentPart{
			Type:     "image_url",
			ImageURL: &imageURL{URL: dataURL(page.MimeType, page.Data)},
		})
	}

	for _, page := range doc.PhotoPages {
		parts = append(parts, contentPart{
			Type: "text",
			Text: fmt.Sprintf("Photo %d:", page.Index),
		})
		parts = append(parts, contentPart{
			Type:     "image_url",
			ImageURL: &imageURL{URL: dataURL(page.MimeType, page.Data)},
		})
	}

	return chatRequest{
		Model: c.cfg.Model,
		Messages: []chatMessage{
			{Role: "system", Content: masterPrompt},
			{Role: "user", Content: parts},
		},
		Temperature: 0.1,
		MaxTokens:   8000,
		ResponseFormat: map[string]any{
			"type": "json_schema",
			"json_schema": map[string]any{
				"name":   schemaID,
				"schema": caseAnalysisSchema(),
			},
		},
	}
}

func clientContext(sub *model.Submission) string {
	var sb strings.Builder
	if sub.ClientName != "" {
		fmt.Fprintf(&sb, "Client Name: %s\n", sub.ClientName)
	}
	if sub.Notes != "" {
		fmt.Fprintf(&sb, "Notes: %s\n", sub.Notes)
	}
	if sb.Len() == 0 {
		return ""
	}
	return "Additional Context:\n" + sb.String()
}

func dataURL(mimeType string, data []byte) string {
	return "data:" + mimeType + ";base64," + base64.StdEncoding.EncodeToString(data)
}

func truncateForLog(b []byte) string {
	const max = 512
	if len(b) <= max {
		return string(b)
	}
	return string(b[:max]) + "..."
}
