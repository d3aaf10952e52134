package producer

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"time"

	"github.com/sirupsen/logrus"
)

// maxResponseBytes bounds how much of a producer response is read
const maxResponseBytes = 1 << 20

// HTTPProducer calls a text generation endpoint over HTTP.
//
// Request body:  {"model": "...", "prompt": "...", "issue": "...", "context": {...}}
// Response body: {"text": "..."}
type HTTPProducer struct {
	endpoint string
	apiKey   string
	model    string
	client   *http.Client
	logger   *logrus.Logger
}

type generateRequest struct {
	Model   string                 `json:"model,omitempty"`
	Prompt  string                 `json:"prompt"`
	Issue   string                 `json:"issue"`
	Context map[string]interface{} `json:"context,omitempty"`
}

type generateResponse struct {
	Text  string `json:"text"`
	Error string `json:"error,omitempty"`
}

// NewHTTPProducer creates a new HTTPProducer
func NewHTTPProducer(endpoint, apiKey, model string, timeout time.Duration, logger *logrus.Logger) *HTTPProducer {
	if logger == nil {
		logger = logrus.New()
	}
	return &HTTPProducer{
		endpoint: endpoint,
		apiKey:   apiKey,
		model:    model,
		client:   &http.Client{Timeout: timeout},
		logger:   logger,
	}
}

// Generate implements TextProducer
func (p *HTTPProducer) Generate(ctx context.Context, issue string, issueContext map[string]interface{}) (string, error) {
	body, err := json.Marshal(generateRequest{
		Model:   p.model,
		Prompt:  RemediationPrompt(issue, issueContext),
		Issue:   issue,
		Context: issueContext,
	})
	if err != nil {
		return "", fmt.Errorf("failed to encode generate request: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, p.endpoint, bytes.NewReader(body))
	if err != nil {
		return "", fmt.Errorf("failed to create generate request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	if p.apiKey != "" {
		req.Header.Set("Authorization", "Bearer "+p.apiKey)
	}

	p.logger.WithField("endpoint", p.endpoint).Debug("Requesting remediation text")

	resp, err := p.client.Do(req)
	if err != nil {
		return "", fmt.Errorf("generate request failed: %w", err)
	}
	defer resp.Body.Close()

	data, err := io.ReadAll(io.LimitReader(resp.Body, maxResponseBytes))
	if err != nil {
		return "", fmt.Errorf("failed to read generate response: %w", err)
	}

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return "", fmt.Errorf("generate request returned status %d: %s", resp.StatusCode, bytes.TrimSpace(data))
	}

	var out generateResponse
	if err := json.Unmarshal(data, &out); err != nil {
		return "", fmt.Errorf("failed to decode generate response: %w", err)
	}
	if out.Error != "" {
		return "", fmt.Errorf("producer error: %s", out.Error)
	}
	if out.Text == "" {
		return "", fmt.Errorf("producer returned empty text")
	}

	return out.Text, nil
}
