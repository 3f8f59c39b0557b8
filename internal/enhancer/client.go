package enhancer

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/sirupsen/logrus"
)

// Provider produces raw completion text for a prompt.
type Provider interface {
	Name() string
	Complete(ctx context.Context, req CompletionRequest) (string, error)
}

// HTTPProvider talks to a JSON completion endpoint at <baseURL>/generate.
type HTTPProvider struct {
	baseURL    string
	apiKey     string
	httpClient *http.Client
	logger     *logrus.Logger
}

func NewHTTPProvider(baseURL, apiKey string, logger *logrus.Logger) *HTTPProvider {
	return &HTTPProvider{
		baseURL: strings.TrimRight(baseURL, "/"),
		apiKey:  apiKey,
		httpClient: &http.Client{
			// Per-call deadlines come from the context.
			Timeout: 120 * time.Second,
		},
		logger: logger,
	}
}

func (p *HTTPProvider) Name() string { return "http" }

func (p *HTTPProvider) Complete(ctx context.Context, req CompletionRequest) (string, error) {
	var response completionResponse
	if err := p.makeRequest(ctx, http.MethodPost, "/generate", req, &response); err != nil {
		return "", err
	}
	return response.Text, nil
}

func (p *HTTPProvider) makeRequest(ctx context.Context, method, endpoint string, payload interface{}, result interface{}) error {
	url := p.baseURL + endpoint

	var body io.Reader
	if payload != nil {
		jsonData, err := json.Marshal(payload)
		if err != nil {
			return &ProviderError{Provider: p.Name(), Err: fmt.Errorf("failed to marshal payload: %w", err)}
		}
		body = bytes.NewBuffer(jsonData)

		p.logger.WithFields(logrus.Fields{
			"method":       method,
			"url":          url,
			"payload_size": len(jsonData),
		}).Debug("Request payload info")
	}

	req, err := http.NewRequestWithContext(ctx, method, url, body)
	if err != nil {
		return &ProviderError{Provider: p.Name(), Err: fmt.Errorf("failed to create request: %w", err)}
	}

	if p.apiKey != "" {
		req.Header.Set("Authorization", "Bearer "+p.apiKey)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := p.httpClient.Do(req)
	if err != nil {
		return &ProviderError{Provider: p.Name(), Err: fmt.Errorf("request failed: %w", err)}
	}
	defer resp.Body.Close()

	responseBody, err := io.ReadAll(resp.Body)
	if err != nil {
		return &ProviderError{Provider: p.Name(), StatusCode: resp.StatusCode, Err: fmt.Errorf("failed to read response: %w", err)}
	}

	p.logger.WithFields(logrus.Fields{
		"status_code":   resp.StatusCode,
		"method":        method,
		"url":           url,
		"response_size": len(responseBody),
	}).Debug("Provider response received")

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return &ProviderError{
			Provider:   p.Name(),
			StatusCode: resp.StatusCode,
			Err:        fmt.Errorf("API request failed: %s", strings.TrimSpace(string(responseBody))),
		}
	}

	if result != nil && len(responseBody) > 0 {
		if err := json.Unmarshal(responseBody, result); err != nil {
			return &ProviderError{Provider: p.Name(), StatusCode: resp.StatusCode, Err: fmt.Errorf("failed to unmarshal response: %w", err)}
		}
	}

	return nil
}
