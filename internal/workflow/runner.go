// Package workflow forwards /run invocations to an external execution
// service over HTTP.
package workflow

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"

	"clawderous/internal/logging"

	"go.uber.org/zap"
)

var ErrNotConfigured = errors.New("workflow runner not configured")

type HTTPRunner struct {
	url    string
	token  string
	client *http.Client
	logger *zap.Logger
}

func NewHTTPRunner(url, token string, client *http.Client, logger *zap.Logger) *HTTPRunner {
	if client == nil {
		client = http.DefaultClient
	}
	logger = logging.OrNop(logger)
	return &HTTPRunner{url: strings.TrimSpace(url), token: token, client: client, logger: logger}
}

type executeRequest struct {
	Name string            `json:"name"`
	Args map[string]string `json:"args"`
}

type executeResponse struct {
	Summary string `json:"summary"`
	Error   string `json:"error,omitempty"`
}

// Execute runs workflow name once and returns its summary. There is no
// retry; a failure is reported to the caller as is.
func (r *HTTPRunner) Execute(ctx context.Context, name string, args map[string]string) (string, error) {
	if r.url == "" {
		return "", ErrNotConfigured
	}
	if args == nil {
		args = map[string]string{}
	}
	body, err := json.Marshal(executeRequest{Name: name, Args: args})
	if err != nil {
		return "", fmt.Errorf("encode workflow request: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, r.url, bytes.NewReader(body))
	if err != nil {
		return "", fmt.Errorf("build workflow request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	if r.token != "" {
		req.Header.Set("Authorization", "Bearer "+r.token)
	}

	resp, err := r.client.Do(req)
	if err != nil {
		return "", fmt.Errorf("workflow %s: %w", name, err)
	}
	defer resp.Body.Close()

	data, _ := io.ReadAll(io.LimitReader(resp.Body, 1<<20))
	var out executeResponse
	_ = json.Unmarshal(data, &out)

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		if out.Error != "" {
			return "", fmt.Errorf("workflow %s: %s", name, out.Error)
		}
		return "", fmt.Errorf("workflow %s: HTTP %d", name, resp.StatusCode)
	}

	r.logger.Info("workflow executed", zap.String("workflow", name))
	if out.Summary == "" {
		return "completed", nil
	}
	return out.Summary, nil
}
