package search

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"time"

	"github.com/lookout/backend/internal/core/ports"
	"github.com/lookout/backend/internal/domain"
	"github.com/lookout/backend/internal/infrastructure/logger"
)

// HTTPExecutor calls an LLM search-workflow endpoint. The backend is a
// black box behind one POST: it receives the query, the condition and the
// prior state snapshot, and answers with a verdict, a fresh snapshot and
// citations. Any pipeline honoring this shape can sit behind it.
type HTTPExecutor struct {
	baseURL string
	apiKey  string
	client  *http.Client
	log     *logger.Logger
}

type Config struct {
	BaseURL string
	APIKey  string
	Timeout time.Duration
}

func NewHTTPExecutor(cfg Config, log *logger.Logger) *HTTPExecutor {
	timeout := cfg.Timeout
	if timeout <= 0 {
		timeout = 60 * time.Second
	}
	return &HTTPExecutor{
		baseURL: cfg.BaseURL,
		apiKey:  cfg.APIKey,
		client:  &http.Client{Timeout: timeout},
		log:     log,
	}
}

type searchRequest struct {
	Query      string       `json:"query"`
	Condition  string       `json:"condition"`
	PriorState domain.JSONB `json:"prior_state,omitempty"`
}

type searchResponse struct {
	Answer       string       `json:"answer"`
	State        domain.JSONB `json:"state"`
	ConditionMet bool         `json:"condition_met"`
	Sources      []struct {
		URL   string `json:"url"`
		Title string `json:"title"`
	} `json:"sources"`
}

func (e *HTTPExecutor) Execute(ctx context.Context, input ports.SearchInput) (*ports.SearchResult, error) {
	url := fmt.Sprintf("%s/v1/search/check", e.baseURL)

	body, err := json.Marshal(searchRequest{
		Query:      input.Query,
		Condition:  input.Condition,
		PriorState: input.PriorState,
	})
	if err != nil {
		return nil, &ports.ExecutorError{Err: fmt.Errorf("encoding request: %w", err)}
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewReader(body))
	if err != nil {
		return nil, &ports.ExecutorError{Err: err}
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Authorization", "Bearer "+e.apiKey)

	resp, err := e.client.Do(req)
	if err != nil {
		if errors.Is(err, context.DeadlineExceeded) || errors.Is(err, context.Canceled) {
			return nil, err
		}
		// Connection-level failures are retryable.
		return nil, &ports.ExecutorError{Err: fmt.Errorf("executor request failed: %w", err), Transient: true}
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, e.classifyStatus(resp)
	}

	var out searchResponse
	if err := json.NewDecoder(resp.Body).Decode(&out); err != nil {
		return nil, &ports.ExecutorError{Err: fmt.Errorf("decoding response: %w", err)}
	}

	sources := make(domain.GroundingSources, 0, len(out.Sources))
	for _, s := range out.Sources {
		sources = append(sources, domain.GroundingSource{URL: s.URL, Title: s.Title})
	}

	return &ports.SearchResult{
		Answer:       out.Answer,
		State:        out.State,
		ConditionMet: out.ConditionMet,
		Sources:      sources,
	}, nil
}

// classifyStatus maps HTTP failures onto the transient/permanent
// taxonomy: rate limits and server errors are retryable, everything else
// fails the execution outright.
func (e *HTTPExecutor) classifyStatus(resp *http.Response) error {
	raw, _ := io.ReadAll(io.LimitReader(resp.Body, 512))
	message := string(raw)

	var decoded map[string]interface{}
	if json.Unmarshal(raw, &decoded) == nil {
		if m, ok := decoded["message"].(string); ok && m != "" {
			message = m
		} else if m, ok := decoded["error"].(string); ok && m != "" {
			message = m
		}
	}

	err := fmt.Errorf("executor returned %d: %s", resp.StatusCode, message)
	transient := resp.StatusCode == http.StatusTooManyRequests || resp.StatusCode >= 500

	if transient {
		e.log.Warnw("search_backend_transient", "status", resp.StatusCode)
	} else {
		e.log.Warnw("search_backend_rejected", "status", resp.StatusCode)
	}
	return &ports.ExecutorError{Err: err, Transient: transient}
}
