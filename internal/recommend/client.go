package recommend

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"strings"
	"time"
)

// Client suggests the best-fit role for a task description. Implementations
// must be side-effect free and safe to call again, though callers fall back
// to manual assignment after a single failure instead of retrying.
type Client interface {
	SuggestRole(ctx context.Context, description string, candidateRoles []string) (string, error)
}

// ErrUnavailable covers transport failures: timeouts, refused connections,
// non-2xx responses.
var ErrUnavailable = errors.New("recommender unavailable")

// ErrNoConfidentMatch means the recommender answered but declined to pick a
// role, or picked one outside the candidate set.
var ErrNoConfidentMatch = errors.New("no confident role match")

const defaultTimeout = 10 * time.Second

// HTTPClient talks to the role recommendation service over JSON.
type HTTPClient struct {
	BaseURL    string
	HTTPClient *http.Client
	Timeout    time.Duration
}

// New creates a client with sane defaults.
func New(baseURL string) *HTTPClient {
	return &HTTPClient{
		BaseURL: baseURL,
		Timeout: defaultTimeout,
	}
}

type suggestRequest struct {
	Description    string   `json:"description"`
	CandidateRoles []string `json:"candidate_roles"`
}

type suggestResponse struct {
	Role string `json:"role"`
}

func (c *HTTPClient) SuggestRole(ctx context.Context, description string, candidateRoles []string) (string, error) {
	if len(candidateRoles) == 0 {
		return "", ErrNoConfidentMatch
	}
	timeout := c.Timeout
	if timeout <= 0 {
		timeout = defaultTimeout
	}
	ctx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	payload, err := json.Marshal(suggestRequest{Description: description, CandidateRoles: candidateRoles})
	if err != nil {
		return "", err
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost,
		strings.TrimRight(c.BaseURL, "/")+"/suggest-role", bytes.NewReader(payload))
	if err != nil {
		return "", err
	}
	req.Header.Set("Content-Type", "application/json")

	client := c.HTTPClient
	if client == nil {
		client = http.DefaultClient
	}
	resp, err := client.Do(req)
	if err != nil {
		return "", fmt.Errorf("%w: %v", ErrUnavailable, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode == http.StatusUnprocessableEntity || resp.StatusCode == http.StatusNotFound {
		return "", ErrNoConfidentMatch
	}
	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return "", fmt.Errorf("%w: status=%d", ErrUnavailable, resp.StatusCode)
	}
	var body suggestResponse
	if err := json.NewDecoder(resp.Body).Decode(&body); err != nil {
		return "", fmt.Errorf("%w: decode: %v", ErrUnavailable, err)
	}
	role := strings.TrimSpace(body.Role)
	if role == "" {
		return "", ErrNoConfidentMatch
	}
	for _, candidate := range candidateRoles {
		if strings.EqualFold(candidate, role) {
			return candidate, nil
		}
	}
	// A role outside the offered set is as good as no answer.
	return "", ErrNoConfidentMatch
}
