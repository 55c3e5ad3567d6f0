package ai

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"sort"
	"strings"
	"time"
)

const defaultAPIURL = "https://api.openai.com/v1/chat/completions"

// ErrNotConfigured is returned when no API key was given
var ErrNotConfigured = errors.New("openai is not configured")

// ChatGPT represents a client for the OpenAI chat completions API
type ChatGPT struct {
	apiKey      string
	apiURL      string
	model       string
	maxTokens   int
	temperature float64
	httpClient  *http.Client
}

// Option customizes the client
type Option func(*ChatGPT)

// WithAPIURL points the client at another endpoint
func WithAPIURL(url string) Option {
	return func(c *ChatGPT) { c.apiURL = url }
}

// WithHTTPClient replaces the HTTP client
func WithHTTPClient(hc *http.Client) Option {
	return func(c *ChatGPT) { c.httpClient = hc }
}

// New creates a new ChatGPT client. An empty apiKey gives a client whose
// calls fail with ErrNotConfigured.
func New(apiKey, model string, opts ...Option) *ChatGPT {
	if model == "" {
		model = "gpt-4o-mini"
	}
	c := &ChatGPT{
		apiKey:      apiKey,
		apiURL:      defaultAPIURL,
		model:       model,
		maxTokens:   500,
		temperature: 0.7,
		httpClient:  &http.Client{Timeout: 30 * time.Second},
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// Available reports whether an API key is configured
func (c *ChatGPT) Available() bool {
	return c != nil && c.apiKey != ""
}

// Message represents a message in the ChatGPT conversation
type Message struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

// ChatRequest represents a request to the ChatGPT API
type ChatRequest struct {
	Model       string    `json:"model"`
	Messages    []Message `json:"messages"`
	MaxTokens   int       `json:"max_tokens"`
	Temperature float64   `json:"temperature"`
}

// ChatResponse represents a response from the ChatGPT API
type ChatResponse struct {
	Choices []struct {
		Message struct {
			Content string `json:"content"`
		} `json:"message"`
	} `json:"choices"`
	Error *struct {
		Message string `json:"message"`
	} `json:"error,omitempty"`
}

// DayMinutes is one line of the week
type DayMinutes struct {
	Day     string
	Minutes int
}

// WeeklyInput is what the coach gets to see about a week
type WeeklyInput struct {
	Days           []DayMinutes
	Total          int
	QualifyingDays int
	GoalMinutes    int
	Blockers       map[string]int
	OpenSteps      []string
}

// WeeklyCoaching asks for a short, practical reading of the week and one
// suggestion for the next step.
func (c *ChatGPT) WeeklyCoaching(ctx context.Context, in WeeklyInput) (string, error) {
	if !c.Available() {
		return "", ErrNotConfigured
	}

	var b strings.Builder
	b.WriteString("Here is a student's study log for the last seven days.\n\nMinutes per day:\n")
	for _, d := range in.Days {
		fmt.Fprintf(&b, "- %s: %d min\n", d.Day, d.Minutes)
	}
	fmt.Fprintf(&b, "\nTotal: %d min. Days with at least 15 min: %d.\n", in.Total, in.QualifyingDays)
	if in.GoalMinutes > 0 {
		fmt.Fprintf(&b, "Daily goal: %d min.\n", in.GoalMinutes)
	}
	if len(in.Blockers) > 0 {
		cats := make([]string, 0, len(in.Blockers))
		for cat := range in.Blockers {
			cats = append(cats, cat)
		}
		sort.Strings(cats)
		b.WriteString("Reported blockers:\n")
		for _, cat := range cats {
			fmt.Fprintf(&b, "- %s: %d\n", cat, in.Blockers[cat])
		}
	}
	if len(in.OpenSteps) > 0 {
		b.WriteString("Open next steps:\n")
		for _, s := range in.OpenSteps {
			fmt.Fprintf(&b, "- %s\n", s)
		}
	}
	b.WriteString("\nGive: 1) a one-sentence summary of the week, 2) one pattern you notice, " +
		"3) one concrete 15 minute action for tomorrow. Keep it under 120 words and friendly.")

	return c.complete(ctx, []Message{
		{Role: "system", Content: "You are a supportive study coach. You give short, practical observations and never lecture."},
		{Role: "user", Content: b.String()},
	})
}

func (c *ChatGPT) complete(ctx context.Context, messages []Message) (string, error) {
	request := ChatRequest{
		Model:       c.model,
		Messages:    messages,
		MaxTokens:   c.maxTokens,
		Temperature: c.temperature,
	}

	requestData, err := json.Marshal(request)
	if err != nil {
		return "", fmt.Errorf("failed to marshal request: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.apiURL, bytes.NewReader(requestData))
	if err != nil {
		return "", fmt.Errorf("failed to create request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Authorization", "Bearer "+c.apiKey)

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return "", fmt.Errorf("failed to send request: %w", err)
	}
	defer resp.Body.Close()

	var response ChatResponse
	if err := json.NewDecoder(resp.Body).Decode(&response); err != nil {
		return "", fmt.Errorf("failed to decode response (status %d): %w", resp.StatusCode, err)
	}

	if response.Error != nil {
		return "", fmt.Errorf("API error: %s", response.Error.Message)
	}
	if resp.StatusCode != http.StatusOK {
		return "", fmt.Errorf("API status %d", resp.StatusCode)
	}
	if len(response.Choices) == 0 {
		return "", errors.New("no response choices returned")
	}

	return strings.TrimSpace(response.Choices[0].Message.Content), nil
}
