package classifier

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

	"laterai/internal/domain"
	"laterai/internal/metrics"
)

const maxPromptContent = 500

const systemPrompt = "You are an AI assistant that classifies content and generates tags. Always respond with JSON format only. " +
	"The category must be exactly one of the listed English labels. Tags must be in ENGLISH regardless of the content language. " +
	"The summary should be in the same language as the content."

// OpenAIConfig configures the chat completions client.
type OpenAIConfig struct {
	APIKey  string
	Model   string
	BaseURL string
	Timeout time.Duration
	Client  *http.Client
}

// OpenAI classifies through the OpenAI chat completions API.
// Without an API key it always answers with Fallback.
type OpenAI struct {
	cfg     OpenAIConfig
	client  *http.Client
	log     logrus.FieldLogger
	metrics *metrics.Metrics
}

func NewOpenAI(cfg OpenAIConfig, logger logrus.FieldLogger, m *metrics.Metrics) *OpenAI {
	client := cfg.Client
	if client == nil {
		client = http.DefaultClient
	}
	if cfg.Model == "" {
		cfg.Model = "gpt-3.5-turbo"
	}
	if cfg.BaseURL == "" {
		cfg.BaseURL = "https://api.openai.com/v1"
	}
	cfg.BaseURL = strings.TrimRight(cfg.BaseURL, "/")
	if cfg.Timeout <= 0 {
		cfg.Timeout = 20 * time.Second
	}
	return &OpenAI{
		cfg:     cfg,
		client:  client,
		log:     logger.WithField("component", "classifier"),
		metrics: m,
	}
}

// Enabled reports whether live classification is configured.
func (c *OpenAI) Enabled() bool { return c.cfg.APIKey != "" }

func (c *OpenAI) Classify(ctx context.Context, in Input) Result {
	log := c.log.WithField("url", in.URL)

	if !c.Enabled() {
		log.Debug("No API key configured, using fallback classification")
		c.metrics.Classification(metrics.OutcomeDegraded)
		return Fallback(in)
	}

	cctx, cancel := context.WithTimeout(ctx, c.cfg.Timeout)
	defer cancel()

	reply, err := c.complete(cctx, buildPrompt(in))
	if err != nil {
		log.WithError(err).Warn("Classification call failed")
		c.metrics.Classification(metrics.OutcomeFailed)
		return Fallback(in)
	}

	res, err := parseReply(reply)
	if err != nil {
		log.WithError(err).Warn("Classification reply unusable")
		c.metrics.Classification(metrics.OutcomeFailed)
		return Fallback(in)
	}

	c.metrics.Classification(metrics.OutcomeOK)
	log.WithFields(logrus.Fields{"category": res.Category, "tags": res.Tags}).Info("Content classified")
	return res
}

func buildPrompt(in Input) string {
	title := in.Title
	if title == "" {
		title = domain.DefaultTitle
	}

	labels := make([]string, len(domain.Categories))
	for i, c := range domain.Categories {
		labels[i] = string(c)
	}

	var sb strings.Builder
	sb.WriteString("Analyze the following content:\n\n")
	fmt.Fprintf(&sb, "Title: %s\nURL: %s\nContent: %s\n\n", title, in.URL, truncateRunes(in.Content, maxPromptContent))
	sb.WriteString("Respond in JSON format:\n{\n")
	fmt.Fprintf(&sb, "  \"category\": \"%s (choose one)\",\n", strings.Join(labels, "|"))
	sb.WriteString("  \"tags\": [\"tag1\", \"tag2\", \"tag3\"] (maximum 5 tags, key keywords related to content, MUST BE IN ENGLISH),\n")
	sb.WriteString("  \"summary\": \"Brief summary (50 chars max, in the same language as the content)\"\n}")
	return sb.String()
}

type chatRequest struct {
	Model          string         `json:"model"`
	Messages       []chatMessage  `json:"messages"`
	Temperature    float64        `json:"temperature"`
	MaxTokens      int            `json:"max_tokens"`
	ResponseFormat responseFormat `json:"response_format"`
}

type chatMessage struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

type responseFormat struct {
	Type string `json:"type"`
}

type chatResponse struct {
	Choices []struct {
		Message chatMessage `json:"message"`
	} `json:"choices"`
	Error *struct {
		Message string `json:"message"`
	} `json:"error,omitempty"`
}

func (c *OpenAI) complete(ctx context.Context, prompt string) (string, error) {
	body, err := json.Marshal(chatRequest{
		Model: c.cfg.Model,
		Messages: []chatMessage{
			{Role: "system", Content: systemPrompt},
			{Role: "user", Content: prompt},
		},
		Temperature:    0.7,
		MaxTokens:      200,
		ResponseFormat: responseFormat{Type: "json_object"},
	})
	if err != nil {
		return "", fmt.Errorf("marshal request: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.cfg.BaseURL+"/chat/completions", bytes.NewReader(body))
	if err != nil {
		return "", fmt.Errorf("create request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Authorization", "Bearer "+c.cfg.APIKey)

	resp, err := c.client.Do(req)
	if err != nil {
		return "", fmt.Errorf("http request: %w", err)
	}
	defer resp.Body.Close()

	raw, err := io.ReadAll(io.LimitReader(resp.Body, 1<<20))
	if err != nil {
		return "", fmt.Errorf("read response: %w", err)
	}
	if resp.StatusCode != http.StatusOK {
		return "", fmt.Errorf("api error (status %d): %s", resp.StatusCode, strings.TrimSpace(string(raw)))
	}

	var out chatResponse
	if err := json.Unmarshal(raw, &out); err != nil {
		return "", fmt.Errorf("unmarshal response: %w", err)
	}
	if out.Error != nil {
		return "", fmt.Errorf("api error: %s", out.Error.Message)
	}
	if len(out.Choices) == 0 {
		return "", fmt.Errorf("empty response")
	}
	return out.Choices[0].Message.Content, nil
}

type reply struct {
	Category string `json:"category"`
	Tags     []any  `json:"tags"`
	Summary  string `json:"summary"`
}

func parseReply(s string) (Result, error) {
	s = strings.TrimSpace(s)
	s = strings.TrimPrefix(s, "```json")
	s = strings.TrimPrefix(s, "```")
	s = strings.TrimSuffix(s, "```")
	s = strings.TrimSpace(s)

	var r reply
	if err := json.Unmarshal([]byte(s), &r); err != nil {
		return Result{}, fmt.Errorf("parse json: %w", err)
	}
	return sanitize(r.Category, r.Tags, r.Summary), nil
}
