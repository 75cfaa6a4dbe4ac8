package checker

import (
	"context"
	"encoding/json"
	"fmt"
	"math/rand"
	"os"
	"strings"
	"time"

	openai "github.com/sashabaranov/go-openai"

	"merit/pkg/logging"
)

const judgeSystemPrompt = `You are a strict grader for outputs of probabilistic software.
Given an ACTUAL output and a REFERENCE output, judge whether the actual output
is semantically equivalent to the reference. Optional CONTEXT describes the
task the output was produced for. Respond with a single JSON object:
{"passed": <bool>, "confidence": <float 0..1>, "message": "<short explanation>"}`

// SemanticConfig configures the remote semantic checker.
type SemanticConfig struct {
	// APIKey authenticates against the scoring service.
	APIKey string
	// BaseURL overrides the service endpoint. Empty uses the provider default.
	BaseURL string
	// Model is the judge model identifier.
	Model string
	// MaxAttempts bounds retries for a single check.
	MaxAttempts int
	// BaseDelay and MaxDelay shape the exponential backoff between attempts.
	BaseDelay time.Duration
	MaxDelay  time.Duration
	// Jitter is added to every backoff delay.
	Jitter time.Duration
}

// SemanticConfigFromEnv reads checker configuration from the environment
// (MERIT_API_KEY, MERIT_API_BASE_URL, MERIT_CHECKER_MODEL).
func SemanticConfigFromEnv() SemanticConfig {
	cfg := SemanticConfig{
		APIKey:  os.Getenv("MERIT_API_KEY"),
		BaseURL: os.Getenv("MERIT_API_BASE_URL"),
		Model:   os.Getenv("MERIT_CHECKER_MODEL"),
	}
	if cfg.Model == "" {
		cfg.Model = openai.GPT4oMini
	}
	return cfg
}

// SemanticChecker delegates the comparison to a language model acting as
// judge. It is glue around the scoring service, not engine logic: the runtime
// never interprets the judgment beyond the returned Result.
type SemanticChecker struct {
	client      *openai.Client
	model       string
	maxAttempts int
	baseDelay   time.Duration
	maxDelay    time.Duration
	jitter      time.Duration
}

// NewSemanticChecker builds a checker from the given configuration.
func NewSemanticChecker(cfg SemanticConfig) *SemanticChecker {
	clientConfig := openai.DefaultConfig(cfg.APIKey)
	if cfg.BaseURL != "" {
		clientConfig.BaseURL = cfg.BaseURL
	}
	if cfg.MaxAttempts <= 0 {
		cfg.MaxAttempts = 4
	}
	if cfg.BaseDelay <= 0 {
		cfg.BaseDelay = 50 * time.Millisecond
	}
	if cfg.MaxDelay <= 0 {
		cfg.MaxDelay = time.Second
	}
	if cfg.Jitter <= 0 {
		cfg.Jitter = 50 * time.Millisecond
	}
	return &SemanticChecker{
		client:      openai.NewClientWithConfig(clientConfig),
		model:       cfg.Model,
		maxAttempts: cfg.MaxAttempts,
		baseDelay:   cfg.BaseDelay,
		maxDelay:    cfg.MaxDelay,
		jitter:      cfg.Jitter,
	}
}

// Name implements Checker.
func (c *SemanticChecker) Name() string { return "semantic" }

// judgeVerdict is the JSON payload the judge model is instructed to return.
type judgeVerdict struct {
	Passed     bool    `json:"passed"`
	Confidence float64 `json:"confidence"`
	Message    string  `json:"message"`
}

// Check implements Checker. Transport failures are retried with exponential
// backoff; a malformed verdict is not retried and surfaces as an error.
func (c *SemanticChecker) Check(ctx context.Context, actual, reference string, opts ...Option) (*Result, error) {
	o := buildOptions(opts)

	var sb strings.Builder
	fmt.Fprintf(&sb, "ACTUAL:\n%s\n\nREFERENCE:\n%s\n", actual, reference)
	if o.context != "" {
		fmt.Fprintf(&sb, "\nCONTEXT:\n%s\n", o.context)
	}
	fmt.Fprintf(&sb, "\nSTRICT: %v\n", o.strict)

	req := openai.ChatCompletionRequest{
		Model:       c.model,
		Temperature: 0,
		ResponseFormat: &openai.ChatCompletionResponseFormat{
			Type: openai.ChatCompletionResponseFormatTypeJSONObject,
		},
		Messages: []openai.ChatCompletionMessage{
			{Role: openai.ChatMessageRoleSystem, Content: judgeSystemPrompt},
			{Role: openai.ChatMessageRoleUser, Content: sb.String()},
		},
	}

	var resp openai.ChatCompletionResponse
	var err error
	for attempt := 0; attempt < c.maxAttempts; attempt++ {
		resp, err = c.client.CreateChatCompletion(ctx, req)
		if err == nil {
			break
		}
		if attempt == c.maxAttempts-1 {
			return nil, fmt.Errorf("semantic check failed after %d attempts: %w", c.maxAttempts, err)
		}
		delay := c.baseDelay << attempt
		if delay > c.maxDelay {
			delay = c.maxDelay
		}
		delay += time.Duration(rand.Int63n(int64(c.jitter) + 1))
		logging.Debug("Checker", "semantic check attempt %d failed, retrying in %s: %v", attempt+1, delay, err)
		select {
		case <-ctx.Done():
			return nil, ctx.Err()
		case <-time.After(delay):
		}
	}

	if len(resp.Choices) == 0 {
		return nil, fmt.Errorf("semantic check returned no choices")
	}

	var verdict judgeVerdict
	if err := json.Unmarshal([]byte(resp.Choices[0].Message.Content), &verdict); err != nil {
		return nil, fmt.Errorf("semantic check returned malformed verdict: %w", err)
	}
	if verdict.Confidence < 0 {
		verdict.Confidence = 0
	}
	if verdict.Confidence > 1 {
		verdict.Confidence = 1
	}

	return newResult(c.Name(), actual, reference, o, verdict.Passed, verdict.Confidence, verdict.Message), nil
}
