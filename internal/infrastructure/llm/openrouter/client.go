package openrouter

import (
	"context"
	"encoding/json"
	"net/http"
	"strings"
	"time"

	"github.com/kirillkom/coactivo-intake/internal/core/domain"
	"github.com/kirillkom/coactivo-intake/internal/infrastructure/llm/endpoint"
	"github.com/kirillkom/coactivo-intake/internal/infrastructure/llm/verdict"
	"github.com/kirillkom/coactivo-intake/internal/infrastructure/resilience"
)

const (
	DefaultBaseURL       = "https://openrouter.ai/api/v1"
	DefaultModel         = "deepseek/deepseek-chat-v3.1:free"
	DefaultTimeout       = 30 * time.Second
	DefaultMaxInputChars = 10000

	providerName = "openrouter"
)

type Options struct {
	BaseURL       string
	APIKey        string
	Model         string
	Timeout       time.Duration
	MaxInputChars int
	// Referer and AppTitle are sent as the optional OpenRouter attribution headers.
	Referer  string
	AppTitle string
}

// Classifier asks a chat-completions endpoint for a traffic-light verdict.
type Classifier struct {
	baseURL       string
	apiKey        string
	model         string
	maxInputChars int
	referer       string
	appTitle      string
	httpClient    *http.Client
	executor      *resilience.Executor
}

func NewClassifier(opts Options, executor *resilience.Executor) *Classifier {
	if strings.TrimSpace(opts.BaseURL) == "" {
		opts.BaseURL = DefaultBaseURL
	}
	if strings.TrimSpace(opts.Model) == "" {
		opts.Model = DefaultModel
	}
	if opts.Timeout <= 0 {
		opts.Timeout = DefaultTimeout
	}
	if opts.MaxInputChars <= 0 {
		opts.MaxInputChars = DefaultMaxInputChars
	}
	return &Classifier{
		baseURL:       strings.TrimRight(opts.BaseURL, "/"),
		apiKey:        opts.APIKey,
		model:         opts.Model,
		maxInputChars: opts.MaxInputChars,
		referer:       opts.Referer,
		appTitle:      opts.AppTitle,
		httpClient:    &http.Client{Timeout: opts.Timeout},
		executor:      executor,
	}
}

type chatMessage struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

type chatRequest struct {
	Model    string        `json:"model"`
	Messages []chatMessage `json:"messages"`
}

type chatResponse struct {
	Choices []struct {
		Message struct {
			Content string `json:"content"`
		} `json:"message"`
	} `json:"choices"`
	Error json.RawMessage `json:"error"`
}

// Classify returns ErrClassificationUnavailable when the endpoint cannot be
// reached or reports a failure. Replies that cannot be parsed produce a
// fallback verdict and no error.
func (c *Classifier) Classify(ctx context.Context, text string) (domain.Verdict, error) {
	request := chatRequest{
		Model: c.model,
		Messages: []chatMessage{
			{Role: "system", Content: verdict.SystemPrompt},
			{Role: "user", Content: verdict.BuildPrompt(verdict.TruncateRunes(text, c.maxInputChars))},
		},
	}

	var reply string
	call := func(ctx context.Context) error {
		out, err := c.complete(ctx, request)
		if err != nil {
			return err
		}
		reply = out
		return nil
	}

	var err error
	if c.executor != nil {
		err = c.executor.Execute(ctx, "openrouter.chat_completion", call, endpoint.Classify)
	} else {
		err = call(ctx)
	}
	if err != nil {
		return domain.Verdict{}, domain.WrapError(domain.ErrClassificationUnavailable, "classify case", err)
	}

	return verdict.ParseReply(reply), nil
}

func (c *Classifier) complete(ctx context.Context, request chatRequest) (string, error) {
	header := http.Header{}
	header.Set("Authorization", "Bearer "+c.apiKey)
	if c.referer != "" {
		header.Set("HTTP-Referer", c.referer)
	}
	if c.appTitle != "" {
		header.Set("X-Title", c.appTitle)
	}

	raw, err := endpoint.PostJSON(ctx, c.httpClient, providerName, c.baseURL+"/chat/completions", header, request)
	if err != nil {
		return "", err
	}

	var envelope chatResponse
	if err := json.Unmarshal(raw, &envelope); err != nil {
		// Not a completion envelope; hand the body to the reply parser as-is.
		return string(raw), nil
	}
	if err := endpoint.ReplyErrorFrom(providerName, envelope.Error); err != nil {
		return "", err
	}
	if len(envelope.Choices) == 0 {
		return "", nil
	}
	return strings.TrimSpace(envelope.Choices[0].Message.Content), nil
}
