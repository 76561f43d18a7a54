package ollama

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/kirillkom/coactivo-intake/internal/core/domain"
	"github.com/kirillkom/coactivo-intake/internal/infrastructure/llm/endpoint"
	"github.com/kirillkom/coactivo-intake/internal/infrastructure/llm/verdict"
	"github.com/kirillkom/coactivo-intake/internal/infrastructure/resilience"
)

const (
	DefaultBaseURL       = "http://localhost:11434"
	DefaultTimeout       = 120 * time.Second
	DefaultMaxInputChars = 10000

	providerName = "ollama"
)

type Options struct {
	BaseURL       string
	Model         string
	Timeout       time.Duration
	MaxInputChars int
}

type Client struct {
	baseURL    string
	model      string
	httpClient *http.Client
}

func New(baseURL, model string, timeout time.Duration) *Client {
	if strings.TrimSpace(baseURL) == "" {
		baseURL = DefaultBaseURL
	}
	if timeout <= 0 {
		timeout = DefaultTimeout
	}
	return &Client{
		baseURL:    strings.TrimRight(baseURL, "/"),
		model:      model,
		httpClient: &http.Client{Timeout: timeout},
	}
}

// Classifier asks a local Ollama model for a traffic-light verdict.
type Classifier struct {
	client        *Client
	maxInputChars int
	executor      *resilience.Executor
}

func NewClassifier(opts Options, executor *resilience.Executor) *Classifier {
	if opts.MaxInputChars <= 0 {
		opts.MaxInputChars = DefaultMaxInputChars
	}
	return &Classifier{
		client:        New(opts.BaseURL, opts.Model, opts.Timeout),
		maxInputChars: opts.MaxInputChars,
		executor:      executor,
	}
}

// Classify returns ErrClassificationUnavailable when Ollama cannot be reached
// or answers with an error status. Unparsable replies give the fallback verdict.
func (c *Classifier) Classify(ctx context.Context, text string) (domain.Verdict, error) {
	prompt := verdict.SystemPrompt + "\n\n" + verdict.BuildPrompt(verdict.TruncateRunes(text, c.maxInputChars))

	var reply string
	call := func(ctx context.Context) error {
		out, err := c.client.generateJSON(ctx, prompt)
		if err != nil {
			return err
		}
		reply = out
		return nil
	}

	var err error
	if c.executor != nil {
		err = c.executor.Execute(ctx, "ollama.generate", call, endpoint.Classify)
	} else {
		err = call(ctx)
	}
	if err != nil {
		return domain.Verdict{}, domain.WrapError(domain.ErrClassificationUnavailable, "classify case", err)
	}
	return verdict.ParseReply(reply), nil
}

type generateResponse struct {
	Response string          `json:"response"`
	Error    json.RawMessage `json:"error"`
}

func (c *Client) generateJSON(ctx context.Context, prompt string) (string, error) {
	reqBody := map[string]any{
		"model":  c.model,
		"prompt": prompt,
		"stream": false,
		"format": "json",
	}
	raw, err := endpoint.PostJSON(ctx, c.httpClient, providerName, c.baseURL+"/api/generate", nil, reqBody)
	if err != nil {
		return "", err
	}

	var response generateResponse
	if err := json.Unmarshal(raw, &response); err != nil {
		return "", fmt.Errorf("decode ollama generate response: %w", err)
	}
	if err := endpoint.ReplyErrorFrom(providerName, response.Error); err != nil {
		return "", err
	}
	return strings.TrimSpace(response.Response), nil
}
