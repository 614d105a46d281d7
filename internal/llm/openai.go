package llm

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"strings"
	"time"

	"github.com/openai/openai-go/v3"
	"github.com/openai/openai-go/v3/option"
)

const (
	defaultBaseURL     = "https://api.openai.com/v1/"
	defaultChatTimeout = 60 * time.Second
	completionsPath    = "chat/completions"
)

// OpenAIConfig configures OpenAIClient.
type OpenAIConfig struct {
	APIKey  string
	BaseURL string
	Model   openai.ChatModel
	// Timeout bounds a non-streaming call. Streams are bounded by the
	// caller's context only.
	Timeout time.Duration
	// HTTPClient overrides the transport, mostly for tests.
	HTTPClient *http.Client
}

// OpenAIClient calls the OpenAI Chat Completions API.
type OpenAIClient struct {
	model   openai.ChatModel
	timeout time.Duration
	client  *openai.Client
	log     *slog.Logger
}

// NewOpenAIClient builds a client against cfg.BaseURL (api.openai.com by
// default). The key is used as given apart from surrounding whitespace and
// quotes; an unusable key surfaces as an UpstreamError on the first call.
func NewOpenAIClient(cfg OpenAIConfig, log *slog.Logger) *OpenAIClient {
	if log == nil {
		log = slog.Default()
	}
	if cfg.Model == "" {
		cfg.Model = openai.ChatModelGPT3_5Turbo
	}
	if cfg.Timeout <= 0 {
		cfg.Timeout = defaultChatTimeout
	}
	baseURL := cfg.BaseURL
	if baseURL == "" {
		baseURL = defaultBaseURL
	}
	if !strings.HasSuffix(baseURL, "/") {
		baseURL += "/"
	}

	opts := []option.RequestOption{
		option.WithAPIKey(cleanAPIKey(cfg.APIKey)),
		option.WithBaseURL(baseURL),
		option.WithMaxRetries(0),
	}
	if cfg.HTTPClient != nil {
		opts = append(opts, option.WithHTTPClient(cfg.HTTPClient))
	}
	cli := openai.NewClient(opts...)
	return &OpenAIClient{
		model:   cfg.Model,
		timeout: cfg.Timeout,
		client:  &cli,
		log:     log,
	}
}

// cleanAPIKey strips whitespace and surrounding quotes, as left behind by
// some .env editors.
func cleanAPIKey(raw string) string {
	return strings.Trim(strings.TrimSpace(raw), `"'`)
}

func (c *OpenAIClient) Answer(ctx context.Context, question string) (string, error) {
	reqCtx, cancel := context.WithTimeout(ctx, c.timeout)
	defer cancel()

	resp, err := c.client.Chat.Completions.New(reqCtx, c.params(question))
	if err != nil {
		return "", upstreamError(err)
	}
	if len(resp.Choices) == 0 {
		return "", &ProtocolError{Reason: "response has no choices"}
	}
	msg := resp.Choices[0].Message
	if !msg.JSON.Content.Valid() {
		return "", &ProtocolError{Reason: "first choice has no message content"}
	}
	return strings.TrimSpace(msg.Content), nil
}

// StreamAnswer sends the streaming request and hands the raw SSE body to a
// Stream. Errors before the body is available are returned directly; the
// stream yields nothing in that case.
func (c *OpenAIClient) StreamAnswer(ctx context.Context, question string) (*Stream, error) {
	var raw *http.Response
	err := c.client.Post(ctx, completionsPath, c.params(question), &raw,
		option.WithJSONSet("stream", true),
		option.WithHeader("Accept", "text/event-stream"),
	)
	if err != nil {
		if raw != nil && raw.Body != nil {
			_ = raw.Body.Close()
		}
		return nil, upstreamError(err)
	}
	if raw == nil || raw.Body == nil {
		return nil, &ProtocolError{Reason: "streaming response has no body"}
	}
	c.log.Debug("upstream stream opened", "model", c.model, "status", raw.StatusCode)
	return NewStream(raw.Body, c.log), nil
}

func (c *OpenAIClient) params(question string) openai.ChatCompletionNewParams {
	return openai.ChatCompletionNewParams{
		Model: c.model,
		Messages: []openai.ChatCompletionMessageParamUnion{
			{
				OfUser: &openai.ChatCompletionUserMessageParam{
					Content: openai.ChatCompletionUserMessageParamContentUnion{
						OfString: openai.String(question),
					},
				},
			},
		},
	}
}

func upstreamError(err error) error {
	var apiErr *openai.Error
	if errors.As(err, &apiErr) {
		return &UpstreamError{StatusCode: apiErr.StatusCode, Err: err}
	}
	return &UpstreamError{Err: err}
}
