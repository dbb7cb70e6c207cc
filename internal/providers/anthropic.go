package providers

import (
	"context"
	"errors"
	"net/http"
	"strings"

	anthropic "github.com/liushuangls/go-anthropic/v2"

	"github.com/ChamsBouzaiene/agentcli/internal/engine"
)

// ClaudeClient calls the Anthropic messages API.
type ClaudeClient struct {
	opts Options
}

// NewClaude creates the claude adapter.
func NewClaude(opts Options) *ClaudeClient {
	return &ClaudeClient{opts: opts}
}

func (c *ClaudeClient) Name() string { return Claude }

func (c *ClaudeClient) client(apiKey string) *anthropic.Client {
	var clientOpts []anthropic.ClientOption
	if c.opts.BaseURL != "" {
		clientOpts = append(clientOpts, anthropic.WithBaseURL(c.opts.BaseURL))
	}
	if c.opts.HTTPClient != nil {
		clientOpts = append(clientOpts, anthropic.WithHTTPClient(c.opts.HTTPClient))
	}
	return anthropic.NewClient(apiKey, clientOpts...)
}

// Call sends prompt as a single user message and joins the text blocks of
// the reply.
func (c *ClaudeClient) Call(ctx context.Context, apiKey, prompt string, opts CallOptions) (string, error) {
	if err := requireKey(Claude, apiKey); err != nil {
		return "", err
	}
	req := anthropic.MessagesRequest{
		Model: anthropic.Model(model(Claude, opts)),
		Messages: []anthropic.Message{{
			Role:    anthropic.RoleUser,
			Content: []anthropic.MessageContent{anthropic.NewTextMessageContent(prompt)},
		}},
		MaxTokens: maxTokens(opts),
	}
	if opts.Temperature > 0 {
		t := float32(opts.Temperature)
		req.Temperature = &t
	}

	resp, err := c.client(apiKey).CreateMessages(ctx, req)
	if err != nil {
		return "", classify(Claude, anthropicStatus(err), err)
	}

	var parts []string
	for _, block := range resp.Content {
		if block.Type == anthropic.MessagesContentTypeText && block.Text != nil {
			parts = append(parts, *block.Text)
		}
	}
	if len(parts) == 0 {
		return "", &engine.Error{Kind: engine.KindUpstreamServer, Op: "call", Provider: Claude, Reasons: []string{"empty response"}}
	}
	return strings.Join(parts, ""), nil
}

func (c *ClaudeClient) TestAPIKey(ctx context.Context, apiKey string) bool {
	return probe(ctx, c, apiKey)
}

func anthropicStatus(err error) int {
	var reqErr *anthropic.RequestError
	if errors.As(err, &reqErr) {
		return reqErr.StatusCode
	}
	var apiErr *anthropic.APIError
	if errors.As(err, &apiErr) {
		switch {
		case apiErr.IsAuthenticationErr(), apiErr.IsPermissionErr():
			return http.StatusUnauthorized
		case apiErr.IsRateLimitErr():
			return http.StatusTooManyRequests
		case apiErr.IsOverloadedErr(), apiErr.IsApiErr():
			return http.StatusServiceUnavailable
		}
	}
	return 0
}
