package providers

import (
	"context"
	"errors"
	"strings"

	openai "github.com/meguminnnnnnnnn/go-openai"

	"github.com/ChamsBouzaiene/agentcli/internal/engine"
)

// GPTClient calls an OpenAI-compatible chat completions API.
type GPTClient struct {
	opts Options
}

// NewGPT creates the gpt adapter.
func NewGPT(opts Options) *GPTClient {
	return &GPTClient{opts: opts}
}

func (c *GPTClient) Name() string { return GPT }

func (c *GPTClient) client(apiKey string) *openai.Client {
	config := openai.DefaultConfig(apiKey)
	if c.opts.BaseURL != "" {
		config.BaseURL = c.opts.BaseURL
	}
	if c.opts.HTTPClient != nil {
		config.HTTPClient = c.opts.HTTPClient
	}
	return openai.NewClientWithConfig(config)
}

func (c *GPTClient) Call(ctx context.Context, apiKey, prompt string, opts CallOptions) (string, error) {
	if err := requireKey(GPT, apiKey); err != nil {
		return "", err
	}
	req := openai.ChatCompletionRequest{
		Model: model(GPT, opts),
		Messages: []openai.ChatCompletionMessage{{
			Role:    openai.ChatMessageRoleUser,
			Content: prompt,
		}},
		MaxTokens: maxTokens(opts),
	}
	if opts.Temperature > 0 {
		t := float32(opts.Temperature)
		req.Temperature = &t
	}

	resp, err := c.client(apiKey).CreateChatCompletion(ctx, req)
	if err != nil {
		return "", classify(GPT, openaiStatus(err), err)
	}
	if len(resp.Choices) == 0 {
		return "", &engine.Error{Kind: engine.KindUpstreamServer, Op: "call", Provider: GPT, Reasons: []string{"empty response"}}
	}
	return strings.TrimSpace(resp.Choices[0].Message.Content), nil
}

func (c *GPTClient) TestAPIKey(ctx context.Context, apiKey string) bool {
	return probe(ctx, c, apiKey)
}

func openaiStatus(err error) int {
	var apiErr *openai.APIError
	if errors.As(err, &apiErr) {
		return apiErr.HTTPStatusCode
	}
	var reqErr *openai.RequestError
	if errors.As(err, &reqErr) {
		return reqErr.HTTPStatusCode
	}
	return 0
}
