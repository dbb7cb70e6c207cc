package providers

import (
	"context"
	"net/http"
	"strings"

	"github.com/google/generative-ai-go/genai"
	"google.golang.org/api/option"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/status"

	"github.com/ChamsBouzaiene/agentcli/internal/engine"
)

// GeminiClient calls the Google generative language API.
type GeminiClient struct {
	opts Options
}

// NewGemini creates the gemini adapter.
func NewGemini(opts Options) *GeminiClient {
	return &GeminiClient{opts: opts}
}

func (c *GeminiClient) Name() string { return Gemini }

func (c *GeminiClient) Call(ctx context.Context, apiKey, prompt string, opts CallOptions) (string, error) {
	if err := requireKey(Gemini, apiKey); err != nil {
		return "", err
	}
	clientOpts := []option.ClientOption{option.WithAPIKey(apiKey)}
	if c.opts.BaseURL != "" {
		clientOpts = append(clientOpts, option.WithEndpoint(c.opts.BaseURL))
	}
	if c.opts.HTTPClient != nil {
		clientOpts = append(clientOpts, option.WithHTTPClient(c.opts.HTTPClient))
	}
	client, err := genai.NewClient(ctx, clientOpts...)
	if err != nil {
		return "", classify(Gemini, 0, err)
	}
	defer client.Close()

	m := client.GenerativeModel(model(Gemini, opts))
	m.SetMaxOutputTokens(int32(maxTokens(opts)))
	if opts.Temperature > 0 {
		m.SetTemperature(float32(opts.Temperature))
	}

	resp, err := m.GenerateContent(ctx, genai.Text(prompt))
	if err != nil {
		return "", classify(Gemini, grpcStatus(err), err)
	}
	text := geminiText(resp)
	if text == "" {
		return "", &engine.Error{Kind: engine.KindUpstreamServer, Op: "call", Provider: Gemini, Reasons: []string{"empty response"}}
	}
	return text, nil
}

func (c *GeminiClient) TestAPIKey(ctx context.Context, apiKey string) bool {
	return probe(ctx, c, apiKey)
}

// geminiText joins the text parts of the first candidate.
func geminiText(resp *genai.GenerateContentResponse) string {
	if resp == nil || len(resp.Candidates) == 0 || resp.Candidates[0].Content == nil {
		return ""
	}
	var b strings.Builder
	for _, part := range resp.Candidates[0].Content.Parts {
		if t, ok := part.(genai.Text); ok {
			b.WriteString(string(t))
		}
	}
	return b.String()
}

func grpcStatus(err error) int {
	s, ok := status.FromError(err)
	if !ok {
		return 0
	}
	switch s.Code() {
	case codes.Unauthenticated, codes.PermissionDenied:
		return http.StatusUnauthorized
	case codes.ResourceExhausted:
		return http.StatusTooManyRequests
	case codes.Unavailable, codes.Internal:
		return http.StatusServiceUnavailable
	}
	return 0
}
