// Package httpprovider is the minimal concrete llm.Provider binding
// cmd/qnwis needs to actually run. Spec §6.3/§1 deliberately keeps the
// LLM provider an opaque interface with "no concrete SDK wiring" —
// there is no single named vendor this module commits to, so this talks
// to any OpenAI-compatible chat-completions HTTP endpoint (the de facto
// lowest common denominator self-hosted model servers and most vendor
// gateways already speak) rather than importing a vendor-specific SDK.
// Plugging in a real vendor SDK later means implementing llm.Provider
// directly against it; nothing else in this module would change.
package httpprovider

import (
	"bufio"
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/albarami/qnwis/pkg/llm"
)

// Provider calls an OpenAI-compatible /chat/completions endpoint.
type Provider struct {
	baseURL string
	apiKey  string
	model   string
	client  *http.Client
}

// New builds a Provider. baseURL is the API root (e.g.
// "https://api.openai.com/v1" or a self-hosted server's equivalent).
func New(baseURL, apiKey, model string) *Provider {
	return &Provider{
		baseURL: strings.TrimSuffix(baseURL, "/"),
		apiKey:  apiKey,
		model:   model,
		client:  &http.Client{Timeout: 60 * time.Second},
	}
}

type chatMessage struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

type chatRequest struct {
	Model     string        `json:"model"`
	Messages  []chatMessage `json:"messages"`
	MaxTokens int           `json:"max_tokens,omitempty"`
	Stop      []string      `json:"stop,omitempty"`
	Stream    bool          `json:"stream"`
}

type chatChoice struct {
	Message chatMessage `json:"message"`
	Delta   chatMessage `json:"delta"`
}

type chatUsage struct {
	PromptTokens     int `json:"prompt_tokens"`
	CompletionTokens int `json:"completion_tokens"`
	TotalTokens      int `json:"total_tokens"`
}

type chatResponse struct {
	Choices []chatChoice `json:"choices"`
	Usage   chatUsage    `json:"usage"`
}

// Complete satisfies llm.Provider with a single non-streaming call.
func (p *Provider) Complete(ctx context.Context, prompt string, maxTokens int, stop []string) (string, llm.Usage, error) {
	req := chatRequest{
		Model:     p.model,
		Messages:  []chatMessage{{Role: "user", Content: prompt}},
		MaxTokens: maxTokens,
		Stop:      stop,
	}

	var resp chatResponse
	if err := p.do(ctx, req, &resp); err != nil {
		return "", llm.Usage{}, err
	}
	if len(resp.Choices) == 0 {
		return "", llm.Usage{}, fmt.Errorf("httpprovider: empty choices in completion response")
	}
	usage := llm.Usage{
		PromptTokens:     resp.Usage.PromptTokens,
		CompletionTokens: resp.Usage.CompletionTokens,
		TotalTokens:      resp.Usage.TotalTokens,
	}
	return resp.Choices[0].Message.Content, usage, nil
}

// CompleteStreaming satisfies llm.Provider by consuming the endpoint's
// text/event-stream response, one "data: {...}" line per chunk, the same
// SSE framing every OpenAI-compatible server emits for stream=true.
func (p *Provider) CompleteStreaming(ctx context.Context, prompt string, maxTokens int, stop []string) (<-chan llm.StreamChunk, error) {
	req := chatRequest{
		Model:     p.model,
		Messages:  []chatMessage{{Role: "user", Content: prompt}},
		MaxTokens: maxTokens,
		Stop:      stop,
		Stream:    true,
	}

	body, err := json.Marshal(req)
	if err != nil {
		return nil, err
	}

	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, p.baseURL+"/chat/completions", bytes.NewReader(body))
	if err != nil {
		return nil, err
	}
	p.setHeaders(httpReq)

	resp, err := p.client.Do(httpReq)
	if err != nil {
		return nil, err
	}
	if resp.StatusCode != http.StatusOK {
		resp.Body.Close()
		return nil, fmt.Errorf("httpprovider: unexpected status %d", resp.StatusCode)
	}

	out := make(chan llm.StreamChunk)
	go func() {
		defer close(out)
		defer resp.Body.Close()

		scanner := bufio.NewScanner(resp.Body)
		for scanner.Scan() {
			line := strings.TrimSpace(scanner.Text())
			if line == "" || !strings.HasPrefix(line, "data:") {
				continue
			}
			payload := strings.TrimSpace(strings.TrimPrefix(line, "data:"))
			if payload == "[DONE]" {
				select {
				case out <- llm.StreamChunk{Done: true}:
				case <-ctx.Done():
				}
				return
			}

			var chunk chatResponse
			if err := json.Unmarshal([]byte(payload), &chunk); err != nil {
				continue
			}
			if len(chunk.Choices) == 0 {
				continue
			}
			select {
			case out <- llm.StreamChunk{Delta: chunk.Choices[0].Delta.Content}:
			case <-ctx.Done():
				return
			}
		}
	}()
	return out, nil
}

func (p *Provider) do(ctx context.Context, req chatRequest, out *chatResponse) error {
	body, err := json.Marshal(req)
	if err != nil {
		return err
	}
	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, p.baseURL+"/chat/completions", bytes.NewReader(body))
	if err != nil {
		return err
	}
	p.setHeaders(httpReq)

	resp, err := p.client.Do(httpReq)
	if err != nil {
		return err
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return fmt.Errorf("httpprovider: unexpected status %d", resp.StatusCode)
	}
	return json.NewDecoder(resp.Body).Decode(out)
}

func (p *Provider) setHeaders(req *http.Request) {
	req.Header.Set("Content-Type", "application/json")
	if p.apiKey != "" {
		req.Header.Set("Authorization", "Bearer "+p.apiKey)
	}
}
