package ai

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/pkg/errors"
)

// OpenAIProvider speaks the OpenAI chat-completions protocol: bearer-token
// auth, batch responses at choices[0].message.content, and SSE streaming
// with incremental deltas terminated by a [DONE] sentinel frame.
type OpenAIProvider struct {
	BaseURL string
	APIKey  string
	Model   string
	Client  *http.Client
}

func NewOpenAIProvider(baseURL, apiKey, model string) *OpenAIProvider {
	if baseURL == "" {
		baseURL = "https://api.openai.com/v1"
	}
	if model == "" {
		model = "gpt-4-turbo-preview"
	}
	return &OpenAIProvider{
		BaseURL: baseURL,
		APIKey:  apiKey,
		Model:   model,
		Client:  &http.Client{Timeout: 90 * time.Second},
	}
}

type openAIMsg struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

type openAIChatReq struct {
	Model       string      `json:"model"`
	Messages    []openAIMsg `json:"messages"`
	Temperature float64     `json:"temperature"`
	MaxTokens   int         `json:"max_tokens,omitempty"`
	Stream      bool        `json:"stream"`
}

type openAIErr struct {
	Message string `json:"message"`
	Code    string `json:"code"`
}

type openAIChatResp struct {
	Model   string `json:"model"`
	Choices []struct {
		Message openAIMsg `json:"message"`
	} `json:"choices"`
	Usage Usage      `json:"usage"`
	Error *openAIErr `json:"error,omitempty"`
}

type openAIStreamResp struct {
	Choices []struct {
		Delta struct {
			Content string `json:"content"`
		} `json:"delta"`
	} `json:"choices"`
}

func (p *OpenAIProvider) formatMessages(history []Message) []openAIMsg {
	out := make([]openAIMsg, 0, len(history))
	for _, m := range history {
		out = append(out, openAIMsg{Role: m.Role, Content: m.Content})
	}
	return out
}

func (p *OpenAIProvider) newRequest(ctx context.Context, body openAIChatReq) (*http.Request, error) {
	b, err := json.Marshal(body)
	if err != nil {
		return nil, err
	}
	url := fmt.Sprintf("%s/chat/completions", strings.TrimRight(p.BaseURL, "/"))
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewReader(b))
	if err != nil {
		return nil, err
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Authorization", "Bearer "+p.APIKey)
	return req, nil
}

// mapError normalizes an OpenAI error payload onto the shared taxonomy.
func (p *OpenAIProvider) mapError(status int, e *openAIErr) *Error {
	msg := fmt.Sprintf("openai: status %d", status)
	code := ""
	if e != nil {
		if e.Message != "" {
			msg = "openai: " + e.Message
		}
		code = e.Code
	}
	switch {
	case code == "insufficient_quota" || status == http.StatusPaymentRequired:
		return newError(KindQuota, msg, "check your billing at platform.openai.com/account/billing")
	case code == "invalid_api_key" || status == http.StatusUnauthorized:
		return newError(KindAuth, msg, "check your API key in settings")
	case status == http.StatusTooManyRequests:
		return newError(KindRateLimit, msg, "wait a moment and try again")
	default:
		return newError(KindUnknown, msg, "")
	}
}

func (p *OpenAIProvider) errorFromResponse(resp *http.Response) *Error {
	body, _ := io.ReadAll(io.LimitReader(resp.Body, 4*1024))
	var decoded struct {
		Error *openAIErr `json:"error"`
	}
	_ = json.Unmarshal(body, &decoded)
	return p.mapError(resp.StatusCode, decoded.Error)
}

func (p *OpenAIProvider) SendMessage(ctx context.Context, history []Message, opts Options) (*Response, error) {
	if strings.TrimSpace(p.APIKey) == "" {
		return nil, errors.New("openai: api key is required")
	}
	if len(history) == 0 {
		return nil, errors.New("openai: history is empty")
	}

	req, err := p.newRequest(ctx, openAIChatReq{
		Model:       p.Model,
		Messages:    p.formatMessages(history),
		Temperature: opts.temperature(),
		MaxTokens:   opts.MaxTokens,
		Stream:      false,
	})
	if err != nil {
		return nil, err
	}

	resp, err := p.Client.Do(req)
	if err != nil {
		return nil, newError(KindNetwork, "openai: "+err.Error(), "check your network connection")
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return nil, p.errorFromResponse(resp)
	}

	var decoded openAIChatResp
	if err := json.NewDecoder(resp.Body).Decode(&decoded); err != nil {
		return nil, errors.Wrap(err, "openai: decode response")
	}
	if decoded.Error != nil {
		return nil, p.mapError(resp.StatusCode, decoded.Error)
	}
	if len(decoded.Choices) == 0 {
		return nil, errors.New("openai: empty response")
	}
	return &Response{
		Content: decoded.Choices[0].Message.Content,
		Model:   decoded.Model,
		Usage:   decoded.Usage,
	}, nil
}

// StreamMessage opens an SSE completion and returns a cursor over its
// deltas. The caller owns the stream and must Close it.
func (p *OpenAIProvider) StreamMessage(ctx context.Context, history []Message, opts Options) (*Stream, error) {
	if strings.TrimSpace(p.APIKey) == "" {
		return nil, errors.New("openai: api key is required")
	}
	if len(history) == 0 {
		return nil, errors.New("openai: history is empty")
	}

	req, err := p.newRequest(ctx, openAIChatReq{
		Model:       p.Model,
		Messages:    p.formatMessages(history),
		Temperature: opts.temperature(),
		MaxTokens:   opts.MaxTokens,
		Stream:      true,
	})
	if err != nil {
		return nil, err
	}

	// No client-wide timeout while streaming; ctx controls the call.
	client := *p.Client
	client.Timeout = 0

	resp, err := client.Do(req)
	if err != nil {
		return nil, newError(KindNetwork, "openai: "+err.Error(), "check your network connection")
	}
	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		defer resp.Body.Close()
		return nil, p.errorFromResponse(resp)
	}

	return newStream(resp.Body, func(data []byte) (string, bool) {
		var decoded openAIStreamResp
		if err := json.Unmarshal(data, &decoded); err != nil {
			return "", false
		}
		if len(decoded.Choices) == 0 {
			return "", false
		}
		return decoded.Choices[0].Delta.Content, true
	}), nil
}

// TestConnection sends a one-word prompt capped at a handful of tokens.
func (p *OpenAIProvider) TestConnection(ctx context.Context) TestResult {
	resp, err := p.SendMessage(ctx, []Message{
		{Role: RoleUser, Content: `Say "OK" in one word.`},
	}, Options{MaxTokens: 5})
	if err != nil {
		return TestResult{Success: false, Message: err.Error()}
	}
	model := resp.Model
	if model == "" {
		model = p.Model
	}
	return TestResult{Success: true, Message: fmt.Sprintf("Connected! Using %s", model)}
}
