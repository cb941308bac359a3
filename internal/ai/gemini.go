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

// GeminiProvider speaks the generateContent protocol: the API key travels as
// a query parameter and responses surface at candidates[0].content.parts.
// The protocol rejects consecutive turns with the same role, so histories
// are role-compressed before sending. No streaming.
type GeminiProvider struct {
	BaseURL string
	APIKey  string
	Model   string
	Client  *http.Client
}

func NewGeminiProvider(baseURL, apiKey, model string) *GeminiProvider {
	if baseURL == "" {
		baseURL = "https://generativelanguage.googleapis.com"
	}
	if model == "" {
		model = "gemini-2.0-flash"
	}
	return &GeminiProvider{
		BaseURL: baseURL,
		APIKey:  apiKey,
		Model:   model,
		Client:  &http.Client{Timeout: 90 * time.Second},
	}
}

type geminiPart struct {
	Text string `json:"text"`
}

type geminiContent struct {
	Role  string       `json:"role,omitempty"`
	Parts []geminiPart `json:"parts"`
}

type geminiGenConfig struct {
	Temperature     float64 `json:"temperature"`
	TopK            int     `json:"topK"`
	TopP            float64 `json:"topP"`
	MaxOutputTokens int     `json:"maxOutputTokens"`
}

type geminiSafetySetting struct {
	Category  string `json:"category"`
	Threshold string `json:"threshold"`
}

type geminiReq struct {
	Contents         []geminiContent       `json:"contents"`
	GenerationConfig geminiGenConfig       `json:"generationConfig"`
	SafetySettings   []geminiSafetySetting `json:"safetySettings"`
}

type geminiErr struct {
	Code    int    `json:"code"`
	Message string `json:"message"`
	Status  string `json:"status"`
}

type geminiResp struct {
	Candidates []struct {
		Content struct {
			Parts []geminiPart `json:"parts"`
		} `json:"content"`
	} `json:"candidates"`
	UsageMetadata *struct {
		PromptTokenCount     int `json:"promptTokenCount"`
		CandidatesTokenCount int `json:"candidatesTokenCount"`
		TotalTokenCount      int `json:"totalTokenCount"`
	} `json:"usageMetadata"`
	Error *geminiErr `json:"error,omitempty"`
}

func defaultSafetySettings() []geminiSafetySetting {
	categories := []string{
		"HARM_CATEGORY_HARASSMENT",
		"HARM_CATEGORY_HATE_SPEECH",
		"HARM_CATEGORY_SEXUALLY_EXPLICIT",
		"HARM_CATEGORY_DANGEROUS_CONTENT",
	}
	out := make([]geminiSafetySetting, 0, len(categories))
	for _, c := range categories {
		out = append(out, geminiSafetySetting{Category: c, Threshold: "BLOCK_NONE"})
	}
	return out
}

// formatContents maps history to the vendor shape, coalescing adjacent turns
// with the same mapped role into one content with concatenated parts.
// Assistant maps to "model"; user and system both map to "user".
func (p *GeminiProvider) formatContents(history []Message) []geminiContent {
	var contents []geminiContent
	currentRole := ""
	var currentParts []geminiPart

	for _, m := range history {
		role := "user"
		if m.Role == RoleAssistant {
			role = "model"
		}
		if role != currentRole && len(currentParts) > 0 {
			contents = append(contents, geminiContent{Role: currentRole, Parts: currentParts})
			currentParts = nil
		}
		currentRole = role
		currentParts = append(currentParts, geminiPart{Text: m.Content})
	}
	if len(currentParts) > 0 {
		contents = append(contents, geminiContent{Role: currentRole, Parts: currentParts})
	}
	return contents
}

func (p *GeminiProvider) mapError(status int, e *geminiErr) *Error {
	msg := fmt.Sprintf("gemini: status %d", status)
	vendorStatus := ""
	if e != nil {
		if e.Message != "" {
			msg = "gemini: " + e.Message
		}
		vendorStatus = e.Status
	}
	switch {
	case vendorStatus == "RESOURCE_EXHAUSTED" || status == http.StatusTooManyRequests:
		return newError(KindRateLimit, msg, "wait a moment and try again")
	case vendorStatus == "PERMISSION_DENIED" || status == http.StatusUnauthorized ||
		(e != nil && strings.Contains(e.Message, "API key")):
		return newError(KindAuth, msg, "get a free key at makersuite.google.com/app/apikey")
	default:
		return newError(KindUnknown, msg, "")
	}
}

func (p *GeminiProvider) generate(ctx context.Context, body geminiReq) (*geminiResp, error) {
	b, err := json.Marshal(body)
	if err != nil {
		return nil, err
	}
	// The key is a query parameter; never log this URL.
	url := fmt.Sprintf("%s/v1beta/models/%s:generateContent?key=%s",
		strings.TrimRight(p.BaseURL, "/"), p.Model, p.APIKey)
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewReader(b))
	if err != nil {
		return nil, err
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := p.Client.Do(req)
	if err != nil {
		return nil, newError(KindNetwork, "gemini: "+err.Error(), "check your network connection")
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		raw, _ := io.ReadAll(io.LimitReader(resp.Body, 4*1024))
		var decoded struct {
			Error *geminiErr `json:"error"`
		}
		_ = json.Unmarshal(raw, &decoded)
		return nil, p.mapError(resp.StatusCode, decoded.Error)
	}

	var decoded geminiResp
	if err := json.NewDecoder(resp.Body).Decode(&decoded); err != nil {
		return nil, errors.Wrap(err, "gemini: decode response")
	}
	if decoded.Error != nil {
		return nil, p.mapError(resp.StatusCode, decoded.Error)
	}
	return &decoded, nil
}

func (p *GeminiProvider) SendMessage(ctx context.Context, history []Message, opts Options) (*Response, error) {
	if strings.TrimSpace(p.APIKey) == "" {
		return nil, errors.New("gemini: api key is required")
	}
	if len(history) == 0 {
		return nil, errors.New("gemini: history is empty")
	}

	maxTokens := opts.MaxTokens
	if maxTokens == 0 {
		maxTokens = 2048
	}
	decoded, err := p.generate(ctx, geminiReq{
		Contents: p.formatContents(history),
		GenerationConfig: geminiGenConfig{
			Temperature:     opts.temperature(),
			TopK:            1,
			TopP:            1,
			MaxOutputTokens: maxTokens,
		},
		SafetySettings: defaultSafetySettings(),
	})
	if err != nil {
		return nil, err
	}

	if len(decoded.Candidates) == 0 || len(decoded.Candidates[0].Content.Parts) == 0 {
		return nil, errors.New("gemini: no response generated")
	}
	out := &Response{
		Content: decoded.Candidates[0].Content.Parts[0].Text,
		Model:   p.Model,
	}
	if decoded.UsageMetadata != nil {
		out.Usage = Usage{
			PromptTokens:     decoded.UsageMetadata.PromptTokenCount,
			CompletionTokens: decoded.UsageMetadata.CandidatesTokenCount,
			TotalTokens:      decoded.UsageMetadata.TotalTokenCount,
		}
	}
	return out, nil
}

func (p *GeminiProvider) TestConnection(ctx context.Context) TestResult {
	_, err := p.SendMessage(ctx, []Message{
		{Role: RoleUser, Content: `Say "OK" in one word.`},
	}, Options{MaxTokens: 10})
	if err != nil {
		return TestResult{Success: false, Message: err.Error()}
	}
	return TestResult{Success: true, Message: fmt.Sprintf("Connected to %s!", p.Model)}
}
